// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"image"
	"sync/atomic"
)

var windowHandles atomic.Uint64

// Window is an offscreen presentation target. Presented swapchain images
// are read back into its frame.
type Window struct {
	d      *Driver
	handle uintptr

	// Guarded by d.mu.
	width, height int
	gen           uint64
	closed        bool
	frame         *image.RGBA
	presents      int
}

// NewWindow creates a window with the given size.
func (d *Driver) NewWindow(width, height int) *Window {
	w := &Window{
		d:      d,
		handle: uintptr(windowHandles.Add(1)),
		width:  width,
		height: height,
		frame:  image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0))),
	}
	d.mu.Lock()
	d.windows[w.handle] = w
	d.mu.Unlock()
	return w
}

// NativeHandle returns the window handle.
func (w *Window) NativeHandle() uintptr { return w.handle }

// Size returns the window size.
func (w *Window) Size() (int, int) {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return w.width, w.height
}

// Resize changes the window size. Swapchains of the window become out of
// date and the frame is cleared.
func (w *Window) Resize(width, height int) {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	w.width, w.height = width, height
	w.gen++
	w.frame = image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
	w.d.cond.Broadcast()
}

// Close closes the window. Its surfaces are lost.
func (w *Window) Close() {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	w.closed = true
	delete(w.d.windows, w.handle)
	w.d.cond.Broadcast()
}

// Frame returns a copy of the last presented frame.
func (w *Window) Frame() *image.RGBA {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	f := image.NewRGBA(w.frame.Rect)
	copy(f.Pix, w.frame.Pix)
	return f
}

// Presents returns the number of completed presentations.
func (w *Window) Presents() int {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return w.presents
}

// Minimize resizes the window to zero area.
func (w *Window) Minimize() { w.Resize(0, 0) }
