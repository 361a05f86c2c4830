// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"image"
	"sync/atomic"

	"golang.org/x/image/draw"
)

// windowHandles hands out native handles that are unique across drivers.
var windowHandles atomic.Uint64

// Window is an offscreen window that swapchains present into.
//
// Resizing or closing a window invalidates swapchains created for it, the
// same way a window system does: the next acquire returns
// driver.ErrOutOfDate (or driver.ErrSurfaceLost after Close).
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

// NewWindow creates a window with the given client size.
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

// Size returns the client size of the window.
func (w *Window) Size() (width, height int) {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return w.width, w.height
}

// Resize changes the client size. A size of zero models a minimized window.
func (w *Window) Resize(width, height int) {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.width == width && w.height == height {
		return
	}
	w.width, w.height = width, height
	w.gen++
	frame := image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
	draw.Draw(frame, frame.Bounds(), w.frame, image.Point{}, draw.Src)
	w.frame = frame
	w.d.cond.Broadcast()
}

// Minimize is shorthand for Resize(0, 0).
func (w *Window) Minimize() { w.Resize(0, 0) }

// Close destroys the window. Blocked acquires return driver.ErrSurfaceLost.
func (w *Window) Close() {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	w.closed = true
	delete(w.d.windows, w.handle)
	w.d.cond.Broadcast()
}

// Frame returns a copy of the window contents.
func (w *Window) Frame() *image.RGBA {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	c := image.NewRGBA(w.frame.Bounds())
	copy(c.Pix, w.frame.Pix)
	return c
}

// Presents returns the number of images composited into the window.
func (w *Window) Presents() int {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return w.presents
}
