// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// SwapChain binds a window to a ring of presentable images.
//
// The swap chain owns its surface, image views, acquisition semaphores,
// command pool and one CommandList per buffered frame. The images belong
// to the presentation engine and are never destroyed by the swap chain.
//
// A frame is one AcquireNextImage, any number of CommandList submissions
// and one Present. A SwapChain is not safe for concurrent use.
type SwapChain struct {
	dev    *Device
	window driver.Window
	logger *slog.Logger
	opts   swapChainOptions

	surface           driver.Surface
	swapchain         driver.Swapchain
	images            []driver.Image // borrowed from the presentation engine
	views             []driver.ImageView
	acquireSemaphores []driver.Semaphore

	// The pool and lists survive resizes.
	cmdPool  driver.CommandPool
	cmdLists []*CommandList

	width, height       uint32 // extent of the images
	reqWidth, reqHeight uint32 // size requested by the caller
	format              gputypes.TextureFormat
	colorSpace          driver.ColorSpace
	presentMode         driver.PresentMode
	bufferCount         uint32

	imageIndex    uint32
	acquireSlot   uint32
	everAcquired  bool
	imageAcquired bool

	// frameWait is the semaphore the next queue operation of the frame
	// waits on: the acquire semaphore, then the completion semaphore of
	// the last submitted CommandList.
	frameWait driver.Semaphore

	layout           driver.ImageLayout
	present          bool
	initialized      bool
	destroyed        bool
	cyclesSinceReset uint32
	slotMismatches   int
}

// NewSwapChain creates a swap chain presenting to window.
//
// It fails with ErrConfiguration if dev is nil or not ready, if the
// resolution is rejected by the device, if window is not a live window or
// if the present queue cannot present to the window surface.
func NewSwapChain(window driver.Window, dev *Device, width, height uint32, opts ...SwapChainOption) (*SwapChain, error) {
	o := defaultSwapChainOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = dev.Logger()
	}

	var err error
	switch {
	case !dev.IsReady():
		err = fmt.Errorf("%w: device is not ready", ErrConfiguration)
	case !dev.ValidateResolution(width, height):
		err = fmt.Errorf("%w: resolution %dx%d is not supported", ErrConfiguration, width, height)
	case window == nil || !dev.Driver().IsWindow(window):
		err = fmt.Errorf("%w: invalid window", ErrConfiguration)
	}
	if err != nil {
		logger.Error("rhi: failed to create swap chain", "err", err)
		return nil, err
	}

	sc := &SwapChain{
		dev:         dev,
		window:      window,
		logger:      logger,
		opts:        o,
		format:      o.format,
		bufferCount: o.bufferCount,
	}
	if err := sc.create(width, height); err != nil {
		sc.destroyChain()
		logger.Error("rhi: failed to create swap chain", "err", err)
		return nil, err
	}
	if err := sc.ensureCommandLists(); err != nil {
		sc.Destroy()
		logger.Error("rhi: failed to create swap chain", "err", err)
		return nil, err
	}
	logger.Info("rhi: swap chain created",
		"label", o.label,
		"width", sc.width,
		"height", sc.height,
		"format", sc.format,
		"color_space", sc.colorSpace,
		"present_mode", sc.presentMode,
		"buffers", sc.bufferCount)
	return sc, nil
}

// Resize recreates the swap chain for a new window size.
//
// A size rejected by the device (such as the zero size of a minimized
// window) marks the swap chain not presentable and succeeds without
// touching the GPU. An unchanged size is a no-op. Otherwise the surface,
// swap chain, views and semaphores are recreated; the command pool and
// lists are kept. Resize reports whether recreation succeeded.
func (sc *SwapChain) Resize(width, height uint32) bool {
	if sc.destroyed || !sc.dev.IsReady() {
		sc.logger.Error("rhi: resize", "err", ErrResourceState)
		return false
	}
	if !sc.dev.ValidateResolution(width, height) {
		if sc.present {
			sc.logger.Debug("rhi: swap chain not presentable", "width", width, "height", height)
		}
		sc.present = false
		return true
	}
	if sc.initialized && sc.present && width == sc.reqWidth && height == sc.reqHeight {
		return true
	}

	sc.destroyChain()
	if err := sc.create(width, height); err != nil {
		sc.destroyChain()
		sc.logger.Error("rhi: failed to resize swap chain", "err", err)
		return false
	}
	if err := sc.ensureCommandLists(); err != nil {
		sc.destroyChain()
		sc.logger.Error("rhi: failed to resize swap chain", "err", err)
		return false
	}
	sc.logger.Info("rhi: swap chain resized", "width", sc.width, "height", sc.height)
	return true
}

// AcquireNextImage acquires the next presentable image.
//
// Every bufferCount acquisitions the command pool is reset, which
// invalidates all command lists. The acquisition semaphore slot is 0 for
// the first acquisition and (ImageIndex()+1) % BufferCount() afterwards.
// The call waits without bound for an image; see AcquireWithDeadline.
//
// It returns true without doing anything while the swap chain is not
// presentable, and false if the surface changed and Resize is needed. It
// fails while the previously acquired image has not been presented.
func (sc *SwapChain) AcquireNextImage() bool {
	if sc.destroyed {
		sc.logger.Error("rhi: acquire: swap chain destroyed", "err", ErrResourceState)
		return false
	}
	if !sc.present {
		return true
	}
	if !sc.initialized {
		sc.logger.Error("rhi: acquire", "err", ErrResourceState)
		return false
	}
	if sc.imageAcquired {
		sc.logger.Error("rhi: acquire: image has not been presented",
			"image", sc.imageIndex,
			"err", ErrResourceState)
		return false
	}
	if sc.cyclesSinceReset >= sc.bufferCount {
		if !sc.resetCommandPool() {
			return false
		}
		sc.cyclesSinceReset = 0
	}

	slot := sc.nextSlot()
	index, err := sc.dev.Driver().AcquireNextImage(sc.swapchain, driver.Infinite, sc.acquireSemaphores[slot], 0)
	if !checkResult(sc.logger, "AcquireNextImage", err) {
		sc.imageAcquired = false
		sc.frameWait = 0
		return false
	}
	if index != slot {
		sc.slotMismatches++
		sc.logger.Warn("rhi: acquired image does not match semaphore slot",
			"slot", slot,
			"image", index)
	}
	sc.cyclesSinceReset++
	sc.everAcquired = true
	sc.imageAcquired = true
	sc.imageIndex = index
	sc.acquireSlot = slot
	sc.frameWait = sc.acquireSemaphores[slot]
	sc.logger.Debug("rhi: image acquired", "image", index, "slot", slot)
	return true
}

// nextSlot returns the semaphore slot of the next acquisition.
func (sc *SwapChain) nextSlot() uint32 {
	if !sc.everAcquired {
		return 0
	}
	return (sc.imageIndex + 1) % sc.bufferCount
}

// resetCommandPool drains the queues the lists were submitted to and
// resets the pool. Every command list is invalidated.
func (sc *SwapChain) resetCommandPool() bool {
	if !sc.drainQueues() {
		return false
	}
	err := sc.dev.Driver().ResetCommandPool(sc.cmdPool)
	if !checkResult(sc.logger, "ResetCommandPool", err) {
		return false
	}
	for _, l := range sc.cmdLists {
		l.invalidate()
	}
	sc.logger.Debug("rhi: command pool reset", "cycles", sc.cyclesSinceReset)
	return true
}

// drainQueues waits for the graphics and present queues.
func (sc *SwapChain) drainQueues() bool {
	gq, pq := sc.dev.GraphicsQueue(), sc.dev.PresentQueue()
	if !checkResult(sc.logger, "QueueWaitIdle", sc.dev.WaitIdle(gq)) {
		return false
	}
	if pq != gq {
		return checkResult(sc.logger, "QueueWaitIdle", sc.dev.WaitIdle(pq))
	}
	return true
}

// Present queues the acquired image for presentation.
//
// It returns true without doing anything while the swap chain is not
// presentable. It fails if no image was acquired since the last Present,
// and when the surface changed, in which case the caller should Resize.
func (sc *SwapChain) Present() bool {
	if sc.destroyed {
		sc.logger.Error("rhi: present: swap chain destroyed", "err", ErrResourceState)
		return false
	}
	if !sc.present {
		return true
	}
	if !sc.imageAcquired {
		sc.logger.Error("rhi: present: image has not been acquired", "err", ErrResourceState)
		return false
	}
	var wait []driver.Semaphore
	if sc.frameWait != 0 {
		wait = []driver.Semaphore{sc.frameWait}
	}
	err := sc.dev.QueuePresent(sc.swapchain, sc.imageIndex, wait)
	sc.imageAcquired = false
	sc.frameWait = 0
	return checkResult(sc.logger, "QueuePresent", err)
}

// frameSemaphores returns the semaphores a submission of the current frame
// waits on and signals, given the completion semaphore of the submitting
// list. Outside a frame there is nothing to wait on or signal.
func (sc *SwapChain) frameSemaphores(done driver.Semaphore) (wait, signal []driver.Semaphore) {
	if !sc.imageAcquired {
		return nil, nil
	}
	if sc.frameWait != 0 {
		wait = []driver.Semaphore{sc.frameWait}
	}
	return wait, []driver.Semaphore{done}
}

// SetLayout records a transition of every image to layout into cl and
// reports whether the cached layout now equals layout.
//
// Nothing is recorded when layout equals the cached layout. With a nil cl
// only the cached layout is updated. If cl is not recording, nothing is
// recorded and the cache is left unchanged.
func (sc *SwapChain) SetLayout(layout driver.ImageLayout, cl *CommandList) bool {
	if sc.layout == layout {
		return true
	}
	if cl != nil {
		for _, img := range sc.images {
			if !cl.RecordLayoutTransition(img, sc.layout, layout) {
				return false
			}
		}
		sc.logger.Debug("rhi: swap chain layout transition",
			"from", sc.layout,
			"to", layout,
			"images", len(sc.images))
	}
	sc.layout = layout
	return true
}

// Destroy releases the semaphores, views, swap chain and surface, then the
// command lists and the command pool. It is safe to call more than once.
func (sc *SwapChain) Destroy() {
	if sc == nil || sc.destroyed {
		return
	}
	sc.destroyChain()
	drv := sc.dev.Driver()
	for _, l := range sc.cmdLists {
		l.release()
	}
	sc.cmdLists = nil
	drv.DestroyCommandPool(sc.cmdPool)
	sc.cmdPool = 0
	sc.destroyed = true
	sc.present = false
}

// Width returns the width of the images.
func (sc *SwapChain) Width() uint32 { return sc.width }

// Height returns the height of the images.
func (sc *SwapChain) Height() uint32 { return sc.height }

// Format returns the image format in use.
func (sc *SwapChain) Format() gputypes.TextureFormat { return sc.format }

// ColorSpace returns the color space in use.
func (sc *SwapChain) ColorSpace() driver.ColorSpace { return sc.colorSpace }

// PresentMode returns the present mode in use.
func (sc *SwapChain) PresentMode() driver.PresentMode { return sc.presentMode }

// BufferCount returns the number of images and frame slots.
func (sc *SwapChain) BufferCount() uint32 { return sc.bufferCount }

// ImageIndex returns the index of the last acquired image.
func (sc *SwapChain) ImageIndex() uint32 { return sc.imageIndex }

// Image returns image i, or the null handle if i is out of range.
func (sc *SwapChain) Image(i uint32) driver.Image {
	if int(i) >= len(sc.images) {
		return 0
	}
	return sc.images[i]
}

// ImageView returns the view of image i, or the null handle.
func (sc *SwapChain) ImageView(i uint32) driver.ImageView {
	if int(i) >= len(sc.views) {
		return 0
	}
	return sc.views[i]
}

// Images returns the presentable images.
func (sc *SwapChain) Images() []driver.Image { return slices.Clone(sc.images) }

// ImageViews returns the image views, indexed like Images.
func (sc *SwapChain) ImageViews() []driver.ImageView { return slices.Clone(sc.views) }

// AcquireSemaphores returns the acquisition semaphores, indexed by slot.
func (sc *SwapChain) AcquireSemaphores() []driver.Semaphore {
	return slices.Clone(sc.acquireSemaphores)
}

// CurrentAcquireSemaphore returns the semaphore of the last acquisition,
// or the null handle if no image is acquired.
func (sc *SwapChain) CurrentAcquireSemaphore() driver.Semaphore {
	if !sc.imageAcquired {
		return 0
	}
	return sc.acquireSemaphores[sc.acquireSlot]
}

// CommandList returns the list bound to the acquired image.
func (sc *SwapChain) CommandList() *CommandList {
	if int(sc.imageIndex) >= len(sc.cmdLists) {
		return nil
	}
	return sc.cmdLists[sc.imageIndex]
}

// CommandLists returns every command list, indexed by buffer slot.
func (sc *SwapChain) CommandLists() []*CommandList { return slices.Clone(sc.cmdLists) }

// Layout returns the cached image layout.
func (sc *SwapChain) Layout() driver.ImageLayout { return sc.layout }

// IsPresentable reports whether the swap chain can acquire and present.
// It is false while the window is minimized.
func (sc *SwapChain) IsPresentable() bool { return sc.present }

// IsInitialized reports whether the last creation or resize succeeded.
func (sc *SwapChain) IsInitialized() bool { return sc.initialized }

// SlotMismatches returns how many acquisitions returned an image other
// than the one matching their semaphore slot.
func (sc *SwapChain) SlotMismatches() int { return sc.slotMismatches }
