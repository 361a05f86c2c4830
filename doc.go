// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rhi manages presentation and device resource lifetimes on top of
// an explicit GPU driver.
//
// # Overview
//
// rhi owns the objects a renderer needs around its draw calls:
//
//   - SwapChain binds a window to a ring of presentable images, paces
//     acquisition and presentation with semaphores, and keeps one
//     CommandList per buffered frame.
//   - ConstantBuffer is a host-visible uniform buffer whose buffer and
//     memory are created and destroyed together. Destroy drains the
//     graphics queue first so the GPU never reads freed memory.
//   - Device wraps a driver.Device and is shared by everything created
//     from it. It must outlive all of them.
//
// # Quick Start
//
//	drv := soft.New()
//	win := drv.NewWindow(640, 480)
//
//	dev, err := rhi.NewDevice(drv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sc, err := rhi.NewSwapChain(win, dev, 640, 480, rhi.WithBufferCount(2))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sc.Destroy()
//
//	for frame := 0; frame < 100; frame++ {
//	    if !sc.AcquireNextImage() {
//	        sc.Resize(newWidth, newHeight)
//	        continue
//	    }
//	    cl := sc.CommandList()
//	    cl.Begin()
//	    sc.SetLayout(driver.LayoutPresentSrc, cl)
//	    cl.End()
//	    cl.Submit()
//	    sc.Present()
//	}
//
// # Threading
//
// A device is driven from a single goroutine. rhi does no internal locking.
// AcquireNextImage blocks until the driver hands out an image; use
// AcquireWithDeadline to bound the wait. ConstantBuffer.Destroy and
// Device.WaitIdle block until the queue drains.
//
// # Errors
//
// Constructors return errors classified by ErrConfiguration and
// ErrDriverCall. Per-frame operations return booleans and log the cause;
// a false result from AcquireNextImage or Present means the caller should
// call Resize before the next frame.
package rhi
