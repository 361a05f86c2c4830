// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// create builds the surface, swap chain, views and acquisition semaphores
// for the requested size. On error the partially created objects are left
// for destroyChain.
func (sc *SwapChain) create(width, height uint32) error {
	drv := sc.dev.Driver()

	surface, err := drv.CreateSurface(sc.window)
	if err != nil {
		return driverCall("CreateSurface", err)
	}
	sc.surface = surface

	pq := sc.dev.PresentQueue()
	supported, err := drv.SurfaceSupport(pq.Family, surface)
	if err != nil {
		return driverCall("SurfaceSupport", err)
	}
	if !supported {
		return fmt.Errorf("%w: queue family %d cannot present to the surface", ErrConfiguration, pq.Family)
	}

	caps, err := drv.SurfaceCapabilities(surface)
	if err != nil {
		return driverCall("SurfaceCapabilities", err)
	}
	extentW, extentH := clampExtent(width, height, caps)

	formats, err := drv.SurfaceFormats(surface)
	if err != nil {
		return driverCall("SurfaceFormats", err)
	}
	format, colorSpace, ok := detectFormatAndColorSpace(sc.opts.format, formats)
	if !ok {
		return fmt.Errorf("%w: surface reports no formats", ErrConfiguration)
	}
	if format != sc.opts.format {
		sc.logger.Warn("rhi: requested format not supported by surface",
			"requested", sc.opts.format,
			"using", format)
	}

	modes, err := drv.SurfacePresentModes(surface)
	if err != nil {
		return driverCall("SurfacePresentModes", err)
	}
	mode := choosePresentMode(sc.opts.flags, modes)

	sharing, families := sharingModeFor(sc.dev.GraphicsQueue(), sc.dev.ComputeQueue())
	swapchain, err := drv.CreateSwapchain(&driver.SwapchainDescriptor{
		Label:              sc.opts.label,
		Surface:            surface,
		MinImageCount:      imageCountFor(sc.opts.bufferCount, caps),
		Format:             format,
		ColorSpace:         colorSpace,
		Extent:             driver.Extent2D{Width: extentW, Height: extentH},
		Usage:              gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
		SharingMode:        sharing,
		QueueFamilyIndices: families,
		PreTransform:       caps.CurrentTransform,
		PresentMode:        mode,
		Clipped:            true,
	})
	if err != nil {
		return driverCall("CreateSwapchain", err)
	}
	sc.swapchain = swapchain

	images, err := drv.SwapchainImages(swapchain)
	if err != nil {
		return driverCall("SwapchainImages", err)
	}
	if uint32(len(images)) != sc.opts.bufferCount {
		sc.logger.Warn("rhi: driver returned a different image count",
			"requested", sc.opts.bufferCount,
			"images", len(images))
	}
	sc.images = images
	sc.bufferCount = uint32(len(images))

	sc.views = make([]driver.ImageView, 0, len(images))
	for i, img := range images {
		view, err := drv.CreateImageView(&driver.ImageViewDescriptor{
			Label:  fmt.Sprintf("%s_image_%d", sc.opts.label, i),
			Image:  img,
			Format: format,
		})
		if err != nil {
			return driverCall("CreateImageView", err)
		}
		sc.views = append(sc.views, view)
	}

	sc.acquireSemaphores = make([]driver.Semaphore, 0, len(images))
	for range images {
		sem, err := drv.CreateSemaphore()
		if err != nil {
			return driverCall("CreateSemaphore", err)
		}
		sc.acquireSemaphores = append(sc.acquireSemaphores, sem)
	}

	sc.width, sc.height = extentW, extentH
	sc.reqWidth, sc.reqHeight = width, height
	sc.format = format
	sc.colorSpace = colorSpace
	sc.presentMode = mode
	// The images are new, so their layout is unknown again.
	sc.layout = driver.LayoutUndefined
	sc.imageIndex = 0
	sc.everAcquired = false
	sc.imageAcquired = false
	sc.frameWait = 0
	sc.present = true
	sc.initialized = true
	return nil
}

// ensureCommandLists creates the command pool on first use and one list
// per buffer slot. Lists are never removed, so a later chain with fewer
// images keeps the extra ones.
func (sc *SwapChain) ensureCommandLists() error {
	drv := sc.dev.Driver()
	if sc.cmdPool == 0 {
		pool, err := drv.CreateCommandPool(sc.dev.GraphicsQueue().Family)
		if err != nil {
			return driverCall("CreateCommandPool", err)
		}
		sc.cmdPool = pool
	}
	for slot := uint32(len(sc.cmdLists)); slot < sc.bufferCount; slot++ {
		l, err := newCommandList(slot, sc, sc.dev)
		if err != nil {
			return err
		}
		sc.cmdLists = append(sc.cmdLists, l)
	}
	return nil
}

// destroyChain waits for the device, then destroys the acquisition
// semaphores, the views, the swap chain and the surface, in that order.
// The images go away with the swap chain.
func (sc *SwapChain) destroyChain() {
	drv := sc.dev.Driver()
	if sc.swapchain != 0 || sc.surface != 0 {
		checkResult(sc.logger, "DeviceWaitIdle", driverCall("DeviceWaitIdle", drv.DeviceWaitIdle()))
	}
	for _, sem := range sc.acquireSemaphores {
		drv.DestroySemaphore(sem)
	}
	sc.acquireSemaphores = nil
	for _, v := range sc.views {
		drv.DestroyImageView(v)
	}
	sc.views = nil
	drv.DestroySwapchain(sc.swapchain)
	sc.swapchain = 0
	drv.DestroySurface(sc.surface)
	sc.surface = 0
	sc.images = nil
	if sc.imageAcquired {
		// A frame abandoned before Present leaves its last semaphore
		// signaled; lists must not signal it again.
		for _, l := range sc.cmdLists {
			if l.done == sc.frameWait {
				l.renewSemaphore()
			}
		}
	}
	sc.imageAcquired = false
	sc.frameWait = 0
	sc.initialized = false
}
