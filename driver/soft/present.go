// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"image"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/rhi/driver"
)

// imageState tracks ownership of a swapchain image.
type imageState int

const (
	imageAvailable  imageState = iota // owned by the presentation engine, ready
	imageAcquired                     // owned by the application
	imagePresenting                   // queued for presentation
)

type surface struct {
	window *Window
	active driver.Swapchain
}

type swapchain struct {
	surface driver.Surface
	window  *Window
	images  []driver.Image
	state   []imageState
	extent  driver.Extent2D
	format  gputypes.TextureFormat
	mode    driver.PresentMode
	gen     uint64
	last    int
	retired bool
}

type softImage struct {
	swapchain driver.Swapchain
	format    gputypes.TextureFormat
	layout    driver.ImageLayout
	pix       *image.RGBA
}

type imageView struct {
	image driver.Image
}

// IsWindow reports whether win is a live window of this driver.
func (d *Driver) IsWindow(win driver.Window) bool {
	if win == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[win.NativeHandle()]
	return ok && !w.closed
}

// CreateSurface creates a presentation surface for win.
func (d *Driver) CreateSurface(win driver.Window) (driver.Surface, error) {
	if win == nil {
		return 0, fmt.Errorf("soft: create surface: nil window: %w", driver.ErrInvalidHandle)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	w, ok := d.windows[win.NativeHandle()]
	if !ok || w.closed {
		return 0, fmt.Errorf("soft: create surface: window %#x: %w", win.NativeHandle(), driver.ErrSurfaceLost)
	}
	h := driver.Surface(d.handle())
	d.surfaces[h] = &surface{window: w}
	return h, nil
}

// DestroySurface destroys s. Its swapchain must be destroyed first.
func (d *Driver) DestroySurface(s driver.Surface) {
	if s == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sf, ok := d.surfaces[s]
	if !ok {
		d.violate("destroy surface %d: invalid handle", s)
		return
	}
	if sf.active != 0 {
		d.violate("destroy surface %d: swapchain %d still alive", s, sf.active)
	}
	delete(d.surfaces, s)
}

// lookupSurface returns the surface and fails if its window is gone.
// Must hold d.mu.
func (d *Driver) lookupSurface(s driver.Surface) (*surface, error) {
	sf, ok := d.surfaces[s]
	if !ok {
		return nil, fmt.Errorf("soft: surface %d: %w", s, driver.ErrInvalidHandle)
	}
	if sf.window.closed {
		return nil, fmt.Errorf("soft: surface %d: %w", s, driver.ErrSurfaceLost)
	}
	return sf, nil
}

// SurfaceSupport reports whether family can present to s.
func (d *Driver) SurfaceSupport(family uint32, s driver.Surface) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.lookupSurface(s); err != nil {
		return false, err
	}
	return slices.Contains(d.opts.presentFamilies, family), nil
}

// SurfaceCapabilities returns the capabilities of s. The current extent
// follows the window size and is zero while the window is minimized.
func (d *Driver) SurfaceCapabilities(s driver.Surface) (driver.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sf, err := d.lookupSurface(s)
	if err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	return driver.SurfaceCapabilities{
		MinImageCount:    d.opts.minImageCount,
		MaxImageCount:    d.opts.maxImageCount,
		CurrentExtent:    driver.Extent2D{Width: uint32(max(sf.window.width, 0)), Height: uint32(max(sf.window.height, 0))},
		MinImageExtent:   d.opts.minExtent,
		MaxImageExtent:   d.opts.maxExtent,
		CurrentTransform: driver.TransformIdentity,
		SupportedUsage:   gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	}, nil
}

// SurfaceFormats returns the formats supported by s.
func (d *Driver) SurfaceFormats(s driver.Surface) ([]driver.SurfaceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.lookupSurface(s); err != nil {
		return nil, err
	}
	return slices.Clone(d.opts.formats), nil
}

// SurfacePresentModes returns the present modes supported by s.
func (d *Driver) SurfacePresentModes(s driver.Surface) ([]driver.PresentMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.lookupSurface(s); err != nil {
		return nil, err
	}
	return slices.Clone(d.opts.presentModes), nil
}

// formatSupported reports whether f is listed in the surface formats.
func (d *Driver) formatSupported(f gputypes.TextureFormat) bool {
	for _, sf := range d.opts.formats {
		if sf.Format == f || sf.Format == gputypes.TextureFormatUndefined {
			return true
		}
	}
	return false
}

// CreateSwapchain creates a swapchain. A non-null OldSwapchain is retired:
// it can no longer acquire but must still be destroyed by the caller.
func (d *Driver) CreateSwapchain(desc *driver.SwapchainDescriptor) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	sf, err := d.lookupSurface(desc.Surface)
	if err != nil {
		return 0, err
	}
	if sf.active != 0 && sf.active != desc.OldSwapchain {
		d.violate("create swapchain: surface %d already has swapchain %d", desc.Surface, sf.active)
		return 0, fmt.Errorf("soft: create swapchain: surface in use: %w", driver.ErrUnsupported)
	}
	e := desc.Extent
	if e.Width == 0 || e.Height == 0 ||
		e.Width < d.opts.minExtent.Width || e.Height < d.opts.minExtent.Height ||
		e.Width > d.opts.maxExtent.Width || e.Height > d.opts.maxExtent.Height {
		d.violate("create swapchain: extent %dx%d outside supported range", e.Width, e.Height)
		return 0, fmt.Errorf("soft: create swapchain: extent %dx%d: %w", e.Width, e.Height, driver.ErrUnsupported)
	}
	if !d.formatSupported(desc.Format) {
		d.violate("create swapchain: format %v not supported by surface", desc.Format)
		return 0, fmt.Errorf("soft: create swapchain: format %v: %w", desc.Format, driver.ErrUnsupported)
	}
	if !slices.Contains(d.opts.presentModes, desc.PresentMode) {
		d.violate("create swapchain: present mode %v not supported by surface", desc.PresentMode)
		return 0, fmt.Errorf("soft: create swapchain: present mode %v: %w", desc.PresentMode, driver.ErrUnsupported)
	}
	if desc.SharingMode == driver.SharingConcurrent {
		distinct := slices.Compact(slices.Sorted(slices.Values(desc.QueueFamilyIndices)))
		if len(distinct) < 2 {
			d.violate("create swapchain: concurrent sharing needs at least two distinct queue families")
		}
	}
	count := max(desc.MinImageCount, d.opts.minImageCount)
	if d.opts.maxImageCount > 0 && count > d.opts.maxImageCount {
		d.violate("create swapchain: %d images exceed the maximum of %d", desc.MinImageCount, d.opts.maxImageCount)
		count = d.opts.maxImageCount
	}

	if old, ok := d.swapchains[desc.OldSwapchain]; ok {
		old.retired = true
		d.cond.Broadcast()
	}

	h := driver.Swapchain(d.handle())
	sc := &swapchain{
		surface: desc.Surface,
		window:  sf.window,
		images:  make([]driver.Image, count),
		state:   make([]imageState, count),
		extent:  e,
		format:  desc.Format,
		mode:    desc.PresentMode,
		gen:     sf.window.gen,
		last:    -1,
	}
	for i := range sc.images {
		img := driver.Image(d.handle())
		d.images[img] = &softImage{
			swapchain: h,
			format:    desc.Format,
			pix:       image.NewRGBA(image.Rect(0, 0, int(e.Width), int(e.Height))),
		}
		sc.images[i] = img
	}
	d.swapchains[h] = sc
	sf.active = h
	slogger().Debug("soft: swapchain created",
		"label", desc.Label,
		"extent", fmt.Sprintf("%dx%d", e.Width, e.Height),
		"images", count,
		"mode", desc.PresentMode)
	return h, nil
}

// DestroySwapchain destroys sc and its images. Views of the images must
// be destroyed first.
func (d *Driver) DestroySwapchain(h driver.Swapchain) {
	if h == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		d.violate("destroy swapchain %d: invalid handle", h)
		return
	}
	for v, view := range d.views {
		if img, ok := d.images[view.image]; ok && img.swapchain == h {
			d.violate("destroy swapchain %d: image view %d still alive", h, v)
		}
	}
	for _, img := range sc.images {
		delete(d.images, img)
	}
	if sf, ok := d.surfaces[sc.surface]; ok && sf.active == h {
		sf.active = 0
	}
	delete(d.swapchains, h)
	d.cond.Broadcast()
}

// SwapchainImages returns the images of sc.
func (d *Driver) SwapchainImages(h driver.Swapchain) ([]driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return nil, fmt.Errorf("soft: swapchain images %d: %w", h, driver.ErrInvalidHandle)
	}
	return slices.Clone(sc.images), nil
}

// CreateImageView creates a view of a swapchain image.
func (d *Driver) CreateImageView(desc *driver.ImageViewDescriptor) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[desc.Image]
	if !ok {
		return 0, fmt.Errorf("soft: create image view %q: image %d: %w", desc.Label, desc.Image, driver.ErrInvalidHandle)
	}
	if desc.Format != img.format {
		d.violate("create image view %q: format %v does not match image format %v", desc.Label, desc.Format, img.format)
	}
	h := driver.ImageView(d.handle())
	d.views[h] = &imageView{image: desc.Image}
	return h, nil
}

// DestroyImageView destroys v.
func (d *Driver) DestroyImageView(v driver.ImageView) {
	if v == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.views[v]; !ok {
		d.violate("destroy image view %d: invalid handle", v)
		return
	}
	delete(d.views, v)
}

// AcquireNextImage blocks until an image of sc is available.
func (d *Driver) AcquireNextImage(h driver.Swapchain, timeout time.Duration, s driver.Semaphore, f driver.Fence) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, fmt.Errorf("soft: acquire: swapchain %d: %w", h, driver.ErrInvalidHandle)
	}
	if s == 0 && f == 0 {
		d.violate("acquire: swapchain %d: neither semaphore nor fence given", h)
	}
	if s != 0 {
		sem, ok := d.semaphores[s]
		if !ok {
			return 0, fmt.Errorf("soft: acquire: semaphore %d: %w", s, driver.ErrInvalidHandle)
		}
		if sem.signaled || sem.pending > 0 {
			d.violate("acquire: semaphore %d already has a pending signal", s)
		}
	}

	stale := func() bool {
		_, alive := d.swapchains[h]
		return !alive || sc.window.closed || sc.retired || sc.window.gen != sc.gen
	}
	available := func() []uint32 {
		var out []uint32
		for i, st := range sc.state {
			if st == imageAvailable {
				out = append(out, uint32(i))
			}
		}
		return out
	}
	if !d.waitUntil(timeout, func() bool { return stale() || len(available()) > 0 }) {
		if d.closed {
			return 0, driver.ErrDeviceLost
		}
		return 0, fmt.Errorf("soft: acquire: swapchain %d: %w", h, driver.ErrTimeout)
	}
	switch {
	case sc.window.closed:
		return 0, fmt.Errorf("soft: acquire: %w", driver.ErrSurfaceLost)
	case stale():
		return 0, fmt.Errorf("soft: acquire: swapchain %d: %w", h, driver.ErrOutOfDate)
	}

	idx := d.opts.acquireOrder(available(), sc.last)
	sc.state[idx] = imageAcquired
	sc.last = int(idx)
	if sem, ok := d.semaphores[s]; ok {
		sem.signaled = true
	}
	d.signalFence(f)
	d.cond.Broadcast()
	return idx, nil
}

// QueuePresent queues an acquired image for presentation on q.
func (d *Driver) QueuePresent(q driver.Queue, info *driver.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrDeviceLost
	}
	tl, err := d.lookupQueue(q)
	if err != nil {
		return err
	}
	if !slices.Contains(d.opts.presentFamilies, tl.family) {
		d.violate("present: queue family %d cannot present", tl.family)
		return fmt.Errorf("soft: present: family %d: %w", tl.family, driver.ErrUnsupported)
	}
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return fmt.Errorf("soft: present: swapchain %d: %w", info.Swapchain, driver.ErrInvalidHandle)
	}
	if int(info.ImageIndex) >= len(sc.images) || sc.state[info.ImageIndex] != imageAcquired {
		d.violate("present: image %d of swapchain %d was not acquired", info.ImageIndex, info.Swapchain)
		return fmt.Errorf("soft: present: image %d not acquired: %w", info.ImageIndex, driver.ErrInvalidHandle)
	}

	waits := d.enqueueWaits("present", info.WaitSemaphores)
	switch {
	case sc.window.closed:
		sc.state[info.ImageIndex] = imageAvailable
		d.releaseWaits(waits)
		return fmt.Errorf("soft: present: %w", driver.ErrSurfaceLost)
	case sc.retired || sc.window.width == 0 || sc.window.height == 0:
		sc.state[info.ImageIndex] = imageAvailable
		d.releaseWaits(waits)
		return fmt.Errorf("soft: present: swapchain %d: %w", info.Swapchain, driver.ErrOutOfDate)
	}

	sc.state[info.ImageIndex] = imagePresenting
	p := *info
	tl.ops = append(tl.ops, &queueOp{wait: waits, present: &p})
	d.cond.Broadcast()
	if sc.window.gen != sc.gen {
		return fmt.Errorf("soft: present: swapchain %d: %w", info.Swapchain, driver.ErrSuboptimal)
	}
	return nil
}

// releaseWaits consumes semaphores of a presentation that was not queued,
// as a real presentation engine does. Must hold d.mu.
func (d *Driver) releaseWaits(sems []driver.Semaphore) {
	for _, s := range sems {
		if sem, ok := d.semaphores[s]; ok {
			sem.waiters--
			sem.signaled = false
			if sem.pending > 0 {
				d.violate("present: semaphore %d consumed before its signal executed", s)
			}
		}
	}
}

// executePresent composites a presented image into its window and returns
// the image to the presentation engine. Must hold d.mu.
func (d *Driver) executePresent(info *driver.PresentInfo) {
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return
	}
	img, ok := d.images[sc.images[info.ImageIndex]]
	if !ok {
		return
	}
	w := sc.window
	if !w.closed && w.width > 0 && w.height > 0 {
		if w.frame.Bounds() == img.pix.Bounds() {
			draw.Copy(w.frame, image.Point{}, img.pix, img.pix.Bounds(), draw.Src, nil)
		} else {
			draw.ApproxBiLinear.Scale(w.frame, w.frame.Bounds(), img.pix, img.pix.Bounds(), draw.Src, nil)
		}
		w.presents++
	}
	if sc.mode == driver.PresentModeFifo && d.opts.vblank > 0 {
		d.mu.Unlock()
		time.Sleep(d.opts.vblank)
		d.mu.Lock()
		if _, ok := d.swapchains[info.Swapchain]; !ok {
			return
		}
	}
	sc.state[info.ImageIndex] = imageAvailable
}

// ImageLayout returns the layout img is in after all executed work.
func (d *Driver) ImageLayout(img driver.Image) (driver.ImageLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.images[img]
	if !ok {
		return driver.LayoutUndefined, fmt.Errorf("soft: image %d: %w", img, driver.ErrInvalidHandle)
	}
	return i.layout, nil
}

// ImageContents returns a copy of the pixels of img.
func (d *Driver) ImageContents(img driver.Image) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.images[img]
	if !ok {
		return nil, fmt.Errorf("soft: image %d: %w", img, driver.ErrInvalidHandle)
	}
	c := image.NewRGBA(i.pix.Bounds())
	copy(c.Pix, i.pix.Pix)
	return c, nil
}
