// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"
	"image"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"

	"github.com/gogpu/rhi/driver"
)

// copyPitchAlignment is the row alignment of texture to buffer copies.
const copyPitchAlignment = 256

type surface struct {
	window *Window
	active driver.Swapchain
}

type imageState int

const (
	imageAvailable imageState = iota
	imageAcquired
)

type swapchain struct {
	surface driver.Surface
	window  *Window
	images  []driver.Image
	state   []imageState
	extent  driver.Extent2D
	format  gputypes.TextureFormat
	gen     uint64
	last    int
	retired bool

	// staging receives presented images for readback.
	staging     hal.Buffer
	bytesPerRow uint32
}

// halImage is a swapchain texture and the view used to render into it.
type halImage struct {
	swapchain driver.Swapchain
	tex       hal.Texture
	target    hal.TextureView
	layout    driver.ImageLayout
}

type imageView struct {
	image driver.Image
	view  hal.TextureView
}

// IsWindow reports whether win is a live window of this driver.
func (d *Driver) IsWindow(win driver.Window) bool {
	w, ok := win.(*Window)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	live, ok := d.windows[w.handle]
	return ok && live == w && !w.closed
}

// CreateSurface binds a surface to win.
func (d *Driver) CreateSurface(win driver.Window) (driver.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	w, ok := win.(*Window)
	if !ok || d.windows[w.handle] != w {
		return 0, fmt.Errorf("halgpu: create surface: %w", driver.ErrSurfaceLost)
	}
	h := driver.Surface(d.handle())
	d.surfaces[h] = &surface{window: w}
	return h, nil
}

// DestroySurface destroys s.
func (d *Driver) DestroySurface(s driver.Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.surfaces, s)
}

// SurfaceSupport reports whether family can present. Only family 0 exists.
func (d *Driver) SurfaceSupport(family uint32, s driver.Surface) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.surfaces[s]; !ok {
		return false, fmt.Errorf("halgpu: surface %d: %w", s, driver.ErrInvalidHandle)
	}
	return family == 0, nil
}

// SurfaceCapabilities reports the window size as the current extent.
func (d *Driver) SurfaceCapabilities(s driver.Surface) (driver.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sf, ok := d.surfaces[s]
	if !ok {
		return driver.SurfaceCapabilities{}, fmt.Errorf("halgpu: surface %d: %w", s, driver.ErrInvalidHandle)
	}
	if sf.window.closed {
		return driver.SurfaceCapabilities{}, fmt.Errorf("halgpu: surface capabilities: %w", driver.ErrSurfaceLost)
	}
	maxDim := d.opts.limits.MaxTextureDimension2D
	return driver.SurfaceCapabilities{
		MinImageCount:    d.opts.minImages,
		MaxImageCount:    d.opts.maxImages,
		CurrentExtent:    driver.Extent2D{Width: uint32(sf.window.width), Height: uint32(sf.window.height)},
		MinImageExtent:   driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:   driver.Extent2D{Width: maxDim, Height: maxDim},
		CurrentTransform: driver.TransformIdentity,
		SupportedUsage:   gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	}, nil
}

// SurfaceFormats returns the configured formats in sRGB non-linear color
// space.
func (d *Driver) SurfaceFormats(s driver.Surface) ([]driver.SurfaceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.surfaces[s]; !ok {
		return nil, fmt.Errorf("halgpu: surface %d: %w", s, driver.ErrInvalidHandle)
	}
	out := make([]driver.SurfaceFormat, 0, len(d.opts.formats))
	for _, f := range d.opts.formats {
		out = append(out, driver.SurfaceFormat{Format: f, ColorSpace: driver.ColorSpaceSRGBNonlinear})
	}
	return out, nil
}

// SurfacePresentModes returns FIFO and immediate. Headless presentation
// completes on the host, so both behave the same.
func (d *Driver) SurfacePresentModes(s driver.Surface) ([]driver.PresentMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.surfaces[s]; !ok {
		return nil, fmt.Errorf("halgpu: surface %d: %w", s, driver.ErrInvalidHandle)
	}
	return []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeImmediate}, nil
}

// CreateSwapchain creates MinImageCount textures sized to the extent.
// A previous swapchain of the surface is retired.
func (d *Driver) CreateSwapchain(desc *driver.SwapchainDescriptor) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	sf, ok := d.surfaces[desc.Surface]
	if !ok {
		return 0, fmt.Errorf("halgpu: create swapchain: surface %d: %w", desc.Surface, driver.ErrInvalidHandle)
	}
	if sf.window.closed {
		return 0, fmt.Errorf("halgpu: create swapchain: %w", driver.ErrSurfaceLost)
	}
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return 0, fmt.Errorf("halgpu: create swapchain: zero extent: %w", driver.ErrUnsupported)
	}
	if !slices.Contains(d.opts.formats, desc.Format) {
		return 0, fmt.Errorf("halgpu: create swapchain: format %v: %w", desc.Format, driver.ErrUnsupported)
	}
	if desc.MinImageCount < d.opts.minImages || desc.MinImageCount > d.opts.maxImages {
		return 0, fmt.Errorf("halgpu: create swapchain: %d images: %w", desc.MinImageCount, driver.ErrUnsupported)
	}
	if old, ok := d.swapchains[sf.active]; ok {
		old.retired = true
	}

	h := driver.Swapchain(d.handle())
	sc := &swapchain{
		surface: desc.Surface,
		window:  sf.window,
		extent:  desc.Extent,
		format:  desc.Format,
		gen:     sf.window.gen,
		last:    -1,
	}
	d.swapchains[h] = sc
	for i := range desc.MinImageCount {
		tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("%s_texture_%d", desc.Label, i),
			Size:          hal.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        desc.Format,
			Usage:         desc.Usage | gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			d.destroySwapchain(h)
			return 0, fmt.Errorf("halgpu: create swapchain texture: %w: %w", driver.ErrNoDeviceMemory, err)
		}
		target, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: fmt.Sprintf("%s_target_%d", desc.Label, i),
		})
		if err != nil {
			d.device.DestroyTexture(tex)
			d.destroySwapchain(h)
			return 0, fmt.Errorf("halgpu: create swapchain view: %w", err)
		}
		img := driver.Image(d.handle())
		d.images[img] = &halImage{swapchain: h, tex: tex, target: target}
		sc.images = append(sc.images, img)
		sc.state = append(sc.state, imageAvailable)
	}

	sc.bytesPerRow = (desc.Extent.Width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label + "_readback",
		Size:  uint64(sc.bytesPerRow) * uint64(desc.Extent.Height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		d.destroySwapchain(h)
		return 0, fmt.Errorf("halgpu: create readback buffer: %w", err)
	}
	sc.staging = staging
	sf.active = h
	slogger().Debug("halgpu: swapchain created",
		"swapchain", h,
		"images", len(sc.images),
		"width", desc.Extent.Width,
		"height", desc.Extent.Height)
	return h, nil
}

// DestroySwapchain destroys sc and its textures.
func (d *Driver) DestroySwapchain(h driver.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroySwapchain(h)
}

// destroySwapchain must hold d.mu.
func (d *Driver) destroySwapchain(h driver.Swapchain) {
	sc, ok := d.swapchains[h]
	if !ok {
		return
	}
	for _, img := range sc.images {
		hi := d.images[img]
		d.device.DestroyTextureView(hi.target)
		d.device.DestroyTexture(hi.tex)
		delete(d.images, img)
	}
	if sc.staging != nil {
		d.device.DestroyBuffer(sc.staging)
	}
	if sf, ok := d.surfaces[sc.surface]; ok && sf.active == h {
		sf.active = 0
	}
	delete(d.swapchains, h)
}

// SwapchainImages returns the images of sc.
func (d *Driver) SwapchainImages(h driver.Swapchain) ([]driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return nil, fmt.Errorf("halgpu: swapchain %d: %w", h, driver.ErrInvalidHandle)
	}
	return slices.Clone(sc.images), nil
}

// CreateImageView creates a hal view of a swapchain image.
func (d *Driver) CreateImageView(desc *driver.ImageViewDescriptor) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[desc.Image]
	if !ok {
		return 0, fmt.Errorf("halgpu: create image view: image %d: %w", desc.Image, driver.ErrInvalidHandle)
	}
	v, err := d.device.CreateTextureView(img.tex, &hal.TextureViewDescriptor{Label: desc.Label})
	if err != nil {
		return 0, fmt.Errorf("halgpu: create image view: %w", err)
	}
	h := driver.ImageView(d.handle())
	d.views[h] = &imageView{image: desc.Image, view: v}
	return h, nil
}

// DestroyImageView destroys v.
func (d *Driver) DestroyImageView(v driver.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyImageView(v)
}

// destroyImageView must hold d.mu.
func (d *Driver) destroyImageView(h driver.ImageView) {
	v, ok := d.views[h]
	if !ok {
		return
	}
	d.device.DestroyTextureView(v.view)
	delete(d.views, h)
}

// stale reports why sc can no longer present, or nil. Must hold d.mu.
func (sc *swapchain) stale() error {
	switch {
	case sc.window.closed:
		return driver.ErrSurfaceLost
	case sc.retired || sc.window.gen != sc.gen || sc.window.width == 0 || sc.window.height == 0:
		return driver.ErrOutOfDate
	}
	return nil
}

// AcquireNextImage returns the next available image in round-robin order
// and signals sem and fence immediately.
func (d *Driver) AcquireNextImage(h driver.Swapchain, timeout time.Duration, sem driver.Semaphore, f driver.Fence) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var deadline time.Time
	if timeout != driver.Infinite {
		deadline = time.Now().Add(timeout)
		t := time.AfterFunc(timeout, func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		defer t.Stop()
	}
	for {
		if d.closed {
			return 0, driver.ErrDeviceLost
		}
		sc, ok := d.swapchains[h]
		if !ok {
			return 0, fmt.Errorf("halgpu: acquire: swapchain %d: %w", h, driver.ErrInvalidHandle)
		}
		if err := sc.stale(); err != nil {
			return 0, fmt.Errorf("halgpu: acquire: swapchain %d: %w", h, err)
		}
		n := len(sc.images)
		for k := 1; k <= n; k++ {
			i := (sc.last + k) % n
			if sc.state[i] != imageAvailable {
				continue
			}
			if sem != 0 {
				if err := d.signal([]driver.Semaphore{sem}); err != nil {
					return 0, err
				}
			}
			if err := d.attach(f, d.completed); err != nil {
				return 0, err
			}
			sc.state[i] = imageAcquired
			sc.last = i
			return uint32(i), nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, driver.ErrTimeout
		}
		d.cond.Wait()
	}
}

// QueuePresent reads image back into the window after the wait
// semaphores. Presentation completes before QueuePresent returns.
func (d *Driver) QueuePresent(q driver.Queue, info *driver.PresentInfo) error {
	if err := checkQueue(q); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrDeviceLost
	}
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return fmt.Errorf("halgpu: present: swapchain %d: %w", info.Swapchain, driver.ErrInvalidHandle)
	}
	if int(info.ImageIndex) >= len(sc.images) || sc.state[info.ImageIndex] != imageAcquired {
		return fmt.Errorf("halgpu: present: image %d not acquired: %w", info.ImageIndex, driver.ErrInvalidHandle)
	}
	if err := d.wait("present", info.WaitSemaphores); err != nil {
		return err
	}
	defer func() {
		sc.state[info.ImageIndex] = imageAvailable
		d.cond.Broadcast()
	}()
	if err := sc.stale(); err != nil {
		return fmt.Errorf("halgpu: present: swapchain %d: %w", info.Swapchain, err)
	}
	return d.readBackImage(sc, sc.images[info.ImageIndex])
}

// readBackImage copies img into the staging buffer and composites it into
// the window frame. Must hold d.mu.
func (d *Driver) readBackImage(sc *swapchain, h driver.Image) error {
	img := d.images[h]
	w, ht := sc.extent.Width, sc.extent.Height

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "halgpu_present"})
	if err != nil {
		return fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("present"); err != nil {
		return fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	layout := usageFor(img.layout)
	transition(encoder, img.tex, layout, gputypes.TextureUsageCopySrc)
	encoder.CopyTextureToBuffer(img.tex, sc.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: sc.bytesPerRow, RowsPerImage: ht},
		TextureBase:  hal.ImageCopyTexture{Texture: img.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: ht, DepthOrArrayLayers: 1},
	}})
	transition(encoder, img.tex, gputypes.TextureUsageCopySrc, layout)
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("halgpu: end encoding: %w", err)
	}
	value, err := d.submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.device.FreeCommandBuffer(cmd)
		return err
	}
	if err := d.waitValue(value, d.opts.readbackTimeout); err != nil {
		return err
	}
	readback := make([]byte, uint64(sc.bytesPerRow)*uint64(ht))
	if err := d.queue.ReadBuffer(sc.staging, 0, readback); err != nil {
		return fmt.Errorf("halgpu: read buffer: %w", err)
	}

	src := image.NewRGBA(image.Rect(0, 0, int(w), int(ht)))
	bgra := sc.format == gputypes.TextureFormatBGRA8Unorm || sc.format == gputypes.TextureFormatBGRA8UnormSrgb
	for y := range int(ht) {
		row := readback[y*int(sc.bytesPerRow) : y*int(sc.bytesPerRow)+int(w)*4]
		dst := src.Pix[y*src.Stride : y*src.Stride+int(w)*4]
		copy(dst, row)
		if bgra {
			for i := 0; i < len(dst); i += 4 {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	win := sc.window
	if win.frame.Rect.Eq(src.Rect) {
		draw.Copy(win.frame, image.Point{}, src, src.Rect, draw.Src, nil)
	} else {
		draw.ApproxBiLinear.Scale(win.frame, win.frame.Rect, src, src.Rect, draw.Src, nil)
	}
	win.presents++
	return nil
}
