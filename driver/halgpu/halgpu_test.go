// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu_test

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/driver/halgpu"
)

// openNoop opens a noop-backed driver that is destroyed with the test.
func openNoop(t *testing.T, opts ...halgpu.Option) *halgpu.Driver {
	t.Helper()
	d, err := halgpu.OpenNoop(opts...)
	if err != nil {
		t.Fatalf("OpenNoop failed: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func TestOpenNoop(t *testing.T) {
	d := openNoop(t)
	if !d.Ready() {
		t.Fatal("driver not ready")
	}
	if d.Limits().MaxImageDimension2D == 0 {
		t.Error("zero MaxImageDimension2D")
	}
	g, p := d.Queue(driver.QueueGraphics), d.Queue(driver.QueuePresent)
	if g != p || g.IsNull() {
		t.Errorf("queues = %+v %+v, want one shared queue", g, p)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	d, err := halgpu.OpenNoop()
	if err != nil {
		t.Fatal(err)
	}
	d.Destroy()
	d.Destroy()
	if d.Ready() {
		t.Error("destroyed driver is ready")
	}
	if _, err := d.CreateSemaphore(); !errors.Is(err, driver.ErrDeviceLost) {
		t.Errorf("CreateSemaphore after Destroy: err = %v", err)
	}
}

func TestNewRejectsNil(t *testing.T) {
	if _, err := halgpu.New(nil, nil); err == nil {
		t.Error("New(nil, nil) succeeded")
	}
}

func TestSurfaceCapabilities(t *testing.T) {
	d := openNoop(t, halgpu.WithImageCountRange(2, 3), halgpu.WithSurfaceFormats(gputypes.TextureFormatBGRA8Unorm))
	win := d.NewWindow(320, 200)
	s, err := d.CreateSurface(win)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroySurface(s)

	caps, err := d.SurfaceCapabilities(s)
	if err != nil {
		t.Fatal(err)
	}
	if caps.MinImageCount != 2 || caps.MaxImageCount != 3 {
		t.Errorf("image count range = %d..%d", caps.MinImageCount, caps.MaxImageCount)
	}
	if caps.CurrentExtent != (driver.Extent2D{Width: 320, Height: 200}) {
		t.Errorf("CurrentExtent = %+v", caps.CurrentExtent)
	}
	formats, err := d.SurfaceFormats(s)
	if err != nil || len(formats) != 1 || formats[0].Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("SurfaceFormats = %v, %v", formats, err)
	}
	if ok, _ := d.SurfaceSupport(0, s); !ok {
		t.Error("family 0 cannot present")
	}
	if ok, _ := d.SurfaceSupport(1, s); ok {
		t.Error("family 1 can present")
	}
}

func TestAcquireAfterResizeIsOutOfDate(t *testing.T) {
	d := openNoop(t)
	win := d.NewWindow(32, 32)
	s, err := d.CreateSurface(win)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroySurface(s)
	sc, err := d.CreateSwapchain(&driver.SwapchainDescriptor{
		Surface:       s,
		MinImageCount: 2,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Extent:        driver.Extent2D{Width: 32, Height: 32},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroySwapchain(sc)

	for want := range uint32(2) {
		idx, err := d.AcquireNextImage(sc, time.Second, 0, 0)
		if err != nil || idx != want {
			t.Fatalf("acquire = %d, %v; want %d", idx, err, want)
		}
	}
	if _, err := d.AcquireNextImage(sc, 10*time.Millisecond, 0, 0); !errors.Is(err, driver.ErrTimeout) {
		t.Errorf("acquire with no free image: err = %v, want ErrTimeout", err)
	}
	win.Resize(64, 64)
	if _, err := d.AcquireNextImage(sc, time.Second, 0, 0); !errors.Is(err, driver.ErrOutOfDate) {
		t.Errorf("acquire after resize: err = %v, want ErrOutOfDate", err)
	}
	win.Close()
	if _, err := d.AcquireNextImage(sc, time.Second, 0, 0); !errors.Is(err, driver.ErrSurfaceLost) {
		t.Errorf("acquire after close: err = %v, want ErrSurfaceLost", err)
	}
}

func TestFenceSignaledBySubmit(t *testing.T) {
	d := openNoop(t)
	f, err := d.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyFence(f)
	if err := d.WaitForFences([]driver.Fence{f}, time.Millisecond); !errors.Is(err, driver.ErrTimeout) {
		t.Errorf("wait on unsubmitted fence: err = %v, want ErrTimeout", err)
	}
	q := d.Queue(driver.QueueGraphics)
	if err := d.QueueSubmit(q, nil, f); err != nil {
		t.Fatal(err)
	}
	if err := d.WaitForFences([]driver.Fence{f}, time.Second); err != nil {
		t.Fatalf("WaitForFences: %v", err)
	}
	if err := d.ResetFences([]driver.Fence{f}); err != nil {
		t.Fatalf("ResetFences: %v", err)
	}
	if err := d.QueueSubmit(driver.Queue{Handle: 9}, nil, 0); !errors.Is(err, driver.ErrInvalidHandle) {
		t.Errorf("submit to unknown queue: err = %v", err)
	}
}

func TestMemoryRequiresHostVisible(t *testing.T) {
	d := openNoop(t)
	b, err := d.CreateBuffer(&driver.BufferDescriptor{Size: 64, Usage: gputypes.BufferUsageUniform})
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyBuffer(b)
	if _, err := d.AllocateMemory(b, driver.MemoryDeviceLocal); !errors.Is(err, driver.ErrUnsupported) {
		t.Errorf("device local memory: err = %v, want ErrUnsupported", err)
	}
	m, err := d.AllocateMemory(b, driver.MemoryHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	defer d.FreeMemory(m)
	p, err := d.MapMemory(m, 16, driver.WholeSize)
	if err != nil || len(p) != 48 {
		t.Fatalf("MapMemory = %d bytes, %v", len(p), err)
	}
	if _, err := d.MapMemory(m, 0, driver.WholeSize); err == nil {
		t.Error("second map succeeded")
	}
	if err := d.FlushMappedMemoryRanges([]driver.MappedMemoryRange{{Memory: m, Size: driver.WholeSize}}); err != nil {
		t.Errorf("Flush: %v", err)
	}
	d.UnmapMemory(m)
	if err := d.FlushMappedMemoryRanges([]driver.MappedMemoryRange{{Memory: m, Size: driver.WholeSize}}); err == nil {
		t.Error("flush of unmapped memory succeeded")
	}
}

// TestFrameLoop runs rhi frames, resizes and buffer uploads on the noop
// backend.
func TestFrameLoop(t *testing.T) {
	d := openNoop(t)
	dev, err := rhi.NewDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Release()
	win := d.NewWindow(64, 48)
	sc, err := rhi.NewSwapChain(win, dev, 64, 48, rhi.WithBufferCount(2), rhi.WithLabel("noop"))
	if err != nil {
		t.Fatalf("NewSwapChain: %v", err)
	}

	cb := rhi.NewConstantBuffer(dev)
	if !cb.Create(256) {
		t.Fatal("ConstantBuffer.Create failed")
	}
	dst := rhi.NewConstantBuffer(dev, rhi.WithCoherent(false))
	if !dst.Create(256) {
		t.Fatal("ConstantBuffer.Create failed")
	}

	for i := range 6 {
		if i == 3 {
			win.Resize(80, 60)
			if sc.AcquireNextImage() {
				t.Fatal("acquire after window resize succeeded")
			}
			if !sc.Resize(80, 60) {
				t.Fatal("Resize failed")
			}
		}
		if !cb.Write([]byte{byte(i)}, 0) {
			t.Fatalf("frame %d: Write failed", i)
		}
		if !sc.AcquireNextImage() {
			t.Fatalf("frame %d: AcquireNextImage failed", i)
		}
		cl := sc.CommandList()
		if !cl.Begin() {
			t.Fatalf("frame %d: Begin failed", i)
		}
		sc.SetLayout(driver.LayoutPresentSrc, cl)
		cl.ClearColor(sc.Image(sc.ImageIndex()), [4]float32{1, 0, 0, 1})
		cl.CopyBuffer(cb, dst, 256)
		if !cl.End() || !cl.Submit() {
			t.Fatalf("frame %d: End/Submit failed", i)
		}
		if !sc.Present() {
			t.Fatalf("frame %d: Present failed", i)
		}
	}
	if got := win.Presents(); got != 6 {
		t.Errorf("presents = %d, want 6", got)
	}
	if f := win.Frame(); f.Rect.Dx() != 80 || f.Rect.Dy() != 60 {
		t.Errorf("frame size = %v", f.Rect)
	}
	if dst.Map() == nil {
		t.Error("Map of copy destination failed")
	}
	cb.Destroy()
	dst.Destroy()
	sc.Destroy()

	for kind, n := range d.Live() {
		if n != 0 {
			t.Errorf("%d %s object(s) alive after Destroy", n, kind)
		}
	}
}

func TestFromProviderRejectsPlainProvider(t *testing.T) {
	if _, err := halgpu.FromProvider(nil); err == nil {
		t.Error("FromProvider(nil) succeeded")
	}
}
