// Command rhidemo drives a swap chain through a clear-and-present frame
// loop and saves the last presented frame as PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/driver/halgpu"
	"github.com/gogpu/rhi/driver/soft"
)

// window is what the demo needs from the offscreen windows of the soft
// and halgpu drivers.
type window interface {
	driver.Window
	Size() (int, int)
	Resize(width, height int)
	Minimize()
	Frame() *image.RGBA
	Presents() int
}

func main() {
	var (
		width      = flag.Int("width", 640, "window width")
		height     = flag.Int("height", 480, "window height")
		buffers    = flag.Uint("buffers", 3, "swap chain buffer count")
		frames     = flag.Int("frames", 60, "number of frames")
		vsync      = flag.Bool("vsync", false, "present with vsync")
		drvName    = flag.String("driver", "soft", "driver: soft, noop or vulkan")
		output     = flag.String("output", "rhidemo.png", "output file")
		scale      = flag.Float64("scale", 1, "output scale factor")
		resizeAt   = flag.Int("resize-at", -1, "frame at which the window grows by half")
		minimizeAt = flag.Int("minimize-at", -1, "frame at which the window is minimized for one frame")
		verbose    = flag.Bool("v", false, "log swap chain events")
	)
	flag.Parse()

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	drv, win, closeDriver, err := openDriver(*drvName, *width, *height)
	if err != nil {
		log.Fatalf("Failed to open driver: %v", err)
	}
	defer closeDriver()

	dev, err := rhi.NewDevice(drv)
	if err != nil {
		log.Fatalf("Failed to create device: %v", err)
	}
	defer dev.Release()

	flags := rhi.PresentImmediate
	if *vsync {
		flags = rhi.PresentVSync
	}
	sc, err := rhi.NewSwapChain(win, dev, uint32(*width), uint32(*height),
		rhi.WithBufferCount(uint32(*buffers)),
		rhi.WithPresentFlags(flags),
		rhi.WithLabel("rhidemo"))
	if err != nil {
		log.Fatalf("Failed to create swap chain: %v", err)
	}
	defer sc.Destroy()

	// The frame constants are uploaded every frame and copied into a
	// second buffer, as a renderer would stage uniforms.
	constants := rhi.NewConstantBuffer(dev, rhi.WithBufferLabel("frame_constants"))
	staged := rhi.NewConstantBuffer(dev, rhi.WithBufferLabel("frame_constants_staged"))
	if !constants.Create(64) || !staged.Create(64) {
		log.Fatal("Failed to create constant buffers")
	}
	defer constants.Destroy()
	defer staged.Destroy()

	for i := 0; i < *frames; i++ {
		switch i {
		case *resizeAt:
			w, h := win.Size()
			win.Resize(w+w/2, h+h/2)
		case *minimizeAt:
			win.Minimize()
			sc.Resize(0, 0)
		case *minimizeAt + 1:
			if *minimizeAt >= 0 {
				win.Resize(*width, *height)
				sc.Resize(uint32(*width), uint32(*height))
			}
		}
		if err := drawFrame(sc, win, constants, staged, i); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
	}
	if !dev.Driver().Ready() || dev.WaitIdle(dev.GraphicsQueue()) != nil {
		log.Fatal("Device lost")
	}

	if err := save(*output, annotate(win.Frame(), *drvName, win.Presents()), *scale); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("%d frames presented (%d slot mismatches), saved to %s\n",
		win.Presents(), sc.SlotMismatches(), *output)
}

// openDriver opens the named driver with a window of the given size.
func openDriver(name string, width, height int) (driver.Device, window, func(), error) {
	switch name {
	case "soft":
		d := soft.New()
		return d, d.NewWindow(width, height), d.Destroy, nil
	case "noop":
		d, err := halgpu.OpenNoop()
		if err != nil {
			return nil, nil, nil, err
		}
		return d, d.NewWindow(width, height), d.Destroy, nil
	case "vulkan":
		d, err := halgpu.Open()
		if err != nil {
			return nil, nil, nil, err
		}
		return d, d.NewWindow(width, height), d.Destroy, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown driver %q", name)
	}
}

// drawFrame acquires an image, clears it to a color cycling with n and
// presents it. An out of date swap chain is resized to the window first.
func drawFrame(sc *rhi.SwapChain, win window, constants, staged *rhi.ConstantBuffer, n int) error {
	if !sc.IsPresentable() {
		return nil
	}
	if !sc.AcquireNextImage() {
		w, h := win.Size()
		if !sc.Resize(uint32(w), uint32(h)) || !sc.AcquireNextImage() {
			return fmt.Errorf("acquire failed after resize to %dx%d", w, h)
		}
	}

	color := hue(float64(n) / 60)
	var data [16]byte
	for i, c := range color {
		bits := math.Float32bits(c)
		data[i*4], data[i*4+1], data[i*4+2], data[i*4+3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
	}
	if !constants.Write(data[:], 0) {
		return fmt.Errorf("constant upload failed")
	}

	cl := sc.CommandList()
	if cl == nil || !cl.Begin() {
		return fmt.Errorf("begin failed")
	}
	if !sc.SetLayout(driver.LayoutPresentSrc, cl) {
		return fmt.Errorf("layout transition failed")
	}
	cl.ClearColor(sc.Image(sc.ImageIndex()), color)
	cl.CopyBuffer(constants, staged, constants.Size())
	if !cl.End() || !cl.Submit() {
		return fmt.Errorf("submit failed")
	}
	if !sc.Present() {
		return fmt.Errorf("present failed")
	}
	return nil
}

// hue returns an opaque color on the hue circle at t turns.
func hue(t float64) [4]float32 {
	f := func(offset float64) float32 {
		return float32(0.5 + 0.5*math.Cos(2*math.Pi*(t+offset)))
	}
	return [4]float32{f(0), f(1.0 / 3), f(2.0 / 3), 1}
}

// annotate draws the driver name and present count in the top-left corner.
func annotate(img *image.RGBA, driverName string, presents int) *image.RGBA {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, 18),
	}
	d.DrawString(fmt.Sprintf("%s: %d presents", driverName, presents))
	return img
}

func save(path string, img *image.RGBA, scale float64) error {
	out := image.Image(img)
	if scale > 0 && scale != 1 {
		b := img.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out = dst
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
