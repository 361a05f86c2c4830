// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/driver"
)

// Option configures a Driver during creation.
type Option func(*options)

// AcquireOrder picks the image returned by AcquireNextImage among the
// available ones. last is the previously acquired index, or -1.
type AcquireOrder func(available []uint32, last int) uint32

// options holds the configuration of a Driver.
type options struct {
	name             string
	graphicsFamily   uint32
	computeFamily    uint32
	presentFamily    uint32
	presentFamilies  []uint32
	limits           driver.Limits
	formats          []driver.SurfaceFormat
	presentModes     []driver.PresentMode
	minImageCount    uint32
	maxImageCount    uint32
	minExtent        driver.Extent2D
	maxExtent        driver.Extent2D
	latency          time.Duration
	vblank           time.Duration
	acquireOrder     AcquireOrder
	logger           *slog.Logger
	noCoherentMemory bool
}

// defaultOptions returns the default driver options: a single queue family
// that supports graphics, compute and presentation.
func defaultOptions() options {
	return options{
		name:            "soft",
		presentFamilies: []uint32{0},
		limits: driver.Limits{
			MaxImageDimension2D:             8192,
			MaxBufferSize:                   256 << 20,
			MinUniformBufferOffsetAlignment: driver.DefaultUniformAlignment,
		},
		formats: []driver.SurfaceFormat{
			{Format: gputypes.TextureFormatBGRA8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
			{Format: gputypes.TextureFormatRGBA8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
			{Format: gputypes.TextureFormatBGRA8UnormSrgb, ColorSpace: driver.ColorSpaceSRGBNonlinear},
		},
		presentModes:  []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeImmediate, driver.PresentModeMailbox},
		minImageCount: 1,
		maxImageCount: 8,
		minExtent:     driver.Extent2D{Width: 1, Height: 1},
		maxExtent:     driver.Extent2D{Width: 8192, Height: 8192},
		acquireOrder:  roundRobin,
	}
}

// roundRobin returns the first available index after last.
func roundRobin(available []uint32, last int) uint32 {
	best := available[0]
	for _, i := range available {
		if int(i) > last && (int(best) <= last || i < best) {
			best = i
		}
	}
	return best
}

// WithName sets the adapter name reported by the driver.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithQueueFamilies sets the queue families used for graphics, compute
// and presentation. Queues of the same family share a timeline.
func WithQueueFamilies(graphics, compute, present uint32) Option {
	return func(o *options) {
		o.graphicsFamily = graphics
		o.computeFamily = compute
		o.presentFamily = present
	}
}

// WithPresentFamilies sets the queue families able to present.
// An empty list disables presentation entirely.
func WithPresentFamilies(families ...uint32) Option {
	return func(o *options) {
		o.presentFamilies = append([]uint32(nil), families...)
	}
}

// WithLimits overrides the device limits.
func WithLimits(l driver.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithSurfaceFormats sets the formats reported by SurfaceFormats.
func WithSurfaceFormats(formats ...driver.SurfaceFormat) Option {
	return func(o *options) {
		o.formats = append([]driver.SurfaceFormat(nil), formats...)
	}
}

// WithPresentModes sets the modes reported by SurfacePresentModes.
func WithPresentModes(modes ...driver.PresentMode) Option {
	return func(o *options) {
		o.presentModes = append([]driver.PresentMode(nil), modes...)
	}
}

// WithImageCountRange sets the minimum and maximum swapchain image count.
// A max of zero means no limit.
func WithImageCountRange(minCount, maxCount uint32) Option {
	return func(o *options) {
		o.minImageCount = minCount
		o.maxImageCount = maxCount
	}
}

// WithExtentRange sets the minimum and maximum swapchain extent.
func WithExtentRange(minExtent, maxExtent driver.Extent2D) Option {
	return func(o *options) {
		o.minExtent = minExtent
		o.maxExtent = maxExtent
	}
}

// WithLatency delays the execution of every queue operation by d,
// simulating GPU work that outlives the submitting call.
func WithLatency(d time.Duration) Option {
	return func(o *options) {
		o.latency = d
	}
}

// WithVBlank sets the vertical blank interval used to pace FIFO
// presentation. Zero disables pacing.
func WithVBlank(d time.Duration) Option {
	return func(o *options) {
		o.vblank = d
	}
}

// WithAcquireOrder overrides the order in which available images are
// handed out by AcquireNextImage.
func WithAcquireOrder(order AcquireOrder) Option {
	return func(o *options) {
		if order != nil {
			o.acquireOrder = order
		}
	}
}

// WithoutCoherentMemory makes every allocation non-coherent: host writes
// reach the device only through FlushMappedMemoryRanges.
func WithoutCoherentMemory() Option {
	return func(o *options) {
		o.noCoherentMemory = true
	}
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
