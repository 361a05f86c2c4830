// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Option configures a Driver.
type Option func(*options)

type options struct {
	limits          gputypes.Limits
	formats         []gputypes.TextureFormat
	minImages       uint32
	maxImages       uint32
	readbackTimeout time.Duration
}

// defaultOptions returns WebGPU default limits, BGRA8 and RGBA8 surfaces
// and one to four images per swapchain.
func defaultOptions() options {
	return options{
		limits:          gputypes.DefaultLimits(),
		formats:         []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		minImages:       1,
		maxImages:       4,
		readbackTimeout: 5 * time.Second,
	}
}

// WithLimits sets the limits used to open the device and reported by
// Limits.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithSurfaceFormats sets the formats surfaces report, in preference order.
func WithSurfaceFormats(formats ...gputypes.TextureFormat) Option {
	return func(o *options) {
		o.formats = formats
	}
}

// WithImageCountRange sets the image count range surfaces report.
func WithImageCountRange(minCount, maxCount uint32) Option {
	return func(o *options) {
		o.minImages = max(minCount, 1)
		o.maxImages = max(maxCount, o.minImages)
	}
}

// WithReadbackTimeout bounds the GPU wait of a presentation readback.
func WithReadbackTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readbackTimeout = d
	}
}
