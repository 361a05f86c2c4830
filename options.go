// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"log/slog"

	"github.com/gogpu/gputypes"
)

// DeviceOption configures a Device during creation.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	logger *slog.Logger
}

// WithDeviceLogger sets the logger used by the device and the objects
// created from it. By default the package logger is used.
func WithDeviceLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// SwapChainOption configures a SwapChain during creation.
//
// Example:
//
//	sc, err := rhi.NewSwapChain(win, dev, 1280, 720,
//	    rhi.WithBufferCount(2),
//	    rhi.WithPresentFlags(rhi.PresentVSync))
type SwapChainOption func(*swapChainOptions)

// swapChainOptions holds optional configuration for SwapChain creation.
type swapChainOptions struct {
	format      gputypes.TextureFormat
	bufferCount uint32
	flags       PresentFlags
	label       string
	logger      *slog.Logger
}

// defaultSwapChainOptions returns a single-buffered RGBA8 swap chain that
// presents without vsync.
func defaultSwapChainOptions() swapChainOptions {
	return swapChainOptions{
		format:      gputypes.TextureFormatRGBA8Unorm,
		bufferCount: 1,
		flags:       PresentImmediate,
		label:       "swapchain",
	}
}

// WithFormat sets the requested image format. The surface may not support
// it, in which case the first supported format is used.
func WithFormat(f gputypes.TextureFormat) SwapChainOption {
	return func(o *swapChainOptions) {
		o.format = f
	}
}

// WithBufferCount sets the number of presentable images and frame slots.
// Zero is treated as one.
func WithBufferCount(n uint32) SwapChainOption {
	return func(o *swapChainOptions) {
		o.bufferCount = max(n, 1)
	}
}

// WithPresentFlags sets the presentation timing flags.
func WithPresentFlags(f PresentFlags) SwapChainOption {
	return func(o *swapChainOptions) {
		o.flags = f
	}
}

// WithLabel sets the debug label prefix of the swap chain objects.
func WithLabel(label string) SwapChainOption {
	return func(o *swapChainOptions) {
		o.label = label
	}
}

// WithLogger overrides the logger of a single swap chain.
func WithLogger(l *slog.Logger) SwapChainOption {
	return func(o *swapChainOptions) {
		o.logger = l
	}
}

// ConstantBufferOption configures a ConstantBuffer during creation.
type ConstantBufferOption func(*constantBufferOptions)

type constantBufferOptions struct {
	coherent bool
	label    string
}

func defaultConstantBufferOptions() constantBufferOptions {
	return constantBufferOptions{
		coherent: true,
		label:    "constant_buffer",
	}
}

// WithCoherent selects host-coherent memory (the default). Non-coherent
// memory requires Flush before the device reads host writes.
func WithCoherent(coherent bool) ConstantBufferOption {
	return func(o *constantBufferOptions) {
		o.coherent = coherent
	}
}

// WithBufferLabel sets the debug label of the buffer.
func WithBufferLabel(label string) ConstantBufferOption {
	return func(o *constantBufferOptions) {
		o.label = label
	}
}
