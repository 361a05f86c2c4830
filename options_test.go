// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"log/slog"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDefaultSwapChainOptions(t *testing.T) {
	o := defaultSwapChainOptions()
	if o.format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("format = %v", o.format)
	}
	if o.bufferCount != 1 {
		t.Errorf("bufferCount = %d, want 1", o.bufferCount)
	}
	if o.flags != PresentImmediate {
		t.Errorf("flags = %v, want Immediate", o.flags)
	}
	if o.label != "swapchain" {
		t.Errorf("label = %q", o.label)
	}
	if o.logger != nil {
		t.Error("default logger is not nil")
	}
}

func TestSwapChainOptions(t *testing.T) {
	l := slog.New(slog.DiscardHandler)
	o := defaultSwapChainOptions()
	for _, opt := range []SwapChainOption{
		WithFormat(gputypes.TextureFormatBGRA8Unorm),
		WithBufferCount(3),
		WithPresentFlags(PresentVSync),
		WithLabel("hud"),
		WithLogger(l),
	} {
		opt(&o)
	}
	if o.format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("format = %v", o.format)
	}
	if o.bufferCount != 3 {
		t.Errorf("bufferCount = %d, want 3", o.bufferCount)
	}
	if o.flags != PresentVSync {
		t.Errorf("flags = %v, want VSync", o.flags)
	}
	if o.label != "hud" {
		t.Errorf("label = %q", o.label)
	}
	if o.logger != l {
		t.Error("logger not set")
	}
}

func TestWithBufferCountZero(t *testing.T) {
	o := defaultSwapChainOptions()
	WithBufferCount(0)(&o)
	if o.bufferCount != 1 {
		t.Errorf("bufferCount = %d, want 1", o.bufferCount)
	}
}

func TestConstantBufferOptions(t *testing.T) {
	o := defaultConstantBufferOptions()
	if !o.coherent || o.label != "constant_buffer" {
		t.Errorf("defaults = %+v", o)
	}
	WithCoherent(false)(&o)
	WithBufferLabel("camera")(&o)
	if o.coherent || o.label != "camera" {
		t.Errorf("options = %+v", o)
	}
}

func TestPresentFlagsString(t *testing.T) {
	tests := []struct {
		f    PresentFlags
		want string
	}{
		{PresentImmediate, "Immediate"},
		{PresentVSync, "VSync"},
		{0, "Unknown(0)"},
		{PresentImmediate | PresentVSync, "Unknown(3)"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("PresentFlags(%d).String() = %q, want %q", uint32(tt.f), got, tt.want)
		}
	}
}
