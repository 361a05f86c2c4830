// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  fmt.Stringer
		want string
	}{
		{QueueGraphics, "Graphics"},
		{QueuePresent, "Present"},
		{QueueType(42), "Unknown(42)"},
		{PresentModeImmediate, "Immediate"},
		{PresentModeFifo, "Fifo"},
		{PresentMode(-1), "Unknown(-1)"},
		{LayoutPresentSrc, "PresentSrc"},
		{LayoutColorAttachment, "ColorAttachment"},
		{ColorSpaceSRGBNonlinear, "SRGBNonlinear"},
		{SharingConcurrent, "Concurrent"},
	}
	for _, tt := range tests {
		if s := tt.got.String(); s != tt.want {
			t.Errorf("String() = %q, want %q", s, tt.want)
		}
	}
}

func TestIsSurfaceError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrOutOfDate, true},
		{fmt.Errorf("acquire: %w", ErrSuboptimal), true},
		{ErrSurfaceLost, true},
		{ErrDeviceLost, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := IsSurfaceError(tt.err); got != tt.want {
			t.Errorf("IsSurfaceError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMemoryPropertyHas(t *testing.T) {
	p := MemoryHostVisible | MemoryHostCoherent
	if !p.Has(MemoryHostVisible) {
		t.Error("expected HostVisible")
	}
	if !p.Has(MemoryHostVisible | MemoryHostCoherent) {
		t.Error("expected HostVisible|HostCoherent")
	}
	if p.Has(MemoryDeviceLocal) {
		t.Error("unexpected DeviceLocal")
	}
}

func TestLimitsFrom(t *testing.T) {
	l := LimitsFrom(gputypes.DefaultLimits())
	if l.MaxImageDimension2D == 0 {
		t.Error("expected non-zero MaxImageDimension2D")
	}
	if l.MinUniformBufferOffsetAlignment != DefaultUniformAlignment {
		t.Errorf("MinUniformBufferOffsetAlignment = %d, want %d",
			l.MinUniformBufferOffsetAlignment, DefaultUniformAlignment)
	}
	if (Queue{}).IsNull() != true {
		t.Error("zero Queue should be null")
	}
}
