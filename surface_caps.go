// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// PresentFlags selects presentation timing.
type PresentFlags uint32

const (
	// PresentImmediate presents as soon as possible. It falls back to
	// mailbox and then FIFO when the surface does not support it.
	PresentImmediate PresentFlags = 1 << iota

	// PresentVSync waits for vertical blank (FIFO).
	PresentVSync
)

// String returns the string representation of PresentFlags.
func (f PresentFlags) String() string {
	switch f {
	case PresentImmediate:
		return "Immediate"
	case PresentVSync:
		return "VSync"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(f))
	}
}

// clampExtent clamps the requested size into the surface extent range.
func clampExtent(width, height uint32, caps driver.SurfaceCapabilities) (uint32, uint32) {
	width = min(max(width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width)
	height = min(max(height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height)
	return width, height
}

// detectFormatAndColorSpace picks the surface format for a requested
// format. A single Undefined entry means the surface accepts any format.
// Otherwise the requested format in sRGB non-linear color space wins,
// then the requested format in any color space, then the first entry.
func detectFormatAndColorSpace(requested gputypes.TextureFormat, formats []driver.SurfaceFormat) (gputypes.TextureFormat, driver.ColorSpace, bool) {
	if len(formats) == 0 {
		return gputypes.TextureFormatUndefined, 0, false
	}
	if len(formats) == 1 && formats[0].Format == gputypes.TextureFormatUndefined {
		return requested, formats[0].ColorSpace, true
	}
	for _, f := range formats {
		if f.Format == requested && f.ColorSpace == driver.ColorSpaceSRGBNonlinear {
			return f.Format, f.ColorSpace, true
		}
	}
	for _, f := range formats {
		if f.Format == requested {
			return f.Format, f.ColorSpace, true
		}
	}
	return formats[0].Format, formats[0].ColorSpace, true
}

// choosePresentMode maps flags to the best supported present mode.
// FIFO is always supported and is the final fallback.
func choosePresentMode(flags PresentFlags, available []driver.PresentMode) driver.PresentMode {
	var preferred []driver.PresentMode
	switch {
	case flags&PresentVSync != 0:
		preferred = []driver.PresentMode{driver.PresentModeFifo}
	case flags&PresentImmediate != 0:
		preferred = []driver.PresentMode{driver.PresentModeImmediate, driver.PresentModeMailbox}
	}
	for _, m := range preferred {
		if slices.Contains(available, m) {
			return m
		}
	}
	return driver.PresentModeFifo
}

// imageCountFor clamps bufferCount into the surface image count range.
// A MaxImageCount of zero means no upper limit.
func imageCountFor(bufferCount uint32, caps driver.SurfaceCapabilities) uint32 {
	n := max(bufferCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		n = min(n, caps.MaxImageCount)
	}
	return n
}

// sharingModeFor returns concurrent sharing and the family list when the
// graphics and compute families differ, exclusive sharing otherwise.
func sharingModeFor(graphics, compute driver.Queue) (driver.SharingMode, []uint32) {
	if graphics.Family != compute.Family {
		return driver.SharingConcurrent, []uint32{compute.Family, graphics.Family}
	}
	return driver.SharingExclusive, nil
}
