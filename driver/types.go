// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Opaque object handles. The zero value of every handle is the null handle.
type (
	Surface       uint64
	Swapchain     uint64
	Image         uint64
	ImageView     uint64
	Semaphore     uint64
	Fence         uint64
	CommandPool   uint64
	CommandBuffer uint64
	Buffer        uint64
	Memory        uint64
)

// WholeSize selects the remainder of an allocation in MapMemory and
// MappedMemoryRange.
const WholeSize = ^uint64(0)

// Window is a native window that can back a Surface.
type Window interface {
	// NativeHandle returns the platform handle of the window
	// (HWND, xcb_window_t, wl_surface pointer, ...).
	NativeHandle() uintptr
}

// QueueType selects the kind of work a queue is used for.
type QueueType int

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueuePresent
)

// String returns the string representation of QueueType.
func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	case QueuePresent:
		return "Present"
	default:
		return fmt.Sprintf("Unknown(%d)", int(q))
	}
}

// Queue identifies a device queue and its family.
type Queue struct {
	Family uint32
	Handle uint64
}

// IsNull reports whether q does not refer to a queue.
func (q Queue) IsNull() bool { return q.Handle == 0 }

// Limits holds the device limits used by rhi.
type Limits struct {
	// MaxImageDimension2D is the largest width or height of a 2D image.
	MaxImageDimension2D uint32

	// MaxBufferSize is the largest buffer that can be created.
	MaxBufferSize uint64

	// MinUniformBufferOffsetAlignment is the required alignment of
	// uniform buffer binding offsets.
	MinUniformBufferOffsetAlignment uint32
}

// DefaultUniformAlignment is the uniform offset alignment assumed when a
// backend does not report one.
const DefaultUniformAlignment = 256

// LimitsFrom converts gputypes limits to driver limits.
func LimitsFrom(l gputypes.Limits) Limits {
	return Limits{
		MaxImageDimension2D:             l.MaxTextureDimension2D,
		MaxBufferSize:                   l.MaxBufferSize,
		MinUniformBufferOffsetAlignment: DefaultUniformAlignment,
	}
}

// Extent2D is a two-dimensional size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// UndefinedExtent in SurfaceCapabilities.CurrentExtent means the surface
// size is determined by the swapchain extent.
const UndefinedExtent = ^uint32(0)

// SurfaceTransform is a presentation transform.
type SurfaceTransform uint32

const (
	TransformIdentity SurfaceTransform = 1 << iota
	TransformRotate90
	TransformRotate180
	TransformRotate270
)

// SurfaceCapabilities describes what a surface supports.
type SurfaceCapabilities struct {
	MinImageCount    uint32
	MaxImageCount    uint32 // 0 means no limit
	CurrentExtent    Extent2D
	MinImageExtent   Extent2D
	MaxImageExtent   Extent2D
	CurrentTransform SurfaceTransform
	SupportedUsage   gputypes.TextureUsage
}

// ColorSpace is the color space of presentable images.
type ColorSpace int

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceExtendedSRGBLinear
	ColorSpaceHDR10ST2084
)

// String returns the string representation of ColorSpace.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceSRGBNonlinear:
		return "SRGBNonlinear"
	case ColorSpaceExtendedSRGBLinear:
		return "ExtendedSRGBLinear"
	case ColorSpaceHDR10ST2084:
		return "HDR10ST2084"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// SurfaceFormat is a format and color space pair supported by a surface.
// A single entry with gputypes.TextureFormatUndefined means that any
// format can be used.
type SurfaceFormat struct {
	Format     gputypes.TextureFormat
	ColorSpace ColorSpace
}

// PresentMode is the presentation timing of a swapchain.
type PresentMode int

const (
	// PresentModeImmediate presents without waiting for vertical blank.
	// Tearing may be visible.
	PresentModeImmediate PresentMode = iota
	// PresentModeMailbox replaces the pending image on each present.
	PresentModeMailbox
	// PresentModeFifo waits for vertical blank. Always supported.
	PresentModeFifo
	// PresentModeFifoRelaxed is like Fifo but presents late images
	// immediately.
	PresentModeFifoRelaxed
)

// String returns the string representation of PresentMode.
func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "Immediate"
	case PresentModeMailbox:
		return "Mailbox"
	case PresentModeFifo:
		return "Fifo"
	case PresentModeFifoRelaxed:
		return "FifoRelaxed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// SharingMode controls queue family ownership of swapchain images.
type SharingMode int

const (
	SharingExclusive SharingMode = iota
	SharingConcurrent
)

// String returns the string representation of SharingMode.
func (m SharingMode) String() string {
	switch m {
	case SharingExclusive:
		return "Exclusive"
	case SharingConcurrent:
		return "Concurrent"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// SwapchainDescriptor describes a swapchain to create.
type SwapchainDescriptor struct {
	Label              string
	Surface            Surface
	MinImageCount      uint32
	Format             gputypes.TextureFormat
	ColorSpace         ColorSpace
	Extent             Extent2D
	Usage              gputypes.TextureUsage
	SharingMode        SharingMode
	QueueFamilyIndices []uint32
	PreTransform       SurfaceTransform
	PresentMode        PresentMode
	Clipped            bool
	OldSwapchain       Swapchain
}

// ImageLayout is the memory layout of an image.
type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutPresentSrc
)

// String returns the string representation of ImageLayout.
func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutPresentSrc:
		return "PresentSrc"
	default:
		return fmt.Sprintf("Unknown(%d)", int(l))
	}
}

// ImageViewDescriptor describes an image view to create.
type ImageViewDescriptor struct {
	Label  string
	Image  Image
	Format gputypes.TextureFormat
}

// MemoryProperty is a set of memory property flags.
type MemoryProperty uint32

const (
	MemoryDeviceLocal MemoryProperty = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
	MemoryHostCached
)

// Has reports whether all flags in p2 are set in p.
func (p MemoryProperty) Has(p2 MemoryProperty) bool { return p&p2 == p2 }

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// MappedMemoryRange is a range of mapped memory to flush.
type MappedMemoryRange struct {
	Memory Memory
	Offset uint64
	Size   uint64
}

// SubmitInfo is one batch of a queue submission.
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// PresentInfo describes a presentation request.
type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}
