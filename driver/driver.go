// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the GPU driver contract consumed by rhi.
//
// The contract is intentionally shaped after explicit APIs such as Vulkan:
// objects are referenced through opaque handles, synchronization is explicit
// (semaphores between queue operations, fences between the GPU and the host),
// and the caller owns every object it creates. Implementations live in
// sub-packages:
//
//   - driver/soft: a software reference driver with a validation layer
//   - driver/halgpu: a driver backed by gogpu/wgpu/hal (Vulkan or noop)
//
// Unless stated otherwise, methods are not safe for concurrent use on the same
// object. Queues are externally synchronized.
package driver

import (
	"math"
	"time"
)

// Infinite is the timeout value that waits without bound.
const Infinite = time.Duration(math.MaxInt64)

// Device is the interface a GPU driver implements.
//
// A Device is shared by every rhi object created from it and must outlive
// all of them.
type Device interface {
	Presenter
	CommandRecorder
	MemoryAllocator
	Synchronizer

	// Name returns a human readable adapter name.
	Name() string

	// Ready reports whether the logical device exists and can accept work.
	Ready() bool

	// Limits returns the device limits relevant to presentation and buffers.
	Limits() Limits

	// Queue returns the queue used for the given kind of work.
	// Distinct kinds may share a family and handle.
	Queue(kind QueueType) Queue

	// QueueWaitIdle blocks until all work submitted to q has completed.
	// It waits without bound.
	QueueWaitIdle(q Queue) error

	// DeviceWaitIdle blocks until every queue of the device is idle.
	DeviceWaitIdle() error

	// Destroy releases the logical device.
	Destroy()
}

// Presenter is the window-system-integration part of a Device.
type Presenter interface {
	// IsWindow reports whether win refers to a live window.
	IsWindow(win Window) bool

	// CreateSurface binds a presentation surface to win.
	CreateSurface(win Window) (Surface, error)
	DestroySurface(s Surface)

	// SurfaceSupport reports whether the queue family can present to s.
	SurfaceSupport(family uint32, s Surface) (bool, error)

	SurfaceCapabilities(s Surface) (SurfaceCapabilities, error)
	SurfaceFormats(s Surface) ([]SurfaceFormat, error)
	SurfacePresentModes(s Surface) ([]PresentMode, error)

	CreateSwapchain(desc *SwapchainDescriptor) (Swapchain, error)
	DestroySwapchain(sc Swapchain)

	// SwapchainImages returns the presentable images of sc.
	// The images belong to the swapchain and must not be destroyed.
	SwapchainImages(sc Swapchain) ([]Image, error)

	CreateImageView(desc *ImageViewDescriptor) (ImageView, error)
	DestroyImageView(v ImageView)

	// AcquireNextImage returns the index of the next available image of sc.
	// sem (and fence, if non-null) are signaled when the image is ready.
	// It returns ErrOutOfDate if the surface changed so that sc can no
	// longer present, or ErrTimeout if timeout expires first.
	AcquireNextImage(sc Swapchain, timeout time.Duration, sem Semaphore, fence Fence) (uint32, error)

	// QueuePresent queues an image for presentation.
	// ErrSuboptimal is returned when the image was presented but sc no
	// longer matches the surface exactly.
	QueuePresent(q Queue, info *PresentInfo) error
}

// CommandRecorder is the command recording and submission part of a Device.
type CommandRecorder interface {
	CreateCommandPool(family uint32) (CommandPool, error)

	// ResetCommandPool returns every command buffer allocated from pool
	// to the initial state. Their recorded contents are discarded.
	ResetCommandPool(pool CommandPool) error
	DestroyCommandPool(pool CommandPool)

	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(pool CommandPool, cb CommandBuffer)

	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error

	// CmdImageBarrier records a layout transition of image.
	CmdImageBarrier(cb CommandBuffer, image Image, oldLayout, newLayout ImageLayout)

	// CmdClearColorImage clears image to the given RGBA color.
	CmdClearColorImage(cb CommandBuffer, image Image, color [4]float32)

	// CmdCopyBuffer copies size bytes from the start of src to the start of dst.
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size uint64)

	// QueueSubmit submits batches to q. If fence is non-null it is
	// signaled once every batch has completed.
	QueueSubmit(q Queue, submits []SubmitInfo, fence Fence) error
}

// MemoryAllocator is the buffer and memory part of a Device.
type MemoryAllocator interface {
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	DestroyBuffer(b Buffer)

	// AllocateMemory allocates memory satisfying props and binds it to b.
	AllocateMemory(b Buffer, props MemoryProperty) (Memory, error)
	FreeMemory(m Memory)

	// MapMemory maps [offset, offset+size) of m into host address space.
	// WholeSize maps until the end of the allocation.
	MapMemory(m Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(m Memory)

	// FlushMappedMemoryRanges makes host writes to the ranges visible
	// to the device. It is only required for non-coherent memory.
	FlushMappedMemoryRanges(ranges []MappedMemoryRange) error
}

// Synchronizer is the semaphore and fence part of a Device.
type Synchronizer interface {
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)

	// WaitForFences blocks until every fence is signaled or timeout
	// expires, in which case ErrTimeout is returned.
	WaitForFences(fences []Fence, timeout time.Duration) error
	ResetFences(fences []Fence) error
}
