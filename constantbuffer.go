// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/driver"
)

// allocation is a buffer together with the memory bound to it.
// Both are always created and released together.
type allocation struct {
	buffer driver.Buffer
	memory driver.Memory
	size   uint64
}

// allocate creates a uniform buffer of size bytes and binds host visible
// memory to it.
func allocate(drv driver.Device, label string, size uint64, props driver.MemoryProperty) (allocation, error) {
	buf, err := drv.CreateBuffer(&driver.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return allocation{}, driverCall("CreateBuffer", err)
	}
	mem, err := drv.AllocateMemory(buf, props)
	if err != nil {
		drv.DestroyBuffer(buf)
		return allocation{}, driverCall("AllocateMemory", err)
	}
	return allocation{buffer: buf, memory: mem, size: size}, nil
}

// free releases the buffer and then its memory.
func (a *allocation) free(drv driver.Device) {
	drv.DestroyBuffer(a.buffer)
	drv.FreeMemory(a.memory)
	*a = allocation{}
}

// ConstantBuffer is a host-visible uniform buffer.
//
// The buffer is written by the host through Map or Write and read by the
// GPU. Destroy waits for the graphics queue to drain before freeing
// memory, so it is safe to destroy a buffer right after submitting work
// that reads it.
type ConstantBuffer struct {
	dev    *Device
	opts   constantBufferOptions
	alloc  allocation
	mapped []byte
}

// NewConstantBuffer returns an empty constant buffer. Call Create to
// allocate storage.
func NewConstantBuffer(dev *Device, opts ...ConstantBufferOption) *ConstantBuffer {
	o := defaultConstantBufferOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ConstantBuffer{dev: dev, opts: o}
}

// Create allocates size bytes. A previous allocation is destroyed first,
// including the queue drain of Destroy; if that drain fails the previous
// allocation is kept and Create fails.
func (cb *ConstantBuffer) Create(size uint64) bool {
	if !cb.dev.IsReady() {
		cb.dev.Logger().Error("rhi: constant buffer: invalid parameter", "err", ErrConfiguration)
		return false
	}
	if !cb.Destroy() {
		return false
	}

	props := driver.MemoryHostVisible
	if cb.opts.coherent {
		props |= driver.MemoryHostCoherent
	}
	a, err := allocate(cb.dev.Driver(), cb.opts.label, size, props)
	if !checkResult(cb.dev.Logger(), "allocate", err) {
		return false
	}
	cb.alloc = a
	return true
}

// valid logs and reports false when the buffer has no device or memory.
func (cb *ConstantBuffer) valid(op string) bool {
	if !cb.dev.IsReady() || cb.alloc.memory == 0 {
		cb.dev.Logger().Error("rhi: constant buffer: invalid internal state", "op", op, "err", ErrResourceState)
		return false
	}
	return true
}

// Map maps the whole buffer and returns the mapping, or nil on failure.
// Mapping a mapped buffer returns the existing mapping.
func (cb *ConstantBuffer) Map() []byte {
	if !cb.valid("map") {
		return nil
	}
	if cb.mapped != nil {
		return cb.mapped
	}
	p, err := cb.dev.Driver().MapMemory(cb.alloc.memory, 0, driver.WholeSize)
	if !checkResult(cb.dev.Logger(), "MapMemory", err) {
		return nil
	}
	cb.mapped = p
	return p
}

// Unmap unmaps the buffer. The slice returned by Map must not be used
// afterwards.
func (cb *ConstantBuffer) Unmap() bool {
	if !cb.valid("unmap") {
		return false
	}
	if cb.mapped == nil {
		cb.dev.Logger().Error("rhi: constant buffer: not mapped", "err", ErrResourceState)
		return false
	}
	cb.dev.Driver().UnmapMemory(cb.alloc.memory)
	cb.mapped = nil
	return true
}

// Flush makes host writes to the whole mapped range visible to the device.
// It is required for non-coherent memory and harmless otherwise.
func (cb *ConstantBuffer) Flush() bool {
	if !cb.valid("flush") {
		return false
	}
	if cb.mapped == nil {
		cb.dev.Logger().Error("rhi: constant buffer: flush of unmapped buffer", "err", ErrResourceState)
		return false
	}
	err := cb.dev.Driver().FlushMappedMemoryRanges([]driver.MappedMemoryRange{{
		Memory: cb.alloc.memory,
		Size:   driver.WholeSize,
	}})
	return checkResult(cb.dev.Logger(), "FlushMappedMemoryRanges", err)
}

// Write copies data to offset, flushing non-coherent memory. A buffer that
// was not mapped before the call is unmapped again.
func (cb *ConstantBuffer) Write(data []byte, offset uint64) bool {
	if !cb.valid("write") {
		return false
	}
	if offset > cb.alloc.size || uint64(len(data)) > cb.alloc.size-offset {
		cb.dev.Logger().Error("rhi: constant buffer: write out of range",
			"offset", offset,
			"len", len(data),
			"size", cb.alloc.size,
			"err", ErrResourceState)
		return false
	}
	wasMapped := cb.mapped != nil
	p := cb.Map()
	if p == nil {
		return false
	}
	copy(p[offset:], data)
	ok := cb.opts.coherent || cb.Flush()
	if !wasMapped {
		ok = cb.Unmap() && ok
	}
	return ok
}

// Drain blocks until the graphics queue has executed all submitted work,
// so no submission can still read the buffer.
func (cb *ConstantBuffer) Drain() bool {
	if !cb.dev.IsReady() {
		return false
	}
	return checkResult(cb.dev.Logger(), "QueueWaitIdle", cb.dev.WaitIdle(cb.dev.GraphicsQueue()))
}

// Destroy drains the graphics queue and releases the buffer and memory.
// It is safe to call more than once.
//
// If the queue cannot be confirmed idle the allocation is kept and Destroy
// returns false. The caller may retry, or leave the buffer to the driver
// teardown.
func (cb *ConstantBuffer) Destroy() bool {
	if cb.alloc.buffer == 0 {
		return true
	}
	if !cb.Drain() {
		cb.dev.Logger().Error("rhi: constant buffer kept: graphics queue did not drain",
			"buffer", cb.alloc.buffer,
			"err", ErrResourceState)
		return false
	}
	cb.release()
	return true
}

// release unmaps and frees the allocation without draining.
func (cb *ConstantBuffer) release() {
	if cb.alloc.buffer == 0 {
		return
	}
	drv := cb.dev.Driver()
	if cb.mapped != nil {
		drv.UnmapMemory(cb.alloc.memory)
		cb.mapped = nil
	}
	cb.alloc.free(drv)
}

// Size returns the size of the allocation in bytes.
func (cb *ConstantBuffer) Size() uint64 { return cb.alloc.size }

// Buffer returns the buffer handle, or the null handle before Create.
func (cb *ConstantBuffer) Buffer() driver.Buffer { return cb.alloc.buffer }

// Coherent reports whether the buffer uses host-coherent memory.
func (cb *ConstantBuffer) Coherent() bool { return cb.opts.coherent }
