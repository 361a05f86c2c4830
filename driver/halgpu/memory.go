// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

type buffer struct {
	hal  hal.Buffer
	size uint64
	mem  driver.Memory
}

// memory is the host shadow of a buffer. The hal buffer is the device
// copy; writes reach it through the queue.
type memory struct {
	buffer   driver.Buffer
	host     []byte
	coherent bool
	mapped   bool

	// dirty marks coherent host writes not yet uploaded.
	dirty bool
	// stale marks device writes not yet read back into host.
	stale bool
}

// CreateBuffer creates a hal buffer. Copy usages are always added for
// uploads and readback.
func (d *Driver) CreateBuffer(desc *driver.BufferDescriptor) (driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	if desc.Size == 0 || desc.Size > d.opts.limits.MaxBufferSize {
		return 0, fmt.Errorf("halgpu: buffer size %d: %w", desc.Size, driver.ErrUnsupported)
	}
	b, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("halgpu: create buffer: %w: %w", driver.ErrNoDeviceMemory, err)
	}
	h := driver.Buffer(d.handle())
	d.buffers[h] = &buffer{hal: b, size: desc.Size}
	return h, nil
}

// DestroyBuffer destroys b. Its memory stays allocated until FreeMemory.
func (d *Driver) DestroyBuffer(h driver.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return
	}
	d.device.DestroyBuffer(b.hal)
	delete(d.buffers, h)
}

// AllocateMemory allocates a host shadow for b. Only host visible memory
// is supported.
func (d *Driver) AllocateMemory(h driver.Buffer, props driver.MemoryProperty) (driver.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return 0, fmt.Errorf("halgpu: allocate memory: buffer %d: %w", h, driver.ErrInvalidHandle)
	}
	if !props.Has(driver.MemoryHostVisible) {
		return 0, fmt.Errorf("halgpu: allocate memory: %w", driver.ErrUnsupported)
	}
	if b.mem != 0 {
		return 0, fmt.Errorf("halgpu: buffer %d already has memory: %w", h, driver.ErrInvalidHandle)
	}
	m := driver.Memory(d.handle())
	d.memories[m] = &memory{
		buffer:   h,
		host:     make([]byte, b.size),
		coherent: props.Has(driver.MemoryHostCoherent),
	}
	b.mem = m
	return m, nil
}

// FreeMemory frees m.
func (d *Driver) FreeMemory(h driver.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[h]
	if !ok {
		return
	}
	if b, ok := d.buffers[m.buffer]; ok {
		b.mem = 0
	}
	delete(d.memories, h)
}

// MapMemory returns the host shadow of m, first reading back device
// writes that completed.
func (d *Driver) MapMemory(h driver.Memory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[h]
	if !ok {
		return nil, fmt.Errorf("halgpu: map memory %d: %w", h, driver.ErrInvalidHandle)
	}
	if m.mapped {
		return nil, fmt.Errorf("halgpu: memory %d is already mapped: %w", h, driver.ErrInvalidHandle)
	}
	if size == driver.WholeSize {
		size = uint64(len(m.host)) - min(offset, uint64(len(m.host)))
	}
	if offset+size > uint64(len(m.host)) {
		return nil, fmt.Errorf("halgpu: map memory %d: range out of bounds: %w", h, driver.ErrInvalidHandle)
	}
	if m.stale {
		if err := d.readBack(m); err != nil {
			return nil, err
		}
	}
	m.mapped = true
	if m.coherent {
		m.dirty = true
	}
	return m.host[offset : offset+size : offset+size], nil
}

// readBack copies the device contents of m into host memory through a
// staging buffer. Must hold d.mu.
func (d *Driver) readBack(m *memory) error {
	b := d.buffers[m.buffer]
	if b == nil {
		return fmt.Errorf("halgpu: read back: buffer %d: %w", m.buffer, driver.ErrInvalidHandle)
	}
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "halgpu_readback",
		Size:  b.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "halgpu_readback"})
	if err != nil {
		return fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.hal, staging, []hal.BufferCopy{{Size: b.size}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("halgpu: end encoding: %w", err)
	}
	value, err := d.submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.device.FreeCommandBuffer(cmd)
		return err
	}
	if err := d.waitValue(value, d.opts.readbackTimeout); err != nil {
		return err
	}
	if err := d.queue.ReadBuffer(staging, 0, m.host); err != nil {
		return fmt.Errorf("halgpu: read buffer: %w", err)
	}
	m.stale = false
	return nil
}

// UnmapMemory unmaps m. Coherent writes are uploaded.
func (d *Driver) UnmapMemory(h driver.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[h]
	if !ok || !m.mapped {
		return
	}
	m.mapped = false
	if m.dirty {
		d.upload(m, 0, uint64(len(m.host)))
		m.dirty = false
	}
}

// FlushMappedMemoryRanges uploads the ranges to the device.
func (d *Driver) FlushMappedMemoryRanges(ranges []driver.MappedMemoryRange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range ranges {
		m, ok := d.memories[r.Memory]
		if !ok {
			return fmt.Errorf("halgpu: flush memory %d: %w", r.Memory, driver.ErrInvalidHandle)
		}
		if !m.mapped {
			return fmt.Errorf("halgpu: flush memory %d: not mapped: %w", r.Memory, driver.ErrInvalidHandle)
		}
		size := r.Size
		if size == driver.WholeSize {
			size = uint64(len(m.host)) - min(r.Offset, uint64(len(m.host)))
		}
		if r.Offset+size > uint64(len(m.host)) {
			return fmt.Errorf("halgpu: flush memory %d: range out of bounds: %w", r.Memory, driver.ErrInvalidHandle)
		}
		d.upload(m, r.Offset, size)
	}
	return nil
}

// upload writes a host range of m to its buffer. Must hold d.mu.
func (d *Driver) upload(m *memory, offset, size uint64) {
	b, ok := d.buffers[m.buffer]
	if !ok || size == 0 {
		return
	}
	d.queue.WriteBuffer(b.hal, offset, m.host[offset:offset+size])
}

// syncCoherent uploads coherent host writes made while mapped, so that a
// following submission sees them. Must hold d.mu.
func (d *Driver) syncCoherent() {
	for _, m := range d.memories {
		if m.dirty {
			d.upload(m, 0, uint64(len(m.host)))
			if !m.mapped {
				m.dirty = false
			}
		}
	}
}
