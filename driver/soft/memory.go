// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi/driver"
)

// buffer is a buffer object. Its storage comes from a bound memory.
type buffer struct {
	label    string
	size     uint64
	usage    gputypes.BufferUsage
	mem      driver.Memory
	inflight int // queued copies that reference the buffer
}

// memory is a device allocation.
//
// device is what queue operations read and write. host is what MapMemory
// exposes. For coherent memory both are the same slice; otherwise host
// writes reach the device only on flush.
type memory struct {
	props    driver.MemoryProperty
	buffer   driver.Buffer
	device   []byte
	host     []byte
	coherent bool
	mapped   bool
}

// CreateBuffer creates a buffer without storage.
func (d *Driver) CreateBuffer(desc *driver.BufferDescriptor) (driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	if desc.Size == 0 {
		return 0, fmt.Errorf("soft: create buffer %q: zero size: %w", desc.Label, driver.ErrUnsupported)
	}
	if desc.Size > d.opts.limits.MaxBufferSize {
		return 0, fmt.Errorf("soft: create buffer %q: %d bytes: %w", desc.Label, desc.Size, driver.ErrNoDeviceMemory)
	}
	h := driver.Buffer(d.handle())
	d.buffers[h] = &buffer{label: desc.Label, size: desc.Size, usage: desc.Usage}
	return h, nil
}

// DestroyBuffer destroys b. Destroying a buffer that queued work still
// references is a validation error.
func (d *Driver) DestroyBuffer(b driver.Buffer) {
	if b == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		d.violate("destroy buffer %d: invalid handle", b)
		return
	}
	if buf.inflight > 0 {
		d.violate("destroy buffer %d (%q): in use by %d pending queue operation(s)", b, buf.label, buf.inflight)
	}
	delete(d.buffers, b)
}

// AllocateMemory allocates storage for b and binds it.
func (d *Driver) AllocateMemory(b driver.Buffer, props driver.MemoryProperty) (driver.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	buf, ok := d.buffers[b]
	if !ok {
		return 0, fmt.Errorf("soft: allocate memory for buffer %d: %w", b, driver.ErrInvalidHandle)
	}
	if buf.mem != 0 {
		d.violate("allocate memory for buffer %d: already bound to memory %d", b, buf.mem)
		return 0, fmt.Errorf("soft: allocate memory for buffer %d: already bound: %w", b, driver.ErrUnsupported)
	}
	coherent := props.Has(driver.MemoryHostCoherent)
	if coherent && d.opts.noCoherentMemory {
		return 0, fmt.Errorf("soft: allocate memory %v: no coherent memory type: %w", props, driver.ErrUnsupported)
	}
	m := &memory{
		props:    props,
		buffer:   b,
		device:   make([]byte, buf.size),
		coherent: coherent,
	}
	if coherent {
		m.host = m.device
	} else {
		m.host = make([]byte, buf.size)
	}
	h := driver.Memory(d.handle())
	d.memories[h] = m
	buf.mem = h
	return h, nil
}

// FreeMemory frees m, implicitly unmapping it.
func (d *Driver) FreeMemory(m driver.Memory) {
	if m == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories[m]
	if !ok {
		d.violate("free memory %d: invalid handle", m)
		return
	}
	if buf, ok := d.buffers[mem.buffer]; ok {
		if buf.inflight > 0 {
			d.violate("free memory %d: bound buffer %d in use by pending queue operations", m, mem.buffer)
		}
		buf.mem = 0
	}
	delete(d.memories, m)
}

// MapMemory maps a range of m. Memory must be host visible and not mapped.
func (d *Driver) MapMemory(m driver.Memory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories[m]
	if !ok {
		return nil, fmt.Errorf("soft: map memory %d: %w", m, driver.ErrInvalidHandle)
	}
	if !mem.props.Has(driver.MemoryHostVisible) {
		return nil, fmt.Errorf("soft: map memory %d: not host visible: %w", m, driver.ErrUnsupported)
	}
	if mem.mapped {
		d.violate("map memory %d: already mapped", m)
		return nil, fmt.Errorf("soft: map memory %d: already mapped: %w", m, driver.ErrUnsupported)
	}
	total := uint64(len(mem.host))
	if size == driver.WholeSize {
		size = total - min(offset, total)
	}
	if offset > total || size > total-offset {
		return nil, fmt.Errorf("soft: map memory %d: range [%d,+%d) exceeds %d bytes: %w",
			m, offset, size, total, driver.ErrUnsupported)
	}
	if !mem.coherent {
		// Device writes become visible to the host on map.
		copy(mem.host, mem.device)
	}
	mem.mapped = true
	return mem.host[offset : offset+size : offset+size], nil
}

// UnmapMemory unmaps m. Writes to non-coherent memory that were not
// flushed are not guaranteed to reach the device.
func (d *Driver) UnmapMemory(m driver.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories[m]
	if !ok {
		d.violate("unmap memory %d: invalid handle", m)
		return
	}
	if !mem.mapped {
		d.violate("unmap memory %d: not mapped", m)
		return
	}
	mem.mapped = false
}

// FlushMappedMemoryRanges makes host writes visible to the device.
func (d *Driver) FlushMappedMemoryRanges(ranges []driver.MappedMemoryRange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range ranges {
		mem, ok := d.memories[r.Memory]
		if !ok {
			return fmt.Errorf("soft: flush memory %d: %w", r.Memory, driver.ErrInvalidHandle)
		}
		if !mem.mapped {
			d.violate("flush memory %d: not mapped", r.Memory)
		}
		total := uint64(len(mem.host))
		end := total
		if r.Size != driver.WholeSize {
			end = min(r.Offset+r.Size, total)
		}
		if r.Offset < end {
			copy(mem.device[r.Offset:end], mem.host[r.Offset:end])
		}
	}
	return nil
}

// BufferContents returns a copy of the device-side contents of b, as a
// queue operation would observe them.
func (d *Driver) BufferContents(b driver.Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		return nil, fmt.Errorf("soft: buffer %d: %w", b, driver.ErrInvalidHandle)
	}
	mem, ok := d.memories[buf.mem]
	if !ok {
		return nil, fmt.Errorf("soft: buffer %d: no memory bound: %w", b, driver.ErrInvalidHandle)
	}
	return append([]byte(nil), mem.device...), nil
}
