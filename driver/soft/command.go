// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
)

// cbState is the lifecycle state of a command buffer.
type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
)

// commandKind identifies a recorded command.
type commandKind int

const (
	cmdBarrier commandKind = iota
	cmdClear
	cmdCopy
)

// command is one recorded command.
type command struct {
	kind      commandKind
	image     driver.Image
	oldLayout driver.ImageLayout
	newLayout driver.ImageLayout
	color     [4]float32
	src, dst  driver.Buffer
	size      uint64
}

type commandPool struct {
	family  uint32
	buffers map[driver.CommandBuffer]struct{}
}

type commandBuffer struct {
	pool    driver.CommandPool
	state   cbState
	cmds    []command
	pending int // queued submissions that execute it
}

// CreateCommandPool creates a pool for command buffers submitted to family.
func (d *Driver) CreateCommandPool(family uint32) (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	if _, ok := d.queues[family]; !ok {
		return 0, fmt.Errorf("soft: create command pool: family %d: %w", family, driver.ErrInvalidHandle)
	}
	h := driver.CommandPool(d.handle())
	d.pools[h] = &commandPool{family: family, buffers: make(map[driver.CommandBuffer]struct{})}
	return h, nil
}

// ResetCommandPool returns every command buffer of pool to the initial
// state. Resetting while a buffer is pending execution is a validation
// error.
func (d *Driver) ResetCommandPool(pool driver.CommandPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		return fmt.Errorf("soft: reset command pool %d: %w", pool, driver.ErrInvalidHandle)
	}
	for h := range p.buffers {
		cb := d.cmdBuffers[h]
		if cb.pending > 0 {
			d.violate("reset command pool %d: command buffer %d is pending execution", pool, h)
		}
		cb.state = cbInitial
		cb.cmds = nil
	}
	return nil
}

// DestroyCommandPool destroys pool and frees its command buffers.
func (d *Driver) DestroyCommandPool(pool driver.CommandPool) {
	if pool == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		d.violate("destroy command pool %d: invalid handle", pool)
		return
	}
	for h := range p.buffers {
		if d.cmdBuffers[h].pending > 0 {
			d.violate("destroy command pool %d: command buffer %d is pending execution", pool, h)
		}
		delete(d.cmdBuffers, h)
	}
	delete(d.pools, pool)
}

// AllocateCommandBuffer allocates a primary command buffer from pool.
func (d *Driver) AllocateCommandBuffer(pool driver.CommandPool) (driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[pool]
	if !ok {
		return 0, fmt.Errorf("soft: allocate command buffer: pool %d: %w", pool, driver.ErrInvalidHandle)
	}
	h := driver.CommandBuffer(d.handle())
	d.cmdBuffers[h] = &commandBuffer{pool: pool}
	p.buffers[h] = struct{}{}
	return h, nil
}

// FreeCommandBuffer returns cb to pool.
func (d *Driver) FreeCommandBuffer(pool driver.CommandPool, cb driver.CommandBuffer) {
	if cb == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cmdBuffers[cb]
	if !ok || c.pool != pool {
		d.violate("free command buffer %d: not allocated from pool %d", cb, pool)
		return
	}
	if c.pending > 0 {
		d.violate("free command buffer %d: pending execution", cb)
	}
	delete(d.pools[pool].buffers, cb)
	delete(d.cmdBuffers, cb)
}

// BeginCommandBuffer starts recording, discarding previous contents.
func (d *Driver) BeginCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cmdBuffers[cb]
	if !ok {
		return fmt.Errorf("soft: begin command buffer %d: %w", cb, driver.ErrInvalidHandle)
	}
	if c.state == cbRecording {
		d.violate("begin command buffer %d: already recording", cb)
	}
	if c.pending > 0 {
		d.violate("begin command buffer %d: pending execution", cb)
	}
	c.state = cbRecording
	c.cmds = c.cmds[:0]
	return nil
}

// EndCommandBuffer finishes recording.
func (d *Driver) EndCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cmdBuffers[cb]
	if !ok {
		return fmt.Errorf("soft: end command buffer %d: %w", cb, driver.ErrInvalidHandle)
	}
	if c.state != cbRecording {
		d.violate("end command buffer %d: not recording", cb)
		return fmt.Errorf("soft: end command buffer %d: not recording: %w", cb, driver.ErrUnsupported)
	}
	c.state = cbExecutable
	return nil
}

// record appends cmd to cb if it is recording. Must hold d.mu.
func (d *Driver) record(cb driver.CommandBuffer, name string, cmd command) {
	c, ok := d.cmdBuffers[cb]
	if !ok {
		d.violate("%s: command buffer %d: invalid handle", name, cb)
		return
	}
	if c.state != cbRecording {
		d.violate("%s: command buffer %d is not recording", name, cb)
		return
	}
	c.cmds = append(c.cmds, cmd)
}

// CmdImageBarrier records a layout transition.
func (d *Driver) CmdImageBarrier(cb driver.CommandBuffer, image driver.Image, oldLayout, newLayout driver.ImageLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[image]; !ok {
		d.violate("image barrier: image %d: invalid handle", image)
		return
	}
	if newLayout == driver.LayoutUndefined {
		d.violate("image barrier: image %d: transition to Undefined", image)
		return
	}
	d.record(cb, "image barrier", command{kind: cmdBarrier, image: image, oldLayout: oldLayout, newLayout: newLayout})
}

// CmdClearColorImage records a clear of image.
func (d *Driver) CmdClearColorImage(cb driver.CommandBuffer, image driver.Image, color [4]float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[image]; !ok {
		d.violate("clear image: image %d: invalid handle", image)
		return
	}
	d.record(cb, "clear image", command{kind: cmdClear, image: image, color: color})
}

// CmdCopyBuffer records a buffer to buffer copy.
func (d *Driver) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok1 := d.buffers[src]
	t, ok2 := d.buffers[dst]
	if !ok1 || !ok2 {
		d.violate("copy buffer: %d -> %d: invalid handle", src, dst)
		return
	}
	if size > s.size || size > t.size {
		d.violate("copy buffer: %d bytes exceed source (%d) or destination (%d)", size, s.size, t.size)
		return
	}
	d.record(cb, "copy buffer", command{kind: cmdCopy, src: src, dst: dst, size: size})
}
