// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

type commandPool struct {
	family  uint32
	buffers map[driver.CommandBuffer]struct{}
}

// commandBuffer records commands on the host. They are encoded into a hal
// command buffer at submission.
type commandBuffer struct {
	pool      driver.CommandPool
	recording bool
	cmds      []command
}

type command struct {
	barrier *barrierCmd
	clear   *clearCmd
	copy    *copyCmd
}

type barrierCmd struct {
	image    driver.Image
	old, new driver.ImageLayout
}

type clearCmd struct {
	image driver.Image
	color [4]float32
}

type copyCmd struct {
	src, dst driver.Buffer
	size     uint64
}

// usageFor maps an image layout to the hal texture usage it corresponds
// to.
func usageFor(l driver.ImageLayout) gputypes.TextureUsage {
	switch l {
	case driver.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case driver.LayoutColorAttachment:
		return gputypes.TextureUsageRenderAttachment
	case driver.LayoutTransferSrc, driver.LayoutPresentSrc:
		return gputypes.TextureUsageCopySrc
	case driver.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	case driver.LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	default:
		return 0
	}
}

// CreateCommandPool creates a command pool for family.
func (d *Driver) CreateCommandPool(family uint32) (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	if family != 0 {
		return 0, fmt.Errorf("halgpu: command pool family %d: %w", family, driver.ErrUnsupported)
	}
	h := driver.CommandPool(d.handle())
	d.pools[h] = &commandPool{family: family, buffers: make(map[driver.CommandBuffer]struct{})}
	return h, nil
}

// ResetCommandPool discards the commands of every buffer of pool.
func (d *Driver) ResetCommandPool(h driver.CommandPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[h]
	if !ok {
		return fmt.Errorf("halgpu: reset command pool %d: %w", h, driver.ErrInvalidHandle)
	}
	for cb := range p.buffers {
		c := d.cmdBuffers[cb]
		c.recording = false
		c.cmds = nil
	}
	return nil
}

// DestroyCommandPool destroys pool and its command buffers.
func (d *Driver) DestroyCommandPool(h driver.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[h]
	if !ok {
		return
	}
	for cb := range p.buffers {
		delete(d.cmdBuffers, cb)
	}
	delete(d.pools, h)
}

// AllocateCommandBuffer allocates a command buffer from pool.
func (d *Driver) AllocateCommandBuffer(h driver.CommandPool) (driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[h]
	if !ok {
		return 0, fmt.Errorf("halgpu: allocate command buffer: pool %d: %w", h, driver.ErrInvalidHandle)
	}
	cb := driver.CommandBuffer(d.handle())
	d.cmdBuffers[cb] = &commandBuffer{pool: h}
	p.buffers[cb] = struct{}{}
	return cb, nil
}

// FreeCommandBuffer frees cb.
func (d *Driver) FreeCommandBuffer(h driver.CommandPool, cb driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pools[h]; ok {
		delete(p.buffers, cb)
	}
	delete(d.cmdBuffers, cb)
}

// BeginCommandBuffer starts recording. Previous contents are discarded.
func (d *Driver) BeginCommandBuffer(h driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmdBuffers[h]
	if !ok {
		return fmt.Errorf("halgpu: begin command buffer %d: %w", h, driver.ErrInvalidHandle)
	}
	if cb.recording {
		return fmt.Errorf("halgpu: command buffer %d is recording: %w", h, driver.ErrInvalidHandle)
	}
	cb.recording = true
	cb.cmds = cb.cmds[:0]
	return nil
}

// EndCommandBuffer ends recording.
func (d *Driver) EndCommandBuffer(h driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmdBuffers[h]
	if !ok || !cb.recording {
		return fmt.Errorf("halgpu: end command buffer %d: %w", h, driver.ErrInvalidHandle)
	}
	cb.recording = false
	return nil
}

// record appends c to cb if it is recording. Must hold d.mu.
func (d *Driver) record(h driver.CommandBuffer, c command) {
	cb, ok := d.cmdBuffers[h]
	if !ok || !cb.recording {
		slogger().Warn("halgpu: command recorded outside Begin/End", "command_buffer", h)
		return
	}
	cb.cmds = append(cb.cmds, c)
}

// CmdImageBarrier records a layout transition.
func (d *Driver) CmdImageBarrier(cb driver.CommandBuffer, image driver.Image, oldLayout, newLayout driver.ImageLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(cb, command{barrier: &barrierCmd{image: image, old: oldLayout, new: newLayout}})
}

// CmdClearColorImage records a clear of image, which must be in the
// TransferDst layout.
func (d *Driver) CmdClearColorImage(cb driver.CommandBuffer, image driver.Image, color [4]float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(cb, command{clear: &clearCmd{image: image, color: color}})
}

// CmdCopyBuffer records a buffer copy.
func (d *Driver) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(cb, command{copy: &copyCmd{src: src, dst: dst, size: size}})
}

// QueueSubmit encodes the command buffers of every batch into hal command
// buffers and submits them on the timeline.
func (d *Driver) QueueSubmit(q driver.Queue, submits []driver.SubmitInfo, f driver.Fence) error {
	if err := checkQueue(q); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrDeviceLost
	}
	d.syncCoherent()

	var cmds []hal.CommandBuffer
	free := func() {
		for _, c := range cmds {
			d.device.FreeCommandBuffer(c)
		}
	}
	for _, s := range submits {
		if err := d.wait("submit", s.WaitSemaphores); err != nil {
			free()
			return err
		}
		for _, h := range s.CommandBuffers {
			cb, ok := d.cmdBuffers[h]
			if !ok || cb.recording {
				free()
				return fmt.Errorf("halgpu: submit command buffer %d: %w", h, driver.ErrInvalidHandle)
			}
			c, err := d.encode(h, cb)
			if err != nil {
				free()
				return err
			}
			cmds = append(cmds, c)
		}
	}
	value, err := d.submit(cmds)
	if err != nil {
		free()
		return err
	}
	for _, s := range submits {
		if err := d.signal(s.SignalSemaphores); err != nil {
			return err
		}
	}
	return d.attach(f, value)
}

// encode translates the recorded commands of cb into a hal command buffer.
// Must hold d.mu.
func (d *Driver) encode(h driver.CommandBuffer, cb *commandBuffer) (hal.CommandBuffer, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: fmt.Sprintf("command_buffer_%d", h),
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(fmt.Sprintf("command_buffer_%d", h)); err != nil {
		return nil, fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	for _, c := range cb.cmds {
		switch {
		case c.barrier != nil:
			img, ok := d.images[c.barrier.image]
			if !ok {
				encoder.DiscardEncoding()
				return nil, fmt.Errorf("halgpu: barrier: image %d: %w", c.barrier.image, driver.ErrInvalidHandle)
			}
			transition(encoder, img.tex, usageFor(c.barrier.old), usageFor(c.barrier.new))
			img.layout = c.barrier.new
		case c.clear != nil:
			img, ok := d.images[c.clear.image]
			if !ok {
				encoder.DiscardEncoding()
				return nil, fmt.Errorf("halgpu: clear: image %d: %w", c.clear.image, driver.ErrInvalidHandle)
			}
			transition(encoder, img.tex, gputypes.TextureUsageCopyDst, gputypes.TextureUsageRenderAttachment)
			col := c.clear.color
			rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
				Label: "halgpu_clear",
				ColorAttachments: []hal.RenderPassColorAttachment{{
					View:       img.target,
					LoadOp:     gputypes.LoadOpClear,
					StoreOp:    gputypes.StoreOpStore,
					ClearValue: gputypes.Color{R: float64(col[0]), G: float64(col[1]), B: float64(col[2]), A: float64(col[3])},
				}},
			})
			rp.End()
			transition(encoder, img.tex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopyDst)
		case c.copy != nil:
			src, sok := d.buffers[c.copy.src]
			dst, dok := d.buffers[c.copy.dst]
			if !sok || !dok {
				encoder.DiscardEncoding()
				return nil, fmt.Errorf("halgpu: copy: buffer %d or %d: %w", c.copy.src, c.copy.dst, driver.ErrInvalidHandle)
			}
			encoder.CopyBufferToBuffer(src.hal, dst.hal, []hal.BufferCopy{{Size: c.copy.size}})
			if m, ok := d.memories[dst.mem]; ok {
				m.stale = true
			}
		}
	}
	return encoder.EndEncoding()
}

func transition(encoder hal.CommandEncoder, tex hal.Texture, from, to gputypes.TextureUsage) {
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: from,
			NewUsage: to,
		},
	}})
}
