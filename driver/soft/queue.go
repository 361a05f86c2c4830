// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"

	"github.com/gogpu/rhi/driver"
)

// queue is the timeline of one queue family. Operations execute in
// submission order on a dedicated goroutine.
type queue struct {
	family uint32
	handle uint64
	ops    []*queueOp
}

// queueOp is a submission batch or a presentation request.
type queueOp struct {
	wait    []driver.Semaphore
	signal  []driver.Semaphore
	fence   driver.Fence
	cbs     []driver.CommandBuffer
	buffers []driver.Buffer // buffers referenced by recorded copies
	present *driver.PresentInfo
}

// run executes the operations of q until the driver closes.
func (d *Driver) run(q *queue) {
	defer d.wg.Done()
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		for len(q.ops) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(q.ops) == 0 {
			return
		}
		op := q.ops[0]
		if d.opts.latency > 0 {
			d.mu.Unlock()
			time.Sleep(d.opts.latency)
			d.mu.Lock()
		}
		for _, s := range op.wait {
			for {
				sem, ok := d.semaphores[s]
				if !ok || sem.signaled || d.closed {
					break
				}
				d.cond.Wait()
			}
			if sem, ok := d.semaphores[s]; ok {
				sem.signaled = false
				sem.waiters--
			}
		}
		if op.present != nil {
			d.executePresent(op.present)
		} else {
			d.executeSubmit(op)
		}
		for _, s := range op.signal {
			if sem, ok := d.semaphores[s]; ok {
				sem.signaled = true
				sem.pending--
			}
		}
		if fc, ok := d.fences[op.fence]; ok {
			fc.signaled = true
			fc.pending--
		}
		q.ops = q.ops[1:]
		d.cond.Broadcast()
	}
}

// enqueueWaits validates the wait semaphores of an operation and returns
// the ones that can be waited on. Must hold d.mu.
func (d *Driver) enqueueWaits(name string, sems []driver.Semaphore) []driver.Semaphore {
	var out []driver.Semaphore
	for _, s := range sems {
		sem, ok := d.semaphores[s]
		if !ok {
			d.violate("%s: wait semaphore %d: invalid handle", name, s)
			continue
		}
		if !sem.signaled && sem.pending == 0 {
			d.violate("%s: waits on semaphore %d that has no pending signal", name, s)
			continue
		}
		if sem.waiters > 0 {
			d.violate("%s: semaphore %d is already waited on", name, s)
			continue
		}
		sem.waiters++
		out = append(out, s)
	}
	return out
}

// enqueueSignals validates the signal semaphores of an operation.
// Must hold d.mu.
func (d *Driver) enqueueSignals(name string, sems []driver.Semaphore) []driver.Semaphore {
	var out []driver.Semaphore
	for _, s := range sems {
		sem, ok := d.semaphores[s]
		if !ok {
			d.violate("%s: signal semaphore %d: invalid handle", name, s)
			continue
		}
		if sem.signaled || sem.pending > 0 {
			d.violate("%s: signals semaphore %d that is already signaled", name, s)
		}
		sem.pending++
		out = append(out, s)
	}
	return out
}

// QueueSubmit queues command buffer batches for execution.
func (d *Driver) QueueSubmit(q driver.Queue, submits []driver.SubmitInfo, f driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrDeviceLost
	}
	tl, err := d.lookupQueue(q)
	if err != nil {
		return err
	}
	if f != 0 {
		fc, ok := d.fences[f]
		if !ok {
			return fmt.Errorf("soft: queue submit: fence %d: %w", f, driver.ErrInvalidHandle)
		}
		if fc.signaled || fc.pending > 0 {
			d.violate("queue submit: fence %d is already signaled", f)
		}
	}
	ops := make([]*queueOp, 0, max(len(submits), 1))
	for _, s := range submits {
		op := &queueOp{}
		for _, h := range s.CommandBuffers {
			cb, ok := d.cmdBuffers[h]
			if !ok {
				d.violate("queue submit: command buffer %d: invalid handle", h)
				continue
			}
			if cb.state != cbExecutable {
				d.violate("queue submit: command buffer %d is not executable", h)
				continue
			}
			if pool := d.pools[cb.pool]; pool.family != tl.family {
				d.violate("queue submit: command buffer %d from family %d submitted to family %d",
					h, pool.family, tl.family)
			}
			cb.pending++
			op.cbs = append(op.cbs, h)
			for _, c := range cb.cmds {
				if c.kind == cmdCopy {
					op.buffers = append(op.buffers, c.src, c.dst)
				}
			}
		}
		for _, b := range op.buffers {
			if buf, ok := d.buffers[b]; ok {
				buf.inflight++
			}
		}
		op.wait = d.enqueueWaits("queue submit", s.WaitSemaphores)
		op.signal = d.enqueueSignals("queue submit", s.SignalSemaphores)
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		ops = append(ops, &queueOp{})
	}
	if fc, ok := d.fences[f]; ok {
		ops[len(ops)-1].fence = f
		fc.pending++
	}
	tl.ops = append(tl.ops, ops...)
	d.cond.Broadcast()
	return nil
}

// executeSubmit runs the command buffers of op. Must hold d.mu.
func (d *Driver) executeSubmit(op *queueOp) {
	for _, h := range op.cbs {
		cb, ok := d.cmdBuffers[h]
		if !ok {
			d.violate("execute: command buffer %d freed while pending", h)
			continue
		}
		for _, c := range cb.cmds {
			d.execute(c)
		}
		cb.pending--
	}
	for _, b := range op.buffers {
		if buf, ok := d.buffers[b]; ok {
			buf.inflight--
		}
	}
}

// execute runs a single command. Must hold d.mu.
func (d *Driver) execute(c command) {
	switch c.kind {
	case cmdBarrier:
		img, ok := d.images[c.image]
		if !ok {
			d.violate("execute barrier: image %d destroyed while in use", c.image)
			return
		}
		if c.oldLayout != driver.LayoutUndefined && c.oldLayout != img.layout {
			d.violate("execute barrier: image %d is in layout %v, barrier expects %v",
				c.image, img.layout, c.oldLayout)
		}
		img.layout = c.newLayout
	case cmdClear:
		img, ok := d.images[c.image]
		if !ok {
			d.violate("execute clear: image %d destroyed while in use", c.image)
			return
		}
		if img.layout != driver.LayoutTransferDst && img.layout != driver.LayoutGeneral {
			d.violate("execute clear: image %d is in layout %v", c.image, img.layout)
		}
		draw.Draw(img.pix, img.pix.Bounds(), image.NewUniform(toRGBA(c.color)), image.Point{}, draw.Src)
	case cmdCopy:
		src, ok1 := d.buffers[c.src]
		dst, ok2 := d.buffers[c.dst]
		if !ok1 || !ok2 {
			d.violate("execute copy: buffer %d or %d destroyed while in use", c.src, c.dst)
			return
		}
		sm, ok1 := d.memories[src.mem]
		dm, ok2 := d.memories[dst.mem]
		if !ok1 || !ok2 {
			d.violate("execute copy: memory of buffer %d or %d freed while in use", c.src, c.dst)
			return
		}
		copy(dm.device[:c.size], sm.device[:c.size])
	}
}

// toRGBA converts a normalized color to 8-bit RGBA.
func toRGBA(c [4]float32) color.RGBA {
	ch := func(v float32) uint8 {
		v = min(max(v, 0), 1)
		return uint8(v*255 + 0.5)
	}
	return color.RGBA{R: ch(c[0]), G: ch(c[1]), B: ch(c[2]), A: ch(c[3])}
}
