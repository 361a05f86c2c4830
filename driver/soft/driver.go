// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements driver.Device on the CPU.
//
// The soft driver is the reference implementation of the driver contract.
// It models the parts of an explicit GPU API that presentation code gets
// wrong most often: a presentation engine that owns images between present
// and acquire, queue timelines that run asynchronously to the host, binary
// semaphores, fences and host-visible memory with optional non-coherence.
//
// Misuse that a real driver would leave undefined is recorded instead of
// crashing. Tests call Violations to assert that a sequence of calls is
// valid:
//
//	d := soft.New()
//	defer d.Destroy()
//	// ... drive rhi on top of d ...
//	if v := d.Violations(); len(v) != 0 {
//		t.Fatalf("validation: %v", v)
//	}
package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/rhi/driver"
)

// Driver is a software driver.Device.
//
// All state is guarded by a single mutex. Queue timelines run on their own
// goroutines and coordinate with the host through a shared condition
// variable, so every state change broadcasts.
type Driver struct {
	mu   sync.Mutex
	cond *sync.Cond
	wg   sync.WaitGroup

	opts   options
	closed bool
	next   uint64

	windows    map[uintptr]*Window
	surfaces   map[driver.Surface]*surface
	swapchains map[driver.Swapchain]*swapchain
	images     map[driver.Image]*softImage
	views      map[driver.ImageView]*imageView
	semaphores map[driver.Semaphore]*semaphore
	fences     map[driver.Fence]*fence
	pools      map[driver.CommandPool]*commandPool
	cmdBuffers map[driver.CommandBuffer]*commandBuffer
	buffers    map[driver.Buffer]*buffer
	memories   map[driver.Memory]*memory

	// queues indexed by family. Queue kinds that share a family share
	// the timeline.
	queues map[uint32]*queue

	violations []string
}

var _ driver.Device = (*Driver)(nil)

// New creates a software driver.
func New(opts ...Option) *Driver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Driver{
		opts:       o,
		windows:    make(map[uintptr]*Window),
		surfaces:   make(map[driver.Surface]*surface),
		swapchains: make(map[driver.Swapchain]*swapchain),
		images:     make(map[driver.Image]*softImage),
		views:      make(map[driver.ImageView]*imageView),
		semaphores: make(map[driver.Semaphore]*semaphore),
		fences:     make(map[driver.Fence]*fence),
		pools:      make(map[driver.CommandPool]*commandPool),
		cmdBuffers: make(map[driver.CommandBuffer]*commandBuffer),
		buffers:    make(map[driver.Buffer]*buffer),
		memories:   make(map[driver.Memory]*memory),
		queues:     make(map[uint32]*queue),
	}
	d.cond = sync.NewCond(&d.mu)
	if o.logger != nil {
		d.SetLogger(o.logger)
	}
	for _, family := range []uint32{o.graphicsFamily, o.computeFamily, o.presentFamily} {
		if _, ok := d.queues[family]; ok {
			continue
		}
		q := &queue{family: family, handle: uint64(family) + 1}
		d.queues[family] = q
		d.wg.Add(1)
		go d.run(q)
	}
	slogger().Debug("soft: device created",
		"name", o.name,
		"queues", len(d.queues))
	return d
}

// handle returns a fresh non-null handle value. Must hold d.mu.
func (d *Driver) handle() uint64 {
	d.next++
	return d.next
}

// violate records a validation error. Must hold d.mu.
func (d *Driver) violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.violations = append(d.violations, msg)
	slogger().Warn("soft: validation", "msg", msg)
}

// Violations returns the validation errors recorded so far.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Name returns the adapter name.
func (d *Driver) Name() string { return d.opts.name }

// Ready reports whether the device accepts work.
func (d *Driver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Limits returns the configured device limits.
func (d *Driver) Limits() driver.Limits { return d.opts.limits }

// Queue returns the queue used for kind.
func (d *Driver) Queue(kind driver.QueueType) driver.Queue {
	var family uint32
	switch kind {
	case driver.QueueGraphics:
		family = d.opts.graphicsFamily
	case driver.QueueCompute:
		family = d.opts.computeFamily
	case driver.QueuePresent:
		family = d.opts.presentFamily
	default:
		return driver.Queue{}
	}
	return driver.Queue{Family: family, Handle: uint64(family) + 1}
}

// lookupQueue resolves q to its timeline. Must hold d.mu.
func (d *Driver) lookupQueue(q driver.Queue) (*queue, error) {
	tl, ok := d.queues[q.Family]
	if !ok || tl.handle != q.Handle {
		return nil, fmt.Errorf("soft: queue %d/%d: %w", q.Family, q.Handle, driver.ErrInvalidHandle)
	}
	return tl, nil
}

// QueueWaitIdle blocks until every operation submitted to q has executed.
func (d *Driver) QueueWaitIdle(q driver.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tl, err := d.lookupQueue(q)
	if err != nil {
		return err
	}
	for len(tl.ops) > 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return driver.ErrDeviceLost
	}
	return nil
}

// DeviceWaitIdle blocks until every queue is idle.
func (d *Driver) DeviceWaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for !d.closed && !d.idle() {
		d.cond.Wait()
	}
	if d.closed {
		return driver.ErrDeviceLost
	}
	return nil
}

// idle reports whether no queue has pending work. Must hold d.mu.
func (d *Driver) idle() bool {
	for _, q := range d.queues {
		if len(q.ops) > 0 {
			return false
		}
	}
	return true
}

// Destroy drains the queues and stops the timelines. Objects still alive
// are reported as leaks.
func (d *Driver) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	for !d.idle() {
		d.cond.Wait()
	}
	d.reportLeaks()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
	slogger().Debug("soft: device destroyed", "name", d.opts.name)
}

// reportLeaks records objects that outlive the device. Must hold d.mu.
func (d *Driver) reportLeaks() {
	leaks := map[string]int{
		"surface":        len(d.surfaces),
		"swapchain":      len(d.swapchains),
		"image view":     len(d.views),
		"semaphore":      len(d.semaphores),
		"fence":          len(d.fences),
		"command pool":   len(d.pools),
		"buffer":         len(d.buffers),
		"device memory":  len(d.memories),
		"command buffer": len(d.cmdBuffers),
	}
	for _, kind := range []string{
		"surface", "swapchain", "image view", "semaphore", "fence",
		"command pool", "command buffer", "buffer", "device memory",
	} {
		if n := leaks[kind]; n > 0 {
			d.violate("destroy device: %d %s object(s) leaked", n, kind)
		}
	}
}

// Live returns the number of live objects of every kind, keyed by kind.
func (d *Driver) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]int{
		"surface":        len(d.surfaces),
		"swapchain":      len(d.swapchains),
		"image":          len(d.images),
		"image view":     len(d.views),
		"semaphore":      len(d.semaphores),
		"fence":          len(d.fences),
		"command pool":   len(d.pools),
		"command buffer": len(d.cmdBuffers),
		"buffer":         len(d.buffers),
		"device memory":  len(d.memories),
	}
}

// waitUntil waits on d.cond until done returns true, the driver closes or
// the timeout expires. It reports whether done became true. Must hold d.mu.
func (d *Driver) waitUntil(timeout time.Duration, done func() bool) bool {
	if done() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	expired := false
	if timeout != driver.Infinite {
		t := time.AfterFunc(timeout, func() {
			d.mu.Lock()
			expired = true
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		defer t.Stop()
	}
	for !done() {
		if expired || d.closed {
			return false
		}
		d.cond.Wait()
	}
	return true
}
