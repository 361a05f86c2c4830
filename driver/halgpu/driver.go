// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halgpu implements driver.Device on top of gogpu/wgpu/hal.
//
// The hal layer exposes devices, queues, textures, buffers, command
// encoders and timeline fences but no window-system integration, so
// presentation is headless: swapchain images are hal textures and
// QueuePresent reads the presented texture back into an offscreen Window.
// Semaphores are tracked on the host; hal executes the single queue in
// submission order, which already orders every wait after its signal.
//
// Open uses the Vulkan backend, OpenNoop the noop backend for tests, and
// FromProvider shares the device of a gpucontext.DeviceProvider.
package halgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rhi/driver"
)

// queueHandle is the handle of the only hal queue. Every queue kind maps
// to it in family 0.
const queueHandle = 1

// Driver is a driver.Device backed by a hal device and queue.
type Driver struct {
	mu   sync.Mutex
	cond *sync.Cond

	opts     options
	name     string
	instance hal.Instance // nil when the device is borrowed
	device   hal.Device
	queue    hal.Queue
	owned    bool
	closed   bool
	next     uint64

	// timeline is signaled with increasing values, one per submission.
	timeline  hal.Fence
	submitted uint64
	completed uint64
	retired   []retiredBuffers

	windows    map[uintptr]*Window
	surfaces   map[driver.Surface]*surface
	swapchains map[driver.Swapchain]*swapchain
	images     map[driver.Image]*halImage
	views      map[driver.ImageView]*imageView
	semaphores map[driver.Semaphore]*semaphore
	fences     map[driver.Fence]*fence
	pools      map[driver.CommandPool]*commandPool
	cmdBuffers map[driver.CommandBuffer]*commandBuffer
	buffers    map[driver.Buffer]*buffer
	memories   map[driver.Memory]*memory
}

var _ driver.Device = (*Driver)(nil)

// retiredBuffers are hal command buffers freed once the timeline reaches
// value.
type retiredBuffers struct {
	value uint64
	cmds  []hal.CommandBuffer
}

// New wraps a hal device and queue that the caller owns. Destroy does not
// destroy them.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Driver, error) {
	if device == nil || queue == nil {
		return nil, errors.New("halgpu: nil device or queue")
	}
	return newDriver("hal", nil, device, queue, false, opts)
}

// OpenNoop opens a device on the noop backend. Every GPU operation
// succeeds without doing work, and presented frames read back as zeros.
func OpenNoop(opts ...Option) (*Driver, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("halgpu: create noop instance: %w", err)
	}
	return openAdapter(instance, opts)
}

// FromProvider shares the hal device of a gpucontext.DeviceProvider, such
// as a gogpu application. The provider keeps ownership of the device.
func FromProvider(p gpucontext.DeviceProvider, opts ...Option) (*Driver, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, errors.New("halgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("halgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("halgpu: provider HalQueue is not hal.Queue")
	}
	formats := append([]gputypes.TextureFormat{p.SurfaceFormat()}, defaultOptions().formats...)
	opts = append([]Option{WithSurfaceFormats(formats...)}, opts...)
	return newDriver("provider", nil, device, queue, false, opts)
}

// openAdapter opens the first discrete or integrated adapter of instance,
// falling back to the first adapter.
func openAdapter(instance hal.Instance, opts []Option) (*Driver, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("halgpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), o.limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}
	d, err := newDriver(selected.Info.Name, instance, openDev.Device, openDev.Queue, true, opts)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

func newDriver(name string, instance hal.Instance, device hal.Device, queue hal.Queue, owned bool, opts []Option) (*Driver, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	timeline, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("halgpu: create timeline fence: %w", err)
	}
	d := &Driver{
		opts:       o,
		name:       name,
		instance:   instance,
		device:     device,
		queue:      queue,
		owned:      owned,
		timeline:   timeline,
		windows:    make(map[uintptr]*Window),
		surfaces:   make(map[driver.Surface]*surface),
		swapchains: make(map[driver.Swapchain]*swapchain),
		images:     make(map[driver.Image]*halImage),
		views:      make(map[driver.ImageView]*imageView),
		semaphores: make(map[driver.Semaphore]*semaphore),
		fences:     make(map[driver.Fence]*fence),
		pools:      make(map[driver.CommandPool]*commandPool),
		cmdBuffers: make(map[driver.CommandBuffer]*commandBuffer),
		buffers:    make(map[driver.Buffer]*buffer),
		memories:   make(map[driver.Memory]*memory),
	}
	d.cond = sync.NewCond(&d.mu)
	slogger().Info("halgpu: device opened", "adapter", name, "owned", owned)
	return d, nil
}

// handle returns a new non-null handle. Must hold d.mu.
func (d *Driver) handle() uint64 {
	d.next++
	return d.next
}

// Name returns the adapter name.
func (d *Driver) Name() string { return d.name }

// Ready reports whether the device accepts work.
func (d *Driver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Limits returns the limits the device was opened with.
func (d *Driver) Limits() driver.Limits { return driver.LimitsFrom(d.opts.limits) }

// Queue returns the hal queue for every kind of work.
func (d *Driver) Queue(driver.QueueType) driver.Queue {
	return driver.Queue{Family: 0, Handle: queueHandle}
}

func checkQueue(q driver.Queue) error {
	if q.Handle != queueHandle {
		return fmt.Errorf("halgpu: queue %d: %w", q.Handle, driver.ErrInvalidHandle)
	}
	return nil
}

// submit submits cmds on the timeline and returns the value that signals
// their completion. Must hold d.mu.
func (d *Driver) submit(cmds []hal.CommandBuffer) (uint64, error) {
	value := d.submitted + 1
	if err := d.queue.Submit(cmds, d.timeline, value); err != nil {
		return 0, fmt.Errorf("halgpu: submit: %w", err)
	}
	d.submitted = value
	if len(cmds) > 0 {
		d.retired = append(d.retired, retiredBuffers{value: value, cmds: cmds})
	}
	return value, nil
}

// waitValue blocks until the timeline reaches value. d.mu is released
// during the wait. Must hold d.mu.
func (d *Driver) waitValue(value uint64, timeout time.Duration) error {
	if value <= d.completed {
		return nil
	}
	d.mu.Unlock()
	ok, err := d.device.Wait(d.timeline, value, timeout)
	d.mu.Lock()
	if err != nil {
		return fmt.Errorf("halgpu: wait: %w: %w", driver.ErrDeviceLost, err)
	}
	if !ok {
		return driver.ErrTimeout
	}
	d.complete(value)
	return nil
}

// complete records that the timeline reached value and frees the command
// buffers that finished. Must hold d.mu.
func (d *Driver) complete(value uint64) {
	if value <= d.completed {
		return
	}
	d.completed = value
	n := 0
	for _, r := range d.retired {
		if r.value > value {
			break
		}
		for _, cb := range r.cmds {
			d.device.FreeCommandBuffer(cb)
		}
		n++
	}
	d.retired = d.retired[n:]
	for _, f := range d.fences {
		if f.pending && f.value <= value {
			f.pending = false
			f.signaled = true
		}
	}
	d.cond.Broadcast()
}

// QueueWaitIdle waits for every submission to complete.
func (d *Driver) QueueWaitIdle(q driver.Queue) error {
	if err := checkQueue(q); err != nil {
		return err
	}
	return d.DeviceWaitIdle()
}

// DeviceWaitIdle waits for every submission to complete.
func (d *Driver) DeviceWaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrDeviceLost
	}
	return d.waitValue(d.submitted, driver.Infinite)
}

// Destroy waits for the device, releases every object still alive and,
// if the driver opened the device, the device and instance.
func (d *Driver) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if err := d.waitValue(d.submitted, driver.Infinite); err != nil {
		slogger().Warn("halgpu: destroy: wait idle", "err", err)
	}
	for _, r := range d.retired {
		for _, cb := range r.cmds {
			d.device.FreeCommandBuffer(cb)
		}
	}
	d.retired = nil
	if n := len(d.swapchains) + len(d.buffers) + len(d.views); n > 0 {
		slogger().Warn("halgpu: destroy: objects leaked", "swapchains", len(d.swapchains), "buffers", len(d.buffers), "views", len(d.views))
	}
	for h := range d.views {
		d.destroyImageView(h)
	}
	for h := range d.swapchains {
		d.destroySwapchain(h)
	}
	for h, b := range d.buffers {
		d.device.DestroyBuffer(b.hal)
		delete(d.buffers, h)
	}
	d.device.DestroyFence(d.timeline)
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.closed = true
	d.cond.Broadcast()
}

// Live returns the number of live objects by kind.
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
