// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/rhi/driver"
)

// Device is a shared handle to a driver device.
//
// A Device does not own the driver. It is passed to every SwapChain and
// ConstantBuffer that needs it and must outlive all of them.
type Device struct {
	drv    driver.Device
	logger *slog.Logger
}

// NewDevice wraps drv. The current package logger is propagated to drv
// if it implements SetLogger(*slog.Logger).
func NewDevice(drv driver.Device, opts ...DeviceOption) (*Device, error) {
	if drv == nil {
		return nil, fmt.Errorf("%w: nil driver", ErrConfiguration)
	}
	var o deviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{drv: drv, logger: o.logger}
	registerDriver(d)
	l := d.Logger()
	l.Debug("rhi: device created",
		"adapter", drv.Name(),
		"graphics_family", d.GraphicsQueue().Family,
		"present_family", d.PresentQueue().Family,
		"compute_family", d.ComputeQueue().Family)
	return d, nil
}

// Release stops logger propagation to the driver. It does not destroy the
// driver, which the caller owns.
func (d *Device) Release() {
	if d != nil {
		unregisterDriver(d)
	}
}

// Logger returns the device logger, falling back to the package logger.
func (d *Device) Logger() *slog.Logger {
	if d != nil && d.logger != nil {
		return d.logger
	}
	return Logger()
}

// IsReady reports whether the logical device exists and accepts work.
func (d *Device) IsReady() bool {
	return d != nil && d.drv != nil && d.drv.Ready()
}

// ValidateResolution reports whether a width by height image can be
// created on this device. Zero-area resolutions are rejected.
func (d *Device) ValidateResolution(width, height uint32) bool {
	if width == 0 || height == 0 {
		return false
	}
	maxDim := d.drv.Limits().MaxImageDimension2D
	return width <= maxDim && height <= maxDim
}

// GraphicsQueue returns the graphics queue.
func (d *Device) GraphicsQueue() driver.Queue { return d.drv.Queue(driver.QueueGraphics) }

// PresentQueue returns the queue used for presentation.
func (d *Device) PresentQueue() driver.Queue { return d.drv.Queue(driver.QueuePresent) }

// ComputeQueue returns the compute queue.
func (d *Device) ComputeQueue() driver.Queue { return d.drv.Queue(driver.QueueCompute) }

// Driver returns the logical device.
func (d *Device) Driver() driver.Device { return d.drv }

// WaitIdle blocks until q has executed all submitted work.
// The wait is unbounded.
func (d *Device) WaitIdle(q driver.Queue) error {
	return driverCall("QueueWaitIdle", d.drv.QueueWaitIdle(q))
}

// QueuePresent presents image index of sc on the present queue after the
// wait semaphores are signaled. Surface changes are reported as errors
// matching ErrTransientSurface.
func (d *Device) QueuePresent(sc driver.Swapchain, index uint32, wait []driver.Semaphore) error {
	return driverCall("QueuePresent", d.drv.QueuePresent(d.PresentQueue(), &driver.PresentInfo{
		WaitSemaphores: wait,
		Swapchain:      sc,
		ImageIndex:     index,
	}))
}
