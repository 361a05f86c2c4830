// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/gogpu/rhi/driver"
)

// fakeDriver implements the parts of driver.Device that Device calls
// without a GPU. Any other method panics.
type fakeDriver struct {
	driver.Device
	name   string
	ready  bool
	limits driver.Limits
	logger *slog.Logger
}

func (f *fakeDriver) Name() string             { return f.name }
func (f *fakeDriver) Ready() bool              { return f.ready }
func (f *fakeDriver) Limits() driver.Limits    { return f.limits }
func (f *fakeDriver) SetLogger(l *slog.Logger) { f.logger = l }

func (f *fakeDriver) Queue(kind driver.QueueType) driver.Queue {
	return driver.Queue{Family: uint32(kind), Handle: uint64(kind) + 1}
}

func TestNewDeviceNilDriver(t *testing.T) {
	dev, err := NewDevice(nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if dev != nil {
		t.Error("device returned with an error")
	}
}

func TestDeviceIsReady(t *testing.T) {
	var nilDev *Device
	if nilDev.IsReady() {
		t.Error("nil device is ready")
	}
	f := &fakeDriver{}
	dev, err := NewDevice(f)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	defer dev.Release()
	if dev.IsReady() {
		t.Error("device is ready before the driver")
	}
	f.ready = true
	if !dev.IsReady() {
		t.Error("device is not ready")
	}
}

func TestDeviceValidateResolution(t *testing.T) {
	dev, err := NewDevice(&fakeDriver{ready: true, limits: driver.Limits{MaxImageDimension2D: 4096}})
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	defer dev.Release()
	tests := []struct {
		w, h uint32
		want bool
	}{
		{1, 1, true},
		{1920, 1080, true},
		{4096, 4096, true},
		{0, 0, false},
		{0, 600, false},
		{800, 0, false},
		{4097, 1, false},
		{1, 4097, false},
	}
	for _, tt := range tests {
		if got := dev.ValidateResolution(tt.w, tt.h); got != tt.want {
			t.Errorf("ValidateResolution(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestDeviceQueues(t *testing.T) {
	dev, err := NewDevice(&fakeDriver{ready: true})
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	defer dev.Release()
	if q := dev.GraphicsQueue(); q.Family != uint32(driver.QueueGraphics) {
		t.Errorf("GraphicsQueue() = %+v", q)
	}
	if q := dev.PresentQueue(); q.Family != uint32(driver.QueuePresent) {
		t.Errorf("PresentQueue() = %+v", q)
	}
	if q := dev.ComputeQueue(); q.Family != uint32(driver.QueueCompute) {
		t.Errorf("ComputeQueue() = %+v", q)
	}
}

func TestDeviceLogger(t *testing.T) {
	var nilDev *Device
	if nilDev.Logger() != Logger() {
		t.Error("nil device does not use the package logger")
	}
	custom := slog.New(slog.DiscardHandler)
	dev, err := NewDevice(&fakeDriver{}, WithDeviceLogger(custom))
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	defer dev.Release()
	if dev.Logger() != custom {
		t.Error("WithDeviceLogger was ignored")
	}
}

func TestDeviceDriverCalls(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	if e.dev.Driver() != e.drv {
		t.Error("Driver() does not return the wrapped driver")
	}
	if err := e.dev.WaitIdle(e.dev.GraphicsQueue()); err != nil {
		t.Errorf("WaitIdle: %v", err)
	}
	err := e.dev.QueuePresent(0, 0, nil)
	var dce *DriverCallError
	if !errors.As(err, &dce) || dce.Call != "QueuePresent" {
		t.Fatalf("QueuePresent of a null swap chain: err = %v", err)
	}
	if !errors.Is(err, ErrDriverCall) {
		t.Errorf("err = %v, want ErrDriverCall", err)
	}
	if !errors.Is(err, driver.ErrInvalidHandle) {
		t.Errorf("err = %v, want driver.ErrInvalidHandle", err)
	}
	e.expectClean(t)
}
