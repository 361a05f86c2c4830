// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"errors"
	"log/slog"

	"github.com/gogpu/rhi/driver"
)

// Error kinds. Use errors.Is to classify an error returned by rhi.
var (
	// ErrConfiguration means that an object was created with an invalid
	// device, window or queue combination. It is not retryable.
	ErrConfiguration = errors.New("rhi: configuration error")

	// ErrTransientSurface means that the surface changed (out of date,
	// suboptimal, zero area). Recover by calling SwapChain.Resize.
	ErrTransientSurface = errors.New("rhi: transient surface error")

	// ErrResourceState means that an object was used without the handles
	// the operation needs.
	ErrResourceState = errors.New("rhi: invalid internal state")

	// ErrDriverCall means that a driver call failed.
	ErrDriverCall = errors.New("rhi: driver call failed")

	// ErrDeviceLost means that the device stopped responding.
	ErrDeviceLost = errors.New("rhi: device lost")
)

// DriverCallError is a failed driver call together with its name.
type DriverCallError struct {
	Call string
	Err  error
}

func (e *DriverCallError) Error() string {
	return "rhi: " + e.Call + ": " + e.Err.Error()
}

func (e *DriverCallError) Unwrap() error { return e.Err }

// Is classifies the wrapped driver error into the rhi error kinds.
func (e *DriverCallError) Is(target error) bool {
	switch target {
	case ErrDriverCall:
		return true
	case ErrTransientSurface:
		return driver.IsSurfaceError(e.Err)
	case ErrDeviceLost:
		return errors.Is(e.Err, driver.ErrDeviceLost)
	}
	return false
}

// driverCall wraps a non-nil err returned by the named driver call.
func driverCall(call string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverCallError{Call: call, Err: err}
}

// checkResult logs a failed driver call and reports whether it succeeded.
// Surface errors are logged as warnings since the caller recovers from
// them by resizing.
func checkResult(l *slog.Logger, call string, err error) bool {
	if err == nil {
		return true
	}
	if driver.IsSurfaceError(err) {
		l.Warn("rhi: surface changed", "call", call, "err", err)
	} else {
		l.Error("rhi: driver call failed", "call", call, "err", err)
	}
	return false
}
