// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "errors"

// ErrOutOfDate means that the surface changed and the swapchain can no
// longer present to it. The swapchain must be recreated.
var ErrOutOfDate = errors.New("driver: swapchain out of date")

// ErrSuboptimal means that the operation succeeded but the swapchain no
// longer matches the surface properties exactly.
var ErrSuboptimal = errors.New("driver: swapchain suboptimal")

// ErrSurfaceLost means that the window backing a surface is gone.
var ErrSurfaceLost = errors.New("driver: surface lost")

// ErrDeviceLost means that the device is in an unrecoverable state.
var ErrDeviceLost = errors.New("driver: device lost")

// ErrTimeout means that a wait did not complete within its timeout.
var ErrTimeout = errors.New("driver: timeout")

// ErrInvalidHandle means that a handle does not refer to a live object.
var ErrInvalidHandle = errors.New("driver: invalid handle")

// ErrNoHostMemory means that host memory could not be allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrUnsupported means that the device does not support the request.
var ErrUnsupported = errors.New("driver: unsupported")

// IsSurfaceError reports whether err means that the swapchain has to be
// recreated before presentation can resume.
func IsSurfaceError(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal) || errors.Is(err, ErrSurfaceLost)
}
