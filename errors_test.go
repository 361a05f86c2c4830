// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/rhi/driver"
)

func TestDriverCallNil(t *testing.T) {
	if err := driverCall("QueueSubmit", nil); err != nil {
		t.Errorf("driverCall(nil) = %v, want nil", err)
	}
}

func TestDriverCallErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		lost      bool
	}{
		{"out of date", driver.ErrOutOfDate, true, false},
		{"suboptimal", driver.ErrSuboptimal, true, false},
		{"surface lost", driver.ErrSurfaceLost, true, false},
		{"wrapped out of date", fmt.Errorf("present: %w", driver.ErrOutOfDate), true, false},
		{"device lost", driver.ErrDeviceLost, false, true},
		{"timeout", driver.ErrTimeout, false, false},
		{"invalid handle", driver.ErrInvalidHandle, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := driverCall("Call", tt.err)
			if !errors.Is(err, ErrDriverCall) {
				t.Error("not ErrDriverCall")
			}
			if got := errors.Is(err, ErrTransientSurface); got != tt.transient {
				t.Errorf("Is(ErrTransientSurface) = %v, want %v", got, tt.transient)
			}
			if got := errors.Is(err, ErrDeviceLost); got != tt.lost {
				t.Errorf("Is(ErrDeviceLost) = %v, want %v", got, tt.lost)
			}
			if errors.Is(err, ErrConfiguration) {
				t.Error("driver call error classified as ErrConfiguration")
			}
			if !errors.Is(err, tt.err) {
				t.Error("driver error is not unwrapped")
			}
		})
	}
}

func TestDriverCallErrorMessage(t *testing.T) {
	err := driverCall("AcquireNextImage", driver.ErrTimeout)
	if got, want := err.Error(), "rhi: AcquireNextImage: driver: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	var dce *DriverCallError
	if !errors.As(fmt.Errorf("frame: %w", err), &dce) || dce.Call != "AcquireNextImage" {
		t.Errorf("errors.As did not find the DriverCallError: %v", dce)
	}
}

func TestCheckResultLevels(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))

	if !checkResult(l, "Call", nil) {
		t.Error("checkResult(nil) = false")
	}
	if buf.Len() != 0 {
		t.Errorf("success was logged: %s", buf.String())
	}

	if checkResult(l, "QueuePresent", driver.ErrOutOfDate) {
		t.Error("checkResult(ErrOutOfDate) = true")
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("surface error not logged as warning: %s", buf.String())
	}
	buf.Reset()

	if checkResult(l, "QueueSubmit", driver.ErrDeviceLost) {
		t.Error("checkResult(ErrDeviceLost) = true")
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "call=QueueSubmit") {
		t.Errorf("driver error not logged as error: %s", buf.String())
	}
}
