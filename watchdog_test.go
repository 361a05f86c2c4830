// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/rhi/driver/soft"
)

func TestAcquireWithDeadlineSucceeds(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := AcquireWithDeadline(ctx, sc); err != nil {
		t.Fatalf("AcquireWithDeadline: %v", err)
	}
	if !sc.Present() {
		t.Fatal("Present failed")
	}
	e.expectClean(t)
}

func TestAcquireWithDeadlineCancelled(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := AcquireWithDeadline(ctx, sc); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sc.CurrentAcquireSemaphore() != 0 {
		t.Error("an image was acquired with a cancelled context")
	}
}

func TestAcquireWithDeadlineTransientSurface(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 2)
	e.win.Resize(32, 32)
	err := AcquireWithDeadline(context.Background(), sc)
	if !errors.Is(err, ErrTransientSurface) {
		t.Fatalf("err = %v, want ErrTransientSurface", err)
	}
	if !sc.Resize(32, 32) {
		t.Fatal("Resize failed")
	}
	if err := AcquireWithDeadline(context.Background(), sc); err != nil {
		t.Fatalf("after Resize: %v", err)
	}
	sc.Present()
}

// TestAcquireWithDeadlineExpires keeps the only image of a single-buffered
// swap chain in a long FIFO presentation so that the next acquisition
// blocks.
func TestAcquireWithDeadlineExpires(t *testing.T) {
	e := newTestEnv(t, 16, 16, soft.WithVBlank(500*time.Millisecond))
	w, h := e.win.Size()
	sc, err := NewSwapChain(e.win, e.dev, uint32(w), uint32(h), WithPresentFlags(PresentVSync))
	if err != nil {
		t.Fatalf("NewSwapChain: %v", err)
	}
	if !sc.AcquireNextImage() || !sc.Present() {
		t.Fatal("AcquireNextImage/Present failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = AcquireWithDeadline(ctx, sc)
	if !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("err = %v, want ErrDeviceLost", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap context.DeadlineExceeded", err)
	}
	// Unblock the abandoned acquisition. sc is owned by it and not used
	// again.
	e.win.Close()
}
