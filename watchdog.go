// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"fmt"
)

// AcquireWithDeadline runs sc.AcquireNextImage and gives up when ctx is
// done first.
//
// The driver wait cannot be cancelled. On expiry the acquisition keeps
// running on its own goroutine and still owns sc, so the returned error
// matches ErrDeviceLost: the caller must stop using sc and tear down the
// device. A failed acquisition returns an error matching
// ErrTransientSurface and the caller should Resize.
func AcquireWithDeadline(ctx context.Context, sc *SwapChain) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan bool, 1)
	go func() {
		done <- sc.AcquireNextImage()
	}()
	select {
	case ok := <-done:
		if !ok {
			return fmt.Errorf("rhi: acquire failed: %w", ErrTransientSurface)
		}
		return nil
	case <-ctx.Done():
		sc.logger.Error("rhi: acquire did not complete before the deadline", "err", ctx.Err())
		return fmt.Errorf("%w: acquire: %w", ErrDeviceLost, ctx.Err())
	}
}
