// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"time"

	"github.com/gogpu/rhi/driver"
)

// semaphore is a binary semaphore between queue operations.
type semaphore struct {
	signaled bool
	pending  int // queued operations that will signal it
	waiters  int // queued operations that will consume it
}

// fence is signaled by the GPU and waited on by the host.
type fence struct {
	signaled bool
	pending  int // queued operations that will signal it
}

// CreateSemaphore creates an unsignaled semaphore.
func (d *Driver) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	h := driver.Semaphore(d.handle())
	d.semaphores[h] = &semaphore{}
	return h, nil
}

// DestroySemaphore destroys s. Destroying a semaphore that queued work
// still signals or waits on is a validation error.
func (d *Driver) DestroySemaphore(s driver.Semaphore) {
	if s == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.semaphores[s]
	if !ok {
		d.violate("destroy semaphore %d: invalid handle", s)
		return
	}
	if sem.pending > 0 || sem.waiters > 0 {
		d.violate("destroy semaphore %d: in use by pending queue operations", s)
	}
	delete(d.semaphores, s)
	d.cond.Broadcast()
}

// CreateFence creates a fence, optionally in the signaled state.
func (d *Driver) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, driver.ErrDeviceLost
	}
	h := driver.Fence(d.handle())
	d.fences[h] = &fence{signaled: signaled}
	return h, nil
}

// DestroyFence destroys f.
func (d *Driver) DestroyFence(f driver.Fence) {
	if f == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, ok := d.fences[f]
	if !ok {
		d.violate("destroy fence %d: invalid handle", f)
		return
	}
	if fc.pending > 0 {
		d.violate("destroy fence %d: in use by pending queue operations", f)
	}
	delete(d.fences, f)
	d.cond.Broadcast()
}

// WaitForFences blocks until every fence is signaled.
func (d *Driver) WaitForFences(fences []driver.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		if _, ok := d.fences[f]; !ok {
			return fmt.Errorf("soft: wait for fence %d: %w", f, driver.ErrInvalidHandle)
		}
	}
	done := func() bool {
		for _, f := range fences {
			fc, ok := d.fences[f]
			if ok && !fc.signaled {
				return false
			}
		}
		return true
	}
	if d.waitUntil(timeout, done) {
		return nil
	}
	if d.closed {
		return driver.ErrDeviceLost
	}
	return driver.ErrTimeout
}

// ResetFences returns the fences to the unsignaled state.
func (d *Driver) ResetFences(fences []driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		fc, ok := d.fences[f]
		if !ok {
			return fmt.Errorf("soft: reset fence %d: %w", f, driver.ErrInvalidHandle)
		}
		if fc.pending > 0 {
			d.violate("reset fence %d: in use by pending queue operations", f)
		}
		fc.signaled = false
	}
	return nil
}

// signalFence marks f signaled if it is non-null and live. Must hold d.mu.
func (d *Driver) signalFence(f driver.Fence) {
	if fc, ok := d.fences[f]; ok {
		fc.signaled = true
	}
}
