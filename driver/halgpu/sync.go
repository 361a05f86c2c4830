// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/rhi/driver"
)

// semaphore is a binary semaphore tracked on the host.
type semaphore struct {
	signaled bool
}

// fence is signaled when the timeline reaches value.
type fence struct {
	signaled bool
	pending  bool
	value    uint64
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

// DestroySemaphore destroys s.
func (d *Driver) DestroySemaphore(s driver.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, s)
}

// wait consumes the signal of each semaphore. Must hold d.mu.
func (d *Driver) wait(op string, sems []driver.Semaphore) error {
	for _, h := range sems {
		s, ok := d.semaphores[h]
		if !ok {
			return fmt.Errorf("halgpu: %s: semaphore %d: %w", op, h, driver.ErrInvalidHandle)
		}
		if !s.signaled {
			slogger().Warn("halgpu: wait on unsignaled semaphore", "op", op, "semaphore", h)
		}
		s.signaled = false
	}
	return nil
}

// signal signals each semaphore. Must hold d.mu.
func (d *Driver) signal(sems []driver.Semaphore) error {
	for _, h := range sems {
		s, ok := d.semaphores[h]
		if !ok {
			return fmt.Errorf("halgpu: signal semaphore %d: %w", h, driver.ErrInvalidHandle)
		}
		s.signaled = true
	}
	return nil
}

// CreateFence creates a fence.
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
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, f)
}

// WaitForFences waits until every fence is signaled.
func (d *Driver) WaitForFences(fences []driver.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrDeviceLost
	}
	var target uint64
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return fmt.Errorf("halgpu: wait for fence %d: %w", h, driver.ErrInvalidHandle)
		}
		if !f.signaled && !f.pending {
			// Nothing will signal it.
			return driver.ErrTimeout
		}
		if f.pending {
			target = max(target, f.value)
		}
	}
	return d.waitValue(target, timeout)
}

// ResetFences makes each fence unsignaled.
func (d *Driver) ResetFences(fences []driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return fmt.Errorf("halgpu: reset fence %d: %w", h, driver.ErrInvalidHandle)
		}
		if f.pending {
			return fmt.Errorf("halgpu: reset fence %d: pending submission: %w", h, driver.ErrInvalidHandle)
		}
		f.signaled = false
	}
	return nil
}

// attach makes fence h signal when the timeline reaches value. Must hold
// d.mu.
func (d *Driver) attach(h driver.Fence, value uint64) error {
	if h == 0 {
		return nil
	}
	f, ok := d.fences[h]
	if !ok {
		return fmt.Errorf("halgpu: fence %d: %w", h, driver.ErrInvalidHandle)
	}
	f.signaled = false
	f.pending = true
	f.value = value
	if value <= d.completed {
		f.pending = false
		f.signaled = true
	}
	return nil
}
