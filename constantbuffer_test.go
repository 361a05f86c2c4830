// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"bytes"
	"testing"
	"time"

	"github.com/gogpu/rhi/driver"
	"github.com/gogpu/rhi/driver/soft"
)

// gpuCopy copies size bytes from src to dst on the graphics queue and
// waits for completion.
func gpuCopy(t *testing.T, cl *CommandList, src, dst *ConstantBuffer, size uint64) {
	t.Helper()
	if !cl.Begin() {
		t.Fatal("Begin failed")
	}
	if !cl.CopyBuffer(src, dst, size) {
		t.Fatal("CopyBuffer failed")
	}
	if !cl.End() || !cl.Submit() || !cl.Wait() {
		t.Fatal("End/Submit/Wait failed")
	}
}

// readBack maps cb and returns a copy of its contents.
func readBack(t *testing.T, cb *ConstantBuffer) []byte {
	t.Helper()
	p := cb.Map()
	if p == nil {
		t.Fatal("Map failed")
	}
	out := bytes.Clone(p)
	if !cb.Unmap() {
		t.Fatal("Unmap failed")
	}
	return out
}

func TestConstantBufferCreateTwice(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	cb := NewConstantBuffer(e.dev)
	if !cb.Create(64) {
		t.Fatal("first Create failed")
	}
	first := cb.Buffer()
	if !cb.Create(256) {
		t.Fatal("second Create failed")
	}
	if cb.Size() != 256 {
		t.Errorf("Size() = %d, want 256", cb.Size())
	}
	if cb.Buffer() == first {
		t.Error("buffer handle was not replaced")
	}
	live := e.drv.Live()
	if live["buffer"] != 1 || live["device memory"] != 1 {
		t.Errorf("live buffers=%d memories=%d, want 1 and 1", live["buffer"], live["device memory"])
	}
	cb.Destroy()
	cb.Destroy()
	live = e.drv.Live()
	if live["buffer"] != 0 || live["device memory"] != 0 {
		t.Errorf("after Destroy: live buffers=%d memories=%d", live["buffer"], live["device memory"])
	}
	if cb.Buffer() != 0 || cb.Size() != 0 {
		t.Error("Destroy did not clear the allocation")
	}
	e.expectClean(t)
}

func TestConstantBufferMissingState(t *testing.T) {
	cb := NewConstantBuffer(nil)
	if cb.Create(16) {
		t.Error("Create without device succeeded")
	}
	if cb.Map() != nil {
		t.Error("Map without device returned a mapping")
	}
	if cb.Unmap() || cb.Flush() || cb.Write([]byte{1}, 0) {
		t.Error("Unmap/Flush/Write without device succeeded")
	}
	cb.Destroy()

	e := newTestEnv(t, 16, 16)
	cb = NewConstantBuffer(e.dev)
	if cb.Map() != nil {
		t.Error("Map before Create returned a mapping")
	}
	if !cb.Create(16) {
		t.Fatal("Create failed")
	}
	defer cb.Destroy()
	if cb.Unmap() {
		t.Error("Unmap of an unmapped buffer succeeded")
	}
	if cb.Flush() {
		t.Error("Flush of an unmapped buffer succeeded")
	}
	e.expectClean(t)
}

func TestConstantBufferCreateZeroSize(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	cb := NewConstantBuffer(e.dev)
	if cb.Create(0) {
		t.Fatal("Create(0) succeeded")
	}
	if live := e.drv.Live(); live["buffer"] != 0 {
		t.Errorf("buffer leaked: %v", live)
	}
}

func TestConstantBufferCoherentRoundTrip(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 1)
	src, dst := NewConstantBuffer(e.dev), NewConstantBuffer(e.dev)
	if !src.Create(32) || !dst.Create(32) {
		t.Fatal("Create failed")
	}
	defer src.Destroy()
	defer dst.Destroy()

	p := src.Map()
	if p == nil {
		t.Fatal("Map failed")
	}
	if len(p) != 32 {
		t.Fatalf("mapping length = %d, want 32", len(p))
	}
	copy(p, "coherent memory needs no flush")
	if !src.Unmap() {
		t.Fatal("Unmap failed")
	}

	gpuCopy(t, sc.CommandLists()[0], src, dst, 32)
	got := readBack(t, dst)
	if !bytes.HasPrefix(got, []byte("coherent memory needs no flush")) {
		t.Errorf("GPU copy = %q", got)
	}
	e.expectClean(t)
}

func TestConstantBufferNonCoherentNeedsFlush(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 1)
	cl := sc.CommandLists()[0]
	src := NewConstantBuffer(e.dev, WithCoherent(false))
	dst := NewConstantBuffer(e.dev)
	if !src.Create(8) || !dst.Create(8) {
		t.Fatal("Create failed")
	}
	defer src.Destroy()
	defer dst.Destroy()
	if src.Coherent() {
		t.Fatal("Coherent() = true")
	}

	p := src.Map()
	copy(p, "unflush!")
	if !src.Unmap() {
		t.Fatal("Unmap failed")
	}
	gpuCopy(t, cl, src, dst, 8)
	if got := readBack(t, dst); bytes.Equal(got, []byte("unflush!")) {
		t.Fatal("unflushed non-coherent write reached the GPU")
	}

	p = src.Map()
	copy(p, "flushed!")
	if !src.Flush() {
		t.Fatal("Flush failed")
	}
	if !src.Unmap() {
		t.Fatal("Unmap failed")
	}
	gpuCopy(t, cl, src, dst, 8)
	if got := readBack(t, dst); !bytes.Equal(got, []byte("flushed!")) {
		t.Errorf("GPU copy after Flush = %q", got)
	}
	e.expectClean(t)
}

func TestConstantBufferWrite(t *testing.T) {
	for _, coherent := range []bool{true, false} {
		e := newTestEnv(t, 16, 16)
		sc := e.newSwapChain(t, 1)
		src := NewConstantBuffer(e.dev, WithCoherent(coherent), WithBufferLabel("params"))
		dst := NewConstantBuffer(e.dev)
		if !src.Create(16) || !dst.Create(16) {
			t.Fatal("Create failed")
		}
		if !src.Write([]byte{1, 2, 3, 4}, 4) {
			t.Fatalf("coherent=%v: Write failed", coherent)
		}
		if src.Write([]byte{1, 2}, 15) {
			t.Errorf("coherent=%v: out of range Write succeeded", coherent)
		}
		if src.Write(nil, 17) {
			t.Errorf("coherent=%v: Write past the end succeeded", coherent)
		}
		gpuCopy(t, sc.CommandLists()[0], src, dst, 16)
		want := []byte{0, 0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0}
		if got := readBack(t, dst); !bytes.Equal(got, want) {
			t.Errorf("coherent=%v: GPU copy = %v, want %v", coherent, got, want)
		}
		src.Destroy()
		dst.Destroy()
		e.expectClean(t)
	}
}

func TestConstantBufferWriteKeepsMapping(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	cb := NewConstantBuffer(e.dev)
	if !cb.Create(8) {
		t.Fatal("Create failed")
	}
	p := cb.Map()
	if !cb.Write([]byte{9}, 0) {
		t.Fatal("Write failed")
	}
	if p[0] != 9 {
		t.Errorf("mapping not updated by Write: %v", p)
	}
	if !cb.Unmap() {
		t.Error("buffer was unmapped by Write")
	}
	cb.Destroy()
	e.expectClean(t)
}

func TestCopyBufferRejectsOversize(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 1)
	small, big := NewConstantBuffer(e.dev), NewConstantBuffer(e.dev)
	if !small.Create(4) || !big.Create(64) {
		t.Fatal("Create failed")
	}
	defer small.Destroy()
	defer big.Destroy()
	cl := sc.CommandLists()[0]
	if !cl.Begin() {
		t.Fatal("Begin failed")
	}
	if cl.CopyBuffer(big, small, 64) {
		t.Error("oversized copy was recorded")
	}
	if cl.CopyBuffer(big, NewConstantBuffer(e.dev), 4) {
		t.Error("copy into an uncreated buffer was recorded")
	}
	if !cl.End() {
		t.Fatal("End failed")
	}
	e.expectClean(t)
}

// TestConstantBufferDestroyInFlight destroys buffers right after submitting
// copies that read them. Destroy must drain the queue first.
func TestConstantBufferDestroyInFlight(t *testing.T) {
	e := newTestEnv(t, 16, 16, soft.WithLatency(100*time.Microsecond))
	sc := e.newSwapChain(t, 1)
	cl := sc.CommandLists()[0]
	dst := NewConstantBuffer(e.dev)
	if !dst.Create(16) {
		t.Fatal("Create failed")
	}
	defer dst.Destroy()

	for i := range 50 {
		src := NewConstantBuffer(e.dev)
		if !src.Create(16) {
			t.Fatalf("iteration %d: Create failed", i)
		}
		if !src.Write([]byte{byte(i)}, 0) {
			t.Fatalf("iteration %d: Write failed", i)
		}
		if !cl.Begin() || !cl.CopyBuffer(src, dst, 16) || !cl.End() || !cl.Submit() {
			t.Fatalf("iteration %d: record/submit failed", i)
		}
		src.Destroy()
	}
	if !cl.Wait() {
		t.Fatal("Wait failed")
	}
	if got := readBack(t, dst); got[0] != 49 {
		t.Errorf("last copy = %d, want 49", got[0])
	}
	e.expectClean(t)
}

// stuckQueueDriver fails queue idle waits while stuck is set.
type stuckQueueDriver struct {
	*soft.Driver
	stuck bool
}

func (d *stuckQueueDriver) QueueWaitIdle(q driver.Queue) error {
	if d.stuck {
		return driver.ErrDeviceLost
	}
	return d.Driver.QueueWaitIdle(q)
}

func TestConstantBufferKeptWhenDrainFails(t *testing.T) {
	drv := &stuckQueueDriver{Driver: soft.New()}
	t.Cleanup(drv.Destroy)
	dev, err := NewDevice(drv)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(dev.Release)

	cb := NewConstantBuffer(dev)
	if !cb.Create(64) {
		t.Fatal("Create failed")
	}
	buf := cb.Buffer()

	drv.stuck = true
	if cb.Destroy() {
		t.Error("Destroy succeeded although the queue did not drain")
	}
	if cb.Create(128) {
		t.Error("Create succeeded although the previous buffer could not be drained")
	}
	if live := drv.Live(); live["buffer"] != 1 || live["device memory"] != 1 {
		t.Errorf("live buffers=%d memories=%d, want 1 and 1", live["buffer"], live["device memory"])
	}
	if cb.Buffer() != buf || cb.Size() != 64 {
		t.Errorf("allocation changed to buffer %d of %d bytes", cb.Buffer(), cb.Size())
	}

	drv.stuck = false
	if !cb.Destroy() {
		t.Fatal("Destroy failed after the queue recovered")
	}
	if live := drv.Live(); live["buffer"] != 0 || live["device memory"] != 0 {
		t.Errorf("after Destroy: live buffers=%d memories=%d", live["buffer"], live["device memory"])
	}
	if v := drv.Violations(); len(v) != 0 {
		t.Fatalf("unexpected validation errors: %v", v)
	}
}
