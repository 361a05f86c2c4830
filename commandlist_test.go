// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"testing"

	"github.com/gogpu/rhi/driver"
)

func TestCommandListStateString(t *testing.T) {
	tests := []struct {
		s    CommandListState
		want string
	}{
		{CommandListInitial, "Initial"},
		{CommandListRecording, "Recording"},
		{CommandListExecutable, "Executable"},
		{CommandListSubmitted, "Submitted"},
		{CommandListInvalidated, "Invalidated"},
		{CommandListState(42), "Unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandListStates(t *testing.T) {
	e := newTestEnv(t, 16, 16)
	sc := e.newSwapChain(t, 1)
	cl := sc.CommandLists()[0]

	if cl.State() != CommandListInitial {
		t.Fatalf("new list state = %v", cl.State())
	}
	if cl.End() {
		t.Error("End before Begin succeeded")
	}
	if cl.Submit() {
		t.Error("Submit before End succeeded")
	}
	if !cl.Begin() {
		t.Fatal("Begin failed")
	}
	if cl.State() != CommandListRecording {
		t.Errorf("state after Begin = %v", cl.State())
	}
	if cl.Begin() {
		t.Error("Begin while recording succeeded")
	}
	if !cl.End() {
		t.Fatal("End failed")
	}
	if cl.State() != CommandListExecutable {
		t.Errorf("state after End = %v", cl.State())
	}
	if cl.RecordLayoutTransition(sc.Image(0), driver.LayoutUndefined, driver.LayoutGeneral) {
		t.Error("transition recorded outside Begin/End")
	}
	if !cl.Submit() {
		t.Fatal("Submit failed")
	}
	if cl.State() != CommandListSubmitted {
		t.Errorf("state after Submit = %v", cl.State())
	}
	if !cl.Wait() {
		t.Fatal("Wait failed")
	}
	if cl.State() != CommandListExecutable {
		t.Errorf("state after Wait = %v", cl.State())
	}
	// Resubmitting an executed list is allowed.
	if !cl.Submit() || !cl.Wait() {
		t.Error("resubmit failed")
	}
	e.expectClean(t)
}

func TestClearColorFromUndefinedLayout(t *testing.T) {
	e := newTestEnv(t, 4, 4)
	sc := e.newSwapChain(t, 1)
	if !sc.AcquireNextImage() {
		t.Fatal("AcquireNextImage failed")
	}
	cl := sc.CommandList()
	img := sc.Image(sc.ImageIndex())
	if !cl.Begin() || !cl.ClearColor(img, [4]float32{0, 1, 0, 1}) || !cl.End() || !cl.Submit() {
		t.Fatal("record/submit failed")
	}
	if !sc.Present() {
		t.Fatal("Present failed")
	}
	if err := e.dev.WaitIdle(e.dev.PresentQueue()); err != nil {
		t.Fatal(err)
	}
	if got, err := e.drv.ImageLayout(img); err != nil || got != driver.LayoutPresentSrc {
		t.Errorf("layout after clear = %v, want PresentSrc", got)
	}
	if e.win.Presents() != 1 {
		t.Errorf("presents = %d, want 1", e.win.Presents())
	}
	px := e.win.Frame().RGBAAt(1, 1)
	if px.G != 255 || px.R != 0 {
		t.Errorf("presented pixel = %v, want green", px)
	}
	e.expectClean(t)
}

func TestSubmitsChainWithinFrame(t *testing.T) {
	e := newTestEnv(t, 8, 8)
	sc := e.newSwapChain(t, 2)
	if !sc.AcquireNextImage() {
		t.Fatal("AcquireNextImage failed")
	}
	acquire := sc.CurrentAcquireSemaphore()
	if sc.frameWait != acquire {
		t.Fatal("frame does not start on the acquire semaphore")
	}
	lists := sc.CommandLists()
	for _, cl := range lists {
		if !cl.Begin() || !cl.End() || !cl.Submit() {
			t.Fatal("record/submit failed")
		}
		if sc.frameWait != cl.done {
			t.Errorf("slot %d: frame does not wait on the last submission", cl.Slot())
		}
	}
	if !sc.Present() {
		t.Fatal("Present failed")
	}
	if err := e.drv.DeviceWaitIdle(); err != nil {
		t.Fatal(err)
	}
	e.expectClean(t)
}
