// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/driver"
)

// CommandListState is the recording state of a CommandList.
type CommandListState int

const (
	// CommandListInitial is a list that has nothing recorded.
	CommandListInitial CommandListState = iota
	// CommandListRecording is between Begin and End.
	CommandListRecording
	// CommandListExecutable is ended and can be submitted.
	CommandListExecutable
	// CommandListSubmitted is queued and possibly executing.
	CommandListSubmitted
	// CommandListInvalidated lost its contents to a command pool reset.
	CommandListInvalidated
)

// String returns the string representation of CommandListState.
func (s CommandListState) String() string {
	switch s {
	case CommandListInitial:
		return "Initial"
	case CommandListRecording:
		return "Recording"
	case CommandListExecutable:
		return "Executable"
	case CommandListSubmitted:
		return "Submitted"
	case CommandListInvalidated:
		return "Invalidated"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// CommandList is the command recording context of one frame slot.
//
// Lists are owned by a SwapChain and allocated from its command pool, so
// the pool reset done by AcquireNextImage invalidates all of them.
type CommandList struct {
	slot uint32
	sc   *SwapChain
	dev  *Device

	cb    driver.CommandBuffer
	fence driver.Fence
	done  driver.Semaphore // signaled when a frame submission completes

	state    CommandListState
	inFlight bool
}

// newCommandList allocates the command buffer, fence and completion
// semaphore of a frame slot.
func newCommandList(slot uint32, sc *SwapChain, dev *Device) (*CommandList, error) {
	drv := dev.Driver()
	l := &CommandList{slot: slot, sc: sc, dev: dev}
	var err error
	if l.cb, err = drv.AllocateCommandBuffer(sc.cmdPool); err != nil {
		return nil, driverCall("AllocateCommandBuffer", err)
	}
	if l.fence, err = drv.CreateFence(false); err != nil {
		l.release()
		return nil, driverCall("CreateFence", err)
	}
	if l.done, err = drv.CreateSemaphore(); err != nil {
		l.release()
		return nil, driverCall("CreateSemaphore", err)
	}
	return l, nil
}

// Slot returns the buffer slot the list is bound to.
func (l *CommandList) Slot() uint32 { return l.slot }

// State returns the recording state.
func (l *CommandList) State() CommandListState { return l.state }

// Begin starts recording. A list still executing is waited for first.
func (l *CommandList) Begin() bool {
	if l.state == CommandListRecording {
		l.sc.logger.Error("rhi: begin: command list is already recording", "slot", l.slot, "err", ErrResourceState)
		return false
	}
	if !l.Wait() {
		return false
	}
	if !checkResult(l.sc.logger, "BeginCommandBuffer", l.dev.Driver().BeginCommandBuffer(l.cb)) {
		return false
	}
	l.state = CommandListRecording
	return true
}

// End finishes recording.
func (l *CommandList) End() bool {
	if !l.recording("end") {
		return false
	}
	if !checkResult(l.sc.logger, "EndCommandBuffer", l.dev.Driver().EndCommandBuffer(l.cb)) {
		return false
	}
	l.state = CommandListExecutable
	return true
}

// recording logs and reports false unless the list is recording.
func (l *CommandList) recording(op string) bool {
	if l.state != CommandListRecording {
		l.sc.logger.Error("rhi: command list is not recording",
			"op", op,
			"slot", l.slot,
			"state", l.state,
			"err", ErrResourceState)
		return false
	}
	return true
}

// RecordLayoutTransition records a transition of image from oldLayout to
// newLayout.
func (l *CommandList) RecordLayoutTransition(image driver.Image, oldLayout, newLayout driver.ImageLayout) bool {
	if !l.recording("layout transition") {
		return false
	}
	l.dev.Driver().CmdImageBarrier(l.cb, image, oldLayout, newLayout)
	return true
}

// ClearColor clears a swap chain image to an RGBA color. The image is
// moved to TransferDst for the clear and back to the cached swap chain
// layout, or to PresentSrc while the layout is still undefined.
func (l *CommandList) ClearColor(image driver.Image, color [4]float32) bool {
	if !l.recording("clear") {
		return false
	}
	drv := l.dev.Driver()
	back := l.sc.layout
	if back == driver.LayoutUndefined {
		back = driver.LayoutPresentSrc
	}
	drv.CmdImageBarrier(l.cb, image, l.sc.layout, driver.LayoutTransferDst)
	drv.CmdClearColorImage(l.cb, image, color)
	drv.CmdImageBarrier(l.cb, image, driver.LayoutTransferDst, back)
	return true
}

// CopyBuffer records a copy of size bytes from src to dst.
func (l *CommandList) CopyBuffer(src, dst *ConstantBuffer, size uint64) bool {
	if !l.recording("copy") {
		return false
	}
	if src == nil || dst == nil || src.alloc.buffer == 0 || dst.alloc.buffer == 0 {
		l.sc.logger.Error("rhi: copy: buffer not created", "err", ErrResourceState)
		return false
	}
	if size > src.alloc.size || size > dst.alloc.size {
		l.sc.logger.Error("rhi: copy: size exceeds buffer",
			"size", size,
			"src", src.alloc.size,
			"dst", dst.alloc.size,
			"err", ErrResourceState)
		return false
	}
	l.dev.Driver().CmdCopyBuffer(l.cb, src.alloc.buffer, dst.alloc.buffer, size)
	return true
}

// Submit submits the list to the graphics queue.
//
// Inside a frame the submission waits for the acquired image (or the
// previous submission of the frame) and Present waits for this one.
func (l *CommandList) Submit() bool {
	if l.state != CommandListExecutable {
		l.sc.logger.Error("rhi: submit: command list is not executable",
			"slot", l.slot,
			"state", l.state,
			"err", ErrResourceState)
		return false
	}
	if !l.Wait() {
		return false
	}
	drv := l.dev.Driver()
	if !checkResult(l.sc.logger, "ResetFences", drv.ResetFences([]driver.Fence{l.fence})) {
		return false
	}
	wait, signal := l.sc.frameSemaphores(l.done)
	err := drv.QueueSubmit(l.dev.GraphicsQueue(), []driver.SubmitInfo{{
		WaitSemaphores:   wait,
		CommandBuffers:   []driver.CommandBuffer{l.cb},
		SignalSemaphores: signal,
	}}, l.fence)
	if !checkResult(l.sc.logger, "QueueSubmit", err) {
		return false
	}
	if len(signal) > 0 {
		l.sc.frameWait = l.done
	}
	l.state = CommandListSubmitted
	l.inFlight = true
	return true
}

// Wait blocks until the last submission of the list has executed.
func (l *CommandList) Wait() bool {
	if !l.inFlight {
		return true
	}
	err := l.dev.Driver().WaitForFences([]driver.Fence{l.fence}, driver.Infinite)
	if !checkResult(l.sc.logger, "WaitForFences", err) {
		return false
	}
	l.inFlight = false
	if l.state == CommandListSubmitted {
		l.state = CommandListExecutable
	}
	return true
}

// invalidate marks the list reset by its pool. The caller has drained the
// queue the list was submitted to.
func (l *CommandList) invalidate() {
	l.state = CommandListInvalidated
	l.inFlight = false
}

// renewSemaphore replaces the completion semaphore with an unsignaled one.
func (l *CommandList) renewSemaphore() {
	drv := l.dev.Driver()
	drv.DestroySemaphore(l.done)
	sem, err := drv.CreateSemaphore()
	if !checkResult(l.sc.logger, "CreateSemaphore", err) {
		sem = 0
	}
	l.done = sem
}

// release frees the command buffer, fence and semaphore.
func (l *CommandList) release() {
	drv := l.dev.Driver()
	drv.FreeCommandBuffer(l.sc.cmdPool, l.cb)
	drv.DestroyFence(l.fence)
	drv.DestroySemaphore(l.done)
	l.cb, l.fence, l.done = 0, 0, 0
}
