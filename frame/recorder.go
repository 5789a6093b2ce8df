// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/gfx"
)

// ErrNotRecording is returned by EndRecording without a matching begin.
var ErrNotRecording = errors.New("frame: command buffer is not recording")

// Recorder owns one primary command buffer per slot, allocated from one
// pool on the graphics family. It does not check fences: its caller only
// begins a slot after that slot's fence was waited.
type Recorder struct {
	dev gfx.Device
	log logrus.FieldLogger

	pool      gfx.CommandPool
	buffers   []gfx.CommandBuffer
	current   int
	recording bool
}

// NewRecorder allocates slots command buffers.
func NewRecorder(ctx *device.Context, slots int) (*Recorder, error) {
	dev := ctx.Device()
	pool, err := dev.CreateCommandPool(uint32(ctx.Provider.QueueFamilies().Graphics))
	if err != nil {
		return nil, fmt.Errorf("frame: command pool: %w", err)
	}
	buffers, err := dev.AllocateCommandBuffers(pool, slots)
	if err != nil {
		dev.DestroyCommandPool(pool)
		return nil, fmt.Errorf("frame: command buffers: %w", err)
	}
	return &Recorder{
		dev:     dev,
		log:     ctx.Log.WithField("component", "recorder"),
		pool:    pool,
		buffers: buffers,
	}, nil
}

// Select makes slot the current one.
func (r *Recorder) Select(slot int) {
	r.current = slot
}

// Slot returns the current slot.
func (r *Recorder) Slot() int {
	return r.current
}

// Current returns the command buffer of the current slot.
func (r *Recorder) Current() gfx.CommandBuffer {
	return r.buffers[r.current]
}

// Recording reports whether the current buffer is between begin and end.
func (r *Recorder) Recording() bool {
	return r.recording
}

// ResetCurrent discards the previous contents of the current buffer.
func (r *Recorder) ResetCurrent() error {
	if err := r.dev.ResetCommandBuffer(r.Current()); err != nil {
		return fmt.Errorf("frame: reset slot %d: %w", r.current, err)
	}
	r.recording = false
	return nil
}

// BeginRecording starts recording into the current buffer.
func (r *Recorder) BeginRecording() error {
	if err := r.dev.BeginCommandBuffer(r.Current()); err != nil {
		return fmt.Errorf("frame: begin slot %d: %w", r.current, err)
	}
	r.recording = true
	return nil
}

// EndRecording finishes the current buffer.
func (r *Recorder) EndRecording() error {
	if !r.recording {
		return ErrNotRecording
	}
	r.recording = false
	if err := r.dev.EndCommandBuffer(r.Current()); err != nil {
		return fmt.Errorf("frame: end slot %d: %w", r.current, err)
	}
	return nil
}

// Submit passes the current buffer to the queue. Zero semaphores and fence
// are left out of the submission.
func (r *Recorder) Submit(queue gfx.Queue, wait, signal gfx.Semaphore, fence gfx.Fence) error {
	info := gfx.SubmitInfo{CommandBuffers: []gfx.CommandBuffer{r.Current()}}
	if wait != 0 {
		info.WaitSemaphores = []gfx.Semaphore{wait}
		info.WaitStages = []gfx.PipelineStageFlags{gfx.PipelineStageColorAttachmentOutputBit}
	}
	if signal != 0 {
		info.SignalSemaphores = []gfx.Semaphore{signal}
	}
	if err := r.dev.QueueSubmit(queue, []gfx.SubmitInfo{info}, fence); err != nil {
		return fmt.Errorf("frame: submit slot %d: %w", r.current, err)
	}
	return nil
}

// Destroy frees the buffers and the pool. Every slot must have retired.
func (r *Recorder) Destroy() {
	if r.pool == 0 {
		return
	}
	r.dev.FreeCommandBuffers(r.pool, r.buffers)
	r.dev.DestroyCommandPool(r.pool)
	r.buffers = nil
	r.pool = 0
}
