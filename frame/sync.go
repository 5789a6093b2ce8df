// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frame paces frames in flight: per slot synchronization objects,
// one command buffer per slot and the recording handle passes draw with.
package frame

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/swapchain"
)

// Slot holds the synchronization objects of one frame in flight.
type Slot struct {
	InFlight       gfx.Fence
	ImageAvailable gfx.Semaphore
	RenderFinished gfx.Semaphore
}

// SubmitError reports a rejected queue submission. The acquired image was
// neither rendered nor presented.
type SubmitError struct {
	Slot int
	Err  error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("frame: submit slot %d: %s", e.Slot, e.Err)
}

// Unwrap returns the driver error.
func (e *SubmitError) Unwrap() error {
	return e.Err
}

// AbandonError reports a frame given up between acquisition and
// submission. The slot got a fresh image semaphore, the image stays
// acquired until its chain is replaced.
type AbandonError struct {
	Slot  int
	Image uint32
	Err   error
}

func (e *AbandonError) Error() string {
	return fmt.Sprintf("frame: abandoned image %d of slot %d: %s", e.Image, e.Slot, e.Err)
}

// Unwrap returns the cause.
func (e *AbandonError) Unwrap() error {
	return e.Err
}

// Synchronizer owns the slots and the slot counter.
type Synchronizer struct {
	dev     gfx.Device
	queue   gfx.Queue
	log     logrus.FieldLogger
	timeout time.Duration

	slots   []Slot
	current int

	// fence of the slot that last rendered into each image
	imagesInFlight map[uint32]gfx.Fence
}

// NewSynchronizer creates FramesInFlight slots. Fences start signaled so
// the first wait on every slot returns at once.
func NewSynchronizer(ctx *device.Context, cfg core.FrameConfiguration) (*Synchronizer, error) {
	if cfg.FramesInFlight < 1 {
		return nil, fmt.Errorf("frame: %d frames in flight", cfg.FramesInFlight)
	}
	timeout := cfg.FenceTimeout
	if timeout <= 0 {
		timeout = gfx.NoTimeout
	}
	s := &Synchronizer{
		dev:            ctx.Device(),
		queue:          ctx.Provider.GraphicsQueue(),
		log:            ctx.Log.WithField("component", "frame"),
		timeout:        timeout,
		slots:          make([]Slot, cfg.FramesInFlight),
		imagesInFlight: make(map[uint32]gfx.Fence),
	}
	for i := range s.slots {
		if err := s.createSlot(&s.slots[i]); err != nil {
			s.destroySlots()
			return nil, err
		}
	}
	return s, nil
}

func (s *Synchronizer) createSlot(slot *Slot) error {
	var err error
	if slot.InFlight, err = s.dev.CreateFence(true); err != nil {
		return fmt.Errorf("frame: fence: %w", err)
	}
	if slot.ImageAvailable, err = s.dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("frame: semaphore: %w", err)
	}
	if slot.RenderFinished, err = s.dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("frame: semaphore: %w", err)
	}
	return nil
}

func (s *Synchronizer) destroySlot(slot *Slot) {
	if slot.InFlight != 0 {
		s.dev.DestroyFence(slot.InFlight)
	}
	if slot.ImageAvailable != 0 {
		s.dev.DestroySemaphore(slot.ImageAvailable)
	}
	if slot.RenderFinished != 0 {
		s.dev.DestroySemaphore(slot.RenderFinished)
	}
	*slot = Slot{}
}

func (s *Synchronizer) destroySlots() {
	for i := range s.slots {
		s.destroySlot(&s.slots[i])
	}
}

// Slots returns the number of frames in flight.
func (s *Synchronizer) Slots() int {
	return len(s.slots)
}

// Current returns the current slot index.
func (s *Synchronizer) Current() int {
	return s.current
}

// CurrentSlot returns the objects of the current slot.
func (s *Synchronizer) CurrentSlot() Slot {
	return s.slots[s.current]
}

// WaitCurrent blocks until the previous submission of the current slot
// has retired.
func (s *Synchronizer) WaitCurrent() error {
	if err := s.dev.WaitForFences([]gfx.Fence{s.slots[s.current].InFlight}, s.timeout); err != nil {
		return fmt.Errorf("frame: wait slot %d: %w", s.current, err)
	}
	return nil
}

// AcquireNextImage acquires with the current slot's image available
// semaphore. When another slot still renders into the returned image its
// fence is waited before returning. If that wait fails the frame is
// abandoned and an *AbandonError returned.
func (s *Synchronizer) AcquireNextImage(chain *swapchain.Chain) (uint32, swapchain.Status, error) {
	slot := s.slots[s.current]
	index, status, err := chain.AcquireNextImage(slot.ImageAvailable)
	if err != nil || status == swapchain.StatusOutOfDate {
		return index, status, err
	}
	if fence, ok := s.imagesInFlight[index]; ok && fence != slot.InFlight {
		if err := s.dev.WaitForFences([]gfx.Fence{fence}, s.timeout); err != nil {
			return index, swapchain.StatusFatal, s.Abandon(index, fmt.Errorf("wait image %d: %w", index, err))
		}
		s.log.WithField("image", index).Debug("Waited for image still in flight")
	}
	s.imagesInFlight[index] = slot.InFlight
	return index, status, nil
}

// SubmitFrame waits and resets the current slot fence, submits cb waiting
// for the acquired image at color attachment output, then presents the
// image once rendering finished. When submission fails the slot gets a
// fresh signaled fence and semaphore so the next frame cannot deadlock.
func (s *Synchronizer) SubmitFrame(cb gfx.CommandBuffer, chain *swapchain.Chain, imageIndex uint32) (swapchain.Status, error) {
	slot := &s.slots[s.current]
	fences := []gfx.Fence{slot.InFlight}
	if err := s.dev.WaitForFences(fences, s.timeout); err != nil {
		return swapchain.StatusFatal, fmt.Errorf("frame: wait slot %d: %w", s.current, err)
	}
	if err := s.dev.ResetFences(fences); err != nil {
		return swapchain.StatusFatal, fmt.Errorf("frame: reset slot %d: %w", s.current, err)
	}

	err := s.dev.QueueSubmit(s.queue, []gfx.SubmitInfo{{
		WaitSemaphores:   []gfx.Semaphore{slot.ImageAvailable},
		WaitStages:       []gfx.PipelineStageFlags{gfx.PipelineStageColorAttachmentOutputBit},
		CommandBuffers:   []gfx.CommandBuffer{cb},
		SignalSemaphores: []gfx.Semaphore{slot.RenderFinished},
	}}, slot.InFlight)
	if err != nil {
		if rerr := s.replaceSlot(); rerr != nil {
			err = fmt.Errorf("%w, replacing slot: %s", err, rerr)
		}
		return swapchain.StatusFatal, &SubmitError{Slot: s.current, Err: err}
	}

	return chain.Present(imageIndex, slot.RenderFinished)
}

// Abandon gives up the current frame after imageIndex was acquired and
// before anything was submitted. The image semaphore still holds the
// acquisition signal, so the slot objects are replaced.
func (s *Synchronizer) Abandon(imageIndex uint32, cause error) error {
	if err := s.replaceSlot(); err != nil {
		cause = fmt.Errorf("%w, replacing slot: %s", cause, err)
	}
	return &AbandonError{Slot: s.current, Image: imageIndex, Err: cause}
}

// replaceSlot swaps the fence and image semaphore of the current slot for
// new ones. The old fence has no pending submission, the semaphore may
// still hold the acquisition signal.
func (s *Synchronizer) replaceSlot() error {
	slot := &s.slots[s.current]
	old := *slot
	fresh := Slot{RenderFinished: old.RenderFinished}
	var err error
	if fresh.InFlight, err = s.dev.CreateFence(true); err != nil {
		return err
	}
	if fresh.ImageAvailable, err = s.dev.CreateSemaphore(); err != nil {
		s.dev.DestroyFence(fresh.InFlight)
		return err
	}
	for index, f := range s.imagesInFlight {
		if f == old.InFlight {
			delete(s.imagesInFlight, index)
		}
	}
	s.dev.DestroyFence(old.InFlight)
	s.dev.DestroySemaphore(old.ImageAvailable)
	*slot = fresh
	s.log.WithField("slot", s.current).Warn("Replaced synchronization objects of dropped frame")
	return nil
}

// AdvanceFrame moves to the next slot.
func (s *Synchronizer) AdvanceFrame() {
	s.current = (s.current + 1) % len(s.slots)
}

// WaitAll blocks until every slot has retired.
func (s *Synchronizer) WaitAll() error {
	fences := make([]gfx.Fence, len(s.slots))
	for i, slot := range s.slots {
		fences[i] = slot.InFlight
	}
	if err := s.dev.WaitForFences(fences, s.timeout); err != nil {
		return fmt.Errorf("frame: wait all: %w", err)
	}
	return nil
}

// ResetImages forgets image ownership, used once a chain is replaced.
func (s *Synchronizer) ResetImages() {
	s.imagesInFlight = make(map[uint32]gfx.Fence)
}

// Destroy drains every slot and releases the objects.
func (s *Synchronizer) Destroy() {
	if err := s.WaitAll(); err != nil {
		s.log.WithError(err).Warn("Slots did not drain before destroy")
	}
	s.destroySlots()
	s.imagesInFlight = nil
}
