// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devblok/koruframe/gfx"
)

type kind string

const (
	kindSwapchain      kind = "swapchain"
	kindImage          kind = "image"
	kindImageView      kind = "image view"
	kindMemory         kind = "memory"
	kindRenderPass     kind = "render pass"
	kindFramebuffer    kind = "framebuffer"
	kindCommandPool    kind = "command pool"
	kindCommandBuffer  kind = "command buffer"
	kindFence          kind = "fence"
	kindSemaphore      kind = "semaphore"
	kindPipeline       kind = "pipeline"
	kindPipelineLayout kind = "pipeline layout"
)

type bufferState int

const (
	bufferInitial bufferState = iota
	bufferRecording
	bufferExecutable
	bufferPending
)

type commandBuffer struct {
	pool         gfx.CommandPool
	state        bufferState
	inRenderPass bool
	commands     []Command
	framebuffers []gfx.Framebuffer
	submitted    bool
	retiredAt    uint64
	uses         int
}

type fence struct {
	signaled   bool
	signaledAt uint64
	pending    *submission
}

type semaphore struct {
	count int
}

type swapchain struct {
	info    gfx.SwapchainCreateInfo
	images  []gfx.Image
	held    map[uint32]bool
	next    uint32
	retired bool
}

type image struct {
	info      gfx.ImageCreateInfo
	swapchain gfx.Swapchain
	memory    gfx.Memory
}

type submission struct {
	buffers []gfx.CommandBuffer
	fence   gfx.Fence
	at      uint64
}

// Command is one recorded command.
type Command struct {
	Op            string
	RenderPass    gfx.RenderPass
	Framebuffer   gfx.Framebuffer
	Area          gfx.Rect2D
	ClearValues   []gfx.ClearValue
	Viewport      gfx.Viewport
	Scissor       gfx.Rect2D
	Pipeline      gfx.Pipeline
	Layout        gfx.PipelineLayout
	Stages        gfx.ShaderStageFlags
	Offset        uint32
	Data          []byte
	VertexCount   uint32
	InstanceCount uint32
}

// Reuse records the start of a command buffer recording that follows an
// earlier submission of the same buffer.
type Reuse struct {
	Buffer       gfx.CommandBuffer
	Use          int
	BeganAt      uint64
	PriorRetired uint64
}

// Event is an entry of the device timeline.
type Event struct {
	At     uint64
	Op     string
	Handle uint64
	Index  uint32
}

// Device implements gfx.Device on a logical clock. Every call advances the
// clock by one tick.
type Device struct {
	// AcquireHook and PresentHook are consulted with the 1-based call number
	// before the operation runs. A non-nil error is returned as is, for
	// gfx.ErrSuboptimal the operation still completes.
	AcquireHook func(call int) error
	PresentHook func(call int) error
	// SubmitHook fails a queue submission before any state changes.
	SubmitHook func(call int) error
	// WaitHook fails a fence wait and BeginHook and EndHook a command
	// buffer begin or end, before any state changes.
	WaitHook  func(call int) error
	BeginHook func(call int) error
	EndHook   func(call int) error

	mutex      sync.Mutex
	adapter    *PhysicalDevice
	info       gfx.DeviceCreateInfo
	clock      uint64
	nextHandle uint64
	objects    map[uint64]kind

	swapchains   map[gfx.Swapchain]*swapchain
	images       map[gfx.Image]*image
	views        map[gfx.ImageView]gfx.ImageViewCreateInfo
	renderPasses map[gfx.RenderPass]gfx.RenderPassCreateInfo
	framebuffers map[gfx.Framebuffer]gfx.FramebufferCreateInfo
	pools        map[gfx.CommandPool]uint32
	buffers      map[gfx.CommandBuffer]*commandBuffer
	fences       map[gfx.Fence]*fence
	semaphores   map[gfx.Semaphore]*semaphore

	pending      []*submission
	acquireCalls int
	presentCalls int
	submitCalls  int
	waitCalls    int
	beginCalls   int
	endCalls     int
	violations   []string
	events       []Event
	reuses       []Reuse
	destroyed    bool
}

var _ gfx.Device = (*Device)(nil)

func newDevice(adapter *PhysicalDevice, info gfx.DeviceCreateInfo) *Device {
	return &Device{
		adapter:      adapter,
		info:         info,
		objects:      make(map[uint64]kind),
		swapchains:   make(map[gfx.Swapchain]*swapchain),
		images:       make(map[gfx.Image]*image),
		views:        make(map[gfx.ImageView]gfx.ImageViewCreateInfo),
		renderPasses: make(map[gfx.RenderPass]gfx.RenderPassCreateInfo),
		framebuffers: make(map[gfx.Framebuffer]gfx.FramebufferCreateInfo),
		pools:        make(map[gfx.CommandPool]uint32),
		buffers:      make(map[gfx.CommandBuffer]*commandBuffer),
		fences:       make(map[gfx.Fence]*fence),
		semaphores:   make(map[gfx.Semaphore]*semaphore),
	}
}

// CreateInfo returns the parameters the device was created with.
func (d *Device) CreateInfo() gfx.DeviceCreateInfo {
	return d.info
}

// Violations returns every misuse detected so far.
func (d *Device) Violations() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.violations...)
}

// TakeViolations returns the violations so far and clears the list.
func (d *Device) TakeViolations() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	v := d.violations
	d.violations = nil
	return v
}

// Events returns the device timeline.
func (d *Device) Events() []Event {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Event(nil), d.events...)
}

// EventsOf returns timeline entries with the given op.
func (d *Device) EventsOf(op string) []Event {
	var out []Event
	for _, e := range d.Events() {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

// Reuses returns every re-recording of a previously submitted command buffer.
func (d *Device) Reuses() []Reuse {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Reuse(nil), d.reuses...)
}

// Live returns the number of live objects per kind, zero counts omitted.
func (d *Device) Live() map[string]int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	live := make(map[string]int)
	for _, k := range d.objects {
		live[string(k)]++
	}
	return live
}

// LiveCount returns the total number of live objects.
func (d *Device) LiveCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.objects)
}

// Pending returns the number of submissions not yet retired.
func (d *Device) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.destroyed
}

// Commands returns the commands of the last recording of cb.
func (d *Device) Commands(cb gfx.CommandBuffer) []Command {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	b, ok := d.buffers[cb]
	if !ok {
		return nil
	}
	return append([]Command(nil), b.commands...)
}

// SwapchainCount returns the number of live swapchains.
func (d *Device) SwapchainCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.swapchains)
}

// Retire completes the oldest pending submission. It reports false when
// nothing is pending.
func (d *Device) Retire() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.pending) == 0 {
		return false
	}
	d.retire(1)
	return true
}

// RetireAll completes every pending submission.
func (d *Device) RetireAll() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.retire(len(d.pending))
}

func (d *Device) tick() uint64 {
	d.clock++
	return d.clock
}

func (d *Device) violate(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	d.violations = append(d.violations, msg)
	return errors.New(msg)
}

func (d *Device) record(op string, h uint64, index uint32) {
	d.events = append(d.events, Event{At: d.clock, Op: op, Handle: h, Index: index})
}

func (d *Device) create(k kind) uint64 {
	d.nextHandle++
	d.objects[d.nextHandle] = k
	return d.nextHandle
}

func (d *Device) release(k kind, h uint64) bool {
	if h == 0 {
		return false
	}
	if got, ok := d.objects[h]; !ok || got != k {
		d.violate("destroy of unknown %s %d", k, h)
		return false
	}
	delete(d.objects, h)
	return true
}

// retire completes the first n pending submissions in queue order.
func (d *Device) retire(n int) {
	for i := 0; i < n && len(d.pending) > 0; i++ {
		s := d.pending[0]
		d.pending = d.pending[1:]
		at := d.tick()
		for _, cb := range s.buffers {
			if b, ok := d.buffers[cb]; ok {
				b.state = bufferExecutable
				b.retiredAt = at
			}
		}
		if f, ok := d.fences[s.fence]; ok {
			f.signaled = true
			f.signaledAt = at
			f.pending = nil
		}
		d.record("retire", uint64(s.fence), 0)
	}
}

func (d *Device) pendingIndex(s *submission) int {
	for i, p := range d.pending {
		if p == s {
			return i
		}
	}
	return -1
}

// Queue implements interface
func (d *Device) Queue(family, index uint32) gfx.Queue {
	return gfx.Queue(uint64(family)<<32 | uint64(index) + 1)
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	d.retire(len(d.pending))
	d.record("wait-idle", 0, 0)
	return nil
}

// CreateSwapchain implements interface
func (d *Device) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, error) {
	caps := d.adapter.capabilities()
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()

	if err := d.adapter.checkSurface(info.Surface); err != nil {
		return 0, err
	}
	if info.Extent.Empty() {
		return 0, d.violate("swapchain with empty extent %v", info.Extent)
	}
	if info.Extent.Width < caps.MinImageExtent.Width || info.Extent.Height < caps.MinImageExtent.Height ||
		info.Extent.Width > caps.MaxImageExtent.Width || info.Extent.Height > caps.MaxImageExtent.Height {
		return 0, d.violate("swapchain extent %v outside surface limits", info.Extent)
	}
	if info.MinImageCount < caps.MinImageCount || (caps.MaxImageCount > 0 && info.MinImageCount > caps.MaxImageCount) {
		return 0, d.violate("swapchain image count %d outside [%d, %d]", info.MinImageCount, caps.MinImageCount, caps.MaxImageCount)
	}
	formatOK := false
	for _, f := range d.adapter.spec.Surface.Formats {
		if f == info.Format || f.Format == gfx.FormatUndefined {
			formatOK = true
		}
	}
	if !formatOK {
		return 0, d.violate("swapchain format %v not supported by surface", info.Format.Format)
	}
	modeOK := false
	for _, m := range d.adapter.spec.Surface.PresentModes {
		if m == info.PresentMode {
			modeOK = true
		}
	}
	if !modeOK {
		return 0, d.violate("present mode %v not supported by surface", info.PresentMode)
	}
	if info.OldSwapchain != 0 {
		old, ok := d.swapchains[info.OldSwapchain]
		if !ok {
			return 0, d.violate("old swapchain %d is not live", info.OldSwapchain)
		}
		old.retired = true
	}

	h := gfx.Swapchain(d.create(kindSwapchain))
	sc := &swapchain{info: info, held: make(map[uint32]bool)}
	for i := uint32(0); i < info.MinImageCount; i++ {
		d.nextHandle++
		img := gfx.Image(d.nextHandle)
		d.images[img] = &image{swapchain: h, info: gfx.ImageCreateInfo{
			Extent: info.Extent,
			Format: info.Format.Format,
			Usage:  gfx.ImageUsageColorAttachmentBit,
		}}
		sc.images = append(sc.images, img)
	}
	d.swapchains[h] = sc
	d.record("create-swapchain", uint64(h), info.MinImageCount)
	return h, nil
}

// DestroySwapchain implements interface
func (d *Device) DestroySwapchain(h gfx.Swapchain) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	sc, ok := d.swapchains[h]
	if !d.release(kindSwapchain, uint64(h)) || !ok {
		return
	}
	for _, img := range sc.images {
		for v, info := range d.views {
			if info.Image == img {
				d.violate("swapchain %d destroyed while view %d of its image is live", h, v)
			}
		}
		delete(d.images, img)
	}
	delete(d.swapchains, h)
	d.record("destroy-swapchain", uint64(h), 0)
}

// SwapchainImages implements interface
func (d *Device) SwapchainImages(h gfx.Swapchain) ([]gfx.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return nil, d.violate("images of unknown swapchain %d", h)
	}
	return append([]gfx.Image(nil), sc.images...), nil
}

// AcquireNextImage implements interface. Images are handed out round-robin
// among those not currently held by the application.
func (d *Device) AcquireNextImage(h gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore) (uint32, error) {
	caps := d.adapter.capabilities()
	lost := d.adapter.lost()
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	d.acquireCalls++

	sc, ok := d.swapchains[h]
	if !ok {
		return 0, d.violate("acquire on unknown swapchain %d", h)
	}
	sem, ok := d.semaphores[signal]
	if !ok {
		return 0, d.violate("acquire signals unknown semaphore %d", signal)
	}
	if lost {
		return 0, gfx.ErrSurfaceLost
	}
	var hookErr error
	if d.AcquireHook != nil {
		hookErr = d.AcquireHook(d.acquireCalls)
	}
	if hookErr != nil && !errors.Is(hookErr, gfx.ErrSuboptimal) {
		d.record("acquire-failed", uint64(h), 0)
		return 0, hookErr
	}
	if sc.retired || (caps.CurrentExtent != gfx.UndefinedExtent && caps.CurrentExtent != sc.info.Extent) {
		d.record("acquire-failed", uint64(h), 0)
		return 0, gfx.ErrOutOfDate
	}
	if len(sc.held) == len(sc.images) {
		return 0, d.violate("acquire with all %d images of swapchain %d held", len(sc.images), h)
	}
	if sem.count > 0 {
		d.violate("acquire signals semaphore %d that is already signaled", signal)
	}

	index := sc.next
	for sc.held[index] {
		index = (index + 1) % uint32(len(sc.images))
	}
	sc.next = (index + 1) % uint32(len(sc.images))
	sc.held[index] = true
	sem.count++
	d.record("acquire", uint64(h), index)
	return index, hookErr
}

// CreateImage implements interface
func (d *Device) CreateImage(info gfx.ImageCreateInfo) (gfx.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if info.Extent.Empty() {
		return 0, d.violate("image with empty extent")
	}
	h := gfx.Image(d.create(kindImage))
	d.images[h] = &image{info: info}
	return h, nil
}

// DestroyImage implements interface
func (d *Device) DestroyImage(h gfx.Image) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if img, ok := d.images[h]; ok && img.swapchain != 0 {
		d.violate("destroy of swapchain owned image %d", h)
		return
	}
	if d.release(kindImage, uint64(h)) {
		delete(d.images, h)
	}
}

// ImageMemoryRequirements implements interface. Every type but the first
// is acceptable for images.
func (d *Device) ImageMemoryRequirements(h gfx.Image) gfx.MemoryRequirements {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	img, ok := d.images[h]
	if !ok {
		return gfx.MemoryRequirements{}
	}
	size := uint64(img.info.Extent.Width) * uint64(img.info.Extent.Height) * 4
	if img.info.Samples > 1 {
		size *= uint64(img.info.Samples)
	}
	bits := uint32(1)<<uint(len(d.adapter.spec.Memory.Types)) - 1
	return gfx.MemoryRequirements{Size: size, Alignment: 256, MemoryTypeBits: bits &^ 1}
}

// AllocateMemory implements interface
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gfx.Memory, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if int(typeIndex) >= len(d.adapter.spec.Memory.Types) {
		return 0, d.violate("memory type %d out of range", typeIndex)
	}
	if size == 0 {
		return 0, d.violate("zero sized allocation")
	}
	return gfx.Memory(d.create(kindMemory)), nil
}

// FreeMemory implements interface
func (d *Device) FreeMemory(h gfx.Memory) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	for i, img := range d.images {
		if img.memory == h {
			d.violate("memory %d freed while bound to live image %d", h, i)
		}
	}
	d.release(kindMemory, uint64(h))
}

// BindImageMemory implements interface
func (d *Device) BindImageMemory(h gfx.Image, m gfx.Memory) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	img, ok := d.images[h]
	if !ok || img.swapchain != 0 {
		return d.violate("bind memory to invalid image %d", h)
	}
	if d.objects[uint64(m)] != kindMemory {
		return d.violate("bind unknown memory %d", m)
	}
	if img.memory != 0 {
		return d.violate("image %d already bound", h)
	}
	img.memory = m
	return nil
}

// CreateImageView implements interface
func (d *Device) CreateImageView(info gfx.ImageViewCreateInfo) (gfx.ImageView, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	img, ok := d.images[info.Image]
	if !ok {
		return 0, d.violate("view of unknown image %d", info.Image)
	}
	if img.swapchain == 0 && img.memory == 0 {
		return 0, d.violate("view of image %d without bound memory", info.Image)
	}
	h := gfx.ImageView(d.create(kindImageView))
	d.views[h] = info
	return h, nil
}

// DestroyImageView implements interface
func (d *Device) DestroyImageView(h gfx.ImageView) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	for fb, info := range d.framebuffers {
		for _, a := range info.Attachments {
			if a == h {
				d.violate("view %d destroyed while framebuffer %d uses it", h, fb)
			}
		}
	}
	if d.release(kindImageView, uint64(h)) {
		delete(d.views, h)
	}
}

// CreateRenderPass implements interface
func (d *Device) CreateRenderPass(info gfx.RenderPassCreateInfo) (gfx.RenderPass, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if info.ColorFormat == gfx.FormatUndefined {
		return 0, d.violate("render pass without color format")
	}
	h := gfx.RenderPass(d.create(kindRenderPass))
	d.renderPasses[h] = info
	return h, nil
}

// DestroyRenderPass implements interface
func (d *Device) DestroyRenderPass(h gfx.RenderPass) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if d.release(kindRenderPass, uint64(h)) {
		delete(d.renderPasses, h)
	}
}

// CreateFramebuffer implements interface. Attachments must be live and the
// color attachment format must match the render pass.
func (d *Device) CreateFramebuffer(info gfx.FramebufferCreateInfo) (gfx.Framebuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	rp, ok := d.renderPasses[info.RenderPass]
	if !ok {
		return 0, d.violate("framebuffer on unknown render pass %d", info.RenderPass)
	}
	if len(info.Attachments) == 0 {
		return 0, d.violate("framebuffer without attachments")
	}
	for _, a := range info.Attachments {
		if _, ok := d.views[a]; !ok {
			return 0, d.violate("framebuffer attachment %d is not a live view", a)
		}
	}
	if first := d.views[info.Attachments[0]]; first.Format != rp.ColorFormat {
		return 0, d.violate("framebuffer color %v incompatible with render pass %v", first.Format, rp.ColorFormat)
	}
	h := gfx.Framebuffer(d.create(kindFramebuffer))
	d.framebuffers[h] = info
	return h, nil
}

// DestroyFramebuffer implements interface
func (d *Device) DestroyFramebuffer(h gfx.Framebuffer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	for cbh, cb := range d.buffers {
		if cb.state != bufferPending {
			continue
		}
		for _, fb := range cb.framebuffers {
			if fb == h {
				d.violate("framebuffer %d destroyed while command buffer %d is pending", h, cbh)
			}
		}
	}
	if d.release(kindFramebuffer, uint64(h)) {
		delete(d.framebuffers, h)
	}
}

// CreateCommandPool implements interface
func (d *Device) CreateCommandPool(family uint32) (gfx.CommandPool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if int(family) >= len(d.adapter.spec.QueueFamilies) {
		return 0, d.violate("command pool on family %d out of range", family)
	}
	h := gfx.CommandPool(d.create(kindCommandPool))
	d.pools[h] = family
	return h, nil
}

// DestroyCommandPool implements interface
func (d *Device) DestroyCommandPool(h gfx.CommandPool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	for cbh, cb := range d.buffers {
		if cb.pool != h {
			continue
		}
		if cb.state == bufferPending {
			d.violate("command pool %d destroyed while buffer %d is pending", h, cbh)
		}
		delete(d.objects, uint64(cbh))
		delete(d.buffers, cbh)
	}
	if d.release(kindCommandPool, uint64(h)) {
		delete(d.pools, h)
	}
}

// AllocateCommandBuffers implements interface
func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, count int) ([]gfx.CommandBuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if _, ok := d.pools[pool]; !ok {
		return nil, d.violate("allocate from unknown pool %d", pool)
	}
	out := make([]gfx.CommandBuffer, count)
	for i := range out {
		h := gfx.CommandBuffer(d.create(kindCommandBuffer))
		d.buffers[h] = &commandBuffer{pool: pool}
		out[i] = h
	}
	return out, nil
}

// FreeCommandBuffers implements interface
func (d *Device) FreeCommandBuffers(pool gfx.CommandPool, buffers []gfx.CommandBuffer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	for _, h := range buffers {
		cb, ok := d.buffers[h]
		if !ok || cb.pool != pool {
			d.violate("free of command buffer %d not from pool %d", h, pool)
			continue
		}
		if cb.state == bufferPending {
			d.violate("free of pending command buffer %d", h)
		}
		d.release(kindCommandBuffer, uint64(h))
		delete(d.buffers, h)
	}
}

// ResetCommandBuffer implements interface
func (d *Device) ResetCommandBuffer(h gfx.CommandBuffer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	cb, ok := d.buffers[h]
	if !ok {
		return d.violate("reset of unknown command buffer %d", h)
	}
	if cb.state == bufferPending {
		return d.violate("reset of command buffer %d pending execution", h)
	}
	cb.state = bufferInitial
	cb.inRenderPass = false
	cb.commands = nil
	cb.framebuffers = nil
	return nil
}

// BeginCommandBuffer implements interface
func (d *Device) BeginCommandBuffer(h gfx.CommandBuffer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	at := d.tick()
	d.beginCalls++
	if d.BeginHook != nil {
		if err := d.BeginHook(d.beginCalls); err != nil {
			d.record("begin-failed", uint64(h), 0)
			return err
		}
	}
	cb, ok := d.buffers[h]
	if !ok {
		return d.violate("begin of unknown command buffer %d", h)
	}
	switch cb.state {
	case bufferPending:
		return d.violate("begin of command buffer %d pending execution", h)
	case bufferRecording:
		return d.violate("begin of command buffer %d already recording", h)
	}
	cb.uses++
	if cb.submitted {
		d.reuses = append(d.reuses, Reuse{Buffer: h, Use: cb.uses, BeganAt: at, PriorRetired: cb.retiredAt})
	}
	cb.state = bufferRecording
	cb.inRenderPass = false
	cb.commands = nil
	cb.framebuffers = nil
	d.record("begin", uint64(h), 0)
	return nil
}

// EndCommandBuffer implements interface
func (d *Device) EndCommandBuffer(h gfx.CommandBuffer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	d.endCalls++
	if d.EndHook != nil {
		if err := d.EndHook(d.endCalls); err != nil {
			d.record("end-failed", uint64(h), 0)
			return err
		}
	}
	cb, ok := d.buffers[h]
	if !ok || cb.state != bufferRecording {
		return d.violate("end of command buffer %d not recording", h)
	}
	if cb.inRenderPass {
		return d.violate("end of command buffer %d inside a render pass", h)
	}
	cb.state = bufferExecutable
	d.record("end", uint64(h), 0)
	return nil
}

func (d *Device) recording(h gfx.CommandBuffer, op string, insidePass bool) *commandBuffer {
	cb, ok := d.buffers[h]
	if !ok || cb.state != bufferRecording {
		d.violate("%s on command buffer %d not recording", op, h)
		return nil
	}
	if insidePass && !cb.inRenderPass {
		d.violate("%s outside a render pass", op)
	}
	return cb
}

// CmdBeginRenderPass implements interface
func (d *Device) CmdBeginRenderPass(h gfx.CommandBuffer, info gfx.RenderPassBeginInfo) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	cb := d.recording(h, "begin render pass", false)
	if cb == nil {
		return
	}
	if cb.inRenderPass {
		d.violate("nested render pass on command buffer %d", h)
	}
	if rp, ok := d.renderPasses[info.RenderPass]; !ok {
		d.violate("begin of unknown render pass %d", info.RenderPass)
	} else {
		if len(info.ClearValues) < rp.ClearCount() {
			d.violate("render pass %d clears %d attachments, got %d clear values", info.RenderPass, rp.ClearCount(), len(info.ClearValues))
		}
		if rp.Load && !containsFramebuffer(cb.framebuffers, info.Framebuffer) {
			d.violate("render pass %d loads framebuffer %d before anything was rendered to it", info.RenderPass, info.Framebuffer)
		}
	}
	fb, ok := d.framebuffers[info.Framebuffer]
	if !ok {
		d.violate("begin render pass on unknown framebuffer %d", info.Framebuffer)
	} else if fb.RenderPass != info.RenderPass {
		if d.renderPasses[fb.RenderPass].ColorFormat != d.renderPasses[info.RenderPass].ColorFormat {
			d.violate("framebuffer %d incompatible with render pass %d", info.Framebuffer, info.RenderPass)
		}
	}
	cb.inRenderPass = true
	cb.framebuffers = append(cb.framebuffers, info.Framebuffer)
	cb.commands = append(cb.commands, Command{
		Op:          "BeginRenderPass",
		RenderPass:  info.RenderPass,
		Framebuffer: info.Framebuffer,
		Area:        info.Area,
		ClearValues: append([]gfx.ClearValue(nil), info.ClearValues...),
	})
}

func containsFramebuffer(list []gfx.Framebuffer, fb gfx.Framebuffer) bool {
	for _, f := range list {
		if f == fb {
			return true
		}
	}
	return false
}

// CmdEndRenderPass implements interface
func (d *Device) CmdEndRenderPass(h gfx.CommandBuffer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	cb := d.recording(h, "end render pass", true)
	if cb == nil {
		return
	}
	cb.inRenderPass = false
	cb.commands = append(cb.commands, Command{Op: "EndRenderPass"})
}

// CmdSetViewport implements interface
func (d *Device) CmdSetViewport(h gfx.CommandBuffer, v gfx.Viewport) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if cb := d.recording(h, "set viewport", false); cb != nil {
		cb.commands = append(cb.commands, Command{Op: "SetViewport", Viewport: v})
	}
}

// CmdSetScissor implements interface
func (d *Device) CmdSetScissor(h gfx.CommandBuffer, r gfx.Rect2D) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if cb := d.recording(h, "set scissor", false); cb != nil {
		cb.commands = append(cb.commands, Command{Op: "SetScissor", Scissor: r})
	}
}

// CmdBindPipeline implements interface
func (d *Device) CmdBindPipeline(h gfx.CommandBuffer, p gfx.Pipeline) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if cb := d.recording(h, "bind pipeline", false); cb != nil {
		cb.commands = append(cb.commands, Command{Op: "BindPipeline", Pipeline: p})
	}
}

// CmdPushConstants implements interface
func (d *Device) CmdPushConstants(h gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStageFlags, offset uint32, data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if cb := d.recording(h, "push constants", false); cb != nil {
		if offset%4 != 0 || len(data)%4 != 0 {
			d.violate("push constant range %d+%d not aligned to 4", offset, len(data))
		}
		cb.commands = append(cb.commands, Command{
			Op:     "PushConstants",
			Layout: layout,
			Stages: stages,
			Offset: offset,
			Data:   append([]byte(nil), data...),
		})
	}
}

// CmdDraw implements interface
func (d *Device) CmdDraw(h gfx.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if cb := d.recording(h, "draw", true); cb != nil {
		cb.commands = append(cb.commands, Command{Op: "Draw", VertexCount: vertexCount, InstanceCount: instanceCount})
	}
}

// CreateFence implements interface
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	at := d.tick()
	h := gfx.Fence(d.create(kindFence))
	f := &fence{signaled: signaled}
	if signaled {
		f.signaledAt = at
	}
	d.fences[h] = f
	return h, nil
}

// DestroyFence implements interface
func (d *Device) DestroyFence(h gfx.Fence) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if f, ok := d.fences[h]; ok && f.pending != nil {
		d.violate("fence %d destroyed while its submission is pending", h)
	}
	if d.release(kindFence, uint64(h)) {
		delete(d.fences, h)
	}
}

// WaitForFences implements interface. Waiting on a fence with pending work
// retires the queue up to that work; waiting on an unsignaled fence with no
// work behind it would block forever and reports gfx.ErrTimeout instead.
func (d *Device) WaitForFences(fences []gfx.Fence, timeout time.Duration) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	d.waitCalls++
	if d.WaitHook != nil {
		if err := d.WaitHook(d.waitCalls); err != nil {
			d.record("wait-failed", 0, 0)
			return err
		}
	}
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return d.violate("wait on unknown fence %d", h)
		}
		if f.signaled {
			continue
		}
		if f.pending == nil {
			d.record("wait-timeout", uint64(h), 0)
			return gfx.ErrTimeout
		}
		if i := d.pendingIndex(f.pending); i >= 0 {
			d.retire(i + 1)
		}
	}
	d.tick()
	for _, h := range fences {
		d.record("wait", uint64(h), 0)
	}
	return nil
}

// ResetFences implements interface
func (d *Device) ResetFences(fences []gfx.Fence) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return d.violate("reset of unknown fence %d", h)
		}
		if f.pending != nil {
			return d.violate("reset of fence %d with pending submission", h)
		}
		f.signaled = false
		d.record("reset-fence", uint64(h), 0)
	}
	return nil
}

// CreateSemaphore implements interface
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	h := gfx.Semaphore(d.create(kindSemaphore))
	d.semaphores[h] = &semaphore{}
	return h, nil
}

// DestroySemaphore implements interface
func (d *Device) DestroySemaphore(h gfx.Semaphore) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if d.release(kindSemaphore, uint64(h)) {
		delete(d.semaphores, h)
	}
}

// QueueSubmit implements interface
func (d *Device) QueueSubmit(queue gfx.Queue, submits []gfx.SubmitInfo, fenceHandle gfx.Fence) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	at := d.tick()
	d.submitCalls++
	if d.SubmitHook != nil {
		if err := d.SubmitHook(d.submitCalls); err != nil {
			d.record("submit-failed", uint64(fenceHandle), 0)
			return err
		}
	}

	var f *fence
	if fenceHandle != 0 {
		var ok bool
		if f, ok = d.fences[fenceHandle]; !ok {
			return d.violate("submit with unknown fence %d", fenceHandle)
		}
		if f.signaled || f.pending != nil {
			return d.violate("submit with fence %d that is not reset", fenceHandle)
		}
	}
	for _, s := range submits {
		if len(s.WaitSemaphores) != len(s.WaitStages) {
			return d.violate("submit with %d wait semaphores and %d stages", len(s.WaitSemaphores), len(s.WaitStages))
		}
		for _, w := range s.WaitSemaphores {
			sem, ok := d.semaphores[w]
			if !ok || sem.count == 0 {
				return d.violate("submit waits on semaphore %d that will never signal", w)
			}
		}
		for _, h := range s.CommandBuffers {
			cb, ok := d.buffers[h]
			if !ok || cb.state != bufferExecutable {
				return d.violate("submit of command buffer %d that is not executable", h)
			}
		}
	}

	sub := &submission{fence: fenceHandle, at: at}
	for _, s := range submits {
		for _, w := range s.WaitSemaphores {
			d.semaphores[w].count--
		}
		for _, h := range s.CommandBuffers {
			cb := d.buffers[h]
			cb.state = bufferPending
			cb.submitted = true
			sub.buffers = append(sub.buffers, h)
		}
		for _, sig := range s.SignalSemaphores {
			sem, ok := d.semaphores[sig]
			if !ok {
				d.violate("submit signals unknown semaphore %d", sig)
				continue
			}
			if sem.count > 0 {
				d.violate("submit signals semaphore %d that is already signaled", sig)
			}
			sem.count++
		}
	}
	if f != nil {
		f.pending = sub
	}
	d.pending = append(d.pending, sub)
	for _, h := range sub.buffers {
		d.record("submit", uint64(h), 0)
	}
	return nil
}

// QueuePresent implements interface
func (d *Device) QueuePresent(queue gfx.Queue, info gfx.PresentInfo) error {
	caps := d.adapter.capabilities()
	lost := d.adapter.lost()
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	d.presentCalls++

	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return d.violate("present on unknown swapchain %d", info.Swapchain)
	}
	if !sc.held[info.ImageIndex] {
		return d.violate("present of image %d that was not acquired", info.ImageIndex)
	}
	for _, w := range info.WaitSemaphores {
		sem, ok := d.semaphores[w]
		if !ok || sem.count == 0 {
			return d.violate("present waits on semaphore %d that will never signal", w)
		}
	}
	for _, w := range info.WaitSemaphores {
		d.semaphores[w].count--
	}
	delete(sc.held, info.ImageIndex)

	if lost {
		return gfx.ErrSurfaceLost
	}
	if d.PresentHook != nil {
		if err := d.PresentHook(d.presentCalls); err != nil {
			d.record("present-failed", uint64(info.Swapchain), info.ImageIndex)
			return err
		}
	}
	d.record("present", uint64(info.Swapchain), info.ImageIndex)
	if caps.CurrentExtent != gfx.UndefinedExtent && caps.CurrentExtent != sc.info.Extent {
		return gfx.ErrOutOfDate
	}
	return nil
}

// Destroy implements interface
func (d *Device) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	if len(d.pending) > 0 {
		d.violate("device destroyed with %d pending submissions", len(d.pending))
	}
	if len(d.objects) > 0 {
		var kinds []string
		for _, k := range d.objects {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		d.violate("device destroyed with %d live objects: %v", len(d.objects), kinds)
	}
	d.destroyed = true
}

// CreatePipeline registers a placeholder graphics pipeline with its layout.
// Pipeline authoring is outside the driver surface; passes only bind them.
func (d *Device) CreatePipeline() (gfx.Pipeline, gfx.PipelineLayout) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	return gfx.Pipeline(d.create(kindPipeline)), gfx.PipelineLayout(d.create(kindPipelineLayout))
}

// DestroyPipeline releases handles from CreatePipeline.
func (d *Device) DestroyPipeline(p gfx.Pipeline, l gfx.PipelineLayout) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.tick()
	d.release(kindPipeline, uint64(p))
	d.release(kindPipelineLayout, uint64(l))
}
