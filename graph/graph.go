// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package graph orchestrates frames: it owns the presentable chain, the
// frame slots and the command buffers, and records an ordered list of
// nodes into every frame.
//
// A frame is BeginFrame, ExecuteFrame, EndFrame, all on one goroutine.
// Only Resize may be called from elsewhere.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/frame"
	"github.com/devblok/koruframe/frametrace"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/swapchain"
	"github.com/devblok/koruframe/window"
)

// Graph errors.
var (
	ErrFrameInProgress   = errors.New("graph: frame already in progress")
	ErrNoFrameInProgress = errors.New("graph: no frame in progress")
	ErrDuplicateNode     = errors.New("graph: duplicate node name")
	ErrNodeNotFound      = errors.New("graph: node not found")
	ErrShutdown          = errors.New("graph: shut down")
)

// clearValues are used by the first chain node of a frame when it has none.
var clearValues = []gfx.ClearValue{gfx.ClearColor(0, 0, 0, 1), gfx.ClearDepthStencil(1, 0)}

// Progress is a snapshot of the frame state.
type Progress struct {
	Slot       int
	ImageIndex uint32
	InProgress bool
	// Frames counts ended frames.
	Frames    uint64
	Minimized bool
}

// Option configures a Graph.
type Option func(*Graph)

// WithTrace records frame events into t.
func WithTrace(t *frametrace.Recorder) Option {
	return func(g *Graph) {
		g.trace = t
	}
}

// Graph is the frame orchestrator.
type Graph struct {
	ctx   *device.Context
	win   window.Window
	cfg   core.SwapchainConfiguration
	log   logrus.FieldLogger
	trace *frametrace.Recorder

	chain *swapchain.Chain
	sync  *frame.Synchronizer
	rec   *frame.Recorder
	nodes []Node

	progress Progress
	recorded bool
	recreate bool

	resizeMutex sync.Mutex
	resized     bool
	resizeTo    gfx.Extent2D
}

// New creates the chain, the frame slots and their command buffers.
func New(ctx *device.Context, win window.Window, cfg core.Configuration, opts ...Option) (*Graph, error) {
	g := &Graph{
		ctx: ctx,
		win: win,
		cfg: cfg.Swapchain,
		log: ctx.Log.WithField("component", "graph"),
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	if g.chain, err = swapchain.New(ctx, win, cfg.Swapchain); err != nil {
		return nil, err
	}
	if g.sync, err = frame.NewSynchronizer(ctx, cfg.Frame); err != nil {
		g.chain.Shutdown()
		return nil, err
	}
	if g.rec, err = frame.NewRecorder(ctx, g.sync.Slots()); err != nil {
		g.sync.Destroy()
		g.chain.Shutdown()
		return nil, err
	}
	g.log.WithField("slots", g.sync.Slots()).Info("Frame graph ready")
	return g, nil
}

// Chain returns the current presentable chain. It changes on recreation.
func (g *Graph) Chain() *swapchain.Chain {
	return g.chain
}

// ChainTarget returns a Target that follows the current chain.
func (g *Graph) ChainTarget() Target {
	return chainTarget{g}
}

// Progress returns the frame state.
func (g *Graph) Progress() Progress {
	return g.progress
}

// AddNode appends n to the graph.
func (g *Graph) AddNode(n Node) error {
	if g.progress.InProgress {
		return ErrFrameInProgress
	}
	if n.Name == "" || n.Pass == nil {
		return fmt.Errorf("graph: node %q needs a name and a pass", n.Name)
	}
	if g.index(n.Name) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.Name)
	}
	g.nodes = append(g.nodes, n)
	g.retargetNode(n)
	return nil
}

// RemoveNode removes the node called name.
func (g *Graph) RemoveNode(name string) error {
	if g.progress.InProgress {
		return ErrFrameInProgress
	}
	i := g.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	return nil
}

// Nodes returns the node names in execution order.
func (g *Graph) Nodes() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name
	}
	return names
}

func (g *Graph) index(name string) int {
	for i, n := range g.nodes {
		if n.Name == name {
			return i
		}
	}
	return -1
}

func (g *Graph) target(n Node) Target {
	if n.Target != nil {
		return n.Target
	}
	return chainTarget{g}
}

func (g *Graph) retargetNode(n Node) {
	extent := g.target(n).Extent()
	if r, ok := n.Target.(Retargeter); ok {
		r.Retarget(extent)
	}
	if r, ok := n.Pass.(Retargeter); ok {
		r.Retarget(extent)
	}
}

// Resize signals that the window changed size. Recreation happens at the
// start of the next frame. Safe to call from any goroutine.
func (g *Graph) Resize(width, height uint32) {
	g.resizeMutex.Lock()
	defer g.resizeMutex.Unlock()
	g.resized = true
	g.resizeTo = gfx.Extent2D{Width: width, Height: height}
}

func (g *Graph) takeResize() {
	g.resizeMutex.Lock()
	defer g.resizeMutex.Unlock()
	if g.resized {
		g.log.WithField("size", fmt.Sprintf("%dx%d", g.resizeTo.Width, g.resizeTo.Height)).Debug("Window resized")
		g.recreate = true
		g.resized = false
	}
}

func (g *Graph) event(kind frametrace.Kind, note string) {
	g.trace.Record(frametrace.Event{
		Kind:  kind,
		Frame: g.progress.Frames,
		Slot:  g.sync.Current(),
		Image: g.progress.ImageIndex,
		Note:  note,
	})
}

// BeginFrame waits for the current slot and acquires an image. It returns
// false without error when no frame can be drawn right now: the chain was
// out of date and got recreated, or the window is minimized.
func (g *Graph) BeginFrame() (bool, error) {
	if g.chain == nil {
		return false, ErrShutdown
	}
	if g.progress.InProgress {
		return false, ErrFrameInProgress
	}

	g.event(frametrace.FrameBegun, "")
	g.takeResize()
	if g.recreate {
		ok, err := g.recreateChain()
		if err != nil {
			return false, err
		}
		if !ok {
			g.event(frametrace.FrameSkipped, "minimized")
			return false, nil
		}
	}

	if err := g.sync.WaitCurrent(); err != nil {
		return false, err
	}
	g.event(frametrace.FenceWaited, "")

	index, status, err := g.sync.AcquireNextImage(g.chain)
	switch status {
	case swapchain.StatusOutOfDate:
		g.log.Debug("Chain out of date on acquire")
		g.recreate = true
		if _, err := g.recreateChain(); err != nil {
			return false, err
		}
		g.event(frametrace.FrameSkipped, "out of date")
		return false, nil
	case swapchain.StatusFatal:
		if strandsImage(err) {
			g.recreate = true
		}
		return false, err
	case swapchain.StatusSuboptimal:
		g.recreate = true
	}

	g.progress.Slot = g.sync.Current()
	g.progress.ImageIndex = index
	g.progress.InProgress = true
	g.recorded = false
	g.event(frametrace.ImageAcquired, status.String())
	return true, nil
}

// ExecuteFrame records every node in order into the current slot's
// command buffer. The first node on the chain clears the image, later
// chain nodes draw over it. A node error aborts the recording; EndFrame
// then presents a cleared image instead.
func (g *Graph) ExecuteFrame() error {
	if !g.progress.InProgress {
		return ErrNoFrameInProgress
	}
	g.recorded = false
	if err := g.begin(); err != nil {
		return err
	}

	dev := g.ctx.Device()
	cb := g.rec.Current()
	cleared := false
	for _, n := range g.nodes {
		target := g.target(n)
		extent := target.Extent()
		info := gfx.RenderPassBeginInfo{
			RenderPass:  target.RenderPass(),
			Framebuffer: target.Framebuffer(g.progress.ImageIndex),
			Area:        gfx.Rect2D{Extent: extent},
			ClearValues: n.ClearValues,
		}
		if _, ok := target.(chainTarget); ok {
			switch {
			case cleared:
				info.RenderPass = g.chain.LoadRenderPass()
				info.ClearValues = nil
			case len(info.ClearValues) == 0:
				info.ClearValues = clearValues
			}
			cleared = true
		}
		dev.CmdBeginRenderPass(cb, info)
		err := n.Pass.Execute(frame.NewRecording(dev, cb, g.progress.Slot, g.progress.ImageIndex, extent))
		dev.CmdEndRenderPass(cb)
		if err != nil {
			err = fmt.Errorf("graph: node %q: %w", n.Name, err)
			if eerr := g.rec.EndRecording(); eerr != nil {
				err = fmt.Errorf("%w, ending recording: %s", err, eerr)
			}
			return err
		}
	}

	if err := g.rec.EndRecording(); err != nil {
		return err
	}
	g.recorded = true
	return nil
}

func (g *Graph) begin() error {
	g.rec.Select(g.progress.Slot)
	if err := g.rec.ResetCurrent(); err != nil {
		return err
	}
	if err := g.rec.BeginRecording(); err != nil {
		return err
	}
	g.event(frametrace.RecordingBegun, "")
	return nil
}

// recordClear fills the current buffer with a single clearing pass so the
// acquired image can still be presented.
func (g *Graph) recordClear() error {
	if err := g.begin(); err != nil {
		return err
	}
	dev := g.ctx.Device()
	cb := g.rec.Current()
	dev.CmdBeginRenderPass(cb, gfx.RenderPassBeginInfo{
		RenderPass:  g.chain.RenderPass(),
		Framebuffer: g.chain.Framebuffer(g.progress.ImageIndex),
		Area:        gfx.Rect2D{Extent: g.chain.Extent()},
		ClearValues: clearValues,
	})
	dev.CmdEndRenderPass(cb)
	return g.rec.EndRecording()
}

// EndFrame submits the recorded frame and presents it. The graph is idle
// afterwards whatever the outcome.
func (g *Graph) EndFrame() error {
	if !g.progress.InProgress {
		return ErrNoFrameInProgress
	}
	defer func() {
		g.progress.InProgress = false
		g.progress.Frames++
		g.sync.AdvanceFrame()
	}()

	if !g.recorded {
		if err := g.recordClear(); err != nil {
			g.recreate = true
			return g.sync.Abandon(g.progress.ImageIndex, err)
		}
	}

	status, err := g.sync.SubmitFrame(g.rec.Current(), g.chain, g.progress.ImageIndex)
	switch status {
	case swapchain.StatusOK:
		g.event(frametrace.Submitted, "")
		g.event(frametrace.Presented, "")
	case swapchain.StatusOutOfDate, swapchain.StatusSuboptimal:
		g.log.WithField("status", status).Debug("Chain needs recreation after present")
		g.event(frametrace.Submitted, "")
		g.event(frametrace.Presented, status.String())
		g.recreate = true
	case swapchain.StatusFatal:
		if strandsImage(err) {
			g.recreate = true
		}
	}
	return err
}

// strandsImage reports whether err left an image acquired that will never
// be presented. Only a new chain releases it.
func strandsImage(err error) bool {
	var submitErr *frame.SubmitError
	var abandonErr *frame.AbandonError
	return errors.As(err, &submitErr) || errors.As(err, &abandonErr)
}

// RenderFrame runs one full frame. It reports whether a frame was drawn.
func (g *Graph) RenderFrame() (bool, error) {
	ok, err := g.BeginFrame()
	if !ok {
		return false, err
	}
	if err := g.ExecuteFrame(); err != nil {
		g.log.WithError(err).Warn("Frame recording failed, presenting cleared image")
	}
	if err := g.EndFrame(); err != nil {
		return false, err
	}
	return true, nil
}

// Recreate rebuilds the chain now. It reports false when the window is
// minimized, the recreation is then retried on the next frame.
func (g *Graph) Recreate() (bool, error) {
	if g.chain == nil {
		return false, ErrShutdown
	}
	if g.progress.InProgress {
		return false, ErrFrameInProgress
	}
	g.recreate = true
	return g.recreateChain()
}

func (g *Graph) recreateChain() (bool, error) {
	if err := g.sync.WaitAll(); err != nil {
		return false, err
	}
	next, err := swapchain.Initialise(g.ctx, g.win, g.cfg, g.chain)
	if errors.Is(err, swapchain.ErrZeroExtent) {
		if !g.progress.Minimized {
			g.log.Info("Window minimized, skipping frames")
		}
		g.progress.Minimized = true
		return false, nil
	}
	if err != nil {
		return false, err
	}

	old := g.chain
	g.chain = next
	old.Shutdown()
	g.sync.ResetImages()
	g.recreate = false
	g.progress.Minimized = false
	for _, n := range g.nodes {
		g.retargetNode(n)
	}

	extent := next.Extent()
	g.event(frametrace.ChainRecreated, fmt.Sprintf("%dx%d", extent.Width, extent.Height))
	g.log.WithFields(logrus.Fields{
		"width":  extent.Width,
		"height": extent.Height,
	}).Info("Recreated swapchain")
	return true, nil
}

// Shutdown drains every slot and releases everything the graph created.
// The device context stays with its owner.
func (g *Graph) Shutdown() {
	if g.chain == nil {
		return
	}
	if err := g.sync.WaitAll(); err != nil {
		g.log.WithError(err).Warn("Slots did not drain on shutdown")
	}
	g.sync.Destroy()
	g.rec.Destroy()
	g.chain.Shutdown()
	g.chain = nil
	g.nodes = nil
	g.progress.InProgress = false
	g.log.Info("Frame graph shut down")
}
