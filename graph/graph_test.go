// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/frame"
	"github.com/devblok/koruframe/frametrace"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/gfx/gfxtest"
	"github.com/devblok/koruframe/graph"
	"github.com/devblok/koruframe/model"
)

type fixture struct {
	graph   *graph.Graph
	adapter *gfxtest.PhysicalDevice
	dev     *gfxtest.Device
	trace   *frametrace.Recorder
	hook    *test.Hook
}

func newFixture(c *qt.C, framesInFlight int) *fixture {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	cfg := core.DefaultConfiguration()
	cfg.Swapchain.Size = 3
	cfg.Frame.FramesInFlight = framesInFlight

	inst := gfxtest.NewInstance()
	ctx, err := device.NewContext(inst, inst.CreateSurface(), cfg.Device, log)
	c.Assert(err, qt.IsNil)

	f := &fixture{
		adapter: inst.Adapter(0),
		dev:     inst.Adapter(0).Device(),
		trace:   frametrace.New(1024),
		hook:    hook,
	}
	f.graph, err = graph.New(ctx, gfxtest.NewWindow(800, 600), cfg, graph.WithTrace(f.trace))
	c.Assert(err, qt.IsNil)

	c.Cleanup(func() {
		f.graph.Shutdown()
		ctx.Destroy()
		c.Check(f.dev.Violations(), qt.HasLen, 0)
	})
	return f
}

// pipeline registers a placeholder pipeline released before the device.
func (f *fixture) pipeline(c *qt.C) (gfx.Pipeline, gfx.PipelineLayout) {
	p, l := f.dev.CreatePipeline()
	c.Cleanup(func() {
		f.dev.DestroyPipeline(p, l)
	})
	return p, l
}

// lastSubmitted returns the command buffer of the latest submission.
func (f *fixture) lastSubmitted(c *qt.C) gfx.CommandBuffer {
	submits := f.dev.EventsOf("submit")
	c.Assert(submits, qt.Not(qt.HasLen), 0)
	return gfx.CommandBuffer(submits[len(submits)-1].Handle)
}

func (f *fixture) frame(c *qt.C) graph.Progress {
	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	progress := f.graph.Progress()
	c.Assert(f.graph.ExecuteFrame(), qt.IsNil)
	c.Assert(f.graph.EndFrame(), qt.IsNil)
	return progress
}

func ops(cmds []gfxtest.Command) []string {
	var out []string
	for _, cmd := range cmds {
		out = append(out, cmd.Op)
	}
	return out
}

type extentRecorder struct {
	extents []gfx.Extent2D
}

func (r *extentRecorder) Retarget(extent gfx.Extent2D) {
	r.extents = append(r.extents, extent)
}

func (r *extentRecorder) Execute(*frame.Recording) error {
	return nil
}

func TestFiveCyclesThreeImagesTwoSlots(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	c.Assert(f.graph.Chain().ImageCount(), qt.Equals, 3)

	var slots []int
	for i := 0; i < 5; i++ {
		p := f.frame(c)
		c.Assert(p.InProgress, qt.IsTrue)
		c.Assert(p.ImageIndex < 3, qt.IsTrue, qt.Commentf("cycle %d image %d", i, p.ImageIndex))
		slots = append(slots, p.Slot)
	}
	c.Assert(slots, qt.DeepEquals, []int{0, 1, 0, 1, 0})
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 5)
	c.Assert(f.graph.Progress().Frames, qt.Equals, uint64(5))
	c.Assert(f.graph.Progress().InProgress, qt.IsFalse)
}

func TestSlotWrapsAfterFramesInFlight(t *testing.T) {
	c := qt.New(t)

	for _, m := range []int{1, 2, 3} {
		c.Run(fmt.Sprintf("m=%d", m), func(c *qt.C) {
			f := newFixture(c, m)
			for i := 0; i < m; i++ {
				c.Assert(f.frame(c).Slot, qt.Equals, i)
			}
			c.Assert(f.frame(c).Slot, qt.Equals, 0)
		})
	}
}

func TestOutOfDateOnThirdCycle(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.dev.AcquireHook = func(call int) error {
		if call == 3 {
			return gfx.ErrOutOfDate
		}
		return nil
	}

	f.frame(c)
	f.frame(c)
	before := f.graph.Chain()

	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(f.graph.Progress().InProgress, qt.IsFalse)
	c.Assert(f.graph.Chain(), qt.Not(qt.Equals), before)
	c.Assert(f.dev.SwapchainCount(), qt.Equals, 1)
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 1)
	c.Assert(f.trace.Of(frametrace.FrameSkipped), qt.HasLen, 1)

	p := f.frame(c)
	c.Assert(p.Slot, qt.Equals, 0)
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 3)
}

func TestBeginFrameWhileInProgress(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	c.Assert(f.graph.ExecuteFrame(), qt.Equals, graph.ErrNoFrameInProgress)
	c.Assert(f.graph.EndFrame(), qt.Equals, graph.ErrNoFrameInProgress)

	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	progress := f.graph.Progress()

	ok, err = f.graph.BeginFrame()
	c.Assert(err, qt.Equals, graph.ErrFrameInProgress)
	c.Assert(ok, qt.IsFalse)
	c.Assert(f.graph.Progress(), qt.Equals, progress)
	c.Assert(f.dev.EventsOf("acquire"), qt.HasLen, 1)

	c.Assert(f.graph.AddNode(graph.Node{Name: "late", Pass: &extentRecorder{}}), qt.Equals, graph.ErrFrameInProgress)
	c.Assert(f.graph.RemoveNode("late"), qt.Equals, graph.ErrFrameInProgress)
	_, err = f.graph.Recreate()
	c.Assert(err, qt.Equals, graph.ErrFrameInProgress)

	c.Assert(f.graph.EndFrame(), qt.IsNil)
	c.Assert(f.graph.EndFrame(), qt.Equals, graph.ErrNoFrameInProgress)
}

func TestFramebufferCountAcrossRecreation(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	retarget := &extentRecorder{}
	c.Assert(f.graph.AddNode(graph.Node{Name: "scene", Pass: retarget}), qt.IsNil)

	sizes := []gfx.Extent2D{{Width: 1024, Height: 768}, {Width: 320, Height: 200}, {Width: 1920, Height: 1080}}
	for _, size := range sizes {
		f.adapter.SetSurfaceExtent(size.Width, size.Height)
		f.graph.Resize(size.Width, size.Height)
		f.frame(c)

		chain := f.graph.Chain()
		c.Assert(chain.Extent(), qt.Equals, size)
		c.Assert(chain.Framebuffers(), qt.HasLen, chain.ImageCount())
		c.Assert(chain.Views(), qt.HasLen, chain.ImageCount())
	}
	c.Assert(f.dev.SwapchainCount(), qt.Equals, 1)
	c.Assert(retarget.extents, qt.DeepEquals, append([]gfx.Extent2D{{Width: 800, Height: 600}}, sizes...))
}

func TestUnsignalledResizeIsCaughtByAcquire(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.frame(c)
	f.adapter.SetSurfaceExtent(640, 480)

	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	p := f.frame(c)
	c.Assert(p.Slot, qt.Equals, 1)
	c.Assert(f.graph.Chain().Extent(), qt.Equals, gfx.Extent2D{Width: 640, Height: 480})
}

func TestPresentOutOfDateRecreatesOnNextFrame(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.dev.PresentHook = func(call int) error {
		if call == 1 {
			return gfx.ErrOutOfDate
		}
		return nil
	}
	f.frame(c)
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 0)
	f.frame(c)
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 1)
}

func TestSuboptimalFrameIsShownBeforeRecreation(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.dev.AcquireHook = func(call int) error {
		if call == 2 {
			return gfx.ErrSuboptimal
		}
		return nil
	}
	f.frame(c)
	f.frame(c)
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 0)
	presents := f.dev.EventsOf("present")
	c.Assert(presents, qt.HasLen, 2)

	f.frame(c)
	creates := f.dev.EventsOf("create-swapchain")
	c.Assert(creates, qt.HasLen, 2)
	c.Assert(creates[1].At > presents[1].At, qt.IsTrue)
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.frame(c)
	f.adapter.SetSurfaceExtent(0, 0)

	for i := 0; i < 3; i++ {
		ok, err := f.graph.BeginFrame()
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
		c.Assert(f.graph.Progress().Minimized, qt.IsTrue)
	}
	c.Assert(f.dev.EventsOf("create-swapchain"), qt.HasLen, 1)

	minimized := 0
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Window minimized, skipping frames" {
			minimized++
		}
	}
	c.Assert(minimized, qt.Equals, 1)

	f.adapter.SetSurfaceExtent(640, 480)
	f.frame(c)
	c.Assert(f.graph.Progress().Minimized, qt.IsFalse)
	c.Assert(f.graph.Chain().Extent(), qt.Equals, gfx.Extent2D{Width: 640, Height: 480})
}

func TestExecuteRecordsNodesInOrder(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	pipeline, layout := f.pipeline(c)
	clear := []gfx.ClearValue{gfx.ClearColor(0.1, 0.2, 0.3, 1), gfx.ClearDepthStencil(1, 0)}

	geometry := graph.NewGeometryPass(pipeline, layout, 36)
	geometry.Add(model.NewInstance())
	geometry.Add(model.NewInstance())
	c.Assert(f.graph.AddNode(graph.Node{Name: "geometry", ClearValues: clear, Pass: geometry}), qt.IsNil)
	c.Assert(f.graph.AddNode(graph.Node{Name: "post", Pass: &graph.PostProcessPass{Pipeline: pipeline, Layout: layout}}), qt.IsNil)
	c.Assert(f.graph.Nodes(), qt.DeepEquals, []string{"geometry", "post"})

	p := f.frame(c)
	cmds := f.dev.Commands(f.lastSubmitted(c))
	c.Assert(ops(cmds), qt.DeepEquals, []string{
		"BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline",
		"PushConstants", "Draw", "PushConstants", "Draw", "EndRenderPass",
		"BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline", "Draw", "EndRenderPass",
	})
	chain := f.graph.Chain()
	c.Assert(cmds[0].RenderPass, qt.Equals, chain.RenderPass())
	c.Assert(cmds[0].ClearValues, qt.DeepEquals, clear)
	c.Assert(cmds[0].Framebuffer, qt.Equals, chain.Framebuffer(p.ImageIndex))
	c.Assert(cmds[0].Area.Extent, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(cmds[4].Data, qt.HasLen, 64)
	c.Assert(cmds[5].VertexCount, qt.Equals, uint32(36))

	// the second node draws over the first
	c.Assert(cmds[9].RenderPass, qt.Equals, chain.LoadRenderPass())
	c.Assert(cmds[9].ClearValues, qt.HasLen, 0)
	c.Assert(cmds[9].Framebuffer, qt.Equals, cmds[0].Framebuffer)
	c.Assert(cmds[13].VertexCount, qt.Equals, uint32(3))

	c.Assert(f.graph.RemoveNode("geometry"), qt.IsNil)
	f.frame(c)
	cmds = f.dev.Commands(f.lastSubmitted(c))
	c.Assert(ops(cmds), qt.HasLen, 6)
	c.Assert(cmds[0].RenderPass, qt.Equals, chain.RenderPass())
	c.Assert(cmds[0].ClearValues, qt.HasLen, 2)
}

func TestNodeErrorPresentsClearedImage(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	failure := errors.New("boom")
	c.Assert(f.graph.AddNode(graph.Node{Name: "broken", Pass: graph.PassFunc(func(*frame.Recording) error {
		return failure
	})}), qt.IsNil)

	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	err = f.graph.ExecuteFrame()
	c.Assert(err, qt.ErrorMatches, `graph: node "broken": boom`)
	c.Assert(errors.Is(err, failure), qt.IsTrue)
	c.Assert(f.graph.EndFrame(), qt.IsNil)

	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 1)
	c.Assert(ops(f.dev.Commands(f.lastSubmitted(c))), qt.DeepEquals, []string{"BeginRenderPass", "EndRenderPass"})

	drawn, err := f.graph.RenderFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(drawn, qt.IsTrue)
	c.Assert(f.hook.LastEntry().Level, qt.Equals, logrus.WarnLevel)
	c.Assert(f.hook.LastEntry().Message, qt.Equals, "Frame recording failed, presenting cleared image")
}

func TestNodeErrorKeepsEndRecordingError(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	failure := errors.New("boom")
	c.Assert(f.graph.AddNode(graph.Node{Name: "broken", Pass: graph.PassFunc(func(*frame.Recording) error {
		return failure
	})}), qt.IsNil)
	f.dev.EndHook = func(call int) error {
		if call == 1 {
			return errors.New("device busy")
		}
		return nil
	}

	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	err = f.graph.ExecuteFrame()
	c.Assert(err, qt.ErrorMatches, `graph: node "broken": boom, ending recording: frame: end slot 0: device busy`)
	c.Assert(errors.Is(err, failure), qt.IsTrue)
	c.Assert(f.graph.EndFrame(), qt.IsNil)
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 1)
}

func TestEndFrameWithoutExecute(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	for i := 0; i < 4; i++ {
		ok, err := f.graph.BeginFrame()
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)
		c.Assert(f.graph.EndFrame(), qt.IsNil)
	}
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 4)
}

func TestNodeBookkeeping(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	c.Assert(f.graph.AddNode(graph.Node{Name: "a", Pass: &extentRecorder{}}), qt.IsNil)
	c.Assert(f.graph.AddNode(graph.Node{Name: "b", Pass: &extentRecorder{}}), qt.IsNil)
	c.Assert(f.graph.AddNode(graph.Node{Name: "c", Pass: &extentRecorder{}}), qt.IsNil)

	err := f.graph.AddNode(graph.Node{Name: "b", Pass: &extentRecorder{}})
	c.Assert(errors.Is(err, graph.ErrDuplicateNode), qt.IsTrue)
	c.Assert(f.graph.AddNode(graph.Node{Name: "d"}), qt.ErrorMatches, `graph: node "d" needs a name and a pass`)

	c.Assert(f.graph.RemoveNode("b"), qt.IsNil)
	err = f.graph.RemoveNode("b")
	c.Assert(errors.Is(err, graph.ErrNodeNotFound), qt.IsTrue)
	c.Assert(f.graph.Nodes(), qt.DeepEquals, []string{"a", "c"})
}

func TestFailedSubmitRecovers(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	failure := errors.New("queue exploded")
	f.dev.SubmitHook = func(call int) error {
		if call == 2 {
			return failure
		}
		return nil
	}

	f.frame(c)
	drawn, err := f.graph.RenderFrame()
	c.Assert(errors.Is(err, failure), qt.IsTrue)
	c.Assert(drawn, qt.IsFalse)
	c.Assert(f.graph.Progress().InProgress, qt.IsFalse)

	for i := 0; i < 4; i++ {
		f.frame(c)
	}
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 1)
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 5)
}

func TestImageWaitTimeoutAbandonsFrame(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	var seen, failAt int
	f.dev.WaitHook = func(call int) error {
		seen = call
		if call == failAt {
			return gfx.ErrTimeout
		}
		return nil
	}
	for i := 0; i < 3; i++ {
		f.frame(c)
	}

	// slot 1 waits its own fence, then the fence of slot 0 that last
	// rendered into image 0
	failAt = seen + 2
	ok, err := f.graph.BeginFrame()
	c.Assert(ok, qt.IsFalse)
	c.Assert(err, qt.ErrorMatches, `frame: abandoned image 0 of slot 1: wait image 0: wait timed out`)
	c.Assert(errors.Is(err, gfx.ErrTimeout), qt.IsTrue)
	var abandonErr *frame.AbandonError
	c.Assert(errors.As(err, &abandonErr), qt.IsTrue)
	c.Assert(abandonErr.Slot, qt.Equals, 1)
	c.Assert(f.graph.Progress().InProgress, qt.IsFalse)

	for i := 0; i < 3; i++ {
		f.frame(c)
	}
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 1)
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 6)
	c.Assert(f.dev.Violations(), qt.HasLen, 0)
}

func TestClearFailureAbandonsFrame(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	failure := errors.New("out of host memory")
	// the second frame fails both its recording and the clear fallback
	f.dev.BeginHook = func(call int) error {
		if call == 2 || call == 3 {
			return failure
		}
		return nil
	}

	f.frame(c)
	drawn, err := f.graph.RenderFrame()
	c.Assert(drawn, qt.IsFalse)
	c.Assert(errors.Is(err, failure), qt.IsTrue)
	var abandonErr *frame.AbandonError
	c.Assert(errors.As(err, &abandonErr), qt.IsTrue)
	c.Assert(abandonErr.Slot, qt.Equals, 1)
	c.Assert(f.graph.Progress().InProgress, qt.IsFalse)

	for i := 0; i < 3; i++ {
		f.frame(c)
	}
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 1)
	c.Assert(f.dev.EventsOf("present"), qt.HasLen, 4)
	c.Assert(f.dev.Violations(), qt.HasLen, 0)
}

func TestFatalPresentIsPropagated(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.dev.PresentHook = func(call int) error {
		if call == 2 {
			return gfx.ErrSurfaceLost
		}
		return nil
	}

	f.frame(c)
	drawn, err := f.graph.RenderFrame()
	c.Assert(errors.Is(err, gfx.ErrSurfaceLost), qt.IsTrue)
	c.Assert(drawn, qt.IsFalse)
	c.Assert(f.graph.Progress().InProgress, qt.IsFalse)

	f.frame(c)
	c.Assert(f.trace.Of(frametrace.ChainRecreated), qt.HasLen, 0)
	c.Assert(f.dev.SwapchainCount(), qt.Equals, 1)
}

func TestRecordingNeverOverlapsPendingWork(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	for i := 0; i < 12; i++ {
		f.frame(c)
	}
	reuses := f.dev.Reuses()
	c.Assert(reuses, qt.HasLen, 10)
	for _, r := range reuses {
		c.Assert(r.BeganAt > r.PriorRetired, qt.IsTrue, qt.Commentf("buffer %d use %d", r.Buffer, r.Use))
	}

	// every recording starts after the fence wait of its frame
	events := f.trace.Events()
	for i, e := range events {
		if e.Kind == frametrace.RecordingBegun {
			c.Assert(events[i-2].Kind, qt.Equals, frametrace.FenceWaited)
		}
	}
}

func TestResizeFromAnotherGoroutine(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	f.frame(c)
	f.adapter.SetSurfaceExtent(1280, 720)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.graph.Resize(1280, 720)
	}()
	wg.Wait()

	f.frame(c)
	c.Assert(f.graph.Chain().Extent(), qt.Equals, gfx.Extent2D{Width: 1280, Height: 720})
	c.Assert(f.trace.Of(frametrace.FrameSkipped), qt.HasLen, 0)
}

func TestShutdownDrains(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 3)
	for i := 0; i < 4; i++ {
		f.frame(c)
	}
	c.Assert(f.dev.Pending() > 0, qt.IsTrue)

	f.graph.Shutdown()
	c.Assert(f.dev.Pending(), qt.Equals, 0)
	c.Assert(f.dev.LiveCount(), qt.Equals, 0)
	c.Assert(f.dev.SwapchainCount(), qt.Equals, 0)

	_, err := f.graph.BeginFrame()
	c.Assert(err, qt.Equals, graph.ErrShutdown)
	f.graph.Shutdown()
}

func BenchmarkRenderFrame(b *testing.B) {
	c := qt.New(b)
	f := newFixture(c, 2)
	pipeline, layout := f.pipeline(c)
	geometry := graph.NewGeometryPass(pipeline, layout, 36)
	geometry.Add(model.NewInstance())
	c.Assert(f.graph.AddNode(graph.Node{Name: "geometry", Pass: geometry}), qt.IsNil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.graph.RenderFrame(); err != nil {
			b.Fatal(err)
		}
	}
}
