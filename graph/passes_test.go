// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph_test

import (
	"encoding/binary"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/gfx/gfxtest"
	"github.com/devblok/koruframe/graph"
	"github.com/devblok/koruframe/model"
)

func TestCameraProjectionFlipsY(t *testing.T) {
	c := qt.New(t)

	camera := graph.DefaultCamera()
	p := camera.Projection(gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(p[5] < 0, qt.IsTrue)
	c.Assert(p[0] > 0, qt.IsTrue)

	wide := camera.Projection(gfx.Extent2D{Width: 1600, Height: 600})
	c.Assert(wide[0] < p[0], qt.IsTrue)

	// degenerate extents fall back to a square aspect
	square := camera.Projection(gfx.Extent2D{})
	c.Assert(glm.Abs(square[0]+square[5]) < 1e-6, qt.IsTrue)
}

func TestGeometryPassPushesMVP(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	pipeline, layout := f.pipeline(c)
	pass := graph.NewGeometryPass(pipeline, layout, 3)
	object := model.NewInstance()
	object.SetPosition(glm.Translate3D(0, 0, 1))
	pass.Add(object)
	c.Assert(f.graph.AddNode(graph.Node{Name: "geometry", Pass: pass}), qt.IsNil)

	f.frame(c)
	var push *gfxtest.Command
	for _, cmd := range f.dev.Commands(f.lastSubmitted(c)) {
		cmd := cmd
		if cmd.Op == "PushConstants" {
			push = &cmd
		}
	}
	c.Assert(push, qt.Not(qt.IsNil))
	c.Assert(push.Stages, qt.Equals, gfx.ShaderStageVertexBit)
	c.Assert(push.Layout, qt.Equals, layout)

	want := model.Uniform{
		Model:      glm.Translate3D(0, 0, 1),
		View:       pass.Camera.View(),
		Projection: pass.Camera.Projection(gfx.Extent2D{Width: 800, Height: 600}),
	}.MVP()
	c.Assert(push.Data, qt.DeepEquals, floatBytes(want[:]))
}

func TestPassesRequirePipeline(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	c.Assert(f.graph.AddNode(graph.Node{Name: "ui", Pass: &graph.UIPass{}}), qt.IsNil)
	ok, err := f.graph.BeginFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(f.graph.ExecuteFrame(), qt.ErrorMatches, `graph: node "ui": graph: pass has no pipeline`)
	c.Assert(f.graph.EndFrame(), qt.IsNil)
}

func TestUIPassTransform(t *testing.T) {
	c := qt.New(t)

	pass := &graph.UIPass{}
	pass.Retarget(gfx.Extent2D{Width: 800, Height: 600})

	q := graph.Quad{Position: glm.Vec2{400, 300}, Size: glm.Vec2{100, 50}}
	center := pass.Transform(q).Mul4x1(glm.Vec4{0, 0, 0, 1})
	c.Assert(center.ApproxEqualThreshold(glm.Vec4{0, 0, 0, 1}, 1e-5), qt.IsTrue, qt.Commentf("%v", center))

	corner := pass.Transform(q).Mul4x1(glm.Vec4{1, 1, 0, 1})
	c.Assert(corner.ApproxEqualThreshold(glm.Vec4{0.25, 1.0 / 6, 0, 1}, 1e-5), qt.IsTrue, qt.Commentf("%v", corner))
}

func TestUIPassDrawsQuads(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	pipeline, layout := f.pipeline(c)
	pass := &graph.UIPass{Pipeline: pipeline, Layout: layout, Quads: []graph.Quad{
		{Size: glm.Vec2{10, 10}, Color: glm.Vec4{1, 0, 0, 1}},
		{Position: glm.Vec2{20, 20}, Size: glm.Vec2{10, 10}, Color: glm.Vec4{0, 1, 0, 1}},
	}}
	c.Assert(f.graph.AddNode(graph.Node{Name: "ui", Pass: pass}), qt.IsNil)

	f.frame(c)
	var draws, pushes int
	for _, cmd := range f.dev.Commands(f.lastSubmitted(c)) {
		switch cmd.Op {
		case "Draw":
			draws++
			c.Assert(cmd.VertexCount, qt.Equals, uint32(6))
		case "PushConstants":
			pushes++
			c.Assert(cmd.Data, qt.HasLen, 80)
			c.Assert(cmd.Stages, qt.Equals, gfx.ShaderStageVertexBit|gfx.ShaderStageFragmentBit)
		}
	}
	c.Assert(draws, qt.Equals, 2)
	c.Assert(pushes, qt.Equals, 2)
}

func TestPostProcessPushesParams(t *testing.T) {
	c := qt.New(t)

	f := newFixture(c, 2)
	pipeline, layout := f.pipeline(c)
	pass := &graph.PostProcessPass{Pipeline: pipeline, Layout: layout, Params: []float32{0.5, 2.2}}
	c.Assert(f.graph.AddNode(graph.Node{Name: "post", Pass: pass}), qt.IsNil)

	f.frame(c)
	cmds := f.dev.Commands(f.lastSubmitted(c))
	c.Assert(ops(cmds), qt.DeepEquals, []string{
		"BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline", "PushConstants", "Draw", "EndRenderPass",
	})
	c.Assert(cmds[4].Stages, qt.Equals, gfx.ShaderStageFragmentBit)
	c.Assert(cmds[4].Data, qt.DeepEquals, floatBytes([]float32{0.5, 2.2}))
}

func floatBytes(values []float32) []byte {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}
