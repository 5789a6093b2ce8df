// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"os"
	"path/filepath"
	"time"

	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/frame"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/gfx/vkr"
	"github.com/devblok/koruframe/graph"
	"github.com/devblok/koruframe/model"
)

// cubeVertices is the vertex count of the cube shader, which builds
// its 12 triangles from gl_VertexIndex.
const cubeVertices = 36

type pipeline struct {
	pipeline gfx.Pipeline
	layout   gfx.PipelineLayout
}

// scene is the demo content: a spinning cube and a status quad when
// shaders are available, a cleared screen otherwise.
type scene struct {
	dev       *vkr.Device
	pipelines []pipeline

	cube  *model.Instance
	angle float32
}

func newScene(ctx *device.Context, frames *graph.Graph, dir string) (*scene, error) {
	s := &scene{cube: model.NewInstance()}
	dev, ok := ctx.Device().(*vkr.Device)
	if dir == "" || !ok {
		log.Info("No shaders given, rendering clear passes only")
		return s, frames.AddNode(graph.Node{
			Name:        "clear",
			ClearValues: []gfx.ClearValue{gfx.ClearColor(0.005, 0.005, 0.005, 1), gfx.ClearDepthStencil(1, 0)},
			Pass:        graph.PassFunc(func(*frame.Recording) error { return nil }),
		})
	}
	s.dev = dev

	geometry, err := s.load(frames, dir, "geometry", vkr.PipelineCreateInfo{
		PushConstantSize:   64,
		PushConstantStages: gfx.ShaderStageVertexBit,
		DepthTest:          true,
	})
	if err != nil {
		return nil, err
	}
	pass := graph.NewGeometryPass(geometry.pipeline, geometry.layout, cubeVertices)
	pass.Add(s.cube)
	if err := frames.AddNode(graph.Node{
		Name:        "geometry",
		ClearValues: []gfx.ClearValue{gfx.ClearColor(0.005, 0.005, 0.005, 1), gfx.ClearDepthStencil(1, 0)},
		Pass:        pass,
	}); err != nil {
		s.Destroy()
		return nil, err
	}

	ui, err := s.load(frames, dir, "ui", vkr.PipelineCreateInfo{
		PushConstantSize:   80,
		PushConstantStages: gfx.ShaderStageVertexBit | gfx.ShaderStageFragmentBit,
		Blend:              true,
	})
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		s.Destroy()
		return nil, err
	}
	extent := frames.Chain().Extent()
	return s, frames.AddNode(graph.Node{
		Name: "ui",
		Pass: &graph.UIPass{
			Pipeline: ui.pipeline,
			Layout:   ui.layout,
			Quads: []graph.Quad{{
				Position: glm.Vec2{48, float32(extent.Height) - 48},
				Size:     glm.Vec2{64, 64},
				Color:    glm.Vec4{0.9, 0.4, 0.1, 0.8},
			}},
		},
	})
}

// load creates the pipeline from <name>.vert.spv and <name>.frag.spv.
func (s *scene) load(frames *graph.Graph, dir, name string, info vkr.PipelineCreateInfo) (pipeline, error) {
	var err error
	if info.VertexShader, err = os.ReadFile(filepath.Join(dir, name+".vert.spv")); err != nil {
		return pipeline{}, err
	}
	if info.FragmentShader, err = os.ReadFile(filepath.Join(dir, name+".frag.spv")); err != nil {
		return pipeline{}, err
	}
	info.RenderPass = frames.Chain().RenderPass()
	info.Samples = frames.Chain().Samples()

	p, l, err := s.dev.CreatePipeline(info)
	if err != nil {
		return pipeline{}, err
	}
	s.pipelines = append(s.pipelines, pipeline{pipeline: p, layout: l})
	log.WithField("pipeline", name).Info("Pipeline created")
	return pipeline{pipeline: p, layout: l}, nil
}

// Update advances the animation by one frame interval.
func (s *scene) Update(dt time.Duration) {
	s.angle += float32(dt.Seconds())
	s.cube.SetRotation(glm.HomogRotate3D(s.angle, glm.Vec3{0, 0, 1}))
}

// Destroy waits for the device and releases the pipelines.
func (s *scene) Destroy() {
	if s.dev == nil {
		return
	}
	if err := s.dev.WaitIdle(); err != nil {
		log.WithError(err).Warn("Device did not idle")
	}
	for _, p := range s.pipelines {
		s.dev.DestroyPipeline(p.pipeline, p.layout)
	}
	s.pipelines = nil
}
