// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph

import (
	"errors"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/koruframe/frame"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/model"
)

// ErrNoPipeline is returned by passes executed without a bound pipeline.
var ErrNoPipeline = errors.New("graph: pass has no pipeline")

// Camera describes the view of a GeometryPass.
type Camera struct {
	Eye    glm.Vec3
	Center glm.Vec3
	Up     glm.Vec3
	// FovY is the vertical field of view in degrees.
	FovY float32
	Near float32
	Far  float32
}

// DefaultCamera looks at the origin from (2, 2, 2) with Z up.
func DefaultCamera() Camera {
	return Camera{
		Eye:  glm.Vec3{2, 2, 2},
		Up:   glm.Vec3{0, 0, 1},
		FovY: 45,
		Near: 0.1,
		Far:  10,
	}
}

// View is the view matrix of the camera.
func (c Camera) View() glm.Mat4 {
	return glm.LookAtV(c.Eye, c.Center, c.Up)
}

// Projection is the perspective projection for the given extent with the
// Y axis flipped to Vulkan clip space.
func (c Camera) Projection(extent gfx.Extent2D) glm.Mat4 {
	aspect := float32(1)
	if extent.Height != 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	p := glm.Perspective(glm.DegToRad(c.FovY), aspect, c.Near, c.Far)
	p[5] *= -1
	return p
}

// GeometryPass draws every object with the same pipeline, passing its
// model-view-projection matrix as vertex push constants.
type GeometryPass struct {
	Pipeline    gfx.Pipeline
	Layout      gfx.PipelineLayout
	VertexCount uint32
	Camera      Camera
	Objects     []model.Object

	projection glm.Mat4
}

// NewGeometryPass creates a pass with the default camera.
func NewGeometryPass(pipeline gfx.Pipeline, layout gfx.PipelineLayout, vertexCount uint32) *GeometryPass {
	return &GeometryPass{
		Pipeline:    pipeline,
		Layout:      layout,
		VertexCount: vertexCount,
		Camera:      DefaultCamera(),
		projection:  glm.Ident4(),
	}
}

// Add appends an object to draw.
func (p *GeometryPass) Add(o model.Object) {
	p.Objects = append(p.Objects, o)
}

// Retarget implements interface
func (p *GeometryPass) Retarget(extent gfx.Extent2D) {
	p.projection = p.Camera.Projection(extent)
}

// Execute implements interface
func (p *GeometryPass) Execute(r *frame.Recording) error {
	if p.Pipeline == 0 {
		return ErrNoPipeline
	}
	r.CoverExtent()
	r.BindPipeline(p.Pipeline)
	view := p.Camera.View()
	for _, o := range p.Objects {
		mvp := model.Uniform{
			Model:      model.Transform(o),
			View:       view,
			Projection: p.projection,
		}.MVP()
		r.PushFloats(p.Layout, gfx.ShaderStageVertexBit, 0, mvp[:]...)
		r.Draw(p.VertexCount, 1, 0, 0)
	}
	return nil
}

// PostProcessPass draws one fullscreen triangle. Params are pushed to the
// fragment stage when present.
type PostProcessPass struct {
	Pipeline gfx.Pipeline
	Layout   gfx.PipelineLayout
	Params   []float32
}

// Execute implements interface
func (p *PostProcessPass) Execute(r *frame.Recording) error {
	if p.Pipeline == 0 {
		return ErrNoPipeline
	}
	r.CoverExtent()
	r.BindPipeline(p.Pipeline)
	if len(p.Params) > 0 {
		r.PushFloats(p.Layout, gfx.ShaderStageFragmentBit, 0, p.Params...)
	}
	r.Draw(3, 1, 0, 0)
	return nil
}

// Quad is a screen space rectangle in pixels, origin top left.
type Quad struct {
	Position glm.Vec2
	Size     glm.Vec2
	Color    glm.Vec4
}

// UIPass draws colored quads under an orthographic projection of the
// target. Each quad pushes its transform followed by its color.
type UIPass struct {
	Pipeline gfx.Pipeline
	Layout   gfx.PipelineLayout
	Quads    []Quad

	ortho glm.Mat4
}

// Retarget implements interface
func (p *UIPass) Retarget(extent gfx.Extent2D) {
	p.ortho = glm.Ortho(0, float32(extent.Width), 0, float32(extent.Height), -1, 1)
}

// Transform maps the unit square onto q in clip space.
func (p *UIPass) Transform(q Quad) glm.Mat4 {
	return p.ortho.
		Mul4(glm.Translate3D(q.Position.X(), q.Position.Y(), 0)).
		Mul4(glm.Scale3D(q.Size.X(), q.Size.Y(), 1))
}

// Execute implements interface
func (p *UIPass) Execute(r *frame.Recording) error {
	if p.Pipeline == 0 {
		return ErrNoPipeline
	}
	r.CoverExtent()
	r.BindPipeline(p.Pipeline)
	for _, q := range p.Quads {
		m := p.Transform(q)
		data := append(m[:], q.Color[:]...)
		r.PushFloats(p.Layout, gfx.ShaderStageVertexBit|gfx.ShaderStageFragmentBit, 0, data...)
		r.Draw(6, 1, 0, 0)
	}
	return nil
}
