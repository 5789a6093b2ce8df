// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph

import (
	"github.com/devblok/koruframe/frame"
	"github.com/devblok/koruframe/gfx"
)

// Target is where a node renders: a render pass with one framebuffer
// per presentable image.
type Target interface {
	RenderPass() gfx.RenderPass
	Framebuffer(imageIndex uint32) gfx.Framebuffer
	Extent() gfx.Extent2D
}

// Pass records the commands of a node. It is called between the begin
// and end of the node's render pass.
type Pass interface {
	Execute(r *frame.Recording) error
}

// PassFunc adapts a function to Pass.
type PassFunc func(r *frame.Recording) error

// Execute implements interface
func (f PassFunc) Execute(r *frame.Recording) error {
	return f(r)
}

// Retargeter is implemented by passes and targets that keep state derived
// from the target extent. Retarget is called when the node is added and
// after every chain recreation.
type Retargeter interface {
	Retarget(extent gfx.Extent2D)
}

// Node is one step of the frame graph.
type Node struct {
	Name string
	// Target defaults to the presentable chain when nil.
	Target      Target
	ClearValues []gfx.ClearValue
	Pass        Pass
}

// chainTarget renders into whatever chain the graph currently holds.
type chainTarget struct {
	g *Graph
}

func (t chainTarget) RenderPass() gfx.RenderPass {
	return t.g.chain.RenderPass()
}

func (t chainTarget) Framebuffer(imageIndex uint32) gfx.Framebuffer {
	return t.g.chain.Framebuffer(imageIndex)
}

func (t chainTarget) Extent() gfx.Extent2D {
	return t.g.chain.Extent()
}
