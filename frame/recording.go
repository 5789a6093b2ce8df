// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame

import (
	"encoding/binary"
	"math"

	"github.com/devblok/koruframe/gfx"
)

// Recording is handed to passes while a frame is recorded. It is only
// valid until the pass returns.
type Recording struct {
	dev        gfx.Device
	buffer     gfx.CommandBuffer
	slot       int
	imageIndex uint32
	extent     gfx.Extent2D
}

// NewRecording wraps a command buffer in the recording state.
func NewRecording(dev gfx.Device, buffer gfx.CommandBuffer, slot int, imageIndex uint32, extent gfx.Extent2D) *Recording {
	return &Recording{
		dev:        dev,
		buffer:     buffer,
		slot:       slot,
		imageIndex: imageIndex,
		extent:     extent,
	}
}

// Buffer returns the underlying command buffer.
func (r *Recording) Buffer() gfx.CommandBuffer { return r.buffer }

// Slot is the frame slot being recorded.
func (r *Recording) Slot() int { return r.slot }

// ImageIndex is the acquired presentable image.
func (r *Recording) ImageIndex() uint32 { return r.imageIndex }

// Extent is the render area of the current target.
func (r *Recording) Extent() gfx.Extent2D { return r.extent }

// SetViewport sets the viewport.
func (r *Recording) SetViewport(v gfx.Viewport) {
	r.dev.CmdSetViewport(r.buffer, v)
}

// SetScissor sets the scissor rectangle.
func (r *Recording) SetScissor(rect gfx.Rect2D) {
	r.dev.CmdSetScissor(r.buffer, rect)
}

// CoverExtent sets viewport and scissor to the whole render area.
func (r *Recording) CoverExtent() {
	r.SetViewport(gfx.Viewport{
		Width:    float32(r.extent.Width),
		Height:   float32(r.extent.Height),
		MaxDepth: 1,
	})
	r.SetScissor(gfx.Rect2D{Extent: r.extent})
}

// BindPipeline binds a graphics pipeline.
func (r *Recording) BindPipeline(p gfx.Pipeline) {
	r.dev.CmdBindPipeline(r.buffer, p)
}

// PushConstants updates push constant bytes.
func (r *Recording) PushConstants(layout gfx.PipelineLayout, stages gfx.ShaderStageFlags, offset uint32, data []byte) {
	r.dev.CmdPushConstants(r.buffer, layout, stages, offset, data)
}

// PushFloats pushes float32 values as little endian bytes.
func (r *Recording) PushFloats(layout gfx.PipelineLayout, stages gfx.ShaderStageFlags, offset uint32, values ...float32) {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	r.PushConstants(layout, stages, offset, data)
}

// Draw records a non-indexed draw.
func (r *Recording) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.dev.CmdDraw(r.buffer, vertexCount, instanceCount, firstVertex, firstInstance)
}
