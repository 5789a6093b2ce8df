// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"fmt"

	"github.com/devblok/koruframe/gfx"
)

// FindMemoryType returns the first memory type allowed by typeBits whose
// property flags include every requested flag.
func FindMemoryType(props gfx.MemoryProperties, typeBits uint32, flags gfx.MemoryPropertyFlags) (uint32, error) {
	for idx, t := range props.Types {
		if idx >= 32 {
			break
		}
		if typeBits&(1<<uint(idx)) != 0 && t.PropertyFlags&flags == flags {
			return uint32(idx), nil
		}
	}
	return 0, gfx.ErrNoMemoryType
}

// FindMemoryType looks the memory type up on the selected adapter.
func (p *Provider) FindMemoryType(typeBits uint32, flags gfx.MemoryPropertyFlags) (uint32, error) {
	return FindMemoryType(p.memory, typeBits, flags)
}

// FindSupportedFormat returns the first candidate whose features for the
// given tiling include every requested feature.
func (p *Provider) FindSupportedFormat(candidates []gfx.Format, tiling gfx.ImageTiling, features gfx.FormatFeatureFlags) (gfx.Format, error) {
	for _, f := range candidates {
		props := p.physical.FormatProperties(f)
		supported := props.OptimalTilingFeatures
		if tiling == gfx.ImageTilingLinear {
			supported = props.LinearTilingFeatures
		}
		if supported&features == features {
			return f, nil
		}
	}
	return gfx.FormatUndefined, gfx.ErrNoSupportedFormat
}

// DepthFormats in order of preference.
var DepthFormats = []gfx.Format{
	gfx.FormatD32Sfloat,
	gfx.FormatD32SfloatS8Uint,
	gfx.FormatD24UnormS8Uint,
	gfx.FormatD16UnormS8Uint,
	gfx.FormatD16Unorm,
}

// FindDepthFormat picks an optimally tiled depth attachment format.
func (p *Provider) FindDepthFormat() (gfx.Format, error) {
	return p.FindSupportedFormat(DepthFormats, gfx.ImageTilingOptimal, gfx.FormatFeatureDepthStencilAttachmentBit)
}

// MaxUsableSampleCount is the highest sample count both color and depth
// attachments support.
func (p *Provider) MaxUsableSampleCount() gfx.SampleCount {
	counts := p.properties.ColorSampleCounts & p.properties.DepthSampleCounts
	for _, c := range []gfx.SampleCount{
		gfx.SampleCount64,
		gfx.SampleCount32,
		gfx.SampleCount16,
		gfx.SampleCount8,
		gfx.SampleCount4,
		gfx.SampleCount2,
	} {
		if counts&c != 0 {
			return c
		}
	}
	return gfx.SampleCount1
}

// Allocate returns memory satisfying req with the requested properties.
func (p *Provider) Allocate(req gfx.MemoryRequirements, flags gfx.MemoryPropertyFlags) (gfx.Memory, error) {
	idx, err := p.FindMemoryType(req.MemoryTypeBits, flags)
	if err != nil {
		return 0, err
	}
	mem, err := p.device.AllocateMemory(req.Size, idx)
	if err != nil {
		return 0, fmt.Errorf("device: allocate %d bytes of type %d: %w", req.Size, idx, err)
	}
	return mem, nil
}
