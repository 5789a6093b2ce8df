// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package swapchain

import "github.com/devblok/koruframe/gfx"

// PreferredFormats are 8 bit per channel sRGB formats, in order.
var PreferredFormats = []gfx.Format{
	gfx.FormatB8G8R8A8Srgb,
	gfx.FormatR8G8B8A8Srgb,
}

// ChooseSurfaceFormat prefers an sRGB format with the non-linear sRGB
// color space, else the first supported one. A lone undefined entry means
// the surface accepts anything.
func ChooseSurfaceFormat(formats []gfx.SurfaceFormat) gfx.SurfaceFormat {
	if len(formats) == 1 && formats[0].Format == gfx.FormatUndefined {
		return gfx.SurfaceFormat{Format: PreferredFormats[0], ColorSpace: gfx.ColorSpaceSrgbNonlinear}
	}
	for _, want := range PreferredFormats {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == gfx.ColorSpaceSrgbNonlinear {
				return f
			}
		}
	}
	return formats[0]
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface supports. vsync forces FIFO.
func ChoosePresentMode(modes []gfx.PresentMode, vsync bool) gfx.PresentMode {
	if vsync {
		return gfx.PresentModeFifo
	}
	for _, m := range modes {
		if m == gfx.PresentModeMailbox {
			return m
		}
	}
	return gfx.PresentModeFifo
}

// ChooseExtent uses the surface extent unless the surface leaves the size
// to the swapchain, in which case the window size is clamped to the limits.
func ChooseExtent(caps gfx.SurfaceCapabilities, width, height uint32) gfx.Extent2D {
	if caps.CurrentExtent.Width != gfx.UndefinedExtent.Width {
		return caps.CurrentExtent
	}
	if width == 0 || height == 0 {
		return gfx.Extent2D{}
	}
	return gfx.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount clamps the requested count to the surface limits,
// zero requests one above the minimum.
func ChooseImageCount(caps gfx.SurfaceCapabilities, requested uint32) uint32 {
	count := requested
	if count == 0 {
		count = caps.MinImageCount + 1
	}
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
