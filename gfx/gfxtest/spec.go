// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest is a simulated GPU implementing the gfx driver interfaces.
//
// Submitted work is retired lazily: a fence is signaled only when the CPU
// waits on it (or Retire is called), which makes any attempt to reuse a
// command buffer, fence or framebuffer before its work retired observable.
// Misuse is returned as an error where Vulkan would return one and is always
// appended to the device violation list.
package gfxtest

import "github.com/devblok/koruframe/gfx"

// SwapchainExtension is the device extension name presenting devices expose.
const SwapchainExtension = "VK_KHR_swapchain"

// DeviceSpec describes a simulated adapter.
type DeviceSpec struct {
	Properties      gfx.PhysicalDeviceProperties
	QueueFamilies   []gfx.QueueFamilyProperties
	PresentFamilies []uint32
	Memory          gfx.MemoryProperties
	Formats         map[gfx.Format]gfx.FormatProperties
	Surface         SurfaceSpec
}

// SurfaceSpec describes what the simulated surface reports for an adapter.
type SurfaceSpec struct {
	Capabilities gfx.SurfaceCapabilities
	Formats      []gfx.SurfaceFormat
	PresentModes []gfx.PresentMode
}

// DiscreteGPU returns a fully capable adapter: one universal queue family
// that can present, a transfer-only family, three memory types, an sRGB
// surface format and mailbox support. The surface allows 2..3 images.
func DiscreteGPU() DeviceSpec {
	return DeviceSpec{
		Properties: gfx.PhysicalDeviceProperties{
			Name:              "Simulated Discrete GPU",
			Type:              gfx.PhysicalDeviceTypeDiscreteGPU,
			VendorID:          0x10de,
			DeviceID:          0x1,
			DriverVersion:     1,
			Extensions:        []string{SwapchainExtension},
			ColorSampleCounts: gfx.SampleCount1 | gfx.SampleCount2 | gfx.SampleCount4 | gfx.SampleCount8,
			DepthSampleCounts: gfx.SampleCount1 | gfx.SampleCount2 | gfx.SampleCount4 | gfx.SampleCount8,
		},
		QueueFamilies: []gfx.QueueFamilyProperties{
			{Flags: gfx.QueueGraphicsBit | gfx.QueueComputeBit | gfx.QueueTransferBit, Count: 16},
			{Flags: gfx.QueueTransferBit, Count: 2},
		},
		PresentFamilies: []uint32{0},
		Memory: gfx.MemoryProperties{Types: []gfx.MemoryType{
			{PropertyFlags: gfx.MemoryPropertyHostVisibleBit | gfx.MemoryPropertyHostCoherentBit, HeapIndex: 1},
			{PropertyFlags: gfx.MemoryPropertyDeviceLocalBit, HeapIndex: 0},
			{PropertyFlags: gfx.MemoryPropertyDeviceLocalBit | gfx.MemoryPropertyHostVisibleBit | gfx.MemoryPropertyHostCoherentBit, HeapIndex: 0},
		}},
		Formats: map[gfx.Format]gfx.FormatProperties{
			gfx.FormatB8G8R8A8Srgb: {
				OptimalTilingFeatures: gfx.FormatFeatureColorAttachmentBit | gfx.FormatFeatureColorAttachmentBlendBit | gfx.FormatFeatureSampledImageBit,
			},
			gfx.FormatB8G8R8A8Unorm: {
				LinearTilingFeatures:  gfx.FormatFeatureSampledImageBit,
				OptimalTilingFeatures: gfx.FormatFeatureColorAttachmentBit | gfx.FormatFeatureSampledImageBit,
			},
			gfx.FormatD32Sfloat: {
				OptimalTilingFeatures: gfx.FormatFeatureDepthStencilAttachmentBit,
			},
			gfx.FormatD24UnormS8Uint: {
				OptimalTilingFeatures: gfx.FormatFeatureDepthStencilAttachmentBit,
			},
			gfx.FormatD16Unorm: {
				LinearTilingFeatures:  gfx.FormatFeatureDepthStencilAttachmentBit,
				OptimalTilingFeatures: gfx.FormatFeatureDepthStencilAttachmentBit,
			},
		},
		Surface: SurfaceSpec{
			Capabilities: gfx.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  3,
				CurrentExtent:  gfx.Extent2D{Width: 800, Height: 600},
				MinImageExtent: gfx.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: gfx.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []gfx.SurfaceFormat{
				{Format: gfx.FormatB8G8R8A8Unorm, ColorSpace: gfx.ColorSpaceSrgbNonlinear},
				{Format: gfx.FormatB8G8R8A8Srgb, ColorSpace: gfx.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []gfx.PresentMode{gfx.PresentModeFifo, gfx.PresentModeMailbox},
		},
	}
}

// IntegratedGPU returns a smaller adapter with FIFO only presentation.
func IntegratedGPU() DeviceSpec {
	spec := DiscreteGPU()
	spec.Properties.Name = "Simulated Integrated GPU"
	spec.Properties.Type = gfx.PhysicalDeviceTypeIntegratedGPU
	spec.Properties.VendorID = 0x8086
	spec.Properties.ColorSampleCounts = gfx.SampleCount1 | gfx.SampleCount2 | gfx.SampleCount4
	spec.Properties.DepthSampleCounts = gfx.SampleCount1 | gfx.SampleCount2
	spec.Surface.PresentModes = []gfx.PresentMode{gfx.PresentModeFifo}
	return spec
}

// ComputeOnly returns an adapter that cannot present or render.
func ComputeOnly() DeviceSpec {
	spec := DiscreteGPU()
	spec.Properties.Name = "Simulated Compute Accelerator"
	spec.Properties.Extensions = nil
	spec.QueueFamilies = []gfx.QueueFamilyProperties{
		{Flags: gfx.QueueComputeBit | gfx.QueueTransferBit, Count: 4},
	}
	spec.PresentFamilies = nil
	return spec
}
