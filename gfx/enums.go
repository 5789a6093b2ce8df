// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "fmt"

// Format of an image, numbered like VkFormat.
type Format int32

// Formats the core needs to name.
const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatR8G8B8A8Srgb    Format = 43
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatD16Unorm        Format = 124
	FormatD32Sfloat       Format = 126
	FormatD16UnormS8Uint  Format = 128
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

var formatNames = map[Format]string{
	FormatUndefined:       "Undefined",
	FormatR8G8B8A8Unorm:   "R8G8B8A8Unorm",
	FormatR8G8B8A8Srgb:    "R8G8B8A8Srgb",
	FormatB8G8R8A8Unorm:   "B8G8R8A8Unorm",
	FormatB8G8R8A8Srgb:    "B8G8R8A8Srgb",
	FormatD16Unorm:        "D16Unorm",
	FormatD32Sfloat:       "D32Sfloat",
	FormatD16UnormS8Uint:  "D16UnormS8Uint",
	FormatD24UnormS8Uint:  "D24UnormS8Uint",
	FormatD32SfloatS8Uint: "D32SfloatS8Uint",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int32(f))
}

// HasStencil reports whether a depth format carries a stencil aspect.
func (f Format) HasStencil() bool {
	return f == FormatD16UnormS8Uint || f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

// ColorSpace of a surface format.
type ColorSpace int32

// ColorSpaceSrgbNonlinear is the only color space every surface supports.
const ColorSpaceSrgbNonlinear ColorSpace = 0

// PresentMode of a swapchain.
type PresentMode int32

// Present modes.
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "Immediate"
	case PresentModeMailbox:
		return "Mailbox"
	case PresentModeFifo:
		return "Fifo"
	case PresentModeFifoRelaxed:
		return "FifoRelaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", int32(p))
}

// PhysicalDeviceType classifies an adapter.
type PhysicalDeviceType int32

// Adapter types.
const (
	PhysicalDeviceTypeOther         PhysicalDeviceType = 0
	PhysicalDeviceTypeIntegratedGPU PhysicalDeviceType = 1
	PhysicalDeviceTypeDiscreteGPU   PhysicalDeviceType = 2
	PhysicalDeviceTypeVirtualGPU    PhysicalDeviceType = 3
	PhysicalDeviceTypeCPU           PhysicalDeviceType = 4
)

func (t PhysicalDeviceType) String() string {
	switch t {
	case PhysicalDeviceTypeIntegratedGPU:
		return "integrated"
	case PhysicalDeviceTypeDiscreteGPU:
		return "discrete"
	case PhysicalDeviceTypeVirtualGPU:
		return "virtual"
	case PhysicalDeviceTypeCPU:
		return "cpu"
	}
	return "other"
}

// ImageTiling of an image.
type ImageTiling int32

// Tilings.
const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

// QueueFlags describe queue family capabilities.
type QueueFlags uint32

// Queue capabilities.
const (
	QueueGraphicsBit QueueFlags = 0x1
	QueueComputeBit  QueueFlags = 0x2
	QueueTransferBit QueueFlags = 0x4
)

// MemoryPropertyFlags of a memory type.
type MemoryPropertyFlags uint32

// Memory properties.
const (
	MemoryPropertyDeviceLocalBit     MemoryPropertyFlags = 0x1
	MemoryPropertyHostVisibleBit     MemoryPropertyFlags = 0x2
	MemoryPropertyHostCoherentBit    MemoryPropertyFlags = 0x4
	MemoryPropertyHostCachedBit      MemoryPropertyFlags = 0x8
	MemoryPropertyLazilyAllocatedBit MemoryPropertyFlags = 0x10
)

// FormatFeatureFlags of a format for one tiling.
type FormatFeatureFlags uint32

// Format features.
const (
	FormatFeatureSampledImageBit           FormatFeatureFlags = 0x1
	FormatFeatureColorAttachmentBit        FormatFeatureFlags = 0x80
	FormatFeatureColorAttachmentBlendBit   FormatFeatureFlags = 0x100
	FormatFeatureDepthStencilAttachmentBit FormatFeatureFlags = 0x200
)

// ImageUsageFlags of an image.
type ImageUsageFlags uint32

// Image usages.
const (
	ImageUsageTransferSrcBit            ImageUsageFlags = 0x1
	ImageUsageTransferDstBit            ImageUsageFlags = 0x2
	ImageUsageSampledBit                ImageUsageFlags = 0x4
	ImageUsageColorAttachmentBit        ImageUsageFlags = 0x10
	ImageUsageDepthStencilAttachmentBit ImageUsageFlags = 0x20
	ImageUsageTransientAttachmentBit    ImageUsageFlags = 0x40
)

// ImageAspectFlags select the aspects of a view.
type ImageAspectFlags uint32

// Image aspects.
const (
	ImageAspectColorBit   ImageAspectFlags = 0x1
	ImageAspectDepthBit   ImageAspectFlags = 0x2
	ImageAspectStencilBit ImageAspectFlags = 0x4
)

// SampleCount is a single sample count bit, or a set of them when used
// to describe device limits.
type SampleCount uint32

// Sample counts.
const (
	SampleCount1  SampleCount = 0x1
	SampleCount2  SampleCount = 0x2
	SampleCount4  SampleCount = 0x4
	SampleCount8  SampleCount = 0x8
	SampleCount16 SampleCount = 0x10
	SampleCount32 SampleCount = 0x20
	SampleCount64 SampleCount = 0x40
)

// PipelineStageFlags name pipeline stages for semaphore waits.
type PipelineStageFlags uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipeBit             PipelineStageFlags = 0x1
	PipelineStageEarlyFragmentTestsBit    PipelineStageFlags = 0x100
	PipelineStageColorAttachmentOutputBit PipelineStageFlags = 0x400
)

// ShaderStageFlags for push constant ranges.
type ShaderStageFlags uint32

// Shader stages.
const (
	ShaderStageVertexBit   ShaderStageFlags = 0x1
	ShaderStageFragmentBit ShaderStageFlags = 0x10
)
