// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the GPU driver surface the frame core is built on.
// It follows Vulkan closely: handles are opaque, enumerations carry the
// Vulkan numeric values and every call maps onto one or two API entry points.
// The vkr package implements it on Vulkan, gfxtest simulates it for tests.
package gfx

import (
	"math"
	"time"
)

// NoTimeout makes a wait or acquisition block until it completes.
const NoTimeout time.Duration = math.MaxInt64

// Surface is an opaque window surface handle produced by the windowing layer.
type Surface uintptr

// NullSurface is the zero surface.
const NullSurface Surface = 0

// Driver object handles. Zero is always the null handle.
type (
	Queue          uint64
	Swapchain      uint64
	Image          uint64
	ImageView      uint64
	Memory         uint64
	RenderPass     uint64
	Framebuffer    uint64
	CommandPool    uint64
	CommandBuffer  uint64
	Fence          uint64
	Semaphore      uint64
	Pipeline       uint64
	PipelineLayout uint64
)

// Instance is the API entry point: it enumerates adapters and owns surfaces.
type Instance interface {

	// PhysicalDevices returns adapters in driver enumeration order.
	PhysicalDevices() ([]PhysicalDevice, error)

	// DestroySurface releases a surface created against this instance.
	DestroySurface(Surface)

	// Destroy releases the instance. Every device must be destroyed first.
	Destroy()
}

// PhysicalDevice describes one adapter and creates logical devices on it.
type PhysicalDevice interface {
	Properties() PhysicalDeviceProperties
	QueueFamilies() []QueueFamilyProperties
	MemoryProperties() MemoryProperties
	FormatProperties(Format) FormatProperties

	SurfaceSupport(family uint32, surface Surface) (bool, error)
	SurfaceCapabilities(surface Surface) (SurfaceCapabilities, error)
	SurfaceFormats(surface Surface) ([]SurfaceFormat, error)
	PresentModes(surface Surface) ([]PresentMode, error)

	CreateDevice(info DeviceCreateInfo) (Device, error)
}

// Device is a logical device. Calls are not synchronized internally,
// the frame core drives a device from a single goroutine.
type Device interface {
	Queue(family, index uint32) Queue
	WaitIdle() error

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	DestroySwapchain(Swapchain)
	SwapchainImages(Swapchain) ([]Image, error)

	// AcquireNextImage returns ErrSuboptimal together with a valid index,
	// ErrOutOfDate without one. On ErrOutOfDate the semaphore is left untouched.
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore) (uint32, error)

	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(Image)
	ImageMemoryRequirements(Image) MemoryRequirements
	AllocateMemory(size uint64, typeIndex uint32) (Memory, error)
	FreeMemory(Memory)
	BindImageMemory(Image, Memory) error
	CreateImageView(info ImageViewCreateInfo) (ImageView, error)
	DestroyImageView(ImageView)

	CreateRenderPass(info RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(RenderPass)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(Framebuffer)

	CreateCommandPool(family uint32) (CommandPool, error)
	DestroyCommandPool(CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	ResetCommandBuffer(CommandBuffer) error
	BeginCommandBuffer(CommandBuffer) error
	EndCommandBuffer(CommandBuffer) error

	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	CmdBindPipeline(cb CommandBuffer, pipeline Pipeline)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStageFlags, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(Fence)
	// WaitForFences blocks until every fence is signaled or returns ErrTimeout.
	WaitForFences(fences []Fence, timeout time.Duration) error
	ResetFences(fences []Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(Semaphore)

	QueueSubmit(queue Queue, submits []SubmitInfo, fence Fence) error
	// QueuePresent reports ErrSuboptimal or ErrOutOfDate for surface changes.
	QueuePresent(queue Queue, info PresentInfo) error

	Destroy()
}

// PhysicalDeviceProperties is the summary of an adapter used during selection.
type PhysicalDeviceProperties struct {
	Name          string
	Type          PhysicalDeviceType
	VendorID      uint32
	DeviceID      uint32
	DriverVersion uint32
	Extensions    []string

	// Sample counts usable for color and depth framebuffer attachments.
	ColorSampleCounts SampleCount
	DepthSampleCounts SampleCount
}

// QueueFamilyProperties describes a queue family.
type QueueFamilyProperties struct {
	Flags QueueFlags
	Count uint32
}

// MemoryType is one entry of the device memory type list.
type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

// MemoryProperties lists memory types in device order.
type MemoryProperties struct {
	Types []MemoryType
}

// MemoryRequirements of an image.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// FormatProperties holds the tiling specific feature support of a format.
type FormatProperties struct {
	LinearTilingFeatures  FormatFeatureFlags
	OptimalTilingFeatures FormatFeatureFlags
}

// SurfaceCapabilities as reported for a device/surface pair.
// MaxImageCount of zero means no upper limit.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// SurfaceFormat pairs a format with its color space.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// UndefinedExtent is the sentinel extent a surface reports when the
// swapchain decides the size.
var UndefinedExtent = Extent2D{Width: 0xFFFFFFFF, Height: 0xFFFFFFFF}

// Rect2D is a pixel rectangle.
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

// Viewport transform.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// DeviceCreateInfo requests one queue for every listed family.
type DeviceCreateInfo struct {
	QueueFamilies []uint32
	Extensions    []string
}

// SwapchainCreateInfo describes a presentable image chain. More than one
// queue family selects concurrent sharing.
type SwapchainCreateInfo struct {
	Surface       Surface
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	QueueFamilies []uint32
	OldSwapchain  Swapchain
}

// ImageCreateInfo describes a 2D single mip image.
type ImageCreateInfo struct {
	Extent  Extent2D
	Format  Format
	Usage   ImageUsageFlags
	Samples SampleCount
	Tiling  ImageTiling
}

// ImageViewCreateInfo describes a 2D view over one image.
type ImageViewCreateInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspectFlags
}

// RenderPassCreateInfo describes the single subpass pass used for
// presentable targets: a color attachment ending in the present layout,
// a depth attachment and, when Samples is above one, a multisampled color
// attachment resolved into the presentable one.
type RenderPassCreateInfo struct {
	ColorFormat Format
	DepthFormat Format
	Samples     SampleCount
	// Load keeps what an earlier pass stored in the attachments. A load
	// pass takes no clear values and is compatible with the clearing one.
	Load bool
}

// ClearCount is the number of clear values a pass begun from info needs.
func (info RenderPassCreateInfo) ClearCount() int {
	if info.Load {
		return 0
	}
	return 2
}

// FramebufferCreateInfo binds attachments to a render pass.
type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// ClearValue is either a color or a depth/stencil clear.
type ClearValue struct {
	Color        [4]float32
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

// ClearColor returns a color clear value.
func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

// ClearDepthStencil returns a depth/stencil clear value.
func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, DepthStencil: true}
}

// RenderPassBeginInfo starts a render pass instance.
type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	ClearValues []ClearValue
}

// SubmitInfo is one batch of a queue submission.
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// PresentInfo queues one image of one swapchain for presentation.
type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}
