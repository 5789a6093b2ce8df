// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/internal/handle"
)

// Device is a logical Vulkan device. Objects are handed out as gfx handles
// that index into per type tables.
type Device struct {
	physical vk.PhysicalDevice
	device   vk.Device

	queues     map[[2]uint32]gfx.Queue
	queueTable handle.Table[vk.Queue]

	swapchains      handle.Table[vk.Swapchain]
	swapchainImages map[gfx.Swapchain][]gfx.Image
	images          handle.Table[vk.Image]
	views           handle.Table[vk.ImageView]
	memory          handle.Table[vk.DeviceMemory]
	renderPasses    handle.Table[vk.RenderPass]
	framebuffers    handle.Table[vk.Framebuffer]
	pools           handle.Table[vk.CommandPool]
	buffers         handle.Table[vk.CommandBuffer]
	fences          handle.Table[vk.Fence]
	semaphores      handle.Table[vk.Semaphore]
	pipelines       handle.Table[vk.Pipeline]
	layouts         handle.Table[vk.PipelineLayout]
}

func newDevice(physical vk.PhysicalDevice, device vk.Device) *Device {
	return &Device{
		physical:        physical,
		device:          device,
		queues:          make(map[[2]uint32]gfx.Queue),
		swapchainImages: make(map[gfx.Swapchain][]gfx.Image),
	}
}

// Queue implements interface
func (d *Device) Queue(family, index uint32) gfx.Queue {
	key := [2]uint32{family, index}
	if q, ok := d.queues[key]; ok {
		return q
	}
	var queue vk.Queue
	vk.GetDeviceQueue(d.device, family, index, &queue)
	q := gfx.Queue(d.queueTable.Insert(queue))
	d.queues[key] = q
	return q
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	return result("vk.DeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

// CreateSwapchain implements interface
func (d *Device) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, error) {
	var surfaceCapabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, surface(info.Surface), &surfaceCapabilities); res != vk.Success {
		return 0, result("vk.GetPhysicalDeviceSurfaceCapabilities", res)
	}
	surfaceCapabilities.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		if surfaceCapabilities.SupportedCompositeAlpha&vk.CompositeAlphaFlags(compositeAlphaFlags[i]) != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface(info.Surface),
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     surfaceCapabilities.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}
	if len(info.QueueFamilies) > 1 {
		scci.ImageSharingMode = vk.SharingModeConcurrent
		scci.QueueFamilyIndexCount = uint32(len(info.QueueFamilies))
		scci.PQueueFamilyIndices = info.QueueFamilies
	}
	if info.OldSwapchain != 0 {
		scci.OldSwapchain = d.swapchains.MustGet(uint64(info.OldSwapchain))
	}

	var swapchain vk.Swapchain
	if res := vk.CreateSwapchain(d.device, &scci, nil, &swapchain); res != vk.Success {
		return 0, result("vk.CreateSwapchain", res)
	}
	return gfx.Swapchain(d.swapchains.Insert(swapchain)), nil
}

// DestroySwapchain implements interface. Image handles of the chain are
// forgotten, the images themselves belong to the presentation engine.
func (d *Device) DestroySwapchain(h gfx.Swapchain) {
	swapchain, ok := d.swapchains.Remove(uint64(h))
	if !ok {
		return
	}
	for _, img := range d.swapchainImages[h] {
		d.images.Remove(uint64(img))
	}
	delete(d.swapchainImages, h)
	vk.DestroySwapchain(d.device, swapchain, nil)
}

// SwapchainImages implements interface
func (d *Device) SwapchainImages(h gfx.Swapchain) ([]gfx.Image, error) {
	if images, ok := d.swapchainImages[h]; ok {
		return images, nil
	}
	swapchain := d.swapchains.MustGet(uint64(h))

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(d.device, swapchain, &numImages, nil)); err != nil {
		return nil, errors.New("vk.GetSwapchainImages(num): " + err.Error())
	}
	swapchainImages := make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(d.device, swapchain, &numImages, swapchainImages)); err != nil {
		return nil, errors.New("vk.GetSwapchainImages(images): " + err.Error())
	}

	images := make([]gfx.Image, numImages)
	for i, img := range swapchainImages[:numImages] {
		images[i] = gfx.Image(d.images.Insert(img))
	}
	d.swapchainImages[h] = images
	return images, nil
}

// AcquireNextImage implements interface
func (d *Device) AcquireNextImage(h gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore) (uint32, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(d.device, d.swapchains.MustGet(uint64(h)), uint(timeoutNanos(timeout)),
		d.semaphores.MustGet(uint64(signal)), nil, &imageIndex)
	return imageIndex, result("vk.AcquireNextImage", res)
}

// CreateImage implements interface
func (d *Device) CreateImage(info gfx.ImageCreateInfo) (gfx.Image, error) {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCountFlagBits(info.Samples),
		Tiling:        vk.ImageTiling(info.Tiling),
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(d.device, &ici, nil, &image)); err != nil {
		return 0, errors.New("vk.CreateImage(): " + err.Error())
	}
	return gfx.Image(d.images.Insert(image)), nil
}

// DestroyImage implements interface
func (d *Device) DestroyImage(h gfx.Image) {
	if image, ok := d.images.Remove(uint64(h)); ok {
		vk.DestroyImage(d.device, image, nil)
	}
}

// ImageMemoryRequirements implements interface
func (d *Device) ImageMemoryRequirements(h gfx.Image) gfx.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, d.images.MustGet(uint64(h)), &memRequirements)
	memRequirements.Deref()
	return gfx.MemoryRequirements{
		Size:           uint64(memRequirements.Size),
		Alignment:      uint64(memRequirements.Alignment),
		MemoryTypeBits: memRequirements.MemoryTypeBits,
	}
}

// AllocateMemory implements interface
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gfx.Memory, error) {
	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(d.device, &mai, nil, &memory)); err != nil {
		return 0, fmt.Errorf("vk.AllocateMemory(): %s", err.Error())
	}
	return gfx.Memory(d.memory.Insert(memory)), nil
}

// FreeMemory implements interface
func (d *Device) FreeMemory(h gfx.Memory) {
	if memory, ok := d.memory.Remove(uint64(h)); ok {
		vk.FreeMemory(d.device, memory, nil)
	}
}

// BindImageMemory implements interface
func (d *Device) BindImageMemory(img gfx.Image, mem gfx.Memory) error {
	if err := vk.Error(vk.BindImageMemory(d.device, d.images.MustGet(uint64(img)), d.memory.MustGet(uint64(mem)), 0)); err != nil {
		return errors.New("vk.BindImageMemory(): " + err.Error())
	}
	return nil
}

// CreateImageView implements interface
func (d *Device) CreateImageView(info gfx.ImageViewCreateInfo) (gfx.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.MustGet(uint64(info.Image)),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var imageView vk.ImageView
	if err := vk.Error(vk.CreateImageView(d.device, &ivci, nil, &imageView)); err != nil {
		return 0, errors.New("vk.CreateImageView(): " + err.Error())
	}
	return gfx.ImageView(d.views.Insert(imageView)), nil
}

// DestroyImageView implements interface
func (d *Device) DestroyImageView(h gfx.ImageView) {
	if view, ok := d.views.Remove(uint64(h)); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

// CreateRenderPass implements interface
func (d *Device) CreateRenderPass(info gfx.RenderPassCreateInfo) (gfx.RenderPass, error) {
	samples := vk.SampleCountFlagBits(info.Samples)
	if info.Samples <= gfx.SampleCount1 {
		samples = vk.SampleCount1Bit
	}
	multisampled := samples != vk.SampleCount1Bit

	// attachments are stored so a later load pass can draw over them
	color := vk.AttachmentDescription{
		Format:         vk.Format(info.ColorFormat),
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	if multisampled {
		color.FinalLayout = vk.ImageLayoutColorAttachmentOptimal
	}
	depth := vk.AttachmentDescription{
		Format:         vk.Format(info.DepthFormat),
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	if info.Load {
		color.LoadOp = vk.AttachmentLoadOpLoad
		color.InitialLayout = color.FinalLayout
		depth.LoadOp = vk.AttachmentLoadOpLoad
		depth.InitialLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	attachments := []vk.AttachmentDescription{color, depth}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthAttachmentRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorAttachmentRef)),
		PColorAttachments:       colorAttachmentRef,
		PDepthStencilAttachment: &depthAttachmentRef,
	}

	// the presentable image becomes a resolve target
	if multisampled {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(info.ColorFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		})
		subpass.PResolveAttachments = []vk.AttachmentReference{{
			Attachment: 2,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
	}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}
	if info.Load {
		// the previous pass wrote the attachments this one reads
		subpassDependency.SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
		subpassDependency.SrcAccessMask = vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit)
		subpassDependency.DstAccessMask |= vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessDepthStencilAttachmentReadBit)
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(d.device, &rpci, nil, &renderPass)); err != nil {
		return 0, errors.New("vk.CreateRenderPass(): " + err.Error())
	}
	return gfx.RenderPass(d.renderPasses.Insert(renderPass)), nil
}

// DestroyRenderPass implements interface
func (d *Device) DestroyRenderPass(h gfx.RenderPass) {
	if renderPass, ok := d.renderPasses.Remove(uint64(h)); ok {
		vk.DestroyRenderPass(d.device, renderPass, nil)
	}
}

// CreateFramebuffer implements interface
func (d *Device) CreateFramebuffer(info gfx.FramebufferCreateInfo) (gfx.Framebuffer, error) {
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, a := range info.Attachments {
		attachments[i] = d.views.MustGet(uint64(a))
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.MustGet(uint64(info.RenderPass)),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := vk.Error(vk.CreateFramebuffer(d.device, &fci, nil, &framebuffer)); err != nil {
		return 0, errors.New("vk.CreateFramebuffer(): " + err.Error())
	}
	return gfx.Framebuffer(d.framebuffers.Insert(framebuffer)), nil
}

// DestroyFramebuffer implements interface
func (d *Device) DestroyFramebuffer(h gfx.Framebuffer) {
	if framebuffer, ok := d.framebuffers.Remove(uint64(h)); ok {
		vk.DestroyFramebuffer(d.device, framebuffer, nil)
	}
}

// CreateCommandPool implements interface. Buffers of the pool can be
// reset one by one.
func (d *Device) CreateCommandPool(family uint32) (gfx.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(d.device, &cpci, nil, &commandPool)); err != nil {
		return 0, errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	return gfx.CommandPool(d.pools.Insert(commandPool)), nil
}

// DestroyCommandPool implements interface
func (d *Device) DestroyCommandPool(h gfx.CommandPool) {
	if pool, ok := d.pools.Remove(uint64(h)); ok {
		vk.DestroyCommandPool(d.device, pool, nil)
	}
}

// AllocateCommandBuffers implements interface
func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, count int) ([]gfx.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pools.MustGet(uint64(pool)),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}

	commandBuffers := make([]vk.CommandBuffer, count)
	if err := vk.Error(vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}

	out := make([]gfx.CommandBuffer, count)
	for i, cb := range commandBuffers {
		out[i] = gfx.CommandBuffer(d.buffers.Insert(cb))
	}
	return out, nil
}

// FreeCommandBuffers implements interface
func (d *Device) FreeCommandBuffers(pool gfx.CommandPool, buffers []gfx.CommandBuffer) {
	commandBuffers := make([]vk.CommandBuffer, 0, len(buffers))
	for _, h := range buffers {
		if cb, ok := d.buffers.Remove(uint64(h)); ok {
			commandBuffers = append(commandBuffers, cb)
		}
	}
	if len(commandBuffers) == 0 {
		return
	}
	vk.FreeCommandBuffers(d.device, d.pools.MustGet(uint64(pool)), uint32(len(commandBuffers)), commandBuffers)
}

// ResetCommandBuffer implements interface
func (d *Device) ResetCommandBuffer(h gfx.CommandBuffer) error {
	if err := vk.Error(vk.ResetCommandBuffer(d.buffers.MustGet(uint64(h)), 0)); err != nil {
		return fmt.Errorf("vk.ResetCommandBuffer(): %s", err.Error())
	}
	return nil
}

// BeginCommandBuffer implements interface
func (d *Device) BeginCommandBuffer(h gfx.CommandBuffer) error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(d.buffers.MustGet(uint64(h)), &cbbi)); err != nil {
		return fmt.Errorf("vk.BeginCommandBuffer(): %s", err.Error())
	}
	return nil
}

// EndCommandBuffer implements interface
func (d *Device) EndCommandBuffer(h gfx.CommandBuffer) error {
	if err := vk.Error(vk.EndCommandBuffer(d.buffers.MustGet(uint64(h)))); err != nil {
		return fmt.Errorf("vk.EndCommandBuffer(): %s", err.Error())
	}
	return nil
}

// CmdBeginRenderPass implements interface
func (d *Device) CmdBeginRenderPass(h gfx.CommandBuffer, info gfx.RenderPassBeginInfo) {
	clearValues := make([]vk.ClearValue, len(info.ClearValues))
	for i, cv := range info.ClearValues {
		if cv.DepthStencil {
			clearValues[i].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[i].SetColor(cv.Color[:])
		}
	}

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.MustGet(uint64(info.RenderPass)),
		Framebuffer: d.framebuffers.MustGet(uint64(info.Framebuffer)),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.X, Y: info.Area.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(d.buffers.MustGet(uint64(h)), &rpbi, vk.SubpassContentsInline)
}

// CmdEndRenderPass implements interface
func (d *Device) CmdEndRenderPass(h gfx.CommandBuffer) {
	vk.CmdEndRenderPass(d.buffers.MustGet(uint64(h)))
}

// CmdSetViewport implements interface
func (d *Device) CmdSetViewport(h gfx.CommandBuffer, v gfx.Viewport) {
	vk.CmdSetViewport(d.buffers.MustGet(uint64(h)), 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

// CmdSetScissor implements interface
func (d *Device) CmdSetScissor(h gfx.CommandBuffer, r gfx.Rect2D) {
	vk.CmdSetScissor(d.buffers.MustGet(uint64(h)), 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}})
}

// CmdBindPipeline implements interface
func (d *Device) CmdBindPipeline(h gfx.CommandBuffer, p gfx.Pipeline) {
	vk.CmdBindPipeline(d.buffers.MustGet(uint64(h)), vk.PipelineBindPointGraphics, d.pipelines.MustGet(uint64(p)))
}

// CmdPushConstants implements interface
func (d *Device) CmdPushConstants(h gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(d.buffers.MustGet(uint64(h)), d.layouts.MustGet(uint64(layout)),
		vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// CmdDraw implements interface
func (d *Device) CmdDraw(h gfx.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.buffers.MustGet(uint64(h)), vertexCount, instanceCount, firstVertex, firstInstance)
}

// CreateFence implements interface
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return 0, errors.New("vk.CreateFence(): " + err.Error())
	}
	return gfx.Fence(d.fences.Insert(fence)), nil
}

// DestroyFence implements interface
func (d *Device) DestroyFence(h gfx.Fence) {
	if fence, ok := d.fences.Remove(uint64(h)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *Device) vkFences(handles []gfx.Fence) []vk.Fence {
	fences := make([]vk.Fence, len(handles))
	for i, h := range handles {
		fences[i] = d.fences.MustGet(uint64(h))
	}
	return fences
}

// WaitForFences implements interface
func (d *Device) WaitForFences(handles []gfx.Fence, timeout time.Duration) error {
	fences := d.vkFences(handles)
	return result("vk.WaitForFences", vk.WaitForFences(d.device, uint32(len(fences)), fences, vk.True, uint(timeoutNanos(timeout))))
}

// ResetFences implements interface
func (d *Device) ResetFences(handles []gfx.Fence) error {
	fences := d.vkFences(handles)
	return result("vk.ResetFences", vk.ResetFences(d.device, uint32(len(fences)), fences))
}

// CreateSemaphore implements interface
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(d.device, &sci, nil, &semaphore)); err != nil {
		return 0, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	return gfx.Semaphore(d.semaphores.Insert(semaphore)), nil
}

// DestroySemaphore implements interface
func (d *Device) DestroySemaphore(h gfx.Semaphore) {
	if semaphore, ok := d.semaphores.Remove(uint64(h)); ok {
		vk.DestroySemaphore(d.device, semaphore, nil)
	}
}

func (d *Device) vkSemaphores(handles []gfx.Semaphore) []vk.Semaphore {
	semaphores := make([]vk.Semaphore, len(handles))
	for i, h := range handles {
		semaphores[i] = d.semaphores.MustGet(uint64(h))
	}
	return semaphores
}

// QueueSubmit implements interface
func (d *Device) QueueSubmit(queue gfx.Queue, submits []gfx.SubmitInfo, fence gfx.Fence) error {
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, stage := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(stage)
		}
		commandBuffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, h := range s.CommandBuffers {
			commandBuffers[j] = d.buffers.MustGet(uint64(h))
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(s.WaitSemaphores)),
			PWaitSemaphores:      d.vkSemaphores(s.WaitSemaphores),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(commandBuffers)),
			PCommandBuffers:      commandBuffers,
			SignalSemaphoreCount: uint32(len(s.SignalSemaphores)),
			PSignalSemaphores:    d.vkSemaphores(s.SignalSemaphores),
		}
	}

	var vkFence vk.Fence
	if fence != 0 {
		vkFence = d.fences.MustGet(uint64(fence))
	}
	return result("vk.QueueSubmit", vk.QueueSubmit(d.queueTable.MustGet(uint64(queue)), uint32(len(infos)), infos, vkFence))
}

// QueuePresent implements interface
func (d *Device) QueuePresent(queue gfx.Queue, info gfx.PresentInfo) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:    d.vkSemaphores(info.WaitSemaphores),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchains.MustGet(uint64(info.Swapchain))},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return result("vk.QueuePresent", vk.QueuePresent(d.queueTable.MustGet(uint64(queue)), &presentInfo))
}

// Destroy implements interface
func (d *Device) Destroy() {
	vk.DestroyDevice(d.device, nil)
}
