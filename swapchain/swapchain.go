// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package swapchain owns the presentable image chain: the images the
// surface rotates through, their views, depth and multisample attachments,
// the render pass and one framebuffer per image.
package swapchain

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/window"
)

// ErrZeroExtent is returned while the window has no drawable area.
var ErrZeroExtent = errors.New("swapchain: window has zero extent")

// Status of an acquisition or presentation.
type Status int

// Statuses reported by AcquireNextImage and Present.
const (
	StatusOK Status = iota
	StatusOutOfDate
	StatusSuboptimal
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOutOfDate:
		return "out-of-date"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusFatal:
		return "fatal"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// StatusOf classifies a driver error. Only fatal statuses keep the error.
func StatusOf(err error) (Status, error) {
	switch {
	case err == nil:
		return StatusOK, nil
	case errors.Is(err, gfx.ErrSuboptimal):
		return StatusSuboptimal, nil
	case errors.Is(err, gfx.ErrOutOfDate):
		return StatusOutOfDate, nil
	}
	return StatusFatal, err
}

type attachment struct {
	image  gfx.Image
	memory gfx.Memory
	view   gfx.ImageView
}

// Chain is one generation of the presentable image chain.
type Chain struct {
	ctx *device.Context
	dev gfx.Device
	log logrus.FieldLogger

	handle      gfx.Swapchain
	format      gfx.SurfaceFormat
	presentMode gfx.PresentMode
	extent      gfx.Extent2D
	samples     gfx.SampleCount
	depthFormat gfx.Format

	images       []gfx.Image
	views        []gfx.ImageView
	depth        attachment
	color        attachment
	renderPass   gfx.RenderPass
	loadPass     gfx.RenderPass
	framebuffers []gfx.Framebuffer
}

// New creates the first chain for the context surface.
func New(ctx *device.Context, win window.Window, cfg core.SwapchainConfiguration) (*Chain, error) {
	return Initialise(ctx, win, cfg, nil)
}

// Initialise creates a chain. A previous chain is handed to the driver as
// the old swapchain and is left intact: the caller drains in-flight work
// and shuts it down once the new chain exists.
func Initialise(ctx *device.Context, win window.Window, cfg core.SwapchainConfiguration, previous *Chain) (*Chain, error) {
	pd := ctx.Provider.PhysicalDevice()
	caps, err := pd.SurfaceCapabilities(ctx.Surface)
	if err != nil {
		return nil, fmt.Errorf("swapchain: surface capabilities: %w", err)
	}
	formats, err := pd.SurfaceFormats(ctx.Surface)
	if err != nil {
		return nil, fmt.Errorf("swapchain: surface formats: %w", err)
	}
	modes, err := pd.PresentModes(ctx.Surface)
	if err != nil {
		return nil, fmt.Errorf("swapchain: present modes: %w", err)
	}
	if len(formats) == 0 || len(modes) == 0 {
		return nil, errors.New("swapchain: surface reports no formats or present modes")
	}

	width, height := win.PixelSize()
	extent := ChooseExtent(caps, width, height)
	if extent.Empty() {
		return nil, ErrZeroExtent
	}

	c := &Chain{
		ctx:         ctx,
		dev:         ctx.Device(),
		log:         ctx.Log.WithField("component", "swapchain"),
		format:      ChooseSurfaceFormat(formats),
		presentMode: ChoosePresentMode(modes, cfg.VSync),
		extent:      extent,
		samples:     gfx.SampleCount1,
	}
	if cfg.Samples > 1 {
		c.samples = gfx.SampleCount(cfg.Samples)
		if max := ctx.Provider.MaxUsableSampleCount(); c.samples > max {
			c.log.WithFields(logrus.Fields{
				"requested": cfg.Samples,
				"max":       max,
			}).Warn("Sample count clamped to device limit")
			c.samples = max
		}
	}

	var old gfx.Swapchain
	if previous != nil {
		old = previous.handle
	}
	if err := c.build(caps, cfg.Size, old); err != nil {
		c.Shutdown()
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"extent":    fmt.Sprintf("%dx%d", c.extent.Width, c.extent.Height),
		"format":    c.format.Format,
		"mode":      c.presentMode,
		"images":    len(c.images),
		"samples":   c.samples,
		"recreated": previous != nil,
	}).Info("Created swapchain")
	return c, nil
}

func (c *Chain) build(caps gfx.SurfaceCapabilities, size uint32, old gfx.Swapchain) error {
	families := c.ctx.Provider.QueueFamilies()
	var sharing []uint32
	if families.Graphics != families.Present {
		sharing = []uint32{uint32(families.Graphics), uint32(families.Present)}
	}

	handle, err := c.dev.CreateSwapchain(gfx.SwapchainCreateInfo{
		Surface:       c.ctx.Surface,
		MinImageCount: ChooseImageCount(caps, size),
		Format:        c.format,
		Extent:        c.extent,
		PresentMode:   c.presentMode,
		QueueFamilies: sharing,
		OldSwapchain:  old,
	})
	if err != nil {
		return fmt.Errorf("swapchain: create: %w", err)
	}
	c.handle = handle

	if c.images, err = c.dev.SwapchainImages(handle); err != nil {
		return fmt.Errorf("swapchain: images: %w", err)
	}
	for _, img := range c.images {
		view, err := c.dev.CreateImageView(gfx.ImageViewCreateInfo{
			Image:  img,
			Format: c.format.Format,
			Aspect: gfx.ImageAspectColorBit,
		})
		if err != nil {
			return fmt.Errorf("swapchain: image view: %w", err)
		}
		c.views = append(c.views, view)
	}

	if c.samples > gfx.SampleCount1 {
		c.color, err = c.createAttachment(c.format.Format,
			gfx.ImageUsageColorAttachmentBit|gfx.ImageUsageTransientAttachmentBit,
			gfx.ImageAspectColorBit)
		if err != nil {
			return fmt.Errorf("swapchain: multisample attachment: %w", err)
		}
	}

	if c.depthFormat, err = c.ctx.Provider.FindDepthFormat(); err != nil {
		return fmt.Errorf("swapchain: depth format: %w", err)
	}
	aspect := gfx.ImageAspectDepthBit
	if c.depthFormat.HasStencil() {
		aspect |= gfx.ImageAspectStencilBit
	}
	if c.depth, err = c.createAttachment(c.depthFormat, gfx.ImageUsageDepthStencilAttachmentBit, aspect); err != nil {
		return fmt.Errorf("swapchain: depth attachment: %w", err)
	}

	c.renderPass, err = c.dev.CreateRenderPass(gfx.RenderPassCreateInfo{
		ColorFormat: c.format.Format,
		DepthFormat: c.depthFormat,
		Samples:     c.samples,
	})
	if err != nil {
		return fmt.Errorf("swapchain: render pass: %w", err)
	}
	c.loadPass, err = c.dev.CreateRenderPass(gfx.RenderPassCreateInfo{
		ColorFormat: c.format.Format,
		DepthFormat: c.depthFormat,
		Samples:     c.samples,
		Load:        true,
	})
	if err != nil {
		return fmt.Errorf("swapchain: load render pass: %w", err)
	}

	for _, view := range c.views {
		attachments := []gfx.ImageView{view, c.depth.view}
		if c.samples > gfx.SampleCount1 {
			attachments = []gfx.ImageView{c.color.view, c.depth.view, view}
		}
		fb, err := c.dev.CreateFramebuffer(gfx.FramebufferCreateInfo{
			RenderPass:  c.renderPass,
			Attachments: attachments,
			Extent:      c.extent,
		})
		if err != nil {
			return fmt.Errorf("swapchain: framebuffer: %w", err)
		}
		c.framebuffers = append(c.framebuffers, fb)
	}
	return nil
}

func (c *Chain) createAttachment(format gfx.Format, usage gfx.ImageUsageFlags, aspect gfx.ImageAspectFlags) (attachment, error) {
	var a attachment
	var err error
	a.image, err = c.dev.CreateImage(gfx.ImageCreateInfo{
		Extent:  c.extent,
		Format:  format,
		Usage:   usage,
		Samples: c.samples,
		Tiling:  gfx.ImageTilingOptimal,
	})
	if err != nil {
		return a, err
	}
	if a.memory, err = c.ctx.Provider.Allocate(c.dev.ImageMemoryRequirements(a.image), gfx.MemoryPropertyDeviceLocalBit); err != nil {
		c.destroyAttachment(&a)
		return a, err
	}
	if err = c.dev.BindImageMemory(a.image, a.memory); err != nil {
		c.destroyAttachment(&a)
		return a, err
	}
	if a.view, err = c.dev.CreateImageView(gfx.ImageViewCreateInfo{Image: a.image, Format: format, Aspect: aspect}); err != nil {
		c.destroyAttachment(&a)
		return a, err
	}
	return a, nil
}

func (c *Chain) destroyAttachment(a *attachment) {
	if a.view != 0 {
		c.dev.DestroyImageView(a.view)
	}
	if a.image != 0 {
		c.dev.DestroyImage(a.image)
	}
	if a.memory != 0 {
		c.dev.FreeMemory(a.memory)
	}
	*a = attachment{}
}

// AcquireNextImage acquires an image, signalling the semaphore when it is
// ready to be rendered into.
func (c *Chain) AcquireNextImage(signal gfx.Semaphore) (uint32, Status, error) {
	index, err := c.dev.AcquireNextImage(c.handle, gfx.NoTimeout, signal)
	status, err := StatusOf(err)
	if err != nil {
		return 0, status, fmt.Errorf("swapchain: acquire: %w", err)
	}
	return index, status, nil
}

// Present queues the image for display once wait is signaled.
func (c *Chain) Present(index uint32, wait gfx.Semaphore) (Status, error) {
	err := c.dev.QueuePresent(c.ctx.Provider.PresentQueue(), gfx.PresentInfo{
		WaitSemaphores: []gfx.Semaphore{wait},
		Swapchain:      c.handle,
		ImageIndex:     index,
	})
	status, err := StatusOf(err)
	if err != nil {
		return status, fmt.Errorf("swapchain: present: %w", err)
	}
	return status, nil
}

// Shutdown destroys everything the engine created for this chain. The
// images belong to the presentation engine and go with the swapchain.
func (c *Chain) Shutdown() {
	for _, fb := range c.framebuffers {
		c.dev.DestroyFramebuffer(fb)
	}
	c.framebuffers = nil
	if c.renderPass != 0 {
		c.dev.DestroyRenderPass(c.renderPass)
		c.renderPass = 0
	}
	if c.loadPass != 0 {
		c.dev.DestroyRenderPass(c.loadPass)
		c.loadPass = 0
	}
	c.destroyAttachment(&c.depth)
	c.destroyAttachment(&c.color)
	for _, v := range c.views {
		c.dev.DestroyImageView(v)
	}
	c.views = nil
	if c.handle != 0 {
		c.dev.DestroySwapchain(c.handle)
		c.handle = 0
	}
	c.images = nil
}

// Handle returns the driver swapchain.
func (c *Chain) Handle() gfx.Swapchain {
	return c.handle
}

// Format returns the surface format in use.
func (c *Chain) Format() gfx.SurfaceFormat {
	return c.format
}

// PresentMode returns the present mode in use.
func (c *Chain) PresentMode() gfx.PresentMode {
	return c.presentMode
}

// Extent returns the image size.
func (c *Chain) Extent() gfx.Extent2D {
	return c.extent
}

// Samples returns the color attachment sample count.
func (c *Chain) Samples() gfx.SampleCount {
	return c.samples
}

// DepthFormat returns the depth attachment format.
func (c *Chain) DepthFormat() gfx.Format {
	return c.depthFormat
}

// ImageCount returns the number of presentable images.
func (c *Chain) ImageCount() int {
	return len(c.images)
}

// Images returns the presentable images.
func (c *Chain) Images() []gfx.Image {
	return c.images
}

// Views returns one view per image.
func (c *Chain) Views() []gfx.ImageView {
	return c.views
}

// RenderPass returns the clearing pass every framebuffer was built against.
func (c *Chain) RenderPass() gfx.RenderPass {
	return c.renderPass
}

// LoadRenderPass returns a pass compatible with RenderPass that keeps the
// attachment contents, for drawing over an earlier pass of the same frame.
func (c *Chain) LoadRenderPass() gfx.RenderPass {
	return c.loadPass
}

// Framebuffers returns one framebuffer per image.
func (c *Chain) Framebuffers() []gfx.Framebuffer {
	return c.framebuffers
}

// Framebuffer returns the framebuffer of the given image.
func (c *Chain) Framebuffer(index uint32) gfx.Framebuffer {
	return c.framebuffers[index]
}
