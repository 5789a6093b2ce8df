// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/gfx/gfxtest"
)

var deviceConfig = core.DeviceConfiguration{Extensions: []string{gfxtest.SwapchainExtension}}

func newProvider(c *qt.C, specs ...gfxtest.DeviceSpec) (*device.Provider, *gfxtest.Instance) {
	log, _ := test.NewNullLogger()
	inst := gfxtest.NewInstance(specs...)
	surface := inst.CreateSurface()
	p := device.NewProvider(deviceConfig, log)
	c.Assert(p.Initialise(inst, surface), qt.IsNil)
	c.Cleanup(p.Shutdown)
	return p, inst
}

func TestProviderPicksFirstSuitable(t *testing.T) {
	c := qt.New(t)

	p, inst := newProvider(c, gfxtest.ComputeOnly(), gfxtest.IntegratedGPU(), gfxtest.DiscreteGPU())
	c.Assert(p.Properties().Name, qt.Equals, "Simulated Integrated GPU")
	c.Assert(p.PhysicalDevice(), qt.Equals, gfx.PhysicalDevice(inst.Adapter(1)))
	c.Assert(inst.Adapter(2).Device() == nil, qt.IsTrue)
}

func TestProviderQueues(t *testing.T) {
	c := qt.New(t)

	p, inst := newProvider(c)
	families := p.QueueFamilies()
	c.Assert(families, qt.DeepEquals, device.QueueFamilies{
		Graphics: 0,
		Present:  0,
		Compute:  0,
		Transfer: 1,
	})
	c.Assert(p.GraphicsQueue(), qt.Equals, p.PresentQueue())
	c.Assert(p.TransferQueue(), qt.Not(qt.Equals), p.GraphicsQueue())
	c.Assert(inst.Adapter(0).Device().CreateInfo().QueueFamilies, qt.DeepEquals, []uint32{0, 1})
}

func TestSeparatePresentFamily(t *testing.T) {
	c := qt.New(t)

	spec := gfxtest.DiscreteGPU()
	spec.QueueFamilies = []gfx.QueueFamilyProperties{
		{Flags: gfx.QueueGraphicsBit | gfx.QueueTransferBit, Count: 1},
		{Flags: gfx.QueueComputeBit, Count: 1},
		{Flags: gfx.QueueTransferBit, Count: 1},
	}
	spec.PresentFamilies = []uint32{2}
	p, _ := newProvider(c, spec)
	c.Assert(p.QueueFamilies(), qt.DeepEquals, device.QueueFamilies{
		Graphics: 0,
		Present:  2,
		Compute:  1,
		Transfer: 2,
	})
	c.Assert(p.QueueFamilies().Unique(), qt.DeepEquals, []uint32{0, 2, 1})
}

func TestNoSuitableDevice(t *testing.T) {
	c := qt.New(t)

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	inst := gfxtest.NewInstance(gfxtest.ComputeOnly())
	p := device.NewProvider(deviceConfig, log)
	err := p.Initialise(inst, inst.CreateSurface())
	c.Assert(errors.Is(err, device.ErrNoSuitableDevice), qt.IsTrue)
	c.Assert(hook.LastEntry().Data["reason"], qt.Equals, "missing extension VK_KHR_swapchain")
}

func TestSurvey(t *testing.T) {
	c := qt.New(t)

	noModes := gfxtest.DiscreteGPU()
	noModes.Surface.PresentModes = nil
	noPresent := gfxtest.DiscreteGPU()
	noPresent.PresentFamilies = nil

	inst := gfxtest.NewInstance(noModes, noPresent, gfxtest.ComputeOnly(), gfxtest.DiscreteGPU())
	result, err := device.Survey(inst, inst.CreateSurface(), deviceConfig.Extensions)
	c.Assert(err, qt.IsNil)
	c.Assert(result, qt.HasLen, 4)

	var reasons []string
	for _, r := range result {
		reasons = append(reasons, r.Reason)
	}
	c.Assert(reasons, qt.DeepEquals, []string{
		"surface reports no present modes",
		"no queue family for graphics and presentation",
		"missing extension VK_KHR_swapchain",
		"",
	})
	c.Assert(result[3].Suitable, qt.IsTrue)
}

func TestSurveyLostSurface(t *testing.T) {
	c := qt.New(t)

	inst := gfxtest.NewInstance()
	inst.Adapter(0).LoseSurface()
	_, err := device.Survey(inst, inst.CreateSurface(), deviceConfig.Extensions)
	c.Assert(errors.Is(err, gfx.ErrSurfaceLost), qt.IsTrue)
}

func TestFindMemoryType(t *testing.T) {
	c := qt.New(t)

	p, _ := newProvider(c)
	tests := []struct {
		bits  uint32
		flags gfx.MemoryPropertyFlags
		want  uint32
		err   error
	}{
		{0xff, gfx.MemoryPropertyHostVisibleBit, 0, nil},
		{0xff, gfx.MemoryPropertyDeviceLocalBit, 1, nil},
		{0x4, gfx.MemoryPropertyDeviceLocalBit, 2, nil},
		{0xff, gfx.MemoryPropertyDeviceLocalBit | gfx.MemoryPropertyHostVisibleBit, 2, nil},
		{0x3, gfx.MemoryPropertyDeviceLocalBit | gfx.MemoryPropertyHostVisibleBit, 0, gfx.ErrNoMemoryType},
		{0xff, gfx.MemoryPropertyLazilyAllocatedBit, 0, gfx.ErrNoMemoryType},
		{0, 0, 0, gfx.ErrNoMemoryType},
	}
	for _, test := range tests {
		for i := 0; i < 3; i++ {
			got, err := p.FindMemoryType(test.bits, test.flags)
			if test.err != nil {
				c.Assert(errors.Is(err, test.err), qt.IsTrue)
				continue
			}
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, test.want)
		}
	}
}

func TestFindSupportedFormat(t *testing.T) {
	c := qt.New(t)

	p, _ := newProvider(c)
	f, err := p.FindSupportedFormat(
		[]gfx.Format{gfx.FormatR8G8B8A8Srgb, gfx.FormatB8G8R8A8Unorm, gfx.FormatB8G8R8A8Srgb},
		gfx.ImageTilingOptimal,
		gfx.FormatFeatureColorAttachmentBit,
	)
	c.Assert(err, qt.IsNil)
	c.Assert(f, qt.Equals, gfx.FormatB8G8R8A8Unorm)

	f, err = p.FindSupportedFormat([]gfx.Format{gfx.FormatD32Sfloat, gfx.FormatD16Unorm}, gfx.ImageTilingLinear, gfx.FormatFeatureDepthStencilAttachmentBit)
	c.Assert(err, qt.IsNil)
	c.Assert(f, qt.Equals, gfx.FormatD16Unorm)

	_, err = p.FindSupportedFormat([]gfx.Format{gfx.FormatR8G8B8A8Unorm}, gfx.ImageTilingOptimal, gfx.FormatFeatureColorAttachmentBit)
	c.Assert(errors.Is(err, gfx.ErrNoSupportedFormat), qt.IsTrue)

	depth, err := p.FindDepthFormat()
	c.Assert(err, qt.IsNil)
	c.Assert(depth, qt.Equals, gfx.FormatD32Sfloat)
}

func TestMaxUsableSampleCount(t *testing.T) {
	c := qt.New(t)

	p, _ := newProvider(c, gfxtest.IntegratedGPU())
	c.Assert(p.MaxUsableSampleCount(), qt.Equals, gfx.SampleCount2)
}

func TestContextLifecycle(t *testing.T) {
	c := qt.New(t)

	log, _ := test.NewNullLogger()
	inst := gfxtest.NewInstance()
	surface := inst.CreateSurface()
	ctx, err := device.NewContext(inst, surface, deviceConfig, log)
	c.Assert(err, qt.IsNil)
	dev := inst.Adapter(0).Device()
	c.Assert(ctx.Device(), qt.Equals, gfx.Device(dev))

	ctx.Destroy()
	c.Assert(dev.Destroyed(), qt.IsTrue)
	c.Assert(dev.Violations(), qt.HasLen, 0)
	c.Assert(inst.SurfaceLive(surface), qt.IsFalse)
	c.Assert(inst.Destroyed(), qt.IsTrue)
}

func BenchmarkFindMemoryType(b *testing.B) {
	props := gfxtest.DiscreteGPU().Memory
	for i := 0; i < b.N; i++ {
		device.FindMemoryType(props, 0xff, gfx.MemoryPropertyDeviceLocalBit|gfx.MemoryPropertyHostVisibleBit)
	}
}
