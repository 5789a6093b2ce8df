// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"errors"
	"sync"

	"github.com/devblok/koruframe/gfx"
)

// NewInstance creates a simulated instance with one adapter per spec,
// in the given order. Without specs a single DiscreteGPU is used.
func NewInstance(specs ...DeviceSpec) *Instance {
	if len(specs) == 0 {
		specs = []DeviceSpec{DiscreteGPU()}
	}
	inst := &Instance{
		surfaces: make(map[gfx.Surface]bool),
	}
	for _, s := range specs {
		spec := s
		inst.adapters = append(inst.adapters, &PhysicalDevice{
			instance: inst,
			spec:     &spec,
		})
	}
	return inst
}

// Instance implements gfx.Instance.
type Instance struct {
	mutex       sync.Mutex
	adapters    []*PhysicalDevice
	surfaces    map[gfx.Surface]bool
	nextSurface gfx.Surface
	destroyed   bool
}

var _ gfx.Instance = (*Instance)(nil)

// CreateSurface returns a new live surface handle.
func (i *Instance) CreateSurface() gfx.Surface {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.nextSurface++
	i.surfaces[i.nextSurface] = true
	return i.nextSurface
}

// Adapter returns the n-th simulated adapter.
func (i *Instance) Adapter(n int) *PhysicalDevice {
	return i.adapters[n]
}

// PhysicalDevices implements interface
func (i *Instance) PhysicalDevices() ([]gfx.PhysicalDevice, error) {
	if i.destroyed {
		return nil, errors.New("instance destroyed")
	}
	devices := make([]gfx.PhysicalDevice, len(i.adapters))
	for idx, a := range i.adapters {
		devices[idx] = a
	}
	return devices, nil
}

// DestroySurface implements interface
func (i *Instance) DestroySurface(s gfx.Surface) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	delete(i.surfaces, s)
}

// SurfaceLive reports whether s was created and not yet destroyed.
func (i *Instance) SurfaceLive(s gfx.Surface) bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.surfaces[s]
}

// Destroy implements interface
func (i *Instance) Destroy() {
	i.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (i *Instance) Destroyed() bool {
	return i.destroyed
}

// PhysicalDevice implements gfx.PhysicalDevice.
type PhysicalDevice struct {
	mutex       sync.Mutex
	instance    *Instance
	spec        *DeviceSpec
	surfaceLost bool
	devices     []*Device
}

var _ gfx.PhysicalDevice = (*PhysicalDevice)(nil)

// Spec returns the adapter description, mutations are visible to later queries.
func (p *PhysicalDevice) Spec() *DeviceSpec {
	return p.spec
}

// Device returns the most recently created logical device, or nil.
func (p *PhysicalDevice) Device() *Device {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.devices) == 0 {
		return nil
	}
	return p.devices[len(p.devices)-1]
}

// SetSurfaceExtent simulates a window resize: the surface reports the new
// current extent and swapchains of another size become out of date.
func (p *PhysicalDevice) SetSurfaceExtent(width, height uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.spec.Surface.Capabilities.CurrentExtent = gfx.Extent2D{Width: width, Height: height}
}

// LoseSurface makes every following surface query and presentation fail
// with gfx.ErrSurfaceLost.
func (p *PhysicalDevice) LoseSurface() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.surfaceLost = true
}

func (p *PhysicalDevice) capabilities() gfx.SurfaceCapabilities {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.spec.Surface.Capabilities
}

func (p *PhysicalDevice) lost() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.surfaceLost
}

func (p *PhysicalDevice) checkSurface(s gfx.Surface) error {
	if !p.instance.SurfaceLive(s) {
		return errors.New("unknown surface")
	}
	if p.lost() {
		return gfx.ErrSurfaceLost
	}
	return nil
}

// Properties implements interface
func (p *PhysicalDevice) Properties() gfx.PhysicalDeviceProperties {
	return p.spec.Properties
}

// QueueFamilies implements interface
func (p *PhysicalDevice) QueueFamilies() []gfx.QueueFamilyProperties {
	return append([]gfx.QueueFamilyProperties(nil), p.spec.QueueFamilies...)
}

// MemoryProperties implements interface
func (p *PhysicalDevice) MemoryProperties() gfx.MemoryProperties {
	return gfx.MemoryProperties{Types: append([]gfx.MemoryType(nil), p.spec.Memory.Types...)}
}

// FormatProperties implements interface
func (p *PhysicalDevice) FormatProperties(f gfx.Format) gfx.FormatProperties {
	return p.spec.Formats[f]
}

// SurfaceSupport implements interface
func (p *PhysicalDevice) SurfaceSupport(family uint32, s gfx.Surface) (bool, error) {
	if err := p.checkSurface(s); err != nil {
		return false, err
	}
	for _, f := range p.spec.PresentFamilies {
		if f == family {
			return true, nil
		}
	}
	return false, nil
}

// SurfaceCapabilities implements interface
func (p *PhysicalDevice) SurfaceCapabilities(s gfx.Surface) (gfx.SurfaceCapabilities, error) {
	if err := p.checkSurface(s); err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	return p.capabilities(), nil
}

// SurfaceFormats implements interface
func (p *PhysicalDevice) SurfaceFormats(s gfx.Surface) ([]gfx.SurfaceFormat, error) {
	if err := p.checkSurface(s); err != nil {
		return nil, err
	}
	return append([]gfx.SurfaceFormat(nil), p.spec.Surface.Formats...), nil
}

// PresentModes implements interface
func (p *PhysicalDevice) PresentModes(s gfx.Surface) ([]gfx.PresentMode, error) {
	if err := p.checkSurface(s); err != nil {
		return nil, err
	}
	return append([]gfx.PresentMode(nil), p.spec.Surface.PresentModes...), nil
}

// CreateDevice implements interface
func (p *PhysicalDevice) CreateDevice(info gfx.DeviceCreateInfo) (gfx.Device, error) {
	for _, ext := range info.Extensions {
		if !contains(p.spec.Properties.Extensions, ext) {
			return nil, errors.New("extension not present: " + ext)
		}
	}
	for _, f := range info.QueueFamilies {
		if int(f) >= len(p.spec.QueueFamilies) {
			return nil, errors.New("queue family out of range")
		}
	}
	d := newDevice(p, info)
	p.mutex.Lock()
	p.devices = append(p.devices, d)
	p.mutex.Unlock()
	return d, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
