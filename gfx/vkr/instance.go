// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/gfx"
)

// DefaultApplicationInfo describes the engine to the driver.
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("Koru3D"),
	PEngineName:        safeString("Koru3D"),
}

// Instance is a Vulkan instance.
type Instance struct {
	instance vk.Instance
}

// NewInstance loads Vulkan through procAddr, the vkGetInstanceProcAddr the
// windowing library found, or the system loader when it is nil. Debug mode
// enables the validation layer and debug report extension.
func NewInstance(procAddr unsafe.Pointer, cfg core.InstanceConfiguration) (*Instance, error) {
	extensions := append([]string(nil), cfg.Extensions...)
	layers := append([]string(nil), cfg.Layers...)
	if cfg.DebugMode {
		layers = append(layers, "VK_LAYER_LUNARG_standard_validation")
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        DefaultApplicationInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	return &Instance{instance: instance}, nil
}

// Handle returns the vk.Instance, windowing libraries create surfaces on it.
func (i *Instance) Handle() interface{} {
	return i.instance
}

// PhysicalDevices implements interface
func (i *Instance) PhysicalDevices() ([]gfx.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(i.instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %s", err)
	}
	available := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(i.instance, &deviceCount, available)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %s", err)
	}

	devices := make([]gfx.PhysicalDevice, 0, deviceCount)
	for _, pd := range available[:deviceCount] {
		d, err := newPhysicalDevice(pd)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// DestroySurface implements interface
func (i *Instance) DestroySurface(s gfx.Surface) {
	vk.DestroySurface(i.instance, surface(s), nil)
}

// Destroy implements interface
func (i *Instance) Destroy() {
	vk.DestroyInstance(i.instance, nil)
}

func surface(s gfx.Surface) vk.Surface {
	return vk.SurfaceFromPointer(uintptr(s))
}

// PhysicalDevice is one enumerated adapter.
type PhysicalDevice struct {
	device     vk.PhysicalDevice
	properties gfx.PhysicalDeviceProperties
}

func newPhysicalDevice(pd vk.PhysicalDevice) (*PhysicalDevice, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	props.Limits.Deref()

	p := &PhysicalDevice{
		device: pd,
		properties: gfx.PhysicalDeviceProperties{
			Name:              vk.ToString(props.DeviceName[:]),
			Type:              gfx.PhysicalDeviceType(props.DeviceType),
			VendorID:          props.VendorID,
			DeviceID:          props.DeviceID,
			DriverVersion:     props.DriverVersion,
			ColorSampleCounts: gfx.SampleCount(props.Limits.FramebufferColorSampleCounts),
			DepthSampleCounts: gfx.SampleCount(props.Limits.FramebufferDepthSampleCounts),
		},
	}

	var numDeviceExtensions uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, nil)); err != nil {
		return nil, errors.New("vk.EnumerateDeviceExtensionProperties(): " + err.Error())
	}
	deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, deviceExt)); err != nil {
		return nil, errors.New("vk.EnumerateDeviceExtensionProperties(): " + err.Error())
	}
	for _, ext := range deviceExt[:numDeviceExtensions] {
		ext.Deref()
		p.properties.Extensions = append(p.properties.Extensions, vk.ToString(ext.ExtensionName[:]))
	}
	return p, nil
}

// Properties implements interface
func (p *PhysicalDevice) Properties() gfx.PhysicalDeviceProperties {
	return p.properties
}

// QueueFamilies implements interface
func (p *PhysicalDevice) QueueFamilies() []gfx.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.device, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.device, &count, props)

	families := make([]gfx.QueueFamilyProperties, count)
	for i := range props[:count] {
		props[i].Deref()
		families[i] = gfx.QueueFamilyProperties{
			Flags: gfx.QueueFlags(props[i].QueueFlags),
			Count: props[i].QueueCount,
		}
	}
	return families
}

// MemoryProperties implements interface
func (p *PhysicalDevice) MemoryProperties() gfx.MemoryProperties {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(p.device, &memoryProperties)
	memoryProperties.Deref()

	out := gfx.MemoryProperties{Types: make([]gfx.MemoryType, memoryProperties.MemoryTypeCount)}
	for idx := uint32(0); idx < memoryProperties.MemoryTypeCount; idx++ {
		memoryProperties.MemoryTypes[idx].Deref()
		out.Types[idx] = gfx.MemoryType{
			PropertyFlags: gfx.MemoryPropertyFlags(memoryProperties.MemoryTypes[idx].PropertyFlags),
			HeapIndex:     memoryProperties.MemoryTypes[idx].HeapIndex,
		}
	}
	return out
}

// FormatProperties implements interface
func (p *PhysicalDevice) FormatProperties(f gfx.Format) gfx.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(p.device, vk.Format(f), &props)
	props.Deref()
	return gfx.FormatProperties{
		LinearTilingFeatures:  gfx.FormatFeatureFlags(props.LinearTilingFeatures),
		OptimalTilingFeatures: gfx.FormatFeatureFlags(props.OptimalTilingFeatures),
	}
}

// SurfaceSupport implements interface
func (p *PhysicalDevice) SurfaceSupport(family uint32, s gfx.Surface) (bool, error) {
	var supported vk.Bool32
	if res := vk.GetPhysicalDeviceSurfaceSupport(p.device, family, surface(s), &supported); res != vk.Success {
		return false, result("vk.GetPhysicalDeviceSurfaceSupport", res)
	}
	return supported.B(), nil
}

// SurfaceCapabilities implements interface
func (p *PhysicalDevice) SurfaceCapabilities(s gfx.Surface) (gfx.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(p.device, surface(s), &caps); res != vk.Success {
		return gfx.SurfaceCapabilities{}, result("vk.GetPhysicalDeviceSurfaceCapabilities", res)
	}
	caps.Deref()
	return gfx.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  extent(caps.CurrentExtent),
		MinImageExtent: extent(caps.MinImageExtent),
		MaxImageExtent: extent(caps.MaxImageExtent),
	}, nil
}

// SurfaceFormats implements interface
func (p *PhysicalDevice) SurfaceFormats(s gfx.Surface) ([]gfx.SurfaceFormat, error) {
	var count uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(p.device, surface(s), &count, nil); res != vk.Success {
		return nil, result("vk.GetPhysicalDeviceSurfaceFormats", res)
	}
	formats := make([]vk.SurfaceFormat, count)
	if res := vk.GetPhysicalDeviceSurfaceFormats(p.device, surface(s), &count, formats); res != vk.Success {
		return nil, result("vk.GetPhysicalDeviceSurfaceFormats", res)
	}

	out := make([]gfx.SurfaceFormat, count)
	for i := range formats[:count] {
		formats[i].Deref()
		out[i] = gfx.SurfaceFormat{
			Format:     gfx.Format(formats[i].Format),
			ColorSpace: gfx.ColorSpace(formats[i].ColorSpace),
		}
	}
	return out, nil
}

// PresentModes implements interface
func (p *PhysicalDevice) PresentModes(s gfx.Surface) ([]gfx.PresentMode, error) {
	var count uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(p.device, surface(s), &count, nil); res != vk.Success {
		return nil, result("vk.GetPhysicalDeviceSurfacePresentModes", res)
	}
	modes := make([]vk.PresentMode, count)
	if res := vk.GetPhysicalDeviceSurfacePresentModes(p.device, surface(s), &count, modes); res != vk.Success {
		return nil, result("vk.GetPhysicalDeviceSurfacePresentModes", res)
	}

	out := make([]gfx.PresentMode, count)
	for i, m := range modes[:count] {
		out[i] = gfx.PresentMode(m)
	}
	return out, nil
}

// CreateDevice implements interface
func (p *PhysicalDevice) CreateDevice(info gfx.DeviceCreateInfo) (gfx.Device, error) {
	priorities := []float32{1.0}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(info.QueueFamilies))
	for i, family := range info.QueueFamilies {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: priorities,
		}
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(info.Extensions)),
		PpEnabledExtensionNames: safeStrings(info.Extensions),
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(p.device, &dci, nil, &device)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}
	return newDevice(p.device, device), nil
}
