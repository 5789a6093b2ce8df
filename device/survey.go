// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"fmt"

	"github.com/devblok/koruframe/gfx"
)

// Suitability is the verdict on one adapter.
type Suitability struct {
	Device     gfx.PhysicalDevice `json:"-"`
	Properties gfx.PhysicalDeviceProperties
	Families   QueueFamilies
	Suitable   bool
	Reason     string `json:",omitempty"`
}

// Survey evaluates every adapter of the instance in enumeration order.
func Survey(instance gfx.Instance, surface gfx.Surface, extensions []string) ([]Suitability, error) {
	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	out := make([]Suitability, 0, len(devices))
	for _, d := range devices {
		s, err := Evaluate(d, surface, extensions)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Evaluate checks that the adapter exposes every required extension, a
// complete queue family selection and at least one surface format and
// present mode. Errors are surface query failures, not rejections.
func Evaluate(pd gfx.PhysicalDevice, surface gfx.Surface, extensions []string) (Suitability, error) {
	s := Suitability{
		Device:     pd,
		Properties: pd.Properties(),
	}

	for _, ext := range extensions {
		if !hasExtension(s.Properties.Extensions, ext) {
			s.Reason = "missing extension " + ext
			return s, nil
		}
	}

	families, err := SelectQueueFamilies(pd, surface)
	if err != nil {
		return s, fmt.Errorf("device: %s: queue families: %w", s.Properties.Name, err)
	}
	s.Families = families
	if !families.Complete() {
		s.Reason = "no queue family for graphics and presentation"
		return s, nil
	}

	formats, err := pd.SurfaceFormats(surface)
	if err != nil {
		return s, fmt.Errorf("device: %s: surface formats: %w", s.Properties.Name, err)
	}
	if len(formats) == 0 {
		s.Reason = "surface reports no formats"
		return s, nil
	}
	modes, err := pd.PresentModes(surface)
	if err != nil {
		return s, fmt.Errorf("device: %s: present modes: %w", s.Properties.Name, err)
	}
	if len(modes) == 0 {
		s.Reason = "surface reports no present modes"
		return s, nil
	}

	s.Suitable = true
	return s, nil
}

func hasExtension(available []string, name string) bool {
	for _, a := range available {
		if a == name {
			return true
		}
	}
	return false
}
