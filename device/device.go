// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device selects a GPU and exposes its queues and memory queries.
package device

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/gfx"
)

// ErrNoSuitableDevice is returned when no adapter passes selection.
var ErrNoSuitableDevice = errors.New("no suitable physical device")

// Unavailable marks a queue family role no family can fill.
const Unavailable = -1

// QueueFamilies records the family chosen for every queue role.
type QueueFamilies struct {
	Graphics int
	Present  int
	Compute  int
	Transfer int
}

// Complete reports whether graphics and present are both available.
func (q QueueFamilies) Complete() bool {
	return q.Graphics != Unavailable && q.Present != Unavailable
}

// Unique returns the distinct available families in role order.
func (q QueueFamilies) Unique() []uint32 {
	var out []uint32
	seen := make(map[int]bool)
	for _, f := range []int{q.Graphics, q.Present, q.Compute, q.Transfer} {
		if f == Unavailable || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, uint32(f))
	}
	return out
}

// SelectQueueFamilies assigns families to roles. Graphics is the first
// graphics family; present prefers the graphics family; compute and
// transfer prefer dedicated families and fall back to shared ones.
func SelectQueueFamilies(pd gfx.PhysicalDevice, surface gfx.Surface) (QueueFamilies, error) {
	q := QueueFamilies{Graphics: Unavailable, Present: Unavailable, Compute: Unavailable, Transfer: Unavailable}
	families := pd.QueueFamilies()

	for i, f := range families {
		if f.Count > 0 && f.Flags&gfx.QueueGraphicsBit != 0 {
			q.Graphics = i
			break
		}
	}

	if q.Graphics != Unavailable {
		ok, err := pd.SurfaceSupport(uint32(q.Graphics), surface)
		if err != nil {
			return q, err
		}
		if ok {
			q.Present = q.Graphics
		}
	}
	if q.Present == Unavailable {
		for i, f := range families {
			if f.Count == 0 {
				continue
			}
			ok, err := pd.SurfaceSupport(uint32(i), surface)
			if err != nil {
				return q, err
			}
			if ok {
				q.Present = i
				break
			}
		}
	}

	q.Compute = pick(families, gfx.QueueComputeBit, gfx.QueueGraphicsBit)
	q.Transfer = pick(families, gfx.QueueTransferBit, gfx.QueueGraphicsBit|gfx.QueueComputeBit)
	if q.Transfer == Unavailable {
		q.Transfer = q.Graphics
	}
	return q, nil
}

// pick returns the first family with want and none of avoid, else the
// first with want.
func pick(families []gfx.QueueFamilyProperties, want, avoid gfx.QueueFlags) int {
	shared := Unavailable
	for i, f := range families {
		if f.Count == 0 || f.Flags&want == 0 {
			continue
		}
		if f.Flags&avoid == 0 {
			return i
		}
		if shared == Unavailable {
			shared = i
		}
	}
	return shared
}

// NewProvider creates a provider, nothing is selected until Initialise.
func NewProvider(cfg core.DeviceConfiguration, log logrus.FieldLogger) *Provider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Provider{
		cfg: cfg,
		log: log.WithField("component", "device"),
	}
}

// Provider owns the physical and logical device and the typed queues.
type Provider struct {
	cfg core.DeviceConfiguration
	log logrus.FieldLogger

	physical   gfx.PhysicalDevice
	properties gfx.PhysicalDeviceProperties
	memory     gfx.MemoryProperties
	families   QueueFamilies

	device   gfx.Device
	graphics gfx.Queue
	present  gfx.Queue
	compute  gfx.Queue
	transfer gfx.Queue
}

// Initialise picks the first suitable adapter and creates the logical
// device with one queue per distinct family.
func (p *Provider) Initialise(instance gfx.Instance, surface gfx.Surface) error {
	if p.device != nil {
		return errors.New("device: already initialised")
	}

	candidates, err := Survey(instance, surface, p.cfg.Extensions)
	if err != nil {
		return err
	}

	var chosen *Suitability
	for i := range candidates {
		c := &candidates[i]
		if !c.Suitable {
			p.log.WithFields(logrus.Fields{
				"device": c.Properties.Name,
				"reason": c.Reason,
			}).Debug("Rejected physical device")
			continue
		}
		chosen = c
		break
	}
	if chosen == nil {
		return ErrNoSuitableDevice
	}

	dev, err := chosen.Device.CreateDevice(gfx.DeviceCreateInfo{
		QueueFamilies: chosen.Families.Unique(),
		Extensions:    p.cfg.Extensions,
	})
	if err != nil {
		return fmt.Errorf("device: create logical device: %w", err)
	}

	p.physical = chosen.Device
	p.properties = chosen.Properties
	p.memory = chosen.Device.MemoryProperties()
	p.families = chosen.Families
	p.device = dev
	p.graphics = dev.Queue(uint32(p.families.Graphics), 0)
	p.present = dev.Queue(uint32(p.families.Present), 0)
	if p.families.Compute != Unavailable {
		p.compute = dev.Queue(uint32(p.families.Compute), 0)
	}
	p.transfer = dev.Queue(uint32(p.families.Transfer), 0)

	p.log.WithFields(logrus.Fields{
		"device":   p.properties.Name,
		"type":     p.properties.Type,
		"graphics": p.families.Graphics,
		"present":  p.families.Present,
		"compute":  p.families.Compute,
		"transfer": p.families.Transfer,
	}).Info("Selected physical device")
	return nil
}

// Shutdown waits for the device to go idle and destroys it.
func (p *Provider) Shutdown() {
	if p.device == nil {
		return
	}
	if err := p.device.WaitIdle(); err != nil {
		p.log.WithError(err).Warn("Device did not go idle before shutdown")
	}
	p.device.Destroy()
	p.device = nil
	p.physical = nil
}

// Device returns the logical device.
func (p *Provider) Device() gfx.Device {
	return p.device
}

// PhysicalDevice returns the selected adapter.
func (p *Provider) PhysicalDevice() gfx.PhysicalDevice {
	return p.physical
}

// Properties of the selected adapter.
func (p *Provider) Properties() gfx.PhysicalDeviceProperties {
	return p.properties
}

// QueueFamilies returns the selection made during Initialise.
func (p *Provider) QueueFamilies() QueueFamilies {
	return p.families
}

// GraphicsQueue returns the graphics queue.
func (p *Provider) GraphicsQueue() gfx.Queue {
	return p.graphics
}

// PresentQueue returns the present queue, possibly the graphics queue.
func (p *Provider) PresentQueue() gfx.Queue {
	return p.present
}

// ComputeQueue returns the compute queue, zero without a compute family.
func (p *Provider) ComputeQueue() gfx.Queue {
	return p.compute
}

// TransferQueue returns the transfer queue.
func (p *Provider) TransferQueue() gfx.Queue {
	return p.transfer
}
