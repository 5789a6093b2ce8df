// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/gfx"
)

// Context bundles the instance, the window surface and the provider.
// One exists per engine, every other component borrows it.
type Context struct {
	Instance gfx.Instance
	Surface  gfx.Surface
	Provider *Provider
	Log      logrus.FieldLogger
}

// NewContext initialises a provider against the instance and surface.
// On failure nothing is destroyed, the caller still owns both handles.
func NewContext(instance gfx.Instance, surface gfx.Surface, cfg core.DeviceConfiguration, log logrus.FieldLogger) (*Context, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	provider := NewProvider(cfg, log)
	if err := provider.Initialise(instance, surface); err != nil {
		return nil, err
	}
	return &Context{
		Instance: instance,
		Surface:  surface,
		Provider: provider,
		Log:      log,
	}, nil
}

// Device returns the logical device.
func (c *Context) Device() gfx.Device {
	return c.Provider.Device()
}

// Destroy shuts the provider down and releases surface and instance.
func (c *Context) Destroy() {
	c.Provider.Shutdown()
	if c.Surface != gfx.NullSurface {
		c.Instance.DestroySurface(c.Surface)
		c.Surface = gfx.NullSurface
	}
	c.Instance.Destroy()
}
