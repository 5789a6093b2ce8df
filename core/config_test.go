// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/envy"

	"github.com/devblok/koruframe/core"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	c := qt.New(t)
	cfg := core.DefaultConfiguration()
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Frame.FramesInFlight, qt.Equals, 2)
	c.Assert(cfg.Device.Extensions, qt.DeepEquals, []string{"VK_KHR_swapchain"})
}

func TestLoadConfigurationMatchesDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, core.DefaultConfiguration())
}

func TestLoadConfigurationEnvironmentOverride(t *testing.T) {
	c := qt.New(t)
	envy.Temp(func() {
		envy.Set(core.EnvFramesInFlight, "3")
		envy.Set(core.EnvFenceTimeout, "250ms")
		envy.Set(core.EnvVSync, "true")
		envy.Set(core.EnvDeviceExtensions, "VK_KHR_swapchain, VK_KHR_maintenance1")

		cfg, err := core.LoadConfiguration()
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Frame.FramesInFlight, qt.Equals, 3)
		c.Assert(cfg.Frame.FenceTimeout, qt.Equals, 250*time.Millisecond)
		c.Assert(cfg.Swapchain.VSync, qt.IsTrue)
		c.Assert(cfg.Device.Extensions, qt.DeepEquals, []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"})
	})
	_, set := os.LookupEnv(core.EnvFramesInFlight)
	c.Assert(set, qt.IsFalse)
}

func TestParseConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		check  func(c *qt.C, cfg core.Configuration)
		err    string
	}{{
		name:   "empty",
		values: map[string]string{},
		check: func(c *qt.C, cfg core.Configuration) {
			c.Assert(cfg, qt.DeepEquals, core.DefaultConfiguration())
		},
	}, {
		name: "window",
		values: map[string]string{
			core.EnvWindowBackend: "glfw",
			core.EnvScreenWidth:   "1280",
			core.EnvScreenHeight:  "720",
			core.EnvWindowTitle:   "demo",
		},
		check: func(c *qt.C, cfg core.Configuration) {
			c.Assert(cfg.Window, qt.DeepEquals, core.WindowConfiguration{
				Backend:      "glfw",
				Title:        "demo",
				ScreenWidth:  1280,
				ScreenHeight: 720,
			})
		},
	}, {
		name:   "blank value keeps default",
		values: map[string]string{core.EnvSwapchainSize: "  "},
		check: func(c *qt.C, cfg core.Configuration) {
			c.Assert(cfg.Swapchain.Size, qt.Equals, uint32(3))
		},
	}, {
		name:   "bad integer",
		values: map[string]string{core.EnvFramesPerSecond: "fast"},
		err:    `KORU_FPS="fast": .*`,
	}, {
		name:   "zero frames in flight",
		values: map[string]string{core.EnvFramesInFlight: "0"},
		err:    `KORU_FRAMES_IN_FLIGHT: frames in flight must be at least 1, got 0`,
	}, {
		name:   "zero fence timeout waits without limit",
		values: map[string]string{core.EnvFenceTimeout: "0s"},
		check: func(c *qt.C, cfg core.Configuration) {
			c.Assert(cfg.Frame.FenceTimeout, qt.Equals, time.Duration(0))
		},
	}, {
		name:   "negative fence timeout",
		values: map[string]string{core.EnvFenceTimeout: "-1s"},
		err:    `KORU_FENCE_TIMEOUT: fence timeout -1s is negative`,
	}, {
		name:   "odd sample count",
		values: map[string]string{core.EnvMSAASamples: "3"},
		err:    `KORU_MSAA_SAMPLES: 3 is not a power of two sample count`,
	}, {
		name:   "unknown backend",
		values: map[string]string{core.EnvWindowBackend: "gtk"},
		err:    `KORU_WINDOW_BACKEND: unknown backend "gtk"`,
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			cfg, err := core.ParseConfiguration(test.values)
			if test.err != "" {
				c.Assert(err, qt.ErrorMatches, test.err)
				return
			}
			c.Assert(err, qt.IsNil)
			test.check(c, cfg)
		})
	}
}
