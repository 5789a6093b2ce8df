// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/gobuffalo/packr"
	"github.com/joho/godotenv"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time      TimeConfiguration
	Instance  InstanceConfiguration
	Window    WindowConfiguration
	Device    DeviceConfiguration
	Swapchain SwapchainConfiguration
	Frame     FrameConfiguration

	// LogLevel is a logrus level name.
	LogLevel string

	// TraceLimit bounds the number of frame trace events kept in memory.
	TraceLimit int
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the window event polling interval in milliseconds
	EventPollDelay int
}

// InstanceConfiguration is used to create the API instance
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// WindowConfiguration selects and sizes the native window
type WindowConfiguration struct {
	// Backend is either "sdl" or "glfw"
	Backend string
	Title   string

	ScreenWidth  uint32
	ScreenHeight uint32
}

// DeviceConfiguration lists what a physical device must provide
type DeviceConfiguration struct {
	Extensions []string
}

// SwapchainConfiguration is used to configure the presentable image chain
type SwapchainConfiguration struct {
	// Size is the requested image count, 0 picks one above the surface minimum
	Size uint32

	// VSync forces FIFO presentation
	VSync bool

	// Samples requests a multisampled color attachment when above 1
	Samples uint32
}

// FrameConfiguration is used to configure frame pacing
type FrameConfiguration struct {
	FramesInFlight int

	// FenceTimeout bounds every fence wait, 0 waits without limit
	FenceTimeout time.Duration
}

// Environment keys read by LoadConfiguration.
const (
	EnvFramesPerSecond  = "KORU_FPS"
	EnvEventPollDelay   = "KORU_EVENT_POLL_DELAY"
	EnvDebug            = "KORU_DEBUG"
	EnvLogLevel         = "KORU_LOG_LEVEL"
	EnvWindowBackend    = "KORU_WINDOW_BACKEND"
	EnvWindowTitle      = "KORU_WINDOW_TITLE"
	EnvScreenWidth      = "KORU_SCREEN_WIDTH"
	EnvScreenHeight     = "KORU_SCREEN_HEIGHT"
	EnvSwapchainSize    = "KORU_SWAPCHAIN_SIZE"
	EnvFramesInFlight   = "KORU_FRAMES_IN_FLIGHT"
	EnvFenceTimeout     = "KORU_FENCE_TIMEOUT"
	EnvVSync            = "KORU_VSYNC"
	EnvMSAASamples      = "KORU_MSAA_SAMPLES"
	EnvDeviceExtensions = "KORU_DEVICE_EXTENSIONS"
	EnvTraceLimit       = "KORU_TRACE_LIMIT"
)

var defaults = packr.NewBox("./defaults")

// DefaultConfiguration returns the built-in configuration
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  50,
		},
		Window: WindowConfiguration{
			Backend:      "sdl",
			Title:        "Koru3D",
			ScreenWidth:  800,
			ScreenHeight: 600,
		},
		Device: DeviceConfiguration{
			Extensions: []string{"VK_KHR_swapchain"},
		},
		Swapchain: SwapchainConfiguration{
			Size:    3,
			Samples: 1,
		},
		Frame: FrameConfiguration{
			FramesInFlight: 2,
			FenceTimeout:   time.Second,
		},
		LogLevel:   "info",
		TraceLimit: 4096,
	}
}

// LoadConfiguration builds the configuration from the embedded defaults
// file, overridden by the process environment and a local .env file.
func LoadConfiguration() (Configuration, error) {
	raw, err := defaults.FindString("koru.env")
	if err != nil {
		return Configuration{}, fmt.Errorf("defaults: %w", err)
	}
	values, err := godotenv.Unmarshal(raw)
	if err != nil {
		return Configuration{}, fmt.Errorf("defaults: %w", err)
	}
	for key := range values {
		values[key] = envy.Get(key, values[key])
	}
	return ParseConfiguration(values)
}

// ParseConfiguration applies key/value settings on top of DefaultConfiguration.
// Unknown keys are ignored.
func ParseConfiguration(values map[string]string) (Configuration, error) {
	cfg := DefaultConfiguration()
	p := parser{values: values}

	p.integer(EnvFramesPerSecond, &cfg.Time.FramesPerSecond)
	p.integer(EnvEventPollDelay, &cfg.Time.EventPollDelay)
	p.boolean(EnvDebug, &cfg.Instance.DebugMode)
	p.str(EnvLogLevel, &cfg.LogLevel)
	p.str(EnvWindowBackend, &cfg.Window.Backend)
	p.str(EnvWindowTitle, &cfg.Window.Title)
	p.unsigned(EnvScreenWidth, &cfg.Window.ScreenWidth)
	p.unsigned(EnvScreenHeight, &cfg.Window.ScreenHeight)
	p.unsigned(EnvSwapchainSize, &cfg.Swapchain.Size)
	p.boolean(EnvVSync, &cfg.Swapchain.VSync)
	p.unsigned(EnvMSAASamples, &cfg.Swapchain.Samples)
	p.integer(EnvFramesInFlight, &cfg.Frame.FramesInFlight)
	p.duration(EnvFenceTimeout, &cfg.Frame.FenceTimeout)
	p.list(EnvDeviceExtensions, &cfg.Device.Extensions)
	p.integer(EnvTraceLimit, &cfg.TraceLimit)
	if p.err != nil {
		return Configuration{}, p.err
	}
	return cfg, cfg.Validate()
}

// Validate checks values the frame core cannot work with
func (c Configuration) Validate() error {
	if c.Frame.FramesInFlight < 1 {
		return fmt.Errorf("%s: frames in flight must be at least 1, got %d", EnvFramesInFlight, c.Frame.FramesInFlight)
	}
	if c.Frame.FenceTimeout < 0 {
		return fmt.Errorf("%s: fence timeout %s is negative", EnvFenceTimeout, c.Frame.FenceTimeout)
	}
	if c.Window.ScreenWidth == 0 || c.Window.ScreenHeight == 0 {
		return fmt.Errorf("screen size %dx%d is empty", c.Window.ScreenWidth, c.Window.ScreenHeight)
	}
	switch s := c.Swapchain.Samples; s {
	case 0, 1, 2, 4, 8, 16, 32, 64:
	default:
		return fmt.Errorf("%s: %d is not a power of two sample count", EnvMSAASamples, s)
	}
	switch c.Window.Backend {
	case "sdl", "glfw":
	default:
		return fmt.Errorf("%s: unknown backend %q", EnvWindowBackend, c.Window.Backend)
	}
	return nil
}

type parser struct {
	values map[string]string
	err    error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.values[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, value string, err error) {
	p.err = fmt.Errorf("%s=%q: %w", key, value, err)
}

func (p *parser) str(key string, out *string) {
	if v, ok := p.lookup(key); ok {
		*out = v
	}
}

func (p *parser) integer(key string, out *int) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*out = n
	}
}

func (p *parser) unsigned(key string, out *uint32) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*out = uint32(n)
	}
}

func (p *parser) boolean(key string, out *bool) {
	if v, ok := p.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*out = b
	}
}

func (p *parser) duration(key string, out *time.Duration) {
	if v, ok := p.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*out = d
	}
}

func (p *parser) list(key string, out *[]string) {
	if v, ok := p.lookup(key); ok {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*out = items
	}
}
