// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sdlwindow hosts the engine in an SDL2 window.
package sdlwindow

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/window"
)

// Window is an SDL2 window created for Vulkan rendering. SDL calls must
// happen on the main thread, the drawable size is cached there for
// PixelSize.
type Window struct {
	window *sdl.Window

	mutex         sync.Mutex
	width, height uint32
}

var _ window.Native = (*Window)(nil)

// New initialises SDL, loads the Vulkan loader and opens the window.
func New(cfg core.WindowConfiguration) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.New("sdl.Init(): " + err.Error())
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, errors.New("sdl.VulkanLoadLibrary(): " + err.Error())
	}
	w, err := sdl.CreateWindow(cfg.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
		return nil, errors.New("sdl.CreateWindow(): " + err.Error())
	}
	win := &Window{window: w}
	win.refresh()
	return win, nil
}

// refresh queries the drawable size. Main thread only.
func (w *Window) refresh() (uint32, uint32) {
	width, height := w.window.VulkanGetDrawableSize()
	w.store(uint32(width), uint32(height))
	return uint32(width), uint32(height)
}

func (w *Window) store(width, height uint32) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.width, w.height = width, height
}

// PixelSize implements interface
func (w *Window) PixelSize() (uint32, uint32) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.width, w.height
}

// InstanceExtensions implements interface
func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// ProcAddr implements interface
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// CreateSurface implements interface
func (w *Window) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := w.window.VulkanCreateSurface(instance)
	if err != nil {
		return 0, errors.New("sdl.VulkanCreateSurface(): " + err.Error())
	}
	return uintptr(surface), nil
}

// PollEvents implements interface
func (w *Window) PollEvents() []window.Event {
	var events []window.Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.QuitEvent:
			events = append(events, window.Event{Kind: window.EventClose})
		case *sdl.KeyboardEvent:
			if et.Type == sdl.KEYDOWN && et.Keysym.Sym == sdl.K_ESCAPE {
				events = append(events, window.Event{Kind: window.EventClose})
			}
		case *sdl.WindowEvent:
			switch et.Event {
			case sdl.WINDOWEVENT_SIZE_CHANGED:
				width, height := w.refresh()
				events = append(events, window.Event{Kind: window.EventResized, Width: width, Height: height})
			case sdl.WINDOWEVENT_MINIMIZED:
				w.store(0, 0)
				events = append(events, window.Event{Kind: window.EventMinimized})
			case sdl.WINDOWEVENT_RESTORED:
				width, height := w.refresh()
				events = append(events, window.Event{Kind: window.EventRestored, Width: width, Height: height})
			}
		}
	}
	return events
}

// Destroy closes the window and shuts SDL down.
func (w *Window) Destroy() {
	if w.window == nil {
		return
	}
	w.window.Destroy()
	w.window = nil
	sdl.VulkanUnloadLibrary()
	sdl.Quit()
}
