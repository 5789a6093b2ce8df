// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package glfwwindow hosts the engine in a GLFW window.
package glfwwindow

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/window"
)

// Window is a GLFW window without a client API. Callbacks queue events
// until the next PollEvents. The drawable size is cached on the main
// thread so PixelSize can be called from the render goroutine.
type Window struct {
	window  *glfw.Window
	pending []window.Event

	mutex         sync.Mutex
	width, height uint32
}

var _ window.Native = (*Window)(nil)

// New initialises GLFW and opens the window. Must run on the main thread.
func New(cfg core.WindowConfiguration) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.New("glfw.Init(): " + err.Error())
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw.VulkanSupported(): no Vulkan loader found")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(int(cfg.ScreenWidth), int(cfg.ScreenHeight), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.New("glfw.CreateWindow(): " + err.Error())
	}

	w := &Window{window: win}
	w.storeSize(win.GetFramebufferSize())
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.storeSize(width, height)
		w.pending = append(w.pending, window.Event{
			Kind:   window.EventResized,
			Width:  uint32(width),
			Height: uint32(height),
		})
	})
	win.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		if iconified {
			w.storeSize(0, 0)
			w.pending = append(w.pending, window.Event{Kind: window.EventMinimized})
			return
		}
		w.storeSize(win.GetFramebufferSize())
		width, height := w.PixelSize()
		w.pending = append(w.pending, window.Event{Kind: window.EventRestored, Width: width, Height: height})
	})
	win.SetCloseCallback(func(*glfw.Window) {
		w.pending = append(w.pending, window.Event{Kind: window.EventClose})
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.pending = append(w.pending, window.Event{Kind: window.EventClose})
		}
	})
	return w, nil
}

func (w *Window) storeSize(width, height int) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.width, w.height = uint32(width), uint32(height)
}

// PixelSize implements interface
func (w *Window) PixelSize() (uint32, uint32) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.width, w.height
}

// InstanceExtensions implements interface
func (w *Window) InstanceExtensions() []string {
	return w.window.GetRequiredInstanceExtensions()
}

// ProcAddr implements interface
func (w *Window) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// CreateSurface implements interface
func (w *Window) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := w.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.New("glfw.CreateWindowSurface(): " + err.Error())
	}
	return surface, nil
}

// PollEvents implements interface
func (w *Window) PollEvents() []window.Event {
	glfw.PollEvents()
	events := w.pending
	w.pending = nil
	return events
}

// Destroy closes the window and terminates GLFW.
func (w *Window) Destroy() {
	if w.window == nil {
		return
	}
	w.window.Destroy()
	w.window = nil
	glfw.Terminate()
}
