// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package window defines what the frame core needs from the windowing layer.
package window

import "unsafe"

// Window reports the drawable size of a window in pixels.
type Window interface {
	PixelSize() (width, height uint32)
}

// EventKind identifies a window event.
type EventKind int

// Window events forwarded to the engine.
const (
	EventResized EventKind = iota
	EventMinimized
	EventRestored
	EventClose
)

// Event is one window event. Width and Height are the new drawable size.
type Event struct {
	Kind   EventKind
	Width  uint32
	Height uint32
}

// Native is a desktop window able to host a Vulkan surface.
type Native interface {
	Window

	// InstanceExtensions lists the instance extensions surfaces need.
	InstanceExtensions() []string

	// ProcAddr is the vkGetInstanceProcAddr the windowing library loaded.
	ProcAddr() unsafe.Pointer

	// CreateSurface creates a surface on the given vk.Instance.
	CreateSurface(instance interface{}) (uintptr, error)

	// PollEvents drains pending events. It must run on the main thread.
	PollEvents() []Event

	Destroy()
}

// Resizer receives drawable size changes.
type Resizer interface {
	Resize(width, height uint32)
}

// Forward passes size changes to r and reports whether a close was
// requested. Minimizing forwards an empty size.
func Forward(events []Event, r Resizer) (closed bool) {
	for _, e := range events {
		switch e.Kind {
		case EventResized, EventRestored:
			r.Resize(e.Width, e.Height)
		case EventMinimized:
			r.Resize(0, 0)
		case EventClose:
			closed = true
		}
	}
	return closed
}
