// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import "sync"

// Window is a window of fixed pixel size that tests can resize.
type Window struct {
	mutex  sync.Mutex
	width  uint32
	height uint32
}

// NewWindow returns a window of the given size.
func NewWindow(width, height uint32) *Window {
	return &Window{width: width, height: height}
}

// PixelSize implements window.Window
func (w *Window) PixelSize() (uint32, uint32) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.width, w.height
}

// SetSize changes the reported size.
func (w *Window) SetSize(width, height uint32) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.width, w.height = width, height
}
