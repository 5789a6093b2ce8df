// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "errors"

// Driver errors shared by every implementation.
var (
	ErrOutOfDate         = errors.New("swapchain out of date")
	ErrSuboptimal        = errors.New("swapchain suboptimal")
	ErrSurfaceLost       = errors.New("surface lost")
	ErrDeviceLost        = errors.New("device lost")
	ErrTimeout           = errors.New("wait timed out")
	ErrNoMemoryType      = errors.New("suitable memory type not found")
	ErrNoSupportedFormat = errors.New("no supported format among candidates")
)
