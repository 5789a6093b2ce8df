// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx driver on Vulkan.
package vkr

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/koruframe/gfx"
)

// result converts a Vulkan result into an error. Results the frame core
// reacts to are wrapped around the matching gfx sentinel.
func result(call string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return fmt.Errorf("%s(): %w", call, gfx.ErrSuboptimal)
	case vk.ErrorOutOfDate:
		return fmt.Errorf("%s(): %w", call, gfx.ErrOutOfDate)
	case vk.ErrorSurfaceLost:
		return fmt.Errorf("%s(): %w", call, gfx.ErrSurfaceLost)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s(): %w", call, gfx.ErrDeviceLost)
	case vk.Timeout:
		return fmt.Errorf("%s(): %w", call, gfx.ErrTimeout)
	}
	if err := vk.Error(res); err != nil {
		return errors.New(call + "(): " + err.Error())
	}
	return nil
}

func timeoutNanos(d time.Duration) uint64 {
	if d == gfx.NoTimeout || d < 0 {
		return math.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(sgs []string) []string {
	out := make([]string, len(sgs))
	for i, s := range sgs {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reslices SPIR-V bytes into the words vk.CreateShaderModule takes.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func extent(e vk.Extent2D) gfx.Extent2D {
	e.Deref()
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}
