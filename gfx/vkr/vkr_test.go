// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"math"
	"testing"
	"time"

	vk "github.com/devblok/vulkan"
	qt "github.com/frankban/quicktest"

	"github.com/devblok/koruframe/gfx"
)

func TestResultMapsSentinels(t *testing.T) {
	c := qt.New(t)

	c.Assert(result("vk.QueuePresent", vk.Success), qt.IsNil)
	for res, want := range map[vk.Result]error{
		vk.Suboptimal:       gfx.ErrSuboptimal,
		vk.ErrorOutOfDate:   gfx.ErrOutOfDate,
		vk.ErrorSurfaceLost: gfx.ErrSurfaceLost,
		vk.ErrorDeviceLost:  gfx.ErrDeviceLost,
		vk.Timeout:          gfx.ErrTimeout,
	} {
		err := result("vk.QueuePresent", res)
		c.Assert(errors.Is(err, want), qt.IsTrue, qt.Commentf("%v", err))
		c.Assert(err, qt.ErrorMatches, "vk.QueuePresent\\(\\): .*")
	}

	err := result("vk.CreateFence", vk.ErrorOutOfHostMemory)
	c.Assert(err, qt.ErrorMatches, "vk.CreateFence\\(\\): .*")
	c.Assert(errors.Is(err, gfx.ErrDeviceLost), qt.IsFalse)
}

func TestTimeoutNanos(t *testing.T) {
	c := qt.New(t)

	c.Assert(timeoutNanos(gfx.NoTimeout), qt.Equals, uint64(math.MaxUint64))
	c.Assert(timeoutNanos(-1), qt.Equals, uint64(math.MaxUint64))
	c.Assert(timeoutNanos(time.Second), qt.Equals, uint64(1e9))
}

func TestSliceUint32(t *testing.T) {
	c := qt.New(t)

	words := sliceUint32([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	c.Assert(words, qt.HasLen, 2)
	c.Assert(words[1], qt.Equals, uint32(1))
	c.Assert(sliceUint32(nil), qt.IsNil)
	c.Assert(safeStrings([]string{"VK_KHR_swapchain"}), qt.DeepEquals, []string{"VK_KHR_swapchain\x00"})
}
