// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/koruframe/core"
)

func TestTimeIntervals(t *testing.T) {
	c := qt.New(t)

	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 50, EventPollDelay: 10})
	defer tm.Stop()
	c.Assert(tm.Fps(), qt.Equals, 50)
	c.Assert(tm.FrameInterval(), qt.Equals, 20*time.Millisecond)

	unlimited := core.NewTime(core.TimeConfiguration{})
	defer unlimited.Stop()
	c.Assert(unlimited.FrameInterval(), qt.Equals, time.Nanosecond)
}

func TestTimeFrameCount(t *testing.T) {
	c := qt.New(t)

	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 60, EventPollDelay: 50})
	defer tm.Stop()
	for i := 0; i < 5; i++ {
		tm.FrameDone()
	}
	c.Assert(tm.TakeFrameCount(), qt.Equals, int64(5))
	c.Assert(tm.TakeFrameCount(), qt.Equals, int64(0))
}
