// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frametrace_test

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/koruframe/frametrace"
)

func TestRecorderKeepsNewest(t *testing.T) {
	c := qt.New(t)

	r := frametrace.New(3)
	for i := 0; i < 5; i++ {
		r.Record(frametrace.Event{Kind: frametrace.FrameBegun, Frame: uint64(i)})
	}
	events := r.Events()
	c.Assert(events, qt.HasLen, 3)
	for i, e := range events {
		c.Assert(e.Frame, qt.Equals, uint64(i+2))
	}
	c.Assert(r.Dropped(), qt.Equals, uint64(2))

	r.Reset()
	c.Assert(r.Events(), qt.HasLen, 0)
	c.Assert(r.Dropped(), qt.Equals, uint64(0))
}

func TestNilRecorder(t *testing.T) {
	c := qt.New(t)

	var r *frametrace.Recorder
	r.Record(frametrace.Event{Kind: frametrace.Submitted})
	c.Assert(r.Events(), qt.HasLen, 0)
	c.Assert(r.Dropped(), qt.Equals, uint64(0))
}

func TestOf(t *testing.T) {
	c := qt.New(t)

	r := frametrace.New(16)
	r.Record(frametrace.Event{Kind: frametrace.FrameBegun})
	r.Record(frametrace.Event{Kind: frametrace.Submitted, Slot: 1})
	r.Record(frametrace.Event{Kind: frametrace.FrameBegun})
	c.Assert(r.Of(frametrace.FrameBegun), qt.HasLen, 2)
	c.Assert(r.Of(frametrace.Submitted)[0].Slot, qt.Equals, 1)
	c.Assert(r.Of(frametrace.ChainRecreated), qt.HasLen, 0)
}

func TestWriteAndRead(t *testing.T) {
	c := qt.New(t)

	r := frametrace.New(2)
	r.Record(frametrace.Event{Kind: frametrace.FrameBegun, Frame: 1})
	r.Record(frametrace.Event{Kind: frametrace.ImageAcquired, Frame: 1, Image: 2})
	r.Record(frametrace.Event{Kind: frametrace.ChainRecreated, Frame: 1, Note: "1024x768"})

	var buf bytes.Buffer
	n, err := r.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(buf.Len()))
	c.Assert(buf.Bytes()[:4], qt.DeepEquals, []byte{'K', 'F', 'T', 0})

	dump, err := frametrace.Read(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(dump.Dropped, qt.Equals, uint64(1))
	c.Assert(dump.Events, qt.HasLen, 2)
	c.Assert(dump.Events[0].Image, qt.Equals, uint32(2))
	c.Assert(dump.Events[1].Note, qt.Equals, "1024x768")
}

func TestReadRejectsGarbage(t *testing.T) {
	c := qt.New(t)

	_, err := frametrace.Read(bytes.NewReader([]byte("KAR\x00whatever")))
	c.Assert(err, qt.Equals, frametrace.ErrBadMagic)
	_, err = frametrace.Read(bytes.NewReader(nil))
	c.Assert(err, qt.Equals, frametrace.ErrBadMagic)
}

func TestKindString(t *testing.T) {
	c := qt.New(t)

	c.Assert(frametrace.Presented.String(), qt.Equals, "presented")
	c.Assert(frametrace.Kind(99).String(), qt.Equals, "Kind(99)")
}
