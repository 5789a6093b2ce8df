// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frametrace keeps a bounded log of frame orchestration events
// and dumps it in a compact binary form for offline inspection.
package frametrace

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pierrec/lz4"
)

// Kind of an event.
type Kind uint8

// Event kinds, in the order they normally occur during a frame.
const (
	FrameBegun Kind = iota + 1
	FenceWaited
	ImageAcquired
	RecordingBegun
	Submitted
	Presented
	ChainRecreated
	FrameSkipped
)

var kindNames = map[Kind]string{
	FrameBegun:     "frame-begun",
	FenceWaited:    "fence-waited",
	ImageAcquired:  "image-acquired",
	RecordingBegun: "recording-begun",
	Submitted:      "submitted",
	Presented:      "presented",
	ChainRecreated: "chain-recreated",
	FrameSkipped:   "frame-skipped",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one entry of the trace.
type Event struct {
	Kind  Kind
	Frame uint64
	Slot  int
	Image uint32
	// At is the offset from the creation of the Recorder.
	At   time.Duration
	Note string
}

// Dump is the decoded content of a trace file.
type Dump struct {
	Version int
	Dropped uint64
	Events  []Event
}

const version = 1

var magic = [...]byte{'K', 'F', 'T', '\x00'}

// ErrBadMagic is returned by Read for data that is not a trace dump.
var ErrBadMagic = errors.New("frametrace: not a frame trace")

// Recorder holds the most recent events up to its limit. It is safe to use
// from several goroutines and a nil Recorder discards everything.
type Recorder struct {
	mutex   sync.Mutex
	start   time.Time
	ring    []Event
	head    int
	count   int
	dropped uint64
}

// New creates a Recorder that keeps at most limit events.
func New(limit int) *Recorder {
	if limit < 1 {
		limit = 1
	}
	return &Recorder{
		start: time.Now(),
		ring:  make([]Event, limit),
	}
}

// Record appends an event, overwriting the oldest one when full.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	e.At = time.Since(r.start)
	if r.count == len(r.ring) {
		r.ring[r.head] = e
		r.head = (r.head + 1) % len(r.ring)
		r.dropped++
		return
	}
	r.ring[(r.head+r.count)%len(r.ring)] = e
	r.count++
}

// Events returns the kept events, oldest first.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.events()
}

func (r *Recorder) events() []Event {
	out := make([]Event, r.count)
	for i := range out {
		out[i] = r.ring[(r.head+i)%len(r.ring)]
	}
	return out
}

// Of returns the kept events of one kind.
func (r *Recorder) Of(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Dropped is the number of events overwritten so far.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dropped
}

// Reset forgets every event.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.head, r.count, r.dropped = 0, 0, 0
}

// WriteTo writes the magic followed by the lz4 compressed gob encoding
// of the Dump.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	r.mutex.Lock()
	dump := Dump{Version: version, Dropped: r.dropped, Events: r.events()}
	r.mutex.Unlock()

	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(dump); err != nil {
		return 0, err
	}

	counter := &countingWriter{w: w}
	if _, err := counter.Write(magic[:]); err != nil {
		return counter.n, err
	}
	writer := lz4.NewWriter(counter)
	if _, err := io.Copy(writer, &encoded); err != nil {
		return counter.n, err
	}
	if err := writer.Close(); err != nil {
		return counter.n, err
	}
	return counter.n, nil
}

// Read decodes a dump written by WriteTo.
func Read(r io.Reader) (*Dump, error) {
	var header [len(magic)]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, err
	}
	if header != magic {
		return nil, ErrBadMagic
	}
	var dump Dump
	if err := gob.NewDecoder(lz4.NewReader(r)).Decode(&dump); err != nil {
		return nil, fmt.Errorf("frametrace: decode: %w", err)
	}
	if dump.Version != version {
		return nil, fmt.Errorf("frametrace: unsupported version %d", dump.Version)
	}
	return &dump, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
