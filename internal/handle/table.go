// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package handle maps stable integer handles to driver objects.
package handle

import "sync"

// Table is an arena of values keyed by handles that are never reused
// during the lifetime of the table. Zero is never issued.
type Table[T any] struct {
	mutex  sync.RWMutex
	next   uint64
	values map[uint64]T
}

// Insert stores v and returns its new handle.
func (t *Table[T]) Insert(v T) uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.values == nil {
		t.values = make(map[uint64]T)
	}
	t.next++
	t.values[t.next] = v
	return t.next
}

// Get returns the value stored under h.
func (t *Table[T]) Get(h uint64) (T, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	v, ok := t.values[h]
	return v, ok
}

// MustGet returns the value stored under h or the zero value.
func (t *Table[T]) MustGet(h uint64) T {
	v, _ := t.Get(h)
	return v
}

// Remove deletes h and returns the value it held.
func (t *Table[T]) Remove(h uint64) (T, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	v, ok := t.values[h]
	if ok {
		delete(t.values, h)
	}
	return v, ok
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.values)
}

// Each calls fn for every live handle in no particular order.
func (t *Table[T]) Each(fn func(h uint64, v T)) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	for h, v := range t.values {
		fn(h, v)
	}
}
