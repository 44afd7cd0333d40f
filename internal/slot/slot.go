// Package slot provides a single-value, latest-wins holder shared between a
// producer goroutine and the render path.
package slot

import (
	"sync/atomic"
)

type entry[T any] struct {
	v   *T
	seq uint64
}

// Slot holds at most one value. Store replaces, never queues; neither Store
// nor Load ever blocks. Values must be treated as immutable once stored.
//
// The zero value is an empty slot ready for use.
type Slot[T any] struct {
	cur     atomic.Pointer[entry[T]]
	counter atomic.Uint64
}

// Store publishes v, replacing whatever the slot held. Storing nil clears.
func (s *Slot[T]) Store(v *T) {
	s.cur.Store(&entry[T]{v: v, seq: s.counter.Add(1)})
}

// Load returns the current value, or nil before the first Store
func (s *Slot[T]) Load() *T {
	v, _ := s.Snapshot()
	return v
}

// Clear drops the held value so readers see the "none yet" state again
func (s *Slot[T]) Clear() {
	s.Store(nil)
}

// Seq changes on every Store and Clear. Zero means never written.
func (s *Slot[T]) Seq() uint64 {
	_, seq := s.Snapshot()
	return seq
}

// Snapshot returns the value together with the sequence it was stored at.
// Both come from the same write.
func (s *Slot[T]) Snapshot() (*T, uint64) {
	e := s.cur.Load()
	if e == nil {
		return nil, 0
	}
	return e.v, e.seq
}
