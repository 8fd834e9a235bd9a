// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package rmutex implements the remote spinlock described in spec.md §4.3:
// one word per rank, acquired by swapping LOCKED into it, released by a
// plain store, with linear back-off between attempts so a spinning thief
// does not hammer the cache line of the rank it is waiting on.
//
// Its only consumer in this codebase is the SDC queue (queue.SDC), which
// uses one Mutex slot per rank to serialize shared-side mutation between
// the owner's reacquire/release and a thief's pop_n_tail.
package rmutex

import (
	"sync/atomic"
)

const (
	unlocked uint32 = 0
	locked   uint32 = 1
)

// Backoff bounds the linear back-off applied between failed lock attempts:
// attempt N spins min(N*SpinUnit, MaxSpin) times.
type Backoff struct {
	SpinUnit int
	MaxSpin  int
}

// DefaultBackoff mirrors the magnitudes used by eventloop-style spin loops
// in the pack: enough to de-schedule cache-line ping-pong, not enough to
// blow through a microsecond.
var DefaultBackoff = Backoff{SpinUnit: 32, MaxSpin: 4096}

func (b Backoff) spin(attempt int) {
	n := attempt * b.SpinUnit
	if n > b.MaxSpin {
		n = b.MaxSpin
	}
	for i := 0; i < n; i++ {
		// deliberate busy-spin: sleep latency is too coarse for the
		// sub-microsecond contention this backs off from.
	}
}

// Slot is one rank's lock word. A Set is a symmetric array of Slot, one per
// rank; any rank may address any other rank's Slot.
type Slot struct {
	_ [56]byte // cache-line pad ahead of the hot word
	v atomic.Uint32
	_ [60]byte // pad to a full cache line
}

// Set is the collectively-allocated array of per-rank lock words.
type Set struct {
	slots   []Slot
	backoff Backoff
}

// NewSet allocates a Set sized for n ranks, all initially unlocked.
func NewSet(n int) *Set {
	if n < 1 {
		panic("rmutex: size must be >= 1")
	}
	return &Set{slots: make([]Slot, n), backoff: DefaultBackoff}
}

// WithBackoff overrides the default back-off policy; intended for tests
// that want deterministic, fast contention without waiting on real spins.
func (s *Set) WithBackoff(b Backoff) *Set {
	s.backoff = b
	return s
}

// Lock blocks until proc's slot is acquired.
func (s *Set) Lock(proc int) {
	slot := &s.slots[proc]
	for attempt := 1; ; attempt++ {
		if slot.v.Swap(locked) == unlocked {
			return
		}
		s.backoff.spin(attempt)
	}
}

// TryLock performs a single swap; it never blocks.
func (s *Set) TryLock(proc int) bool {
	return s.slots[proc].v.Swap(locked) == unlocked
}

// Unlock releases proc's slot. The caller must hold it.
func (s *Set) Unlock(proc int) {
	s.slots[proc].v.Store(unlocked)
}

// Locked reports whether proc's slot is currently held. Advisory only —
// intended for diagnostics, never for correctness decisions.
func (s *Set) Locked(proc int) bool {
	return s.slots[proc].v.Load() == locked
}
