// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package clod implements the Common Local Object Directory: a dense,
// collectively-indexed table mapping an integer key to a rank-local
// pointer (spec.md §3/§4.2). The key is allocated in lock-step across
// ranks so the same id denotes the same logical replicated object
// everywhere, even though each rank's slot holds a different pointer.
package clod

import (
	"fmt"

	"github.com/joeycumines/scioto"
)

// Directory is one rank's view of a CLOD: capacity pointer slots plus a
// collectively-advanced cursor.
type Directory struct {
	slots    []any
	nextfree int
}

// New allocates a Directory with room for capacity keys.
func New(capacity int) *Directory {
	scioto.AssertInvariant(capacity >= 0, "clod: negative capacity")
	return &Directory{slots: make([]any, capacity)}
}

// NextFree returns the next key and advances the cursor. Callers are
// responsible for invoking it collectively, in the same order on every
// rank, so the returned id aligns across the job.
func (d *Directory) NextFree() int {
	scioto.AssertInvariant(d.nextfree < len(d.slots), fmt.Sprintf("clod: directory exhausted (capacity %d)", len(d.slots)))
	id := d.nextfree
	d.nextfree++
	return id
}

// Assign stores ptr under id, local to this rank.
func (d *Directory) Assign(id int, ptr any) {
	d.checkRange(id)
	d.slots[id] = ptr
}

// Lookup returns the pointer previously Assign-ed at id on this rank.
func (d *Directory) Lookup(id int) any {
	d.checkRange(id)
	return d.slots[id]
}

// Reset rewinds the cursor so keys may be reallocated; existing slot
// contents are left untouched until reassigned.
func (d *Directory) Reset() {
	d.nextfree = 0
}

// Cap returns the directory's fixed capacity.
func (d *Directory) Cap() int { return len(d.slots) }

func (d *Directory) checkRange(id int) {
	scioto.AssertInvariant(id >= 0 && id < len(d.slots), fmt.Sprintf("clod: id %d out of range [0,%d)", id, len(d.slots)))
}
