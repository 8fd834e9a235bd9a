// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package queue

import "github.com/joeycumines/scioto/taskclass"

// slotRing is the fixed-capacity backing array shared by SDC and SAWS:
// each element has room for the queue's configured max_body_size, so the
// per-slot width never changes after creation (spec.md §3: "the slot
// width used in the ring is header + max_body_size").
type slotRing struct {
	capacity    int
	maxBodySize int
	slots       []slotEntry
}

type slotEntry struct {
	hdr  taskclass.Header
	body []byte
	n    int // length of the body last written into this slot
}

func newSlotRing(capacity, maxBodySize int) slotRing {
	slots := make([]slotEntry, capacity)
	for i := range slots {
		slots[i].body = make([]byte, maxBodySize)
	}
	return slotRing{capacity: capacity, maxBodySize: maxBodySize, slots: slots}
}

func (r *slotRing) write(idx int, t *taskclass.Task) {
	checkSlotCapacity(r.maxBodySize, len(t.Body))
	e := &r.slots[idx]
	e.hdr = t.Header
	n := copy(e.body, t.Body)
	e.body = e.body[:cap(e.body)]
	e.n = n
}

func (r *slotRing) read(idx int) taskclass.Task {
	e := &r.slots[idx]
	body := make([]byte, e.n)
	copy(body, e.body)
	return taskclass.Task{Header: e.hdr, Body: body}
}

// readRun copies a contiguous run of n slots starting at from (wrapping)
// into a newly allocated slice of length n.
func (r *slotRing) readRun(from, n int, c cyclic) []taskclass.Task {
	out := make([]taskclass.Task, n)
	pos := from
	for i := 0; i < n; i++ {
		out[i] = r.read(pos)
		pos = c.add(pos, 1)
	}
	return out
}
