// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package taskclass implements the task descriptor and task class
// registry of spec.md §3/§4.1: a fixed header followed by an opaque body,
// and a collectively-registered table of (body size, execute function)
// pairs addressed by a small dense integer id.
package taskclass

import (
	"fmt"
	"sync"

	"github.com/joeycumines/scioto"
)

// ExecuteFunc runs a task's business logic. gtc is passed as `any` to
// avoid an import cycle with the gtc package (which imports taskclass);
// callers type-assert it back to *gtc.Collection.
type ExecuteFunc func(gtc any, task *Task)

// Class is one registered task class: a fixed body size and the callback
// invoked to run tasks of this class.
type Class struct {
	ID       int
	BodySize int
	Execute  ExecuteFunc
}

// Header is the fixed portion of every task, independent of class.
type Header struct {
	ClassID     int
	CreatorRank int
	Priority    int
}

// Task is one task descriptor: a header plus an opaque body slice whose
// length is always exactly its class's BodySize.
type Task struct {
	Header
	Body []byte
}

// BodyAs returns a pointer-stable view of the task's payload, sized to n
// bytes (which must be <= len(t.Body)); it never reallocates.
func (t *Task) BodyAs(n int) []byte {
	scioto.AssertInvariant(n <= len(t.Body), fmt.Sprintf("taskclass: body view of %d exceeds task body %d", n, len(t.Body)))
	return t.Body[:n]
}

// Registry is the per-process collectively-populated class table. All
// ranks must call Register the same number of times, in the same order,
// with the same body sizes, so that class ids agree across the job.
//
// classes is only ever appended to during collective registration, before
// any rank starts calling Create/Destroy, so it needs no lock. free is a
// different story: gtc shares one Registry pointer across every rank in a
// Group (spec.md's "process-local" class table collapses to one process
// here), and Create/Destroy run concurrently from each rank's own Process
// loop, so free is guarded by mu.
type Registry struct {
	classes []Class
	mu      sync.Mutex
	free    []*Task // one recycled Task per class, by class id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a new class and returns its id.
func (r *Registry) Register(bodySize int, fn ExecuteFunc) int {
	scioto.AssertInvariant(bodySize >= 0, "taskclass: negative body size")
	id := len(r.classes)
	r.classes = append(r.classes, Class{ID: id, BodySize: bodySize, Execute: fn})
	r.free = append(r.free, nil)
	return id
}

// Lookup returns the class descriptor for id, asserting id is registered.
func (r *Registry) Lookup(id int) *Class {
	scioto.AssertInvariant(id >= 0 && id < len(r.classes), fmt.Sprintf("taskclass: class id %d out of range [0,%d)", id, len(r.classes)))
	return &r.classes[id]
}

// LargestBodySize returns the maximum BodySize over every registered
// class; this is the lower bound a queue's max_body_size must satisfy.
func (r *Registry) LargestBodySize() int {
	max := 0
	for i := range r.classes {
		if r.classes[i].BodySize > max {
			max = r.classes[i].BodySize
		}
	}
	return max
}

// Create allocates a task of the given class, reusing the class's
// one-entry free list when available.
func (r *Registry) Create(classID int) *Task {
	cls := r.Lookup(classID)
	r.mu.Lock()
	t := r.free[classID]
	if t != nil {
		r.free[classID] = nil
	}
	r.mu.Unlock()
	if t != nil {
		t.ClassID = classID
		t.Priority = 0
		return t
	}
	return &Task{
		Header: Header{ClassID: classID},
		Body:   make([]byte, cls.BodySize),
	}
}

// Destroy returns t to its class's one-entry free list, replacing
// whatever was already cached there.
func (r *Registry) Destroy(t *Task) {
	r.mu.Lock()
	r.free[t.ClassID] = t
	r.mu.Unlock()
}

// Reuse clears a task's stats (priority, creator) without touching its
// body, ready for a fresh Add.
func (r *Registry) Reuse(t *Task) {
	t.Priority = 0
	t.CreatorRank = 0
}
