// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package queue implements the per-rank split work queue of spec.md §3/§4:
// a fixed-capacity ring with an owner-only local region and a stealable
// shared region, in two interchangeable flavors — SDC (mutex-guarded,
// deferred-copy) and SAWS (lock-free, epoched).
//
// Both flavors satisfy the Queue interface, which is the Go rendering of
// spec.md §4.6/§9's QueueOps dispatch table: rather than a struct of
// function pointers selected at creation, the table becomes ordinary
// interface dispatch, and the "opaque state pointer" becomes the
// interface's concrete receiver.
package queue

import (
	"fmt"

	"github.com/joeycumines/scioto"
	"github.com/joeycumines/scioto/taskclass"
)

// QType selects the queue algorithm.
type QType int

const (
	SDC QType = iota
	SAWS
)

func (t QType) String() string {
	switch t {
	case SDC:
		return "sdc"
	case SAWS:
		return "saws"
	default:
		return fmt.Sprintf("QType(%d)", int(t))
	}
}

// MaxSAWSCapacity is the hard ceiling imposed by SAWS's 19-bit tail field
// (spec.md §4.5 invariant (c)).
const MaxSAWSCapacity = 1<<19 - 1

// PopPolicy controls how large a steal batch a thief asks for relative to
// what is actually available on the victim (spec.md §4.4 step 3).
type PopPolicy int

const (
	// Half takes ceil(shared/2) regardless of n requested.
	Half PopPolicy = iota
	// All takes every available shared task.
	All
	// Chunk caps the batch at a fixed chunk size.
	Chunk
)

func (p PopPolicy) String() string {
	switch p {
	case Half:
		return "half"
	case All:
		return "all"
	case Chunk:
		return "chunk"
	default:
		return fmt.Sprintf("PopPolicy(%d)", int(p))
	}
}

// StealOutcome classifies why a steal attempt did or did not return work,
// matching the failure taxonomy of spec.md §4.4/§7.
type StealOutcome int

const (
	StealSuccess StealOutcome = iota
	// StealAborted: trylock missed (steals_can_abort path).
	StealAborted
	// StealFailedLocked: lock acquired, but nothing was available.
	StealFailedLocked
	// StealFailedUnlocked: the cheap pre-lock snapshot already showed empty.
	StealFailedUnlocked
)

func (o StealOutcome) String() string {
	switch o {
	case StealSuccess:
		return "success"
	case StealAborted:
		return "aborted"
	case StealFailedLocked:
		return "failed-locked"
	case StealFailedUnlocked:
		return "failed-unlocked"
	default:
		return fmt.Sprintf("StealOutcome(%d)", int(o))
	}
}

// StealResult is the product of a pop_n_tail call.
type StealResult struct {
	Tasks   []taskclass.Task
	Outcome StealOutcome
}

// Queue is the common interface both SDC and SAWS implement; it is the
// table gtc.Collection dispatches through.
type Queue interface {
	QType() QType
	Name() string

	// owner-side, always proc==self
	PushHead(t *taskclass.Task) error
	PushNHead(tasks []taskclass.Task) error
	PopHead() (taskclass.Task, bool)
	InplaceCreate(classID, bodySize int) (*taskclass.Task, error)
	InplaceFinish(t *taskclass.Task)

	// owner-side maintenance, invoked once per get_buf call (spec §4.6 step 1)
	Progress()

	// thief-side; the receiver is the victim
	PopNTail(nRequested int, policy PopPolicy, abortable bool) StealResult

	// hints
	WorkAvail() int // cheap, possibly-stale shared-region size hint
	TasksAvail() bool
	Len() (local, shared int)

	Reset()
	PrintStats() string
}

// cyclic is the shared cursor arithmetic used by both flavors: capacity is
// fixed at construction (spec.md: "no dynamic growth"), and every cursor
// lives in [0, capacity).
type cyclic struct {
	capacity int
}

func (c cyclic) add(pos, n int) int {
	capacity := c.capacity
	pos += n
	if pos >= capacity {
		pos -= capacity
	}
	for pos < 0 {
		pos += capacity
	}
	return pos
}

// dist returns the forward distance from a to b, i.e. how many Add(a, k)
// steps reach b.
func (c cyclic) dist(a, b int) int {
	d := b - a
	if d < 0 {
		d += c.capacity
	}
	return d
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// maxSteals returns the number of halving-without-remainder halvings
// needed to drain n tasks (spec.md §3: "attempt 1 takes ceil(n/2), attempt
// 2 takes ceil((n-taken)/2), ...").
func maxSteals(n int) int {
	count := 0
	remaining := n
	for remaining > 0 {
		batch := ceilDiv(remaining, 2)
		remaining -= batch
		count++
	}
	return count
}

// checkSlotCapacity asserts that a body of requested bytes fits in a slot
// sized for maxBodySize. The ring calls it on every write and InplaceCreate
// calls it before allocating; queue construction does not call it.
func checkSlotCapacity(maxBodySize, requested int) {
	scioto.AssertInvariant(requested <= maxBodySize, fmt.Sprintf("queue: body size %d exceeds queue max_body_size %d", requested, maxBodySize))
}
