// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/scioto"
	"github.com/joeycumines/scioto/rmutex"
	"github.com/joeycumines/scioto/taskclass"
)

// SDCQueue is the Split-Deferred-Copy queue of spec.md §4.4: a mutex
// guards every shared-side mutation, and a thief drops that lock before
// copying the stolen payload, signalling completion afterwards via an
// itail counter so the owner knows when it is safe to reclaim the space.
//
// Capacity bookkeeping is tracked as counts (nlocal/nshared/nreserved)
// rather than as four independent cursor positions: split/tail/vtail are
// derived from head and the counts on demand. This is equivalent to the
// four-cursor model in spec.md §3 but removes an entire class of
// off-by-one cursor-arithmetic bugs, at the cost of recomputing three
// subtractions per query — cheap relative to the lock it is called under.
type SDCQueue struct {
	rank    int
	ring    slotRing
	c       cyclic
	mutexes *rmutex.Set

	head      int
	nlocal    int
	nshared   int
	nreserved int

	// pendingReclaim accumulates tasks a thief has finished copying but
	// the owner has not yet folded back into nreserved. This stands in
	// for spec.md's itail cursor (§3 SDC-specific state): rather than a
	// ring position compared against tail, it is a plain running count,
	// reset to zero each time reclaim_space folds it in.
	pendingReclaim atomic.Int64

	stats sdcStats
}

type sdcStats struct {
	steals, abortedSteals, failedLockedSteals, failedUnlockedSteals atomic.Int64
	releases, reacquires                                            atomic.Int64
}

// NewSDC creates an SDC queue for rank, sharing mutexes with every other
// rank's SDC queue in the same task collection.
func NewSDC(rank int, mutexes *rmutex.Set, capacity, maxBodySize int) *SDCQueue {
	scioto.AssertInvariant(capacity >= 1, "queue: capacity must be >= 1")
	return &SDCQueue{
		rank:    rank,
		ring:    newSlotRing(capacity, maxBodySize),
		c:       cyclic{capacity: capacity},
		mutexes: mutexes,
	}
}

func (q *SDCQueue) QType() QType  { return SDC }
func (q *SDCQueue) Name() string  { return "sdc" }
func (q *SDCQueue) Len() (l, s int) { return q.nlocal, q.nshared }

func (q *SDCQueue) split() int { return q.c.add(q.head, -q.nlocal) }
func (q *SDCQueue) tail() int  { return q.c.add(q.split(), -q.nshared) }
func (q *SDCQueue) vtail() int { return q.c.add(q.tail(), -q.nreserved) }

func (q *SDCQueue) occupied() int { return q.nlocal + q.nshared + q.nreserved }
func (q *SDCQueue) free() int     { return q.ring.capacity - q.occupied() }

// reclaimSpace folds any thief-reported completions back into nreserved,
// returning the number of slots reclaimed (spec.md §4.4 reclaim_space).
func (q *SDCQueue) reclaimSpace() int {
	n := int(q.pendingReclaim.Swap(0))
	if n > q.nreserved {
		n = q.nreserved
	}
	q.nreserved -= n
	return n
}

func (q *SDCQueue) PushHead(t *taskclass.Task) error {
	if q.free() < 1 {
		q.mutexes.Lock(q.rank)
		for attempt := 0; q.free() < 1; attempt++ {
			if q.reclaimSpace() == 0 && attempt > 1_000_000 {
				q.mutexes.Unlock(q.rank)
				scioto.AssertInvariant(false, fmt.Sprintf("queue: sdc rank %d capacity exhausted (cap=%d)", q.rank, q.ring.capacity))
			}
		}
		q.mutexes.Unlock(q.rank)
	}
	q.ring.write(q.head, t)
	q.head = q.c.add(q.head, 1)
	q.nlocal++
	return nil
}

func (q *SDCQueue) PushNHead(tasks []taskclass.Task) error {
	for i := range tasks {
		if err := q.PushHead(&tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

func (q *SDCQueue) PopHead() (taskclass.Task, bool) {
	if q.nlocal == 0 {
		q.reacquire()
	}
	if q.nlocal == 0 {
		return taskclass.Task{}, false
	}
	q.head = q.c.add(q.head, -1)
	q.nlocal--
	return q.ring.read(q.head), true
}

// Progress is the owner-side maintenance hook invoked once per get_buf
// call; for SDC it opportunistically reclaims space (spec.md §4.6 step 1
// + §4.4 reclaim_space) without needing to wait on a push.
func (q *SDCQueue) Progress() {
	q.release()
	if q.nreserved > 0 {
		q.mutexes.Lock(q.rank)
		q.reclaimSpace()
		q.mutexes.Unlock(q.rank)
	}
}

// release moves ceil(nlocal/2) elements from local to shared, only when
// the shared region is currently empty (spec.md §4.4 release).
func (q *SDCQueue) release() {
	if q.nlocal == 0 || q.nshared != 0 {
		return
	}
	q.mutexes.Lock(q.rank)
	defer q.mutexes.Unlock(q.rank)
	if q.nlocal > 0 && q.nshared == 0 {
		n := ceilDiv(q.nlocal, 2)
		q.nlocal -= n
		q.nshared += n
		q.stats.releases.Add(1)
	}
}

// reacquire pulls shared tasks back into the local region when the
// shared side has grown larger than local (spec.md §4.4 reacquire).
func (q *SDCQueue) reacquire() {
	q.mutexes.Lock(q.rank)
	defer q.mutexes.Unlock(q.rank)
	q.reclaimSpace()
	if q.nshared > q.nlocal {
		n := ceilDiv(q.nshared-q.nlocal, 2)
		q.nshared -= n
		q.nlocal += n
		q.stats.reacquires.Add(1)
	}
}

func (q *SDCQueue) InplaceCreate(classID, bodySize int) (*taskclass.Task, error) {
	checkSlotCapacity(q.ring.maxBodySize, bodySize)
	t := &taskclass.Task{Header: taskclass.Header{ClassID: classID}, Body: make([]byte, bodySize)}
	return t, nil
}

func (q *SDCQueue) InplaceFinish(t *taskclass.Task) {
	_ = q.PushHead(t)
}

// PopNTail is the thief-side steal: lock the victim, snapshot, compute a
// batch under policy, write back a new tail, unlock, then copy the
// payload and signal completion via pendingReclaim (spec.md §4.4).
func (q *SDCQueue) PopNTail(nRequested int, policy PopPolicy, abortable bool) StealResult {
	if q.nshared == 0 && q.WorkAvail() == 0 {
		return StealResult{Outcome: StealFailedUnlocked}
	}

	var locked bool
	if abortable {
		locked = q.mutexes.TryLock(q.rank)
		if !locked {
			return StealResult{Outcome: StealAborted}
		}
	} else {
		q.mutexes.Lock(q.rank)
		locked = true
	}
	defer func() {
		if locked {
			q.mutexes.Unlock(q.rank)
		}
	}()

	shared := q.nshared
	if shared == 0 {
		return StealResult{Outcome: StealFailedLocked}
	}

	n := nRequested
	switch policy {
	case Half:
		n = ceilDiv(shared, 2)
	case All:
		n = shared
	case Chunk:
		if n > shared {
			n = shared
		}
	}
	if n <= 0 {
		return StealResult{Outcome: StealFailedLocked}
	}
	if n > shared {
		n = shared
	}

	from := q.tail()
	q.nshared -= n
	q.nreserved += n

	q.mutexes.Unlock(q.rank)
	locked = false

	tasks := q.ring.readRun(from, n, q.c)
	q.pendingReclaim.Add(int64(n))
	q.stats.steals.Add(1)

	return StealResult{Tasks: tasks, Outcome: StealSuccess}
}

// WorkAvail is the cheap, lock-free hint a thief polls before attempting
// a lock (spec.md §4.6 step "select_target"). It may race with a
// concurrent release/steal; that is expected and tolerated.
func (q *SDCQueue) WorkAvail() int { return q.nshared }

func (q *SDCQueue) TasksAvail() bool {
	return q.nlocal > 0 || q.nshared > 0 || q.nreserved > 0
}

func (q *SDCQueue) Reset() {
	q.head, q.nlocal, q.nshared, q.nreserved = 0, 0, 0, 0
	q.pendingReclaim.Store(0)
}

func (q *SDCQueue) PrintStats() string {
	return fmt.Sprintf("sdc[rank=%d steals=%d aborted=%d failed_locked=%d failed_unlocked=%d releases=%d reacquires=%d]",
		q.rank, q.stats.steals.Load(), q.stats.abortedSteals.Load(), q.stats.failedLockedSteals.Load(),
		q.stats.failedUnlockedSteals.Load(), q.stats.releases.Load(), q.stats.reacquires.Load())
}
