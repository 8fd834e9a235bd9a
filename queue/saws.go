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
	"github.com/joeycumines/scioto/taskclass"
)

// Packed steal_val field widths (spec.md §3 SAWS-specific state / §9
// "atomic bit-packed word"). Kept as named shift/mask constants rather
// than a bitfield struct so the single-word atomic stays a plain
// atomic.Uint64 — no struct tags, no unsafe reinterpretation.
const (
	sawsASteaslsBits  = 24
	sawsASteaslsShift = 40
	sawsEpochBits     = 2
	sawsEpochShift    = 38
	sawsItasksBits    = 19
	sawsItasksShift   = 19
	sawsTailBits      = 19
	sawsTailShift     = 0

	sawsEpochDisabled = 3
)

func init() {
	scioto.AssertInvariant(sawsASteaslsBits+sawsEpochBits+sawsItasksBits+sawsTailBits == 64, "queue: saws steal_val field widths must sum to 64 bits")
}

func sawsPack(asteals, epoch, itasks, tail uint32) uint64 {
	return uint64(asteals&(1<<sawsASteaslsBits-1))<<sawsASteaslsShift |
		uint64(epoch&(1<<sawsEpochBits-1))<<sawsEpochShift |
		uint64(itasks&(1<<sawsItasksBits-1))<<sawsItasksShift |
		uint64(tail&(1<<sawsTailBits-1))<<sawsTailShift
}

func sawsUnpack(v uint64) (asteals, epoch, itasks, tail uint32) {
	asteals = uint32(v>>sawsASteaslsShift) & (1<<sawsASteaslsBits - 1)
	epoch = uint32(v>>sawsEpochShift) & (1<<sawsEpochBits - 1)
	itasks = uint32(v>>sawsItasksShift) & (1<<sawsItasksBits - 1)
	tail = uint32(v>>sawsTailShift) & (1<<sawsTailBits - 1)
	return
}

// sawsEpoch tracks one release's worth of published shared work. The
// per-attempt status[] vector of spec.md §3 is collapsed into a single
// running sum: nothing in this design ever needs to know which attempt
// contributed which slice, only whether the epoch's declared itasks has
// been fully accounted for.
type sawsEpoch struct {
	itasks        int32
	tailAtRelease int32
	statusSum     atomic.Int32
}

func (e *sawsEpoch) reset(itasks, tailAtRelease int32) {
	e.itasks = itasks
	e.tailAtRelease = tailAtRelease
	e.statusSum.Store(0)
}

func (e *sawsEpoch) done() bool {
	return e.itasks == 0 || e.statusSum.Load() >= e.itasks
}

// SAWSQueue is the lock-free Shmem Atomic Work Stealing queue of
// spec.md §4.5: owner push/pop touch only head/split/tail (no atomics,
// single-threaded owner), thieves coordinate purely through steal_val
// and the epoch status sums.
type SAWSQueue struct {
	rank int
	ring slotRing
	c    cyclic

	head, split, tail int // owner-only cursors; tail also encoded (mod 2^19) into steal_val

	stealVal atomic.Uint64
	curID    int // which of epochs[0..2] is "cur"; (curID+2)%3 is "last"
	epochs   [3]sawsEpoch

	stats sawsStats
}

type sawsStats struct {
	steals, epochExhausted, epochDisabled atomic.Int64
	releases, reacquires                  atomic.Int64
}

// NewSAWS creates a SAWS queue for rank. capacity must fit in the 19-bit
// tail field (spec.md §4.5 invariant (c) / MaxSAWSCapacity).
func NewSAWS(rank int, capacity, maxBodySize int) *SAWSQueue {
	scioto.AssertInvariant(capacity >= 1, "queue: capacity must be >= 1")
	scioto.AssertInvariant(capacity <= MaxSAWSCapacity, fmt.Sprintf("queue: saws capacity %d exceeds 19-bit tail field limit %d", capacity, MaxSAWSCapacity))
	q := &SAWSQueue{
		rank: rank,
		ring: newSlotRing(capacity, maxBodySize),
		c:    cyclic{capacity: capacity},
	}
	q.lastEpoch().statusSum.Store(0)
	return q
}

func (q *SAWSQueue) QType() QType    { return SAWS }
func (q *SAWSQueue) Name() string    { return "saws" }
func (q *SAWSQueue) Len() (l, s int) { return q.c.dist(q.split, q.head), q.c.dist(q.tail, q.split) }

func (q *SAWSQueue) curEpoch() *sawsEpoch  { return &q.epochs[q.curID] }
func (q *SAWSQueue) lastEpoch() *sawsEpoch { return &q.epochs[(q.curID+2)%3] }

func (q *SAWSQueue) nlocal() int { return q.c.dist(q.split, q.head) }
func (q *SAWSQueue) nshared() int { return q.c.dist(q.tail, q.split) }

func (q *SAWSQueue) PushHead(t *taskclass.Task) error {
	for attempt := 0; q.nlocal()+q.nshared() >= q.ring.capacity-1; attempt++ {
		if !q.reacquire() && attempt > 1_000_000 {
			scioto.AssertInvariant(false, fmt.Sprintf("queue: saws rank %d capacity exhausted (cap=%d)", q.rank, q.ring.capacity))
		}
	}
	q.ring.write(q.head, t)
	q.head = q.c.add(q.head, 1)
	return nil
}

func (q *SAWSQueue) PushNHead(tasks []taskclass.Task) error {
	for i := range tasks {
		if err := q.PushHead(&tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

func (q *SAWSQueue) PopHead() (taskclass.Task, bool) {
	if q.nlocal() == 0 {
		q.reacquire()
	}
	if q.nlocal() == 0 {
		return taskclass.Task{}, false
	}
	q.head = q.c.add(q.head, -1)
	return q.ring.read(q.head), true
}

func (q *SAWSQueue) InplaceCreate(classID, bodySize int) (*taskclass.Task, error) {
	checkSlotCapacity(q.ring.maxBodySize, bodySize)
	return &taskclass.Task{Header: taskclass.Header{ClassID: classID}, Body: make([]byte, bodySize)}, nil
}

func (q *SAWSQueue) InplaceFinish(t *taskclass.Task) { _ = q.PushHead(t) }

// Progress is SAWS's maintenance hook: release if there's local work and
// nothing already shared, mirroring the release step of SDC's Progress
// (SAWS has no separate reclaim step here).
func (q *SAWSQueue) Progress() {
	q.release()
}

// release publishes ceil(nlocal/2) tasks to the shared region under a
// fresh epoch (spec.md §4.5 owner release).
func (q *SAWSQueue) release() {
	if q.nlocal() == 0 || q.nshared() != 0 {
		return
	}
	n := ceilDiv(q.nlocal(), 2)
	q.split = q.c.add(q.split, n)

	q.curID = (q.curID + 1) % 3
	q.curEpoch().reset(int32(n), int32(q.tail))
	q.stealVal.Store(sawsPack(0, uint32(q.curID), uint32(n), uint32(q.tail)))
	q.stats.releases.Add(1)
}

// reacquire is the algorithmic core of spec.md §4.5: disable steals on
// the current epoch, fold in whatever the previous epoch finished,
// reclaim what the owner can, and reseed a new epoch with the leftover.
// Returns true if it moved or reclaimed anything.
func (q *SAWSQueue) reacquire() bool {
	old := q.disableCurEpoch()
	asteals, epoch, itasks, tailAtRelease := sawsUnpack(old)
	if epoch == sawsEpochDisabled || itasks == 0 {
		// Nothing was ever published for this generation; still try to
		// reclaim whatever the last epoch finished.
		return q.reclaimLast()
	}

	prevLast := q.lastEpoch()
	reclaimed := q.waitAndAdvanceTail(prevLast)

	taken := simulateTaken(int(asteals), int(itasks))
	remaining := int(itasks) - taken
	amount := ceilDiv(remaining, 2)
	leftover := remaining - amount

	if amount > 0 {
		q.split = q.c.add(q.split, -amount)
	}

	// The current epoch becomes "last": only the portion actually handed
	// to thieves (taken) is still owed a completion signal.
	q.epochs[q.curID].itasks = int32(taken)
	// statusSum already reflects whatever thieves posted so far; it will
	// keep accumulating until it reaches taken.

	q.curID = (q.curID + 1) % 3
	q.curEpoch().reset(int32(leftover), int32(tailAtRelease)+int32(taken))
	if leftover > 0 {
		q.stealVal.Store(sawsPack(0, uint32(q.curID), uint32(leftover), uint32(int(tailAtRelease)+taken)))
	} else {
		q.stealVal.Store(sawsPack(0, uint32(q.curID), 0, uint32(int(tailAtRelease)+taken)))
	}

	q.stats.reacquires.Add(1)
	return amount > 0 || leftover > 0 || reclaimed
}

// reclaimLast advances tail over a previously-superseded epoch without
// touching a live one; used when disableCurEpoch finds nothing active.
func (q *SAWSQueue) reclaimLast() bool {
	return q.waitAndAdvanceTail(q.lastEpoch())
}

// waitAndAdvanceTail busy-waits for e to finish (the sole blocking point
// in SAWS besides termination detection, spec.md §5) then advances tail
// over its full declared itasks.
func (q *SAWSQueue) waitAndAdvanceTail(e *sawsEpoch) bool {
	if e.itasks == 0 {
		return false
	}
	for !e.done() {
		// deliberate busy-spin: see rmutex's back-off note.
	}
	n := int(e.itasks)
	e.itasks = 0
	q.tail = q.c.add(q.tail, n)
	return true
}

// disableCurEpoch ORs the disabled sentinel into the epoch field and
// returns the pre-OR value (spec.md §4.5 reacquire step 1).
func (q *SAWSQueue) disableCurEpoch() uint64 {
	for {
		old := q.stealVal.Load()
		_, epoch, _, _ := sawsUnpack(old)
		if epoch == sawsEpochDisabled {
			return old
		}
		new := old | (uint64(sawsEpochDisabled) << sawsEpochShift)
		if q.stealVal.CompareAndSwap(old, new) {
			return old
		}
	}
}

// simulateTaken replays how many tasks prior attempts [0,asteals) already
// claimed, following the same halving sequence maxSteals uses (spec.md
// §3 invariants, §4.5 step 4).
func simulateTaken(asteals, itasks int) int {
	taken := 0
	remaining := itasks
	for i := 0; i < asteals && remaining > 0; i++ {
		batch := ceilDiv(remaining, 2)
		taken += batch
		remaining -= batch
	}
	return taken
}

// PopNTail is the thief side: claim a ticket, decode the batch it's
// entitled to, read it, then post completion (spec.md §4.5 thief-side
// pop_n_tail). nRequested and policy are accepted for interface
// symmetry with SDC; SAWS always takes exactly its halving-schedule
// batch, since that schedule is the epoch's only contract with other
// thieves.
func (q *SAWSQueue) PopNTail(nRequested int, policy PopPolicy, abortable bool) StealResult {
	// Claiming a ticket (bumping asteals) only happens once this CAS loop
	// observes a live, unexhausted epoch: checking via a cheap Load first,
	// and re-checking on every retry, means a victim that is already
	// exhausted never has asteals incremented again, however many times
	// thieves probe it before the next release/reacquire.
	var preAdd uint64
	for {
		old := q.stealVal.Load()
		asteals, epoch, itasks, _ := sawsUnpack(old)
		if epoch == sawsEpochDisabled {
			q.stats.epochDisabled.Add(1)
			return StealResult{Outcome: StealFailedLocked}
		}
		if int(asteals) >= maxSteals(int(itasks)) {
			q.stats.epochExhausted.Add(1)
			return StealResult{Outcome: StealFailedUnlocked}
		}
		next := old + (1 << sawsASteaslsShift)
		if q.stealVal.CompareAndSwap(old, next) {
			preAdd = old
			break
		}
	}
	asteals, epoch, itasks, tailAtRelease := sawsUnpack(preAdd)

	taken := simulateTaken(int(asteals), int(itasks))
	remaining := int(itasks) - taken
	k := ceilDiv(remaining, 2)
	if k <= 0 {
		return StealResult{Outcome: StealFailedLocked}
	}

	from := q.c.add(int(tailAtRelease), taken)
	tasks := q.ring.readRun(from, k, q.c)

	q.epochs[epoch].statusSum.Add(int32(k))
	q.stats.steals.Add(1)

	return StealResult{Tasks: tasks, Outcome: StealSuccess}
}

func (q *SAWSQueue) WorkAvail() int {
	_, epoch, itasks, _ := sawsUnpack(q.stealVal.Load())
	if epoch == sawsEpochDisabled {
		return 0
	}
	return int(itasks)
}

func (q *SAWSQueue) TasksAvail() bool {
	return q.nlocal() > 0 || q.nshared() > 0 || !q.lastEpoch().done()
}

func (q *SAWSQueue) Reset() {
	q.head, q.split, q.tail = 0, 0, 0
	q.curID = 0
	for i := range q.epochs {
		q.epochs[i] = sawsEpoch{}
	}
	q.stealVal.Store(0)
}

func (q *SAWSQueue) PrintStats() string {
	return fmt.Sprintf("saws[rank=%d steals=%d exhausted=%d disabled=%d releases=%d reacquires=%d]",
		q.rank, q.stats.steals.Load(), q.stats.epochExhausted.Load(), q.stats.epochDisabled.Load(),
		q.stats.releases.Load(), q.stats.reacquires.Load())
}
