// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gtc

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/scioto"
	"github.com/joeycumines/scioto/clod"
	"github.com/joeycumines/scioto/queue"
	"github.com/joeycumines/scioto/stats"
	"github.com/joeycumines/scioto/taskclass"
	"github.com/joeycumines/scioto/term"
	"github.com/joeycumines/scioto/transport"
)

// Collection is one rank's view of a task collection (spec.md §4.6's TC):
// a queue, the termination detector, the process-local CLOD, and the
// ldbal_cfg-driven steal loop.
type Collection struct {
	group *Group
	rank  int
	conn  transport.Conn

	q        queue.Queue
	detector *term.Detector
	clo      *clod.Directory
	classes  *taskclass.Registry
	cfg      LdbalConfig

	stealingEnabled   atomic.Bool
	externalWorkAvail atomic.Bool

	lastVictim int
	rng        *rand.Rand

	limiter *catrate.Limiter
	log     *scioto.Log

	counters stats.Counters
}

func newCollection(g *Group, rank int, conn transport.Conn) *Collection {
	c := &Collection{
		group:      g,
		rank:       rank,
		conn:       conn,
		q:          g.queues[rank],
		detector:   g.tree.Rank(rank),
		clo:        clod.New(g.cloCapacity),
		classes:    g.classes,
		cfg:        g.cfg,
		lastVictim: rank,
		rng:        rand.New(rand.NewSource(int64(rank) + 1)),
		limiter:    catrate.NewLimiter(map[time.Duration]int{time.Second: 50}),
		log:        scioto.Logger(),
	}
	c.stealingEnabled.Store(g.cfg.StealingEnabled)
	return c
}

// Rank returns this collection's rank.
func (c *Collection) Rank() int { return c.rank }

// Destroy implements scioto.Handle (gtc_destroy).
func (c *Collection) Destroy() error {
	c.q.Reset()
	return nil
}

// Reset implements gtc_reset: clears queue and detector state so the
// collection can be reused for a fresh wave of work.
func (c *Collection) Reset() error {
	c.q.Reset()
	c.detector.Reset()
	c.clo.Reset()
	return nil
}

// Add implements gtc_add: always local, copies body into a freshly
// created task of classID and pushes it onto the local head.
func (c *Collection) Add(classID int, body []byte) error {
	t := c.classes.Create(classID)
	t.CreatorRank = c.rank
	copy(t.Body, body)
	if err := c.q.PushHead(t); err != nil {
		return err
	}
	c.counters.Spawned.Add(1)
	c.detector.Spawn(1)
	return nil
}

// InplaceCreateAndAdd allocates a head slot for classID and returns a
// pointer into it, avoiding the copy Add performs. The caller must follow
// up with InplaceCreateAndAddFinish once the body has been written.
func (c *Collection) InplaceCreateAndAdd(classID int) (*taskclass.Task, error) {
	cls := c.classes.Lookup(classID)
	t, err := c.q.InplaceCreate(classID, cls.BodySize)
	if err != nil {
		return nil, err
	}
	t.CreatorRank = c.rank
	return t, nil
}

// InplaceCreateAndAddFinish flushes a task built via InplaceCreateAndAdd.
func (c *Collection) InplaceCreateAndAddFinish(t *taskclass.Task) {
	c.q.InplaceFinish(t)
	c.counters.Spawned.Add(1)
	c.detector.Spawn(1)
}

// GetLocalBuf implements gtc_get_local_buf: head-only pop, never steals.
// prio is accepted for call-signature parity but unused; the ring is
// strictly LIFO and does not reorder by priority.
func (c *Collection) GetLocalBuf(prio int) (taskclass.Task, bool) {
	return c.q.PopHead()
}

// EnableStealing / DisableStealing implement the matching gtc entry
// points: toggling this flag makes GetBuf skip straight from "no local
// work" to a termination-detector poll, i.e. static scheduling.
func (c *Collection) EnableStealing()  { c.stealingEnabled.Store(true) }
func (c *Collection) DisableStealing() { c.stealingEnabled.Store(false) }

// SetExternalWorkAvail implements gtc_set_external_work_avail: a hint that
// some out-of-band producer (not this rank's own stealing) may have just
// made local work available, so GetBuf should reload rather than poll the
// detector.
func (c *Collection) SetExternalWorkAvail(avail bool) { c.externalWorkAvail.Store(avail) }

// CloAssociate implements gtc_clo_associate: must be called collectively,
// in the same order, on every rank.
func (c *Collection) CloAssociate(ptr any) int {
	id := c.clo.NextFree()
	c.clo.Assign(id, ptr)
	return id
}

// CloLookup implements gtc_clo_lookup.
func (c *Collection) CloLookup(id int) any { return c.clo.Lookup(id) }

// GetBuf implements the get_buf dispatch loop of spec.md §4.6: progress the
// local queue, try a local pop, and if that comes up empty and stealing is
// enabled, search for a victim before falling back to a termination poll.
// The bool result is true only when the termination detector has voted the
// whole collection quiet; callers must stop calling GetBuf once it returns
// true. The detector recomputes its vote on every collective round, so a
// later round reports false again if new work has been spawned since.
func (c *Collection) GetBuf(ctx context.Context) (taskclass.Task, bool, error) {
	for {
		c.q.Progress()

		if t, ok := c.q.PopHead(); ok {
			return t, false, nil
		}

		if c.stealingEnabled.Load() {
			if t, found := c.steal(); found {
				return t, false, nil
			}
		}

		if c.externalWorkAvail.Swap(false) {
			continue
		}

		done, err := c.detector.Poll(ctx)
		if err != nil {
			return taskclass.Task{}, false, err
		}
		if done {
			return taskclass.Task{}, true, nil
		}
	}
}

// steal runs one pass of select_target against every other rank, per
// spec.md §4.6 step 3. StealSuccess returns at once; FailedUnlocked moves
// to the next candidate victim; FailedLocked retries the same victim until
// MaxStealAttemptsRemote attempts are used; StealAborted retries the same
// victim up to MaxStealRetries (negative meaning unbounded) without using
// an attempt. A successful steal pushes every task it won onto the local
// head, then pops the top one (the last task of the stolen batch), leaving
// the rest to satisfy subsequent GetBuf calls without stealing again.
func (c *Collection) steal() (taskclass.Task, bool) {
	n := c.group.n
	if n < 2 {
		return taskclass.Task{}, false
	}
	order := c.victimOrder(n)
	for _, victim := range order {
		if victim == c.rank {
			continue
		}
		q := c.group.queues[victim]
		retries := 0
	attempts:
		for attempt := 0; attempt < c.cfg.MaxStealAttemptsRemote; attempt++ {
			res := q.PopNTail(c.cfg.ChunkSize, c.cfg.StealMethod, c.cfg.StealsCanAbort)
			switch res.Outcome {
			case queue.StealSuccess:
				c.counters.Steals.Add(1)
				if err := c.q.PushNHead(res.Tasks); err != nil {
					c.log.Err().Err(err).Log("gtc: pushing stolen tasks to local head failed")
					return taskclass.Task{}, false
				}
				head, ok := c.q.PopHead()
				return head, ok
			case queue.StealAborted:
				c.counters.AbortedSteals.Add(1)
				retries++
				if c.cfg.MaxStealRetries >= 0 && retries > c.cfg.MaxStealRetries {
					break attempts // exhausted this victim's retry budget, move on
				}
				if _, allow := c.limiter.Allow("steal-contention"); allow {
					c.log.Debug().Int("victim", victim).Int("retries", retries).Log("gtc: steal aborted, retrying")
				}
				attempt-- // an abort doesn't consume an attempt, only a retry
			case queue.StealFailedLocked:
				c.counters.FailedLockedSteals.Add(1)
			case queue.StealFailedUnlocked:
				c.counters.FailedUnlockedSteals.Add(1)
				break attempts // victim is empty, stop probing it
			}
		}
	}
	return taskclass.Task{}, false
}

// victimOrder returns the candidate victim ranks to probe this round, in
// probe order, per cfg.TargetSelection.
func (c *Collection) victimOrder(n int) []int {
	order := make([]int, 0, n-1)
	switch c.cfg.TargetSelection {
	case RoundRobin:
		for i := 1; i < n; i++ {
			order = append(order, (c.lastVictim+i)%n)
		}
		c.lastVictim = (c.lastVictim + 1) % n
	default: // Random
		perm := c.rng.Perm(n)
		for _, v := range perm {
			if v != c.rank {
				order = append(order, v)
			}
		}
	}
	return order
}

// Process implements gtc_process: the steady-state worker loop, draining
// GetBuf until the collective declares termination. If GetBuf fails first
// (e.g. ctx is cancelled), the returned error wraps both
// scioto.ErrNotTerminated and the underlying cause.
func (c *Collection) Process(ctx context.Context) error {
	for {
		t, terminated, err := c.GetBuf(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", scioto.ErrNotTerminated, err)
		}
		if terminated {
			return nil
		}
		c.Execute(&t)
	}
}

// Execute implements gtc execute: runs the class callback then records
// completion. Business logic must not perform foreign blocking RPCs
// (spec.md §4.7); the callback may call Add, InplaceCreateAndAdd/
// InplaceCreateAndAddFinish and CloLookup. GetBuf is not among them: it
// blocks in a collective detector Poll.
func (c *Collection) Execute(t *taskclass.Task) {
	cls := c.classes.Lookup(t.ClassID)
	cls.Execute(c, t)
	c.counters.Completed.Add(1)
	c.detector.Complete(1)
	c.classes.Destroy(t)
}

// PrintStats renders this rank's counters as JSON. Suppressing the call
// entirely under SCIOTO_DISABLE_STATS / SCIOTO_DISABLE_PERNODE_STATS is
// the caller's responsibility, so PrintStats always reflects the live
// snapshot and tests can inspect it unconditionally.
func (c *Collection) PrintStats() string {
	return string(c.counters.Snapshot(c.rank).AppendJSON(nil))
}

// Reduce performs a typed collective reduction across every rank in the
// job (gtc_reduce), dispatching to the connection's int64 or float64
// reducer based on T. It is a package-level function rather than a method
// because Go methods cannot introduce additional type parameters.
func Reduce[T int64 | float64](ctx context.Context, c *Collection, local T, op transport.ReduceOp) (T, error) {
	switch v := any(local).(type) {
	case int64:
		r, err := c.conn.ReduceInt64(ctx, v, op)
		return any(r).(T), err
	case float64:
		r, err := c.conn.ReduceFloat64(ctx, v, op)
		return any(r).(T), err
	default:
		panic("gtc: unreachable")
	}
}
