// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package term implements the tree-based termination detector of
// spec.md §3/§4.8: every rank tracks how many tasks it has spawned and
// completed, a binary tree over rank ids aggregates those two counters,
// and the root declares termination once the aggregate has shown
// spawned == completed for two consecutive rounds — a single quiet round
// is not enough, since a task can be "in flight" between being counted
// spawned on one rank and counted completed on another.
package term

import (
	"context"
	"sync"
)

// parent returns the tree parent of rank r, or -1 for the root.
func parent(r int) int {
	if r == 0 {
		return -1
	}
	return (r - 1) / 2
}

// children returns r's children within a size-n tree.
func children(r, n int) []int {
	var c []int
	if left := 2*r + 1; left < n {
		c = append(c, left)
	}
	if right := 2*r + 2; right < n {
		c = append(c, right)
	}
	return c
}

type roundContrib struct {
	spawned, completed int64
}

// Tree is the shared, collectively-constructed termination state for one
// task collection's rank set. Every rank holds a *Detector view onto it.
type Tree struct {
	n    int
	mu   sync.Mutex
	cond *sync.Cond

	gen     int
	arrived int
	contrib []roundContrib

	prevSpawned, prevCompleted int64
	stableRounds               int
	terminated                 bool
}

// NewTree constructs detector state for n ranks. It must be called once,
// collectively, before any rank calls Rank or Poll.
func NewTree(n int) *Tree {
	if n < 1 {
		panic("term: n must be >= 1")
	}
	t := &Tree{
		n:            n,
		contrib:      make([]roundContrib, n),
		prevSpawned:  -1,
		prevCompleted: -1,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Detector is one rank's handle onto a shared Tree.
type Detector struct {
	tree               *Tree
	rank               int
	spawned, completed int64
	mu                 sync.Mutex
}

// Rank returns the detector view for rank r.
func (t *Tree) Rank(r int) *Detector {
	if r < 0 || r >= t.n {
		panic("term: rank out of range")
	}
	return &Detector{tree: t, rank: r}
}

// Spawn records k newly created tasks attributed to this rank.
func (d *Detector) Spawn(k int64) {
	d.mu.Lock()
	d.spawned += k
	d.mu.Unlock()
}

// Complete records k tasks finishing execution on this rank.
func (d *Detector) Complete(k int64) {
	d.mu.Lock()
	d.completed += k
	d.mu.Unlock()
}

// Poll runs one collective detection round and reports whether the whole
// tree has terminated. Every rank must call Poll the same number of
// times; it blocks until all ranks have posted their counters for the
// current round.
//
// For n==1 there is no collective round to run: a single rank can only
// terminate when its own spawned count equals its completed count.
func (d *Detector) Poll(ctx context.Context) (bool, error) {
	t := d.tree
	if t.n == 1 {
		d.mu.Lock()
		done := d.spawned == d.completed
		d.mu.Unlock()
		return done, nil
	}

	d.mu.Lock()
	spawned, completed := d.spawned, d.completed
	d.mu.Unlock()

	t.mu.Lock()
	gen := t.gen
	t.contrib[d.rank] = roundContrib{spawned, completed}
	t.arrived++

	if t.arrived == t.n {
		sumS, sumC := t.subtreeSum(0)
		quiet := sumS == sumC && sumS == t.prevSpawned && sumC == t.prevCompleted
		if quiet {
			t.stableRounds++
		} else {
			t.stableRounds = 0
		}
		t.prevSpawned, t.prevCompleted = sumS, sumC
		t.terminated = sumS == sumC && t.stableRounds >= 1
		t.arrived = 0
		t.gen++
		term := t.terminated
		t.mu.Unlock()
		t.cond.Broadcast()
		return term, nil
	}

	for t.gen == gen {
		done := make(chan struct{})
		go func() {
			t.mu.Lock()
			for t.gen == gen {
				t.cond.Wait()
			}
			t.mu.Unlock()
			close(done)
		}()
		t.mu.Unlock()
		select {
		case <-done:
			t.mu.Lock()
		case <-ctx.Done():
			t.mu.Lock()
			err := ctx.Err()
			t.mu.Unlock()
			return false, err
		}
	}
	term := t.terminated
	t.mu.Unlock()
	return term, nil
}

// subtreeSum recurses down the tree from r, summing every descendant's
// last-posted contribution (spec.md §4.8's DOWN/UP token is realized here
// as an ordinary tree walk over shared memory rather than messages, since
// every rank lives in the same address space).
func (t *Tree) subtreeSum(r int) (spawned, completed int64) {
	c := t.contrib[r]
	spawned, completed = c.spawned, c.completed
	for _, ch := range children(r, t.n) {
		cs, cc := t.subtreeSum(ch)
		spawned += cs
		completed += cc
	}
	return
}

// Reset clears all detector state for reuse across task collection
// lifetimes (spec.md: detectors are reusable, not one-shot).
func (t *Tree) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen = 0
	t.arrived = 0
	for i := range t.contrib {
		t.contrib[i] = roundContrib{}
	}
	t.prevSpawned, t.prevCompleted = -1, -1
	t.stableRounds = 0
	t.terminated = false
}

// Reset zeroes this rank's local counters.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.spawned, d.completed = 0, 0
	d.mu.Unlock()
}
