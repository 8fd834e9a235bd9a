// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package transport models the bulk-synchronous collective substrate that
// the work-stealing core is built on top of: a fixed-size group of ranks,
// a reusable barrier, and typed reductions.
//
// The one-sided memory operations spec.md assigns to this layer (remote
// get/put/atomic-swap/fetch-add/or/and) are deliberately not modeled here.
// In a real SHMEM-style substrate a rank's memory is only reachable through
// those indirections; inside a single Go process every rank is just a
// goroutine sharing the same address space, so the idiomatic translation is
// for queue/rmutex/clod to hold sync/atomic fields directly and let any
// goroutine touch them — no put/get envelope required. transport.Conn is
// left to cover the operations that genuinely cross a synchronization
// boundary: collective barrier and reduce.
package transport

import (
	"context"
	"fmt"
	"sync"
)

// ReduceOp selects the collective reduction applied across ranks.
type ReduceOp int

const (
	Sum ReduceOp = iota
	Min
	Max
)

func (op ReduceOp) String() string {
	switch op {
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("ReduceOp(%d)", int(op))
	}
}

// Conn is a rank's handle onto the collective substrate.
type Conn interface {
	Rank() int
	Size() int
	// Barrier blocks until every rank in the group has called Barrier for
	// the current generation.
	Barrier(ctx context.Context) error
	// ReduceInt64 performs a collective reduction of local across all ranks.
	ReduceInt64(ctx context.Context, local int64, op ReduceOp) (int64, error)
	// ReduceFloat64 performs a collective reduction of local across all ranks.
	ReduceFloat64(ctx context.Context, local float64, op ReduceOp) (float64, error)
}

// Group is an in-process stand-in for a job's collective communicator.
// It is the one concrete substrate implementation the core ships with;
// production deployments are expected to supply their own Conn backed by
// a real one-sided transport.
type Group struct {
	size int

	mu      sync.Mutex
	gen     int
	arrived int
	cond    *sync.Cond

	reduceMu  sync.Mutex
	reduceGen int
	reduceN   int
	reduceOp  ReduceOp
	accI64    int64
	accF64    float64
	reduceSig chan struct{}
}

// NewGroup creates a Group of the given size. size must be >= 1.
func NewGroup(size int) *Group {
	if size < 1 {
		panic("transport: group size must be >= 1")
	}
	g := &Group{size: size}
	g.cond = sync.NewCond(&g.mu)
	g.reduceSig = make(chan struct{})
	return g
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.size }

// Conn returns the Conn for the given rank, valid for the lifetime of g.
func (g *Group) Conn(rank int) Conn {
	if rank < 0 || rank >= g.size {
		panic("transport: rank out of range")
	}
	return &conn{g: g, rank: rank}
}

type conn struct {
	g    *Group
	rank int
}

func (c *conn) Rank() int { return c.rank }
func (c *conn) Size() int { return c.g.size }

func (c *conn) Barrier(ctx context.Context) error {
	g := c.g
	g.mu.Lock()
	gen := g.gen
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.gen++
		g.cond.Broadcast()
		g.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		for g.gen == gen {
			g.cond.Wait()
		}
		g.mu.Unlock()
		close(done)
	}()
	g.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reduceRound runs one collective reduction; every rank must call it
// exactly once per logical round, with a matching op.
func (c *conn) reduceRound(ctx context.Context, op ReduceOp, contribute func()) error {
	g := c.g
	g.reduceMu.Lock()
	if g.reduceN == 0 {
		g.reduceOp = op
		switch op {
		case Sum:
			g.accI64, g.accF64 = 0, 0
		case Min:
			g.accI64, g.accF64 = maxInt64, maxFloat64
		case Max:
			g.accI64, g.accF64 = minInt64, minFloat64
		}
	}
	contribute()
	g.reduceN++
	if g.reduceN == g.size {
		g.reduceN = 0
		sig := g.reduceSig
		g.reduceSig = make(chan struct{})
		close(sig)
		g.reduceMu.Unlock()
		return nil
	}
	sig := g.reduceSig
	g.reduceMu.Unlock()
	select {
	case <-sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const (
	maxInt64   = int64(^uint64(0) >> 1)
	minInt64   = -maxInt64 - 1
	maxFloat64 = 1.7976931348623157e+308
	minFloat64 = -maxFloat64
)

func (c *conn) ReduceInt64(ctx context.Context, local int64, op ReduceOp) (int64, error) {
	g := c.g
	err := c.reduceRound(ctx, op, func() {
		switch op {
		case Sum:
			g.accI64 += local
		case Min:
			if local < g.accI64 {
				g.accI64 = local
			}
		case Max:
			if local > g.accI64 {
				g.accI64 = local
			}
		}
	})
	if err != nil {
		return 0, err
	}
	g.reduceMu.Lock()
	v := g.accI64
	g.reduceMu.Unlock()
	return v, nil
}

func (c *conn) ReduceFloat64(ctx context.Context, local float64, op ReduceOp) (float64, error) {
	g := c.g
	err := c.reduceRound(ctx, op, func() {
		switch op {
		case Sum:
			g.accF64 += local
		case Min:
			if local < g.accF64 {
				g.accF64 = local
			}
		case Max:
			if local > g.accF64 {
				g.accF64 = local
			}
		}
	})
	if err != nil {
		return 0, err
	}
	g.reduceMu.Lock()
	v := g.accF64
	g.reduceMu.Unlock()
	return v, nil
}
