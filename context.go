// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package scioto is the root of the work-stealing runtime: process
// lifecycle (Init/Fini), the portable task-collection handle table
// (spec.md §4.6/§6 "global handle table"), structured logging, error
// types, and environment configuration. The queue algorithms, task class
// registry, CLOD, remote mutex, termination detector, and task collection
// dispatcher live in their own sub-packages and are wired together here
// and in package gtc.
package scioto

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/scioto/transport"
)

// Handle is anything a ProcessContext's handle table can own and later
// close collectively. gtc.Collection satisfies this without either
// package importing the other.
type Handle interface {
	Destroy() error
}

// ProcessContext is the collectively-initialized, per-rank runtime handle
// (spec.md §6 gtc_init/gtc_fini). It owns the rank's view of the
// collective substrate and the table of open task collections.
type ProcessContext struct {
	conn transport.Conn
	env  EnvConfig

	mu      sync.Mutex
	next    int
	handles map[int]Handle
}

// Init performs gtc_init: snapshots the environment and binds this rank's
// view of the collective substrate. It must be called once per rank,
// before any other call in this package or its sub-packages.
func Init(conn transport.Conn) *ProcessContext {
	return &ProcessContext{
		conn:    conn,
		env:     ReadEnvConfig(),
		handles: make(map[int]Handle),
	}
}

// Fini performs gtc_fini: destroys every handle still open on this rank
// concurrently, then barriers so no rank proceeds past shutdown while a
// peer is still draining. Destroy calls share no state across handles, so
// an errgroup fans them out instead of destroying the table serially;
// the first error any of them returns is what Fini reports.
func (p *ProcessContext) Fini(ctx context.Context) error {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[int]Handle)
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, h := range handles {
		h := h
		g.Go(func() error { return h.Destroy() })
	}
	firstErr := g.Wait()

	if err := p.conn.Barrier(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Conn returns this rank's collective substrate connection.
func (p *ProcessContext) Conn() transport.Conn { return p.conn }

// Rank returns this process's rank within the job.
func (p *ProcessContext) Rank() int { return p.conn.Rank() }

// Size returns the total number of ranks in the job.
func (p *ProcessContext) Size() int { return p.conn.Size() }

// Env returns the environment snapshot taken at Init.
func (p *ProcessContext) Env() EnvConfig { return p.env }

// Register adds h to the handle table and returns its portable id
// (spec.md §4.6 "returns a portable handle via a global handle table").
func (p *ProcessContext) Register(h Handle) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.handles[id] = h
	return id
}

// Lookup resolves a handle id back to its Handle.
func (p *ProcessContext) Lookup(id int) (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[id]
	return h, ok
}

// Close destroys and forgets the handle registered under id.
func (p *ProcessContext) Close(id int) error {
	p.mu.Lock()
	h, ok := p.handles[id]
	if ok {
		delete(p.handles, id)
	}
	p.mu.Unlock()
	if !ok {
		return ErrClosed
	}
	return h.Destroy()
}
