// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gtc

import (
	"github.com/joeycumines/scioto"
	"github.com/joeycumines/scioto/queue"
	"github.com/joeycumines/scioto/rmutex"
	"github.com/joeycumines/scioto/taskclass"
	"github.com/joeycumines/scioto/term"
	"github.com/joeycumines/scioto/transport"
)

// Group is the collectively-constructed state shared by every rank's view
// of one task collection: the per-rank queues (visible to every other
// rank so a thief can address a victim directly), the SDC mutex set (nil
// under SAWS), the termination tree, and the task class registry
// (spec.md: "process-local; established pre-steady-state" — shared here
// since every rank lives in the same Go process, but populated
// collectively in lock-step exactly as the spec requires).
type Group struct {
	n           int
	qtype       queue.QType
	queues      []queue.Queue
	mutexes     *rmutex.Set
	tree        *term.Tree
	classes     *taskclass.Registry
	cfg         LdbalConfig
	cloCapacity int
}

// NewGroup constructs a Group for n ranks. classes must already have every
// class registered (spec.md §4.1: registration is collective and must
// happen before any rank calls gtc_create).
func NewGroup(n int, classes *taskclass.Registry, qtype queue.QType, capacity, cloCapacity int, cfg LdbalConfig) *Group {
	scioto.AssertInvariant(n >= 1, "gtc: n must be >= 1")
	maxBody := classes.LargestBodySize()
	queues := make([]queue.Queue, n)
	var mutexes *rmutex.Set
	if qtype == queue.SDC {
		mutexes = rmutex.NewSet(n)
	}
	for r := 0; r < n; r++ {
		switch qtype {
		case queue.SDC:
			queues[r] = queue.NewSDC(r, mutexes, capacity, maxBody)
		case queue.SAWS:
			queues[r] = queue.NewSAWS(r, capacity, maxBody)
		default:
			scioto.AssertInvariant(false, "gtc: unknown queue type")
		}
	}
	return &Group{
		n:           n,
		qtype:       qtype,
		queues:      queues,
		mutexes:     mutexes,
		tree:        term.NewTree(n),
		classes:     classes,
		cfg:         cfg,
		cloCapacity: cloCapacity,
	}
}

// Rank returns the per-rank Collection view for r, bound to conn.
func (g *Group) Rank(r int, conn transport.Conn) *Collection {
	scioto.AssertInvariant(r >= 0 && r < g.n, "gtc: rank out of range")
	return newCollection(g, r, conn)
}
