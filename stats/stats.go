// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package stats tracks per-rank task collection counters and renders them
// as JSON. The counter shape is grounded on eventloop's Metrics/
// QueueMetrics idiom: plain atomics for the hot increments, a snapshot
// copy taken under no lock (ints are read individually, so a snapshot can
// be momentarily inconsistent across fields — acceptable for a diagnostic
// dump, per spec.md's SCIOTO_UNORDERED_STATS acknowledging exactly this).
package stats

import (
	"strconv"
	"sync/atomic"

	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// Counters is one rank's live counter block, embedded in gtc.Collection.
type Counters struct {
	Spawned              atomic.Int64
	Completed            atomic.Int64
	Steals               atomic.Int64
	AbortedSteals        atomic.Int64
	FailedLockedSteals   atomic.Int64
	FailedUnlockedSteals atomic.Int64
	Releases             atomic.Int64
	Reacquires           atomic.Int64
}

// Snapshot is a point-in-time copy of Counters for one rank, plus a
// derived steal efficiency ratio.
type Snapshot struct {
	Rank                 int
	Spawned              int64
	Completed            int64
	Steals               int64
	AbortedSteals        int64
	FailedLockedSteals   int64
	FailedUnlockedSteals int64
	Releases             int64
	Reacquires           int64
	// StealEfficiency is Steals / (Steals + AbortedSteals + FailedLockedSteals
	// + FailedUnlockedSteals), or 0 if no attempts were made.
	StealEfficiency float64
}

// Snapshot copies c's current values for rank.
func (c *Counters) Snapshot(rank int) Snapshot {
	s := Snapshot{
		Rank:                 rank,
		Spawned:              c.Spawned.Load(),
		Completed:            c.Completed.Load(),
		Steals:               c.Steals.Load(),
		AbortedSteals:        c.AbortedSteals.Load(),
		FailedLockedSteals:   c.FailedLockedSteals.Load(),
		FailedUnlockedSteals: c.FailedUnlockedSteals.Load(),
		Releases:             c.Releases.Load(),
		Reacquires:           c.Reacquires.Load(),
	}
	attempts := s.Steals + s.AbortedSteals + s.FailedLockedSteals + s.FailedUnlockedSteals
	if attempts > 0 {
		s.StealEfficiency = float64(s.Steals) / float64(attempts)
	}
	return s
}

// AppendJSON appends s as a compact JSON object to dst, using
// jsonenc.AppendFloat64 for the one floating-point field so its formatting
// matches the rest of the pack's structured-logging output exactly.
func (s Snapshot) AppendJSON(dst []byte) []byte {
	dst = append(dst, `{"rank":`...)
	dst = strconv.AppendInt(dst, int64(s.Rank), 10)
	dst = append(dst, `,"spawned":`...)
	dst = strconv.AppendInt(dst, s.Spawned, 10)
	dst = append(dst, `,"completed":`...)
	dst = strconv.AppendInt(dst, s.Completed, 10)
	dst = append(dst, `,"steals":`...)
	dst = strconv.AppendInt(dst, s.Steals, 10)
	dst = append(dst, `,"aborted_steals":`...)
	dst = strconv.AppendInt(dst, s.AbortedSteals, 10)
	dst = append(dst, `,"failed_locked_steals":`...)
	dst = strconv.AppendInt(dst, s.FailedLockedSteals, 10)
	dst = append(dst, `,"failed_unlocked_steals":`...)
	dst = strconv.AppendInt(dst, s.FailedUnlockedSteals, 10)
	dst = append(dst, `,"releases":`...)
	dst = strconv.AppendInt(dst, s.Releases, 10)
	dst = append(dst, `,"reacquires":`...)
	dst = strconv.AppendInt(dst, s.Reacquires, 10)
	dst = append(dst, `,"steal_efficiency":`...)
	dst = jsonenc.AppendFloat64(dst, s.StealEfficiency)
	dst = append(dst, '}')
	return dst
}

// AppendJSONArray appends a JSON array of snapshots to dst.
func AppendJSONArray(dst []byte, snaps []Snapshot) []byte {
	dst = append(dst, '[')
	for i, s := range snaps {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = s.AppendJSON(dst)
	}
	dst = append(dst, ']')
	return dst
}

// Aggregate sums a set of per-rank snapshots into one collective total,
// recomputing StealEfficiency from the summed attempt counts rather than
// averaging the per-rank ratios.
func Aggregate(snaps []Snapshot) Snapshot {
	var out Snapshot
	out.Rank = -1
	for _, s := range snaps {
		out.Spawned += s.Spawned
		out.Completed += s.Completed
		out.Steals += s.Steals
		out.AbortedSteals += s.AbortedSteals
		out.FailedLockedSteals += s.FailedLockedSteals
		out.FailedUnlockedSteals += s.FailedUnlockedSteals
		out.Releases += s.Releases
		out.Reacquires += s.Reacquires
	}
	attempts := out.Steals + out.AbortedSteals + out.FailedLockedSteals + out.FailedUnlockedSteals
	if attempts > 0 {
		out.StealEfficiency = float64(out.Steals) / float64(attempts)
	}
	return out
}
