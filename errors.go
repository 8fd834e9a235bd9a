// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scioto

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by ProcessContext.Close when no open handle is
	// registered under the given id, including one already closed. Methods
	// of a destroyed task collection do not return it.
	ErrClosed = errors.New("scioto: task collection closed")

	// ErrNotTerminated is returned by Process when it stops (e.g. a
	// deadline or context cancellation) before the collective detector
	// observed termination.
	ErrNotTerminated = errors.New("scioto: process loop exited before termination")
)

// AssertionError wraps an invariant violation detected at runtime —
// something spec.md documents as "must never happen" rather than a
// recoverable error. It carries the offending value as Cause so
// errors.Is/errors.As can match through it, mirroring eventloop.PanicError.
type AssertionError struct {
	Invariant string
	Cause     error
}

func (e *AssertionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scioto: assertion failed (%s): %v", e.Invariant, e.Cause)
	}
	return fmt.Sprintf("scioto: assertion failed (%s)", e.Invariant)
}

// Unwrap returns the underlying cause, if any, for use with errors.Is/As.
func (e *AssertionError) Unwrap() error {
	return e.Cause
}

// AssertInvariant panics with an *AssertionError if cond is false. Reserved
// for invariants whose violation indicates a bug rather than caller misuse
// (which gets a returned error instead). The queue, taskclass, clod and gtc
// packages call through here rather than a bare panic, so recover-based
// harnesses can errors.As the failure back out; rmutex, term and transport
// panic with plain strings.
func AssertInvariant(cond bool, invariant string) {
	if !cond {
		panic(&AssertionError{Invariant: invariant})
	}
}
