// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scioto

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Log is the event type every logger in this module emits; aliasing it
// keeps the generic instantiation out of every call site.
type Log = logiface.Logger[*stumpy.Event]

var globalLogger struct {
	sync.RWMutex
	logger *Log
}

func init() {
	globalLogger.logger = defaultLogger()
}

func defaultLogger() *Log {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		logiface.WithLevel[*stumpy.Event](logiface.LevelInformational),
	)
}

// SetLogger replaces the package-level logger; a gtc.Collection captures
// the logger current when it is constructed. Mirrors eventloop's
// SetStructuredLogger: a package-level global is appropriate here because
// logging is a cross-cutting infrastructure concern shared by every rank
// in a job, not a per-instance configuration surface.
func SetLogger(l *Log) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	if l == nil {
		l = defaultLogger()
	}
	globalLogger.logger = l
}

func getLogger() *Log {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// Logger returns the current package-level logger.
func Logger() *Log {
	return getLogger()
}
