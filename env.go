// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scioto

import (
	"os"
	"strconv"
)

// EnvConfig is a one-time snapshot of the process's environment, read at
// Init and never re-read afterward — matching how the substrate's own
// SHMEM_* variables are only consulted at startup (spec.md §8).
type EnvConfig struct {
	DisableStats         bool
	DisablePerNodeStats   bool
	ExtendedStats        bool
	UnorderedStats       bool
	ReclaimFreq          int
	ShmemBacktrace       bool
	ShmemTrapOnAbort     bool
}

// ReadEnvConfig snapshots the SCIOTO_*/GTC_RECLAIM_FREQ/SHMEM_* variables
// from the process environment (spec.md §8).
func ReadEnvConfig() EnvConfig {
	return EnvConfig{
		DisableStats:        envBool("SCIOTO_DISABLE_STATS"),
		DisablePerNodeStats: envBool("SCIOTO_DISABLE_PERNODE_STATS"),
		ExtendedStats:       envBool("SCIOTO_EXTENDED_STATS"),
		UnorderedStats:      envBool("SCIOTO_UNORDERED_STATS"),
		ReclaimFreq:         envInt("GTC_RECLAIM_FREQ", 64),
		ShmemBacktrace:      envBool("SHMEM_BACKTRACE"),
		ShmemTrapOnAbort:    envBool("SHMEM_TRAP_ON_ABORT"),
	}
}

func envBool(key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v != ""
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
