// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package gtc implements the task collection dispatcher of spec.md
// §4.6/§4.7/§6: the get_buf steal loop, add/execute, and the ldbal_cfg
// configuration surface, built on top of queue, term, clod, taskclass,
// and transport.
package gtc

import (
	"fmt"

	"github.com/joeycumines/scioto/queue"
)

// TargetSelection chooses how select_target picks the next steal victim.
type TargetSelection int

const (
	Random TargetSelection = iota
	RoundRobin
)

func (t TargetSelection) String() string {
	switch t {
	case Random:
		return "random"
	case RoundRobin:
		return "round-robin"
	default:
		return fmt.Sprintf("TargetSelection(%d)", int(t))
	}
}

// LdbalConfig is the exhaustive ldbal_cfg option set of spec.md §6.
// LocalSearchFactor is accepted and stored for API parity but has no
// effect: this translation runs every rank as a goroutine in one address
// space, so there is no NUMA-node grouping for it to bias toward — see
// DESIGN.md.
type LdbalConfig struct {
	StealingEnabled        bool
	TargetSelection        TargetSelection
	StealMethod            queue.PopPolicy
	StealsCanAbort         bool
	MaxStealRetries        int
	MaxStealAttemptsLocal  int
	MaxStealAttemptsRemote int
	ChunkSize              int
	LocalSearchFactor      int
}

// Option configures an LdbalConfig, mirroring eventloop's LoopOption
// functional-options shape.
type Option interface {
	apply(*LdbalConfig) error
}

type optionFunc func(*LdbalConfig) error

func (f optionFunc) apply(c *LdbalConfig) error { return f(c) }

func WithStealingEnabled(enabled bool) Option {
	return optionFunc(func(c *LdbalConfig) error {
		c.StealingEnabled = enabled
		return nil
	})
}

func WithTargetSelection(s TargetSelection) Option {
	return optionFunc(func(c *LdbalConfig) error {
		c.TargetSelection = s
		return nil
	})
}

func WithStealMethod(m queue.PopPolicy) Option {
	return optionFunc(func(c *LdbalConfig) error {
		c.StealMethod = m
		return nil
	})
}

func WithStealsCanAbort(canAbort bool) Option {
	return optionFunc(func(c *LdbalConfig) error {
		c.StealsCanAbort = canAbort
		return nil
	})
}

// WithMaxStealRetries sets the per-target retry cap. Negative means
// infinite retries against the current victim before select_target moves
// on (spec.md §6 table).
func WithMaxStealRetries(n int) Option {
	return optionFunc(func(c *LdbalConfig) error {
		c.MaxStealRetries = n
		return nil
	})
}

func WithMaxStealAttemptsLocal(n int) Option {
	return optionFunc(func(c *LdbalConfig) error {
		if n < 1 {
			return fmt.Errorf("gtc: max_steal_attempts_local must be >= 1, got %d", n)
		}
		c.MaxStealAttemptsLocal = n
		return nil
	})
}

func WithMaxStealAttemptsRemote(n int) Option {
	return optionFunc(func(c *LdbalConfig) error {
		if n < 1 {
			return fmt.Errorf("gtc: max_steal_attempts_remote must be >= 1, got %d", n)
		}
		c.MaxStealAttemptsRemote = n
		return nil
	})
}

func WithChunkSize(n int) Option {
	return optionFunc(func(c *LdbalConfig) error {
		if n < 1 {
			return fmt.Errorf("gtc: chunk_size must be >= 1, got %d", n)
		}
		c.ChunkSize = n
		return nil
	})
}

func WithLocalSearchFactor(percent int) Option {
	return optionFunc(func(c *LdbalConfig) error {
		if percent < 0 || percent > 100 {
			return fmt.Errorf("gtc: local_search_factor must be in [0,100], got %d", percent)
		}
		c.LocalSearchFactor = percent
		return nil
	})
}

// ResolveLdbalConfig applies opts over the documented defaults, mirroring
// eventloop's resolveLoopOptions.
func ResolveLdbalConfig(opts ...Option) (LdbalConfig, error) {
	cfg := LdbalConfig{
		StealingEnabled:        true,
		TargetSelection:        Random,
		StealMethod:            queue.Half,
		StealsCanAbort:         true,
		MaxStealRetries:        8,
		MaxStealAttemptsLocal:  4,
		MaxStealAttemptsRemote: 3,
		ChunkSize:              1,
		LocalSearchFactor:      0,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(&cfg); err != nil {
			return LdbalConfig{}, err
		}
	}
	return cfg, nil
}
