// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gtc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll drives Process concurrently across every rank's Collection,
// mirroring how a real job launches one worker per rank. It returns the
// first error any rank's Process loop returns; a context cancellation
// propagates to every rank via ctx, same as it would to a single caller
// of GetBuf.
func RunAll(ctx context.Context, collections []*Collection) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range collections {
		c := c
		g.Go(func() error { return c.Process(ctx) })
	}
	return g.Wait()
}
