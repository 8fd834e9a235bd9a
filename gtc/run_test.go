package gtc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/scioto/queue"
	"github.com/joeycumines/scioto/taskclass"
	"github.com/joeycumines/scioto/transport"
)

func TestRunAll_DrainsAllRanksToTermination(t *testing.T) {
	reg := taskclass.NewRegistry()
	var executed atomic.Int64
	classID := reg.Register(4, nil)
	reg.Lookup(classID).Execute = func(gtc any, t *taskclass.Task) {
		executed.Add(1)
	}

	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	g := NewGroup(3, reg, queue.SAWS, 256, 16, cfg)
	tg := transport.NewGroup(3)

	collections := make([]*Collection, 3)
	for r := range collections {
		collections[r] = g.Rank(r, tg.Conn(r))
	}

	const total = 12
	for i := 0; i < total; i++ {
		require.NoError(t, collections[0].Add(classID, []byte{byte(i), 0, 0, 0}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, RunAll(ctx, collections))
	assert.Equal(t, int64(total), executed.Load())
}

func TestRunAll_PropagatesProcessError(t *testing.T) {
	reg := taskclass.NewRegistry()
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	g := NewGroup(2, reg, queue.SAWS, 16, 16, cfg)
	tg := transport.NewGroup(2)
	c0 := g.Rank(0, tg.Conn(0))
	c1 := g.Rank(1, tg.Conn(1))

	// One unmatched spawn on rank 0, with no corresponding task ever
	// enqueued, keeps spawned != completed forever: the collective
	// detector can never report quiet, so a cancelled context is the
	// only way either rank's Process loop returns.
	c0.detector.Spawn(1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = RunAll(ctx, []*Collection{c0, c1})
	assert.Error(t, err)
}
