package gtc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/scioto/queue"
	"github.com/joeycumines/scioto/taskclass"
	"github.com/joeycumines/scioto/transport"
)

func noopExecute(gtc any, t *taskclass.Task) {}

func newSingleRankCollection(t *testing.T, reg *taskclass.Registry, qtype queue.QType, cfg LdbalConfig) *Collection {
	t.Helper()
	g := NewGroup(1, reg, qtype, 64, 16, cfg)
	tg := transport.NewGroup(1)
	return g.Rank(0, tg.Conn(0))
}

func TestCollection_AddAndGetLocalBuf(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	require.NoError(t, c.Add(classID, []byte{1, 2, 3, 4}))

	task, ok := c.GetLocalBuf(0)
	require.True(t, ok)
	assert.Equal(t, classID, task.ClassID)
	assert.Equal(t, []byte{1, 2, 3, 4}, task.Body)
	assert.Equal(t, 0, task.CreatorRank)

	_, ok = c.GetLocalBuf(0)
	assert.False(t, ok, "queue should be drained after one pop")
}

func TestCollection_GetBuf_SingleRank_TerminatesWhenDrained(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	require.NoError(t, c.Add(classID, []byte{9, 9, 9, 9}))

	ctx := context.Background()

	task, terminated, err := c.GetBuf(ctx)
	require.NoError(t, err)
	assert.False(t, terminated)
	assert.Equal(t, classID, task.ClassID)
	c.Execute(&task)

	_, terminated, err = c.GetBuf(ctx)
	require.NoError(t, err)
	assert.True(t, terminated, "spawned==completed for a single rank should terminate immediately")
}

func TestCollection_InplaceCreateAndAdd(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(8, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	task, err := c.InplaceCreateAndAdd(classID)
	require.NoError(t, err)
	copy(task.Body, []byte("abcdefgh"))
	c.InplaceCreateAndAddFinish(task)

	got, ok := c.GetLocalBuf(0)
	require.True(t, ok)
	assert.Equal(t, []byte("abcdefgh"), got.Body)
}

func TestCollection_CloAssociateAndLookup(t *testing.T) {
	reg := taskclass.NewRegistry()
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)

	var x, y int
	idX := c.CloAssociate(&x)
	idY := c.CloAssociate(&y)
	assert.NotEqual(t, idX, idY)
	assert.Same(t, &x, c.CloLookup(idX))
	assert.Same(t, &y, c.CloLookup(idY))
}

func TestCollection_Process_ExecutesSpawnedTaskTree(t *testing.T) {
	reg := taskclass.NewRegistry()
	var executed atomic.Int64
	const depth = 4 // full binary tree: 2^(depth+1)-1 tasks
	classID := reg.Register(1, nil)
	reg.Lookup(classID).Execute = func(gtc any, tk *taskclass.Task) {
		executed.Add(1)
		c := gtc.(*Collection)
		d := tk.Body[0]
		if d < depth {
			_ = c.Add(classID, []byte{d + 1})
			_ = c.Add(classID, []byte{d + 1})
		}
	}

	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	require.NoError(t, c.Add(classID, []byte{0}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Process(ctx))

	want := int64(1<<(depth+1) - 1)
	assert.Equal(t, want, executed.Load())

	snap := c.counters.Snapshot(0)
	assert.Equal(t, snap.Spawned, snap.Completed, "conservation: every spawned task was completed")
	assert.Equal(t, want, snap.Completed)
}

func TestCollection_Steal_TakesHalfOfVictimsSharedWork(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	g := NewGroup(2, reg, queue.SAWS, 64, 16, cfg)
	tg := transport.NewGroup(2)
	c0 := g.Rank(0, tg.Conn(0))
	c1 := g.Rank(1, tg.Conn(1))

	for i := 0; i < 4; i++ {
		require.NoError(t, c0.Add(classID, []byte{byte(i), 0, 0, 0}))
	}
	// Publish half of rank 0's local work to its shared region, the way
	// GetBuf's first step does on every call.
	c0.q.Progress()

	task, found := c1.steal()
	require.True(t, found, "rank 1 should find stealable work on rank 0")
	assert.Equal(t, classID, task.ClassID)

	snap1 := c1.counters.Snapshot(1)
	assert.Equal(t, int64(1), snap1.Steals)
}

func TestCollection_Steal_NoOtherRanksFails(t *testing.T) {
	reg := taskclass.NewRegistry()
	reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	_, found := c.steal()
	assert.False(t, found, "a single-rank collection has no victims")
}

func TestCollection_EnableDisableStealing(t *testing.T) {
	reg := taskclass.NewRegistry()
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)

	assert.True(t, c.stealingEnabled.Load())
	c.DisableStealing()
	assert.False(t, c.stealingEnabled.Load())
	c.EnableStealing()
	assert.True(t, c.stealingEnabled.Load())
}

func TestCollection_SetExternalWorkAvail_LeftSetWhenLocalPopSucceeds(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)

	// Work is already local by the time GetBuf runs; SetExternalWorkAvail
	// must not prevent GetBuf from finding and returning it. The flag is
	// only consumed (reset to false) when GetBuf reaches it after an empty
	// local pop, which does not happen here.
	require.NoError(t, c.Add(classID, []byte{1, 2, 3, 4}))
	c.SetExternalWorkAvail(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, terminated, err := c.GetBuf(ctx)
	require.NoError(t, err)
	assert.False(t, terminated)
	assert.Equal(t, classID, task.ClassID)
	assert.True(t, c.externalWorkAvail.Load(), "PopHead satisfies the call before externalWorkAvail is even consulted, so the flag is left set")
}

func TestCollection_Destroy_ResetsQueue(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	require.NoError(t, c.Add(classID, []byte{1, 2, 3, 4}))

	require.NoError(t, c.Destroy())
	_, ok := c.GetLocalBuf(0)
	assert.False(t, ok)
}

func TestCollection_Reset_ClearsQueueAndDetector(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	require.NoError(t, c.Add(classID, []byte{1, 2, 3, 4}))

	require.NoError(t, c.Reset())
	_, ok := c.GetLocalBuf(0)
	assert.False(t, ok)

	_, terminated, err := c.GetBuf(context.Background())
	require.NoError(t, err)
	assert.True(t, terminated, "a freshly reset single-rank detector has spawned==completed==0")
}

func TestCollection_PrintStats_ReflectsCounters(t *testing.T) {
	reg := taskclass.NewRegistry()
	classID := reg.Register(4, noopExecute)
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	c := newSingleRankCollection(t, reg, queue.SAWS, cfg)
	require.NoError(t, c.Add(classID, []byte{1, 2, 3, 4}))

	task, _, err := c.GetBuf(context.Background())
	require.NoError(t, err)
	c.Execute(&task)

	out := c.PrintStats()
	assert.Contains(t, out, `"spawned":1`)
	assert.Contains(t, out, `"completed":1`)
}

func TestReduce_Int64Sum(t *testing.T) {
	reg := taskclass.NewRegistry()
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	g := NewGroup(3, reg, queue.SAWS, 64, 16, cfg)
	tg := transport.NewGroup(3)

	var wg sync.WaitGroup
	results := make([]int64, 3)
	errs := make([]error, 3)
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			c := g.Rank(r, tg.Conn(r))
			results[r], errs[r] = Reduce[int64](context.Background(), c, int64(r+1), transport.Sum)
		}(r)
	}
	wg.Wait()

	for r := 0; r < 3; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, int64(6), results[r])
	}
}

func TestReduce_Float64Max(t *testing.T) {
	reg := taskclass.NewRegistry()
	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)

	g := NewGroup(2, reg, queue.SAWS, 64, 16, cfg)
	tg := transport.NewGroup(2)

	var wg sync.WaitGroup
	results := make([]float64, 2)
	local := []float64{1.5, 9.25}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			c := g.Rank(r, tg.Conn(r))
			v, err := Reduce[float64](context.Background(), c, local[r], transport.Max)
			require.NoError(t, err)
			results[r] = v
		}(r)
	}
	wg.Wait()

	assert.Equal(t, 9.25, results[0])
	assert.Equal(t, 9.25, results[1])
}

func TestCollection_Process_TwoRanksConserveSpawnedAndCompleted(t *testing.T) {
	reg := taskclass.NewRegistry()
	var executed atomic.Int64
	classID := reg.Register(4, nil)
	reg.Lookup(classID).Execute = func(gtc any, t *taskclass.Task) {
		executed.Add(1)
	}

	cfg, err := ResolveLdbalConfig()
	require.NoError(t, err)
	g := NewGroup(2, reg, queue.SAWS, 256, 16, cfg)
	tg := transport.NewGroup(2)
	c0 := g.Rank(0, tg.Conn(0))
	c1 := g.Rank(1, tg.Conn(1))

	const total = 8
	for i := 0; i < total; i++ {
		require.NoError(t, c0.Add(classID, []byte{byte(i), 0, 0, 0}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = c0.Process(ctx) }()
	go func() { defer wg.Done(); errs[1] = c1.Process(ctx) }()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(total), executed.Load())

	s0 := c0.counters.Snapshot(0)
	s1 := c1.counters.Snapshot(1)
	assert.Equal(t, int64(total), s0.Spawned, "rank 0 spawned all the work")
	assert.Equal(t, s0.Spawned+s1.Spawned, s0.Completed+s1.Completed, "conservation across ranks")
}
