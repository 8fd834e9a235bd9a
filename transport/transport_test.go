package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_ConnRankAndSize(t *testing.T) {
	g := NewGroup(3)
	c := g.Conn(1)
	assert.Equal(t, 1, c.Rank())
	assert.Equal(t, 3, c.Size())
}

func TestGroup_BarrierReleasesAllWaiters(t *testing.T) {
	g := NewGroup(3)
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			err := g.Conn(r).Barrier(context.Background())
			assert.NoError(t, err)
		}(r)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier never released all waiters")
	}
}

func TestGroup_BarrierContextCancel(t *testing.T) {
	g := NewGroup(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// Only one of two ranks arrives; the barrier must not release.
	err := g.Conn(0).Barrier(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGroup_ReduceSum(t *testing.T) {
	g := NewGroup(3)
	results := make([]int64, 3)
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			v, err := g.Conn(r).ReduceInt64(context.Background(), int64(r+1), Sum)
			require.NoError(t, err)
			results[r] = v
		}(r)
	}
	wg.Wait()
	for _, v := range results {
		assert.Equal(t, int64(6), v, "sum of 1+2+3")
	}
}

func TestGroup_ReduceMaxFloat(t *testing.T) {
	g := NewGroup(2)
	var wg sync.WaitGroup
	results := make([]float64, 2)
	inputs := []float64{1.5, 9.25}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			v, err := g.Conn(r).ReduceFloat64(context.Background(), inputs[r], Max)
			require.NoError(t, err)
			results[r] = v
		}(r)
	}
	wg.Wait()
	assert.Equal(t, 9.25, results[0])
	assert.Equal(t, 9.25, results[1])
}

func TestReduceOp_String(t *testing.T) {
	assert.Equal(t, "sum", Sum.String())
	assert.Equal(t, "min", Min.String())
	assert.Equal(t, "max", Max.String())
}

func TestNewGroup_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { NewGroup(0) })
}
