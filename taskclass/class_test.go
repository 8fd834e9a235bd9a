package taskclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	id := r.Register(16, func(any, *Task) {})
	assert.Equal(t, 0, id)

	cls := r.Lookup(id)
	assert.Equal(t, 16, cls.BodySize)
	assert.Equal(t, 0, cls.ID)
}

func TestRegistry_LargestBodySize(t *testing.T) {
	r := NewRegistry()
	r.Register(4, nil)
	r.Register(64, nil)
	r.Register(8, nil)
	assert.Equal(t, 64, r.LargestBodySize())
}

func TestRegistry_CreateDestroyReuse(t *testing.T) {
	r := NewRegistry()
	id := r.Register(8, nil)

	t1 := r.Create(id)
	require.Len(t, t1.Body, 8)
	t1.Priority = 5
	r.Destroy(t1)

	t2 := r.Create(id)
	assert.Same(t, t1, t2, "Create should reuse the one-entry free list")
	assert.Equal(t, 0, t2.Priority, "Create resets priority on reuse")
}

func TestTask_BodyAs(t *testing.T) {
	task := &Task{Body: make([]byte, 16)}
	view := task.BodyAs(8)
	assert.Len(t, view, 8)
	assert.Panics(t, func() { task.BodyAs(32) })
}

func TestRegistry_Lookup_OutOfRangePanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Lookup(0) })
}
