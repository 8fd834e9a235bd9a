package scioto

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func TestLogger_DefaultsToNonNil(t *testing.T) {
	assert.NotNil(t, Logger())
}

func TestSetLogger_ReplacesAndResetsOnNil(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	custom := stumpy.L.New(
		stumpy.L.WithStumpy(),
		logiface.WithLevel[*stumpy.Event](logiface.LevelError),
	)
	SetLogger(custom)
	assert.Same(t, custom, Logger())

	SetLogger(nil)
	got := Logger()
	assert.NotNil(t, got)
	assert.NotSame(t, custom, got, "nil resets to a fresh default logger")
}
