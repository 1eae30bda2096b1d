package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestSetLevelControlsEnabled(t *testing.T) {
	t.Cleanup(func() { SetLevel(LevelInfo) })

	SetLevel(LevelError)
	assert.False(t, Enabled(LevelInfo))
	assert.True(t, Enabled(LevelError))

	SetLevel(LevelDebug)
	assert.True(t, Enabled(LevelDebug))
}

func TestCleanKVsDropsMalformedPairs(t *testing.T) {
	got := cleanKVs([]any{"a", 1, 2, "b", "c"})
	assert.Equal(t, []any{"a", 1}, got)
}
