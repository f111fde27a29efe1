package common

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc... [truncated]", Truncate("abcdef", 3))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// each Devanagari letter is three bytes
	s := "नमस्ते"
	for max := 1; max < len(s); max++ {
		out := Truncate(s, max)
		assert.True(t, utf8.ValidString(out), "max=%d", max)
	}
	assert.Equal(t, "न... [truncated]", Truncate(s, 4))
}
