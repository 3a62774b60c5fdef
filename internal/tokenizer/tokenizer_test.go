package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	tok := NewHeuristic("test", 4)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "  \n\t ", 0},
		{"short word", "hola", 1},
		{"long word splits", "universidad", 3},
		{"punctuation counts", "a, b.", 4},
		{"words separated", "uno dos", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Count(tt.text); got != tt.want {
				t.Fatalf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountMonotonicInLength(t *testing.T) {
	tok := NewHeuristic("test", 4)
	text := "El máster universitario en inteligencia artificial."
	prev := 0
	for i := 1; i <= len(text); i++ {
		n := tok.Count(text[:i])
		require.GreaterOrEqual(t, n, prev)
		prev = n
	}
}

func TestCountIgnoresCutRunes(t *testing.T) {
	tok := NewHeuristic("test", 4)
	whole := "año"
	// Slice through the middle of the two-byte ñ.
	cut := whole[:2]
	require.Equal(t, tok.Count("a"), tok.Count(cut))
	require.LessOrEqual(t, tok.Count(cut), tok.Count(whole))
}

func TestTruncate(t *testing.T) {
	tok := NewHeuristic("test", 4)

	short := "hola mundo"
	require.Equal(t, short, tok.Truncate(short, 10))

	long := strings.Repeat("palabra ", 100)
	got := tok.Truncate(long, 20)
	require.True(t, strings.HasSuffix(got, "..."))
	require.LessOrEqual(t, tok.Count(strings.TrimSuffix(got, "...")), 19)

	require.Equal(t, "", tok.Truncate(long, 0))
}

func TestLoadSharesInstances(t *testing.T) {
	a := Load("Qwen/Qwen3-8B")
	b := Load("Qwen/Qwen3-8B")
	require.Same(t, a, b)

	other := Load("BAAI/bge-small-en-v1.5")
	require.NotSame(t, a, other)
	require.Equal(t, "BAAI/bge-small-en-v1.5", other.Name())
}
