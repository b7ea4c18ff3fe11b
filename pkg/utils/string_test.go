package utils_test

import (
	"strings"
	"testing"

	"github.com/robalyx/chronicle/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestChunkString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		size  int
		want  []string
	}{
		{
			name:  "empty string",
			input: "",
			size:  4,
			want:  nil,
		},
		{
			name:  "shorter than size",
			input: "abc",
			size:  4,
			want:  []string{"abc"},
		},
		{
			name:  "exact multiple",
			input: "abcdefgh",
			size:  4,
			want:  []string{"abcd", "efgh"},
		},
		{
			name:  "remainder",
			input: "abcdefghij",
			size:  4,
			want:  []string{"abcd", "efgh", "ij"},
		},
		{
			name:  "multibyte runes stay whole",
			input: "héllo wörld",
			size:  3,
			want:  []string{"hél", "lo ", "wör", "ld"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, utils.ChunkString(tt.input, tt.size))
		})
	}

	t.Run("chunks rejoin to input", func(t *testing.T) {
		t.Parallel()

		input := strings.Repeat("moderation log ", 200)
		assert.Equal(t, input, strings.Join(utils.ChunkString(input, 1000), ""))
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", utils.Truncate("short", 10))
	assert.Equal(t, "abcd…", utils.Truncate("abcdefgh", 5))
	assert.Equal(t, "a", utils.Truncate("abc", 1))
}

func TestSingleLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `first\n second\n third`, utils.SingleLine("first\nsecond\r\nthird\n"))
	assert.Equal(t, "plain", utils.SingleLine("plain"))
}

func TestCleanFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "report.txt", utils.CleanFilename("report.txt"))
	assert.Equal(t, "evil.png", utils.CleanFilename("evil\r\n.png"))
	assert.Equal(t, "café.md", utils.CleanFilename("café.md"))
}
