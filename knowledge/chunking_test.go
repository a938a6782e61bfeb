package knowledge

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextEmpty(t *testing.T) {
	assert.Empty(t, ChunkText("", 1000, 200))
}

func TestChunkTextShortInputIsSingleChunk(t *testing.T) {
	chunks := ChunkText("hello world", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestChunkTextCountFormula(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{1000, 200}, {10, 3}, {7, 0}, {5, 4}} {
		step := tc.size - tc.overlap
		for length := tc.size + 1; length < tc.size*4; length++ {
			text := strings.Repeat("a", length)
			chunks := ChunkText(text, tc.size, tc.overlap)
			want := int(math.Ceil(float64(length-tc.size)/float64(step))) + 1
			require.Equal(t, want, len(chunks), "len=%d size=%d overlap=%d", length, tc.size, tc.overlap)
		}
	}
}

func TestChunkTextWindowsCoverInput(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz0123456789"
	size, overlap := 10, 4
	chunks := ChunkText(text, size, overlap)
	step := size - overlap

	for i, chunk := range chunks {
		start := i * step
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		assert.Equal(t, text[start:end], chunk)
	}

	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last))

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		rebuilt.WriteString(chunk[overlap:])
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkTextOverlapAtLeastSizeTerminates(t *testing.T) {
	chunks := ChunkText("abcdef", 3, 5)
	assert.Equal(t, []string{"abc", "bcd", "cde", "def"}, chunks)
}

func TestChunkTextMultiByte(t *testing.T) {
	chunks := ChunkText("ééééé", 2, 0)
	assert.Equal(t, []string{"éé", "éé", "é"}, chunks)
}
