package papergen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordsText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestChunkTextShortTextSingleChunk(t *testing.T) {
	text := wordsText(10)
	chunks := ChunkText(text, 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkTextOverlappingWindows(t *testing.T) {
	// 25 words, windows of 10 stepping by 5: starts at 0, 5, 10, 15.
	chunks := ChunkText(wordsText(25), 10, 5)
	require.Len(t, chunks, 4)

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	require.Len(t, first, 10)
	require.Len(t, second, 10)

	// Last 5 words of a chunk reappear as the first 5 of the next.
	assert.Equal(t, first[5:], second[:5])

	// Final chunk is the tail and ends at the last word.
	last := strings.Fields(chunks[3])
	assert.Equal(t, "w24", last[len(last)-1])
}

func TestChunkTextInvalidOverlapDisablesIt(t *testing.T) {
	// Overlap >= chunk size would never advance; it resets to zero.
	chunks := ChunkText(wordsText(20), 5, 5)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.Len(t, strings.Fields(c), 5)
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	assert.Nil(t, ChunkText("", 1000, 200))
	assert.Nil(t, ChunkText("   \n\t  ", 1000, 200))
}
