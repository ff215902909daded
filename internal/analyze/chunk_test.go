package analyze

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitChunksShortTextIsSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := SplitChunks("Grace and peace to you.", 100)
	require.Equal(t, []string{"Grace and peace to you."}, chunks)
}

func TestSplitChunksRespectsSentenceBoundaries(t *testing.T) {
	t.Parallel()

	text := "First point here. Second point follows. Third point ends."
	chunks := SplitChunks(text, 25)

	require.Equal(t, []string{
		"First point here.",
		"Second point follows.",
		"Third point ends.",
	}, chunks)

	for _, chunk := range chunks {
		require.LessOrEqual(t, len(chunk), 25)
	}
}

func TestSplitChunksPacksSentencesUpToCap(t *testing.T) {
	t.Parallel()

	text := "One. Two. Three. Four."
	chunks := SplitChunks(text, 10)

	require.Equal(t, []string{"One. Two.", "Three.", "Four."}, chunks)
}

func TestSplitChunksPreservesOrder(t *testing.T) {
	t.Parallel()

	var sentences []string
	for i := 0; i < 50; i++ {
		sentences = append(sentences, "Sentence number "+strings.Repeat("x", i%7)+".")
	}
	text := strings.Join(sentences, " ")

	chunks := SplitChunks(text, 80)
	reassembled := strings.Join(chunks, " ")
	require.Equal(t, text, reassembled)
}

func TestSplitChunksHardSplitsOversizedSentence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 95)
	chunks := SplitChunks(long, 30)

	require.Len(t, chunks, 4)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len(chunk), 30)
	}
	require.Equal(t, long, strings.Join(chunks, ""))
}

func TestSplitChunksDeterministic(t *testing.T) {
	t.Parallel()

	text := "He spoke of hope. He spoke of faith! Did he speak of love? Yes."
	first := SplitChunks(text, 30)
	second := SplitChunks(text, 30)
	require.Equal(t, first, second)
}

func TestSplitChunksEmptyInput(t *testing.T) {
	t.Parallel()

	require.Nil(t, SplitChunks("", 100))
	require.Nil(t, SplitChunks("   \n  ", 100))
}

func TestSplitSentencesHandlesQuestionsAndQuotes(t *testing.T) {
	t.Parallel()

	got := splitSentences(`"Who do you say I am?" he asked. They were silent.`)
	require.Equal(t, []string{
		`"Who do you say I am?"`,
		"he asked.",
		"They were silent.",
	}, got)
}
