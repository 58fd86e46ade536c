package channel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkReturnsWholeTextUnderLimit(t *testing.T) {
	chunks := Chunk("hello", 100)
	require.Equal(t, []string{"hello"}, chunks)
}

func TestChunkBreaksOnNewlineBeforeHardBreak(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 10)
	chunks := Chunk(text, 15)
	require.Len(t, chunks, 2)
	require.Equal(t, strings.Repeat("a", 10), chunks[0])
	require.Equal(t, strings.Repeat("b", 10), chunks[1])
}

func TestLimitForKnownAndUnknownChannel(t *testing.T) {
	require.Equal(t, 4096, LimitFor("telegram"))
	require.Equal(t, DefaultChunkLimit, LimitFor("unknown-channel"))
}
