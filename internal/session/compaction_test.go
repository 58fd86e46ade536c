package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/sentineld/pkg/model"
)

func userMsg(text string) model.Message { return model.Message{Kind: model.KindUserText, Text: text} }
func asstMsg(text string) model.Message {
	return model.Message{Kind: model.KindAssistantText, Text: text}
}

func TestSafeSplitIndexFindsRealUserQuestion(t *testing.T) {
	messages := []model.Message{
		userMsg("q1"), asstMsg("a1"),
		{Kind: model.KindUserToolResults, Results: []model.ToolResultPair{{ToolCallID: "x", Content: "r"}}},
		userMsg("q2"), asstMsg("a2"),
		userMsg("q3"), asstMsg("a3"),
	}
	idx, ok := safeSplitIndex(messages, 2)
	require.True(t, ok)
	require.Equal(t, userMsg("q3"), messages[idx])
}

func TestSafeSplitIndexNoneFound(t *testing.T) {
	messages := []model.Message{
		{Kind: model.KindUserToolResults, Results: []model.ToolResultPair{{ToolCallID: "x", Content: "r"}}},
		asstMsg("a1"),
	}
	_, ok := safeSplitIndex(messages, 1)
	require.False(t, ok)
}

func TestSanitizeOrphansDropsUnmatchedToolResults(t *testing.T) {
	messages := []model.Message{
		{Kind: model.KindAssistantToolCalls, Calls: []model.ToolCall{{ID: "live-1", Name: "t"}}},
		{Kind: model.KindToolResult, Results: []model.ToolResultPair{{ToolCallID: "live-1", Content: "ok"}}},
		{Kind: model.KindToolResult, Results: []model.ToolResultPair{{ToolCallID: "orphan-1", Content: "stale"}}},
		userMsg("hi"),
	}
	out := sanitizeOrphans(messages)
	require.Len(t, out, 3)
	for _, m := range out {
		if m.Kind == model.KindToolResult {
			require.Equal(t, "live-1", m.Results[0].ToolCallID)
		}
	}
}

func TestSanitizeOrphansDropsOrphanedADialectCarrier(t *testing.T) {
	messages := []model.Message{
		{Kind: model.KindAssistantToolCalls, Calls: []model.ToolCall{{ID: "live-1", Name: "t"}}},
		{Kind: model.KindUserToolResults, Results: []model.ToolResultPair{{ToolCallID: "live-1", Content: "ok"}, {ToolCallID: "orphan-1", Content: "stale"}}},
	}
	out := sanitizeOrphans(messages)
	require.Len(t, out, 1) // the whole mixed carrier turn is dropped since it references an orphan
}

func TestBuildSummaryTurnReferencesArchiveFile(t *testing.T) {
	turn := buildSummaryTurn("topics discussed", "sess-42", time.Time{})
	require.Contains(t, turn.Text, "[Conversation summary]")
	require.Contains(t, turn.Text, "sess-42.history.jsonl")
}
