package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// DefaultMaxMessagesBeforeCompact is the trigger threshold (spec §4.5).
const DefaultMaxMessagesBeforeCompact = 30

// DefaultKeepRecentMessages is the minimum retained tail (spec §4.5).
const DefaultKeepRecentMessages = 10

// safeSplitIndex finds the earliest index >= len(messages)-keep at which the
// message is a genuine user question (not a tool-result-only carrier), so
// the retained slice never opens on a turn that references a discarded tool
// call (spec §4.5 step 1).
func safeSplitIndex(messages []model.Message, keep int) (int, bool) {
	start := len(messages) - keep
	if start < 0 {
		start = 0
	}
	for i := start; i < len(messages); i++ {
		if messages[i].IsUserQuestion() {
			return i, true
		}
	}
	return 0, false
}

// sanitizeOrphans enforces the tool-pair invariant on a retained slice: a
// tool result may only survive if its tool_use/tool_call id was issued by a
// retained assistant turn (spec §4.5).
func sanitizeOrphans(messages []model.Message) []model.Message {
	live := map[string]bool{}
	for _, msg := range messages {
		if msg.Kind == model.KindAssistantToolCalls {
			for _, c := range msg.Calls {
				live[c.ID] = true
			}
		}
	}

	out := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Kind {
		case model.KindToolResult:
			kept := make([]model.ToolResultPair, 0, len(msg.Results))
			for _, r := range msg.Results {
				if live[r.ToolCallID] {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				continue
			}
			msg.Results = kept
			out = append(out, msg)

		case model.KindUserToolResults:
			orphaned := false
			for _, r := range msg.Results {
				if !live[r.ToolCallID] {
					orphaned = true
					break
				}
			}
			if orphaned {
				continue
			}
			out = append(out, msg)

		default:
			out = append(out, msg)
		}
	}
	return out
}

// renderDiscardedForSummary flattens the discarded slice into plain text
// suitable as a summarization prompt body.
func renderDiscardedForSummary(discarded []model.Message) string {
	var b strings.Builder
	for _, msg := range discarded {
		switch msg.Kind {
		case model.KindUserText:
			fmt.Fprintf(&b, "User: %s\n", msg.Text)
		case model.KindAssistantText:
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Text)
		case model.KindAssistantToolCalls:
			fmt.Fprintf(&b, "Assistant called tools: ")
			for _, c := range msg.Calls {
				fmt.Fprintf(&b, "%s(%s) ", c.Name, string(c.Arguments))
			}
			b.WriteString("\n")
		case model.KindToolResult, model.KindUserToolResults:
			for _, r := range msg.Results {
				fmt.Fprintf(&b, "Tool result: %s\n", r.Content)
			}
		}
	}
	return b.String()
}

const summaryPromptInstructions = "Summarize the conversation below concisely. Call out topics discussed, " +
	"people mentioned, decisions made, problems encountered, and tools used.\n\n"

// buildSummaryTurn constructs the replacement assistant turn described by
// spec §4.5 step 5.
func buildSummaryTurn(summary, sessionID string, at time.Time) model.Message {
	text := fmt.Sprintf("[Conversation summary]\n%s\n[Full history archived in %s.history.jsonl]", summary, sessionID)
	return model.Message{Kind: model.KindAssistantText, Text: text, CreatedAt: at}
}
