package session

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/pkg/model"
)

const summaryMaxTokens = 512

// compact runs the full compaction algorithm of spec §4.5 against sess,
// mutating sess.Messages in place. Any failure short of "no safe split
// exists" degrades to sanitizeOrphans without a summary rather than
// propagating an error — compaction is advisory housekeeping, never a
// reason to fail the round that triggered it.
func (e *Engine) compact(ctx context.Context, sess *model.Session) {
	idx, ok := safeSplitIndex(sess.Messages, e.keepRecentMessages())
	if !ok {
		return
	}
	discarded := sess.Messages[:idx]
	recent := sess.Messages[idx:]

	if err := e.Store.Archive(sess.ID, discarded); err != nil {
		// Archival failure still must not block compaction from freeing memory.
		_ = err
	}

	summary, err := e.summarize(ctx, discarded)
	if err != nil {
		sess.Messages = sanitizeOrphans(recent)
		return
	}

	summaryTurn := buildSummaryTurn(summary, sess.ID, e.Clock())
	sess.Messages = append([]model.Message{summaryTurn}, sanitizeOrphans(recent)...)

	if e.Journal != nil {
		_ = e.Journal.AppendToday(ctx, fmt.Sprintf("Compacted session %s (%d messages archived).", sess.ID, len(discarded)))
	}
	if e.Graph != nil {
		go func(summary string) {
			_ = e.Graph.Ingest(context.Background(), summary)
		}(summary)
	}
}

// summarize asks the quick-role provider for a concise summary of the
// discarded slice, falling back to the default role's provider on failure
// (spec §4.5 step 4).
func (e *Engine) summarize(ctx context.Context, discarded []model.Message) (string, error) {
	prompt := summaryPromptInstructions + renderDiscardedForSummary(discarded)
	messages := []model.Message{{Kind: model.KindUserText, Text: prompt, CreatedAt: e.Clock()}}

	if resolution, err := e.Providers.Resolve(model.RoleQuick); err == nil {
		if result, err := e.chatForSummary(ctx, resolution, messages); err == nil {
			return result, nil
		}
	}
	resolution, err := e.Providers.Resolve(model.RoleDefault)
	if err != nil {
		return "", err
	}
	return e.chatForSummary(ctx, resolution, messages)
}

func (e *Engine) chatForSummary(ctx context.Context, resolution *provider.Resolution, messages []model.Message) (string, error) {
	result, err := resolution.Provider.Chat(ctx, messages, provider.ChatOptions{MaxTokens: summaryMaxTokens})
	if err != nil {
		return "", err
	}
	_ = recordUsage(e.Ledger, &model.Session{Role: model.RoleQuick}, resolution.Provider.Name(), resolution.Provider.ModelName(), result.Usage)
	return result.Content, nil
}
