package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/sentineld/internal/costledger"
	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// refusalText is the fixed reply used when the daily cost ceiling has
// already been reached before a round begins (spec §4.3 step 2).
const refusalText = "I've reached today's spending limit, so I can't take further actions right now. This will reset at the start of the next day."

// roundLimit resolves maxToolRounds for a session: its explicit
// Limits.MaxToolRounds, or DefaultMaxToolRounds when none is set.
// Sub-agent and long-running bounds apply only when the caller sets them
// in the session's limits.
func roundLimit(sess *model.Session) int {
	if sess.Limits.MaxToolRounds > 0 {
		return sess.Limits.MaxToolRounds
	}
	return model.DefaultMaxToolRounds
}

// toolsForSession resolves the tool set a session may call, honoring its
// outfit's allow-list if any (spec §4.2).
func toolsForSession(tools *tool.Registry, sess *model.Session) []model.ToolDescriptor {
	var allow []string
	if sess.Outfit != nil {
		allow = sess.Outfit.Tools
	}
	descriptors := tools.FilterByOutfit(allow)
	out := make([]model.ToolDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.AsModel())
	}
	return out
}

// toolCallResult is one executed tool call's outcome, keyed by its original
// index so O-dialect can emit result turns in call order.
type toolCallResult struct {
	call    model.ToolCall
	content string
	isError bool
}

// executeToolCallsParallel runs every call concurrently (spec §4.3 step 4e:
// "tools must be assumed independent") and returns results in call order.
func executeToolCallsParallel(ctx context.Context, tools *tool.Registry, calls []model.ToolCall, tc *tool.Ctx) []toolCallResult {
	results := make([]toolCallResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()
			content, isError := tools.Execute(ctx, call.Name, call.Arguments, tc)
			results[i] = toolCallResult{call: call, content: content, isError: isError}
		}(i, call)
	}
	wg.Wait()
	return results
}

// appendToolRoundTurns materializes the assistant-with-tool-calls turn and
// the provider-correctly-formatted tool-result turn(s) per spec §4.3.1.
func appendToolRoundTurns(sess *model.Session, dialect model.Dialect, text string, calls []model.ToolCall, results []toolCallResult, at time.Time) {
	sess.Messages = append(sess.Messages, model.Message{
		Kind: model.KindAssistantToolCalls, Text: text, Calls: calls, CreatedAt: at,
	})

	switch dialect {
	case model.DialectA:
		pairs := make([]model.ToolResultPair, 0, len(results))
		for _, r := range results {
			pairs = append(pairs, model.ToolResultPair{ToolCallID: r.call.ID, Content: r.content, IsError: r.isError})
		}
		sess.Messages = append(sess.Messages, model.Message{
			Kind: model.KindUserToolResults, Results: pairs, CreatedAt: at,
		})

	default: // model.DialectO
		for _, r := range results {
			sess.Messages = append(sess.Messages, model.Message{
				Kind:    model.KindToolResult,
				Results: []model.ToolResultPair{{ToolCallID: r.call.ID, Content: r.content, IsError: r.isError}},
				CreatedAt: at,
			})
		}
	}
}

// budgetExceeded reports whether sess's own cost ceiling or deadline has
// been crossed (spec §4.3 step 4c), distinct from the daily-ledger ceiling
// checked before the round loop starts.
func budgetExceeded(sess *model.Session, startedAt, now time.Time) (marker string, exceeded bool) {
	if sess.Limits.CostCeilingUsd != nil && sess.Metadata.Cost.TotalUsd >= *sess.Limits.CostCeilingUsd {
		return fmt.Sprintf("\n\n[Stopped: session cost ceiling of $%.2f reached.]", *sess.Limits.CostCeilingUsd), true
	}
	if sess.Limits.DeadlineMs != nil {
		elapsed := now.Sub(startedAt)
		if elapsed.Milliseconds() >= *sess.Limits.DeadlineMs {
			return "\n\n[Stopped: session deadline reached.]", true
		}
	}
	return "", false
}

// recordUsage feeds a Chat/Stream call's usage into the cost ledger and
// accumulates it onto the session's own running total.
func recordUsage(ledger *costledger.Ledger, sess *model.Session, providerName, modelName string, usage provider.Usage) error {
	cost, err := ledger.Record(providerName, modelName, sess.Role, usage.InputTokens, usage.OutputTokens, usage.CachedTokens)
	if err != nil {
		return err
	}
	sess.Metadata.Cost.TotalUsd += cost
	sess.Metadata.Cost.InputTokens += usage.InputTokens
	sess.Metadata.Cost.OutputTokens += usage.OutputTokens
	sess.Metadata.Cost.CallCount++
	return nil
}
