package session

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// EventKind tags one SendStream event (spec §4.3: "sendStream(text) yields
// {text|tool_start|tool_result} events").
type EventKind string

const (
	EventText       EventKind = "text"
	EventToolStart  EventKind = "tool_start"
	EventToolResult EventKind = "tool_result"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Event is one element of a SendStream channel.
type Event struct {
	Kind     EventKind
	Text     string
	ToolCall *model.ToolCall
	Result   string
	Err      error
}

// SendStream runs the same round loop as Send but yields incremental events
// as they happen, for channel pollers and the HTTP panel's SSE endpoint.
func (e *Engine) SendStream(ctx context.Context, sess *model.Session, text string) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)

		release := e.locks.acquire(sess.ID)
		defer release()

		sess.Messages = append(sess.Messages, model.Message{Kind: model.KindUserText, Text: text, CreatedAt: e.Clock()})

		if status := e.Ledger.BudgetCheck(e.DailyLimitUsd, e.WarnThresholdUsd); e.DailyLimitUsd > 0 && !status.OK {
			sess.Messages = append(sess.Messages, model.Message{Kind: model.KindAssistantText, Text: refusalText, CreatedAt: e.Clock()})
			out <- Event{Kind: EventText, Text: refusalText}
			_ = e.Store.Save(sess)
			out <- Event{Kind: EventDone}
			return
		}

		resolution, err := e.Providers.Resolve(sess.Role)
		if err != nil {
			out <- Event{Kind: EventError, Err: err}
			return
		}

		systemPrompt := e.composeSystemPrompt(ctx, sess, text)
		startedAt := e.Clock()
		if err := e.streamRounds(ctx, sess, resolution, systemPrompt, startedAt, out); err != nil {
			out <- Event{Kind: EventError, Err: err}
			return
		}

		if len(sess.Messages) > e.maxMessagesBeforeCompact() {
			e.compact(ctx, sess)
		}
		sess.Metadata.UpdatedAt = e.Clock()
		if err := e.Store.Save(sess); err != nil {
			out <- Event{Kind: EventError, Err: err}
			return
		}
		out <- Event{Kind: EventDone}
	}()
	return out
}

// streamRounds drives the streaming round loop, consuming provider.Stream
// chunks and re-emitting them as Events while accumulating one round's
// ChatResult-equivalent state.
func (e *Engine) streamRounds(ctx context.Context, sess *model.Session, resolution *provider.Resolution, systemPrompt string, startedAt time.Time, out chan<- Event) error {
	p := resolution.Provider
	tools := toolsForSession(e.Tools, sess)
	limit := roundLimit(sess)

	for round := 0; round < limit; round++ {
		if e.OnRound != nil {
			e.OnRound(sess.Role)
		}
		var (
			text  string
			calls []model.ToolCall
			usage provider.Usage
		)

		callStart := e.Clock()
		for chunk := range p.Stream(ctx, sess.Messages, provider.ChatOptions{System: systemPrompt, MaxTokens: e.MaxTokens, Tools: tools}) {
			switch chunk.Kind {
			case provider.ChunkText:
				text += chunk.Text
				out <- Event{Kind: EventText, Text: chunk.Text}
			case provider.ChunkToolUse:
				if chunk.ToolCall != nil {
					calls = append(calls, *chunk.ToolCall)
				}
			case provider.ChunkUsage:
				usage = chunk.Usage
			case provider.ChunkError:
				if e.OnProviderCall != nil {
					e.OnProviderCall(p.Name(), p.Dialect(), e.Clock().Sub(callStart), chunk.Err)
				}
				return chunk.Err
			}
		}
		if e.OnProviderCall != nil {
			e.OnProviderCall(p.Name(), p.Dialect(), e.Clock().Sub(callStart), nil)
		}

		if err := recordUsage(e.Ledger, sess, p.Name(), p.ModelName(), usage); err != nil {
			return err
		}

		if marker, exceeded := budgetExceeded(sess, startedAt, e.Clock()); exceeded {
			finalText := text + marker
			sess.Messages = append(sess.Messages, model.Message{Kind: model.KindAssistantText, Text: finalText, CreatedAt: e.Clock()})
			out <- Event{Kind: EventText, Text: marker}
			return nil
		}

		if len(calls) == 0 {
			sess.Messages = append(sess.Messages, model.Message{Kind: model.KindAssistantText, Text: text, CreatedAt: e.Clock()})
			return nil
		}

		for _, c := range calls {
			c := c
			out <- Event{Kind: EventToolStart, ToolCall: &c}
		}
		results := executeToolCallsParallel(ctx, e.Tools, calls, &tool.Ctx{SessionID: sess.ID, Role: sess.Role})
		for _, r := range results {
			out <- Event{Kind: EventToolResult, ToolCall: &r.call, Result: r.content}
		}
		appendToolRoundTurns(sess, p.Dialect(), text, calls, results, e.Clock())
	}
	return fmt.Errorf("session %s: exceeded max tool rounds (%d)", sess.ID, limit)
}
