// Package session implements the L2 session engine (spec §4.3): the
// multi-round tool-use loop, budget and deadline enforcement, compaction,
// and atomic persistence.
//
// Grounded on internal/agent/loop.go of the teacher repo (AgenticLoop,
// LoopConfig, the phase-method decomposition of a round), adapted onto the
// dialect-agnostic provider.Provider and tool.Registry introduced for this
// module instead of the teacher's bespoke wire handling.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/sentineld/internal/collaborator"
	"github.com/haasonsaas/sentineld/internal/costledger"
	"github.com/haasonsaas/sentineld/internal/identity"
	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// IdentityComposer is the narrow view of internal/identity.Composer the
// engine depends on.
type IdentityComposer interface {
	Compose(ctx context.Context, sess *model.Session, userTurn string, todaySpendUsd float64, budget identity.BudgetRemaining) string
}

// Journal is the narrow collaborator.Journal view compaction needs.
type Journal interface {
	AppendToday(ctx context.Context, line string) error
}

// Engine runs the tool-use loop for any number of independent sessions,
// serializing rounds per session but never across sessions (spec §4.3,
// §4.3's ordering guarantee; spec §5).
type Engine struct {
	Providers *provider.Registry
	Tools     *tool.Registry
	Ledger    *costledger.Ledger
	Store     *Store
	Identity  IdentityComposer
	Journal   Journal                     // optional
	Graph     collaborator.GraphExtractor // optional
	Clock     func() time.Time

	// OnRound, when set, is called once per tool-use loop round (both the
	// buffered and streaming paths), letting a caller feed round counts into
	// metrics without this package importing a metrics type directly.
	OnRound func(role model.Role)

	// OnProviderCall, when set, is called after every provider Chat/Stream
	// round completes, with the wire latency and any error, for metrics
	// wiring (SPEC_FULL §10's provider latency/error histograms).
	OnProviderCall func(providerName string, dialect model.Dialect, d time.Duration, err error)

	DailyLimitUsd            float64
	WarnThresholdUsd         float64
	MaxMessagesBeforeCompact int
	KeepRecentMessages       int
	MaxTokens                int

	locks *lockMap
}

// NewEngine wires an Engine. MaxMessagesBeforeCompact/KeepRecentMessages
// fall back to the spec defaults when zero.
func NewEngine(providers *provider.Registry, tools *tool.Registry, ledger *costledger.Ledger, store *Store, composer IdentityComposer) *Engine {
	return &Engine{
		Providers:                providers,
		Tools:                    tools,
		Ledger:                   ledger,
		Store:                    store,
		Identity:                 composer,
		Clock:                    time.Now,
		MaxMessagesBeforeCompact: DefaultMaxMessagesBeforeCompact,
		KeepRecentMessages:       DefaultKeepRecentMessages,
		MaxTokens:                4096,
		locks:                    newLockMap(),
	}
}

// Load returns an existing session or a fresh one seeded with role and limits.
func (e *Engine) Load(sessionID string, role model.Role, limits model.SessionLimits, ephemeral bool) (*model.Session, error) {
	if !ephemeral {
		sess, err := e.Store.Load(sessionID)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	now := e.Clock()
	if limits.MaxToolRounds == 0 {
		limits.MaxToolRounds = model.DefaultMaxToolRounds
	}
	return &model.Session{
		ID:        sessionID,
		Role:      role,
		Limits:    limits,
		Ephemeral: ephemeral,
		Metadata:  model.SessionMetadata{CreatedAt: now, UpdatedAt: now},
	}, nil
}

// Send runs the buffered tool-use loop to completion and returns the final
// assistant text (spec §4.3 entry point "send(text)").
func (e *Engine) Send(ctx context.Context, sess *model.Session, text string) (string, error) {
	release := e.locks.acquire(sess.ID)
	defer release()

	sess.Messages = append(sess.Messages, model.Message{Kind: model.KindUserText, Text: text, CreatedAt: e.Clock()})

	if status := e.Ledger.BudgetCheck(e.DailyLimitUsd, e.WarnThresholdUsd); e.DailyLimitUsd > 0 && !status.OK {
		sess.Messages = append(sess.Messages, model.Message{Kind: model.KindAssistantText, Text: refusalText, CreatedAt: e.Clock()})
		sess.Metadata.UpdatedAt = e.Clock()
		return refusalText, e.Store.Save(sess)
	}

	resolution, err := e.Providers.Resolve(sess.Role)
	if err != nil {
		return "", err
	}

	systemPrompt := e.composeSystemPrompt(ctx, sess, text)
	startedAt := e.Clock()
	finalText, err := e.runRounds(ctx, sess, resolution, systemPrompt, startedAt)
	if err != nil {
		return "", err
	}

	if len(sess.Messages) > e.maxMessagesBeforeCompact() {
		e.compact(ctx, sess)
	}
	sess.Metadata.UpdatedAt = e.Clock()
	return finalText, e.Store.Save(sess)
}

// runRounds drives the non-streaming round loop of spec §4.3 step 4.
func (e *Engine) runRounds(ctx context.Context, sess *model.Session, resolution *provider.Resolution, systemPrompt string, startedAt time.Time) (string, error) {
	p := resolution.Provider
	tools := toolsForSession(e.Tools, sess)
	limit := roundLimit(sess)

	for round := 0; round < limit; round++ {
		if e.OnRound != nil {
			e.OnRound(sess.Role)
		}
		callStart := e.Clock()
		result, err := p.Chat(ctx, sess.Messages, provider.ChatOptions{System: systemPrompt, MaxTokens: e.MaxTokens, Tools: tools})
		if e.OnProviderCall != nil {
			e.OnProviderCall(p.Name(), p.Dialect(), e.Clock().Sub(callStart), err)
		}
		if err != nil {
			return "", fmt.Errorf("session %s round %d: %w", sess.ID, round, err)
		}
		if err := recordUsage(e.Ledger, sess, p.Name(), p.ModelName(), result.Usage); err != nil {
			return "", err
		}

		if marker, exceeded := budgetExceeded(sess, startedAt, e.Clock()); exceeded {
			finalText := result.Content + marker
			sess.Messages = append(sess.Messages, model.Message{Kind: model.KindAssistantText, Text: finalText, CreatedAt: e.Clock()})
			return finalText, nil
		}

		if len(result.ToolCalls) == 0 {
			sess.Messages = append(sess.Messages, model.Message{Kind: model.KindAssistantText, Text: result.Content, CreatedAt: e.Clock()})
			return result.Content, nil
		}

		results := executeToolCallsParallel(ctx, e.Tools, result.ToolCalls, &tool.Ctx{SessionID: sess.ID, Role: sess.Role})
		appendToolRoundTurns(sess, p.Dialect(), result.Content, result.ToolCalls, results, e.Clock())
	}
	return "", fmt.Errorf("session %s: exceeded max tool rounds (%d)", sess.ID, limit)
}

func (e *Engine) composeSystemPrompt(ctx context.Context, sess *model.Session, userTurn string) string {
	if e.Identity == nil {
		return ""
	}
	budget := identity.BudgetRemaining{}
	if sess.Limits.CostCeilingUsd != nil {
		remaining := *sess.Limits.CostCeilingUsd - sess.Metadata.Cost.TotalUsd
		budget.CostRemainingUsd = &remaining
	}
	todaySpend := e.Ledger.Today().TotalUsd
	return e.Identity.Compose(ctx, sess, userTurn, todaySpend, budget)
}

func (e *Engine) maxMessagesBeforeCompact() int {
	if e.MaxMessagesBeforeCompact > 0 {
		return e.MaxMessagesBeforeCompact
	}
	return DefaultMaxMessagesBeforeCompact
}

func (e *Engine) keepRecentMessages() int {
	if e.KeepRecentMessages > 0 {
		return e.KeepRecentMessages
	}
	return DefaultKeepRecentMessages
}
