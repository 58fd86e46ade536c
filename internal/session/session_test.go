package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/sentineld/internal/costledger"
	providerpkg "github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// scriptedProvider replies from a fixed sequence of ChatResults, one per
// call, so tests can script multi-round tool-use loops deterministically.
type scriptedProvider struct {
	dialect model.Dialect
	script  []providerpkg.ChatResult
	calls   int
}

func (p *scriptedProvider) Name() string           { return "scripted" }
func (p *scriptedProvider) ModelName() string      { return "scripted-model" }
func (p *scriptedProvider) Dialect() model.Dialect { return p.dialect }

func (p *scriptedProvider) Chat(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) (*providerpkg.ChatResult, error) {
	if p.calls >= len(p.script) {
		return &providerpkg.ChatResult{Content: "done", StopReason: providerpkg.StopEndTurn}, nil
	}
	r := p.script[p.calls]
	p.calls++
	return &r, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) <-chan providerpkg.StreamChunk {
	ch := make(chan providerpkg.StreamChunk)
	close(ch)
	return ch
}

func newTestEngine(t *testing.T, script []providerpkg.ChatResult) (*Engine, *model.Session) {
	t.Helper()
	dir := t.TempDir()
	ledger, err := costledger.New(filepath.Join(dir, "costs.json"), func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) })
	require.NoError(t, err)

	tools := tool.NewRegistry()
	reg := providerpkg.NewRegistry(map[model.Role]providerpkg.Provider{
		model.RoleDefault: &scriptedProvider{dialect: model.DialectA, script: script},
		model.RoleQuick:   &scriptedProvider{dialect: model.DialectA, script: []providerpkg.ChatResult{{Content: "a summary", StopReason: providerpkg.StopEndTurn}}},
	})
	store := NewStore(dir)
	engine := NewEngine(reg, tools, ledger, store, nil)
	engine.Clock = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

	sess, err := engine.Load("sess-1", model.RoleDefault, model.SessionLimits{}, false)
	require.NoError(t, err)
	return engine, sess
}

func TestSendNoToolCallsReturnsFinalText(t *testing.T) {
	engine, sess := newTestEngine(t, []providerpkg.ChatResult{
		{Content: "hello there", StopReason: providerpkg.StopEndTurn},
	})

	reply, err := engine.Send(context.Background(), sess, "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", reply)
	require.Len(t, sess.Messages, 2)
}

func TestSendExecutesToolCallThenFinishes(t *testing.T) {
	weather := tool.Descriptor{
		Name: "get_weather", Description: "gets weather",
		Schema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		Execute: func(ctx context.Context, args json.RawMessage, tc *tool.Ctx) (string, error) {
			return "sunny", nil
		},
	}

	engine, sess := newTestEngine(t, []providerpkg.ChatResult{
		{
			Content:    "checking",
			StopReason: providerpkg.StopToolUse,
			ToolCalls:  []model.ToolCall{{ID: "call-1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"nyc"}`)}},
		},
		{Content: "it's sunny", StopReason: providerpkg.StopEndTurn},
	})
	require.NoError(t, engine.Tools.RegisterBuiltin(weather))

	reply, err := engine.Send(context.Background(), sess, "weather?")
	require.NoError(t, err)
	require.Equal(t, "it's sunny", reply)

	// user, assistant-tool-calls, tool-results, assistant-final
	require.Len(t, sess.Messages, 4)
	require.Equal(t, model.KindAssistantToolCalls, sess.Messages[1].Kind)
	require.Equal(t, model.KindUserToolResults, sess.Messages[2].Kind)
	require.Equal(t, "sunny", sess.Messages[2].Results[0].Content)
}

func TestSendRefusesOverDailyBudget(t *testing.T) {
	engine, sess := newTestEngine(t, []providerpkg.ChatResult{
		{Content: "should not be reached", StopReason: providerpkg.StopEndTurn},
	})
	engine.DailyLimitUsd = 0.01
	_, err := engine.Ledger.Record("anthropic", "claude-3-haiku-20240307", model.RoleDefault, 1_000_000, 1_000_000, 0)
	require.NoError(t, err)

	reply, err := engine.Send(context.Background(), sess, "hi")
	require.NoError(t, err)
	require.Equal(t, refusalText, reply)
}

func TestSendInvokesOnProviderCallPerRound(t *testing.T) {
	engine, sess := newTestEngine(t, []providerpkg.ChatResult{
		{Content: "hello there", StopReason: providerpkg.StopEndTurn},
	})
	var calls []string
	engine.OnProviderCall = func(providerName string, dialect model.Dialect, d time.Duration, err error) {
		calls = append(calls, providerName)
		require.NoError(t, err)
	}

	_, err := engine.Send(context.Background(), sess, "hi")
	require.NoError(t, err)
	require.Equal(t, []string{"scripted"}, calls)
}
