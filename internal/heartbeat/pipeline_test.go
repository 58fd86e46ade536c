package heartbeat

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/sentineld/internal/costledger"
	"github.com/haasonsaas/sentineld/internal/journal"
	providerpkg "github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

func TestParseTasksExtractsRouteTags(t *testing.T) {
	text := "# journal\n- [ ] water the plants #act\n- [ ] pay rent #main\n- [ ] nothing tagged\n- [x] already done\n"
	events := ParseTasks(text)
	require.Len(t, events, 3)
	require.Equal(t, model.RouteAct, events[0].Route)
	require.Equal(t, model.RouteMain, events[1].Route)
	require.Equal(t, model.Route(""), events[2].Route)
}

func TestNormalizeSummaryHashStripsTimeOfDay(t *testing.T) {
	a := normalizeSummaryHash("check inbox at 14:32")
	b := normalizeSummaryHash("check inbox at 09:01")
	require.Equal(t, a, b)
}

func TestPartitionRoutesPreRoutedActEvents(t *testing.T) {
	events := []model.HeartbeatEvent{{Summary: "idle", Route: model.RouteAct}}
	act, escalate, final := partition(events, map[string]model.TriageVerdict{})
	require.Len(t, act, 1)
	require.Empty(t, escalate)
	require.Empty(t, final)
}

func TestPartitionDefaultsUnverdictedEventsToIgnored(t *testing.T) {
	events := []model.HeartbeatEvent{{Summary: "mystery"}}
	_, _, final := partition(events, map[string]model.TriageVerdict{})
	require.Len(t, final, 1)
	require.Equal(t, model.OutcomeIgnored, final[0].outcome)
}

type scriptedTriageProvider struct {
	response string
}

func (s *scriptedTriageProvider) Name() string           { return "stub" }
func (s *scriptedTriageProvider) ModelName() string      { return "stub-model" }
func (s *scriptedTriageProvider) Dialect() model.Dialect { return model.DialectA }
func (s *scriptedTriageProvider) Chat(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) (*providerpkg.ChatResult, error) {
	return &providerpkg.ChatResult{Content: s.response, StopReason: providerpkg.StopEndTurn}, nil
}
func (s *scriptedTriageProvider) Stream(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) <-chan providerpkg.StreamChunk {
	ch := make(chan providerpkg.StreamChunk)
	close(ch)
	return ch
}

func TestTriageDefaultsToLogOnUnparsableResponse(t *testing.T) {
	reg := providerpkg.NewRegistry(map[model.Role]providerpkg.Provider{
		model.RoleRouter: &scriptedTriageProvider{response: "not json at all"},
	})
	p := &Pipeline{Providers: reg}
	events := []model.HeartbeatEvent{{Summary: "check disk space"}}
	verdicts := p.triage(context.Background(), events)
	require.Equal(t, model.ActionLog, verdicts["check disk space"].Action)
}

func TestTriageParsesWellFormedVerdicts(t *testing.T) {
	reg := providerpkg.NewRegistry(map[model.Role]providerpkg.Provider{
		model.RoleRouter: &scriptedTriageProvider{response: `Sure, here you go: [{"event":"check disk space","action":"ACT","reason":"low disk"}]`},
	})
	p := &Pipeline{Providers: reg}
	events := []model.HeartbeatEvent{{Summary: "check disk space"}}
	verdicts := p.triage(context.Background(), events)
	require.Equal(t, model.ActionAct, verdicts["check disk space"].Action)
}

func newTestPipeline(t *testing.T, now time.Time) (*Pipeline, string) {
	t.Helper()
	dataDir := t.TempDir()
	journalDir := filepath.Join(dataDir, "journal")
	inboxDir := filepath.Join(dataDir, "inbox")

	clock := func() time.Time { return now }
	ledger, err := costledger.New(filepath.Join(dataDir, "costs.json"), clock)
	require.NoError(t, err)

	reg := providerpkg.NewRegistry(map[model.Role]providerpkg.Provider{
		model.RoleDefault: &scriptedTriageProvider{response: "acknowledged"},
		model.RoleQuick:   &scriptedTriageProvider{response: "handled it"},
		model.RoleRouter:  &scriptedTriageProvider{response: `[]`},
	})
	engine := session.NewEngine(reg, tool.NewRegistry(), ledger, session.NewStore(dataDir), nil)
	engine.Clock = clock

	p := &Pipeline{
		Journal:       journal.New(journalDir, clock),
		InboxDir:      inboxDir,
		IdleHourStart: 9,
		IdleHourEnd:   21,
		Providers:     reg,
		Sessions:      engine,
		State:         NewStateStore(dataDir),
		Audit:         NewAuditStore(dataDir),
		Clock:         clock,
	}
	return p, dataDir
}

func TestTickWithNoEventsOutsideIdleHoursExitsSilently(t *testing.T) {
	now := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC) // outside 9-21 window
	p, _ := newTestPipeline(t, now)

	err := p.Tick(context.Background())
	require.NoError(t, err)

	state, err := p.State.Load()
	require.NoError(t, err)
	require.Equal(t, now.Format(time.RFC3339), state.LastRun)
}

func TestTickHandlesTaggedActTask(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p, dataDir := newTestPipeline(t, now)

	require.NoError(t, p.Journal.EnsureToday(context.Background()))
	require.NoError(t, p.Journal.AppendToday(context.Background(), "- [ ] water the plants #act"))

	err := p.Tick(context.Background())
	require.NoError(t, err)

	state, err := p.State.Load()
	require.NoError(t, err)
	require.Len(t, state.HandledEvents, 1)

	text, err := p.Journal.ReadToday(context.Background())
	require.NoError(t, err)
	require.Contains(t, text, "[x] water the plants #act")
	_ = dataDir
}
