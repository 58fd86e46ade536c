package cron

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/sentineld/internal/costledger"
	providerpkg "github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/pkg/model"
)

type echoProvider struct {
	reply string
	calls int
}

func (p *echoProvider) Name() string           { return "echo" }
func (p *echoProvider) ModelName() string      { return "echo-model" }
func (p *echoProvider) Dialect() model.Dialect { return model.DialectA }

func (p *echoProvider) Chat(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) (*providerpkg.ChatResult, error) {
	p.calls++
	return &providerpkg.ChatResult{Content: p.reply, StopReason: providerpkg.StopEndTurn}, nil
}

func (p *echoProvider) Stream(ctx context.Context, messages []model.Message, opts providerpkg.ChatOptions) <-chan providerpkg.StreamChunk {
	ch := make(chan providerpkg.StreamChunk)
	close(ch)
	return ch
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *echoProvider, *Store) {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return now }

	ledger, err := costledger.New(filepath.Join(dir, "costs.json"), clock)
	require.NoError(t, err)

	quick := &echoProvider{reply: "ack"}
	reg := providerpkg.NewRegistry(map[model.Role]providerpkg.Provider{
		model.RoleQuick:   quick,
		model.RoleDefault: quick,
	})
	engine := session.NewEngine(reg, tool.NewRegistry(), ledger, session.NewStore(dir), nil)
	engine.Clock = clock

	store := NewStore(dir)
	sched, err := New(store, engine)
	require.NoError(t, err)
	sched.Clock = clock
	return sched, quick, store
}

func TestRegisterJobRejectsInvalidSchedule(t *testing.T) {
	sched, _, _ := newTestScheduler(t, time.Now())
	err := sched.RegisterJob(&model.CronJob{ID: "bad", Schedule: "not a schedule", Enabled: true})
	require.Error(t, err)
}

func TestRunOnceFiresMatchingJobAndRecordsHistory(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, quick, _ := newTestScheduler(t, now)

	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "daily-standup", Schedule: "30 9 * * *", Prompt: "summarize today's plan", Enabled: true,
	}))

	sched.RunOnce(context.Background())

	require.Equal(t, 1, quick.calls)
	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, int64(1), jobs[0].RunCount)
	require.Equal(t, now.Format(time.RFC3339), jobs[0].LastRunIso)
	require.Empty(t, jobs[0].LastError)

	history := sched.Executions("daily-standup")
	require.Len(t, history, 1)
	require.Empty(t, history[0].Error)
	require.NotEmpty(t, history[0].ID)
}

func TestRunOnceInvokesOnFireWithJobID(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, _, _ := newTestScheduler(t, now)
	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "fired", Schedule: "30 9 * * *", Prompt: "noop", Enabled: true,
	}))

	var fired []string
	sched.OnFire = func(jobID string) { fired = append(fired, jobID) }

	sched.RunOnce(context.Background())
	require.Equal(t, []string{"fired"}, fired)
}

func TestRunOnceDoesNotDoubleFireWithinSameMinute(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, quick, _ := newTestScheduler(t, now)

	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "every-tick", Schedule: "30 9 * * *", Prompt: "noop", Enabled: true,
	}))

	sched.RunOnce(context.Background())
	sched.RunOnce(context.Background())

	require.Equal(t, 1, quick.calls)
	require.Equal(t, int64(1), sched.Jobs()[0].RunCount)
}

func TestRunOnceFiresAgainOnceMinuteAdvances(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, quick, _ := newTestScheduler(t, now)

	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "every-minute", Schedule: "* * * * *", Prompt: "noop", Enabled: true,
	}))

	sched.RunOnce(context.Background())
	require.Equal(t, 1, quick.calls)

	sched.mu.Lock()
	sched.Clock = func() time.Time { return now.Add(time.Minute) }
	sched.mu.Unlock()

	sched.RunOnce(context.Background())
	require.Equal(t, 2, quick.calls)
	require.Equal(t, int64(2), sched.Jobs()[0].RunCount)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, quick, _ := newTestScheduler(t, now)

	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "disabled", Schedule: "30 9 * * *", Prompt: "noop", Enabled: false,
	}))

	sched.RunOnce(context.Background())
	require.Equal(t, 0, quick.calls)
}

func TestUnregisterJobRemovesItFromFutureTicks(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, quick, _ := newTestScheduler(t, now)

	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "temp", Schedule: "30 9 * * *", Prompt: "noop", Enabled: true,
	}))
	require.NoError(t, sched.UnregisterJob("temp"))

	sched.RunOnce(context.Background())
	require.Equal(t, 0, quick.calls)
	require.Empty(t, sched.Jobs())
}

func TestSchedulerPersistsJobsAcrossReload(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	sched, _, store := newTestScheduler(t, now)

	require.NoError(t, sched.RegisterJob(&model.CronJob{
		ID: "persisted", Schedule: "0 8 * * *", Prompt: "noop", Enabled: true,
	}))

	jobs, _, err := store.Load()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "persisted", jobs[0].ID)
}
