package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/haasonsaas/sentineld/internal/apperr"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// Scheduler runs the once-per-wall-clock-minute tick loop described in
// spec §4.8, debouncing so two ticks landing in the same minute never
// double-fire a job.
type Scheduler struct {
	Store    *Store
	Sessions *session.Engine
	Clock    func() time.Time

	// OnFire, when set, is called once per job dispatch, for metrics wiring.
	OnFire func(jobID string)

	mu         sync.Mutex
	jobs       map[string]*model.CronJob
	schedules  map[string]robfigcron.Schedule
	executions map[string][]model.JobExecution

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scheduler, loading persisted jobs and compiling their
// schedules. A job whose expression fails to parse is kept (so it is still
// visible to the panel) but never fires.
func New(store *Store, sessions *session.Engine) (*Scheduler, error) {
	jobs, executions, err := store.Load()
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		Store: store, Sessions: sessions, Clock: time.Now,
		jobs: map[string]*model.CronJob{}, schedules: map[string]robfigcron.Schedule{},
		executions: executions,
	}
	for _, job := range jobs {
		s.jobs[job.ID] = job
		if sched, err := ParseSchedule(job.Schedule); err == nil {
			s.schedules[job.ID] = sched
		}
	}
	return s, nil
}

// Jobs returns a snapshot of all registered jobs.
func (s *Scheduler) Jobs() []*model.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Executions returns jobID's persisted execution history, oldest first.
func (s *Scheduler) Executions(jobID string) []model.JobExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.JobExecution(nil), s.executions[jobID]...)
}

// RegisterJob adds or replaces a job, rejecting an unparseable schedule.
func (s *Scheduler) RegisterJob(job *model.CronJob) error {
	sched, err := ParseSchedule(job.Schedule)
	if err != nil {
		return &apperr.ScheduleParseError{JobID: job.ID, Expression: job.Schedule, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.schedules[job.ID] = sched
	return s.persistLocked()
}

// UnregisterJob removes a job by ID.
func (s *Scheduler) UnregisterJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.schedules, id)
	delete(s.executions, id)
	return s.persistLocked()
}

func (s *Scheduler) persistLocked() error {
	jobs := make([]*model.CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return s.Store.Save(jobs, s.executions)
}

// Start runs the per-minute tick loop until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// RunOnce evaluates every enabled job against now and fires the ones that
// match and haven't already fired this minute (spec §4.8's debounce rule).
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.Clock()
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	due := make([]*model.CronJob, 0)
	for id, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		sched, ok := s.schedules[id]
		if !ok {
			continue
		}
		tickTime := now
		if job.Timezone != "" {
			if loc, err := time.LoadLocation(job.Timezone); err == nil {
				tickTime = now.In(loc)
			}
		}
		if !Matches(sched, tickTime) {
			continue
		}
		if job.LastMatchedMinute().Equal(minute) {
			continue
		}
		job.SetLastMatchedMinute(minute)
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.runJob(ctx, job, now)
	}

	s.mu.Lock()
	_ = s.persistLocked()
	s.mu.Unlock()
}

// runJob spawns a session for job and feeds it job.Prompt, recording
// lastRunIso/runCount/lastError and execution history regardless of outcome
// (spec §4.8: "persist lastRunIso and increment runCount regardless of
// success; on failure record the error string").
func (s *Scheduler) runJob(ctx context.Context, job *model.CronJob, startedAt time.Time) {
	if s.OnFire != nil {
		s.OnFire(job.ID)
	}
	role := job.Role
	if role == "" {
		role = model.RoleQuick
	}
	ephemeral := job.SessionTarget != model.SessionTargetPersistent
	sessionID := job.ID
	if ephemeral {
		sessionID = fmt.Sprintf("cron-%s-%d", job.ID, startedAt.UnixNano())
	}

	var execErr error
	sess, err := s.Sessions.Load(sessionID, role, model.SessionLimits{}, ephemeral)
	if err != nil {
		execErr = err
	} else if _, err := s.Sessions.Send(ctx, sess, job.Prompt); err != nil {
		execErr = err
	}

	finishedAt := s.Clock()

	s.mu.Lock()
	job.LastRunIso = startedAt.Format(time.RFC3339)
	job.RunCount++
	if execErr != nil {
		job.LastError = execErr.Error()
	} else {
		job.LastError = ""
	}
	execution := model.JobExecution{ID: uuid.NewString(), JobID: job.ID, StartedAt: startedAt, FinishedAt: finishedAt}
	if execErr != nil {
		execution.Error = execErr.Error()
	}
	s.executions[job.ID] = append(s.executions[job.ID], execution)
	s.mu.Unlock()
}
