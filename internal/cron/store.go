// Package cron implements the L3 cron scheduler (spec §4.8): five-field
// expression parsing via robfig/cron/v3, a once-per-minute tick loop,
// minute-boundary debounce, and job/execution-history persistence.
//
// Grounded on internal/cron/scheduler.go of the teacher repo (Scheduler,
// functional options, Start/Stop/runDue/runJob, per-minute ticker loop).
package cron

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// ExecutionHistoryCap bounds the retained execution records per job
// (SPEC_FULL §11 enrichment).
const ExecutionHistoryCap = 50

// jobFile is the persisted shape: jobs plus their recent execution history.
type jobFile struct {
	Jobs       []*model.CronJob                  `json:"jobs"`
	Executions map[string][]model.JobExecution   `json:"executions,omitempty"`
}

// Store persists the cron job list and per-job execution history atomically.
type Store struct {
	path string
}

// NewStore returns a Store backed by dataDir/cron.json.
func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, "cron.json")}
}

// Load reads the persisted jobs and execution history.
func (s *Store) Load() ([]*model.CronJob, map[string][]model.JobExecution, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, map[string][]model.JobExecution{}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var f jobFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, err
	}
	if f.Executions == nil {
		f.Executions = map[string][]model.JobExecution{}
	}
	return f.Jobs, f.Executions, nil
}

// Save atomically persists jobs and executions, trimming each job's
// history to ExecutionHistoryCap most-recent entries.
func (s *Store) Save(jobs []*model.CronJob, executions map[string][]model.JobExecution) error {
	trimmed := make(map[string][]model.JobExecution, len(executions))
	for id, history := range executions {
		sort.Slice(history, func(i, j int) bool { return history[i].StartedAt.Before(history[j].StartedAt) })
		if len(history) > ExecutionHistoryCap {
			history = history[len(history)-ExecutionHistoryCap:]
		}
		trimmed[id] = history
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(jobFile{Jobs: jobs, Executions: trimmed}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
