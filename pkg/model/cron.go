package model

import "time"

// SessionTarget chooses where a cron job's prompt is delivered: a disposable
// sub-agent (the spec §4.8 default) or a named persistent session.
type SessionTarget string

const (
	SessionTargetDisposable SessionTarget = "disposable"
	SessionTargetPersistent SessionTarget = "persistent"
)

// WakeMode governs whether a successful cron run notifies the user.
type WakeMode string

const (
	WakeModeQuiet  WakeMode = "quiet"
	WakeModeNotify WakeMode = "notify"
)

// CronJob is the durable job record (spec §3, enriched per SPEC_FULL §11).
type CronJob struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"` // five-field POSIX-like expression
	Prompt     string        `json:"prompt"`
	Enabled    bool          `json:"enabled"`
	LastRunIso string        `json:"last_run_iso,omitempty"`
	RunCount   int64         `json:"run_count"`
	LastError  string        `json:"last_error,omitempty"`

	Timezone      string        `json:"timezone,omitempty"`
	WakeMode      WakeMode      `json:"wake_mode,omitempty"`
	SessionTarget SessionTarget `json:"session_target,omitempty"`
	Role          Role          `json:"role,omitempty"`

	// lastMatchedMinute records the truncated-to-minute boundary of the
	// last tick that fired this job, so two ticks landing in the same
	// minute never double-fire it (spec §4.8).
	lastMatchedMinute time.Time
}

// LastMatchedMinute returns the minute boundary this job last fired on.
func (j *CronJob) LastMatchedMinute() time.Time { return j.lastMatchedMinute }

// SetLastMatchedMinute records the minute boundary of a fire.
func (j *CronJob) SetLastMatchedMinute(t time.Time) { j.lastMatchedMinute = t }

// JobExecution is one recorded run of a CronJob (SPEC_FULL §11 execution history).
type JobExecution struct {
	ID         string    `json:"id"` // opaque correlation id (uuid)
	JobID      string    `json:"job_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}
