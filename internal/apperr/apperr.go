// Package apperr defines the error kinds the core distinguishes (spec §7).
// Each kind is a distinct type so call sites can classify with errors.As,
// matching the teacher's wrap-with-%w idiom (see providers/anthropic.go's
// wrapError) rather than sentinel string matching.
package apperr

import "fmt"

// ConfigMissingError marks a required setting absent at a call site.
type ConfigMissingError struct {
	Setting string
	Hint    string
}

func (e *ConfigMissingError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("config: %s is not set (%s)", e.Setting, e.Hint)
	}
	return fmt.Sprintf("config: %s is not set", e.Setting)
}

// CredentialMissingError marks an absent credential, surfaced at first use.
type CredentialMissingError struct {
	Name string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("credential: %s is not configured", e.Name)
}

// ProviderWireError wraps a 4xx/5xx or malformed-stream failure from a model provider.
type ProviderWireError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderWireError) Error() string {
	return fmt.Sprintf("provider %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderWireError) Unwrap() error { return e.Err }

// ToolError is the string returned by a failing tool executor, or matched
// by the ACT-tier heuristic; it never aborts the round (spec §4.3 step 4e).
type ToolError struct {
	Tool string
	Msg  string
}

func (e *ToolError) Error() string { return fmt.Sprintf("Error: %s: %s", e.Tool, e.Msg) }

// CompactionError marks a compaction-path failure; always recoverable by
// falling back to archival + sanitizeOrphans without a summary.
type CompactionError struct {
	Err error
}

func (e *CompactionError) Error() string { return fmt.Sprintf("compaction: %v", e.Err) }
func (e *CompactionError) Unwrap() error { return e.Err }

// TickReentryError marks a dropped (not queued) reentrant heartbeat or cron tick.
type TickReentryError struct {
	Tick string
}

func (e *TickReentryError) Error() string { return fmt.Sprintf("%s tick already in flight", e.Tick) }

// ScheduleParseError marks a bad cron expression; the job is disabled, others continue.
type ScheduleParseError struct {
	JobID      string
	Expression string
	Err        error
}

func (e *ScheduleParseError) Error() string {
	return fmt.Sprintf("cron job %s: invalid schedule %q: %v", e.JobID, e.Expression, e.Err)
}

func (e *ScheduleParseError) Unwrap() error { return e.Err }

// PersistenceRaceError marks a torn read during an atomic temp-file+rename
// write; readers may observe the prior version, never a partial one.
type PersistenceRaceError struct {
	Path string
	Err  error
}

func (e *PersistenceRaceError) Error() string {
	return fmt.Sprintf("persistence race on %s: %v", e.Path, e.Err)
}

func (e *PersistenceRaceError) Unwrap() error { return e.Err }
