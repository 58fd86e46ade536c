package gateway

import (
	"sync"
	"time"
)

// LogCap bounds the in-memory gateway log surfaced at GET /api/gateway/log
// (same capped-slice idiom as cron.ExecutionHistoryCap and
// heartbeat.AuditCap).
const LogCap = 500

// LogEntry is one line of the gateway's own boot/shutdown/error log, kept
// in memory for the panel rather than tailed from a file.
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// LogRing is a fixed-capacity, goroutine-safe log buffer.
type LogRing struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogRing returns an empty ring.
func NewLogRing() *LogRing { return &LogRing{} }

// Append records an entry, evicting the oldest once LogCap is exceeded.
func (r *LogRing) Append(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > LogCap {
		r.entries = r.entries[len(r.entries)-LogCap:]
	}
}

// Snapshot returns a copy of the currently retained entries, oldest first.
func (r *LogRing) Snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.entries...)
}
