// Package gateway implements the L4 daemon supervisor (spec §4.10): boot
// order, graceful shutdown, and heartbeat-interval hot reload.
//
// Grounded on internal/gateway/singleton_lock.go and lifecycle.go of the
// teacher repo (PID-file locking, staged Start/Stop).
package gateway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/haasonsaas/sentineld/internal/apperr"
)

// pidPayload is the JSON structure stored in the PID file.
type pidPayload struct {
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
}

// Lock is a held PID-file lock, released on process exit via Release.
type Lock struct {
	path string
}

// AcquirePIDLock implements spec §4.10 step 2: if a PID file exists and
// the prior process is alive, send it a termination signal and wait
// briefly before taking over; an unreadable or stale file is removed.
func AcquirePIDLock(dataDir string) (*Lock, error) {
	path := filepath.Join(dataDir, "sentineld.pid")

	if data, err := os.ReadFile(path); err == nil {
		var prior pidPayload
		if json.Unmarshal(data, &prior) == nil && prior.PID > 0 && prior.PID != os.Getpid() {
			if proc, err := os.FindProcess(prior.PID); err == nil {
				if err := proc.Signal(syscall.SIGTERM); err == nil {
					deadline := time.Now().Add(2 * time.Second)
					for time.Now().Before(deadline) {
						if proc.Signal(syscall.Signal(0)) != nil {
							break
						}
						time.Sleep(50 * time.Millisecond)
					}
				}
			}
		}
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	payload := pidPayload{PID: os.Getpid(), StartedAt: time.Now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Release removes the PID file (spec §4.10: "remove the PID file").
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return &apperr.PersistenceRaceError{Path: l.path, Err: err}
	}
	return nil
}
