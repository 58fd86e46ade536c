package heartbeat

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// StateStore persists model.HeartbeatState atomically.
type StateStore struct {
	path string
}

// NewStateStore returns a StateStore backed by dataDir/heartbeat-state.json.
func NewStateStore(dataDir string) *StateStore {
	return &StateStore{path: filepath.Join(dataDir, "heartbeat-state.json")}
}

// Load reads the persisted state, or a zero-value state if none exists yet.
func (s *StateStore) Load() (*model.HeartbeatState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &model.HeartbeatState{HandledEvents: map[string]model.HandledEvent{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var state model.HeartbeatState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.HandledEvents == nil {
		state.HandledEvents = map[string]model.HandledEvent{}
	}
	return &state, nil
}

// Save atomically persists state (spec §4.7 step 8).
func (s *StateStore) Save(state *model.HeartbeatState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// AuditStore persists a capped ring of model.AuditRecord entries
// (spec §4.7 step 6: "capped (50-entry) audit log").
type AuditStore struct {
	path string
}

// NewAuditStore returns an AuditStore backed by dataDir/heartbeat-audit.json.
func NewAuditStore(dataDir string) *AuditStore {
	return &AuditStore{path: filepath.Join(dataDir, "heartbeat-audit.json")}
}

// Load returns the persisted audit records, oldest first.
func (a *AuditStore) Load() ([]model.AuditRecord, error) {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []model.AuditRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Append adds record, evicting the oldest entries beyond model.AuditCap,
// and persists atomically.
func (a *AuditStore) Append(record model.AuditRecord) error {
	records, err := a.Load()
	if err != nil {
		return err
	}
	records = append(records, record)
	if len(records) > model.AuditCap {
		records = records[len(records)-model.AuditCap:]
	}

	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, a.path)
}
