package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// Store persists Sessions and their compaction archives under a data
// directory, using the atomic temp-file-then-rename idiom used throughout
// the daemon (config.Save, costledger.Ledger.persist, tool.Quarantine).
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir/sessions.
func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "sessions")}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) historyPath(id string) string {
	return filepath.Join(s.dir, id+".history.jsonl")
}

// Load reads a persisted session. A missing file is not an error; the
// caller is expected to treat (nil, nil) as "create a new session".
func (s *Store) Load(id string) (*model.Session, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session store: decode %s: %w", id, err)
	}
	return &sess, nil
}

// Save atomically persists sess. Ephemeral sessions are never written
// (spec §4.7 step 6: "the session object is not saved").
func (s *Store) Save(sess *model.Session) error {
	if sess.Ephemeral {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(sess.ID))
}

// List returns every persisted session ID (spec §6 `GET /api/sessions`).
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".history.jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Archive appends discarded messages as a JSON-lines file sibling to the
// session file (spec §4.5 step 3).
func (s *Store) Archive(sessionID string, discarded []model.Message) error {
	if len(discarded) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.historyPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, msg := range discarded {
		if err := enc.Encode(msg); err != nil {
			return err
		}
	}
	return w.Flush()
}
