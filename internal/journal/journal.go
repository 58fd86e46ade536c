// Package journal implements the minimal date-keyed plain-text journal
// store that session compaction and the append_note tool append notes to
// and the heartbeat pipeline reads and ticks tasks in. Rich journal formatting/rendering is an external
// collaborator's concern (spec §1 Non-goals) — this package only owns
// "does today's file exist, read it, append a line to it".
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileJournal is a directory of "YYYY-MM-DD.md" files, one per local date.
type FileJournal struct {
	dir string
	now func() time.Time
}

// New returns a FileJournal rooted at dir.
func New(dir string, now func() time.Time) *FileJournal {
	if now == nil {
		now = time.Now
	}
	return &FileJournal{dir: dir, now: now}
}

func (j *FileJournal) todayPath() string {
	return filepath.Join(j.dir, j.now().Format("2006-01-02")+".md")
}

// EnsureToday creates today's journal file if it does not exist yet
// (spec §4.7 step 1).
func (j *FileJournal) EnsureToday(ctx context.Context) error {
	if err := os.MkdirAll(j.dir, 0o700); err != nil {
		return err
	}
	path := j.todayPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		header := fmt.Sprintf("# %s\n\n", j.now().Format("2006-01-02"))
		return os.WriteFile(path, []byte(header), 0o600)
	}
	return nil
}

// ReadToday returns today's journal content, or an empty string if it
// hasn't been created yet.
func (j *FileJournal) ReadToday(ctx context.Context) (string, error) {
	data, err := os.ReadFile(j.todayPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AppendToday appends a single line to today's journal, creating it first
// if necessary.
func (j *FileJournal) AppendToday(ctx context.Context, line string) error {
	if err := j.EnsureToday(ctx); err != nil {
		return err
	}
	f, err := os.OpenFile(j.todayPath(), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// TickTask rewrites the first occurrence of originalLine (an unchecked
// "- [ ] ..." task line) to its checked form in today's journal
// (spec §4.7 step 8: "rewriting `- [ ] <text>` to `- [x] <text>`").
func (j *FileJournal) TickTask(ctx context.Context, originalLine string) error {
	path := j.todayPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	checked := strings.Replace(originalLine, "[ ]", "[x]", 1)
	content := string(data)
	updated := strings.Replace(content, originalLine, checked, 1)
	if updated == content {
		return nil // line already ticked or not found; non-fatal
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(updated), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
