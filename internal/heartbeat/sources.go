// Package heartbeat implements the L3 heartbeat pipeline (spec §4.7): the
// per-tick source scan, idle-awareness synthesis, Tier-1 triage, Tier-2 ACT,
// and Tier-3 ESCALATE routing, with capped audit logging and state
// persistence.
//
// Grounded on internal/heartbeat/runner.go and
// internal/agents/heartbeat/heartbeat.go of the teacher repo for the
// ticker/goroutine loop idiom and idle-hours gating; the 3-tier triage/ACT/
// ESCALATE routing itself is new logic written to satisfy spec §4.7.
package heartbeat

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// ScanInbox lists files under dir modified since `since`, producing one
// event per file (spec §4.7 step 2, source "inbox").
func ScanInbox(dir string, since time.Time) ([]model.HeartbeatEvent, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var events []model.HeartbeatEvent
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(since) {
			events = append(events, model.HeartbeatEvent{
				Type:    model.EventInbox,
				Summary: fmt.Sprintf("New inbox file: %s", entry.Name()),
			})
		}
	}
	return events, nil
}

var taskLinePattern = regexp.MustCompile(`^-\s*\[\s\]\s*(.+)$`)
var tagPattern = regexp.MustCompile(`#(main|act|escalate)\b`)

// ParseTasks scans journalText for unchecked "- [ ] ..." lines and routes
// them by their #main/#act tag (#escalate aliases to #main), retaining the
// original line text so it can be ticked later (spec §4.7 step 2, source
// "tasks"). Untagged lines carry no route and are left to Tier-1 triage.
func ParseTasks(journalText string) []model.HeartbeatEvent {
	var events []model.HeartbeatEvent
	scanner := bufio.NewScanner(strings.NewReader(journalText))
	for scanner.Scan() {
		line := scanner.Text()
		m := taskLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		var route model.Route
		if tag := tagPattern.FindStringSubmatch(m[1]); tag != nil {
			route = model.RouteMain
			if tag[1] == "act" {
				route = model.RouteAct
			}
		}
		events = append(events, model.HeartbeatEvent{
			Type:         model.EventTask,
			Summary:      m[1],
			Route:        route,
			OriginalText: line,
		})
	}
	return events
}

// githubNotification is the subset of `gh api notifications` JSON this
// scanner reads.
type githubNotification struct {
	ID      string `json:"id"`
	Subject struct {
		Title string `json:"title"`
	} `json:"subject"`
}

// ScanGitHub shells out to the GitHub CLI for pending notifications,
// deduplicating against seen (capped at model.SeenGitHubCap entries,
// spec §4.7 step 2).
func ScanGitHub(ctx context.Context, ghPath string, seen []string) (events []model.HeartbeatEvent, updatedSeen []string, err error) {
	if ghPath == "" {
		return nil, seen, nil
	}
	cmd := exec.CommandContext(ctx, ghPath, "api", "notifications")
	out, err := cmd.Output()
	if err != nil {
		return nil, seen, fmt.Errorf("heartbeat: github cli: %w", err)
	}

	var notifications []githubNotification
	if err := json.Unmarshal(out, &notifications); err != nil {
		return nil, seen, fmt.Errorf("heartbeat: parse github notifications: %w", err)
	}

	seenSet := make(map[string]bool, len(seen))
	for _, id := range seen {
		seenSet[id] = true
	}

	newSeen := append([]string(nil), seen...)
	for _, n := range notifications {
		if seenSet[n.ID] {
			continue
		}
		events = append(events, model.HeartbeatEvent{
			Type:    model.EventGitHub,
			Summary: fmt.Sprintf("GitHub notification: %s", n.Subject.Title),
		})
		newSeen = append(newSeen, n.ID)
	}
	if len(newSeen) > model.SeenGitHubCap {
		newSeen = newSeen[len(newSeen)-model.SeenGitHubCap:]
	}
	return events, newSeen, nil
}

var timeOfDayPattern = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\s*(am|pm|AM|PM)?\b`)

// normalizeSummaryHash hashes an event's summary with time-of-day stripped,
// so the same recurring event (e.g. "check inbox at 14:32") matches across
// ticks (spec §4.7 step 4: "hashed by normalized summary, stripping
// time-of-day").
func normalizeSummaryHash(summary string) string {
	normalized := strings.ToLower(strings.TrimSpace(timeOfDayPattern.ReplaceAllString(summary, "")))
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// journalPath returns today's journal file path under dir.
func journalPath(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("2006-01-02")+".md")
}
