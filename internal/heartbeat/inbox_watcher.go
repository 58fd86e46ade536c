package heartbeat

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// InboxWatcher replaces a polling os.Stat loop over the inbox directory
// (spec §4.7 step 2) with an fsnotify watch: a background goroutine
// accumulates create/write events between ticks, and Drain reports and
// clears them at tick time. Pipeline falls back to the mtime-diff
// ScanInbox when no watcher is wired, so tests can stay watcher-free.
type InboxWatcher struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]bool

	done chan struct{}
}

// NewInboxWatcher starts watching dir. The directory must already exist;
// callers create it via gateway.MigrateDataDir or Journal.EnsureToday-style
// lazy creation before calling this.
func NewInboxWatcher(dir string) (*InboxWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("heartbeat: inbox watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("heartbeat: watch inbox dir %s: %w", dir, err)
	}

	iw := &InboxWatcher{watcher: w, pending: map[string]bool{}, done: make(chan struct{})}
	go iw.run()
	return iw, nil
}

func (iw *InboxWatcher) run() {
	defer close(iw.done)
	for {
		select {
		case ev, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			iw.mu.Lock()
			iw.pending[ev.Name] = true
			iw.mu.Unlock()
		case _, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Drain returns one HeartbeatEvent per file touched since the last Drain,
// then clears the pending set.
func (iw *InboxWatcher) Drain() []model.HeartbeatEvent {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if len(iw.pending) == 0 {
		return nil
	}
	events := make([]model.HeartbeatEvent, 0, len(iw.pending))
	for name := range iw.pending {
		events = append(events, model.HeartbeatEvent{
			Type:    model.EventInbox,
			Summary: fmt.Sprintf("New inbox file: %s", name),
		})
	}
	iw.pending = map[string]bool{}
	return events
}

// Close stops the watcher goroutine.
func (iw *InboxWatcher) Close() error {
	err := iw.watcher.Close()
	<-iw.done
	return err
}
