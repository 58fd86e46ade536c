package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInboxWatcherDrainReportsNewFiles(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewInboxWatcher(dir)
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0o600))

	require.Eventually(t, func() bool {
		return len(watcher.Drain()) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInboxWatcherDrainClearsPending(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewInboxWatcher(dir)
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o600))
	require.Eventually(t, func() bool {
		return len(watcher.Drain()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Empty(t, watcher.Drain())
}
