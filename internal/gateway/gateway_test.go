package gateway

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateDataDirCreatesSubdirsIdempotently(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, MigrateDataDir(dir))
	require.NoError(t, MigrateDataDir(dir)) // idempotent second call

	for _, sub := range dataSubdirs {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestAcquirePIDLockWritesAndReleasesFile(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquirePIDLock(dir)
	require.NoError(t, err)

	pidPath := filepath.Join(dir, "sentineld.pid")
	_, err = os.Stat(pidPath)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(pidPath)
	require.True(t, os.IsNotExist(err))
}

func TestLogRingCapsEntries(t *testing.T) {
	ring := NewLogRing()
	for i := 0; i < LogCap+10; i++ {
		ring.Append(LogEntry{Message: "line"})
	}
	require.Len(t, ring.Snapshot(), LogCap)
}
