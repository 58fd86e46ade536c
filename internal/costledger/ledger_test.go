package costledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/sentineld/pkg/model"
	"github.com/stretchr/testify/require"
)

func TestRecordAccumulatesPerRoleAndTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cost-log.json")
	fixedNow := func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ledger, err := New(path, fixedNow)
	require.NoError(t, err)

	_, err = ledger.Record("anthropic", "claude-3-5-haiku-20241022", model.RoleQuick, 1_000_000, 1_000_000, 0)
	require.NoError(t, err)
	_, err = ledger.Record("anthropic", "claude-sonnet-4-20250514", model.RoleDefault, 1_000_000, 1_000_000, 0)
	require.NoError(t, err)

	today := ledger.Today()
	require.Equal(t, int64(2), today.CallCount)

	var sumPerRole float64
	var countPerRole int64
	for _, rt := range today.PerRole {
		sumPerRole += rt.CostUsd
		countPerRole++
	}
	require.InDelta(t, today.TotalUsd, sumPerRole, 0.0001)
	require.Equal(t, today.CallCount, countPerRole)
}

func TestBudgetCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cost-log.json")
	fixedNow := func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ledger, err := New(path, fixedNow)
	require.NoError(t, err)

	_, err = ledger.Record("anthropic", "claude-sonnet-4-20250514", model.RoleDefault, 200_000_000, 200_000_000, 0)
	require.NoError(t, err)

	status := ledger.BudgetCheck(2.00, 1.00)
	require.False(t, status.OK)
	require.True(t, status.Warning)
}

func TestRetentionEvictsOldestDays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cost-log.json")
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := day
	ledger, err := New(path, func() time.Time { return current })
	require.NoError(t, err)

	for i := 0; i < RetentionDays+5; i++ {
		current = day.AddDate(0, 0, i)
		_, err := ledger.Record("anthropic", "claude-3-5-haiku-20241022", model.RoleQuick, 1000, 1000, 0)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, len(ledger.days), RetentionDays)
}
