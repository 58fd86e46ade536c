package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowlistEmptyAllowsEveryone(t *testing.T) {
	a := NewAllowlist(nil)
	require.True(t, a.Allows("anyone"))
}

func TestAllowlistRestrictsToConfiguredSenders(t *testing.T) {
	a := NewAllowlist([]string{"u1"})
	require.True(t, a.Allows("u1"))
	require.False(t, a.Allows("u2"))
}

func TestConversationStoreResolveCreatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConversationStore(dir, "telegram")
	require.NoError(t, err)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sessionID, stale, err := store.Resolve("conv-1", now, func() string { return "new-session" })
	require.NoError(t, err)
	require.Equal(t, "new-session", sessionID)
	require.True(t, stale) // zero-value PromptBuiltAt is always stale

	reloaded, err := NewConversationStore(dir, "telegram")
	require.NoError(t, err)
	again, stale, err := reloaded.Resolve("conv-1", now, func() string { return "should-not-be-used" })
	require.NoError(t, err)
	require.Equal(t, "new-session", again)
	require.True(t, stale)
}

func TestConversationStoreMarkPromptBuiltClearsStaleness(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConversationStore(dir, "telegram")
	require.NoError(t, err)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	_, _, err = store.Resolve("conv-1", now, func() string { return "sess" })
	require.NoError(t, err)
	require.NoError(t, store.MarkPromptBuilt("conv-1", now))

	_, stale, err := store.Resolve("conv-1", now.Add(time.Minute), func() string { return "sess" })
	require.NoError(t, err)
	require.False(t, stale)

	_, stale, err = store.Resolve("conv-1", now.Add(6*time.Minute), func() string { return "sess" })
	require.NoError(t, err)
	require.True(t, stale)
}
