package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/sentineld/internal/tool"
)

type fakeJournal struct {
	text    string
	appends []string
}

func (f *fakeJournal) ReadToday(ctx context.Context) (string, error) { return f.text, nil }

func (f *fakeJournal) AppendToday(ctx context.Context, line string) error {
	f.appends = append(f.appends, line)
	return nil
}

type fakeSessions struct{ ids []string }

func (f *fakeSessions) List() ([]string, error) { return f.ids, nil }

func TestRegisterWiresJournalAndSessionTools(t *testing.T) {
	reg := tool.NewRegistry()
	journal := &fakeJournal{text: "did a thing"}
	sessions := &fakeSessions{ids: []string{"a", "b"}}

	require.NoError(t, Register(reg, journal, sessions))

	out, isErr := reg.Execute(context.Background(), "read_journal", json.RawMessage(`{}`), &tool.Ctx{})
	require.False(t, isErr)
	require.Equal(t, "did a thing", out)

	out, isErr = reg.Execute(context.Background(), "append_note", json.RawMessage(`{"note":"ship it"}`), &tool.Ctx{})
	require.False(t, isErr)
	require.Equal(t, "noted", out)
	require.Equal(t, []string{"ship it"}, journal.appends)

	out, isErr = reg.Execute(context.Background(), "list_sessions", json.RawMessage(`{}`), &tool.Ctx{})
	require.False(t, isErr)
	require.JSONEq(t, `["a","b"]`, out)
}

func TestAppendNoteRequiresNonEmptyNote(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, Register(reg, &fakeJournal{}, nil))

	out, isErr := reg.Execute(context.Background(), "append_note", json.RawMessage(`{"note":""}`), &tool.Ctx{})
	require.True(t, isErr)
	require.Contains(t, out, "note is required")
}
