// Package builtin provides the daemon's Go-struct-shaped built-in tools
// (spec §4.2). Each tool's JSON Schema is generated from its argument
// struct via github.com/invopop/jsonschema rather than hand-written,
// grounded on internal/config/schema.go of the teacher repo.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/sentineld/internal/tool"
)

var reflector = &jsonschema.Reflector{ExpandedStruct: true}

// schemaOf reflects args into the JSON Schema RegisterBuiltin expects.
func schemaOf(args any) json.RawMessage {
	schema := reflector.Reflect(args)
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("builtin: reflect schema: %v", err))
	}
	return data
}

// Journal is the narrow view of internal/journal.FileJournal these tools need.
type Journal interface {
	ReadToday(ctx context.Context) (string, error)
	AppendToday(ctx context.Context, line string) error
}

type readJournalArgs struct{}

// ReadJournal returns a descriptor for a tool that reads today's journal.
func ReadJournal(j Journal) tool.Descriptor {
	return tool.Descriptor{
		Name:        "read_journal",
		Description: "Reads today's journal entries.",
		Schema:      schemaOf(&readJournalArgs{}),
		Execute: func(ctx context.Context, args json.RawMessage, tc *tool.Ctx) (string, error) {
			return j.ReadToday(ctx)
		},
	}
}

type appendNoteArgs struct {
	Note string `json:"note" jsonschema:"required,description=The line to append to today's journal."`
}

// AppendNote returns a descriptor for a tool that appends a line to today's journal.
func AppendNote(j Journal) tool.Descriptor {
	return tool.Descriptor{
		Name:        "append_note",
		Description: "Appends a single line to today's journal.",
		Schema:      schemaOf(&appendNoteArgs{}),
		Execute: func(ctx context.Context, args json.RawMessage, tc *tool.Ctx) (string, error) {
			var a appendNoteArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return "", fmt.Errorf("append_note: %w", err)
			}
			if a.Note == "" {
				return "", fmt.Errorf("append_note: note is required")
			}
			if err := j.AppendToday(ctx, a.Note); err != nil {
				return "", err
			}
			return "noted", nil
		},
	}
}

type listSessionsArgs struct{}

// SessionLister is the narrow view of internal/session.Store these tools need.
type SessionLister interface {
	List() ([]string, error)
}

// ListSessions returns a descriptor for a tool that lists persisted session IDs.
func ListSessions(s SessionLister) tool.Descriptor {
	return tool.Descriptor{
		Name:        "list_sessions",
		Description: "Lists the IDs of every persisted session.",
		Schema:      schemaOf(&listSessionsArgs{}),
		Execute: func(ctx context.Context, args json.RawMessage, tc *tool.Ctx) (string, error) {
			ids, err := s.List()
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(ids)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

// Register wires journal- and session-backed built-ins into reg, skipping
// any tool whose optional dependency is nil.
func Register(reg *tool.Registry, j Journal, sessions SessionLister) error {
	if j != nil {
		if err := reg.RegisterBuiltin(ReadJournal(j)); err != nil {
			return err
		}
		if err := reg.RegisterBuiltin(AppendNote(j)); err != nil {
			return err
		}
	}
	if sessions != nil {
		if err := reg.RegisterBuiltin(ListSessions(sessions)); err != nil {
			return err
		}
	}
	return nil
}
