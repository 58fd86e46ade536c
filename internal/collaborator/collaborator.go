// Package collaborator declares the contracts for the six external
// subsystems spec §6 names as collaborators but marks out of scope for this
// module: credential storage, the journal, vault search, semantic memory
// recall, knowledge-graph extraction, and user notification.
//
// Every interface here is intentionally narrow and owned by its caller
// package (internal/identity and internal/session each declare their own
// minimal view); this package exists so cmd/sentineld has one place to wire
// concrete implementations against, and so the contracts are documented
// together even though no concrete implementation ships in this module.
package collaborator

import "context"

// CredentialStore resolves a named credential (API key, token) at runtime.
// Out of scope: concrete implementation is the external vault (spec §1).
type CredentialStore interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Journal appends to and reads today's journal file.
type Journal interface {
	ReadToday(ctx context.Context) (string, error)
	AppendToday(ctx context.Context, line string) error
}

// VaultSearch performs full-text search over the external credential/notes vault.
// Out of scope: no concrete implementation ships here (spec §1).
type VaultSearch interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// MemoryRecall performs semantic recall against the user's long-term memory store.
type MemoryRecall interface {
	Recall(ctx context.Context, userTurn string) (string, error)
}

// GraphExtractor ingests a conversation summary into the knowledge graph.
// Calls must be fire-and-forget from the caller's perspective (spec §4.5 step 7).
type GraphExtractor interface {
	Ingest(ctx context.Context, summary string) error
}

// Notifier delivers a message to the user outside the active channel
// (e.g. a push notification), used by the heartbeat escalation tier.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
