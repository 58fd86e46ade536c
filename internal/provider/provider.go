// Package provider defines the uniform capability interface over the two
// wire dialects (spec §4.1) and the role→provider registry.
package provider

import (
	"context"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// ChatOptions configures one Chat or Stream call.
type ChatOptions struct {
	System    string
	MaxTokens int
	Tools     []model.ToolDescriptor
}

// StopReason is why a Chat/Stream call stopped producing content.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// Usage is token accounting for one call, forwarded to the cost ledger.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
}

// ChatResult is the dialect-agnostic value every provider reduces its wire
// response to (spec §9 design note: "duck-typed provider responses...flow
// through the core as a uniform ChatResult").
type ChatResult struct {
	Content    string
	ToolCalls  []model.ToolCall
	StopReason StopReason
	Usage      Usage
}

// ChunkKind tags a streaming chunk's payload.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkToolUse  ChunkKind = "tool_use"
	ChunkUsage    ChunkKind = "usage"
	ChunkError    ChunkKind = "error"
)

// StreamChunk is one element of the lazy sequence Stream produces.
type StreamChunk struct {
	Kind     ChunkKind
	Text     string
	ToolCall *model.ToolCall
	Usage    Usage
	Err      error
}

// Provider is implemented once per dialect (A and O).
type Provider interface {
	// Name identifies the provider kind, e.g. "anthropic" or "openai".
	Name() string
	// ModelName reports the concrete model string this provider calls,
	// used to key cost-ledger pricing lookups.
	ModelName() string
	// Dialect reports which of the two wire dialects this provider speaks.
	Dialect() model.Dialect
	// Chat performs one non-streaming call.
	Chat(ctx context.Context, messages []model.Message, opts ChatOptions) (*ChatResult, error)
	// Stream performs one streaming call, closing the channel when done.
	Stream(ctx context.Context, messages []model.Message, opts ChatOptions) <-chan StreamChunk
}
