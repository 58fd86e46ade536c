// Package model holds the data shapes shared by every daemon subsystem:
// sessions, messages, tool calls, cron jobs, and heartbeat events.
package model

import (
	"encoding/json"
	"time"
)

// Dialect identifies a provider's wire format for tool calls, tool results,
// system prompts, and streaming events.
type Dialect string

const (
	DialectA Dialect = "a" // Claude-style: typed content blocks, distinct system field.
	DialectO Dialect = "o" // OpenAI-style: system as first message, tool_calls array.
)

// Role is a logical model identity mapped to a concrete provider+model by configuration.
type Role string

const (
	RoleDefault Role = "default"
	RoleQuick   Role = "quick"
	RoleRouter  Role = "router"
	RoleDeep    Role = "deep"
	RoleBrowser Role = "browser"
)

// MessageKind tags the variant a Message carries.
type MessageKind string

const (
	KindUserText          MessageKind = "user_text"
	KindUserToolResults    MessageKind = "user_tool_results"    // A-dialect: packed tool_result content blocks
	KindToolResult         MessageKind = "tool_result"          // O-dialect: one role="tool" turn per result
	KindAssistantText      MessageKind = "assistant_text"
	KindAssistantToolCalls MessageKind = "assistant_tool_calls"
)

// ToolCall is an LLM's request to execute a named tool with JSON arguments.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultPair is one {toolCallId, content} entry, used both for A-dialect
// packed results and as the per-call payload of O-dialect tool messages.
type ToolResultPair struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is the tagged-variant chat turn described in spec §3.
//
// Exactly one of the Kind-specific fields is populated, selected by Kind.
// SystemInjection is intentionally absent here: it is never persisted, only
// composed on the fly by the identity layer (spec §4.3 step 3).
type Message struct {
	Kind      MessageKind      `json:"kind"`
	Text      string           `json:"text,omitempty"`
	Results   []ToolResultPair `json:"results,omitempty"` // KindUserToolResults, KindToolResult
	Calls     []ToolCall       `json:"calls,omitempty"`   // KindAssistantToolCalls
	CreatedAt time.Time        `json:"created_at"`
}

// IsToolResultOnly reports whether m carries only tool results and no
// standalone user question — used by the compaction safe-split search
// (spec §4.5 step 1) to skip past A-dialect tool-result carrier turns.
func (m Message) IsToolResultOnly() bool {
	return m.Kind == KindUserToolResults || m.Kind == KindToolResult
}

// IsUserQuestion reports whether m is a genuine user turn eligible to start
// a retained slice after compaction.
func (m Message) IsUserQuestion() bool {
	return m.Kind == KindUserText
}

// CostSummary accumulates a session's spend across its lifetime.
// TotalUsd is monotonically non-decreasing (spec §3 invariant).
type CostSummary struct {
	TotalUsd     float64 `json:"total_usd"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CallCount    int64   `json:"call_count"`
}

// SessionMetadata is the bookkeeping envelope persisted alongside a Session.
type SessionMetadata struct {
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Cost      CostSummary `json:"cost"`
}

// TaskStatus is the lifecycle of one task-plan entry.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// PlanTask is one entry of an in-session task plan.
type PlanTask struct {
	ID     string     `json:"id"`
	Text   string     `json:"text"`
	Status TaskStatus `json:"status"`
}

// TaskPlan is the optional in-session plan a session is tracking.
type TaskPlan struct {
	Goal  string     `json:"goal"`
	Tasks []PlanTask `json:"tasks"`
}

// Outfit narrows a session's capabilities: a prompt fragment plus an
// optional tool allow-list and preloaded context names.
type Outfit struct {
	Name     string   `json:"name"`
	Content  string   `json:"content"`
	Tools    []string `json:"tools,omitempty"`
	Contexts []string `json:"contexts,omitempty"`
}

// SessionLimits bounds one session's tool-use loop.
type SessionLimits struct {
	MaxToolRounds  int      `json:"max_tool_rounds"`
	CostCeilingUsd *float64 `json:"cost_ceiling_usd,omitempty"`
	DeadlineMs     *int64   `json:"deadline_ms,omitempty"`
}

// DefaultMaxToolRounds is the bound used by ordinary top-level sessions.
const DefaultMaxToolRounds = 50

// SubAgentMaxToolRounds bounds short-lived sub-agent sessions (spec glossary: Sub-agent).
const SubAgentMaxToolRounds = 20

// LongRunningMaxToolRounds bounds explicitly long-running task sessions.
const LongRunningMaxToolRounds = 200

// Session is the durable conversation record described in spec §3.
type Session struct {
	ID       string          `json:"id"`
	Messages []Message       `json:"messages"`
	Contexts []string        `json:"contexts"`
	Role     Role            `json:"role"`
	Metadata SessionMetadata `json:"metadata"`
	TaskPlan *TaskPlan       `json:"task_plan,omitempty"`
	Outfit   *Outfit         `json:"outfit,omitempty"`
	Limits   SessionLimits   `json:"limits"`

	// Ephemeral marks a sub-agent session created for heartbeat ACT tier
	// or cron work that must never be written to disk (spec §4.7 step 6).
	Ephemeral bool `json:"-"`
}

// Provider is a stateless value identifying one configured model backend.
type Provider struct {
	Kind          Dialect `json:"kind"`
	Model         string  `json:"model"`
	CredentialKey string  `json:"credential_key,omitempty"`
	BaseURL       string  `json:"base_url,omitempty"`
}

// ToolDescriptor is a registered tool's name, schema, and executor contract.
// The executor signature itself lives in package tool to avoid an import
// cycle with package model; this struct only carries the wire-visible shape.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Builtin     bool            `json:"builtin"`
}
