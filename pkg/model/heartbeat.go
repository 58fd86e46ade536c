package model

// HeartbeatEventType distinguishes the four sources a heartbeat tick scans.
type HeartbeatEventType string

const (
	EventInbox HeartbeatEventType = "inbox"
	EventTask  HeartbeatEventType = "task"
	EventGitHub HeartbeatEventType = "github"
	EventIdle  HeartbeatEventType = "idle"
)

// Route is a triage pre-routing decision that skips Tier 1 for an event.
type Route string

const (
	RouteMain Route = "main"
	RouteAct  Route = "act"
)

// HeartbeatEvent is one unit of work discovered during the source-scan step
// of a heartbeat tick (spec §4.7 step 2-3).
type HeartbeatEvent struct {
	Type         HeartbeatEventType `json:"type"`
	Summary      string             `json:"summary"`
	Route        Route              `json:"route,omitempty"`
	OriginalText string             `json:"original_text,omitempty"`
	PriorOutcome string             `json:"prior_outcome,omitempty"`
}

// TriageAction is the classifier's verdict for one event (spec §4.7 step 5).
type TriageAction string

const (
	ActionIgnore   TriageAction = "IGNORE"
	ActionLog      TriageAction = "LOG"
	ActionAlert    TriageAction = "ALERT"
	ActionAct      TriageAction = "ACT"
	ActionEscalate TriageAction = "ESCALATE"
)

// TriageVerdict is one parsed entry of the Tier-1 router's JSON array response.
type TriageVerdict struct {
	Event  string       `json:"event"`
	Action TriageAction `json:"action"`
	Reason string       `json:"reason"`
}

// EventOutcome records what ultimately happened to a handled event.
type EventOutcome string

const (
	OutcomeIgnored          EventOutcome = "ignored"
	OutcomeAlerted          EventOutcome = "alerted"
	OutcomeActed            EventOutcome = "acted"
	OutcomeEscalated        EventOutcome = "escalated"
	OutcomeActCrashed       EventOutcome = "act_crashed"
	OutcomeEscalationFailed EventOutcome = "escalation_failed"
)

// HandledEvent is one entry of the heartbeat state's handledEvents map,
// keyed by the hash of its normalized summary (spec §4.7 step 8).
type HandledEvent struct {
	Date        string       `json:"date"`
	Outcome     EventOutcome `json:"outcome"`
	Attempts    int          `json:"attempts"`
	LastAttempt string       `json:"last_attempt"`
}

// AuditToolCall is one tool invocation captured in a Tier-2 audit record.
type AuditToolCall struct {
	Tool   string `json:"tool"`
	Args   string `json:"args"`
	Result string `json:"result"` // truncated to 500 chars
}

// AuditRecord is one Tier-2 (ACT) audit log entry (spec §4.7 step 6).
type AuditRecord struct {
	Timestamp  string          `json:"timestamp"`
	Tier       int             `json:"tier"`
	Model      string          `json:"model"`
	Events     []string        `json:"events"`
	ToolCalls  []AuditToolCall `json:"tool_calls"`
	Response   string          `json:"response"` // truncated to 500 chars
	ToolErrors bool            `json:"tool_errors"`
}

// AuditCap is the maximum number of retained audit records (spec §6).
const AuditCap = 50

// HeartbeatState is rewritten on every heartbeat tick (spec §3 Lifecycles).
type HeartbeatState struct {
	LastRun         string                  `json:"last_run,omitempty"`
	LastInboxCheck  string                  `json:"last_inbox_check,omitempty"`
	SeenGitHub      []string                `json:"seen_github,omitempty"`
	HandledEvents   map[string]HandledEvent `json:"handled_events,omitempty"`
	LastUserContact string                  `json:"last_user_contact,omitempty"`
}

// SeenGitHubCap is the retention bound for SeenGitHub IDs (spec §4.7 step 2).
const SeenGitHubCap = 200
