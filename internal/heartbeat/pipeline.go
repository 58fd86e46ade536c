package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// HeartbeatSessionID is the persistent Tier-3 session's identity, resumed
// across ticks (spec §4.7 step 7).
const HeartbeatSessionID = "heartbeat-main"

// Journal is the narrow view of internal/journal.FileJournal the pipeline needs.
type Journal interface {
	EnsureToday(ctx context.Context) error
	ReadToday(ctx context.Context) (string, error)
	AppendToday(ctx context.Context, line string) error
	TickTask(ctx context.Context, originalLine string) error
}

// ProfileSource projects a compact user-profile view from the knowledge
// graph, used only by idle awareness (spec §4.7 step 3).
type ProfileSource interface {
	Projection(ctx context.Context) (depth int, snippet string, err error)
}

// toolResultErrorPattern matches the loose heuristic spec §4.7 step 6
// specifies for ACT-tier tool result inspection.
var toolResultErrorPattern = regexp.MustCompile(`(?i)error|not found|failed|no such file`)

// Pipeline runs one heartbeat tick (spec §4.7).
type Pipeline struct {
	Journal       Journal
	InboxDir      string
	InboxWatcher  *InboxWatcher // optional; falls back to mtime-diff ScanInbox when nil
	GitHubCLIPath string
	IdleHourStart int // inclusive, local time
	IdleHourEnd   int // exclusive, local time
	IdleAfter     time.Duration
	Profile       ProfileSource // optional

	Providers *provider.Registry
	Sessions  *session.Engine

	State *StateStore
	Audit *AuditStore

	Clock func() time.Time

	// OnTick, when set, is called once per completed Tick, for metrics wiring.
	OnTick func()
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// Tick runs one full heartbeat cycle. No tool or tier failure aborts the
// tick (spec §4.7 "Failure semantics"): every external call is wrapped so
// Tick itself only returns an error for unrecoverable local I/O (state
// persistence).
func (p *Pipeline) Tick(ctx context.Context) error {
	now := p.now()
	if p.OnTick != nil {
		defer p.OnTick()
	}

	if err := p.Journal.EnsureToday(ctx); err != nil {
		return fmt.Errorf("heartbeat: ensure journal: %w", err)
	}
	state, err := p.State.Load()
	if err != nil {
		return fmt.Errorf("heartbeat: load state: %w", err)
	}

	events, journalText := p.scanSources(ctx, state, now)
	events = p.annotateIdle(ctx, events, state, now)

	if len(events) == 0 {
		state.LastRun = now.Format(time.RFC3339)
		return p.State.Save(state)
	}

	events = annotatePriorOutcomes(events, state, now)

	verdicts := p.triage(ctx, events)
	act, escalate, bookkeeping := partition(events, verdicts)

	act, actEscalated := p.runAct(ctx, act, journalText)
	escalate = append(escalate, actEscalated...)
	bookkeeping = append(bookkeeping, act...)

	escalateOutcomes := p.runEscalate(ctx, escalate)
	bookkeeping = append(bookkeeping, escalateOutcomes...)

	p.applyBookkeeping(ctx, state, bookkeeping, now)
	state.LastRun = now.Format(time.RFC3339)
	return p.State.Save(state)
}

// scanSources runs step 2 for all three configured sources.
func (p *Pipeline) scanSources(ctx context.Context, state *model.HeartbeatState, now time.Time) ([]model.HeartbeatEvent, string) {
	var events []model.HeartbeatEvent

	if p.InboxWatcher != nil {
		events = append(events, p.InboxWatcher.Drain()...)
	} else {
		since := now.Add(-24 * time.Hour)
		if state.LastInboxCheck != "" {
			if t, err := time.Parse(time.RFC3339, state.LastInboxCheck); err == nil {
				since = t
			}
		}
		if inboxEvents, err := ScanInbox(p.InboxDir, since); err == nil {
			events = append(events, inboxEvents...)
		}
	}
	state.LastInboxCheck = now.Format(time.RFC3339)

	journalText, _ := p.Journal.ReadToday(ctx)
	events = append(events, ParseTasks(journalText)...)

	if githubEvents, newSeen, err := ScanGitHub(ctx, p.GitHubCLIPath, state.SeenGitHub); err == nil {
		events = append(events, githubEvents...)
		state.SeenGitHub = newSeen
	}

	return events, journalText
}

// annotateIdle synthesizes a single idle event when nothing else fired, the
// user hasn't been contacted recently, and it's within the configured idle
// hours window (spec §4.7 step 3).
func (p *Pipeline) annotateIdle(ctx context.Context, events []model.HeartbeatEvent, state *model.HeartbeatState, now time.Time) []model.HeartbeatEvent {
	if len(events) != 0 {
		return events
	}
	hour := now.Hour()
	if hour < p.IdleHourStart || hour >= p.IdleHourEnd {
		return events
	}
	idleAfter := p.IdleAfter
	if idleAfter == 0 {
		idleAfter = 2 * time.Hour
	}
	if state.LastUserContact != "" {
		if t, err := time.Parse(time.RFC3339, state.LastUserContact); err == nil && now.Sub(t) < idleAfter {
			return events
		}
	}

	journalText, _ := p.Journal.ReadToday(ctx)
	summary := fmt.Sprintf("Idle check-in. Journal snippet: %s", truncate(journalText, 200))
	event := model.HeartbeatEvent{Type: model.EventIdle, Summary: summary}

	if p.Profile != nil {
		if depth, snippet, err := p.Profile.Projection(ctx); err == nil {
			event.Summary += " Profile: " + snippet
			if depth < 5 {
				event.Route = model.RouteAct
			}
		}
	}
	return []model.HeartbeatEvent{event}
}

// annotatePriorOutcomes attaches the prior outcome for today's matching
// event (spec §4.7 step 4).
func annotatePriorOutcomes(events []model.HeartbeatEvent, state *model.HeartbeatState, now time.Time) []model.HeartbeatEvent {
	today := now.Format("2006-01-02")
	for i := range events {
		hash := normalizeSummaryHash(events[i].Summary)
		if handled, ok := state.HandledEvents[hash]; ok && handled.Date == today {
			events[i].PriorOutcome = string(handled.Outcome)
		}
	}
	return events
}

// triagePromptInstructions is the Tier-1 classifier's instruction block.
const triagePromptInstructions = "Classify each event below. Respond with a JSON array of " +
	"{\"event\": <summary>, \"action\": one of IGNORE|LOG|ALERT|ACT|ESCALATE, \"reason\": <string>}. " +
	"Events that were already attempted today (see their prior outcome) should generally be IGNOREd " +
	"unless this batch changes the context.\n\n"

// triage calls the router role (falling back to quick) for every event that
// wasn't pre-routed (spec §4.7 step 5).
func (p *Pipeline) triage(ctx context.Context, events []model.HeartbeatEvent) map[string]model.TriageVerdict {
	verdicts := map[string]model.TriageVerdict{}
	var toClassify []model.HeartbeatEvent
	for _, e := range events {
		if e.Route == "" {
			toClassify = append(toClassify, e)
		}
	}
	if len(toClassify) == 0 {
		return verdicts
	}

	var b strings.Builder
	b.WriteString(triagePromptInstructions)
	for _, e := range toClassify {
		fmt.Fprintf(&b, "- [%s] %s", e.Type, e.Summary)
		if e.PriorOutcome != "" {
			fmt.Fprintf(&b, " (prior outcome: %s)", e.PriorOutcome)
		}
		b.WriteString("\n")
	}

	resolution, err := p.Providers.Resolve(model.RoleRouter)
	if err != nil {
		resolution, err = p.Providers.Resolve(model.RoleQuick)
	}
	if err != nil {
		return defaultToLog(toClassify)
	}

	result, err := resolution.Provider.Chat(ctx, []model.Message{{Kind: model.KindUserText, Text: b.String()}}, provider.ChatOptions{MaxTokens: 1024})
	if err != nil {
		return defaultToLog(toClassify)
	}

	var parsed []model.TriageVerdict
	if err := json.Unmarshal([]byte(extractJSONArray(result.Content)), &parsed); err != nil {
		return defaultToLog(toClassify)
	}
	for _, v := range parsed {
		verdicts[v.Event] = v
	}
	return verdicts
}

func defaultToLog(events []model.HeartbeatEvent) map[string]model.TriageVerdict {
	verdicts := map[string]model.TriageVerdict{}
	for _, e := range events {
		verdicts[e.Summary] = model.TriageVerdict{Event: e.Summary, Action: model.ActionLog, Reason: "triage parse failure, defaulted to LOG"}
	}
	return verdicts
}

// extractJSONArray trims any prose wrapping a model response down to its
// first top-level JSON array, tolerating models that add commentary.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return "[]"
	}
	return text[start : end+1]
}

// bookkeepingEntry pairs an event with its final outcome for step 8.
type bookkeepingEntry struct {
	event   model.HeartbeatEvent
	outcome model.EventOutcome
}

// partition sorts annotated events into the ACT batch, the ESCALATE batch,
// and the already-final set (ALERT/LOG/IGNORE) per spec §4.7 steps 5-6.
func partition(events []model.HeartbeatEvent, verdicts map[string]model.TriageVerdict) (act, escalate []model.HeartbeatEvent, final []bookkeepingEntry) {
	for _, e := range events {
		if e.Route == model.RouteAct {
			act = append(act, e)
			continue
		}
		if e.Route == model.RouteMain {
			escalate = append(escalate, e)
			continue
		}
		verdict, ok := verdicts[e.Summary]
		if !ok {
			final = append(final, bookkeepingEntry{event: e, outcome: model.OutcomeIgnored})
			continue
		}
		switch verdict.Action {
		case model.ActionAct:
			act = append(act, e)
		case model.ActionEscalate:
			escalate = append(escalate, e)
		case model.ActionAlert:
			final = append(final, bookkeepingEntry{event: e, outcome: model.OutcomeAlerted})
		case model.ActionLog:
			final = append(final, bookkeepingEntry{event: e, outcome: model.OutcomeIgnored})
		default:
			final = append(final, bookkeepingEntry{event: e, outcome: model.OutcomeIgnored})
		}
	}
	return act, escalate, final
}

// runAct executes Tier 2 (spec §4.7 step 6): a disposable, unpersisted
// quick-role session fed all ACT events plus today's journal.
func (p *Pipeline) runAct(ctx context.Context, events []model.HeartbeatEvent, journalText string) (handled []bookkeepingEntry, escalated []model.HeartbeatEvent) {
	if len(events) == 0 {
		return nil, nil
	}

	sess, err := p.Sessions.Load(fmt.Sprintf("heartbeat-act-%d", p.now().UnixNano()), model.RoleQuick, model.SessionLimits{MaxToolRounds: model.SubAgentMaxToolRounds}, true)
	if err != nil {
		return crashEntries(events, err), events
	}

	var b strings.Builder
	b.WriteString("Act on the following events. Today's journal:\n")
	b.WriteString(journalText)
	b.WriteString("\n\nEvents:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- [%s] %s\n", e.Type, e.Summary)
	}

	reply, err := p.Sessions.Send(ctx, sess, b.String())
	if err != nil {
		return crashEntries(events, err), events
	}

	toolErrors := false
	var toolCalls []model.AuditToolCall
	for _, msg := range sess.Messages {
		if msg.Kind == model.KindToolResult || msg.Kind == model.KindUserToolResults {
			for _, r := range msg.Results {
				if toolResultErrorPattern.MatchString(r.Content) {
					toolErrors = true
				}
				toolCalls = append(toolCalls, model.AuditToolCall{Result: truncate(r.Content, 500)})
			}
		}
	}

	_ = p.Audit.Append(model.AuditRecord{
		Timestamp: p.now().Format(time.RFC3339), Tier: 2, Model: string(sess.Role),
		Events: summaries(events), ToolCalls: toolCalls, Response: truncate(reply, 500), ToolErrors: toolErrors,
	})

	if toolErrors || strings.HasPrefix(strings.TrimSpace(reply), "ESCALATE:") {
		return nil, events
	}
	for _, e := range events {
		handled = append(handled, bookkeepingEntry{event: e, outcome: model.OutcomeActed})
	}
	return handled, nil
}

func crashEntries(events []model.HeartbeatEvent, err error) []bookkeepingEntry {
	var entries []bookkeepingEntry
	for _, e := range events {
		entries = append(entries, bookkeepingEntry{event: e, outcome: model.OutcomeActCrashed})
	}
	return entries
}

// runEscalate executes Tier 3 (spec §4.7 step 7): the resumed persistent
// heartbeat session, instructed to notify the user on meaningful results.
func (p *Pipeline) runEscalate(ctx context.Context, events []model.HeartbeatEvent) []bookkeepingEntry {
	if len(events) == 0 {
		return nil
	}

	sess, err := p.Sessions.Load(HeartbeatSessionID, model.RoleDefault, model.SessionLimits{}, false)
	if err != nil {
		return escalationFailedEntries(events)
	}

	var b strings.Builder
	b.WriteString("The following events were escalated from the heartbeat pipeline. Notify the user if there is a meaningful result.\n\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- [%s] %s\n", e.Type, e.Summary)
	}

	if _, err := p.Sessions.Send(ctx, sess, b.String()); err != nil {
		return escalationFailedEntries(events)
	}

	var entries []bookkeepingEntry
	for _, e := range events {
		entries = append(entries, bookkeepingEntry{event: e, outcome: model.OutcomeEscalated})
	}
	return entries
}

func escalationFailedEntries(events []model.HeartbeatEvent) []bookkeepingEntry {
	var entries []bookkeepingEntry
	for _, e := range events {
		entries = append(entries, bookkeepingEntry{event: e, outcome: model.OutcomeEscalationFailed})
	}
	return entries
}

// applyBookkeeping runs step 8: updates handled-event state, ticks off
// journal task lines, and resets lastUserContact if an idle event resolved.
func (p *Pipeline) applyBookkeeping(ctx context.Context, state *model.HeartbeatState, entries []bookkeepingEntry, now time.Time) {
	today := now.Format("2006-01-02")
	for _, entry := range entries {
		hash := normalizeSummaryHash(entry.event.Summary)
		prior := state.HandledEvents[hash]
		state.HandledEvents[hash] = model.HandledEvent{
			Date: today, Outcome: entry.outcome, Attempts: prior.Attempts + 1, LastAttempt: now.Format(time.RFC3339),
		}

		if entry.event.Type == model.EventTask && entry.event.OriginalText != "" &&
			(entry.outcome == model.OutcomeActed || entry.outcome == model.OutcomeEscalated || entry.outcome == model.OutcomeAlerted) {
			_ = p.Journal.TickTask(ctx, entry.event.OriginalText)
		}
		if entry.event.Type == model.EventIdle && entry.outcome != model.OutcomeActCrashed && entry.outcome != model.OutcomeEscalationFailed {
			state.LastUserContact = now.Format(time.RFC3339)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func summaries(events []model.HeartbeatEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Summary
	}
	return out
}
