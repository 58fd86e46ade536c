// Package identity implements the identity composer and context layer
// (spec §4.4): deterministic system-prompt assembly from identity
// fragments, situational awareness, journal content, loaded contexts, the
// active outfit, the task plan, budget remaining, and recalled memory.
//
// Grounded on the teacher's internal/agent/loop.go system-prompt assembly
// order inside initializeState, generalized into its own composer so the
// session engine stays free of prompt-formatting concerns.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// Journal is the external collaborator contract for today's journal (spec §6).
type Journal interface {
	ReadToday(ctx context.Context) (string, error)
}

// ContextSource resolves a named context fragment (spec glossary: Context).
type ContextSource interface {
	Load(ctx context.Context, name string) (string, error)
}

// MemoryRecall is the external collaborator contract for semantic recall (spec §6).
type MemoryRecall interface {
	Recall(ctx context.Context, userTurn string) (string, error)
}

// Composer deterministically assembles a session's system prompt.
type Composer struct {
	IdentityFragments []string // always-loaded identity fragments, user rules, personality
	Journal           Journal
	Contexts          ContextSource
	Memory            MemoryRecall
	Now               func() time.Time
	DefaultModel      string

	// AvailableContexts names every context fragment the session could
	// load, independent of which ones are currently loaded (spec §4.4's
	// "available-contexts index").
	AvailableContexts []string
	// Skills names the installed skill set (spec §4.4's "skills index").
	// No skill-authoring module is in scope (see DESIGN.md); this is
	// populated, if at all, by whatever directory listing the caller
	// wires in.
	Skills []string
	// CustomTools names every registered non-builtin tool (spec §4.4's
	// "custom-tools index").
	CustomTools []string
	// Capabilities is the one-line capabilities summary (spec §4.4).
	Capabilities string
	// Rules is the fixed, always-last rules block (spec §4.4).
	Rules string
}

// BudgetRemaining describes time/cost headroom, shown only when limits are set.
type BudgetRemaining struct {
	CostRemainingUsd *float64
	TimeRemaining    *time.Duration
}

// Compose builds the full system prompt. Every independent input is fetched
// in parallel; a failing input degrades (is omitted) rather than failing
// the whole build (spec §4.4).
func (c *Composer) Compose(ctx context.Context, sess *model.Session, userTurn string, todaySpendUsd float64, budget BudgetRemaining) string {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	var (
		wg                          sync.WaitGroup
		journalText, recallSnippet  string
		contextTexts                = make([]string, len(sess.Contexts))
	)

	if c.Journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if text, err := c.Journal.ReadToday(ctx); err == nil {
				journalText = text
			}
		}()
	}
	if c.Memory != nil && userTurn != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Recall failure must be swallowed (spec §4.4).
			if snippet, err := c.Memory.Recall(ctx, userTurn); err == nil {
				recallSnippet = snippet
			}
		}()
	}
	if c.Contexts != nil {
		for i, name := range sess.Contexts {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				if text, err := c.Contexts.Load(ctx, name); err == nil {
					contextTexts[i] = text
				}
			}(i, name)
		}
	}
	wg.Wait()

	var b strings.Builder
	for _, fragment := range c.IdentityFragments {
		if strings.TrimSpace(fragment) != "" {
			b.WriteString(fragment)
			b.WriteString("\n\n")
		}
	}

	fmt.Fprintf(&b, "Current time: %s\nModel (default role): %s\nToday's spend so far: $%.4f\n\n",
		now().Format(time.RFC3339), c.DefaultModel, todaySpendUsd)

	if journalText != "" {
		fmt.Fprintf(&b, "Today's journal:\n%s\n\n", journalText)
	}

	for i, text := range contextTexts {
		if text != "" {
			fmt.Fprintf(&b, "Context %q:\n%s\n\n", sess.Contexts[i], text)
		}
	}

	if sess.Outfit != nil && sess.Outfit.Content != "" {
		fmt.Fprintf(&b, "Active outfit %q:\n%s\n\n", sess.Outfit.Name, sess.Outfit.Content)
	}

	if len(c.AvailableContexts) > 0 {
		fmt.Fprintf(&b, "Available contexts: %s\n\n", strings.Join(c.AvailableContexts, ", "))
	}

	if len(c.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n\n", strings.Join(c.Skills, ", "))
	}

	if len(c.CustomTools) > 0 {
		fmt.Fprintf(&b, "Custom tools: %s\n\n", strings.Join(c.CustomTools, ", "))
	}

	if c.Capabilities != "" {
		fmt.Fprintf(&b, "Capabilities: %s\n\n", c.Capabilities)
	}

	if sess.TaskPlan != nil {
		b.WriteString("Active task plan:\n")
		fmt.Fprintf(&b, "Goal: %s\n", sess.TaskPlan.Goal)
		for _, task := range sess.TaskPlan.Tasks {
			fmt.Fprintf(&b, "- [%s] %s\n", task.Status, task.Text)
		}
		b.WriteString("\n")
	}

	if budget.CostRemainingUsd != nil || budget.TimeRemaining != nil {
		b.WriteString("Budget remaining: ")
		if budget.CostRemainingUsd != nil {
			fmt.Fprintf(&b, "$%.4f ", *budget.CostRemainingUsd)
		}
		if budget.TimeRemaining != nil {
			fmt.Fprintf(&b, "%s", budget.TimeRemaining.Round(time.Second))
		}
		b.WriteString("\n\n")
	}

	if recallSnippet != "" {
		fmt.Fprintf(&b, "---\nRecalled from Memory:\n%s\n", recallSnippet)
	}

	if c.Rules != "" {
		fmt.Fprintf(&b, "\n---\n%s\n", c.Rules)
	}

	return b.String()
}
