package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/clawinfra/tenx/internal/memory"
	"github.com/clawinfra/tenx/internal/models"
	"github.com/clawinfra/tenx/internal/snapshot"
)

// Intent is the router's classification of one user message.
type Intent struct {
	Actions        []Capability `json:"actions"`
	Reasoning      string       `json:"reasoning"`
	ContextDetails string       `json:"context_details"`
}

// Has reports whether c was selected.
func (i Intent) Has(c Capability) bool {
	for _, a := range i.Actions {
		if a == c {
			return true
		}
	}
	return false
}

// IntentRouter classifies a message into capability tags with a single
// tool-less model call.
type IntentRouter struct {
	gateway models.Sender
	memory  *memory.WorkingMemory
	logger  *slog.Logger
}

// NewIntentRouter creates a router. mem is optional and only feeds a hint
// about the latest action into the prompt.
func NewIntentRouter(gateway models.Sender, mem *memory.WorkingMemory, logger *slog.Logger) *IntentRouter {
	return &IntentRouter{
		gateway: gateway,
		memory:  mem,
		logger:  logger.With("component", "intent_router"),
	}
}

// Classify asks the model which capabilities the message needs. Parse
// failures come back as *ParseError and are not retried.
func (r *IntentRouter) Classify(ctx context.Context, message string, snap snapshot.Snapshot) (Intent, error) {
	reply, err := r.gateway.Send(ctx, models.SendRequest{
		Prompt:   r.prompt(message, snap),
		Snapshot: snap,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("classify: %w", err)
	}

	intent, err := ParseIntent(reply.Content)
	if err != nil {
		r.logger.Warn("router response rejected", "error", err, "response", truncate(reply.Content, 300))
		return Intent{}, err
	}
	r.logger.Info("intent classified",
		"actions", intent.Actions,
		"reasoning", intent.Reasoning,
	)
	return intent, nil
}

func (r *IntentRouter) prompt(message string, snap snapshot.Snapshot) string {
	var b strings.Builder
	b.WriteString("Classify the user message below into the actions it needs.\n\n")
	fmt.Fprintf(&b, "User message: %q\n\n", message)
	if !snap.Now.IsZero() {
		fmt.Fprintf(&b, "Today is %s.\n\n", snap.Now.Format("Monday, January 2, 2006"))
	}
	if r.memory != nil {
		if last, ok := r.memory.Last(); ok {
			fmt.Fprintf(&b, "The most recent action was %s. \"Undo that\" or \"delete that\" refers to it.\n\n", last.Action)
		}
	}
	b.WriteString(routerVocabulary)
	return b.String()
}

const routerVocabulary = `Actions (pick every one that applies):
- JOURNAL: log an event or update to the journal
- SEARCH: find information in the journal
- TASK: create, update, complete or delete a task
- CALENDAR: create, move or cancel a calendar event with a specific date and time
- REMINDER: create a time-based reminder
- PEOPLE: record an interaction with a person

Guidance:
- Be proactive. The user should not have to ask for a task or a reminder.
- TASK is the most common: any commitment, "need to", "will", "should" or someone else's promise is a task.
- CALENDAR only when a concrete date and time is given. "Meet Tommy sometime" is a TASK.
- REMINDER for deadlines, urgency or an explicit "remind me", usually together with TASK.
- Past tense ("had a meeting", "talked with") is JOURNAL, plus PEOPLE when a person is named.
- Questions ("what did", "find", "search") are SEARCH.

Example: "Just met Scott about Ring LLC. He'll consolidate expenses by Friday."
-> JOURNAL, PEOPLE, TASK, REMINDER

Reply with JSON only, no prose or markdown:
{"actions": ["JOURNAL", "TASK"], "reasoning": "why", "context_details": "the facts the agents need"}`

type rawIntent struct {
	Actions        []string `json:"actions"`
	Reasoning      string   `json:"reasoning"`
	ContextDetails string   `json:"context_details"`
}

// ParseIntent extracts an Intent from a model reply that may be wrapped in
// prose or code fences. Malformed JSON gets one repair attempt.
func ParseIntent(raw string) (Intent, error) {
	body := stripFences(strings.TrimSpace(raw))
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return Intent{}, &ParseError{Reason: "no JSON object found", Raw: raw}
	}
	body = body[start : end+1]

	var ri rawIntent
	if err := json.Unmarshal([]byte(body), &ri); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(body)
		if rerr != nil {
			return Intent{}, &ParseError{Reason: "malformed JSON", Raw: raw, Err: err}
		}
		ri = rawIntent{}
		if err := json.Unmarshal([]byte(repaired), &ri); err != nil {
			return Intent{}, &ParseError{Reason: "malformed JSON after repair", Raw: raw, Err: err}
		}
	}

	intent := Intent{Reasoning: ri.Reasoning, ContextDetails: ri.ContextDetails}
	seen := make(map[Capability]bool, len(ri.Actions))
	for _, a := range ri.Actions {
		c, err := ParseCapability(a)
		if err != nil {
			return Intent{}, &ParseError{Reason: "unknown action tag", Raw: raw, Err: err}
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		intent.Actions = append(intent.Actions, c)
	}
	if len(intent.Actions) == 0 {
		return Intent{}, &ParseError{Reason: "no actions detected", Raw: raw}
	}
	return intent, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
