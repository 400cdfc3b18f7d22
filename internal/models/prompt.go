package models

import (
	"strings"
	"time"

	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/snapshot"
)

// DefaultPersona opens every system prompt unless configured otherwise.
const DefaultPersona = `You are TenX, an operations assistant for a user running several companies. You are an agent, not a chatbot.

## Working rules
- When the user asks for something, do it with your tools. Do not ask for permission.
- Only ask a question when you are genuinely stuck, for example when a name is ambiguous.
- Use the context below before searching. Calendar events, tasks and reminders are already listed.
- Reschedule with update_calendar_event instead of creating duplicates.
- When the user says "undo that" or "delete that", reverse the most recent action listed under Working Memory.
- Reminders need detailed notes: why the reminder exists, who is involved and any deadline.
- Calculate dates from the current date given below. Use ISO8601 with the user's offset.
- Answer the most recent request, not earlier topics.`

// PromptBuilder assembles the system prompt for a model call.
type PromptBuilder struct {
	Persona  string
	Sections []config.PromptSection
}

// Build renders persona, current time, custom sections and the snapshot.
func (b PromptBuilder) Build(snap snapshot.Snapshot) string {
	persona := b.Persona
	if persona == "" {
		persona = DefaultPersona
	}
	now := snap.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n## Current Date\n")
	sb.WriteString(now.Format("Monday, January 2, 2006 at 3:04 PM (MST)"))

	for _, s := range b.Sections {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		sb.WriteString("\n\n## " + s.Title + "\n" + s.Content)
	}

	if ctx := snap.Render(); ctx != "" {
		sb.WriteString("\n\n# Context\n\n")
		sb.WriteString(ctx)
	}
	return sb.String()
}
