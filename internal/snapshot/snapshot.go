// Package snapshot describes the read-only view of the user's world (tasks,
// events, reminders, notes) that accompanies every model call.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Task is an open task.
type Task struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Company     string     `json:"company,omitempty"`
	Status      string     `json:"status,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
}

// Event is a calendar entry.
type Event struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end,omitempty"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// Reminder is an outstanding reminder.
type Reminder struct {
	Title string     `json:"title"`
	Due   *time.Time `json:"due,omitempty"`
	Notes string     `json:"notes,omitempty"`
}

// Snapshot is the context bundle supplied by the surrounding application.
type Snapshot struct {
	Now                time.Time  `json:"now"`
	Tasks              []Task     `json:"tasks,omitempty"`
	UpcomingEvents     []Event    `json:"upcoming_events,omitempty"`
	RecentEvents       []Event    `json:"recent_events,omitempty"`
	Reminders          []Reminder `json:"reminders,omitempty"`
	WeeklySummaries    []string   `json:"weekly_summaries,omitempty"`
	MonthlySummary     string     `json:"monthly_summary,omitempty"`
	CurrentWeekJournal string     `json:"current_week_journal,omitempty"`
}

// Limits caps each section. A negative limit keeps the section whole; zero
// empties it.
type Limits struct {
	Tasks           int
	UpcomingEvents  int
	RecentEvents    int
	Reminders       int
	WeeklySummaries int
	IncludeMonthly  bool
	IncludeJournal  bool
}

// Unlimited keeps everything.
var Unlimited = Limits{
	Tasks: -1, UpcomingEvents: -1, RecentEvents: -1, Reminders: -1,
	WeeklySummaries: -1, IncludeMonthly: true, IncludeJournal: true,
}

// Continuation is the reduced view sent on tool-loop follow-up calls.
var Continuation = Limits{Tasks: 5, UpcomingEvents: 3, RecentEvents: 0, Reminders: 3}

// Truncate returns a copy restricted to l.
func (s Snapshot) Truncate(l Limits) Snapshot {
	out := Snapshot{Now: s.Now}
	out.Tasks = head(s.Tasks, l.Tasks)
	out.UpcomingEvents = head(s.UpcomingEvents, l.UpcomingEvents)
	out.RecentEvents = head(s.RecentEvents, l.RecentEvents)
	out.Reminders = head(s.Reminders, l.Reminders)
	out.WeeklySummaries = head(s.WeeklySummaries, l.WeeklySummaries)
	if l.IncludeMonthly {
		out.MonthlySummary = s.MonthlySummary
	}
	if l.IncludeJournal {
		out.CurrentWeekJournal = s.CurrentWeekJournal
	}
	return out
}

// Reduced is Truncate(Continuation).
func (s Snapshot) Reduced() Snapshot { return s.Truncate(Continuation) }

func head[T any](in []T, n int) []T {
	if n < 0 || n > len(in) {
		n = len(in)
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	copy(out, in[:n])
	return out
}

// Render formats the snapshot as prompt sections. Empty sections are omitted.
func (s Snapshot) Render() string {
	var b strings.Builder
	now := s.Now
	if now.IsZero() {
		now = time.Now()
	}
	loc := now.Location()

	if len(s.Tasks) > 0 {
		b.WriteString("## Open Tasks\n")
		for _, t := range s.Tasks {
			b.WriteString("- " + t.Title)
			if t.Assignee != "" {
				b.WriteString(" (assignee: " + t.Assignee + ")")
			}
			if t.Due != nil {
				b.WriteString(" due " + t.Due.In(loc).Format("Mon Jan 2"))
			}
			if t.ID != "" {
				b.WriteString(" [id: " + t.ID + "]")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	writeEvents(&b, "## Upcoming Events", s.UpcomingEvents, loc)
	writeEvents(&b, "## Recent Events", s.RecentEvents, loc)
	if len(s.Reminders) > 0 {
		b.WriteString("## Reminders\n")
		for _, r := range s.Reminders {
			b.WriteString("- " + r.Title)
			if r.Due != nil {
				b.WriteString(" due " + r.Due.In(loc).Format("Mon Jan 2"))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if s.MonthlySummary != "" {
		b.WriteString("## This Month\n" + s.MonthlySummary + "\n\n")
	}
	if len(s.WeeklySummaries) > 0 {
		b.WriteString("## Previous Weeks\n")
		for _, w := range s.WeeklySummaries {
			b.WriteString(w + "\n")
		}
		b.WriteString("\n")
	}
	if s.CurrentWeekJournal != "" {
		b.WriteString("## This Week's Journal\n" + s.CurrentWeekJournal + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeEvents(b *strings.Builder, title string, events []Event, loc *time.Location) {
	if len(events) == 0 {
		return
	}
	b.WriteString(title + "\n")
	for _, e := range events {
		fmt.Fprintf(b, "- %s: %s", e.Start.In(loc).Format("Mon Jan 2 15:04"), e.Title)
		if e.Location != "" {
			b.WriteString(" @ " + e.Location)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// Source supplies a fresh snapshot for each turn.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static always returns the same snapshot, stamped with the current time
// when Now is unset.
type Static Snapshot

func (s Static) Snapshot(context.Context) (Snapshot, error) {
	snap := Snapshot(s)
	if snap.Now.IsZero() {
		snap.Now = time.Now()
	}
	return snap, nil
}

// FileSource re-reads a JSON snapshot file on every turn. A missing file
// yields an empty snapshot.
type FileSource struct {
	Path string
}

func (f FileSource) Snapshot(context.Context) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Now: time.Now()}, nil
		}
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Now.IsZero() {
		snap.Now = time.Now()
	}
	return snap, nil
}
