package executor

import (
	"context"
	"strings"
	"sync"

	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

// DryRun pretends every call succeeded and synthesizes a plausible
// artifact, so the assistant runs without a tool backend.
type DryRun struct {
	mu    sync.Mutex
	calls []tools.Call
}

func NewDryRun() *DryRun { return &DryRun{} }

func (d *DryRun) Execute(_ context.Context, call tools.Call) tools.Execution {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()

	a := call.Args
	var art *types.Artifact
	switch name := call.Name; {
	case name == "check_availability":
		art = types.NewArtifact(types.ArtifactCalendarEvent, "Calendar Availability", "dry run",
			"No conflicts found for the requested times.")
	case strings.Contains(name, "calendar_event"):
		art = types.NewArtifact(types.ArtifactCalendarEvent, first(a, "title", "event_title", "new_title"), first(a, "start", "new_start", "event_date"), "")
	case strings.Contains(name, "reminder"):
		art = types.NewArtifact(types.ArtifactReminder, first(a, "title"), first(a, "due_date"), a.String("notes"))
	case strings.Contains(name, "task"):
		art = types.NewArtifact(types.ArtifactTask, first(a, "title", "title_match", "task_id"), first(a, "assignee", "due_date"), a.String("description"))
	case strings.Contains(name, "person"):
		art = types.NewArtifact(types.ArtifactPerson, "Person: "+a.String("name"), a.String("type"), a.String("content"))
	case name == "read_journal", name == "search_journal", name == "get_relevant_journal_context":
		art = types.NewArtifact(types.ArtifactSearch, "Journal", first(a, "search_query", "query"),
			"(dry run: no journal backend is configured)")
	case strings.Contains(name, "journal"), strings.Contains(name, "summary"):
		art = types.NewArtifact(types.ArtifactJournal, name, preview(first(a, "content", "summary_text", "content_match"), 80), "")
	default:
		art = types.NewArtifact(types.ArtifactKind(name), name, "", "")
	}
	return tools.Execution{
		Artifact: art,
		Result:   tools.Succeeded(call, "dry run: "+art.Summary()),
	}
}

// Calls returns the calls seen so far.
func (d *DryRun) Calls() []tools.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]tools.Call(nil), d.calls...)
}

func (d *DryRun) Close() error { return nil }

func first(a tools.Args, keys ...string) string {
	for _, k := range keys {
		if v := a.String(k); v != "" {
			return v
		}
	}
	return ""
}

func preview(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
