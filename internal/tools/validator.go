package tools

import (
	"strings"

	"github.com/clawinfra/tenx/internal/types"
)

// VerdictKind is the outcome of validating an execution.
type VerdictKind int

const (
	Proceed VerdictKind = iota
	Retry
	Fail
)

func (k VerdictKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Retry:
		return "retry"
	default:
		return "failed"
	}
}

// Verdict says whether an execution counts as a success.
type Verdict struct {
	Kind       VerdictKind
	Reason     string
	Suggestion string
}

// OK reports whether the verdict lets the result stand as a success.
func (v Verdict) OK() bool { return v.Kind == Proceed }

// Message renders the verdict for the model.
func (v Verdict) Message() string {
	switch v.Kind {
	case Proceed:
		if v.Reason == "" {
			return "Success"
		}
		return v.Reason
	case Retry:
		return "⚠️ " + v.Reason + ". Suggestion: " + v.Suggestion
	default:
		return "❌ " + v.Reason
	}
}

var (
	creationTools = map[string]bool{
		"create_calendar_event": true,
		"create_reminder":       true,
		"create_or_update_task": true,
	}
	deletionTools = map[string]bool{
		"delete_calendar_event": true,
		"delete_journal_entry":  true,
		"delete_task":           true,
	}
	readTools = map[string]bool{
		"read_person_file":             true,
		"search_journal":               true,
		"read_journal":                 true,
		"get_relevant_journal_context": true,
	}
)

// Validate applies the per-tool acceptance policy. artifact is nil when the
// executor produced none.
func Validate(name string, artifact *types.Artifact, _ Args) Verdict {
	has := artifact != nil
	switch {
	case name == "check_availability":
		if !has {
			return Verdict{Kind: Fail, Reason: "Availability check returned no results"}
		}
		if strings.Contains(artifact.Payload, "0 of") {
			return Verdict{
				Kind:       Retry,
				Reason:     "No available slots found in the checked window",
				Suggestion: "Try different times or a wider date range",
			}
		}
		return Verdict{Kind: Proceed, Reason: "Availability checked"}

	case name == "update_calendar_event":
		if !has {
			return Verdict{
				Kind:       Retry,
				Reason:     "Event not found in calendar",
				Suggestion: "Try searching with a different date or partial title",
			}
		}
		return Verdict{Kind: Proceed, Reason: "Event updated successfully"}

	case deletionTools[name]:
		return Verdict{Kind: Proceed, Reason: "Deletion completed"}

	case creationTools[name]:
		if !has {
			return Verdict{Kind: Fail, Reason: "Creation failed - no confirmation returned"}
		}
		return Verdict{Kind: Proceed, Reason: "Created successfully"}

	case readTools[name]:
		if !has {
			return Verdict{Kind: Fail, Reason: "Read operation returned no data"}
		}
		return Verdict{Kind: Proceed, Reason: "Data retrieved"}
	}
	return Verdict{Kind: Proceed}
}
