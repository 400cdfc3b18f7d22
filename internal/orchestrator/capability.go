package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Capability is a request category routed to one specialized agent.
type Capability string

const (
	CapJournal  Capability = "JOURNAL"
	CapSearch   Capability = "SEARCH"
	CapTask     Capability = "TASK"
	CapCalendar Capability = "CALENDAR"
	CapReminder Capability = "REMINDER"
	CapPeople   Capability = "PEOPLE"
)

// ErrUnknownCapability is returned for tags outside the vocabulary.
var ErrUnknownCapability = errors.New("unknown capability")

// Capabilities lists every tag in canonical order.
func Capabilities() []Capability {
	out := []Capability{CapJournal, CapSearch, CapTask, CapCalendar, CapReminder, CapPeople}
	SortCapabilities(out)
	return out
}

// ParseCapability normalises a tag, ignoring case and surrounding space.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
	}
	return c, nil
}

// Valid reports whether c is in the vocabulary.
func (c Capability) Valid() bool {
	switch c {
	case CapJournal, CapSearch, CapTask, CapCalendar, CapReminder, CapPeople:
		return true
	}
	return false
}

// Name is the human-readable agent name.
func (c Capability) Name() string {
	switch c {
	case CapJournal:
		return "Journal Agent"
	case CapSearch:
		return "Search Agent"
	case CapTask:
		return "Task Agent"
	case CapCalendar:
		return "Calendar Agent"
	case CapReminder:
		return "Reminder Agent"
	case CapPeople:
		return "People Agent"
	default:
		return string(c) + " Agent"
	}
}

// Key is the lower-case profile key, e.g. "journal".
func (c Capability) Key() string { return strings.ToLower(string(c)) }

// SortCapabilities orders tags canonically (by tag string).
func SortCapabilities(caps []Capability) {
	slices.Sort(caps)
}
