// Package types provides shared types used across tenx packages
// to avoid import cycles between tools, conversation and orchestrator.
package types

import (
	"github.com/google/uuid"
)

// ArtifactKind tags what an artifact represents for the presentation layer.
type ArtifactKind string

const (
	ArtifactReminder      ArtifactKind = "reminder"
	ArtifactCalendarEvent ArtifactKind = "calendar_event"
	ArtifactTask          ArtifactKind = "task"
	ArtifactJournal       ArtifactKind = "journal"
	ArtifactPerson        ArtifactKind = "person"
	ArtifactSearch        ArtifactKind = "search"
	ArtifactNotepad       ArtifactKind = "notepad"
)

// Artifact is a displayable output of a successful tool call. The payload is
// opaque to the orchestration core and is passed through unchanged.
type Artifact struct {
	ID       string       `json:"id"`
	Kind     ArtifactKind `json:"kind"`
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle,omitempty"`
	Payload  string       `json:"payload,omitempty"`
}

// NewArtifact returns an artifact with a fresh ID.
func NewArtifact(kind ArtifactKind, title, subtitle, payload string) *Artifact {
	return &Artifact{
		ID:       uuid.New().String(),
		Kind:     kind,
		Title:    title,
		Subtitle: subtitle,
		Payload:  payload,
	}
}

// Summary renders "title: subtitle", or just the title when there is no subtitle.
func (a *Artifact) Summary() string {
	if a == nil {
		return ""
	}
	if a.Subtitle == "" {
		return a.Title
	}
	return a.Title + ": " + a.Subtitle
}
