package orchestrator

import (
	"context"
	"time"

	"github.com/clawinfra/tenx/internal/turnlog"
)

// NoticeKind labels interim notices surfaced while a turn runs.
type NoticeKind string

const (
	NoticeTurnStarted  NoticeKind = "turn_started"
	NoticeFallback     NoticeKind = "fallback"
	NoticeDuplicate    NoticeKind = "duplicate"
	NoticeTurnFinished NoticeKind = "turn_finished"
)

// Notice is an interim status message for whoever is watching a session.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	SessionID string     `json:"session_id"`
	TurnID    string     `json:"turn_id"`
	Message   string     `json:"message,omitempty"`
	Time      time.Time  `json:"time"`
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NoopNotifier drops notices.
type NoopNotifier struct{}

func (NoopNotifier) Notify(Notice) {}

// TurnRecorder persists finished turns.
type TurnRecorder interface {
	Record(ctx context.Context, e turnlog.Entry) error
}

// NoopTurnRecorder discards turns.
type NoopTurnRecorder struct{}

func (NoopTurnRecorder) Record(context.Context, turnlog.Entry) error { return nil }
