package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/metrics"
	"github.com/clawinfra/tenx/internal/snapshot"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/turnlog"
	"github.com/clawinfra/tenx/internal/types"
)

const (
	defaultDuplicateWindow = 3

	duplicateReply = "⚠️ Duplicate message detected. I've already processed this. Is there something specific you'd like me to do with it again?"
)

// Mode is how a turn was answered.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeMulti    Mode = "multi"
	ModeFallback Mode = "fallback"
)

// TurnOptions are per-call settings. They are values: nothing set here
// outlives the call.
type TurnOptions struct {
	MultiAgent bool
}

// Turn is the outcome of one user message.
type Turn struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Mode       Mode              `json:"mode"`
	Reply      string            `json:"reply"`
	Artifacts  []*types.Artifact `json:"artifacts,omitempty"`
	Intent     *Intent           `json:"intent,omitempty"`
	Agents     []AgentResult     `json:"-"`
	Notices    []string          `json:"notices,omitempty"`
	Iterations int               `json:"iterations"`
	Failed     bool              `json:"failed"`
	Duplicate  bool              `json:"duplicate"`
	Err        error             `json:"-"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration_ns"`
}

// MultiAgentHandler is the multi-agent path, normally a *Coordinator.
type MultiAgentHandler interface {
	Handle(ctx context.Context, message string, snap snapshot.Snapshot, history []conversation.Message) (*CoordinatorResult, error)
}

// SessionSaver persists a session after each turn.
type SessionSaver interface {
	Save(s *conversation.Session) error
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithTurnRecorder stores every processed turn.
func WithTurnRecorder(r TurnRecorder) AssistantOption {
	return func(a *Assistant) { a.recorder = r }
}

// WithNotifier surfaces interim notices.
func WithNotifier(n Notifier) AssistantOption {
	return func(a *Assistant) { a.notifier = n }
}

// WithSessionSaver persists sessions after each turn.
func WithSessionSaver(s SessionSaver) AssistantOption {
	return func(a *Assistant) { a.saver = s }
}

// WithAssistantMetrics reports turns.
func WithAssistantMetrics(m *metrics.Metrics) AssistantOption {
	return func(a *Assistant) { a.metrics = m }
}

// WithFallbackIterations sets the cap of the unscoped loop.
func WithFallbackIterations(n int) AssistantOption {
	return func(a *Assistant) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithDuplicateWindow sets how many recent user messages are checked for
// repeats. Zero disables the guard.
func WithDuplicateWindow(n int) AssistantOption {
	return func(a *Assistant) { a.duplicateWindow = n }
}

// WithTurnTimeout bounds a whole turn. Zero means no deadline.
func WithTurnTimeout(d time.Duration) AssistantOption {
	return func(a *Assistant) { a.turnTimeout = d }
}

// WithHistoryBudget sets the token budget for history sent with a turn.
func WithHistoryBudget(tokens int) AssistantOption {
	return func(a *Assistant) {
		if tokens > 0 {
			a.historyBudget = tokens
		}
	}
}

// Assistant answers user messages, preferring the multi-agent path and
// falling back to one unscoped tool loop when it fails.
type Assistant struct {
	multi     MultiAgentHandler
	loop      *ToolLoop
	catalog   *tools.Catalog
	snapshots snapshot.Source
	logger    *slog.Logger

	recorder        TurnRecorder
	notifier        Notifier
	saver           SessionSaver
	metrics         *metrics.Metrics
	maxIterations   int
	duplicateWindow int
	turnTimeout     time.Duration
	historyBudget   int
}

// NewAssistant wires the assistant. multi may be nil, in which case every
// turn runs the single loop.
func NewAssistant(multi MultiAgentHandler, loop *ToolLoop, catalog *tools.Catalog, snapshots snapshot.Source, logger *slog.Logger, opts ...AssistantOption) *Assistant {
	if snapshots == nil {
		snapshots = snapshot.Static{}
	}
	a := &Assistant{
		multi:           multi,
		loop:            loop,
		catalog:         catalog,
		snapshots:       snapshots,
		logger:          logger.With("component", "assistant"),
		recorder:        NoopTurnRecorder{},
		notifier:        NoopNotifier{},
		maxIterations:   DefaultMaxIterations,
		duplicateWindow: defaultDuplicateWindow,
		historyBudget:   conversation.DefaultTokenBudget,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Process answers message within session. The reply, or an explanation of
// the failure, is appended to the session. The error return is reserved
// for invalid input; processing failures set Turn.Failed.
func (a *Assistant) Process(ctx context.Context, session *conversation.Session, message string, opts TurnOptions) (*Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	turn := &Turn{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StartedAt: time.Now(),
	}

	if session.RecentlySaid(message, a.duplicateWindow) {
		a.logger.Info("duplicate message skipped", "session", session.ID)
		turn.Duplicate = true
		turn.Reply = duplicateReply
		session.Append(conversation.Assistant(duplicateReply))
		a.notify(turn, NoticeDuplicate, duplicateReply)
		a.save(session)
		turn.Duration = time.Since(turn.StartedAt)
		return turn, nil
	}

	history := conversation.Trim(session.History(), a.historyBudget)
	session.Append(conversation.User(message))
	a.notify(turn, NoticeTurnStarted, "")

	if a.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.turnTimeout)
		defer cancel()
	}

	snap, err := a.snapshots.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("context snapshot unavailable, continuing without it", "error", err)
		snap = snapshot.Snapshot{Now: time.Now()}
	}

	a.run(ctx, session, turn, message, snap, history, opts)

	turn.Duration = time.Since(turn.StartedAt)
	a.metrics.Turn(string(turn.Mode), !turn.Failed, turn.Duration)
	a.record(ctx, turn, message)
	a.notify(turn, NoticeTurnFinished, turn.Reply)
	a.save(session)
	return turn, nil
}

func (a *Assistant) run(ctx context.Context, session *conversation.Session, turn *Turn, message string, snap snapshot.Snapshot, history []conversation.Message, opts TurnOptions) {
	if opts.MultiAgent && a.multi != nil {
		turn.Mode = ModeMulti
		res, err := a.multi.Handle(ctx, message, snap, history)
		if err == nil {
			turn.Reply = res.Summary
			turn.Artifacts = res.Artifacts
			turn.Agents = res.Results
			intent := res.Intent
			turn.Intent = &intent
			for _, r := range res.Results {
				turn.Iterations += r.Iterations
			}
			session.Append(conversation.Assistant(res.Summary, res.Artifacts...))
			return
		}

		a.logger.Error("multi-agent turn failed, falling back to single agent", "error", err, "session", session.ID)
		notice := fmt.Sprintf("⚠️ Multi-agent system encountered an error. Falling back to single-agent...\n\n(Error: %v)", err)
		turn.Notices = append(turn.Notices, notice)
		session.Append(conversation.Assistant(notice))
		a.notify(turn, NoticeFallback, notice)

		fallback := opts
		fallback.MultiAgent = false
		a.run(ctx, session, turn, message, snap, history, fallback)
		turn.Mode = ModeFallback
		return
	}

	if turn.Mode == "" {
		turn.Mode = ModeSingle
	}
	res, err := a.loop.Run(ctx, LoopRequest{
		Prompt:        message,
		Snapshot:      snap,
		History:       history,
		Tools:         a.catalog.All(),
		MaxIterations: a.maxIterations,
	})
	if err != nil {
		a.logger.Error("single-agent turn failed", "error", err, "session", session.ID)
		reply := fmt.Sprintf("⚠️ Error: %v\n\nIf this is a rate limit error, please wait a moment and try again.", err)
		turn.Reply = reply
		turn.Failed = true
		turn.Err = err
		session.Append(conversation.Assistant(reply))
		return
	}

	reply := res.Content
	if strings.TrimSpace(reply) == "" {
		reply = doneSummary
	}
	turn.Reply = reply
	turn.Artifacts = res.Artifacts
	turn.Iterations = res.Iterations
	session.Append(conversation.Assistant(reply, res.Artifacts...))
}

func (a *Assistant) notify(turn *Turn, kind NoticeKind, msg string) {
	a.notifier.Notify(Notice{
		Kind:      kind,
		SessionID: turn.SessionID,
		TurnID:    turn.ID,
		Message:   msg,
		Time:      time.Now(),
	})
}

func (a *Assistant) record(ctx context.Context, turn *Turn, message string) {
	entry := turnlog.Entry{
		ID:         turn.ID,
		SessionID:  turn.SessionID,
		Mode:       string(turn.Mode),
		Success:    !turn.Failed,
		Message:    message,
		Reply:      turn.Reply,
		Artifacts:  len(turn.Artifacts),
		Iterations: turn.Iterations,
		StartedAt:  turn.StartedAt,
		Duration:   turn.Duration,
	}
	if turn.Intent != nil {
		for _, c := range turn.Intent.Actions {
			entry.Capabilities = append(entry.Capabilities, string(c))
		}
	}
	if turn.Err != nil {
		entry.Error = turn.Err.Error()
	}
	if err := a.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("failed to record turn", "turn", turn.ID, "error", err)
	}
}

func (a *Assistant) save(session *conversation.Session) {
	if a.saver == nil {
		return
	}
	if err := a.saver.Save(session); err != nil {
		a.logger.Warn("failed to save session", "session", session.ID, "error", err)
	}
}
