package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/memory"
	"github.com/clawinfra/tenx/internal/metrics"
	"github.com/clawinfra/tenx/internal/models"
	"github.com/clawinfra/tenx/internal/ratelimit"
	"github.com/clawinfra/tenx/internal/snapshot"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

const (
	// DefaultMaxIterations bounds the unscoped loop.
	DefaultMaxIterations = 25
	// DefaultRepeatThreshold is how many identical calls pass before the
	// model is warned.
	DefaultRepeatThreshold = 3

	usingToolsPlaceholder = "[Using tools]"
)

// LoopState is where a ToolLoop run currently is.
type LoopState int

const (
	StateRequesting LoopState = iota
	StateExecuting
	StateContinuing
	StateDone
)

func (s LoopState) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateExecuting:
		return "executing"
	case StateContinuing:
		return "continuing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pacer returns the delay inserted before the continuation call of a round.
type Pacer func(iteration int) time.Duration

// TieredPacer waits nothing after the first round, then early for rounds
// up to 5, middle up to 15 and late beyond.
func TieredPacer(early, middle, late time.Duration) Pacer {
	return func(iteration int) time.Duration {
		switch {
		case iteration <= 1:
			return 0
		case iteration <= 5:
			return early
		case iteration <= 15:
			return middle
		default:
			return late
		}
	}
}

// DefaultPacer is TieredPacer(4s, 6s, 8s).
var DefaultPacer = TieredPacer(4*time.Second, 6*time.Second, 8*time.Second)

// LoopRequest starts one tool-calling conversation.
type LoopRequest struct {
	Prompt        string
	Snapshot      snapshot.Snapshot
	History       []conversation.Message
	Tools         []tools.Spec
	MaxIterations int
}

// LoopResult is what a finished loop produced. Iterations counts tool
// rounds; ModelCalls counts gateway calls.
type LoopResult struct {
	Content    string
	Artifacts  []*types.Artifact
	Results    []tools.Result
	Iterations int
	ModelCalls int
	State      LoopState
	CapReached bool
	History    []conversation.Message
}

// ToolLoopOption is a functional option for configuring a ToolLoop.
type ToolLoopOption func(*ToolLoop)

// WithPacer replaces the inter-round delay schedule.
func WithPacer(p Pacer) ToolLoopOption {
	return func(l *ToolLoop) { l.pacer = p }
}

// WithLoopSleep replaces the sleep used for pacing.
func WithLoopSleep(sleep func(ctx context.Context, d time.Duration) error) ToolLoopOption {
	return func(l *ToolLoop) { l.sleep = sleep }
}

// WithTokenBudget sets the history trim budget.
func WithTokenBudget(tokens int) ToolLoopOption {
	return func(l *ToolLoop) {
		if tokens > 0 {
			l.tokenBudget = tokens
		}
	}
}

// WithRepeatThreshold sets how many identical calls are tolerated silently.
func WithRepeatThreshold(n int) ToolLoopOption {
	return func(l *ToolLoop) {
		if n > 0 {
			l.repeatThreshold = n
		}
	}
}

// WithLoopMetrics reports rounds and tool outcomes.
func WithLoopMetrics(m *metrics.Metrics) ToolLoopOption {
	return func(l *ToolLoop) { l.metrics = m }
}

// ToolLoop drives the propose, execute, report protocol with the model
// until it stops asking for tools or the iteration cap is hit.
type ToolLoop struct {
	gateway  models.Sender
	executor tools.Executor
	memory   *memory.WorkingMemory
	logger   *slog.Logger
	metrics  *metrics.Metrics

	pacer           Pacer
	sleep           func(ctx context.Context, d time.Duration) error
	tokenBudget     int
	repeatThreshold int
}

// NewToolLoop creates a tool loop. mem may be shared between loops.
func NewToolLoop(gateway models.Sender, executor tools.Executor, mem *memory.WorkingMemory, logger *slog.Logger, opts ...ToolLoopOption) *ToolLoop {
	if mem == nil {
		mem = memory.New()
	}
	l := &ToolLoop{
		gateway:         gateway,
		executor:        executor,
		memory:          mem,
		logger:          logger.With("component", "tool_loop"),
		pacer:           DefaultPacer,
		sleep:           ratelimit.Sleep,
		tokenBudget:     conversation.DefaultTokenBudget,
		repeatThreshold: DefaultRepeatThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Memory returns the working memory the loop records into.
func (l *ToolLoop) Memory() *memory.WorkingMemory { return l.memory }

// Run executes the loop. Hitting the cap is not an error; only gateway
// failures and cancellation during pacing are returned.
func (l *ToolLoop) Run(ctx context.Context, req LoopRequest) (*LoopResult, error) {
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	inline := make(map[string]bool)
	for _, s := range req.Tools {
		if s.InlinePayload {
			inline[s.Name] = true
		}
	}

	res := &LoopResult{State: StateRequesting}
	history := append([]conversation.Message(nil), req.History...)
	if req.Prompt != "" {
		history = append(history, conversation.User(req.Prompt))
	}
	counts := make(map[string]int)
	send := models.SendRequest{
		Prompt:   req.Prompt,
		Snapshot: req.Snapshot,
		History:  req.History,
		Tools:    req.Tools,
	}

	for {
		l.logger.Debug("loop state", "state", res.State, "iteration", res.Iterations)
		reply, err := l.gateway.Send(ctx, send)
		res.ModelCalls++
		if err != nil {
			return nil, fmt.Errorf("call model (iteration %d): %w", res.Iterations+1, err)
		}
		res.Content = reply.Content

		if len(reply.ToolCalls) == 0 {
			res.State = StateDone
			break
		}
		if res.Iterations >= maxIterations {
			res.State = StateDone
			res.CapReached = true
			l.logger.Warn("tool loop reached iteration cap",
				"max_iterations", maxIterations,
				"pending_tool_calls", len(reply.ToolCalls),
			)
			break
		}
		res.Iterations++

		res.State = StateExecuting
		l.logger.Debug("loop state", "state", res.State, "iteration", res.Iterations, "tool_calls", len(reply.ToolCalls))
		results := make([]tools.Result, len(reply.ToolCalls))
		payloads := make([]string, len(reply.ToolCalls))
		var warnings []string
		for i, call := range reply.ToolCalls {
			sig := call.Signature()
			counts[sig]++
			if n := counts[sig]; n > l.repeatThreshold {
				l.logger.Warn("repeated tool call", "tool", call.Name, "count", n)
				l.metrics.RepeatWarning()
				warnings = append(warnings, fmt.Sprintf(
					"⚠️ Repeated tool call detected: %s has been called %d times with identical arguments. Try a different approach or finish.",
					call.Name, n))
			}

			exec := l.execute(ctx, call)
			results[i] = exec.Result
			if exec.Result.Success && exec.Artifact != nil {
				res.Artifacts = append(res.Artifacts, exec.Artifact)
				if inline[call.Name] {
					payloads[i] = exec.Artifact.Payload
				}
			}
		}
		res.Results = append(res.Results, results...)

		res.State = StateContinuing
		content := reply.Content
		if strings.TrimSpace(content) == "" {
			content = usingToolsPlaceholder
		}
		// Only the carried history is trimmed; the newest round always goes out.
		history = conversation.Trim(history, l.tokenBudget)
		history = append(history,
			conversation.Assistant(content),
			conversation.User(l.resultsTurn(reply.ToolCalls, results, payloads, warnings)),
		)

		if d := l.pacer(res.Iterations); d > 0 {
			l.logger.Debug("pacing before continuation", "delay", d, "iteration", res.Iterations)
			if err := l.sleep(ctx, d); err != nil {
				return nil, fmt.Errorf("pacing (iteration %d): %w", res.Iterations, err)
			}
		}

		res.State = StateRequesting
		send = models.SendRequest{
			Snapshot: req.Snapshot.Reduced(),
			History:  history,
			Tools:    req.Tools,
		}
	}

	if res.Content != "" {
		history = append(history, conversation.Assistant(res.Content))
	}
	res.History = history
	l.metrics.LoopFinished(res.Iterations, res.CapReached)
	return res, nil
}

// execute runs one call, applies the acceptance policy and remembers
// undoable successes.
func (l *ToolLoop) execute(ctx context.Context, call tools.Call) tools.Execution {
	exec := tools.SafeExecute(ctx, l.executor, call)
	if exec.Result.Success {
		if v := tools.Validate(call.Name, exec.Artifact, call.Args); !v.OK() {
			l.logger.Warn("tool result rejected",
				"tool", call.Name,
				"verdict", v.Kind,
				"reason", v.Reason,
			)
			exec.Result = exec.Result.Downgrade(v.Message())
		}
	}
	l.metrics.ToolCall(call.Name, exec.Result.Success)

	if !exec.Result.Success {
		l.logger.Info("tool call failed", "tool", call.Name, "error", exec.Result.Error)
		return exec
	}
	if action, details, ok := memory.Describe(call); ok {
		l.memory.Record(action, details, exec.Result)
	}
	return exec
}

// resultsTurn builds the synthetic user message that reports a round back
// to the model.
func (l *ToolLoop) resultsTurn(calls []tools.Call, results []tools.Result, payloads, warnings []string) string {
	var b strings.Builder
	if l.memory.Len() > 0 {
		b.WriteString("Working Memory:\n")
		b.WriteString(l.memory.Summary(memory.DefaultSummarySize))
		b.WriteString("\n")
	}
	for i, r := range results {
		b.WriteString("\n---\n")
		b.WriteString(r.Format())
		b.WriteString("\n")
		if payloads[i] != "" {
			b.WriteString("\n**Content:**\n")
			b.WriteString(payloads[i])
			b.WriteString("\n")
		}
	}
	for _, w := range warnings {
		b.WriteString("\n")
		b.WriteString(w)
		b.WriteString("\n")
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		names := make([]string, len(calls))
		for i, c := range calls {
			names[i] = c.Name
		}
		return "✅ Tools executed successfully: " + strings.Join(names, ", ") + ". Continue with remaining tasks."
	}
	return out
}
