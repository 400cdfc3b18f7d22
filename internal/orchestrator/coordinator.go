package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/snapshot"
	"github.com/clawinfra/tenx/internal/types"
)

const doneSummary = "✅ Done"

// Classifier turns a message into an Intent.
type Classifier interface {
	Classify(ctx context.Context, message string, snap snapshot.Snapshot) (Intent, error)
}

// Agent runs one capability. Implementations report failure in the result.
type Agent interface {
	Run(ctx context.Context, c Capability, message string, snap snapshot.Snapshot, intent Intent, history []conversation.Message) AgentResult
}

// CoordinatorResult is the merged outcome of a multi-agent turn.
type CoordinatorResult struct {
	Intent    Intent
	Results   []AgentResult
	Summary   string
	Artifacts []*types.Artifact
	Duration  time.Duration
}

// Failed lists the capabilities whose agent failed.
func (r *CoordinatorResult) Failed() []Capability {
	var out []Capability
	for _, a := range r.Results {
		if !a.Success {
			out = append(out, a.Capability)
		}
	}
	return out
}

// Coordinator classifies a message and fans out one agent per capability.
type Coordinator struct {
	router Classifier
	agents Agent
	logger *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(router Classifier, agents Agent, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		router: router,
		agents: agents,
		logger: logger.With("component", "coordinator"),
	}
}

// Handle runs the multi-agent path. Only classification errors are
// returned; agent failures are absorbed into the merged result.
func (c *Coordinator) Handle(ctx context.Context, message string, snap snapshot.Snapshot, history []conversation.Message) (*CoordinatorResult, error) {
	start := time.Now()
	intent, err := c.router.Classify(ctx, message, snap)
	if err != nil {
		return nil, fmt.Errorf("route message: %w", err)
	}

	c.logger.Info("spawning agents", "count", len(intent.Actions), "actions", intent.Actions)
	results := make([]AgentResult, len(intent.Actions))

	// Siblings are not cancelled when one agent fails.
	var g errgroup.Group
	for i, capability := range intent.Actions {
		g.Go(func() error {
			results[i] = c.agents.Run(ctx, capability, message, snap, intent, history)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Capability < results[b].Capability
	})

	out := merge(results)
	out.Intent = intent
	out.Duration = time.Since(start)
	c.logger.Info("agents finished",
		"succeeded", len(results)-len(out.Failed()),
		"failed", out.Failed(),
		"artifacts", len(out.Artifacts),
		"elapsed", out.Duration,
	)
	return out, nil
}

func merge(results []AgentResult) *CoordinatorResult {
	out := &CoordinatorResult{Results: results}
	var summaries []string
	for _, r := range results {
		out.Artifacts = append(out.Artifacts, r.Artifacts...)
		if r.Success && strings.TrimSpace(r.Summary) != "" {
			summaries = append(summaries, r.Summary)
		}
	}
	out.Summary = strings.Join(summaries, "\n\n")
	if out.Summary == "" {
		out.Summary = doneSummary
	}
	return out
}
