package orchestrator

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/metrics"
	"github.com/clawinfra/tenx/internal/snapshot"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

//go:embed profiles.yaml
var defaultProfiles []byte

const defaultAgentIterations = 3

// Profile scopes one specialized agent.
type Profile struct {
	Instructions  string   `yaml:"instructions"`
	Directive     string   `yaml:"directive"`
	Tools         []string `yaml:"tools"`
	MaxIterations int      `yaml:"max_iterations"`
}

// Profiles maps each capability to its agent profile.
type Profiles map[Capability]Profile

// DefaultProfiles returns the built-in profiles.
func DefaultProfiles() (Profiles, error) {
	return ParseProfiles(defaultProfiles)
}

// LoadProfiles reads profiles from a YAML file. An empty path yields the
// built-in profiles.
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return DefaultProfiles()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes YAML keyed by lower-case capability tag.
func ParseProfiles(data []byte) (Profiles, error) {
	var raw map[string]Profile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	out := make(Profiles, len(raw))
	for key, p := range raw {
		c, err := ParseCapability(key)
		if err != nil {
			return nil, fmt.Errorf("parse profiles: %w", err)
		}
		if len(p.Tools) == 0 {
			return nil, fmt.Errorf("parse profiles: %s has no tools", key)
		}
		if p.MaxIterations <= 0 {
			p.MaxIterations = defaultAgentIterations
		}
		out[c] = p
	}
	return out, nil
}

// AgentResult is the outcome of one specialized agent.
type AgentResult struct {
	Capability Capability
	Success    bool
	Summary    string
	Artifacts  []*types.Artifact
	Err        error
	Iterations int
	Duration   time.Duration
}

// AgentRunner runs the tool loop scoped to one capability's tools.
type AgentRunner struct {
	loop     *ToolLoop
	catalog  *tools.Catalog
	profiles Profiles
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewAgentRunner creates a runner. m may be nil.
func NewAgentRunner(loop *ToolLoop, catalog *tools.Catalog, profiles Profiles, logger *slog.Logger, m *metrics.Metrics) *AgentRunner {
	return &AgentRunner{
		loop:     loop,
		catalog:  catalog,
		profiles: profiles,
		logger:   logger.With("component", "agent_runner"),
		metrics:  m,
	}
}

// Run drives one agent. It never panics or returns an error: every failure
// is reported in the result so sibling agents are unaffected.
func (r *AgentRunner) Run(ctx context.Context, c Capability, message string, snap snapshot.Snapshot, intent Intent, history []conversation.Message) (res AgentResult) {
	start := time.Now()
	res.Capability = c
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("agent panicked", "agent", c.Name(), "panic", p)
			res = r.failed(c, fmt.Errorf("agent panic: %v", p))
		}
		res.Duration = time.Since(start)
		r.metrics.AgentRun(string(c), res.Success)
	}()

	profile, ok := r.profiles[c]
	if !ok {
		return r.failed(c, fmt.Errorf("%w: %s", ErrUnknownCapability, c))
	}
	specs, missing := r.catalog.Subset(profile.Tools...)
	if len(missing) > 0 {
		r.logger.Warn("profile names tools missing from catalog", "agent", c.Name(), "missing", missing)
	}
	if len(specs) == 0 {
		return r.failed(c, fmt.Errorf("%s has no usable tools", c.Name()))
	}

	r.logger.Info("agent started", "agent", c.Name(), "tools", tools.Names(specs))
	out, err := r.loop.Run(ctx, LoopRequest{
		Prompt:        agentPrompt(profile, message, intent),
		Snapshot:      snap,
		History:       history,
		Tools:         specs,
		MaxIterations: profile.MaxIterations,
	})
	if err != nil {
		r.logger.Warn("agent failed", "agent", c.Name(), "error", err)
		return r.failed(c, err)
	}

	r.logger.Info("agent finished",
		"agent", c.Name(),
		"iterations", out.Iterations,
		"artifacts", len(out.Artifacts),
		"cap_reached", out.CapReached,
	)
	return AgentResult{
		Capability: c,
		Success:    true,
		Summary:    out.Content,
		Artifacts:  out.Artifacts,
		Iterations: out.Iterations,
	}
}

func (r *AgentRunner) failed(c Capability, err error) AgentResult {
	return AgentResult{
		Capability: c,
		Summary:    "Failed to execute " + c.Name(),
		Err:        err,
	}
}

func agentPrompt(p Profile, message string, intent Intent) string {
	return fmt.Sprintf("%s\n\nUser said: \"%s\"\nContext details: %s\n\n%s",
		strings.TrimSpace(p.Instructions), message, intent.ContextDetails, strings.TrimSpace(p.Directive))
}
