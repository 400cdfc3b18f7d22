package models

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/metrics"
	"github.com/clawinfra/tenx/internal/ratelimit"
	"github.com/clawinfra/tenx/internal/snapshot"
	"github.com/clawinfra/tenx/internal/tools"
)

var (
	// DefaultStandardDelays are waited after rate-limited attempts 1-5.
	DefaultStandardDelays = []time.Duration{3 * time.Second, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
	// DefaultExtendedDelays are waited after rate-limited attempts 6-9; the
	// tenth attempt is the last.
	DefaultExtendedDelays = []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second, 90 * time.Second, 120 * time.Second}
)

const (
	defaultStandardJitter = time.Second
	defaultExtendedJitter = 2 * time.Second
)

// SendRequest is one model call. An empty Prompt continues from History
// without adding a user message.
type SendRequest struct {
	Prompt   string
	Snapshot snapshot.Snapshot
	History  []conversation.Message
	Tools    []tools.Spec
}

// Reply is the decoded model response.
type Reply struct {
	Content      string
	ToolCalls    []tools.Call
	StopReason   string
	Model        string
	Attempts     int
	TokensInput  int
	TokensOutput int
}

// Sender is what callers of the gateway depend on.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*Reply, error)
}

// Gateway wraps a Provider with the local rate limit and retry on provider
// throttling. Callers see either a reply or a terminal error.
type Gateway struct {
	provider  Provider
	limiter   *ratelimit.Window
	prompt    PromptBuilder
	model     string
	maxTokens int

	standard       []time.Duration
	extended       []time.Duration
	standardJitter time.Duration
	extendedJitter time.Duration

	jitter  func(max time.Duration) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithBackoff replaces the retry schedule and jitter bounds.
func WithBackoff(standard, extended []time.Duration, standardJitter, extendedJitter time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.standard = standard
		g.extended = extended
		g.standardJitter = standardJitter
		g.extendedJitter = extendedJitter
	}
}

// WithSleep replaces the context-aware sleep between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) GatewayOption {
	return func(g *Gateway) { g.sleep = sleep }
}

// WithJitter replaces the random jitter source. It receives the upper bound.
func WithJitter(jitter func(max time.Duration) time.Duration) GatewayOption {
	return func(g *Gateway) { g.jitter = jitter }
}

// WithPrompt sets the system prompt builder.
func WithPrompt(p PromptBuilder) GatewayOption {
	return func(g *Gateway) { g.prompt = p }
}

// WithModel sets the model name and response token limit.
func WithModel(model string, maxTokens int) GatewayOption {
	return func(g *Gateway) {
		g.model = model
		g.maxTokens = maxTokens
	}
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a gateway. A nil limiter gets the default window.
func NewGateway(provider Provider, limiter *ratelimit.Window, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultCapacity)
	}
	g := &Gateway{
		provider:       provider,
		limiter:        limiter,
		maxTokens:      defaultMaxTokens,
		standard:       DefaultStandardDelays,
		extended:       DefaultExtendedDelays,
		standardJitter: defaultStandardJitter,
		extendedJitter: defaultExtendedJitter,
		jitter:         randomJitter,
		sleep:          ratelimit.Sleep,
		logger:         logger.With("component", "model-gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts is the number of provider calls made before giving up on a
// persistently rate-limited request.
func (g *Gateway) MaxAttempts() int {
	n := len(g.standard) + len(g.extended)
	if n < 1 {
		return 1
	}
	return n
}

// Send calls the model. Rate-limited attempts are retried with backoff;
// any other provider error is returned at once.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (*Reply, error) {
	messages := req.History
	if req.Prompt != "" {
		messages = append(append([]conversation.Message(nil), req.History...), conversation.User(req.Prompt))
	}
	chat := ChatRequest{
		Model:        g.model,
		SystemPrompt: g.prompt.Build(req.Snapshot),
		Messages:     messages,
		Tools:        req.Tools,
		MaxTokens:    g.maxTokens,
	}

	maxAttempts := g.MaxAttempts()
	for attempt := 1; ; attempt++ {
		waited, err := g.limiter.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
		if waited > 0 {
			g.logger.Info("rate limiter delayed model call", "waited", waited)
			g.metrics.LimiterWait(waited)
		}

		start := time.Now()
		resp, err := g.provider.Chat(ctx, chat)
		elapsed := time.Since(start)
		if err == nil {
			g.metrics.GatewayRequest("ok", elapsed)
			g.logger.Debug("model call complete",
				"attempt", attempt,
				"tool_calls", len(resp.ToolCalls),
				"tokens_in", resp.TokensInput,
				"tokens_out", resp.TokensOutput,
				"elapsed", elapsed,
			)
			return &Reply{
				Content:      resp.Content,
				ToolCalls:    resp.ToolCalls,
				StopReason:   resp.FinishReason,
				Model:        resp.Model,
				Attempts:     attempt,
				TokensInput:  resp.TokensInput,
				TokensOutput: resp.TokensOutput,
			}, nil
		}

		if !IsRateLimit(err) {
			g.metrics.GatewayRequest("error", elapsed)
			return nil, fmt.Errorf("%s: %w", g.provider.Name(), err)
		}
		g.metrics.GatewayRequest("rate_limited", elapsed)

		if attempt >= maxAttempts {
			g.metrics.GatewayExhausted()
			g.logger.Error("rate limit retries exhausted", "attempts", attempt)
			return nil, fmt.Errorf("%w (%d attempts): %w", ErrRateLimitExhausted, attempt, err)
		}

		delay := g.backoff(attempt)
		phase := "standard"
		if attempt > len(g.standard) {
			phase = "extended"
		}
		g.logger.Warn("provider rate limited, backing off",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"phase", phase,
			"delay", delay,
		)
		g.metrics.GatewayRetry()
		if err := g.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("backoff after attempt %d: %w", attempt, err)
		}
	}
}

// backoff returns the wait after failed attempt n (1-based).
func (g *Gateway) backoff(attempt int) time.Duration {
	if attempt <= len(g.standard) {
		return g.standard[attempt-1] + g.jitter(g.standardJitter)
	}
	i := attempt - len(g.standard) - 1
	if i >= len(g.extended) {
		i = len(g.extended) - 1
	}
	if i < 0 {
		return g.jitter(g.extendedJitter)
	}
	return g.extended[i] + g.jitter(g.extendedJitter)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}
