// Package metrics exposes Prometheus collectors for assistant activity.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tenx"

// Metrics groups the collectors. Create one per registry with New.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayRetries  prometheus.Counter
	gatewayLatency  prometheus.Histogram
	limiterWaits    prometheus.Counter
	limiterWaitSecs prometheus.Counter
	loopIterations  prometheus.Histogram
	loopCapReached  prometheus.Counter
	toolCalls       *prometheus.CounterVec
	repeatedCalls   prometheus.Counter
	agentRuns       *prometheus.CounterVec
	turns           *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "requests_total",
			Help: "Model calls by outcome (ok, rate_limited, error, exhausted).",
		}, []string{"outcome"}),
		gatewayRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "retries_total",
			Help: "Model calls retried after a provider rate-limit error.",
		}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "request_duration_seconds",
			Help:    "Latency of individual provider requests.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		limiterWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ratelimit", Name: "waits_total",
			Help: "Model calls delayed by the local rate limiter.",
		}),
		limiterWaitSecs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ratelimit", Name: "wait_seconds_total",
			Help: "Total time spent waiting on the local rate limiter.",
		}),
		loopIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "loop", Name: "iterations",
			Help:    "Tool-execution rounds per tool loop run.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 25},
		}),
		loopCapReached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loop", Name: "cap_reached_total",
			Help: "Tool loop runs stopped by their iteration cap.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tools", Name: "calls_total",
			Help: "Tool calls by tool and validated status.",
		}, []string{"tool", "status"}),
		repeatedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tools", Name: "repeat_warnings_total",
			Help: "Repeated identical tool calls flagged to the model.",
		}),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agents", Name: "runs_total",
			Help: "Specialized agent runs by capability and status.",
		}, []string{"capability", "status"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assistant", Name: "turns_total",
			Help: "Processed user turns by mode and status.",
		}, []string{"mode", "status"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "assistant", Name: "turn_duration_seconds",
			Help:    "Wall-clock time per user turn.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"mode"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.gatewayRequests, m.gatewayRetries, m.gatewayLatency,
			m.limiterWaits, m.limiterWaitSecs,
			m.loopIterations, m.loopCapReached,
			m.toolCalls, m.repeatedCalls,
			m.agentRuns, m.turns, m.turnDuration,
		)
	}
	return m
}

// GatewayRequest counts one provider request and its latency.
func (m *Metrics) GatewayRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(outcome).Inc()
	m.gatewayLatency.Observe(d.Seconds())
}

// GatewayExhausted counts a call that ran out of rate-limit retries.
func (m *Metrics) GatewayExhausted() {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues("exhausted").Inc()
}

// GatewayRetry counts one backoff retry.
func (m *Metrics) GatewayRetry() {
	if m == nil {
		return
	}
	m.gatewayRetries.Inc()
}

// LimiterWait records time spent blocked on the local limiter.
func (m *Metrics) LimiterWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.limiterWaits.Inc()
	m.limiterWaitSecs.Add(d.Seconds())
}

// LoopFinished records how many rounds a loop ran.
func (m *Metrics) LoopFinished(iterations int, capReached bool) {
	if m == nil {
		return
	}
	m.loopIterations.Observe(float64(iterations))
	if capReached {
		m.loopCapReached.Inc()
	}
}

// ToolCall counts one executed call.
func (m *Metrics) ToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status(success)).Inc()
}

// RepeatWarning counts one repeated-call warning.
func (m *Metrics) RepeatWarning() {
	if m == nil {
		return
	}
	m.repeatedCalls.Inc()
}

// AgentRun counts one specialized agent run.
func (m *Metrics) AgentRun(capability string, success bool) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(capability, status(success)).Inc()
}

// Turn records a finished user turn.
func (m *Metrics) Turn(mode string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, status(success)).Inc()
	m.turnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
