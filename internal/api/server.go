// Package api serves the assistant over HTTP: chat turns, session and
// working-memory inspection, the turn log, live notices over websocket, and
// Prometheus metrics.
package api

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/memory"
	"github.com/clawinfra/tenx/internal/orchestrator"
	"github.com/clawinfra/tenx/internal/security"
	"github.com/clawinfra/tenx/internal/turnlog"
)

// Version is reported by /api/status.
var Version = "dev"

// Assistant answers one user message. *orchestrator.Assistant satisfies it.
type Assistant interface {
	Process(ctx context.Context, session *conversation.Session, message string, opts orchestrator.TurnOptions) (*orchestrator.Turn, error)
}

// Sessions resolves conversation sessions. *conversation.Store satisfies it.
type Sessions interface {
	Get(id string) *conversation.Session
	Lookup(id string) (*conversation.Session, bool)
}

// TurnLog lists stored turns. *turnlog.Store satisfies it.
type TurnLog interface {
	Recent(ctx context.Context, sessionID string, n int) ([]turnlog.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators the server reads from.
type Deps struct {
	Assistant Assistant
	Sessions  Sessions
	Memory    *memory.WorkingMemory
	Turns     TurnLog
	Events    *Hub
	Auth      *security.Authenticator
	Gatherer  prometheus.Gatherer

	AllowedOrigins []string
	// MultiAgent is the default for chat requests that do not say.
	MultiAgent bool
}

// Server is the HTTP API server
type Server struct {
	port       int
	deps       Deps
	logger     *slog.Logger
	startedAt  time.Time
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(port int, deps Deps, logger *slog.Logger) *Server {
	if deps.Events == nil {
		deps.Events = NewHub(logger)
	}
	if deps.Auth == nil {
		deps.Auth = security.NewAuthenticator("", logger)
	}
	return &Server{
		port:      port,
		deps:      deps,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	read := s.deps.Auth.Require(security.ScopeRead)
	chat := s.deps.Auth.Require(security.ScopeChat)

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", chat(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/sessions/{id}", read(http.HandlerFunc(s.handleSession)))
	mux.Handle("GET /api/memory", read(http.HandlerFunc(s.handleMemory)))
	mux.Handle("GET /api/turns", read(http.HandlerFunc(s.handleTurns)))
	mux.Handle("GET /api/status", read(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/events", read(http.HandlerFunc(s.handleEvents)))
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Turns can spend minutes in rate-limit backoff.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "port", s.port, "dev_mode", s.deps.Auth.DevMode())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		s.deps.Events.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware allows every origin unless AllowedOrigins is set.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.deps.AllowedOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.deps.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"version":           Version,
		"uptime_seconds":    int(time.Since(s.startedAt).Seconds()),
		"multi_agent":       s.deps.MultiAgent,
		"auth":              !s.deps.Auth.DevMode(),
		"event_subscribers": s.deps.Events.Subscribers(),
	}
	if s.deps.Memory != nil {
		status["memory_actions"] = s.deps.Memory.Len()
	}
	if s.deps.Turns != nil {
		n, err := s.deps.Turns.Count(r.Context())
		if err != nil {
			s.logger.Warn("count turns", "error", err)
		} else {
			status["turns"] = n
		}
	}
	writeJSON(w, http.StatusOK, status)
}
