package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawinfra/tenx/internal/orchestrator"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

type subscriber struct {
	session string
	ch      chan orchestrator.Notice
}

// Hub fans interim notices out to websocket subscribers. It implements
// orchestrator.Notifier; slow subscribers lose notices rather than block
// the turn.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "events"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Notify delivers n to every subscriber watching its session, or all
// sessions.
func (h *Hub) Notify(n orchestrator.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.session != "" && sub.session != n.SessionID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			h.logger.Warn("subscriber lagging, notice dropped", "kind", n.Kind, "session", n.SessionID)
		}
	}
}

// Subscribe registers a subscriber. An empty session receives everything.
// The returned cancel func must be called once.
func (h *Hub) Subscribe(session string) (<-chan orchestrator.Notice, func()) {
	sub := &subscriber{session: session, ch: make(chan orchestrator.Notice, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.ch)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

var _ orchestrator.Notifier = (*Hub)(nil)

// handleEvents streams notices as JSON frames. ?session= narrows the
// stream to one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: s.deps.AllowedOrigins}
	if len(s.deps.AllowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	session := r.URL.Query().Get("session")
	notices, cancel := s.deps.Events.Subscribe(session)
	defer cancel()
	s.logger.Info("event subscriber connected", "remote", r.RemoteAddr, "session", session)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
				return
			}
			if err := s.writeNotice(ctx, conn, n); err != nil {
				s.logger.Debug("event write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeNotice(ctx context.Context, conn *websocket.Conn, n orchestrator.Notice) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, n)
}
