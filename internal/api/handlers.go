package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/memory"
	"github.com/clawinfra/tenx/internal/orchestrator"
)

const maxChatBody = 64 << 10

// ChatRequest is the JSON body for POST /api/chat. An empty SessionID
// starts a new session.
type ChatRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message"`
	MultiAgent *bool  `json:"multi_agent,omitempty"`
}

// ChatResponse wraps the processed turn.
type ChatResponse struct {
	*orchestrator.Turn
	ElapsedMs int64 `json:"elapsed_ms"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil || s.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts := orchestrator.TurnOptions{MultiAgent: s.deps.MultiAgent}
	if req.MultiAgent != nil {
		opts.MultiAgent = *req.MultiAgent
	}

	session := s.deps.Sessions.Get(req.SessionID)
	// A turn runs to completion even if the client goes away.
	turn, err := s.deps.Assistant.Process(context.WithoutCancel(r.Context()), session, req.Message, opts)
	if errors.Is(err, orchestrator.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err != nil {
		s.logger.Error("chat turn failed", "session", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Turn: turn, ElapsedMs: turn.Duration.Milliseconds()})
}

// SessionResponse is the JSON body for GET /api/sessions/{id}.
type SessionResponse struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	Messages  []conversation.Message `json:"messages"`
	Tokens    int                    `json:"tokens"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions not configured")
		return
	}
	session, ok := s.deps.Sessions.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	history := session.History()
	writeJSON(w, http.StatusOK, SessionResponse{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		Messages:  history,
		Tokens:    conversation.Tokens(history),
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		writeJSON(w, http.StatusOK, map[string]any{"actions": []memory.ActionRecord{}, "summary": ""})
		return
	}
	n := queryInt(r, "n", memory.DefaultCapacity, memory.DefaultCapacity)
	actions := s.deps.Memory.Recent(n)
	if actions == nil {
		actions = []memory.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"summary": s.deps.Memory.Summary(n),
	})
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Turns == nil {
		writeError(w, http.StatusServiceUnavailable, "turn log not configured")
		return
	}
	entries, err := s.deps.Turns.Recent(r.Context(), r.URL.Query().Get("session"), queryInt(r, "n", 20, 200))
	if err != nil {
		s.logger.Error("list turns", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list turns")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": entries, "count": len(entries)})
}
