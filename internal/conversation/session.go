package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an append-only conversation owned by one user.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`

	mu sync.RWMutex
}

// NewSession creates an empty session. An empty id gets a fresh uuid.
func NewSession(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Append adds messages to the end of the history.
func (s *Session) Append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = time.Now()
}

// History returns a copy of the messages.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Messages)
}

// RecentlySaid reports whether content matches, after trimming whitespace,
// one of the last n user messages.
func (s *Session) RecentlySaid(content string, n int) bool {
	want := strings.TrimSpace(content)
	if want == "" || n <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := 0
	for i := len(s.Messages) - 1; i >= 0 && seen < n; i-- {
		m := s.Messages[i]
		if m.Role != RoleUser {
			continue
		}
		seen++
		if strings.TrimSpace(m.Content) == want {
			return true
		}
	}
	return false
}

// Store keeps sessions in memory and, when a directory is configured,
// persists each one as a JSON file.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a session store. An empty dir keeps sessions in memory only.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	return &Store{
		dir:      dir,
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the session with id, loading it from disk or creating it.
func (st *Store) Get(id string) *Session {
	if id != "" {
		st.mu.RLock()
		s, ok := st.sessions[id]
		st.mu.RUnlock()
		if ok {
			return s
		}
		if s := st.load(id); s != nil {
			st.mu.Lock()
			st.sessions[id] = s
			st.mu.Unlock()
			return s
		}
	}

	s := NewSession(id)
	st.mu.Lock()
	if existing, ok := st.sessions[s.ID]; ok {
		st.mu.Unlock()
		return existing
	}
	st.sessions[s.ID] = s
	st.mu.Unlock()
	st.logger.Debug("session created", "session", s.ID)
	return s
}

// Lookup returns a session only if it already exists.
func (st *Store) Lookup(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return s, true
	}
	if s := st.load(id); s != nil {
		st.mu.Lock()
		st.sessions[id] = s
		st.mu.Unlock()
		return s, true
	}
	return nil, false
}

// Save writes the session to disk. It is a no-op for in-memory stores.
func (st *Store) Save(s *Session) error {
	if st.dir == "" {
		return nil
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(st.path(s.ID), data, 0640); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (st *Store) load(id string) *Session {
	if st.dir == "" || !validID(id) {
		return nil
	}
	data, err := os.ReadFile(st.path(id))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			st.logger.Warn("read session file", "session", id, "error", err)
		}
		return nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		st.logger.Warn("parse session file", "session", id, "error", err)
		return nil
	}
	return &s
}

func (st *Store) path(id string) string {
	return filepath.Join(st.dir, id+".json")
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\.`)
}
