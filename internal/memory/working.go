// Package memory keeps a short log of recent successful actions so the model
// can resolve follow-ups such as "undo that" or "delete that".
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clawinfra/tenx/internal/tools"
)

const (
	// DefaultCapacity is the number of actions retained.
	DefaultCapacity = 10
	// DefaultSummarySize is how many actions Summary renders when n <= 0.
	DefaultSummarySize = 5
)

// ActionRecord is one remembered action.
type ActionRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details"`
	Result    tools.Result      `json:"result"`
}

// WorkingMemory is a fixed-capacity, most-recent-first action log. It is safe
// for concurrent use; interleaving of appends from concurrent agents is not
// ordered beyond arrival.
type WorkingMemory struct {
	capacity int
	now      func() time.Time

	mu      sync.RWMutex
	actions []ActionRecord
}

// Option configures a WorkingMemory.
type Option func(*WorkingMemory)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *WorkingMemory) { m.now = now }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(m *WorkingMemory) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// New creates an empty working memory.
func New(opts ...Option) *WorkingMemory {
	m := &WorkingMemory{capacity: DefaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record remembers an action, evicting the oldest past capacity.
func (m *WorkingMemory) Record(action string, details map[string]string, result tools.Result) {
	rec := ActionRecord{
		Timestamp: m.now(),
		Action:    action,
		Details:   details,
		Result:    result,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append([]ActionRecord{rec}, m.actions...)
	if len(m.actions) > m.capacity {
		m.actions = m.actions[:m.capacity]
	}
}

// Last returns the most recent action.
func (m *WorkingMemory) Last() (ActionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.actions) == 0 {
		return ActionRecord{}, false
	}
	return m.actions[0], true
}

// Recent returns up to n actions, newest first.
func (m *WorkingMemory) Recent(n int) []ActionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.actions) {
		n = len(m.actions)
	}
	out := make([]ActionRecord, n)
	copy(out, m.actions[:n])
	return out
}

// Len returns the number of remembered actions.
func (m *WorkingMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.actions)
}

// Clear forgets everything.
func (m *WorkingMemory) Clear() {
	m.mu.Lock()
	m.actions = nil
	m.mu.Unlock()
}

// Summary renders the newest n actions (DefaultSummarySize when n <= 0).
func (m *WorkingMemory) Summary(n int) string {
	if n <= 0 {
		n = DefaultSummarySize
	}
	recent := m.Recent(n)
	if len(recent) == 0 {
		return "No recent actions recorded."
	}

	now := m.now()
	var b strings.Builder
	b.WriteString("Recent Actions:")
	for _, rec := range recent {
		secs := int(now.Sub(rec.Timestamp).Seconds())
		fmt.Fprintf(&b, "\n- %d seconds ago: %s — %s", secs, rec.Action, formatDetails(rec.Details))
	}
	return b.String()
}

func formatDetails(d map[string]string) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+d[k])
	}
	return strings.Join(parts, ", ")
}
