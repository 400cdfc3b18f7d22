package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/memory"
	"github.com/clawinfra/tenx/internal/metrics"
	"github.com/clawinfra/tenx/internal/orchestrator"
	"github.com/clawinfra/tenx/internal/security"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/turnlog"
	"github.com/clawinfra/tenx/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoAssistant appends an echo reply and remembers the options it saw.
type echoAssistant struct {
	opts    []orchestrator.TurnOptions
	ctxErrs []error
}

func (e *echoAssistant) Process(ctx context.Context, s *conversation.Session, message string, opts orchestrator.TurnOptions) (*orchestrator.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, orchestrator.ErrEmptyMessage
	}
	e.opts = append(e.opts, opts)
	e.ctxErrs = append(e.ctxErrs, ctx.Err())
	reply := "echo: " + message
	s.Append(conversation.User(message), conversation.Assistant(reply))
	mode := orchestrator.ModeSingle
	if opts.MultiAgent {
		mode = orchestrator.ModeMulti
	}
	return &orchestrator.Turn{
		ID:        "turn-1",
		SessionID: s.ID,
		Mode:      mode,
		Reply:     reply,
		Artifacts: []*types.Artifact{types.NewArtifact(types.ArtifactTask, "Deck", "", "")},
		Duration:  1500 * time.Millisecond,
	}, nil
}

type serverFixture struct {
	server    *Server
	handler   http.Handler
	assistant *echoAssistant
	sessions  *conversation.Store
	memory    *memory.WorkingMemory
	turns     *turnlog.Store
}

func newFixture(t *testing.T, secret string) *serverFixture {
	t.Helper()
	sessions, err := conversation.NewStore("", testLogger())
	require.NoError(t, err)
	turns, err := turnlog.Open(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = turns.Close() })

	reg := prometheus.NewRegistry()
	metrics.New(reg).Turn("multi", true, time.Second)

	f := &serverFixture{
		assistant: &echoAssistant{},
		sessions:  sessions,
		memory:    memory.New(),
		turns:     turns,
	}
	f.server = NewServer(0, Deps{
		Assistant:  f.assistant,
		Sessions:   sessions,
		Memory:     f.memory,
		Turns:      turns,
		Auth:       security.NewAuthenticator(secret, testLogger()),
		Gatherer:   reg,
		MultiAgent: true,
	}, testLogger())
	f.handler = f.server.Handler()
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestChat(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"  hello  "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "echo: hello", resp["reply"])
	assert.Equal(t, "s1", resp["session_id"])
	assert.Equal(t, "multi", resp["mode"])
	assert.EqualValues(t, 1500, resp["elapsed_ms"])
	assert.Len(t, resp["artifacts"], 1)

	rec = f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"again","multi_agent":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []orchestrator.TurnOptions{{MultiAgent: true}, {MultiAgent: false}}, f.assistant.opts)

	s, ok := f.sessions.Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, 4, s.Len())
}

func TestChatSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"s1","message":"log the call"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(f.assistant.ctxErrs) != 1 {
		t.Fatalf("Process called %d times, want 1", len(f.assistant.ctxErrs))
	}
	if err := f.assistant.ctxErrs[0]; err != nil {
		t.Errorf("turn context error = %v, want nil", err)
	}
}

func TestChatNewSession(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id, _ := decode[map[string]any](t, rec)["session_id"].(string)
	assert.NotEmpty(t, id)
}

func TestChatRejectsBadInput(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/api/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSession(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"hello"}`)

	rec := f.do(t, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, "s1", resp.ID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, conversation.RoleUser, resp.Messages[0].Role)
	assert.Positive(t, resp.Tokens)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sessions/nope", "").Code)
}

func TestMemory(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/memory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actions":[],"summary":"No recent actions recorded."}`, rec.Body.String())

	call := tools.Call{Name: "create_or_update_task", Args: tools.Args{"title": tools.String("Deck")}}
	f.memory.Record("created_task", map[string]string{"title": "Deck"}, tools.Succeeded(call, "ok"))
	f.memory.Record("added_journal", map[string]string{"content": "Met Scott"}, tools.Succeeded(call, "ok"))

	rec = f.do(t, http.MethodGet, "/api/memory?n=1", "")
	resp := decode[struct {
		Actions []memory.ActionRecord `json:"actions"`
		Summary string                `json:"summary"`
	}](t, rec)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "added_journal", resp.Actions[0].Action)
	assert.Contains(t, resp.Summary, "added_journal")
	assert.NotContains(t, resp.Summary, "created_task")
}

func TestTurns(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, sid := range []string{"a", "b", "a"} {
		require.NoError(t, f.turns.Record(ctx, turnlog.Entry{
			ID: string(rune('x' + i)), SessionID: sid, Mode: "multi", Success: true,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := f.do(t, http.MethodGet, "/api/turns?session=a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Turns []turnlog.Entry `json:"turns"`
		Count int             `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "z", resp.Turns[0].ID)

	resp = decode[struct {
		Turns []turnlog.Entry `json:"turns"`
		Count int             `json:"count"`
	}](t, f.do(t, http.MethodGet, "/api/turns?n=1", ""))
	assert.Equal(t, 1, resp.Count)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.turns.Record(context.Background(), turnlog.Entry{ID: "t", SessionID: "s", StartedAt: time.Now()}))

	rec := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "dev", resp["version"])
	assert.Equal(t, false, resp["auth"])
	assert.Equal(t, true, resp["multi_agent"])
	assert.EqualValues(t, 1, resp["turns"])
	assert.EqualValues(t, 0, resp["memory_actions"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tenx_assistant_turns_total{mode="multi",status="success"} 1`)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, "api-secret")
	auth := security.NewAuthenticator("api-secret", testLogger())
	readTok, err := auth.Issue("dashboard", time.Hour, security.ScopeRead)
	require.NoError(t, err)
	chatTok, err := auth.Issue("phone", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/status", "", "Authorization", "Bearer "+readTok).Code)

	body := `{"message":"hi"}`
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/chat", body, "Authorization", "Bearer "+readTok).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/chat", body, "Authorization", "Bearer "+chatTok).Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "").Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodOptions, "/api/chat", "", "Origin", "https://app.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	f.server.deps.AllowedOrigins = []string{"https://app.example"}
	f.handler = f.server.Handler()
	rec = f.do(t, http.MethodGet, "/api/status", "", "Origin", "https://app.example")
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	rec = f.do(t, http.MethodGet, "/api/status", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20}, {"n=5", 5}, {"n=-1", 20}, {"n=abc", 20}, {"n=5000", 200},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/turns?"+tt.query, nil)
		if got := queryInt(req, "n", 20, 200); got != tt.want {
			t.Errorf("queryInt(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
