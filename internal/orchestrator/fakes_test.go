package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/models"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway answers each Send with respond and records the requests.
type fakeGateway struct {
	mu       sync.Mutex
	requests []models.SendRequest
	respond  func(n int, req models.SendRequest) (*models.Reply, error)
}

func (g *fakeGateway) Send(_ context.Context, req models.SendRequest) (*models.Reply, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	n := len(g.requests)
	g.mu.Unlock()
	return g.respond(n, req)
}

func (g *fakeGateway) calls() []models.SendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.SendRequest(nil), g.requests...)
}

// scripted replays replies in order and then answers with plain text.
func scripted(replies ...*models.Reply) *fakeGateway {
	return &fakeGateway{respond: func(n int, _ models.SendRequest) (*models.Reply, error) {
		if n <= len(replies) {
			return replies[n-1], nil
		}
		return &models.Reply{Content: "All done."}, nil
	}}
}

func toolReply(content string, calls ...tools.Call) *models.Reply {
	return &models.Reply{Content: content, ToolCalls: calls}
}

func call(id, name string, kv ...string) tools.Call {
	args := tools.Args{}
	for i := 0; i+1 < len(kv); i += 2 {
		args[kv[i]] = tools.String(kv[i+1])
	}
	return tools.Call{ID: id, Name: name, Args: args}
}

// recordingExecutor succeeds with an artifact for every call unless a
// custom handler is registered for the tool.
type recordingExecutor struct {
	mu       sync.Mutex
	calls    []tools.Call
	handlers map[string]func(tools.Call) tools.Execution
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{handlers: map[string]func(tools.Call) tools.Execution{}}
}

func (e *recordingExecutor) Execute(_ context.Context, c tools.Call) tools.Execution {
	e.mu.Lock()
	e.calls = append(e.calls, c)
	h := e.handlers[c.Name]
	e.mu.Unlock()
	if h != nil {
		return h(c)
	}
	return tools.Execution{
		Artifact: types.NewArtifact(types.ArtifactKind(c.Name), c.Name, c.Args.String("title"), "payload of "+c.Name),
		Result:   tools.Succeeded(c, "ok"),
	}
}

func (e *recordingExecutor) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.Name
	}
	return out
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func lastUserTurn(req models.SendRequest) string {
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == conversation.RoleUser {
			return req.History[i].Content
		}
	}
	return ""
}

func hasTool(req models.SendRequest, name string) bool {
	for _, s := range req.Tools {
		if s.Name == name {
			return true
		}
	}
	return false
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
