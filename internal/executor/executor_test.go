package executor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func reminderCall() tools.Call {
	return tools.Call{ID: "toolu_1", Name: "create_reminder", Args: tools.Args{
		"title":    tools.String("Call Bob"),
		"due_date": tools.String("2026-03-06"),
	}}
}

func TestHTTPExecutorSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "create_reminder", req.Name)
		assert.Equal(t, "toolu_1", req.ID)
		assert.Equal(t, "Call Bob", req.Args.String("title"))

		_ = json.NewEncoder(w).Encode(Response{
			Success:  true,
			Output:   "Reminder created",
			Artifact: &types.Artifact{ID: "r1", Kind: types.ArtifactReminder, Title: "Call Bob"},
		})
	}))
	defer server.Close()

	h := NewHTTP(server.URL, time.Second, testLogger())
	defer h.Close()
	exec := h.Execute(context.Background(), reminderCall())

	require.True(t, exec.Result.Success)
	assert.Equal(t, "Reminder created", exec.Result.Output)
	assert.Equal(t, "2026-03-06", exec.Result.Input["due_date"])
	require.NotNil(t, exec.Artifact)
	assert.Equal(t, types.ArtifactReminder, exec.Artifact.Kind)
}

func TestHTTPExecutorFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "tool failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"error":"calendar locked"}`))
			},
			want: "calendar locked",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "kaput", http.StatusInternalServerError)
			},
			want: "tool service returned 500: kaput",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{`))
			},
			want: "decode response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			exec := NewHTTP(server.URL, time.Second, testLogger()).Execute(context.Background(), reminderCall())
			assert.False(t, exec.Result.Success)
			assert.Contains(t, exec.Result.Error, tt.want)
			assert.Nil(t, exec.Artifact)
		})
	}
}

func TestHTTPExecutorUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	exec := NewHTTP(url, time.Second, testLogger()).Execute(context.Background(), reminderCall())
	assert.False(t, exec.Result.Success)
	assert.Contains(t, exec.Result.Error, "unreachable")
}

func TestDryRunSynthesizesArtifacts(t *testing.T) {
	d := NewDryRun()
	ctx := context.Background()

	tests := []struct {
		call tools.Call
		kind types.ArtifactKind
	}{
		{reminderCall(), types.ArtifactReminder},
		{tools.Call{Name: "create_calendar_event", Args: tools.Args{"title": tools.String("Sync")}}, types.ArtifactCalendarEvent},
		{tools.Call{Name: "check_availability"}, types.ArtifactCalendarEvent},
		{tools.Call{Name: "create_or_update_task", Args: tools.Args{"title": tools.String("Deck")}}, types.ArtifactTask},
		{tools.Call{Name: "add_person_interaction", Args: tools.Args{"name": tools.String("Nick")}}, types.ArtifactPerson},
		{tools.Call{Name: "get_relevant_journal_context"}, types.ArtifactSearch},
		{tools.Call{Name: "append_to_weekly_journal", Args: tools.Args{"content": tools.String("Met Scott")}}, types.ArtifactJournal},
		{tools.Call{Name: "update_monthly_summary"}, types.ArtifactJournal},
	}
	for _, tt := range tests {
		t.Run(tt.call.Name, func(t *testing.T) {
			exec := d.Execute(ctx, tt.call)
			require.True(t, exec.Result.Success)
			require.NotNil(t, exec.Artifact)
			assert.Equal(t, tt.kind, exec.Artifact.Kind)
			v := tools.Validate(tt.call.Name, exec.Artifact, tt.call.Args)
			assert.True(t, v.OK(), "dry-run output passes validation: %s", v.Message())
		})
	}
	assert.Len(t, d.Calls(), len(tests))
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, config.ExecutorConfig{Kind: "dryrun"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &DryRun{}, b)

	b, err = New(ctx, config.ExecutorConfig{Kind: "http", URL: "http://localhost:9"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, b)

	_, err = New(ctx, config.ExecutorConfig{Kind: "carrier-pigeon"}, testLogger())
	assert.ErrorContains(t, err, "unknown executor kind")
}
