// Package executor connects the tool-calling loop to the services that
// actually perform tool calls: a remote HTTP tool service, an MQTT tool
// bus, or a local dry-run backend.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

// Backend is an executor that holds resources.
type Backend interface {
	tools.Executor
	io.Closer
}

// Request is the wire form of a tool call.
type Request struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Args tools.Args `json:"args"`
}

// Response is the wire form of a tool outcome.
type Response struct {
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Artifact  *types.Artifact `json:"artifact,omitempty"`
}

func (r Response) execution(call tools.Call) tools.Execution {
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		return tools.Execution{Result: tools.Failed(call, msg), Detail: r.Detail}
	}
	return tools.Execution{
		Artifact: r.Artifact,
		Result:   tools.Succeeded(call, r.Output),
		Detail:   r.Detail,
	}
}

func failed(call tools.Call, format string, args ...any) tools.Execution {
	return tools.Execution{Result: tools.Failed(call, fmt.Sprintf(format, args...))}
}

// New builds the backend selected by cfg.Kind. MQTT backends are connected
// before returning.
func New(ctx context.Context, cfg config.ExecutorConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Kind {
	case "", "dryrun":
		return NewDryRun(), nil
	case "http":
		return NewHTTP(cfg.URL, config.Seconds(cfg.TimeoutSeconds), logger), nil
	case "mqtt":
		m := NewMQTT(cfg.MQTT, config.Seconds(cfg.TimeoutSeconds), logger)
		if err := m.Start(ctx); err != nil {
			return nil, fmt.Errorf("start mqtt executor: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
}
