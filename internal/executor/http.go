package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clawinfra/tenx/internal/tools"
)

const maxResponseBytes = 4 << 20

// HTTP posts each call as JSON to a tool service.
type HTTP struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates an HTTP executor. A zero timeout means 30s.
func NewHTTP(url string, timeout time.Duration, logger *slog.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "http_executor"),
	}
}

func (h *HTTP) Execute(ctx context.Context, call tools.Call) tools.Execution {
	body, err := json.Marshal(Request{ID: call.ID, Name: call.Name, Args: call.Args})
	if err != nil {
		return failed(call, "encode arguments: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return failed(call, "create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("tool service unreachable", "tool", call.Name, "error", err)
		return failed(call, "tool service unreachable: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return failed(call, "read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(call, "tool service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return failed(call, "decode response: %v", err)
	}
	h.logger.Debug("tool executed", "tool", call.Name, "success", out.Success)
	return out.execution(call)
}

// Close releases idle connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

var _ Backend = (*HTTP)(nil)

func (h *HTTP) String() string { return fmt.Sprintf("http(%s)", h.url) }
