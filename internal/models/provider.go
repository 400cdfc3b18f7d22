// Package models talks to the language-model provider. The Gateway is the
// single path for every model call: it applies the local rate limit and
// absorbs provider throttling with backoff.
package models

import (
	"context"

	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/tools"
)

// Provider sends one request to a model service.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []tools.Spec
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Content      string
	ToolCalls    []tools.Call
	Model        string
	TokensInput  int
	TokensOutput int
	FinishReason string
}
