// Package reasoning implements a tool that delegates a sub-query to a cloud
// LLM, forwarding the session's negotiated sampling knobs.
package reasoning

import (
	"context"
	"fmt"

	"github.com/vocegate/vocegate/internal/toolkit"
	"github.com/vocegate/vocegate/pkg/provider/llm"
	"github.com/vocegate/vocegate/pkg/types"
)

// Tool answers a free-form question by delegating to an llm.Provider,
// forwarding toolkit.ExecContext.InferenceConfig as the downstream
// completion's sampling parameters.
type Tool struct {
	provider llm.Provider
}

var _ toolkit.Tool = (*Tool)(nil)

// New wraps provider as a reasoning tool.
func New(provider llm.Provider) *Tool {
	return &Tool{provider: provider}
}

func (*Tool) Name() string { return "reason_about" }

func (*Tool) Description() string {
	return "Delegates a complex or multi-step question to a reasoning-capable language model."
}

func (*Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
		},
		"required": []string{"question"},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]any, execCtx toolkit.ExecContext) (any, error) {
	question, _ := params["question"].(string)
	if question == "" {
		return nil, &toolkit.BusinessError{Message: "question must be a non-empty string"}
	}

	req := llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: question}},
		Temperature: execCtx.InferenceConfig.Temperature,
		MaxTokens:   execCtx.InferenceConfig.MaxTokens,
	}

	resp, err := t.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reasoning: completion failed: %w", err)
	}
	return resp.Content, nil
}
