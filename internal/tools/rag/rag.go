// Package rag implements a knowledge-base search tool backed by a vector
// similarity index: the query is embedded, then the nearest indexed chunks
// are retrieved and joined into a single context string.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/vocegate/vocegate/internal/toolkit"
	"github.com/vocegate/vocegate/pkg/memory"
	"github.com/vocegate/vocegate/pkg/provider/embeddings"
)

const defaultTopK = 5

// Tool answers a query by searching a pre-indexed knowledge base for
// semantically similar passages.
type Tool struct {
	embedder embeddings.Provider
	index    memory.SemanticIndex
	topK     int
}

var _ toolkit.Tool = (*Tool)(nil)

// New wraps embedder and index as a knowledge-base search tool.
func New(embedder embeddings.Provider, index memory.SemanticIndex) *Tool {
	return &Tool{embedder: embedder, index: index, topK: defaultTopK}
}

func (*Tool) Name() string { return "search_knowledge_base" }

func (*Tool) Description() string {
	return "Searches the knowledge base for passages relevant to a query."
}

func (*Tool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]any, _ toolkit.ExecContext) (any, error) {
	query, ok := params["query"].(string)
	if !ok || query == "" {
		return nil, &toolkit.BusinessError{Message: "query must be a non-empty string"}
	}

	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	results, err := t.index.Search(ctx, vec, t.topK, memory.ChunkFilter{})
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if len(results) == 0 {
		return "no relevant passages found", nil
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(r.Chunk.Content)
	}
	return sb.String(), nil
}
