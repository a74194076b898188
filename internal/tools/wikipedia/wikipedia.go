// Package wikipedia implements an HTTP-backed encyclopedia-summary lookup
// tool.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vocegate/vocegate/internal/resilience"
	"github.com/vocegate/vocegate/internal/toolkit"
)

const defaultBaseURL = "https://en.wikipedia.org/api/rest_v1/page/summary/"

// Tool retrieves a short summary of a Wikipedia article.
type Tool struct {
	client  *http.Client
	baseURL string
	breaker *resilience.CircuitBreaker
}

var _ toolkit.Tool = (*Tool)(nil)

// Option configures a Tool.
type Option func(*Tool)

// WithBaseURL overrides the summary API endpoint.
func WithBaseURL(url string) Option {
	return func(t *Tool) { t.baseURL = url }
}

// New constructs a wikipedia Tool using client (or a default 5s-timeout
// client if nil).
func New(client *http.Client, opts ...Option) *Tool {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	t := &Tool{client: client, baseURL: defaultBaseURL, breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "wikipedia-api"})}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (*Tool) Name() string        { return "search_wikipedia" }
func (*Tool) Description() string { return "Retrieves a short summary of a Wikipedia article by title." }

func (*Tool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"title": map[string]any{"type": "string"}},
		"required":   []string{"title"},
	}
}

type summaryResponse struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

func (t *Tool) Execute(ctx context.Context, params map[string]any, _ toolkit.ExecContext) (any, error) {
	title, ok := params["title"].(string)
	if !ok || title == "" {
		return nil, &toolkit.BusinessError{Message: "title must be a non-empty string"}
	}

	var result summaryResponse
	err := t.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+url.PathEscape(title), nil)
		if err != nil {
			return err
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return &toolkit.BusinessError{Message: fmt.Sprintf("no article found for %q", title)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wikipedia api: unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"title": result.Title, "summary": result.Extract}, nil
}
