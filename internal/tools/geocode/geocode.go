// Package geocode implements an HTTP-backed address-to-coordinates lookup
// tool.
package geocode

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

const defaultBaseURL = "https://geocoding-api.open-meteo.com/v1/search"

// Tool resolves a free-form address or place name to latitude/longitude.
type Tool struct {
	client  *http.Client
	baseURL string
	breaker *resilience.CircuitBreaker
}

var _ toolkit.Tool = (*Tool)(nil)

// Option configures a Tool.
type Option func(*Tool)

// WithBaseURL overrides the geocoding API endpoint.
func WithBaseURL(url string) Option {
	return func(t *Tool) { t.baseURL = url }
}

// New constructs a geocode Tool using client (or a default 5s-timeout
// client if nil).
func New(client *http.Client, opts ...Option) *Tool {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	t := &Tool{client: client, baseURL: defaultBaseURL, breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "geocode-api"})}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (*Tool) Name() string        { return "geocode_address" }
func (*Tool) Description() string { return "Resolves a place name or address into latitude/longitude coordinates." }

func (*Tool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

func (t *Tool) Execute(ctx context.Context, params map[string]any, _ toolkit.ExecContext) (any, error) {
	query, ok := params["query"].(string)
	if !ok || query == "" {
		return nil, &toolkit.BusinessError{Message: "query must be a non-empty string"}
	}

	q := url.Values{}
	q.Set("name", query)
	q.Set("count", "1")

	var result geocodeResponse
	err := t.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("geocode api: unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, &toolkit.BusinessError{Message: fmt.Sprintf("no location found for %q", query)}
	}

	first := result.Results[0]
	return map[string]any{
		"name":      first.Name,
		"country":   first.Country,
		"latitude":  first.Latitude,
		"longitude": first.Longitude,
	}, nil
}
