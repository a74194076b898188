// Package weather implements an HTTP-backed current-conditions lookup tool,
// guarded by a circuit breaker so a flaky upstream degrades to fast failures
// instead of stalling a tool-execution goroutine past its declared budget.
package weather

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

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Tool looks up current weather conditions for a latitude/longitude pair.
type Tool struct {
	client  *http.Client
	baseURL string
	breaker *resilience.CircuitBreaker
}

var _ toolkit.Tool = (*Tool)(nil)

// Option configures a Tool.
type Option func(*Tool)

// WithBaseURL overrides the forecast API endpoint. Primarily used in tests
// to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(t *Tool) { t.baseURL = url }
}

// New constructs a weather Tool using client (or a default 5s-timeout client
// if nil).
func New(client *http.Client, opts ...Option) *Tool {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	t := &Tool{
		client:  client,
		baseURL: defaultBaseURL,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "weather-api"}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (*Tool) Name() string        { return "get_weather" }
func (*Tool) Description() string { return "Retrieves current weather conditions for a location." }

func (*Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude":  map[string]any{"type": "number"},
			"longitude": map[string]any{"type": "number"},
		},
		"required": []string{"latitude", "longitude"},
	}
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

func (t *Tool) Execute(ctx context.Context, params map[string]any, _ toolkit.ExecContext) (any, error) {
	lat, ok1 := params["latitude"].(float64)
	lon, ok2 := params["longitude"].(float64)
	if !ok1 || !ok2 {
		return nil, &toolkit.BusinessError{Message: "latitude and longitude must be numbers"}
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", lat))
	q.Set("longitude", fmt.Sprintf("%f", lon))
	q.Set("current_weather", "true")

	var result forecastResponse
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
			return fmt.Errorf("weather api: unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}

	return map[string]any{
		"temperature_celsius": result.CurrentWeather.Temperature,
		"wind_speed_kmh":      result.CurrentWeather.WindSpeed,
		"weather_code":        result.CurrentWeather.WeatherCode,
	}, nil
}
