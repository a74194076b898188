// Package datetimemath implements a dependency-free date/time arithmetic
// tool. No library in the example corpus does calendar arithmetic better
// than the standard library's time package, so this tool is intentionally
// stdlib-only.
package datetimemath

import (
	"context"
	"fmt"
	"time"

	"github.com/vocegate/vocegate/internal/toolkit"
)

// Tool answers relative date/time and timezone-conversion questions.
type Tool struct{}

var _ toolkit.Tool = (*Tool)(nil)

func (Tool) Name() string { return "datetime_math" }

func (Tool) Description() string {
	return "Computes relative dates/times and converts between timezones."
}

func (Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"base_iso8601":  map[string]any{"type": "string", "description": "reference timestamp, RFC3339; defaults to now"},
			"add_duration":  map[string]any{"type": "string", "description": "a Go-style duration to add, e.g. \"-24h\" or \"72h30m\""},
			"to_timezone":   map[string]any{"type": "string", "description": "IANA timezone name to convert the result into"},
		},
	}
}

func (Tool) Execute(_ context.Context, params map[string]any, _ toolkit.ExecContext) (any, error) {
	base := time.Now().UTC()
	if v, ok := params["base_iso8601"].(string); ok && v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, &toolkit.BusinessError{Message: fmt.Sprintf("invalid base_iso8601: %v", err)}
		}
		base = t
	}

	if v, ok := params["add_duration"].(string); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, &toolkit.BusinessError{Message: fmt.Sprintf("invalid add_duration: %v", err)}
		}
		base = base.Add(d)
	}

	if v, ok := params["to_timezone"].(string); ok && v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return nil, &toolkit.BusinessError{Message: fmt.Sprintf("unknown timezone %q", v)}
		}
		base = base.In(loc)
	}

	return map[string]any{"result_iso8601": base.Format(time.RFC3339)}, nil
}
