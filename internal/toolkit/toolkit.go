// Package toolkit defines the tool-invocation contract exposed to the model
// service and a concurrency-safe registry of available tools.
package toolkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vocegate/vocegate/internal/protocol"
)

// ErrUnknownTool is wrapped with the requested tool name whenever a dispatch
// targets a name the registry does not hold.
var ErrUnknownTool = errors.New("toolkit: unknown tool")

// BusinessError is returned by a Tool's Execute method to signal a
// recoverable, tool-level failure (as opposed to a transport/panic
// failure). The dispatcher surfaces it as {error:true, message} both
// upstream and to the client, without treating it as a SessionLifecycle or
// Transport failure.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

// ExecContext carries per-invocation context a Tool may use to tailor its
// own downstream calls, such as forwarding the session's negotiated
// sampling knobs to an LLM-backed tool.
type ExecContext struct {
	InferenceConfig protocol.InferenceConfig
}

// Tool is a single model-invokable capability.
type Tool interface {
	// Name is matched case-insensitively by the Registry.
	Name() string
	Description() string
	// Schema returns a JSON-Schema object describing the tool's input
	// parameters.
	Schema() map[string]any
	Execute(ctx context.Context, params map[string]any, execCtx ExecContext) (any, error)
}

// ToolSpec is the JSON-serializable description of a registered tool,
// exposed via the /api/tools operational endpoint and offered to the model
// service at prompt start.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// Registry is a concurrency-safe collection of Tools, keyed case-
// insensitively by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under its lower-cased name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(t.Name())] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Specs returns the registered tool specs, filtered to the names in allow
// when allow is non-nil. The specs come from a map walk, so their order is
// not defined.
func (r *Registry) Specs(allow map[string]struct{}) []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		if allow != nil {
			if _, ok := allow[strings.ToLower(t.Name())]; !ok {
				continue
			}
		}
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

// Execute looks up name and runs it. Returns an error wrapping
// ErrUnknownTool if no such tool is registered; otherwise returns whatever
// the tool itself returns, including a *BusinessError.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, ec ExecContext) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Execute(ctx, params, ec)
}
