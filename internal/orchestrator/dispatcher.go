package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vocegate/vocegate/internal/protocol"
	"github.com/vocegate/vocegate/internal/toolkit"
)

// dispatchActiveTool runs the session's currently pending tool invocation
// (populated by the contentStart(TOOL)/toolUse handler wired in
// wireInternalHandlers) off the stream path, in its own goroutine, so a
// slow tool never blocks the downstream demux loop or a concurrent barge-in.
// It is the contentEnd(TOOL) handler's sole responsibility.
func (s *Session) dispatchActiveTool() {
	s.mu.Lock()
	tc := s.activeToolContext
	s.activeToolContext = nil
	inferenceConfig := s.inferenceConfig
	s.mu.Unlock()

	if tc == nil {
		return
	}

	started := time.Now()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTool(tc, inferenceConfig, started)
	}()
}

// runTool parses tc's JSON-encoded arguments, executes the named tool
// through the session's registry, and surfaces the outcome both upstream
// (via emitToolResult, if the session is still accepting upstream traffic)
// and to the gateway, via OnToolResult, so the client sees a record of the
// call even though it was never on the client<->gateway wire in the first
// place.
func (s *Session) runTool(tc *toolContext, inferenceConfig protocol.InferenceConfig, started time.Time) {
	var params map[string]any
	if tc.Content != "" {
		if err := json.Unmarshal([]byte(tc.Content), &params); err != nil {
			// Malformed arguments still get dispatched: the tool receives the
			// raw content under "content" rather than failing the call outright.
			params = map[string]any{"content": tc.Content}
		}
	}

	ctx := context.Background()
	result, err := s.tools.Execute(ctx, tc.ToolName, params, toolkit.ExecContext{InferenceConfig: inferenceConfig})
	if err != nil {
		if errors.Is(err, toolkit.ErrUnknownTool) {
			s.completeTool(tc, toolFailureResult(errors.New("Tool not supported")), true, started)
			return
		}
		var bizErr *toolkit.BusinessError
		if errors.As(err, &bizErr) {
			s.completeTool(tc, toolFailureResult(bizErr), true, started)
			return
		}
		if s.OnError != nil {
			s.OnError(Categorize(CategoryTool, fmt.Errorf("orchestrator: tool %q: %w", tc.ToolName, err)))
		}
		s.completeTool(tc, toolFailureResult(err), true, started)
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.completeTool(tc, toolFailureResult(fmt.Errorf("encode tool result: %w", err)), true, started)
		return
	}
	s.completeTool(tc, string(encoded), false, started)
}

// toolFailureResult renders err as the {error:true, message} business-error
// convention the model service and client both expect in a tool's result
// payload.
func toolFailureResult(err error) string {
	encoded, marshalErr := json.Marshal(map[string]any{
		"error":   true,
		"message": err.Error(),
	})
	if marshalErr != nil {
		return `{"error":true,"message":"tool failed"}`
	}
	return string(encoded)
}

// completeTool emits the result upstream, unless the session has already
// moved past Active (e.g. the client disconnected mid-call): in that case
// the result is simply dropped, since there is no prompt left to inject it
// into. OnToolResult, if set, still fires regardless of state so the
// gateway's client-facing record of the call is never silently lost.
func (s *Session) completeTool(tc *toolContext, resultJSON string, isError bool, started time.Time) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateActive {
		s.emitToolResult(tc.ToolUseID, resultJSON)
	}
	if s.OnToolResult != nil {
		s.OnToolResult(tc.ToolUseID, tc.ToolName, resultJSON, isError, time.Since(started))
	}
}
