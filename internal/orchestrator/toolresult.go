package orchestrator

import (
	"time"

	"github.com/vocegate/vocegate/internal/protocol"
	"github.com/vocegate/vocegate/internal/toolkit"
)

// toolResultPauseBeforePayload and its siblings are best-effort pauses that
// give the model-service stream reader time to observe the preceding event
// before the next one lands. They may be skipped entirely on a transport
// with sufficient in-order delivery guarantees; this implementation keeps
// them for parity with internal/modelservice's assumed contract.
const (
	toolResultPauseBeforePayload = 50 * time.Millisecond
	toolResultPauseAfterPayload  = 50 * time.Millisecond
	toolResultPauseAfterEnd      = 100 * time.Millisecond
)

// emitToolResult enqueues the contentStart/toolResult/contentEnd triple that
// injects a tool's output back into the prompt, per the six-step sequence:
// contentStart, pause, toolResult, pause, contentEnd, pause. contentName is
// freshly generated per call so concurrent tool completions never collide.
func (s *Session) emitToolResult(toolUseID, result string) {
	contentName := mustNewID()
	sanitized := toolkit.SanitizeResult(result)

	s.enqueueLocked(protocol.Event{Kind: "contentStart", Payload: protocol.ContentStartUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
		Type:        protocol.ContentTypeTool,
		Role:        "TOOL",
		Interactive: false,
		ToolResultInputConfiguration: &protocol.ToolResultInputConfiguration{
			ToolUseID: toolUseID,
		},
	}})

	time.Sleep(toolResultPauseBeforePayload)

	s.enqueueLocked(protocol.Event{Kind: "toolResult", Payload: protocol.ToolResultUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     sanitized,
	}})

	time.Sleep(toolResultPauseAfterPayload)

	s.enqueueLocked(protocol.Event{Kind: "contentEnd", Payload: protocol.ContentEndUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
	}})

	time.Sleep(toolResultPauseAfterEnd)
}
