package orchestrator

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vocegate/vocegate/internal/protocol"
	"github.com/vocegate/vocegate/internal/toolkit"
)

// genControlLacedString builds strings that mix printable ASCII with the
// full range of control bytes 0x00-0x1F, so the sanitizer property below
// actually exercises the stripping path rather than only alphabetic input.
func genControlLacedString() gopter.Gen {
	return gen.IntRange(0, 64).FlatMap(func(n any) gopter.Gen {
		count := n.(int)
		return gen.SliceOfN(count, gen.IntRange(0, 127)).Map(func(codes []int) string {
			b := make([]byte, len(codes))
			for i, c := range codes {
				b[i] = byte(c)
			}
			return string(b)
		})
	}, reflect.TypeOf(""))
}

func gopterParams() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return parameters
}

// gopterParamsSlow is used by properties that drive the session's
// millisecond-scale shutdown pauses, trading sample count for runtime.
func gopterParamsSlow() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	return parameters
}

// driverStep names one of the session's setup triggers, used by the ordering
// property below to explore every call order a misbehaving client might try.
type driverStep int

const (
	stepSystemPrompt driverStep = iota
	stepStartAudio
	stepSessionEnd
	stepCount
)

func genStepSequence() gopter.Gen {
	return gen.SliceOfN(6, gen.IntRange(0, int(stepCount)-1)).Map(func(ints []int) []driverStep {
		steps := make([]driverStep, len(ints))
		for i, n := range ints {
			steps[i] = driverStep(n)
		}
		return steps
	})
}

// TestSessionUpstreamOrdering_PrefixWellFormed drives SetupSessionAndPromptStart
// followed by a random shuffle of the remaining setup triggers (each of which
// enforces its own preconditions and simply errors when called early) and
// checks that whatever subsequence of events actually reached the upstream
// queue still obeys the ordering invariant: sessionStart first, promptStart
// before any contentStart, and sessionEnd (if present) last.
func TestSessionUpstreamOrdering_PrefixWellFormed(t *testing.T) {
	properties := gopter.NewProperties(gopterParamsSlow())

	properties.Property("upstream prefix stays well-formed under any client call order", prop.ForAll(
		func(steps []driverStep) bool {
			s := newOrderingTestSession()

			if err := s.SetupSessionAndPromptStart(); err != nil {
				return false // the one call this test always issues first must always succeed
			}

			for _, step := range steps {
				switch step {
				case stepSystemPrompt:
					_ = s.SetupSystemPrompt("be helpful")
				case stepStartAudio:
					_ = s.SetupStartAudio(16000, 16, 1)
				case stepSessionEnd:
					_ = s.SendSessionEnd()
				}
			}

			kinds := drainAllUpstream(s)
			return upstreamPrefixWellFormed(kinds)
		},
		genStepSequence(),
	))

	properties.TestingRun(t)
}

func newOrderingTestSession() *Session {
	return NewSession("ordering-"+mustNewID(), nil, toolkit.NewRegistry(), Config{})
}

func drainAllUpstream(s *Session) []string {
	s.upstream.close()
	var kinds []string
	ctx := context.Background()
	for {
		evt, ok := s.upstream.next(ctx)
		if !ok {
			return kinds
		}
		kinds = append(kinds, evt.Kind)
	}
}

func upstreamPrefixWellFormed(kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	if kinds[0] != "sessionStart" {
		return false
	}
	promptStartIdx := -1
	for i, k := range kinds {
		switch k {
		case "promptStart":
			promptStartIdx = i
		case "contentStart":
			if promptStartIdx == -1 || promptStartIdx > i {
				return false
			}
		case "sessionEnd":
			if i != len(kinds)-1 {
				return false // sessionEnd, once enqueued, must be the last thing a Closing session ever sends
			}
		}
	}
	return true
}

// TestToolDispatch_EveryCompletionResolvesOrDrops covers invariant 2: a tool
// call either produces a matching upstream toolResult (ToolUseID preserved
// through sanitization) while the session is still Active, or is silently
// dropped once the session has moved to Closing -- in both cases OnToolResult
// fires exactly once so the gateway's client-facing record is never lost.
func TestToolDispatch_EveryCompletionResolvesOrDrops(t *testing.T) {
	properties := gopter.NewProperties(gopterParamsSlow())

	properties.Property("tool completion always resolves upstream or drops cleanly when closing", prop.ForAll(
		func(toolUseID, resultBody string, closeFirst bool) bool {
			if toolUseID == "" {
				return true
			}
			tools := toolkit.NewRegistry()
			tools.Register(fixedResultTool{result: map[string]any{"body": resultBody}})
			s := NewSession("dispatch-"+mustNewID(), nil, tools, Config{})

			var reported bool
			var reportedID string
			s.OnToolResult = func(id, _ string, _ string, _ bool, _ time.Duration) {
				reported = true
				reportedID = id
			}

			s.mu.Lock()
			s.state = StateActive
			s.mu.Unlock()

			if closeFirst {
				s.mu.Lock()
				s.state = StateClosing
				s.mu.Unlock()
			}

			tc := &toolContext{ToolUseID: toolUseID, ToolName: fixedResultTool{}.Name(), Content: ""}
			s.runTool(tc, protocol.InferenceConfig{}, time.Now())

			if !reported || reportedID != toolUseID {
				return false
			}

			kinds := drainAllUpstream(s)
			sawToolResult := false
			for _, k := range kinds {
				if k == "toolResult" {
					sawToolResult = true
				}
			}
			if closeFirst {
				return !sawToolResult
			}
			return sawToolResult
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

type fixedResultTool struct {
	result any
}

func (fixedResultTool) Name() string          { return "fixed_result" }
func (fixedResultTool) Description() string   { return "returns a fixed result" }
func (fixedResultTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (t fixedResultTool) Execute(context.Context, map[string]any, toolkit.ExecContext) (any, error) {
	return t.result, nil
}

// TestAudioQueue_NeverExceedsCapacity restates invariant 3 (see audio_test.go
// for the fixed-size case) with randomized push counts and chunk sizes.
func TestAudioQueue_NeverExceedsCapacity(t *testing.T) {
	properties := gopter.NewProperties(gopterParams())

	properties.Property("pushing any number of chunks never grows the queue past capacity", prop.ForAll(
		func(pushCount int) bool {
			q := newAudioQueue()
			for i := 0; i < pushCount; i++ {
				q.push([]byte{byte(i)})
			}
			return len(q.items) <= audioQueueCapacity
		},
		gen.IntRange(0, audioQueueCapacity*4),
	))

	properties.TestingRun(t)
}

// TestForceClose_Idempotent covers invariant 4: calling ForceClose any number
// of times on the same session is equivalent to calling it once.
func TestForceClose_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(gopterParams())

	properties.Property("ForceClose is idempotent under repeated calls", prop.ForAll(
		func(callCount int) bool {
			s := NewSession("force-close-"+mustNewID(), nil, toolkit.NewRegistry(), Config{})
			for i := 0; i < callCount; i++ {
				if err := s.ForceClose(); err != nil {
					return false
				}
			}
			select {
			case <-s.Done():
			default:
				return callCount == 0
			}
			return s.State() == StateClosing
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// TestSanitizeResult_RoundTripsWithinBudget covers invariant 5: any string up
// to the 20480-byte wire budget survives SanitizeResult with every banned
// control character removed and every other byte preserved in order.
func TestSanitizeResult_RoundTripsWithinBudget(t *testing.T) {
	properties := gopter.NewProperties(gopterParams())

	properties.Property("sanitized output contains no banned control characters", prop.ForAll(
		func(body string) bool {
			if len(body) > 20480 {
				body = body[:20480]
			}
			got := toolkit.SanitizeResult(body)
			for _, r := range got {
				if r < 0x20 && r != 0x09 && r != 0x0A && r != 0x0D {
					return false
				}
			}
			var want strings.Builder
			for _, r := range body {
				if r >= 0x20 || r == 0x09 || r == 0x0A || r == 0x0D {
					want.WriteRune(r)
				}
			}
			if got != want.String() {
				return false
			}
			return !strings.ContainsAny(got, "\x00\x01\x02\x03\x04\x05\x06\x07\x08\x0B\x0C\x0E\x0F")
		},
		genControlLacedString(),
	))

	properties.TestingRun(t)
}

// TestLastActivity_MonotonicUnderRandomOperations covers the sweeper's
// precondition (invariant 6, exercised end-to-end by gateway's
// TestSweeper_ForceClosesIdleSession): LastActivity never moves backward
// no matter what order of upstream-touching calls a session sees.
func TestLastActivity_MonotonicUnderRandomOperations(t *testing.T) {
	properties := gopter.NewProperties(gopterParams())

	properties.Property("touchActivity never regresses LastActivity", prop.ForAll(
		func(touches int) bool {
			s := NewSession("activity-"+mustNewID(), nil, toolkit.NewRegistry(), Config{})
			last := s.LastActivity()
			for i := 0; i < touches; i++ {
				s.touchActivity()
				next := s.LastActivity()
				if next.Before(last) {
					return false
				}
				last = next
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
