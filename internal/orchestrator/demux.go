package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/vocegate/vocegate/internal/protocol"
)

// EventKind tags a downstream event from the model service. [Demux.Run]
// switches over each envelope's kind string and maps every recognised kind
// to its EventKind; an unrecognised kind or an undecodable payload is
// dispatched as EventUnknown rather than dropped.
type EventKind int

const (
	EventContentStart EventKind = iota
	EventTextOutput
	EventAudioOutput
	EventToolUse
	EventContentEnd
	EventCompletionStart
	EventUsage
	EventBargeIn // synthetic, raised by the demux itself
	EventStreamComplete
	EventTransportError
	EventUnknown
)

// String returns a human-readable label for logging.
func (k EventKind) String() string {
	switch k {
	case EventContentStart:
		return "contentStart"
	case EventTextOutput:
		return "textOutput"
	case EventAudioOutput:
		return "audioOutput"
	case EventToolUse:
		return "toolUse"
	case EventContentEnd:
		return "contentEnd"
	case EventCompletionStart:
		return "completionStart"
	case EventUsage:
		return "usageEvent"
	case EventBargeIn:
		return "bargeIn"
	case EventStreamComplete:
		return "streamComplete"
	case EventTransportError:
		return "error"
	default:
		return "unknown"
	}
}

// DownstreamEvent carries the parsed payload for a single dispatched
// EventKind. Exactly one of the typed payload fields is populated, matching
// Kind; Raw always holds the original payload bytes for handlers that want
// to re-parse or log verbatim.
type DownstreamEvent struct {
	Kind EventKind
	Raw  json.RawMessage

	ContentStart    *protocol.ContentStartPayload
	TextOutput      *protocol.TextOutputPayload
	AudioOutput     *protocol.AudioOutputPayload
	ToolUse         *protocol.ToolUsePayload
	ContentEnd      *protocol.ContentEndDownstream
	CompletionStart *protocol.CompletionStartPayload
	Usage           *protocol.UsagePayload
	BargeIn         *protocol.BargeInPayload
	TransportError  *TransportErrorDetail
	StreamCompleteAt time.Time
}

// TransportErrorDetail carries the fields of a modelStreamErrorException or
// internalServerException frame.
type TransportErrorDetail struct {
	Source  string
	Details string
}

// HandlerTable holds one callback per EventKind plus an optional wildcard
// sink that is invoked in addition to (never instead of) the kind-specific
// handler.
type HandlerTable struct {
	handlers map[EventKind]func(DownstreamEvent)
	any      func(DownstreamEvent)
}

// NewHandlerTable returns an empty table ready for On/OnAny registration.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: make(map[EventKind]func(DownstreamEvent))}
}

// On registers fn for a specific kind, replacing any previous registration.
func (t *HandlerTable) On(kind EventKind, fn func(DownstreamEvent)) {
	t.handlers[kind] = fn
}

// OnAny registers the wildcard sink, called for every dispatched event.
func (t *HandlerTable) OnAny(fn func(DownstreamEvent)) {
	t.any = fn
}

func (t *HandlerTable) dispatch(evt DownstreamEvent) {
	if h, ok := t.handlers[evt.Kind]; ok && h != nil {
		h(evt)
	}
	if t.any != nil {
		t.any(evt)
	}
}

// Demux reads framed bytes from the model-service downstream channel,
// parses each frame's {"event":{"<kind>":<payload>}} envelope, and dispatches
// the matching EventKind via the supplied table. touchActivity is
// called once per received frame (wired to Session.touchActivity) so the
// inactivity sweeper never needs to reach into demux internals.
type Demux struct {
	touchActivity func()
}

// NewDemux constructs a Demux that calls touchActivity on every frame.
func NewDemux(touchActivity func()) *Demux {
	return &Demux{touchActivity: touchActivity}
}

// Run consumes frames until the channel closes or ctx is done, dispatching
// each to table. It returns when the frames channel closes (after raising
// EventStreamComplete) or ctx.Done() fires.
func (d *Demux) Run(ctx context.Context, frames <-chan []byte, table *HandlerTable) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				table.dispatch(DownstreamEvent{Kind: EventStreamComplete, StreamCompleteAt: time.Now()})
				return
			}
			d.dispatchFrame(frame, table)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Demux) dispatchFrame(frame []byte, table *HandlerTable) {
	if d.touchActivity != nil {
		d.touchActivity()
	}

	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || len(env.Event) == 0 {
		table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: frame})
		return
	}

	for kind, raw := range env.Event {
		d.dispatchKind(kind, raw, table)
		return // single-key envelope: exactly one kind per frame
	}
}

func (d *Demux) dispatchKind(kind string, raw json.RawMessage, table *HandlerTable) {
	switch kind {
	case "contentStart":
		var p protocol.ContentStartPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: raw})
			return
		}
		table.dispatch(DownstreamEvent{Kind: EventContentStart, Raw: raw, ContentStart: &p})

	case "textOutput":
		var p protocol.TextOutputPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: raw})
			return
		}
		if containsInterruptedMarker(p.Content) {
			table.dispatch(DownstreamEvent{
				Kind:    EventBargeIn,
				Raw:     raw,
				BargeIn: &protocol.BargeInPayload{ContentName: p.ContentName},
			})
		}
		table.dispatch(DownstreamEvent{Kind: EventTextOutput, Raw: raw, TextOutput: &p})

	case "audioOutput":
		var p protocol.AudioOutputPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: raw})
			return
		}
		table.dispatch(DownstreamEvent{Kind: EventAudioOutput, Raw: raw, AudioOutput: &p})

	case "toolUse":
		var p protocol.ToolUsePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: raw})
			return
		}
		table.dispatch(DownstreamEvent{Kind: EventToolUse, Raw: raw, ToolUse: &p})

	case "contentEnd":
		var p protocol.ContentEndDownstream
		if err := json.Unmarshal(raw, &p); err != nil {
			table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: raw})
			return
		}
		table.dispatch(DownstreamEvent{Kind: EventContentEnd, Raw: raw, ContentEnd: &p})

	case "completionStart":
		var p protocol.CompletionStartPayload
		_ = json.Unmarshal(raw, &p)
		table.dispatch(DownstreamEvent{Kind: EventCompletionStart, Raw: raw, CompletionStart: &p})

	case "usageEvent":
		var p protocol.UsagePayload
		_ = json.Unmarshal(raw, &p)
		table.dispatch(DownstreamEvent{Kind: EventUsage, Raw: raw, Usage: &p})

	case "modelStreamErrorException":
		table.dispatch(DownstreamEvent{
			Kind: EventTransportError,
			Raw:  raw,
			TransportError: &TransportErrorDetail{
				Source:  "responseStream",
				Details: string(raw),
			},
		})

	case "internalServerException":
		table.dispatch(DownstreamEvent{
			Kind: EventTransportError,
			Raw:  raw,
			TransportError: &TransportErrorDetail{
				Source:  "responseStream",
				Details: string(raw),
			},
		})

	default:
		table.dispatch(DownstreamEvent{Kind: EventUnknown, Raw: raw})
	}
}

// containsInterruptedMarker reports whether content, once stripped of
// surrounding whitespace, contains the model service's in-band barge-in
// marker.
func containsInterruptedMarker(content string) bool {
	return strings.Contains(strings.TrimSpace(content), `{"interrupted":true}`)
}
