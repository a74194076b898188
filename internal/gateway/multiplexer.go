package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/vocegate/vocegate/internal/modelservice"
	"github.com/vocegate/vocegate/internal/orchestrator"
	"github.com/vocegate/vocegate/internal/protocol"
	"github.com/vocegate/vocegate/internal/toolkit"
)

const (
	defaultDisconnectGrace = 3 * time.Second
	defaultStopAudioGrace  = 5 * time.Second
)

// Gateway owns the client-facing WebSocket endpoint: it accepts one
// connection per client, drives an internal/orchestrator.Session from the
// client's message stream, relays the session's downstream events back
// verbatim, and indexes every live session in a Registry for the sweeper
// and bounded shutdown to find.
type Gateway struct {
	provider modelservice.Provider
	tools    *toolkit.Registry
	registry *Registry
	sweeper  *Sweeper
	sockets  atomic.Int64

	region            string
	modelID           string
	defaultSampleRate int
	shutdownDeadline  time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRegion sets the default model-service region used when a client's
// initializeConnection message omits one.
func WithRegion(region string) Option { return func(g *Gateway) { g.region = region } }

// WithModelID sets the model-service model identifier passed to Connect.
func WithModelID(id string) Option { return func(g *Gateway) { g.modelID = id } }

// WithDefaultSampleRate sets the audio sample rate used when a client omits
// one from its audioStart or promptStart message.
func WithDefaultSampleRate(hz int) Option {
	return func(g *Gateway) { g.defaultSampleRate = hz }
}

// WithShutdownDeadline overrides the bound on Shutdown's graceful drain.
func WithShutdownDeadline(d time.Duration) Option {
	return func(g *Gateway) { g.shutdownDeadline = d }
}

// New constructs a Gateway over provider and tools, with its own Registry
// and an idle-session Sweeper ready to Start.
func New(provider modelservice.Provider, tools *toolkit.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		provider:          provider,
		tools:             tools,
		registry:          NewRegistry(),
		defaultSampleRate: 16000,
		shutdownDeadline:  defaultShutdownDeadline,
	}
	for _, o := range opts {
		o(g)
	}
	g.sweeper = NewSweeper(g.registry)
	return g
}

// Registry exposes the live-session index, mainly for /health reporting.
func (g *Gateway) Registry() *Registry { return g.registry }

// SocketConnections reports the number of client WebSocket connections
// currently being served, including ones that have not yet sent
// initializeConnection and so have no Registry entry.
func (g *Gateway) SocketConnections() int { return int(g.sockets.Load()) }

// ActiveSessions reports the number of sessions currently indexed in the
// Registry. Satisfies health.SessionCounts alongside SocketConnections.
func (g *Gateway) ActiveSessions() int { return g.registry.Len() }

// Start begins the inactivity sweeper. Call once, before serving traffic.
func (g *Gateway) Start(ctx context.Context) { g.sweeper.Start(ctx) }

// Shutdown stops the sweeper and drains every live session within the
// configured deadline.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.sweeper.Stop()
	return Shutdown(ctx, g.registry, g.shutdownDeadline)
}

// ServeHTTP upgrades the request to a WebSocket and serves the connection
// until the client disconnects or the server shuts down.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("gateway: websocket accept failed", "err", err)
		return
	}
	g.ServeConn(r.Context(), conn)
}

// connState tracks the single active session for one client connection
// across its possibly-several lifetimes (a startNewChat message discards
// the current session and starts another over the same socket).
type connState struct {
	id      string
	sess    *orchestrator.Session
	region  string
	model   string
	rate    int
	voiceID string
}

// ServeConn drives a single client connection to completion. It is exported
// separately from ServeHTTP so tests can exercise it against a
// locally-dialed *websocket.Conn without a real HTTP upgrade.
func (g *Gateway) ServeConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "gateway closing")

	g.sockets.Add(1)
	defer g.sockets.Add(-1)

	mirror := newChatMirror(conn)
	var cs connState

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.closeCurrent(ctx, &cs, mirror, false)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || len(env.Event) == 0 {
			continue
		}
		for kind, raw := range env.Event {
			switch kind {
			case "initializeConnection":
				g.handleInitializeConnection(&cs, mirror, raw)

			case "promptStart":
				g.handlePromptStart(&cs, mirror, raw)

			case "systemPrompt":
				var p protocol.SystemPromptPayload
				_ = json.Unmarshal(raw, &p)
				if err := g.trigger(cs.sess, func() error { return cs.sess.SetupSystemPrompt(p.Content) }); err != nil {
					mirror.relayError(err)
				}

			case "audioStart":
				g.handleAudioStart(ctx, &cs, mirror, raw)

			case "audioInput":
				var p protocol.AudioInputPayload
				if err := json.Unmarshal(raw, &p); err != nil {
					continue
				}
				if err := g.trigger(cs.sess, func() error { return cs.sess.StreamAudio(p.Content) }); err != nil {
					mirror.relayError(err)
				}

			case "textInput":
				g.handleTextInput(ctx, &cs, mirror, raw)

			case "stopAudio":
				g.handleStopAudio(ctx, cs.sess)
				g.closeCurrent(ctx, &cs, mirror, false)
				return

			case "startNewChat":
				g.closeCurrent(ctx, &cs, mirror, false)
				g.handleInitializeConnection(&cs, mirror, raw)

			default:
				slog.Debug("gateway: unrecognized client message", "kind", kind)
			}
		}
	}
}

func (g *Gateway) handleInitializeConnection(cs *connState, mirror *chatMirror, raw json.RawMessage) {
	var p protocol.InitializeConnectionPayload
	_ = json.Unmarshal(raw, &p)

	id := p.SessionID
	if id == "" {
		id = newConnectionID()
	}
	region := p.Region
	if region == "" {
		region = g.region
	}

	sess := orchestrator.NewSession(id, g.provider, g.tools, orchestrator.Config{
		Region:          region,
		ModelID:         g.modelID,
		InferenceConfig: p.InferenceConfig,
		TurnDetection:   p.TurnDetectionConfig,
		EnabledTools:    p.EnabledTools,
	})
	sess.OnError = func(err error) { mirror.relayError(err) }
	sess.OnToolResult = func(toolUseID, toolName, resultJSON string, isError bool, execTime time.Duration) {
		mirror.send("toolResult", protocol.ToolResultPayload{
			ToolUseID:       toolUseID,
			ToolName:        toolName,
			Result:          json.RawMessage(resultJSON),
			IsError:         isError,
			ExecutionTimeMs: execTime.Milliseconds(),
		})
	}
	g.registry.Add(id, sess)
	g.wireRelay(sess, mirror)

	*cs = connState{id: id, sess: sess, region: region, model: g.modelID, rate: g.defaultSampleRate}
	mirror.ack(true, "")
}

func (g *Gateway) handlePromptStart(cs *connState, mirror *chatMirror, raw json.RawMessage) {
	var p protocol.PromptStartPayload
	_ = json.Unmarshal(raw, &p)
	if p.OutputSampleRateHertz > 0 {
		cs.rate = p.OutputSampleRateHertz
	}
	if p.VoiceID != "" {
		cs.voiceID = p.VoiceID
	}
	if err := g.trigger(cs.sess, func() error {
		if err := cs.sess.ConfigurePrompt(p.VoiceID, p.OutputSampleRateHertz, p.ToolChoice, p.EnabledTools); err != nil {
			return err
		}
		return cs.sess.SetupSessionAndPromptStart()
	}); err != nil {
		mirror.relayError(err)
	}
}

func (g *Gateway) handleAudioStart(ctx context.Context, cs *connState, mirror *chatMirror, raw json.RawMessage) {
	var p protocol.AudioStartPayload
	_ = json.Unmarshal(raw, &p)
	rate := p.SampleRateHertz
	if rate == 0 {
		rate = g.defaultSampleRate
	}
	size := p.SampleSizeBits
	if size == 0 {
		size = 16
	}
	channels := p.ChannelCount
	if channels == 0 {
		channels = 1
	}

	err := g.trigger(cs.sess, func() error {
		if err := cs.sess.SetupStartAudio(rate, size, channels); err != nil {
			return err
		}
		return cs.sess.InitiateStreaming(ctx, modelservice.SessionConfig{
			Region:          cs.region,
			ModelID:         cs.model,
			VoiceID:         cs.voiceID,
			SampleRateHertz: rate,
		})
	})
	if err != nil {
		mirror.relayError(err)
		return
	}
	mirror.send("audioReady", struct{}{})
}

func (g *Gateway) handleTextInput(ctx context.Context, cs *connState, mirror *chatMirror, raw json.RawMessage) {
	var p protocol.TextInputPayload
	_ = json.Unmarshal(raw, &p)
	rate := cs.rate
	if rate == 0 {
		rate = g.defaultSampleRate
	}
	if err := g.trigger(cs.sess, func() error {
		return cs.sess.SendTextInput(ctx, modelservice.SessionConfig{
			Region:          cs.region,
			ModelID:         cs.model,
			VoiceID:         cs.voiceID,
			SampleRateHertz: rate,
		}, p.Content)
	}); err != nil {
		mirror.relayError(err)
	}
}

// trigger runs fn against sess, turning a nil sess (client sent a message
// before initializeConnection) into the same out-of-order protocol error
// every other trigger method already returns.
func (g *Gateway) trigger(sess *orchestrator.Session, fn func() error) error {
	if sess == nil {
		return orchestrator.Categorize(orchestrator.CategoryProtocol, fmt.Errorf("%w: message received before initializeConnection", orchestrator.ErrOutOfOrder))
	}
	return fn()
}

// handleStopAudio runs the graceful end-of-turn sequence (endAudioContent,
// endPrompt), bounded by defaultStopAudioGrace; on timeout it force-closes
// instead. The caller always follows with closeCurrent, which sends
// sessionEnd and emits sessionClosed regardless of which path was taken.
func (g *Gateway) handleStopAudio(ctx context.Context, sess *orchestrator.Session) {
	if sess == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_ = sess.EndAudioContent()
		_ = sess.EndPrompt()
		close(done)
	}()
	grace, cancel := context.WithTimeout(ctx, defaultStopAudioGrace)
	defer cancel()
	select {
	case <-done:
	case <-grace.Done():
		_ = sess.ForceClose()
	}
}

// closeCurrent tears down cs's session (if any), bounded by
// defaultDisconnectGrace, removes it from the registry, and always emits
// sessionClosed so the client is never left waiting.
func (g *Gateway) closeCurrent(ctx context.Context, cs *connState, mirror *chatMirror, forced bool) {
	if cs.sess == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_ = cs.sess.SendSessionEnd()
		close(done)
	}()
	grace, cancel := context.WithTimeout(ctx, defaultDisconnectGrace)
	defer cancel()
	select {
	case <-done:
	case <-grace.Done():
		_ = cs.sess.ForceClose()
		forced = true
	}
	g.registry.Remove(cs.id)
	mirror.send("sessionClosed", protocol.SessionClosedPayload{SessionID: cs.id, Forced: forced})
	cs.sess = nil
}

// wireRelay registers the handler-table callbacks that forward every
// model-service downstream event to the client verbatim, plus the
// barge-in-to-chat-mirror hook.
func (g *Gateway) wireRelay(sess *orchestrator.Session, mirror *chatMirror) {
	handlers := sess.Handlers()
	lastContent := make(map[string]protocol.ContentStartPayload)

	handlers.On(orchestrator.EventContentStart, func(evt orchestrator.DownstreamEvent) {
		if evt.ContentStart == nil {
			return
		}
		lastContent[evt.ContentStart.ContentName] = *evt.ContentStart
		mirror.send("contentStart", *evt.ContentStart)
	})
	handlers.On(orchestrator.EventTextOutput, func(evt orchestrator.DownstreamEvent) {
		if evt.TextOutput != nil {
			mirror.send("textOutput", *evt.TextOutput)
		}
	})
	handlers.On(orchestrator.EventAudioOutput, func(evt orchestrator.DownstreamEvent) {
		if evt.AudioOutput != nil {
			mirror.send("audioOutput", *evt.AudioOutput)
		}
	})
	handlers.On(orchestrator.EventToolUse, func(evt orchestrator.DownstreamEvent) {
		if evt.ToolUse != nil {
			mirror.send("toolUse", *evt.ToolUse)
		}
	})
	handlers.On(orchestrator.EventContentEnd, func(evt orchestrator.DownstreamEvent) {
		if evt.ContentEnd == nil {
			return
		}
		// The model service's contentEnd frame does not echo promptName or
		// contentName back (unlike its matching contentStart), so the
		// gateway recovers them from the most recent contentStart of the
		// same type that hasn't already been closed.
		payload := protocol.ContentEndPayload{Type: evt.ContentEnd.Type, StopReason: evt.ContentEnd.StopReason}
		for name, start := range lastContent {
			if start.Type == evt.ContentEnd.Type {
				payload.PromptName, payload.ContentName = start.PromptName, name
				delete(lastContent, name)
				break
			}
		}
		mirror.send("contentEnd", payload)
		// streamInterrupted is a dedicated, easy-to-filter-on signal for
		// clients that don't want to inspect contentEnd.stopReason; bargeIn
		// (raised earlier, straight off the textOutput marker) is the
		// cut-playback-now signal, this is the turn's actual close-out.
		if payload.StopReason == protocol.StopReasonInterrupted {
			mirror.send("streamInterrupted", payload)
		}
	})
	handlers.On(orchestrator.EventUsage, func(evt orchestrator.DownstreamEvent) {
		if evt.Usage != nil {
			mirror.send("usageEvent", *evt.Usage)
		}
	})
	handlers.On(orchestrator.EventCompletionStart, func(evt orchestrator.DownstreamEvent) {
		if evt.CompletionStart != nil {
			mirror.send("completionStart", *evt.CompletionStart)
		}
	})
	handlers.On(orchestrator.EventStreamComplete, func(evt orchestrator.DownstreamEvent) {
		mirror.send("streamComplete", struct{}{})
	})
	handlers.On(orchestrator.EventTransportError, func(evt orchestrator.DownstreamEvent) {
		if evt.TransportError != nil {
			mirror.send("error", protocol.ErrorPayload{
				Message: evt.TransportError.Details,
				Source:  evt.TransportError.Source,
				Type:    string(orchestrator.CategoryTransport),
			})
		}
	})
	// Registered before WireBargeIn so WireBargeIn captures it as the
	// "existing" handler and chains it ahead of marking the mirror.
	handlers.On(orchestrator.EventBargeIn, func(evt orchestrator.DownstreamEvent) {
		if evt.BargeIn != nil {
			mirror.send("bargeIn", *evt.BargeIn)
		}
	})
	orchestrator.WireBargeIn(handlers, mirror)
}
