// Package orchestrator implements the per-session bidirectional streaming
// state machine: it assembles a strictly ordered upstream event sequence,
// demultiplexes the downstream event stream, dispatches tool invocations off
// the stream path, interleaves tool results back upstream, and guarantees
// bounded-time idempotent shutdown.
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocegate/vocegate/internal/modelservice"
	"github.com/vocegate/vocegate/internal/protocol"
	"github.com/vocegate/vocegate/internal/toolkit"
)

// State is a Session's position in its lifecycle, mirroring
// resilience.CircuitBreaker's small-int-with-String() idiom.
type State int

const (
	StateClosed State = iota
	StateInitializing
	StateReady
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config negotiates a Session's behavior at creation time.
type Config struct {
	Region           string
	ModelID          string
	InferenceConfig  protocol.InferenceConfig
	TurnDetection    *protocol.TurnDetectionConfig
	ToolChoice       protocol.ToolChoice
	EnabledTools     []string
	VoiceID          string
	OutputSampleRate int
}

// toolContext caches the most recently observed tool-use invocation, awaiting
// its closing contentEnd(TOOL) marker (see spec §4.6).
type toolContext struct {
	ToolUseID string
	ToolName  string
	Content   string
}

// Session is the single-writer state machine for one client's duplex voice
// conversation. Every exported trigger method acquires mu for its state
// check and upstream enqueue(s) only, releasing it before any blocking I/O:
// never hold the lock across network I/O.
type Session struct {
	ID string

	provider modelservice.Provider
	tools    *toolkit.Registry

	mu                     sync.Mutex
	state                  State
	promptName             string
	audioContentID         string
	inferenceConfig        protocol.InferenceConfig
	turnDetection          *protocol.TurnDetectionConfig
	toolChoice             protocol.ToolChoice
	enabledTools           map[string]struct{}
	voiceID                string
	outputSampleRate       int
	activeToolContext      *toolContext
	promptStartSent        bool
	audioContentStartSent  bool
	cleanupInProgress      bool

	upstream     *upstreamQueue
	pendingAudio *audioQueue
	handlers     *HandlerTable
	demux        *Demux

	modelSession modelservice.Session
	wg           sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}

	lastActivity atomic.Int64

	// OnError is invoked for transport errors observed downstream
	// (modelStreamErrorException / internalServerException); wired by the
	// gateway, which decides whether to surface them to the client.
	// It does not close the session — that decision belongs to the state
	// machine's owner.
	OnError func(error)

	// OnToolResult is invoked once a dispatched tool call completes,
	// regardless of whether the session was still Active to receive the
	// upstream emission. The gateway wires this to its own client-facing
	// toolResult relay.
	OnToolResult func(toolUseID, toolName, resultJSON string, isError bool, execTime time.Duration)
}

// NewSession allocates a Session in StateInitializing with fresh promptName
// and audioContentId identifiers (the createSession trigger's effects).
func NewSession(id string, provider modelservice.Provider, tools *toolkit.Registry, cfg Config) *Session {
	enabled := make(map[string]struct{}, len(cfg.EnabledTools))
	for _, name := range cfg.EnabledTools {
		enabled[name] = struct{}{}
	}
	toolChoice := cfg.ToolChoice
	if toolChoice == "" {
		toolChoice = protocol.ToolChoiceAuto
	}

	s := &Session{
		ID:               id,
		provider:         provider,
		tools:            tools,
		state:            StateInitializing,
		promptName:       mustNewID(),
		audioContentID:   mustNewID(),
		inferenceConfig:  cfg.InferenceConfig,
		turnDetection:    cfg.TurnDetection,
		toolChoice:       toolChoice,
		enabledTools:     enabled,
		voiceID:          cfg.VoiceID,
		outputSampleRate: cfg.OutputSampleRate,
		upstream:         newUpstreamQueue(),
		pendingAudio:     newAudioQueue(),
		handlers:         NewHandlerTable(),
		done:             make(chan struct{}),
	}
	s.demux = NewDemux(s.touchActivity)
	s.touchActivity()
	return s
}

// Handlers exposes the downstream dispatch table for the gateway to register
// client-relay callbacks on, before InitiateStreaming starts the demux loop.
func (s *Session) Handlers() *HandlerTable { return s.handlers }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the unix-nanos timestamp of the most recent upstream
// enqueue or downstream frame, read lock-free so the inactivity sweeper
// never contends with the session's own goroutines.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touchActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// enqueueLocked appends evt to the upstream queue and stamps lastActivity.
// The trigger methods call it with s.mu held; emitToolResult calls it
// without the lock. It checks no lifecycle state: it returns false only
// once shutdown has closed the upstream queue, so an event enqueued after
// Closing is entered but before shutdown runs (for example an audioInput
// drained during SendSessionEnd's 300ms wait) is still appended.
func (s *Session) enqueueLocked(evt protocol.Event) bool {
	ok := s.upstream.enqueue(evt)
	if ok {
		s.touchActivity()
	}
	return ok
}

// ConfigurePrompt applies the voice, output sample rate, and tool policy
// negotiated by the client's promptStart message, before
// SetupSessionAndPromptStart enqueues the upstream promptStart event that
// encodes them. Any zero-valued argument leaves the corresponding field
// (set at NewSession time) unchanged.
func (s *Session) ConfigurePrompt(voiceID string, outputSampleRate int, toolChoice protocol.ToolChoice, enabledTools []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: configurePrompt in state %s", ErrOutOfOrder, s.state))
	}
	if s.promptStartSent {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: configurePrompt after promptStart already sent", ErrOutOfOrder))
	}

	if voiceID != "" {
		s.voiceID = voiceID
	}
	if outputSampleRate > 0 {
		s.outputSampleRate = outputSampleRate
	}
	if toolChoice != "" {
		s.toolChoice = toolChoice
	}
	if len(enabledTools) > 0 {
		enabled := make(map[string]struct{}, len(enabledTools))
		for _, name := range enabledTools {
			enabled[name] = struct{}{}
		}
		s.enabledTools = enabled
	}
	return nil
}

// SetupSessionAndPromptStart enqueues sessionStart then promptStart,
// including the tool catalogue filtered by enabledTools.
func (s *Session) SetupSessionAndPromptStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: setupSessionAndPromptStart in state %s", ErrOutOfOrder, s.state))
	}

	s.enqueueLocked(protocol.Event{Kind: "sessionStart", Payload: protocol.SessionStartUpstream{
		InferenceConfiguration:     s.inferenceConfig,
		TurnDetectionConfiguration: s.turnDetection,
	}})

	specs := s.tools.Specs(s.enabledToolFilter())
	wireTools := make([]protocol.ToolSpecWire, 0, len(specs))
	for _, spec := range specs {
		schemaJSON, err := json.Marshal(spec.Schema)
		if err != nil {
			continue
		}
		var wt protocol.ToolSpecWire
		wt.Name = spec.Name
		wt.Description = spec.Description
		wt.InputSchema.JSON = string(schemaJSON)
		wireTools = append(wireTools, wt)
	}

	s.enqueueLocked(protocol.Event{Kind: "promptStart", Payload: protocol.PromptStartUpstream{
		PromptName:                s.promptName,
		TextOutputConfiguration:   protocol.MediaTypeConfig{MediaType: "text/plain"},
		ToolUseOutputConfiguration: protocol.MediaTypeConfig{MediaType: "application/json"},
		AudioOutputConfiguration: protocol.AudioOutputConfig{
			MediaType:       "audio/lpcm",
			SampleRateHertz: s.outputSampleRateOrDefault(),
			SampleSizeBits:  16,
			ChannelCount:    1,
			VoiceID:         s.voiceID,
		},
		ToolConfiguration: protocol.ToolConfiguration{
			Tools:      wireTools,
			ToolChoice: s.toolChoice,
		},
	}})
	s.promptStartSent = true
	return nil
}

func (s *Session) outputSampleRateOrDefault() int {
	if s.outputSampleRate > 0 {
		return s.outputSampleRate
	}
	return 24000
}

// enabledToolFilter returns nil (meaning "all tools") when enabledTools was
// not set at session creation.
func (s *Session) enabledToolFilter() map[string]struct{} {
	if len(s.enabledTools) == 0 {
		return nil
	}
	return s.enabledTools
}

// SetupSystemPrompt enqueues the {contentStart SYSTEM TEXT, textInput,
// contentEnd} triple. It must run after SetupSessionAndPromptStart and
// before SetupStartAudio.
func (s *Session) SetupSystemPrompt(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: setupSystemPrompt in state %s", ErrOutOfOrder, s.state))
	}
	if !s.promptStartSent {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: setupSystemPrompt before promptStart", ErrOutOfOrder))
	}
	if isBlank(content) {
		return Categorize(CategoryConfiguration, ErrEmptyPrompt)
	}

	contentName := mustNewID()
	s.enqueueLocked(protocol.Event{Kind: "contentStart", Payload: protocol.ContentStartUpstream{
		PromptName:             s.promptName,
		ContentName:            contentName,
		Type:                   protocol.ContentTypeText,
		Role:                   "SYSTEM",
		TextInputConfiguration: &protocol.TextInputConfiguration{MediaType: "text/plain"},
	}})
	s.enqueueLocked(protocol.Event{Kind: "textInput", Payload: protocol.TextInputUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     content,
	}})
	s.enqueueLocked(protocol.Event{Kind: "contentEnd", Payload: protocol.ContentEndUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
	}})
	return nil
}

// SetupStartAudio enqueues contentStart(AUDIO USER) for the session's
// audioContentId and transitions to Ready.
func (s *Session) SetupStartAudio(sampleRateHertz, sampleSizeBits, channelCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: setupStartAudio in state %s", ErrOutOfOrder, s.state))
	}
	if !s.promptStartSent {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: setupStartAudio before promptStart", ErrOutOfOrder))
	}

	s.enqueueLocked(protocol.Event{Kind: "contentStart", Payload: protocol.ContentStartUpstream{
		PromptName:  s.promptName,
		ContentName: s.audioContentID,
		Type:        protocol.ContentTypeAudio,
		Role:        "USER",
		Interactive: true,
		AudioInputConfiguration: &protocol.AudioInputConfiguration{
			MediaType:       "audio/lpcm",
			SampleRateHertz: sampleRateHertz,
			SampleSizeBits:  sampleSizeBits,
			ChannelCount:    channelCount,
		},
	}})
	s.audioContentStartSent = true
	s.state = StateReady
	return nil
}

// InitiateStreaming opens the duplex model-service connection, binds the
// upstream writer loop to the queue, starts the downstream demux loop, and
// starts the audio-queue drainer. It transitions Ready -> Active.
func (s *Session) InitiateStreaming(ctx context.Context, cfg modelservice.SessionConfig) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return Categorize(CategoryProtocol, fmt.Errorf("%w: initiateStreaming in state %s", ErrOutOfOrder, s.state))
	}
	s.mu.Unlock()

	modelSess, err := s.provider.Connect(ctx, cfg)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()
		return Categorize(CategoryTransport, fmt.Errorf("orchestrator: connect model service: %w", err))
	}

	s.mu.Lock()
	s.modelSession = modelSess
	s.state = StateActive
	s.mu.Unlock()

	s.wg.Add(3)
	go s.runUpstreamWriter(ctx)
	go s.runDownstreamDemux(ctx)
	go s.runAudioDrain()
	return nil
}

// runUpstreamWriter drains the upstream queue in strict FIFO order and
// writes each serialized frame to the model-service session. It exits when
// the queue closes (session shutdown) or the context is cancelled.
func (s *Session) runUpstreamWriter(ctx context.Context) {
	defer s.wg.Done()
	for {
		evt, ok := s.upstream.next(ctx)
		if !ok {
			return
		}
		frame, err := evt.Marshal()
		if err != nil {
			continue
		}
		if err := s.modelSession.Send(ctx, frame); err != nil {
			if s.OnError != nil {
				s.OnError(Categorize(CategoryTransport, fmt.Errorf("orchestrator: send upstream frame: %w", err)))
			}
			return
		}
	}
}

// runDownstreamDemux wires the session's own handlers — tool dispatch on
// contentEnd(TOOL) and transport-error forwarding — ahead of whatever the
// gateway registers, then runs the demux loop until the frames channel
// closes or ctx is done.
func (s *Session) runDownstreamDemux(ctx context.Context) {
	defer s.wg.Done()
	s.wireInternalHandlers()
	s.demux.Run(ctx, s.modelSession.Frames(), s.handlers)
}

func (s *Session) wireInternalHandlers() {
	existingToolUse := s.handlers.handlers[EventToolUse]
	s.handlers.On(EventToolUse, func(evt DownstreamEvent) {
		if existingToolUse != nil {
			existingToolUse(evt)
		}
		if evt.ToolUse == nil {
			return
		}
		s.mu.Lock()
		s.activeToolContext = &toolContext{
			ToolUseID: evt.ToolUse.ToolUseID,
			ToolName:  evt.ToolUse.ToolName,
			Content:   evt.ToolUse.Content,
		}
		s.mu.Unlock()
	})

	existingContentEnd := s.handlers.handlers[EventContentEnd]
	s.handlers.On(EventContentEnd, func(evt DownstreamEvent) {
		if existingContentEnd != nil {
			existingContentEnd(evt)
		}
		if evt.ContentEnd != nil && evt.ContentEnd.Type == protocol.ContentTypeTool {
			s.dispatchActiveTool()
		}
	})

	existingTransportError := s.handlers.handlers[EventTransportError]
	s.handlers.On(EventTransportError, func(evt DownstreamEvent) {
		if existingTransportError != nil {
			existingTransportError(evt)
		}
		if s.OnError != nil && evt.TransportError != nil {
			s.OnError(Categorize(CategoryTransport, fmt.Errorf("orchestrator: %s: %s", evt.TransportError.Source, evt.TransportError.Details)))
		}
	})
}

// StreamAudio pushes a raw PCM16 chunk into the pending-audio queue for the
// background drainer to serialize; it never blocks the caller.
func (s *Session) StreamAudio(chunk []byte) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateActive {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: streamAudio in state %s", ErrOutOfOrder, state))
	}
	s.pendingAudio.push(chunk)
	return nil
}

// runAudioDrain is the single consumer goroutine draining pendingAudio in
// batches, serializing each chunk as an audioInput event. It exits once the
// queue is stopped (session close).
func (s *Session) runAudioDrain() {
	defer s.wg.Done()
	for {
		if !s.pendingAudio.wait() {
			return
		}
		for {
			batch := s.pendingAudio.drainBatch()
			if len(batch) == 0 {
				break
			}
			for _, chunk := range batch {
				s.mu.Lock()
				s.enqueueLocked(protocol.Event{Kind: "audioInput", Payload: protocol.AudioInputUpstream{
					PromptName:  s.promptName,
					ContentName: s.audioContentID,
					Content:     encodeBase64(chunk),
				}})
				s.mu.Unlock()
			}
		}
	}
}

// SendTextInput enqueues a fresh USER TEXT {contentStart, textInput,
// contentEnd} triple. If the session is still Ready (streaming not yet
// initiated), it lazily calls InitiateStreaming first per spec §9's
// text-input Open Question. SendTextInput opens no audio content block of
// its own, but Ready is reached only through SetupStartAudio, so by then
// the contentStart(AUDIO USER) block has already been enqueued.
func (s *Session) SendTextInput(ctx context.Context, cfg modelservice.SessionConfig, content string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateReady {
		if err := s.InitiateStreaming(ctx, cfg); err != nil {
			return err
		}
	} else if state != StateActive {
		return Categorize(CategoryProtocol, fmt.Errorf("%w: sendTextInput in state %s", ErrOutOfOrder, state))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	contentName := mustNewID()
	s.enqueueLocked(protocol.Event{Kind: "contentStart", Payload: protocol.ContentStartUpstream{
		PromptName:             s.promptName,
		ContentName:            contentName,
		Type:                   protocol.ContentTypeText,
		Role:                   "USER",
		TextInputConfiguration: &protocol.TextInputConfiguration{MediaType: "text/plain"},
	}})
	s.enqueueLocked(protocol.Event{Kind: "textInput", Payload: protocol.TextInputUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     content,
	}})
	s.enqueueLocked(protocol.Event{Kind: "contentEnd", Payload: protocol.ContentEndUpstream{
		PromptName:  s.promptName,
		ContentName: contentName,
	}})
	return nil
}

// EndAudioContent enqueues contentEnd for the audio content block if it was
// ever opened, then waits 500ms for the model to drain it.
func (s *Session) EndAudioContent() error {
	s.mu.Lock()
	if s.state != StateReady && s.state != StateActive {
		s.mu.Unlock()
		return Categorize(CategoryProtocol, fmt.Errorf("%w: endAudioContent in state %s", ErrOutOfOrder, s.state))
	}
	if !s.audioContentStartSent {
		s.mu.Unlock()
		return nil
	}
	s.enqueueLocked(protocol.Event{Kind: "contentEnd", Payload: protocol.ContentEndUpstream{
		PromptName:  s.promptName,
		ContentName: s.audioContentID,
	}})
	s.mu.Unlock()

	time.Sleep(500 * time.Millisecond)
	return nil
}

// EndPrompt enqueues promptEnd if promptStart was sent, then waits 300ms.
func (s *Session) EndPrompt() error {
	s.mu.Lock()
	if s.state != StateReady && s.state != StateActive {
		s.mu.Unlock()
		return Categorize(CategoryProtocol, fmt.Errorf("%w: endPrompt in state %s", ErrOutOfOrder, s.state))
	}
	if !s.promptStartSent {
		s.mu.Unlock()
		return nil
	}
	s.enqueueLocked(protocol.Event{Kind: "promptEnd", Payload: protocol.PromptEndUpstream{PromptName: s.promptName}})
	s.mu.Unlock()

	time.Sleep(300 * time.Millisecond)
	return nil
}

// SendSessionEnd enqueues sessionEnd, transitions to Closing, waits 300ms,
// and fires the session's close signal, stopping all background goroutines.
// It does not remove the session from the gateway's registry — that is the
// caller's responsibility, matching the "removed from all indices in a
// single step" invariant owned by gateway.Registry.
func (s *Session) SendSessionEnd() error {
	s.mu.Lock()
	if s.cleanupInProgress {
		s.mu.Unlock()
		return nil
	}
	s.cleanupInProgress = true
	s.enqueueLocked(protocol.Event{Kind: "sessionEnd", Payload: protocol.SessionEndUpstream{}})
	s.state = StateClosing
	s.mu.Unlock()

	time.Sleep(300 * time.Millisecond)
	s.shutdown()
	return nil
}

// ForceClose immediately closes the session without emitting any further
// upstream events. Idempotent: a second call is a no-op.
func (s *Session) ForceClose() error {
	s.mu.Lock()
	if s.cleanupInProgress {
		s.mu.Unlock()
		return nil
	}
	s.cleanupInProgress = true
	s.state = StateClosing
	s.mu.Unlock()

	s.shutdown()
	return nil
}

// shutdown fires the close signal exactly once, stops the audio queue,
// closes the underlying model-service session (if one was ever opened), and
// waits for the session's background goroutines to exit.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.upstream.close()
		s.pendingAudio.stop()

		s.mu.Lock()
		modelSess := s.modelSession
		s.mu.Unlock()
		if modelSess != nil {
			_ = modelSess.Close()
			s.wg.Wait()
		}
	})
}

// Done returns a channel closed as the first step of shutdown, before the
// model-service session is closed and the background goroutines are awaited.
func (s *Session) Done() <-chan struct{} { return s.done }

func encodeBase64(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
