// Package protocol defines the wire shapes exchanged between the gateway and
// its two counterparties: the connected client (browser or telephony
// channel) and the upstream model service. Both sides speak a small JSON
// envelope of the form {"event": {"<kind>": <payload>}}; this package gives
// each kind a typed Go payload so the rest of the gateway never touches raw
// map[string]any.
package protocol

import "encoding/json"

// ContentType identifies the kind of content a contentStart/contentEnd block
// carries.
type ContentType string

const (
	ContentTypeAudio ContentType = "AUDIO"
	ContentTypeText  ContentType = "TEXT"
	ContentTypeTool  ContentType = "TOOL"
)

// TextOutputType distinguishes a model's spoken-equivalent text from a
// raw transcript of the user's speech.
type TextOutputType string

const (
	TextOutputSpeculative TextOutputType = "SPECULATIVE"
	TextOutputFinal       TextOutputType = "FINAL"
)

// InferenceConfig carries the sampling knobs a session negotiates at setup
// and that tool implementations may consult to tailor their own downstream
// calls (see toolkit.ExecContext).
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// TurnDetectionConfig configures server-side voice-activity-based turn
// boundaries. A nil *TurnDetectionConfig on a Session means the client is
// responsible for explicit end-of-turn signalling.
type TurnDetectionConfig struct {
	Type             string `json:"type"`
	SilenceDurationMs int   `json:"silenceDurationMs,omitempty"`
}

// ToolChoice mirrors the model-service tool-invocation policy: "auto",
// "none", or "required".
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ---- Gateway <-> Model-service frames ----

// ToolSpecWire is the model-service's view of a registered tool: the JSON
// Schema is pre-serialized to a string per toolConfiguration's wire shape.
type ToolSpecWire struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		JSON string `json:"json"`
	} `json:"inputSchema"`
}

// ToolConfiguration advertises the session's available tools and invocation
// policy to the model service.
type ToolConfiguration struct {
	Tools      []ToolSpecWire `json:"tools,omitempty"`
	ToolChoice ToolChoice     `json:"toolChoice,omitempty"`
}

// SessionStartUpstream opens the model-service session.
type SessionStartUpstream struct {
	InferenceConfiguration     InferenceConfig      `json:"inferenceConfiguration"`
	TurnDetectionConfiguration *TurnDetectionConfig `json:"turnDetectionConfiguration,omitempty"`
}

// PromptStartUpstream begins a prompt, declaring output media formats and
// the tool catalogue for this session.
type PromptStartUpstream struct {
	PromptName                string            `json:"promptName"`
	TextOutputConfiguration   MediaTypeConfig   `json:"textOutputConfiguration"`
	AudioOutputConfiguration  AudioOutputConfig `json:"audioOutputConfiguration"`
	ToolUseOutputConfiguration MediaTypeConfig  `json:"toolUseOutputConfiguration"`
	ToolConfiguration          ToolConfiguration `json:"toolConfiguration,omitempty"`
}

// MediaTypeConfig declares the MIME type of a content stream.
type MediaTypeConfig struct {
	MediaType string `json:"mediaType"`
}

// AudioOutputConfig declares the synthesized-audio format for a prompt.
type AudioOutputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId,omitempty"`
}

// TextInputConfiguration marks a content block as carrying text input.
type TextInputConfiguration struct {
	MediaType string `json:"mediaType"`
}

// AudioInputConfiguration marks a content block as carrying user audio.
type AudioInputConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
}

// ToolResultInputConfiguration marks a content block as carrying a tool
// result, correlated back to the originating tool-use invocation.
type ToolResultInputConfiguration struct {
	ToolUseID string `json:"toolUseId"`
}

// ContentStartUpstream opens a content block in the upstream prompt.
type ContentStartUpstream struct {
	PromptName                   string                        `json:"promptName"`
	ContentName                  string                        `json:"contentName"`
	Type                         ContentType                   `json:"type"`
	Role                         string                        `json:"role"`
	Interactive                  bool                          `json:"interactive,omitempty"`
	TextInputConfiguration       *TextInputConfiguration       `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration      *AudioInputConfiguration      `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfiguration *ToolResultInputConfiguration `json:"toolResultInputConfiguration,omitempty"`
}

// TextInputUpstream carries a text content block's body.
type TextInputUpstream struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// AudioInputUpstream carries one base64-encoded PCM16 audio chunk.
type AudioInputUpstream struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ToolResultUpstream carries a sanitized, stringified tool result back into
// the prompt.
type ToolResultUpstream struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ContentEndUpstream closes a content block.
type ContentEndUpstream struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

// PromptEndUpstream closes the prompt.
type PromptEndUpstream struct {
	PromptName string `json:"promptName"`
}

// SessionEndUpstream closes the model-service session.
type SessionEndUpstream struct{}

// StopReason classifies why a model-service content block ended.
type StopReason string

const (
	StopReasonEndTurn     StopReason = "END_TURN"
	StopReasonInterrupted StopReason = "INTERRUPTED"
	StopReasonMaxTokens   StopReason = "MAX_TOKENS"
	StopReasonToolUse     StopReason = "TOOL_USE"
)

// ContentEndDownstream is the model service's notice that a content block
// has ended, optionally bearing the reason the turn stopped.
type ContentEndDownstream struct {
	Type       ContentType `json:"type,omitempty"`
	StopReason StopReason  `json:"stopReason,omitempty"`
}

// CompletionStartPayload marks the beginning of a new model completion.
type CompletionStartPayload struct {
	CompletionID string `json:"completionId,omitempty"`
}

// ---- Client <-> Gateway messages ----

// InitializeConnectionPayload opens a gateway session for a client.
type InitializeConnectionPayload struct {
	SessionID           string               `json:"sessionId,omitempty"`
	Region              string               `json:"region,omitempty"`
	InferenceConfig     InferenceConfig      `json:"inferenceConfig,omitempty"`
	TurnDetectionConfig *TurnDetectionConfig `json:"turnDetectionConfig,omitempty"`
	EnabledTools        []string             `json:"enabledTools,omitempty"`
}

// AckPayload acknowledges a client request that can fail synchronously
// (currently just initializeConnection).
type AckPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PromptStartPayload begins a prompt within a session.
type PromptStartPayload struct {
	PromptName            string     `json:"promptName"`
	VoiceID                string     `json:"voiceId,omitempty"`
	OutputSampleRateHertz  int        `json:"outputSampleRateHertz,omitempty"`
	ToolChoice             ToolChoice `json:"toolChoice,omitempty"`
	EnabledTools           []string   `json:"enabledTools,omitempty"`
}

// SystemPromptPayload supplies the system-level instructions for the prompt.
type SystemPromptPayload struct {
	PromptName string `json:"promptName"`
	Content    string `json:"content"`
}

// AudioStartPayload opens an audio content block for a prompt.
type AudioStartPayload struct {
	PromptName      string `json:"promptName"`
	ContentName     string `json:"contentName"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
}

// AudioInputPayload carries one chunk of raw (already base64-decoded by the
// gateway's transport layer) PCM audio.
type AudioInputPayload struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     []byte `json:"content"`
}

// TextInputPayload injects a text turn in place of spoken audio.
type TextInputPayload struct {
	PromptName string `json:"promptName"`
	Content    string `json:"content"`
}

// StopAudioPayload requests a graceful end to the current prompt/session.
type StopAudioPayload struct {
	PromptName string `json:"promptName"`
}

// ---- Gateway -> Client relay events ----

// ContentStartPayload announces the beginning of a content block from the
// model.
type ContentStartPayload struct {
	PromptName  string      `json:"promptName"`
	ContentName string      `json:"contentName"`
	Type        ContentType `json:"type"`
}

// TextOutputPayload carries a chunk (speculative or final) of model text.
type TextOutputPayload struct {
	ContentName string         `json:"contentName"`
	Content     string         `json:"content"`
	Type        TextOutputType `json:"type,omitempty"`
}

// AudioOutputPayload carries a chunk of synthesised audio from the model.
type AudioOutputPayload struct {
	ContentName string `json:"contentName"`
	Content     []byte `json:"content"`
}

// ToolUsePayload announces a tool invocation request from the model.
type ToolUsePayload struct {
	ContentName string `json:"contentName"`
	ToolUseID   string `json:"toolUseId"`
	ToolName    string `json:"toolName"`
	Content     string `json:"content"` // JSON-encoded arguments
}

// ContentEndPayload announces the end of a content block.
type ContentEndPayload struct {
	PromptName  string      `json:"promptName"`
	ContentName string      `json:"contentName"`
	Type        ContentType `json:"type"`
	StopReason  StopReason  `json:"stopReason,omitempty"`
}

// UsagePayload reports token/latency accounting for a completed turn.
type UsagePayload struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
}

// ToolResultPayload is relayed to the client as a record of a completed tool
// invocation (after it has also been sent upstream, see orchestrator's
// tool-result emission sequence). Result holds the tool's raw JSON output
// (or the {error:true, message} business-error shape when IsError is set).
type ToolResultPayload struct {
	ToolUseID       string          `json:"toolUseId"`
	ToolName        string          `json:"toolName"`
	Result          json.RawMessage `json:"result"`
	IsError         bool            `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
}

// BargeInPayload is the synthetic event raised when the model signals that
// the user has interrupted its speech.
type BargeInPayload struct {
	ContentName string `json:"contentName"`
}

// ErrorPayload reports a non-fatal error to the client. Source identifies
// the subsystem that raised it (e.g. "responseStream" for a transport
// error); Type carries the taxonomy category (configuration, protocol,
// session_lifecycle, transport, tool, resource).
type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Source  string `json:"source,omitempty"`
	Type    string `json:"type,omitempty"`
}

// SessionClosedPayload confirms a session's teardown, always emitted
// regardless of whether the close was graceful or forced.
type SessionClosedPayload struct {
	SessionID string `json:"sessionId"`
	Forced    bool   `json:"forced"`
}

// Envelope is the outer shape of every frame exchanged with either the
// client or the model service: a single-key object naming the event kind.
type Envelope struct {
	Event map[string]json.RawMessage `json:"event"`
}

// Event is a constructed, not-yet-serialized upstream event: a single named
// kind paired with its payload. The upstream queue holds these; the
// model-service writer serializes each to wire bytes via Wrap just before
// sending so ordering is decided once, at enqueue time.
type Event struct {
	Kind    string
	Payload any
}

// Marshal serializes e to its envelope-shaped wire frame.
func (e Event) Marshal() ([]byte, error) {
	return Wrap(e.Kind, e.Payload)
}

// Wrap marshals a single named payload into an Envelope-shaped frame.
func Wrap(kind string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Event map[string]json.RawMessage `json:"event"`
	}{Event: map[string]json.RawMessage{kind: raw}})
}
