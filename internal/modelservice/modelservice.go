// Package modelservice defines the gateway's abstraction over a remote
// bidirectional speech-to-speech model service, and a concrete WebSocket
// implementation of it.
//
// A Session is the hot path of the gateway — every method must return
// quickly. Downstream events (audio, text, tool calls) arrive on a single
// ordered channel so a session's demultiplexer never has to select across
// several independent streams. All implementations must be safe for
// concurrent use, and Close must be idempotent.
package modelservice

import (
	"context"
	"errors"
)

// ErrClosed is returned by Session methods once the session has been closed.
var ErrClosed = errors.New("modelservice: session closed")

// SessionConfig is the initial negotiation for a new model-service session.
type SessionConfig struct {
	Region          string
	ModelID         string
	VoiceID         string
	SampleRateHertz int
}

// Session is an open duplex connection to the model service. Frames returns
// raw JSON frames in arrival order; callers (the orchestrator's
// demultiplexer) are responsible for parsing the protocol.Envelope shape.
type Session interface {
	// Send writes a single pre-encoded frame (already shaped as a
	// protocol.Envelope) upstream. Safe for concurrent use, but callers
	// should still respect single-writer ordering at a higher layer to
	// preserve the sessionStart/promptStart/... sequencing invariants.
	Send(ctx context.Context, frame []byte) error

	// Frames returns a read-only channel of raw downstream frames. The
	// channel is closed when the session ends, whether cleanly or due to
	// a transport error; callers should check Err() once Frames is closed.
	Frames() <-chan []byte

	// Err returns the error that closed Frames, or nil for a clean end.
	Err() error

	// Close terminates the session. Idempotent; returns nil on repeat
	// calls.
	Close() error
}

// Provider opens new Sessions against a specific deployment/region of the
// model service.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// Regions lists the deployment regions this Provider instance can
	// currently serve sessions from; used by the operational /health
	// endpoint.
	Regions() []string
}
