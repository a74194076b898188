// Package mock provides test doubles for the modelservice package
// interfaces.
//
// Use Provider to verify Connect calls and feed a controlled Session. Use
// Session to drive the downstream Frames channel and inspect which frames
// the orchestrator sent upstream.
//
// Example:
//
//	sess := &mock.Session{FramesCh: make(chan []byte, 8)}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/vocegate/vocegate/internal/modelservice"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg modelservice.SessionConfig
}

// Provider is a mock implementation of modelservice.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// new default Session with a buffered Frames channel.
	Session modelservice.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderRegions is returned by Regions.
	ProviderRegions []string

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

var _ modelservice.Provider = (*Provider)(nil)

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg modelservice.SessionConfig) (modelservice.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{FramesCh: make(chan []byte, 64)}, nil
}

// Regions returns ProviderRegions.
func (p *Provider) Regions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderRegions
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// SendCall records a single invocation of Session.Send.
type SendCall struct {
	Frame []byte
}

// Session is a mock implementation of modelservice.Session. Callers should
// pre-populate FramesCh and close it to signal end-of-session.
type Session struct {
	mu sync.Mutex

	// FramesCh is the channel returned by Frames(). Callers own this channel.
	FramesCh chan []byte

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SessionErr is returned by Err() after FramesCh closes.
	SessionErr error

	// SendCalls records every call to Send in order.
	SendCalls []SendCall

	closed bool
}

var _ modelservice.Session = (*Session)(nil)

// Send records the call and returns SendErr.
func (s *Session) Send(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), frame...)
	s.SendCalls = append(s.SendCalls, SendCall{Frame: cp})
	return s.SendErr
}

// Frames returns FramesCh.
func (s *Session) Frames() <-chan []byte { return s.FramesCh }

// Err returns SessionErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionErr
}

// Close marks the session closed and returns CloseErr. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.CloseErr
}

// Calls returns a copy of all recorded Send calls. Thread-safe.
func (s *Session) Calls() []SendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendCall(nil), s.SendCalls...)
}
