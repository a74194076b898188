package modelservice

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

const defaultBaseURL = "wss://model.vocegate.example/v1/stream"

// Option configures a WSProvider.
type Option func(*WSProvider)

// WithBaseURL overrides the base WebSocket endpoint. Primarily used in tests
// to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *WSProvider) { p.baseURL = url }
}

// WithRegions overrides the set of regions this provider reports as able to
// serve sessions.
func WithRegions(regions []string) Option {
	return func(p *WSProvider) { p.regions = regions }
}

// WSProvider implements Provider over a single WebSocket endpoint speaking
// the envelope protocol described in internal/protocol.
type WSProvider struct {
	apiKey  string
	baseURL string
	regions []string
}

var _ Provider = (*WSProvider)(nil)

// New creates a WSProvider authenticating with the given API key.
func New(apiKey string, opts ...Option) *WSProvider {
	p := &WSProvider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		regions: []string{"us-east-1"},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Regions reports the provider's configured deployment regions.
func (p *WSProvider) Regions() []string {
	return append([]string(nil), p.regions...)
}

// Connect dials the model service and returns a ready-to-use Session.
func (p *WSProvider) Connect(ctx context.Context, cfg SessionConfig) (Session, error) {
	url := p.baseURL
	if cfg.Region != "" {
		url = fmt.Sprintf("%s?region=%s", url, cfg.Region)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("modelservice: dial: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &wsSession{
		conn:   conn,
		frames: make(chan []byte, 64),
		ctx:    sessCtx,
		cancel: cancel,
	}
	go sess.receiveLoop()
	return sess, nil
}

// wsSession is the concrete Session backed by a coder/websocket connection.
// Grounded on pkg/provider/s2s/openai/openai.go's receiveLoop/session shape:
// a single background goroutine owns the read side and closes frames on
// either a clean stream end or a transport error, recording the error for
// Err() to surface afterward.
type wsSession struct {
	conn *websocket.Conn

	frames chan []byte

	mu     sync.Mutex
	err    error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Session = (*wsSession)(nil)

func (s *wsSession) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *wsSession) Frames() <-chan []byte { return s.frames }

func (s *wsSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

func (s *wsSession) receiveLoop() {
	defer close(s.frames)
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = fmt.Errorf("modelservice: read: %w", err)
			}
			s.mu.Unlock()
			return
		}
		select {
		case s.frames <- data:
		case <-s.ctx.Done():
			return
		}
	}
}
