package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vocegate/vocegate/internal/orchestrator"
	"github.com/vocegate/vocegate/internal/protocol"
)

const writeTimeout = 5 * time.Second

// chatMirror is the one place a connection handler writes to the client
// socket, serializing every relay send through a single mutex (coder/
// websocket connections are not safe for concurrent writers) and
// implementing orchestrator.ChatMirror so the session's barge-in hook has
// somewhere to report to.
type chatMirror struct {
	conn *websocket.Conn

	mu                       sync.Mutex
	lastAssistantInterrupted bool
}

var _ orchestrator.ChatMirror = (*chatMirror)(nil)

func newChatMirror(conn *websocket.Conn) *chatMirror {
	return &chatMirror{conn: conn}
}

// send serializes payload under kind and writes it to the client, logging
// (never panicking or blocking the caller) on failure.
func (m *chatMirror) send(kind string, payload any) {
	frame, err := protocol.Wrap(kind, payload)
	if err != nil {
		slog.Warn("gateway: failed to encode relay event", "kind", kind, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		slog.Debug("gateway: relay write failed", "kind", kind, "err", err)
	}
}

// ack acknowledges an initializeConnection (or startNewChat) request.
func (m *chatMirror) ack(success bool, errMsg string) {
	m.send("initializeConnection", protocol.AckPayload{Success: success, Error: errMsg})
}

// relayError reports err to the client as an error event, pulling the
// taxonomy category out of a *orchestrator.CategorizedError when present.
func (m *chatMirror) relayError(err error) {
	if err == nil {
		return
	}
	payload := protocol.ErrorPayload{Message: err.Error()}
	var catErr *orchestrator.CategorizedError
	if errors.As(err, &catErr) {
		payload.Type = string(catErr.Category)
	}
	m.send("error", payload)
}

// MarkLastAssistantInterrupted satisfies orchestrator.ChatMirror. The
// gateway's own bargeIn relay (wired alongside this in wireRelay) carries
// the client-visible notice; this flag is kept for callers (e.g. a future
// transcript writer) that need to know the last turn was cut short without
// re-deriving it from the event stream.
func (m *chatMirror) MarkLastAssistantInterrupted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAssistantInterrupted = true
}

// newConnectionID mirrors orchestrator/ids.go's random-hex idiom. Kept
// package-local since the gateway must assign connection identity before
// any orchestrator.Session exists to delegate to.
func newConnectionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("gateway: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
