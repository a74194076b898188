package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default inactivity-sweep parameters, overridable via SweeperOption.
const (
	defaultSweepInterval   = 60 * time.Second
	defaultIdleThreshold    = 5 * time.Minute
	defaultShutdownDeadline = 5 * time.Second
)

// Sweeper periodically force-closes sessions that have gone idle, grounded
// on internal/session/reconnect.go's background-monitor-goroutine idiom: a
// single owned goroutine, a done channel, and a stopOnce guard.
type Sweeper struct {
	registry      *Registry
	interval      time.Duration
	idleThreshold time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides how often the sweeper scans the registry.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithIdleThreshold overrides how long a session may sit without activity
// before it is force-closed.
func WithIdleThreshold(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.idleThreshold = d }
}

// NewSweeper constructs a Sweeper over registry. Call Start to begin
// scanning; the returned Sweeper does nothing until then.
func NewSweeper(registry *Registry, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry:      registry,
		interval:      defaultSweepInterval,
		idleThreshold: defaultIdleThreshold,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs the sweep loop in a background goroutine until ctx is done or
// Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the sweep loop. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	now := time.Now()
	for id, sess := range s.registry.Snapshot() {
		if now.Sub(sess.LastActivity()) < s.idleThreshold {
			continue
		}
		slog.Info("sweeping idle session", "session_id", id, "idle_for", now.Sub(sess.LastActivity()))
		if err := sess.ForceClose(); err != nil {
			slog.Warn("force-close during sweep failed", "session_id", id, "err", err)
		}
		s.registry.Remove(id)
	}
}

// Shutdown gracefully closes every session currently in the registry,
// fanning the close-sequence out via errgroup bounded by an overall deadline.
// Sessions that miss the deadline are force-closed by the errgroup's shared
// context cancellation propagating into closeSession.
func Shutdown(ctx context.Context, registry *Registry, deadline time.Duration) error {
	if deadline <= 0 {
		deadline = defaultShutdownDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for id, sess := range registry.Snapshot() {
		id, sess := id, sess
		g.Go(func() error {
			closeSession(gctx, sess)
			registry.Remove(id)
			return nil
		})
	}
	g.Wait() // closeSession never returns an error; only ctx expiry below matters

	if ctx.Err() != nil {
		slog.Warn("shutdown deadline exceeded, remaining sessions force-closed", "remaining", registry.Len())
		return ctx.Err()
	}
	return nil
}

// closeSession runs a graceful SendSessionEnd, falling back to ForceClose if
// ctx expires first.
func closeSession(ctx context.Context, sess sessionCloser) {
	done := make(chan struct{})
	go func() {
		_ = sess.SendSessionEnd()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		_ = sess.ForceClose()
	}
}

// sessionCloser is the subset of *orchestrator.Session closeSession needs,
// narrowed for test substitution.
type sessionCloser interface {
	SendSessionEnd() error
	ForceClose() error
}
