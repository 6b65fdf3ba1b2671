// ABOUTME: Session manager owning the registry of live MCP sessions
// ABOUTME: Two-phase registration after the handshake, idempotent close and an idle sweep

package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultIdleTimeout is how long a session may go untouched before the sweep closes it.
const DefaultIdleTimeout = 15 * time.Minute

// maxSweepInterval caps how long the sweeper sleeps between passes.
const maxSweepInterval = time.Minute

// ErrStopped is returned when registering a session on a stopped manager.
var ErrStopped = errors.New("session manager stopped")

// ErrAborted is returned when completing a handshake that was already aborted.
var ErrAborted = errors.New("session handshake aborted")

// Session binds one transport and one backend client to one grant.
type Session[T io.Closer] struct {
	ID        string
	GrantID   string
	Transport T
	Backend   io.Closer
	CreatedAt time.Time

	lastUsed atomic.Int64 // unix nanos
}

// LastUsedAt returns when the session was last touched.
func (s *Session[T]) LastUsedAt() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Manager owns the id -> session map. A single mutex guards the map; releasing
// transports and backends always happens outside it.
type Manager[T io.Closer] struct {
	mu       sync.Mutex
	sessions map[string]*Session[T]
	stopped  bool

	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager and starts its idle sweeper. A non-positive
// idleTimeout selects DefaultIdleTimeout.
func NewManager[T io.Closer](idleTimeout time.Duration, logger *slog.Logger) *Manager[T] {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager[T]{
		sessions:    make(map[string]*Session[T]),
		idleTimeout: idleTimeout,
		logger:      logger.With("component", "sessions"),
		now:         time.Now,
		done:        make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// SweepInterval returns min(60s, idleTimeout).
func (m *Manager[T]) SweepInterval() time.Duration {
	return min(maxSweepInterval, m.idleTimeout)
}

// Pending is a transport whose handshake has not finished yet. It is not
// visible to Get until Complete succeeds.
type Pending[T io.Closer] struct {
	m         *Manager[T]
	grantID   string
	transport T
	backend   io.Closer

	mu       sync.Mutex
	session  *Session[T]
	finished bool
}

// Begin starts registering a session for grantID. Exactly one of Complete or
// Abort decides its fate.
func (m *Manager[T]) Begin(grantID string, transport T, backend io.Closer) *Pending[T] {
	return &Pending[T]{m: m, grantID: grantID, transport: transport, backend: backend}
}

// GrantID returns the grant the pending session will belong to.
func (p *Pending[T]) GrantID() string { return p.grantID }

// Complete registers the session under a freshly generated id. Calling it
// again returns the same session.
func (p *Pending[T]) Complete() (*Session[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return p.session, nil
	}
	if p.finished {
		return nil, ErrAborted
	}

	now := p.m.now()
	sess := &Session[T]{
		ID:        uuid.New().String(),
		GrantID:   p.grantID,
		Transport: p.transport,
		Backend:   p.backend,
		CreatedAt: now,
	}
	sess.lastUsed.Store(now.UnixNano())

	p.m.mu.Lock()
	if p.m.stopped {
		p.m.mu.Unlock()
		p.finished = true
		p.m.release(sess)
		return nil, ErrStopped
	}
	p.m.sessions[sess.ID] = sess
	count := len(p.m.sessions)
	p.m.mu.Unlock()

	p.session = sess
	p.finished = true
	p.m.logger.Info("session registered", "session_id", sess.ID, "grant_id", sess.GrantID, "active", count)
	return sess, nil
}

// Abort releases the transport and backend of a handshake that did not complete.
// It is a no-op after Complete.
func (p *Pending[T]) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	p.finished = true
	p.m.release(&Session[T]{GrantID: p.grantID, Transport: p.transport, Backend: p.backend})
}

// Get returns the session with id, or nil.
func (m *Manager[T]) Get(id string) *Session[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Touch marks the session as used at now. Touching an evicted session is a no-op.
func (m *Manager[T]) Touch(id string, now time.Time) {
	m.mu.Lock()
	sess := m.sessions[id]
	m.mu.Unlock()
	if sess != nil {
		sess.lastUsed.Store(now.UnixNano())
	}
}

// Close removes the session and then releases it. Closing an unknown or
// already closed session is a no-op. It reports whether a session was removed.
func (m *Manager[T]) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.release(sess)
	m.logger.Info("session closed", "session_id", id, "grant_id", sess.GrantID)
	return true
}

// Len returns the number of registered sessions.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes every session idle for longer than the idle timeout at now
// and returns how many it closed.
func (m *Manager[T]) Sweep(now time.Time) int {
	var expired []*Session[T]

	m.mu.Lock()
	for id, sess := range m.sessions {
		if now.Sub(sess.LastUsedAt()) > m.idleTimeout {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.release(sess)
		m.logger.Info("session expired", "session_id", sess.ID, "grant_id", sess.GrantID, "idle", now.Sub(sess.LastUsedAt()).Round(time.Second))
	}
	return len(expired)
}

// sweepLoop runs in a background goroutine, periodically closing idle sessions.
func (m *Manager[T]) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(m.now())
		case <-m.done:
			return
		}
	}
}

// Stop halts the sweeper and closes every session. It is safe to call multiple times.
func (m *Manager[T]) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		m.mu.Lock()
		m.stopped = true
		all := make([]*Session[T], 0, len(m.sessions))
		for id, sess := range m.sessions {
			all = append(all, sess)
			delete(m.sessions, id)
		}
		m.mu.Unlock()

		for _, sess := range all {
			m.release(sess)
		}
		m.logger.Info("session manager stopped", "closed", len(all))
	})
}

// release closes the transport first, then the backend.
func (m *Manager[T]) release(sess *Session[T]) {
	if err := sess.Transport.Close(); err != nil {
		m.logger.Warn("closing session transport", "session_id", sess.ID, "error", err)
	}
	if sess.Backend != nil {
		if err := sess.Backend.Close(); err != nil {
			m.logger.Warn("closing session backend", "session_id", sess.ID, "error", err)
		}
	}
}
