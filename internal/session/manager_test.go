// ABOUTME: Tests for the session manager registry and idle sweep
// ABOUTME: Verifies two-phase registration, idempotent close and exactly-once release

package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCloser records close calls into a shared order log.
type fakeCloser struct {
	name   string
	closed atomic.Int32
	order  *[]string
	mu     *sync.Mutex
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed.Add(1)
	if f.order != nil {
		f.mu.Lock()
		*f.order = append(*f.order, f.name)
		f.mu.Unlock()
	}
	return f.err
}

func newTestManager(t *testing.T, idle time.Duration) *Manager[*fakeCloser] {
	t.Helper()
	m := NewManager[*fakeCloser](idle, nil)
	t.Cleanup(m.Stop)
	return m
}

func TestBeginIsInvisibleUntilComplete(t *testing.T) {
	m := newTestManager(t, time.Hour)
	transport := &fakeCloser{}

	p := m.Begin("grant-1", transport, nil)
	assert.Equal(t, 0, m.Len())

	sess, err := p.Complete()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "grant-1", sess.GrantID)
	assert.Same(t, sess, m.Get(sess.ID))

	again, err := p.Complete()
	require.NoError(t, err)
	assert.Same(t, sess, again, "complete is idempotent")
	assert.Equal(t, 1, m.Len())

	p.Abort()
	assert.Zero(t, transport.closed.Load(), "abort after complete is a no-op")
}

func TestAbortReleasesOnce(t *testing.T) {
	m := newTestManager(t, time.Hour)
	transport := &fakeCloser{}
	backend := &fakeCloser{}

	p := m.Begin("grant-1", transport, backend)
	p.Abort()
	p.Abort()

	assert.Equal(t, int32(1), transport.closed.Load())
	assert.Equal(t, int32(1), backend.closed.Load())
	assert.Equal(t, 0, m.Len())

	_, err := p.Complete()
	assert.ErrorIs(t, err, ErrAborted)
}

func TestSessionIDsAreUnique(t *testing.T) {
	m := newTestManager(t, time.Hour)
	seen := make(map[string]bool)
	for range 50 {
		sess, err := m.Begin("g", &fakeCloser{}, nil).Complete()
		require.NoError(t, err)
		require.False(t, seen[sess.ID])
		seen[sess.ID] = true
	}
	assert.Equal(t, 50, m.Len())
}

func TestCloseOrderAndIdempotence(t *testing.T) {
	m := newTestManager(t, time.Hour)
	var order []string
	var mu sync.Mutex
	transport := &fakeCloser{name: "transport", order: &order, mu: &mu}
	backend := &fakeCloser{name: "backend", order: &order, mu: &mu, err: errors.New("already gone")}

	sess, err := m.Begin("g", transport, backend).Complete()
	require.NoError(t, err)

	assert.True(t, m.Close(sess.ID))
	assert.False(t, m.Close(sess.ID))
	assert.False(t, m.Close("unknown"))

	assert.Nil(t, m.Get(sess.ID))
	assert.Equal(t, []string{"transport", "backend"}, order)
	assert.Equal(t, int32(1), transport.closed.Load())
}

func TestCloseFromTransportCallback(t *testing.T) {
	m := NewManager[*reentrantCloser](time.Hour, nil)
	t.Cleanup(m.Stop)
	var sessID string
	transport := &reentrantCloser{}
	transport.onClose = func() { m.Close(sessID) }

	sess, err := m.Begin("g", transport, nil).Complete()
	require.NoError(t, err)
	sessID = sess.ID

	assert.True(t, m.Close(sess.ID))
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, 0, m.Len())
}

type reentrantCloser struct {
	calls   int
	onClose func()
}

func (r *reentrantCloser) Close() error {
	r.calls++
	r.onClose()
	return nil
}

func TestSweepClosesIdleExactlyOnce(t *testing.T) {
	m := newTestManager(t, time.Minute)
	base := time.Now()

	idle := &fakeCloser{}
	fresh := &fakeCloser{}
	idleSess, err := m.Begin("g", idle, nil).Complete()
	require.NoError(t, err)
	freshSess, err := m.Begin("g", fresh, nil).Complete()
	require.NoError(t, err)

	m.Touch(idleSess.ID, base)
	m.Touch(freshSess.ID, base.Add(50*time.Second))

	assert.Equal(t, 0, m.Sweep(base.Add(30*time.Second)))
	assert.Equal(t, 1, m.Sweep(base.Add(61*time.Second)))
	assert.Equal(t, 0, m.Sweep(base.Add(62*time.Second)))

	assert.Nil(t, m.Get(idleSess.ID))
	assert.NotNil(t, m.Get(freshSess.ID))
	assert.Equal(t, int32(1), idle.closed.Load())
	assert.Zero(t, fresh.closed.Load())

	// A later Close on the swept id releases nothing.
	assert.False(t, m.Close(idleSess.ID))
	assert.Equal(t, int32(1), idle.closed.Load())
}

func TestTouchUnknownIsNoop(t *testing.T) {
	m := newTestManager(t, time.Minute)
	m.Touch("missing", time.Now())
	assert.Equal(t, 0, m.Len())
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Minute, newTestManager(t, 0).SweepInterval())
	assert.Equal(t, time.Minute, newTestManager(t, time.Hour).SweepInterval())
	assert.Equal(t, 10*time.Second, newTestManager(t, 10*time.Second).SweepInterval())
}

func TestBackgroundSweep(t *testing.T) {
	m := newTestManager(t, 20*time.Millisecond)
	transport := &fakeCloser{}
	_, err := m.Begin("g", transport, nil).Complete()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return m.Len() == 0 && transport.closed.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopClosesAllAndRejectsNew(t *testing.T) {
	m := NewManager[*fakeCloser](time.Hour, nil)
	a, b := &fakeCloser{}, &fakeCloser{}
	_, err := m.Begin("g", a, nil).Complete()
	require.NoError(t, err)
	_, err = m.Begin("g", b, nil).Complete()
	require.NoError(t, err)

	m.Stop()
	m.Stop()

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int32(1), a.closed.Load())
	assert.Equal(t, int32(1), b.closed.Load())

	late := &fakeCloser{}
	_, err = m.Begin("g", late, nil).Complete()
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, int32(1), late.closed.Load())
}
