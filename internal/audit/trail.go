// ABOUTME: Trail collects the ids a send handler learns while it runs
// ABOUTME: The dispatcher reads it once to emit the single audit record for the call

package audit

import (
	"context"
	"sync"
)

// Trail accumulates audit ids for one tool invocation. Later values replace
// earlier ones, so a batch ends up reporting its last sent message.
type Trail struct {
	mu        sync.Mutex
	chatID    *int64
	spaceID   *int64
	messageID *int64
	failed    bool
}

// SetChat records the chat the call targets.
func (t *Trail) SetChat(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chatID = &id
}

// SetSpace records the space containing the target chat.
func (t *Trail) SetSpace(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spaceID = &id
}

// SetMessage records a message the call produced.
func (t *Trail) SetMessage(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageID = &id
}

// MarkFailed forces a failure outcome even when the handler returns normally,
// as a batch with failed items does.
func (t *Trail) MarkFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
}

// ChatID returns the recorded chat id, if any.
func (t *Trail) ChatID() *int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyID(t.chatID)
}

// Snapshot returns the recorded ids and whether the call was marked failed.
func (t *Trail) Snapshot() (chatID, spaceID, messageID *int64, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyID(t.chatID), copyID(t.spaceID), copyID(t.messageID), t.failed
}

type trailKey struct{}

// WithTrail attaches t to ctx.
func WithTrail(ctx context.Context, t *Trail) context.Context {
	return context.WithValue(ctx, trailKey{}, t)
}

// TrailFromContext returns the trail attached to ctx. Outside an audited call
// it returns a detached Trail so handlers never need a nil check.
func TrailFromContext(ctx context.Context) *Trail {
	if t, ok := ctx.Value(trailKey{}).(*Trail); ok && t != nil {
		return t
	}
	return &Trail{}
}
