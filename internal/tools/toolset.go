// ABOUTME: The Inline tool surface and its shared dependencies
// ABOUTME: Registers conversation, message, send and upload tools into a Registry

package tools

import (
	"time"

	"github.com/2389/inline-mcp/internal/batch"
	"github.com/2389/inline-mcp/internal/upload"
)

// Listing limits.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Toolset holds what the tool handlers need beyond the per-session client.
type Toolset struct {
	Uploads  *upload.Resolver
	Batch    *batch.Executor
	Now      func() time.Time
	Location *time.Location
}

func (ts *Toolset) now() time.Time {
	if ts.Now != nil {
		return ts.Now()
	}
	return time.Now()
}

// Register adds every tool to r.
func (ts *Toolset) Register(r *Registry) error {
	for _, t := range []*Tool{
		ts.conversationsList(),
		ts.conversationsGet(),
		ts.conversationsCreate(),
		ts.messagesList(),
		ts.messagesSearch(),
		ts.messagesUnread(),
		ts.messagesMarkRead(),
		ts.messagesSend(),
		ts.messagesSendMedia(),
		ts.messagesSendBatch(),
		ts.filesUpload(),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry builds a registry holding the full tool surface.
func (ts *Toolset) NewRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := ts.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
