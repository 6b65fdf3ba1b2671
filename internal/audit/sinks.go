// ABOUTME: Audit sinks: a structured log line and a row in the SQLite send_audit table
// ABOUTME: Both sinks copy only the fixed record fields

package audit

import (
	"context"
	"log/slog"

	"github.com/2389/inline-mcp/internal/store"
)

// SlogSink writes each record as one structured "audit" log line.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink logging at info level on logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "audit")}
}

func (s *SlogSink) Write(ctx context.Context, rec Record) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("outcome", string(rec.Outcome)),
		slog.String("grant_id", rec.GrantID),
		slog.Int64("inline_user_id", rec.InlineUserID),
		idAttr("chat_id", rec.ChatID),
		idAttr("space_id", rec.SpaceID),
		idAttr("message_id", rec.MessageID),
		slog.Time("timestamp", rec.Timestamp),
	)
	return nil
}

func idAttr(key string, id *int64) slog.Attr {
	if id == nil {
		return slog.Any(key, nil)
	}
	return slog.Int64(key, *id)
}

// StoreSink appends each record to a SendAuditStore.
type StoreSink struct {
	store store.SendAuditStore
}

// NewStoreSink creates a sink persisting to s.
func NewStoreSink(s store.SendAuditStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Write(ctx context.Context, rec Record) error {
	outcome := store.SendFailure
	if rec.Outcome == Success {
		outcome = store.SendSuccess
	}
	// The row is written even if the request context was cancelled.
	return s.store.AppendSendAudit(context.WithoutCancel(ctx), &store.SendAuditRow{
		Outcome:      outcome,
		GrantID:      rec.GrantID,
		InlineUserID: rec.InlineUserID,
		ChatID:       rec.ChatID,
		SpaceID:      rec.SpaceID,
		MessageID:    rec.MessageID,
		Timestamp:    rec.Timestamp,
	})
}
