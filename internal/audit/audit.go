// ABOUTME: Audit logger for send-style tool calls with a closed, fixed-shape record
// ABOUTME: Fans each record out to sinks; sink failures are logged and never propagated

// Package audit records the outcome of send-style tool calls.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Outcome is the result of an audited call.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// Record is one audit entry. Its fields are the complete vocabulary of the
// audit trail; there is nowhere to put message text or credentials.
type Record struct {
	Outcome      Outcome   `json:"outcome"`
	GrantID      string    `json:"grantId"`
	InlineUserID int64     `json:"inlineUserId,string"`
	ChatID       *int64    `json:"chatId,string"`
	SpaceID      *int64    `json:"spaceId,string"`
	MessageID    *int64    `json:"messageId,string"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarshalJSON fixes the wire form of a record.
func (r Record) MarshalJSON() ([]byte, error) {
	type wire Record
	w := wire(r)
	w.Timestamp = w.Timestamp.UTC()
	return json.Marshal(w)
}

// Sink persists or forwards audit records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Logger stamps and fans out audit records.
type Logger struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates an audit logger writing to every sink in order.
func NewLogger(logger *slog.Logger, sinks ...Sink) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		sinks:  sinks,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Record writes one record with the given outcome and ids.
func (l *Logger) Record(ctx context.Context, outcome Outcome, grantID string, inlineUserID int64, chatID, spaceID, messageID *int64) Record {
	rec := Record{
		Outcome:      outcome,
		GrantID:      grantID,
		InlineUserID: inlineUserID,
		ChatID:       copyID(chatID),
		SpaceID:      copyID(spaceID),
		MessageID:    copyID(messageID),
		Timestamp:    l.now().UTC(),
	}
	for _, s := range l.sinks {
		if err := s.Write(ctx, rec); err != nil {
			l.logger.Error("audit sink failed", "error", err, "grant_id", grantID, "outcome", outcome)
		}
	}
	return rec
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
