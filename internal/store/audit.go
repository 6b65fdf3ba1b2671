// ABOUTME: Send audit rows recording the outcome of every send-style tool call
// ABOUTME: Fixed columns only: outcome, grant, user and the chat/space/message ids

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendSendAudit appends a new row to the send audit table.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendSendAudit(ctx context.Context, row *SendAuditRow) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	if row.Outcome != SendSuccess && row.Outcome != SendFailure {
		return fmt.Errorf("invalid audit outcome %q", row.Outcome)
	}

	query := `
		INSERT INTO send_audit (audit_id, outcome, grant_id, inline_user_id, chat_id, space_id, message_id, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		row.ID,
		string(row.Outcome),
		row.GrantID,
		row.InlineUserID,
		row.ChatID,
		row.SpaceID,
		row.MessageID,
		row.Timestamp.UTC().Format(auditTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting send audit row: %w", err)
	}
	return nil
}

// auditTimeFormat has a fixed width so that text ordering matches time ordering.
const auditTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const sendAuditQuery = `
	SELECT audit_id, outcome, grant_id, inline_user_id, chat_id, space_id, message_id, ts
	FROM send_audit
	WHERE (? IS NULL OR grant_id = ?)
	  AND (? IS NULL OR outcome = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListSendAudit returns audit rows matching the filter, newest first.
func (s *SQLiteStore) ListSendAudit(ctx context.Context, f SendAuditFilter) ([]SendAuditRow, error) {
	var outcome, since *string
	if f.Outcome != nil {
		o := string(*f.Outcome)
		outcome = &o
	}
	if f.Since != nil {
		ts := f.Since.UTC().Format(auditTimeFormat)
		since = &ts
	}

	rows, err := s.db.QueryContext(ctx, sendAuditQuery,
		f.GrantID, f.GrantID,
		outcome, outcome,
		since, since,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying send audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []SendAuditRow{}
	for rows.Next() {
		var r SendAuditRow
		var outcomeStr, tsStr string
		var chatID, spaceID, messageID sql.NullInt64
		if err := rows.Scan(&r.ID, &outcomeStr, &r.GrantID, &r.InlineUserID, &chatID, &spaceID, &messageID, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning send audit row: %w", err)
		}
		r.Outcome = SendOutcome(outcomeStr)
		r.ChatID = nullInt64Ptr(chatID)
		r.SpaceID = nullInt64Ptr(spaceID)
		r.MessageID = nullInt64Ptr(messageID)
		if r.Timestamp, err = time.Parse(auditTimeFormat, tsStr); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating send audit rows: %w", err)
	}
	return out, nil
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
