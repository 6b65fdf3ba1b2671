// ABOUTME: Store interfaces and data types for inline-mcp persistence
// ABOUTME: Defines local grant records, send audit rows and the store contracts

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateGrant is returned when a grant id or token is already registered
var ErrDuplicateGrant = errors.New("grant already exists")

// GrantRecord is a locally issued delegation. The bearer token itself is
// never stored, only its SHA-256 hash.
type GrantRecord struct {
	ID               string
	TokenHash        string
	ClientID         string
	InlineUserID     int64
	Scope            string
	SpaceIDs         []int64
	AllowDMs         bool
	AllowHomeThreads bool
	InlineToken      string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	RevokedAt        *time.Time
}

// Active reports whether the grant is unrevoked and unexpired at now.
func (g *GrantRecord) Active(now time.Time) bool {
	return g.RevokedAt == nil && now.Before(g.ExpiresAt)
}

// SendOutcome is the result of a send-style tool invocation.
type SendOutcome string

const (
	SendSuccess SendOutcome = "success"
	SendFailure SendOutcome = "failure"
)

// SendAuditRow is one persisted audit record. It deliberately has no column
// capable of holding message text or credentials.
type SendAuditRow struct {
	ID           string
	Outcome      SendOutcome
	GrantID      string
	InlineUserID int64
	ChatID       *int64
	SpaceID      *int64
	MessageID    *int64
	Timestamp    time.Time
}

// SendAuditFilter specifies filtering options for listing audit rows.
type SendAuditFilter struct {
	GrantID *string
	Outcome *SendOutcome
	Since   *time.Time
	Limit   int // default 100, max 1000
}

// GrantStore persists locally issued grants.
type GrantStore interface {
	CreateGrant(ctx context.Context, g *GrantRecord) error
	GetGrantByTokenHash(ctx context.Context, tokenHash string) (*GrantRecord, error)
	RevokeGrant(ctx context.Context, grantID string) error
	ListGrants(ctx context.Context) ([]GrantRecord, error)
}

// SendAuditStore persists send audit rows.
type SendAuditStore interface {
	AppendSendAudit(ctx context.Context, row *SendAuditRow) error
	ListSendAudit(ctx context.Context, f SendAuditFilter) ([]SendAuditRow, error)
}

// HashToken returns the hex SHA-256 digest used to index grants by bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
