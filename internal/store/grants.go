// ABOUTME: Locally issued grants keyed by the SHA-256 hash of their bearer token
// ABOUTME: Backs local introspection for deployments without an external authorization server

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateGrant inserts a new grant. Generates ID and CreatedAt if not set.
func (s *SQLiteStore) CreateGrant(ctx context.Context, g *GrantRecord) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if g.TokenHash == "" {
		return fmt.Errorf("grant %s: token hash is required", g.ID)
	}

	spaces := g.SpaceIDs
	if spaces == nil {
		spaces = []int64{}
	}
	spacesJSON, err := json.Marshal(spaces)
	if err != nil {
		return fmt.Errorf("marshaling space ids: %w", err)
	}

	query := `
		INSERT INTO grants (grant_id, token_hash, client_id, inline_user_id, scope, space_ids_json,
			allow_dms, allow_home_threads, inline_token, expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = s.db.ExecContext(ctx, query,
		g.ID,
		g.TokenHash,
		g.ClientID,
		g.InlineUserID,
		g.Scope,
		string(spacesJSON),
		g.AllowDMs,
		g.AllowHomeThreads,
		g.InlineToken,
		g.ExpiresAt.UTC().Format(time.RFC3339),
		g.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateGrant
		}
		return fmt.Errorf("inserting grant: %w", err)
	}

	s.logger.Debug("created grant", "grant_id", g.ID, "client_id", g.ClientID)
	return nil
}

const grantColumns = `grant_id, token_hash, client_id, inline_user_id, scope, space_ids_json,
	allow_dms, allow_home_threads, inline_token, expires_at, created_at, revoked_at`

// GetGrantByTokenHash looks a grant up by the hash of its bearer token.
// Revoked and expired grants are returned; callers decide what is active.
func (s *SQLiteStore) GetGrantByTokenHash(ctx context.Context, tokenHash string) (*GrantRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM grants WHERE token_hash = ?`, tokenHash)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// RevokeGrant marks a grant revoked. Revoking twice keeps the first timestamp.
func (s *SQLiteStore) RevokeGrant(ctx context.Context, grantID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE grants SET revoked_at = COALESCE(revoked_at, ?) WHERE grant_id = ?`,
		time.Now().UTC().Format(time.RFC3339), grantID)
	if err != nil {
		return fmt.Errorf("revoking grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking revoked rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGrants returns every grant, newest first.
func (s *SQLiteStore) ListGrants(ctx context.Context) ([]GrantRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+grantColumns+` FROM grants ORDER BY created_at DESC, grant_id`)
	if err != nil {
		return nil, fmt.Errorf("querying grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	grants := []GrantRecord{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grants: %w", err)
	}
	return grants, nil
}

func scanGrant(scanner interface{ Scan(dest ...any) error }) (GrantRecord, error) {
	var g GrantRecord
	var spacesJSON, expiresStr, createdStr string
	var revokedStr sql.NullString

	if err := scanner.Scan(
		&g.ID,
		&g.TokenHash,
		&g.ClientID,
		&g.InlineUserID,
		&g.Scope,
		&spacesJSON,
		&g.AllowDMs,
		&g.AllowHomeThreads,
		&g.InlineToken,
		&expiresStr,
		&createdStr,
		&revokedStr,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return g, err
		}
		return g, fmt.Errorf("scanning grant: %w", err)
	}

	if err := json.Unmarshal([]byte(spacesJSON), &g.SpaceIDs); err != nil {
		return g, fmt.Errorf("unmarshaling space ids: %w", err)
	}

	var err error
	if g.ExpiresAt, err = time.Parse(time.RFC3339, expiresStr); err != nil {
		return g, fmt.Errorf("parsing expires_at: %w", err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return g, fmt.Errorf("parsing created_at: %w", err)
	}
	if revokedStr.Valid {
		t, err := time.Parse(time.RFC3339, revokedStr.String)
		if err != nil {
			return g, fmt.Errorf("parsing revoked_at: %w", err)
		}
		g.RevokedAt = &t
	}
	return g, nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
