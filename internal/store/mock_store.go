// ABOUTME: Mock grant and audit store implementation for testing
// ABOUTME: Allows tests in other packages to run without SQLite

package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory GrantStore and SendAuditStore for testing.
type MockStore struct {
	mu          sync.RWMutex
	grants      map[string]*GrantRecord // keyed by grant ID
	grantByHash map[string]string       // token hash -> grant ID
	audit       []SendAuditRow

	// AppendErr, when set, is returned by AppendSendAudit.
	AppendErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		grants:      make(map[string]*GrantRecord),
		grantByHash: make(map[string]string),
	}
}

// CreateGrant stores a copy of g.
func (m *MockStore) CreateGrant(ctx context.Context, g *GrantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if _, ok := m.grants[g.ID]; ok {
		return ErrDuplicateGrant
	}
	if _, ok := m.grantByHash[g.TokenHash]; ok {
		return ErrDuplicateGrant
	}

	cp := *g
	cp.SpaceIDs = slices.Clone(g.SpaceIDs)
	m.grants[cp.ID] = &cp
	m.grantByHash[cp.TokenHash] = cp.ID
	return nil
}

// GetGrantByTokenHash returns a copy of the grant with the given token hash.
func (m *MockStore) GetGrantByTokenHash(ctx context.Context, tokenHash string) (*GrantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.grantByHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.grants[id]
	return &cp, nil
}

// RevokeGrant marks the grant revoked.
func (m *MockStore) RevokeGrant(ctx context.Context, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[grantID]
	if !ok {
		return ErrNotFound
	}
	if g.RevokedAt == nil {
		now := time.Now().UTC()
		g.RevokedAt = &now
	}
	return nil
}

// ListGrants returns all grants, newest first.
func (m *MockStore) ListGrants(ctx context.Context) ([]GrantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]GrantRecord, 0, len(m.grants))
	for _, g := range m.grants {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AppendSendAudit records a copy of row.
func (m *MockStore) AppendSendAudit(ctx context.Context, row *SendAuditRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return m.AppendErr
	}
	if row.Outcome != SendSuccess && row.Outcome != SendFailure {
		return fmt.Errorf("invalid audit outcome %q", row.Outcome)
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, *row)
	return nil
}

// ListSendAudit returns rows matching the filter, newest first.
func (m *MockStore) ListSendAudit(ctx context.Context, f SendAuditFilter) ([]SendAuditRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []SendAuditRow{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		r := m.audit[i]
		if f.GrantID != nil && r.GrantID != *f.GrantID {
			continue
		}
		if f.Outcome != nil && r.Outcome != *f.Outcome {
			continue
		}
		if f.Since != nil && r.Timestamp.Before(*f.Since) {
			continue
		}
		out = append(out, r)
		if len(out) == normalizeAuditLimit(f.Limit) {
			break
		}
	}
	return out, nil
}

// Ensure MockStore implements both store interfaces.
var (
	_ GrantStore     = (*MockStore)(nil)
	_ SendAuditStore = (*MockStore)(nil)
)
