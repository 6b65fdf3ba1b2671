// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on duplicate detection, copy semantics and audit ordering

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockStore_DuplicateGrantID(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	if err := m.CreateGrant(ctx, &GrantRecord{ID: "g1", TokenHash: HashToken("a")}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := m.CreateGrant(ctx, &GrantRecord{ID: "g1", TokenHash: HashToken("b")})
	if !errors.Is(err, ErrDuplicateGrant) {
		t.Errorf("expected ErrDuplicateGrant for duplicate id, got %v", err)
	}
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	spaces := []int64{1, 2}
	if err := m.CreateGrant(ctx, &GrantRecord{ID: "g1", TokenHash: HashToken("a"), SpaceIDs: spaces}); err != nil {
		t.Fatalf("CreateGrant failed: %v", err)
	}
	spaces[0] = 99

	got, err := m.GetGrantByTokenHash(ctx, HashToken("a"))
	if err != nil {
		t.Fatalf("GetGrantByTokenHash failed: %v", err)
	}
	if got.SpaceIDs[0] != 1 {
		t.Errorf("stored grant aliases caller slice: %v", got.SpaceIDs)
	}

	got.Scope = "mutated"
	again, _ := m.GetGrantByTokenHash(ctx, HashToken("a"))
	if again.Scope == "mutated" {
		t.Error("returned grant aliases stored grant")
	}
}

func TestMockStore_RevokeUnknown(t *testing.T) {
	m := NewMockStore()
	if err := m.RevokeGrant(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMockStore_RevokeKeepsFirstTimestamp(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	if err := m.CreateGrant(ctx, &GrantRecord{ID: "g1", TokenHash: HashToken("a"), ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("CreateGrant failed: %v", err)
	}

	if err := m.RevokeGrant(ctx, "g1"); err != nil {
		t.Fatalf("RevokeGrant failed: %v", err)
	}
	first, _ := m.GetGrantByTokenHash(ctx, HashToken("a"))
	if err := m.RevokeGrant(ctx, "g1"); err != nil {
		t.Fatalf("second RevokeGrant failed: %v", err)
	}
	second, _ := m.GetGrantByTokenHash(ctx, HashToken("a"))

	if first.RevokedAt == nil || !first.RevokedAt.Equal(*second.RevokedAt) {
		t.Errorf("revocation time changed: %v -> %v", first.RevokedAt, second.RevokedAt)
	}
	if second.Active(time.Now()) {
		t.Error("revoked grant reported active")
	}
}

func TestMockStore_AuditNewestFirstWithLimit(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		err := m.AppendSendAudit(ctx, &SendAuditRow{
			Outcome:      SendSuccess,
			GrantID:      "g1",
			InlineUserID: int64(i),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	rows, err := m.ListSendAudit(ctx, SendAuditFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListSendAudit failed: %v", err)
	}
	if len(rows) != 2 || rows[0].InlineUserID != 4 || rows[1].InlineUserID != 3 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestMockStore_AuditRejectsUnknownOutcome(t *testing.T) {
	m := NewMockStore()
	err := m.AppendSendAudit(context.Background(), &SendAuditRow{Outcome: "maybe", GrantID: "g1"})
	if err == nil {
		t.Error("expected error for unknown outcome")
	}
}

func TestMockStore_AppendErr(t *testing.T) {
	m := NewMockStore()
	m.AppendErr = errors.New("disk full")
	err := m.AppendSendAudit(context.Background(), &SendAuditRow{Outcome: SendSuccess, GrantID: "g1"})
	if err == nil || err.Error() != "disk full" {
		t.Errorf("expected injected error, got %v", err)
	}
}
