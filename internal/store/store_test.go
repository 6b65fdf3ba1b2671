// ABOUTME: Shared helpers and lifecycle tests for the SQLite store
// ABOUTME: Covers schema creation, reopen and close behaviour

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func int64Ptr(v int64) *int64 { return &v }

func TestNewSQLiteStore_CreatesParentDirectories(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "inline-mcp.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Ping())
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.CreateGrant(t.Context(), &GrantRecord{
		TokenHash:    HashToken("tok"),
		ClientID:     "client",
		InlineUserID: 7,
		Scope:        "messages:read",
		InlineToken:  "inline",
	}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	grants, err := s.ListGrants(t.Context())
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestHashToken(t *testing.T) {
	h := HashToken("secret-token")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("secret-token"))
	assert.NotEqual(t, h, HashToken("secret-token2"))
	assert.NotContains(t, h, "secret")
}
