package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inline-mcp/internal/config"
	"github.com/2389/inline-mcp/internal/store"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "inline-mcp.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "server:\n  http_addr: \"127.0.0.1:0\"\ndatabase:\n  path: \"" + dbPath + "\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))
	return cfgPath, dbPath
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("INLINE_MCP_CONFIG", "/etc/inline-mcp/env.yaml")
	assert.Equal(t, "/explicit.yaml", getConfigPath("/explicit.yaml"))
	assert.Equal(t, "/etc/inline-mcp/env.yaml", getConfigPath(""))

	t.Setenv("INLINE_MCP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Chdir(t.TempDir())
	assert.Equal(t, filepath.Join("/xdg", "inline-mcp", "config.yaml"), getConfigPath(""))

	require.NoError(t, os.WriteFile("config.yaml", []byte("{}"), 0600))
	assert.Equal(t, "config.yaml", getConfigPath(""))
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/health", healthURL(":8080"))
	assert.Equal(t, "http://10.0.0.1:9000/health", healthURL("10.0.0.1:9000"))
}

func TestIDList(t *testing.T) {
	var l idList
	require.NoError(t, l.Set("1, 2"))
	require.NoError(t, l.Set("3"))
	assert.Equal(t, idList{1, 2, 3}, l)
	assert.Equal(t, "1,2,3", l.String())

	assert.Error(t, l.Set("x"))
	assert.Error(t, l.Set("-4"))
}

func TestNewToken(t *testing.T) {
	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, tokenPrefix))
	assert.NotEqual(t, a, b)
}

func TestGrantLifecycle(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	err := runGrant(ctx, []string{"add", "--config", cfgPath, "--user", "5", "--inline-token", "bot", "--space", "42,43", "--allow-dms"}, &out)
	require.NoError(t, err)

	token := regexp.MustCompile(tokenPrefix + `[A-Za-z0-9_-]+`).FindString(out.String())
	require.NotEmpty(t, token, "output: %s", out.String())

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	rec, err := s.GetGrantByTokenHash(ctx, store.HashToken(token))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, int64(5), rec.InlineUserID)
	assert.Equal(t, []int64{42, 43}, rec.SpaceIDs)
	assert.True(t, rec.AllowDMs)
	assert.False(t, rec.AllowHomeThreads)
	assert.Equal(t, defaultGrantScope, rec.Scope)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), rec.ExpiresAt, time.Minute)

	out.Reset()
	require.NoError(t, runGrant(ctx, []string{"list", "--config", cfgPath}, &out))
	assert.Contains(t, out.String(), rec.ID)
	assert.Contains(t, out.String(), "active")

	out.Reset()
	require.NoError(t, runGrant(ctx, []string{"revoke", "--config", cfgPath, "--id", rec.ID}, &out))

	out.Reset()
	require.NoError(t, runGrant(ctx, []string{"list", "--config", cfgPath}, &out))
	assert.Contains(t, out.String(), "revoked")

	err = runGrant(ctx, []string{"revoke", "--config", cfgPath, "--id", "missing"}, &out)
	assert.ErrorContains(t, err, "not found")
}

func TestGrantAdd_Validation(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	ctx := context.Background()
	var out bytes.Buffer

	err := runGrant(ctx, []string{"add", "--config", cfgPath, "--inline-token", "bot"}, &out)
	assert.ErrorContains(t, err, "--user")

	err = runGrant(ctx, []string{"add", "--config", cfgPath, "--user", "5"}, &out)
	assert.ErrorContains(t, err, "--inline-token")

	err = runGrant(ctx, []string{"add", "--config", cfgPath, "--user", "5", "--inline-token", "bot", "--scope", "  "}, &out)
	assert.ErrorContains(t, err, "--scope")

	err = runGrant(ctx, []string{"bogus"}, &out)
	assert.ErrorContains(t, err, "unknown grant command")
}

func TestRunAudit(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runAudit(ctx, []string{"--config", cfgPath}, &out))
	assert.Contains(t, out.String(), "no audit records")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	chat := int64(7)
	require.NoError(t, s.AppendSendAudit(ctx, &store.SendAuditRow{
		Outcome:      store.SendFailure,
		GrantID:      "grant-1",
		InlineUserID: 5,
		ChatID:       &chat,
		Timestamp:    time.Now().UTC(),
	}))
	require.NoError(t, s.Close())

	out.Reset()
	require.NoError(t, runAudit(ctx, []string{"--config", cfgPath, "--outcome", "failure", "--since", "1h"}, &out))
	assert.Contains(t, out.String(), "grant-1")
	assert.Contains(t, out.String(), "failure")

	err = runAudit(ctx, []string{"--config", cfgPath, "--outcome", "maybe"}, &out)
	assert.ErrorContains(t, err, "invalid --outcome")
}

func TestWriteInitConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "data", "inline-mcp.db")

	// config path, http addr, public url, introspection url, db path, api base url, tailscale, level, format
	answers := strings.Join([]string{cfgPath, ":9090", "", "", dbPath, "", "no", "debug", "json"}, "\n") + "\n"
	var out bytes.Buffer
	require.NoError(t, writeInitConfig(bufio.NewReader(strings.NewReader(answers)), &out, cfgPath, dir))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, dbPath, cfg.Database.Path)
	assert.Equal(t, config.DefaultInlineAPIBaseURL, cfg.Inline.APIBaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 15*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Contains(t, out.String(), "grant add")

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)
	logger.Info("hidden")
	logger.With("component", "test").Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "value")

	buf.Reset()
	logger = setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("structured")
	assert.Contains(t, buf.String(), `"msg":"structured"`)

	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
