// ABOUTME: Tests for the Gateway orchestrator wiring and HTTP surface
// ABOUTME: Drives initialize and tools/call end to end against a fake Inline API and a real SQLite store

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/config"
	"github.com/2389/inline-mcp/internal/store"
)

const testToken = "local-grant-token"

// fakeInline is a minimal Inline Bot API answering getChat and sendMessage.
type fakeInline struct {
	mu      sync.Mutex
	methods []string
	texts   []string
}

func (f *fakeInline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/")
	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)

	f.mu.Lock()
	f.methods = append(f.methods, method)
	if text, ok := payload["text"].(string); ok {
		f.texts = append(f.texts, text)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getChat":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"chat":{"id":7,"title":"general","spaceId":42}}}`)
	case "sendMessage":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message":{"id":900,"chatId":7,"fromId":5,"date":1700000000,"out":true}}}`)
	default:
		_, _ = io.WriteString(w, `{"ok":false,"error":"METHOD_NOT_FOUND","description":"unknown method"}`)
	}
}

func (f *fakeInline) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig creates a config backed by a temp database holding one grant.
func testConfig(t *testing.T, inlineURL string) *config.Config {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "inline-mcp.db")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	err = s.CreateGrant(context.Background(), &store.GrantRecord{
		ID:           "grant-e2e",
		TokenHash:    store.HashToken(testToken),
		ClientID:     "test-client",
		InlineUserID: 5,
		Scope:        auth.ScopeMessagesRead + " " + auth.ScopeMessagesWrite,
		SpaceIDs:     []int64{42},
		InlineToken:  "bot-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to create grant: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		OAuth:    config.OAuthConfig{AuthorizationServers: []string{"https://auth.example.com"}},
		Database: config.DatabaseConfig{Path: dbPath},
		Inline:   config.InlineConfig{APIBaseURL: inlineURL, Timeout: 5 * time.Second},
		Sessions: config.SessionsConfig{IdleTimeout: time.Hour},
		Uploads:  config.UploadsConfig{MaxBytes: 1 << 20, FetchTimeout: time.Second},
	}
}

func newTestGateway(t *testing.T) (*Gateway, *fakeInline) {
	t.Helper()

	inline := &fakeInline{}
	api := httptest.NewServer(inline)
	t.Cleanup(api.Close)

	gw, err := New(testConfig(t, api.URL), testLogger(), Options{Version: "test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return gw, inline
}

// rpc posts one JSON-RPC message to /mcp and returns the recorder.
func rpc(t *testing.T, h http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGatewayNew(t *testing.T) {
	gw, _ := newTestGateway(t)
	defer gw.Shutdown(context.Background())

	if gw.store == nil {
		t.Fatal("store should be opened when database.path is set")
	}
	if gw.mcpServer == nil {
		t.Error("mcpServer should not be nil")
	}
	if gw.sessions.Len() != 0 {
		t.Errorf("expected no sessions, got %d", gw.sessions.Len())
	}
}

func TestGatewayNew_RequiresGrantSource(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Inline: config.InlineConfig{APIBaseURL: "https://api.inline.chat/v1"},
	}
	if _, err := New(cfg, testLogger(), Options{}); err == nil {
		t.Fatal("expected error without database or introspection URL")
	}
}

func TestGatewayNew_RemoteIntrospectionNeedsNoDatabase(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		OAuth: config.OAuthConfig{
			IntrospectionURL: "https://auth.example.com/introspect",
			ClientID:         "inline-mcp",
			SharedSecret:     "secret",
			Timeout:          time.Second,
		},
		Inline:   config.InlineConfig{APIBaseURL: "https://api.inline.chat/v1"},
		Sessions: config.SessionsConfig{IdleTimeout: time.Minute},
	}
	gw, err := New(cfg, testLogger(), Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.store != nil {
		t.Error("store should be nil without database.path")
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready without store: got %d, want 200", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	gw, _ := newTestGateway(t)
	defer gw.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: got %d", rec.Code)
	}
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status != "ok" || health.Version != "test" || health.Sessions != 0 {
		t.Errorf("unexpected health body: %+v", health)
	}

	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready: got %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestProtectedResourceMetadata(t *testing.T) {
	gw, _ := newTestGateway(t)
	defer gw.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, auth.ProtectedResourceMetadataPath, nil)
	req.Host = "mcp.internal:8080"
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metadata: got %d", rec.Code)
	}

	var md auth.ProtectedResourceMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &md); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if md.Resource != "http://mcp.internal:8080/mcp" {
		t.Errorf("resource = %q", md.Resource)
	}
	if len(md.AuthorizationServers) != 1 || md.AuthorizationServers[0] != "https://auth.example.com" {
		t.Errorf("authorization_servers = %v", md.AuthorizationServers)
	}
}

func TestMCPEndpoint_RejectsUnknownToken(t *testing.T) {
	gw, _ := newTestGateway(t)
	defer gw.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Authorization", "Bearer not-a-grant")
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("WWW-Authenticate"), "invalid_token") {
		t.Errorf("challenge = %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestMCPEndpoint_SendIsAudited(t *testing.T) {
	gw, inline := newTestGateway(t)
	defer gw.Shutdown(context.Background())
	h := gw.Handler()

	rec := rpc(t, h, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"1"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize: got %d, body %s", rec.Code, rec.Body.String())
	}
	sessionID := rec.Header().Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("initialize did not return a session id")
	}
	if gw.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", gw.sessions.Len())
	}

	rec = rpc(t, h, sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"messages.send","arguments":{"chatId":"7","text":"hello from the gateway"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tools/call: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding tools/call: %v", err)
	}
	if resp.Result.IsError || len(resp.Result.Content) == 0 {
		t.Fatalf("unexpected tool result: %s", rec.Body.String())
	}
	if !strings.Contains(resp.Result.Content[0].Text, `"messageId":"900"`) {
		t.Errorf("tool text = %q", resp.Result.Content[0].Text)
	}

	sent := inline.sent()
	if len(sent) != 1 || sent[0] != "hello from the gateway" {
		t.Errorf("inline received %v", sent)
	}

	rows, err := gw.store.ListSendAudit(context.Background(), store.SendAuditFilter{})
	if err != nil {
		t.Fatalf("ListSendAudit: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Outcome != store.SendSuccess || row.GrantID != "grant-e2e" || row.InlineUserID != 5 {
		t.Errorf("unexpected audit row: %+v", row)
	}
	if row.ChatID == nil || *row.ChatID != 7 || row.SpaceID == nil || *row.SpaceID != 42 {
		t.Errorf("audit row ids: chat=%v space=%v", row.ChatID, row.SpaceID)
	}
	if row.MessageID == nil || *row.MessageID != 900 {
		t.Errorf("audit message id = %v", row.MessageID)
	}

	del := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	del.Header.Set("Authorization", "Bearer "+testToken)
	del.Header.Set("Mcp-Session-Id", sessionID)
	delRec := httptest.NewRecorder()
	h.ServeHTTP(delRec, del)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", delRec.Code)
	}
	if gw.sessions.Len() != 0 {
		t.Errorf("sessions after delete = %d", gw.sessions.Len())
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	gw, _ := newTestGateway(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("gateway never answered: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(body, []byte(`"status":"ok"`)) {
		t.Errorf("health body = %s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/inline-mcp")
	if err != nil || dir != "/var/lib/inline-mcp" {
		t.Errorf("configured dir: got %q, %v", dir, err)
	}

	t.Setenv("HOME", "/home/tester")
	dir, err = resolveTailscaleStateDir("")
	if err != nil {
		t.Fatalf("default dir: %v", err)
	}
	if dir != filepath.Join("/home/tester", ".local", "share", "inline-mcp", "tailscale") {
		t.Errorf("default dir = %q", dir)
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err := resolveTailscaleAuthKey("")
	if err != nil || key != "tskey-env" {
		t.Errorf("env key: got %q, %v", key, err)
	}
	key, err = resolveTailscaleAuthKey("tskey-config")
	if err != nil || key != "tskey-config" {
		t.Errorf("configured key: got %q, %v", key, err)
	}
}
