// ABOUTME: Per-session JSON-RPC transport bound to one grant and one chat client
// ABOUTME: Serializes delivery and answers initialize, ping, tools/list and tools/call

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
	"github.com/2389/inline-mcp/internal/tools"
)

// ErrTransportClosed is returned when delivering to a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// supportedProtocolVersions lists the versions a client may negotiate, newest first.
var supportedProtocolVersions = []string{
	mcp.LATEST_PROTOCOL_VERSION,
	"2025-03-26",
	"2024-11-05",
}

const serverInstructions = "Tools act in Inline on behalf of the user who granted access. " +
	"Identifiers are decimal strings. Sends are audited without their content."

// Transport delivers JSON-RPC messages for one session.
type Transport struct {
	deliverMu sync.Mutex

	stateMu  sync.Mutex
	closed   bool
	onClose  func()
	protocol string

	grant      *auth.Grant
	client     inline.Client
	dispatcher *tools.Dispatcher
	info       mcp.Implementation
	logger     *slog.Logger
}

func newTransport(grant *auth.Grant, client inline.Client, dispatcher *tools.Dispatcher, info mcp.Implementation, logger *slog.Logger) *Transport {
	return &Transport{
		grant:      grant,
		client:     client,
		dispatcher: dispatcher,
		info:       info,
		logger:     logger,
	}
}

// SetOnClose registers fn to run once when the transport closes.
func (t *Transport) SetOnClose(fn func()) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.onClose = fn
}

// ProtocolVersion returns the negotiated protocol version.
func (t *Transport) ProtocolVersion() string {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.protocol
}

// Close marks the transport closed and runs the close callback. It is
// idempotent and does not close the chat client.
func (t *Transport) Close() error {
	t.stateMu.Lock()
	if t.closed {
		t.stateMu.Unlock()
		return nil
	}
	t.closed = true
	fn := t.onClose
	t.onClose = nil
	t.stateMu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.closed
}

// Deliver handles one message. A nil response means the message was a
// notification and nothing is sent back.
func (t *Transport) Deliver(ctx context.Context, req *JSONRPCRequest) (*JSONRPCResponse, error) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			t.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return t.initialize(req), nil
	case "ping":
		return resultResponse(req.ID, map[string]any{}), nil
	case "tools/list":
		return t.toolsList(req), nil
	case "tools/call":
		return t.toolsCall(ctx, req), nil
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found"), nil
	}
}

func (t *Transport) initialize(req *JSONRPCRequest) *JSONRPCResponse {
	t.stateMu.Lock()
	already := t.protocol != ""
	t.stateMu.Unlock()
	if already {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "session already initialized")
	}

	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid initialize params")
		}
	}

	version := mcp.LATEST_PROTOCOL_VERSION
	if slices.Contains(supportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	t.stateMu.Lock()
	t.protocol = version
	t.stateMu.Unlock()

	t.logger.Info("mcp client initialized",
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: version,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      t.info,
		Instructions:    serverInstructions,
	})
}

func (t *Transport) toolsList(req *JSONRPCRequest) *JSONRPCResponse {
	defs, err := t.dispatcher.Registry().Definitions()
	if err != nil {
		t.logger.Error("building tool list", "error", err)
		return errorResponse(req.ID, JSONRPCInternalError, "internal error")
	}
	return resultResponse(req.ID, mcp.ListToolsResult{Tools: defs})
}

func (t *Transport) toolsCall(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required")
	}

	grant := auth.GrantFromContext(ctx)
	if grant == nil {
		grant = t.grant
	}

	result, err := t.dispatcher.Call(ctx, grant, t.client, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrUnknownTool) {
			return errorResponse(req.ID, JSONRPCInvalidParams, "tool not found")
		}
		t.logger.Error("tool dispatch failed", "tool", params.Name, "error", err)
		return errorResponse(req.ID, JSONRPCInternalError, "internal error")
	}
	return resultResponse(req.ID, result)
}
