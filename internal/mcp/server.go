// ABOUTME: Streamable HTTP endpoint for MCP clients acting on Inline users' behalf
// ABOUTME: Authenticates every request, binds sessions to grants and routes messages to transports

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
	"github.com/2389/inline-mcp/internal/session"
	"github.com/2389/inline-mcp/internal/tools"
)

// MaxRequestBodySize admits a 25 MiB file encoded as base64 plus the envelope.
const MaxRequestBodySize = 40 << 20

// MaxSessionIDLength bounds the session ids that are looked up at all.
const MaxSessionIDLength = 256

const (
	headerSessionID       = "Mcp-Session-Id"
	headerProtocolVersion = "Mcp-Protocol-Version"
)

// GrantResolver turns a bearer token into a grant or an *auth.AuthError.
type GrantResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Grant, error)
}

// ClientFactory builds the chat client backing one session.
type ClientFactory interface {
	NewClient(g *auth.Grant) (inline.Client, error)
}

// Config holds configuration for the MCP server.
type Config struct {
	Resolver   GrantResolver
	Factory    ClientFactory
	Dispatcher *tools.Dispatcher
	Sessions   *session.Manager[*Transport]
	PublicURL  string // externally visible base URL, used in auth challenges
	Logger     *slog.Logger
	Name       string
	Version    string
}

// Server implements the /mcp endpoint.
type Server struct {
	resolver   GrantResolver
	factory    ClientFactory
	dispatcher *tools.Dispatcher
	sessions   *session.Manager[*Transport]
	publicURL  string
	info       mcp.Implementation
	logger     *slog.Logger
	now        func() time.Time
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("grant resolver is required")
	}
	if cfg.Factory == nil {
		return nil, errors.New("client factory is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "inline-mcp"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		resolver:   cfg.Resolver,
		factory:    cfg.Factory,
		dispatcher: cfg.Dispatcher,
		sessions:   cfg.Sessions,
		publicURL:  cfg.PublicURL,
		info:       mcp.Implementation{Name: name, Version: version},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
}

// handleMCP is the single endpoint supporting POST and DELETE.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer("github.com/2389/inline-mcp/internal/mcp").Start(ctx, "mcp "+r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.request.method", r.Method)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic handling MCP request", "panic", rec, "method", r.Method)
			s.writeAuthError(w, r, auth.AsAuthError(errors.New("panic")))
		}
	}()

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	case http.MethodGet:
		// no server-initiated streams
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// authenticate resolves the request's bearer token. On failure the error
// response has already been written.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Grant, bool) {
	token, err := auth.BearerFromRequest(r)
	if err != nil {
		s.writeAuthError(w, r, auth.AsAuthError(err))
		return nil, false
	}
	grant, err := s.resolver.Resolve(r.Context(), token)
	if err != nil {
		ae := auth.AsAuthError(err)
		if ae.Status >= http.StatusInternalServerError {
			s.logger.Warn("grant resolution failed", "code", ae.Code, "error", err)
		}
		s.writeAuthError(w, r, ae)
		return nil, false
	}
	return grant, true
}

// lookupSession applies the reattachment rules for a request carrying id.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request, id string, grant *auth.Grant) (*session.Session[*Transport], bool) {
	var sess *session.Session[*Transport]
	if len(id) <= MaxSessionIDLength {
		sess = s.sessions.Get(id)
	}
	if sess == nil {
		s.writeAuthError(w, r, auth.NewError(auth.CodeUnknownSession, http.StatusNotFound, "session not found, re-initialize"))
		return nil, false
	}
	if sess.GrantID != grant.ID {
		s.logger.Warn("session used with a different grant", "session_id", sess.ID, "grant", grant)
		s.writeAuthError(w, r, auth.NewError(auth.CodeSessionGrantMismatch, http.StatusForbidden, "session belongs to a different grant"))
		return nil, false
	}
	return sess, true
}

// handleDelete terminates a session after the same checks as POST.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	grant, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess, ok := s.lookupSession(w, r, sessionID, grant)
	if !ok {
		return
	}
	s.sessions.Close(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes one JSON-RPC message.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	grant, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPC(w, errorResponse(nil, JSONRPCParseError, "failed to read request body"))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCStatus(w, http.StatusRequestEntityTooLarge, errorResponse(nil, JSONRPCInvalidRequest, "request body too large"))
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCStatus(w, http.StatusBadRequest, errorResponse(nil, JSONRPCParseError, "invalid JSON"))
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendJSONRPCStatus(w, http.StatusBadRequest, errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version"))
		return
	}

	sessionID := r.Header.Get(headerSessionID)
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("rpc.method", req.Method))
	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", req.IsNotification(),
		"session_id", sessionID,
	)

	if sessionID == "" {
		s.handleInitialize(w, r, grant, &req)
		return
	}

	if v := r.Header.Get(headerProtocolVersion); v != "" && !slices.Contains(supportedProtocolVersions, v) {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	sess, ok := s.lookupSession(w, r, sessionID, grant)
	if !ok {
		return
	}
	s.sessions.Touch(sess.ID, s.now())

	ctx := auth.WithGrant(r.Context(), grant)
	ctx = auth.WithScopes(ctx, grant.Scopes())
	resp, err := sess.Transport.Deliver(ctx, &req)
	if errors.Is(err, ErrTransportClosed) {
		s.writeAuthError(w, r, auth.NewError(auth.CodeUnknownSession, http.StatusNotFound, "session closed, re-initialize"))
		return
	}
	if err != nil {
		s.logger.Error("delivering MCP message", "session_id", sess.ID, "error", err)
		s.writeAuthError(w, r, auth.AsAuthError(err))
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.sendJSONRPC(w, resp)
}

// handleInitialize creates a session for an initialize request without a session id.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, grant *auth.Grant, req *JSONRPCRequest) {
	if req.Method != "initialize" || req.IsNotification() {
		s.sendJSONRPCStatus(w, http.StatusBadRequest, errorResponse(req.ID, JSONRPCInvalidRequest, "missing Mcp-Session-Id: send initialize first"))
		return
	}

	client, err := s.factory.NewClient(grant)
	if err != nil {
		if errors.Is(err, inline.ErrInvalidGrant) {
			s.logger.Warn("grant cannot back a chat client", "grant", grant)
			s.writeAuthError(w, r, auth.NewError(auth.CodeInvalidGrant, http.StatusForbidden, "grant cannot be used for the chat application"))
			return
		}
		s.logger.Error("building chat client", "error", err)
		s.writeAuthError(w, r, auth.AsAuthError(err))
		return
	}

	transport := newTransport(grant, client, s.dispatcher, s.info, s.logger.With("grant_id", grant.ID))
	pending := s.sessions.Begin(grant.ID, transport, client)

	ctx := auth.WithScopes(auth.WithGrant(r.Context(), grant), grant.Scopes())
	resp, err := transport.Deliver(ctx, req)
	if err != nil || resp == nil || resp.Error != nil {
		pending.Abort()
		if err != nil {
			s.writeAuthError(w, r, auth.AsAuthError(err))
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		s.sendJSONRPC(w, resp)
		return
	}

	sess, err := pending.Complete()
	if err != nil {
		s.logger.Warn("registering session", "error", err)
		s.writeAuthError(w, r, auth.AsAuthError(err))
		return
	}
	id := sess.ID
	transport.SetOnClose(func() { s.sessions.Close(id) })

	w.Header().Set(headerSessionID, id)
	s.sendJSONRPC(w, resp)
}

// writeAuthError writes the HTTP error for an authentication or session failure.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, ae *auth.AuthError) {
	if ae.Challenge() {
		base := s.publicURL
		if base == "" {
			base = auth.BaseURLFromRequest(r)
		}
		w.Header().Set("WWW-Authenticate", auth.ChallengeFor(ae, base).String())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	body := map[string]string{"error": ae.Code}
	if ae.Description != "" {
		body["error_description"] = ae.Description
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode error response", "error", err)
	}
}

// sendJSONRPC writes a JSON-RPC response with status 200.
func (s *Server) sendJSONRPC(w http.ResponseWriter, resp *JSONRPCResponse) {
	s.sendJSONRPCStatus(w, http.StatusOK, resp)
}

func (s *Server) sendJSONRPCStatus(w http.ResponseWriter, status int, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
