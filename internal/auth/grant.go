// ABOUTME: Grant is the verified, scope-bearing delegation resolved from a bearer token
// ABOUTME: Carries the chat-side identity, allowed spaces and the downstream credential

package auth

import (
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Scopes used by the tool surface.
const (
	ScopeMessagesRead  = "messages:read"
	ScopeMessagesWrite = "messages:write"
	ScopeSpacesRead    = "spaces:read"
)

// Grant is immutable for the lifetime of a request. A fresh Grant is built
// from every successful introspection.
type Grant struct {
	ID               string
	ClientID         string
	InlineUserID     int64
	Scope            string
	AllowedSpaceIDs  []int64
	AllowDMs         bool
	AllowHomeThreads bool
	ExpiresAt        time.Time

	// InlineToken authenticates the gateway to the chat application on the
	// user's behalf. It is never logged or audited.
	InlineToken string
}

// Scopes returns the whitespace-delimited scope tokens of the grant.
func (g *Grant) Scopes() []string {
	return ParseScopes(g.Scope)
}

// HasScope reports whether the grant's own scope string contains scope.
func (g *Grant) HasScope(scope string) bool {
	return slices.Contains(g.Scopes(), scope)
}

// AllowsSpace reports whether spaceID is one of the grant's allowed spaces.
func (g *Grant) AllowsSpace(spaceID int64) bool {
	return slices.Contains(g.AllowedSpaceIDs, spaceID)
}

// LogValue keeps the downstream credential out of structured logs.
func (g *Grant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("grant_id", g.ID),
		slog.String("client_id", g.ClientID),
		slog.Int64("inline_user_id", g.InlineUserID),
		slog.String("scope", g.Scope),
	)
}

// ParseScopes splits a scope string into its distinct tokens, preserving order.
func ParseScopes(scope string) []string {
	fields := strings.Fields(scope)
	out := fields[:0]
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
