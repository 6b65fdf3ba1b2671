// ABOUTME: Request-scoped authentication state carried through context.Context
// ABOUTME: Provides the resolved grant and the live effective scopes to tool handlers

package auth

import (
	"context"
	"slices"
)

type grantContextKey struct{}

type scopesContextKey struct{}

// WithGrant returns a new context with the resolved grant attached.
func WithGrant(ctx context.Context, g *Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, g)
}

// GrantFromContext retrieves the grant from the context, returning nil if not present.
func GrantFromContext(ctx context.Context) *Grant {
	g, _ := ctx.Value(grantContextKey{}).(*Grant)
	return g
}

// WithScopes attaches the scopes granted to the current request. They take
// precedence over the scope string of the session's grant.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesContextKey{}, slices.Clone(scopes))
}

// ScopesFromContext returns the live request scopes and whether any were attached.
func ScopesFromContext(ctx context.Context) ([]string, bool) {
	scopes, ok := ctx.Value(scopesContextKey{}).([]string)
	return scopes, ok
}

// ResolveEffectiveScopes returns the scopes of the current request: the live
// request scopes when the transport attached them, otherwise the grant's scope.
func ResolveEffectiveScopes(ctx context.Context, g *Grant) []string {
	if scopes, ok := ScopesFromContext(ctx); ok {
		return scopes
	}
	if g == nil {
		return nil
	}
	return g.Scopes()
}
