// ABOUTME: Grant resolver validating introspection responses field by field
// ABOUTME: Any malformed field is treated as an inactive token so resolution fails closed

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Resolver turns bearer tokens into verified grants.
type Resolver struct {
	introspector Introspector
	logger       *slog.Logger
	now          func() time.Time
}

// NewResolver creates a Resolver backed by introspector.
func NewResolver(introspector Introspector, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		introspector: introspector,
		logger:       logger.With("component", "grant-resolver"),
		now:          time.Now,
	}
}

// Resolve introspects token and returns the grant it carries, or an *AuthError.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Grant, error) {
	raw, err := r.introspector.Introspect(ctx, token)
	if err != nil {
		return nil, r.introspectionError(err)
	}

	g, reason := parseGrant(raw, r.now())
	if reason != "" {
		r.logger.Debug("rejecting introspection response", "reason", reason)
		return nil, newAuthError(CodeInvalidToken, http.StatusUnauthorized, "the access token is invalid or expired", nil)
	}
	if g.InlineToken == "" {
		r.logger.Warn("active grant has no usable inline credential", "grant", g)
		return nil, newAuthError(CodeIntrospectionBadUser, http.StatusBadGateway, "grant has no usable inline credential", nil)
	}
	return g, nil
}

func (r *Resolver) introspectionError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrInactive):
		return newAuthError(CodeInvalidToken, http.StatusUnauthorized, "the access token is invalid or expired", err)
	case errors.Is(err, ErrMisconfigured):
		r.logger.Error("introspection misconfigured", "error", err)
		return newAuthError(CodeInternal, http.StatusInternalServerError, "internal error", err)
	case errors.Is(err, ErrUpstreamStatus):
		r.logger.Warn("introspection endpoint failed", "error", err)
		return newAuthError(CodeIntrospectionFailed, http.StatusBadGateway, "token introspection failed", err)
	case errors.Is(err, ErrInvalidResponse):
		r.logger.Warn("introspection response unparseable", "error", err)
		return newAuthError(CodeIntrospectionBadBody, http.StatusBadGateway, "token introspection returned an invalid response", err)
	default:
		r.logger.Warn("introspection endpoint unavailable", "error", err)
		return newAuthError(CodeIntrospectionDown, http.StatusBadGateway, "token introspection is unavailable", err)
	}
}

// parseGrant validates raw and builds a Grant. A non-empty reason means the
// response must be treated as inactive.
func parseGrant(raw map[string]any, now time.Time) (*Grant, string) {
	active, ok := raw["active"].(bool)
	if !ok || !active {
		return nil, "inactive"
	}

	g := &Grant{}
	if g.ID, ok = nonEmptyString(raw["grant_id"]); !ok {
		return nil, "grant_id"
	}
	if g.ClientID, ok = nonEmptyString(raw["client_id"]); !ok {
		return nil, "client_id"
	}

	scope, ok := raw["scope"].(string)
	if !ok || len(ParseScopes(scope)) == 0 {
		return nil, "scope"
	}
	g.Scope = strings.Join(ParseScopes(scope), " ")

	exp, ok := numericSeconds(raw["exp"])
	if !ok {
		return nil, "exp"
	}
	g.ExpiresAt = time.Unix(exp, 0)
	if !now.Before(g.ExpiresAt) {
		return nil, "expired"
	}

	if g.InlineUserID, ok = positiveDecimal(raw["inline_user_id"]); !ok {
		return nil, "inline_user_id"
	}

	if v, present := raw["space_ids"]; present && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, "space_ids"
		}
		for _, item := range list {
			id, ok := positiveDecimal(item)
			if !ok {
				return nil, "space_ids"
			}
			g.AllowedSpaceIDs = append(g.AllowedSpaceIDs, id)
		}
	}

	if g.AllowDMs, ok = optionalBool(raw, "allow_dms"); !ok {
		return nil, "allow_dms"
	}
	if g.AllowHomeThreads, ok = optionalBool(raw, "allow_home_threads"); !ok {
		return nil, "allow_home_threads"
	}

	if v, present := raw["inline_token"]; present && v != nil {
		tok, ok := v.(string)
		if !ok {
			return nil, "inline_token"
		}
		g.InlineToken = strings.TrimSpace(tok)
	}
	return g, ""
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// numericSeconds accepts a JSON number holding whole seconds that fit in an
// int64.
func numericSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return wholeSeconds(f)
	case float64:
		return wholeSeconds(n)
	default:
		return 0, false
	}
}

// wholeSeconds converts f when it is integral and within [-2^63, 2^63).
func wholeSeconds(f float64) (int64, bool) {
	if math.IsNaN(f) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// positiveDecimal accepts a decimal string encoding a positive 64-bit integer.
func positiveDecimal(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func optionalBool(raw map[string]any, key string) (bool, bool) {
	v, present := raw[key]
	if !present || v == nil {
		return false, true
	}
	b, ok := v.(bool)
	return b, ok
}
