// ABOUTME: Typed authentication errors with stable machine-readable codes
// ABOUTME: Each code maps to exactly one HTTP status on the MCP endpoint

package auth

import (
	"errors"
	"net/http"
)

// Error codes surfaced to MCP clients. They are part of the wire contract.
const (
	CodeMissingAuthorization = "missing_authorization"
	CodeInvalidAuthorization = "invalid_authorization"
	CodeInvalidToken         = "invalid_token"
	CodeInvalidGrant         = "invalid_grant"
	CodeIntrospectionDown    = "oauth_introspection_unavailable"
	CodeIntrospectionFailed  = "oauth_introspection_failed"
	CodeIntrospectionBadBody = "oauth_introspection_invalid_response"
	CodeIntrospectionBadUser = "oauth_introspection_invalid_user"
	CodeInternal             = "mcp_internal_error"
	CodeSessionGrantMismatch = "session_grant_mismatch"
	CodeUnknownSession       = "unknown_session"
	CodeInsufficientScope    = "insufficient_scope"
	defaultDescription       = "authentication failed"
)

// Sentinel errors returned by Introspector implementations. The Resolver
// translates them into AuthError values.
var (
	ErrInactive        = errors.New("token inactive")
	ErrUnavailable     = errors.New("introspection endpoint unavailable")
	ErrUpstreamStatus  = errors.New("introspection endpoint returned unexpected status")
	ErrInvalidResponse = errors.New("introspection response is not a JSON object")
	ErrMisconfigured   = errors.New("introspection is not configured")
)

// AuthError is an authentication or authorization failure with a stable code.
type AuthError struct {
	Code        string
	Status      int
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// Challenge reports whether the response should carry a WWW-Authenticate header.
func (e *AuthError) Challenge() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// NewError builds an AuthError for failures detected outside this package,
// such as session ownership checks.
func NewError(code string, status int, description string) *AuthError {
	return newAuthError(code, status, description, nil)
}

func newAuthError(code string, status int, desc string, err error) *AuthError {
	if desc == "" {
		desc = defaultDescription
	}
	return &AuthError{Code: code, Status: status, Description: desc, Err: err}
}

// AsAuthError unwraps err into an AuthError. Anything that is not already an
// AuthError becomes an internal error so details never reach the client.
func AsAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return newAuthError(CodeInternal, http.StatusInternalServerError, "internal error", err)
}
