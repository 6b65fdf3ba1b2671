// ABOUTME: Bearer credential extraction from the HTTP Authorization header
// ABOUTME: Rejects missing headers, other schemes and malformed tokens with typed errors

package auth

import (
	"net/http"
	"strings"
)

// ExtractBearer returns the bearer token carried in an Authorization header value.
// The scheme is matched case-insensitively; the token must be a single non-empty word.
func ExtractBearer(authHeader string) (string, error) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", newAuthError(CodeMissingAuthorization, http.StatusUnauthorized, "missing authorization header", nil)
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", newAuthError(CodeInvalidAuthorization, http.StatusUnauthorized, "invalid authorization header format", nil)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", newAuthError(CodeInvalidAuthorization, http.StatusUnauthorized, "empty token", nil)
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return "", newAuthError(CodeInvalidAuthorization, http.StatusUnauthorized, "token contains whitespace", nil)
	}
	return token, nil
}

// BearerFromRequest is ExtractBearer applied to r's Authorization header.
func BearerFromRequest(r *http.Request) (string, error) {
	return ExtractBearer(r.Header.Get("Authorization"))
}
