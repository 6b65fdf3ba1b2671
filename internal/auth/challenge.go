// ABOUTME: WWW-Authenticate Bearer challenge rendering for 401 and 403 responses
// ABOUTME: Names the required scope and points clients at the protected resource metadata

package auth

import (
	"strings"
)

// ProtectedResourceMetadataPath is where the resource metadata document is served.
const ProtectedResourceMetadataPath = "/.well-known/oauth-protected-resource"

// Challenge is a Bearer challenge as sent in WWW-Authenticate.
type Challenge struct {
	Error            string
	Description      string
	Scope            string
	ResourceMetadata string
}

// String renders the challenge header value. Empty parameters are omitted.
func (c Challenge) String() string {
	var params []string
	add := func(name, value string) {
		if value != "" {
			params = append(params, name+`="`+quoteEscape(value)+`"`)
		}
	}
	add("error", c.Error)
	add("error_description", c.Description)
	add("scope", c.Scope)
	add("resource_metadata", c.ResourceMetadata)

	if len(params) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(params, ", ")
}

// ChallengeFor builds the challenge for an auth error. publicURL is the
// externally visible base URL of the gateway.
func ChallengeFor(err *AuthError, publicURL string) Challenge {
	return Challenge{
		Error:            err.Code,
		Description:      err.Description,
		Scope:            ScopeMessagesRead,
		ResourceMetadata: ResourceMetadataURL(publicURL),
	}
}

// ResourceMetadataURL returns the absolute protected resource metadata URL.
func ResourceMetadataURL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + ProtectedResourceMetadataPath
}

// quoteEscape escapes a value for use inside an HTTP quoted-string.
func quoteEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			// control characters are not representable in a quoted-string
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
