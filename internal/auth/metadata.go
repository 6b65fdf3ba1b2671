// ABOUTME: OAuth protected resource metadata document served to MCP clients
// ABOUTME: Tells clients which authorization server issues tokens for this gateway

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ProtectedResourceMetadata is the document served at ProtectedResourceMetadataPath.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// MetadataHandler serves the protected resource metadata. When publicURL is
// empty the base URL is derived from the request.
func MetadataHandler(publicURL string, authorizationServers []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		base := strings.TrimRight(publicURL, "/")
		if base == "" {
			base = BaseURLFromRequest(r)
		}
		servers := authorizationServers
		if servers == nil {
			servers = []string{}
		}
		metadata := ProtectedResourceMetadata{
			Resource:               base + "/mcp",
			AuthorizationServers:   servers,
			ScopesSupported:        []string{ScopeMessagesRead, ScopeMessagesWrite, ScopeSpacesRead},
			BearerMethodsSupported: []string{"header"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metadata)
	})
}

// BaseURLFromRequest reconstructs the externally visible base URL of r.
func BaseURLFromRequest(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}
