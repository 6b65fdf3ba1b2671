// Package auth resolves bearer tokens into grants for inline-mcp.
//
// # Bearer Extraction
//
// BearerFromRequest reads the Authorization header. The scheme match is
// case-insensitive and the token must be a single non-empty field. A missing
// or malformed header is an *AuthError carrying a WWW-Authenticate challenge.
//
// # Grant Resolution
//
// A Resolver asks an Introspector about the token and maps the returned
// object onto a Grant:
//
//   - HTTPIntrospector posts the token to an OAuth introspection endpoint,
//     authenticating with a short-lived HS256 client assertion.
//   - StoreIntrospector looks the token's SHA-256 hash up in the local
//     grants table.
//
// Inactive tokens, missing claims and upstream failures become *AuthError
// values with an OAuth error code and an HTTP status.
//
// # Grants and Scopes
//
// A Grant names the Inline user it acts for, the spaces it may touch, whether
// direct messages and home threads are allowed, and its scopes:
//
//	messages:read   list, search and read messages
//	messages:write  send messages, media and batches
//	spaces:read     accepted and advertised; no tool requires it yet
//
// The scopes of the current request travel in the context (WithScopes) and
// take precedence over the scope string stored with the session's grant.
//
// # Protected Resource Metadata
//
// MetadataHandler serves the document MCP clients fetch from
// ProtectedResourceMetadataPath to discover the authorization server.
package auth
