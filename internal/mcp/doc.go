// Package mcp serves the Model Context Protocol endpoint of the gateway.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over the Streamable HTTP transport, one
// message per POST to /mcp. Server-initiated streams are not offered, so GET
// answers 405.
//
// # Authentication
//
// Every request carries an OAuth access token:
//
//	Authorization: Bearer <token>
//
// The token is resolved into an auth.Grant on each request, so revocation and
// scope changes take effect on the next message. Failures answer with a JSON
// body {"error", "error_description"} and, for 401 and 403, a Bearer
// WWW-Authenticate challenge pointing at the protected resource metadata.
//
// # Sessions
//
// An initialize request without an Mcp-Session-Id header creates a session
// bound to the grant id of its token. The id is returned in the
// Mcp-Session-Id response header and must accompany every later message.
// A session may only be used by tokens carrying the same grant id. DELETE
// ends a session; idle sessions are swept by the session manager.
//
// # Tools
//
// tools/list and tools/call are served by the tools.Dispatcher. Tool
// failures are reported in the tool result with isError set, never as
// JSON-RPC errors, except for unknown tool names.
package mcp
