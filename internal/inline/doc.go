// Package inline is the gateway's view of the Inline chat application.
//
// Client is the capability set the MCP tools work against. APIClient
// implements it over the Inline HTTP API: every method is a POST to
// <base>/<method> carrying the user's token, answered with
//
//	{"ok": true, "result": {...}}
//	{"ok": false, "error": "CHAT_NOT_FOUND", "description": "..."}
//
// Scoped wraps any Client and enforces the chat visibility of a grant
// (allowed spaces, direct messages, home threads). Factory builds the
// Scoped(APIClient) pair that backs each MCP session, so tool handlers never
// re-check visibility themselves.
package inline
