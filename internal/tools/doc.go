// Package tools defines the Inline tool surface exposed over MCP and the
// dispatcher that runs it.
//
// # Tools
//
//	conversations.list     messages:read   chats visible to the grant
//	conversations.get      messages:read   one chat by chatId or userId
//	conversations.create   messages:write  a new chat in an allowed space
//	messages.list          messages:read   history of one chat
//	messages.search        messages:read   text search with an optional time range
//	messages.unread        messages:read   unread messages grouped by chat
//	messages.mark_read     messages:write  mark a chat read up to a message
//	messages.send          messages:write  one text message
//	messages.send_media    messages:write  an uploaded file with an optional caption
//	messages.send_batch    messages:write  up to 20 sends executed in order
//	files.upload           messages:write  upload bytes for later sends
//
// # Dispatch
//
// Dispatcher.Call validates arguments against the tool's JSON schema, checks
// the request's effective scopes, runs the handler and wraps its value as
// both text and structured content. Failures become error results whose text
// is a JSON object with a stable error code; only an unknown tool name is
// returned as a Go error.
//
// Read-only tools only reach the listing and lookup methods of inline.Client.
// Anything that changes chat state is mutating and needs messages:write.
// Send-style tools accept replyToMessageId, parseMarkdown and sendMode, and
// each send_batch item carries its own copy of them.
//
// Send-style tools are audited: each call yields exactly one audit record,
// success or failure, carrying the chat, space and message ids that were
// known when it finished.
//
// # Identifiers
//
// Inline ids are 64-bit and cross the wire as decimal strings. Arguments
// accept strings or whole JSON numbers (see ParseID).
package tools
