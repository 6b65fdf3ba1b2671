// Package session keeps the registry of live MCP sessions.
//
// A session is registered in two phases. Begin reserves a pending entry for
// the transport and its backend while the initialize handshake runs;
// Complete publishes it under a fresh id and Abort discards it. Close is
// idempotent and releases the transport before the backend.
//
// Sessions idle for longer than the configured timeout are closed by a
// background sweep. Stop ends the sweep and closes every remaining session.
package session
