// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// Two narrow interfaces are implemented by a single SQLiteStore:
//
//   - GrantStore: locally issued grants, used by local token introspection
//   - SendAuditStore: the fixed-shape audit trail of send-style tool calls
//
// # Grants
//
// Bearer tokens are never stored. A grant row is keyed by the hex SHA-256
// of its token (see HashToken); the chat-side credential the grant
// delegates is stored alongside so introspection can return it.
//
// # Send audit
//
// The send_audit table has no column able to hold message text, file
// contents or credentials. Each row records an outcome, the grant and user,
// and the optional chat, space and message ids.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/inline-mcp/inline-mcp.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.AppendSendAudit(ctx, &store.SendAuditRow{
//	    Outcome:      store.SendSuccess,
//	    GrantID:      grant.ID,
//	    InlineUserID: grant.InlineUserID,
//	})
package store
