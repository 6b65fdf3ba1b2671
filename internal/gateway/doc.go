// Package gateway orchestrates the inline-mcp server components.
//
// # Overview
//
// The gateway package is the central coordinator of the inline-mcp server.
// It builds the grant resolver, the tool registry and dispatcher, the Inline
// client factory, the session manager and the MCP endpoint, then serves them
// over a single HTTP listener.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config      *config.Config
//	    store       *store.SQLiteStore
//	    sessions    *session.Manager[*mcp.Transport]
//	    mcpServer   *mcp.Server
//	    httpServer  *http.Server
//	    tsnetServer *tsnet.Server
//	    // ...
//	}
//
// # HTTP Routes
//
//	GET  /health                                   liveness, version and session count
//	GET  /health/ready                             database reachability
//	GET  /.well-known/oauth-protected-resource     resource metadata for clients
//	POST /mcp                                      JSON-RPC messages
//	DELETE /mcp                                    explicit session termination
//
// # Grant Resolution
//
// With oauth.introspection_url configured, bearer tokens are introspected
// remotely. Otherwise they are looked up by hash in the local grants table.
//
// # Listeners
//
// The gateway listens on server.http_addr, or on a tailnet node when
// tailscale.enabled is set. Funnel and HTTPS modes follow the tailscale
// section of the configuration.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger, gateway.Options{Version: version})
//	if err != nil { ... }
//	if err := gw.Run(ctx); err != nil { ... }
//
// Run blocks until ctx is cancelled, then shuts down the HTTP server, closes
// every live session and closes the store.
package gateway
