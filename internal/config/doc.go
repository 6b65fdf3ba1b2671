// Package config handles configuration loading for inline-mcp.
//
// # Configuration File
//
// Configuration is read from a YAML file, or a TOML file when the path ends
// in .toml. Default locations (in order):
//
//  1. Path given with --config
//  2. Path from INLINE_MCP_CONFIG environment variable
//  3. ./config.yaml (current directory)
//  4. ~/.config/inline-mcp/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	oauth:
//	  shared_secret: "${INLINE_MCP_SHARED_SECRET}"
//
// After the file is decoded, INLINE_MCP_<SECTION>_<FIELD> variables override
// single fields, for example INLINE_MCP_SERVER_HTTP_ADDR or
// INLINE_MCP_OAUTH_AUTHORIZATION_SERVERS (comma separated).
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  idle_timeout: "15m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":8080"
//	  public_url: "https://mcp.example.com"
//
//	oauth:
//	  introspection_url: "https://auth.example.com/oauth/introspect"
//	  client_id: "inline-mcp"
//	  shared_secret: "${INLINE_MCP_SHARED_SECRET}"
//	  timeout: "10s"
//	  authorization_servers: ["https://auth.example.com"]
//
//	database:
//	  path: "./inline-mcp.db"   # local grants and the send audit table
//
//	inline:
//	  api_base_url: "https://api.inline.chat/v1"
//
//	uploads:
//	  max_bytes: 26214400
//	  fetch_timeout: "15s"
//	  allow_remote: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	tailscale:
//	  enabled: false
//	  hostname: "inline-mcp"
//
//	telemetry:
//	  otlp_endpoint: "localhost:4318"
//
// Without oauth.introspection_url, bearer tokens are resolved against grants
// minted into the local database with the grant subcommand.
package config
