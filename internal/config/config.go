// ABOUTME: Configuration loading and parsing for inline-mcp
// ABOUTME: Reads YAML or TOML with ${VAR} expansion, then applies INLINE_MCP_* environment overrides

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INLINE_MCP_"

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr          = ":8080"
	DefaultInlineAPIBaseURL  = "https://api.inline.chat/v1"
	DefaultIntrospectTimeout = 10 * time.Second
	DefaultInlineTimeout     = 30 * time.Second
	DefaultIdleTimeout       = 15 * time.Minute
	DefaultUploadMaxBytes    = 25 << 20
	DefaultFetchTimeout      = 15 * time.Second
)

// Config represents the complete inline-mcp configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	OAuth     OAuthConfig     `yaml:"oauth" toml:"oauth" envPrefix:"OAUTH_"`
	Database  DatabaseConfig  `yaml:"database" toml:"database" envPrefix:"DATABASE_"`
	Inline    InlineConfig    `yaml:"inline" toml:"inline" envPrefix:"INLINE_"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions" envPrefix:"SESSIONS_"`
	Uploads   UploadsConfig   `yaml:"uploads" toml:"uploads" envPrefix:"UPLOADS_"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" envPrefix:"LOGGING_"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale" envPrefix:"TAILSCALE_"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
	// PublicURL is the externally visible base URL, used in auth challenges
	// and the protected resource metadata. Derived from requests when empty.
	PublicURL string `yaml:"public_url" toml:"public_url" env:"PUBLIC_URL"`
}

// OAuthConfig holds token introspection settings. When IntrospectionURL is
// empty, tokens are resolved against grants in the local database.
type OAuthConfig struct {
	IntrospectionURL     string   `yaml:"introspection_url" toml:"introspection_url" env:"INTROSPECTION_URL"`
	ClientID             string   `yaml:"client_id" toml:"client_id" env:"CLIENT_ID"`
	SharedSecret         string   `yaml:"shared_secret" toml:"shared_secret" env:"SHARED_SECRET"`
	AuthorizationServers []string `yaml:"authorization_servers" toml:"authorization_servers" env:"AUTHORIZATION_SERVERS" envSeparator:","`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
}

// Remote reports whether tokens are introspected by a remote server.
func (o OAuthConfig) Remote() bool {
	return o.IntrospectionURL != ""
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

// InlineConfig holds the chat API settings
type InlineConfig struct {
	APIBaseURL string `yaml:"api_base_url" toml:"api_base_url" env:"API_BASE_URL"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
}

// SessionsConfig holds MCP session settings
type SessionsConfig struct {
	IdleTimeout    time.Duration `yaml:"-" toml:"-"`
	IdleTimeoutRaw string        `yaml:"idle_timeout" toml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// UploadsConfig holds file upload limits
type UploadsConfig struct {
	MaxBytes int64 `yaml:"max_bytes" toml:"max_bytes" env:"MAX_BYTES"`
	// AllowRemote enables fetching uploads from public https URLs. On by default.
	AllowRemote bool `yaml:"allow_remote" toml:"allow_remote" env:"ALLOW_REMOTE"`

	FetchTimeout    time.Duration `yaml:"-" toml:"-"`
	FetchTimeoutRaw string        `yaml:"fetch_timeout" toml:"fetch_timeout" env:"FETCH_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" env:"HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"AUTH_KEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir" env:"STATE_DIR"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral" env:"EPHEMERAL"`
	HTTPS     bool   `yaml:"https" toml:"https" env:"HTTPS"`    // Serve HTTPS on :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel" env:"FUNNEL"` // Enable public Funnel (implies HTTPS)
}

// TelemetryConfig holds tracing configuration. Tracing is off when
// OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" toml:"service_name" env:"SERVICE_NAME"`
	Insecure     bool   `yaml:"insecure" toml:"insecure" env:"INSECURE"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// INLINE_MCP_* variables override individual fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// FromEnv builds a Config from INLINE_MCP_* variables alone.
func FromEnv() (*Config, error) {
	return finish(defaults())
}

// defaults seeds the fields whose zero value is meaningful, so files and
// the environment can still turn them off.
func defaults() *Config {
	return &Config{Uploads: UploadsConfig{AllowRemote: true}}
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.OAuth.Timeout == 0 {
		c.OAuth.Timeout = DefaultIntrospectTimeout
	}
	if c.Inline.APIBaseURL == "" {
		c.Inline.APIBaseURL = DefaultInlineAPIBaseURL
	}
	if c.Inline.Timeout == 0 {
		c.Inline.Timeout = DefaultInlineTimeout
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if c.Uploads.MaxBytes == 0 {
		c.Uploads.MaxBytes = DefaultUploadMaxBytes
	}
	if c.Uploads.FetchTimeout == 0 {
		c.Uploads.FetchTimeout = DefaultFetchTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "inline-mcp"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Server.PublicURL != "" {
		if err := requireAbsoluteURL("server.public_url", c.Server.PublicURL); err != nil {
			return err
		}
	}

	if c.OAuth.Remote() {
		if err := requireAbsoluteURL("oauth.introspection_url", c.OAuth.IntrospectionURL); err != nil {
			return err
		}
		if c.OAuth.ClientID == "" {
			return fmt.Errorf("oauth.client_id is required with oauth.introspection_url")
		}
		if c.OAuth.SharedSecret == "" {
			return fmt.Errorf("oauth.shared_secret is required with oauth.introspection_url")
		}
	} else if c.Database.Path == "" {
		return fmt.Errorf("database.path is required when oauth.introspection_url is not set")
	}

	if err := requireAbsoluteURL("inline.api_base_url", c.Inline.APIBaseURL); err != nil {
		return err
	}

	if c.Uploads.MaxBytes < 0 {
		return fmt.Errorf("uploads.max_bytes must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

func requireAbsoluteURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"oauth.timeout", cfg.OAuth.TimeoutRaw, &cfg.OAuth.Timeout},
		{"inline.timeout", cfg.Inline.TimeoutRaw, &cfg.Inline.Timeout},
		{"sessions.idle_timeout", cfg.Sessions.IdleTimeoutRaw, &cfg.Sessions.IdleTimeout},
		{"uploads.fetch_timeout", cfg.Uploads.FetchTimeoutRaw, &cfg.Uploads.FetchTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}
