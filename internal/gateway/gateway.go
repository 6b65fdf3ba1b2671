// ABOUTME: Gateway orchestrator wiring grant resolution, sessions, tools and the MCP endpoint
// ABOUTME: Owns the HTTP listener (TCP or tailnet), the session sweeper and the store lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/inline-mcp/internal/audit"
	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/batch"
	"github.com/2389/inline-mcp/internal/config"
	"github.com/2389/inline-mcp/internal/inline"
	"github.com/2389/inline-mcp/internal/mcp"
	"github.com/2389/inline-mcp/internal/session"
	"github.com/2389/inline-mcp/internal/store"
	"github.com/2389/inline-mcp/internal/tools"
	"github.com/2389/inline-mcp/internal/upload"
)

// shutdownTimeout bounds graceful shutdown once the run context ends.
const shutdownTimeout = 5 * time.Second

// Gateway orchestrates the inline-mcp server components.
type Gateway struct {
	config      *config.Config
	store       *store.SQLiteStore // nil when tokens are introspected remotely without a database
	sessions    *session.Manager[*mcp.Transport]
	mcpServer   *mcp.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
	version     string
	startedAt   time.Time

	// publicURL is the externally visible base URL, empty when derived per request
	publicURL string
}

// Options carries build information into the gateway.
type Options struct {
	Version string
}

// initStore opens the SQLite database when one is configured.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newIntrospector picks remote introspection when configured, else local grants.
func newIntrospector(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) (auth.Introspector, error) {
	if cfg.OAuth.Remote() {
		logger.Info("resolving tokens via remote introspection", "url", cfg.OAuth.IntrospectionURL, "client_id", cfg.OAuth.ClientID)
		return auth.NewHTTPIntrospector(cfg.OAuth.IntrospectionURL, cfg.OAuth.ClientID, cfg.OAuth.SharedSecret, cfg.OAuth.Timeout), nil
	}
	if s == nil {
		return nil, errors.New("local grant resolution needs database.path")
	}
	logger.Info("resolving tokens against local grants", "database", cfg.Database.Path)
	return auth.NewStoreIntrospector(s), nil
}

// newAuditLogger writes every record to the log and, with a database, to the send audit table.
func newAuditLogger(s *store.SQLiteStore, logger *slog.Logger) *audit.Logger {
	sinks := []audit.Sink{audit.NewSlogSink(logger.With("component", "audit"))}
	if s != nil {
		sinks = append(sinks, audit.NewStoreSink(s))
	}
	return audit.NewLogger(logger, sinks...)
}

// newUploadResolver builds the upload pipeline; remote fetching is optional.
func newUploadResolver(cfg *config.Config, logger *slog.Logger) *upload.Resolver {
	if !cfg.Uploads.AllowRemote {
		logger.Info("remote URL uploads disabled")
		return upload.NewResolver(nil)
	}
	fetcher := upload.NewFetcher(logger.With("component", "upload-fetcher"))
	fetcher.MaxBytes = cfg.Uploads.MaxBytes
	fetcher.Timeout = cfg.Uploads.FetchTimeout
	return upload.NewResolver(fetcher)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		if s != nil {
			_ = s.Close()
		}
	}

	introspector, err := newIntrospector(cfg, s, logger)
	if err != nil {
		closeStore()
		return nil, err
	}
	resolver := auth.NewResolver(introspector, logger)

	toolset := &tools.Toolset{
		Uploads: newUploadResolver(cfg, logger),
		Batch:   batch.NewExecutor(logger.With("component", "batch")),
	}
	registry, err := toolset.NewRegistry()
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	dispatcher := tools.NewDispatcher(registry, newAuditLogger(s, logger), logger)

	factory := &inline.Factory{
		BaseURL:    cfg.Inline.APIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Inline.Timeout},
		Logger:     logger.With("component", "inline"),
	}

	sessions := session.NewManager[*mcp.Transport](cfg.Sessions.IdleTimeout, logger.With("component", "sessions"))

	gw := &Gateway{
		config:    cfg,
		store:     s,
		sessions:  sessions,
		logger:    logger.With("component", "gateway"),
		version:   opts.Version,
		startedAt: time.Now(),
		publicURL: strings.TrimRight(cfg.Server.PublicURL, "/"),
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Resolver:   resolver,
		Factory:    factory,
		Dispatcher: dispatcher,
		Sessions:   sessions,
		PublicURL:  gw.publicURL,
		Logger:     logger.With("component", "mcp"),
		Version:    opts.Version,
	})
	if err != nil {
		sessions.Stop()
		closeStore()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	gw.mcpServer = mcpServer

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway configured",
		"tools", len(registry.Tools()),
		"session_idle_timeout", cfg.Sessions.IdleTimeout,
		"upload_limit", humanize.IBytes(uint64(cfg.Uploads.MaxBytes)),
	)
	return gw, nil
}

// routes builds the HTTP mux.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.Handle(auth.ProtectedResourceMetadataPath, auth.MetadataHandler(g.publicURL, g.config.OAuth.AuthorizationServers))
	g.mcpServer.RegisterRoutes(mux)
	return mux
}

// Handler exposes the gateway's HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until ctx is canceled or the server
// fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, g.Shutdown(shutdownCtx))
	}
	return g.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		// the run context is already done, so shutdown gets a fresh one
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return g.Shutdown(shutdownCtx)
	})

	return grp.Wait()
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "inline-mcp", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens on it.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
	if dnsName != "" && g.publicURL == "" {
		g.logger.Info("MCP endpoint reachable on the tailnet", "url", "https://"+dnsName+"/mcp")
	}
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, closes every session and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.sessions.Len())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.sessions.Stop()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	return errors.Join(errs...)
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// handleHealth reports liveness and the number of live sessions.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Version:  g.version,
		Sessions: g.sessions.Len(),
		Uptime:   humanize.RelTime(g.startedAt, time.Now(), "", ""),
	})
}

// handleReady returns 200 OK once the database, if any, answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.store != nil {
		if err := g.store.Ping(); err != nil {
			g.logger.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Len())
}
