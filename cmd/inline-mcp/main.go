// ABOUTME: Entry point for the inline-mcp gateway
// ABOUTME: Serves the MCP endpoint and manages local grants and the send audit table

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/inline-mcp/internal/config"
	"github.com/2389/inline-mcp/internal/gateway"
	"github.com/2389/inline-mcp/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _       _ _
 (_)_ __ | (_)_ __   ___       _ __ ___   ___ _ __
 | | '_ \| | | '_ \ / _ \_____| '_ ' _ \ / __| '_ \
 | | | | | | | | | |  __/_____| | | | | | (__| |_) |
 |_|_| |_|_|_|_| |_|\___|     |_| |_| |_|\___| .__/
                                             |_|
`

// getConfigPath returns the path to the config file.
// Priority: --config flag > INLINE_MCP_CONFIG > ./config.yaml > XDG_CONFIG_HOME/inline-mcp/config.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("INLINE_MCP_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "inline-mcp", "config.yaml")
}

// getDataPath returns the path to the inline-mcp data directory.
// Priority: XDG_DATA_HOME/inline-mcp > ~/.local/share/inline-mcp
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "inline-mcp")
}

func usage() {
	fmt.Println("Usage: inline-mcp <command> [--config PATH]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                  Start the MCP gateway")
	fmt.Println("  init                   Create a new config file interactively")
	fmt.Println("  health                 Check gateway health")
	fmt.Println("  grant add|list|revoke  Manage locally issued grants")
	fmt.Println("  audit                  Show recent send audit records")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "health":
		err = runHealth(ctx, args)
	case "grant":
		err = runGrant(ctx, args, os.Stdout)
	case "audit":
		err = runAudit(ctx, args, os.Stdout)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the --config flag out of args and loads the file it names.
func loadConfig(name string, args []string, register func(*flag.FlagSet)) (*config.Config, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configFlag := fs.String("config", "", "path to config file")
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() > 0 {
		return nil, "", fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context, args []string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig("serve", args, nil)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	if cfg.OAuth.Remote() {
		fmt.Printf("Grants:    %s\n", cfg.OAuth.IntrospectionURL)
	} else {
		fmt.Printf("Grants:    %s (local)\n", cfg.Database.Path)
	}
	green.Print("    ▶ ")
	fmt.Printf("Inline:    %s\n", cfg.Inline.APIBaseURL)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		green.Print("    ▶ ")
		fmt.Printf("Tracing:   %s\n", cfg.Telemetry.OTLPEndpoint)
	}
	fmt.Println()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	logger.Info("starting inline-mcp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"public_url", cfg.Server.PublicURL,
	)

	gw, err := gateway.New(cfg, logger, gateway.Options{Version: version})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{out: out, mu: &sync.Mutex{}, level: level})
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	out    io.Writer
	mu     *sync.Mutex // shared by handlers derived through WithAttrs
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{out: h.out, mu: h.mu, level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{out: h.out, mu: h.mu, level: h.level, attrs: h.attrs, groups: newGroups}
}

// healthURL turns the configured listen address into a local health URL.
func healthURL(httpAddr string) string {
	host := httpAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return fmt.Sprintf("http://%s/health", host)
}

func runHealth(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig("health", args, nil)
	if err != nil {
		return err
	}
	if cfg.Server.HTTPAddr == "" {
		return errors.New("health check needs server.http_addr")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg.Server.HTTPAddr), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configFlag := fs.String("config", "", "path to write the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return writeInitConfig(bufio.NewReader(os.Stdin), os.Stdout, getConfigPath(*configFlag), getDataPath())
}

func writeInitConfig(reader *bufio.Reader, out io.Writer, defaultConfigPath, defaultDataPath string) error {
	fmt.Fprintln(out, "inline-mcp configuration setup")
	fmt.Fprintln(out, "==============================")
	fmt.Fprintln(out)

	defaultDbPath := filepath.Join(defaultDataPath, "inline-mcp.db")

	outputFile := prompt(reader, out, "Config file path", defaultConfigPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	httpAddr := prompt(reader, out, "HTTP address", "localhost:8080")
	publicURL := prompt(reader, out, "Public URL (leave empty to derive from requests)", "")

	fmt.Fprintln(out, "\n--- Grant Resolution ---")
	introspectionURL := prompt(reader, out, "Introspection URL (leave empty for local grants)", "")
	var clientID, authServer string
	if introspectionURL != "" {
		clientID = prompt(reader, out, "Introspection client id", "inline-mcp")
		authServer = prompt(reader, out, "Authorization server URL", "")
	}
	dbPath := prompt(reader, out, "SQLite database path", defaultDbPath)

	fmt.Fprintln(out, "\n--- Inline ---")
	apiBaseURL := prompt(reader, out, "Inline API base URL", config.DefaultInlineAPIBaseURL)

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, out, "Enable Tailscale?", "no"))
	var tsHostname string
	var tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, out, "Tailscale hostname", "inline-mcp")
		tsFunnel = yes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	logLevel := prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, out, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# inline-mcp configuration\n")
	cfg.WriteString("# Generated by inline-mcp init\n\n")

	cfg.WriteString("server:\n")
	if !tailscaleEnabled {
		fmt.Fprintf(&cfg, "  http_addr: %q\n", httpAddr)
	}
	if publicURL != "" {
		fmt.Fprintf(&cfg, "  public_url: %q\n", publicURL)
	}
	cfg.WriteString("\n")

	if introspectionURL != "" {
		cfg.WriteString("oauth:\n")
		fmt.Fprintf(&cfg, "  introspection_url: %q\n", introspectionURL)
		fmt.Fprintf(&cfg, "  client_id: %q\n", clientID)
		cfg.WriteString("  shared_secret: \"${INLINE_MCP_SHARED_SECRET}\"\n")
		if authServer != "" {
			fmt.Fprintf(&cfg, "  authorization_servers: [%q]\n", authServer)
		}
		cfg.WriteString("\n")
	}

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("inline:\n")
	fmt.Fprintf(&cfg, "  api_base_url: %q\n\n", apiBaseURL)

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  idle_timeout: \"15m\"\n\n")

	cfg.WriteString("uploads:\n")
	cfg.WriteString("  max_bytes: 26214400\n")
	cfg.WriteString("  fetch_timeout: \"15s\"\n")
	cfg.WriteString("  allow_remote: true\n\n")

	if tailscaleEnabled {
		cfg.WriteString("tailscale:\n")
		cfg.WriteString("  enabled: true\n")
		fmt.Fprintf(&cfg, "  hostname: %q\n", tsHostname)
		fmt.Fprintf(&cfg, "  funnel: %t\n\n", tsFunnel)
	}

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintln(out, "\nNext steps:")
	if introspectionURL == "" {
		fmt.Fprintln(out, "  inline-mcp grant add --user ID --inline-token TOKEN --space ID")
	}
	fmt.Fprintln(out, "  inline-mcp serve")
	return nil
}

func yes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
