// ABOUTME: grant and audit subcommands operating directly on the SQLite store
// ABOUTME: Mints bearer tokens for local grants; only their SHA-256 hash is persisted

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/config"
	"github.com/2389/inline-mcp/internal/store"
)

// tokenPrefix marks bearer tokens minted by this binary.
const tokenPrefix = "imcp_"

const defaultGrantScope = auth.ScopeMessagesRead + " " + auth.ScopeSpacesRead

// idList collects int64 ids from repeated or comma separated flag values.
type idList []int64

func (l *idList) String() string {
	parts := make([]string, len(*l))
	for i, id := range *l {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid id %q", part)
		}
		*l = append(*l, id)
	}
	return nil
}

// newToken returns a random bearer token.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if cfg.Database.Path == "" {
		return nil, errors.New("database.path is not configured")
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func runGrant(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: inline-mcp grant add|list|revoke [flags]")
	}
	switch args[0] {
	case "add":
		return runGrantAdd(ctx, args[1:], out)
	case "list":
		return runGrantList(ctx, args[1:], out)
	case "revoke":
		return runGrantRevoke(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown grant command: %s", args[0])
	}
}

type grantAddFlags struct {
	userID           int64
	inlineToken      string
	clientID         string
	scope            string
	spaces           idList
	allowDMs         bool
	allowHomeThreads bool
	ttl              time.Duration
}

func (f *grantAddFlags) register(fs *flag.FlagSet) {
	fs.Int64Var(&f.userID, "user", 0, "Inline user id the grant acts as")
	fs.StringVar(&f.inlineToken, "inline-token", "", "Inline API token used for upstream calls")
	fs.StringVar(&f.clientID, "client", "local", "client id recorded on the grant")
	fs.StringVar(&f.scope, "scope", defaultGrantScope, "space separated scopes")
	fs.Var(&f.spaces, "space", "allowed space id (repeatable or comma separated)")
	fs.BoolVar(&f.allowDMs, "allow-dms", false, "allow direct messages")
	fs.BoolVar(&f.allowHomeThreads, "allow-home-threads", false, "allow home threads outside any space")
	fs.DurationVar(&f.ttl, "ttl", 30*24*time.Hour, "grant lifetime")
}

func (f *grantAddFlags) validate() error {
	if f.userID <= 0 {
		return errors.New("--user is required")
	}
	if strings.TrimSpace(f.inlineToken) == "" {
		return errors.New("--inline-token is required")
	}
	if f.ttl <= 0 {
		return errors.New("--ttl must be positive")
	}
	if len(auth.ParseScopes(f.scope)) == 0 {
		return errors.New("--scope must name at least one scope")
	}
	return nil
}

func runGrantAdd(ctx context.Context, args []string, out io.Writer) error {
	var f grantAddFlags
	cfg, _, err := loadConfig("grant add", args, f.register)
	if err != nil {
		return err
	}
	if err := f.validate(); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	token, err := newToken()
	if err != nil {
		return err
	}
	rec := &store.GrantRecord{
		TokenHash:        store.HashToken(token),
		ClientID:         f.clientID,
		InlineUserID:     f.userID,
		Scope:            strings.Join(auth.ParseScopes(f.scope), " "),
		SpaceIDs:         f.spaces,
		AllowDMs:         f.allowDMs,
		AllowHomeThreads: f.allowHomeThreads,
		InlineToken:      f.inlineToken,
		ExpiresAt:        time.Now().Add(f.ttl).UTC(),
	}
	if err := s.CreateGrant(ctx, rec); err != nil {
		return fmt.Errorf("creating grant: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Fprintf(out, "  ✓ Created grant %s\n", rec.ID)
	fmt.Fprintf(out, "  Scope:   %s\n", rec.Scope)
	fmt.Fprintf(out, "  Spaces:  %s\n", f.spaces.String())
	fmt.Fprintf(out, "  Expires: %s (%s)\n", rec.ExpiresAt.Format(time.RFC3339), humanize.Time(rec.ExpiresAt))
	fmt.Fprintln(out)
	yellow.Fprintln(out, "  Bearer token (shown once):")
	fmt.Fprintf(out, "  %s\n", token)
	return nil
}

func grantStatus(g store.GrantRecord, now time.Time) string {
	switch {
	case g.RevokedAt != nil:
		return "revoked"
	case !now.Before(g.ExpiresAt):
		return "expired"
	default:
		return "active"
	}
}

func runGrantList(ctx context.Context, args []string, out io.Writer) error {
	cfg, _, err := loadConfig("grant list", args, nil)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	grants, err := s.ListGrants(ctx)
	if err != nil {
		return fmt.Errorf("listing grants: %w", err)
	}
	if len(grants) == 0 {
		fmt.Fprintln(out, "no grants")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tSCOPE\tSPACES\tSTATUS\tEXPIRES")
	for _, g := range grants {
		spaces := idList(g.SpaceIDs)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			g.ID, g.InlineUserID, g.Scope, spaces.String(), grantStatus(g, now), humanize.Time(g.ExpiresAt))
	}
	return tw.Flush()
}

func runGrantRevoke(ctx context.Context, args []string, out io.Writer) error {
	var grantID string
	cfg, _, err := loadConfig("grant revoke", args, func(fs *flag.FlagSet) {
		fs.StringVar(&grantID, "id", "", "grant id to revoke")
	})
	if err != nil {
		return err
	}
	if grantID == "" {
		return errors.New("--id is required")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RevokeGrant(ctx, grantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("grant %s not found", grantID)
		}
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "  ✓ Revoked grant %s\n", grantID)
	return nil
}

func runAudit(ctx context.Context, args []string, out io.Writer) error {
	var (
		grantID string
		outcome string
		since   time.Duration
		limit   int
	)
	cfg, _, err := loadConfig("audit", args, func(fs *flag.FlagSet) {
		fs.StringVar(&grantID, "grant", "", "only records for this grant id")
		fs.StringVar(&outcome, "outcome", "", "success or failure")
		fs.DurationVar(&since, "since", 0, "only records newer than this duration")
		fs.IntVar(&limit, "limit", 50, "maximum records")
	})
	if err != nil {
		return err
	}

	filter := store.SendAuditFilter{Limit: limit}
	if grantID != "" {
		filter.GrantID = &grantID
	}
	switch store.SendOutcome(outcome) {
	case "":
	case store.SendSuccess, store.SendFailure:
		o := store.SendOutcome(outcome)
		filter.Outcome = &o
	default:
		return fmt.Errorf("invalid --outcome %q", outcome)
	}
	if since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.ListSendAudit(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing audit records: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no audit records")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tOUTCOME\tGRANT\tUSER\tCHAT\tSPACE\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.Time(r.Timestamp), r.Outcome, r.GrantID, r.InlineUserID,
			optionalID(r.ChatID), optionalID(r.SpaceID), optionalID(r.MessageID))
	}
	return tw.Flush()
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
