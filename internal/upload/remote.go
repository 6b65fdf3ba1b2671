// ABOUTME: SSRF-safe remote fetcher: https only, validated and pinned addresses, manual redirects
// ABOUTME: Streams the body under a byte ceiling and infers content type and filename

package upload

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Limits for remote fetches.
const (
	DefaultMaxBytes     int64 = 25 << 20
	DefaultFetchTimeout       = 15 * time.Second
	DefaultMaxRedirects       = 3
)

const readChunkSize = 32 << 10

// LookupFunc resolves a hostname to every address it has.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// DialFunc opens a connection to an already validated ip:port address.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// RemoteFile is the result of a successful fetch.
type RemoteFile struct {
	Data        []byte
	ContentType string
	FileName    string
	RedactedURL string
}

// Fetcher downloads untrusted URLs.
type Fetcher struct {
	Lookup       LookupFunc
	Dial         DialFunc
	TLSConfig    *tls.Config
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
	UserAgent    string

	logger *slog.Logger
}

// NewFetcher creates a Fetcher using the system resolver and dialer.
func NewFetcher(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &Fetcher{
		Lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
		Dial:         dialer.DialContext,
		Timeout:      DefaultFetchTimeout,
		MaxBytes:     DefaultMaxBytes,
		MaxRedirects: DefaultMaxRedirects,
		UserAgent:    "inline-mcp",
		logger:       logger.With("component", "upload-fetcher"),
	}
}

// target is one validated hop of a redirect chain.
type target struct {
	url   *url.URL
	host  string
	addrs []netip.Addr
}

// Fetch downloads rawURL, re-validating every redirect hop.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*RemoteFile, error) {
	ctx, span := otel.Tracer("github.com/2389/inline-mcp/internal/upload").Start(ctx, "upload.fetch")
	defer span.End()

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	file, err := f.fetch(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("upload.source", file.RedactedURL),
		attribute.Int("upload.bytes", len(file.Data)),
	)
	return file, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*RemoteFile, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ValidationError{Field: "url", Reason: "url is not valid"}
	}

	maxRedirects := f.MaxRedirects
	if maxRedirects < 0 {
		maxRedirects = 0
	}

	for hop := 0; ; hop++ {
		t, err := f.validate(ctx, current)
		if err != nil {
			return nil, err
		}

		resp, err := f.do(ctx, t)
		if err != nil {
			return nil, &FetchError{URL: redact(t.url), Err: err}
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drain(resp.Body)
			if location == "" {
				return nil, &FetchError{URL: redact(t.url), Err: errors.New("redirect without Location header")}
			}
			if hop >= maxRedirects {
				return nil, &FetchError{URL: redact(t.url), Err: fmt.Errorf("more than %d redirects", maxRedirects)}
			}
			next, err := t.url.Parse(location)
			if err != nil {
				return nil, &FetchError{URL: redact(t.url), Err: errors.New("redirect Location is not a valid URL")}
			}
			f.logger.Debug("following redirect", "from", redact(t.url), "to", redact(next), "hop", hop+1)
			current = next
			continue
		}

		return f.readResponse(t, resp)
	}
}

// validate applies the scheme, credential, hostname and address rules to u
// and returns the addresses the request may connect to.
func (f *Fetcher) validate(ctx context.Context, u *url.URL) (*target, error) {
	if u.Scheme != "https" {
		return nil, policyErrorf("url must use https")
	}
	if u.User != nil {
		return nil, policyErrorf("url must not contain credentials")
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return nil, err
	}
	if isDeniedHostname(host) {
		return nil, policyErrorf("host %q is not allowed", host)
	}
	if port := u.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return nil, &ValidationError{Field: "url", Reason: "url port is not valid"}
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivateAddr(addr) {
			return nil, policyErrorf("address %s is private or reserved", addr.WithZone(""))
		}
		return &target{url: u, host: host, addrs: []netip.Addr{addr}}, nil
	}

	addrs, err := f.Lookup(ctx, host)
	if err != nil {
		return nil, &FetchError{URL: redact(u), Err: fmt.Errorf("resolving %s: %w", host, err)}
	}
	if len(addrs) == 0 {
		return nil, &FetchError{URL: redact(u), Err: fmt.Errorf("resolving %s: no addresses", host)}
	}
	for _, a := range addrs {
		if IsPrivateAddr(a) {
			return nil, policyErrorf("host %q resolves to a private or reserved address", host)
		}
	}
	return &target{url: u, host: host, addrs: addrs}, nil
}

// do issues a single GET that can only connect to t's validated addresses.
func (f *Fetcher) do(ctx context.Context, t *target) (*http.Response, error) {
	port := t.url.Port()
	if port == "" {
		port = "443"
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if f.TLSConfig != nil {
		tlsConfig = f.TLSConfig.Clone()
	}
	if _, err := netip.ParseAddr(t.host); err != nil {
		tlsConfig.ServerName = t.host
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var lastErr error
			for _, a := range t.addrs {
				conn, err := f.Dial(ctx, network, net.JoinHostPort(a.WithZone("").String(), port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		},
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: f.Timeout,
		MaxIdleConns:          1,
		DisableKeepAlives:     true,
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url.String(), nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	return client.Do(req)
}

// readResponse checks the status and streams the body under the byte ceiling.
func (f *Fetcher) readResponse(t *target, resp *http.Response) (*RemoteFile, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: redact(t.url), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if resp.ContentLength > limit {
		return nil, policyErrorf("remote file is larger than the %s limit", humanize.IBytes(uint64(limit)))
	}

	data, err := readWithCeiling(resp.Body, limit)
	if err != nil {
		if errors.Is(err, errCeilingExceeded) {
			return nil, policyErrorf("remote file is larger than the %s limit", humanize.IBytes(uint64(limit)))
		}
		return nil, &FetchError{URL: redact(t.url), Err: err}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: redact(t.url), Err: errors.New("remote file is empty")}
	}

	name := fileNameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fileNameFromURL(t.url)
	}
	return &RemoteFile{
		Data:        data,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		FileName:    name,
		RedactedURL: redact(t.url),
	}, nil
}

var errCeilingExceeded = errors.New("byte ceiling exceeded")

// readWithCeiling reads r chunk by chunk and stops as soon as more than
// limit bytes have arrived.
func readWithCeiling(r io.Reader, limit int64) ([]byte, error) {
	var out []byte
	buf := make([]byte, readChunkSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return nil, errCeilingExceeded
			}
			out = append(out, buf[:n]...)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// redact returns scheme://host/path with credentials, query and fragment removed.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path, RawPath: u.RawPath}
	return clean.String()
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
