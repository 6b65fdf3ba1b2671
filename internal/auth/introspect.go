// ABOUTME: Token introspection collaborators: remote HTTP endpoint and local grant store
// ABOUTME: Both return the raw introspection object; validation happens in the Resolver

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/inline-mcp/internal/store"
)

// maxIntrospectionBody bounds the introspection response read into memory.
const maxIntrospectionBody = 1 << 20

// Introspector turns an opaque bearer token into a raw introspection object.
// Implementations return ErrInactive for tokens they do not recognise and the
// other sentinel errors for infrastructure failures.
type Introspector interface {
	Introspect(ctx context.Context, token string) (map[string]any, error)
}

// HTTPIntrospector calls a remote introspection endpoint. Requests carry the
// token as a form field and authenticate with a short-lived HS256 client
// assertion signed with the shared secret.
type HTTPIntrospector struct {
	URL          string
	ClientID     string
	SharedSecret string
	Client       *http.Client
	now          func() time.Time
}

// NewHTTPIntrospector creates an introspector for the endpoint at introspectionURL.
func NewHTTPIntrospector(introspectionURL, clientID, sharedSecret string, timeout time.Duration) *HTTPIntrospector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPIntrospector{
		URL:          introspectionURL,
		ClientID:     clientID,
		SharedSecret: sharedSecret,
		Client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Introspect posts the token to the endpoint and decodes the JSON object it returns.
func (h *HTTPIntrospector) Introspect(ctx context.Context, token string) (map[string]any, error) {
	if strings.TrimSpace(h.SharedSecret) == "" || h.URL == "" {
		return nil, ErrMisconfigured
	}

	assertion, err := h.clientAssertion()
	if err != nil {
		return nil, fmt.Errorf("%w: signing client assertion: %v", ErrMisconfigured, err)
	}

	form := url.Values{"token": {token}, "token_type_hint": {"access_token"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrMisconfigured, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+assertion)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInactive
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	if len(body) > maxIntrospectionBody {
		return nil, fmt.Errorf("%w: body too large", ErrInvalidResponse)
	}
	return decodeObject(body)
}

func (h *HTTPIntrospector) clientAssertion() (string, error) {
	now := time.Now()
	if h.now != nil {
		now = h.now()
	}
	claims := jwt.RegisteredClaims{
		Issuer:    h.ClientID,
		Subject:   h.ClientID,
		Audience:  jwt.ClaimStrings{h.URL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.SharedSecret))
}

// decodeObject parses body as a JSON object, keeping numbers as json.Number.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrInvalidResponse
	}
	return obj, nil
}

// StoreIntrospector introspects tokens issued into the local grant store.
type StoreIntrospector struct {
	grants store.GrantStore
	now    func() time.Time
}

// NewStoreIntrospector creates an introspector backed by a GrantStore.
func NewStoreIntrospector(grants store.GrantStore) *StoreIntrospector {
	return &StoreIntrospector{grants: grants, now: time.Now}
}

// Introspect looks the token's hash up and renders the grant as an introspection object.
func (s *StoreIntrospector) Introspect(ctx context.Context, token string) (map[string]any, error) {
	rec, err := s.grants.GetGrantByTokenHash(ctx, store.HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInactive
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !rec.Active(s.now()) {
		return map[string]any{"active": false}, nil
	}

	spaces := make([]any, len(rec.SpaceIDs))
	for i, id := range rec.SpaceIDs {
		spaces[i] = strconv.FormatInt(id, 10)
	}
	return map[string]any{
		"active":             true,
		"grant_id":           rec.ID,
		"client_id":          rec.ClientID,
		"scope":              rec.Scope,
		"exp":                json.Number(strconv.FormatInt(rec.ExpiresAt.Unix(), 10)),
		"inline_user_id":     strconv.FormatInt(rec.InlineUserID, 10),
		"space_ids":          spaces,
		"allow_dms":          rec.AllowDMs,
		"allow_home_threads": rec.AllowHomeThreads,
		"inline_token":       rec.InlineToken,
	}, nil
}
