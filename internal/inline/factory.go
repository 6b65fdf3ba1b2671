// ABOUTME: Factory building one grant-scoped chat client per MCP session
// ABOUTME: Rejects grants that carry no downstream credential

package inline

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/2389/inline-mcp/internal/auth"
)

// ErrInvalidGrant is returned when a grant cannot back a chat client.
var ErrInvalidGrant = errors.New("grant cannot be used for the chat application")

// Factory creates scoped API clients.
type Factory struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient returns Scoped(APIClient) for g.
func (f *Factory) NewClient(g *auth.Grant) (Client, error) {
	if g == nil || g.InlineToken == "" || g.InlineUserID <= 0 {
		return nil, ErrInvalidGrant
	}
	api := NewAPIClient(f.BaseURL, g.InlineToken, f.HTTPClient, f.Logger)
	return NewScoped(api, ScopeFromGrant(g)), nil
}
