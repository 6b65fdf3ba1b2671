// ABOUTME: Decimal identifier codec and typed access to tool arguments
// ABOUTME: Ids travel as decimal strings so 64-bit values survive JSON clients

package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/2389/inline-mcp/internal/inline"
)

// ParseID decodes a positive 64-bit identifier. Decimal strings are the wire
// form; whole JSON numbers are tolerated. Anything else is "invalid <field>".
func ParseID(field string, v any) (int64, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return 0, invalidf("invalid %s", field)
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return 0, invalidf("invalid %s", field)
		}
		return id, nil
	case float64:
		if x <= 0 || x != math.Trunc(x) || x > 1<<53 {
			return 0, invalidf("invalid %s", field)
		}
		return int64(x), nil
	case json.Number:
		return ParseID(field, x.String())
	default:
		return 0, invalidf("invalid %s", field)
	}
}

// FormatID renders an identifier in its wire form.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return FormatID(*id)
}

// Args is a decoded, schema-validated argument object.
type Args map[string]any

// Has reports whether key is present and not null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// ID returns the identifier under key, or nil when absent.
func (a Args) ID(key string) (*int64, error) {
	if !a.Has(key) {
		return nil, nil
	}
	id, err := ParseID(key, a[key])
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// IDs decodes a list of identifiers under key.
func (a Args) IDs(key string) ([]int64, error) {
	if !a.Has(key) {
		return nil, nil
	}
	raw, ok := a[key].([]any)
	if !ok {
		return nil, invalidf("invalid %s", key)
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := ParseID(key, v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// String returns the string under key, or "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Bool returns the boolean under key, or false.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Int returns the integer under key, or def when absent.
func (a Args) Int(key string, def int) int {
	switch x := a[key].(type) {
	case float64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Object returns the nested object under key.
func (a Args) Object(key string) Args {
	m, _ := a[key].(map[string]any)
	return Args(m)
}

// Target resolves the chat a tool addresses: exactly one of chatId or userId.
func (a Args) Target(tool string) (inline.Peer, error) {
	hasChat, hasUser := a.Has("chatId"), a.Has("userId")
	if hasChat == hasUser {
		return inline.Peer{}, invalidf("%s: provide exactly one of chatId or userId", tool)
	}
	if hasChat {
		id, err := ParseID("chatId", a["chatId"])
		if err != nil {
			return inline.Peer{}, err
		}
		return inline.Peer{ChatID: id}, nil
	}
	id, err := ParseID("userId", a["userId"])
	if err != nil {
		return inline.Peer{}, err
	}
	return inline.Peer{UserID: id}, nil
}

// OptionalTarget is Target for tools where omitting both means "everywhere".
func (a Args) OptionalTarget(tool string) (inline.Peer, error) {
	if !a.Has("chatId") && !a.Has("userId") {
		return inline.Peer{}, nil
	}
	return a.Target(tool)
}
