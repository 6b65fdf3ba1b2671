// ABOUTME: Inline payload decoding for raw base64 strings and data: URIs
// ABOUTME: Normalizes URL-safe alphabets and enforces the size ceiling before and after decoding

package upload

import (
	"encoding/base64"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// decodeInline decodes a raw base64 string or a data URI. The content type is
// taken from the data URI prefix when present.
func decodeInline(input string, maxBytes int64) ([]byte, string, error) {
	payload := strings.TrimSpace(input)
	contentType := ""

	if len(payload) >= 5 && strings.EqualFold(payload[:5], "data:") {
		header, body, ok := strings.Cut(payload[5:], ",")
		if !ok {
			return nil, "", &ValidationError{Field: "base64", Reason: "data URI has no payload"}
		}
		params := strings.Split(header, ";")
		isBase64 := false
		for _, p := range params[1:] {
			if strings.EqualFold(strings.TrimSpace(p), "base64") {
				isBase64 = true
			}
		}
		if !isBase64 {
			return nil, "", &ValidationError{Field: "base64", Reason: "data URI must be base64 encoded"}
		}
		contentType = strings.ToLower(strings.TrimSpace(params[0]))
		payload = body
	}

	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, "", &ValidationError{Field: "base64", Reason: "payload is empty"}
	}

	normalized, err := normalizeBase64(payload)
	if err != nil {
		return nil, "", err
	}

	// Each 4 characters decode to at most 3 bytes.
	estimate := int64(len(normalized)/4) * 3
	if estimate-2 > maxBytes {
		return nil, "", policyErrorf("payload exceeds the %s limit", humanize.IBytes(uint64(maxBytes)))
	}

	data, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, "", &ValidationError{Field: "base64", Reason: "invalid base64 payload"}
	}
	if int64(len(data)) > maxBytes {
		return nil, "", policyErrorf("payload exceeds the %s limit", humanize.IBytes(uint64(maxBytes)))
	}
	if len(data) == 0 {
		return nil, "", &ValidationError{Field: "base64", Reason: "payload is empty"}
	}
	return data, contentType, nil
}

// normalizeBase64 maps the URL-safe alphabet onto the standard one, checks the
// character set and restores missing padding.
func normalizeBase64(s string) (string, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)

	trimmed := strings.TrimRight(s, "=")
	padding := len(s) - len(trimmed)
	if padding > 2 {
		return "", &ValidationError{Field: "base64", Reason: "invalid base64 padding"}
	}
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		case c == '=':
			return "", &ValidationError{Field: "base64", Reason: "invalid base64 padding"}
		default:
			return "", &ValidationError{Field: "base64", Reason: "invalid base64 character"}
		}
	}

	switch rem := len(trimmed) % 4; {
	case rem == 1:
		return "", &ValidationError{Field: "base64", Reason: "invalid base64 length"}
	case padding > 0 && (len(s)%4 != 0):
		return "", &ValidationError{Field: "base64", Reason: "invalid base64 padding"}
	case rem == 0 && padding > 0:
		return "", &ValidationError{Field: "base64", Reason: "invalid base64 padding"}
	case rem > 0:
		return trimmed + strings.Repeat("=", 4-rem), nil
	default:
		return trimmed, nil
	}
}
