// ABOUTME: Upload source resolution: exactly one of an inline payload or a remote https URL
// ABOUTME: Produces the bytes plus inferred type, name and a redacted source reference

package upload

import (
	"context"
	"strings"
)

// SourceKind says where an upload's bytes came from.
type SourceKind string

const (
	SourceInline SourceKind = "inline"
	SourceRemote SourceKind = "remote-url"
)

// Request names an upload source. Exactly one field must be set.
type Request struct {
	Base64 string
	URL    string
}

// Source is a resolved upload, discarded after the call that produced it.
type Source struct {
	Kind                SourceKind
	Bytes               []byte
	InferredContentType string
	InferredFileName    string
	RedactedSourceRef   string // empty for inline sources
}

// Attachment is the final name, type and kind for an upload.
type Attachment struct {
	Kind        string
	FileName    string
	ContentType string
}

// Resolver resolves upload requests into byte payloads.
type Resolver struct {
	fetcher  *Fetcher
	maxBytes int64
}

// NewResolver creates a Resolver that fetches remote URLs with fetcher.
func NewResolver(fetcher *Fetcher) *Resolver {
	maxBytes := DefaultMaxBytes
	if fetcher != nil && fetcher.MaxBytes > 0 {
		maxBytes = fetcher.MaxBytes
	}
	return &Resolver{fetcher: fetcher, maxBytes: maxBytes}
}

// Resolve decodes or fetches the bytes named by req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Source, error) {
	hasInline := strings.TrimSpace(req.Base64) != ""
	hasURL := strings.TrimSpace(req.URL) != ""

	switch {
	case hasInline && hasURL:
		return nil, &ValidationError{Reason: "provide exactly one of base64 or url, not both"}
	case !hasInline && !hasURL:
		return nil, &ValidationError{Reason: "provide exactly one of base64 or url"}
	case hasInline:
		data, contentType, err := decodeInline(req.Base64, r.maxBytes)
		if err != nil {
			return nil, err
		}
		return &Source{Kind: SourceInline, Bytes: data, InferredContentType: contentType}, nil
	default:
		if r.fetcher == nil {
			return nil, policyErrorf("remote uploads are disabled")
		}
		file, err := r.fetcher.Fetch(ctx, strings.TrimSpace(req.URL))
		if err != nil {
			return nil, err
		}
		return &Source{
			Kind:                SourceRemote,
			Bytes:               file.Data,
			InferredContentType: file.ContentType,
			InferredFileName:    file.FileName,
			RedactedSourceRef:   file.RedactedURL,
		}, nil
	}
}

// Describe applies the filename and type policy: a sanitized caller name wins,
// then the inferred name, then a synthesized attachment.<ext>. An explicit
// content type overrides the inferred one; kind auto is resolved last.
func Describe(src *Source, fileName, contentType, kind, extension string) Attachment {
	ct := mediaType(contentType)
	if ct == "" {
		ct = src.InferredContentType
	}

	name := SanitizeFileName(fileName)
	if name == "" {
		name = src.InferredFileName
	}

	resolvedKind := ResolveKind(kind, ct, name)
	if name == "" {
		name = "attachment." + extensionFor(extension, ct, resolvedKind)
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Attachment{Kind: resolvedKind, FileName: name, ContentType: ct}
}
