// ABOUTME: Filename and media kind inference shared by inline and remote uploads
// ABOUTME: Parses Content-Disposition, sanitizes names and synthesizes attachment.<ext> fallbacks

package upload

import (
	"mime"
	"net/url"
	"path"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Kinds accepted by the chat application's upload endpoint.
const (
	KindAuto     = "auto"
	KindPhoto    = "photo"
	KindVideo    = "video"
	KindDocument = "document"
)

const maxFileNameBytes = 255

var extensionByType = map[string]string{
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/heic":       "heic",
	"video/mp4":        "mp4",
	"video/quicktime":  "mov",
	"video/webm":       "webm",
	"application/pdf":  "pdf",
	"application/zip":  "zip",
	"application/json": "json",
	"text/plain":       "txt",
	"text/csv":         "csv",
	"text/markdown":    "md",
	"audio/mpeg":       "mp3",
}

var (
	photoTypes      = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	photoExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}
	videoTypes      = []string{"video/mp4", "video/quicktime", "video/webm"}
	videoExtensions = []string{"mp4", "mov", "m4v", "webm"}
)

// SanitizeFileName reduces a caller or server supplied name to a safe single
// path component. It returns "" when nothing usable remains.
func SanitizeFileName(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)
	name = norm.NFC.String(name)
	name = strings.Trim(name, " .")
	if name == "" {
		return ""
	}
	for len(name) > maxFileNameBytes {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// fileNameFromDisposition extracts the filename from a Content-Disposition
// header, preferring the extended filename* form.
func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	// mime.ParseMediaType decodes filename* into the "filename" key.
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := SanitizeFileName(params["filename"]); name != "" {
			return name
		}
	}

	// Lenient fallback for headers ParseMediaType refuses.
	var plain, extended string
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "filename*":
			// charset'language'value
			if parts := strings.SplitN(value, "'", 3); len(parts) == 3 {
				value = parts[2]
			}
			if dec, err := url.PathUnescape(value); err == nil {
				extended = dec
			}
		case "filename":
			if dec, err := url.PathUnescape(value); err == nil {
				plain = dec
			} else {
				plain = value
			}
		}
	}
	if name := SanitizeFileName(extended); name != "" {
		return name
	}
	return SanitizeFileName(plain)
}

// fileNameFromURL returns the sanitized, percent-decoded last path segment of u.
func fileNameFromURL(u *url.URL) string {
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return SanitizeFileName(path.Base(p))
}

// mediaType strips parameters from a Content-Type value and lowercases it.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// fileExtension returns the lowercased extension of name without the dot.
func fileExtension(name string) string {
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ResolveKind maps a requested kind to photo, video or document. Explicit
// kinds are kept; auto is decided by MIME type and then extension.
func ResolveKind(requested, contentType, fileName string) string {
	switch requested {
	case KindPhoto, KindVideo, KindDocument:
		return requested
	}
	mt := mediaType(contentType)
	ext := fileExtension(fileName)
	switch {
	case slices.Contains(photoTypes, mt) || (mt == "" || mt == "application/octet-stream") && slices.Contains(photoExtensions, ext):
		return KindPhoto
	case slices.Contains(videoTypes, mt) || (mt == "" || mt == "application/octet-stream") && slices.Contains(videoExtensions, ext):
		return KindVideo
	default:
		return KindDocument
	}
}

// extensionFor picks an extension for a synthesized filename: explicit
// override, then MIME type, then a per-kind default.
func extensionFor(override, contentType, kind string) string {
	if ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(override)), "."); ext != "" {
		return ext
	}
	mt := mediaType(contentType)
	if ext, ok := extensionByType[mt]; ok {
		return ext
	}
	switch {
	case kind == KindPhoto || strings.HasPrefix(mt, "image/"):
		return "jpg"
	case kind == KindVideo || strings.HasPrefix(mt, "video/"):
		return "mp4"
	default:
		return "bin"
	}
}
