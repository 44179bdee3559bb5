// Package imaging validates and normalizes the three accepted image inputs:
// raw file bytes, remote URLs, and data:image base64 strings.
package imaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// DataImagePrefix marks an embedded base64 image string.
const DataImagePrefix = "data:image"

var recognizedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// allowedFormats is the server-side allow-list; the client only requires the
// image/ prefix.
var allowedFormats = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// ValidationError reports an input rejected before any network or model call.
type ValidationError struct {
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SizeError reports an image exceeding the configured byte limit.
type SizeError struct {
	Size int64
	Max  int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("image file too large: maximum size allowed is %.1fMB", float64(e.Max)/1024/1024)
}

// ValidateMIME requires an image/* content type.
func ValidateMIME(mimeType string) error {
	if strings.HasPrefix(mimeType, "image/") {
		return nil
	}
	return &ValidationError{
		Message: fmt.Sprintf("unsupported file type %q: only images are accepted", mimeType),
		Details: map[string]any{"received_type": mimeType},
	}
}

// ValidateFormat enforces the strict format allow-list used by the server.
func ValidateFormat(mimeType string) error {
	if _, ok := allowedFormats[mimeType]; ok {
		return nil
	}
	formats := make([]string, 0, len(allowedFormats))
	for f := range allowedFormats {
		formats = append(formats, strings.TrimPrefix(f, "image/"))
	}
	return &ValidationError{
		Message: fmt.Sprintf("unsupported image format %q", mimeType),
		Details: map[string]any{"allowed_types": formats, "received_type": mimeType},
	}
}

// ValidateURL requires an absolute http or https URL with a host and path.
// data: strings are not URLs.
func ValidateURL(raw string) error {
	invalid := &ValidationError{Message: "invalid URL provided", Details: map[string]any{"url": raw}}

	if strings.HasPrefix(raw, "data:") {
		return invalid
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path == "" {
		return invalid
	}
	return nil
}

// IsDataImage reports whether s carries an embedded base64 image.
func IsDataImage(s string) bool {
	return strings.HasPrefix(s, DataImagePrefix)
}

// ValidateDataImage checks the data:image marker without decoding the payload.
func ValidateDataImage(s string) error {
	if IsDataImage(s) {
		return nil
	}
	return &ValidationError{Message: "invalid base64 image data"}
}

// DecodeDataImage splits a data:image/...;base64,... string and decodes the
// payload. The returned extension comes from the media subtype.
func DecodeDataImage(s string) ([]byte, string, error) {
	if !IsDataImage(s) {
		return nil, "", &ValidationError{Message: "invalid base64 image data"}
	}
	head, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, "", &ValidationError{Message: "invalid base64 image data"}
	}
	mediaType := strings.TrimPrefix(head, "data:")
	ext := "jpg"
	if _, sub, ok := strings.Cut(mediaType, "/"); ok {
		if i := strings.IndexByte(sub, ';'); i >= 0 {
			sub = sub[:i]
		}
		if sub != "" {
			ext = sub
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", &ValidationError{Message: "invalid base64 image data"}
	}
	return data, ext, nil
}

// HasImageExtension reports whether the URL path (ignoring query and
// fragment) ends in a recognized image extension.
func HasImageExtension(raw string) bool {
	base := raw
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	lower := strings.ToLower(base)
	for _, ext := range recognizedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// EnsureImageExtension appends ".jpg" to a URL whose path carries no
// recognized image extension. This is a heuristic of uncertain correctness
// kept isolated so callers can disable it; it does not guarantee the
// resulting URL resolves to an image.
func EnsureImageExtension(raw string) string {
	if HasImageExtension(raw) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	u.Path += ".jpg"
	return u.String()
}

// ValidateSize rejects payloads above max bytes.
func ValidateSize(size, max int64) error {
	if max > 0 && size > max {
		return &SizeError{Size: size, Max: max}
	}
	return nil
}

// FetchImage downloads an image, retrying alternate extensions when the
// original URL does not resolve to image content. The candidate order
// mirrors the upload form behavior: the URL as given first, then with each
// recognized extension swapped in.
func FetchImage(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	base := rawURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}

	candidates := []string{base}
	if !HasImageExtension(base) {
		trimmed := strings.TrimSuffix(base, path.Ext(base))
		for _, ext := range recognizedExtensions {
			candidates = append(candidates, trimmed+ext)
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		data, err := fetchOne(ctx, client, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("failed to download image: %w", lastErr)
}

func fetchOne(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%s returned non-image content type %q", rawURL, ct)
	}
	return io.ReadAll(resp.Body)
}
