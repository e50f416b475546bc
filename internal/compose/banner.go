package compose

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BannerFetcher retrieves a banner/logo image by URL. Fetch failures
// degrade to "no banner"; the composer never aborts over one.
type BannerFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPBanner fetches banners over HTTP with a bounded timeout.
type HTTPBanner struct {
	Client *http.Client
}

func NewHTTPBanner(timeout time.Duration) *HTTPBanner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPBanner{Client: &http.Client{Timeout: timeout}}
}

func (b *HTTPBanner) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("banner fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	if !strings.HasPrefix(ct, "image/") {
		ct = sniffImageType(data)
	}
	if ct == "" {
		return nil, "", fmt.Errorf("banner fetch: not an image")
	}
	return data, ct, nil
}

// decodeDataURI splits a "data:image/png;base64,..." reference.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data uri")
	}
	meta, payload := rest[:comma], rest[comma+1:]
	ct := meta
	if i := strings.Index(meta, ";"); i >= 0 {
		ct = meta[:i]
	}
	if ct == "" {
		ct = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding data uri: %w", err)
	}
	return data, ct, nil
}

func sniffImageType(data []byte) string {
	switch {
	case len(data) > 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(data) > 3 && string(data[:3]) == "\xff\xd8\xff":
		return "image/jpeg"
	case len(data) > 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "image/gif"
	default:
		return ""
	}
}
