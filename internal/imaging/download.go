package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Downloader fetches image bytes with a size cap.
type Downloader struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewDownloader(timeout time.Duration, maxBytes int64, userAgent string) *Downloader {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Downloader{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

// Get downloads url and returns the body and its content type. Non-image
// responses are rejected.
func (d *Downloader) Get(ctx context.Context, url string, header http.Header) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", fmt.Errorf("download %s: larger than %d bytes", url, d.maxBytes)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("download %s: not an image (%s)", url, contentType)
	}
	return data, contentType, nil
}

// do performs a provider API request and returns the body of a 200 response.
func (d *Downloader) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req = req.WithContext(ctx)
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Host, resp.StatusCode)
	}
	return body, nil
}
