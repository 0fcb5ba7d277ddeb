// Package wayback submits URLs to the Internet Archive's Save Page Now
// endpoint. Archival is best-effort; callers fire and forget.
package wayback

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://web.archive.org"

// Client defines the archival operation.
type Client interface {
	// Save asks the archive to capture the given URL.
	Save(ctx context.Context, targetURL string) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Save Page Now client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Save(ctx context.Context, targetURL string) error {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return eris.Wrapf(err, "wayback: invalid url %s", targetURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/save/"+targetURL, nil)
	if err != nil {
		return eris.Wrap(err, "wayback: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CellarworksBot/1.0)")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "wayback: save request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return eris.Errorf("wayback: save status %d", resp.StatusCode)
	}
	return nil
}
