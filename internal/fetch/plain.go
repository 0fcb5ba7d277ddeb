package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cellarworks/enrich-cli/internal/domain"
)

const maxBodyBytes = 512 * 1024

// PlainFetcher fetches HTML via net/http. Free, no API calls; the
// router escalates when the body turns out to be a shell or a challenge.
type PlainFetcher struct {
	client    *http.Client
	userAgent string
}

// NewPlainFetcher creates a PlainFetcher with sensible transport limits.
// Per-attempt timeouts come from the router, not the http.Client.
func NewPlainFetcher(userAgent string) *PlainFetcher {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; CellarworksBot/1.0)"
	}
	return &PlainFetcher{
		userAgent: userAgent,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// Tier implements domain.TierFetcher.
func (f *PlainFetcher) Tier() int { return domain.TierPlain }

// Fetch retrieves a URL and returns the raw body, title, and status.
func (f *PlainFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (string, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", 0, eris.Wrap(err, "plain: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", "", 0, eris.Wrap(err, "plain: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", 0, eris.Wrap(err, "plain: read body")
	}

	return string(body), ExtractTitle(body), resp.StatusCode, nil
}
