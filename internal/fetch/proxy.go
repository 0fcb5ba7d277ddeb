package fetch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/pkg/firecrawl"
)

// ProxyFetcher is the tier-3 strategy: a premium anti-block scrape API
// that renders and unblocks on our behalf. Costs money; last resort.
type ProxyFetcher struct {
	client firecrawl.Client
}

// NewProxyFetcher wraps a Firecrawl client as the premium tier.
func NewProxyFetcher(client firecrawl.Client) *ProxyFetcher {
	return &ProxyFetcher{client: client}
}

// Tier implements domain.TierFetcher.
func (f *ProxyFetcher) Tier() int { return domain.TierProxy }

// Fetch retrieves a URL through the proxy and returns markdown content.
func (f *ProxyFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (string, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     rawURL,
		Formats: []string{"markdown"},
		Timeout: int(timeout / time.Millisecond),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", "", 0, ctx.Err()
		}
		return "", "", 0, err
	}
	if !resp.Success {
		return "", "", 0, eris.Errorf("proxy: scrape unsuccessful for %s", rawURL)
	}

	status := resp.Data.StatusCode
	if status == 0 {
		status = 200
	}
	return resp.Data.Markdown, resp.Data.Title, status, nil
}
