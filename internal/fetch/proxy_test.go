package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/pkg/firecrawl"
)

type stubProxyClient struct {
	resp *firecrawl.ScrapeResponse
	err  error
	got  firecrawl.ScrapeRequest
}

func (s *stubProxyClient) Scrape(_ context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestProxyFetcher_Fetch(t *testing.T) {
	stub := &stubProxyClient{resp: &firecrawl.ScrapeResponse{
		Success: true,
		Data:    firecrawl.PageData{Markdown: "# Vintage Port", Title: "Vintage Port", StatusCode: 200},
	}}
	f := NewProxyFetcher(stub)

	content, title, status, err := f.Fetch(context.Background(), "https://guarded.example/p", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "# Vintage Port", content)
	assert.Equal(t, "Vintage Port", title)
	assert.Equal(t, 200, status)
	assert.Equal(t, 30000, stub.got.Timeout)
	assert.Equal(t, domain.TierProxy, f.Tier())
}

func TestProxyFetcher_Unsuccessful(t *testing.T) {
	f := NewProxyFetcher(&stubProxyClient{resp: &firecrawl.ScrapeResponse{Success: false}})
	_, _, _, err := f.Fetch(context.Background(), "https://x.example", time.Second)
	assert.Error(t, err)
}

func TestProxyFetcher_ClientError(t *testing.T) {
	f := NewProxyFetcher(&stubProxyClient{err: errors.New("boom")})
	_, _, _, err := f.Fetch(context.Background(), "https://x.example", time.Second)
	assert.Error(t, err)
}
