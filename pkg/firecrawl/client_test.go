package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/enrich-cli/internal/resilience"
)

func TestScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var req ScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://guarded.example/bottle", req.URL)
		assert.Equal(t, 30000, req.Timeout)

		_, _ = w.Write([]byte(`{"success":true,"data":{"url":"https://guarded.example/bottle","markdown":"# Bottle","title":"Bottle","statusCode":200}}`))
	}))
	defer srv.Close()

	client := NewClient("fc-key", WithBaseURL(srv.URL))
	resp, err := client.Scrape(context.Background(), ScrapeRequest{
		URL:     "https://guarded.example/bottle",
		Formats: []string{"markdown"},
		Timeout: 30000,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "# Bottle", resp.Data.Markdown)
	assert.Equal(t, 200, resp.Data.StatusCode)
}

func TestScrape_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient("bad", WithBaseURL(srv.URL))
	_, err := client.Scrape(context.Background(), ScrapeRequest{URL: "https://x.example"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestScrape_CarriesRetryAfterHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	client := NewClient("fc-key", WithBaseURL(srv.URL), WithRetry(retry))

	_, err := client.Scrape(context.Background(), ScrapeRequest{URL: "https://x.example"})
	require.Error(t, err)

	var te *resilience.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 7*time.Second, te.RetryAfter)
}

func TestScrape_RetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"ok","statusCode":200}}`))
	}))
	defer srv.Close()

	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	client := NewClient("fc-key", WithBaseURL(srv.URL), WithRetry(retry))

	resp, err := client.Scrape(context.Background(), ScrapeRequest{URL: "https://x.example"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), hits.Load())
}
