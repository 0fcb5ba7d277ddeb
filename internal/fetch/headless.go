package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/cellarworks/enrich-cli/internal/domain"
)

// HeadlessFetcher renders pages with headless Chrome via chromedp. It is
// the tier-2 strategy for JS-heavy sites whose plain body is a shell.
type HeadlessFetcher struct {
	userAgent   string
	maxParallel chan struct{}

	allocOnce   sync.Once
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewHeadlessFetcher creates a headless fetcher. The browser allocator
// starts lazily on first fetch. maxParallel bounds concurrent tabs.
func NewHeadlessFetcher(userAgent string, maxParallel int) *HeadlessFetcher {
	if maxParallel < 1 {
		maxParallel = 2
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; CellarworksBot/1.0)"
	}
	return &HeadlessFetcher{
		userAgent:   userAgent,
		maxParallel: make(chan struct{}, maxParallel),
	}
}

// Tier implements domain.TierFetcher.
func (f *HeadlessFetcher) Tier() int { return domain.TierHeadless }

// Close tears down the browser allocator.
func (f *HeadlessFetcher) Close() {
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

func (f *HeadlessFetcher) ensureAllocator() {
	f.allocOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
		)
		f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	})
}

// Fetch navigates with a headless browser and returns the rendered DOM.
func (f *HeadlessFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (string, string, int, error) {
	f.ensureAllocator()

	select {
	case f.maxParallel <- struct{}{}:
		defer func() { <-f.maxParallel }()
	case <-ctx.Done():
		return "", "", 0, ctx.Err()
	}

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	status := newStatusCapture(rawURL)
	chromedp.ListenTarget(taskCtx, status.capture)

	var html, title string
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return err
			}
			return emulation.SetUserAgentOverride(f.userAgent).Do(ctx)
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if taskCtx.Err() == context.DeadlineExceeded {
			return "", "", 0, context.DeadlineExceeded
		}
		return "", "", 0, eris.Wrap(err, "headless: run")
	}

	return html, title, status.code(), nil
}

// statusCapture records the status of the main document response.
type statusCapture struct {
	mu     sync.Mutex
	url    string
	status int
}

func newStatusCapture(url string) *statusCapture {
	return &statusCapture{url: url}
}

func (s *statusCapture) capture(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 || strings.HasPrefix(resp.Response.URL, s.url) {
		s.status = int(resp.Response.Status)
	}
}

func (s *statusCapture) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		// Renderer gave us a DOM but no observed document response;
		// assume success rather than inventing a failure.
		return 200
	}
	return s.status
}
