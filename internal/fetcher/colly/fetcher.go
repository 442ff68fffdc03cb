// Package collyfetcher implements cad.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/chescofire/cadwatch/internal/cad"
)

// Config controls collector behavior.
type Config struct {
	BoardURL  string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves the dispatch board and its detail pages with a Colly
// collector. The same URLs are revisited every cycle, so the base collector
// allows revisits and skips robots.txt, matching how the board is meant to
// be polled.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		// colly v2.1.0's Async option ignores its argument and always enables
		// async mode, so the collector relies on the default (synchronous)
		// instead of passing colly.Async(false).
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch retrieves the listing page.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	return f.get(ctx, f.cfg.BoardURL)
}

// FetchComments retrieves one incident's detail page.
func (f *Fetcher) FetchComments(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url)
}

// get executes a single HTTP GET. Every failure surfaces as *cad.FetchError.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := f.buildCollector(&body, &status, &fetchErr)

	if err := f.runCollector(ctx, collector, url); err != nil {
		return nil, &cad.FetchError{URL: url, StatusCode: status, Err: err}
	}
	if fetchErr != nil {
		return nil, &cad.FetchError{URL: url, StatusCode: status, Err: fetchErr}
	}
	return body, nil
}

func (f *Fetcher) buildCollector(body *[]byte, status *int, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, body, status, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, status *int, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
