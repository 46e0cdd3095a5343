// Package fetcher retrieves ResearchGate publication pages with colly and
// extracts the fields the crawler scores on.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alvmarrod/citation-weaver/internal/crawler"
	"github.com/gocolly/colly/v2"
)

// DefaultBaseURL is where relative publication links are resolved
const DefaultBaseURL = "https://www.researchgate.net/"

// Config controls collector behavior
type Config struct {
	UserAgent string
	Timeout   time.Duration
	BaseURL   string
}

// Fetcher implements crawler.Fetcher on top of a colly collector
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch downloads the publication page at pageURL and extracts its fields
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (crawler.Document, error) {
	page, err := f.get(ctx, pageURL)
	if err != nil {
		return crawler.Document{}, err
	}
	return parseDocument(pageURL, page)
}

// FetchLinks collects the publication's reference links followed by its
// citation links
func (f *Fetcher) FetchLinks(ctx context.Context, pageURL string) ([]string, error) {
	var links []string
	for _, listing := range []string{"references", "citations"} {
		target := strings.TrimSuffix(pageURL, "/") + "/" + listing
		page, err := f.get(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", listing, err)
		}
		links = append(links, parseLinks(f.cfg.BaseURL, page)...)
	}
	return links, nil
}

// get performs one GET and returns the parsed HTML document root
func (f *Fetcher) get(ctx context.Context, target string) (*goquery.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch canceled: %w", err)
	}

	collector := f.baseCollector.Clone()

	var (
		page       *goquery.Selection
		status     int
		retryAfter string
		fetchErr   error
	)
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		page = e.DOM
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r == nil {
			return
		}
		status = r.StatusCode
		if r.Headers != nil {
			retryAfter = r.Headers.Get("Retry-After")
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if status == http.StatusTooManyRequests {
			return nil, &crawler.RateLimitError{
				URL:        target,
				RetryAfter: parseRetryAfter(retryAfter, time.Now()),
			}
		}
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("GET %s failed (status %d): %w", target, status, err)
		}
	}

	if page == nil {
		return nil, fmt.Errorf("%w: no HTML document at %s", crawler.ErrMalformedDocument, target)
	}
	return page, nil
}

// parseRetryAfter reads a Retry-After header given either as delta seconds or
// as an HTTP date. Unparseable or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := when.Sub(now); d > 0 {
		return d.Round(time.Second)
	}
	return 0
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
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
