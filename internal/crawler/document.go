package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedDocument marks a page whose expected fields are missing or have
// an unexpected shape. The URL is skipped and never retried.
var ErrMalformedDocument = errors.New("malformed document")

// RateLimitError reports that the remote source is throttling requests.
// It ends the crawl.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited fetching %s (retry after %s)", e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited fetching %s", e.URL)
}

// Document holds the fields extracted from one publication page
type Document struct {
	URL        string
	Identifier string // stable dedup key, e.g. a DOI
	Title      string
	Abstract   string
	Citation   string
}

// SearchableText is the text the relevance score is computed on
func (d Document) SearchableText() string {
	return d.Title + " " + d.Abstract
}

// Fetcher retrieves publication pages. Implementations return an error
// wrapping ErrMalformedDocument for pages that cannot be parsed and a
// *RateLimitError when the source refuses further requests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
	// FetchLinks returns the reference and citation links of the publication
	// at url, in page order.
	FetchLinks(ctx context.Context, url string) ([]string, error)
}

// Observer receives crawl progress events
type Observer interface {
	DocumentFetched(elapsed time.Duration)
	FetchFailed()
	DuplicateSkipped()
	DocumentScored(score int, expanded bool)
	LinksEnqueued(n int)
	TopKPersisted()
	PersistFailed()
}

// Recorder keeps a record of scored documents and the links they expanded to
type Recorder interface {
	RecordDocument(doc Document, score int, expanded bool) error
	RecordLinks(identifier string, links []string) error
}

type nopObserver struct{}

func (nopObserver) DocumentFetched(time.Duration) {}
func (nopObserver) FetchFailed()                  {}
func (nopObserver) DuplicateSkipped()             {}
func (nopObserver) DocumentScored(int, bool)      {}
func (nopObserver) LinksEnqueued(int)             {}
func (nopObserver) TopKPersisted()                {}
func (nopObserver) PersistFailed()                {}
