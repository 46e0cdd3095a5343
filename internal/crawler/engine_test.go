package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alvmarrod/citation-weaver/internal/config"
	"github.com/alvmarrod/citation-weaver/internal/topk"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://rg.test/publication/"

func pub(n int) string {
	return fmt.Sprintf("%s%d", base, n)
}

type fakeFetcher struct {
	docs      map[string]Document
	errs      map[string]error
	links     map[string][]string
	linkErrs  map[string]error
	fetched   []string
	linkCalls []string
	onFetch   func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		docs:     make(map[string]Document),
		errs:     make(map[string]error),
		links:    make(map[string][]string),
		linkErrs: make(map[string]error),
	}
}

// add registers a document at url whose title scores `score` for "planar"
func (f *fakeFetcher) add(url, id string, score int, links ...string) {
	f.docs[url] = Document{
		URL:        url,
		Identifier: id,
		Title:      strings.Repeat("Planar ", score),
		Abstract:   "walking robots",
	}
	if len(links) > 0 {
		f.links[url] = links
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (Document, error) {
	f.fetched = append(f.fetched, url)
	if f.onFetch != nil {
		f.onFetch(url)
	}
	if err, ok := f.errs[url]; ok {
		return Document{}, err
	}
	doc, ok := f.docs[url]
	if !ok {
		return Document{}, fmt.Errorf("%w: no title", ErrMalformedDocument)
	}
	return doc, nil
}

func (f *fakeFetcher) FetchLinks(_ context.Context, url string) ([]string, error) {
	f.linkCalls = append(f.linkCalls, url)
	if err, ok := f.linkErrs[url]; ok {
		return nil, err
	}
	return f.links[url], nil
}

type fakeRecorder struct {
	docs  []string
	links map[string][]string
}

func (r *fakeRecorder) RecordDocument(doc Document, _ int, _ bool) error {
	r.docs = append(r.docs, doc.Identifier)
	return nil
}

func (r *fakeRecorder) RecordLinks(identifier string, links []string) error {
	if r.links == nil {
		r.links = make(map[string][]string)
	}
	r.links[identifier] = links
	return nil
}

func testConfig(threshold, maxIterations, capacity int) *config.Config {
	delay := 0
	cfg := &config.Config{
		SeedURL:            pub(0),
		Keywords:           []string{"planar"},
		RelevanceThreshold: &threshold,
		TopK:               &capacity,
		MaxIterations:      &maxIterations,
		RequestDelayMs:     &delay,
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, f Fetcher, opts ...Option) (*Engine, *test.Hook) {
	t.Helper()
	tracker, err := topk.New(cfg.Capacity(), nil)
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts = append([]Option{WithLogger(logger)}, opts...)

	e, err := New(cfg, f, tracker, opts...)
	require.NoError(t, err)
	return e, hook
}

func TestNewFailsFastOnInvalidConfig(t *testing.T) {
	t.Parallel()

	tracker, err := topk.New(1, nil)
	require.NoError(t, err)

	cfg := testConfig(2, 10, 3)
	cfg.Keywords = nil
	_, err = New(cfg, newFakeFetcher(), tracker)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(nil, newFakeFetcher(), tracker)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(testConfig(2, 10, 3), nil, tracker)
	require.Error(t, err)

	_, err = New(testConfig(2, 10, 3), newFakeFetcher(), nil)
	require.Error(t, err)

	_, err = New(testConfig(2, 10, 3), newFakeFetcher(), tracker)
	require.ErrorIs(t, err, config.ErrInvalidConfig, "tracker capacity 1 against top_k 3")
}

func TestRunStartsWithSeed(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(2, 10, 3), newFakeFetcher())
	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, []string{pub(0)}, e.Frontier().Snapshot())
}

func TestRunHaltsOnRateLimit(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 5, pub(1), pub(2), pub(3), pub(4), pub(5), pub(6))
	for i := 1; i <= 6; i++ {
		f.add(pub(i), fmt.Sprintf("doi/%d", i), 1)
	}
	f.errs[pub(4)] = &RateLimitError{URL: pub(4), RetryAfter: 90 * time.Second}

	e, hook := newTestEngine(t, testConfig(2, 1000, 3), f)
	res, err := e.Run(context.Background())

	var rateLimited *RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 90*time.Second, rateLimited.RetryAfter)

	assert.Equal(t, StateRateLimited, res.State)
	assert.Equal(t, 5, res.Iterations)
	assert.Equal(t, 5, e.Iterations())

	head, ok := e.Frontier().Peek()
	require.True(t, ok)
	assert.Equal(t, pub(4), head, "head stays unconsumed")
	assert.Equal(t, []string{pub(4), pub(5), pub(6)}, e.Frontier().Snapshot())

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && strings.Contains(entry.Message, "Too many requests") {
			logged = true
		}
	}
	assert.True(t, logged, "rate limit is logged")
}

func TestRunRateLimitWhileFetchingLinks(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 5)
	f.linkErrs[pub(0)] = &RateLimitError{URL: pub(0) + "/references"}

	e, _ := newTestEngine(t, testConfig(2, 10, 3), f)
	res, err := e.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateRateLimited, res.State)
	assert.Equal(t, []string{pub(0)}, e.Frontier().Snapshot())
	assert.True(t, e.Seen("doi/0"))
}

func TestRunThresholdIsStrict(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 5, pub(1))
	f.add(pub(1), "doi/1", 4, pub(2))
	f.add(pub(2), "doi/2", 9)

	e, _ := newTestEngine(t, testConfig(4, 10, 3), f)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, []string{pub(0)}, f.linkCalls, "score 4 does not expand, score 5 does")
	assert.Equal(t, []string{pub(0), pub(1)}, f.fetched)
	assert.Equal(t, 1, res.Expanded)
}

func TestRunProcessesFrontierInFIFOOrder(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2))
	f.add(pub(1), "doi/1", 3, pub(3), pub(4))
	f.add(pub(2), "doi/2", 3, pub(5))
	for i := 3; i <= 5; i++ {
		f.add(pub(i), fmt.Sprintf("doi/%d", i), 0)
	}

	e, _ := newTestEngine(t, testConfig(2, 100, 3), f)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{pub(0), pub(1), pub(2), pub(3), pub(4), pub(5)}, f.fetched)
	assert.Equal(t, 6, res.Iterations)
	assert.Equal(t, 0, res.FrontierSize)
}

func TestRunSkipsDuplicateIdentifiers(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2))
	f.add(pub(1), "doi/shared", 3, pub(3))
	f.add(pub(2), "doi/shared", 9, pub(4))
	f.add(pub(3), "doi/3", 0)

	rec := &fakeRecorder{}
	e, _ := newTestEngine(t, testConfig(2, 100, 3), f, WithRecorder(rec))
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 3, res.Scored)
	assert.Equal(t, 4, res.Iterations, "duplicate still consumes an iteration")
	assert.Equal(t, []string{pub(0), pub(1)}, f.linkCalls, "duplicate is not expanded")
	assert.NotContains(t, f.fetched, pub(4))
	assert.Equal(t, []string{"doi/0", "doi/shared", "doi/3"}, rec.docs)

	var locators []string
	for _, entry := range res.Top {
		locators = append(locators, entry.Locator)
		assert.NotEqual(t, 9, entry.Score, "duplicate is not re-scored")
	}
	assert.NotContains(t, locators, pub(2))
}

func TestRunSkipsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2), pub(3), pub(4))
	// pub(1) is unregistered and comes back malformed
	f.errs[pub(2)] = errors.New("connection reset")
	f.docs[pub(3)] = Document{URL: pub(3), Title: "planar"} // no identifier
	f.add(pub(4), "doi/4", 1)

	e, _ := newTestEngine(t, testConfig(2, 100, 3), f)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 5, res.Iterations)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 2, res.Scored)
	assert.Equal(t, []string{pub(0), pub(1), pub(2), pub(3), pub(4)}, f.fetched, "no URL is retried")
}

func TestRunLinkFailureDoesNotStopCrawl(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3)
	f.linkErrs[pub(0)] = errors.New("references page gone")

	e, _ := newTestEngine(t, testConfig(2, 10, 3), f)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 1, res.Scored)
	assert.Equal(t, 0, res.Skipped)
}

func TestRunStopsAtIterationBudget(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	links := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		links = append(links, pub(i))
		f.add(pub(i), fmt.Sprintf("doi/%d", i), 0)
	}
	f.add(pub(0), "doi/0", 3, links...)

	e, _ := newTestEngine(t, testConfig(2, 4, 3), f)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 4, res.Iterations)
	assert.Len(t, f.fetched, 4)
	assert.Equal(t, 7, res.FrontierSize)
}

func TestRunDedupesFrontierByURL(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(1)+"#abstract", pub(0), "/publication/1")
	f.add(pub(1), "doi/1", 3, pub(0), pub(1))

	e, _ := newTestEngine(t, testConfig(2, 10, 3), f)
	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{pub(0), pub(1)}, f.fetched)
}

func TestRunSeenSetIsMonotonic(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2), pub(3))
	f.add(pub(1), "doi/1", 0)
	f.add(pub(2), "doi/0", 0)
	f.add(pub(3), "doi/3", 0)

	var e *Engine
	var seenBefore int
	f.onFetch = func(string) {
		require.GreaterOrEqual(t, e.seen.Len(), seenBefore)
		seenBefore = e.seen.Len()
	}
	e, _ = newTestEngine(t, testConfig(2, 10, 3), f)
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, e.seen.Len())
	for _, id := range []string{"doi/0", "doi/1", "doi/3"} {
		assert.True(t, e.Seen(id))
	}
}

func TestRunTracksTopK(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2), pub(3))
	f.add(pub(1), "doi/1", 2)
	f.add(pub(2), "doi/2", 5)
	f.add(pub(3), "doi/3", 1)

	e, _ := newTestEngine(t, testConfig(2, 10, 2), f)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []topk.Entry{{Score: 3, Locator: pub(0)}, {Score: 5, Locator: pub(2)}}, res.Top)
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2))
	f.add(pub(1), "doi/1", 0)
	f.add(pub(2), "doi/2", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, _ := newTestEngine(t, testConfig(2, 10, 3), f)
	var slept int
	e.sleep = func(context.Context, time.Duration) {
		slept++
		if slept == 2 {
			cancel()
		}
	}

	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, res.State)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, []string{pub(2)}, e.Frontier().Snapshot())
}

func TestRunSleepsAfterEveryNonFatalIteration(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.add(pub(0), "doi/0", 3, pub(1), pub(2))
	f.errs[pub(2)] = &RateLimitError{URL: pub(2)}
	f.add(pub(1), "doi/1", 0)

	cfg := testConfig(2, 10, 3)
	delay := 1500
	cfg.RequestDelayMs = &delay

	e, _ := newTestEngine(t, cfg, f)
	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) {
		delays = append(delays, d)
	}

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, delays)
}

func TestSleepContextReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepContext(ctx, time.Hour)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "rate_limited", StateRateLimited.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}
