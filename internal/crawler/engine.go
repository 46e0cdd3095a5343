package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alvmarrod/citation-weaver/internal/config"
	"github.com/alvmarrod/citation-weaver/internal/scoring"
	"github.com/alvmarrod/citation-weaver/internal/topk"
	"github.com/sirupsen/logrus"
)

// State is the crawl engine's lifecycle state
type State int

const (
	// StateRunning is the initial state
	StateRunning State = iota
	// StateExhausted means the frontier ran dry or the iteration budget ran out
	StateExhausted
	// StateRateLimited means the source throttled us and the crawl halted
	StateRateLimited
	// StateStopped means the caller cancelled the crawl
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExhausted:
		return "exhausted"
	case StateRateLimited:
		return "rate_limited"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result summarizes a finished crawl
type Result struct {
	State        State
	Iterations   int
	Scored       int
	Duplicates   int
	Skipped      int
	Expanded     int
	FrontierSize int
	Top          []topk.Entry
}

// Engine runs a single-threaded, breadth-first crawl. It owns the frontier,
// the seen set and the top-k tracker; none of them is shared with another
// writer.
type Engine struct {
	fetcher       Fetcher
	scorer        *scoring.Scorer
	tracker       *topk.Tracker
	frontier      *Frontier
	seen          *SeenSet
	threshold     int
	maxIterations int
	delay         time.Duration

	state      State
	iterations int
	scored     int
	duplicates int
	skipped    int
	expanded   int

	log      logrus.FieldLogger
	observer Observer
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration)
}

// Option customizes an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithObserver registers a progress observer
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithRecorder registers a recorder for scored documents
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// New validates cfg and builds an engine whose frontier holds only the seed
func New(cfg *config.Config, fetcher Fetcher, tracker *topk.Tracker, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if tracker == nil {
		return nil, errors.New("top-k tracker is required")
	}
	if tracker.Capacity() != cfg.Capacity() {
		return nil, fmt.Errorf("%w: tracker capacity %d does not match top_k %d",
			config.ErrInvalidConfig, tracker.Capacity(), cfg.Capacity())
	}

	e := &Engine{
		fetcher:       fetcher,
		scorer:        scoring.New(cfg.Keywords),
		tracker:       tracker,
		frontier:      NewFrontier(),
		seen:          NewSeenSet(),
		threshold:     cfg.Threshold(),
		maxIterations: cfg.IterationLimit(),
		delay:         cfg.RequestDelay(),
		state:         StateRunning,
		log:           logrus.StandardLogger(),
		observer:      nopObserver{},
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}

	seed, ok := NormalizeLink(cfg.SeedURL, cfg.SeedURL)
	if !ok {
		return nil, fmt.Errorf("%w: seed_url %q is not crawlable", config.ErrInvalidConfig, cfg.SeedURL)
	}
	e.frontier.Push(seed)

	return e, nil
}

// Run processes the frontier until the engine leaves StateRunning. The
// returned error is a *RateLimitError when the crawl halted on throttling.
// Cancelling ctx stops the crawl between iterations.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.log.Infof("Crawl started: threshold=%d, max_iterations=%d, delay=%s",
		e.threshold, e.maxIterations, e.delay)

	var runErr error
	for e.state == StateRunning {
		if err := e.step(ctx); err != nil {
			runErr = err
		}
	}

	e.log.WithFields(logrus.Fields{
		"state":      e.state.String(),
		"iterations": e.iterations,
		"scored":     e.scored,
		"duplicates": e.duplicates,
		"skipped":    e.skipped,
		"frontier":   e.frontier.Size(),
	}).Info("Crawl finished")

	return e.result(), runErr
}

// step performs one iteration of the crawl loop
func (e *Engine) step(ctx context.Context) error {
	if ctx.Err() != nil {
		e.log.Info("Crawl cancelled")
		e.state = StateStopped
		return nil
	}

	head, ok := e.frontier.Peek()
	if !ok || e.iterations >= e.maxIterations {
		e.state = StateExhausted
		return nil
	}

	e.iterations++
	e.log.Debugf("Iteration %d: %s", e.iterations, head)

	if err := e.process(ctx, head); err != nil {
		var rateLimited *RateLimitError
		switch {
		case errors.As(err, &rateLimited):
			e.log.Errorf("Too many requests at %s, halting crawl (retry after %s)", head, rateLimited.RetryAfter)
			e.state = StateRateLimited
			return err
		case ctx.Err() != nil:
			e.log.Infof("Crawl cancelled while fetching %s", head)
			e.state = StateStopped
			return nil
		case errors.Is(err, ErrMalformedDocument):
			e.log.Debugf("Skipping %s: %v", head, err)
		default:
			e.log.Warnf("Skipping %s: %v", head, err)
		}
		e.skipped++
		e.observer.FetchFailed()
	}

	e.frontier.Pop()
	e.sleep(ctx, e.delay)
	return nil
}

// process fetches, deduplicates, scores and possibly expands one URL
func (e *Engine) process(ctx context.Context, head string) error {
	start := time.Now()
	doc, err := e.fetcher.Fetch(ctx, head)
	if err != nil {
		return err
	}
	if doc.Identifier == "" {
		return fmt.Errorf("%w: empty identifier", ErrMalformedDocument)
	}
	e.observer.DocumentFetched(time.Since(start))

	if !e.seen.Add(doc.Identifier) {
		e.log.Debugf("Duplicate document %s at %s", doc.Identifier, head)
		e.duplicates++
		e.observer.DuplicateSkipped()
		return nil
	}

	score := e.scorer.Score(doc.SearchableText())
	e.scored++

	persisted, err := e.tracker.Offer(score, head)
	if err != nil {
		e.log.Errorf("Failed to persist top-k set: %v", err)
		e.observer.PersistFailed()
	} else if persisted {
		e.observer.TopKPersisted()
	}

	expand := score > e.threshold
	e.observer.DocumentScored(score, expand)
	e.log.Infof("Scored %s: %d (doi=%s)", head, score, doc.Identifier)

	if e.recorder != nil {
		if err := e.recorder.RecordDocument(doc, score, expand); err != nil {
			e.log.Warnf("Failed to record document %s: %v", doc.Identifier, err)
		}
	}

	if !expand {
		return nil
	}

	links, err := e.fetcher.FetchLinks(ctx, head)
	if err != nil {
		var rateLimited *RateLimitError
		if errors.As(err, &rateLimited) || ctx.Err() != nil {
			return err
		}
		e.log.Warnf("Failed to fetch links for %s: %v", head, err)
		return nil
	}

	e.expand(doc, head, links)
	return nil
}

// expand appends the newly discovered links to the frontier tail
func (e *Engine) expand(doc Document, head string, links []string) {
	filtered := FilterLinks(head, links)
	added := 0
	for _, link := range filtered {
		if e.frontier.Push(link) {
			added++
		}
	}
	e.expanded++
	e.observer.LinksEnqueued(added)

	if e.recorder != nil {
		if err := e.recorder.RecordLinks(doc.Identifier, filtered); err != nil {
			e.log.Warnf("Failed to record links for %s: %v", doc.Identifier, err)
		}
	}

	e.log.Infof("Expanded %s: %d links, %d new, frontier=%d", head, len(filtered), added, e.frontier.Size())
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return e.state
}

// Iterations returns the number of consumed iterations
func (e *Engine) Iterations() int {
	return e.iterations
}

// Frontier exposes the pending URL queue
func (e *Engine) Frontier() *Frontier {
	return e.frontier
}

// Seen reports whether a document identifier has been scored
func (e *Engine) Seen(identifier string) bool {
	return e.seen.Contains(identifier)
}

func (e *Engine) result() Result {
	return Result{
		State:        e.state,
		Iterations:   e.iterations,
		Scored:       e.scored,
		Duplicates:   e.duplicates,
		Skipped:      e.skipped,
		Expanded:     e.expanded,
		FrontierSize: e.frontier.Size(),
		Top:          e.tracker.Entries(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
