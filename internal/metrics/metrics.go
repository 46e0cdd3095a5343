package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/citation-weaver/internal/crawler"
	"github.com/alvmarrod/citation-weaver/internal/storage"
)

// Tracker holds and manages crawl metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
}

var _ crawler.Observer = (*Tracker)(nil)

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
}

// DocumentFetched records a successful page fetch and its duration
func (t *Tracker) DocumentFetched(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DocumentsFetched++
	t.totalFetchTimeMs += elapsed.Milliseconds()
	t.fetchCount++
}

// FetchFailed increments the skipped page counter
func (t *Tracker) FetchFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.FetchFailures++
}

// DuplicateSkipped increments the duplicate counter
func (t *Tracker) DuplicateSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Duplicates++
}

// DocumentScored records a score and whether it expanded the frontier
func (t *Tracker) DocumentScored(score int, expanded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DocumentsScored++
	if expanded {
		t.data.DocumentsExpanded++
	}
	if score > t.data.BestScore {
		t.data.BestScore = score
	}
}

// LinksEnqueued adds newly queued links
func (t *Tracker) LinksEnqueued(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.LinksEnqueued += n
}

// TopKPersisted increments the top-k rewrite counter
func (t *Tracker) TopKPersisted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TopKWrites++
}

// PersistFailed increments the failed top-k rewrite counter
func (t *Tracker) PersistFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TopKWriteFailures++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	// Calculate average fetch time
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs

	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress renders current metrics as one line (for periodic updates)
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Documents: %d fetched, %d scored, %d expanded | Duplicates: %d | Failures: %d | Links queued: %d | Best score: %d",
		t.data.DocumentsFetched,
		t.data.DocumentsScored,
		t.data.DocumentsExpanded,
		t.data.Duplicates,
		t.data.FetchFailures,
		t.data.LinksEnqueued,
		t.data.BestScore,
	)
}
