// Package topk keeps the best scoring documents of a crawl and writes them out
// whenever the set's minimum moves.
package topk

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrInvalidCapacity is returned by New for capacities below one
var ErrInvalidCapacity = errors.New("top-k capacity must be >= 1")

// Entry is one scored locator
type Entry struct {
	Score   int
	Locator string
}

// Persister writes a full snapshot of the tracked entries, lowest score first
type Persister interface {
	Persist(entries []Entry) error
}

// Tracker holds at most capacity entries sorted ascending by score, so
// entries[0] is always the eviction candidate. Entries with equal scores are
// not told apart: whichever sorts first is evicted.
type Tracker struct {
	mu        sync.Mutex
	capacity  int
	entries   []Entry
	persister Persister
}

// New creates a tracker. A nil persister disables persistence.
func New(capacity int, persister Persister) (*Tracker, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Tracker{
		capacity:  capacity,
		entries:   make([]Entry, 0, capacity+1),
		persister: persister,
	}, nil
}

// Offer proposes a scored locator. It reports whether the offer evicted the
// previous minimum, which is the only case that rewrites the persisted set.
// A persistence error leaves the in-memory set updated.
func (t *Tracker) Offer(score int, locator string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case len(t.entries) < t.capacity:
		t.insert(Entry{Score: score, Locator: locator})
		return false, nil

	case len(t.entries) > t.capacity:
		// Over capacity: shed the minimum and ignore the offer.
		t.entries = t.entries[1:]
		return false, nil

	case score > t.entries[0].Score:
		t.insert(Entry{Score: score, Locator: locator})
		t.entries = t.entries[1:]
		if err := t.persist(); err != nil {
			return true, err
		}
		return true, nil
	}

	return false, nil
}

// Flush persists the current set unconditionally
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persist()
}

// Entries returns a copy of the tracked set, lowest score first
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

// Len returns the number of tracked entries
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Capacity returns the configured bound
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Min returns the current minimum entry, false when the set is empty
func (t *Tracker) Min() (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[0], true
}

func (t *Tracker) insert(e Entry) {
	t.entries = append(t.entries, e)
	slices.SortStableFunc(t.entries, func(a, b Entry) int {
		return cmp.Compare(a.Score, b.Score)
	})
}

func (t *Tracker) persist() error {
	if t.persister == nil {
		return nil
	}
	if err := t.persister.Persist(slices.Clone(t.entries)); err != nil {
		return fmt.Errorf("failed to persist top-k set: %w", err)
	}
	return nil
}
