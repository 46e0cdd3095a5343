package crawler

import (
	"sync"
)

// Frontier is the FIFO queue of URLs awaiting processing. A URL is accepted
// at most once per crawl, so the same page is not fetched twice even before
// its identifier is known.
type Frontier struct {
	mu       sync.Mutex
	items    []string
	enqueued map[string]bool
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		items:    make([]string, 0),
		enqueued: make(map[string]bool),
	}
}

// Push appends url to the tail. Returns false if url was enqueued before.
func (f *Frontier) Push(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.enqueued[url] {
		return false
	}
	f.enqueued[url] = true
	f.items = append(f.items, url)
	return true
}

// Peek returns the head without removing it
func (f *Frontier) Peek() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return "", false
	}
	return f.items[0], true
}

// Pop removes and returns the head
func (f *Frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return "", false
	}
	head := f.items[0]
	f.items[0] = ""
	f.items = f.items[1:]
	return head, true
}

// IsEmpty returns true if the frontier has no items
func (f *Frontier) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) == 0
}

// Size returns the current number of pending URLs
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Snapshot returns a copy of the pending URLs in processing order
func (f *Frontier) Snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]string, len(f.items))
	copy(entries, f.items)
	return entries
}
