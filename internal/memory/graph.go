package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/alvmarrod/citation-weaver/internal/crawler"
	"github.com/alvmarrod/citation-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

// CitationGraph holds scored documents and their outbound links in memory
// until they are flushed to the results database
type CitationGraph struct {
	documents map[string]*storage.Document // identifier -> document
	order     []string                     // identifiers in scoring order
	edges     map[string]map[string]int    // identifier -> url -> weight
	now       func() time.Time
	mu        sync.RWMutex
}

var _ crawler.Recorder = (*CitationGraph)(nil)

// NewCitationGraph creates a new in-memory graph
func NewCitationGraph() *CitationGraph {
	return &CitationGraph{
		documents: make(map[string]*storage.Document),
		edges:     make(map[string]map[string]int),
		now:       time.Now,
	}
}

// RecordDocument stores a scored document
func (g *CitationGraph) RecordDocument(doc crawler.Document, score int, expanded bool) error {
	if doc.Identifier == "" {
		return fmt.Errorf("document at %s has no identifier", doc.URL)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.documents[doc.Identifier]; !exists {
		g.order = append(g.order, doc.Identifier)
	}
	g.documents[doc.Identifier] = &storage.Document{
		Identifier: doc.Identifier,
		URL:        doc.URL,
		Title:      doc.Title,
		Citation:   doc.Citation,
		Score:      score,
		Expanded:   expanded,
		CrawledAt:  g.now(),
	}
	return nil
}

// RecordLinks stores the outbound links of a recorded document
func (g *CitationGraph) RecordLinks(identifier string, links []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.documents[identifier]; !exists {
		return fmt.Errorf("document %s not recorded", identifier)
	}

	targets := g.edges[identifier]
	if targets == nil {
		targets = make(map[string]int)
		g.edges[identifier] = targets
	}
	for _, link := range links {
		targets[link]++
	}
	return nil
}

// GetDocument retrieves a recorded document by identifier
func (g *CitationGraph) GetDocument(identifier string) (*storage.Document, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, exists := g.documents[identifier]
	if !exists {
		return nil, false
	}
	docCopy := *doc
	return &docCopy, true
}

// GetStats returns current graph statistics
func (g *CitationGraph) GetStats() (documentCount, edgeCount int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, targets := range g.edges {
		edgeCount += len(targets)
	}
	return len(g.documents), edgeCount
}

// Flush writes all in-memory data to SQLite storage. It keeps going after a
// failed row and returns the first error.
func (g *CitationGraph) Flush(store *storage.Storage) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	startTime := time.Now()
	logrus.Info("Starting flush to database...")

	documentsWritten := 0
	edgesWritten := 0
	var firstErr error

	for _, identifier := range g.order {
		doc := g.documents[identifier]
		documentID, err := store.UpsertDocument(*doc)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logrus.Warnf("Failed to flush document %s: %v", identifier, err)
			continue
		}
		documentsWritten++

		for link, weight := range g.edges[identifier] {
			if err := store.UpsertCitation(documentID, link, weight); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				logrus.Warnf("Failed to flush citation %s -> %s: %v", identifier, link, err)
				continue
			}
			edgesWritten++
		}
	}

	duration := time.Since(startTime)
	logrus.Infof("Flush complete: %d documents, %d citations written in %v", documentsWritten, edgesWritten, duration)

	return firstErr
}
