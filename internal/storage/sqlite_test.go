package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "crawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertDocument(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)
	crawledAt := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	id, err := store.UpsertDocument(Document{
		Identifier: "10.1115/1.4049157",
		URL:        "https://www.researchgate.net/publication/1",
		Title:      "Planar Bipeds",
		Citation:   "A, 2020. \"Planar Bipeds\". doi:10.1115/1.4049157",
		Score:      4,
		CrawledAt:  crawledAt,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	again, err := store.UpsertDocument(Document{
		Identifier: "10.1115/1.4049157",
		URL:        "https://www.researchgate.net/publication/1b",
		Title:      "Planar Bipeds",
		Score:      6,
		Expanded:   true,
		CrawledAt:  crawledAt,
	})
	require.NoError(t, err)
	assert.Equal(t, id, again, "identifier is the dedup key")

	doc, err := store.GetDocument("10.1115/1.4049157")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 6, doc.Score)
	assert.True(t, doc.Expanded)
	assert.Equal(t, "https://www.researchgate.net/publication/1b", doc.URL)
	assert.True(t, crawledAt.Equal(doc.CrawledAt))

	missing, err := store.GetDocument("10.0000/none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertCitationAccumulatesWeight(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)
	id, err := store.UpsertDocument(Document{Identifier: "doi/1", URL: "https://x/1", CrawledAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, store.UpsertCitation(id, "https://x/2", 1))
	require.NoError(t, store.UpsertCitation(id, "https://x/3", 1))
	require.NoError(t, store.UpsertCitation(id, "https://x/2", 2))

	citations, err := store.Citations(id)
	require.NoError(t, err)
	require.Len(t, citations, 2)
	assert.Equal(t, "https://x/2", citations[0].ToURL)
	assert.Equal(t, 3, citations[0].Weight)
	assert.Equal(t, 1, citations[1].Weight)
}

func TestTopDocuments(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t)
	for i, score := range []int{3, 9, 1, 7} {
		_, err := store.UpsertDocument(Document{
			Identifier: fmt.Sprintf("doi/%d", i),
			URL:        "https://x",
			Score:      score,
			CrawledAt:  time.Now(),
		})
		require.NoError(t, err)
	}

	top, err := store.TopDocuments(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 9, top[0].Score)
	assert.Equal(t, 7, top[1].Score)
}
