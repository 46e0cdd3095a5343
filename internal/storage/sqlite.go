package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		document_id INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		citation TEXT,
		score INTEGER NOT NULL DEFAULT 0,
		expanded INTEGER NOT NULL DEFAULT 0,
		crawled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS citations (
		citation_id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_document_id INTEGER NOT NULL,
		to_url TEXT NOT NULL,
		weight INTEGER DEFAULT 1,
		FOREIGN KEY (from_document_id) REFERENCES documents(document_id),
		UNIQUE(from_document_id, to_url)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_score ON documents(score);
	CREATE INDEX IF NOT EXISTS idx_citations_from ON citations(from_document_id);
	CREATE INDEX IF NOT EXISTS idx_citations_to ON citations(to_url);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertDocument inserts a document or refreshes its fields if the identifier exists.
// Returns the document_id of the inserted/existing row.
func (s *Storage) UpsertDocument(doc Document) (int, error) {
	_, err := s.db.Exec(`
		INSERT INTO documents (identifier, url, title, citation, score, expanded, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			citation = EXCLUDED.citation,
			score = EXCLUDED.score,
			expanded = EXCLUDED.expanded,
			crawled_at = EXCLUDED.crawled_at
	`, doc.Identifier, doc.URL, doc.Title, doc.Citation, doc.Score, doc.Expanded, doc.CrawledAt)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert document: %w", err)
	}

	var documentID int
	err = s.db.QueryRow("SELECT document_id FROM documents WHERE identifier = ?", doc.Identifier).Scan(&documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve document_id: %w", err)
	}

	return documentID, nil
}

// GetDocument retrieves a document by identifier, returns nil if not found
func (s *Storage) GetDocument(identifier string) (*Document, error) {
	var doc Document
	err := s.db.QueryRow(`
		SELECT document_id, identifier, url, title, citation, score, expanded, crawled_at
		FROM documents
		WHERE identifier = ?
	`, identifier).Scan(&doc.DocumentID, &doc.Identifier, &doc.URL, &doc.Title, &doc.Citation,
		&doc.Score, &doc.Expanded, &doc.CrawledAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// UpsertCitation inserts a new citation edge or adds weight to an existing one
func (s *Storage) UpsertCitation(fromID int, toURL string, weight int) error {
	_, err := s.db.Exec(`
		INSERT INTO citations (from_document_id, to_url, weight)
		VALUES (?, ?, ?)
		ON CONFLICT(from_document_id, to_url) DO UPDATE SET
			weight = weight + EXCLUDED.weight
	`, fromID, toURL, weight)

	if err != nil {
		return fmt.Errorf("failed to upsert citation: %w", err)
	}
	return nil
}

// Citations returns the outbound citation edges of a document
func (s *Storage) Citations(fromID int) ([]Citation, error) {
	rows, err := s.db.Query(`
		SELECT citation_id, from_document_id, to_url, weight
		FROM citations
		WHERE from_document_id = ?
		ORDER BY citation_id ASC
	`, fromID)
	if err != nil {
		return nil, fmt.Errorf("failed to load citations: %w", err)
	}
	defer rows.Close()

	var citations []Citation
	for rows.Next() {
		var c Citation
		if err := rows.Scan(&c.CitationID, &c.FromDocument, &c.ToURL, &c.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan citation: %w", err)
		}
		citations = append(citations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating citations: %w", err)
	}

	return citations, nil
}

// TopDocuments returns the highest scoring documents, best first
func (s *Storage) TopDocuments(limit int) ([]*Document, error) {
	rows, err := s.db.Query(`
		SELECT document_id, identifier, url, title, citation, score, expanded, crawled_at
		FROM documents
		ORDER BY score DESC, document_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.DocumentID, &doc.Identifier, &doc.URL, &doc.Title, &doc.Citation,
			&doc.Score, &doc.Expanded, &doc.CrawledAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
