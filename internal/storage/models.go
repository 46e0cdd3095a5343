package storage

import "time"

// Document is a scored publication as stored in the results database
type Document struct {
	DocumentID int
	Identifier string
	URL        string
	Title      string
	Citation   string
	Score      int
	Expanded   bool
	CrawledAt  time.Time
}

// Citation is a directed link from a scored document to a discovered URL
type Citation struct {
	CitationID   int
	FromDocument int
	ToURL        string
	Weight       int
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	DocumentsFetched  int       `json:"documents_fetched"`
	DocumentsScored   int       `json:"documents_scored"`
	DocumentsExpanded int       `json:"documents_expanded"`
	Duplicates        int       `json:"duplicates"`
	FetchFailures     int       `json:"fetch_failures"`
	LinksEnqueued     int       `json:"links_enqueued"`
	TopKWrites        int       `json:"top_k_writes"`
	TopKWriteFailures int       `json:"top_k_write_failures"`
	BestScore         int       `json:"best_score"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
