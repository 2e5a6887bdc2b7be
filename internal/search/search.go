// Package search provides report full-text search with Meilisearch as the
// primary engine and PostgreSQL full-text search as the fallback.
package search

import (
	"context"
	"time"

	"kampus/api/internal/report"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Query describes a search request. Empty Type and Status match anything.
type Query struct {
	Text   string
	Type   string
	Status string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push reports into a search index.
type Indexer interface {
	IndexReport(rec ReportRecord) error
	IndexReports(recs []ReportRecord) error
	DeleteReport(id string) error
}

// ReportRecord is the data we index for a report.
type ReportRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
}

// RecordFromReport converts a stored report into its index document.
func RecordFromReport(rec report.Record) ReportRecord {
	return ReportRecord{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Type:        rec.Type.Label(),
		Status:      string(rec.Status),
		CreatedAt:   rec.Timestamp.Unix(),
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
