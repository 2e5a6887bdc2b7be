package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres the whole service is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks reports with ts_rank over the generated Turkish tsvector and
// builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('turkish', $1)"
	where := []string{"r.fts @@ " + tsQuery}
	args := []any{q.Text}
	if q.Type != "" {
		args = append(args, q.Type)
		where = append(where, fmt.Sprintf("r.type = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM reports r WHERE "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT r.id::text, r.title,
			ts_headline('turkish', r.description, %s, 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet,
			r.type, r.status, r.created_at
		FROM reports r
		WHERE %s
		ORDER BY ts_rank(r.fts, %s) DESC, r.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, whereSQL, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var created time.Time
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Type, &r.Status, &created); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Timestamp = created.UTC()
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every report for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ReportRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, description, type, status, created_at
		FROM reports
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	defer rows.Close()

	records := make([]ReportRecord, 0)
	for rows.Next() {
		var rec ReportRecord
		var created time.Time
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Type, &rec.Status, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rec.CreatedAt = created.Unix()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return records, nil
}
