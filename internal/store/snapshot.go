package store

import (
	"context"

	"kampus/api/internal/feed"
)

// ReportSnapshot loads the newest window reports, oldest first, as ADDED
// changes for a new feed subscription.
func (s *PostgresStore) ReportSnapshot(window int) feed.Snapshotter {
	return func(ctx context.Context) ([]feed.Change, error) {
		items, err := s.ListReports(ctx, ReportFilter{Limit: window})
		if err != nil {
			return nil, err
		}
		changes := make([]feed.Change, 0, len(items))
		for i := len(items) - 1; i >= 0; i-- {
			change, err := feed.NewChange(feed.Added, items[i].ID, items[i])
			if err != nil {
				return nil, err
			}
			changes = append(changes, change)
		}
		return changes, nil
	}
}
