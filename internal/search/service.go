package search

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	EngineMeili = "meilisearch"
	EnginePG    = "postgres"
)

type primaryEngine interface {
	Searcher
	Indexer
}

type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ReportRecord, error)
}

type fallbackEngine interface {
	Searcher
	recordLoader
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  primaryEngine
	fallback fallbackEngine
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	var primary primaryEngine
	if meili != nil {
		primary = meili
	}
	var fallback fallbackEngine
	if pgfts != nil {
		fallback = pgfts
	}
	return newService(primary, fallback, logger)
}

func newService(primary primaryEngine, fallback fallbackEngine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{primary: primary, fallback: fallback, logger: logger.Named("search")}
}

func (s *Service) primaryUp() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
// Failures degrade to an empty result set.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primaryUp() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EngineMeili}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: EnginePG}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text, Engine: EnginePG}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EnginePG}
}

// IndexReport indexes a report (fire-and-forget to Meilisearch).
func (s *Service) IndexReport(rec ReportRecord) {
	if !s.primaryUp() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.IndexReport(rec); err != nil {
			s.logger.Warn("index report", zap.String("report_id", rec.ID), zap.Error(err))
		}
	}()
}

// DeleteReport removes a report from the search index (fire-and-forget).
func (s *Service) DeleteReport(id string) {
	if !s.primaryUp() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.DeleteReport(id); err != nil {
			s.logger.Warn("delete report from index", zap.String("report_id", id), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight index updates finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAllFromPG pushes every report from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.primaryUp() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", zap.Error(err))
		return
	}
	if err := s.primary.IndexReports(records); err != nil {
		s.logger.Error("reindex reports", zap.Int("count", len(records)), zap.Error(err))
		return
	}
	s.logger.Info("reindexed reports", zap.Int("count", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
