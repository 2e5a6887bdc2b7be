package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"kampus/api/internal/export"
	"kampus/api/internal/report"
	"kampus/api/internal/search"
)

type SearchInput struct {
	Query  string
	Type   string
	Status string
	Limit  int
	Offset int
}

func (s *Service) Search(ctx context.Context, input SearchInput) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Arama kullanılamıyor.", nil)
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	if input.Type != "" {
		if _, ok := report.ParseCategory(input.Type); !ok {
			return search.Response{}, validationError("Bilinmeyen kategori: " + input.Type)
		}
	}
	if input.Status != "" {
		if _, ok := report.ParseStatus(input.Status); !ok {
			return search.Response{}, validationError("Geçersiz durum.")
		}
	}
	return s.search.Search(ctx, search.Query{
		Text:   query,
		Type:   input.Type,
		Status: input.Status,
		Limit:  input.Limit,
		Offset: input.Offset,
	}), nil
}

type ExportInput struct {
	Format string
	Status string
	Type   string
	Since  string
}

// Export renders the admin digest of reports.
func (s *Service) Export(ctx context.Context, session Session, input ExportInput) (*export.Result, error) {
	format, err := export.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}
	req := export.Request{Format: format, GeneratedBy: session.UserName}
	if input.Status != "" {
		status, ok := report.ParseStatus(input.Status)
		if !ok {
			return nil, validationError("Geçersiz durum.")
		}
		req.Status = status
	}
	if input.Type != "" {
		category, ok := report.ParseCategory(input.Type)
		if !ok {
			return nil, validationError("Bilinmeyen kategori: " + input.Type)
		}
		req.Type = &category
	}
	if input.Since != "" {
		since, err := time.Parse("2006-01-02", input.Since)
		if err != nil {
			return nil, validationError("since YYYY-AA-GG biçiminde olmalı.")
		}
		req.Since = &since
	}
	return s.export.Export(ctx, req)
}
