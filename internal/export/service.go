package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kampus/api/internal/report"
	"kampus/api/internal/store"
)

const digestTitle = "Kampüs Bildirim Özeti"

// DataStore defines the interface for data access
type DataStore interface {
	ListReports(ctx context.Context, filter store.ReportFilter) ([]report.Record, error)
}

type htmlRenderer func(ctx context.Context, html, title string) (*Result, error)

// Service provides digest export functionality
type Service struct {
	store  DataStore
	logger *zap.Logger
	now    func() time.Time
	pdf    htmlRenderer
	docx   func(TemplateData) (*Result, error)
}

// NewService creates a new export service
func NewService(store DataStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger.Named("export"),
		now:    time.Now,
		pdf:    exportPDF,
		docx:   exportDOCX,
	}
}

// Export generates a digest in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	records, err := s.store.ListReports(ctx, store.ReportFilter{
		Status: req.Status,
		Type:   req.Type,
		Since:  req.Since,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	now := s.now()
	title := digestTitle + " " + now.Format("2006-01-02")
	s.logger.Info("exporting digest",
		zap.String("format", string(req.Format)),
		zap.Int("reports", len(records)),
		zap.String("requested_by", req.GeneratedBy),
	)

	if req.Format == FormatXLSX {
		return exportXLSX(records, title)
	}

	data := buildTemplateData(digestTitle, req.GeneratedBy, now, records)
	if req.Format == FormatDOCX {
		return s.docx(data)
	}

	html, err := RenderDigestHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return s.pdf(ctx, html, title)
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
