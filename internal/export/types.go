// Package export renders report digests as PDF, DOCX, XLSX or HTML.
package export

import (
	"errors"
	"time"

	"kampus/api/internal/report"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ParseFormat accepts a case-insensitive format name; empty means PDF.
func ParseFormat(value string) (Format, error) {
	switch Format(lowerASCII(value)) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation. Zero filter fields
// mean "any".
type Request struct {
	Format      Format
	Status      report.Status
	Type        *report.Category
	Since       *time.Time
	Limit       int
	GeneratedBy string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
