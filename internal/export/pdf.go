package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// chromeBinaries are tried in order when locating a browser for PDF output.
var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome-stable", "google-chrome"}

const pdfTimeout = 30 * time.Second

// pdfFooter numbers the pages; Chrome fills the pageNumber and totalPages spans.
const pdfFooter = `<div style="font-size:8px;width:100%;text-align:center;color:#666;">` +
	`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`

func chromePath(lookPath func(string) (string, error)) (string, error) {
	for _, name := range chromeBinaries {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium binary in PATH", ErrPDFDependencyMissing)
}

// percentEncodeForDataURL escapes every byte outside the RFC 3986
// unreserved set. Spaces become %20, never '+'.
func percentEncodeForDataURL(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// printDigest is the print action for an A4 portrait digest with numbered pages.
func printDigest(out *[]byte) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(8.27).
			WithPaperHeight(11.69).
			WithMarginTop(0.6).
			WithMarginBottom(0.7).
			WithMarginLeft(0.5).
			WithMarginRight(0.5).
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate("<span></span>").
			WithFooterTemplate(pdfFooter).
			Do(ctx)
		*out = data
		return err
	}
}

// exportPDF renders the digest HTML in headless Chromium and prints it.
func exportPDF(parent context.Context, html, title string) (*Result, error) {
	execPath, err := chromePath(exec.LookPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var pdf []byte
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitReady("body"),
		printDigest(&pdf),
	); err != nil {
		return nil, fmt.Errorf("print digest pdf: %w", err)
	}

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

var turkishFold = map[rune]rune{
	'ç': 'c', 'Ç': 'C', 'ğ': 'g', 'Ğ': 'G', 'ı': 'i', 'İ': 'I',
	'ö': 'o', 'Ö': 'O', 'ş': 's', 'Ş': 'S', 'ü': 'u', 'Ü': 'U',
}

// sanitizeFilename creates an ASCII filename from a title, folding Turkish
// letters to their base forms.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if folded, ok := turkishFold[r]; ok {
			r = folded
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}

	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "ozet"
	}
	return result
}
