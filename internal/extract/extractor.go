// Package extract turns PDF bytes into normalized page text, keeping the pages that look
// like financial statements.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/document"
)

// DefaultKeywords mark pages that likely hold financial statements. Matched case-insensitively.
var DefaultKeywords = []string{
	"balance sheet",
	"income statement",
	"statement of earnings",
	"cash flow statement",
	"statement of cash flows",
	"financial highlights",
	"key metrics",
	"consolidated statement",
	"risk factors",
	"management's discussion",
	"md&a",
}

const (
	defaultHeadPages = 10
	defaultTailPages = 10
)

// PageSource is an opened, paginated document. Page indices are 0-based.
type PageSource interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Close() error
}

// Opener parses raw bytes into a PageSource.
type Opener func(data []byte) (PageSource, error)

// OpenPDF opens PDF bytes with MuPDF.
func OpenPDF(data []byte) (PageSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Extract
	}
	return doc, nil
}

// Extractor converts document bytes into pages.
type Extractor struct {
	open      Opener
	keywords  []string
	headPages int
	tailPages int
	logger    *zap.Logger
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithOpener replaces the PDF backend.
func WithOpener(o Opener) Option {
	return func(e *Extractor) {
		if o != nil {
			e.open = o
		}
	}
}

// WithKeywords replaces the keyword set.
func WithKeywords(kw ...string) Option {
	return func(e *Extractor) {
		if len(kw) > 0 {
			e.keywords = lowerAll(kw)
		}
	}
}

// WithFallbackPages sets how many leading and trailing pages are kept when no page matches.
func WithFallbackPages(head, tail int) Option {
	return func(e *Extractor) {
		if head >= 0 {
			e.headPages = head
		}
		if tail >= 0 {
			e.tailPages = tail
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Extractor backed by go-fitz.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		open:      OpenPDF,
		keywords:  lowerAll(DefaultKeywords),
		headPages: defaultHeadPages,
		tailPages: defaultTailPages,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the keyword-matching pages of data in page order. When none match it
// falls back to the first and last pages without filtering. Unparseable bytes fail with
// domain.ErrExtraction; a parseable document without text yields no pages and no error.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]document.Page, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrExtraction)
	}

	src, err := e.open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open document: %w", domain.ErrExtraction, err)
	}
	defer func() { _ = src.Close() }()

	n := src.NumPage()
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		raw, err := src.Text(i)
		if err != nil {
			// Unreadable page counts as empty, the rest of the document is still usable.
			e.logger.Debug("Page text extraction failed", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		texts[i] = Normalize(raw)
	}

	pages := e.filter(texts)
	if len(pages) == 0 && n > 0 {
		pages = e.fallback(texts)
		e.logger.Debug("No keyword pages, using head/tail fallback",
			zap.Int("total_pages", n),
			zap.Int("kept_pages", len(pages)),
		)
	}
	return pages, nil
}

func (e *Extractor) filter(texts []string) []document.Page {
	var pages []document.Page
	for i, text := range texts {
		if text == "" {
			continue
		}
		if e.matches(text) {
			pages = append(pages, document.Page{Number: i + 1, Text: text})
		}
	}
	return pages
}

func (e *Extractor) fallback(texts []string) []document.Page {
	n := len(texts)
	var pages []document.Page
	for i, text := range texts {
		num := i + 1
		if num > e.headPages && num <= n-e.tailPages {
			continue
		}
		if text == "" {
			continue
		}
		pages = append(pages, document.Page{Number: num, Text: text})
	}
	return pages
}

func (e *Extractor) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Normalize collapses whitespace runs into single spaces and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
