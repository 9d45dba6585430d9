// Package document lists and deletes uploaded documents. A document has no record of
// its own; it is the group of chunks sharing a file prefix.
package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	domdoc "github.com/kailas-cloud/finrag/internal/domain/document"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Service handles document listing and deletion.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a document service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type group struct {
	filename string
	docPages int
	pages    map[int]struct{}
	chunks   int
}

// List returns the documents of ns sorted by filename.
func (s *Service) List(ctx context.Context, ns string) ([]domdoc.Summary, error) {
	if err := domdoc.ValidateNamespace(ns); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	refs, err := s.repo.List(ctx, ns, ns+"_")
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	groups := make(map[string]*group)
	for _, ref := range refs {
		parsed, ok := domdoc.ParseStableID(ref.ID)
		if !ok || parsed.Namespace != ns {
			s.logger.Debug("Skipping foreign id", zap.String("id", ref.ID))
			continue
		}
		g, ok := groups[parsed.Prefix()]
		if !ok {
			g = &group{filename: ref.Metadata.Filename, pages: make(map[int]struct{})}
			groups[parsed.Prefix()] = g
		}
		g.chunks++
		g.pages[parsed.Page] = struct{}{}
		if ref.Metadata.DocPages > g.docPages {
			g.docPages = ref.Metadata.DocPages
		}
		if g.filename == "" {
			g.filename = ref.Metadata.Filename
		}
	}

	out := make([]domdoc.Summary, 0, len(groups))
	for _, g := range groups {
		pages := g.docPages
		if pages == 0 {
			pages = len(g.pages)
		}
		out = append(out, domdoc.NewSummary(g.filename, pages, g.chunks))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename() < out[j].Filename() })
	return out, nil
}

// Delete removes every chunk of filename in ns. Partial or impossible deletion is not an
// error; it comes back as a degraded result.
func (s *Service) Delete(ctx context.Context, ns, filename string) (domvec.DeleteResult, error) {
	if err := domdoc.ValidateNamespace(ns); err != nil {
		return domvec.DeleteResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if strings.TrimSpace(filename) == "" {
		return domvec.DeleteResult{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}

	res, err := s.repo.DeleteByPrefix(ctx, ns, domdoc.FilePrefix(ns, filename))
	if err != nil {
		return domvec.DeleteResult{}, fmt.Errorf("delete chunks: %w", err)
	}

	if res.Degraded {
		metrics.StoreDeleteDegradedTotal.Inc()
		s.logger.Warn("Document deletion degraded",
			zap.String("namespace", ns),
			zap.String("filename", filename),
			zap.Int("deleted", res.Deleted),
			zap.String("reason", res.Reason),
		)
	}
	return res, nil
}
