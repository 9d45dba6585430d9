// Package ingest runs the upload pipeline: extract, chunk, embed, upsert.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/document"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Service is the IngestionPipeline.
type Service struct {
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	store     Store
	logger    *zap.Logger
}

// New creates an ingestion service.
func New(x Extractor, c Chunker, e Embedder, s Store, logger *zap.Logger) *Service {
	return &Service{extractor: x, chunker: c, embedder: e, store: s, logger: logger}
}

// Ingest stores the chunks of one uploaded document under ns.
// Re-ingesting the same filename overwrites chunks with the same (page, index).
// Batches upserted before a failure are not rolled back.
func (s *Service) Ingest(ctx context.Context, data []byte, filename, ns string) (document.Summary, error) {
	start := time.Now()
	summary, err := s.ingest(ctx, data, filename, ns)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IngestDocumentsTotal.WithLabelValues(status).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	return summary, err
}

func (s *Service) ingest(ctx context.Context, data []byte, filename, ns string) (document.Summary, error) {
	if err := document.ValidateNamespace(ns); err != nil {
		return document.Summary{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if strings.TrimSpace(filename) == "" {
		return document.Summary{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}

	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		if !errors.Is(err, domain.ErrExtraction) {
			err = fmt.Errorf("%w: %w", domain.ErrExtraction, err)
		}
		return document.Summary{}, fmt.Errorf("extract %s: %w", filename, err)
	}

	chunks := s.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return document.Summary{}, fmt.Errorf("%w: %w", domain.ErrExtraction, domain.ErrNoReadableText)
	}

	if err := s.store.EnsureReady(ctx); err != nil {
		return document.Summary{}, fmt.Errorf("ensure index: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, tokens, err := s.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return document.Summary{}, fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]domvec.Record, len(chunks))
	for i, c := range chunks {
		records[i] = domvec.Record{
			ID:     document.StableID(ns, filename, c.Page, c.Index),
			Values: vectors[i],
			Metadata: domvec.Metadata{
				Namespace: ns,
				Filename:  filename,
				Page:      c.Page,
				Text:      c.Text,
				DocPages:  len(pages),
			},
		}
	}

	written, err := s.store.Upsert(ctx, ns, records)
	if err != nil {
		s.logger.Warn("Upsert stopped part way",
			zap.String("filename", filename),
			zap.Int("written", written),
			zap.Int("total", len(records)),
			zap.Error(err),
		)
		return document.Summary{}, fmt.Errorf("upsert chunks: %w", err)
	}
	metrics.IngestChunksTotal.Add(float64(written))

	s.logger.Info("Document ingested",
		zap.String("namespace", ns),
		zap.String("filename", filename),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedding_tokens", tokens),
	)
	return document.NewSummary(filename, len(pages), len(chunks)), nil
}
