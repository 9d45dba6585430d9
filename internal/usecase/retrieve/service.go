// Package retrieve finds the chunks most similar to a question within one namespace.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/chat"
	"github.com/kailas-cloud/finrag/internal/domain/document"
)

// DefaultTopK is used when the caller passes topK <= 0.
const DefaultTopK = 5

// Service is the Retriever.
type Service struct {
	embedder Embedder
	store    Searcher
	topK     int
}

// New creates a retriever. topK <= 0 means DefaultTopK.
func New(e Embedder, s Searcher, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{embedder: e, store: s, topK: topK}
}

// Retrieve embeds query and returns up to topK chunks in similarity order.
// No score threshold is applied; weak matches are the generator's concern.
func (s *Service) Retrieve(ctx context.Context, ns, query string, topK int) ([]chat.RetrievedChunk, error) {
	if err := document.ValidateNamespace(ns); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = s.topK
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.Search(ctx, ns, emb.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]chat.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.Namespace != "" && m.Metadata.Namespace != ns {
			continue
		}
		out = append(out, chat.RetrievedChunk{
			Filename: m.Metadata.Filename,
			Page:     m.Metadata.Page,
			Text:     m.Metadata.Text,
			Score:    chat.RoundScore(m.Score),
		})
	}
	return out, nil
}
