package retrieve

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

// Embedder vectorizes the question (query role).
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Searcher runs a namespace-scoped similarity search.
type Searcher interface {
	Search(ctx context.Context, ns string, query []float32, topK int) ([]domvec.Match, error)
}
