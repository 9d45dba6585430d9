package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Batcher embeds document texts in fixed-size batches with a pause between calls.
// The limiter is shared by all ingestions of the process, so concurrent uploads
// are paced together against the provider quota.
type Batcher struct {
	embedder domain.BatchEmbedder
	size     int
	limiter  *rate.Limiter
	provider string
	logger   *zap.Logger
}

// NewBatcher creates a Batcher. pause <= 0 disables pacing.
func NewBatcher(
	e domain.BatchEmbedder, size int, pause time.Duration, provider string, logger *zap.Logger,
) *Batcher {
	if size <= 0 {
		size = MaxAPIBatchSize
	}
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &Batcher{
		embedder: e,
		size:     size,
		limiter:  rate.NewLimiter(limit, 1),
		provider: provider,
		logger:   logger,
	}
}

// EmbedAll returns one vector per text in input order. Batches run sequentially;
// the first failure aborts the rest.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, int, error) {
	out := make([][]float32, 0, len(texts))
	var tokens int

	for start := 0; start < len(texts); start += b.size {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, tokens, fmt.Errorf("wait for embedding batch: %w", err)
		}

		end := min(start+b.size, len(texts))
		res, err := b.embedder.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, tokens, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, tokens, fmt.Errorf("%w: provider returned %d vectors for %d texts",
				domain.ErrEmbedding, len(res.Embeddings), end-start)
		}

		metrics.EmbeddingBatchesTotal.WithLabelValues(b.provider).Inc()
		out = append(out, res.Embeddings...)
		tokens += res.TotalTokens

		b.logger.Debug("Embedding batch done",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(texts)),
		)
	}
	return out, tokens, nil
}
