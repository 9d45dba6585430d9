package ingest

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain/document"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

// Extractor turns document bytes into pages.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]document.Page, error)
}

// Chunker splits pages into chunks.
type Chunker interface {
	Chunk(pages []document.Page) []document.Chunk
}

// Embedder embeds document texts in paced batches, one vector per text in order.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Store is the write side of the vector store.
type Store interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, ns string, records []domvec.Record) (int, error)
}
