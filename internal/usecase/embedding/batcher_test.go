package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// echoBatchEmbedder returns [index of text in the whole input] as the vector.
type echoBatchEmbedder struct {
	sizes   []int
	calls   []time.Time
	failAt  int
	results int
}

func (e *echoBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.calls = append(e.calls, time.Now())
	e.sizes = append(e.sizes, len(texts))
	if e.failAt > 0 && len(e.calls) == e.failAt {
		return domain.BatchEmbeddingResult{}, domain.ErrEmbedding
	}
	n := len(texts)
	if e.results > 0 {
		n = e.results
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i%len(texts)]))}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func TestBatcher_PreservesOrder(t *testing.T) {
	inner := &echoBatchEmbedder{}
	b := NewBatcher(inner, 2, 0, "test-order", zap.NewNop())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, tokens, err := b.EmbedAll(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != len(texts) || tokens != 5 {
		t.Fatalf("vecs=%d tokens=%d", len(vecs), tokens)
	}
	for i, v := range vecs {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vector %d belongs to %q", i, texts[i])
		}
	}
	if len(inner.sizes) != 3 || inner.sizes[0] != 2 || inner.sizes[2] != 1 {
		t.Errorf("batch sizes = %v", inner.sizes)
	}
}

func TestBatcher_PausesBetweenBatches(t *testing.T) {
	inner := &echoBatchEmbedder{}
	pause := 50 * time.Millisecond
	b := NewBatcher(inner, 1, pause, "test-pause", zap.NewNop())

	if _, _, err := b.EmbedAll(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if gap := inner.calls[2].Sub(inner.calls[0]); gap < 2*pause-10*time.Millisecond {
		t.Errorf("batches not paced: %v", gap)
	}
}

func TestBatcher_StopsOnError(t *testing.T) {
	inner := &echoBatchEmbedder{failAt: 2}
	b := NewBatcher(inner, 1, 0, "test-fail", zap.NewNop())

	_, _, err := b.EmbedAll(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if len(inner.calls) != 2 {
		t.Errorf("calls after failure: %d", len(inner.calls))
	}
}

func TestBatcher_CountMismatch(t *testing.T) {
	inner := &echoBatchEmbedder{results: 1}
	b := NewBatcher(inner, 10, 0, "test-mismatch", zap.NewNop())

	if _, _, err := b.EmbedAll(context.Background(), []string{"a", "b"}); !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestBatcher_CancelledWhilePacing(t *testing.T) {
	inner := &echoBatchEmbedder{}
	b := NewBatcher(inner, 1, time.Hour, "test-cancel", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := b.EmbedAll(ctx, []string{"a", "b"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBatcher_Empty(t *testing.T) {
	b := NewBatcher(&echoBatchEmbedder{}, 10, time.Hour, "test-empty", zap.NewNop())
	vecs, tokens, err := b.EmbedAll(context.Background(), nil)
	if err != nil || len(vecs) != 0 || tokens != 0 {
		t.Fatalf("vecs=%v tokens=%d err=%v", vecs, tokens, err)
	}
}
