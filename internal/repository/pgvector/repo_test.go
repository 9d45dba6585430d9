package pgvector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

func newRepo(p pool, dim int) *Repo {
	return New(p, Config{Table: "finrag_chunks", Dimension: dim, UpsertBatchSize: 2}, zap.NewNop())
}

func TestNew_NilPool(t *testing.T) {
	r := New(nil, Config{Table: "t", Dimension: 3}, zap.NewNop())
	if err := r.EnsureReady(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestConnect_EmptyDSN(t *testing.T) {
	if _, err := Connect(context.Background(), ""); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestEnsureReady_Schema(t *testing.T) {
	p := &fakePool{}
	r := newRepo(p, 768)
	ctx := context.Background()

	if err := r.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}
	if len(p.execs) != 4 {
		t.Fatalf("statements = %d, want 4 (run once)", len(p.execs))
	}
	if !strings.Contains(p.execs[1], `"finrag_chunks"`) || !strings.Contains(p.execs[1], "vector(768)") {
		t.Errorf("table ddl = %s", p.execs[1])
	}
	if !strings.Contains(p.execs[3], "hnsw (embedding vector_cosine_ops)") {
		t.Errorf("hnsw ddl = %s", p.execs[3])
	}
}

func TestEnsureReady_LargeDimensionSkipsHNSW(t *testing.T) {
	p := &fakePool{}
	if err := newRepo(p, 3072).EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, s := range p.execs {
		if strings.Contains(s, "hnsw") {
			t.Fatalf("unexpected hnsw index for 3072 dims: %s", s)
		}
	}
}

func TestUpsert_Batches(t *testing.T) {
	p := &fakePool{}
	r := newRepo(p, 2)

	recs := []domvec.Record{
		{ID: "acme_5c6813f4_p1_c0", Values: []float32{1, 0}, Metadata: domvec.Metadata{Filename: "a.pdf", Page: 1}},
		{ID: "acme_5c6813f4_p1_c1", Values: []float32{0, 1}, Metadata: domvec.Metadata{Filename: "a.pdf", Page: 1}},
		{ID: "acme_5c6813f4_p2_c0", Values: []float32{1, 1}, Metadata: domvec.Metadata{Filename: "a.pdf", Page: 2}},
	}
	n, err := r.Upsert(context.Background(), "acme", recs)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(p.batches) != 2 {
		t.Fatalf("written=%d batches=%d", n, len(p.batches))
	}
	q := p.batches[0].QueuedQueries[0]
	if !strings.Contains(q.SQL, "ON CONFLICT (namespace, id) DO UPDATE") {
		t.Errorf("sql = %s", q.SQL)
	}
	if q.Arguments[0] != "acme" || q.Arguments[1] != "acme_5c6813f4_p1_c0" {
		t.Errorf("args = %v", q.Arguments[:2])
	}
	if _, ok := q.Arguments[6].(pgvector.Vector); !ok {
		t.Errorf("embedding arg is %T", q.Arguments[6])
	}
}

func TestUpsert_BatchError(t *testing.T) {
	p := &fakePool{batchErr: errors.New("deadlock")}
	_, err := newRepo(p, 1).Upsert(context.Background(), "acme", []domvec.Record{{ID: "x", Values: []float32{1}}})
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	p := &fakePool{rows: [][]any{
		{"acme_5c6813f4_p2_c0", "report.pdf", 2, "balance sheet", 9, 0.875},
	}}
	got, err := newRepo(p, 2).Search(context.Background(), "acme", []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("matches = %d", len(got))
	}
	m := got[0]
	if m.Score != 0.875 || m.Metadata.Namespace != "acme" || m.Metadata.DocPages != 9 {
		t.Errorf("match = %+v", m)
	}
	if !strings.Contains(p.queries[0], "WHERE namespace = $1") {
		t.Errorf("query must be namespace scoped: %s", p.queries[0])
	}
}

func TestListAndDelete_EscapeLike(t *testing.T) {
	var listArgs []any
	p := &fakePool{
		execTag: "DELETE 4",
		queryFn: func(_ string, args []any) ([][]any, error) {
			listArgs = args
			return [][]any{{"acme_5c6813f4_p1_c0", "a.pdf", 1, 3}}, nil
		},
	}
	r := newRepo(p, 2)
	ctx := context.Background()

	refs, err := r.List(ctx, "acme", "acme_5c6813f4_")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Metadata.DocPages != 3 {
		t.Errorf("refs = %+v", refs)
	}
	if listArgs[1] != `acme\_5c6813f4\_%` {
		t.Errorf("like pattern = %v", listArgs[1])
	}

	res, err := r.DeleteByPrefix(ctx, "acme", "acme_5c6813f4_")
	if err != nil || res.Deleted != 4 || res.Degraded {
		t.Fatalf("delete = %+v, %v", res, err)
	}
}

func TestDeleteByPrefix_Degraded(t *testing.T) {
	p := &fakePool{execErr: errors.New("connection refused")}
	res, err := newRepo(p, 2).DeleteByPrefix(context.Background(), "acme", "acme_")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Errorf("expected degraded, got %+v", res)
	}
}

func TestHasAny(t *testing.T) {
	p := &fakePool{}
	r := newRepo(p, 2)
	if ok, err := r.HasAny(context.Background(), "acme"); err != nil || ok {
		t.Fatalf("empty: %v %v", ok, err)
	}
	p.rows = [][]any{{1}}
	if ok, _ := r.HasAny(context.Background(), "acme"); !ok {
		t.Error("expected chunks")
	}
}
