// Package pgvector implements the chunk index on PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/document"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

// hnswMaxDim is the largest vector pgvector can put under an HNSW index.
const hnswMaxDim = 2000

// pool is the consumer interface over *pgxpool.Pool (ISP).
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Config describes the table.
type Config struct {
	Table           string
	Dimension       int
	UpsertBatchSize int
}

// Repo is the Postgres-backed vector store.
type Repo struct {
	pool   pool
	cfg    Config
	cfgErr error
	table  string
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

// Connect opens a connection pool. An empty DSN is a configuration error.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, domain.ConfigError("pgvector", "store.pgvector.dsn")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", domain.ErrConfiguration, err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", domain.ErrStore, err)
	}
	return p, nil
}

// New creates the repository. A nil pool yields a repo whose every operation
// fails with a configuration error.
func New(p pool, cfg Config, logger *zap.Logger) *Repo {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 50
	}
	r := &Repo{pool: p, cfg: cfg, logger: logger, table: pgx.Identifier{cfg.Table}.Sanitize()}
	switch {
	case p == nil:
		r.cfgErr = domain.ConfigError("vector store", "store.pgvector.dsn")
	case cfg.Table == "":
		r.cfgErr = domain.ConfigError("vector store", "store.pgvector.table")
	case cfg.Dimension <= 0:
		r.cfgErr = domain.ConfigError("vector store", "index.dimension")
	}
	return r
}

// EnsureReady installs the extension and creates the table and its indexes.
// Postgres indexes are usable as soon as CREATE INDEX returns, so nothing is polled.
func (r *Repo) EnsureReady(ctx context.Context) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	for _, stmt := range r.schema() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: schema: %w", domain.ErrStore, err)
		}
	}
	if r.cfg.Dimension > hnswMaxDim {
		r.logger.Warn("Dimension exceeds HNSW limit, searches use a sequential scan",
			zap.Int("dimension", r.cfg.Dimension))
	}

	r.ready = true
	return nil
}

func (r *Repo) schema() []string {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			filename TEXT NOT NULL,
			page INT NOT NULL,
			text TEXT NOT NULL,
			doc_pages INT NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (namespace, id)
		)`, r.table, r.cfg.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (namespace, id text_pattern_ops)`,
			pgx.Identifier{r.cfg.Table + "_prefix_idx"}.Sanitize(), r.table),
	}
	if r.cfg.Dimension <= hnswMaxDim {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{r.cfg.Table + "_hnsw_idx"}.Sanitize(), r.table))
	}
	return stmts
}

// Upsert writes records in batches with ON CONFLICT overwrite.
func (r *Repo) Upsert(ctx context.Context, ns string, records []domvec.Record) (int, error) {
	if err := r.check(ns); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (namespace, id, filename, page, text, doc_pages, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, id) DO UPDATE SET
			filename = EXCLUDED.filename, page = EXCLUDED.page, text = EXCLUDED.text,
			doc_pages = EXCLUDED.doc_pages, embedding = EXCLUDED.embedding`, r.table)

	written := 0
	for start := 0; start < len(records); start += r.cfg.UpsertBatchSize {
		end := min(start+r.cfg.UpsertBatchSize, len(records))

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			rec := &records[i]
			if len(rec.Values) != r.cfg.Dimension {
				return written, fmt.Errorf("%w: record %s: %w",
					domain.ErrStore, rec.ID, domain.DimMismatchError(len(rec.Values), r.cfg.Dimension))
			}
			batch.Queue(query, ns, rec.ID, rec.Metadata.Filename, rec.Metadata.Page,
				rec.Metadata.Text, rec.Metadata.DocPages, pgvector.NewVector(rec.Values))
		}

		if err := r.sendBatch(ctx, batch); err != nil {
			return written, fmt.Errorf("%w: upsert batch at %d: %w", domain.ErrStore, start, err)
		}
		written += end - start
	}
	return written, nil
}

func (r *Repo) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// Search returns up to topK chunks of ns ranked by cosine similarity.
func (r *Repo) Search(ctx context.Context, ns string, query []float32, topK int) ([]domvec.Match, error) {
	if err := r.check(ns); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidInput)
	}
	if len(query) != r.cfg.Dimension {
		return nil, domain.DimMismatchError(len(query), r.cfg.Dimension)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, filename, page, text, doc_pages, 1 - (embedding <=> $2) AS score
		 FROM %s WHERE namespace = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`, r.table),
		ns, pgvector.NewVector(query), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	var matches []domvec.Match
	for rows.Next() {
		m := domvec.Match{Metadata: domvec.Metadata{Namespace: ns}}
		if err := rows.Scan(&m.ID, &m.Metadata.Filename, &m.Metadata.Page,
			&m.Metadata.Text, &m.Metadata.DocPages, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan match: %w", domain.ErrStore, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows: %w", domain.ErrStore, err)
	}
	return matches, nil
}

// List returns every chunk of ns whose id starts with idPrefix, ordered by id.
func (r *Repo) List(ctx context.Context, ns, idPrefix string) ([]domvec.Ref, error) {
	if err := r.check(ns); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, filename, page, doc_pages FROM %s
		 WHERE namespace = $1 AND id LIKE $2 ESCAPE '\'
		 ORDER BY id`, r.table),
		ns, likePrefix(idPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrStore, ns, err)
	}
	defer rows.Close()

	var refs []domvec.Ref
	for rows.Next() {
		ref := domvec.Ref{Metadata: domvec.Metadata{Namespace: ns}}
		if err := rows.Scan(&ref.ID, &ref.Metadata.Filename, &ref.Metadata.Page, &ref.Metadata.DocPages); err != nil {
			return nil, fmt.Errorf("%w: scan ref: %w", domain.ErrStore, err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list rows: %w", domain.ErrStore, err)
	}
	return refs, nil
}

// DeleteByPrefix removes the chunks of ns whose id starts with idPrefix in one statement.
// A failed statement marks the result degraded instead of failing the call.
func (r *Repo) DeleteByPrefix(ctx context.Context, ns, idPrefix string) (domvec.DeleteResult, error) {
	if err := r.check(ns); err != nil {
		return domvec.DeleteResult{}, err
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = $1 AND id LIKE $2 ESCAPE '\'`, r.table),
		ns, likePrefix(idPrefix),
	)
	if err != nil {
		r.logger.Warn("Prefix deletion failed",
			zap.String("namespace", ns), zap.String("prefix", idPrefix), zap.Error(err))
		return domvec.DeleteResult{Degraded: true, Reason: "deletion failed"}, nil
	}
	return domvec.DeleteResult{Deleted: int(tag.RowsAffected())}, nil
}

// HasAny reports whether ns holds at least one chunk.
func (r *Repo) HasAny(ctx context.Context, ns string) (bool, error) {
	if err := r.check(ns); err != nil {
		return false, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE namespace = $1 LIMIT 1`, r.table), ns)
	if err != nil {
		return false, fmt.Errorf("%w: probe %s: %w", domain.ErrStore, ns, err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("%w: probe %s: %w", domain.ErrStore, ns, err)
	}
	return found, nil
}

// Ping checks that the database answers.
func (r *Repo) Ping(ctx context.Context) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *Repo) check(ns string) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}
	if err := document.ValidateNamespace(ns); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix turns a literal prefix into a LIKE pattern. Stable ids contain '_',
// which LIKE would otherwise treat as a wildcard.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
