// Package vector implements the namespace-partitioned chunk index on top of db.Store.
//
// Every chunk is a HASH at {key_prefix}{namespace}/{stable_id}. A single FT index covers
// the key prefix; KNN queries are pre-filtered by the namespace TAG field.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/db"
	"github.com/kailas-cloud/finrag/internal/db/redis"
	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/document"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

// Hash fields of a stored chunk.
const (
	FieldNamespace = "namespace"
	FieldFilename  = "filename"
	FieldPage      = "page"
	FieldText      = "text"
	FieldDocPages  = "doc_pages"
	FieldVector    = "vector"
)

const keyBatch = 500

var listFields = []string{FieldNamespace, FieldFilename, FieldPage, FieldDocPages}

// store is the consumer interface for the chunk index (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HMGetMulti(ctx context.Context, keys []string, fields ...string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	ScanFirst(ctx context.Context, pattern string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexReady(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config describes the index and its lifecycle.
type Config struct {
	IndexName         string
	KeyPrefix         string
	Dimension         int
	HNSWM             int
	HNSWEFConstruct   int
	ReadinessPolls    int
	ReadinessInterval time.Duration
	UpsertBatchSize   int
}

// Repo is the redis-backed vector store.
type Repo struct {
	store  store
	cfg    Config
	cfgErr error
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

// New creates the repository. A nil store yields a repo whose every operation
// fails with a configuration error.
func New(s store, cfg Config, logger *zap.Logger) *Repo {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 50
	}
	r := &Repo{store: s, cfg: cfg, logger: logger}
	switch {
	case s == nil:
		r.cfgErr = domain.ConfigError("vector store", "store.redis.addrs")
	case cfg.IndexName == "":
		r.cfgErr = domain.ConfigError("vector store", "index.name")
	case cfg.Dimension <= 0:
		r.cfgErr = domain.ConfigError("vector store", "index.dimension")
	}
	return r
}

// EnsureReady creates the index when absent and waits for it to finish indexing.
// The wait is bounded by ReadinessPolls; running out of polls is logged, not returned.
func (r *Repo) EnsureReady(ctx context.Context) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("%w: check index %s: %w", domain.ErrStore, r.cfg.IndexName, err)
	}
	if !exists {
		if err := r.createIndex(ctx); err != nil {
			return err
		}
	}

	r.waitIndexed(ctx)
	r.ready = true
	return nil
}

func (r *Repo) createIndex(ctx context.Context) error {
	def, err := db.NewIndex(r.cfg.IndexName).
		Prefix(r.cfg.KeyPrefix).
		Tag(FieldNamespace).
		Vector(FieldVector, r.cfg.Dimension, db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("%w: index definition: %w", domain.ErrConfiguration, err)
	}

	err = r.store.CreateIndex(ctx, def)
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("%w: create index %s: %w", domain.ErrStore, r.cfg.IndexName, err)
	}
	if err == nil {
		r.logger.Info("Vector index created",
			zap.String("index", r.cfg.IndexName),
			zap.Int("dimension", r.cfg.Dimension),
		)
	}
	return nil
}

func (r *Repo) waitIndexed(ctx context.Context) {
	for i := 0; i < r.cfg.ReadinessPolls; i++ {
		ok, err := r.store.IndexReady(ctx, r.cfg.IndexName)
		if err == nil && ok {
			return
		}
		if err != nil {
			r.logger.Debug("Index readiness probe failed", zap.Int("attempt", i+1), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Warn("Index readiness wait cancelled", zap.Error(ctx.Err()))
			return
		case <-time.After(r.cfg.ReadinessInterval):
		}
	}
	if r.cfg.ReadinessPolls > 0 {
		r.logger.Warn("Index not ready after polling, continuing",
			zap.String("index", r.cfg.IndexName),
			zap.Int("polls", r.cfg.ReadinessPolls),
		)
	}
}

// Upsert writes records in batches. Records already written stay written when a later batch fails.
func (r *Repo) Upsert(ctx context.Context, ns string, records []domvec.Record) (int, error) {
	if err := r.check(ns); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(records); start += r.cfg.UpsertBatchSize {
		end := min(start+r.cfg.UpsertBatchSize, len(records))

		items := make([]db.HashSetItem, 0, end-start)
		for i := start; i < end; i++ {
			rec := &records[i]
			if len(rec.Values) != r.cfg.Dimension {
				return written, fmt.Errorf("%w: record %s: %w",
					domain.ErrStore, rec.ID, domain.DimMismatchError(len(rec.Values), r.cfg.Dimension))
			}
			items = append(items, db.HashSetItem{Key: r.key(ns, rec.ID), Fields: toFields(ns, rec)})
		}

		if err := r.store.HSetMulti(ctx, items); err != nil {
			return written, fmt.Errorf("%w: upsert batch at %d: %w", domain.ErrStore, start, err)
		}
		written += len(items)
	}
	return written, nil
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

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		TagFilters:   map[string]string{FieldNamespace: ns},
		VectorField:  FieldVector,
		Vector:       query,
		K:            topK,
		ReturnFields: []string{FieldNamespace, FieldFilename, FieldPage, FieldText, FieldDocPages},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrStore, err)
	}

	keyPrefix := r.nsKeyPrefix(ns)
	matches := make([]domvec.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Fields[FieldNamespace] != ns || !strings.HasPrefix(e.Key, keyPrefix) {
			continue
		}
		matches = append(matches, domvec.Match{
			ID:       strings.TrimPrefix(e.Key, keyPrefix),
			Score:    e.Score,
			Metadata: fromFields(e.Fields),
		})
	}
	return matches, nil
}

// List returns every chunk of ns whose id starts with idPrefix, ordered by id.
// Chunk text is not loaded.
func (r *Repo) List(ctx context.Context, ns, idPrefix string) ([]domvec.Ref, error) {
	if err := r.check(ns); err != nil {
		return nil, err
	}

	keys, err := r.store.Scan(ctx, r.pattern(ns, idPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrStore, ns, err)
	}
	sort.Strings(keys)

	keyPrefix := r.nsKeyPrefix(ns)
	refs := make([]domvec.Ref, 0, len(keys))
	for start := 0; start < len(keys); start += keyBatch {
		batch := keys[start:min(start+keyBatch, len(keys))]
		rows, err := r.store.HMGetMulti(ctx, batch, listFields...)
		if err != nil {
			return nil, fmt.Errorf("%w: load metadata: %w", domain.ErrStore, err)
		}
		for i, row := range rows {
			// ключ мог исчезнуть между SCAN и HMGET
			if len(row) == 0 {
				continue
			}
			refs = append(refs, domvec.Ref{
				ID:       strings.TrimPrefix(batch[i], keyPrefix),
				Metadata: fromFields(row),
			})
		}
	}
	return refs, nil
}

// DeleteByPrefix removes every chunk of ns whose id starts with idPrefix.
// Store failures do not fail the call; they mark the result degraded.
func (r *Repo) DeleteByPrefix(ctx context.Context, ns, idPrefix string) (domvec.DeleteResult, error) {
	if err := r.check(ns); err != nil {
		return domvec.DeleteResult{}, err
	}

	keys, err := r.store.Scan(ctx, r.pattern(ns, idPrefix))
	if err != nil {
		r.logger.Warn("Prefix listing failed, nothing deleted",
			zap.String("namespace", ns), zap.String("prefix", idPrefix), zap.Error(err))
		return domvec.DeleteResult{Degraded: true, Reason: "prefix listing failed"}, nil
	}

	var res domvec.DeleteResult
	for start := 0; start < len(keys); start += keyBatch {
		n, err := r.store.DelMulti(ctx, keys[start:min(start+keyBatch, len(keys))])
		if err != nil {
			r.logger.Warn("Prefix deletion interrupted",
				zap.String("namespace", ns), zap.Int("deleted", res.Deleted), zap.Error(err))
			res.Degraded = true
			res.Reason = "deletion interrupted"
			return res, nil
		}
		res.Deleted += n
	}
	return res, nil
}

// Ping checks that the store answers.
func (r *Repo) Ping(ctx context.Context) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

// HasAny reports whether ns holds at least one chunk.
func (r *Repo) HasAny(ctx context.Context, ns string) (bool, error) {
	if err := r.check(ns); err != nil {
		return false, err
	}
	found, err := r.store.ScanFirst(ctx, r.pattern(ns, ""))
	if err != nil {
		return false, fmt.Errorf("%w: probe %s: %w", domain.ErrStore, ns, err)
	}
	return found, nil
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

func (r *Repo) nsKeyPrefix(ns string) string {
	return r.cfg.KeyPrefix + ns + "/"
}

func (r *Repo) key(ns, id string) string {
	return r.nsKeyPrefix(ns) + id
}

func (r *Repo) pattern(ns, idPrefix string) string {
	return globEscaper.Replace(r.nsKeyPrefix(ns)+idPrefix) + "*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func toFields(ns string, rec *domvec.Record) map[string]string {
	return map[string]string{
		FieldNamespace: ns,
		FieldFilename:  rec.Metadata.Filename,
		FieldPage:      strconv.Itoa(rec.Metadata.Page),
		FieldText:      rec.Metadata.Text,
		FieldDocPages:  strconv.Itoa(rec.Metadata.DocPages),
		FieldVector:    string(redis.VectorToBytes(rec.Values)),
	}
}

func fromFields(f map[string]string) domvec.Metadata {
	page, _ := strconv.Atoi(f[FieldPage])
	docPages, _ := strconv.Atoi(f[FieldDocPages])
	return domvec.Metadata{
		Namespace: f[FieldNamespace],
		Filename:  f[FieldFilename],
		Page:      page,
		Text:      f[FieldText],
		DocPages:  docPages,
	}
}
