// Package qdrant implements the chunk index on a Qdrant collection.
// Point ids are UUIDv5 of the chunk's stable id; the stable id itself travels in the payload.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/document"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
)

const (
	payloadNamespace = "namespace"
	payloadChunkID   = "chunk_id"
	payloadFilename  = "filename"
	payloadPage      = "page"
	payloadText      = "text"
	payloadDocPages  = "doc_pages"

	scrollPage = 256
)

// pointNamespace seeds UUIDv5 point ids.
var pointNamespace = uuid.MustParse("6f1c6a0e-8d1b-4c7e-9b1e-3f6a2d9c4b10")

// client is the consumer interface over *qdrant.Client (ISP).
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

// Config describes the collection and its lifecycle.
type Config struct {
	Collection        string
	Dimension         int
	ReadinessPolls    int
	ReadinessInterval time.Duration
	UpsertBatchSize   int
}

// Repo is the qdrant-backed vector store.
type Repo struct {
	client client
	cfg    Config
	cfgErr error
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

// Connect dials Qdrant over gRPC. An empty host is a configuration error.
func Connect(host string, port int, apiKey string, useTLS bool) (*qdrant.Client, error) {
	if host == "" {
		return nil, domain.ConfigError("qdrant", "store.qdrant.host")
	}
	c, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, APIKey: apiKey, UseTLS: useTLS})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant client: %w", domain.ErrStore, err)
	}
	return c, nil
}

// New creates the repository. A nil client yields a repo whose every operation
// fails with a configuration error.
func New(c client, cfg Config, logger *zap.Logger) *Repo {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 50
	}
	r := &Repo{client: c, cfg: cfg, logger: logger}
	switch {
	case c == nil:
		r.cfgErr = domain.ConfigError("vector store", "store.qdrant.host")
	case cfg.Collection == "":
		r.cfgErr = domain.ConfigError("vector store", "index.name")
	case cfg.Dimension <= 0:
		r.cfgErr = domain.ConfigError("vector store", "index.dimension")
	}
	return r
}

// EnsureReady creates the collection with a keyword index on namespace and waits for green status.
func (r *Repo) EnsureReady(ctx context.Context) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	exists, err := r.client.CollectionExists(ctx, r.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrStore, r.cfg.Collection, err)
	}
	if !exists {
		err := r.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: r.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(r.cfg.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("%w: create collection %s: %w", domain.ErrStore, r.cfg.Collection, err)
		}
		_, err = r.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: r.cfg.Collection,
			FieldName:      payloadNamespace,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("%w: index namespace payload: %w", domain.ErrStore, err)
		}
		r.logger.Info("Qdrant collection created",
			zap.String("collection", r.cfg.Collection),
			zap.Int("dimension", r.cfg.Dimension),
		)
	}

	r.waitGreen(ctx)
	r.ready = true
	return nil
}

func (r *Repo) waitGreen(ctx context.Context) {
	for i := 0; i < r.cfg.ReadinessPolls; i++ {
		info, err := r.client.GetCollectionInfo(ctx, r.cfg.Collection)
		if err == nil && info.GetStatus() == qdrant.CollectionStatus_Green {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.ReadinessInterval):
		}
	}
	if r.cfg.ReadinessPolls > 0 {
		r.logger.Warn("Collection not green after polling, continuing",
			zap.String("collection", r.cfg.Collection))
	}
}

// Upsert writes records in batches, waiting for each batch to be applied.
func (r *Repo) Upsert(ctx context.Context, ns string, records []domvec.Record) (int, error) {
	if err := r.check(ns); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(records); start += r.cfg.UpsertBatchSize {
		end := min(start+r.cfg.UpsertBatchSize, len(records))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			rec := &records[i]
			if len(rec.Values) != r.cfg.Dimension {
				return written, fmt.Errorf("%w: record %s: %w",
					domain.ErrStore, rec.ID, domain.DimMismatchError(len(rec.Values), r.cfg.Dimension))
			}
			payload, err := qdrant.TryValueMap(map[string]any{
				payloadNamespace: ns,
				payloadChunkID:   rec.ID,
				payloadFilename:  rec.Metadata.Filename,
				payloadPage:      rec.Metadata.Page,
				payloadText:      rec.Metadata.Text,
				payloadDocPages:  rec.Metadata.DocPages,
			})
			if err != nil {
				return written, fmt.Errorf("%w: record %s payload: %w", domain.ErrStore, rec.ID, err)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(PointID(rec.ID)),
				Vectors: qdrant.NewVectors(rec.Values...),
				Payload: payload,
			})
		}

		_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: r.cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return written, fmt.Errorf("%w: upsert batch at %d: %w", domain.ErrStore, start, err)
		}
		written += len(points)
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

	hits, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         namespaceFilter(ns),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", domain.ErrStore, err)
	}

	matches := make([]domvec.Match, 0, len(hits))
	for _, h := range hits {
		md := fromPayload(h.GetPayload())
		if md.Namespace != ns {
			continue
		}
		matches = append(matches, domvec.Match{
			ID:       h.GetPayload()[payloadChunkID].GetStringValue(),
			Score:    float64(h.GetScore()),
			Metadata: md,
		})
	}
	return matches, nil
}

// List returns every chunk of ns whose stable id starts with idPrefix, ordered by id.
func (r *Repo) List(ctx context.Context, ns, idPrefix string) ([]domvec.Ref, error) {
	if err := r.check(ns); err != nil {
		return nil, err
	}
	points, err := r.scroll(ctx, ns, idPrefix, qdrant.NewWithPayloadInclude(
		payloadNamespace, payloadChunkID, payloadFilename, payloadPage, payloadDocPages))
	if err != nil {
		return nil, err
	}

	refs := make([]domvec.Ref, 0, len(points))
	for _, p := range points {
		refs = append(refs, domvec.Ref{
			ID:       p.GetPayload()[payloadChunkID].GetStringValue(),
			Metadata: fromPayload(p.GetPayload()),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// DeleteByPrefix removes the chunks of ns whose stable id starts with idPrefix.
// Store failures mark the result degraded instead of failing the call.
func (r *Repo) DeleteByPrefix(ctx context.Context, ns, idPrefix string) (domvec.DeleteResult, error) {
	if err := r.check(ns); err != nil {
		return domvec.DeleteResult{}, err
	}

	points, err := r.scroll(ctx, ns, idPrefix, qdrant.NewWithPayloadInclude(payloadChunkID))
	if err != nil {
		r.logger.Warn("Prefix listing failed, nothing deleted",
			zap.String("namespace", ns), zap.String("prefix", idPrefix), zap.Error(err))
		return domvec.DeleteResult{Degraded: true, Reason: "prefix listing failed"}, nil
	}
	if len(points) == 0 {
		return domvec.DeleteResult{}, nil
	}

	ids := make([]*qdrant.PointId, len(points))
	for i, p := range points {
		ids[i] = p.GetId()
	}
	_, err = r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		r.logger.Warn("Prefix deletion failed",
			zap.String("namespace", ns), zap.String("prefix", idPrefix), zap.Error(err))
		return domvec.DeleteResult{Degraded: true, Reason: "deletion failed"}, nil
	}
	return domvec.DeleteResult{Deleted: len(ids)}, nil
}

// HasAny reports whether ns holds at least one chunk.
func (r *Repo) HasAny(ctx context.Context, ns string) (bool, error) {
	if err := r.check(ns); err != nil {
		return false, err
	}
	n, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.cfg.Collection,
		Filter:         namespaceFilter(ns),
		Exact:          qdrant.PtrOf(false),
	})
	if err != nil {
		return false, fmt.Errorf("%w: count %s: %w", domain.ErrStore, ns, err)
	}
	return n > 0, nil
}

// Ping checks that the server answers.
func (r *Repo) Ping(ctx context.Context) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}
	if _, err := r.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

// scroll pages through ns. Qdrant's scroll offset is inclusive, so one extra point
// is requested per page and becomes the next offset.
func (r *Repo) scroll(
	ctx context.Context, ns, idPrefix string, payload *qdrant.WithPayloadSelector,
) ([]*qdrant.RetrievedPoint, error) {
	var (
		out    []*qdrant.RetrievedPoint
		offset *qdrant.PointId
	)
	for {
		page, err := r.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: r.cfg.Collection,
			Filter:         namespaceFilter(ns),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPage + 1)),
			WithPayload:    payload,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scroll %s: %w", domain.ErrStore, ns, err)
		}

		var next *qdrant.PointId
		if len(page) > scrollPage {
			next = page[scrollPage].GetId()
			page = page[:scrollPage]
		}
		for _, p := range page {
			if strings.HasPrefix(p.GetPayload()[payloadChunkID].GetStringValue(), idPrefix) {
				out = append(out, p)
			}
		}
		if next == nil {
			return out, nil
		}
		offset = next
	}
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

// PointID maps a stable chunk id onto the UUID Qdrant requires.
func PointID(stableID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(stableID)).String()
}

func namespaceFilter(ns string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadNamespace, ns)}}
}

func fromPayload(p map[string]*qdrant.Value) domvec.Metadata {
	return domvec.Metadata{
		Namespace: p[payloadNamespace].GetStringValue(),
		Filename:  p[payloadFilename].GetStringValue(),
		Page:      int(p[payloadPage].GetIntegerValue()),
		Text:      p[payloadText].GetStringValue(),
		DocPages:  int(p[payloadDocPages].GetIntegerValue()),
	}
}
