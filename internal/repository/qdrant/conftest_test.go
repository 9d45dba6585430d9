package qdrant

import (
	"context"
	"errors"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

type storedPoint struct {
	id      string
	payload map[string]*qdrant.Value
}

// fakeClient keeps points in memory and applies keyword filters on the namespace payload.
type fakeClient struct {
	exists      bool
	creates     int
	fieldIndex  string
	infoCalls   int
	points      map[string]storedPoint
	upsertCalls int
	scrollErr   error
	deleteErr   error
	queryHits   []*qdrant.ScoredPoint
	lastQuery   *qdrant.QueryPoints
}

func newFakeClient() *fakeClient {
	return &fakeClient{points: make(map[string]storedPoint)}
}

func (f *fakeClient) CollectionExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeClient) CreateCollection(context.Context, *qdrant.CreateCollection) error {
	f.creates++
	f.exists = true
	return nil
}

func (f *fakeClient) CreateFieldIndex(
	_ context.Context, req *qdrant.CreateFieldIndexCollection,
) (*qdrant.UpdateResult, error) {
	f.fieldIndex = req.FieldName
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) GetCollectionInfo(context.Context, string) (*qdrant.CollectionInfo, error) {
	f.infoCalls++
	return &qdrant.CollectionInfo{Status: qdrant.CollectionStatus_Green}, nil
}

func (f *fakeClient) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upsertCalls++
	for _, p := range req.Points {
		f.points[p.GetId().GetUuid()] = storedPoint{id: p.GetId().GetUuid(), payload: p.Payload}
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastQuery = req
	return f.queryHits, nil
}

func (f *fakeClient) Scroll(_ context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	if f.scrollErr != nil {
		return nil, f.scrollErr
	}
	matched := f.filtered(req.GetFilter())
	start := 0
	if req.Offset != nil {
		start = sort.SearchStrings(matched, req.Offset.GetUuid())
	}
	end := min(start+int(req.GetLimit()), len(matched))

	out := make([]*qdrant.RetrievedPoint, 0, end-start)
	for _, id := range matched[start:end] {
		out = append(out, &qdrant.RetrievedPoint{Id: qdrant.NewID(id), Payload: f.points[id].payload})
	}
	return out, nil
}

func (f *fakeClient) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	for _, id := range req.GetPoints().GetPoints().GetIds() {
		delete(f.points, id.GetUuid())
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Count(_ context.Context, req *qdrant.CountPoints) (uint64, error) {
	return uint64(len(f.filtered(req.GetFilter()))), nil
}

func (f *fakeClient) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	if f.exists {
		return &qdrant.HealthCheckReply{}, nil
	}
	return nil, errors.New("unavailable")
}

// filtered returns sorted ids of points matching every keyword condition.
func (f *fakeClient) filtered(filter *qdrant.Filter) []string {
	var ids []string
	for id, p := range f.points {
		ok := true
		for _, c := range filter.GetMust() {
			field := c.GetField()
			if p.payload[field.GetKey()].GetStringValue() != field.GetMatch().GetKeyword() {
				ok = false
			}
		}
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
