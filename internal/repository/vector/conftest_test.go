package vector

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/kailas-cloud/finrag/internal/db"
)

// fakeStore keeps hashes in memory and answers KNN with preset entries.
type fakeStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string

	indexExists  bool
	readyAfter   int
	readyCalls   int
	createCalls  int
	createErr    error
	lastCreate   *db.IndexDefinition
	lastKNN      *db.KNNQuery
	knnEntries   []db.SearchEntry
	scanErr      error
	delErr       error
	hsetErr      error
	hsetCalls    int
	scanPatterns []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hsetCalls++
	if f.hsetErr != nil && f.hsetCalls > 1 {
		return f.hsetErr
	}
	for _, it := range items {
		f.hashes[it.Key] = it.Fields
	}
	return nil
}

func (f *fakeStore) HMGetMulti(_ context.Context, keys []string, fields ...string) ([]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		m := map[string]string{}
		for _, fl := range fields {
			if v, ok := f.hashes[k][fl]; ok {
				m[fl] = v
			}
		}
		out[i] = m
	}
	return out, nil
}

func (f *fakeStore) DelMulti(_ context.Context, keys []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return 0, f.delErr
	}
	n := 0
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanPatterns = append(f.scanPatterns, pattern)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	var keys []string
	for k := range f.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStore) ScanFirst(ctx context.Context, pattern string) (bool, error) {
	keys, err := f.Scan(ctx, pattern)
	return len(keys) > 0, err
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.createCalls++
	f.lastCreate = def
	if f.createErr != nil {
		return f.createErr
	}
	f.indexExists = true
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return f.indexExists, nil
}

func (f *fakeStore) IndexReady(_ context.Context, _ string) (bool, error) {
	f.readyCalls++
	return f.readyCalls > f.readyAfter, nil
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.lastKNN = q
	return &db.SearchResult{Total: len(f.knnEntries), Entries: f.knnEntries}, nil
}

func (f *fakeStore) keysWithPrefix(prefix string) int {
	n := 0
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}
