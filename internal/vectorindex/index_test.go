package vectorindex

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

type fakeStore struct {
	mu    sync.Mutex
	data  map[string][]Entry
	loads int
	err   error
}

func (f *fakeStore) LoadEmbeddings(ctx context.Context, siteID string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.data[siteID], nil
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %v", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: got %v", got)
	}
	if got := Cosine([]float64{0, 0}, []float64{1, 1}); got != 0 {
		t.Errorf("zero vector: got %v", got)
	}
	if got := Cosine([]float64{1}, []float64{1, 2}); got != 0 {
		t.Errorf("mismatched length: got %v", got)
	}
}

func TestQueryOrdersAndLimits(t *testing.T) {
	store := &fakeStore{data: map[string][]Entry{
		"site-a": {
			{ArticleID: "far", Vector: []float64{0, 1}},
			{ArticleID: "near", Vector: []float64{1, 0.1}},
			{ArticleID: "mid", Vector: []float64{1, 1}},
		},
	}}
	ix := New(store, 2)

	hits, err := ix.Query(context.Background(), "site-a", []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ArticleID != "near" || hits[1].ArticleID != "mid" {
		t.Errorf("unexpected order: %+v", hits)
	}
}

func TestSitesAreIsolated(t *testing.T) {
	store := &fakeStore{data: map[string][]Entry{}}
	ix := New(store, 0)
	ctx := context.Background()

	if err := ix.Insert(ctx, "site-a", "a1", []float64{1, 0, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	hits, err := ix.Query(ctx, "site-b", []float64{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("site-b must not see site-a entries, got %+v", hits)
	}

	hits, _ = ix.Query(ctx, "site-a", []float64{1, 0, 0}, 5)
	if len(hits) != 1 || hits[0].ArticleID != "a1" {
		t.Errorf("site-a should see its own entry, got %+v", hits)
	}
}

func TestStoreLoadedOncePerSite(t *testing.T) {
	store := &fakeStore{data: map[string][]Entry{
		"s": {{ArticleID: "x", Vector: []float64{1, 2}}},
	}}
	ix := New(store, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ix.Query(ctx, "s", []float64{1, 2}, 1); err != nil {
			t.Fatalf("Query failed: %v", err)
		}
	}
	if store.loads != 1 {
		t.Errorf("expected 1 load, got %d", store.loads)
	}

	ix.Forget("s")
	ix.Query(ctx, "s", []float64{1, 2}, 1)
	if store.loads != 2 {
		t.Errorf("expected reload after Forget, got %d loads", store.loads)
	}
}

func TestDimensionMismatchRejected(t *testing.T) {
	ix := New(&fakeStore{}, 3)
	ctx := context.Background()

	if _, err := ix.Query(ctx, "s", []float64{1, 2}, 1); err == nil {
		t.Error("expected dimension error on query")
	}
	if err := ix.Insert(ctx, "s", "a", []float64{1, 2, 3, 4}); err == nil {
		t.Error("expected dimension error on insert")
	}
	if err := ix.Insert(ctx, "s", "a", nil); err == nil {
		t.Error("expected error on empty vector")
	}
}

func TestInsertIsIdempotentAndRemove(t *testing.T) {
	ix := New(&fakeStore{}, 0)
	ctx := context.Background()

	ix.Insert(ctx, "s", "a", []float64{1, 0})
	ix.Insert(ctx, "s", "a", []float64{1, 0})
	if ix.Size("s") != 1 {
		t.Errorf("expected 1 entry, got %d", ix.Size("s"))
	}

	ix.Remove("s", "a")
	if ix.Size("s") != 0 {
		t.Errorf("expected 0 entries after remove, got %d", ix.Size("s"))
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	ix := New(&fakeStore{err: errors.New("db down")}, 0)
	if _, err := ix.Query(context.Background(), "s", []float64{1}, 1); err == nil {
		t.Error("expected store error")
	}
}
