// Package vectorindex keeps per-site embedding namespaces in memory, backed
// by a persistent store that is loaded lazily the first time a site is queried.
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Entry is one stored embedding.
type Entry struct {
	ArticleID string
	Vector    []float64
}

// Neighbor is a query hit.
type Neighbor struct {
	ArticleID  string
	Similarity float64
}

// Store loads the persisted embeddings for a site.
type Store interface {
	LoadEmbeddings(ctx context.Context, siteID string) ([]Entry, error)
}

// Index is safe for concurrent use. Sites never share entries.
type Index struct {
	store Store
	dim   int

	mu     sync.Mutex
	shards map[string]*shard
}

type shard struct {
	mu      sync.RWMutex
	loaded  bool
	entries []entry
}

type entry struct {
	articleID string
	vector    []float64
	norm      float64
}

// New creates an index. dim of 0 accepts vectors of any length.
func New(store Store, dim int) *Index {
	return &Index{
		store:  store,
		dim:    dim,
		shards: make(map[string]*shard),
	}
}

// Query returns up to k nearest entries of the site by cosine similarity,
// best first.
func (ix *Index) Query(ctx context.Context, siteID string, vec []float64, k int) ([]Neighbor, error) {
	if err := ix.checkDim(vec); err != nil {
		return nil, err
	}
	sh, err := ix.shard(ctx, siteID)
	if err != nil {
		return nil, err
	}

	qnorm := vectorNorm(vec)
	sh.mu.RLock()
	hits := make([]Neighbor, 0, len(sh.entries))
	for _, e := range sh.entries {
		if len(e.vector) != len(vec) {
			continue
		}
		hits = append(hits, Neighbor{ArticleID: e.articleID, Similarity: cosine(vec, qnorm, e.vector, e.norm)})
	}
	sh.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Insert adds an embedding to the site's namespace. The caller persists the
// vector; an unloaded shard picks it up from the store on first use.
func (ix *Index) Insert(ctx context.Context, siteID, articleID string, vec []float64) error {
	if err := ix.checkDim(vec); err != nil {
		return err
	}
	sh, err := ix.shard(ctx, siteID)
	if err != nil {
		return err
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, e := range sh.entries {
		if e.articleID == articleID {
			return nil
		}
	}
	sh.entries = append(sh.entries, newEntry(articleID, vec))
	return nil
}

// Remove drops an article from the site's namespace.
func (ix *Index) Remove(siteID, articleID string) {
	ix.mu.Lock()
	sh, ok := ix.shards[siteID]
	ix.mu.Unlock()
	if !ok {
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for i, e := range sh.entries {
		if e.articleID == articleID {
			sh.entries = append(sh.entries[:i], sh.entries[i+1:]...)
			return
		}
	}
}

// Forget drops a site's namespace; it is reloaded from the store on next use.
func (ix *Index) Forget(siteID string) {
	ix.mu.Lock()
	delete(ix.shards, siteID)
	ix.mu.Unlock()
}

// Size returns the number of loaded entries for a site.
func (ix *Index) Size(siteID string) int {
	ix.mu.Lock()
	sh, ok := ix.shards[siteID]
	ix.mu.Unlock()
	if !ok {
		return 0
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.entries)
}

func (ix *Index) shard(ctx context.Context, siteID string) (*shard, error) {
	ix.mu.Lock()
	sh, ok := ix.shards[siteID]
	if !ok {
		sh = &shard{}
		ix.shards[siteID] = sh
	}
	ix.mu.Unlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.loaded {
		return sh, nil
	}

	stored, err := ix.store.LoadEmbeddings(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load embeddings for site %s: %w", siteID, err)
	}
	entries := make([]entry, 0, len(stored))
	for _, e := range stored {
		if ix.dim > 0 && len(e.Vector) != ix.dim {
			continue
		}
		entries = append(entries, newEntry(e.ArticleID, e.Vector))
	}
	sh.entries = entries
	sh.loaded = true
	return sh, nil
}

func (ix *Index) checkDim(vec []float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	if ix.dim > 0 && len(vec) != ix.dim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), ix.dim)
	}
	return nil
}

func newEntry(articleID string, vec []float64) entry {
	v := make([]float64, len(vec))
	copy(v, vec)
	return entry{articleID: articleID, vector: v, norm: vectorNorm(v)}
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a []float64, anorm float64, b []float64, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (anorm * bnorm)
}

// Cosine returns the cosine similarity of two equal-length vectors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, vectorNorm(a), b, vectorNorm(b))
}
