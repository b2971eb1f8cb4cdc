package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"tcross-assistant/internal/domain/ports/adapter"
)

var _ adapter.Retriever = (*Index)(nil)

// Index is an in-memory cosine-similarity index over the stored chunks.
// The manual is small enough that a linear scan beats anything fancier.
type Index struct {
	embedder adapter.Embedder

	mu     sync.RWMutex
	chunks []Chunk
	norms  []float64
}

func NewIndex(embedder adapter.Embedder, chunks []Chunk) *Index {
	ix := &Index{embedder: embedder}
	ix.Replace(chunks)
	return ix
}

// LoadIndex reads every chunk from the store.
func LoadIndex(ctx context.Context, store *Store, embedder adapter.Embedder) (*Index, error) {
	chunks, err := store.Chunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return NewIndex(embedder, chunks), nil
}

// Replace swaps the indexed chunks, e.g. after a re-index.
func (ix *Index) Replace(chunks []Chunk) {
	norms := make([]float64, len(chunks))
	for i, c := range chunks {
		norms[i] = norm(c.Embedding)
	}
	ix.mu.Lock()
	ix.chunks, ix.norms = chunks, norms
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Search embeds query and returns the k most similar chunks, best first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]adapter.Passage, error) {
	if k <= 0 || ix.Len() == 0 {
		return nil, nil
	}
	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	q := vecs[0]
	qn := norm(q)
	if qn == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	type scored struct {
		i     int
		score float64
	}
	hits := make([]scored, 0, len(ix.chunks))
	for i, c := range ix.chunks {
		if ix.norms[i] == 0 || len(c.Embedding) != len(q) {
			continue
		}
		hits = append(hits, scored{i: i, score: dot(q, c.Embedding) / (qn * ix.norms[i])})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]adapter.Passage, len(hits))
	for j, h := range hits {
		c := ix.chunks[h.i]
		out[j] = adapter.Passage{Source: c.Source, Content: c.Content, Score: h.score}
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }
