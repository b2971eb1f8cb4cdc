package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/infra/metrics"
)

var _ adapter.Embedder = (*CachedEmbedder)(nil)

// EmbeddingCache is satisfied by *Store.
type EmbeddingCache interface {
	CachedEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, key, model string, vec []float32) error
}

// CachedEmbedder only sends texts it has not embedded before with the same
// model. Cache failures degrade to a plain call.
type CachedEmbedder struct {
	inner adapter.Embedder
	cache EmbeddingCache
	log   *zerolog.Logger
}

func NewCachedEmbedder(inner adapter.Embedder, cache EmbeddingCache, logger *zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, log: logger}
}

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		keys[i] = cacheKey(c.inner.Model(), t)
		v, ok, err := c.cache.CachedEmbedding(ctx, keys[i])
		if err != nil {
			c.log.Warn().Err(err).Msg("embedding cache read failed")
		}
		if ok {
			metrics.IncCacheRequest("embedding", "hit")
			out[i] = v
			continue
		}
		metrics.IncCacheRequest("embedding", "miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.PutEmbedding(ctx, keys[i], c.inner.Model(), vecs[j]); err != nil {
			c.log.Warn().Err(err).Msg("embedding cache write failed")
		}
	}
	return out, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
