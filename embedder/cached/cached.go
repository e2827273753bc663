// Package cached wraps an Embedder with a content-addressed cache so
// repeated texts are embedded once.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/contextware/recall/embedder"
)

// Embedder caches embeddings by content hash in front of any inner
// embedder. Cache misses go to the inner embedder in a single batch;
// cache writes are best-effort.
type Embedder struct {
	inner embedder.Embedder
	cache *ristretto.Cache
}

// New creates a caching embedder around inner. maxBytes bounds the
// approximate memory the cache may hold.
func New(inner embedder.Embedder, maxBytes int64) (*Embedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("cached: inner embedder is required")
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns one embedding per text, serving repeats from cache.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := e.cache.Get(hashKey(text)); ok {
			if vec, ok := v.([]float32); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(missing), err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		// Set may drop the entry under pressure; that only costs a
		// future re-embed.
		e.cache.Set(hashKey(missing[j]), vec, int64(len(vec)*4))
	}
	return out, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases cache resources.
func (e *Embedder) Close() {
	e.cache.Close()
}

func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
