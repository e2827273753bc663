// Package embedder defines the boundary to the embedding provider.
// The store and retrieval layers treat embeddings as an optional
// enhancement: when no Embedder is configured they fall back to
// token-overlap similarity.
package embedder

import "context"

// Embedder converts texts to vector embeddings.
// Implementations: mock.Embedder (testing, deterministic),
// cached.Embedder (ristretto cache in front of any Embedder),
// or a user-provided client for a real embedding service.
type Embedder interface {
	// Embed converts a batch of texts to embedding vectors, one per
	// input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
