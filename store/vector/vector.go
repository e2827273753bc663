// Package vector wraps chromem-go as the semantic index behind the
// item store. chromem-go is a pure Go, embedded vector database.
package vector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Index holds item embeddings in a single chromem collection and
// answers nearest-neighbor queries by cosine similarity.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.Mutex
}

// Match is one nearest-neighbor hit.
type Match struct {
	ID         string
	Similarity float64
}

// New creates an empty in-memory index.
func New() (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(
		"items",
		nil, // no collection metadata
		nil, // embeddings are always provided by the caller
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{db: db, col: col}, nil
}

// Add stores or replaces the embedding for an item.
func (ix *Index) Add(ctx context.Context, id string, content string, embedding []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
	}
	if err := ix.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to limit matches for the embedding, best first.
// An empty index yields no matches and no error.
func (ix *Index) Query(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if limit < 1 {
		limit = 1
	}

	// chromem-go requires nResults <= collection size.
	// Retry with smaller limits if necessary.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		var err error
		results, err = ix.col.QueryEmbedding(ctx, embedding, currentLimit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				log.Printf("[VECTOR] index is empty")
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, Match{
			ID:         res.ID,
			Similarity: float64(res.Similarity),
		})
	}
	return matches, nil
}

// isInsufficientDocsError checks if an error is due to asking chromem
// for more results than the collection holds.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
