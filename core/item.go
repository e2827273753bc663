package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MemoryItem is a single stored memory with its content, context, and
// the bookkeeping the retrieval and prediction layers score against.
type MemoryItem struct {
	ID          string      `json:"id"`
	Content     string      `json:"content"`
	Fingerprint string      `json:"fingerprint"`
	Type        MemoryType  `json:"type"`
	Context     Context     `json:"context,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Importance  float64     `json:"importance"`
	Confidence  float64     `json:"confidence"`
	AccessLevel AccessLevel `json:"access_level"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
	AccessCount  int       `json:"access_count"`

	Embedding []float32 `json:"embedding,omitempty"`

	// SimilarityScore is transient: set per query during candidate
	// generation, never persisted.
	SimilarityScore float64 `json:"-"`

	RelatedItems []string `json:"related_items,omitempty"`
	ParentItem   string   `json:"parent_item,omitempty"`
	ChildItems   []string `json:"child_items,omitempty"`
}

// Hash returns the hex sha256 fingerprint of content. Two items with
// identical content always share a fingerprint.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether the item has an expiry in the past.
func (m *MemoryItem) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// AgeHours returns the item age in hours at the given instant.
func (m *MemoryItem) AgeHours(now time.Time) float64 {
	return now.Sub(m.CreatedAt).Hours()
}

// Touch records an access: bumps the counter and the last-access time.
func (m *MemoryItem) Touch(now time.Time) {
	m.LastAccessed = now
	m.AccessCount++
}

// Clone returns a copy of the item safe to hand out across goroutines.
// Slices are copied; the embedding is shared since it is write-once.
func (m *MemoryItem) Clone() *MemoryItem {
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	c.RelatedItems = append([]string(nil), m.RelatedItems...)
	c.ChildItems = append([]string(nil), m.ChildItems...)
	return &c
}
