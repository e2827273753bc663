package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStable(t *testing.T) {
	a := Hash("same content")
	b := Hash("same content")
	c := Hash("different content")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestContextKey(t *testing.T) {
	assert.Equal(t, "default", Context{}.Key())
	assert.Equal(t, "project:api", Context{Project: "api"}.Key())
	assert.Equal(t,
		"project:api|user:alice|app:cli|env:prod",
		Context{Project: "api", User: "alice", Application: "cli", Environment: "prod"}.Key(),
	)
	// Session does not participate in the association key.
	assert.Equal(t, "user:alice", Context{User: "alice", Session: "s1"}.Key())
}

func TestContextSimilarity(t *testing.T) {
	base := Context{Project: "api", User: "alice"}

	// Single comparable dimension, exact match.
	assert.Equal(t, 1.0, Context{Project: "api"}.Similarity(Context{Project: "api"}))

	// Project matches, user differs: (1.0 + 0) / 2.
	assert.InDelta(t, 0.5, base.Similarity(Context{Project: "api", User: "bob"}), 1e-9)

	// User-only match carries its 0.8 weight.
	assert.InDelta(t, 0.8, Context{User: "alice"}.Similarity(Context{User: "alice"}), 1e-9)

	// Empty contexts never match anything.
	assert.Equal(t, 0.0, Context{}.Similarity(base))
	assert.Equal(t, 0.0, base.Similarity(Context{}))

	// No overlapping dimensions set on both sides.
	assert.Equal(t, 0.0, Context{Project: "api"}.Similarity(Context{User: "alice"}))
}

func TestContextCollaborative(t *testing.T) {
	assert.False(t, Context{}.Collaborative())
	assert.False(t, Context{Metadata: map[string]string{"note": "x"}}.Collaborative())
	assert.True(t, Context{Metadata: map[string]string{"team": "infra"}}.Collaborative())
	assert.True(t, Context{Metadata: map[string]string{"shared": "yes"}}.Collaborative())
}

func TestItemExpiry(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	item := &MemoryItem{Content: "x"}
	assert.False(t, item.Expired(now), "no expiry set")

	item.ExpiresAt = now.Add(-time.Minute)
	assert.True(t, item.Expired(now))

	item.ExpiresAt = now.Add(time.Minute)
	assert.False(t, item.Expired(now))
}

func TestItemTouch(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	item := &MemoryItem{Content: "x"}

	item.Touch(now)
	item.Touch(now.Add(time.Hour))

	assert.Equal(t, 2, item.AccessCount)
	assert.Equal(t, now.Add(time.Hour), item.LastAccessed)
}

func TestQueryMatches(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	item := &MemoryItem{
		Content:     "x",
		Type:        TypeCode,
		Tags:        []string{"python", "math"},
		Importance:  0.6,
		AccessLevel: AccessPublic,
		CreatedAt:   now.Add(-time.Hour),
	}

	assert.True(t, (&Query{}).Matches(item, now))
	assert.True(t, (&Query{Types: []MemoryType{TypeCode, TypeText}}).Matches(item, now))
	assert.False(t, (&Query{Types: []MemoryType{TypeTask}}).Matches(item, now))
	assert.True(t, (&Query{Tags: []string{"math", "other"}}).Matches(item, now))
	assert.False(t, (&Query{Tags: []string{"other"}}).Matches(item, now))
	assert.False(t, (&Query{MinImportance: 0.7}).Matches(item, now))
	assert.False(t, (&Query{AccessLevel: AccessPrivate}).Matches(item, now))

	inRange := &Query{TimeRange: &TimeRange{Start: now.Add(-2 * time.Hour), End: now}}
	outRange := &Query{TimeRange: &TimeRange{Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour)}}
	assert.True(t, inRange.Matches(item, now))
	assert.False(t, outRange.Matches(item, now))

	expired := &MemoryItem{Content: "x", ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, (&Query{}).Matches(expired, now))
	assert.True(t, (&Query{IncludeExpired: true}).Matches(expired, now))
}

func TestQueryCacheKey(t *testing.T) {
	q1 := &Query{Text: "api docs", MaxResults: 5, Context: Context{User: "alice"}}
	q2 := &Query{Text: "api docs", MaxResults: 5, Context: Context{User: "alice"}}
	q3 := &Query{Text: "api docs", MaxResults: 5, Context: Context{User: "bob"}}

	require.Equal(t, q1.CacheKey(), q2.CacheKey())
	require.NotEqual(t, q1.CacheKey(), q3.CacheKey())

	// Filters that do not shape the cached result set do not change
	// the key, but text does.
	q4 := &Query{Text: "other", MaxResults: 5, Context: Context{User: "alice"}}
	require.NotEqual(t, q1.CacheKey(), q4.CacheKey())
}
