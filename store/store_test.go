package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextware/recall/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func TestPutAssignsDefaults(t *testing.T) {
	s := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	id, err := s.Put(ctx, &core.MemoryItem{Content: "hello world"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	item, err := s.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, core.TypeText, item.Type)
	assert.Equal(t, core.AccessPublic, item.AccessLevel)
	assert.Equal(t, 1.0, item.Importance)
	assert.Equal(t, 1.0, item.Confidence)
	assert.Equal(t, testNow, item.CreatedAt)
	assert.Equal(t, core.Hash("hello world"), item.Fingerprint)
}

func TestPutValidation(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Put(ctx, &core.MemoryItem{})
	require.Error(t, err)

	_, err = s.Put(ctx, &core.MemoryItem{Content: "x", Type: "bogus"})
	require.Error(t, err)

	_, err = s.Put(ctx, &core.MemoryItem{Content: "x", AccessLevel: "bogus"})
	require.Error(t, err)

	assert.Equal(t, 0, s.Len())
}

func TestSameContentSharesFingerprint(t *testing.T) {
	s := New()
	ctx := context.Background()

	id1, err := s.Put(ctx, &core.MemoryItem{Content: "duplicate content"})
	require.NoError(t, err)
	id2, err := s.Put(ctx, &core.MemoryItem{Content: "duplicate content"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	a, _ := s.Peek(id1)
	b, _ := s.Peek(id2)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestGetRecordsAccess(t *testing.T) {
	s := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	id, err := s.Put(ctx, &core.MemoryItem{Content: "tracked"})
	require.NoError(t, err)

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, item.AccessCount)
	assert.Equal(t, testNow, item.LastAccessed)

	item, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, item.AccessCount)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSearchTokenOverlap(t *testing.T) {
	s := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	pyID, err := s.Put(ctx, &core.MemoryItem{
		Content: "python programming test memory",
		Tags:    []string{"python"},
	})
	require.NoError(t, err)
	_, err = s.Put(ctx, &core.MemoryItem{Content: "totally unrelated gardening notes"})
	require.NoError(t, err)

	results, err := s.Search(ctx, "python programming", nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, pyID, results[0].ID)
	assert.Greater(t, results[0].SimilarityScore, 0.1)
	assert.Equal(t, 1, results[0].AccessCount)

	// Query filters still apply.
	results, err = s.Search(ctx, "python programming", &core.Query{Tags: []string{"other"}}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdateReindexes(t *testing.T) {
	s := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	id, err := s.Put(ctx, &core.MemoryItem{
		Content: "original",
		Tags:    []string{"old"},
		Context: core.Context{Project: "p1"},
	})
	require.NoError(t, err)

	newContent := "rewritten"
	newImportance := 0.4
	updated, err := s.Update(ctx, id, Update{
		Content:    &newContent,
		Tags:       []string{"new"},
		Context:    &core.Context{Project: "p2"},
		Importance: &newImportance,
	})
	require.NoError(t, err)

	assert.Equal(t, "rewritten", updated.Content)
	assert.Equal(t, core.Hash("rewritten"), updated.Fingerprint)
	assert.Equal(t, 0.4, updated.Importance)

	assert.Empty(t, s.IDsByTag("old"))
	assert.Equal(t, []string{id}, s.IDsByTag("new"))
	assert.Empty(t, s.IDsByContextKey("project:p1"))
	assert.Equal(t, []string{id}, s.IDsByContextKey("project:p2"))

	_, err = s.Update(ctx, "missing", Update{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteRemovesIndexes(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Put(ctx, &core.MemoryItem{
		Content: "to delete",
		Tags:    []string{"gone"},
		Context: core.Context{User: "alice"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDsByTag("gone"))
	assert.Empty(t, s.IDsByContextKey("user:alice"))

	assert.ErrorIs(t, s.Delete(ctx, id), core.ErrNotFound)
}

func TestStatisticsBuckets(t *testing.T) {
	s := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	put := func(item *core.MemoryItem) {
		t.Helper()
		_, err := s.Put(ctx, item)
		require.NoError(t, err)
	}

	put(&core.MemoryItem{Content: "a", Type: core.TypeCode, Importance: 0.9, Tags: []string{"go"}})
	put(&core.MemoryItem{Content: "b", Type: core.TypeCode, Importance: 0.6,
		CreatedAt: testNow.Add(-3 * 24 * time.Hour), Context: core.Context{Project: "api"}})
	put(&core.MemoryItem{Content: "c", Type: core.TypeText, Importance: 0.1,
		CreatedAt: testNow.Add(-60 * 24 * time.Hour)})

	stats := s.Statistics()
	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 2, stats.ByType[core.TypeCode])
	assert.Equal(t, 1, stats.ByType[core.TypeText])
	assert.Equal(t, 1, stats.ByTag["go"])
	assert.Equal(t, 1, stats.ByContext["project:api"])
	assert.Equal(t, 1, stats.ByAge["today"])
	assert.Equal(t, 1, stats.ByAge["this_week"])
	assert.Equal(t, 1, stats.ByAge["older"])
	assert.Equal(t, 1, stats.ByImportance["high"])
	assert.Equal(t, 1, stats.ByImportance["medium"])
	assert.Equal(t, 1, stats.ByImportance["low"])
}

func TestCleanup(t *testing.T) {
	s := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	_, err := s.Put(ctx, &core.MemoryItem{Content: "keeper", Importance: 0.9})
	require.NoError(t, err)
	expiredID, err := s.Put(ctx, &core.MemoryItem{
		Content:   "expired",
		ExpiresAt: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	staleID, err := s.Put(ctx, &core.MemoryItem{
		Content:    "stale",
		Importance: 0.1,
		CreatedAt:  testNow.Add(-40 * 24 * time.Hour),
	})
	require.NoError(t, err)

	report, err := s.Cleanup(ctx, true)
	require.NoError(t, err)
	assert.Len(t, report.Candidates, 2)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 3, report.Remaining)

	report, err = s.Cleanup(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 1, report.Remaining)

	_, err = s.Peek(expiredID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.Peek(staleID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	src := New(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	id1, err := src.Put(ctx, &core.MemoryItem{Content: "first", Tags: []string{"a"}})
	require.NoError(t, err)
	_, err = src.Put(ctx, &core.MemoryItem{Content: "second", Tags: []string{"b"}})
	require.NoError(t, err)

	data := src.Export(nil)
	require.Equal(t, 2, data.ItemCount)

	dst := New()
	report, err := dst.Import(ctx, data, MergeAppend)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 2, dst.Len())

	// Re-import with skip keeps residents untouched.
	report, err = dst.Import(ctx, data, MergeSkipExisting)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 2, report.Skipped)

	// Filtered export.
	filtered := src.Export(&core.Query{Tags: []string{"a"}})
	require.Equal(t, 1, filtered.ItemCount)
	assert.Equal(t, id1, filtered.Items[0].ID)

	_, err = dst.Import(ctx, data, "bogus")
	assert.Error(t, err)
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap("a b", "b a"))
	assert.Equal(t, 0.0, TokenOverlap("", "anything"))
	assert.Equal(t, 0.0, TokenOverlap("x y", "z w"))
	assert.InDelta(t, 0.5, TokenOverlap("a b", "a"), 1e-9)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}
