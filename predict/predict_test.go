package predict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextware/recall/core"
)

// Tuesday morning.
var testNow = time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSequencePrediction(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{Project: "api", User: "alice", Session: "s1"}

	p.Learn("item-a", c, testNow, "alice")
	p.Learn("item-b", c, testNow.Add(time.Minute), "alice")
	p.Learn("item-c", c, testNow.Add(2*time.Minute), "alice")

	predictions := p.PredictNext(c, "alice", []string{"item-a", "item-b"})
	require.NotEmpty(t, predictions)

	// The sequence match outranks everything else; the weaker workflow,
	// temporal, and context predictions all claim the same ids and are
	// dropped as overlaps.
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeNext, pred.Type)
	assert.Equal(t, []string{"item-c"}, pred.ItemIDs)
	assert.InDelta(t, 2.0/3.0+0.2, pred.Score, 1e-9)
	assert.Equal(t, TierVeryHigh, pred.Tier)
	assert.Equal(t, testNow.Add(2*time.Hour), pred.ValidUntil)
}

func TestSequencePredictionNeedsHistory(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{User: "alice"}

	// One recent access is not a sequence.
	assert.Empty(t, p.fromSequences("alice", []string{"item-a"}, c))

	// A window shorter than the recent slice cannot match.
	p.Learn("item-a", c, testNow, "alice")
	assert.Empty(t, p.fromSequences("alice", []string{"item-a", "item-b"}, c))
}

func TestWorkflowPrediction(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{User: "alice", Session: "deploy"}

	for _, id := range []string{"plan", "apply", "verify", "announce"} {
		p.Learn(id, c, testNow, "alice")
	}
	// A repeated id does not extend the session workflow.
	p.Learn("plan", c, testNow, "alice")

	predictions := p.fromWorkflows("alice", c, []string{"plan", "apply"})
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeWorkflow, pred.Type)
	assert.Equal(t, []string{"verify", "announce"}, pred.ItemIDs)
	assert.Equal(t, 0.8, pred.Score)
	assert.Equal(t, TierHigh, pred.Tier)
}

func TestContextPrediction(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{Project: "api", User: "alice"}

	for i := 0; i < 4; i++ {
		p.Learn("item-a", c, testNow, "alice")
	}
	p.Learn("item-b", c, testNow, "alice")

	predictions := p.fromContext(c, "alice")
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeContext, pred.Type)
	assert.Equal(t, []string{"item-a", "item-b"}, pred.ItemIDs)
	// avg strength (4+1)/2 = 2.5, normalized by 10.
	assert.InDelta(t, 0.25, pred.Score, 1e-9)

	// A different context key knows nothing.
	assert.Empty(t, p.fromContext(core.Context{Project: "other"}, "alice"))
}

func TestTemporalPrediction(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{User: "alice"}

	// Same weekday and hour a week earlier.
	lastTuesday := testNow.Add(-7 * 24 * time.Hour)
	p.Learn("item-a", c, lastTuesday, "alice")
	p.Learn("item-a", c, lastTuesday.Add(30*time.Minute), "alice")
	// Wrong weekday.
	p.Learn("item-b", c, testNow.Add(-24*time.Hour), "alice")

	predictions := p.fromTemporal("alice", c)
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeTemporal, pred.Type)
	assert.Equal(t, []string{"item-a"}, pred.ItemIDs)
	assert.Equal(t, 0.65, pred.Score)
	assert.Equal(t, TierMedium, pred.Tier)
}

func TestLearnPrunesOldEvents(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{User: "alice"}

	p.Learn("ancient", c, testNow.Add(-40*24*time.Hour), "alice")
	p.Learn("current", c, testNow, "alice")

	assert.Len(t, p.temporal["alice"], 1)
	assert.Equal(t, "current", p.temporal["alice"][0].ItemID)
}

func TestSimilarUsers(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))

	learn := func(user string, ids ...string) {
		for _, id := range ids {
			p.Learn(id, core.Context{User: user}, testNow, user)
		}
	}
	learn("alice", "a", "b", "c")
	learn("bob", "b", "c", "d")  // jaccard 2/4 = 0.5
	learn("carol", "x", "y")     // jaccard 0
	learn("dave", "a", "b", "c") // jaccard 1.0

	similar := p.SimilarUsers("alice")
	assert.Equal(t, []string{"dave", "bob"}, similar)
	assert.Empty(t, p.SimilarUsers("nobody"))
}

func TestCollaborativePrediction(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{User: "alice"}

	// Overlapping histories make bob similar to alice, but only his
	// last-day accesses feed the prediction.
	for _, id := range []string{"a", "b", "c"} {
		p.Learn(id, core.Context{User: "alice"}, testNow.Add(-2*time.Hour), "alice")
		p.Learn(id, core.Context{User: "bob"}, testNow.Add(-30*time.Hour), "bob")
	}
	p.Learn("fresh-find", core.Context{User: "bob"}, testNow.Add(-time.Hour), "bob")

	predictions := p.fromCollaboration("alice", c)
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeCollaborative, pred.Type)
	assert.Equal(t, 0.55, pred.Score)
	assert.Contains(t, pred.ItemIDs, "fresh-find")
}

func TestPredictRelated(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{Project: "api", User: "alice"}

	p.Learn("base", c, testNow, "alice")
	p.Learn("near-1", c, testNow.Add(10*time.Minute), "alice")
	p.Learn("near-2", c, testNow.Add(30*time.Minute), "alice")
	p.Learn("far", c, testNow.Add(3*time.Hour), "alice")

	predictions := p.PredictRelated("base", c)
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeRelated, pred.Type)
	assert.ElementsMatch(t, []string{"near-1", "near-2"}, pred.ItemIDs)
	// base 2/5 plus avg-frequency bonus 1/10.
	assert.InDelta(t, 0.5, pred.Score, 1e-9)
	assert.Equal(t, TierMedium, pred.Tier)
	assert.Equal(t, testNow.Add(24*time.Hour), pred.ValidUntil)

	assert.Empty(t, p.PredictRelated("unknown", c))
}

func TestPredictSeasonal(t *testing.T) {
	p := NewPredictor(fixedClock(testNow))
	c := core.Context{User: "alice"}

	// Same month, and also same weekday/hour window.
	p.Learn("monthly", c, testNow.Add(-7*24*time.Hour), "alice")

	predictions := p.PredictSeasonal(c, "alice")
	require.Len(t, predictions, 1)
	pred := predictions[0]
	assert.Equal(t, TypeSeasonal, pred.Type)
	assert.Equal(t, []string{"monthly"}, pred.ItemIDs)
	assert.Equal(t, 0.6, pred.Score)

	assert.Empty(t, p.PredictSeasonal(c, "nobody"))
}

func TestRankDropsOverlaps(t *testing.T) {
	predictions := []Prediction{
		{ID: "low", Score: 0.3, ItemIDs: []string{"a", "b"}},
		{ID: "high", Score: 0.9, ItemIDs: []string{"a"}},
		{ID: "mid", Score: 0.6, ItemIDs: []string{"c"}},
	}

	ranked := Rank(predictions)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].ID)
	assert.Equal(t, "mid", ranked[1].ID)
}

func TestScoreToTier(t *testing.T) {
	assert.Equal(t, TierVeryHigh, scoreToTier(0.8))
	assert.Equal(t, TierHigh, scoreToTier(0.6))
	assert.Equal(t, TierMedium, scoreToTier(0.4))
	assert.Equal(t, TierLow, scoreToTier(0.2))
	assert.Equal(t, TierVeryLow, scoreToTier(0.1))
}

func TestPredictionValidity(t *testing.T) {
	pred := Prediction{ValidUntil: testNow.Add(time.Hour)}
	assert.True(t, pred.Valid(testNow))
	assert.False(t, pred.Valid(testNow.Add(2*time.Hour)))
}

func TestPreloadCacheEviction(t *testing.T) {
	now := testNow
	clock := func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	c := NewPreloadCache(2, clock)
	assert.Equal(t, 2, c.MaxSize())

	c.Add(&core.MemoryItem{ID: "first", Content: "1"})
	c.Add(&core.MemoryItem{ID: "second", Content: "2"})
	require.Equal(t, 2, c.Len())

	// Capacity reached: the oldest load is evicted.
	c.Add(&core.MemoryItem{ID: "third", Content: "3"})
	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Contains("first"))
	assert.True(t, c.Contains("second"))
	assert.True(t, c.Contains("third"))

	item, ok := c.Get("second")
	require.True(t, ok)
	assert.Equal(t, "2", item.Content)

	_, ok = c.Get("first")
	assert.False(t, ok)
}

func TestPreloadCacheHitRate(t *testing.T) {
	c := NewPreloadCache(10, fixedClock(testNow))
	assert.Equal(t, 0.0, c.HitRate())

	c.Add(&core.MemoryItem{ID: "hit"})
	c.Add(&core.MemoryItem{ID: "cold"})
	c.Get("hit")

	assert.Equal(t, 0.5, c.HitRate())

	// Re-adding resets the access count.
	c.Add(&core.MemoryItem{ID: "hit"})
	assert.Equal(t, 0.0, c.HitRate())
}
