// Package retrieval implements the scoring heart of recall: strategy
// selection, per-strategy candidate generation, multi-factor ranking,
// diversity filtering, a short-lived query cache, and the learning
// loop that tunes user profiles from what was actually returned.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/contextware/recall/core"
	"github.com/contextware/recall/store"
)

// Factor identifies one ranking signal.
type Factor string

const (
	FactorSemantic     Factor = "semantic_similarity"
	FactorContext      Factor = "context_match"
	FactorTemporal     Factor = "temporal_relevance"
	FactorFrequency    Factor = "access_frequency"
	FactorImportance   Factor = "importance_score"
	FactorPreference   Factor = "user_preference"
	FactorRelationship Factor = "relationship_strength"
	FactorFreshness    Factor = "content_freshness"
)

// Result is one ranked retrieval hit with its scoring breakdown.
type Result struct {
	Item       *core.MemoryItem
	TotalScore float64
	Factors    map[Factor]float64
	Reason     string
	Confidence float64
	Rank       int
}

// Parameters tune scoring and filtering.
type Parameters struct {
	MaxResults          int
	SimilarityThreshold float64

	ContextWeight           float64
	TemporalWeight          float64
	FrequencyWeight         float64
	ImportanceWeight        float64
	FreshnessWeight         float64
	DiversityFactor         float64
	PersonalizationStrength float64
}

// DefaultParameters returns the standard scoring weights.
func DefaultParameters() Parameters {
	return Parameters{
		MaxResults:              10,
		SimilarityThreshold:     0.5,
		ContextWeight:           0.3,
		TemporalWeight:          0.2,
		FrequencyWeight:         0.1,
		ImportanceWeight:        0.2,
		FreshnessWeight:         0.1,
		DiversityFactor:         0.1,
		PersonalizationStrength: 0.2,
	}
}

const (
	cacheSize = 512
	cacheTTL  = 5 * time.Minute

	historyCap     = 1000
	historyTrimTo  = 500
	perfSeriesCap  = 100
	perfSeriesKeep = 50
)

// Event records one retrieval for the learning history.
type Event struct {
	At          time.Time
	Query       string
	Strategy    core.Strategy
	ResultCount int
	AvgScore    float64
}

// Retriever executes queries against a store with intelligent strategy
// selection. Safe for concurrent use.
type Retriever struct {
	store    *store.Store
	profiles *Profiles
	params   Parameters
	cache    *expirable.LRU[string, []Result]
	clock    func() time.Time

	mu       sync.Mutex
	history  []Event
	perf     map[core.Strategy][]float64
	adaptive map[core.Strategy]float64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithParameters overrides the default scoring parameters.
func WithParameters(p Parameters) Option {
	return func(r *Retriever) { r.params = p }
}

// WithProfiles shares a profile registry with other components.
func WithProfiles(p *Profiles) Option {
	return func(r *Retriever) { r.profiles = p }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Retriever) { r.clock = clock }
}

// New creates a retriever over a store.
func New(s *store.Store, opts ...Option) *Retriever {
	r := &Retriever{
		store:    s,
		profiles: NewProfiles(),
		params:   DefaultParameters(),
		cache:    expirable.NewLRU[string, []Result](cacheSize, nil, cacheTTL),
		clock:    time.Now,
		perf:     make(map[core.Strategy][]float64),
		adaptive: make(map[core.Strategy]float64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Profiles exposes the profile registry.
func (r *Retriever) Profiles() *Profiles {
	return r.profiles
}

// Retrieve runs the full pipeline for a query: cache check, context
// analysis, strategy selection, candidate generation, ranking,
// diversity filtering, and the learning update. Identical queries
// within the cache TTL return the cached results without re-learning.
func (r *Retriever) Retrieve(ctx context.Context, q *core.Query) ([]Result, error) {
	if q == nil {
		return nil, fmt.Errorf("retrieval: nil query")
	}
	query := normalize(*q)
	now := r.clock()

	cacheKey := query.CacheKey()
	if cached, ok := r.cache.Get(cacheKey); ok {
		log.Printf("[RETRIEVAL] cache hit for %q", truncate(query.Text, 50))
		return cached, nil
	}

	features := Analyze(query.Context, query.Text, now)
	profile := r.profiles.Get(query.Context.User)
	strategy := r.selectStrategy(&query, features)

	candidates, err := r.candidates(ctx, &query, strategy, profile)
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}

	ranked := r.rank(candidates, &query, profile, strategy, now)
	final := r.applyDiversity(ranked, &query)

	r.updateLearning(&query, final, strategy, now)
	r.cache.Add(cacheKey, final)

	log.Printf("[RETRIEVAL] %d results for %q using %s", len(final), truncate(query.Text, 50), strategy)
	return final, nil
}

// RetrieveItems is Retrieve without the scoring detail.
func (r *Retriever) RetrieveItems(ctx context.Context, q *core.Query) ([]*core.MemoryItem, error) {
	results, err := r.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	items := make([]*core.MemoryItem, len(results))
	for i, res := range results {
		items[i] = res.Item
	}
	return items, nil
}

// selectStrategy picks a strategy from query wording and context.
// An explicit query strategy always wins.
func (r *Retriever) selectStrategy(q *core.Query, features Features) core.Strategy {
	if q.Strategy != "" {
		return q.Strategy
	}

	text := lower(q.Text)
	if containsAny(text, "recent", "latest", "yesterday", "today", "last", "new") {
		return core.StrategyTemporal
	}
	if containsAny(text, "important", "critical", "urgent", "priority", "key") {
		return core.StrategyImportance
	}
	if containsAny(text, "team", "shared", "others", "colleagues", "everyone") {
		return core.StrategyCollaborative
	}
	if q.Context.Project != "" {
		return core.StrategyContextual
	}
	return core.StrategyHybrid
}

// updateLearning records the event, nudges the issuing user's profile,
// and appends strategy performance.
func (r *Retriever) updateLearning(q *core.Query, results []Result, strategy core.Strategy, now time.Time) {
	avgScore := 0.0
	avgConfidence := 0.0
	for _, res := range results {
		avgScore += res.TotalScore
		avgConfidence += res.Confidence
	}
	if len(results) > 0 {
		avgScore /= float64(len(results))
		avgConfidence /= float64(len(results))
	}

	r.mu.Lock()
	r.history = append(r.history, Event{
		At:          now,
		Query:       q.Text,
		Strategy:    strategy,
		ResultCount: len(results),
		AvgScore:    avgScore,
	})
	if len(r.history) > historyCap {
		r.history = append([]Event(nil), r.history[len(r.history)-historyTrimTo:]...)
	}
	if len(results) > 0 {
		series := append(r.perf[strategy], avgConfidence)
		if len(series) > perfSeriesCap {
			series = append([]float64(nil), series[len(series)-perfSeriesKeep:]...)
		}
		r.perf[strategy] = series
	}
	r.mu.Unlock()

	r.profiles.learn(q.Context.User, results, now)
}

// History returns a copy of the retrieval event log.
func (r *Retriever) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.history...)
}

// StrategyPerformance returns the recent average-confidence series per
// strategy.
func (r *Retriever) StrategyPerformance() map[core.Strategy][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[core.Strategy][]float64, len(r.perf))
	for k, v := range r.perf {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

// normalize fills query defaults without mutating the caller's query.
func normalize(q core.Query) core.Query {
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}
	if q.SimilarityThreshold == 0 {
		q.SimilarityThreshold = 0.5
	}
	return q
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
