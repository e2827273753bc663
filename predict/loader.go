package predict

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/contextware/recall/core"
	"github.com/contextware/recall/store"
)

const (
	recentWindow   = 10
	maxPredictions = 20
	preloadTopN    = 10
	// accuracyBar is the predicted-id hit fraction above which a
	// prediction counts as accurate.
	accuracyBar = 0.5
)

// Metrics are the loader's running prediction and cache counters.
type Metrics struct {
	TotalPredictions    int `json:"total_predictions"`
	AccuratePredictions int `json:"accurate_predictions"`
	CacheHits           int `json:"cache_hits"`
	CacheMisses         int `json:"cache_misses"`
}

// Loader drives the predictive side: it feeds access events to the
// predictor, keeps the current prediction set, checks predictions
// against what retrieval actually returned, and warms the preload
// cache. Safe for concurrent use.
type Loader struct {
	store     *store.Store
	predictor *Predictor
	cache     *PreloadCache
	clock     func() time.Time
	enabled   bool

	mu          sync.Mutex
	recent      map[string][]string // user -> last accessed item ids
	predictions []Prediction
	accuracy    map[string]float64 // prediction id -> hit fraction
	metrics     Metrics
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderClock overrides the time source, for deterministic tests.
func WithLoaderClock(clock func() time.Time) LoaderOption {
	return func(l *Loader) { l.clock = clock }
}

// WithPreloadCacheSize bounds the preload cache.
func WithPreloadCacheSize(n int) LoaderOption {
	return func(l *Loader) { l.cache = NewPreloadCache(n, l.clock) }
}

// WithPreloadDisabled turns off cache warming; predictions are still
// generated and scored.
func WithPreloadDisabled() LoaderOption {
	return func(l *Loader) { l.enabled = false }
}

// NewLoader creates a loader over a store.
func NewLoader(s *store.Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:    s,
		clock:    time.Now,
		enabled:  true,
		recent:   make(map[string][]string),
		accuracy: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.predictor = NewPredictor(l.clock)
	if l.cache == nil {
		l.cache = NewPreloadCache(0, l.clock)
	}
	return l
}

// Predictor exposes the underlying pattern predictor.
func (l *Loader) Predictor() *Predictor {
	return l.predictor
}

// Cache exposes the preload cache.
func (l *Loader) Cache() *PreloadCache {
	return l.cache
}

// RecordStorage reacts to a newly stored item by refreshing the
// prediction set for its user, when it has one.
func (l *Loader) RecordStorage(ctx context.Context, item *core.MemoryItem) {
	if item == nil || item.Context.User == "" {
		return
	}
	l.generatePredictions(item.Context, item.Context.User)
	if l.enabled {
		l.preload(ctx)
	}
}

// RecordRetrieval learns from a retrieval: every returned item becomes
// an access event, prior predictions are graded against the returned
// ids, the prediction set is regenerated, and the preload cache is
// warmed. Queries without a user teach nothing.
func (l *Loader) RecordRetrieval(ctx context.Context, q *core.Query, items []*core.MemoryItem) {
	if q == nil || q.Context.User == "" {
		return
	}
	user := q.Context.User
	now := l.clock()

	for _, item := range items {
		l.pushRecent(user, item.ID)
		l.predictor.Learn(item.ID, q.Context, now, user)
	}

	l.checkAccuracy(items)
	l.generatePredictions(q.Context, user)
	if l.enabled {
		l.preload(ctx)
	}
}

// RecordAccess learns from a direct item access.
func (l *Loader) RecordAccess(id string, c core.Context) {
	if c.User == "" {
		return
	}
	l.pushRecent(c.User, id)
	l.predictor.Learn(id, c, l.clock(), c.User)
}

// Forecast is the outcome of a PredictNeeds call.
type Forecast struct {
	Predictions     []Prediction   `json:"predictions"`
	User            string         `json:"user"`
	RecentAccesses  []string       `json:"recent_accesses,omitempty"`
	ContextFeatures map[string]any `json:"context_features"`
	Reasoning       string         `json:"reasoning"`
}

// PredictNeeds forecasts which items the context's user will need:
// the merged next/context/temporal/workflow/collaborative set, related
// predictions for the last three accesses, and seasonal predictions,
// ranked and capped at 20. A context without a user yields an empty
// forecast, not an error.
func (l *Loader) PredictNeeds(ctx context.Context, c core.Context) (*Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.User == "" {
		return &Forecast{Reasoning: "no user context provided"}, nil
	}

	recent := l.recentAccesses(c.User)

	predictions := l.predictor.PredictNext(c, c.User, recent)
	if len(recent) > 0 {
		tail := recent
		if len(tail) > 3 {
			tail = tail[len(tail)-3:]
		}
		for _, id := range tail {
			predictions = append(predictions, l.predictor.PredictRelated(id, c)...)
		}
	}
	predictions = append(predictions, l.predictor.PredictSeasonal(c, c.User)...)

	predictions = Rank(predictions)
	if len(predictions) > maxPredictions {
		predictions = predictions[:maxPredictions]
	}

	l.mu.Lock()
	l.metrics.TotalPredictions += len(predictions)
	l.predictions = append(l.predictions, predictions...)
	l.mu.Unlock()

	log.Printf("[PREDICT] %d predictions for user=%s", len(predictions), c.User)
	return &Forecast{
		Predictions:     predictions,
		User:            c.User,
		RecentAccesses:  recent,
		ContextFeatures: contextFeatures(c, l.clock()),
		Reasoning:       "Predictions based on learned patterns and context",
	}, nil
}

// Preloaded returns an item from the preload cache, counting the hit
// or miss.
func (l *Loader) Preloaded(id string) (*core.MemoryItem, bool) {
	item, ok := l.cache.Get(id)
	l.mu.Lock()
	if ok {
		l.metrics.CacheHits++
	} else {
		l.metrics.CacheMisses++
	}
	l.mu.Unlock()
	return item, ok
}

// Metrics returns a copy of the running counters.
func (l *Loader) Metrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

// Accuracy returns the hit fraction recorded for a prediction id.
func (l *Loader) Accuracy(predictionID string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accuracy[predictionID]
	return acc, ok
}

// generatePredictions rebuilds the stored prediction set for a user,
// keeping only the still-valid top entries.
func (l *Loader) generatePredictions(c core.Context, user string) {
	recent := l.recentAccesses(user)
	now := l.clock()

	predictions := l.predictor.PredictNext(c, user, recent)
	if len(recent) > 0 {
		tail := recent
		if len(tail) > 2 {
			tail = tail[len(tail)-2:]
		}
		for _, id := range tail {
			predictions = append(predictions, l.predictor.PredictRelated(id, c)...)
		}
	}
	predictions = append(predictions, l.predictor.PredictSeasonal(c, user)...)
	predictions = Rank(predictions)

	var valid []Prediction
	for _, pred := range predictions {
		if pred.Valid(now) {
			valid = append(valid, pred)
		}
	}
	if len(valid) > maxPredictions {
		valid = valid[:maxPredictions]
	}

	l.mu.Lock()
	l.predictions = valid
	l.mu.Unlock()
}

// preload fetches the items of the top predictions into the cache.
// Fetching counts as an access on the store.
func (l *Loader) preload(ctx context.Context) {
	l.mu.Lock()
	top := append([]Prediction(nil), l.predictions...)
	l.mu.Unlock()
	if len(top) == 0 {
		return
	}

	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > preloadTopN {
		top = top[:preloadTopN]
	}

	for _, pred := range top {
		for _, id := range pred.ItemIDs {
			if l.cache.Contains(id) {
				continue
			}
			item, err := l.store.Get(ctx, id)
			if err != nil {
				if !errors.Is(err, core.ErrNotFound) {
					log.Printf("[PRELOAD] fetch %s: %v", id, err)
				}
				continue
			}
			l.cache.Add(item)
		}
	}
	log.Printf("[PRELOAD] cache holds %d items", l.cache.Len())
}

// checkAccuracy grades still-valid predictions against the ids a
// retrieval returned: the hit fraction is recorded per prediction, and
// fractions above the bar count as accurate.
func (l *Loader) checkAccuracy(items []*core.MemoryItem) {
	retrieved := make(map[string]struct{}, len(items))
	for _, item := range items {
		retrieved[item.ID] = struct{}{}
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pred := range l.predictions {
		if !pred.Valid(now) || len(pred.ItemIDs) == 0 {
			continue
		}
		hits := 0
		for _, id := range pred.ItemIDs {
			if _, ok := retrieved[id]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		acc := float64(hits) / float64(len(pred.ItemIDs))
		l.accuracy[pred.ID] = acc
		if acc > accuracyBar {
			l.metrics.AccuratePredictions++
		}
	}
}

func (l *Loader) pushRecent(user, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recent := append(l.recent[user], id)
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	l.recent[user] = recent
}

func (l *Loader) recentAccesses(user string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.recent[user]...)
}

func contextFeatures(c core.Context, now time.Time) map[string]any {
	features := map[string]any{
		"has_project":     c.Project != "",
		"has_user":        c.User != "",
		"has_session":     c.Session != "",
		"has_application": c.Application != "",
		"has_environment": c.Environment != "",
		"timestamp":       now.Format(time.RFC3339),
	}
	if c.Project != "" {
		features["project"] = c.Project
	}
	if c.User != "" {
		features["user"] = c.User
	}
	if c.Application != "" {
		features["application"] = c.Application
	}
	if c.Environment != "" {
		features["environment"] = c.Environment
	}
	return features
}
