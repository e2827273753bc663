// Package engine is the facade over recall's subsystems: one object
// that stores items, retrieves them with intelligent strategy
// selection, predicts upcoming needs, and serves preloaded items.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/contextware/recall/core"
	"github.com/contextware/recall/embedder"
	"github.com/contextware/recall/predict"
	"github.com/contextware/recall/retrieval"
	"github.com/contextware/recall/store"
	"github.com/contextware/recall/store/vector"
)

// Engine wires the item store, retriever, and predictive loader
// together. Every retrieval feeds the learning loop; every store event
// can refresh predictions.
type Engine struct {
	store     *store.Store
	retriever *retrieval.Retriever
	loader    *predict.Loader
}

type config struct {
	embedder       embedder.Embedder
	persistence    store.Persistence
	params         retrieval.Parameters
	paramsSet      bool
	clock          func() time.Time
	preloadSize    int
	preloadEnabled bool
}

// Option configures the engine.
type Option func(*config)

// WithEmbedder enables semantic retrieval through the given embedding
// provider. Without one, retrieval falls back to token overlap.
func WithEmbedder(e embedder.Embedder) Option {
	return func(c *config) { c.embedder = e }
}

// WithPersistence attaches a snapshot backend; existing items are
// loaded at construction.
func WithPersistence(p store.Persistence) Option {
	return func(c *config) { c.persistence = p }
}

// WithParameters overrides the retrieval scoring parameters.
func WithParameters(p retrieval.Parameters) Option {
	return func(c *config) {
		c.params = p
		c.paramsSet = true
	}
}

// WithClock overrides the time source everywhere, for deterministic
// tests.
func WithClock(clock func() time.Time) Option {
	return func(c *config) { c.clock = clock }
}

// WithPreloadCacheSize bounds the preload cache.
func WithPreloadCacheSize(n int) Option {
	return func(c *config) { c.preloadSize = n }
}

// WithPreloadDisabled turns off preload cache warming.
func WithPreloadDisabled() Option {
	return func(c *config) { c.preloadEnabled = false }
}

// New builds an engine. With an embedder configured it also builds the
// vector index; with persistence configured it loads the stored items
// before returning.
func New(opts ...Option) (*Engine, error) {
	cfg := &config{
		clock:          time.Now,
		preloadEnabled: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	storeOpts := []store.Option{store.WithClock(cfg.clock)}
	if cfg.embedder != nil {
		ix, err := vector.New()
		if err != nil {
			return nil, fmt.Errorf("create vector index: %w", err)
		}
		storeOpts = append(storeOpts,
			store.WithEmbedder(cfg.embedder),
			store.WithVectorIndex(ix),
		)
	}
	if cfg.persistence != nil {
		storeOpts = append(storeOpts, store.WithPersistence(cfg.persistence))
	}
	s := store.New(storeOpts...)

	if cfg.persistence != nil {
		if _, err := s.Load(context.Background()); err != nil {
			return nil, fmt.Errorf("load persisted items: %w", err)
		}
	}

	retrieverOpts := []retrieval.Option{retrieval.WithClock(cfg.clock)}
	if cfg.paramsSet {
		retrieverOpts = append(retrieverOpts, retrieval.WithParameters(cfg.params))
	}

	loaderOpts := []predict.LoaderOption{predict.WithLoaderClock(cfg.clock)}
	if cfg.preloadSize > 0 {
		loaderOpts = append(loaderOpts, predict.WithPreloadCacheSize(cfg.preloadSize))
	}
	if !cfg.preloadEnabled {
		loaderOpts = append(loaderOpts, predict.WithPreloadDisabled())
	}

	return &Engine{
		store:     s,
		retriever: retrieval.New(s, retrieverOpts...),
		loader:    predict.NewLoader(s, loaderOpts...),
	}, nil
}

// Store exposes the item store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Retriever exposes the retrieval engine.
func (e *Engine) Retriever() *retrieval.Retriever {
	return e.retriever
}

// Loader exposes the predictive loader.
func (e *Engine) Loader() *predict.Loader {
	return e.loader
}

// StoreItem stores an item and lets the predictive loader react to it.
// Returns the assigned id.
func (e *Engine) StoreItem(ctx context.Context, item *core.MemoryItem) (string, error) {
	id, err := e.store.Put(ctx, item)
	if err != nil {
		return "", err
	}
	e.loader.RecordStorage(ctx, item)
	return id, nil
}

// Retrieve runs a query through the retrieval pipeline and feeds the
// results back into the predictive loader.
func (e *Engine) Retrieve(ctx context.Context, q *core.Query) ([]retrieval.Result, error) {
	results, err := e.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	items := make([]*core.MemoryItem, len(results))
	for i, res := range results {
		items[i] = res.Item
	}
	e.loader.RecordRetrieval(ctx, q, items)

	// Keep the retriever's collaborative strategy fed with what the
	// predictor has learned about similar users.
	if user := q.Context.User; user != "" {
		if similar := e.loader.Predictor().SimilarUsers(user); len(similar) > 0 {
			e.retriever.Profiles().SetSimilarUsers(user, similar)
		}
	}
	return results, nil
}

// PredictNeeds forecasts which items the context's user will need.
func (e *Engine) PredictNeeds(ctx context.Context, c core.Context) (*predict.Forecast, error) {
	return e.loader.PredictNeeds(ctx, c)
}

// AnalyzePatterns reports on learned access patterns and prediction
// performance.
func (e *Engine) AnalyzePatterns(includePatterns, includePredictions bool) *predict.Analysis {
	return e.loader.AnalyzePatterns(includePatterns, includePredictions)
}

// GetPreloaded serves an item from the preload cache, or nothing.
func (e *Engine) GetPreloaded(id string) (*core.MemoryItem, bool) {
	return e.loader.Preloaded(id)
}

// GetItem fetches an item by id, recording the access and teaching the
// predictor when the context names a user.
func (e *Engine) GetItem(ctx context.Context, id string, c core.Context) (*core.MemoryItem, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.loader.RecordAccess(id, c)
	return item, nil
}

// UpdateItem applies a partial update.
func (e *Engine) UpdateItem(ctx context.Context, id string, patch store.Update) (*core.MemoryItem, error) {
	return e.store.Update(ctx, id, patch)
}

// DeleteItem removes an item.
func (e *Engine) DeleteItem(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// Statistics snapshots the store's aggregate counts.
func (e *Engine) Statistics() *store.Statistics {
	return e.store.Statistics()
}

// Cleanup flags (and without dryRun, deletes) expired and stale
// low-value items.
func (e *Engine) Cleanup(ctx context.Context, dryRun bool) (*store.CleanupReport, error) {
	return e.store.Cleanup(ctx, dryRun)
}

// Export snapshots items matching the optional filters.
func (e *Engine) Export(q *core.Query) *store.ExportData {
	return e.store.Export(q)
}

// Import merges an export snapshot into the store.
func (e *Engine) Import(ctx context.Context, data *store.ExportData, strategy store.MergeStrategy) (*store.ImportReport, error) {
	report, err := e.store.Import(ctx, data, strategy)
	if err != nil {
		return nil, err
	}
	log.Printf("[ENGINE] imported %d items (skipped %d, errors %d)", report.Imported, report.Skipped, report.Errors)
	return report, nil
}
