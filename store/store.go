// Package store implements the canonical item store: an in-memory map
// of memory items with tag and context indexes, optional semantic
// search through an embedder plus vector index, and a best-effort
// persistence hook.
package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextware/recall/core"
	"github.com/contextware/recall/embedder"
	"github.com/contextware/recall/store/vector"
)

// Persistence is the snapshot backend the store writes through to.
// All calls are best-effort from the store's point of view: failures
// are logged and the in-memory state stays authoritative.
type Persistence interface {
	SaveItem(ctx context.Context, item *core.MemoryItem) error
	DeleteItem(ctx context.Context, id string) error
	LoadItems(ctx context.Context) ([]*core.MemoryItem, error)
	SaveCounters(ctx context.Context, c Counters) error
	LoadCounters(ctx context.Context) (Counters, error)
}

// Counters are the store's running totals, persisted across restarts.
type Counters struct {
	TotalItems        int       `json:"total_items"`
	TotalRetrievals   int       `json:"total_retrievals"`
	AverageSimilarity float64   `json:"average_similarity"`
	LastCleanup       time.Time `json:"last_cleanup,omitempty"`
}

// Store holds items and their search indexes. All methods are safe for
// concurrent use.
type Store struct {
	mu           sync.RWMutex
	items        map[string]*core.MemoryItem
	tagIndex     map[string]map[string]struct{} // tag -> item ids
	contextIndex map[string]map[string]struct{} // "project:x"/"user:y" -> item ids
	counters     Counters

	embedder embedder.Embedder
	vectors  *vector.Index
	persist  Persistence
	clock    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder attaches an embedding provider. Items stored while an
// embedder is attached get an embedding and enter the vector index.
func WithEmbedder(e embedder.Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// WithVectorIndex attaches a semantic index for similarity queries.
func WithVectorIndex(ix *vector.Index) Option {
	return func(s *Store) { s.vectors = ix }
}

// WithPersistence attaches a snapshot backend.
func WithPersistence(p Persistence) Option {
	return func(s *Store) { s.persist = p }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items:        make(map[string]*core.MemoryItem),
		tagIndex:     make(map[string]map[string]struct{}),
		contextIndex: make(map[string]map[string]struct{}),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores persisted items into the store. Items that fail to
// re-index are skipped with a log line, never a hard failure.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}

	items, err := s.persist.LoadItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("load items: %w", err)
	}

	loaded := 0
	for _, item := range items {
		if item.ID == "" || item.Content == "" {
			log.Printf("[STORE] skipping malformed persisted item %q", item.ID)
			continue
		}
		s.mu.Lock()
		s.items[item.ID] = item
		s.addToIndexes(item)
		s.counters.TotalItems = len(s.items)
		s.mu.Unlock()

		if s.vectors != nil && len(item.Embedding) > 0 {
			if err := s.vectors.Add(ctx, item.ID, item.Content, item.Embedding); err != nil {
				log.Printf("[STORE] reindex %s: %v", item.ID, err)
			}
		}
		loaded++
	}

	if c, err := s.persist.LoadCounters(ctx); err == nil {
		s.mu.Lock()
		s.counters.TotalRetrievals = c.TotalRetrievals
		s.counters.AverageSimilarity = c.AverageSimilarity
		s.counters.LastCleanup = c.LastCleanup
		s.counters.TotalItems = len(s.items)
		s.mu.Unlock()
	}

	log.Printf("[STORE] loaded %d items", loaded)
	return loaded, nil
}

// Put stores an item and returns its id. Missing ids, timestamps, and
// classification fields are filled with defaults; the content
// fingerprint is always recomputed. When an embedder is attached the
// item is embedded and added to the vector index; embedding failures
// degrade to storing without a vector.
func (s *Store) Put(ctx context.Context, item *core.MemoryItem) (string, error) {
	if item == nil {
		return "", fmt.Errorf("store: nil item")
	}
	if item.Content == "" {
		return "", fmt.Errorf("store: item content is required")
	}
	if item.Type != "" && !item.Type.Valid() {
		return "", fmt.Errorf("store: invalid memory type %q", item.Type)
	}
	if item.AccessLevel != "" && !item.AccessLevel.Valid() {
		return "", fmt.Errorf("store: invalid access level %q", item.AccessLevel)
	}

	now := s.clock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Type == "" {
		item.Type = core.TypeText
	}
	if item.AccessLevel == "" {
		item.AccessLevel = core.AccessPublic
	}
	if item.Importance == 0 {
		item.Importance = 1.0
	}
	if item.Confidence == 0 {
		item.Confidence = 1.0
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	item.Fingerprint = core.Hash(item.Content)

	if s.embedder != nil && len(item.Embedding) == 0 {
		vecs, err := s.embedder.Embed(ctx, []string{item.Content})
		if err != nil {
			log.Printf("[STORE] embed %s failed, storing without vector: %v", item.ID, err)
		} else if len(vecs) == 1 {
			item.Embedding = vecs[0]
		}
	}

	stored := item.Clone()

	s.mu.Lock()
	if prev, ok := s.items[stored.ID]; ok {
		s.removeFromIndexes(prev)
	}
	s.items[stored.ID] = stored
	s.addToIndexes(stored)
	s.counters.TotalItems = len(s.items)
	s.mu.Unlock()

	if s.vectors != nil && len(stored.Embedding) > 0 {
		if err := s.vectors.Add(ctx, stored.ID, stored.Content, stored.Embedding); err != nil {
			log.Printf("[STORE] vector add %s: %v", stored.ID, err)
		}
	}

	s.saveItem(ctx, stored)
	log.Printf("[STORE] stored item %s type=%s tags=%d", stored.ID, stored.Type, len(stored.Tags))
	return stored.ID, nil
}

// Get returns a copy of the item and records the access.
func (s *Store) Get(ctx context.Context, id string) (*core.MemoryItem, error) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("get %s: %w", id, core.ErrNotFound)
	}
	item.Touch(s.clock())
	out := item.Clone()
	s.mu.Unlock()

	s.saveItem(ctx, out)
	return out, nil
}

// Peek returns a copy of the item without recording an access.
func (s *Store) Peek(id string) (*core.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("peek %s: %w", id, core.ErrNotFound)
	}
	return item.Clone(), nil
}

// Items returns copies of every stored item, in no particular order.
func (s *Store) Items() []*core.MemoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	return out
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Search returns up to limit items ranked by similarity to text,
// restricted by the optional query filters. Similarity comes from the
// embedder when one is attached and from token overlap otherwise; hits
// below a small floor are dropped. Returned items have been accessed:
// counters and last-access times are updated.
func (s *Store) Search(ctx context.Context, text string, q *core.Query, limit int) ([]*core.MemoryItem, error) {
	if limit <= 0 {
		limit = 10
	}
	now := s.clock()

	sims, err := s.Similarities(ctx, text, limit*2)
	if err != nil {
		return nil, err
	}

	var results []*core.MemoryItem
	s.mu.RLock()
	for _, item := range s.items {
		if q != nil && !q.Matches(item, now) {
			continue
		}
		sim, ok := sims[item.ID]
		if !ok {
			// Token-overlap mode scores every item; vector mode only
			// scores index hits.
			continue
		}
		if sim <= 0.1 {
			continue
		}
		c := item.Clone()
		c.SimilarityScore = sim
		results = append(results, c)
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].SimilarityScore != results[j].SimilarityScore {
			return results[i].SimilarityScore > results[j].SimilarityScore
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.mu.Lock()
	for _, r := range results {
		if item, ok := s.items[r.ID]; ok {
			item.Touch(now)
			r.LastAccessed = item.LastAccessed
			r.AccessCount = item.AccessCount
		}
	}
	s.counters.TotalRetrievals++
	if len(results) > 0 {
		total := 0.0
		for _, r := range results {
			total += r.SimilarityScore
		}
		s.counters.AverageSimilarity = total / float64(len(results))
	}
	s.mu.Unlock()

	for _, r := range results {
		s.saveItem(ctx, r)
	}
	s.saveCounters(ctx)
	return results, nil
}

// Similarities scores stored items against text. With an embedder and
// vector index attached the scores are cosine similarities for the top
// limit index hits; without one, every item gets a token-overlap score.
func (s *Store) Similarities(ctx context.Context, text string, limit int) (map[string]float64, error) {
	if s.embedder != nil && s.vectors != nil {
		vecs, err := s.embedder.Embed(ctx, []string{text})
		if err != nil {
			log.Printf("[STORE] query embed failed, falling back to token overlap: %v", err)
			return s.overlapScores(text), nil
		}
		matches, err := s.vectors.Query(ctx, vecs[0], limit)
		if err != nil {
			return nil, fmt.Errorf("vector query: %w", err)
		}
		sims := make(map[string]float64, len(matches))
		s.mu.RLock()
		for _, m := range matches {
			// Skip index entries whose item has been deleted.
			if _, ok := s.items[m.ID]; ok {
				sims[m.ID] = m.Similarity
			}
		}
		s.mu.RUnlock()
		return sims, nil
	}
	return s.overlapScores(text), nil
}

func (s *Store) overlapScores(text string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sims := make(map[string]float64, len(s.items))
	for id, item := range s.items {
		sims[id] = TokenOverlap(text, item.Content)
	}
	return sims
}

// Update applies a partial update to an item. A content change
// recomputes the fingerprint and embedding; tag and context changes
// reindex transactionally.
func (s *Store) Update(ctx context.Context, id string, patch Update) (*core.MemoryItem, error) {
	var newEmbedding []float32
	if patch.Content != nil && s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{*patch.Content})
		if err != nil {
			log.Printf("[STORE] re-embed %s failed, keeping stale vector: %v", id, err)
		} else if len(vecs) == 1 {
			newEmbedding = vecs[0]
		}
	}

	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("update %s: %w", id, core.ErrNotFound)
	}

	s.removeFromIndexes(item)
	if patch.Content != nil {
		item.Content = *patch.Content
		item.Fingerprint = core.Hash(item.Content)
		if newEmbedding != nil {
			item.Embedding = newEmbedding
		}
	}
	if patch.Context != nil {
		item.Context = *patch.Context
	}
	if patch.Tags != nil {
		item.Tags = append([]string(nil), patch.Tags...)
	}
	if patch.Importance != nil {
		item.Importance = *patch.Importance
	}
	item.UpdatedAt = s.clock()
	s.addToIndexes(item)
	out := item.Clone()
	s.mu.Unlock()

	if s.vectors != nil && patch.Content != nil && len(out.Embedding) > 0 {
		if err := s.vectors.Add(ctx, out.ID, out.Content, out.Embedding); err != nil {
			log.Printf("[STORE] vector update %s: %v", out.ID, err)
		}
	}

	s.saveItem(ctx, out)
	return out, nil
}

// Update is a partial item update; nil fields are left unchanged.
type Update struct {
	Content    *string
	Context    *core.Context
	Tags       []string
	Importance *float64
}

// Delete removes an item and its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	s.removeFromIndexes(item)
	delete(s.items, id)
	s.counters.TotalItems = len(s.items)
	s.mu.Unlock()

	// The vector index keeps its entry; Similarities drops hits whose
	// item no longer exists.
	if s.persist != nil {
		if err := s.persist.DeleteItem(ctx, id); err != nil {
			log.Printf("[STORE] persist delete %s: %v", id, err)
		}
	}
	log.Printf("[STORE] deleted item %s", id)
	return nil
}

// IDsByTag returns the ids currently indexed under a tag.
func (s *Store) IDsByTag(tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return idSetToSlice(s.tagIndex[tag])
}

// IDsByContextKey returns the ids currently indexed under a context
// key such as "project:api" or "user:alice".
func (s *Store) IDsByContextKey(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return idSetToSlice(s.contextIndex[key])
}

func idSetToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// addToIndexes registers an item under its tags and context keys.
// Callers hold the write lock.
func (s *Store) addToIndexes(item *core.MemoryItem) {
	for _, tag := range item.Tags {
		if s.tagIndex[tag] == nil {
			s.tagIndex[tag] = make(map[string]struct{})
		}
		s.tagIndex[tag][item.ID] = struct{}{}
	}
	for _, key := range contextKeys(item.Context) {
		if s.contextIndex[key] == nil {
			s.contextIndex[key] = make(map[string]struct{})
		}
		s.contextIndex[key][item.ID] = struct{}{}
	}
}

// removeFromIndexes drops an item's index entries, deleting emptied
// buckets. Callers hold the write lock.
func (s *Store) removeFromIndexes(item *core.MemoryItem) {
	for _, tag := range item.Tags {
		if set, ok := s.tagIndex[tag]; ok {
			delete(set, item.ID)
			if len(set) == 0 {
				delete(s.tagIndex, tag)
			}
		}
	}
	for _, key := range contextKeys(item.Context) {
		if set, ok := s.contextIndex[key]; ok {
			delete(set, item.ID)
			if len(set) == 0 {
				delete(s.contextIndex, key)
			}
		}
	}
}

func contextKeys(c core.Context) []string {
	var keys []string
	if c.Project != "" {
		keys = append(keys, "project:"+c.Project)
	}
	if c.User != "" {
		keys = append(keys, "user:"+c.User)
	}
	return keys
}

func (s *Store) saveItem(ctx context.Context, item *core.MemoryItem) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveItem(ctx, item); err != nil {
		log.Printf("[STORE] persist item %s: %v", item.ID, err)
	}
}

func (s *Store) saveCounters(ctx context.Context) {
	if s.persist == nil {
		return
	}
	s.mu.RLock()
	c := s.counters
	s.mu.RUnlock()
	if err := s.persist.SaveCounters(ctx, c); err != nil {
		log.Printf("[STORE] persist counters: %v", err)
	}
}
