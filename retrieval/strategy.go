package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/contextware/recall/core"
)

// candidates dispatches to the generator for the selected strategy.
// Every generator returns at most 2*MaxResults items, best first, with
// the transient SimilarityScore set to its strategy-specific score.
func (r *Retriever) candidates(ctx context.Context, q *core.Query, strategy core.Strategy, profile *UserProfile) ([]*core.MemoryItem, error) {
	switch strategy {
	case core.StrategySemantic:
		return r.semanticCandidates(ctx, q)
	case core.StrategyContextual:
		return r.contextualCandidates(q), nil
	case core.StrategyTemporal:
		return r.temporalCandidates(q), nil
	case core.StrategyFrequency:
		return r.frequencyCandidates(q), nil
	case core.StrategyImportance:
		return r.importanceCandidates(q), nil
	case core.StrategyHybrid, core.StrategyAdaptive:
		// Adaptive currently reuses the hybrid blend; the learned
		// per-strategy weights feed strategy selection instead.
		return r.hybridCandidates(ctx, q)
	case core.StrategyCollaborative:
		return r.collaborativeCandidates(ctx, q, profile)
	default:
		return r.semanticCandidates(ctx, q)
	}
}

// semanticCandidates keeps items at or above the similarity threshold.
// Scores come from the embedder and vector index when attached, and
// from token overlap otherwise.
func (r *Retriever) semanticCandidates(ctx context.Context, q *core.Query) ([]*core.MemoryItem, error) {
	limit := q.MaxResults * 2
	sims, err := r.store.Similarities(ctx, q.Text, limit)
	if err != nil {
		return nil, err
	}

	now := r.clock()
	var out []*core.MemoryItem
	for _, item := range r.store.Items() {
		if !q.Matches(item, now) {
			continue
		}
		sim, ok := sims[item.ID]
		if !ok || sim < q.SimilarityThreshold {
			continue
		}
		item.SimilarityScore = sim
		out = append(out, item)
	}
	return topCandidates(out, limit), nil
}

// contextualCandidates keeps items whose context similarity to the
// query context clears 0.3.
func (r *Retriever) contextualCandidates(q *core.Query) []*core.MemoryItem {
	now := r.clock()
	var out []*core.MemoryItem
	for _, item := range r.store.Items() {
		if !q.Matches(item, now) {
			continue
		}
		score := q.Context.Similarity(item.Context)
		if score <= 0.3 {
			continue
		}
		item.SimilarityScore = score
		out = append(out, item)
	}
	return topCandidates(out, q.MaxResults*2)
}

// temporalCandidates scores every matching item by age decay over one
// week, floored at 0.1, multiplied by a recent-access boost of up to
// 2x that fades over 24 hours.
func (r *Retriever) temporalCandidates(q *core.Query) []*core.MemoryItem {
	now := r.clock()
	var out []*core.MemoryItem
	for _, item := range r.store.Items() {
		if !q.Matches(item, now) {
			continue
		}
		ageHours := item.AgeHours(now)
		score := max(0.1, 1.0-ageHours/(24*7))
		if !item.LastAccessed.IsZero() {
			accessHours := now.Sub(item.LastAccessed).Hours()
			score *= max(1.0, 2.0-accessHours/24)
		}
		item.SimilarityScore = score
		out = append(out, item)
	}
	return topCandidates(out, q.MaxResults*2)
}

// frequencyCandidates scores by accesses per day of age, normalized so
// ten accesses a day saturates at 1.0.
func (r *Retriever) frequencyCandidates(q *core.Query) []*core.MemoryItem {
	now := r.clock()
	var out []*core.MemoryItem
	for _, item := range r.store.Items() {
		if !q.Matches(item, now) {
			continue
		}
		item.SimilarityScore = min(1.0, frequencyPerDay(item, now)/10)
		out = append(out, item)
	}
	return topCandidates(out, q.MaxResults*2)
}

// importanceCandidates scores by the stored importance alone.
func (r *Retriever) importanceCandidates(q *core.Query) []*core.MemoryItem {
	now := r.clock()
	var out []*core.MemoryItem
	for _, item := range r.store.Items() {
		if !q.Matches(item, now) {
			continue
		}
		item.SimilarityScore = item.Importance
		out = append(out, item)
	}
	return topCandidates(out, q.MaxResults*2)
}

// hybridCandidates blends semantic, contextual, and temporal scores at
// 0.4/0.3/0.3, summing contributions for items several generators
// agree on.
func (r *Retriever) hybridCandidates(ctx context.Context, q *core.Query) ([]*core.MemoryItem, error) {
	semantic, err := r.semanticCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	contextual := r.contextualCandidates(q)
	temporal := r.temporalCandidates(q)

	merged := make(map[string]*core.MemoryItem)
	blend := func(items []*core.MemoryItem, weight float64) {
		for _, item := range items {
			if existing, ok := merged[item.ID]; ok {
				existing.SimilarityScore += item.SimilarityScore * weight
			} else {
				item.SimilarityScore *= weight
				merged[item.ID] = item
			}
		}
	}
	blend(semantic, 0.4)
	blend(contextual, 0.3)
	blend(temporal, 0.3)

	out := make([]*core.MemoryItem, 0, len(merged))
	for _, item := range merged {
		out = append(out, item)
	}
	return topCandidates(out, q.MaxResults*2), nil
}

// collaborativeCandidates favors items authored by users similar to
// the querying user, blended with half-weight semantic similarity.
// Without similar users it degrades to plain semantic retrieval.
func (r *Retriever) collaborativeCandidates(ctx context.Context, q *core.Query, profile *UserProfile) ([]*core.MemoryItem, error) {
	if profile == nil || len(profile.SimilarUsers) == 0 {
		return r.semanticCandidates(ctx, q)
	}

	similar := make(map[string]struct{}, len(profile.SimilarUsers))
	for _, u := range profile.SimilarUsers {
		similar[u] = struct{}{}
	}

	sims, err := r.store.Similarities(ctx, q.Text, q.MaxResults*2)
	if err != nil {
		return nil, err
	}

	now := r.clock()
	var out []*core.MemoryItem
	for _, item := range r.store.Items() {
		if !q.Matches(item, now) {
			continue
		}
		score := 0.0
		if _, ok := similar[item.Context.User]; ok && item.Context.User != "" {
			score = 0.8
		}
		if sim, ok := sims[item.ID]; ok {
			score = max(score, sim*0.5)
		}
		if score <= 0.1 {
			continue
		}
		item.SimilarityScore = score
		out = append(out, item)
	}
	return topCandidates(out, q.MaxResults*2), nil
}

// topCandidates sorts by score descending, breaking ties by id, and
// truncates to limit.
func topCandidates(items []*core.MemoryItem, limit int) []*core.MemoryItem {
	sort.Slice(items, func(i, j int) bool {
		if items[i].SimilarityScore != items[j].SimilarityScore {
			return items[i].SimilarityScore > items[j].SimilarityScore
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// frequencyPerDay returns accesses per whole day of item age, with
// items younger than a day counting as one day old.
func frequencyPerDay(item *core.MemoryItem, now time.Time) float64 {
	ageDays := int(item.AgeHours(now) / 24)
	if ageDays < 1 {
		ageDays = 1
	}
	return float64(item.AccessCount) / float64(ageDays)
}

func lower(s string) string {
	return strings.ToLower(s)
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
