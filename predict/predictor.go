package predict

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextware/recall/core"
)

const (
	// maxPatternAge bounds how far back learned accesses count.
	maxPatternAge = 30 * 24 * time.Hour
	// sequenceWindow is the rolling per-user access window length.
	sequenceWindow = 5
	// similarUserThreshold is the minimum Jaccard overlap of accessed
	// item sets for two users to count as similar.
	similarUserThreshold = 0.3
)

type accessEvent struct {
	At     time.Time
	ItemID string
}

type workflow struct {
	Session string
	Steps   []string
}

// Predictor learns per-user access patterns and generates predictions
// from them. Safe for concurrent use.
type Predictor struct {
	mu        sync.Mutex
	temporal  map[string][]accessEvent          // user -> access log, pruned to maxPatternAge
	assoc     map[string]map[string]float64     // context key -> item id -> strength
	sequences map[string][]string               // user -> rolling access window
	workflows map[string][]*workflow            // user -> per-session step lists
	clock     func() time.Time
}

// NewPredictor creates an empty predictor.
func NewPredictor(clock func() time.Time) *Predictor {
	if clock == nil {
		clock = time.Now
	}
	return &Predictor{
		temporal:  make(map[string][]accessEvent),
		assoc:     make(map[string]map[string]float64),
		sequences: make(map[string][]string),
		workflows: make(map[string][]*workflow),
		clock:     clock,
	}
}

// Learn records one access event for a user: it extends the temporal
// log (pruning entries older than 30 days), strengthens the context
// association, advances the rolling sequence window, and, when the
// context carries a session, extends that session's workflow.
func (p *Predictor) Learn(itemID string, c core.Context, at time.Time, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.clock().Add(-maxPatternAge)
	log := append(p.temporal[userID], accessEvent{At: at, ItemID: itemID})
	kept := log[:0]
	for _, ev := range log {
		if ev.At.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	p.temporal[userID] = kept

	key := c.Key()
	if p.assoc[key] == nil {
		p.assoc[key] = make(map[string]float64)
	}
	p.assoc[key][itemID] += 1.0

	seq := append(p.sequences[userID], itemID)
	if len(seq) > sequenceWindow {
		seq = seq[len(seq)-sequenceWindow:]
	}
	p.sequences[userID] = seq

	if c.Session != "" {
		p.learnWorkflowLocked(userID, c.Session, itemID)
	}
}

// learnWorkflowLocked appends the item to the workflow for its
// session, starting one if needed. A repeated id in the same session
// is not re-appended.
func (p *Predictor) learnWorkflowLocked(userID, session, itemID string) {
	var wf *workflow
	for _, w := range p.workflows[userID] {
		if w.Session == session {
			wf = w
			break
		}
	}
	if wf == nil {
		wf = &workflow{Session: session}
		p.workflows[userID] = append(p.workflows[userID], wf)
	}
	for _, step := range wf.Steps {
		if step == itemID {
			return
		}
	}
	wf.Steps = append(wf.Steps, itemID)
}

// PredictNext merges the sequence, context, temporal, workflow, and
// collaborative generators, ranks the result, and returns the top 10.
func (p *Predictor) PredictNext(c core.Context, userID string, recent []string) []Prediction {
	var predictions []Prediction
	predictions = append(predictions, p.fromSequences(userID, recent, c)...)
	predictions = append(predictions, p.fromContext(c, userID)...)
	predictions = append(predictions, p.fromTemporal(userID, c)...)
	predictions = append(predictions, p.fromWorkflows(userID, c, recent)...)
	predictions = append(predictions, p.fromCollaboration(userID, c)...)

	predictions = Rank(predictions)
	if len(predictions) > 10 {
		predictions = predictions[:10]
	}
	return predictions
}

// fromSequences matches the recent accesses (two or more) against the
// user's rolling window and predicts up to the next three ids after
// each match position.
func (p *Predictor) fromSequences(userID string, recent []string, c core.Context) []Prediction {
	if len(recent) < 2 {
		return nil
	}

	p.mu.Lock()
	pattern := append([]string(nil), p.sequences[userID]...)
	p.mu.Unlock()
	if len(pattern) < len(recent) {
		return nil
	}

	now := p.clock()
	var out []Prediction
	for i := 0; i+len(recent) <= len(pattern); i++ {
		if !equalSeq(pattern[i:i+len(recent)], recent) {
			continue
		}
		next := pattern[i+len(recent):]
		if len(next) > 3 {
			next = next[:3]
		}
		if len(next) == 0 {
			continue
		}

		score := min(1.0, float64(len(recent))/float64(max(1, len(pattern)))+0.2)
		out = append(out, Prediction{
			ID:          newPredictionID(TypeNext),
			ItemIDs:     append([]string(nil), next...),
			Type:        TypeNext,
			Tier:        scoreToTier(score),
			Score:       score,
			Reasoning:   "Based on observed access sequences",
			Context:     c,
			PredictedAt: now,
			ValidUntil:  now.Add(2 * time.Hour),
			Evidence: map[string]any{
				"sequence_pattern": pattern,
				"match_position":   i,
				"recent_accesses":  recent,
			},
		})
	}
	return out
}

// fromContext predicts the five items most strongly associated with
// the context key, scored by average strength normalized by 10.
func (p *Predictor) fromContext(c core.Context, userID string) []Prediction {
	key := c.Key()

	p.mu.Lock()
	strengths := p.assoc[key]
	top := topByWeight(strengths, 5)
	p.mu.Unlock()
	if len(top) == 0 {
		return nil
	}

	total := 0.0
	ids := make([]string, len(top))
	for i, entry := range top {
		ids[i] = entry.id
		total += entry.weight
	}
	avg := total / float64(len(top))
	score := min(1.0, avg/10)

	now := p.clock()
	return []Prediction{{
		ID:          newPredictionID(TypeContext),
		ItemIDs:     ids,
		Type:        TypeContext,
		Tier:        scoreToTier(score),
		Score:       score,
		Reasoning:   fmt.Sprintf("Memories commonly accessed in context: %s", key),
		Context:     c,
		PredictedAt: now,
		ValidUntil:  now.Add(4 * time.Hour),
		Evidence: map[string]any{
			"context_key":          key,
			"association_strength": avg,
			"memory_count":         len(ids),
		},
	}}
}

// fromTemporal predicts the three items most often accessed within an
// hour of the current hour on the same weekday.
func (p *Predictor) fromTemporal(userID string, c core.Context) []Prediction {
	now := p.clock()

	p.mu.Lock()
	counts := make(map[string]float64)
	hits := 0
	for _, ev := range p.temporal[userID] {
		if hourDelta(ev.At.Hour(), now.Hour()) <= 1 && ev.At.Weekday() == now.Weekday() {
			counts[ev.ItemID]++
			hits++
		}
	}
	p.mu.Unlock()
	if hits == 0 {
		return nil
	}

	top := topByWeight(counts, 3)
	ids := make([]string, len(top))
	freqs := make(map[string]float64, len(top))
	for i, entry := range top {
		ids[i] = entry.id
		freqs[entry.id] = entry.weight
	}

	return []Prediction{{
		ID:          newPredictionID(TypeTemporal),
		ItemIDs:     ids,
		Type:        TypeTemporal,
		Tier:        TierMedium,
		Score:       0.65,
		Reasoning:   "Memories typically accessed at this time",
		Context:     c,
		PredictedAt: now,
		ValidUntil:  now.Add(3 * time.Hour),
		Evidence: map[string]any{
			"time_window":     fmt.Sprintf("%02d:00, %s", now.Hour(), now.Weekday()),
			"pattern_count":   hits,
			"top_frequencies": freqs,
		},
	}}
}

// fromWorkflows matches recent accesses against session workflows and
// predicts the next two steps after each match position.
func (p *Predictor) fromWorkflows(userID string, c core.Context, recent []string) []Prediction {
	if len(recent) < 2 {
		return nil
	}

	p.mu.Lock()
	var steps [][]string
	for _, wf := range p.workflows[userID] {
		steps = append(steps, append([]string(nil), wf.Steps...))
	}
	p.mu.Unlock()

	now := p.clock()
	var out []Prediction
	for _, pattern := range steps {
		for i := 0; i+len(recent) <= len(pattern); i++ {
			if !equalSeq(pattern[i:i+len(recent)], recent) {
				continue
			}
			next := pattern[i+len(recent):]
			if len(next) > 2 {
				next = next[:2]
			}
			if len(next) == 0 {
				continue
			}

			out = append(out, Prediction{
				ID:          newPredictionID(TypeWorkflow),
				ItemIDs:     append([]string(nil), next...),
				Type:        TypeWorkflow,
				Tier:        TierHigh,
				Score:       0.8,
				Reasoning:   "Based on observed workflow patterns",
				Context:     c,
				PredictedAt: now,
				ValidUntil:  now.Add(1 * time.Hour),
				Evidence: map[string]any{
					"workflow_pattern": pattern,
					"match_position":   i,
					"workflow_length":  len(pattern),
				},
			})
		}
	}
	return out
}

// fromCollaboration predicts the three items similar users accessed
// most in the last 24 hours.
func (p *Predictor) fromCollaboration(userID string, c core.Context) []Prediction {
	similar := p.SimilarUsers(userID)
	if len(similar) == 0 {
		return nil
	}

	now := p.clock()
	cutoff := now.Add(-24 * time.Hour)

	p.mu.Lock()
	counts := make(map[string]float64)
	total := 0
	for _, other := range similar {
		for _, ev := range p.temporal[other] {
			if ev.At.After(cutoff) {
				counts[ev.ItemID]++
				total++
			}
		}
	}
	p.mu.Unlock()
	if total == 0 {
		return nil
	}

	top := topByWeight(counts, 3)
	ids := make([]string, len(top))
	freqs := make(map[string]float64, len(top))
	for i, entry := range top {
		ids[i] = entry.id
		freqs[entry.id] = entry.weight
	}

	return []Prediction{{
		ID:          newPredictionID(TypeCollaborative),
		ItemIDs:     ids,
		Type:        TypeCollaborative,
		Tier:        TierMedium,
		Score:       0.55,
		Reasoning:   "Memories recently accessed by similar users",
		Context:     c,
		PredictedAt: now,
		ValidUntil:  now.Add(6 * time.Hour),
		Evidence: map[string]any{
			"similar_users":       similar,
			"collaborative_count": total,
			"top_frequencies":     freqs,
		},
	}}
}

// PredictRelated finds items co-accessed within an hour of the target
// item's accesses, one prediction per user whose log shows overlap.
func (p *Predictor) PredictRelated(itemID string, c core.Context) []Prediction {
	now := p.clock()

	p.mu.Lock()
	users := make([]string, 0, len(p.temporal))
	for user := range p.temporal {
		users = append(users, user)
	}
	sort.Strings(users)

	var out []Prediction
	for _, user := range users {
		log := p.temporal[user]
		related := relatedInLog(itemID, log)
		if len(related) == 0 {
			continue
		}

		score := coAccessScore(related, log)
		tier := TierLow
		switch {
		case len(related) >= 3 && c.Project != "":
			tier = TierHigh
		case len(related) >= 2:
			tier = TierMedium
		}

		out = append(out, Prediction{
			ID:          newPredictionID(TypeRelated),
			ItemIDs:     related,
			Type:        TypeRelated,
			Tier:        tier,
			Score:       score,
			Reasoning:   fmt.Sprintf("Memories commonly accessed together with %s", itemID),
			Context:     c,
			PredictedAt: now,
			ValidUntil:  now.Add(24 * time.Hour),
			Evidence: map[string]any{
				"base_memory":           itemID,
				"co_occurrence_patterns": len(related),
				"user_patterns":         user,
			},
		})
	}
	p.mu.Unlock()
	return out
}

// PredictSeasonal predicts the five items most accessed either at the
// same hour (within one) on the same weekday, or in the same calendar
// month.
func (p *Predictor) PredictSeasonal(c core.Context, userID string) []Prediction {
	now := p.clock()

	p.mu.Lock()
	counts := make(map[string]float64)
	hits := 0
	for _, ev := range p.temporal[userID] {
		if hourDelta(ev.At.Hour(), now.Hour()) <= 1 && ev.At.Weekday() == now.Weekday() {
			counts[ev.ItemID]++
			hits++
		}
		if ev.At.Month() == now.Month() {
			counts[ev.ItemID]++
			hits++
		}
	}
	p.mu.Unlock()
	if hits == 0 {
		return nil
	}

	top := topByWeight(counts, 5)
	ids := make([]string, len(top))
	for i, entry := range top {
		ids[i] = entry.id
	}

	return []Prediction{{
		ID:          newPredictionID(TypeSeasonal),
		ItemIDs:     ids,
		Type:        TypeSeasonal,
		Tier:        TierMedium,
		Score:       0.6,
		Reasoning:   "Memories typically accessed at this time",
		Context:     c,
		PredictedAt: now,
		ValidUntil:  now.Add(6 * time.Hour),
		Evidence: map[string]any{
			"time_patterns": map[string]any{
				"hour":  now.Hour(),
				"day":   int(now.Weekday()),
				"month": int(now.Month()),
			},
			"pattern_strength": hits,
		},
	}}
}

// SimilarUsers returns up to three users whose accessed-item sets
// overlap the given user's by Jaccard similarity above the threshold,
// strongest overlap first.
func (p *Predictor) SimilarUsers(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	mine := itemSet(p.temporal[userID])
	if len(mine) == 0 {
		return nil
	}

	type scored struct {
		user string
		sim  float64
	}
	var candidates []scored
	for other, log := range p.temporal {
		if other == userID {
			continue
		}
		theirs := itemSet(log)
		sim := jaccard(mine, theirs)
		if sim > similarUserThreshold {
			candidates = append(candidates, scored{other, sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].user < candidates[j].user
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	out := make([]string, len(candidates))
	for i, cand := range candidates {
		out[i] = cand.user
	}
	return out
}

// Rank sorts predictions by score descending (stable) and drops any
// later prediction that reuses an item id a kept prediction already
// claimed.
func Rank(predictions []Prediction) []Prediction {
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Score > predictions[j].Score
	})

	seen := make(map[string]struct{})
	var unique []Prediction
	for _, pred := range predictions {
		overlap := false
		for _, id := range pred.ItemIDs {
			if _, ok := seen[id]; ok {
				overlap = true
				break
			}
		}
		if overlap {
			continue
		}
		unique = append(unique, pred)
		for _, id := range pred.ItemIDs {
			seen[id] = struct{}{}
		}
	}
	return unique
}

// relatedInLog returns the three items most often accessed within an
// hour of the target item's accesses in one user's log.
func relatedInLog(itemID string, log []accessEvent) []string {
	var targetTimes []time.Time
	for _, ev := range log {
		if ev.ItemID == itemID {
			targetTimes = append(targetTimes, ev.At)
		}
	}
	if len(targetTimes) == 0 {
		return nil
	}

	counts := make(map[string]float64)
	for _, target := range targetTimes {
		for _, ev := range log {
			if ev.ItemID == itemID {
				continue
			}
			delta := ev.At.Sub(target)
			if delta < 0 {
				delta = -delta
			}
			if delta <= time.Hour {
				counts[ev.ItemID]++
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}

	top := topByWeight(counts, 3)
	ids := make([]string, len(top))
	for i, entry := range top {
		ids[i] = entry.id
	}
	return ids
}

// coAccessScore scores a related-items prediction: up to 0.9 from the
// number of related items, plus up to 0.3 from their average access
// frequency in the log.
func coAccessScore(related []string, log []accessEvent) float64 {
	base := min(0.9, float64(len(related))/5)

	counts := make(map[string]int)
	for _, ev := range log {
		for _, id := range related {
			if ev.ItemID == id {
				counts[id]++
			}
		}
	}
	avg := 1.0
	if len(counts) > 0 {
		total := 0
		for _, c := range counts {
			total += c
		}
		avg = float64(total) / float64(len(counts))
	}
	return min(1.0, base+min(0.3, avg/10))
}

type weighted struct {
	id     string
	weight float64
}

// topByWeight returns the n heaviest entries, ties broken by id so the
// order is stable.
func topByWeight(weights map[string]float64, n int) []weighted {
	entries := make([]weighted, 0, len(weights))
	for id, w := range weights {
		entries = append(entries, weighted{id, w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		return entries[i].id < entries[j].id
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func itemSet(log []accessEvent) map[string]struct{} {
	set := make(map[string]struct{}, len(log))
	for _, ev := range log {
		set[ev.ItemID] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func equalSeq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hourDelta(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

func newPredictionID(t Type) string {
	return fmt.Sprintf("%s-%s", t, uuid.New().String())
}
