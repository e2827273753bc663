package store

import (
	"context"
	"log"
	"time"

	"github.com/contextware/recall/core"
)

// Statistics is an aggregate snapshot of the store's contents.
type Statistics struct {
	TotalItems        int                     `json:"total_items"`
	ByType            map[core.MemoryType]int `json:"by_type"`
	ByTag             map[string]int          `json:"by_tag"`
	ByContext         map[string]int          `json:"by_context"`
	ByAge             map[string]int          `json:"by_age"`
	ByImportance      map[string]int          `json:"by_importance"`
	TotalRetrievals   int                     `json:"total_retrievals"`
	AverageSimilarity float64                 `json:"average_similarity"`
	LastCleanup       time.Time               `json:"last_cleanup,omitempty"`
}

// Statistics builds counts by type, tag, context key, age bucket
// (today / this_week / this_month / older), and importance bucket
// (high >= 0.8, medium >= 0.5, low).
func (s *Store) Statistics() *Statistics {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Statistics{
		TotalItems:        len(s.items),
		ByType:            make(map[core.MemoryType]int),
		ByTag:             make(map[string]int),
		ByContext:         make(map[string]int),
		ByAge:             make(map[string]int),
		ByImportance:      make(map[string]int),
		TotalRetrievals:   s.counters.TotalRetrievals,
		AverageSimilarity: s.counters.AverageSimilarity,
		LastCleanup:       s.counters.LastCleanup,
	}

	for _, item := range s.items {
		stats.ByType[item.Type]++
		for _, tag := range item.Tags {
			stats.ByTag[tag]++
		}
		for _, key := range contextKeys(item.Context) {
			stats.ByContext[key]++
		}

		ageHours := item.AgeHours(now)
		switch {
		case ageHours < 24:
			stats.ByAge["today"]++
		case ageHours < 24*7:
			stats.ByAge["this_week"]++
		case ageHours < 24*30:
			stats.ByAge["this_month"]++
		default:
			stats.ByAge["older"]++
		}

		switch {
		case item.Importance >= 0.8:
			stats.ByImportance["high"]++
		case item.Importance >= 0.5:
			stats.ByImportance["medium"]++
		default:
			stats.ByImportance["low"]++
		}
	}

	return stats
}

// CleanupCandidate is one item flagged for removal, with the reason.
type CleanupCandidate struct {
	ID          string  `json:"id"`
	Reason      string  `json:"reason"`
	Importance  float64 `json:"importance"`
	AgeHours    float64 `json:"age_hours"`
	AccessCount int     `json:"access_count"`
}

// CleanupReport summarizes a cleanup pass.
type CleanupReport struct {
	Candidates []CleanupCandidate `json:"candidates"`
	Deleted    int                `json:"deleted"`
	Remaining  int                `json:"remaining"`
}

// Cleanup flags expired items and stale low-value items (importance
// below 0.2, older than 30 days, accessed fewer than 2 times). With
// dryRun the report only lists candidates; otherwise they are deleted.
func (s *Store) Cleanup(ctx context.Context, dryRun bool) (*CleanupReport, error) {
	now := s.clock()

	var candidates []CleanupCandidate
	s.mu.RLock()
	for _, item := range s.items {
		reason := ""
		switch {
		case item.Expired(now):
			reason = "expired"
		case item.Importance < 0.2 && item.AgeHours(now) > 24*30 && item.AccessCount < 2:
			reason = "low_value"
		default:
			continue
		}
		candidates = append(candidates, CleanupCandidate{
			ID:          item.ID,
			Reason:      reason,
			Importance:  item.Importance,
			AgeHours:    item.AgeHours(now),
			AccessCount: item.AccessCount,
		})
	}
	s.mu.RUnlock()

	deleted := 0
	if !dryRun {
		for _, cand := range candidates {
			if err := s.Delete(ctx, cand.ID); err != nil {
				log.Printf("[STORE] cleanup delete %s: %v", cand.ID, err)
				continue
			}
			deleted++
		}
		s.mu.Lock()
		s.counters.LastCleanup = now
		s.mu.Unlock()
		s.saveCounters(ctx)
	}

	return &CleanupReport{
		Candidates: candidates,
		Deleted:    deleted,
		Remaining:  s.Len(),
	}, nil
}
