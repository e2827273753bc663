package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TimeRange bounds item creation times, inclusive on both ends.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Query specifies a retrieval request: free text plus hard filters.
// Zero values mean "no constraint"; MaxResults and SimilarityThreshold
// fall back to defaults when unset.
type Query struct {
	Text                string       `json:"text"`
	Context             Context      `json:"context,omitempty"`
	Types               []MemoryType `json:"types,omitempty"`
	Tags                []string     `json:"tags,omitempty"`
	MinImportance       float64      `json:"min_importance,omitempty"`
	IncludeExpired      bool         `json:"include_expired,omitempty"`
	TimeRange           *TimeRange   `json:"time_range,omitempty"`
	AccessLevel         AccessLevel  `json:"access_level,omitempty"`
	MaxResults          int          `json:"max_results,omitempty"`
	SimilarityThreshold float64      `json:"similarity_threshold,omitempty"`
	Strategy            Strategy     `json:"strategy,omitempty"`
}

// Matches applies the query's hard filters to an item. Items failing
// any filter are excluded from candidate generation regardless of how
// well they would score.
func (q *Query) Matches(item *MemoryItem, now time.Time) bool {
	if !q.IncludeExpired && item.Expired(now) {
		return false
	}
	if len(q.Types) > 0 {
		ok := false
		for _, t := range q.Types {
			if item.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(q.Tags) > 0 {
		ok := false
		for _, want := range q.Tags {
			for _, tag := range item.Tags {
				if tag == want {
					ok = true
					break
				}
			}
		}
		if !ok {
			return false
		}
	}
	if item.Importance < q.MinImportance {
		return false
	}
	if q.TimeRange != nil && !q.TimeRange.Contains(item.CreatedAt) {
		return false
	}
	if q.AccessLevel != "" && item.AccessLevel != q.AccessLevel {
		return false
	}
	return true
}

// CacheKey derives a stable key from the fields that determine a
// query's result set. Two queries with the same key may share cached
// results.
func (q *Query) CacheKey() string {
	key := struct {
		Text      string   `json:"text"`
		Max       int      `json:"max"`
		Threshold float64  `json:"threshold"`
		Strategy  Strategy `json:"strategy"`
		Context   Context  `json:"context"`
	}{q.Text, q.MaxResults, q.SimilarityThreshold, q.Strategy, q.Context}

	data, err := json.Marshal(key)
	if err != nil {
		// Marshaling plain strings and numbers cannot fail; fall back
		// to the raw text so callers never see an error here.
		data = []byte(q.Text)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
