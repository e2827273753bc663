// Package predict learns access patterns and turns them into memory
// predictions that a preload cache can warm before the items are asked
// for.
package predict

import (
	"time"

	"github.com/contextware/recall/core"
)

// Type classifies what kind of pattern produced a prediction.
type Type string

const (
	TypeNext          Type = "next_memory"
	TypeRelated       Type = "related_memories"
	TypeContext       Type = "context_memories"
	TypeTemporal      Type = "temporal_memories"
	TypeCollaborative Type = "collaborative_memories"
	TypeWorkflow      Type = "workflow_memories"
	TypeSeasonal      Type = "seasonal_memories"
)

// Tier is the coarse confidence band of a prediction.
type Tier string

const (
	TierVeryLow  Tier = "very_low"
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierVeryHigh Tier = "very_high"
)

// scoreToTier maps a confidence score onto its band.
func scoreToTier(score float64) Tier {
	switch {
	case score >= 0.8:
		return TierVeryHigh
	case score >= 0.6:
		return TierHigh
	case score >= 0.4:
		return TierMedium
	case score >= 0.2:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Prediction is one forecast item-need with its provenance.
type Prediction struct {
	ID          string         `json:"id"`
	ItemIDs     []string       `json:"item_ids"`
	Type        Type           `json:"type"`
	Tier        Tier           `json:"tier"`
	Score       float64        `json:"score"`
	Reasoning   string         `json:"reasoning"`
	Context     core.Context   `json:"context,omitempty"`
	PredictedAt time.Time      `json:"predicted_at"`
	ValidUntil  time.Time      `json:"valid_until"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// Valid reports whether the prediction's validity window is still open.
func (p *Prediction) Valid(now time.Time) bool {
	return now.Before(p.ValidUntil)
}
