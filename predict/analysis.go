package predict

import (
	"time"
)

// TemporalSummary aggregates one user's access log.
type TemporalSummary struct {
	HourDistribution map[int]int          `json:"hour_distribution"`
	DayDistribution  map[time.Weekday]int `json:"day_distribution"`
	TotalAccesses    int                  `json:"total_accesses"`
}

// ContextSummary aggregates one context key's associations.
type ContextSummary struct {
	ItemCount     int      `json:"item_count"`
	TotalStrength float64  `json:"total_strength"`
	TopItems      []string `json:"top_items"`
}

// SequenceSummary describes one user's rolling access window.
type SequenceSummary struct {
	Length      int      `json:"length"`
	UniqueItems int      `json:"unique_items"`
	Recent      []string `json:"recent"`
}

// PatternReport is the learned-pattern side of an analysis.
type PatternReport struct {
	Temporal  map[string]TemporalSummary `json:"temporal"`
	Contexts  map[string]ContextSummary  `json:"contexts"`
	Sequences map[string]SequenceSummary `json:"sequences"`
}

// PerformanceReport is the prediction-quality side of an analysis.
type PerformanceReport struct {
	TotalPredictions    int          `json:"total_predictions"`
	AccuratePredictions int          `json:"accurate_predictions"`
	AccuracyRate        float64      `json:"accuracy_rate"`
	ByType              map[Type]int `json:"by_type"`
	ByTier              map[Tier]int `json:"by_tier"`
	AvgConfidence       float64      `json:"avg_confidence"`
}

// CacheReport summarizes the preload cache.
type CacheReport struct {
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
}

// Analysis is the full pattern-and-performance report.
type Analysis struct {
	Timestamp   time.Time          `json:"timestamp"`
	Patterns    *PatternReport     `json:"patterns,omitempty"`
	Predictions *PerformanceReport `json:"predictions,omitempty"`
	Metrics     Metrics            `json:"metrics"`
	Cache       CacheReport        `json:"cache"`
}

// AnalyzePatterns reports on learned patterns and prediction
// performance. Either half can be skipped; metrics and cache state are
// always included.
func (l *Loader) AnalyzePatterns(includePatterns, includePredictions bool) *Analysis {
	analysis := &Analysis{
		Timestamp: l.clock(),
		Metrics:   l.Metrics(),
		Cache: CacheReport{
			HitRate: l.cache.HitRate(),
			Size:    l.cache.Len(),
			MaxSize: l.cache.MaxSize(),
		},
	}

	if includePatterns {
		analysis.Patterns = l.predictor.patternReport()
	}
	if includePredictions {
		analysis.Predictions = l.performanceReport()
	}
	return analysis
}

// patternReport snapshots the predictor's learned tables.
func (p *Predictor) patternReport() *PatternReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := &PatternReport{
		Temporal:  make(map[string]TemporalSummary),
		Contexts:  make(map[string]ContextSummary),
		Sequences: make(map[string]SequenceSummary),
	}

	for user, log := range p.temporal {
		hours := make(map[int]int)
		days := make(map[time.Weekday]int)
		for _, ev := range log {
			hours[ev.At.Hour()]++
			days[ev.At.Weekday()]++
		}
		report.Temporal[user] = TemporalSummary{
			HourDistribution: hours,
			DayDistribution:  days,
			TotalAccesses:    len(log),
		}
	}

	for key, strengths := range p.assoc {
		total := 0.0
		for _, s := range strengths {
			total += s
		}
		top := topByWeight(strengths, 5)
		topIDs := make([]string, len(top))
		for i, entry := range top {
			topIDs[i] = entry.id
		}
		report.Contexts[key] = ContextSummary{
			ItemCount:     len(strengths),
			TotalStrength: total,
			TopItems:      topIDs,
		}
	}

	for user, seq := range p.sequences {
		unique := make(map[string]struct{}, len(seq))
		for _, id := range seq {
			unique[id] = struct{}{}
		}
		recent := seq
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		report.Sequences[user] = SequenceSummary{
			Length:      len(seq),
			UniqueItems: len(unique),
			Recent:      append([]string(nil), recent...),
		}
	}

	return report
}

// performanceReport grades the current prediction set.
func (l *Loader) performanceReport() *PerformanceReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := &PerformanceReport{
		TotalPredictions:    l.metrics.TotalPredictions,
		AccuratePredictions: l.metrics.AccuratePredictions,
		ByType:              make(map[Type]int),
		ByTier:              make(map[Tier]int),
	}
	if l.metrics.TotalPredictions > 0 {
		report.AccuracyRate = float64(l.metrics.AccuratePredictions) / float64(l.metrics.TotalPredictions)
	}

	if len(l.predictions) > 0 {
		total := 0.0
		for _, pred := range l.predictions {
			report.ByType[pred.Type]++
			report.ByTier[pred.Tier]++
			total += pred.Score
		}
		report.AvgConfidence = total / float64(len(l.predictions))
	}
	return report
}
