package retrieval

import (
	"sort"
	"time"

	"github.com/contextware/recall/core"
)

// rank scores every candidate on the eight ranking factors, combines
// them into a weighted total capped at 1.0, and sorts best first with
// ties broken by ascending item id.
func (r *Retriever) rank(candidates []*core.MemoryItem, q *core.Query, profile *UserProfile, strategy core.Strategy, now time.Time) []Result {
	candidateIDs := make(map[string]struct{}, len(candidates))
	for _, item := range candidates {
		candidateIDs[item.ID] = struct{}{}
	}

	results := make([]Result, 0, len(candidates))
	for _, item := range candidates {
		factors := map[Factor]float64{
			FactorSemantic:     item.SimilarityScore,
			FactorContext:      q.Context.Similarity(item.Context),
			FactorTemporal:     temporalRelevance(item, now),
			FactorFrequency:    min(1.0, frequencyPerDay(item, now)/10),
			FactorImportance:   item.Importance,
			FactorPreference:   userPreference(item, profile),
			FactorRelationship: relationshipStrength(item, candidateIDs),
			FactorFreshness:    freshness(item, now),
		}

		results = append(results, Result{
			Item:       item,
			TotalScore: r.totalScore(factors),
			Factors:    factors,
			Reason:     retrievalReason(factors),
			Confidence: confidence(factors, strategy),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalScore != results[j].TotalScore {
			return results[i].TotalScore > results[j].TotalScore
		}
		return results[i].Item.ID < results[j].Item.ID
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// applyDiversity walks the ranking and keeps the first MaxResults
// results that pass three gates: unseen content fingerprint, per-type
// quota of max(1, MaxResults/3), and confidence of at least 0.3.
func (r *Retriever) applyDiversity(ranked []Result, q *core.Query) []Result {
	if len(ranked) == 0 {
		return nil
	}

	maxPerType := q.MaxResults / 3
	if maxPerType < 1 {
		maxPerType = 1
	}

	var final []Result
	seen := make(map[string]struct{})
	typeCounts := make(map[core.MemoryType]int)

	for _, res := range ranked {
		item := res.Item
		if _, dup := seen[item.Fingerprint]; dup {
			continue
		}
		if r.params.DiversityFactor > 0 && typeCounts[item.Type] >= maxPerType {
			continue
		}
		if res.Confidence < 0.3 {
			continue
		}

		final = append(final, res)
		seen[item.Fingerprint] = struct{}{}
		typeCounts[item.Type]++

		if len(final) >= q.MaxResults {
			break
		}
	}
	return final
}

// totalScore is the weighted factor sum, capped at 1.0. Semantic and
// relationship weights are fixed; the rest come from Parameters.
func (r *Retriever) totalScore(factors map[Factor]float64) float64 {
	total := factors[FactorSemantic] * 0.3
	total += factors[FactorContext] * r.params.ContextWeight
	total += factors[FactorTemporal] * r.params.TemporalWeight
	total += factors[FactorFrequency] * r.params.FrequencyWeight
	total += factors[FactorImportance] * r.params.ImportanceWeight
	total += factors[FactorPreference] * r.params.PersonalizationStrength
	total += factors[FactorRelationship] * 0.1
	total += factors[FactorFreshness] * r.params.FreshnessWeight
	return min(1.0, total)
}

// temporalRelevance decays over a week from creation, floored at 0.1,
// boosted up to 2x for access within the last day, capped at 1.0.
func temporalRelevance(item *core.MemoryItem, now time.Time) float64 {
	score := max(0.1, 1.0-item.AgeHours(now)/(24*7))
	if !item.LastAccessed.IsZero() {
		accessHours := now.Sub(item.LastAccessed).Hours()
		score *= max(1.0, 2.0-accessHours/24)
	}
	return min(1.0, score)
}

// freshness decays over three days from the last update, floored at
// 0.1.
func freshness(item *core.MemoryItem, now time.Time) float64 {
	updateHours := now.Sub(item.UpdatedAt).Hours()
	return max(0.1, 1.0-updateHours/(24*3))
}

// userPreference combines the profile's learned weights: 0.4 for the
// item's type, 0.3 for the average of its tag weights, 0.3 for its
// project key, capped at 1.0. Unknown dimensions contribute zero.
func userPreference(item *core.MemoryItem, profile *UserProfile) float64 {
	if profile == nil {
		return 0.5
	}

	score := 0.0
	if w, ok := profile.TypePreferences[item.Type]; ok {
		score += w * 0.4
	}

	if len(item.Tags) > 0 {
		tagSum := 0.0
		tagHits := 0
		for _, tag := range item.Tags {
			if w, ok := profile.TagPreferences[tag]; ok {
				tagSum += w
				tagHits++
			}
		}
		if tagHits > 0 {
			score += (tagSum / float64(tagHits)) * 0.3
		}
	}

	if item.Context.Project != "" {
		if w, ok := profile.ContextPreferences["project:"+item.Context.Project]; ok {
			score += w * 0.3
		}
	}
	return min(1.0, score)
}

// relationshipStrength is the fraction of the item's declared related
// ids that also appear in the candidate set.
func relationshipStrength(item *core.MemoryItem, candidateIDs map[string]struct{}) float64 {
	if len(item.RelatedItems) == 0 {
		return 0.0
	}
	hits := 0
	for _, id := range item.RelatedItems {
		if _, ok := candidateIDs[id]; ok {
			hits++
		}
	}
	return min(1.0, float64(hits)/float64(len(item.RelatedItems)))
}

var reasonByFactor = map[Factor]string{
	FactorSemantic:     "semantically similar content",
	FactorContext:      "matching context",
	FactorTemporal:     "recent or recently accessed",
	FactorFrequency:    "frequently accessed",
	FactorImportance:   "high importance",
	FactorPreference:   "matches user preferences",
	FactorRelationship: "related to other results",
	FactorFreshness:    "recently updated content",
}

// factorOrder fixes iteration order so equal-valued factors always
// yield the same reason.
var factorOrder = []Factor{
	FactorSemantic, FactorContext, FactorTemporal, FactorFrequency,
	FactorImportance, FactorPreference, FactorRelationship, FactorFreshness,
}

// retrievalReason names the strongest factor.
func retrievalReason(factors map[Factor]float64) string {
	best := factorOrder[0]
	for _, f := range factorOrder[1:] {
		if factors[f] > factors[best] {
			best = f
		}
	}
	return reasonByFactor[best]
}

// confidence is the strongest factor plus 0.05 per factor above 0.7
// (capped at +0.2) plus 0.1 for hybrid or adaptive retrieval, capped
// at 1.0.
func confidence(factors map[Factor]float64, strategy core.Strategy) float64 {
	maxScore := 0.0
	strong := 0
	for _, score := range factors {
		if score > maxScore {
			maxScore = score
		}
		if score > 0.7 {
			strong++
		}
	}

	boost := min(0.2, float64(strong)*0.05)
	if strategy == core.StrategyHybrid || strategy == core.StrategyAdaptive {
		boost += 0.1
	}
	return min(1.0, maxScore+boost)
}
