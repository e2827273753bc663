package retrieval

import (
	"strings"
	"time"

	"github.com/contextware/recall/core"
)

// QueryKind labels what a query is trying to do.
type QueryKind string

const (
	KindGeneral   QueryKind = "general"
	KindQuestion  QueryKind = "question"
	KindRetrieval QueryKind = "retrieval"
	KindCreation  QueryKind = "creation"
)

// Domain labels the subject area a query belongs to.
type Domain string

const (
	DomainGeneral       Domain = "general"
	DomainProgramming   Domain = "programming"
	DomainCommunication Domain = "communication"
	DomainPlanning      Domain = "planning"
)

// Sentiment labels query tone, with urgency taking priority.
type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentUrgent   Sentiment = "urgent"
)

// TemporalFeatures describe when a query is happening.
type TemporalFeatures struct {
	Hour          int
	Weekday       time.Weekday
	Weekend       bool
	BusinessHours bool
	TimeOfDay     string
}

// SemanticFeatures describe the query text itself.
type SemanticFeatures struct {
	Kind      QueryKind
	Domain    Domain
	WordCount int
	Technical bool
	Sentiment Sentiment
}

// Features is the full feature set extracted for one query. Extraction
// is pure: same context, query, and instant always yield the same
// features.
type Features struct {
	Temporal TemporalFeatures
	Semantic SemanticFeatures

	HasProject     bool
	HasUser        bool
	HasSession     bool
	HasEnvironment bool
	HasLocation    bool
	Collaborative  bool
}

var (
	questionWords  = wordSet("how", "what", "where", "when", "why")
	retrievalWords = wordSet("find", "search", "get", "show")
	creationWords  = wordSet("create", "make", "build", "generate")

	programmingWords   = wordSet("code", "function", "class", "method", "programming")
	communicationWords = wordSet("meeting", "call", "discussion", "decision")
	planningWords      = wordSet("task", "todo", "project", "deadline")

	technicalWords = wordSet(
		"api", "function", "class", "method", "variable", "database", "server",
		"client", "request", "response", "endpoint", "authentication", "authorization",
		"algorithm", "data", "model", "pipeline", "configuration", "deployment",
	)

	positiveWords = wordSet("good", "great", "excellent", "best", "awesome", "perfect")
	negativeWords = wordSet("bad", "terrible", "awful", "worst", "horrible", "broken")
	urgentWords   = wordSet("urgent", "asap", "immediately", "quick", "fast", "emergency")
)

// Analyze extracts retrieval features from a query context and text at
// the given instant.
func Analyze(c core.Context, queryText string, now time.Time) Features {
	words := strings.Fields(strings.ToLower(queryText))

	return Features{
		Temporal: temporalFeatures(now),
		Semantic: SemanticFeatures{
			Kind:      classifyKind(words),
			Domain:    classifyDomain(words),
			WordCount: len(words),
			Technical: anyIn(words, technicalWords),
			Sentiment: classifySentiment(words),
		},
		HasProject:     c.Project != "",
		HasUser:        c.User != "",
		HasSession:     c.Session != "",
		HasEnvironment: c.Environment != "",
		HasLocation:    c.Location != "",
		Collaborative:  c.Collaborative(),
	}
}

func temporalFeatures(now time.Time) TemporalFeatures {
	hour := now.Hour()
	weekday := now.Weekday()

	label := "night"
	switch {
	case hour >= 6 && hour < 12:
		label = "morning"
	case hour >= 12 && hour < 17:
		label = "afternoon"
	case hour >= 17 && hour < 21:
		label = "evening"
	}

	return TemporalFeatures{
		Hour:          hour,
		Weekday:       weekday,
		Weekend:       weekday == time.Saturday || weekday == time.Sunday,
		BusinessHours: hour >= 9 && hour <= 17,
		TimeOfDay:     label,
	}
}

func classifyKind(words []string) QueryKind {
	switch {
	case anyIn(words, questionWords):
		return KindQuestion
	case anyIn(words, retrievalWords):
		return KindRetrieval
	case anyIn(words, creationWords):
		return KindCreation
	}
	return KindGeneral
}

func classifyDomain(words []string) Domain {
	switch {
	case anyIn(words, programmingWords):
		return DomainProgramming
	case anyIn(words, communicationWords):
		return DomainCommunication
	case anyIn(words, planningWords):
		return DomainPlanning
	}
	return DomainGeneral
}

func classifySentiment(words []string) Sentiment {
	switch {
	case anyIn(words, urgentWords):
		return SentimentUrgent
	case anyIn(words, negativeWords):
		return SentimentNegative
	case anyIn(words, positiveWords):
		return SentimentPositive
	}
	return SentimentNeutral
}

func anyIn(words []string, set map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
