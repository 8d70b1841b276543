// Package router classifies queries into a retrieval strategy: passage
// search, SQL over the tenant database, or both. Classification is lexical
// and deterministic; the same query with the same history always routes the
// same way.
package router

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// DefaultConfidenceThreshold is the confidence below which the router
// prefers hybrid when a database policy exists.
const DefaultConfidenceThreshold = 0.6

// Router picks a retrieval strategy for one query.
type Router interface {
	// Route classifies query. hasPolicy reports whether the tenant has a
	// database policy; without one only the vector path is available.
	Route(query string, hasPolicy bool, history []models.Turn) models.RouteDecision
}

type router struct {
	threshold     float64
	historyWindow int
	logger        *zap.Logger
}

// Config tunes the router.
type Config struct {
	ConfidenceThreshold float64
	HistoryWindow       int
}

// New creates a router.
func New(cfg Config, logger *zap.Logger) Router {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold >= 1 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	return &router{
		threshold:     cfg.ConfidenceThreshold,
		historyWindow: cfg.HistoryWindow,
		logger:        logger.Named("router"),
	}
}

// Structured-data signals: aggregation, comparison, and enumeration phrasing.
var sqlSignals = []string{
	"how many", "count", "total", "sum", "average", "avg",
	"maximum", "minimum", "highest", "lowest", "top", "most recent",
	"per month", "per year", "per day", "group by", "between",
	"greater than", "less than", "list all", "show all", "each",
	"revenue", "sales", "orders", "amount", "number of", "percentage",
}

// Narrative signals: open-ended questions answered from documents.
var vectorSignals = []string{
	"why", "explain", "describe", "what is", "what are", "what does",
	"summarize", "summary", "meaning", "overview", "tell me about",
	"how do", "how does", "how should", "documentation", "policy",
	"guide", "definition", "background", "context",
}

var numberPattern = regexp.MustCompile(`\b\d{4}\b|\b\d+(\.\d+)?%?\b`)

func (r *router) Route(query string, hasPolicy bool, history []models.Turn) models.RouteDecision {
	normalized := strings.ToLower(strings.TrimSpace(query))

	sqlScore := scoreSignals(normalized, sqlSignals)
	if numberPattern.MatchString(normalized) {
		sqlScore++
	}
	vecScore := scoreSignals(normalized, vectorSignals)

	strategy, confidence := classify(sqlScore, vecScore)
	rationale := "lexical classification"

	// Without a database policy the SQL path does not exist
	if !hasPolicy {
		return models.RouteDecision{
			Strategy:   models.StrategyVector,
			Confidence: 1.0,
			Rationale:  "no database policy configured",
		}
	}

	if confidence < r.threshold {
		if inherited, ok := r.inherit(history); ok {
			strategy = inherited
			rationale = "session continuity"
			confidence = r.threshold
		} else {
			strategy = models.StrategyHybrid
			rationale = "low confidence, running both paths"
		}
	}

	r.logger.Debug("Query routed",
		zap.String("strategy", string(strategy)),
		zap.Float64("confidence", confidence),
		zap.Int("sql_score", sqlScore),
		zap.Int("vector_score", vecScore))

	return models.RouteDecision{
		Strategy:   strategy,
		Confidence: confidence,
		Rationale:  rationale,
	}
}

func scoreSignals(query string, signals []string) int {
	score := 0
	for _, signal := range signals {
		if strings.Contains(query, signal) {
			score++
		}
	}
	return score
}

// classify turns signal scores into a strategy and a confidence in [0, 1].
// Confidence reflects how one-sided the signals are.
func classify(sqlScore, vecScore int) (models.Strategy, float64) {
	total := sqlScore + vecScore
	if total == 0 {
		return models.StrategyHybrid, 0
	}

	diff := sqlScore - vecScore
	if diff < 0 {
		diff = -diff
	}
	confidence := float64(diff) / float64(total)

	switch {
	case sqlScore > vecScore:
		return models.StrategySQL, confidence
	case vecScore > sqlScore:
		return models.StrategyVector, confidence
	default:
		return models.StrategyHybrid, 0
	}
}

// inherit returns the most recent strategy within the history window.
func (r *router) inherit(history []models.Turn) (models.Strategy, bool) {
	if len(history) == 0 {
		return "", false
	}
	start := len(history) - r.historyWindow
	if start < 0 {
		start = 0
	}
	recent := history[start:]
	last := recent[len(recent)-1]
	if last.Decision.Strategy == "" {
		return "", false
	}
	return last.Decision.Strategy, true
}

var _ Router = (*router)(nil)
