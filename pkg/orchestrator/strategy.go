// Package orchestrator implements the Orchestrator (spec.md §4.H): the
// strategy table, fan-out, aggregation/dedup, and composite ranking
// pipeline tying together providers, the cost ledger, the quality
// assessor, the standout scorer, and the preference adapter.
package orchestrator

import (
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// Strategy is one row of the request_kind -> fan-out shape table
// (spec.md §4.H step 3).
type Strategy struct {
	Parallel      bool
	MinSources    int
	MaxSources    int
	Timeout       time.Duration
	FreeCount     int
	FreemiumCount int
	PremiumRatioOfFree bool // standout composes free_ratio*5 free + remainder premium; see composePrimary
}

// strategyTable covers the three request_kinds that reach strategy
// selection. models.RequestQuestion never reaches this table: the
// Question Classifier short-circuits to Deep Research before step 3
// (spec.md §4.H step 1). models.RequestPersonalized maps onto the
// spec's "standout" row (the surprise-forward fan-out shape).
var strategyTable = map[models.RequestKind]Strategy{
	models.RequestPlace: {
		Parallel: true, MinSources: 2, MaxSources: 5, Timeout: 5 * time.Second,
		FreeCount: 3, FreemiumCount: 2,
	},
	models.RequestTopic: {
		Parallel: true, MinSources: 2, MaxSources: 4, Timeout: 6 * time.Second,
		FreeCount: 2, FreemiumCount: 2,
	},
	models.RequestPersonalized: {
		Parallel: true, MinSources: 3, MaxSources: 7, Timeout: 8 * time.Second,
		PremiumRatioOfFree: true,
	},
}

// enrichmentStrategy is the orchestrator-internal follow-up fan-out
// shape (spec.md §4.H strategy table row "enrichment"): used for a
// second, narrower fetch rather than a user-facing request_kind.
var enrichmentStrategy = Strategy{
	Parallel: true, MinSources: 1, MaxSources: 3, Timeout: 4 * time.Second,
	FreeCount: 2,
}

// StrategyFor resolves the fan-out shape for a request kind. Unknown
// kinds fall back to the place strategy, the narrowest/safest shape.
func StrategyFor(kind models.RequestKind) Strategy {
	if s, ok := strategyTable[kind]; ok {
		return s
	}
	return strategyTable[models.RequestPlace]
}

// EnrichmentStrategy returns the internal enrichment fan-out shape.
func EnrichmentStrategy() Strategy {
	return enrichmentStrategy
}
