package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/carcerr"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ledger"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/preference"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/providers"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/quality"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/research"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/standout"
)

// Checkpoint percentages the orchestrator reports through ProgressFunc
// (spec.md §4.I: "10 (strategy chosen), 40 (fan-out complete), 70
// (scoring complete), 90 (personalization complete), 100 (result
// persisted)"). The Orchestrator itself reports through 90; the Job
// Controller reports 100 once it has persisted the artifact.
const (
	CheckpointStrategyChosen       = 10
	CheckpointFanOutComplete       = 40
	CheckpointScoringComplete      = 70
	CheckpointPersonalizationDone  = 90
)

// ProgressFunc receives monotonically increasing checkpoint percentages.
type ProgressFunc func(percent int)

// Request bundles the Orchestrator's inputs (spec.md §4.H "Inputs").
type Request struct {
	Query       string
	Kind        models.RequestKind
	OwnerID     string
	OwnerTier   models.Tier
	Preferences *models.Preferences
}

// Orchestrator wires together the provider registry, cost ledger,
// quality assessor, standout scorer, preference adapter, and deep
// research collaborator into the single ranked-result pipeline
// described in spec.md §4.H.
type Orchestrator struct {
	Registry    *providers.Registry
	Ledger      *ledger.Ledger
	Preference  *preference.Adapter
	Researcher  *research.Researcher
	Budgets     map[models.Tier]models.BudgetConfig
	Corpora     []standout.Corpus
	Logger      logging.Logger
}

// New builds an Orchestrator. budgets may be nil, in which case
// models.DefaultBudgetConfigs() is used.
func New(registry *providers.Registry, costLedger *ledger.Ledger, prefAdapter *preference.Adapter, researcher *research.Researcher, budgets map[models.Tier]models.BudgetConfig, logger logging.Logger) *Orchestrator {
	if budgets == nil {
		budgets = models.DefaultBudgetConfigs()
	}
	return &Orchestrator{
		Registry:   registry,
		Ledger:     costLedger,
		Preference: prefAdapter,
		Researcher: researcher,
		Budgets:    budgets,
		Logger:     logger,
	}
}

// Run executes the full algorithm from spec.md §4.H and returns the
// ranked result artifact plus per-source summary.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress ProgressFunc) (models.ResultArtifact, error) {
	if progress == nil {
		progress = func(int) {}
	}

	// Step 1: Question Classifier short-circuit to Deep Research.
	classification := research.Classify(req.Query)
	if classification.IsQuestion {
		return o.runDeepResearch(ctx, req, progress)
	}

	// Step 2: budget lookup.
	budget, ok := o.Budgets[req.OwnerTier]
	if !ok {
		budget = models.DefaultBudgetConfigs()[models.TierFree]
	}

	// Step 3: strategy selection.
	strategy := StrategyFor(req.Kind)
	progress(CheckpointStrategyChosen)

	primaryNames := composePrimary(o.Registry, strategy, req.OwnerTier)

	// Step 4: fan-out to primary clients.
	fanCtx, cancel := context.WithTimeout(ctx, strategy.Timeout)
	defer cancel()
	primaryResults := o.fanOut(fanCtx, primaryNames, req, budget)

	successCount := countSuccess(primaryResults)

	// Step 5: fallback sequential issuance if under min_sources, bounded
	// by the enrichment strategy's own narrower shape (spec.md §4.H
	// strategy table row "enrichment"): at most MaxSources additional
	// calls, each under its own Timeout rather than the primary
	// strategy's, and non-blocking on the rate limiter so one throttled
	// fallback provider can't eat the whole enrichment deadline.
	if successCount < strategy.MinSources {
		enrichment := EnrichmentStrategy()
		fallbackNames := fallbackCandidates(o.Registry, primaryNames)
		attempts := 0
		for _, name := range fallbackNames {
			if successCount >= strategy.MinSources || attempts >= enrichment.MaxSources {
				break
			}
			if err := ctx.Err(); err != nil {
				break
			}
			callCtx, callCancel := context.WithTimeout(ctx, enrichment.Timeout)
			outcome, items := o.callOne(callCtx, name, req, budget, true)
			callCancel()
			attempts++
			primaryResults = append(primaryResults, fanResult{outcome: outcome, items: items})
			if outcome.Succeeded {
				successCount++
			}
		}
	}
	progress(CheckpointFanOutComplete)

	if successCount == 0 {
		return models.ResultArtifact{}, carcerr.NoSourcesAvailable("no provider produced a usable result and no cached response was available")
	}

	// Step 6: aggregate + dedup by fingerprint.
	candidates, outcomes := aggregate(primaryResults)

	// Step 7: score quality + standout.
	ranked := o.score(req, candidates)
	progress(CheckpointScoringComplete)

	// Step 7 (cont.): Preference Adapter personalization.
	for i := range ranked {
		ranked[i].Standout = o.Preference.Personalize(ctx, req.OwnerID, req.Preferences, ranked[i].Standout)
		ranked[i].PersonalScore = ranked[i].Standout.Personalized
		ranked[i].Explanation = explain(ranked[i].Standout, ranked[i].Quality)
	}
	progress(CheckpointPersonalizationDone)

	// Step 8: composite sort.
	sortRanked(ranked)

	summary := models.FanOutSummary{Sources: outcomes, TotalCost: totalCost(outcomes)}
	return models.ResultArtifact{RankedItems: ranked, Summary: summary}, nil
}

func (o *Orchestrator) runDeepResearch(ctx context.Context, req Request, progress ProgressFunc) (models.ResultArtifact, error) {
	if o.Researcher == nil {
		return models.ResultArtifact{}, carcerr.Internal("orchestrator: question query requires a configured researcher", nil)
	}
	progress(CheckpointStrategyChosen)
	depth := 3
	var focusAreas []string
	if req.Preferences != nil {
		if req.Preferences.Depth != nil {
			depth = *req.Preferences.Depth
		}
		focusAreas = req.Preferences.Topics
	}
	artifact, err := o.Researcher.Research(ctx, req.Query, depth, focusAreas)
	progress(CheckpointFanOutComplete)
	if err != nil {
		return models.ResultArtifact{}, err
	}
	item := research.ToCandidateItem(req.Query, artifact)
	item.Fingerprint = providers.Fingerprint(item.Title, item.SourceName, item.Location, item.Date)

	ranked := o.score(req, []models.CandidateItem{item})
	// The heuristic quality.Confidence (derived from peer agreement,
	// which a single-candidate research result has none of) is replaced
	// with the model's own self-reported confidence (spec.md §4.J
	// artifact field "confidence"; scenario checks confidence >= 0.5).
	for i := range ranked {
		ranked[i].Quality.Confidence = artifact.Confidence
	}
	progress(CheckpointScoringComplete)
	for i := range ranked {
		ranked[i].Standout = o.Preference.Personalize(ctx, req.OwnerID, req.Preferences, ranked[i].Standout)
		ranked[i].PersonalScore = ranked[i].Standout.Personalized
		ranked[i].Explanation = explain(ranked[i].Standout, ranked[i].Quality)
	}
	progress(CheckpointPersonalizationDone)

	summary := models.FanOutSummary{
		Sources: []models.SourceOutcome{{Provider: "deep_research", Succeeded: true, ItemCount: 1}},
	}
	return models.ResultArtifact{RankedItems: ranked, Summary: summary}, nil
}

type fanResult struct {
	outcome models.SourceOutcome
	items   []models.CandidateItem
}

// fanOut issues strategy-selected primary clients concurrently and
// waits for all to settle or the context deadline, whichever comes
// first (spec.md §5 "settle with deadline").
func (o *Orchestrator) fanOut(ctx context.Context, names []string, req Request, budget models.BudgetConfig) []fanResult {
	results := make([]fanResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcome, items := o.callOne(ctx, name, req, budget, false)
			results[i] = fanResult{outcome: outcome, items: items}
		}(i, name)
	}
	wg.Wait()
	return results
}

// callOne runs the cost-check -> breaker-guard -> cache -> rate-limit
// -> HTTP sequence for a single provider (spec.md §4.H step 4; the
// breaker-guard and cache/rate-limit ordering are internal to
// providers.BaseClient.Search). nonBlocking is set for the enrichment
// fallback fetch, which would rather skip a throttled provider than
// queue behind it.
func (o *Orchestrator) callOne(ctx context.Context, name string, req Request, budget models.BudgetConfig, nonBlocking bool) (models.SourceOutcome, []models.CandidateItem) {
	client, ok := o.Registry.Get(name)
	if !ok {
		return models.SourceOutcome{Provider: name, Error: "provider not registered"}, nil
	}
	descriptor := client.Descriptor()

	if o.Ledger != nil {
		decision := o.Ledger.Check(req.OwnerID, descriptor.CostPerRequest, budget)
		if !decision.Allow {
			return models.SourceOutcome{Provider: name, Error: "budget exceeded"}, nil
		}
		// Check reserved this call's estimated cost against concurrent
		// fan-out siblings; release it once this call resolves, however
		// it resolves, so the reservation never outlives the call it gated.
		defer o.Ledger.Release(req.OwnerID, descriptor.CostPerRequest)
	}

	start := time.Now()
	resp, err := client.Search(ctx, req.Query, providers.SearchOptions{Limit: 10, Owner: req.OwnerID, NonBlocking: nonBlocking})
	latency := time.Since(start)

	if err != nil {
		return models.SourceOutcome{
			Provider: name, Latency: latency, Error: err.Error(),
		}, nil
	}

	for i := range resp.Items {
		if resp.Items[i].Fingerprint == "" {
			resp.Items[i].Fingerprint = providers.Fingerprint(resp.Items[i].Title, resp.Items[i].SourceName, resp.Items[i].Location, resp.Items[i].Date)
		}
	}

	return models.SourceOutcome{
		Provider: name, Latency: latency, Cost: resp.Cost, Cached: resp.Cached,
		Succeeded: true, ItemCount: len(resp.Items),
	}, resp.Items
}

func countSuccess(results []fanResult) int {
	n := 0
	for _, r := range results {
		if r.outcome.Succeeded {
			n++
		}
	}
	return n
}

// aggregate collects successful results and dedups by fingerprint,
// with a case-insensitive title first pass (spec.md §4.H step 6).
func aggregate(results []fanResult) ([]models.CandidateItem, []models.SourceOutcome) {
	seen := make(map[string]bool)
	seenTitles := make(map[string]bool)
	var items []models.CandidateItem
	var outcomes []models.SourceOutcome

	for _, r := range results {
		outcomes = append(outcomes, r.outcome)
		for _, item := range r.items {
			if item.Fingerprint != "" && seen[item.Fingerprint] {
				continue
			}
			title := strings.ToLower(strings.TrimSpace(item.Title))
			if title != "" && seenTitles[title] {
				continue
			}
			if item.Fingerprint != "" {
				seen[item.Fingerprint] = true
			}
			if title != "" {
				seenTitles[title] = true
			}
			items = append(items, item)
		}
	}
	return items, outcomes
}

// score computes QualityScore and StandoutScore for every candidate,
// using its siblings as cross-reference peers (spec.md §4.H step 7).
func (o *Orchestrator) score(req Request, items []models.CandidateItem) []models.RankedItem {
	ranked := make([]models.RankedItem, len(items))
	numSources := len(items)
	for i, item := range items {
		peers := make([]quality.Peer, 0, len(items)-1)
		for j, other := range items {
			if j == i {
				continue
			}
			peers = append(peers, quality.Peer{Title: other.Title, Date: other.Date, Location: other.Location})
		}
		q := quality.Assess(item, peers, numSources)
		s := standout.Score(item, o.Corpora)
		ranked[i] = models.RankedItem{CandidateItem: item, Quality: q, Standout: s}
	}
	return ranked
}

// explain renders the human-facing rationale for a ranked item's
// position (spec.md §3: RankedItem carries an `explanation`), naming
// the dominant standout method and the overall quality it was scored
// against.
func explain(s models.StandoutScore, q models.QualityScore) string {
	method, score := standout.DominantMethod(s.Methods)
	if method == "" {
		return fmt.Sprintf("no standout signal detected; quality overall %.2f", q.Overall)
	}
	return fmt.Sprintf("%s standout via %s (%.1f/10); quality overall %.2f", s.Tier, method, score, q.Overall)
}

// sortRanked applies the composite sort from spec.md §4.H step 8:
// primary = personalized standout (descending), secondary =
// quality.overall (descending), tertiary = stable source-name order.
func sortRanked(items []models.RankedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Standout.Personalized != b.Standout.Personalized {
			return a.Standout.Personalized > b.Standout.Personalized
		}
		if a.Quality.Overall != b.Quality.Overall {
			return a.Quality.Overall > b.Quality.Overall
		}
		return a.SourceName < b.SourceName
	})
}

func totalCost(outcomes []models.SourceOutcome) float64 {
	var total float64
	for _, o := range outcomes {
		total += o.Cost
	}
	return total
}
