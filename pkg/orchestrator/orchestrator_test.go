package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/cache"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/carcerr"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ledger"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/llm"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/preference"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/providers"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ratelimit"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/research"
)

const validResearchJSON = `{"overview":"An overview.","key_findings":["one"],"detailed_body":"body","conclusion":"done","sources":["s1"],"confidence":0.7}`

type fakeLLMProvider struct{ text string }

type fakeLLMStream struct {
	sent bool
	text string
}

func (s *fakeLLMStream) Recv() (llm.Chunk, error) {
	if s.sent {
		return llm.Chunk{}, io.EOF
	}
	s.sent = true
	return llm.Chunk{Content: s.text}, nil
}
func (s *fakeLLMStream) Close() error { return nil }

func (p *fakeLLMProvider) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Stream, error) {
	return &fakeLLMStream{text: p.text}, nil
}

func TestStrategyFor_KnownAndUnknownKinds(t *testing.T) {
	place := StrategyFor(models.RequestPlace)
	if place.MinSources != 2 || place.MaxSources != 5 || place.Timeout != 5*time.Second {
		t.Fatalf("unexpected place strategy: %+v", place)
	}
	standout := StrategyFor(models.RequestPersonalized)
	if standout.MinSources != 3 || standout.MaxSources != 7 || !standout.PremiumRatioOfFree {
		t.Fatalf("unexpected personalized/standout strategy: %+v", standout)
	}
	fallback := StrategyFor(models.RequestKind("unrecognized"))
	if fallback != strategyTable[models.RequestPlace] {
		t.Fatalf("expected unknown kind to fall back to place strategy")
	}
}

func TestAggregate_DedupsByFingerprintAndTitle(t *testing.T) {
	results := []fanResult{
		{outcome: models.SourceOutcome{Provider: "a", Succeeded: true}, items: []models.CandidateItem{
			{Title: "Old Town Hall", Fingerprint: "fp1"},
		}},
		{outcome: models.SourceOutcome{Provider: "b", Succeeded: true}, items: []models.CandidateItem{
			{Title: "old town hall", Fingerprint: "fp2"},
			{Title: "Unique One", Fingerprint: "fp3"},
		}},
	}
	items, outcomes := aggregate(results)
	if len(items) != 2 {
		t.Fatalf("expected 2 deduped items, got %d: %+v", len(items), items)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
}

func TestSortRanked_CompositeOrder(t *testing.T) {
	items := []models.RankedItem{
		{CandidateItem: models.CandidateItem{SourceName: "z"}, Standout: models.StandoutScore{Personalized: 5}, Quality: models.QualityScore{Overall: 0.5}},
		{CandidateItem: models.CandidateItem{SourceName: "a"}, Standout: models.StandoutScore{Personalized: 5}, Quality: models.QualityScore{Overall: 0.9}},
		{CandidateItem: models.CandidateItem{SourceName: "m"}, Standout: models.StandoutScore{Personalized: 8}, Quality: models.QualityScore{Overall: 0.1}},
	}
	sortRanked(items)

	if items[0].SourceName != "m" {
		t.Fatalf("expected highest standout first, got %q", items[0].SourceName)
	}
	if items[1].SourceName != "a" || items[2].SourceName != "z" {
		t.Fatalf("expected tie on standout broken by quality.overall, got order %q, %q", items[1].SourceName, items[2].SourceName)
	}
}

func TestComposePrimary_PlaceStrategyPrefersFreeThenFreemium(t *testing.T) {
	reg := buildRegistry(t,
		entry("free-a", models.CategoryGovernment, models.ProviderFree),
		entry("free-b", models.CategoryGovernment, models.ProviderFree),
		entry("free-c", models.CategoryGovernment, models.ProviderFree),
		entry("free-d", models.CategoryGovernment, models.ProviderFree),
		entry("freemium-a", models.CategoryGovernment, models.ProviderFreemium),
		entry("freemium-b", models.CategoryGovernment, models.ProviderFreemium),
	)
	selected := composePrimary(reg, StrategyFor(models.RequestPlace), models.TierFree)
	if len(selected) != 5 {
		t.Fatalf("expected 5 selected (3 free + 2 freemium cap), got %v", selected)
	}
}

func TestFallbackCandidates_ExcludesPrimary(t *testing.T) {
	reg := buildRegistry(t,
		entry("a", models.CategoryGovernment, models.ProviderFree),
		entry("b", models.CategoryGovernment, models.ProviderFree),
		entry("c", models.CategoryGovernment, models.ProviderFree),
	)
	fallback := fallbackCandidates(reg, []string{"a"})
	if len(fallback) != 2 {
		t.Fatalf("expected 2 fallback candidates, got %v", fallback)
	}
	for _, name := range fallback {
		if name == "a" {
			t.Fatal("expected primary provider excluded from fallback")
		}
	}
}

func TestRun_EndToEndAggregatesAndRanksAcrossProviders(t *testing.T) {
	serverA := newJSONServer(t, []map[string]string{{"title": "The Secret Ancient Hall", "body": "Hidden and forbidden lore."}})
	defer serverA.Close()
	serverB := newJSONServer(t, []map[string]string{{"title": "Ordinary Listing", "body": "A regular city record."}})
	defer serverB.Close()

	reg := buildRegistry(t,
		entryWithURL("a", models.CategoryGovernment, models.ProviderFree, serverA.URL),
		entryWithURL("b", models.CategoryGovernment, models.ProviderFree, serverB.URL),
	)

	led := ledger.New()
	prefAdapter := preference.New(nil, nil)
	orch := New(reg, led, prefAdapter, nil, nil, nil)

	var checkpoints []int
	result, err := orch.Run(context.Background(), Request{
		Query: "some place", Kind: models.RequestPlace, OwnerID: "owner-1", OwnerTier: models.TierFree,
	}, func(p int) { checkpoints = append(checkpoints, p) })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.RankedItems) != 2 {
		t.Fatalf("expected 2 ranked items, got %d", len(result.RankedItems))
	}
	if result.RankedItems[0].Title != "The Secret Ancient Hall" {
		t.Fatalf("expected the higher-standout item ranked first, got %q", result.RankedItems[0].Title)
	}
	if len(checkpoints) != 4 {
		t.Fatalf("expected 4 progress checkpoints, got %v", checkpoints)
	}
}

func TestRun_NoSourcesAvailableWhenEveryProviderFails(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	reg := buildRegistry(t, entryWithURL("only", models.CategoryGovernment, models.ProviderFree, failing.URL))
	orch := New(reg, ledger.New(), preference.New(nil, nil), nil, nil, nil)

	_, err := orch.Run(context.Background(), Request{
		Query: "q", Kind: models.RequestPlace, OwnerTier: models.TierFree,
	}, nil)

	if kind, ok := carcerr.KindOf(err); !ok || kind != carcerr.KindNoSourcesAvailable {
		t.Fatalf("expected KindNoSourcesAvailable, got %v (ok=%v)", kind, ok)
	}
}

func TestRun_QuestionQueryDelegatesToDeepResearch(t *testing.T) {
	reg := buildRegistry(t)
	researcher := research.NewResearcher(&fakeLLMProvider{text: validResearchJSON})
	orch := New(reg, ledger.New(), preference.New(nil, nil), researcher, nil, nil)

	result, err := orch.Run(context.Background(), Request{
		Query: "What is the history of this place?", Kind: models.RequestPlace, OwnerTier: models.TierFree,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.RankedItems) != 1 {
		t.Fatalf("expected single research candidate, got %d", len(result.RankedItems))
	}
	if result.RankedItems[0].SourceAuthority != "research" {
		t.Fatalf("expected source authority 'research', got %q", result.RankedItems[0].SourceAuthority)
	}
}

func TestRun_QuestionQueryWithoutResearcherReturnsInternalFailure(t *testing.T) {
	reg := buildRegistry(t)
	orch := New(reg, ledger.New(), preference.New(nil, nil), nil, nil, nil)

	_, err := orch.Run(context.Background(), Request{
		Query: "What is the history of this place?", Kind: models.RequestPlace, OwnerTier: models.TierFree,
	}, nil)
	if kind, ok := carcerr.KindOf(err); !ok || kind != carcerr.KindInternal {
		t.Fatalf("expected KindInternal, got %v (ok=%v)", kind, ok)
	}
}

// --- test helpers ---

func entry(name string, cat models.ProviderCategory, tier models.ProviderTier) providers.Entry {
	return providers.Entry{
		ProviderDescriptor: models.ProviderDescriptor{
			Name: name, Category: cat, Tier: tier, BaseURL: "https://example.invalid", AuthMode: models.AuthNone,
		},
		Kind: providers.KindGeneric,
	}
}

func entryWithURL(name string, cat models.ProviderCategory, tier models.ProviderTier, url string) providers.Entry {
	e := entry(name, cat, tier)
	e.BaseURL = url
	e.FieldMap = providers.FieldMap{Title: "title", Body: "body", QueryParam: "q"}
	return e
}

func buildRegistry(t *testing.T, entries ...providers.Entry) *providers.Registry {
	t.Helper()
	reg, _ := providers.NewRegistry(entries, providers.Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
	})
	return reg
}

func newJSONServer(t *testing.T, rows []map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}
