package standout

import (
	"testing"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

func TestScore_MundaneItemScoresZeroAcrossMethods(t *testing.T) {
	item := models.CandidateItem{Title: "City council meeting", Body: "Minutes from the weekly session."}
	got := Score(item, nil)
	if got.Base != 0 {
		t.Fatalf("expected base 0 for a mundane item, got %v", got.Base)
	}
	if got.Tier != models.TierMundane {
		t.Fatalf("expected mundane tier, got %v", got.Tier)
	}
}

func TestScore_SingleMethodHitProducesNonZeroBase(t *testing.T) {
	item := models.CandidateItem{Title: "The only surviving example", Body: "of this kind in the world."}
	got := Score(item, nil)
	if got.Methods[models.MethodUniqueness] <= 0 {
		t.Fatalf("expected uniqueness method to fire, got %v", got.Methods)
	}
	if got.Base <= 0 {
		t.Fatalf("expected positive base, got %v", got.Base)
	}
}

func TestScore_AggregateIsMonotoneInEachSubScore(t *testing.T) {
	low := aggregate(map[models.StandoutMethod]float64{
		models.MethodUniqueness: 3.0,
	})
	high := aggregate(map[models.StandoutMethod]float64{
		models.MethodUniqueness: 6.0,
	})
	if !(high > low) {
		t.Fatalf("expected aggregate to increase when a sub-score increases: low=%v high=%v", low, high)
	}
}

func TestScore_AggregateRespondsToAdditionalFiringMethod(t *testing.T) {
	single := aggregate(map[models.StandoutMethod]float64{
		models.MethodUniqueness: 5.0,
	})
	both := aggregate(map[models.StandoutMethod]float64{
		models.MethodUniqueness: 5.0,
		models.MethodTemporal:   4.0,
	})
	if !(both > single) {
		t.Fatalf("expected aggregate to increase when a second method also fires: single=%v both=%v", single, both)
	}
}

func TestScore_AggregateSaturatesAtMaxScore(t *testing.T) {
	methods := make(map[models.StandoutMethod]float64, len(models.AllStandoutMethods))
	for _, m := range models.AllStandoutMethods {
		methods[m] = 10.0
	}
	got := aggregate(methods)
	if got != maxScore {
		t.Fatalf("expected saturation at %v, got %v", maxScore, got)
	}
}

func TestScoreCrossCultural_RequiresMultipleIndependentCorpora(t *testing.T) {
	corpora := []Corpus{
		{Name: "a", Phrases: []string{"alpha-marker"}},
		{Name: "b", Phrases: []string{"beta-marker"}},
		{Name: "c", Phrases: []string{"gamma-marker"}},
	}
	oneMatch := scoreCrossCultural("text with alpha-marker only", corpora)
	twoMatch := scoreCrossCultural("text with alpha-marker and beta-marker", corpora)
	if !(twoMatch > oneMatch) {
		t.Fatalf("expected more corpus matches to score higher: one=%v two=%v", oneMatch, twoMatch)
	}
	if oneMatch != 0 {
		t.Fatalf("expected a single corpus match to score zero, got %v", oneMatch)
	}
}

func TestScoreCrossCultural_NoMatchesScoresZero(t *testing.T) {
	if got := scoreCrossCultural("nothing relevant here", DefaultCorpora); got != 0 {
		t.Fatalf("expected zero with no corpus matches, got %v", got)
	}
}

func TestTierFor_Boundaries(t *testing.T) {
	cases := []struct {
		base float64
		want models.StandoutTier
	}{
		{0, models.TierMundane},
		{1.9, models.TierMundane},
		{2.0, models.TierGood},
		{3.49, models.TierGood},
		{3.5, models.TierVeryGood},
		{4.49, models.TierVeryGood},
		{4.5, models.TierExceptional},
		{10, models.TierExceptional},
	}
	for _, c := range cases {
		if got := tierFor(c.base); got != c.want {
			t.Fatalf("tierFor(%v) = %v, want %v", c.base, got, c.want)
		}
	}
}

func TestScore_AllNineMethodsPresentInOutput(t *testing.T) {
	item := models.CandidateItem{Title: "x", Body: "y"}
	got := Score(item, nil)
	if len(got.Methods) != len(models.AllStandoutMethods) {
		t.Fatalf("expected %d methods in output, got %d", len(models.AllStandoutMethods), len(got.Methods))
	}
	for _, m := range models.AllStandoutMethods {
		if _, ok := got.Methods[m]; !ok {
			t.Fatalf("missing method %v in output", m)
		}
	}
}

func TestScore_PersonalizedDefaultsToBaseBeforePreferenceAdaptation(t *testing.T) {
	item := models.CandidateItem{Title: "The oldest known ancient ritual", Body: "still practiced today."}
	got := Score(item, nil)
	if got.Personalized != got.Base {
		t.Fatalf("expected personalized to equal base prior to preference adaptation, got base=%v personalized=%v", got.Base, got.Personalized)
	}
}
