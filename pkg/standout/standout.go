// Package standout implements the Standout Scorer (spec.md §4.F): nine
// keyword/pattern classifiers over an item's combined text, aggregated
// into a monotone, saturating base score and a coarse tier.
package standout

import (
	"strings"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

const maxScore = 10.0

// lexicon holds the keyword/phrase markers for one method. Matching is
// case-insensitive substring search over the item's combined text,
// with each hit contributing a fixed increment up to a per-method cap.
type lexicon struct {
	phrases   []string
	increment float64
	cap       float64
}

var lexicons = map[models.StandoutMethod]lexicon{
	models.MethodImpossibility: {
		phrases:   []string{"defies physics", "impossible", "gravity-defying", "against all odds", "inexplicable"},
		increment: 3.0, cap: 10,
	},
	models.MethodUniqueness: {
		phrases:   []string{"the only", "nowhere else", "one of a kind", "unparalleled", "sole surviving"},
		increment: 3.0, cap: 10,
	},
	models.MethodTemporal: {
		phrases:   []string{"since time immemorial", "predates", "oldest known", "millennia", "ancient"},
		increment: 2.5, cap: 10,
	},
	models.MethodCultural: {
		phrases:   []string{"ritual", "tradition", "taboo", "sacred", "ceremonial"},
		increment: 2.5, cap: 10,
	},
	models.MethodAtlasObscura: {
		phrases:   []string{"curious", "bizarre", "hidden gem", "little-known", "peculiar", "oddity"},
		increment: 2.5, cap: 10,
	},
	models.MethodHistorical: {
		phrases:   []string{"historic", "turning point", "pivotal", "war", "revolution", "empire"},
		increment: 2.0, cap: 10,
	},
	models.MethodGeographic: {
		phrases:   []string{"highest", "deepest", "northernmost", "southernmost", "largest", "smallest", "remotest"},
		increment: 3.0, cap: 10,
	},
	models.MethodLinguistic: {
		phrases:   []string{"endangered language", "dying language", "unique etymology", "unwritten language", "dialect"},
		increment: 3.0, cap: 10,
	},
	models.MethodCrossCultural: {
		// cross_cultural is evaluated separately, via corpus counting
		// (see scoreCrossCultural), not keyword matching.
	},
}

// Corpus identifies one independent cultural source a candidate's
// combined text may be attested in, for the cross_cultural method
// (spec.md §4.F method 9: "appears in >= 2 independent cultural corpora").
type Corpus struct {
	Name    string
	Phrases []string
}

// DefaultCorpora is a minimal starter set of independent cultural
// reference corpora; operators may extend this via configuration.
var DefaultCorpora = []Corpus{
	{Name: "unesco_intangible_heritage", Phrases: []string{"intangible heritage", "unesco", "living tradition"}},
	{Name: "folklore_archive", Phrases: []string{"folklore", "oral tradition", "myth", "legend"}},
	{Name: "anthropology_survey", Phrases: []string{"indigenous", "ethnography", "tribal", "ceremonial practice"}},
}

// Score computes the nine method sub-scores and the aggregate base,
// tier, for one candidate's combined text.
func Score(item models.CandidateItem, corpora []Corpus) models.StandoutScore {
	text := strings.ToLower(item.Title + " " + item.Body)

	methods := make(map[models.StandoutMethod]float64, len(models.AllStandoutMethods))
	for _, name := range models.AllStandoutMethods {
		if name == models.MethodCrossCultural {
			continue
		}
		methods[name] = scoreLexicon(text, lexicons[name])
	}
	methods[models.MethodCrossCultural] = scoreCrossCultural(text, corpora)

	base := aggregate(methods)
	return models.StandoutScore{
		Methods:      methods,
		Base:         base,
		Tier:         tierFor(base),
		Personalized: base,
	}
}

func scoreLexicon(text string, lex lexicon) float64 {
	if len(lex.phrases) == 0 {
		return 0
	}
	var score float64
	for _, phrase := range lex.phrases {
		if strings.Contains(text, phrase) {
			score += lex.increment
		}
	}
	if lex.cap > 0 && score > lex.cap {
		score = lex.cap
	}
	return score
}

// scoreCrossCultural counts how many independent corpora the text
// matches and scales to [0,10], saturating once 3 or more corpora
// match (cross-cultural attestation quickly plateaus in value). A
// match in fewer than 2 corpora scores 0.
func scoreCrossCultural(text string, corpora []Corpus) float64 {
	if len(corpora) == 0 {
		corpora = DefaultCorpora
	}
	matched := 0
	for _, c := range corpora {
		for _, phrase := range c.Phrases {
			if strings.Contains(text, phrase) {
				matched++
				break
			}
		}
	}
	if matched < 2 {
		return 0
	}
	score := float64(matched) * (maxScore / 3.0)
	if score > maxScore {
		score = maxScore
	}
	return score
}

// aggregate combines the nine method scores into base via a
// max-of-non-zero-plus-diversity-bonus formula: the dominant method
// sets the floor, and each additional method that also fired adds a
// fraction of its score, so the result monotonically responds to any
// single sub-score increase and saturates at 10 (spec.md §4.F: "the
// contract is only that the aggregate monotonically responds to
// increases in any sub-score and saturates at 10"). This formula is
// the spec's documented Open Question resolution — see DESIGN.md.
func aggregate(methods map[models.StandoutMethod]float64) float64 {
	var max float64
	var diversityBonus float64
	nonZero := 0
	for _, v := range methods {
		if v <= 0 {
			continue
		}
		nonZero++
		if v > max {
			diversityBonus += max * 0.15
			max = v
		} else {
			diversityBonus += v * 0.15
		}
	}
	if nonZero == 0 {
		return 0
	}
	base := max + diversityBonus
	if base > maxScore {
		base = maxScore
	}
	return base
}

// DominantMethod returns the highest-scoring non-zero method and its
// score, breaking ties by AllStandoutMethods' fixed order so callers
// building an explanation get a deterministic answer. ("", 0) means no
// method fired.
func DominantMethod(methods map[models.StandoutMethod]float64) (models.StandoutMethod, float64) {
	var best models.StandoutMethod
	var bestScore float64
	for _, name := range models.AllStandoutMethods {
		if v := methods[name]; v > bestScore {
			best, bestScore = name, v
		}
	}
	return best, bestScore
}

func tierFor(base float64) models.StandoutTier {
	switch {
	case base >= 4.5:
		return models.TierExceptional
	case base >= 3.5:
		return models.TierVeryGood
	case base >= 2.0:
		return models.TierGood
	default:
		return models.TierMundane
	}
}
