// Package preference implements the Preference Adapter (spec.md §4.G):
// maps a learned or request-time surprise tolerance onto a multiplier
// applied to a candidate's standout base score.
package preference

import (
	"context"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

const maxPersonalized = 10.0

// toleranceMultiplier is the fixed table from spec.md §4.G. Index is
// the surprise tolerance level (0-5).
var toleranceMultiplier = [6]float64{
	0: 0.70,
	1: 0.85,
	2: 1.00,
	3: 1.12,
	4: 1.20,
	5: 1.25,
}

const defaultTolerance = 2 // tolerance 2 -> multiplier 1.0, i.e. unmodified

// Repo is the store-backed preference lookup a request falls back to
// when no request-time override is supplied. Implementations MUST
// report found=false with a nil error, not an error, for "no model yet" — the
// adapter never fails a request over a missing preference record
// (spec.md §4.K PreferenceRepo: "each may return not-found").
type Repo interface {
	GetSurprise(ctx context.Context, owner string) (int, bool, error)
	GetTopics(ctx context.Context, owner string) ([]string, bool, error)
	GetDepth(ctx context.Context, owner string) (int, bool, error)
}

// Adapter resolves an effective surprise tolerance for an owner/request
// and applies it to standout scores.
type Adapter struct {
	repo   Repo
	logger logging.Logger
}

// New builds an Adapter. repo may be nil, in which case every lookup
// falls through to the default tolerance.
func New(repo Repo, logger logging.Logger) *Adapter {
	return &Adapter{repo: repo, logger: logger}
}

// ResolveTolerance determines the surprise tolerance to use for one
// request: a request-time override always wins; otherwise the stored
// model is consulted; failing both, the adapter fails open with the
// neutral default (spec.md §4.G: "adapter lookup failure ... MUST fall
// through returning base unchanged").
func (a *Adapter) ResolveTolerance(ctx context.Context, owner string, override *models.Preferences) int {
	if override != nil && override.SurpriseTolerance != nil {
		return clampTolerance(*override.SurpriseTolerance)
	}
	if a.repo == nil || owner == "" {
		return defaultTolerance
	}
	tolerance, found, err := a.repo.GetSurprise(ctx, owner)
	if err != nil || !found {
		if err != nil && a.logger != nil {
			a.logger.WithFields(logging.Fields{"owner": owner, "error": err.Error()}).
				Warn("preference adapter lookup failed, falling through to default")
		}
		return defaultTolerance
	}
	return clampTolerance(tolerance)
}

// Apply multiplies a standout base score by the tolerance-derived
// factor and clips the result to the [0, 10] scale (spec.md §4.G
// "Clip to 10").
func Apply(base float64, tolerance int) float64 {
	personalized := base * toleranceMultiplier[clampTolerance(tolerance)]
	if personalized > maxPersonalized {
		personalized = maxPersonalized
	}
	if personalized < 0 {
		personalized = 0
	}
	return personalized
}

// Personalize resolves the tolerance for owner/override and applies it
// to score.Base, returning score with Personalized updated.
func (a *Adapter) Personalize(ctx context.Context, owner string, override *models.Preferences, score models.StandoutScore) models.StandoutScore {
	tolerance := a.ResolveTolerance(ctx, owner, override)
	score.Personalized = Apply(score.Base, tolerance)
	return score
}

func clampTolerance(t int) int {
	if t < 0 {
		return 0
	}
	if t > 5 {
		return 5
	}
	return t
}
