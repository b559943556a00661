// Package jobs implements the Job Controller (spec.md §4.I): the
// durable state machine wrapped around one Orchestrator run, plus the
// repository interfaces (spec.md §4.K) it and the rest of the core
// depend on to read and persist that state.
package jobs

import (
	"context"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/preference"
)

// JobRepo is the durable store for Job entities. Implementations must
// make UpdateProgress and SetResult/SetError safe to call after the
// job has already reached a terminal status (they are expected to be
// idempotent no-ops in that case, not errors).
type JobRepo interface {
	Create(ctx context.Context, job models.Job) (models.Job, error)
	Get(ctx context.Context, id string) (models.Job, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus) error
	UpdateProgress(ctx context.Context, id string, percent int) error
	SetResult(ctx context.Context, id string, artifact models.ResultArtifact) error
	SetError(ctx context.Context, id string, message string) error
	ListByOwner(ctx context.Context, owner string) ([]models.Job, error)
}

// UserRepo resolves the tier and other account attributes a job needs
// before the Orchestrator can look up a budget.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (models.UserRecord, bool, error)
}

// PreferenceRepo is the stored-preference lookup the Preference
// Adapter (§4.G) reads through. It is the exact same three-method
// shape the adapter already depends on, so it is reused rather than
// redefined.
type PreferenceRepo = preference.Repo

// CacheRepo is a generic key/value cache with TTL, used for anything
// outside the Provider Client's own response cache (e.g. rendered
// result pages, classifier decisions). Implementations MUST be
// resilient to a backend outage: a failing backend degrades to a miss,
// never to an error that aborts the caller.
type CacheRepo interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// ErrNotFound is returned by repo lookups that find nothing, distinct
// from a backend error (e.g. PostgresJobRepo.Get for an unknown id).
// PreferenceRepo and UserRepo report a miss as found=false instead.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "jobs: not found" }
