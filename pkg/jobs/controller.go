package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/carcerr"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/orchestrator"
)

// checkpointComplete is the progress value the controller persists
// once the orchestrator's result artifact has been written, completing
// the 10/40/70/90/100 sequence spec.md §4.I describes (the Orchestrator
// itself only ever reports through 90).
const checkpointComplete = 100

// Runner is the subset of *orchestrator.Orchestrator the controller
// depends on, narrowed to a single method so tests can substitute a
// fake without constructing a real provider registry.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request, progress orchestrator.ProgressFunc) (models.ResultArtifact, error)
}

// Controller is the Job Controller: it owns the pending -> processing
// -> {completed, failed, cancelled} state machine around one
// Orchestrator run per job (spec.md §4.I).
type Controller struct {
	repo   JobRepo
	runner Runner
	logger logging.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewController wires a Controller. logger may be nil.
func NewController(repo JobRepo, runner Runner, logger logging.Logger) *Controller {
	return &Controller{
		repo:    repo,
		runner:  runner,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create inserts a new pending job and returns it. It never starts
// processing; callers invoke Start separately (spec.md §4.I: create is
// create-only, start is its own idempotent operation).
func (c *Controller) Create(ctx context.Context, owner, query string, kind models.RequestKind, prefs *models.Preferences) (models.Job, error) {
	now := time.Now().UTC()
	job := models.Job{
		ID:                  uuid.New().String(),
		OwnerID:             owner,
		QueryText:           query,
		RequestKind:         kind,
		PreferencesSnapshot: prefs,
		Status:              models.JobPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	return c.repo.Create(ctx, job)
}

// Get returns the current state of one job.
func (c *Controller) Get(ctx context.Context, id string) (models.Job, error) {
	return c.repo.Get(ctx, id)
}

// ListByOwner returns every job belonging to owner, most recent first.
func (c *Controller) ListByOwner(ctx context.Context, owner string) ([]models.Job, error) {
	return c.repo.ListByOwner(ctx, owner)
}

// Start transitions a pending job to processing and runs the
// orchestrator for it synchronously. Calling Start on a job that is
// already processing or has reached a terminal status is a no-op
// (spec.md §4.I: "start(id) is idempotent").
func (c *Controller) Start(ctx context.Context, id string, tier models.Tier) error {
	job, err := c.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobPending {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[id] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
		cancel()
	}()

	if err := c.repo.UpdateStatus(ctx, id, models.JobProcessing); err != nil {
		return err
	}

	req := orchestrator.Request{
		Query:       job.QueryText,
		Kind:        job.RequestKind,
		OwnerID:     job.OwnerID,
		OwnerTier:   tier,
		Preferences: job.PreferencesSnapshot,
	}

	progress := func(percent int) {
		if err := c.repo.UpdateProgress(ctx, id, percent); err != nil && c.logger != nil {
			c.logger.WithError(err).WithField("job_id", id).Warn("jobs: progress update failed")
		}
	}

	artifact, runErr := c.runner.Run(runCtx, req, progress)
	if runErr != nil {
		return c.finishWithError(ctx, runCtx, id, runErr)
	}
	return c.repo.SetResult(ctx, id, artifact)
}

// finishWithError records a failed or cancelled run. A run that
// observed its own cancellation (because Cancel was called, or the
// caller's context was itself cancelled) is recorded as cancelled;
// every other error is recorded as failed.
func (c *Controller) finishWithError(parentCtx, runCtx context.Context, id string, runErr error) error {
	if runCtx.Err() != nil {
		if err := c.repo.UpdateStatus(parentCtx, id, models.JobCancelled); err != nil {
			return err
		}
		return nil
	}
	if kind, ok := carcerr.KindOf(runErr); ok && kind == carcerr.KindCancelled {
		if err := c.repo.UpdateStatus(parentCtx, id, models.JobCancelled); err != nil {
			return err
		}
		return nil
	}
	if err := c.repo.SetError(parentCtx, id, runErr.Error()); err != nil {
		return err
	}
	return runErr
}

// Cancel requests that a processing job stop at its next suspension
// point. For a job not running on this controller instance it is a
// no-op when the job is already terminal, and returns an error when the
// job is not terminal (e.g. still pending, or run by another process).
func (c *Controller) Cancel(ctx context.Context, id string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if !ok {
		job, err := c.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return nil
		}
		return fmt.Errorf("jobs: job %s is not running on this controller", id)
	}
	cancel()
	return c.repo.UpdateStatus(ctx, id, models.JobCancelled)
}
