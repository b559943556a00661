package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/database"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// PostgresJobRepo persists Job entities in a single jobs table, with
// the result artifact and preferences snapshot stored as JSONB. It is
// the durable JobRepo spec.md §4.K calls for.
type PostgresJobRepo struct {
	db     database.PostgresConn
	logger logging.Logger
}

// NewPostgresJobRepo builds a JobRepo backed by conn. The jobs table is
// assumed to already exist (schema management is out of this package's
// scope, matching how pkg/database leaves migrations to the caller).
func NewPostgresJobRepo(conn database.PostgresConn, logger logging.Logger) *PostgresJobRepo {
	return &PostgresJobRepo{db: conn, logger: logger}
}

func (r *PostgresJobRepo) Create(ctx context.Context, job models.Job) (models.Job, error) {
	prefs, err := marshalNullable(job.PreferencesSnapshot)
	if err != nil {
		return models.Job{}, fmt.Errorf("jobs: marshal preferences snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, query_text, request_kind, preferences_snapshot, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.OwnerID, job.QueryText, string(job.RequestKind), prefs, string(job.Status), job.Progress, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return models.Job{}, fmt.Errorf("jobs: insert job %s: %w", job.ID, err)
	}
	return job, nil
}

func (r *PostgresJobRepo) Get(ctx context.Context, id string) (models.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, query_text, request_kind, preferences_snapshot, status, progress, result_artifact, error, created_at, updated_at, completed_at
		FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (r *PostgresJobRepo) UpdateStatus(ctx context.Context, id string, status models.JobStatus) error {
	var completedAt interface{}
	if status.Terminal() {
		completedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, updated_at = $3, completed_at = COALESCE(completed_at, $4)
		WHERE id = $1`, id, string(status), time.Now().UTC(), completedAt)
	if err != nil {
		return fmt.Errorf("jobs: update status for %s: %w", id, err)
	}
	return nil
}

func (r *PostgresJobRepo) UpdateProgress(ctx context.Context, id string, percent int) error {
	// Only advances progress; a stale update racing in behind a later
	// checkpoint (or a terminal status) is a silent no-op.
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = $2, updated_at = $3
		WHERE id = $1 AND progress < $2 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, percent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("jobs: update progress for %s: %w", id, err)
	}
	return nil
}

func (r *PostgresJobRepo) SetResult(ctx context.Context, id string, artifact models.ResultArtifact) error {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("jobs: marshal result artifact for %s: %w", id, err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET result_artifact = $2, status = $3, progress = 100, updated_at = $4, completed_at = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`, id, raw, string(models.JobCompleted), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("jobs: set result for %s: %w", id, err)
	}
	return nil
}

func (r *PostgresJobRepo) SetError(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET error = $2, status = $3, updated_at = $4, completed_at = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`, id, message, string(models.JobFailed), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("jobs: set error for %s: %w", id, err)
	}
	return nil
}

func (r *PostgresJobRepo) ListByOwner(ctx context.Context, owner string) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, query_text, request_kind, preferences_snapshot, status, progress, result_artifact, error, created_at, updated_at, completed_at
		FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("jobs: list by owner %s: %w", owner, err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		job                    models.Job
		requestKind, status    string
		prefsRaw, artifactRaw  []byte
		errMsg                 sql.NullString
		completedAt            sql.NullTime
	)
	err := row.Scan(&job.ID, &job.OwnerID, &job.QueryText, &requestKind, &prefsRaw, &status,
		&job.Progress, &artifactRaw, &errMsg, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, fmt.Errorf("jobs: scan job row: %w", err)
	}
	job.RequestKind = models.RequestKind(requestKind)
	job.Status = models.JobStatus(status)
	job.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if len(prefsRaw) > 0 {
		var prefs models.Preferences
		if err := json.Unmarshal(prefsRaw, &prefs); err == nil {
			job.PreferencesSnapshot = &prefs
		}
	}
	if len(artifactRaw) > 0 {
		var artifact models.ResultArtifact
		if err := json.Unmarshal(artifactRaw, &artifact); err == nil {
			job.ResultArtifact = &artifact
		}
	}
	return job, nil
}

func marshalNullable(prefs *models.Preferences) ([]byte, error) {
	if prefs == nil {
		return nil, nil
	}
	return json.Marshal(prefs)
}

// PostgresUserRepo resolves a user's tier from a users table.
type PostgresUserRepo struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewPostgresUserRepo(conn database.PostgresConn, logger logging.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{db: conn, logger: logger}
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (models.UserRecord, bool, error) {
	var tier string
	err := r.db.QueryRowContext(ctx, `SELECT tier FROM users WHERE id = $1`, id).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRecord{}, false, nil
	}
	if err != nil {
		return models.UserRecord{}, false, fmt.Errorf("jobs: get user %s: %w", id, err)
	}
	return models.UserRecord{ID: id, Tier: models.Tier(tier)}, true, nil
}

// PostgresPreferenceRepo implements preference.Repo (aliased as
// PreferenceRepo) against a stored_preferences table.
type PostgresPreferenceRepo struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewPostgresPreferenceRepo(conn database.PostgresConn, logger logging.Logger) *PostgresPreferenceRepo {
	return &PostgresPreferenceRepo{db: conn, logger: logger}
}

func (r *PostgresPreferenceRepo) GetSurprise(ctx context.Context, owner string) (int, bool, error) {
	var v sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT surprise_tolerance FROM stored_preferences WHERE owner_id = $1`, owner).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("jobs: get surprise tolerance for %s: %w", owner, err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return int(v.Int64), true, nil
}

func (r *PostgresPreferenceRepo) GetTopics(ctx context.Context, owner string) ([]string, bool, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT topics FROM stored_preferences WHERE owner_id = $1`, owner).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("jobs: get topics for %s: %w", owner, err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	var topics []string
	if err := json.Unmarshal(raw, &topics); err != nil {
		return nil, false, fmt.Errorf("jobs: decode topics for %s: %w", owner, err)
	}
	return topics, true, nil
}

func (r *PostgresPreferenceRepo) GetDepth(ctx context.Context, owner string) (int, bool, error) {
	var v sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT depth FROM stored_preferences WHERE owner_id = $1`, owner).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("jobs: get depth for %s: %w", owner, err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return int(v.Int64), true, nil
}

// PostgresCacheRepo is a CacheRepo backed by a key/value table. Every
// method swallows its own backend error into a miss/no-op after
// logging, so FallbackCache (or a caller using this directly) never
// sees a Postgres outage as anything other than a cache miss.
type PostgresCacheRepo struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewPostgresCacheRepo(conn database.PostgresConn, logger logging.Logger) *PostgresCacheRepo {
	return &PostgresCacheRepo{db: conn, logger: logger}
}

func (r *PostgresCacheRepo) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM kv_cache WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, time.Now().UTC()).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && r.logger != nil {
			r.logger.WithError(err).Warn("jobs: cache repo get failed, treating as miss")
		}
		return nil, false
	}
	return value, true
}

func (r *PostgresCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_cache (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	if err != nil && r.logger != nil {
		r.logger.WithError(err).Warn("jobs: cache repo set failed, write dropped")
	}
}
