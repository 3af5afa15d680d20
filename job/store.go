package job

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ekemper/leadgen/errors"
)

const selectColumns = `id, name, job_type, status, campaign_id, task_handle, error, created_at, updated_at, completed_at`

// Store handles persistence of jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job into the database
func (s *Store) Create(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO jobs (
			id, name, job_type, status, campaign_id,
			task_handle, error, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	campaignID := sql.NullString{String: j.CampaignID, Valid: j.CampaignID != ""}

	_, err := s.db.ExecContext(ctx, query,
		j.ID,
		j.Name,
		j.Type,
		j.Status,
		campaignID,
		j.TaskHandle,
		j.Error,
		j.CreatedAt,
		j.UpdatedAt,
		j.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// Get retrieves a job by ID
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + selectColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return j, nil
}

// Update updates an existing job in the database
func (s *Store) Update(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, updateQuery, updateArgs(j)...)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	return nil
}

const updateQuery = `
	UPDATE jobs
	SET name = ?,
	    job_type = ?,
	    status = ?,
	    campaign_id = ?,
	    task_handle = ?,
	    error = ?,
	    updated_at = ?,
	    completed_at = ?
	WHERE id = ?
`

func updateArgs(j *Job) []interface{} {
	campaignID := sql.NullString{String: j.CampaignID, Valid: j.CampaignID != ""}
	return []interface{}{
		j.Name,
		j.Type,
		j.Status,
		campaignID,
		j.TaskHandle,
		j.Error,
		j.UpdatedAt,
		j.CompletedAt,
		j.ID,
	}
}

// UpdateAll writes a batch of jobs inside one transaction. Either every job
// in the batch is persisted or none is; a failure rolls the whole batch back
// and is surfaced to the caller for retry.
func (s *Store) UpdateAll(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin batch update")
	}

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, updateQuery, updateArgs(j)...); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to update job %s in batch", j.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit batch update")
	}
	return nil
}

// ListByStatus returns all jobs whose status is in the given set,
// oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := `SELECT ` + selectColumns + ` FROM jobs WHERE status IN (` + placeholders + `) ORDER BY created_at ASC`

	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by status")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListByCampaign returns all jobs owned by the given campaign, oldest first
func (s *Store) ListByCampaign(ctx context.Context, campaignID string) ([]*Job, error) {
	query := `SELECT ` + selectColumns + ` FROM jobs WHERE campaign_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by campaign")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// CountByStatus returns the number of jobs per status
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs by status")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// CleanupOld removes completed/failed/cancelled jobs older than the
// specified duration.
func (s *Store) CleanupOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var campaignID sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&j.ID,
		&j.Name,
		&j.Type,
		&j.Status,
		&campaignID,
		&j.TaskHandle,
		&j.Error,
		&j.CreatedAt,
		&j.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if campaignID.Valid {
		j.CampaignID = campaignID.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}
