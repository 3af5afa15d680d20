package campaign

import (
	"context"
	"database/sql"

	"github.com/ekemper/leadgen/errors"
)

const selectColumns = `id, name, status, status_message, status_error, paused_dependency, created_at, updated_at, completed_at, failed_at`

// Store handles persistence of campaigns
type Store struct {
	db *sql.DB
}

// NewStore creates a new campaign store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new campaign into the database
func (s *Store) Create(ctx context.Context, c *Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, name, status, status_message, status_error,
			paused_dependency, created_at, updated_at, completed_at, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.Name,
		c.Status,
		c.StatusMessage,
		c.StatusError,
		c.PausedDependency,
		c.CreatedAt,
		c.UpdatedAt,
		c.CompletedAt,
		c.FailedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create campaign")
	}
	return nil
}

// Get retrieves a campaign by ID
func (s *Store) Get(ctx context.Context, id string) (*Campaign, error) {
	query := `SELECT ` + selectColumns + ` FROM campaigns WHERE id = ?`

	c, err := scanCampaign(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("campaign not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get campaign")
	}
	return c, nil
}

// Update updates an existing campaign in the database
func (s *Store) Update(ctx context.Context, c *Campaign) error {
	query := `
		UPDATE campaigns
		SET name = ?,
		    status = ?,
		    status_message = ?,
		    status_error = ?,
		    paused_dependency = ?,
		    updated_at = ?,
		    completed_at = ?,
		    failed_at = ?
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query,
		c.Name,
		c.Status,
		c.StatusMessage,
		c.StatusError,
		c.PausedDependency,
		c.UpdatedAt,
		c.CompletedAt,
		c.FailedAt,
		c.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update campaign")
	}
	return nil
}

// ListByStatus returns all campaigns with the given status, oldest first
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Campaign, error) {
	query := `SELECT ` + selectColumns + ` FROM campaigns WHERE status = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list campaigns by status")
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// CountByStatus returns the number of campaigns per status
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM campaigns GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count campaigns by status")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan campaign count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating campaign counts")
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var c Campaign
	var completedAt, failedAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Status,
		&c.StatusMessage,
		&c.StatusError,
		&c.PausedDependency,
		&c.CreatedAt,
		&c.UpdatedAt,
		&completedAt,
		&failedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		c.FailedAt = &t
	}
	return &c, nil
}

func scanCampaigns(rows *sql.Rows) ([]*Campaign, error) {
	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan campaign")
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating campaigns")
	}
	return campaigns, nil
}
