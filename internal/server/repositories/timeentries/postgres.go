package timeentries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/dbx"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, user_id, date, project_ids, project_names, task_ids, task_names,
	hours_worked, descriptions, workspace_entry_ids, submission_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.TimeEntry, error) {
	e := &models.TimeEntry{}
	err := row.Scan(&e.ID, &e.UserID, &e.Date,
		dbx.Array(&e.ProjectIDs), dbx.Array(&e.ProjectNames),
		dbx.Array(&e.TaskIDs), dbx.Array(&e.TaskNames),
		dbx.Array(&e.HoursWorked), dbx.Array(&e.Descriptions),
		dbx.Array(&e.WorkspaceEntryIDs),
		&e.SubmissionID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) Create(ctx context.Context, entry *models.TimeEntry) (*models.TimeEntry, error) {
	query :=
		`INSERT INTO time_entries (user_id, date, project_ids, project_names, task_ids, task_names,
			hours_worked, descriptions, workspace_entry_ids, submission_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		entry.UserID, entry.Date,
		entry.ProjectIDs, entry.ProjectNames,
		entry.TaskIDs, entry.TaskNames,
		entry.HoursWorked, entry.Descriptions,
		entry.WorkspaceEntryIDs, entry.SubmissionID,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) ByID(ctx context.Context, id string) (*models.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = $1`
	return scanEntry(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE user_id = $1 ORDER BY date DESC, created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ListRange(ctx context.Context, from, to time.Time, userID string) ([]*models.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
		WHERE date >= $1 AND date < $2 AND ($3 = '' OR user_id::text = $3)
		ORDER BY date, created_at`
	return r.list(ctx, query, from, to, userID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
