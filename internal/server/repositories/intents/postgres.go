package intents

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

const intentColumns = `id, user_id, fingerprint, state, stage, payload, employee_id,
	remote_page_ids, time_entry_id, last_error, attempts, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanIntent(row scanner) (*models.SubmissionIntent, error) {
	i := &models.SubmissionIntent{}
	var payload []byte
	err := row.Scan(&i.ID, &i.UserID, &i.Fingerprint, &i.State, &i.Stage, &payload, &i.EmployeeID,
		dbx.Array(&i.RemotePageIDs), &i.TimeEntryID, &i.LastError, &i.Attempts, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	i.Payload = payload
	return i, nil
}

func (r *PostgresRepository) Create(ctx context.Context, intent *models.SubmissionIntent) (*models.SubmissionIntent, error) {
	query :=
		`INSERT INTO submission_intents (user_id, fingerprint, state, stage, payload, employee_id, remote_page_ids)
		 VALUES ($1, $2, 'pending', $3, $4, $5, $6)
		 RETURNING ` + intentColumns

	created, err := scanIntent(r.db.QueryRowContext(ctx, query,
		intent.UserID, intent.Fingerprint, intent.Stage, []byte(intent.Payload), intent.EmployeeID, intent.RemotePageIDs))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) ByID(ctx context.Context, id string) (*models.SubmissionIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM submission_intents WHERE id = $1`
	return scanIntent(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ByFingerprint(ctx context.Context, fingerprint string) (*models.SubmissionIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM submission_intents WHERE fingerprint = $1`
	return scanIntent(r.db.QueryRowContext(ctx, query, fingerprint))
}

func (r *PostgresRepository) SetRemotePage(ctx context.Context, id string, i int, pageID string) error {
	// PostgreSQL arrays are 1-based.
	query := `UPDATE submission_intents
		SET remote_page_ids[$2] = $3, stage = 'writing_remote', updated_at = now()
		WHERE id = $1`
	return r.execOne(ctx, query, id, i+1, pageID)
}

func (r *PostgresRepository) Claim(ctx context.Context, id string, cutoff time.Time) (*models.SubmissionIntent, error) {
	query := `UPDATE submission_intents
		SET state = 'pending', attempts = attempts + 1, last_error = '', updated_at = now()
		WHERE id = $1 AND (state = 'failed' OR (state = 'pending' AND updated_at < $2))
		RETURNING ` + intentColumns
	return scanIntent(r.db.QueryRowContext(ctx, query, id, cutoff))
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, timeEntryID string) error {
	query := `UPDATE submission_intents
		SET state = 'completed', stage = 'done', time_entry_id = $2, last_error = '', updated_at = now()
		WHERE id = $1`
	return r.execOne(ctx, query, id, timeEntryID)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, stage models.Stage, msg string) error {
	query := `UPDATE submission_intents
		SET state = 'failed', stage = $2, last_error = $3, updated_at = now()
		WHERE id = $1 AND state <> 'completed'`
	_, err := r.db.ExecContext(ctx, query, id, stage, msg)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListStale(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]*models.SubmissionIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM submission_intents
		WHERE state IN ('pending', 'failed') AND updated_at < $1 AND attempts < $2
		ORDER BY updated_at
		LIMIT $3`
	return r.list(ctx, query, cutoff, maxAttempts, limit)
}

func (r *PostgresRepository) ListByState(ctx context.Context, state models.IntentState, limit int) ([]*models.SubmissionIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM submission_intents
		WHERE state = $1
		ORDER BY updated_at DESC
		LIMIT $2`
	return r.list(ctx, query, state, limit)
}

func (r *PostgresRepository) CountByState(ctx context.Context, state models.IntentState) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM submission_intents WHERE state = $1`, state).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.SubmissionIntent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SubmissionIntent
	for rows.Next() {
		i, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// execOne runs an update that must touch exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
