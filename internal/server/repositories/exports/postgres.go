package exports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/dbx"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

// PostgresRepository implements export metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const exportColumns = `id, requested_by, storage_key, from_date, to_date, user_filter, row_count, upload_status, created_at`

// Create inserts a pending export row and fills ID and CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, export *models.Export) (*models.Export, error) {
	query := `
		INSERT INTO exports (requested_by, storage_key, from_date, to_date, user_filter, upload_status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, upload_status, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		export.RequestedBy, export.StorageKey, export.From, export.To, export.UserFilter).
		Scan(&export.ID, &export.UploadStatus, &export.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return export, nil
}

// MarkUploaded marks the export as uploaded (upload_status='completed').
// Exactly one row must be affected.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, id string, rowCount int) error {
	query := `update exports set upload_status='completed', row_count=$2 where id=$1`
	result, err := r.db.ExecContext(ctx, query, id, rowCount)
	if err != nil {
		return fmt.Errorf("failed to mark uploaded: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

// ByID returns one export; common.ErrorNotFound when absent.
func (r *PostgresRepository) ByID(ctx context.Context, id string) (*models.Export, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE id=$1`

	e := &models.Export{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.RequestedBy, &e.StorageKey,
		&e.From, &e.To, &e.UserFilter, &e.RowCount, &e.UploadStatus, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select export: %w", err)
	}
	return e, nil
}

// ListRecent returns the newest exports first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*models.Export, error) {
	query := `SELECT ` + exportColumns + ` FROM exports ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select exports: %w", err)
	}
	defer rows.Close()

	var result []*models.Export
	for rows.Next() {
		var e models.Export
		if err := rows.Scan(&e.ID, &e.RequestedBy, &e.StorageKey,
			&e.From, &e.To, &e.UserFilter, &e.RowCount, &e.UploadStatus, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
