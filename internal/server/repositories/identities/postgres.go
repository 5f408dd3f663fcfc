package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO identities (email, password_hash, salt, confirmed_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		identity.Email, identity.PasswordHash, identity.Salt, identity.ConfirmedAt).
		Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

const selectIdentity = `SELECT id, email, password_hash, salt, confirmed_at, created_at FROM identities`

func (r *PostgresRepository) ByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.one(ctx, selectIdentity+` WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) ByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.one(ctx, selectIdentity+` WHERE id = $1`, id)
}

func (r *PostgresRepository) one(ctx context.Context, query string, arg any) (*models.Identity, error) {
	i := &models.Identity{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Salt, &i.ConfirmedAt, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return i, nil
}
