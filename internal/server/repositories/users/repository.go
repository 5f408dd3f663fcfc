// Package users stores the local account records used for role and status
// resolution.
package users

import (
	"context"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

type Repository interface {
	// Create inserts user keeping its ID (the identity ID).
	// A duplicate email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	ByID(ctx context.Context, id string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	// List returns users ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	TouchLastLogin(ctx context.Context, id string) error
}
