// Package identities stores sign-in credentials for the identity store.
package identities

import (
	"context"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

type Repository interface {
	// Create inserts the identity and fills ID and CreatedAt.
	// A duplicate email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	// ByEmail matches case-insensitively.
	ByEmail(ctx context.Context, email string) (*models.Identity, error)
	ByID(ctx context.Context, id string) (*models.Identity, error)
}
