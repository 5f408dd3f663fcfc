// Package exports keeps metadata about CSV exports stored in object storage.
package exports

import (
	"context"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, export *models.Export) (*models.Export, error)
	MarkUploaded(ctx context.Context, id string, rowCount int) error
	ByID(ctx context.Context, id string) (*models.Export, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Export, error)
}
