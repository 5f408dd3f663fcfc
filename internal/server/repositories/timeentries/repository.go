// Package timeentries stores the local mirror of timesheet submissions.
package timeentries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

type Repository interface {
	// Create inserts entry and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, entry *models.TimeEntry) (*models.TimeEntry, error)
	ByID(ctx context.Context, id string) (*models.TimeEntry, error)
	// ListByUser returns the user's entries, newest date first.
	ListByUser(ctx context.Context, userID string) ([]*models.TimeEntry, error)
	// ListRange returns entries with from <= date < to, oldest first.
	// An empty userID selects every user.
	ListRange(ctx context.Context, from, to time.Time, userID string) ([]*models.TimeEntry, error)
}
