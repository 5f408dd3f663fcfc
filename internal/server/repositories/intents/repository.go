// Package intents is the submission outbox: one row per timesheet
// submission, written before any workspace page is created and completed in
// the same transaction as the local time entry.
package intents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

type Repository interface {
	// Create inserts a pending intent. A fingerprint that already exists
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, intent *models.SubmissionIntent) (*models.SubmissionIntent, error)
	ByID(ctx context.Context, id string) (*models.SubmissionIntent, error)
	ByFingerprint(ctx context.Context, fingerprint string) (*models.SubmissionIntent, error)
	// SetRemotePage records the workspace page created for task index i (0-based).
	SetRemotePage(ctx context.Context, id string, i int, pageID string) error
	// Claim moves a failed intent, or a pending one not touched since
	// cutoff, back to pending and bumps its attempt count. It returns
	// common.ErrorNotFound when the intent is not claimable.
	Claim(ctx context.Context, id string, cutoff time.Time) (*models.SubmissionIntent, error)
	MarkCompleted(ctx context.Context, id string, timeEntryID string) error
	MarkFailed(ctx context.Context, id string, stage models.Stage, msg string) error
	// ListStale returns pending and failed intents not touched since cutoff
	// that have been attempted fewer than maxAttempts times.
	ListStale(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]*models.SubmissionIntent, error)
	ListByState(ctx context.Context, state models.IntentState, limit int) ([]*models.SubmissionIntent, error)
	CountByState(ctx context.Context, state models.IntentState) (int64, error)
}
