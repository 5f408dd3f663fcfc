// Package refreshtokens declares the repository contract for refresh tokens
// issued by the identity store.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for identityID with an expiry of now+validity.
	Create(ctx context.Context, identityID string, token string, validity time.Duration) error

	// Find looks up a refresh token by its opaque token string.
	// Returns common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a
	// non-existent token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByIdentity revokes every refresh token of an identity (sign-out).
	DeleteByIdentity(ctx context.Context, identityID string) (int64, error)
}
