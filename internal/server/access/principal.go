// Package access holds the request-scoped principal and the route policy
// that decides, from a path and the freshly loaded user, whether a request
// proceeds, is redirected or is rejected.
package access

import (
	"context"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

// Principal is the caller resolved for one request. User is re-read from the
// relational store on every request and is never cached across requests.
type Principal struct {
	IdentityID string
	Email      string
	User       *models.User
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.User.IsAdmin()
}

// UserID returns the local user ID, or "" for an unresolved principal.
func (p *Principal) UserID() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.ID
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
