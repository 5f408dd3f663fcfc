package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
)

const maxPageSize = 200

// UserService reads local account records.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager) *UserService {
	return &UserService{db: db, repomanager: m}
}

// ByID is used by session resolution on every request.
func (s *UserService) ByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return u, nil
}

// ByEmail returns the user with email. Non-admins may only look themselves up.
func (s *UserService) ByEmail(ctx context.Context, p *access.Principal, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if p == nil || p.User == nil {
		return nil, common.ErrorUnauthorized
	}
	if !p.IsAdmin() && !strings.EqualFold(p.User.Email, email) {
		return nil, common.ErrorForbidden
	}
	u, err := s.repomanager.Users(s.db).ByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return u, nil
}

func (s *UserService) Count(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Users(s.db).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("error counting users: %w", err)
	}
	return n, nil
}

// List returns a page of users, newest first.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset = max(offset, 0)
	users, err := s.repomanager.Users(s.db).List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return users, nil
}

// RecordLogin stamps the user's last sign-in time.
func (s *UserService) RecordLogin(ctx context.Context, id string) error {
	if err := s.repomanager.Users(s.db).TouchLastLogin(ctx, id); err != nil {
		return fmt.Errorf("error recording login: %w", err)
	}
	return nil
}
