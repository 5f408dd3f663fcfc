package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
)

// EmployeeStatusActive is the workspace status given to provisioned employees.
const EmployeeStatusActive = "Active"

type NewUser struct {
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      models.Role `json:"role"`
}

type NewEmployee struct {
	NewUser
	HourlyRate *float64 `json:"hourlyRate,omitempty"`
}

type ProvisionedEmployee struct {
	User     *models.User    `json:"user"`
	Employee models.Employee `json:"employee"`
}

// ProvisioningService creates accounts: an identity, the local user record
// and, for employees, the workspace employee page. The steps are sequential
// and not rolled back; an identity left without a user is logged.
type ProvisioningService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	identity    *IdentityService
	client      WorkspaceClient
	codec       *workspace.Codec
	log         logging.Logger
}

func NewProvisioningService(db *sql.DB, m repomanager.RepositoryManager, identity *IdentityService,
	client WorkspaceClient, codec *workspace.Codec, log logging.Logger) *ProvisioningService {
	return &ProvisioningService{
		db:          db,
		repomanager: m,
		identity:    identity,
		client:      client,
		codec:       codec,
		log:         log.With("module", "provisioning"),
	}
}

// CreateUser creates a pre-confirmed identity and the matching user record.
// A nil admin is a system caller (the admin CLI); the record then has no
// CreatedByID.
func (s *ProvisioningService) CreateUser(ctx context.Context, admin *access.Principal, in NewUser) (*models.User, error) {
	if admin != nil && !admin.IsAdmin() {
		return nil, common.ErrorForbidden
	}
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, in.Role)
	}

	identity, err := s.identity.CreateIdentity(ctx, in.Email, in.Password, true)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:        identity.ID,
		Email:     identity.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		Status:    models.StatusActive,
	}
	if admin != nil {
		id := admin.UserID()
		user.CreatedByID = &id
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		s.log.Error(ctx, "user record not created, identity orphaned", "identity_id", identity.ID, "email", in.Email, "error", err)
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.log.Info(ctx, "user created", "user_id", created.ID, "role", created.Role, "created_by", admin.UserID())
	return created, nil
}

// ProvisionEmployee creates the account and then the workspace employee
// page.
func (s *ProvisioningService) ProvisionEmployee(ctx context.Context, admin *access.Principal, in NewEmployee) (*ProvisionedEmployee, error) {
	if in.HourlyRate != nil && *in.HourlyRate < 0 {
		return nil, fmt.Errorf("%w: hourly rate must not be negative", common.ErrValidation)
	}

	user, err := s.CreateUser(ctx, admin, in.NewUser)
	if err != nil {
		return nil, err
	}

	name := user.FullName()
	if name == "" {
		name = user.Email
	}
	page, err := s.client.CreatePage(ctx, s.codec.Schema().ID(workspace.Employees), s.codec.EmployeeProperties(workspace.NewEmployee{
		Name:       name,
		Email:      user.Email,
		HourlyRate: in.HourlyRate,
		Status:     EmployeeStatusActive,
	}))
	if err != nil {
		s.log.Error(ctx, "employee page not created", "identity_id", user.ID, "email", user.Email, "error", err)
		return nil, fmt.Errorf("error creating employee page: %w", err)
	}

	return &ProvisionedEmployee{
		User: user,
		Employee: models.Employee{
			ID:         page.ID,
			Name:       name,
			Email:      user.Email,
			HourlyRate: in.HourlyRate,
			Status:     EmployeeStatusActive,
		},
	}, nil
}

// UpdateStatus changes a user's status. Leaving ACTIVE revokes the user's
// refresh tokens; the change applies to the next request either way.
func (s *ProvisioningService) UpdateStatus(ctx context.Context, admin *access.Principal, userID string, status models.Status) (*models.User, error) {
	if !admin.IsAdmin() {
		return nil, common.ErrorForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrValidation, status)
	}
	if userID == admin.UserID() && status != models.StatusActive {
		return nil, fmt.Errorf("%w: admins cannot deactivate themselves", common.ErrValidation)
	}

	user, err := s.repomanager.Users(s.db).UpdateStatus(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("error updating status: %w", err)
	}
	if status != models.StatusActive {
		if err := s.identity.SignOut(ctx, userID); err != nil {
			s.log.Warn(ctx, "sign-out after status change failed", "user_id", userID, "error", err)
		}
	}
	s.log.Info(ctx, "user status changed", "user_id", userID, "status", status, "by", admin.UserID())
	return user, nil
}

func (s *ProvisioningService) UpdateRole(ctx context.Context, admin *access.Principal, userID string, role models.Role) (*models.User, error) {
	if !admin.IsAdmin() {
		return nil, common.ErrorForbidden
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, role)
	}
	if userID == admin.UserID() && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", common.ErrValidation)
	}

	user, err := s.repomanager.Users(s.db).UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("error updating role: %w", err)
	}
	s.log.Info(ctx, "user role changed", "user_id", userID, "role", role, "by", admin.UserID())
	return user, nil
}
