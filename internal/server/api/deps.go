package api

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/auth"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
)

// The interfaces below are the parts of the service layer the HTTP layer
// calls. They are satisfied by the concrete services.

type Identity interface {
	SignInWithPassword(ctx context.Context, email, password string) (*services.Session, error)
	Session(ctx context.Context, accessToken string) (*auth.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
	SignOut(ctx context.Context, identityID string) error
}

type Users interface {
	ByID(ctx context.Context, id string) (*models.User, error)
	ByEmail(ctx context.Context, p *access.Principal, email string) (*models.User, error)
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	RecordLogin(ctx context.Context, id string) error
}

type Timesheets interface {
	ListEntries(ctx context.Context) ([]models.WorkspaceEntry, error)
	UserEntries(ctx context.Context, userID string) ([]*models.TimeEntry, error)
	Intents(ctx context.Context, state models.IntentState, limit int) ([]*models.SubmissionIntent, error)
	SubmitEntry(ctx context.Context, p *access.Principal, sub models.Submission) (*models.TimeEntry, error)
	Reconcile(ctx context.Context, olderThan time.Duration) (*services.ReconcileReport, error)
}

type References interface {
	Employees(ctx context.Context, email string) ([]models.Employee, error)
	Projects(ctx context.Context) ([]models.Project, error)
	Tasks(ctx context.Context, projectIDs ...string) ([]models.Task, error)
	SubmissionForm(ctx context.Context, email string) (*models.SubmissionForm, error)
}

type Provisioning interface {
	CreateUser(ctx context.Context, admin *access.Principal, in services.NewUser) (*models.User, error)
	ProvisionEmployee(ctx context.Context, admin *access.Principal, in services.NewEmployee) (*services.ProvisionedEmployee, error)
	UpdateStatus(ctx context.Context, admin *access.Principal, userID string, status models.Status) (*models.User, error)
	UpdateRole(ctx context.Context, admin *access.Principal, userID string, role models.Role) (*models.User, error)
}

type Dashboards interface {
	UserDashboard(ctx context.Context, userID string, now time.Time) (*services.UserDashboard, error)
	AdminDashboard(ctx context.Context, now time.Time) (*services.AdminDashboard, error)
}

type Exports interface {
	Export(ctx context.Context, requestedBy string, req services.ExportRequest) (*services.ExportResult, error)
	Recent(ctx context.Context, limit int) ([]*models.Export, error)
	Get(ctx context.Context, id string) (*services.ExportResult, error)
}

type Diagnostics interface {
	Check(ctx context.Context) []services.DatabaseCheck
}

type Deps struct {
	Identity     Identity
	Users        Users
	Timesheets   Timesheets
	References   References
	Provisioning Provisioning
	Dashboards   Dashboards
	Exports      Exports
	Diagnostics  Diagnostics
}

type Options struct {
	CookieSecure        bool
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	ReconcileStaleAfter time.Duration
}
