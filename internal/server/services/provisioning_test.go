package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type provisioningFixture struct {
	svc      *ProvisioningService
	identity *IdentityService
	rm       *fakeRepoManager
	ws       *fakeWorkspace
	codec    *workspace.Codec
	admin    *access.Principal
}

func newProvisioningFixture(t *testing.T) *provisioningFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)
	rm := newFakeRepoManager()
	ws := newFakeWorkspace()
	codec := workspace.NewCodec(testSchema())
	identity := NewIdentityService(db, rm, &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: time.Hour,
	})

	adminUser := &models.User{ID: "A1", Email: "boss@example.com", Role: models.RoleAdmin, Status: models.StatusActive}
	rm.users.put(adminUser)

	return &provisioningFixture{
		svc:      NewProvisioningService(db, rm, identity, ws, codec, logging.Nop()),
		identity: identity,
		rm:       rm,
		ws:       ws,
		codec:    codec,
		admin:    &access.Principal{IdentityID: "A1", Email: adminUser.Email, User: adminUser},
	}
}

func TestCreateUser_ByAdmin(t *testing.T) {
	f := newProvisioningFixture(t)

	u, err := f.svc.CreateUser(context.Background(), f.admin, NewUser{
		Email:     " new@example.com ",
		Password:  "long enough",
		FirstName: "New",
		LastName:  "Person",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, models.StatusActive, u.Status)
	require.NotNil(t, u.CreatedByID)
	assert.Equal(t, "A1", *u.CreatedByID)

	// identity and user share the ID, and the account can sign in right away
	session, err := f.identity.SignInWithPassword(context.Background(), "new@example.com", "long enough")
	require.NoError(t, err)
	assert.Equal(t, u.ID, session.IdentityID)
}

func TestCreateUser_SystemCaller(t *testing.T) {
	f := newProvisioningFixture(t)

	u, err := f.svc.CreateUser(context.Background(), nil, NewUser{Email: "root@example.com", Password: "long enough", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Nil(t, u.CreatedByID)
}

func TestCreateUser_Rejections(t *testing.T) {
	f := newProvisioningFixture(t)
	plain := &access.Principal{IdentityID: "U1", User: &models.User{ID: "U1", Role: models.RoleUser, Status: models.StatusActive}}

	_, err := f.svc.CreateUser(context.Background(), plain, NewUser{Email: "x@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, common.ErrorForbidden)

	_, err = f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "x@example.com", Password: "long enough", Role: "OWNER"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "x@example.com", Password: "short"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "x@example.com", Password: "long enough"})
	require.NoError(t, err)
	_, err = f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "X@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreateUser_UserRecordFails(t *testing.T) {
	f := newProvisioningFixture(t)
	f.rm.users.createErr = errBoom{}

	_, err := f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "x@example.com", Password: "long enough"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error creating user")

	// the identity stays behind
	_, err = f.rm.identities.ByEmail(context.Background(), "x@example.com")
	assert.NoError(t, err)
}

func TestProvisionEmployee(t *testing.T) {
	f := newProvisioningFixture(t)
	rate := 42.5

	out, err := f.svc.ProvisionEmployee(context.Background(), f.admin, NewEmployee{
		NewUser:    NewUser{Email: "dev@example.com", Password: "long enough", FirstName: "Dana", LastName: "Vo"},
		HourlyRate: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana Vo", out.Employee.Name)
	assert.Equal(t, EmployeeStatusActive, out.Employee.Status)
	assert.NotEmpty(t, out.Employee.ID)

	created := f.ws.createdPages()
	require.Len(t, created, 1)
	assert.Equal(t, "db-emp", created[0].DatabaseID)

	decoded, err := f.codec.Employee(workspace.Page{ID: out.Employee.ID, Properties: created[0].Props})
	require.NoError(t, err)
	assert.Equal(t, "Dana Vo", decoded.Name)
	assert.Equal(t, "dev@example.com", decoded.Email)
	require.NotNil(t, decoded.HourlyRate)
	assert.Equal(t, 42.5, *decoded.HourlyRate)
	assert.Equal(t, EmployeeStatusActive, decoded.Status)
}

func TestProvisionEmployee_NameFallsBackToEmail(t *testing.T) {
	f := newProvisioningFixture(t)

	out, err := f.svc.ProvisionEmployee(context.Background(), f.admin, NewEmployee{
		NewUser: NewUser{Email: "anon@example.com", Password: "long enough"},
	})
	require.NoError(t, err)
	assert.Equal(t, "anon@example.com", out.Employee.Name)
	assert.Nil(t, out.Employee.HourlyRate)
}

func TestProvisionEmployee_Failures(t *testing.T) {
	f := newProvisioningFixture(t)
	negative := -1.0

	_, err := f.svc.ProvisionEmployee(context.Background(), f.admin, NewEmployee{
		NewUser:    NewUser{Email: "neg@example.com", Password: "long enough"},
		HourlyRate: &negative,
	})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, f.ws.createdPages())

	f.ws.createErr = func(workspace.Properties) error {
		return &workspace.APIError{Status: 400, Code: "validation_error", Message: "bad"}
	}
	_, err = f.svc.ProvisionEmployee(context.Background(), f.admin, NewEmployee{
		NewUser: NewUser{Email: "dev@example.com", Password: "long enough"},
	})
	require.Error(t, err)
	var apiErr *workspace.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "error creating employee page")

	// the local account exists even though the page does not
	_, err = f.rm.users.ByEmail(context.Background(), "dev@example.com")
	assert.NoError(t, err)
}

func TestUpdateStatus(t *testing.T) {
	f := newProvisioningFixture(t)
	u, err := f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "x@example.com", Password: "long enough"})
	require.NoError(t, err)
	_, err = f.identity.SignInWithPassword(context.Background(), "x@example.com", "long enough")
	require.NoError(t, err)
	require.Equal(t, 1, f.rm.refresh.count(u.ID))

	updated, err := f.svc.UpdateStatus(context.Background(), f.admin, u.ID, models.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, updated.Status)
	assert.Equal(t, 0, f.rm.refresh.count(u.ID))

	_, err = f.svc.UpdateStatus(context.Background(), f.admin, u.ID, "GONE")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.UpdateStatus(context.Background(), f.admin, "A1", models.StatusInactive)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.UpdateStatus(context.Background(), f.admin, "missing", models.StatusActive)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.svc.UpdateStatus(context.Background(), nil, u.ID, models.StatusActive)
	assert.ErrorIs(t, err, common.ErrorForbidden)
}

func TestUpdateRole(t *testing.T) {
	f := newProvisioningFixture(t)
	u, err := f.svc.CreateUser(context.Background(), f.admin, NewUser{Email: "x@example.com", Password: "long enough"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateRole(context.Background(), f.admin, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin())

	_, err = f.svc.UpdateRole(context.Background(), f.admin, "A1", models.RoleUser)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.UpdateRole(context.Background(), f.admin, u.ID, "ROOT")
	assert.ErrorIs(t, err, common.ErrValidation)

	plain := &access.Principal{User: &models.User{ID: u.ID, Role: models.RoleUser}}
	_, err = f.svc.UpdateRole(context.Background(), plain, u.ID, models.RoleAdmin)
	assert.ErrorIs(t, err, common.ErrorForbidden)
}
