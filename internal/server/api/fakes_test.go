package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/auth"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
)

type fakeIdentity struct {
	mu        sync.Mutex
	passwords map[string]string // email -> password
	ids       map[string]string // email -> identity id
	access    map[string]string // access token -> identity id
	expired   map[string]bool
	refresh   map[string]string // refresh token -> identity id
	signedOut  []string
	signOutErr error
	seq        int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		passwords: map[string]string{},
		ids:       map[string]string{},
		access:    map[string]string{},
		expired:   map[string]bool{},
		refresh:   map[string]string{},
	}
}

func (f *fakeIdentity) add(id, email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[email] = password
	f.ids[email] = id
}

func (f *fakeIdentity) newSession(id string) *services.Session {
	f.seq++
	s := &services.Session{
		IdentityID:   id,
		Email:        id + "@example.com",
		AccessToken:  fmt.Sprintf("access-%s-%d", id, f.seq),
		RefreshToken: fmt.Sprintf("refresh-%s-%d", id, f.seq),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	f.access[s.AccessToken] = id
	f.refresh[s.RefreshToken] = id
	return s
}

// issue mints a valid session for id.
func (f *fakeIdentity) issue(id string) *services.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newSession(id)
}

func (f *fakeIdentity) expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired[token] = true
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*services.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.passwords[email]; !ok || pw != password {
		return nil, common.ErrorUnauthorized
	}
	return f.newSession(f.ids[email]), nil
}

func (f *fakeIdentity) Session(_ context.Context, token string) (*auth.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[token] {
		return nil, common.ErrTokenExpired
	}
	id, ok := f.access[token]
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return &auth.Claims{IdentityID: id, Email: id + "@example.com"}, nil
}

func (f *fakeIdentity) Refresh(_ context.Context, token string) (*services.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.refresh[token]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	delete(f.refresh, token)
	return f.newSession(id), nil
}

func (f *fakeIdentity) SignOut(_ context.Context, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, identityID)
	for k, v := range f.refresh {
		if v == identityID {
			delete(f.refresh, k)
		}
	}
	return f.signOutErr
}

func (f *fakeIdentity) signOuts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signedOut...)
}

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	logins  []string
	lookups int
}

func (f *fakeUsers) put(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

func (f *fakeUsers) ByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ByEmail(_ context.Context, p *access.Principal, email string) (*models.User, error) {
	if !p.IsAdmin() && !strings.EqualFold(p.User.Email, email) {
		return nil, common.ErrorForbidden
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) RecordLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, id)
	return nil
}

// fakeServices implements the remaining service interfaces. Each method
// records its arguments and returns the configured error, if any.
type fakeServices struct {
	mu  sync.Mutex
	err error

	submitted    []models.Submission
	taskIDs      []string
	formEmail    string
	exportReq    services.ExportRequest
	reconcileAge time.Duration
	intentState  models.IntentState
	intentLimit  int
	created      []services.NewUser
	statusCalls  []string
	checks       []services.DatabaseCheck
}

func (f *fakeServices) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeServices) ListEntries(context.Context) ([]models.WorkspaceEntry, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return []models.WorkspaceEntry{{ID: "W1", Date: "2024-05-01", ProjectNames: []string{"Website"}}}, nil
}

func (f *fakeServices) UserEntries(_ context.Context, userID string) ([]*models.TimeEntry, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return []*models.TimeEntry{{ID: "TE1", UserID: userID}}, nil
}

func (f *fakeServices) Intents(_ context.Context, state models.IntentState, limit int) ([]*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentState, f.intentLimit = state, limit
	return []*models.SubmissionIntent{}, f.err
}

func (f *fakeServices) SubmitEntry(_ context.Context, p *access.Principal, sub models.Submission) (*models.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, sub)
	return &models.TimeEntry{ID: "TE9", UserID: p.UserID(), TaskIDs: sub.TaskIDs, HoursWorked: sub.HoursWorked}, nil
}

func (f *fakeServices) Reconcile(_ context.Context, olderThan time.Duration) (*services.ReconcileReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileAge = olderThan
	return &services.ReconcileReport{Scanned: 2, Completed: 1, Failed: 1}, f.err
}

func (f *fakeServices) Employees(_ context.Context, email string) ([]models.Employee, error) {
	return []models.Employee{{ID: "E1", Name: "Ann", Email: email}}, f.fail()
}

func (f *fakeServices) Projects(context.Context) ([]models.Project, error) {
	return []models.Project{{ID: "P1", Name: "Website"}}, f.fail()
}

func (f *fakeServices) Tasks(_ context.Context, projectIDs ...string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskIDs = projectIDs
	return []models.Task{{ID: "T1", Name: "Design", ProjectIDs: projectIDs}}, f.err
}

func (f *fakeServices) SubmissionForm(_ context.Context, email string) (*models.SubmissionForm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formEmail = email
	if f.err != nil {
		return nil, f.err
	}
	return &models.SubmissionForm{Employee: models.Employee{ID: "E1", Email: email}}, nil
}

func (f *fakeServices) CreateUser(_ context.Context, admin *access.Principal, in services.NewUser) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	createdBy := admin.UserID()
	return &models.User{ID: "N1", Email: in.Email, Role: in.Role, Status: models.StatusActive, CreatedByID: &createdBy}, nil
}

func (f *fakeServices) ProvisionEmployee(_ context.Context, admin *access.Principal, in services.NewEmployee) (*services.ProvisionedEmployee, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &services.ProvisionedEmployee{
		User:     &models.User{ID: "N2", Email: in.Email},
		Employee: models.Employee{ID: "E2", Name: in.FirstName, Email: in.Email, HourlyRate: in.HourlyRate},
	}, nil
}

func (f *fakeServices) UpdateStatus(_ context.Context, admin *access.Principal, userID string, status models.Status) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.statusCalls = append(f.statusCalls, userID+"="+string(status))
	return &models.User{ID: userID, Status: status}, nil
}

func (f *fakeServices) UpdateRole(_ context.Context, admin *access.Principal, userID string, role models.Role) (*models.User, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &models.User{ID: userID, Role: role}, nil
}

func (f *fakeServices) UserDashboard(_ context.Context, userID string, now time.Time) (*services.UserDashboard, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &services.UserDashboard{MonthlyHours: 12.5, MonthEntries: 3}, nil
}

func (f *fakeServices) AdminDashboard(context.Context, time.Time) (*services.AdminDashboard, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &services.AdminDashboard{Users: 4, FailedIntents: 1}, nil
}

func (f *fakeServices) Export(_ context.Context, requestedBy string, req services.ExportRequest) (*services.ExportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExportResult{Export: &models.Export{ID: "X1", RequestedBy: requestedBy}, URL: "https://signed/X1"}, nil
}

func (f *fakeServices) Recent(context.Context, int) ([]*models.Export, error) {
	return []*models.Export{{ID: "X1"}}, f.fail()
}

func (f *fakeServices) Get(_ context.Context, id string) (*services.ExportResult, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &services.ExportResult{Export: &models.Export{ID: id}, URL: "https://signed/" + id}, nil
}

func (f *fakeServices) Check(context.Context) []services.DatabaseCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

// --- harness ---

type harness struct {
	srv      *Server
	identity *fakeIdentity
	users    *fakeUsers
	svc      *fakeServices
	logs     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		identity: newFakeIdentity(),
		users:    &fakeUsers{byID: map[string]*models.User{}},
		svc:      &fakeServices{},
		logs:     &bytes.Buffer{},
	}
	h.srv = NewServer("127.0.0.1:0", logging.NewJSON(h.logs, "debug"), Deps{
		Identity:     h.identity,
		Users:        h.users,
		Timesheets:   h.svc,
		References:   h.svc,
		Provisioning: h.svc,
		Dashboards:   h.svc,
		Exports:      h.svc,
		Diagnostics:  h.svc,
	}, Options{
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          24 * time.Hour,
		ReconcileStaleAfter: 10 * time.Minute,
	})

	h.addUser("U1", models.RoleUser)
	h.addUser("A1", models.RoleAdmin)
	return h
}

func (h *harness) addUser(id string, role models.Role) {
	email := id + "@example.com"
	h.users.put(&models.User{ID: id, Email: email, Role: role, Status: models.StatusActive})
	h.identity.add(id, email, "pw-"+id)
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
}

type response struct {
	*httptest.ResponseRecorder
	json map[string]any
}

func (h *harness) do(t *testing.T, r request) response {
	t.Helper()
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	res := response{ResponseRecorder: rec}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &res.json); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return res
}

// as issues a bearer token for id.
func (h *harness) as(id string) string {
	return h.identity.issue(id).AccessToken
}

func cookie(res response, name string) *http.Cookie {
	for _, c := range res.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
