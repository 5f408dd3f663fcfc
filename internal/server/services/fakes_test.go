package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/dbx"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/exports"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/identities"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/intents"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/timeentries"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/users"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// --- repositories ---

type fakeRepoManager struct {
	users      *fakeUsersRepo
	identities *fakeIdentitiesRepo
	refresh    *fakeRefreshRepo
	entries    *fakeTimeEntriesRepo
	intents    *fakeIntentsRepo
	exports    *fakeExportsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:      &fakeUsersRepo{byID: map[string]*models.User{}},
		identities: &fakeIdentitiesRepo{byID: map[string]*models.Identity{}},
		refresh:    &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}},
		entries:    &fakeTimeEntriesRepo{byID: map[string]*models.TimeEntry{}},
		intents:    &fakeIntentsRepo{byID: map[string]*models.SubmissionIntent{}},
		exports:    &fakeExportsRepo{byID: map[string]*models.Export{}},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository            { return m.users }
func (m *fakeRepoManager) Identities(dbx.DBTX) identities.Repository  { return m.identities }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refresh
}
func (m *fakeRepoManager) TimeEntries(dbx.DBTX) timeentries.Repository { return m.entries }
func (m *fakeRepoManager) Intents(dbx.DBTX) intents.Repository         { return m.intents }
func (m *fakeRepoManager) Exports(dbx.DBTX) exports.Repository         { return m.exports }

var idSeq struct {
	sync.Mutex
	n int
}

func nextID(prefix string) string {
	idSeq.Lock()
	defer idSeq.Unlock()
	idSeq.n++
	return fmt.Sprintf("%s-%d", prefix, idSeq.n)
}

type fakeUsersRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.User
	createErr error
	touched   []string
}

func (f *fakeUsersRepo) put(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byID[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeUsersRepo) ByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) ByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

func (f *fakeUsersRepo) CountByStatus(context.Context) (map[models.Status]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[models.Status]int64{}
	for _, u := range f.byID {
		out[u.Status]++
	}
	return out, nil
}

func (f *fakeUsersRepo) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.byID {
		out = append(out, u)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	return out[:min(limit, len(out))], nil
}

func (f *fakeUsersRepo) update(id string, fn func(*models.User)) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	fn(u)
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) UpdateStatus(_ context.Context, id string, status models.Status) (*models.User, error) {
	return f.update(id, func(u *models.User) { u.Status = status })
}

func (f *fakeUsersRepo) UpdateRole(_ context.Context, id string, role models.Role) (*models.User, error) {
	return f.update(id, func(u *models.User) { u.Role = role })
}

func (f *fakeUsersRepo) TouchLastLogin(_ context.Context, id string) error {
	now := time.Now()
	_, err := f.update(id, func(u *models.User) { u.LastLoginAt = &now })
	if err == nil {
		f.mu.Lock()
		f.touched = append(f.touched, id)
		f.mu.Unlock()
	}
	return err
}

type fakeIdentitiesRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.Identity
	getErr error
}

func (f *fakeIdentitiesRepo) Create(_ context.Context, i *models.Identity) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if strings.EqualFold(existing.Email, i.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *i
	cp.ID = nextID("identity")
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeIdentitiesRepo) ByEmail(_ context.Context, email string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, i := range f.byID {
		if strings.EqualFold(i.Email, email) {
			return i, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeIdentitiesRepo) ByID(_ context.Context, id string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return i, nil
}

type fakeRefreshRepo struct {
	mu        sync.Mutex
	tokens    map[string]*models.RefreshToken
	createErr error
	delErr    error
}

func (f *fakeRefreshRepo) Create(_ context.Context, identityID, token string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{ID: nextID("rt"), IdentityID: identityID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteByIdentity(_ context.Context, identityID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if t.IdentityID == identityID {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) count(identityID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.IdentityID == identityID {
			n++
		}
	}
	return n
}

type fakeTimeEntriesRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.TimeEntry
	order     []string
	createErr error
	listErr   error
}

func (f *fakeTimeEntriesRepo) Create(_ context.Context, e *models.TimeEntry) (*models.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	cp := *e
	cp.ID = nextID("entry")
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byID[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return &cp, nil
}

func (f *fakeTimeEntriesRepo) ByID(_ context.Context, id string) (*models.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (f *fakeTimeEntriesRepo) ListByUser(_ context.Context, userID string) ([]*models.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.TimeEntry
	for i := len(f.order) - 1; i >= 0; i-- {
		if e := f.byID[f.order[i]]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTimeEntriesRepo) ListRange(_ context.Context, from, to time.Time, userID string) ([]*models.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.TimeEntry
	for _, id := range f.order {
		e := f.byID[id]
		if (userID == "" || e.UserID == userID) && !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTimeEntriesRepo) all() []*models.TimeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.TimeEntry, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.byID[id])
	}
	return out
}

type fakeIntentsRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.SubmissionIntent
	setCalls int
}

func (f *fakeIntentsRepo) Create(_ context.Context, in *models.SubmissionIntent) (*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Fingerprint == in.Fingerprint {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *in
	cp.ID = nextID("intent")
	cp.State = models.IntentPending
	cp.RemotePageIDs = append([]string(nil), in.RemotePageIDs...)
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byID[cp.ID] = &cp
	return f.copy(&cp), nil
}

func (f *fakeIntentsRepo) copy(in *models.SubmissionIntent) *models.SubmissionIntent {
	cp := *in
	cp.RemotePageIDs = append([]string(nil), in.RemotePageIDs...)
	return &cp
}

func (f *fakeIntentsRepo) put(in *models.SubmissionIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[in.ID] = f.copy(in)
}

func (f *fakeIntentsRepo) get(id string) *models.SubmissionIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copy(f.byID[id])
}

func (f *fakeIntentsRepo) ByID(_ context.Context, id string) (*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return f.copy(in), nil
}

func (f *fakeIntentsRepo) ByFingerprint(_ context.Context, fp string) (*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.byID {
		if in.Fingerprint == fp {
			return f.copy(in), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeIntentsRepo) SetRemotePage(_ context.Context, id string, i int, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.byID[id]
	if !ok || i >= len(in.RemotePageIDs) {
		return common.ErrorNotFound
	}
	f.setCalls++
	in.RemotePageIDs[i] = pageID
	in.Stage = models.StageWritingRemote
	in.UpdatedAt = time.Now()
	return nil
}

func (f *fakeIntentsRepo) Claim(_ context.Context, id string, cutoff time.Time) (*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.byID[id]
	if !ok || !(in.State == models.IntentFailed || (in.State == models.IntentPending && in.UpdatedAt.Before(cutoff))) {
		return nil, common.ErrorNotFound
	}
	in.State = models.IntentPending
	in.Attempts++
	in.UpdatedAt = time.Now()
	return f.copy(in), nil
}

func (f *fakeIntentsRepo) MarkCompleted(_ context.Context, id, timeEntryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	in.State = models.IntentCompleted
	in.Stage = models.StageDone
	in.TimeEntryID = &timeEntryID
	in.LastError = ""
	return nil
}

func (f *fakeIntentsRepo) MarkFailed(_ context.Context, id string, stage models.Stage, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.byID[id]
	if !ok || in.State == models.IntentCompleted {
		return common.ErrorNotFound
	}
	in.State = models.IntentFailed
	in.Stage = stage
	in.LastError = msg
	in.UpdatedAt = time.Now()
	return nil
}

func (f *fakeIntentsRepo) ListStale(_ context.Context, cutoff time.Time, maxAttempts, limit int) ([]*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SubmissionIntent
	for _, in := range f.byID {
		if in.State != models.IntentCompleted && in.UpdatedAt.Before(cutoff) && in.Attempts < maxAttempts {
			out = append(out, f.copy(in))
		}
	}
	return out[:min(limit, len(out))], nil
}

func (f *fakeIntentsRepo) ListByState(_ context.Context, state models.IntentState, limit int) ([]*models.SubmissionIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SubmissionIntent
	for _, in := range f.byID {
		if in.State == state {
			out = append(out, f.copy(in))
		}
	}
	return out[:min(limit, len(out))], nil
}

func (f *fakeIntentsRepo) CountByState(_ context.Context, state models.IntentState) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, in := range f.byID {
		if in.State == state {
			n++
		}
	}
	return n, nil
}

type fakeExportsRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.Export
	markErr error
}

func (f *fakeExportsRepo) Create(_ context.Context, e *models.Export) (*models.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	cp.ID = nextID("export")
	cp.UploadStatus = models.UploadPending
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeExportsRepo) MarkUploaded(_ context.Context, id string, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	e, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	e.RowCount = rows
	e.UploadStatus = models.UploadCompleted
	return nil
}

func (f *fakeExportsRepo) ByID(_ context.Context, id string) (*models.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExportsRepo) ListRecent(_ context.Context, limit int) ([]*models.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Export
	for _, e := range f.byID {
		cp := *e
		out = append(out, &cp)
	}
	return out[:min(limit, len(out))], nil
}

// --- workspace ---

type createdPage struct {
	DatabaseID string
	Props      workspace.Properties
}

// fakeWorkspace serves pages from memory. Query results are keyed by
// database ID and ignore filters unless filterFn is set.
type fakeWorkspace struct {
	mu sync.Mutex

	results  map[string][]workspace.Page
	pages    map[string]workspace.Page
	dbs      map[string]*workspace.Database
	filterFn func(databaseID string, f *workspace.Filter, pages []workspace.Page) []workspace.Page

	queryErr    map[string]error
	retrieveErr map[string]error
	createErr   func(props workspace.Properties) error

	queries   map[string]int
	retrieves map[string]int
	created   []createdPage
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		results:     map[string][]workspace.Page{},
		pages:       map[string]workspace.Page{},
		dbs:         map[string]*workspace.Database{},
		queryErr:    map[string]error{},
		retrieveErr: map[string]error{},
		queries:     map[string]int{},
		retrieves:   map[string]int{},
	}
}

// addPage registers p under databaseID for Query and by ID for RetrievePage.
func (f *fakeWorkspace) addPage(databaseID string, p workspace.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[databaseID] = append(f.results[databaseID], p)
	f.pages[p.ID] = p
}

func (f *fakeWorkspace) Query(_ context.Context, databaseID string, filter *workspace.Filter, _ []workspace.Sort) ([]workspace.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[databaseID]++
	if err := f.queryErr[databaseID]; err != nil {
		return nil, err
	}
	pages := f.results[databaseID]
	if f.filterFn != nil {
		pages = f.filterFn(databaseID, filter, pages)
	}
	return append([]workspace.Page(nil), pages...), nil
}

func (f *fakeWorkspace) QueryFirst(_ context.Context, databaseID string, n int) ([]workspace.Page, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[databaseID]++
	if err := f.queryErr[databaseID]; err != nil {
		return nil, false, err
	}
	pages := f.results[databaseID]
	return append([]workspace.Page(nil), pages[:min(n, len(pages))]...), len(pages) > n, nil
}

func (f *fakeWorkspace) RetrievePage(_ context.Context, id string) (*workspace.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves[id]++
	if err := f.retrieveErr[id]; err != nil {
		return nil, err
	}
	p, ok := f.pages[id]
	if !ok {
		return nil, &workspace.APIError{Status: 404, Code: "object_not_found", Message: "no page " + id}
	}
	return &p, nil
}

func (f *fakeWorkspace) CreatePage(_ context.Context, databaseID string, props workspace.Properties) (*workspace.Page, error) {
	if f.createErr != nil {
		if err := f.createErr(props); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, createdPage{DatabaseID: databaseID, Props: props})
	return &workspace.Page{ID: nextID("page"), Properties: props}, nil
}

func (f *fakeWorkspace) RetrieveDatabase(_ context.Context, id string) (*workspace.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.dbs[id]
	if !ok {
		return nil, &workspace.APIError{Status: 404, Code: "object_not_found", Message: "no database " + id}
	}
	return db, nil
}

func (f *fakeWorkspace) createdPages() []createdPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createdPage(nil), f.created...)
}

func (f *fakeWorkspace) queryCount(databaseID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[databaseID]
}

// --- page builders, using the default property names ---

func testSchema() *workspace.Schema {
	return workspace.DefaultSchema().WithIDs(map[string]string{
		workspace.Employees: "db-emp",
		workspace.Projects:  "db-proj",
		workspace.Tasks:     "db-task",
		workspace.Timesheet: "db-ts",
	})
}

// prop is the remote property name of a logical field in testSchema.
func prop(db, field string) string {
	f, _ := testSchema().Field(db, field)
	return f.Property
}

func titled(s string) workspace.PropertyValue {
	return workspace.PropertyValue{Type: workspace.TypeTitle, Title: []workspace.RichText{{PlainText: s}}}
}

func relation(ids ...string) workspace.PropertyValue {
	v := workspace.RelationValue(ids...)
	v.Type = workspace.TypeRelation
	return v
}

func employeePage(id, name, email string) workspace.Page {
	e := email
	return workspace.Page{ID: id, Properties: workspace.Properties{
		prop(workspace.Employees, workspace.FieldName):  titled(name),
		prop(workspace.Employees, workspace.FieldEmail): {Type: workspace.TypeEmail, Email: &e},
	}}
}

func projectPage(id, name string) workspace.Page {
	return workspace.Page{ID: id, Properties: workspace.Properties{
		prop(workspace.Projects, workspace.FieldName): titled(name),
	}}
}

func taskPage(id, name string, projectIDs ...string) workspace.Page {
	return workspace.Page{ID: id, Properties: workspace.Properties{
		prop(workspace.Tasks, workspace.FieldName):     titled(name),
		prop(workspace.Tasks, workspace.FieldProjects): relation(projectIDs...),
	}}
}

func entryPage(id, date string, hours float64, projectIDs, taskIDs, employeeIDs []string) workspace.Page {
	h := hours
	return workspace.Page{ID: id, Properties: workspace.Properties{
		prop(workspace.Timesheet, workspace.FieldProjects): relation(projectIDs...),
		prop(workspace.Timesheet, workspace.FieldTasks):    relation(taskIDs...),
		prop(workspace.Timesheet, workspace.FieldEmployee): relation(employeeIDs...),
		prop(workspace.Timesheet, workspace.FieldDate):     {Type: workspace.TypeDate, Date: &workspace.DateValue{Start: date}},
		prop(workspace.Timesheet, workspace.FieldHours):    {Type: workspace.TypeNumber, Number: &h},
		prop(workspace.Timesheet, workspace.FieldNotes):    titled("n-" + id),
	}}
}
