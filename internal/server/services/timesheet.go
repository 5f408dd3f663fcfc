package services

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/cryptox"
	"github.com/dmitrijs2005/timesheet/internal/dbx"
	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/access"
	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
	"golang.org/x/sync/errgroup"
)

const (
	maxHoursPerTask = 24
	reconcileBatch  = 100
)

// SubmissionError reports the stage a submission failed in. Index and Total
// are set for remote write failures (Index is 1-based).
type SubmissionError struct {
	Stage models.Stage
	Index int
	Total int
	Err   error
}

func (e *SubmissionError) Error() string {
	if e.Stage == models.StageWritingRemote && e.Total > 0 {
		return fmt.Sprintf("%s (%d of %d): %v", e.Stage, e.Index, e.Total, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ReconcileReport summarizes one reconciliation sweep. Skipped counts
// intents another worker claimed first.
type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// TimesheetService reads raw timesheet pages and writes submissions to both
// the workspace and the relational store. Each submission is recorded as an
// intent before any remote write so a partial failure can be resumed.
type TimesheetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	client      WorkspaceClient
	codec       *workspace.Codec
	reference   *ReferenceService
	concurrency int
	staleAfter  time.Duration
	maxAttempts int
	log         logging.Logger
	now         func() time.Time
}

func NewTimesheetService(db *sql.DB, m repomanager.RepositoryManager, client WorkspaceClient, codec *workspace.Codec,
	reference *ReferenceService, cfg *config.Config, log logging.Logger) *TimesheetService {
	return &TimesheetService{
		db:          db,
		repomanager: m,
		client:      client,
		codec:       codec,
		reference:   reference,
		concurrency: max(cfg.WorkspaceConcurrency, 1),
		staleAfter:  cfg.ReconcileStaleAfter,
		maxAttempts: max(cfg.ReconcileMaxAttempts, 1),
		log:         log.With("module", "timesheet"),
		now:         time.Now,
	}
}

// ListEntries returns every dated timesheet page with its relations
// resolved to names, newest first. Lookup failures degrade to placeholder
// names; only the base query can fail.
func (s *TimesheetService) ListEntries(ctx context.Context) ([]models.WorkspaceEntry, error) {
	pages, err := s.client.Query(ctx, s.codec.Schema().ID(workspace.Timesheet),
		s.codec.EntryDateNotEmpty(), s.codec.EntryDateSort(workspace.Descending))
	if err != nil {
		return nil, fmt.Errorf("error querying timesheet: %w", err)
	}

	raws := make([]workspace.RawEntry, 0, len(pages))
	for _, p := range pages {
		raw, err := s.codec.Entry(p)
		if err != nil {
			s.log.Warn(ctx, "skipping undecodable timesheet page", "page_id", p.ID, "error", err)
			continue
		}
		raws = append(raws, raw)
	}

	names := newNameResolver(s.client, s.codec, s.log, s.concurrency)
	entries := make([]models.WorkspaceEntry, len(raws))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, raw := range raws {
		g.Go(func() error {
			e := models.WorkspaceEntry{
				ID:          raw.ID,
				Date:        raw.Date,
				HoursWorked: raw.Hours,
				Notes:       raw.Notes,
				CreatedTime: raw.CreatedTime,
			}
			e.ProjectIDs, e.ProjectNames = names.relation(ctx, workspace.Projects, raw.ProjectIDs)
			e.TaskIDs, e.TaskNames = names.relation(ctx, workspace.Tasks, raw.TaskIDs)
			e.EmployeeIDs, e.EmployeeNames = names.relation(ctx, workspace.Employees, raw.EmployeeIDs)
			entries[i] = e
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(entries, func(a, b models.WorkspaceEntry) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return b.CreatedTime.Compare(a.CreatedTime)
	})
	return entries, nil
}

// UserEntries returns the user's local time entries, newest first.
func (s *TimesheetService) UserEntries(ctx context.Context, userID string) ([]*models.TimeEntry, error) {
	entries, err := s.repomanager.TimeEntries(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing time entries: %w", err)
	}
	return entries, nil
}

// Intents lists submission intents in the given state, newest first.
func (s *TimesheetService) Intents(ctx context.Context, state models.IntentState, limit int) ([]*models.SubmissionIntent, error) {
	if state != models.IntentPending && state != models.IntentCompleted && state != models.IntentFailed {
		return nil, fmt.Errorf("%w: unknown intent state %q", common.ErrValidation, state)
	}
	if limit <= 0 || limit > reconcileBatch {
		limit = reconcileBatch
	}
	return s.repomanager.Intents(s.db).ListByState(ctx, state, limit)
}

// SubmitEntry validates sub, writes one workspace page per task and then the
// local time entry. An identical resubmission returns the entry created the
// first time. Failures after validation are returned as *SubmissionError and
// leave the intent failed for Reconcile to resume.
func (s *TimesheetService) SubmitEntry(ctx context.Context, p *access.Principal, sub models.Submission) (*models.TimeEntry, error) {
	if p.UserID() == "" {
		return nil, common.ErrorUnauthorized
	}

	sub = normalizeSubmission(sub)
	if err := validateSubmission(sub); err != nil {
		return nil, &SubmissionError{Stage: models.StageValidating, Err: err}
	}

	employee, err := s.reference.EmployeeByEmail(ctx, p.Email)
	if err != nil {
		return nil, &SubmissionError{Stage: models.StageValidating, Err: err}
	}
	if sub.EmployeeID != "" && sub.EmployeeID != employee.ID {
		return nil, &SubmissionError{Stage: models.StageValidating,
			Err: fmt.Errorf("%w: employee id does not match the signed-in user", common.ErrValidation)}
	}
	sub.EmployeeID = employee.ID

	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("error encoding submission: %w", err)
	}
	fingerprint := cryptox.Fingerprint([]byte(p.UserID()), payload)

	intent, err := s.openIntent(ctx, &models.SubmissionIntent{
		UserID:        p.UserID(),
		Fingerprint:   fingerprint,
		Stage:         models.StageValidating,
		Payload:       payload,
		EmployeeID:    employee.ID,
		RemotePageIDs: make([]string, len(sub.TaskIDs)),
	})
	if err != nil {
		return nil, err
	}

	if intent.State == models.IntentCompleted {
		s.log.Info(ctx, "duplicate submission", "intent_id", intent.ID, "user_id", intent.UserID)
		return s.completedEntry(ctx, intent)
	}
	return s.run(ctx, intent)
}

// openIntent returns the intent to work on: a new pending one, a completed
// one for a duplicate, or a failed or stale one claimed for resumption.
func (s *TimesheetService) openIntent(ctx context.Context, fresh *models.SubmissionIntent) (*models.SubmissionIntent, error) {
	repo := s.repomanager.Intents(s.db)

	existing, err := repo.ByFingerprint(ctx, fresh.Fingerprint)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		created, err := repo.Create(ctx, fresh)
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrSubmissionInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("error creating intent: %w", err)
		}
		return created, nil
	case err != nil:
		return nil, fmt.Errorf("error searching intent: %w", err)
	}

	if existing.State == models.IntentCompleted {
		return existing, nil
	}

	cutoff := s.now().Add(-s.staleAfter)
	if existing.State == models.IntentPending && existing.UpdatedAt.After(cutoff) {
		return nil, common.ErrSubmissionInProgress
	}
	claimed, err := repo.Claim(ctx, existing.ID, cutoff)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrSubmissionInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("error claiming intent: %w", err)
	}
	return claimed, nil
}

func (s *TimesheetService) completedEntry(ctx context.Context, intent *models.SubmissionIntent) (*models.TimeEntry, error) {
	if intent.TimeEntryID == nil {
		return nil, fmt.Errorf("intent %s is completed without a time entry: %w", intent.ID, common.ErrorInternal)
	}
	entry, err := s.repomanager.TimeEntries(s.db).ByID(ctx, *intent.TimeEntryID)
	if err != nil {
		return nil, fmt.Errorf("error loading time entry: %w", err)
	}
	return entry, nil
}

// run performs the remaining steps of a claimed or new intent.
func (s *TimesheetService) run(ctx context.Context, intent *models.SubmissionIntent) (*models.TimeEntry, error) {
	sub, err := intent.Submission()
	if err != nil {
		return nil, s.fail(ctx, intent, models.StageValidating, fmt.Errorf("error decoding payload: %w", err))
	}
	if len(intent.RemotePageIDs) != len(sub.TaskIDs) {
		ids := make([]string, len(sub.TaskIDs))
		copy(ids, intent.RemotePageIDs)
		intent.RemotePageIDs = ids
	}

	if err := s.writeRemote(ctx, intent, sub); err != nil {
		return nil, s.fail(ctx, intent, models.StageWritingRemote, err)
	}

	entry, err := s.writeLocal(ctx, intent, sub)
	if err != nil {
		return nil, s.fail(ctx, intent, models.StageWritingLocal, err)
	}

	s.log.Info(ctx, "submission stored",
		"intent_id", intent.ID, "user_id", intent.UserID, "time_entry_id", entry.ID, "tasks", len(sub.TaskIDs))
	return entry, nil
}

// writeRemote creates a workspace page for every task whose page is not yet
// recorded on the intent. Each page ID is persisted as soon as it exists.
func (s *TimesheetService) writeRemote(ctx context.Context, intent *models.SubmissionIntent, sub models.Submission) error {
	pending := intent.PendingWrites()
	if len(pending) == 0 {
		return nil
	}

	repo := s.repomanager.Intents(s.db)
	databaseID := s.codec.Schema().ID(workspace.Timesheet)
	total := len(sub.TaskIDs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, i := range pending {
		g.Go(func() error {
			page, err := s.client.CreatePage(gctx, databaseID, s.codec.EntryProperties(workspace.NewEntry{
				ProjectIDs: sub.ProjectIDs,
				TaskID:     sub.TaskIDs[i],
				EmployeeID: sub.EmployeeID,
				Date:       sub.Date,
				Hours:      sub.HoursWorked[i],
				Notes:      sub.Descriptions[i],
			}))
			if err != nil {
				return &SubmissionError{Stage: models.StageWritingRemote, Index: i + 1, Total: total, Err: err}
			}

			// the page exists now; record it even if a sibling failed
			if err := repo.SetRemotePage(context.WithoutCancel(ctx), intent.ID, i, page.ID); err != nil {
				return &SubmissionError{Stage: models.StageWritingRemote, Index: i + 1, Total: total,
					Err: fmt.Errorf("error recording page %s: %w", page.ID, err)}
			}
			intent.RemotePageIDs[i] = page.ID
			s.log.Debug(ctx, "workspace page created", "intent_id", intent.ID, "index", i+1, "total", total, "page_id", page.ID)
			return nil
		})
	}
	return g.Wait()
}

// writeLocal inserts the time entry and completes the intent in one
// transaction.
func (s *TimesheetService) writeLocal(ctx context.Context, intent *models.SubmissionIntent, sub models.Submission) (*models.TimeEntry, error) {
	date, err := time.Parse(time.DateOnly, sub.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", common.ErrValidation, sub.Date)
	}

	names := newNameResolver(s.client, s.codec, s.log, s.concurrency)
	var projectNames, taskNames []string
	var g errgroup.Group
	g.Go(func() error { projectNames = names.names(ctx, workspace.Projects, sub.ProjectIDs); return nil })
	g.Go(func() error { taskNames = names.names(ctx, workspace.Tasks, sub.TaskIDs); return nil })
	_ = g.Wait()

	entry := &models.TimeEntry{
		UserID:            intent.UserID,
		Date:              date,
		ProjectIDs:        sub.ProjectIDs,
		ProjectNames:      projectNames,
		TaskIDs:           sub.TaskIDs,
		TaskNames:         taskNames,
		HoursWorked:       sub.HoursWorked,
		Descriptions:      sub.Descriptions,
		WorkspaceEntryIDs: intent.RemotePageIDs,
		SubmissionID:      &intent.ID,
	}

	var created *models.TimeEntry
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		created, err = s.repomanager.TimeEntries(tx).Create(ctx, entry)
		if err != nil {
			return fmt.Errorf("error creating time entry: %w", err)
		}
		if err := s.repomanager.Intents(tx).MarkCompleted(ctx, intent.ID, created.ID); err != nil {
			return fmt.Errorf("error completing intent: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// fail records the failure on the intent and returns it as *SubmissionError.
func (s *TimesheetService) fail(ctx context.Context, intent *models.SubmissionIntent, stage models.Stage, err error) error {
	var se *SubmissionError
	if !errors.As(err, &se) {
		se = &SubmissionError{Stage: stage, Err: err}
	}

	if mErr := s.repomanager.Intents(s.db).MarkFailed(context.WithoutCancel(ctx), intent.ID, se.Stage, se.Error()); mErr != nil {
		s.log.Error(ctx, "failed to mark intent failed", "intent_id", intent.ID, "error", mErr)
	}
	s.log.Warn(ctx, "submission failed", "intent_id", intent.ID, "stage", se.Stage, "error", se.Err)
	return se
}

// Reconcile resumes failed and pending intents untouched for olderThan.
// Intents that used up their attempts stay failed until an operator
// resolves them. Pages already recorded on an intent are not created again.
func (s *TimesheetService) Reconcile(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error) {
	if olderThan <= 0 {
		olderThan = s.staleAfter
	}
	cutoff := s.now().Add(-olderThan)
	repo := s.repomanager.Intents(s.db)

	stale, err := repo.ListStale(ctx, cutoff, s.maxAttempts, reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("error listing stale intents: %w", err)
	}

	report := &ReconcileReport{}
	for _, it := range stale {
		report.Scanned++
		claimed, err := repo.Claim(ctx, it.ID, cutoff)
		if errors.Is(err, common.ErrorNotFound) {
			report.Skipped++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("error claiming intent: %w", err)
		}
		if _, err := s.run(ctx, claimed); err != nil {
			report.Failed++
			continue
		}
		report.Completed++
	}

	if report.Scanned > 0 {
		s.log.Info(ctx, "reconcile finished",
			"scanned", report.Scanned, "completed", report.Completed, "failed", report.Failed, "skipped", report.Skipped)
	}
	return report, nil
}

func normalizeSubmission(sub models.Submission) models.Submission {
	sub.ProjectIDs = compact(sub.ProjectIDs)
	sub.Date = strings.TrimSpace(sub.Date)
	sub.EmployeeID = strings.TrimSpace(sub.EmployeeID)
	taskIDs := make([]string, len(sub.TaskIDs))
	for i, id := range sub.TaskIDs {
		taskIDs[i] = strings.TrimSpace(id)
	}
	sub.TaskIDs = taskIDs
	descriptions := make([]string, len(sub.Descriptions))
	for i, d := range sub.Descriptions {
		descriptions[i] = strings.TrimSpace(d)
	}
	sub.Descriptions = descriptions
	return sub
}

func validateSubmission(sub models.Submission) error {
	var errs []error
	if len(sub.ProjectIDs) == 0 {
		errs = append(errs, errors.New("at least one project is required"))
	}
	if len(sub.TaskIDs) == 0 {
		errs = append(errs, errors.New("at least one task is required"))
	}
	if len(sub.TaskIDs) != len(sub.HoursWorked) || len(sub.TaskIDs) != len(sub.Descriptions) {
		errs = append(errs, fmt.Errorf("taskIds, hoursWorked and descriptions lengths differ (%d, %d, %d)",
			len(sub.TaskIDs), len(sub.HoursWorked), len(sub.Descriptions)))
	}
	if slices.Contains(sub.TaskIDs, "") {
		errs = append(errs, errors.New("task ids must not be empty"))
	}
	if _, err := time.Parse(time.DateOnly, sub.Date); err != nil {
		errs = append(errs, fmt.Errorf("date %q is not YYYY-MM-DD", sub.Date))
	}
	for i, h := range sub.HoursWorked {
		if math.IsNaN(h) || h <= 0 || h > maxHoursPerTask {
			errs = append(errs, fmt.Errorf("hoursWorked[%d] must be in (0, %d]", i, maxHoursPerTask))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrValidation, errors.Join(errs...))
}

