package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

const recentDays = 7

type DailyHours struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

type UserDashboard struct {
	MonthlyHours float64           `json:"monthlyHours"`
	MonthEntries int               `json:"monthEntries"`
	Projects     []string          `json:"projects"`
	Tasks        []string          `json:"tasks"`
	LastEntry    *models.TimeEntry `json:"lastEntry,omitempty"`
	LastWeek     []DailyHours      `json:"lastWeek"`
}

type AdminDashboard struct {
	Users           int64                   `json:"users"`
	UsersByStatus   map[models.Status]int64 `json:"usersByStatus"`
	PendingIntents  int64                   `json:"pendingIntents"`
	FailedIntents   int64                   `json:"failedIntents"`
	EntriesThisWeek int                     `json:"entriesThisWeek"`
}

// DashboardService aggregates local time entries and account counts.
type DashboardService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewDashboardService(db *sql.DB, m repomanager.RepositoryManager) *DashboardService {
	return &DashboardService{db: db, repomanager: m}
}

// UserDashboard summarizes the user's month containing now and the seven
// days ending on now.
func (s *DashboardService) UserDashboard(ctx context.Context, userID string, now time.Time) (*UserDashboard, error) {
	repo := s.repomanager.TimeEntries(s.db)
	today := truncateDay(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekStart := today.AddDate(0, 0, -(recentDays - 1))

	var month, week, all []*models.TimeEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		month, err = repo.ListRange(gctx, monthStart, monthStart.AddDate(0, 1, 0), userID)
		return err
	})
	g.Go(func() (err error) {
		week, err = repo.ListRange(gctx, weekStart, today.AddDate(0, 0, 1), userID)
		return err
	})
	g.Go(func() (err error) {
		all, err = repo.ListByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("error loading time entries: %w", err)
	}

	d := &UserDashboard{MonthEntries: len(month), Projects: []string{}, Tasks: []string{}}
	for _, e := range month {
		d.MonthlyHours += e.TotalHours()
		d.Projects = appendUnique(d.Projects, e.ProjectNames...)
		d.Tasks = appendUnique(d.Tasks, e.TaskNames...)
	}
	slices.Sort(d.Projects)
	slices.Sort(d.Tasks)
	if len(all) > 0 {
		d.LastEntry = all[0]
	}

	byDay := make(map[string]float64, recentDays)
	for _, e := range week {
		byDay[e.Date.UTC().Format(time.DateOnly)] += e.TotalHours()
	}
	for i := range recentDays {
		day := weekStart.AddDate(0, 0, i).Format(time.DateOnly)
		d.LastWeek = append(d.LastWeek, DailyHours{Date: day, Hours: byDay[day]})
	}
	return d, nil
}

// AdminDashboard reports account counts, outbox health and this week's
// submissions.
func (s *DashboardService) AdminDashboard(ctx context.Context, now time.Time) (*AdminDashboard, error) {
	users := s.repomanager.Users(s.db)
	intents := s.repomanager.Intents(s.db)
	today := truncateDay(now)

	d := &AdminDashboard{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Users, err = users.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.UsersByStatus, err = users.CountByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.PendingIntents, err = intents.CountByState(gctx, models.IntentPending)
		return err
	})
	g.Go(func() (err error) {
		d.FailedIntents, err = intents.CountByState(gctx, models.IntentFailed)
		return err
	})
	g.Go(func() error {
		entries, err := s.repomanager.TimeEntries(s.db).ListRange(gctx, today.AddDate(0, 0, -(recentDays-1)), today.AddDate(0, 0, 1), "")
		d.EntriesThisWeek = len(entries)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("error loading dashboard: %w", err)
	}
	return d, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
