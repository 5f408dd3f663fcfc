package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
	"golang.org/x/sync/errgroup"
)

// ReferenceService loads employees, projects and tasks from the workspace
// database.
type ReferenceService struct {
	client WorkspaceClient
	codec  *workspace.Codec
	log    logging.Logger
}

func NewReferenceService(client WorkspaceClient, codec *workspace.Codec, log logging.Logger) *ReferenceService {
	return &ReferenceService{client: client, codec: codec, log: log.With("module", "reference")}
}

// Employees returns workspace employees, optionally filtered by exact email.
func (s *ReferenceService) Employees(ctx context.Context, email string) ([]models.Employee, error) {
	var filter *workspace.Filter
	if email != "" {
		filter = s.codec.EmployeeEmailFilter(email)
	}
	return s.employees(ctx, filter)
}

func (s *ReferenceService) employees(ctx context.Context, filter *workspace.Filter) ([]models.Employee, error) {
	pages, err := s.client.Query(ctx, s.codec.Schema().ID(workspace.Employees), filter, s.codec.NameSort(workspace.Employees))
	if err != nil {
		return nil, fmt.Errorf("error querying employees: %w", err)
	}
	employees, err := decodeAll(pages, s.codec.Employee)
	if err != nil {
		return nil, err
	}
	for i := range employees {
		if employees[i].Name == "" {
			employees[i].Name = Untitled
		}
	}
	return employees, nil
}

// EmployeeByEmail returns the employee whose email matches case-insensitively,
// or common.ErrNotEmployee.
func (s *ReferenceService) EmployeeByEmail(ctx context.Context, email string) (*models.Employee, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, common.ErrNotEmployee
	}

	// the exact-match filter is cheap; fall back to a full scan for case
	// differences
	for _, filter := range []*workspace.Filter{s.codec.EmployeeEmailFilter(email), nil} {
		employees, err := s.employees(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, e := range employees {
			if strings.EqualFold(strings.TrimSpace(e.Email), email) {
				return &e, nil
			}
		}
	}
	return nil, common.ErrNotEmployee
}

// Projects returns every project sorted by name.
func (s *ReferenceService) Projects(ctx context.Context) ([]models.Project, error) {
	pages, err := s.client.Query(ctx, s.codec.Schema().ID(workspace.Projects), nil, s.codec.NameSort(workspace.Projects))
	if err != nil {
		return nil, fmt.Errorf("error querying projects: %w", err)
	}
	projects, err := decodeAll(pages, s.codec.Project)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].Name == "" {
			projects[i].Name = Untitled
		}
	}
	slices.SortStableFunc(projects, func(a, b models.Project) int { return cmp.Compare(a.Name, b.Name) })
	return projects, nil
}

// Tasks returns the tasks related to any of projectIDs, de-duplicated and
// sorted by name. At least one project ID is required.
func (s *ReferenceService) Tasks(ctx context.Context, projectIDs ...string) ([]models.Task, error) {
	projectIDs = compact(projectIDs)
	if len(projectIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one project id is required", common.ErrValidation)
	}
	return s.tasks(ctx, s.codec.TaskProjectFilter(projectIDs...))
}

func (s *ReferenceService) tasks(ctx context.Context, filter *workspace.Filter) ([]models.Task, error) {
	pages, err := s.client.Query(ctx, s.codec.Schema().ID(workspace.Tasks), filter, s.codec.NameSort(workspace.Tasks))
	if err != nil {
		return nil, fmt.Errorf("error querying tasks: %w", err)
	}
	decoded, err := decodeAll(pages, s.codec.Task)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(decoded))
	tasks := decoded[:0]
	for _, t := range decoded {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if t.Name == "" {
			t.Name = Untitled
		}
		tasks = append(tasks, t)
	}
	slices.SortStableFunc(tasks, func(a, b models.Task) int { return cmp.Compare(a.Name, b.Name) })
	return tasks, nil
}

// SubmissionForm returns what the timesheet form needs for email. A caller
// who is not an employee gets common.ErrNotEmployee before anything else is
// loaded.
func (s *ReferenceService) SubmissionForm(ctx context.Context, email string) (*models.SubmissionForm, error) {
	employee, err := s.EmployeeByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	form := &models.SubmissionForm{Employee: *employee}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		form.Projects, err = s.Projects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		form.Tasks, err = s.tasks(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return form, nil
}

// compact drops empty and repeated IDs, keeping order.
func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
