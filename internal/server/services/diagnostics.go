package services

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
	"golang.org/x/sync/errgroup"
)

const checkSampleSize = 5

type PropertyCheck struct {
	Field    string `json:"field"`
	Property string `json:"property"`
	Want     string `json:"want"`
	Got      string `json:"got,omitempty"`
	OK       bool   `json:"ok"`
}

type SamplePage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type DatabaseCheck struct {
	Database   string          `json:"database"`
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	OK         bool            `json:"ok"`
	Error      string          `json:"error,omitempty"`
	Properties []PropertyCheck `json:"properties"`
	HasMore    bool            `json:"hasMore"`
	Samples    []SamplePage    `json:"samples"`
}

// WorkspaceService checks the configured workspace databases against the
// schema mapping.
type WorkspaceService struct {
	client WorkspaceClient
	codec  *workspace.Codec
	log    logging.Logger
}

func NewWorkspaceService(client WorkspaceClient, codec *workspace.Codec, log logging.Logger) *WorkspaceService {
	return &WorkspaceService{client: client, codec: codec, log: log.With("module", "workspace-check")}
}

// Check reports one result per logical database. It never fails as a
// whole; remote errors are carried in each DatabaseCheck.
func (s *WorkspaceService) Check(ctx context.Context) []DatabaseCheck {
	schema := s.codec.Schema()
	names := schema.Names()
	out := make([]DatabaseCheck, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			out[i] = s.checkDatabase(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *WorkspaceService) checkDatabase(ctx context.Context, name string) DatabaseCheck {
	schema := s.codec.Schema()
	c := DatabaseCheck{Database: name, ID: schema.ID(name), Properties: []PropertyCheck{}, Samples: []SamplePage{}}

	db, err := s.client.RetrieveDatabase(ctx, c.ID)
	if err != nil {
		c.Error = err.Error()
		s.log.Warn(ctx, "workspace database check failed", "database", name, "error", err)
		return c
	}
	c.Name = db.Name()
	c.OK = true

	for _, field := range slices.Sorted(maps.Keys(schema.Databases[name].Fields)) {
		f := schema.Databases[name].Fields[field]
		pc := PropertyCheck{Field: field, Property: f.Property, Want: f.Type}
		if p, ok := db.Properties[f.Property]; ok {
			pc.Got = p.Type
			pc.OK = f.Accepts(p.Type)
		}
		if !pc.OK {
			c.OK = false
		}
		c.Properties = append(c.Properties, pc)
	}

	pages, more, err := s.client.QueryFirst(ctx, c.ID, checkSampleSize)
	if err != nil {
		c.OK = false
		c.Error = fmt.Sprintf("query: %v", err)
		return c
	}
	c.HasMore = more
	for _, p := range pages {
		c.Samples = append(c.Samples, SamplePage{ID: p.ID, Title: s.codec.Title(name, p)})
	}
	return c
}
