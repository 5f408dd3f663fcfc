package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// WorkspaceClient is the subset of *workspace.Client the services use.
type WorkspaceClient interface {
	Query(ctx context.Context, databaseID string, filter *workspace.Filter, sorts []workspace.Sort) ([]workspace.Page, error)
	QueryFirst(ctx context.Context, databaseID string, n int) ([]workspace.Page, bool, error)
	RetrievePage(ctx context.Context, pageID string) (*workspace.Page, error)
	CreatePage(ctx context.Context, databaseID string, props workspace.Properties) (*workspace.Page, error)
	RetrieveDatabase(ctx context.Context, databaseID string) (*workspace.Database, error)
}

// Placeholder names used when a related page cannot be read.
const (
	UnknownProject  = "Unknown Project"
	UnknownTask     = "Unknown Task"
	UnknownEmployee = "Unknown Employee"
	Untitled        = "Untitled"
)

var placeholders = map[string]string{
	workspace.Projects:  UnknownProject,
	workspace.Tasks:     UnknownTask,
	workspace.Employees: UnknownEmployee,
}

// nameResolver turns related page IDs into display names. It lives for one
// call: results are memoized and concurrent lookups of the same page share
// a single request. A failed lookup or an untitled page resolves to the
// placeholder of its database and is never returned as an error.
type nameResolver struct {
	client      WorkspaceClient
	codec       *workspace.Codec
	log         logging.Logger
	concurrency int

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]string
}

func newNameResolver(client WorkspaceClient, codec *workspace.Codec, log logging.Logger, concurrency int) *nameResolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &nameResolver{
		client:      client,
		codec:       codec,
		log:         log,
		concurrency: concurrency,
		memo:        map[string]string{},
	}
}

func (r *nameResolver) name(ctx context.Context, db, id string) string {
	key := db + "/" + id
	r.mu.Lock()
	if n, ok := r.memo[key]; ok {
		r.mu.Unlock()
		return n
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		n, ok := r.memo[key]
		r.mu.Unlock()
		if ok {
			return n, nil
		}

		n = placeholders[db]
		page, err := r.client.RetrievePage(ctx, id)
		if err != nil {
			r.log.Warn(ctx, "related page lookup failed", "database", db, "page_id", id, "error", err)
		} else if title := r.codec.Title(db, *page); title != "" {
			n = title
		}
		r.mu.Lock()
		r.memo[key] = n
		r.mu.Unlock()
		return n, nil
	})
	return v.(string)
}

// names resolves ids in order, looking pages up concurrently.
func (r *nameResolver) names(ctx context.Context, db string, ids []string) []string {
	out := make([]string, len(ids))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = r.name(ctx, db, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// relation resolves a relation list for display. An empty relation yields a
// single unnamed slot carrying the placeholder of db.
func (r *nameResolver) relation(ctx context.Context, db string, ids []string) ([]string, []string) {
	if len(ids) == 0 {
		return []string{""}, []string{placeholders[db]}
	}
	return ids, r.names(ctx, db, ids)
}

// decodeAll decodes every page with decode, failing on the first schema
// mismatch.
func decodeAll[T any](pages []workspace.Page, decode func(workspace.Page) (T, error)) ([]T, error) {
	out := make([]T, 0, len(pages))
	for _, p := range pages {
		v, err := decode(p)
		if err != nil {
			return nil, fmt.Errorf("error decoding page: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
