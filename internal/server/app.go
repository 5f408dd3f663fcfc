// Package server initializes and runs the timesheet application server.
// It opens the relational store and applies migrations, builds the
// workspace client from the configured schema mapping, wires the services
// into the HTTP API, runs the periodic outbox reconciler and handles
// graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server/api"
	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
)

// Reconciler sweeps stale submission intents.
type Reconciler interface {
	Reconcile(ctx context.Context, olderThan time.Duration) (*services.ReconcileReport, error)
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	api        *api.Server
	reconciler Reconciler
}

// BuildSchema resolves the workspace mapping: the YAML file when configured,
// otherwise the built-in defaults, with database IDs from configuration.
func BuildSchema(c *config.Config) (*workspace.Schema, error) {
	schema := workspace.DefaultSchema()
	if c.WorkspaceSchemaFile != "" {
		s, err := workspace.LoadSchema(c.WorkspaceSchemaFile)
		if err != nil {
			return nil, err
		}
		schema = s
	}
	schema = schema.WithIDs(map[string]string{
		workspace.Employees: c.NotionEmployeesDB,
		workspace.Projects:  c.NotionProjectsDB,
		workspace.Tasks:     c.NotionTasksDB,
		workspace.Timesheet: c.NotionTimesheetDB,
	})
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("workspace schema: %w", err)
	}
	return schema, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	schema, err := BuildSchema(c)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	client := workspace.NewClient(ctx, workspace.Options{
		APIKey:        c.NotionAPIKey,
		BaseURL:       c.NotionBaseURL,
		Version:       c.NotionVersion,
		RatePerSecond: c.WorkspaceRatePerSecond,
		Timeout:       c.WorkspaceTimeout,
	})
	codec := workspace.NewCodec(schema)

	identity := services.NewIdentityService(db, rm, c)
	reference := services.NewReferenceService(client, codec, logger)
	timesheet := services.NewTimesheetService(db, rm, client, codec, reference, c, logger)

	deps := api.Deps{
		Identity:     identity,
		Users:        services.NewUserService(db, rm),
		Timesheets:   timesheet,
		References:   reference,
		Provisioning: services.NewProvisioningService(db, rm, identity, client, codec, logger),
		Dashboards:   services.NewDashboardService(db, rm),
		Exports:      services.NewExportService(db, rm, c, logger),
		Diagnostics:  services.NewWorkspaceService(client, codec, logger),
	}
	srv := api.NewServer(c.EndpointAddrHTTP, logger, deps, api.Options{
		CookieSecure:        c.CookieSecure,
		AccessTTL:           c.AccessTokenValidityDuration,
		RefreshTTL:          c.RefreshTokenValidityDuration,
		ReconcileStaleAfter: c.ReconcileStaleAfter,
	})

	return &App{config: c, logger: logger, db: db, api: srv, reconciler: timesheet}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.api.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runReconciler sweeps stale intents every interval until ctx is done.
// A zero interval disables the loop.
func runReconciler(ctx context.Context, r Reconciler, interval, staleAfter time.Duration, l logging.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Reconcile(ctx, staleAfter); err != nil && ctx.Err() == nil {
				l.Error(ctx, "reconcile failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "address", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReconciler(ctx, app.reconciler, app.config.ReconcileInterval, app.config.ReconcileStaleAfter,
			app.logger.With("module", "reconciler"))
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
