package ctl

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/logging"
	"github.com/dmitrijs2005/timesheet/internal/server"
	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
	"github.com/dmitrijs2005/timesheet/internal/server/workspace"
)

type dbBackend struct {
	cfg *config.Config
	db  *sql.DB
	rm  *repomanager.PostgresRepositoryManager
	log logging.Logger
}

// OpenDatabase is the production Opener: it connects to the configured
// PostgreSQL database. Workspace access is only set up by commands that
// need it.
func OpenDatabase(ctx context.Context, cfg *config.Config) (Backend, error) {
	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return &dbBackend{
		cfg: cfg,
		db:  db,
		rm:  repomanager.NewPostgresRepositoryManager(),
		log: logging.NewJSON(os.Stderr, cfg.LogLevel).With("module", "timesheetctl"),
	}, nil
}

func (b *dbBackend) Migrate(ctx context.Context) error {
	return b.rm.RunMigrations(ctx, b.db)
}

func (b *dbBackend) CreateUser(ctx context.Context, in services.NewUser) (*models.User, error) {
	identity := services.NewIdentityService(b.db, b.rm, b.cfg)
	p := services.NewProvisioningService(b.db, b.rm, identity, nil, nil, b.log)
	return p.CreateUser(ctx, nil, in)
}

func (b *dbBackend) Reconcile(ctx context.Context, olderThan time.Duration) (*services.ReconcileReport, error) {
	schema, err := server.BuildSchema(b.cfg)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	client := workspace.NewClient(ctx, workspace.Options{
		APIKey:        b.cfg.NotionAPIKey,
		BaseURL:       b.cfg.NotionBaseURL,
		Version:       b.cfg.NotionVersion,
		RatePerSecond: b.cfg.WorkspaceRatePerSecond,
		Timeout:       b.cfg.WorkspaceTimeout,
	})
	codec := workspace.NewCodec(schema)
	reference := services.NewReferenceService(client, codec, b.log)
	ts := services.NewTimesheetService(b.db, b.rm, client, codec, reference, b.cfg, b.log)
	return ts.Reconcile(ctx, olderThan)
}

func (b *dbBackend) Close() error {
	return b.db.Close()
}
