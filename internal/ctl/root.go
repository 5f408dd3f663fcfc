// Package ctl implements timesheetctl, the operator CLI for the timesheet
// server: schema migrations, provisioning login accounts without the web UI,
// and on-demand outbox reconciliation.
package ctl

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/services"
	"github.com/spf13/cobra"
)

// Backend is the slice of the server the CLI drives.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateUser(ctx context.Context, in services.NewUser) (*models.User, error)
	Reconcile(ctx context.Context, olderThan time.Duration) (*services.ReconcileReport, error)
	Close() error
}

// Opener builds a Backend from the loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config) (Backend, error)

// NewRootCmd returns the timesheetctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "timesheetctl",
		Short:         "Timesheet server administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the server JSON config file")

	withBackend := func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, b Backend) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		b, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return fn(ctx, cfg, b)
	}

	root.AddCommand(migrateCmd(withBackend))
	root.AddCommand(createUserCmd(withBackend))
	root.AddCommand(reconcileCmd(withBackend))
	return root
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, b Backend) error) error
