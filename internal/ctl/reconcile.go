package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/spf13/cobra"
)

func reconcileCmd(run runner) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve submissions left pending by a crash",
		Long: `Sweeps submission intents that have been pending longer than --older-than.
Each one is either completed (the workspace page exists and the local entry
is written) or marked failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, cfg *config.Config, b Backend) error {
				age := olderThan
				if age <= 0 {
					age = cfg.ReconcileStaleAfter
				}
				report, err := b.Reconcile(ctx, age)
				if err != nil {
					return fmt.Errorf("reconcile: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, completed %d, failed %d, skipped %d\n",
					report.Scanned, report.Completed, report.Failed, report.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only intents pending at least this long (default: server setting)")
	return cmd
}
