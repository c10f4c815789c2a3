package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fortuneofweb3/blabz/api_curation/internal/jobs"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete processed markers older than MARKER_RETENTION",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				job := jobs.NewMarkerSweepJob(jobs.MarkerSweepConfig{
					Sweeper:   a.store,
					Logger:    a.logger,
					Retention: a.markerRetention,
				})
				n, err := job.SweepOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d markers\n", n)
				return nil
			})
		},
	}
}
