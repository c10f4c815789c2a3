package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fortuneofweb3/blabz/api_curation/internal/curation"
	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

func newIngestCmd() *cobra.Command {
	var (
		window     string
		maxResults int
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <handle>",
		Short: "Run one ingestion for an account and print the grouped result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := curation.IngestOptions{MaxResults: maxResults, Force: force}
			if window != "" {
				w, err := models.ParseWindow(window)
				if err != nil {
					return err
				}
				opts.Window = w.Duration
			}
			return withApp(func(ctx context.Context, a *app) error {
				result, err := a.service.IngestAndCurate(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&window, "window", "", "lookback window, e.g. 24h or 7d (default from CURATION_WINDOW)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "timeline page size")
	cmd.Flags().BoolVar(&force, "force", false, "ignore a cached result of an identical run")
	return cmd
}
