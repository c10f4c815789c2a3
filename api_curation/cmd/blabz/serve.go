package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortuneofweb3/blabz/api_curation/internal/handlers"
	"github.com/fortuneofweb3/blabz/api_curation/internal/jobs"
	"github.com/fortuneofweb3/blabz/pkg/config"
	"github.com/fortuneofweb3/blabz/pkg/middleware"
	"github.com/fortuneofweb3/blabz/pkg/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the marker sweep job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	sweeper := jobs.NewMarkerSweepJob(jobs.MarkerSweepConfig{
		Sweeper:   a.store,
		Logger:    a.logger,
		Interval:  config.GetEnvDuration("MARKER_SWEEP_INTERVAL", time.Hour),
		Retention: a.markerRetention,
	})
	sweeper.Start()
	defer sweeper.Stop()

	serverCfg := server.DefaultConfig(serviceName, "18080")
	router := server.SetupServiceRouter(a.logger, serverCfg, a.healthChecker(), a.metrics)

	apiMetrics := &handlers.APIMetrics{
		Requests: a.metrics.NewCounter("api_requests_total", "Curation API requests by route and status", []string{"route", "status"}),
	}
	bounded := router.Group("", middleware.DeadlineMiddleware(config.GetEnvDuration("REQUEST_TIMEOUT", 15*time.Minute)))
	handlers.NewCurationHandler(a.service, a.logger, apiMetrics).Register(bounded)

	return server.Run(ctx, serverCfg, router, a.logger)
}
