package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fortuneofweb3/blabz/api_curation/internal/curation"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage tracked projects",
	}
	cmd.AddCommand(newProjectAddCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				projects, err := a.service.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), projects)
			})
		},
	})
	return cmd
}

func newProjectAddCmd() *cobra.Command {
	var req curation.RegisterProjectRequest
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register or replace a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return withApp(func(ctx context.Context, a *app) error {
				project, err := a.service.RegisterProject(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), project)
			})
		},
	}
	cmd.Flags().StringSliceVar(&req.Keywords, "keyword", nil, "match keyword (repeatable)")
	cmd.Flags().StringVar(&req.Handle, "handle", "", "project's X handle")
	cmd.Flags().StringVar(&req.Description, "description", "", "short description")
	cmd.Flags().StringVar(&req.Website, "website", "", "project website")
	cmd.Flags().BoolVar(&req.Verified, "verified", false, "mark the project verified")
	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage tracked accounts",
	}

	var req curation.RegisterAccountRequest
	add := &cobra.Command{
		Use:   "add <handle>",
		Short: "Track an account ahead of its first ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Handle = args[0]
			return withApp(func(ctx context.Context, a *app) error {
				account, err := a.service.RegisterAccount(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), account)
			})
		},
	}
	add.Flags().StringVar(&req.UpstreamID, "upstream-id", "", "numeric X user id")
	add.Flags().StringVar(&req.DisplayName, "name", "", "display name")

	purge := &cobra.Command{
		Use:   "purge <handle>",
		Short: "Delete an account and its curated posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.service.PurgeAccount(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, purge)
	return cmd
}
