package cli

import (
	"context"

	"fileops/internal/app"
	"fileops/internal/repository"

	"github.com/spf13/cobra"
)

func newHealthCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the remote storage service and the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				report := a.Health.Check(ctx)
				if err := printJSON(env.Out, report); err != nil {
					return err
				}
				if !report.OverallHealthy {
					return ErrFailed
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(env Env) *cobra.Command {
	var user string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				return printJSON(env.Out, a.Ledger.List(ctx, user, limit))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only show operations of this user")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")
	return cmd
}

func newStatsCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate operations by type and recent daily activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				return printJSON(env.Out, a.Ledger.Stats(ctx))
			})
		},
	}
}

func newMediaCmd(env Env) *cobra.Command {
	var category, mediaType string
	cmd := &cobra.Command{
		Use:   "media",
		Short: "List the media library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				return printJSON(env.Out, a.Ledger.ListMedia(ctx, repository.ListMediaParams{
					Category: category,
					Type:     repository.MediaType(mediaType),
				}))
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&mediaType, "type", "", "filter by type (image, video, document)")

	cmd.AddCommand(&cobra.Command{
		Use:   "categories",
		Short: "List distinct media categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				return printJSON(env.Out, a.Ledger.MediaCategories(ctx))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count media by type and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				return printJSON(env.Out, a.Ledger.MediaStats(ctx))
			})
		},
	})
	return cmd
}

func newMigrateCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending ledger schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				applied, err := a.Migrate(ctx)
				if err != nil {
					return err
				}
				return printJSON(env.Out, map[string]any{"applied": applied})
			})
		},
	}
}
