package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"fileops/internal/app"
	"fileops/internal/service"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newUploadCmd(env Env) *cobra.Command {
	var user, name, category string
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file and record the operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				res := a.Files.Upload(ctx, service.UploadRequest{
					LocalPath: args[0],
					UserID:    user,
					FileName:  name,
					Category:  category,
				})
				return report(env, res, res.Success)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "owner id (defaults to DEFAULT_USER_ID)")
	cmd.Flags().StringVar(&name, "name", "", "remote file name (defaults to the base name)")
	cmd.Flags().StringVar(&category, "category", "", "media category (defaults to DEFAULT_MEDIA_CATEGORY)")
	return cmd
}

func newDownloadCmd(env Env) *cobra.Command {
	var dest, user string
	cmd := &cobra.Command{
		Use:   "download <remote-key> <file-name>",
		Short: "Download a remote file into the configured download sink",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				res := a.Files.Download(ctx, service.DownloadRequest{
					RemoteKey:   args[0],
					FileName:    args[1],
					Destination: dest,
					UserID:      user,
				})
				return report(env, res, res.Success)
			})
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "sub-path under the download sink")
	cmd.Flags().StringVar(&user, "user", "", "owner id (defaults to DEFAULT_USER_ID)")
	return cmd
}

func newExportCmd(env Env) *cobra.Command {
	var format, name, user string
	cmd := &cobra.Command{
		Use:   "export <json-file>",
		Short: "Export JSON data through the remote storage service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := afero.ReadFile(env.Fs, args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var data any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				res := a.Files.Export(ctx, service.ExportRequest{
					Data:     data,
					Format:   format,
					FileName: name,
					UserID:   user,
				})
				return report(env, res, res.Success)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "export format (json, csv, xml, txt)")
	cmd.Flags().StringVar(&name, "name", "", "remote file name")
	cmd.Flags().StringVar(&user, "user", "", "owner id (defaults to DEFAULT_USER_ID)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func report(env Env, res any, ok bool) error {
	if err := printJSON(env.Out, res); err != nil {
		return err
	}
	if !ok {
		return ErrFailed
	}
	return nil
}
