package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"fileops/internal/app"
	"fileops/internal/cli"
	"fileops/internal/config"
	"fileops/internal/logging"

	"github.com/spf13/afero"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := afero.NewOsFs()
	root := cli.NewRootCommand(cli.Env{
		Fs:  fs,
		Out: os.Stdout,
		Open: func(ctx context.Context) (*app.App, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			// 日志写 stderr，stdout 只留给 JSON 结果
			logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			return app.New(ctx, cfg, logger, app.Options{Fs: fs})
		},
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
