// Package cli 实现 fileopsctl 运维命令，所有输出为 stdout 上的 JSON。
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"fileops/internal/app"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Opener 按需组装应用依赖，命令结束后由调用方 Close。
type Opener func(ctx context.Context) (*app.App, error)

// Env 是命令运行所需的外部依赖。
type Env struct {
	Open Opener
	Fs   afero.Fs
	Out  io.Writer
}

// ErrFailed 表示命令已输出结果但操作本身失败，用于设置非零退出码。
var ErrFailed = errors.New("operation failed")

// NewRootCommand 返回挂载全部子命令的根命令。
func NewRootCommand(env Env) *cobra.Command {
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}

	cobra.EnableCommandSorting = false
	root := &cobra.Command{
		Use:           "fileopsctl",
		Short:         "Inspect and drive tracked file operations.",
		Long:          `fileopsctl talks to the remote storage service and the operation ledger using the same configuration as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newHealthCmd(env))
	root.AddCommand(newHistoryCmd(env))
	root.AddCommand(newStatsCmd(env))
	root.AddCommand(newMediaCmd(env))
	root.AddCommand(newUploadCmd(env))
	root.AddCommand(newDownloadCmd(env))
	root.AddCommand(newExportCmd(env))
	root.AddCommand(newMigrateCmd(env))
	return root
}

// withApp 打开应用、执行 fn 并释放资源。
func withApp(cmd *cobra.Command, env Env, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := env.Open(ctx)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
