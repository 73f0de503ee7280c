package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fileops/internal/app"
	"fileops/internal/config"
	"fileops/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("配置加载失败", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("配置加载完成，开始启动服务", "db_driver", cfg.DBDriver, "download_sink", cfg.DownloadSink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureDir(cfg.UploadTempDir); err != nil {
		logger.Error("上传暂存目录不可用", "path", cfg.UploadTempDir, "error", err)
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("初始化失败", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// 启动自检只记录结果，不阻止启动
	application.SelfTest(ctx)

	// 写超时需要覆盖同步等待远端传输的最长时间
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.GatewayNegotiateTimeout + cfg.GatewayTransferTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		Handler:           application.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务监听端口", "addr", srv.Addr, "remote", cfg.GatewayURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("监听失败", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("优雅关闭失败", "error", err)
	}

	logger.Info("服务已停止")
}
