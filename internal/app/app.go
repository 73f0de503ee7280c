// Package app 按配置组装账本、网关、落盘位置与编排服务，供 server 与 fileopsctl 共用。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"fileops/internal/api"
	"fileops/internal/config"
	"fileops/internal/database"
	"fileops/internal/gateway"
	"fileops/internal/health"
	"fileops/internal/ledger"
	"fileops/internal/logging"
	"fileops/internal/migrations"
	"fileops/internal/repository/sqlstore"
	"fileops/internal/service"
	"fileops/internal/storage"
	"fileops/internal/storage/local"
	"fileops/internal/storage/s3"

	"github.com/spf13/afero"
)

// App 持有进程级依赖，Close 释放连接池。
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *database.DB
	Ledger  *ledger.Ledger
	Gateway *gateway.Client
	Files   *service.FileService
	Health  *health.Checker

	fs afero.Fs
}

// Options 用于替换默认依赖，主要供测试使用。
type Options struct {
	Fs         afero.Fs
	HTTPClient *http.Client
	Sink       storage.Writer
}

// New 组装所有组件。账本连接失败不会阻止启动：连接池保持惰性，之后的调用自行重试。
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	logger = logging.OrDefault(logger)
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	a := &App{Config: cfg, Logger: logger, fs: fs}

	db, err := openLedgerDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	var store *sqlstore.Store
	if db != nil {
		store = sqlstore.New(db)
	}
	a.Ledger = newLedger(store, cfg, logger)

	gwOpts := []gateway.Option{gateway.WithFs(fs), gateway.WithLogger(logger.With("component", "gateway"))}
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(opts.HTTPClient))
	}
	gw, err := gateway.New(gateway.Config{
		BaseURL:          cfg.GatewayURL,
		ProbeTimeout:     cfg.GatewayProbeTimeout,
		NegotiateTimeout: cfg.GatewayNegotiateTimeout,
		TransferTimeout:  cfg.GatewayTransferTimeout,
		BufferUploads:    cfg.GatewayBufferUploads,
		MaxDownloadBytes: cfg.MaxDownloadBytes,
	}, gwOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gw

	sink := opts.Sink
	if sink == nil {
		sink, err = newSink(ctx, cfg, fs)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Files = service.NewFileService(a.Ledger, gw, service.Options{
		DefaultUserID:   cfg.DefaultUserID,
		DefaultCategory: cfg.DefaultMediaCategory,
		Fs:              fs,
		Sink:            sink,
		Logger:          logger.With("component", "files"),
	})
	a.Health = health.NewChecker(gw, a.Ledger, logger.With("component", "health"))
	return a, nil
}

func newLedger(store *sqlstore.Store, cfg *config.Config, logger *slog.Logger) *ledger.Ledger {
	logger = logger.With("component", "ledger")
	if store == nil {
		return ledger.New(nil, logger)
	}
	return ledger.New(store, logger, ledger.WithCallTimeout(cfg.LedgerTimeout))
}

func openLedgerDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.Connect(ctx, cfg)
	if err == nil {
		return db, nil
	}
	if cfg.DBDriver != config.DriverPostgres {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	logger.Warn("ledger database unreachable at startup, operations run untracked until it recovers", "error", err)
	return database.PostgresPool(cfg.PostgresDSN(), cfg.DBMaxOpenConns)
}

func newSink(ctx context.Context, cfg *config.Config, fs afero.Fs) (storage.Writer, error) {
	switch cfg.DownloadSink {
	case config.SinkS3:
		w, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 download sink: %w", err)
		}
		return w, nil
	default:
		if err := fs.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure download dir: %w", err)
		}
		return local.NewWriter(fs, cfg.DownloadDir), nil
	}
}

// Handler 返回管理 API 的路由。
func (a *App) Handler() http.Handler {
	h := api.NewHandler(a.Files, a.Ledger, a.Health, api.HandlerOptions{
		Fs:             a.fs,
		UploadDir:      a.Config.UploadTempDir,
		MaxUploadBytes: a.Config.MaxUploadBytes,
		Logger:         a.Logger.With("component", "api"),
	})
	return api.NewRouter(a.Config, h)
}

// SelfTest 启动时执行一次健康检查并记录结果，不影响启动。
func (a *App) SelfTest(ctx context.Context) health.Report {
	report := a.Health.Check(ctx)
	attrs := []any{
		"remote_url", a.Gateway.BaseURL(),
		"remote_status", report.RemoteStatus,
		"ledger_status", report.LedgerStatus,
	}
	if report.OverallHealthy {
		a.Logger.Info("startup self-test passed", attrs...)
	} else {
		a.Logger.Warn("startup self-test degraded", append(attrs, "remote_error", report.RemoteError, "ledger_error", report.LedgerError)...)
	}
	return report
}

// Close 关闭账本连接池。
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Migrate 显式执行账本迁移，未配置账本时报错。
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.DB == nil {
		return nil, errors.New("ledger is not configured (DB_DRIVER=none)")
	}
	return migrations.Apply(ctx, a.DB)
}
