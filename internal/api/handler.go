package api

import (
	"context"
	"log/slog"

	"fileops/internal/health"
	"fileops/internal/logging"
	"fileops/internal/repository"
	"fileops/internal/service"

	"github.com/spf13/afero"
)

// Operations 是文件操作编排层。
type Operations interface {
	Upload(ctx context.Context, req service.UploadRequest) service.UploadResult
	Download(ctx context.Context, req service.DownloadRequest) service.DownloadResult
	Export(ctx context.Context, req service.ExportRequest) service.ExportResult
}

// History 是账本的只读查询，不可用时返回空结果。
type History interface {
	Get(ctx context.Context, id int64) (*repository.Operation, bool)
	List(ctx context.Context, userID string, limit int) []repository.Operation
	Stats(ctx context.Context) repository.Stats
	ListMedia(ctx context.Context, params repository.ListMediaParams) []repository.MediaEntry
	MediaCategories(ctx context.Context) []string
	MediaStats(ctx context.Context) repository.MediaStats
}

// HealthChecker 汇总依赖健康状态。
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Handler 是管理 API 的所有端点。
type Handler struct {
	ops     Operations
	history History
	health  HealthChecker
	fs      afero.Fs
	logger  *slog.Logger

	uploadDir      string
	maxUploadBytes int64
}

// HandlerOptions 是 Handler 的可选配置。
type HandlerOptions struct {
	Fs             afero.Fs
	UploadDir      string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

const defaultListLimit = 20

func NewHandler(ops Operations, history History, checker HealthChecker, opts HandlerOptions) *Handler {
	h := &Handler{
		ops:            ops,
		history:        history,
		health:         checker,
		fs:             opts.Fs,
		logger:         logging.OrDefault(opts.Logger),
		uploadDir:      opts.UploadDir,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if h.fs == nil {
		h.fs = afero.NewOsFs()
	}
	if h.uploadDir == "" {
		h.uploadDir = "uploads"
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 10 << 20
	}
	return h
}
