package api

import (
	"net/http"

	"fileops/internal/config"
	opsmiddleware "fileops/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 构建 HTTP 路由，集中注册管理 API 的所有端点。
func NewRouter(cfg *config.Config, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(opsmiddleware.RequestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(opsmiddleware.Metrics())

	// 存活检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(opsmiddleware.APIKeyAuth(cfg.APIKeys))
		}

		r.Get("/health", h.Health)

		r.Route("/operations", func(r chi.Router) {
			r.Get("/", h.ListOperations)
			r.Get("/stats", h.OperationStats)
			r.Get("/{id}", h.GetOperation)
		})

		r.Route("/media", func(r chi.Router) {
			r.Get("/", h.ListMedia)
			r.Get("/categories", h.MediaCategories)
			r.Get("/stats", h.MediaStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(opsmiddleware.TransferLimit(cfg.TransferRateLimit, cfg.TransferRateWindow))
			r.Post("/uploads", h.CreateUpload)
			r.Post("/downloads", h.CreateDownload)
			r.Post("/exports", h.CreateExport)
		})
	})

	return r
}
