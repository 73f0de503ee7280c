package api

import (
	"net/http"
	"strconv"
	"strings"

	"fileops/internal/repository"

	"github.com/go-chi/chi/v5"
)

// ListOperations 返回最近的操作记录，可按 user_id 过滤。
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ops := h.history.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"operations": ops,
		"count":      len(ops),
	})
}

// GetOperation 返回单条操作记录。
func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "operation id must be a positive integer")
		return
	}

	op, ok := h.history.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "operation": op})
}

func (h *Handler) OperationStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": h.history.Stats(r.Context())})
}

// ListMedia 支持 category 与 type 过滤。
func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.ListMediaParams{
		Category: strings.TrimSpace(q.Get("category")),
		Type:     repository.MediaType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
	}
	switch params.Type {
	case "", repository.MediaImage, repository.MediaVideo, repository.MediaDocument:
	default:
		writeError(w, http.StatusBadRequest, "type must be one of image, video, document")
		return
	}

	media := h.history.ListMedia(r.Context(), params)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "media": media, "count": len(media)})
}

func (h *Handler) MediaCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "categories": h.history.MediaCategories(r.Context())})
}

func (h *Handler) MediaStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": h.history.MediaStats(r.Context())})
}

// Health 汇总远端与账本状态，不健康时返回 503。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if !report.OverallHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
