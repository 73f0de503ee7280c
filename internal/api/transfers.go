package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"fileops/internal/middleware"
	"fileops/internal/service"

	"github.com/google/uuid"
)

const multipartMemoryBudget int64 = 4 << 20

// statusFor 把结果映射为 HTTP 状态码。
func statusFor(res service.Result, okStatus int) int {
	if res.Success {
		return okStatus
	}
	switch res.ErrorType {
	case service.ErrorValidation:
		return http.StatusBadRequest
	case service.ErrorTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CreateUpload 接收 multipart 上传，暂存到上传目录后交给编排层，结束后删除暂存文件。
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemoryBudget)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer part.Close()
	if header.Size > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
		return
	}

	fileName := strings.TrimSpace(r.FormValue("file_name"))
	if fileName == "" {
		fileName = filepath.Base(header.Filename)
	}

	spooled, err := h.spool(part, fileName)
	if err != nil {
		h.logger.Error("spool upload failed", "error", err, "file_name", fileName)
		writeError(w, http.StatusInternalServerError, "unable to stage uploaded file")
		return
	}
	defer func() {
		if err := h.fs.Remove(spooled); err != nil {
			h.logger.Warn("remove staged upload failed", "path", spooled, "error", err)
		}
	}()

	res := h.ops.Upload(r.Context(), service.UploadRequest{
		LocalPath: spooled,
		UserID:    r.FormValue("user_id"),
		FileName:  fileName,
		Category:  r.FormValue("category"),
	})
	h.logger.Info("upload request handled",
		"caller", middleware.CallerID(r.Context()),
		"operation_id", res.OperationID,
		"success", res.Success,
	)
	writeJSON(w, statusFor(res.Result, http.StatusCreated), res)
}

// spool 把上传内容写入 uploadDir 下以 uuid 命名的文件，扩展名保留以便识别类型。
func (h *Handler) spool(src io.Reader, fileName string) (string, error) {
	if err := h.fs.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fileName)))

	dst, err := h.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = h.fs.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = h.fs.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

type downloadBody struct {
	RemoteKey   string `json:"remote_key"`
	FileName    string `json:"file_name"`
	Destination string `json:"destination"`
	UserID      string `json:"user_id"`
}

// CreateDownload 通过远端取回文件并落盘。
func (h *Handler) CreateDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res := h.ops.Download(r.Context(), service.DownloadRequest{
		RemoteKey:   body.RemoteKey,
		FileName:    body.FileName,
		Destination: body.Destination,
		UserID:      body.UserID,
	})
	writeJSON(w, statusFor(res.Result, http.StatusOK), res)
}

type exportBody struct {
	Data     any    `json:"data"`
	Format   string `json:"format"`
	FileName string `json:"file_name"`
	UserID   string `json:"user_id"`
}

// CreateExport 让远端按格式生成导出文件。
func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var body exportBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res := h.ops.Export(r.Context(), service.ExportRequest{
		Data:     body.Data,
		Format:   body.Format,
		FileName: body.FileName,
		UserID:   body.UserID,
	})
	writeJSON(w, statusFor(res.Result, http.StatusCreated), res)
}
