package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"fileops/internal/gateway"
	"fileops/internal/ledger"
	"fileops/internal/logging"
	"fileops/internal/repository"
	"fileops/internal/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// Gateway 是编排层依赖的远端存储能力。
type Gateway interface {
	PutFile(ctx context.Context, localPath, ownerID, targetName, contentType string) (*gateway.RemoteFile, error)
	FetchFile(ctx context.Context, remoteKey, fileName string) (*gateway.Download, error)
	ExportData(ctx context.Context, payload any, format, ownerID, fileName string) (*gateway.RemoteFile, error)
	BaseURL() string
}

// Recorder 是编排层依赖的账本写能力，实现必须吞掉自身的错误。
type Recorder interface {
	Create(ctx context.Context, attrs repository.Operation) ledger.OperationID
	Update(ctx context.Context, id ledger.OperationID, patch repository.OperationPatch)
	RecordMedia(ctx context.Context, entry repository.MediaEntry) bool
}

// Options 是 FileService 的可选依赖。
type Options struct {
	DefaultUserID   string
	DefaultCategory string
	Fs              afero.Fs
	Sink            storage.Writer
	Logger          *slog.Logger
	Now             func() time.Time
}

// FileService 编排账本与网关：先建记录，再调用远端，最后更新记录。
// 公开方法从不返回 error，失败统一折叠进结果结构。
type FileService struct {
	recorder        Recorder
	gateway         Gateway
	sink            storage.Writer
	fs              afero.Fs
	logger          *slog.Logger
	now             func() time.Time
	defaultUserID   string
	defaultCategory string
}

// NewFileService 创建编排服务。recorder 不能为 nil，未配置账本时传入未配置的 ledger.Ledger。
func NewFileService(recorder Recorder, gw Gateway, opts Options) *FileService {
	s := &FileService{
		recorder:        recorder,
		gateway:         gw,
		sink:            opts.Sink,
		fs:              opts.Fs,
		logger:          logging.OrDefault(opts.Logger),
		now:             opts.Now,
		defaultUserID:   opts.DefaultUserID,
		defaultCategory: opts.DefaultCategory,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.defaultUserID == "" {
		s.defaultUserID = "default-user"
	}
	if s.defaultCategory == "" {
		s.defaultCategory = "uploads"
	}
	return s
}

// ErrorType 区分失败来源。
type ErrorType string

const (
	ErrorValidation ErrorType = "validation"
	ErrorTransfer   ErrorType = "transfer"
	ErrorInternal   ErrorType = "internal"
)

// Result 是所有操作共享的结果外壳。OperationID 未跟踪时序列化为 null。
type Result struct {
	Success     bool               `json:"success"`
	OperationID ledger.OperationID `json:"operation_id"`
	Message     string             `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
	ErrorType   ErrorType          `json:"error_type,omitempty"`
}

// UploadRequest 描述一次上传。
type UploadRequest struct {
	LocalPath string
	UserID    string
	FileName  string
	Category  string
}

// UploadResult 在成功时携带远端返回的文件信息。
type UploadResult struct {
	Result
	FileInfo  *gateway.RemoteFile  `json:"file_info,omitempty"`
	MediaType repository.MediaType `json:"media_type,omitempty"`
	Category  string               `json:"category,omitempty"`
}

// DownloadRequest 描述一次下载。Destination 是落盘位置下的相对目录。
type DownloadRequest struct {
	RemoteKey   string
	FileName    string
	Destination string
	UserID      string
}

// DownloadResult 在成功时携带落盘位置。
type DownloadResult struct {
	Result
	FilePath string `json:"file_path,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// ExportRequest 描述一次导出。Data 必须可以 JSON 序列化。
type ExportRequest struct {
	Data     any
	Format   string
	FileName string
	UserID   string
}

// ExportResult 在成功时携带远端返回的导出文件信息。
type ExportResult struct {
	Result
	ExportInfo *gateway.RemoteFile `json:"export_info,omitempty"`
}

// Upload 上传本地文件，成功后按扩展名写入媒体库。
func (s *FileService) Upload(ctx context.Context, req UploadRequest) (out UploadResult) {
	t := s.begin(ctx, repository.KindUpload)
	defer t.recover(&out.Result)

	userID := s.userOrDefault(req.UserID)
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = filepath.Base(req.LocalPath)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = s.defaultCategory
	}

	contentType := detectContentType(s.fs, req.LocalPath, name)
	var size *int64
	if info, err := s.fs.Stat(req.LocalPath); err == nil && !info.IsDir() {
		n := info.Size()
		size = &n
	}

	metadata := map[string]any{
		"original_path":   req.LocalPath,
		"remote_endpoint": s.gateway.BaseURL(),
		"category":        category,
	}
	t.create(repository.Operation{
		Kind:         repository.KindUpload,
		UserID:       userID,
		FileName:     name,
		OriginalName: filepath.Base(req.LocalPath),
		FileType:     fileExt(name),
		FileSize:     size,
		ContentType:  contentType,
		Metadata:     metadata,
	})

	file, err := s.gateway.PutFile(ctx, req.LocalPath, userID, name, contentType)
	if err != nil {
		out.Result = t.fail(err)
		return out
	}

	completedMeta := copyMetadata(metadata)
	completedMeta["upload_response"] = file.Fields()
	out.Result = t.succeed(repository.OperationPatch{
		StoredName:   &file.StoredName,
		RemoteURL:    &file.URL,
		RemoteKey:    &file.S3Key,
		RemoteBucket: &file.Bucket,
		Metadata:     completedMeta,
	}, "File uploaded successfully")
	out.FileInfo = file
	out.Category = category

	if mediaType, ok := classifyMedia(name); ok {
		out.MediaType = mediaType
		s.recorder.RecordMedia(ctx, repository.MediaEntry{
			OriginalName: name,
			RemoteURL:    file.URL,
			RemoteKey:    file.S3Key,
			FileType:     mediaType,
			Category:     category,
			UploadedBy:   userID,
			FileSize:     size,
			ContentType:  contentType,
			UploadedAt:   s.now().UTC(),
		})
	}

	s.logger.Info("upload completed",
		"operation_id", out.OperationID,
		"file_name", name,
		"stored_name", file.StoredName,
		"size", humanSize(size),
	)
	return out
}

// Download 通过两步协议取回文件并写入下载落盘位置。
func (s *FileService) Download(ctx context.Context, req DownloadRequest) (out DownloadResult) {
	t := s.begin(ctx, repository.KindDownload)
	defer t.recover(&out.Result)

	userID := s.userOrDefault(req.UserID)
	metadata := map[string]any{
		"destination_path": req.Destination,
		"remote_endpoint":  s.gateway.BaseURL(),
	}
	t.create(repository.Operation{
		Kind:         repository.KindDownload,
		UserID:       userID,
		FileName:     req.FileName,
		OriginalName: req.FileName,
		RemoteKey:    req.RemoteKey,
		FileType:     fileExt(req.FileName),
		Metadata:     metadata,
	})

	if s.sink == nil {
		out.Result = t.fail(errors.New("download sink is not configured"))
		return out
	}

	dl, err := s.gateway.FetchFile(ctx, req.RemoteKey, req.FileName)
	if err != nil {
		out.Result = t.fail(err)
		return out
	}

	size := int64(len(dl.Data))
	contentType := dl.ContentType
	if contentType == "" {
		contentType = detectContentType(afero.NewMemMapFs(), "", req.FileName)
	}

	loc, err := s.sink.Write(ctx, storage.Key(req.Destination, req.FileName), bytes.NewReader(dl.Data), storage.WriteOptions{
		ContentType: contentType,
		Size:        size,
	})
	if err != nil {
		out.Result = t.fail(fmt.Errorf("save downloaded file: %w", err))
		return out
	}

	completedMeta := copyMetadata(metadata)
	completedMeta["local_file_path"] = loc.Path
	completedMeta["download_info"] = dl.Info
	if loc.URL != "" {
		completedMeta["file_url"] = loc.URL
	}
	out.Result = t.succeed(repository.OperationPatch{
		FileSize:    &size,
		ContentType: &contentType,
		Metadata:    completedMeta,
	}, "File downloaded successfully")
	out.FilePath = loc.Path
	out.FileURL = loc.URL
	out.FileSize = size

	s.logger.Info("download completed",
		"operation_id", out.OperationID,
		"remote_key", req.RemoteKey,
		"path", loc.Path,
		"size", humanize.IBytes(uint64(size)),
	)
	return out
}

// Export 把数据交给远端按指定格式生成文件。不支持的格式不会发出任何网络请求。
func (s *FileService) Export(ctx context.Context, req ExportRequest) (out ExportResult) {
	t := s.begin(ctx, repository.KindExport)
	defer t.recover(&out.Result)

	userID := s.userOrDefault(req.UserID)
	format := strings.ToLower(strings.TrimSpace(req.Format))
	recordCount := countRecords(req.Data)

	metadata := map[string]any{
		"export_format":   format,
		"remote_endpoint": s.gateway.BaseURL(),
	}
	if encoded, err := json.Marshal(req.Data); err == nil {
		metadata["data_size"] = len(encoded)
	}

	t.create(repository.Operation{
		Kind:         repository.KindExport,
		UserID:       userID,
		FileName:     req.FileName,
		OriginalName: req.FileName,
		FileType:     fileExt(req.FileName),
		ExportFormat: format,
		RecordCount:  &recordCount,
		Metadata:     metadata,
	})

	file, err := s.gateway.ExportData(ctx, req.Data, format, userID, req.FileName)
	if err != nil {
		out.Result = t.fail(err)
		return out
	}

	completedMeta := copyMetadata(metadata)
	completedMeta["export_response"] = file.Fields()
	patch := repository.OperationPatch{
		StoredName:   &file.StoredName,
		RemoteURL:    &file.URL,
		RemoteKey:    &file.S3Key,
		RemoteBucket: &file.Bucket,
		FileSize:     file.Size,
		Metadata:     completedMeta,
	}
	if file.ContentType != "" {
		patch.ContentType = &file.ContentType
	}
	out.Result = t.succeed(patch, fmt.Sprintf("Data exported successfully as %s", strings.ToUpper(format)))
	out.ExportInfo = file

	s.logger.Info("export completed",
		"operation_id", out.OperationID,
		"format", format,
		"records", recordCount,
		"stored_name", file.StoredName,
	)
	return out
}

func (s *FileService) userOrDefault(userID string) string {
	if trimmed := strings.TrimSpace(userID); trimmed != "" {
		return trimmed
	}
	return s.defaultUserID
}

// countRecords 在 data 是切片或数组时返回其长度，否则为 1。
func countRecords(data any) int64 {
	if data == nil {
		return 1
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return int64(v.Len())
	default:
		return 1
	}
}

func copyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func humanSize(size *int64) string {
	if size == nil {
		return "unknown"
	}
	return humanize.IBytes(uint64(*size))
}
