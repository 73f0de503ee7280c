package repository

import (
	"context"
	"time"
)

// OperationKind 标识文件操作类型。
type OperationKind string

const (
	KindUpload   OperationKind = "upload"
	KindDownload OperationKind = "download"
	KindExport   OperationKind = "export"
)

// Valid 判断操作类型是否受支持。
func (k OperationKind) Valid() bool {
	switch k {
	case KindUpload, KindDownload, KindExport:
		return true
	}
	return false
}

// OperationStatus 描述操作生命周期。
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	// StatusProcessing 保留值，当前没有代码路径会写入。
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Terminal 表示状态是否为终态。
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Operation 对应 file_operations 表中的一行。
type Operation struct {
	ID           int64           `json:"id"`
	Kind         OperationKind   `json:"operation_type"`
	UserID       string          `json:"user_id"`
	FileName     string          `json:"file_name"`
	OriginalName string          `json:"original_name,omitempty"`
	StoredName   string          `json:"stored_name,omitempty"`
	RemoteURL    string          `json:"remote_url,omitempty"`
	RemoteKey    string          `json:"remote_key,omitempty"`
	RemoteBucket string          `json:"remote_bucket,omitempty"`
	FileType     string          `json:"file_type,omitempty"`
	FileSize     *int64          `json:"file_size,omitempty"`
	ContentType  string          `json:"content_type,omitempty"`
	ExportFormat string          `json:"export_format,omitempty"`
	RecordCount  *int64          `json:"record_count,omitempty"`
	Status       OperationStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	Metadata     map[string]any  `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// OperationPatch 只包含需要更新的字段，nil 表示保持不变。
// Metadata 非 nil 时整体替换原有 metadata。
type OperationPatch struct {
	Status       *OperationStatus
	Error        *string
	OriginalName *string
	StoredName   *string
	RemoteURL    *string
	RemoteKey    *string
	RemoteBucket *string
	FileSize     *int64
	ContentType  *string
	RecordCount  *int64
	Metadata     map[string]any
}

// Empty 判断补丁是否没有任何字段。
func (p OperationPatch) Empty() bool {
	return p.Status == nil && p.Error == nil && p.OriginalName == nil &&
		p.StoredName == nil && p.RemoteURL == nil && p.RemoteKey == nil &&
		p.RemoteBucket == nil && p.FileSize == nil && p.ContentType == nil &&
		p.RecordCount == nil && p.Metadata == nil
}

// ListOperationsParams 用于检索历史记录。
type ListOperationsParams struct {
	UserID string
	Limit  int
}

// KindStats 是单个操作类型的聚合统计。
type KindStats struct {
	Kind           OperationKind `json:"operation_type" db:"operation_type"`
	TotalCount     int64         `json:"total_count" db:"total_count"`
	CompletedCount int64         `json:"completed_count" db:"completed_count"`
	FailedCount    int64         `json:"failed_count" db:"failed_count"`
	AvgFileSize    float64       `json:"avg_file_size" db:"avg_file_size"`
	TotalFileSize  int64         `json:"total_file_size" db:"total_file_size"`
}

// DailyActivity 是按天聚合的操作数量，Date 格式为 2006-01-02。
type DailyActivity struct {
	Date       string `json:"date"`
	Operations int64  `json:"operations"`
}

// Stats 汇总所有操作类型的统计信息。
type Stats struct {
	ByKind          []KindStats     `json:"operations_by_type"`
	TotalOperations int64           `json:"total_operations"`
	TotalCompleted  int64           `json:"total_completed"`
	TotalFailed     int64           `json:"total_failed"`
	RecentActivity  []DailyActivity `json:"recent_activity"`
}

// EmptyStats 返回零值统计，切片均非 nil，便于直接序列化为 []。
func EmptyStats() Stats {
	return Stats{
		ByKind:         []KindStats{},
		RecentActivity: []DailyActivity{},
	}
}

// MediaType 是媒体库的分类。
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// MediaEntry 对应 media_library 表中的一行。
type MediaEntry struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"original_name"`
	RemoteURL    string    `json:"remote_url"`
	RemoteKey    string    `json:"remote_key,omitempty"`
	FileType     MediaType `json:"file_type"`
	Category     string    `json:"category"`
	UploadedBy   string    `json:"uploaded_by"`
	FileSize     *int64    `json:"file_size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ListMediaParams 过滤媒体库检索，空字段表示不过滤。
type ListMediaParams struct {
	Category string
	Type     MediaType
}

// MediaCategoryCount 是某分类某类型下的媒体数量。
type MediaCategoryCount struct {
	Category string    `json:"category" db:"category"`
	FileType MediaType `json:"file_type" db:"file_type"`
	Count    int64     `json:"count" db:"count"`
}

// MediaStats 汇总媒体库。
type MediaStats struct {
	Total      int64                `json:"total"`
	Images     int64                `json:"images"`
	Videos     int64                `json:"videos"`
	Documents  int64                `json:"documents"`
	ByCategory []MediaCategoryCount `json:"by_category"`
}

// EmptyMediaStats 返回零值媒体统计。
func EmptyMediaStats() MediaStats {
	return MediaStats{ByCategory: []MediaCategoryCount{}}
}

// OperationStore 是账本的持久层接口，所有方法如实返回错误。
type OperationStore interface {
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error

	Insert(ctx context.Context, op *Operation) (int64, error)
	Update(ctx context.Context, id int64, patch OperationPatch) error
	Get(ctx context.Context, id int64) (*Operation, error)
	List(ctx context.Context, params ListOperationsParams) ([]Operation, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)

	InsertMedia(ctx context.Context, entry *MediaEntry) (int64, error)
	ListMedia(ctx context.Context, params ListMediaParams) ([]MediaEntry, error)
	MediaCategories(ctx context.Context) ([]string, error)
	MediaStats(ctx context.Context) (MediaStats, error)
}
