package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fileops/internal/repository"
)

var operationColumns = []string{
	"id",
	"operation_type",
	"user_id",
	"file_name",
	"original_name",
	"stored_name",
	"remote_url",
	"remote_key",
	"remote_bucket",
	"file_type",
	"file_size",
	"content_type",
	"export_format",
	"record_count",
	"status",
	"error",
	"metadata",
	"created_at",
	"updated_at",
	"completed_at",
}

var mediaColumns = []string{
	"id",
	"original_name",
	"remote_url",
	"remote_key",
	"file_type",
	"category",
	"uploaded_by",
	"file_size",
	"content_type",
	"uploaded_at",
}

type operationRow struct {
	ID           int64          `db:"id"`
	Kind         string         `db:"operation_type"`
	UserID       string         `db:"user_id"`
	FileName     string         `db:"file_name"`
	OriginalName sql.NullString `db:"original_name"`
	StoredName   sql.NullString `db:"stored_name"`
	RemoteURL    sql.NullString `db:"remote_url"`
	RemoteKey    sql.NullString `db:"remote_key"`
	RemoteBucket sql.NullString `db:"remote_bucket"`
	FileType     sql.NullString `db:"file_type"`
	FileSize     sql.NullInt64  `db:"file_size"`
	ContentType  sql.NullString `db:"content_type"`
	ExportFormat sql.NullString `db:"export_format"`
	RecordCount  sql.NullInt64  `db:"record_count"`
	Status       string         `db:"status"`
	Error        sql.NullString `db:"error"`
	Metadata     jsonMap        `db:"metadata"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
}

func (r operationRow) toOperation() repository.Operation {
	op := repository.Operation{
		ID:           r.ID,
		Kind:         repository.OperationKind(r.Kind),
		UserID:       r.UserID,
		FileName:     r.FileName,
		OriginalName: r.OriginalName.String,
		StoredName:   r.StoredName.String,
		RemoteURL:    r.RemoteURL.String,
		RemoteKey:    r.RemoteKey.String,
		RemoteBucket: r.RemoteBucket.String,
		FileType:     r.FileType.String,
		FileSize:     int64Ptr(r.FileSize),
		ContentType:  r.ContentType.String,
		ExportFormat: r.ExportFormat.String,
		RecordCount:  int64Ptr(r.RecordCount),
		Status:       repository.OperationStatus(r.Status),
		Error:        r.Error.String,
		Metadata:     map[string]any(r.Metadata),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if op.Metadata == nil {
		op.Metadata = map[string]any{}
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		op.CompletedAt = &t
	}
	return op
}

type mediaRow struct {
	ID           int64          `db:"id"`
	OriginalName string         `db:"original_name"`
	RemoteURL    string         `db:"remote_url"`
	RemoteKey    sql.NullString `db:"remote_key"`
	FileType     string         `db:"file_type"`
	Category     string         `db:"category"`
	UploadedBy   string         `db:"uploaded_by"`
	FileSize     sql.NullInt64  `db:"file_size"`
	ContentType  sql.NullString `db:"content_type"`
	UploadedAt   time.Time      `db:"uploaded_at"`
}

func (r mediaRow) toEntry() repository.MediaEntry {
	return repository.MediaEntry{
		ID:           r.ID,
		OriginalName: r.OriginalName,
		RemoteURL:    r.RemoteURL,
		RemoteKey:    r.RemoteKey.String,
		FileType:     repository.MediaType(r.FileType),
		Category:     r.Category,
		UploadedBy:   r.UploadedBy,
		FileSize:     int64Ptr(r.FileSize),
		ContentType:  r.ContentType.String,
		UploadedAt:   r.UploadedAt.UTC(),
	}
}

// jsonMap 兼容 JSONB（[]byte）与 SQLite TEXT（string）两种返回形式。
type jsonMap map[string]any

func (m *jsonMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = jsonMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}

	if len(raw) == 0 {
		*m = jsonMap{}
		return nil
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	*m = out
	return nil
}

func encodeMetadata(meta map[string]any) (string, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// nullString 把空字符串写成 NULL。
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
