package sqlstore

import (
	"context"
	"fmt"
	"time"

	"fileops/internal/database"
	"fileops/internal/migrations"
	"fileops/internal/repository"

	sq "github.com/Masterminds/squirrel"
)

const (
	operationsTable = "file_operations"
	mediaTable      = "media_library"
)

// Store 基于 database/sql 实现 repository.OperationStore，同时支持 PostgreSQL 与 SQLite。
type Store struct {
	db      *database.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ repository.OperationStore = (*Store)(nil)

// New 返回绑定到 db 的存储实现，占位符风格跟随 db.Dialect。
func New(db *database.DB) *Store {
	var placeholder sq.PlaceholderFormat = sq.Question
	if db.Dialect == database.Postgres {
		placeholder = sq.Dollar
	}
	return &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema 应用 embed 的迁移脚本，已存在的表保持不变。
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := migrations.Apply(ctx, s.db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping 执行 SELECT 1 级别的连通性检查。
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("ping ledger: %w", err)
	}
	return nil
}
