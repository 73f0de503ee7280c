package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"fileops/internal/repository"

	sq "github.com/Masterminds/squirrel"
)

// Insert 写入一条 pending 记录并返回数据库分配的 id。
func (s *Store) Insert(ctx context.Context, op *repository.Operation) (int64, error) {
	if op == nil {
		return 0, fmt.Errorf("operation is nil")
	}
	if !op.Kind.Valid() {
		return 0, fmt.Errorf("invalid operation kind: %q", op.Kind)
	}

	metadata, err := encodeMetadata(op.Metadata)
	if err != nil {
		return 0, err
	}

	status := op.Status
	if status == "" {
		status = repository.StatusPending
	}
	now := s.now()

	query, args, err := s.builder.
		Insert(operationsTable).
		SetMap(map[string]any{
			"operation_type": string(op.Kind),
			"user_id":        op.UserID,
			"file_name":      op.FileName,
			"original_name":  nullString(op.OriginalName),
			"stored_name":    nullString(op.StoredName),
			"remote_url":     nullString(op.RemoteURL),
			"remote_key":     nullString(op.RemoteKey),
			"remote_bucket":  nullString(op.RemoteBucket),
			"file_type":      nullString(op.FileType),
			"file_size":      nullInt64(op.FileSize),
			"content_type":   nullString(op.ContentType),
			"export_format":  nullString(op.ExportFormat),
			"record_count":   nullInt64(op.RecordCount),
			"status":         string(status),
			"error":          nullString(op.Error),
			"metadata":       metadata,
			"created_at":     now,
			"updated_at":     now,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert operation: %w", err)
	}
	return id, nil
}

// Update 只修改补丁中给出的字段，并总是刷新 updated_at。
// 状态变更仅作用于非终态记录；completed_at 只在状态变为 completed 时写入。
func (s *Store) Update(ctx context.Context, id int64, patch repository.OperationPatch) error {
	now := s.now()
	set := map[string]any{"updated_at": now}

	if patch.Status != nil {
		set["status"] = string(*patch.Status)
		if *patch.Status == repository.StatusCompleted {
			set["completed_at"] = now
		}
	}
	if patch.Error != nil {
		set["error"] = *patch.Error
	}
	if patch.OriginalName != nil {
		set["original_name"] = *patch.OriginalName
	}
	if patch.StoredName != nil {
		set["stored_name"] = *patch.StoredName
	}
	if patch.RemoteURL != nil {
		set["remote_url"] = *patch.RemoteURL
	}
	if patch.RemoteKey != nil {
		set["remote_key"] = *patch.RemoteKey
	}
	if patch.RemoteBucket != nil {
		set["remote_bucket"] = *patch.RemoteBucket
	}
	if patch.FileSize != nil {
		set["file_size"] = *patch.FileSize
	}
	if patch.ContentType != nil {
		set["content_type"] = *patch.ContentType
	}
	if patch.RecordCount != nil {
		set["record_count"] = *patch.RecordCount
	}
	if patch.Metadata != nil {
		metadata, err := encodeMetadata(patch.Metadata)
		if err != nil {
			return err
		}
		set["metadata"] = metadata
	}

	builder := s.builder.Update(operationsTable).SetMap(set).Where(sq.Eq{"id": id})
	if patch.Status != nil {
		builder = builder.Where(sq.Eq{"status": []string{
			string(repository.StatusPending),
			string(repository.StatusProcessing),
		}})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update operation %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return repository.ErrInvalidTransition
}

// Get 通过主键查询操作记录。
func (s *Store) Get(ctx context.Context, id int64) (*repository.Operation, error) {
	query, args, err := s.builder.
		Select(operationColumns...).
		From(operationsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row operationRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get operation %d: %w", id, err)
	}

	op := row.toOperation()
	return &op, nil
}

// List 按创建时间倒序返回记录，可按用户过滤。
func (s *Store) List(ctx context.Context, params repository.ListOperationsParams) ([]repository.Operation, error) {
	if params.Limit <= 0 {
		return []repository.Operation{}, nil
	}

	builder := s.builder.
		Select(operationColumns...).
		From(operationsTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(params.Limit))
	if params.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": params.UserID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var rows []operationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	result := make([]repository.Operation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toOperation())
	}
	return result, nil
}

// Stats 按操作类型聚合，并统计 since 之后每天的操作数量。
func (s *Store) Stats(ctx context.Context, since time.Time) (repository.Stats, error) {
	stats := repository.EmptyStats()

	query, args, err := s.builder.
		Select(
			"operation_type",
			"COUNT(*) AS total_count",
			"CAST(COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS BIGINT) AS completed_count",
			"CAST(COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS BIGINT) AS failed_count",
			"CAST(COALESCE(AVG(file_size), 0) AS DOUBLE PRECISION) AS avg_file_size",
			"CAST(COALESCE(SUM(file_size), 0) AS BIGINT) AS total_file_size",
		).
		From(operationsTable).
		GroupBy("operation_type").
		OrderBy("operation_type").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build stats: %w", err)
	}

	var byKind []repository.KindStats
	if err := s.db.SelectContext(ctx, &byKind, query, args...); err != nil {
		return stats, fmt.Errorf("aggregate operations: %w", err)
	}
	for _, k := range byKind {
		stats.TotalOperations += k.TotalCount
		stats.TotalCompleted += k.CompletedCount
		stats.TotalFailed += k.FailedCount
	}
	if byKind != nil {
		stats.ByKind = byKind
	}

	// 按天分桶放在 Go 侧完成，两种方言的日期函数不一致
	query, args, err = s.builder.
		Select("created_at").
		From(operationsTable).
		Where(sq.GtOrEq{"created_at": since.UTC()}).
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build recent activity: %w", err)
	}

	var created []time.Time
	if err := s.db.SelectContext(ctx, &created, query, args...); err != nil {
		return stats, fmt.Errorf("recent activity: %w", err)
	}

	stats.RecentActivity = bucketByDay(created)
	return stats, nil
}

func bucketByDay(times []time.Time) []repository.DailyActivity {
	counts := map[string]int64{}
	for _, t := range times {
		counts[t.UTC().Format(time.DateOnly)]++
	}

	out := make([]repository.DailyActivity, 0, len(counts))
	for day, n := range counts {
		out = append(out, repository.DailyActivity{Date: day, Operations: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
