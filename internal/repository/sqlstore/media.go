package sqlstore

import (
	"context"
	"fmt"

	"fileops/internal/repository"

	sq "github.com/Masterminds/squirrel"
)

// InsertMedia 写入一条媒体库记录。
func (s *Store) InsertMedia(ctx context.Context, entry *repository.MediaEntry) (int64, error) {
	if entry == nil {
		return 0, fmt.Errorf("media entry is nil")
	}

	uploadedAt := entry.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = s.now()
	}

	query, args, err := s.builder.
		Insert(mediaTable).
		SetMap(map[string]any{
			"original_name": entry.OriginalName,
			"remote_url":    entry.RemoteURL,
			"remote_key":    nullString(entry.RemoteKey),
			"file_type":     string(entry.FileType),
			"category":      entry.Category,
			"uploaded_by":   entry.UploadedBy,
			"file_size":     nullInt64(entry.FileSize),
			"content_type":  nullString(entry.ContentType),
			"uploaded_at":   uploadedAt.UTC(),
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build media insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert media entry: %w", err)
	}
	return id, nil
}

// ListMedia 按上传时间倒序列出媒体，可按分类与类型过滤。
func (s *Store) ListMedia(ctx context.Context, params repository.ListMediaParams) ([]repository.MediaEntry, error) {
	builder := s.builder.
		Select(mediaColumns...).
		From(mediaTable).
		OrderBy("uploaded_at DESC", "id DESC")
	if params.Category != "" {
		builder = builder.Where(sq.Eq{"category": params.Category})
	}
	if params.Type != "" {
		builder = builder.Where(sq.Eq{"file_type": string(params.Type)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build media list: %w", err)
	}

	var rows []mediaRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	entries := make([]repository.MediaEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

// MediaCategories 返回去重后按字母排序的分类列表。
func (s *Store) MediaCategories(ctx context.Context) ([]string, error) {
	query, args, err := s.builder.
		Select("category").
		Distinct().
		From(mediaTable).
		OrderBy("category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build media categories: %w", err)
	}

	categories := []string{}
	if err := s.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, fmt.Errorf("media categories: %w", err)
	}
	return categories, nil
}

// MediaStats 按分类与类型分组计数，总数由分组结果累加。
func (s *Store) MediaStats(ctx context.Context) (repository.MediaStats, error) {
	stats := repository.EmptyMediaStats()

	query, args, err := s.builder.
		Select("category", "file_type", "COUNT(*) AS count").
		From(mediaTable).
		GroupBy("category", "file_type").
		OrderBy("category", "file_type").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build media stats: %w", err)
	}

	var groups []repository.MediaCategoryCount
	if err := s.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return stats, fmt.Errorf("media stats: %w", err)
	}

	for _, g := range groups {
		stats.Total += g.Count
		switch g.FileType {
		case repository.MediaImage:
			stats.Images += g.Count
		case repository.MediaVideo:
			stats.Videos += g.Count
		case repository.MediaDocument:
			stats.Documents += g.Count
		}
	}
	if groups != nil {
		stats.ByCategory = groups
	}
	return stats, nil
}
