package migrations

import (
	"context"
	"fmt"

	dbmigrations "fileops/db/migrations"
	"fileops/internal/database"

	"github.com/pressly/goose/v3"
)

// Apply 执行 embed 的全部 up 迁移脚本，返回本次新应用的迁移文件名。
// 已应用的版本会被跳过，可重复调用。
func Apply(ctx context.Context, db *database.DB) ([]string, error) {
	if db == nil || db.DB == nil {
		return nil, fmt.Errorf("nil database connection")
	}

	provider, err := newProvider(db)
	if err != nil {
		return nil, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	applied := make([]string, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		applied = append(applied, res.Source.Path)
	}
	return applied, nil
}

// Pending 报告尚未应用的迁移数量。
func Pending(ctx context.Context, db *database.DB) (int, error) {
	if db == nil || db.DB == nil {
		return 0, fmt.Errorf("nil database connection")
	}

	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}

	current, target, err := provider.GetVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("read migration versions: %w", err)
	}

	pending := 0
	for _, src := range provider.ListSources() {
		if src.Version > current && src.Version <= target {
			pending++
		}
	}
	return pending, nil
}

func newProvider(db *database.DB) (*goose.Provider, error) {
	var dialect goose.Dialect
	switch db.Dialect {
	case database.Postgres:
		dialect = goose.DialectPostgres
	case database.SQLite:
		dialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", db.Dialect)
	}

	fsys, err := dbmigrations.Dialect(string(db.Dialect))
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", db.Dialect, err)
	}

	provider, err := goose.NewProvider(dialect, db.DB.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, nil
}
