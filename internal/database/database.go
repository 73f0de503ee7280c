package database

import (
	"context"
	"database/sql"
	"fmt"

	"fileops/internal/config"

	"github.com/jmoiron/sqlx"
)

// Dialect 标识底层 SQL 方言，决定占位符风格与迁移脚本目录。
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB 是账本使用的连接池句柄，进程启动时打开、退出时关闭。
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// Connect 根据配置选择驱动并建立连接。DB_DRIVER=none 时返回 (nil, nil)，表示不启用账本。
func Connect(ctx context.Context, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN(), cfg.DBMaxOpenConns)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.DBDriver)
	}
}

// Wrap 把已打开的 *sql.DB 包装为账本句柄，driverName 用于 sqlx 的绑定风格推断。
func Wrap(db *sql.DB, driverName string, dialect Dialect) *DB {
	return &DB{DB: sqlx.NewDb(db, driverName), Dialect: dialect}
}
