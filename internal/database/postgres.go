package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// OpenPostgres 建立到 PostgreSQL 的连接并执行基础健康检查。
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int) (*DB, error) {
	pool, err := PostgresPool(dsn, maxOpenConns)
	if err != nil {
		return nil, err
	}
	db := pool.DB

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// PostgresPool 只创建连接池而不建立连接，首次查询时才会拨号。
func PostgresPool(dsn string, maxOpenConns int) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 5
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &DB{DB: db, Dialect: Postgres}, nil
}
