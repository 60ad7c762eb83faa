package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB Postgres 访问接口（*pgxpool.Pool 满足）
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend 以一张键值表保存快照
type PostgresBackend struct {
	db        DB
	createSQL string
	selectSQL string
	upsertSQL string
}

// NewPostgresBackend 创建 Postgres 后端，表不存在时自动创建
func NewPostgresBackend(ctx context.Context, db DB, table string) (*PostgresBackend, error) {
	t := pgx.Identifier{table}.Sanitize()
	b := &PostgresBackend{
		db: db,
		createSQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	data BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t),
		selectSQL: fmt.Sprintf("SELECT data FROM %s WHERE name = $1", t),
		upsertSQL: fmt.Sprintf(`INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, t),
	}
	if _, err := db.Exec(ctx, b.createSQL); err != nil {
		return nil, fmt.Errorf("创建快照表失败: %w", err)
	}
	return b, nil
}

// Load 读取快照
func (b *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(ctx, b.selectSQL, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save 覆盖写入快照
func (b *PostgresBackend) Save(ctx context.Context, key string, data []byte) error {
	if _, err := b.db.Exec(ctx, b.upsertSQL, key, data); err != nil {
		return fmt.Errorf("写入快照 %s 失败: %w", key, err)
	}
	return nil
}

// Close 连接池由调用方管理
func (b *PostgresBackend) Close() error { return nil }
