package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createPostgresStorageTable = `
CREATE TABLE IF NOT EXISTS storage_items (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL
);
`

// PostgresStorage implements Storage on a Postgres table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to dsn and creates the storage table.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect storage db: %w", err)
	}
	if _, err := pool.Exec(ctx, createPostgresStorageTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate storage db: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM storage_items WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage get: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStorage) SetItem(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO storage_items (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storage set: %w", err)
	}
	return nil
}

func (s *PostgresStorage) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM storage_items WHERE key = $1`, key); err != nil {
		return fmt.Errorf("storage remove: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM storage_items ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("storage keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("storage keys: %w", err)
	}
	return keys, nil
}

// Close releases the pool.
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

var _ Storage = (*PostgresStorage)(nil)
