package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"herald/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCache implements domain.Cache on a Postgres table.
type PostgresCache struct {
	pool *pgxpool.Pool
}

func NewPostgresCache(ctx context.Context, connStr string) (*PostgresCache, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	c := &PostgresCache{pool: pool}
	if err := c.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *PostgresCache) initSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS herald_cache (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("failed to init cache schema: %w", err)
	}
	return nil
}

func (c *PostgresCache) Get(ctx context.Context, key string, dst any) error {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT value FROM herald_cache WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

func (c *PostgresCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO herald_cache (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *PostgresCache) Close() {
	c.pool.Close()
}
