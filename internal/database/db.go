package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

type Config struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

func New(ctx context.Context, cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// WithTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS scraped_products (
	id                  UUID PRIMARY KEY,
	name                TEXT NOT NULL,
	rating              TEXT NOT NULL,
	number_of_ratings   TEXT NOT NULL,
	price               TEXT NOT NULL,
	discount            TEXT NOT NULL,
	offers              JSONB NOT NULL DEFAULT '[]',
	about_item          TEXT NOT NULL,
	product_info        JSONB NOT NULL DEFAULT '{}',
	images              JSONB NOT NULL DEFAULT '[]',
	manufacturer_images JSONB NOT NULL DEFAULT '[]',
	ai_review_summary   TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_scraped_products_created_at
	ON scraped_products (created_at);

CREATE TABLE IF NOT EXISTS product_events (
	id              UUID PRIMARY KEY,
	product_id      UUID NOT NULL,
	event_type      TEXT NOT NULL,
	payload         JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	attempts        INT NOT NULL DEFAULT 0,
	last_error      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	published_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_product_events_due
	ON product_events (status, next_attempt_at);
`

// EnsureSchema creates the product and event tables if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
