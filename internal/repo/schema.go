package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		state      JSONB       NOT NULL,
		stage      TEXT        NOT NULL,
		version    BIGINT      NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS checkpoints_updated_at_idx ON checkpoints (updated_at)`,
	`CREATE TABLE IF NOT EXISTS taxonomy (
		code     TEXT PRIMARY KEY,
		title    TEXT   NOT NULL,
		keywords TEXT NOT NULL DEFAULT '',
		tsv      TSVECTOR GENERATED ALWAYS AS (
			to_tsvector('english', title || ' ' || keywords)
		) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS taxonomy_tsv_idx ON taxonomy USING GIN (tsv)`,
}

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
