package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Procura/internal/domain"
)

// CheckpointRepo хранит снимки SessionState в Postgres (JSONB).
type CheckpointRepo struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepo создаёт новый CheckpointRepo.
func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

// Load возвращает последний снимок сессии.
func (r *CheckpointRepo) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	query := `SELECT state, version FROM checkpoints WHERE session_id = $1`

	var (
		raw     []byte
		version int64
	)
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	state.Version = version
	return &state, nil
}

// Save сохраняет снимок и увеличивает state.Version.
//
// Запись проходит, только если в БД лежит версия, с которой состояние
// было загружено. Иначе возвращается ErrVersionConflict, а Version
// остаётся прежней.
func (r *CheckpointRepo) Save(ctx context.Context, state *domain.SessionState) error {
	prev := state.Version
	state.Version = prev + 1
	state.UpdatedAt = time.Now()

	raw, err := json.Marshal(state)
	if err != nil {
		state.Version = prev
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	query := `
		INSERT INTO checkpoints (session_id, state, stage, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET state = EXCLUDED.state, stage = EXCLUDED.stage,
		    version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
		WHERE checkpoints.version = $6
	`
	result, err := r.pool.Exec(ctx, query,
		state.SessionID,
		raw,
		state.Stage,
		state.Version,
		state.UpdatedAt,
		prev,
	)
	if err != nil {
		state.Version = prev
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if result.RowsAffected() == 0 {
		state.Version = prev
		return fmt.Errorf("%w: session %s", ErrVersionConflict, state.SessionID)
	}
	return nil
}

// DeleteBefore удаляет чекпоинты, не обновлявшиеся с cutoff.
func (r *CheckpointRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM checkpoints WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete checkpoints: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListByStage возвращает ID сессий в указанной стадии, новые первыми.
func (r *CheckpointRepo) ListByStage(ctx context.Context, stage domain.Stage, limit int) ([]string, error) {
	query := `
		SELECT session_id FROM checkpoints
		WHERE stage = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
