package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Procura/internal/taxonomy"
)

const defaultSearchLimit = 10

// TaxonomyRepo — справочник кодов в Postgres с полнотекстовым поиском.
// Реализует taxonomy.Searcher.
type TaxonomyRepo struct {
	pool *pgxpool.Pool
}

// NewTaxonomyRepo создаёт новый TaxonomyRepo.
func NewTaxonomyRepo(pool *pgxpool.Pool) *TaxonomyRepo {
	return &TaxonomyRepo{pool: pool}
}

// Search ищет коды. 8-значный запрос ищется как точный код,
// остальные — через websearch_to_tsquery с ранжированием ts_rank.
func (r *TaxonomyRepo) Search(ctx context.Context, query string, limit int) ([]taxonomy.Candidate, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if taxonomy.IsCode(query) {
		rows, err := r.pool.Query(ctx,
			`SELECT code, title, 1.0::float8 FROM taxonomy WHERE code = $1`, query)
		if err != nil {
			return nil, fmt.Errorf("search taxonomy code: %w", err)
		}
		return collectCandidates(rows)
	}

	sql := `
		SELECT code, title, ts_rank(tsv, q)::float8 AS score
		FROM taxonomy, websearch_to_tsquery('english', $1) q
		WHERE tsv @@ q
		ORDER BY score DESC, code DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, sql, orQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search taxonomy: %w", err)
	}
	return collectCandidates(rows)
}

// Seed загружает записи справочника (upsert по коду).
func (r *TaxonomyRepo) Seed(ctx context.Context, entries []taxonomy.Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO taxonomy (code, title, keywords)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET title = EXCLUDED.title, keywords = EXCLUDED.keywords
		`, e.Code, e.Title, strings.Join(e.Keywords, " "))
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed taxonomy: %w", err)
	}
	return nil
}

// Count возвращает число записей справочника.
func (r *TaxonomyRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM taxonomy`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count taxonomy: %w", err)
	}
	return n, nil
}

func collectCandidates(rows pgx.Rows) ([]taxonomy.Candidate, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (taxonomy.Candidate, error) {
		var c taxonomy.Candidate
		err := row.Scan(&c.Code, &c.Title, &c.Score)
		return c, err
	})
}

// orQuery строит запрос «любое из слов».
func orQuery(q string) string {
	tokens := taxonomy.Tokenize(q)
	return strings.Join(tokens, " or ")
}
