package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/analyst"
)

type AnalystRepository struct{ db *sql.DB }

func NewAnalystRepository(db *sql.DB) *AnalystRepository {
	return &AnalystRepository{db: db}
}

// Save inserts an analysis record
func (r *AnalystRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO binary_diff_analyses
  (id, tenant_id, comparison_id, diff_url, result_json, created_at)
VALUES ($1,$2,$3,$4,$5::jsonb,$6)
ON CONFLICT (id) DO UPDATE SET
  diff_url = EXCLUDED.diff_url,
  result_json = EXCLUDED.result_json;`
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(a.ID), stringOrDash(a.TenantID), stringOrDash(a.ComparisonID), stringOrDash(a.DiffURL),
		jsonOrEmpty(a.Result), createdAt,
	)
	return err
}

// Paginate returns a page of analysis records ordered by created_at desc
func (r *AnalystRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, comparison_id, diff_url, result_json::text, created_at
FROM binary_diff_analyses
WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ComparisonID, &a.DiffURL, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LatestByComparison returns nil when the comparison has no analysis yet
func (r *AnalystRepository) LatestByComparison(ctx context.Context, tenant string, comparisonID string) (*domain.Analysis, error) {
	const q = `
SELECT id, tenant_id, comparison_id, diff_url, result_json::text, created_at
FROM binary_diff_analyses
WHERE tenant_id=$1 AND comparison_id=$2
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	var a domain.Analysis
	err := r.db.QueryRowContext(ctx, q, tenant, comparisonID).
		Scan(&a.ID, &a.TenantID, &a.ComparisonID, &a.DiffURL, &a.Result, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
