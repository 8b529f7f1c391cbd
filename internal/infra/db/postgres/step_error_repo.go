package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/steperrors"
)

type StepErrorRepository struct{ db *sql.DB }

func NewStepErrorRepository(db *sql.DB) *StepErrorRepository { return &StepErrorRepository{db: db} }

// Save inserts the error; lib/pq has no LastInsertId so the id comes back via RETURNING.
func (r *StepErrorRepository) Save(ctx context.Context, e *domain.StepError) error {
	const q = `
INSERT INTO binary_comparison_errors
  (tenant_id, comparison_id, step, phase, exit_code, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8)
RETURNING id;`
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return r.db.QueryRowContext(ctx, q,
		stringOrDash(e.TenantID), stringOrDash(e.ComparisonID), stringOrDash(e.Step), stringOrDash(e.Phase),
		e.ExitCode, msg, jsonOrEmpty(e.DetailsJSON), created,
	).Scan(&e.ID)
}

func (r *StepErrorRepository) ListByComparison(ctx context.Context, tenant string, comparisonID string, limit int) ([]*domain.StepError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, comparison_id, step, phase, exit_code, message, details_json::text, created_at
FROM binary_comparison_errors
WHERE tenant_id = $1 AND comparison_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, comparisonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StepError
	for rows.Next() {
		var e domain.StepError
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ComparisonID, &e.Step, &e.Phase, &e.ExitCode, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
