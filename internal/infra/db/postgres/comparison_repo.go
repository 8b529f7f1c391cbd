package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
)

type ComparisonRepository struct{ db *sql.DB }

func NewComparisonRepository(db *sql.DB) *ComparisonRepository { return &ComparisonRepository{db: db} }

const comparisonColumns = `id, tenant_id, triggered_at, primary_name, secondary_name,
       primary_path, secondary_path, result_dir, disassembler, status,
       failed_step, exit_code, files, hunks, added, removed, changed,
       text_diff_url, bindiff_url, duration_ms, source, metadata_json::text`

// Save insert/update Comparison record
func (r *ComparisonRepository) Save(ctx context.Context, c *domain.Comparison) error {
	const q = `
INSERT INTO binary_comparisons
(id, tenant_id, triggered_at, primary_name, secondary_name,
 primary_path, secondary_path, result_dir, disassembler, status,
 failed_step, exit_code, files, hunks, added, removed, changed,
 text_diff_url, bindiff_url, duration_ms, source, metadata_json)
VALUES ($1,$2,$3,$4,$5,
        $6,$7,$8,$9,$10,
        $11,$12,$13,$14,$15,$16,$17,
        $18,$19,$20,$21,$22::jsonb)
ON CONFLICT (id) DO UPDATE SET
 result_dir = EXCLUDED.result_dir,
 disassembler = EXCLUDED.disassembler,
 status = EXCLUDED.status,
 failed_step = EXCLUDED.failed_step,
 exit_code = EXCLUDED.exit_code,
 files = EXCLUDED.files,
 hunks = EXCLUDED.hunks,
 added = EXCLUDED.added,
 removed = EXCLUDED.removed,
 changed = EXCLUDED.changed,
 text_diff_url = EXCLUDED.text_diff_url,
 bindiff_url = EXCLUDED.bindiff_url,
 duration_ms = EXCLUDED.duration_ms;`

	tenant := stringOrDash(c.TenantID)
	status := stringOrDash(string(c.Status))
	triggered := c.TriggeredAt
	if triggered.IsZero() {
		triggered = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q,
		string(c.ID), tenant, triggered, c.Primary, c.Secondary,
		c.PrimaryPath, c.SecondaryPath, c.ResultDir, c.Disassembler, status,
		c.FailedStep, c.ExitCode,
		c.Stats.Files, c.Stats.Hunks, c.Stats.Added, c.Stats.Removed, c.Stats.Changed,
		c.Artifacts.TextDiff, c.Artifacts.BinDiff, c.DurationMS, c.Source, encodeMetadata(c.Metadata),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComparison(row rowScanner) (*domain.Comparison, error) {
	var c domain.Comparison
	var meta string
	if err := row.Scan(
		&c.ID, &c.TenantID, &c.TriggeredAt, &c.Primary, &c.Secondary,
		&c.PrimaryPath, &c.SecondaryPath, &c.ResultDir, &c.Disassembler, &c.Status,
		&c.FailedStep, &c.ExitCode,
		&c.Stats.Files, &c.Stats.Hunks, &c.Stats.Added, &c.Stats.Removed, &c.Stats.Changed,
		&c.Artifacts.TextDiff, &c.Artifacts.BinDiff, &c.DurationMS, &c.Source, &meta,
	); err != nil {
		return nil, err
	}
	c.Metadata = decodeMetadata(meta)
	return &c, nil
}

// Get by ID + Tenant
func (r *ComparisonRepository) Get(ctx context.Context, tenant string, id domain.ComparisonID) (*domain.Comparison, error) {
	q := `SELECT ` + comparisonColumns + `
FROM binary_comparisons
WHERE tenant_id=$1 AND id=$2
LIMIT 1;`
	return scanComparison(r.db.QueryRowContext(ctx, q, tenant, string(id)))
}

// Latest comparisons per tenant
func (r *ComparisonRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Comparison, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + comparisonColumns + `
FROM binary_comparisons
WHERE tenant_id=$1
ORDER BY triggered_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summary counts comparison results since N days
func (r *ComparisonRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'success'),
       COUNT(*) FILTER (WHERE status = 'failed'),
       COALESCE(SUM(added + removed + changed), 0)
FROM binary_comparisons
WHERE tenant_id=$1 AND triggered_at >= $2;`
	var s domain.Summary
	if err := r.db.QueryRowContext(ctx, q, tenant, cut).Scan(&s.Total, &s.Success, &s.Failed, &s.Changed); err != nil {
		return domain.Summary{}, err
	}
	return s, nil
}

// UpdateStatus hanya update kolom status
func (r *ComparisonRepository) UpdateStatus(ctx context.Context, tenant string, id domain.ComparisonID, status domain.Status) error {
	const q = `UPDATE binary_comparisons SET status = $1 WHERE tenant_id = $2 AND id = $3;`
	_, err := r.db.ExecContext(ctx, q, string(status), tenant, string(id))
	return err
}

const requeueQuery = `
UPDATE binary_comparisons
SET status = 'queued'
WHERE tenant_id = $1 AND id = $2 AND status NOT IN ('queued', 'running');`

// Requeue: conditional update, jadi dua retry bersamaan cuma satu yang menang
func (r *ComparisonRepository) Requeue(ctx context.Context, tenant string, id domain.ComparisonID) (bool, error) {
	res, err := r.db.ExecContext(ctx, requeueQuery, tenant, string(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
