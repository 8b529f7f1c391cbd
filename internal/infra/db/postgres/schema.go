package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS binary_comparisons (
  id             VARCHAR(36)  PRIMARY KEY,
  tenant_id      VARCHAR(64)  NOT NULL,
  triggered_at   TIMESTAMPTZ  NOT NULL,
  primary_name   VARCHAR(255) NOT NULL,
  secondary_name VARCHAR(255) NOT NULL,
  primary_path   TEXT         NOT NULL,
  secondary_path TEXT         NOT NULL,
  result_dir     TEXT         NOT NULL,
  disassembler   VARCHAR(32)  NOT NULL DEFAULT '',
  status         VARCHAR(16)  NOT NULL,
  failed_step    VARCHAR(64)  NOT NULL DEFAULT '',
  exit_code      INT          NOT NULL DEFAULT 0,
  files          INT          NOT NULL DEFAULT 0,
  hunks          INT          NOT NULL DEFAULT 0,
  added          INT          NOT NULL DEFAULT 0,
  removed        INT          NOT NULL DEFAULT 0,
  changed        INT          NOT NULL DEFAULT 0,
  text_diff_url  TEXT         NOT NULL DEFAULT '',
  bindiff_url    TEXT         NOT NULL DEFAULT '',
  duration_ms    BIGINT       NOT NULL DEFAULT 0,
  source         VARCHAR(64)  NOT NULL DEFAULT '',
  metadata_json  JSONB        NOT NULL DEFAULT '{}'
)`,
	`CREATE INDEX IF NOT EXISTS idx_comparisons_tenant_time ON binary_comparisons (tenant_id, triggered_at)`,
	`CREATE TABLE IF NOT EXISTS binary_comparison_errors (
  id             BIGSERIAL    PRIMARY KEY,
  tenant_id      VARCHAR(64)  NOT NULL,
  comparison_id  VARCHAR(36)  NOT NULL,
  step           VARCHAR(64)  NOT NULL,
  phase          VARCHAR(16)  NOT NULL,
  exit_code      INT          NOT NULL DEFAULT 0,
  message        TEXT         NOT NULL,
  details_json   JSONB        NOT NULL DEFAULT '{}',
  created_at     TIMESTAMPTZ  NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_comparison_errors ON binary_comparison_errors (tenant_id, comparison_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS binary_diff_analyses (
  id             VARCHAR(36)  PRIMARY KEY,
  tenant_id      VARCHAR(64)  NOT NULL,
  comparison_id  VARCHAR(36)  NOT NULL,
  diff_url       TEXT         NOT NULL,
  result_json    JSONB        NOT NULL DEFAULT '{}',
  created_at     TIMESTAMPTZ  NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_comparison ON binary_diff_analyses (tenant_id, comparison_id, created_at)`,
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
