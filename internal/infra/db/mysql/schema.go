package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS binary_comparisons (
  id             VARCHAR(36)  NOT NULL PRIMARY KEY,
  tenant_id      VARCHAR(64)  NOT NULL,
  triggered_at   DATETIME(3)  NOT NULL,
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
  text_diff_url  TEXT         NOT NULL,
  bindiff_url    TEXT         NOT NULL,
  duration_ms    BIGINT       NOT NULL DEFAULT 0,
  source         VARCHAR(64)  NOT NULL DEFAULT '',
  metadata_json  JSON         NOT NULL,
  KEY idx_comparisons_tenant_time (tenant_id, triggered_at)
)`,
	`CREATE TABLE IF NOT EXISTS binary_comparison_errors (
  id             BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
  tenant_id      VARCHAR(64)  NOT NULL,
  comparison_id  VARCHAR(36)  NOT NULL,
  step           VARCHAR(64)  NOT NULL,
  phase          VARCHAR(16)  NOT NULL,
  exit_code      INT          NOT NULL DEFAULT 0,
  message        TEXT         NOT NULL,
  details_json   JSON         NOT NULL,
  created_at     DATETIME(3)  NOT NULL,
  KEY idx_comparison_errors (tenant_id, comparison_id, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS binary_diff_analyses (
  id             VARCHAR(36)  NOT NULL PRIMARY KEY,
  tenant_id      VARCHAR(64)  NOT NULL,
  comparison_id  VARCHAR(36)  NOT NULL,
  diff_url       TEXT         NOT NULL,
  result_json    JSON         NOT NULL,
  created_at     DATETIME(3)  NOT NULL,
  KEY idx_analyses_comparison (tenant_id, comparison_id, created_at)
)`,
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mysql migrate: %w", err)
		}
	}
	return nil
}
