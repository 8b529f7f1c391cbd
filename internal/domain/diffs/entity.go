package diffs

import (
	"time"
)

// ID tipe untuk Comparison
type ComparisonID string

// Status enum
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Artifact file names inside a result directory.
const (
	TextDiffFile    = "diff_result.diff"
	BinDiffFile     = "bindiff_result.BinDiff"
	ASMSuffix       = ".asm"
	IDBSuffix       = ".idb"
	I64Suffix       = ".i64"
	BinExportSuffix = ".BinExport"
	BinDiffSuffix   = ".BinDiff"
)

// DiffStats value object, computed from the listing diff
type DiffStats struct {
	Files   int `json:"files"`
	Hunks   int `json:"hunks"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// Artifacts keeps the final location of each result file (local path or URL).
type Artifacts struct {
	TextDiff string `json:"text_diff,omitempty"`
	BinDiff  string `json:"bindiff,omitempty"`
}

// Aggregate Root: Comparison of two binaries
type Comparison struct {
	ID            ComparisonID `json:"id"`
	TenantID      string       `json:"tenant_id"`
	TriggeredAt   time.Time    `json:"triggered_at"`
	Primary       string       `json:"primary"`
	Secondary     string       `json:"secondary"`
	PrimaryPath   string       `json:"primary_path"`
	SecondaryPath string       `json:"secondary_path"`
	ResultDir     string       `json:"result_dir"`
	Disassembler  string       `json:"disassembler,omitempty"`
	Status        Status       `json:"status"`
	FailedStep    string       `json:"failed_step,omitempty"`
	ExitCode      int          `json:"exit_code"`
	Stats         DiffStats    `json:"stats"`
	Artifacts     Artifacts    `json:"artifacts"`
	DurationMS    int64        `json:"duration_ms"`
	Source        string       `json:"source,omitempty"`
	Metadata      any          `json:"metadata,omitempty"`
}
