package diffs

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, c *Comparison) error
	Get(ctx context.Context, tenant string, id ComparisonID) (*Comparison, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Comparison, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (Summary, error)
	UpdateStatus(ctx context.Context, tenant string, id ComparisonID, status Status) error
	// Requeue moves a finished comparison back to queued in one step. It
	// reports false when the row is already queued or running.
	Requeue(ctx context.Context, tenant string, id ComparisonID) (bool, error)
}

// Summary rekap comparison dalam N hari
type Summary struct {
	Total   int `json:"total_comparisons"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Changed int `json:"changed_lines"`
}

// Runner port (interface untuk eksekusi pipeline IDA/BinDiff)
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// InputStager port: private copies of the inputs for one comparison, since
// the disassembler writes its files next to the binary it reads.
type InputStager interface {
	Stage(ctx context.Context, dir string, inputs ...string) ([]string, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}
