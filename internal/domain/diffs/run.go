package diffs

// RunRequest untuk Runner
type RunRequest struct {
	Primary   string
	Secondary string
	ResultDir string
}

// StepResult records one external tool invocation.
type StepResult struct {
	Name       string   `json:"name"`
	Command    []string `json:"command"`
	ExitCode   int      `json:"exit_code"`
	DurationMS int64    `json:"duration_ms"`
}

// RunResult hasil dari Runner
type RunResult struct {
	PrimaryPath   string       `json:"primary_path"`
	SecondaryPath string       `json:"secondary_path"`
	ResultDir     string       `json:"result_dir"`
	Disassembler  string       `json:"disassembler"`
	Steps         []StepResult `json:"steps"`
	TextDiffPath  string       `json:"text_diff_path,omitempty"`
	BinDiffPath   string       `json:"bindiff_path,omitempty"`
	Stats         DiffStats    `json:"stats"`
	DurationMS    int64        `json:"duration_ms"`
}

// StepFailure is implemented by runner errors that know which step failed.
type StepFailure interface {
	error
	FailedStep() string
	StepExitCode() int
}
