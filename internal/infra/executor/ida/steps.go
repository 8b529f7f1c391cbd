package ida

import (
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-bindiff/internal/config"
)

// Process exit codes of a batch run.
const (
	ExitOK = 0
	// missing external dependency; a failed disassembly reports the same code
	ExitDependency = -1
	ExitUsage      = -2
	// any diff-generation step failed (export, text diff, bindiff, rename)
	ExitDiffFailed = -3
)

// Step names
const (
	StepDisassemblePrimary   = "disassemble-primary"
	StepDisassembleSecondary = "disassemble-secondary"
	StepExportPrimary        = "binexport-primary"
	StepExportSecondary      = "binexport-secondary"
	StepTextDiff             = "text-diff"
	StepBinDiff              = "bindiff"
	StepRename               = "rename-bindiff"
)

// Step is one external tool invocation of the pipeline.
type Step struct {
	Name    string
	Message string
	Path    string
	Args    []string
	Timeout time.Duration
	// Stdout, when set, receives the process stdout instead of the console.
	Stdout string
	// Accept decides whether an exit status counts as success; nil means exit 0 only.
	Accept   func(code int) bool
	FailCode int
}

func (s Step) Command() []string {
	return append([]string{s.Path}, s.Args...)
}

func (s Step) accepts(code int) bool {
	if s.Accept == nil {
		return code == 0
	}
	return s.Accept(code)
}

// diff exits 1 when the inputs differ
func diffAccept(code int) bool { return code == 0 || code == 1 }

// BuildSteps returns the external invocations in execution order.
func BuildSteps(tools config.Tools, primary, secondary Target, resultDir string) []Step {
	diffArgs := append([]string{}, tools.DiffArgs...)
	diffArgs = append(diffArgs, primary.ListingPath(), secondary.ListingPath())

	return []Step{
		disassembleStep(StepDisassemblePrimary, primary, tools.StepTimeout),
		disassembleStep(StepDisassembleSecondary, secondary, tools.StepTimeout),
		exportStep(StepExportPrimary, primary, tools.StepTimeout),
		exportStep(StepExportSecondary, secondary, tools.StepTimeout),
		{
			Name:     StepTextDiff,
			Message:  "Begin to generate diff",
			Path:     tools.Diff,
			Args:     diffArgs,
			Timeout:  tools.StepTimeout,
			Stdout:   TextDiffPath(resultDir),
			Accept:   diffAccept,
			FailCode: ExitDiffFailed,
		},
		{
			Name:    StepBinDiff,
			Message: "Begin to generate BinDiff",
			Path:    tools.BinDiff,
			Args: []string{
				primary.BinExportPath(),
				secondary.BinExportPath(),
				"--output_dir=" + resultDir,
			},
			Timeout:  tools.BinDiffTimeout,
			FailCode: ExitDiffFailed,
		},
	}
}

// batch mode leaves <binary>.asm and the database next to the input
func disassembleStep(name string, t Target, timeout time.Duration) Step {
	return Step{
		Name:     name,
		Message:  fmt.Sprintf("Process %s", t.Name()),
		Path:     t.Disassembler,
		Args:     []string{"-B", t.Path},
		Timeout:  timeout,
		FailCode: ExitDependency,
	}
}

func exportStep(name string, t Target, timeout time.Duration) Step {
	return Step{
		Name:    name,
		Message: fmt.Sprintf("Generate BinExport file for %s", t.Name()),
		Path:    t.Disassembler,
		Args: []string{
			"-OBinExportModule:" + t.BinExportPath(),
			"-OBinExportAlsoLogToStdErr:TRUE",
			"-OBinExportAutoAction:BinExportBinary",
			t.DatabasePath(),
		},
		Timeout:  timeout,
		FailCode: ExitDiffFailed,
	}
}
