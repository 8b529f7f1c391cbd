package ida

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/automaton-bindiff/internal/config"
	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
)

// StepError reports the first failing step of a run.
type StepError struct {
	Step     string
	ExitCode int // process exit status, -1 when it never exited normally
	Code     int // batch exit code
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s failed (exit %d): %v", e.Step, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("step %s failed (exit %d)", e.Step, e.ExitCode)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) FailedStep() string { return e.Step }
func (e *StepError) StepExitCode() int  { return e.ExitCode }

// ExitCodeFor maps a Run error to the batch exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, ErrMissingDependency) {
		return ExitDependency
	}
	return 1
}

// Pipeline runs the IDA -> BinExport -> diff -> BinDiff sequence on the local host.
type Pipeline struct {
	Tools config.Tools
	Log   zerolog.Logger

	// Stdout/Stderr receive tool console output; nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer
	// Env is the base environment; nil means os.Environ(). TVHEADLESS=1 is always added.
	Env []string
}

func NewPipeline(tools config.Tools, log zerolog.Logger) *Pipeline {
	return &Pipeline{Tools: tools, Log: log}
}

// Run implements diffs.Runner.
func (p *Pipeline) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	start := time.Now()
	var res domain.RunResult

	if err := CheckDependencies(p.Tools); err != nil {
		return res, err
	}

	primaryPath, err := ExpandPath(req.Primary)
	if err != nil {
		return res, err
	}
	secondaryPath, err := ExpandPath(req.Secondary)
	if err != nil {
		return res, err
	}
	resultDir, err := ExpandPath(req.ResultDir)
	if err != nil {
		return res, err
	}
	res.PrimaryPath, res.SecondaryPath, res.ResultDir = primaryPath, secondaryPath, resultDir

	if err := PrepareResultDir(resultDir, p.Log); err != nil {
		return res, err
	}

	primary := ResolveTarget(p.Tools, primaryPath, p.Log)
	secondary := ResolveTarget(p.Tools, secondaryPath, p.Log)
	res.Disassembler = disassemblerLabel(primary, secondary)

	p.Log.Info().Msgf("Process to differ %s and %s", primary.Name(), secondary.Name())
	p.Log.Info().Msgf("Path is %s and %s", primary.Path, secondary.Path)

	for _, step := range BuildSteps(p.Tools, primary, secondary, resultDir) {
		sr, err := p.runStep(ctx, step)
		res.Steps = append(res.Steps, sr)
		if err != nil {
			p.Log.Error().Err(err).Str("step", step.Name).Msg("step failed")
			res.DurationMS = time.Since(start).Milliseconds()
			return res, err
		}
	}

	from := BinDiffOutputPath(resultDir, primary, secondary)
	to := BinDiffResultPath(resultDir)
	if err := os.Rename(from, to); err != nil {
		res.DurationMS = time.Since(start).Milliseconds()
		return res, &StepError{Step: StepRename, ExitCode: -1, Code: ExitDiffFailed, Err: err}
	}
	res.TextDiffPath = TextDiffPath(resultDir)
	res.BinDiffPath = to

	stats, err := domain.ParseDiffStats(res.TextDiffPath)
	if err != nil {
		p.Log.Warn().Err(err).Msg("could not summarize listing diff")
	}
	res.Stats = stats
	res.DurationMS = time.Since(start).Milliseconds()

	p.Log.Info().
		Int("hunks", stats.Hunks).
		Int("added", stats.Added).
		Int("removed", stats.Removed).
		Int("changed", stats.Changed).
		Str("result_dir", resultDir).
		Msg("diff finished")
	return res, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step) (domain.StepResult, error) {
	sr := domain.StepResult{Name: step.Name, Command: step.Command()}
	p.Log.Info().Str("step", step.Name).Msg(step.Message)

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(tctx, step.Path, step.Args...)
	cmd.Env = p.env()
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// don't hang on grandchildren that keep our pipes open after a kill
	cmd.WaitDelay = 5 * time.Second

	if step.Stdout != "" {
		f, err := os.Create(step.Stdout)
		if err != nil {
			sr.ExitCode = -1
			return sr, &StepError{Step: step.Name, ExitCode: -1, Code: step.FailCode, Err: err}
		}
		defer f.Close()
		cmd.Stdout = f
	}

	err := cmd.Run()
	sr.DurationMS = time.Since(start).Milliseconds()

	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		switch {
		case tctx.Err() == context.DeadlineExceeded:
			sr.ExitCode = -1
			return sr, &StepError{Step: step.Name, ExitCode: -1, Code: step.FailCode,
				Err: fmt.Errorf("timed out after %s", timeout)}
		case ctx.Err() != nil:
			sr.ExitCode = -1
			return sr, &StepError{Step: step.Name, ExitCode: -1, Code: step.FailCode, Err: ctx.Err()}
		case errors.As(err, &ee):
			exitCode = ee.ExitCode()
		default:
			// could not start the process at all
			sr.ExitCode = 127
			return sr, &StepError{Step: step.Name, ExitCode: 127, Code: step.FailCode, Err: err}
		}
	}
	sr.ExitCode = exitCode

	if !step.accepts(exitCode) {
		return sr, &StepError{Step: step.Name, ExitCode: exitCode, Code: step.FailCode}
	}
	p.Log.Debug().Str("step", step.Name).Int("exit_code", exitCode).Int64("duration_ms", sr.DurationMS).Msg("step done")
	return sr, nil
}

func (p *Pipeline) env() []string {
	base := p.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+1)
	env = append(env, base...)
	return append(env, "TVHEADLESS=1")
}

func disassemblerLabel(primary, secondary Target) string {
	a := labelFor(primary)
	b := labelFor(secondary)
	if a == b {
		return a
	}
	return a + "," + b
}

func labelFor(t Target) string {
	if t.DBSuffix == domain.I64Suffix {
		return config.DisassemblerIdat64
	}
	return config.DisassemblerIdat
}
