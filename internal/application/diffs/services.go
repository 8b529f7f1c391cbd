package diffs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/automaton-bindiff/internal/application"
	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/domain/steperrors"
)

// Service implements use-cases untuk Comparison.
// Artifacts and StepErrors are optional. Without Inputs the runner works on
// the caller's paths directly.
type Service struct {
	Repo       domain.Repository
	Runner     domain.Runner
	Inputs     domain.InputStager
	Artifacts  domain.ArtifactStore
	StepErrors steperrors.Repository
	Clock      application.Clock
	WorkDir    string
	Log        zerolog.Logger
}

// Command untuk trigger comparison
type TriggerCommand struct {
	TenantID  string
	Primary   string
	Secondary string
	Source    string
	Metadata  any
}

type TriggerResult struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	FailedStep string           `json:"failed_step,omitempty"`
	ExitCode   int              `json:"exit_code"`
	Stats      domain.DiffStats `json:"stats"`
	Artifacts  domain.Artifacts `json:"artifacts"`
	DurationMS int64            `json:"duration_ms"`
}

const (
	PhaseTrigger = "trigger"
	PhaseRetry   = "retry"
)

// Service-side steps around the pipeline run.
const (
	StepStage  = "stage-inputs"
	StepUpload = "upload"
)

// exitServiceFailure is the exit code of a comparison that failed outside
// the pipeline, same as the batch CLI uses for such errors.
const exitServiceFailure = 1

// Work directory layout: <WorkDir>/<tenant>/<id>/{inputs,result}
const (
	inputsDirName = "inputs"
	resultDirName = "result"
)

// Enqueue simpan row awal (status queued) supaya caller langsung punya ID
func (s *Service) Enqueue(ctx context.Context, cmd TriggerCommand) (*domain.Comparison, error) {
	id := uuid.New().String()
	c := &domain.Comparison{
		ID:            domain.ComparisonID(id),
		TenantID:      cmd.TenantID,
		TriggeredAt:   s.Clock.Now(),
		Primary:       filepath.Base(cmd.Primary),
		Secondary:     filepath.Base(cmd.Secondary),
		PrimaryPath:   cmd.Primary,
		SecondaryPath: cmd.Secondary,
		ResultDir:     filepath.Join(s.WorkDir, cmd.TenantID, id, resultDirName),
		Status:        domain.StatusQueued,
		Source:        cmd.Source,
		Metadata:      cmd.Metadata,
	}
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save comparison: %w", err)
	}
	return c, nil
}

// Trigger = Enqueue + Execute, blocking until the pipeline is done
func (s *Service) Trigger(ctx context.Context, cmd TriggerCommand) (TriggerResult, error) {
	c, err := s.Enqueue(ctx, cmd)
	if err != nil {
		return TriggerResult{Status: string(domain.StatusFailed)}, err
	}
	return s.Execute(ctx, c, PhaseTrigger)
}

// Execute jalankan pipeline sekali (tanpa retry) -> upload artifact -> simpan ke repo
func (s *Service) Execute(ctx context.Context, c *domain.Comparison, phase string) (TriggerResult, error) {
	if err := s.Repo.UpdateStatus(ctx, c.TenantID, c.ID, domain.StatusRunning); err != nil {
		s.Log.Warn().Err(err).Str("id", string(c.ID)).Msg("could not mark comparison running")
	}

	// the outcome is persisted even when ctx was cancelled mid-run
	saveCtx := context.WithoutCancel(ctx)

	primary, secondary := c.PrimaryPath, c.SecondaryPath
	if s.Inputs != nil {
		staged, err := s.Inputs.Stage(ctx, filepath.Join(filepath.Dir(c.ResultDir), inputsDirName), primary, secondary)
		if err != nil {
			return s.failOutsidePipeline(saveCtx, c, phase, StepStage, err)
		}
		primary, secondary = staged[0], staged[1]
	}

	res, runErr := s.Runner.Run(ctx, domain.RunRequest{
		Primary:   primary,
		Secondary: secondary,
		ResultDir: c.ResultDir,
	})

	c.Disassembler = res.Disassembler
	c.DurationMS = res.DurationMS
	if res.ResultDir != "" {
		c.ResultDir = res.ResultDir
	}

	if runErr != nil {
		c.Status = domain.StatusFailed
		c.FailedStep, c.ExitCode = "", -1
		var sf domain.StepFailure
		if errors.As(runErr, &sf) {
			c.FailedStep = sf.FailedStep()
			c.ExitCode = sf.StepExitCode()
		}
		s.recordStepError(saveCtx, c, phase, runErr)
		if err := s.Repo.Save(saveCtx, c); err != nil {
			s.Log.Error().Err(err).Str("id", string(c.ID)).Msg("could not save failed comparison")
		}
		return resultOf(c), runErr
	}

	c.Status = domain.StatusSuccess
	c.FailedStep, c.ExitCode = "", 0
	c.Stats = res.Stats
	c.Artifacts = domain.Artifacts{TextDiff: res.TextDiffPath, BinDiff: res.BinDiffPath}

	if s.Artifacts != nil {
		arts, err := s.upload(ctx, c, res)
		if err != nil {
			return s.failOutsidePipeline(saveCtx, c, phase, StepUpload, err)
		}
		c.Artifacts = arts
	}

	if err := s.Repo.Save(saveCtx, c); err != nil {
		return resultOf(c), fmt.Errorf("save comparison: %w", err)
	}
	return resultOf(c), nil
}

// failOutsidePipeline records a failure of a service-side step.
func (s *Service) failOutsidePipeline(ctx context.Context, c *domain.Comparison, phase, step string, cause error) (TriggerResult, error) {
	c.Status = domain.StatusFailed
	c.FailedStep, c.ExitCode = step, exitServiceFailure
	s.recordStepError(ctx, c, phase, cause)
	if err := s.Repo.Save(ctx, c); err != nil {
		s.Log.Error().Err(err).Str("id", string(c.ID)).Str("step", step).Msg("could not save failed comparison")
	}
	return resultOf(c), cause
}

func (s *Service) upload(ctx context.Context, c *domain.Comparison, res domain.RunResult) (domain.Artifacts, error) {
	var arts domain.Artifacts
	prefix := fmt.Sprintf("%s/%s", c.TenantID, c.ID)

	url, err := s.Artifacts.Upload(ctx, res.TextDiffPath, prefix+"/"+domain.TextDiffFile)
	if err != nil {
		return arts, fmt.Errorf("upload %s: %w", domain.TextDiffFile, err)
	}
	arts.TextDiff = url

	url, err = s.Artifacts.Upload(ctx, res.BinDiffPath, prefix+"/"+domain.BinDiffFile)
	if err != nil {
		return arts, fmt.Errorf("upload %s: %w", domain.BinDiffFile, err)
	}
	arts.BinDiff = url
	return arts, nil
}

func (s *Service) recordStepError(ctx context.Context, c *domain.Comparison, phase string, cause error) {
	if s.StepErrors == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"primary":      c.PrimaryPath,
		"secondary":    c.SecondaryPath,
		"result_dir":   c.ResultDir,
		"disassembler": c.Disassembler,
		"duration_ms":  c.DurationMS,
	})
	e := &steperrors.StepError{
		TenantID:     c.TenantID,
		ComparisonID: string(c.ID),
		Step:         c.FailedStep,
		Phase:        phase,
		ExitCode:     c.ExitCode,
		Message:      cause.Error(),
		DetailsJSON:  string(details),
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.StepErrors.Save(ctx, e); err != nil {
		s.Log.Warn().Err(err).Str("id", string(c.ID)).Msg("could not record step error")
	}
}

// Retry: jalankan ulang comparison yang sudah ada (biasanya yang failed)
func (s *Service) Retry(ctx context.Context, tenant string, id domain.ComparisonID) (TriggerResult, error) {
	c, err := s.PrepareRetry(ctx, tenant, id)
	if err != nil {
		return TriggerResult{}, err
	}
	return s.Execute(ctx, c, PhaseRetry)
}

// ErrInProgress is returned when a retry targets a comparison that has not finished.
var ErrInProgress = errors.New("comparison is still in progress")

// PrepareRetry marks a finished comparison queued again so Execute can rerun it.
func (s *Service) PrepareRetry(ctx context.Context, tenant string, id domain.ComparisonID) (*domain.Comparison, error) {
	c, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("comparison not found: %s", id)
	}
	if c.Status == domain.StatusQueued || c.Status == domain.StatusRunning {
		return nil, ErrInProgress
	}
	// the status check above is only a fast path; Requeue decides
	ok, err := s.Repo.Requeue(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInProgress
	}
	c.Status = domain.StatusQueued
	return c, nil
}

// Latest ambil N comparison terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Comparison, error) {
	return s.Repo.Latest(ctx, tenant, limit)
}

// Get ambil 1 comparison by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.ComparisonID) (*domain.Comparison, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Summary rekap N hari terakhir
func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (domain.Summary, error) {
	return s.Repo.Summary(ctx, tenant, sinceDays)
}

// Errors lists recorded step failures of one comparison.
func (s *Service) Errors(ctx context.Context, tenant string, id domain.ComparisonID, limit int) ([]*steperrors.StepError, error) {
	if s.StepErrors == nil {
		return nil, nil
	}
	return s.StepErrors.ListByComparison(ctx, tenant, string(id), limit)
}

func resultOf(c *domain.Comparison) TriggerResult {
	return TriggerResult{
		ID:         string(c.ID),
		Status:     string(c.Status),
		FailedStep: c.FailedStep,
		ExitCode:   c.ExitCode,
		Stats:      c.Stats,
		Artifacts:  c.Artifacts,
		DurationMS: c.DurationMS,
	}
}
