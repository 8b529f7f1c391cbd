package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-bindiff/internal/application"
	"github.com/bryanwahyu/automaton-bindiff/internal/domain/ai"
	"github.com/bryanwahyu/automaton-bindiff/internal/domain/analyst"
	"github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
)

// DefaultMaxDiffBytes caps how much of the listing diff goes into one prompt.
const DefaultMaxDiffBytes = 64 << 10

// ErrNotFinished is returned when the comparison has no listing diff yet.
var ErrNotFinished = errors.New("comparison has not finished successfully")

type Service struct {
	Client       ai.Client
	Repo         analyst.Repository
	Comparisons  diffs.Repository
	Clock        application.Clock
	MaxDiffBytes int
}

func NewService(client ai.Client, repo analyst.Repository, comparisons diffs.Repository, clock application.Clock) *Service {
	return &Service{Client: client, Repo: repo, Comparisons: comparisons, Clock: clock, MaxDiffBytes: DefaultMaxDiffBytes}
}

// Analyze sends one diff to the client as is.
func (s *Service) Analyze(ctx context.Context, in ai.DiffInput) (string, error) {
	if strings.TrimSpace(in.Diff) == "" {
		return "", ai.ErrEmptyDiff
	}
	return s.Client.Analyze(ctx, in)
}

// AnalyzeAndStore baca listing diff dari result dir -> AI -> simpan hasil
func (s *Service) AnalyzeAndStore(ctx context.Context, tenant string, id diffs.ComparisonID) (*analyst.Analysis, error) {
	c, err := s.Comparisons.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("comparison not found: %s", id)
	}
	if c.Status != diffs.StatusSuccess {
		return nil, ErrNotFinished
	}

	in, err := s.loadDiff(c)
	if err != nil {
		return nil, err
	}
	out, err := s.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}

	diffURL := c.Artifacts.TextDiff
	if diffURL == "" {
		diffURL = filepath.Join(c.ResultDir, diffs.TextDiffFile)
	}
	a := &analyst.Analysis{
		ID:           analyst.AnalysisID(uuid.New().String()),
		TenantID:     tenant,
		ComparisonID: string(c.ID),
		DiffURL:      diffURL,
		Result:       out,
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	return a, nil
}

func (s *Service) loadDiff(c *diffs.Comparison) (ai.DiffInput, error) {
	in := ai.DiffInput{Primary: c.Primary, Secondary: c.Secondary}
	b, err := os.ReadFile(filepath.Join(c.ResultDir, diffs.TextDiffFile))
	if err != nil {
		return in, fmt.Errorf("read listing diff: %w", err)
	}
	limit := s.MaxDiffBytes
	if limit <= 0 {
		limit = DefaultMaxDiffBytes
	}
	if len(b) > limit {
		b = b[:limit]
		// cut at the last full line
		if i := strings.LastIndexByte(string(b), '\n'); i > 0 {
			b = b[:i+1]
		}
		in.Truncated = true
	}
	in.Diff = string(b)
	return in, nil
}

// List analyses terbaru (paged)
func (s *Service) List(ctx context.Context, tenant string, page, pageSize int) ([]*analyst.Analysis, error) {
	return s.Repo.Paginate(ctx, tenant, page, pageSize)
}

// Latest analysis for one comparison, nil when none exists.
func (s *Service) Latest(ctx context.Context, tenant string, id diffs.ComparisonID) (*analyst.Analysis, error) {
	return s.Repo.LatestByComparison(ctx, tenant, string(id))
}
