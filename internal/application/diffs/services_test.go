package diffs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/db/memory"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/executor/ida"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stepErr struct {
	step string
	code int
}

func (e stepErr) Error() string      { return "step " + e.step + " failed" }
func (e stepErr) FailedStep() string { return e.step }
func (e stepErr) StepExitCode() int  { return e.code }

type fakeRunner struct {
	res  domain.RunResult
	err  error
	reqs []domain.RunRequest
}

func (f *fakeRunner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	f.reqs = append(f.reqs, req)
	res := f.res
	res.ResultDir = req.ResultDir
	return res, f.err
}

type fakeStore struct {
	keys []string
	err  error
}

func (f *fakeStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "s3://bucket/" + key, nil
}

func newService(r domain.Runner) (*Service, *memory.ComparisonRepository, *memory.StepErrorRepository) {
	repo := memory.NewComparisonRepository()
	errs := memory.NewStepErrorRepository()
	return &Service{
		Repo:       repo,
		Runner:     r,
		StepErrors: errs,
		Clock:      fixedClock{time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		WorkDir:    "/tmp/results",
		Log:        zerolog.Nop(),
	}, repo, errs
}

func TestTriggerSuccess(t *testing.T) {
	runner := &fakeRunner{res: domain.RunResult{
		Disassembler: "idat",
		TextDiffPath: "/tmp/results/acme/x/diff_result.diff",
		BinDiffPath:  "/tmp/results/acme/x/bindiff_result.BinDiff",
		Stats:        domain.DiffStats{Hunks: 2, Added: 3},
		DurationMS:   42,
	}}
	svc, repo, _ := newService(runner)

	res, err := svc.Trigger(context.Background(), TriggerCommand{
		TenantID: "acme", Primary: "/bins/a.exe", Secondary: "/bins/b.exe", Source: "api",
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.Status != string(domain.StatusSuccess) || res.ExitCode != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(runner.reqs) != 1 {
		t.Fatalf("runner called %d times", len(runner.reqs))
	}
	want := "/tmp/results/acme/" + res.ID + "/result"
	if runner.reqs[0].ResultDir != want {
		t.Errorf("result dir = %q, want %q", runner.reqs[0].ResultDir, want)
	}

	c, err := repo.Get(context.Background(), "acme", domain.ComparisonID(res.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Primary != "a.exe" || c.Secondary != "b.exe" {
		t.Errorf("names = %q/%q", c.Primary, c.Secondary)
	}
	if c.Stats.Added != 3 || c.Artifacts.BinDiff == "" || c.Disassembler != "idat" {
		t.Errorf("stored comparison incomplete: %+v", c)
	}
}

func TestTriggerStepFailureIsRecorded(t *testing.T) {
	runner := &fakeRunner{err: stepErr{step: "bindiff", code: 2}}
	svc, repo, _ := newService(runner)

	res, err := svc.Trigger(context.Background(), TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Status != string(domain.StatusFailed) || res.FailedStep != "bindiff" || res.ExitCode != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	c, _ := repo.Get(context.Background(), "acme", domain.ComparisonID(res.ID))
	if c.Status != domain.StatusFailed {
		t.Errorf("status = %s", c.Status)
	}

	list, err := svc.Errors(context.Background(), "acme", domain.ComparisonID(res.ID), 10)
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	if len(list) != 1 || list[0].Step != "bindiff" || list[0].Phase != PhaseTrigger {
		t.Fatalf("step errors = %+v", list)
	}
}

func TestTriggerUnknownFailure(t *testing.T) {
	svc, _, _ := newService(&fakeRunner{err: errors.New("boom")})
	res, err := svc.Trigger(context.Background(), TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.FailedStep != "" || res.ExitCode != -1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRetryReusesComparison(t *testing.T) {
	runner := &fakeRunner{err: stepErr{step: "text-diff", code: 2}}
	svc, repo, _ := newService(runner)
	ctx := context.Background()

	first, _ := svc.Trigger(ctx, TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"})

	runner.err = nil
	res, err := svc.Retry(ctx, "acme", domain.ComparisonID(first.ID))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.ID != first.ID || res.Status != string(domain.StatusSuccess) {
		t.Fatalf("unexpected retry result %+v", res)
	}
	if runner.reqs[0].ResultDir != runner.reqs[1].ResultDir {
		t.Errorf("retry used another result dir: %v", runner.reqs)
	}
	latest, _ := repo.Latest(ctx, "acme", 10)
	if len(latest) != 1 {
		t.Errorf("retry created a new row: %d", len(latest))
	}
}

func TestRetryUnknown(t *testing.T) {
	svc, _, _ := newService(&fakeRunner{})
	if _, err := svc.Retry(context.Background(), "acme", "missing"); err == nil {
		t.Fatal("expected error for unknown comparison")
	}
}

func TestUploadArtifacts(t *testing.T) {
	runner := &fakeRunner{res: domain.RunResult{TextDiffPath: "/r/diff_result.diff", BinDiffPath: "/r/bindiff_result.BinDiff"}}
	svc, _, _ := newService(runner)
	store := &fakeStore{}
	svc.Artifacts = store

	res, err := svc.Trigger(context.Background(), TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(store.keys) != 2 {
		t.Fatalf("uploaded %v", store.keys)
	}
	if store.keys[0] != "acme/"+res.ID+"/diff_result.diff" {
		t.Errorf("key = %s", store.keys[0])
	}
	if res.Artifacts.BinDiff != "s3://bucket/acme/"+res.ID+"/bindiff_result.BinDiff" {
		t.Errorf("bindiff url = %s", res.Artifacts.BinDiff)
	}
}

func TestUploadFailureMarksFailed(t *testing.T) {
	svc, _, _ := newService(&fakeRunner{})
	svc.Artifacts = &fakeStore{err: errors.New("bucket gone")}

	res, err := svc.Trigger(context.Background(), TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"})
	if err == nil {
		t.Fatal("expected upload error")
	}
	if res.Status != string(domain.StatusFailed) || res.FailedStep != StepUpload || res.ExitCode != 1 {
		t.Errorf("result = %+v", res)
	}
}

// saveFailingRepo refuses to store failed comparisons.
type saveFailingRepo struct {
	*memory.ComparisonRepository
}

func (r saveFailingRepo) Save(ctx context.Context, c *domain.Comparison) error {
	if c.Status == domain.StatusFailed {
		return errors.New("db down")
	}
	return r.ComparisonRepository.Save(ctx, c)
}

func TestUploadFailureSaveErrorIsLogged(t *testing.T) {
	svc, repo, _ := newService(&fakeRunner{})
	var buf bytes.Buffer
	svc.Log = zerolog.New(&buf)
	svc.Repo = saveFailingRepo{repo}
	svc.Artifacts = &fakeStore{err: errors.New("bucket gone")}

	if _, err := svc.Trigger(context.Background(), TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"}); err == nil {
		t.Fatal("expected upload error")
	}
	if !strings.Contains(buf.String(), "could not save failed comparison") || !strings.Contains(buf.String(), "db down") {
		t.Errorf("save error not logged: %s", buf.String())
	}
}

// gatedRepo holds every Get until two callers have read the row.
type gatedRepo struct {
	*memory.ComparisonRepository
	gate sync.WaitGroup
}

func (r *gatedRepo) Get(ctx context.Context, tenant string, id domain.ComparisonID) (*domain.Comparison, error) {
	c, err := r.ComparisonRepository.Get(ctx, tenant, id)
	r.gate.Done()
	r.gate.Wait()
	return c, err
}

func TestConcurrentRetryOnlyOneWins(t *testing.T) {
	svc, repo, _ := newService(&fakeRunner{err: stepErr{step: "bindiff", code: 2}})
	ctx := context.Background()
	first, _ := svc.Trigger(ctx, TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"})

	gated := &gatedRepo{ComparisonRepository: repo}
	gated.gate.Add(2)
	svc.Repo = gated

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.PrepareRetry(ctx, "acme", domain.ComparisonID(first.ID))
		}()
	}
	wg.Wait()

	wins, busy := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInProgress):
			busy++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || busy != 1 {
		t.Fatalf("wins=%d busy=%d", wins, busy)
	}
	c, _ := repo.Get(ctx, "acme", domain.ComparisonID(first.ID))
	if c.Status != domain.StatusQueued {
		t.Errorf("status = %s", c.Status)
	}
}

// listingRunner writes <input>.asm next to each input like idat -B does,
// waits until every run has written, then checks nobody overwrote its files.
type listingRunner struct {
	gate sync.WaitGroup
	mu   sync.Mutex
	reqs []domain.RunRequest
}

func (l *listingRunner) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	l.mu.Lock()
	l.reqs = append(l.reqs, req)
	l.mu.Unlock()

	res := domain.RunResult{ResultDir: req.ResultDir}
	for _, in := range []string{req.Primary, req.Secondary} {
		if err := os.WriteFile(in+domain.ASMSuffix, []byte(req.ResultDir), 0o644); err != nil {
			return res, err
		}
	}
	l.gate.Done()
	l.gate.Wait()
	for _, in := range []string{req.Primary, req.Secondary} {
		b, err := os.ReadFile(in + domain.ASMSuffix)
		if err != nil {
			return res, err
		}
		if string(b) != req.ResultDir {
			return res, fmt.Errorf("%s was overwritten by another run", in+domain.ASMSuffix)
		}
	}
	return res, nil
}

func TestOverlappingComparisonsDoNotShareInputs(t *testing.T) {
	bins := t.TempDir()
	for _, n := range []string{"a", "b", "c"} {
		if err := os.WriteFile(filepath.Join(bins, n), []byte("bin "+n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	runner := &listingRunner{}
	runner.gate.Add(2)
	svc, _, _ := newService(runner)
	svc.WorkDir = t.TempDir()
	svc.Inputs = ida.NewStager(zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]TriggerResult, 2)
	errs := make([]error, 2)
	for i, second := range []string{"b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Trigger(context.Background(), TriggerCommand{
				TenantID: "acme", Primary: filepath.Join(bins, "a"), Secondary: filepath.Join(bins, second),
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("comparison %d: %v", i, err)
		}
		if results[i].Status != string(domain.StatusSuccess) {
			t.Fatalf("comparison %d: %+v", i, results[i])
		}
	}
	for _, req := range runner.reqs {
		if filepath.Base(req.Primary) != "a" {
			t.Errorf("staged primary lost its name: %s", req.Primary)
		}
		if !strings.HasPrefix(req.Primary, filepath.Dir(req.ResultDir)+string(filepath.Separator)) {
			t.Errorf("primary %s staged outside its comparison", req.Primary)
		}
	}
	if _, err := os.Stat(filepath.Join(bins, "a"+domain.ASMSuffix)); !os.IsNotExist(err) {
		t.Errorf("listing written next to the caller's binary: %v", err)
	}
}

func TestStageFailureMarksFailed(t *testing.T) {
	runner := &fakeRunner{}
	svc, repo, errs := newService(runner)
	svc.WorkDir = t.TempDir()
	svc.Inputs = ida.NewStager(zerolog.Nop())

	res, err := svc.Trigger(context.Background(), TriggerCommand{
		TenantID: "acme", Primary: filepath.Join(t.TempDir(), "missing"), Secondary: "/bin/sh",
	})
	if err == nil {
		t.Fatal("expected staging error")
	}
	if res.FailedStep != StepStage || res.ExitCode != 1 || len(runner.reqs) != 0 {
		t.Fatalf("result = %+v runs=%d", res, len(runner.reqs))
	}
	c, _ := repo.Get(context.Background(), "acme", domain.ComparisonID(res.ID))
	if c.Status != domain.StatusFailed {
		t.Errorf("status = %s", c.Status)
	}
	list, _ := errs.ListByComparison(context.Background(), "acme", res.ID, 10)
	if len(list) != 1 || list[0].Step != StepStage {
		t.Errorf("step errors = %+v", list)
	}
}

func TestSummaryAndLatest(t *testing.T) {
	svc, _, _ := newService(&fakeRunner{res: domain.RunResult{Stats: domain.DiffStats{Added: 1, Removed: 2}}})
	svc.Clock = fixedClock{time.Now()}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Trigger(ctx, TriggerCommand{TenantID: "acme", Primary: "a", Secondary: "b"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Trigger(ctx, TriggerCommand{TenantID: "other", Primary: "a", Secondary: "b"}); err != nil {
		t.Fatal(err)
	}

	s, err := svc.Summary(ctx, "acme", 7)
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 3 || s.Success != 3 || s.Changed != 9 {
		t.Errorf("summary = %+v", s)
	}
	latest, _ := svc.Latest(ctx, "acme", 2)
	if len(latest) != 2 {
		t.Errorf("latest len = %d", len(latest))
	}
}
