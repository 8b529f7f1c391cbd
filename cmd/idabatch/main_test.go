package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/executor/ida"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// fakeTools writes shell stand-ins for idat, diff and bindiff plus a config
// pointing at them.
func fakeTools(t *testing.T, bindiffExit int) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	scripts := map[string]string{
		"idat": `
if [ "$1" = "-B" ]; then
  echo "listing of $2" > "$2.asm"
  : > "$2.idb"
  exit 0
fi
case "$1" in
  -OBinExportModule:*) : > "${1#-OBinExportModule:}" ;;
esac
exit 0
`,
		"diff": `
echo "1c1"
echo "< listing of a"
echo "---"
echo "> listing of b"
exit 1
`,
		"bindiff": fmt.Sprintf(`
p="${1##*/}"; p="${p%%.BinExport}"
s="${2##*/}"; s="${s%%.BinExport}"
out="${3#--output_dir=}"
: > "$out/${p}_vs_${s}.BinDiff"
exit %d
`, bindiffExit),
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, b := range []string{"a.bin", "b.bin"} {
		if err := os.WriteFile(filepath.Join(dir, b), []byte("plain data\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := fmt.Sprintf(`tools:
  diff: %[1]s/diff
  bindiff: %[1]s/bindiff
  idat: %[1]s/idat
  idat64: %[1]s/idat64
  stepTimeout: 10s
  bindiffTimeout: 10s
log:
  level: error
  noColor: true
`, dir)
	cfgPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, cfgPath
}

func TestWrongArgumentCount(t *testing.T) {
	for _, args := range [][]string{nil, {"a"}, {"a", "b"}, {"a", "b", "c", "d"}} {
		code, _, stderr := runCLI(t, args...)
		if code != ida.ExitUsage {
			t.Errorf("args %v: exit %d, want %d", args, code, ida.ExitUsage)
		}
		if !strings.Contains(stderr, "[Usage]: idabatch") {
			t.Errorf("args %v: usage not printed: %q", args, stderr)
		}
	}
}

func TestVersionAndHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	if code != 0 || !strings.Contains(stdout, version) {
		t.Fatalf("version: %d %q", code, stdout)
	}
	code, _, stderr := runCLI(t, "-h")
	if code != 0 || !strings.Contains(stderr, "Exit codes") {
		t.Fatalf("help: %d %q", code, stderr)
	}
}

func TestUnknownFlag(t *testing.T) {
	if code, _, _ := runCLI(t, "--bogus", "a", "b", "c"); code != ida.ExitUsage {
		t.Fatalf("exit %d", code)
	}
}

func TestMissingDependency(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("tools:\n  diff: %[1]s/none\n  bindiff: %[1]s/none\n  idat: %[1]s/none\n  idat64: %[1]s/none\n", dir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, _ := runCLI(t, "-c", cfgPath, "/a", "/b", filepath.Join(dir, "out"))
	if code != ida.ExitDependency {
		t.Fatalf("exit %d, want %d", code, ida.ExitDependency)
	}
}

func TestMissingConfigFile(t *testing.T) {
	code, _, stderr := runCLI(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "/a", "/b", "/c")
	if code != 1 || !strings.Contains(stderr, "config") {
		t.Fatalf("exit %d %q", code, stderr)
	}
}

func TestFullRunJSON(t *testing.T) {
	dir, cfgPath := fakeTools(t, 0)
	result := filepath.Join(dir, "result")

	code, stdout, stderr := runCLI(t, "--json", "-c", cfgPath,
		filepath.Join(dir, "a.bin"), filepath.Join(dir, "b.bin"), result)
	if code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, stderr)
	}

	var out struct {
		domain.RunResult
		ExitCode int `json:"exit_code"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout is not json: %v\n%s", err, stdout)
	}
	if len(out.Steps) != 6 || out.Stats.Changed != 1 {
		t.Errorf("result = %+v", out.RunResult)
	}
	for _, f := range []string{domain.TextDiffFile, domain.BinDiffFile} {
		if _, err := os.Stat(filepath.Join(result, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
}

func TestBinDiffFailureExitCode(t *testing.T) {
	dir, cfgPath := fakeTools(t, 2)
	code, _, _ := runCLI(t, "-c", cfgPath,
		filepath.Join(dir, "a.bin"), filepath.Join(dir, "b.bin"), filepath.Join(dir, "result"))
	if code != ida.ExitDiffFailed {
		t.Fatalf("exit %d, want %d", code, ida.ExitDiffFailed)
	}
}

func TestUploadWithoutMinio(t *testing.T) {
	dir, cfgPath := fakeTools(t, 0)
	code, _, _ := runCLI(t, "-u", "-c", cfgPath,
		filepath.Join(dir, "a.bin"), filepath.Join(dir, "b.bin"), filepath.Join(dir, "result"))
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
}

func TestArtifactPrefix(t *testing.T) {
	got := ArtifactPrefix(domain.RunResult{PrimaryPath: "/x/a.exe", SecondaryPath: "/y/b.exe"})
	if got != "a.exe_vs_b.exe" {
		t.Fatalf("prefix = %s", got)
	}
}
