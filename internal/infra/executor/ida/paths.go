package ida

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
)

// ExpandPath expands a leading "~" and returns the absolute, cleaned path.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// Target is one input binary plus the paths IDA derives from it.
type Target struct {
	Path         string
	Disassembler string // executable path
	DBSuffix     string // .idb or .i64
}

func (t Target) Name() string          { return filepath.Base(t.Path) }
func (t Target) ListingPath() string   { return t.Path + domain.ASMSuffix }
func (t Target) DatabasePath() string  { return t.Path + t.DBSuffix }
func (t Target) BinExportPath() string { return t.Path + domain.BinExportSuffix }

// BinDiffOutputPath is the name bindiff gives its result inside resultDir.
func BinDiffOutputPath(resultDir string, primary, secondary Target) string {
	return filepath.Join(resultDir, primary.Name()+"_vs_"+secondary.Name()+domain.BinDiffSuffix)
}

func TextDiffPath(resultDir string) string {
	return filepath.Join(resultDir, domain.TextDiffFile)
}

func BinDiffResultPath(resultDir string) string {
	return filepath.Join(resultDir, domain.BinDiffFile)
}
