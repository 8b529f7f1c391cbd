package ida

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/automaton-bindiff/internal/config"
	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
)

var ErrMissingDependency = errors.New("missing dependency")

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// CheckDependencies verifies diff, bindiff and at least one usable IDA text-mode
// binary exist. A forced disassembler mode requires that exact binary.
func CheckDependencies(tools config.Tools) error {
	if !exists(tools.Diff) {
		return fmt.Errorf("%w: %s not found", ErrMissingDependency, tools.Diff)
	}
	if !exists(tools.BinDiff) {
		return fmt.Errorf("%w: %s not found", ErrMissingDependency, tools.BinDiff)
	}
	switch tools.Disassembler {
	case config.DisassemblerIdat:
		if !exists(tools.Idat) {
			return fmt.Errorf("%w: %s not found", ErrMissingDependency, tools.Idat)
		}
	case config.DisassemblerIdat64:
		if !exists(tools.Idat64) {
			return fmt.Errorf("%w: %s not found", ErrMissingDependency, tools.Idat64)
		}
	default:
		if !exists(tools.Idat) && !exists(tools.Idat64) {
			return fmt.Errorf("%w: %s and %s not found", ErrMissingDependency, tools.Idat, tools.Idat64)
		}
	}
	return nil
}

// PrepareResultDir removes resultDir if present and creates it empty.
func PrepareResultDir(resultDir string, log zerolog.Logger) error {
	if _, err := os.Stat(resultDir); err == nil {
		log.Info().Str("dir", resultDir).Msg("result directory exists, clearing it first")
		if err := os.RemoveAll(resultDir); err != nil {
			return fmt.Errorf("clear result directory: %w", err)
		}
	}
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	return nil
}

// ResolveTarget picks idat or idat64 for one binary. Detection failures fall
// back to idat, matching what a plain batch run would do.
func ResolveTarget(tools config.Tools, binary string, log zerolog.Logger) Target {
	use64 := false
	switch tools.Disassembler {
	case config.DisassemblerIdat64:
		use64 = true
	case config.DisassemblerIdat:
	default:
		is64, err := Is64Bit(binary)
		if err != nil {
			log.Debug().Err(err).Str("binary", binary).Msg("bitness detection failed, using idat")
		}
		use64 = is64
		if use64 && !exists(tools.Idat64) && exists(tools.Idat) {
			use64 = false
		} else if !use64 && !exists(tools.Idat) && exists(tools.Idat64) {
			use64 = true
		}
	}

	if use64 {
		return Target{Path: binary, Disassembler: tools.Idat64, DBSuffix: domain.I64Suffix}
	}
	return Target{Path: binary, Disassembler: tools.Idat, DBSuffix: domain.IDBSuffix}
}
