package ida

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Stager gives every comparison private copies of its inputs. IDA writes the
// listing, database and BinExport next to the binary it reads, so two runs
// over the same input must not point idat at the same file.
type Stager struct {
	Log zerolog.Logger
}

func NewStager(log zerolog.Logger) *Stager { return &Stager{Log: log} }

// Stage clears dir and places each input under dir/<n>/<basename>, keeping
// the basename since bindiff names its output after it. Inputs are hard
// linked when possible and copied otherwise (different filesystem).
func (s *Stager) Stage(ctx context.Context, dir string, inputs ...string) ([]string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear staging directory: %w", err)
	}
	out := make([]string, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := ExpandPath(in)
		if err != nil {
			return nil, err
		}
		sub := filepath.Join(dir, fmt.Sprint(i))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("create staging directory: %w", err)
		}
		dst := filepath.Join(sub, filepath.Base(src))
		if err := linkOrCopy(src, dst); err != nil {
			return nil, fmt.Errorf("stage %s: %w", src, err)
		}
		s.Log.Debug().Str("src", src).Str("dst", dst).Msg("input staged")
		out = append(out, dst)
	}
	return out, nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
