package diffs

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/sourcegraph/go-diff/diff"
)

// normal diff hunk header, e.g. "12,14c12,15", "3a4", "7d6"
var normalHunkHeader = regexp.MustCompile(`^\d+(?:,\d+)?([acd])\d+(?:,\d+)?$`)

// ParseDiffStats reads a text-diff result file and summarizes it.
// Both the default (normal) diff output and unified output (diff -u) are understood.
func ParseDiffStats(path string) (DiffStats, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DiffStats{}, err
	}
	return DiffStatsFromBytes(b)
}

func DiffStatsFromBytes(b []byte) (DiffStats, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return DiffStats{}, nil
	}
	if isUnified(b) {
		return unifiedStats(b)
	}
	return normalStats(b)
}

func isUnified(b []byte) bool {
	return bytes.HasPrefix(b, []byte("--- ")) || bytes.Contains(b, []byte("\n@@ ")) || bytes.HasPrefix(b, []byte("@@ "))
}

func unifiedStats(b []byte) (DiffStats, error) {
	fds, err := diff.ParseMultiFileDiff(b)
	if err != nil {
		return DiffStats{}, fmt.Errorf("parse unified diff: %w", err)
	}
	var st DiffStats
	for _, fd := range fds {
		if len(fd.Hunks) == 0 {
			continue
		}
		st.Files++
		for _, h := range fd.Hunks {
			s := h.Stat()
			st.Hunks++
			st.Added += int(s.Added)
			st.Removed += int(s.Deleted)
			st.Changed += int(s.Changed)
		}
	}
	return st, nil
}

func normalStats(b []byte) (DiffStats, error) {
	var st DiffStats
	var added, removed int
	var kind string

	flush := func() {
		if kind == "" {
			return
		}
		changed := 0
		if kind == "c" {
			changed = min(added, removed)
		}
		st.Added += added - changed
		st.Removed += removed - changed
		st.Changed += changed
		added, removed = 0, 0
	}

	s := bufio.NewScanner(bytes.NewReader(b))
	// listing lines can be long
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		line := s.Text()
		switch {
		case len(line) > 0 && line[0] == '<':
			removed++
		case len(line) > 0 && line[0] == '>':
			added++
		case line == "---", len(line) > 0 && line[0] == '\\':
			// separator / "\ No newline at end of file"
		default:
			m := normalHunkHeader.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			flush()
			kind = m[1]
			st.Hunks++
		}
	}
	if err := s.Err(); err != nil {
		return DiffStats{}, err
	}
	flush()
	if st.Hunks > 0 {
		st.Files = 1
	}
	return st, nil
}
