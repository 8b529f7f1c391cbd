package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %v,%v want %v,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestInitWritesAppField(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogNoColor, "")

	var buf bytes.Buffer
	logger := Init("idabatch", Options{Level: "info", NoColor: true, Out: &buf})
	logger.Info().Msg("Basic process")
	logger.Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, "Basic process") || !strings.Contains(out, "app=idabatch") {
		t.Fatalf("unexpected log output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer
	logger := Init("idabatch", Options{Level: "debug", NoColor: true, Out: &buf})
	logger.Info().Msg("quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed by env override, got %q", buf.String())
	}
}
