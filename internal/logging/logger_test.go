package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    zerolog.Level
	}{
		{level: "", want: zerolog.InfoLevel},
		{level: "WARN", want: zerolog.WarnLevel},
		{level: "error", want: zerolog.ErrorLevel},
		{level: "debug", want: zerolog.DebugLevel},
		{level: "error", verbose: true, want: zerolog.DebugLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.level, tt.verbose); got != tt.want {
			t.Errorf("ParseLevel(%q, %v) = %v, want %v", tt.level, tt.verbose, got, tt.want)
		}
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "warn", false), "session")

	log.Info().Msg("hidden")
	log.Warn().Str("path", "/sdcard").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "component=session") {
		t.Errorf("output = %q", out)
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nookfb.log")
	log, closer, err := NewFile(path, "info", false)
	if err != nil {
		t.Fatalf("NewFile error = %v", err)
	}
	log.Info().Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), "hello") {
		t.Errorf("log file = %q", content)
	}

	if _, closer, err := NewFile("", "info", false); err != nil || closer.Close() != nil {
		t.Errorf("NewFile(\"\") = %v", err)
	}
}
