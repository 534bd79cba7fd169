package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{" debug ", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if err != nil {
			t.Fatalf("parseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := parseLevel("loud"); err == nil {
		t.Fatal("parseLevel(loud) expected error")
	}
}

func TestConfigureWriterJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, LevelDebug, FormatJSON); err != nil {
		t.Fatalf("ConfigureWriter() error = %v", err)
	}
	Component("nat").Debug("installed", "family", "ip")

	out := buf.String()
	if !strings.Contains(out, `"component":"nat"`) || !strings.Contains(out, `"family":"ip"`) {
		t.Fatalf("log output = %q, want json with component and family", out)
	}
}

func TestConfigureWriterRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if err := ConfigureWriter(&bytes.Buffer{}, LevelInfo, "xml"); err == nil {
		t.Fatal("ConfigureWriter(xml) expected error")
	}
}
