package ui

import (
	"strings"
	"testing"
)

func TestBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.in); got != tt.want {
			t.Fatalf("Bytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableContainsCells(t *testing.T) {
	t.Parallel()

	out := Table([]string{"PEER", "ADDRESS"}, [][]string{{"peer-laptop", "10.66.0.2/32"}})
	for _, want := range []string{"PEER", "peer-laptop", "10.66.0.2/32"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Table() missing %q:\n%s", want, out)
		}
	}
}

func TestKeyValuesAligns(t *testing.T) {
	t.Parallel()

	out := KeyValues("", KV("Peers", "2"), KV("Root", "/var/lib/wg"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("KeyValues() = %q", out)
	}
	if !strings.Contains(out, "2") || !strings.Contains(out, "/var/lib/wg") {
		t.Fatalf("KeyValues() = %q", out)
	}
}
