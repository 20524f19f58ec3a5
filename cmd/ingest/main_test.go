package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestClassifyCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"classify", "MTZ OUT 2025.xlsx", "export MTZ.csv", "random.csv"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("classify: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	for i, want := range []string{"sla_violation", "main_incident", "unknown"} {
		if !strings.HasPrefix(lines[i], want) {
			t.Fatalf("line %d: expected %s, got %q", i, want, lines[i])
		}
	}
}

func TestImportRejectsDryRunWithResolve(t *testing.T) {
	rootCmd.SetArgs([]string{"import", "--dry-run", "--resolve-ghosts", "MTZ.csv"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--resolve-ghosts") {
		t.Fatalf("expected flag conflict error, got %v", err)
	}
}
