package main

import (
	"os"
	"path/filepath"
	"testing"

	"pwdedup/internal/errs"
)

func discardPipe(t *testing.T) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		var tmp [4096]byte
		for {
			if _, err := r.Read(tmp[:]); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { w.Close(); r.Close() })
	return w
}

func TestRunMissingArgumentsReturnsUsageExitCode(t *testing.T) {
	out := discardPipe(t)
	code := run([]string{}, out, out)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2 (usage)", code)
	}
}

func TestRunUnknownFlagReturnsUsageExitCode(t *testing.T) {
	out := discardPipe(t)
	code := run([]string{"-not-a-real-flag"}, out, out)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2 (usage)", code)
	}
}

func TestRunDeduplicatesToOutputFile(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(inputPath, []byte("a\nb\na\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outputPath := filepath.Join(dir, "out.txt")
	tmpDir := filepath.Join(dir, "tmp")

	out := discardPipe(t)
	code := run([]string{"-tmp-dir", tmpDir, "-workers", "2", outputPath, inputPath}, out, out)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}

	var nlCount int
	for _, b := range got {
		if b == '\n' {
			nlCount++
		}
	}
	if nlCount != 3 {
		t.Fatalf("output has %d lines, want 3 distinct records: %q", nlCount, got)
	}
}

func TestRunUnknownMetricsBackendFails(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(inputPath, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outputPath := filepath.Join(dir, "out.txt")

	out := discardPipe(t)
	code := run([]string{"-metrics", "bogus", outputPath, inputPath}, out, out)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestExitCodeForUsageIsTwoAndOthersAreOne(t *testing.T) {
	if got := exitCodeFor(errs.Usage); got != 2 {
		t.Fatalf("exitCodeFor(Usage) = %d, want 2", got)
	}
	if got := exitCodeFor(errs.MapFailed); got != 1 {
		t.Fatalf("exitCodeFor(MapFailed) = %d, want 1", got)
	}
}
