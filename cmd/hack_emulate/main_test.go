package main

import (
	"os"
	"path/filepath"
	"testing"
)

// Headless mode needs no terminal, so it is the only mode exercised here: the
// interactive path's raw-mode switch requires a real tty and is left to manual
// testing, same as the teacher leaves terminal-raw-mode code manually tested.
func TestHackEmulateHeadlessAdd(t *testing.T) {
	dir := t.TempDir()
	rom := filepath.Join(dir, "Add.hack")

	// @2 D=A @3 D=D+A @0 M=D @6 0;JMP (a self-addressing halt on its own line)
	source := "0000000000000010\n1110110000010000\n0000000000000011\n1110000010010000\n0000000000000000\n1110001100001000\n0000000000000110\n1110101010000111\n"
	if err := os.WriteFile(rom, []byte(source), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %s", err)
	}

	status := Handler([]string{rom}, map[string]string{"headless": "true", "steps": "64"})
	if status != 0 {
		t.Fatalf("unexpected exit status: expected 0, got %d", status)
	}
}

func TestHackEmulateRejectsMissingRom(t *testing.T) {
	status := Handler([]string{filepath.Join(t.TempDir(), "missing.hack")}, map[string]string{"headless": "true"})
	if status == 0 {
		t.Fatalf("expected a non-zero exit status for a missing rom file")
	}
}

func TestHackEmulateRejectsBadStepCount(t *testing.T) {
	dir := t.TempDir()
	rom := filepath.Join(dir, "Add.hack")
	if err := os.WriteFile(rom, []byte("0000000000000000\n"), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %s", err)
	}

	status := Handler([]string{rom}, map[string]string{"headless": "true", "steps": "-1"})
	if status == 0 {
		t.Fatalf("expected a non-zero exit status for a negative --steps value")
	}
}
