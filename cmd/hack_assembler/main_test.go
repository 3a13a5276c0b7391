package main

import (
	"os"
	"path/filepath"
	"testing"

	"hackstack.dev/toolchain/pkg/emulator"
)

// Scenario 1 from the assembler's testable properties: Add.asm assembled and
// run to completion leaves RAM[0] = 5.
func TestHackAssemblerAdd(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "Add.asm")
	output := filepath.Join(dir, "Add.hack")

	source := "@2\nD=A\n@3\nD=D+A\n@0\nM=D\n"
	if err := os.WriteFile(input, []byte(source), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %s", err)
	}

	if status := Handler([]string{input, output}, nil); status != 0 {
		t.Fatalf("unexpected exit status: expected 0, got %d", status)
	}

	compiled, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("unexpected error reading compiled output: %s", err)
	}

	machine := emulator.NewMachine()
	if err := machine.LoadROM(string(compiled)); err != nil {
		t.Fatalf("unexpected error loading compiled rom: %s", err)
	}
	machine.Step(6)

	if got := machine.Memory()[0]; got != 5 {
		t.Fatalf("expected RAM[0] = 5, got %d", got)
	}
}

func TestHackAssemblerRejectsMissingInput(t *testing.T) {
	if status := Handler([]string{filepath.Join(t.TempDir(), "missing.asm"), filepath.Join(t.TempDir(), "out.hack")}, nil); status == 0 {
		t.Fatalf("expected a non-zero exit status for a missing input file")
	}
}
