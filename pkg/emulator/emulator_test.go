package emulator_test

import (
	"strings"
	"testing"

	"hackstack.dev/toolchain/pkg/emulator"
	"hackstack.dev/toolchain/pkg/hack"
)

// assemble is a small helper shared by the scenarios below: it runs a hand
// built hack.Program through the real code generator so every test ROM is
// produced the same way the assembler CLI would produce it.
func assemble(t *testing.T, program hack.Program) string {
	t.Helper()

	codegen := hack.NewCodeGenerator(program, hack.SymbolTable{})
	lines, err := codegen.Generate()
	if err != nil {
		t.Fatalf("unexpected error assembling test program: %s", err)
	}

	return strings.Join(lines, "\n")
}

func aInst(addr string) hack.AInstruction {
	return hack.AInstruction{LocType: hack.Raw, LocName: addr}
}

// Scenario 1: Add.asm -> Add.hack, RAM[0] == 5 after running to completion.
func TestAddProgram(t *testing.T) {
	rom := assemble(t, hack.Program{
		aInst("2"), hack.CInstruction{Dest: "D", Comp: "A"},
		aInst("3"), hack.CInstruction{Dest: "D", Comp: "D+A"},
		aInst("0"), hack.CInstruction{Dest: "M", Comp: "D"},
	})

	machine := emulator.NewMachine()
	if err := machine.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}

	if executed := machine.Step(6); executed != 6 {
		t.Fatalf("expected to execute 6 instructions, got %d", executed)
	}

	if got := machine.Memory()[0]; got != 5 {
		t.Fatalf("expected RAM[0] = 5, got %d", got)
	}
}

// Scenario 5: a ROM ending in an unconditional self-loop halts well before
// the requested step budget is exhausted. '@0' is the first instruction in
// the rom, so it addresses itself; '0;JMP' jumps back to it forever.
func TestSelfLoopHalts(t *testing.T) {
	rom := assemble(t, hack.Program{
		aInst("0"), hack.CInstruction{Dest: "", Comp: "0", Jump: "JMP"},
	})

	machine := emulator.NewMachine()
	if err := machine.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}

	if executed := machine.Step(1_000_000); executed > 2 {
		t.Fatalf("expected self-loop to halt within a couple instructions, executed %d", executed)
	}
}

// Scenario 6: with keyboard=65 ('A'), a ROM copying RAM[24576] into RAM[0]
// (@24576; D=M; @0; M=D, four raw instructions) shows RAM[0] = 65 once it runs
// to completion.
func TestKeyboardEcho(t *testing.T) {
	rom := assemble(t, hack.Program{
		aInst("24576"), hack.CInstruction{Dest: "D", Comp: "M"},
		aInst("0"), hack.CInstruction{Dest: "M", Comp: "D"},
	})

	machine := emulator.NewMachine()
	if err := machine.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}
	machine.SetKeyboard(emulator.KeyCode('A'))

	if executed := machine.Step(4); executed != 4 {
		t.Fatalf("expected to execute 4 instructions, got %d", executed)
	}

	if got := machine.Memory()[0]; got != 65 {
		t.Fatalf("expected RAM[0] = 65, got %d", got)
	}
}

// Emulator determinism: step(n) then step(m) == step(n+m) from the same
// initial state, as long as nothing external (e.g. the keyboard) changes in
// between.
func TestStepIsDeterministic(t *testing.T) {
	rom := assemble(t, hack.Program{
		aInst("5"), hack.CInstruction{Dest: "D", Comp: "A"},
		aInst("6"), hack.CInstruction{Dest: "D", Comp: "D+A"},
		aInst("0"), hack.CInstruction{Dest: "M", Comp: "D"},
	})

	split := emulator.NewMachine()
	if err := split.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}
	split.Step(2)
	split.Step(4)

	whole := emulator.NewMachine()
	if err := whole.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}
	whole.Step(6)

	if split.CPUState() != whole.CPUState() {
		t.Fatalf("expected identical cpu state, got %+v vs %+v", split.CPUState(), whole.CPUState())
	}
	if split.Memory() != whole.Memory() {
		t.Fatalf("expected identical memory state after equivalent step sequences")
	}
}

// A non-halting program (no self-loop sentinel) run well past its own length
// must wrap PC through the zero-filled ROM tail rather than index out of
// bounds: the tail decodes as inert '@0' A instructions, so Step keeps
// returning, never panics, and the program's own effect on RAM still holds.
func TestStepPastRomLengthDoesNotPanic(t *testing.T) {
	rom := assemble(t, hack.Program{
		aInst("2"), hack.CInstruction{Dest: "D", Comp: "A"},
		aInst("3"), hack.CInstruction{Dest: "D", Comp: "D+A"},
		aInst("0"), hack.CInstruction{Dest: "M", Comp: "D"},
	})

	machine := emulator.NewMachine()
	if err := machine.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}

	executed := machine.Step(40_000)
	if executed != 40_000 {
		t.Fatalf("expected to run the full step budget without halting, executed %d", executed)
	}

	if got := machine.Memory()[0]; got != 5 {
		t.Fatalf("expected RAM[0] = 5 to still hold after wrapping through the rom tail, got %d", got)
	}

	state := machine.CPUState()
	if state.A != 0 || state.D != 5 {
		t.Fatalf("expected a sane final cpu state after wrapping, got %+v", state)
	}
}

func TestLoadROMRejectsMalformedLine(t *testing.T) {
	machine := emulator.NewMachine()

	err := machine.LoadROM("0000000000000010\nnotbinary")
	if err == nil {
		t.Fatalf("expected an error for a malformed rom line, got nil")
	}
}

func TestLoadROMRejectsOverflow(t *testing.T) {
	machine := emulator.NewMachine()

	oversized := strings.Repeat("0000000000000000\n", emulator.RamSize+1)
	if err := machine.LoadROM(oversized); err == nil {
		t.Fatalf("expected an error for a rom exceeding max addressable memory, got nil")
	}
}

func TestScreenImageBitMapping(t *testing.T) {
	rom := assemble(t, hack.Program{
		aInst("1"), hack.CInstruction{Dest: "D", Comp: "A"},
		aInst("16384"), hack.CInstruction{Dest: "M", Comp: "D"},
	})

	machine := emulator.NewMachine()
	if err := machine.LoadROM(rom); err != nil {
		t.Fatalf("unexpected error loading rom: %s", err)
	}
	machine.Step(4)

	image := machine.ScreenImage()
	// word 0, bit 0 set -> pixel (0,0) on (green), pixel (1,0) still off (black).
	if image[0] != 0x00 || image[1] != 0xFF || image[2] != 0x00 || image[3] != 0xFF {
		t.Fatalf("expected pixel (0,0) to be green, got %v", image[0:4])
	}
	offPixel := 4 // pixel (1,0)
	if image[offPixel] != 0x00 || image[offPixel+1] != 0x00 || image[offPixel+2] != 0x00 {
		t.Fatalf("expected pixel (1,0) to be black, got %v", image[offPixel:offPixel+4])
	}
}
