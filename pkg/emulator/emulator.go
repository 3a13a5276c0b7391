package emulator

import (
	"fmt"
	"strconv"
)

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the Hack CPU emulator.
//
// The emulator executes already-assembled Hack binary (.hack) programs directly,
// without going through any of the other toolchain stages; it is the terminal
// consumer of the bit encoding that 'pkg/hack' produces.

const (
	RamSize    = 1 << 15 // 32768 addressable 16-bit words
	ScreenBase = 16384   // First word of the memory-mapped screen
	ScreenEnd  = 24576   // One past the last word of the memory-mapped screen
	KbdAddr    = 24576   // Memory-mapped keyboard register
)

// CPUState is a read-only snapshot of the registers exposed to a host UI.
type CPUState struct {
	A, D, M, PC uint16
}

// Machine is the whole emulated state of a Hack computer: its three registers,
// its 32K word RAM (which aliases the screen and keyboard at fixed offsets) and
// the currently-loaded ROM.
type Machine struct {
	rom [RamSize]uint16 // Program memory, indexed by PC
	ram [RamSize]uint16 // Data memory, including the memory-mapped I/O region

	a, d, pc uint16
}

// NewMachine allocates a Machine with all registers and memory zeroed; call
// LoadROM before stepping it.
func NewMachine() *Machine {
	return &Machine{}
}

// LoadROM parses 'text' as a sequence of newline-separated 16-character binary
// strings (as produced by 'hack.CodeGenerator.Generate') and installs it as this
// Machine's program memory, resetting every register and clearing RAM.
//
// A line that isn't exactly 16 '0'/'1' characters is rejected as malformed; a
// program with more than RamSize lines overflows the addressable ROM.
func (m *Machine) LoadROM(text string) error {
	lines := splitLines(text)
	if len(lines) > RamSize {
		return fmt.Errorf("rom overflow: got %d instructions, max addressable is %d", len(lines), RamSize)
	}

	var rom [RamSize]uint16
	for i, line := range lines {
		if len(line) != 16 {
			return fmt.Errorf("malformed rom line %d: expected 16 characters, got %d", i, len(line))
		}

		value, err := strconv.ParseUint(line, 2, 16)
		if err != nil {
			return fmt.Errorf("malformed rom line %d: %w", i, err)
		}

		rom[i] = uint16(value)
	}

	m.rom = rom
	m.ram = [RamSize]uint16{}
	m.a, m.d, m.pc = 0, 0, 0

	return nil
}

// splitLines splits 'text' on '\n', trimming a trailing '\r' from each line and
// dropping a trailing blank line left over from a final newline.
func splitLines(text string) []string {
	lines := []string{}
	start := 0

	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, trimCR(text[start:i]))
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, trimCR(text[start:]))
	}

	return lines
}

func trimCR(line string) string {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}

// Step executes up to 'n' fetch-decode-execute cycles and returns how many were
// actually run. It stops early, before reaching 'n', when the instruction at PC
// is the unconditional self-loop sentinel (an infinite 'goto' to itself) that a
// halted Jack program (via Sys.halt) compiles down to — running it further would
// do nothing but spin the host CPU.
func (m *Machine) Step(n int) int {
	executed := 0

	for ; executed < n; executed++ {
		if m.isSelfLoop() {
			break
		}
		m.cycle()
	}

	return executed
}

// isSelfLoop reports whether the current PC sits on the canonical Hack halt
// idiom '(END) @END; 0;JMP': an A instruction that addresses itself,
// immediately followed by an unconditional jump back to it. A CPU stuck in
// this two-instruction cycle will spin forever, so Step stops as soon as it's
// about to re-enter it instead of burning the remaining step budget.
func (m *Machine) isSelfLoop() bool {
	if m.pc == 0 {
		return false
	}

	jumpWord := m.rom[m.pc&0x7FFF]
	if jumpWord&(1<<15) == 0 { // Not a C instruction, can't be the jump half
		return false
	}
	if jumpWord&0b111 != 0b111 { // Not an unconditional jump
		return false
	}

	prev := (m.pc - 1) & 0x7FFF
	aWord := m.rom[prev]
	if aWord&(1<<15) != 0 { // Preceding instruction must be an A instruction
		return false
	}

	addr := aWord & 0x7FFF
	return addr == prev && m.a == addr
}

// cycle runs a single fetch-decode-execute step. PC is masked on fetch the
// same way an address into ram is, so walking off the end of a non-halting
// program wraps into the ROM's zero-filled tail (decoded as inert A
// instructions) instead of indexing out of bounds.
func (m *Machine) cycle() {
	word := m.rom[m.pc&0x7FFF]

	if word&(1<<15) == 0 { // A instruction
		m.a = word & 0x7FFF
		m.pc++
		return
	}

	a := (word >> 12) & 0b1
	comp := (word >> 6) & 0b111111
	dest := (word >> 3) & 0b111
	jump := word & 0b111

	y := m.a
	if a == 1 {
		y = m.ram[m.a&0x7FFF]
	}

	out := alu(m.d, y, comp)

	if dest&0b100 != 0 { // A
		m.a = out
	}
	if dest&0b010 != 0 { // D
		m.d = out
	}
	if dest&0b001 != 0 { // M
		m.ram[m.a&0x7FFF] = out
	}

	if shouldJump(out, jump) {
		m.pc = m.a
	} else {
		m.pc++
	}
}

// alu computes the Hack ALU function identified by the 6-bit 'ccc cccc' code
// c1..c6 (zx,nx,zy,ny,f,no) over inputs x (the D register) and y (A or M,
// already resolved by the caller according to the instruction's 'a' bit).
func alu(x, y, c uint16) uint16 {
	zx, nx, zy, ny, f, no := c&0b100000 != 0, c&0b010000 != 0, c&0b001000 != 0, c&0b000100 != 0, c&0b000010 != 0, c&0b000001 != 0

	if zx {
		x = 0
	}
	if nx {
		x = ^x
	}
	if zy {
		y = 0
	}
	if ny {
		y = ^y
	}

	var out uint16
	if f {
		out = x + y
	} else {
		out = x & y
	}
	if no {
		out = ^out
	}

	return out
}

// shouldJump decides, given the ALU 'out' (reinterpreted as a signed 16-bit
// value) and the 3-bit jump code j1 j2 j3 (less-than, equal, greater-than),
// whether the next PC should come from the A register instead of PC+1.
func shouldJump(out, jump uint16) bool {
	signed := int16(out)
	lt, eq, gt := jump&0b100 != 0, jump&0b010 != 0, jump&0b001 != 0

	switch {
	case signed < 0:
		return lt
	case signed == 0:
		return eq
	default:
		return gt
	}
}

// SetKeyboard writes 'code' into the memory-mapped keyboard register, as if the
// host UI had reported a key press (or 0 for a release).
func (m *Machine) SetKeyboard(code uint16) {
	m.ram[KbdAddr] = code
}

// CPUState returns a read-only snapshot of the A, D and PC registers, plus the
// RAM word the A register currently points at (M).
func (m *Machine) CPUState() CPUState {
	return CPUState{A: m.a, D: m.d, M: m.ram[m.a&0x7FFF], PC: m.pc}
}

// Memory returns a read-only copy of the full 32K-word RAM, including the
// memory-mapped screen and keyboard regions.
func (m *Machine) Memory() [RamSize]uint16 {
	return m.ram
}

// ----------------------------------------------------------------------------
// Screen rendering

const (
	screenWidth  = 512
	screenHeight = 256
	bytesPerPx   = 4 // BGRA
)

// ScreenImage renders RAM[16384:24576] into a 512x256 BGRA pixel buffer: one
// set bit is an "on" (green) pixel, one unset bit is "off" (black). Word w's
// bit b (LSB first) maps to pixel (x=(w mod 32)*16+b, y=w div 32), per the
// Hack screen memory layout.
func (m *Machine) ScreenImage() []byte {
	image := make([]byte, screenWidth*screenHeight*bytesPerPx)

	for w := 0; w < (ScreenEnd - ScreenBase); w++ {
		word := m.ram[ScreenBase+w]
		row := w / (screenWidth / 16)
		col := (w % (screenWidth / 16)) * 16

		for b := 0; b < 16; b++ {
			on := (word>>uint(b))&1 != 0
			x, y := col+b, row
			offset := (y*screenWidth + x) * bytesPerPx

			if on {
				image[offset+0], image[offset+1], image[offset+2], image[offset+3] = 0x00, 0xFF, 0x00, 0xFF // B G R A
			} else {
				image[offset+0], image[offset+1], image[offset+2], image[offset+3] = 0x00, 0x00, 0x00, 0xFF
			}
		}
	}

	return image
}
