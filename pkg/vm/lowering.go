package vm

import (
	"fmt"
	"sort"

	"hackstack.dev/toolchain/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one or more parsed modules) and produces the single
// 'asm.Program' that implements it, threading the stack machine's calling convention and
// memory segment layout through plain Hack assembly.
//
// Labels declared in the VM language are scoped to their enclosing function ('label L' inside
// function 'Foo.bar' becomes the assembly label 'Foo.bar$L') so the same label text can be
// reused across functions without collision. Comparison operations and function call return
// addresses need assembly labels of their own; those are minted from a single monotonic
// counter so that two calls to the same function (or two 'eq' in the same function) never
// collide either.
type Lowerer struct {
	program       Program
	labelSeq      uint64
	curModule     string
	curFunc       string
	skipBootstrap bool
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// SkipBootstrap disables the 'SP=256; call Sys.init 0' prelude that Lower() otherwise always
// emits. Translating a single standalone .vm file (as opposed to a complete multi-file program)
// typically has no 'Sys.init' to call into, so callers doing that need an opt-out.
func (l *Lowerer) SkipBootstrap() { l.skipBootstrap = true }

// Triggers the lowering process. Modules are visited in a deterministic (sorted-by-name)
// order purely so that two runs over the same Program always produce byte-identical
// assembly; the VM language itself attaches no ordering semantics to modules.
func (l *Lowerer) Lower() (asm.Program, error) {
	if len(l.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty")
	}

	names := make([]string, 0, len(l.program))
	for name := range l.program {
		names = append(names, name)
	}
	sort.Strings(names)

	output := asm.Program{}
	if !l.skipBootstrap {
		output = append(output, l.bootstrap()...)
	}

	for _, name := range names {
		l.curModule, l.curFunc = name, ""

		for _, operation := range l.program[name] {
			var instructions []asm.Instruction
			var err error

			switch op := operation.(type) {
			case MemoryOp:
				instructions, err = l.handleMemoryOp(op)
			case ArithmeticOp:
				instructions, err = l.handleArithmeticOp(op)
			case LabelDecl:
				instructions, err = l.handleLabelDecl(op)
			case GotoOp:
				instructions, err = l.handleGotoOp(op)
			case FuncDecl:
				instructions, err = l.handleFuncDecl(op)
			case FuncCallOp:
				instructions, err = l.handleFuncCallOp(op)
			case ReturnOp:
				instructions, err = l.handleReturnOp(op)
			default:
				err = fmt.Errorf("unrecognized operation '%T'", operation)
			}

			if err != nil {
				return nil, fmt.Errorf("module '%s': %w", name, err)
			}
			output = append(output, instructions...)
		}
	}

	return output, nil
}

// nextLabel mints a fresh, program-wide unique assembly label carrying the given prefix.
func (l *Lowerer) nextLabel(prefix string) string {
	l.labelSeq++
	return fmt.Sprintf("%s$%d", prefix, l.labelSeq)
}

// scopedLabel qualifies a VM-level label with the enclosing function, per the scoping rule
// described on 'Lowerer'. Labels that appear before any 'function' declaration (legal at the
// top of a module) are scoped to the module itself.
func (l *Lowerer) scopedLabel(name string) string {
	if l.curFunc == "" {
		return fmt.Sprintf("%s$%s", l.curModule, name)
	}
	return fmt.Sprintf("%s$%s", l.curFunc, name)
}

// ----------------------------------------------------------------------------
// Bootstrap

// bootstrap emits the fixed prelude every Hack program starts with: initialize the stack
// pointer to 256 (the first word above the reserved/register area) then call 'Sys.init'
// as if it were an ordinary function call, so that 'return'-ing from it behaves the same
// as returning from any other function (it never should, but the convention stays uniform).
func (l *Lowerer) bootstrap() []asm.Instruction {
	program := []asm.Instruction{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	program = append(program, l.call("Sys.init", 0)...)
	return program
}

// ----------------------------------------------------------------------------
// Memory Op

// pushD appends the instructions that push the D register onto the stack and advance SP.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// popToD appends the instructions that decrement SP and load the popped value into D,
// leaving A pointed at the freed stack slot.
func popToD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

// segmentPointer maps the four pointer-based segments to the register that holds their base.
var segmentPointer = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// handleMemoryOp lowers a 'push'/'pop' operation. Every real segment resolves to a concrete
// RAM cell; 'constant' has no backing storage and can only ever be pushed from.
func (l *Lowerer) handleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	switch op.Segment {
	case Constant:
		if op.Operation != Push {
			return nil, fmt.Errorf("'constant' segment cannot be popped into")
		}
		return append([]asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, pushD()...), nil

	case Local, Argument, This, That:
		base := segmentPointer[op.Segment]
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: base},
				asm.CInstruction{Dest: "D", Comp: "M"},
				asm.AInstruction{Location: fmt.Sprint(op.Offset)},
				asm.CInstruction{Dest: "A", Comp: "D+A"},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instructions := []asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "D+A"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}
		instructions = append(instructions, popToD()...)
		return append(instructions,
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Pointer:
		if op.Offset > 1 {
			return nil, fmt.Errorf("invalid 'pointer' offset, got %d", op.Offset)
		}
		target := "THIS"
		if op.Offset == 1 {
			target = "THAT"
		}
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: target},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instructions := popToD()
		return append(instructions,
			asm.AInstruction{Location: target},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Temp:
		if op.Offset > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", op.Offset)
		}
		location := fmt.Sprint(5 + op.Offset)
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: location},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instructions := popToD()
		return append(instructions,
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Static:
		location := fmt.Sprintf("%s.%d", l.curModule, op.Offset)
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: location},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instructions := popToD()
		return append(instructions,
			asm.AInstruction{Location: location},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil
	}

	return nil, fmt.Errorf("unrecognized segment '%s'", op.Segment)
}

// ----------------------------------------------------------------------------
// Arithmetic Op

// binaryAluOp describes a two-operand arithmetic/logical operation: it pops the top of the
// stack into D, leaves A pointed at the new top (the other operand), and computes 'comp'
// in terms of the freshly-popped D and the still-resident M.
var binaryAluOp = map[ArithOpType]string{
	Add: "D+M",
	Sub: "M-D",
	And: "D&M",
	Or:  "D|M",
}

// unaryAluOp describes a single-operand operation applied in place to the stack's top.
var unaryAluOp = map[ArithOpType]string{
	Neg: "-M",
	Not: "!M",
}

// comparisonJump maps a comparison operation to the jump mnemonic used once both operands
// have been reduced to 'D = (first operand) - (second operand)'.
var comparisonJump = map[ArithOpType]string{
	Eq: "JEQ",
	Gt: "JGT",
	Lt: "JLT",
}

func (l *Lowerer) handleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	if comp, found := binaryAluOp[op.Operation]; found {
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.CInstruction{Dest: "A", Comp: "A-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil
	}

	if comp, found := unaryAluOp[op.Operation]; found {
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil
	}

	if jump, found := comparisonJump[op.Operation]; found {
		isTrue, end := l.nextLabel("COMP_TRUE"), l.nextLabel("COMP_END")
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.CInstruction{Dest: "A", Comp: "A-1"},
			asm.CInstruction{Dest: "D", Comp: "M-D"},
			asm.AInstruction{Location: isTrue},
			asm.CInstruction{Comp: "D", Jump: jump},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: end},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
			asm.LabelDecl{Name: isTrue},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "-1"},
			asm.LabelDecl{Name: end},
		}, nil
	}

	return nil, fmt.Errorf("unrecognized operation '%s'", op.Operation)
}

// ----------------------------------------------------------------------------
// Control flow Op

func (l *Lowerer) handleLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to lower empty label declaration")
	}
	return []asm.Instruction{asm.LabelDecl{Name: l.scopedLabel(op.Name)}}, nil
}

func (l *Lowerer) handleGotoOp(op GotoOp) ([]asm.Instruction, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("unable to lower jump with an empty label")
	}

	target := l.scopedLabel(op.Label)
	if op.Jump == Unconditional {
		return []asm.Instruction{
			asm.AInstruction{Location: target},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, nil
	}

	instructions := popToD()
	return append(instructions,
		asm.AInstruction{Location: target},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	), nil
}

// ----------------------------------------------------------------------------
// Function Op

func (l *Lowerer) handleFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to lower empty function declaration")
	}
	l.curFunc = op.Name

	instructions := []asm.Instruction{asm.LabelDecl{Name: op.Name}}
	for i := uint8(0); i < op.NLocal; i++ {
		instructions = append(instructions,
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
		)
	}
	return instructions, nil
}

func (l *Lowerer) handleFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to lower empty function call")
	}
	return l.call(op.Name, op.NArgs), nil
}

// call lowers a single function invocation: push the 5-word save frame (return address,
// then the caller's LCL/ARG/THIS/THAT), reposition ARG to the base of the arguments already
// sitting on the stack, reposition LCL to the current top, then transfer control. The
// return address is a freshly minted label placed right after the jump so execution resumes
// there once the callee eventually returns.
func (l *Lowerer) call(name string, nArgs uint8) []asm.Instruction {
	returnAddr := l.nextLabel(fmt.Sprintf("RET_%s", name))

	instructions := []asm.Instruction{
		asm.AInstruction{Location: returnAddr},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	instructions = append(instructions, pushD()...)

	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		instructions = append(instructions,
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "D", Comp: "M"},
		)
		instructions = append(instructions, pushD()...)
	}

	instructions = append(instructions,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(5 + int(nArgs))},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},

		asm.LabelDecl{Name: returnAddr},
	)

	return instructions
}

// handleReturnOp lowers 'return' per the standard calling convention: stash the caller's
// frame pointer and return address in temp registers R13/R14 before the segment pointers
// that locate them (ARG, in particular) get overwritten by the epilogue.
func (l *Lowerer) handleReturnOp(ReturnOp) ([]asm.Instruction, error) {
	return []asm.Instruction{
		// R13 = FRAME = LCL
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// R14 = RET = *(FRAME-5)
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// *ARG = pop()
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// SP = ARG+1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// THAT = *(FRAME-1)
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THAT"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// THIS = *(FRAME-2)
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THIS"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// ARG = *(FRAME-3)
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// LCL = *(FRAME-4)
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// goto RET
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}, nil
}
