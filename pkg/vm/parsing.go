package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	pc "github.com/prataprc/goparsec"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)

// This section defines the Parser Combinator for every token & instruction of the Vm language.
//
// Each parser combinator manages a single operation (MemoryOp, ArithmeticOp, ...) or some piece
// of it: namely tokens and identifiers. The grammar is applied one source line at a time so a
// parse failure can be attributed to the exact line it came from.

// Top level object, will generate the traversable AST based on the input plus the PCs below.
var ast = pc.NewAST("virtual_machine_line", 0)

var (
	// Parser combinator for a generic VM operation (MemoryOp, ArithmeticOp, ...)
	pOperation = ast.OrdChoice("operation", nil,
		// Stack operation + label and jump operations
		pMemoryOp, pArithmeticOp, pLabelDecl, pGotoOp,
		// Function related operations and statements
		pFuncDecl, pFunCallOp, pReturnOp,
	)

	// Memory operation, compliant with the following syntax: "{push|pop} {segment} {index}"
	pMemoryOp = ast.And("memory_op", nil, pMemOpType, pSegment, pc.Int())
	// Arithmetic operation, could either be binary or unary (modifies only the Stack Pointer)
	pArithmeticOp = ast.And("arithmetic_op", nil, pArithOpType)

	// Label declaration, compliant with the following syntax: "label {symbol}"
	pLabelDecl = ast.And("label_decl", nil, pc.Atom("label", "LABEL"), pIdent)
	// Jump operation, compliant with the following syntax: "{if-goto|goto} {symbol}"
	pGotoOp = ast.And("goto_op", nil, pJumpType, pIdent)

	// Function declaration, compliant with the following syntax: "function {name} {n_locals}"
	pFuncDecl = ast.And("func_decl", nil, pc.Atom("function", "FUNC"), pIdent, pc.Int())
	// Function call operation, compliant with the following syntax: "call {name} {n_args}"
	pFunCallOp = ast.And("func_call", nil, pc.Atom("call", "CALL"), pIdent, pc.Int())
	// Return operation, compliant with the following syntax: "return"
	pReturnOp = ast.And("return_op", nil, pc.Atom("return", "RETURN"))
)

var (
	// Generic Identifier parser (for label and function declaration)
	// NOTE: An ident can be any sequence of letters, digits, and symbols (_, ., $, :).
	// NOTE: An ident cannot begin with a leading digit (a symbol is indeed allowed).
	pIdent = pc.Token(`[A-Za-z_.$:][0-9a-zA-Z_.$:]*`, "IDENT")

	// Available memory operation type (only push and pop since it's stack based)
	pMemOpType = ast.OrdChoice("mem_op_type", nil, pc.Atom("push", "PUSH"), pc.Atom("pop", "POP"))
	// Available heap segments (they act as registers and are used alongside the stack)
	pSegment = ast.OrdChoice("mem_segment", nil,
		pc.Atom("argument", "ARGUMENT"), pc.Atom("local", "LOCAL"),
		pc.Atom("static", "STATIC"), pc.Atom("constant", "CONSTANT"),
		pc.Atom("this", "THIS"), pc.Atom("that", "THAT"),
		pc.Atom("temp", "TEMP"), pc.Atom("pointer", "POINTER"),
	)

	// Available arithmetic operation types (more functionality will be provided in the next phases)
	pArithOpType = ast.OrdChoice("operations", nil,
		// Comparison operations available on the VM bytecode
		pc.Atom("eq", "EQ"), pc.Atom("gt", "GT"), pc.Atom("lt", "LT"),
		// Arithmetic operations available on the VM bytecode
		pc.Atom("add", "ADD"), pc.Atom("sub", "SUB"), pc.Atom("neg", "NEG"),
		// Bit-a-bit operations available on the VM bytecode
		pc.Atom("not", "NOT"), pc.Atom("and", "AND"), pc.Atom("or", "OR"),
	)

	// Jump types can either be conditional (if-goto) or unconditional (goto).
	pJumpType = ast.OrdChoice("jump_type", nil, pc.Atom("goto", "GOTO"), pc.Atom("if-goto", "IF-GOTO"))
)

// ----------------------------------------------------------------------------
// Vm Parser

// This section defines the Parser for the nand2tetris Vm language.
//
// It uses parser combinators to obtain, line by line, an AST node from the source code (the
// latter can be provided in multiple ways using a generic io.Reader). It reads up the feature
// flags (as env vars):
// - PARSEC_DEBUG: Verbose logging to inspect which of the PCs gets triggered and match
// - EXPORT_AST:   Exports in the DEBUG_FOLDER a Graphviz representation of the AST
// - PRINT_AST:    Print on the stdout a textual representation of the AST
type Parser struct{ reader io.Reader }

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// ParseError reports a malformed VM source line, carrying the 1-based line number so
// the CLI can point straight at the offending instruction.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Message) }

// Parser entrypoint divides the 2 phases of the parsing pipeline
// Text --> AST: This step is done using PCs, one input line at a time
// AST --> IR: This step is done by traversing each line's AST and extracting an 'vm.Operation'
func (p *Parser) Parse() (Module, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read from 'io.Reader': %w", err)
	}

	module := Module{}
	for lineNo, rawLine := range strings.Split(string(content), "\n") {
		line := stripComment(rawLine)
		if strings.TrimSpace(line) == "" {
			continue
		}

		node, ok := p.FromSource([]byte(line))
		if !ok {
			return nil, &ParseError{Line: lineNo + 1, Message: fmt.Sprintf("malformed instruction: %q", strings.TrimSpace(line))}
		}

		op, err := p.FromAST(node)
		if err != nil {
			return nil, &ParseError{Line: lineNo + 1, Message: err.Error()}
		}
		module = append(module, op)
	}

	return module, nil
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx != -1 {
		return line[:idx]
	}
	return line
}

// Scans a single line and returns a traversable AST node (Abstract Syntax Tree) that
// can be visited to extract the operation it represents.
func (p *Parser) FromSource(line []byte) (pc.Queryable, bool) {
	root, _ := ast.Parsewith(pOperation, pc.NewScanner(line))
	return root, root != nil
}

// This function takes the root node of a single line's AST and returns the 'vm.Operation'
// it represents, dispatching on the node's grammar production name.
func (p *Parser) FromAST(root pc.Queryable) (Operation, error) {
	switch root.GetName() {
	case "memory_op":
		return p.HandleMemoryOp(root)
	case "arithmetic_op":
		return p.HandleArithmeticOp(root)
	case "label_decl":
		return p.HandleLabelDecl(root)
	case "goto_op":
		return p.HandleGotoOp(root)
	case "func_decl":
		return p.HandleFuncDecl(root)
	case "func_call":
		return p.HandleFuncCall(root)
	case "return_op":
		return p.HandleReturnOp(root)
	default:
		return nil, fmt.Errorf("unrecognized node '%s'", root.GetName())
	}
}

// Specialized function to convert a "memory_op" node to a 'vm.MemoryOp'.
func (Parser) HandleMemoryOp(node pc.Queryable) (Operation, error) {
	if len(node.GetChildren()) != 3 {
		return nil, fmt.Errorf("expected 'memory_op' node with 3 leaves, got %d", len(node.GetChildren()))
	}

	operation := OperationType(node.GetChildren()[0].GetValue())
	segment := SegmentType(node.GetChildren()[1].GetValue())
	offset, err := strconv.ParseUint(node.GetChildren()[2].GetValue(), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to parse offset in memory op, got '%s'", node.GetChildren()[2].GetValue())
	}

	return MemoryOp{Operation: operation, Segment: segment, Offset: uint16(offset)}, nil
}

// Specialized function to convert a "arithmetic_op" node to a 'vm.ArithmeticOp'.
func (Parser) HandleArithmeticOp(node pc.Queryable) (Operation, error) {
	if len(node.GetChildren()) != 1 {
		return nil, fmt.Errorf("expected 'arithmetic_op' node with 1 leaf, got %d", len(node.GetChildren()))
	}
	return ArithmeticOp{Operation: ArithOpType(node.GetChildren()[0].GetValue())}, nil
}

// Specialized function to convert a "label_decl" node to a 'vm.LabelDecl'.
func (Parser) HandleLabelDecl(node pc.Queryable) (Operation, error) {
	if len(node.GetChildren()) != 2 {
		return nil, fmt.Errorf("expected 'label_decl' node with 2 leaves, got %d", len(node.GetChildren()))
	}
	return LabelDecl{Name: node.GetChildren()[1].GetValue()}, nil
}

// Specialized function to convert a "goto_op" node to a 'vm.GotoOp'.
func (Parser) HandleGotoOp(node pc.Queryable) (Operation, error) {
	if len(node.GetChildren()) != 2 {
		return nil, fmt.Errorf("expected 'goto_op' node with 2 leaves, got %d", len(node.GetChildren()))
	}

	jump := JumpType(node.GetChildren()[0].GetValue())
	label := node.GetChildren()[1].GetValue()

	return GotoOp{Jump: jump, Label: label}, nil
}

// Specialized function to convert a "func_decl" node to a 'vm.FuncDecl'.
func (Parser) HandleFuncDecl(node pc.Queryable) (Operation, error) {
	if len(node.GetChildren()) != 3 {
		return nil, fmt.Errorf("expected 'func_decl' node with 3 leaves, got %d", len(node.GetChildren()))
	}

	name := node.GetChildren()[1].GetValue()
	nLocal, err := strconv.ParseUint(node.GetChildren()[2].GetValue(), 10, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to parse 'n_locals' in function declaration, got '%s'", node.GetChildren()[2].GetValue())
	}

	return FuncDecl{Name: name, NLocal: uint8(nLocal)}, nil
}

// Specialized function to convert a "return_op" node to a 'vm.ReturnOp'.
func (Parser) HandleReturnOp(node pc.Queryable) (Operation, error) {
	return ReturnOp{}, nil
}

// Specialized function to convert a "func_call" node to a 'vm.FuncCallOp'.
func (Parser) HandleFuncCall(node pc.Queryable) (Operation, error) {
	if len(node.GetChildren()) != 3 {
		return nil, fmt.Errorf("expected 'func_call' node with 3 leaves, got %d", len(node.GetChildren()))
	}

	name := node.GetChildren()[1].GetValue()
	nArgs, err := strconv.ParseUint(node.GetChildren()[2].GetValue(), 10, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to parse 'n_args' in function call, got '%s'", node.GetChildren()[2].GetValue())
	}

	return FuncCallOp{Name: name, NArgs: uint8(nArgs)}, nil
}
