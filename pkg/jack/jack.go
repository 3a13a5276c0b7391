package jack

import "hackstack.dev/toolchain/pkg/utils"

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the Jack programming language.
//
// A program is basically a container of classes (the only top-level object allowed)
// and the program is started by locating the Main class and executing its 'main' method.
// Other than classes the other 4 main constructs are:
// - Variables: to declare containers of value (also used for class' fields)
// - Subroutines: to declare containers of instruction (also used for class' methods)
// - Statements: to perform a side effect, conditional jump or other program flow changes
// - Expressions: to perform a calculation that produces a result (arithmetic ops and so on...)

// A Jack Program is just a set of multiple classes, in the Jack spec each class is translated
// to its own .vm file (just like Java .class file) so the class is to be considered the top-level
// entity of the program and is mapped to a role equal to module or namespace in other languages.
type Program map[string]Class

// ----------------------------------------------------------------------------
// Classes

// A Class is a list of Fields that contains the state and Subroutines to change said state.
//
// Both Fields and Subroutines comes in a static variant (resp. static 'Variable' or function Subroutine) where
// the instance of the class is not scoped to the single object instantiation but to the program as a whole.
type Class struct {
	Name        string                                // The class name or id, will also identify the instantiated object type
	Fields      utils.OrderedMap[string, Variable]    // The variables (static or not) associated to the class or object instance
	Subroutines utils.OrderedMap[string, Subroutine] // The subroutines (static or not) associated to the class or object instance
}

// ----------------------------------------------------------------------------
// Subroutines

// A Subroutine is somewhat like a math function: it takes a series of inputs and returns an output.
//
// As part of its computation (statement evaluation) it may change the state of some variables in the
// program either by direct manipulation of the class' fields (static or not) or by just returning values
// that will influence the program flow once returned to the caller.
type Subroutine struct {
	Name string         // Name/id, w/ the class id will identify universally the subroutine
	Type SubroutineType // Subroutine type, used to determine the codegen strategy during the lowering phase

	Return    DataType // The type of value returned by the procedure ('void' for no value)
	ReturnObj string   // The concrete class name when Return == Object

	// Both stored in declaration order: the order IS the memory-segment offset assigned to each entry.
	Arguments utils.OrderedMap[string, Variable]
	Locals    utils.OrderedMap[string, Variable]

	Statements []Statement // The list of statements to be executed, a representation of the func's program flow
}

type SubroutineType string // Enum to manage the different kinds of Subroutine

const (
	Method      SubroutineType = "method"
	Function    SubroutineType = "function"
	Constructor SubroutineType = "constructor"
)

// ----------------------------------------------------------------------------
// Statements

// A statement produces a side effect in the program flow, whether by changing a var or jumping to another inst.
//
// We declare a shared 'Statement' interface for every macro operation available for
// the Jack language, then we define one after the other all the specific statements
// w/ their internal logic and required data to perform it (or compile it).
type Statement interface{ isStatement() }

type DoStmt struct{ FuncCall FuncCallExpr } // Unconditional call, the return value (if any) is discarded

type VarStmt struct{ Vars []Variable } // Local variable declaration(s), w/o an initial value

type LetStmt struct { // Variable assignment, evaluates Rhs and stores it at the Lhs location
	Lhs Expression // Only VarExpr and ArrayExpr are legal here
	Rhs Expression
}

type ReturnStmt struct{ Expr Expression } // Goes back to the caller with an (optional) value; nil Expr means 'void'

type IfStmt struct { // Forks the execution flow based on a condition
	Condition Expression
	ThenBlock []Statement
	ElseBlock []Statement // May be empty, in which case there's no 'else' branch at all
}

type WhileStmt struct { // Repeats Block for as long as Condition evaluates truthy
	Condition Expression
	Block     []Statement
}

func (DoStmt) isStatement()     {}
func (VarStmt) isStatement()    {}
func (LetStmt) isStatement()    {}
func (ReturnStmt) isStatement() {}
func (IfStmt) isStatement()     {}
func (WhileStmt) isStatement()  {}

// ----------------------------------------------------------------------------
// Expressions

// Expressions take one or more sub-expressions and produce a new value that can be used further.
//
// Jack has no operator precedence of its own: a chain of binary operators is evaluated strictly
// left-to-right; only parentheses (resolved entirely during parsing) can override that order.
type Expression interface{ isExpression() }

type VarExpr struct{ Var string } // Reads a variable's value; 'this' is a reserved VarExpr too

type LiteralExpr struct { // A constant value fixed at compile time
	Type  DataType // int | bool | char | string | null
	Value string   // The constant's textual form, as it appeared in source
}

type ArrayExpr struct { // Reads a single element of an array-typed variable
	Var   string
	Index Expression
}

type UnaryExpr struct { // Applies Type to a single sub-expression
	Type ExprType // Only 'Minus' (arithmetic negation) and 'BoolNot' are legal here
	Rhs  Expression
}

type BinaryExpr struct { // Combines two sub-expressions, evaluated Lhs-then-Rhs
	Type ExprType
	Lhs  Expression
	Rhs  Expression
}

type FuncCallExpr struct { // Invokes a subroutine, with or without an explicit receiver
	IsExtCall bool   // true for 'class.Method(...)' / 'var.method(...)', false for a bare 'method(...)'
	Var       string // The receiver name (class or variable); "" when !IsExtCall
	FuncName  string

	Arguments []Expression
}

func (VarExpr) isExpression()      {}
func (LiteralExpr) isExpression()  {}
func (ArrayExpr) isExpression()    {}
func (UnaryExpr) isExpression()    {}
func (BinaryExpr) isExpression()   {}
func (FuncCallExpr) isExpression() {}

type ExprType string // Enum to manage the operations allowed for an ExprType

const (
	Plus     ExprType = "plus"
	Minus    ExprType = "minus" // Used both for subtraction (BinaryExpr) and arithmetic negation (UnaryExpr)
	Divide   ExprType = "divide"
	Multiply ExprType = "multiply"

	BoolOr  ExprType = "bool_or"
	BoolAnd ExprType = "bool_and"
	BoolNot ExprType = "bool_not" // Only legal as a UnaryExpr

	Equal     ExprType = "equal"
	LessThan  ExprType = "less_than"
	GreatThan ExprType = "greater_than"
)

// ----------------------------------------------------------------------------
// Variables

// Variables are containers of value that can be read/written through expressions/statements.
//
// The declared 'Variable' struct accommodates multiple configurations at the same time such as:
// - Static & instanced fields for classes
// - Local variables and parameters for subroutines
type Variable struct {
	Name      string   // The var name, acts as identifier in the scope it is declared
	Type      VarType  // The variable kind, determines which memory segment it maps onto
	DataType  DataType // The data type defines how to read or cast the value contained by the variable
	ClassName string   // The concrete class name when DataType == Object
}

type VarType string // Enum to manage the kinds of scope a Variable can live in

const (
	Local     VarType = "local"
	Field     VarType = "field"
	Static    VarType = "static"
	Parameter VarType = "parameter"
)

type DataType string // Enum to manage the data types allowed for a Variable/Expression

const (
	Int    DataType = "int"
	Bool   DataType = "bool"
	Char   DataType = "char"
	Null   DataType = "null"
	String DataType = "string"
	Void   DataType = "void"
	Object DataType = "object"
)
