package jack

import "fmt"

type TypeChecker struct {
	program Program
	scopes  ScopeTable // Keeps track of the scopes and declared variables inside each one
}

func NewTypeChecker(program Program) TypeChecker {
	return TypeChecker{program: program, scopes: *NewScopeTable()}
}

func (tc *TypeChecker) Check() (bool, error) {
	if tc.program == nil {
		return false, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		_, err := tc.HandleClass(class)
		if err != nil {
			return false, fmt.Errorf("error handling lowering of class '%s': %w", name, err)
		}

	}

	return true, nil
}

// Specialized function to type-check a 'jack.Class' and nested fields.
func (tc *TypeChecker) HandleClass(class Class) (bool, error) {
	tc.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	defer tc.scopes.PopClassScope()      // Reset the function name after processing

	for _, field := range class.Fields.Entries() {
		tc.scopes.RegisterVariable(field)
	}

	for _, subroutine := range class.Subroutines.Entries() {
		_, err := tc.HandleSubroutine(class, subroutine)
		if err != nil {
			return false, fmt.Errorf("error handling subroutine '%s' in class '%s': %w", subroutine.Name, class.Name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Subroutine' and nested fields.
func (tc *TypeChecker) HandleSubroutine(class Class, subroutine Subroutine) (bool, error) {
	tc.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine function being processed
	defer tc.scopes.PopSubroutineScope()           // Reset the function name after processing

	if subroutine.Type != Function {
		// 'this' is only addressable from method/constructor bodies, modeled as an
		// implicit first parameter so field accesses resolve through the same lookup.
		tc.scopes.RegisterVariable(Variable{Name: "this", Type: Parameter, DataType: Object, ClassName: class.Name})
	}

	// We add to the current scope also all of the arguments of the subroutine
	for _, arg := range subroutine.Arguments.Entries() {
		// Like this we're actually supporting shadowing of variables, so if a variable
		// with the same name is already present in the current scope, we just temporarily
		// override it with the most update one instead of returning an error (like Go does
		tc.scopes.RegisterVariable(arg)
	}

	for _, local := range subroutine.Locals.Entries() {
		tc.scopes.RegisterVariable(local)
	}

	for _, stmt := range subroutine.Statements {
		_, err := tc.HandleStatement(stmt)
		if err != nil {
			return false, fmt.Errorf("error handling nested statement %T: %w", stmt, err)
		}
	}

	return true, nil
}

// Generalized function to type-check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) (bool, error) {
	switch s := stmt.(type) {
	case DoStmt:
		return tc.HandleExpression(s.FuncCall)

	case VarStmt:
		for _, v := range s.Vars {
			tc.scopes.RegisterVariable(v)
		}
		return true, nil

	case LetStmt:
		switch s.Lhs.(type) {
		case VarExpr, ArrayExpr:
			// Legal assignment targets
		default:
			return false, fmt.Errorf("invalid assignment target %T, only variables and array elements are assignable", s.Lhs)
		}
		if _, err := tc.HandleExpression(s.Lhs); err != nil {
			return false, err
		}
		return tc.HandleExpression(s.Rhs)

	case ReturnStmt:
		if s.Expr == nil {
			return true, nil
		}
		return tc.HandleExpression(s.Expr)

	case IfStmt:
		if _, err := tc.HandleExpression(s.Condition); err != nil {
			return false, err
		}
		for _, nested := range s.ThenBlock {
			if _, err := tc.HandleStatement(nested); err != nil {
				return false, err
			}
		}
		for _, nested := range s.ElseBlock {
			if _, err := tc.HandleStatement(nested); err != nil {
				return false, err
			}
		}
		return true, nil

	case WhileStmt:
		if _, err := tc.HandleExpression(s.Condition); err != nil {
			return false, err
		}
		for _, nested := range s.Block {
			if _, err := tc.HandleStatement(nested); err != nil {
				return false, err
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown statement type %T", stmt)
	}
}

// Generalized function to type-check multiple expression types, resolving every
// identifier against the current scope so undeclared variables are caught before
// lowering ever runs.
func (tc *TypeChecker) HandleExpression(expr Expression) (bool, error) {
	switch e := expr.(type) {
	case VarExpr:
		if _, _, err := tc.scopes.ResolveVariable(e.Var); err != nil {
			return false, fmt.Errorf("unknown identifier '%s': %w", e.Var, err)
		}
		return true, nil

	case LiteralExpr:
		return true, nil

	case ArrayExpr:
		_, v, err := tc.scopes.ResolveVariable(e.Var)
		if err != nil {
			return false, fmt.Errorf("unknown identifier '%s': %w", e.Var, err)
		}
		if v.DataType != Object {
			return false, fmt.Errorf("cannot index '%s', type '%s' is not an Array", e.Var, v.DataType)
		}
		return tc.HandleExpression(e.Index)

	case UnaryExpr:
		return tc.HandleExpression(e.Rhs)

	case BinaryExpr:
		if _, err := tc.HandleExpression(e.Lhs); err != nil {
			return false, err
		}
		return tc.HandleExpression(e.Rhs)

	case FuncCallExpr:
		target := e.FuncName
		if e.IsExtCall {
			target = fmt.Sprintf("%s.%s", e.Var, e.FuncName)
		}
		if err := tc.resolveCallTarget(e); err != nil {
			return false, fmt.Errorf("unresolved call to '%s': %w", target, err)
		}
		for _, arg := range e.Arguments {
			if _, err := tc.HandleExpression(arg); err != nil {
				return false, err
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown expression type %T", expr)
	}
}

// resolveCallTarget checks that an external call's receiver and method name refer
// to a known class/variable and subroutine, looking across both the program under
// compilation and the standard library ABI. Bare calls are not checked here.
func (tc *TypeChecker) resolveCallTarget(call FuncCallExpr) error {
	if !call.IsExtCall {
		return nil // Bare calls always target the enclosing class, resolved at lowering time
	}

	className := call.Var
	if _, v, err := tc.scopes.ResolveVariable(call.Var); err == nil {
		className = v.ClassName
	}

	class, ok := tc.program[className]
	if !ok {
		class, ok = StandardLibraryABI[className]
	}
	if !ok {
		return fmt.Errorf("unknown class '%s'", className)
	}

	if _, ok := class.Subroutines.Get(call.FuncName); !ok {
		return fmt.Errorf("class '%s' has no subroutine '%s'", className, call.FuncName)
	}

	return nil
}
