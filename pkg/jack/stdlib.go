package jack

import (
	"fmt"

	"hackstack.dev/toolchain/pkg/utils"
)

// StandardLibraryABI declares the signatures of the OS classes every Jack program
// links against (Math, String, Array, Output, Screen, Keyboard, Memory, Sys). Only the
// ABI is needed here — name, kind, parameter count and return type — since these
// classes are never compiled from source, only called into; their bodies ship as
// precompiled .vm files alongside the compiler's output.
//
// Keeping this as a literal avoids depending on a stdlib.json asset that would need to
// ship alongside the binary; the whole table is small enough to not be worth the extra
// embedded file and the compile-time `//go:embed` indirection.
var StandardLibraryABI = buildStandardLibraryABI()

func buildStandardLibraryABI() map[string]Class {
	classes := map[string]Class{
		"Math":     abiClass("Math", abiFns(Function, abiSig{"abs", Int, 1}, abiSig{"multiply", Int, 2}, abiSig{"divide", Int, 2}, abiSig{"min", Int, 2}, abiSig{"max", Int, 2}, abiSig{"sqrt", Int, 1})),
		"String":   abiClass("String", append(abiFns(Constructor, abiSig{"new", Object, 1}), append(abiFns(Method, abiSig{"dispose", Void, 0}, abiSig{"length", Int, 0}, abiSig{"charAt", Char, 1}, abiSig{"setCharAt", Void, 2}, abiSig{"appendChar", Object, 1}, abiSig{"eraseLastChar", Void, 0}, abiSig{"intValue", Int, 0}, abiSig{"setInt", Void, 1}), abiFns(Function, abiSig{"newLine", Char, 0}, abiSig{"backSpace", Char, 0}, abiSig{"doubleQuote", Char, 0})...)...)),
		"Array":    abiClass("Array", abiFns(Function, abiSig{"new", Object, 1})),
		"Output":   abiClass("Output", abiFns(Function, abiSig{"moveCursor", Void, 2}, abiSig{"printChar", Void, 1}, abiSig{"printString", Void, 1}, abiSig{"printInt", Void, 1}, abiSig{"println", Void, 0}, abiSig{"backSpace", Void, 0})),
		"Screen":   abiClass("Screen", abiFns(Function, abiSig{"clearScreen", Void, 0}, abiSig{"setColor", Void, 1}, abiSig{"drawPixel", Void, 2}, abiSig{"drawLine", Void, 4}, abiSig{"drawRectangle", Void, 4}, abiSig{"drawCircle", Void, 3})),
		"Keyboard": abiClass("Keyboard", abiFns(Function, abiSig{"keyPressed", Char, 0}, abiSig{"readChar", Char, 0}, abiSig{"readLine", Object, 1}, abiSig{"readInt", Int, 1})),
		"Memory":   abiClass("Memory", abiFns(Function, abiSig{"peek", Int, 1}, abiSig{"poke", Void, 2}, abiSig{"alloc", Object, 1}, abiSig{"deAlloc", Void, 1})),
		"Sys":      abiClass("Sys", abiFns(Function, abiSig{"halt", Void, 0}, abiSig{"error", Void, 1}, abiSig{"wait", Void, 1}, abiSig{"init", Void, 0})),
	}
	return classes
}

type abiSig struct {
	name   string
	ret    DataType
	nArgs  int
}

func abiFns(kind SubroutineType, sigs ...abiSig) []Subroutine {
	subs := make([]Subroutine, 0, len(sigs))
	for _, sig := range sigs {
		args := make([]utils.MapEntry[string, Variable], sig.nArgs)
		for i := range args {
			args[i] = utils.MapEntry[string, Variable]{Key: fmt.Sprintf("arg%d", i), Value: Variable{Name: fmt.Sprintf("arg%d", i), Type: Parameter, DataType: Int}}
		}
		subs = append(subs, Subroutine{
			Name:      sig.name,
			Type:      kind,
			Return:    sig.ret,
			Arguments: utils.NewOrderedMapFromList(args),
			Locals:    utils.OrderedMap[string, Variable]{},
		})
	}
	return subs
}

func abiClass(name string, subs []Subroutine) Class {
	entries := make([]utils.MapEntry[string, Subroutine], len(subs))
	for i, sub := range subs {
		entries[i] = utils.MapEntry[string, Subroutine]{Key: sub.Name, Value: sub}
	}
	return Class{Name: name, Fields: utils.OrderedMap[string, Variable]{}, Subroutines: utils.NewOrderedMapFromList(entries)}
}
