package translate

import (
	"fmt"
	"go/types"
	"strings"

	"golang.org/x/exp/typeparams"
	"golang.org/x/tools/go/ssa"
)

// fatalError aborts translation of the current function. It is
// recovered at the Build boundary and turned into an error; it never
// crosses into the caller as a panic.
type fatalError struct {
	msg string
}

func (e fatalError) Error() string { return e.msg }

func fatalf(format string, args ...interface{}) {
	panic(fatalError{msg: fmt.Sprintf(format, args...)})
}

// shadowPrefix marks synthetic values introduced by memory-shadowing
// instrumentation. They carry no program semantics and are never
// tracked.
const shadowPrefix = "shadow.mem"

func isShadowValue(v ssa.Value) bool {
	return strings.HasPrefix(v.Name(), shadowPrefix)
}

func isBool(t types.Type) bool {
	if typeparams.IsTypeParam(t) {
		return false
	}
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsBoolean != 0
}

func isInteger(t types.Type) bool {
	if typeparams.IsTypeParam(t) {
		return false
	}
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsInteger != 0
}

func isPointer(t types.Type) bool {
	if typeparams.IsTypeParam(t) {
		return false
	}
	switch u := t.Underlying().(type) {
	case *types.Pointer, *types.Slice:
		return true
	case *types.Basic:
		return u.Kind() == types.UnsafePointer
	}
	return false
}

func isUnsigned(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsUnsigned != 0
}

// typeWidth returns the width of an integer type in bits.
func typeWidth(sizes types.Sizes, t types.Type) int {
	return int(sizes.Sizeof(t.Underlying())) * 8
}

// pointee returns the type a pointer-typed value points at.
func pointee(v ssa.Value) types.Type {
	switch u := v.Type().Underlying().(type) {
	case *types.Pointer:
		return u.Elem()
	case *types.Slice:
		return u.Elem()
	default:
		fatalf("pointee of non-pointer value %v", v)
		return nil
	}
}
