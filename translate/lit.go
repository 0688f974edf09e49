package translate

import (
	"go/constant"
	"go/types"
	"math"
	"math/big"

	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/config"
)

type litClass uint8

const (
	boolLit litClass = iota
	intLit
	ptrLit
)

// Lit is the classification of one source value: a boolean, integer or
// pointer constant, or a variable of one of those classes.
type Lit struct {
	class litClass
	isVar bool
	v     cfg.Var

	boolVal bool     // constant booleans
	intVal  *big.Int // constant integers
	big     bool     // constant exceeds the signed 64-bit range
	null    bool     // constant pointers
}

func (l Lit) IsBool() bool { return l.class == boolLit }
func (l Lit) IsInt() bool  { return l.class == intLit }
func (l Lit) IsPtr() bool  { return l.class == ptrLit }
func (l Lit) IsVar() bool  { return l.isVar }

// Var returns the variable form. Calling it on a constant literal is an
// internal invariant violation.
func (l Lit) Var() cfg.Var {
	if !l.isVar {
		fatalf("literal %v is a constant, not a variable", l)
	}
	return l.v
}

// BoolVal returns the constant boolean value.
func (l Lit) BoolVal() bool {
	if l.class != boolLit || l.isVar {
		fatalf("literal is not a boolean constant")
	}
	return l.boolVal
}

// IsNull reports whether l is the constant null pointer.
func (l Lit) IsNull() bool { return l.class == ptrLit && !l.isVar && l.null }

// Expr returns the integer literal as a linear expression. Calling it
// on a boolean or pointer literal is an internal invariant violation.
func (l Lit) Expr() cfg.Expr {
	if l.class != intLit {
		fatalf("literal is not an integer")
	}
	if l.isVar {
		return cfg.VarExpr(l.v)
	}
	return cfg.ConstExpr(l.intVal)
}

func (l Lit) String() string {
	if l.isVar {
		return l.v.Name
	}
	switch l.class {
	case boolLit:
		if l.boolVal {
			return "true"
		}
		return "false"
	case intLit:
		return l.intVal.String()
	default:
		return "null"
	}
}

// litFactory classifies source values. Classification is memoized per
// function so the same value always yields the same literal.
type litFactory struct {
	params *config.Params
	sizes  types.Sizes
	vfac   *varFactory
	cache  map[ssa.Value]Lit
}

func newLitFactory(params *config.Params, sizes types.Sizes, vfac *varFactory) *litFactory {
	return &litFactory{
		params: params,
		sizes:  sizes,
		vfac:   vfac,
		cache:  map[ssa.Value]Lit{},
	}
}

var (
	bigZero  = big.NewInt(0)
	maxInt64 = big.NewInt(math.MaxInt64)
	minInt64 = big.NewInt(math.MinInt64)
)

// classify maps a source value to a literal. The second result is false
// for untracked values: unsupported types, shadow values, and oversized
// constants when bignums are disabled.
func (lf *litFactory) classify(v ssa.Value) (Lit, bool) {
	if l, ok := lf.cache[v]; ok {
		return l, true
	}
	l, ok := lf.classifyUncached(v)
	if ok {
		lf.cache[v] = l
	}
	return l, ok
}

func (lf *litFactory) classifyUncached(v ssa.Value) (Lit, bool) {
	if isShadowValue(v) {
		return Lit{}, false
	}
	if c, ok := v.(*ssa.Const); ok {
		return lf.classifyConst(c)
	}
	t := v.Type()
	switch {
	case isBool(t):
		return Lit{class: boolLit, isVar: true, v: cfg.Var{Name: valueName(v), Type: cfg.BoolType()}}, true
	case isInteger(t):
		w := typeWidth(lf.sizes, t)
		return Lit{class: intLit, isVar: true, v: cfg.Var{Name: valueName(v), Type: cfg.IntType(w)}}, true
	case isPointer(t):
		if !lf.params.TrackPointers() {
			return Lit{}, false
		}
		return Lit{class: ptrLit, isVar: true, v: cfg.Var{Name: valueName(v), Type: cfg.PointerType()}}, true
	default:
		return Lit{}, false
	}
}

func (lf *litFactory) classifyConst(c *ssa.Const) (Lit, bool) {
	t := c.Type()
	switch {
	case isBool(t):
		return Lit{class: boolLit, boolVal: constant.BoolVal(c.Value)}, true
	case isInteger(t):
		n := constIntValue(c)
		if n == nil {
			return Lit{}, false
		}
		isBig := n.Cmp(maxInt64) > 0 || n.Cmp(minInt64) < 0
		if isBig && !lf.params.EnableBignums {
			return Lit{}, false
		}
		return Lit{class: intLit, intVal: n, big: isBig}, true
	case isPointer(t):
		if !lf.params.TrackPointers() {
			return Lit{}, false
		}
		if c.IsNil() {
			return Lit{class: ptrLit, null: true}, true
		}
		return Lit{}, false
	default:
		return Lit{}, false
	}
}

// constIntValue extracts an integer constant as a big integer,
// interpreting unsigned constants by their unsigned value.
func constIntValue(c *ssa.Const) *big.Int {
	if c.Value == nil {
		return nil
	}
	val := constant.ToInt(c.Value)
	if val.Kind() != constant.Int {
		return nil
	}
	n := new(big.Int)
	if _, ok := n.SetString(val.ExactString(), 10); !ok {
		return nil
	}
	return n
}

// freshVarFor mints a new variable typed like v. Returns false for
// untracked types.
func (lf *litFactory) freshVarFor(v ssa.Value) (cfg.Var, bool) {
	t := v.Type()
	switch {
	case isBool(t):
		return lf.vfac.freshBool(), true
	case isInteger(t):
		return lf.vfac.freshInt(typeWidth(lf.sizes, t)), true
	case isPointer(t):
		if !lf.params.TrackPointers() {
			return cfg.Var{}, false
		}
		return lf.vfac.freshPointer(), true
	default:
		return cfg.Var{}, false
	}
}

// valueName returns the target-language name for a source register or
// global. Globals are qualified by package so per-function registers
// cannot collide with them.
func valueName(v ssa.Value) string {
	if g, ok := v.(*ssa.Global); ok {
		return g.String()
	}
	if v.Name() == "" {
		fatalf("value %v has no name; a renaming pass is required before translation", v)
	}
	return v.Name()
}
