// Package config holds the translation parameters of the CFG builder.
//
// Parameters decide how much of the source program is modeled (integers
// only, integers and pointers, or integers, pointers and memory), whether
// functions are translated for interprocedural analysis, and which
// soundness/precision trade-offs are taken. They can be loaded from a TOML
// file or constructed in code starting from Default.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Precision is the tracked abstraction level.
type Precision int

const (
	// Num tracks booleans and integers only.
	Num Precision = iota
	// Ptr additionally tracks pointer values.
	Ptr
	// Mem additionally maps memory regions to arrays.
	Mem
)

func (p Precision) String() string {
	switch p {
	case Num:
		return "num"
	case Ptr:
		return "ptr"
	case Mem:
		return "mem"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so that precision
// levels can be written as strings in TOML files.
func (p *Precision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "num":
		*p = Num
	case "ptr":
		*p = Ptr
	case "mem":
		*p = Mem
	default:
		return fmt.Errorf("unknown precision level %q (want num, ptr or mem)", text)
	}
	return nil
}

// Intrinsics lists the fully qualified names of functions with special
// meaning to the translation. A call to one of them is lowered directly
// instead of being treated as an ordinary call.
type Intrinsics struct {
	Assert    []string `toml:"assert"`
	Assume    []string `toml:"assume"`
	AssumeNot []string `toml:"assume_not"`
	Error     []string `toml:"error"`
	Fail      []string `toml:"fail"`
	ZeroInit  []string `toml:"zero_initializer"`
	IntInit   []string `toml:"int_initializer"`
}

// Params configures one builder manager. The zero value is not useful;
// start from Default.
type Params struct {
	// Precision selects which value classes are tracked.
	Precision Precision `toml:"precision"`
	// Interprocedural emits call statements and function declarations
	// with threaded memory regions instead of havocking across calls.
	Interprocedural bool `toml:"interprocedural"`
	// Simplify runs a one-time dead-statement and empty-block removal
	// pass on the finished graph. It disables the reverse statement map.
	Simplify bool `toml:"simplify"`
	// LowerSingletonAliases promotes memory regions that alias exactly
	// one scalar to plain scalar variables.
	LowerSingletonAliases bool `toml:"lower_singleton_aliases"`
	// EnableBignums permits integer constants outside the signed 64-bit
	// range. When false such constants are left unclassified and their
	// uses degrade to havoc.
	EnableBignums bool `toml:"enable_bignums"`
	// IncludeUselessHavoc keeps havoc statements for values the
	// translation gives up on. Turning it off shrinks the CFG but makes
	// the precision loss invisible.
	IncludeUselessHavoc bool `toml:"include_useless_havoc"`
	// InitArrays emits an array initialization for fresh regions backing
	// allocations of scalar arrays.
	InitArrays bool `toml:"init_arrays"`
	// AggressiveInitArrays also initializes regions from memory-setting
	// intrinsics. Unsound in general.
	AggressiveInitArrays bool `toml:"aggressive_init_arrays"`

	Intrinsics Intrinsics `toml:"intrinsics"`

	// Allocators names functions that behave like allocation sites: the
	// returned pointer is a fresh object.
	Allocators []string `toml:"allocators"`
}

// Default returns the documented default parameters: full memory
// tracking, interprocedural, bignums on, no simplification.
func Default() Params {
	return Params{
		Precision:             Mem,
		Interprocedural:       true,
		Simplify:              false,
		LowerSingletonAliases: true,
		EnableBignums:         true,
		IncludeUselessHavoc:   true,
		InitArrays:            true,
		AggressiveInitArrays:  false,
		Intrinsics: Intrinsics{
			Assert:    []string{"verifier.Assert"},
			Assume:    []string{"verifier.Assume"},
			AssumeNot: []string{"verifier.AssumeNot"},
			Error:     []string{"verifier.Error"},
			Fail:      []string{"verifier.Fail"},
			ZeroInit:  []string{"verifier.ZeroInitializer"},
			IntInit:   []string{"verifier.IntInitializer"},
		},
		Allocators: nil,
	}
}

// Load reads parameters from a TOML file, layered over Default. Keys
// that Params does not know about are an error rather than being
// silently dropped.
func Load(path string) (Params, error) {
	p := Default()
	f, err := os.Open(path)
	if err != nil {
		return p, err
	}
	defer f.Close()
	md, err := toml.NewDecoder(f).Decode(&p)
	if err != nil {
		return p, fmt.Errorf("%s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return p, fmt.Errorf("%s: unknown configuration key %q", path, undec[0].String())
	}
	return p, nil
}

// TrackPointers reports whether pointer values are classified at all.
func (p *Params) TrackPointers() bool { return p.Precision >= Ptr }

// TrackMemory reports whether loads and stores are mapped to array
// statements over memory regions.
func (p *Params) TrackMemory() bool { return p.Precision >= Mem }

// ArrayInit reports whether fresh regions receive an initialization
// statement.
func (p *Params) ArrayInit() bool { return p.TrackMemory() && p.InitArrays }

// AggressiveArrayInit reports whether memory-setting intrinsics may
// initialize regions. Guarded separately because it is unsound for
// regions written through unknown offsets.
func (p *Params) AggressiveArrayInit() bool {
	return p.ArrayInit() && p.AggressiveInitArrays
}

func match(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// The Is* helpers classify a fully qualified function name against the
// intrinsic lists.

func (p *Params) IsAssert(name string) bool    { return match(p.Intrinsics.Assert, name) }
func (p *Params) IsAssume(name string) bool    { return match(p.Intrinsics.Assume, name) }
func (p *Params) IsAssumeNot(name string) bool { return match(p.Intrinsics.AssumeNot, name) }
func (p *Params) IsError(name string) bool     { return match(p.Intrinsics.Error, name) }
func (p *Params) IsFail(name string) bool      { return match(p.Intrinsics.Fail, name) }
func (p *Params) IsZeroInit(name string) bool  { return match(p.Intrinsics.ZeroInit, name) }
func (p *Params) IsIntInit(name string) bool   { return match(p.Intrinsics.IntInit, name) }
func (p *Params) IsAllocator(name string) bool { return match(p.Allocators, name) }

// IsVerifierCall reports whether name is any of the verifier
// intrinsics: assert/assume/error style or region initializers.
func (p *Params) IsVerifierCall(name string) bool {
	return p.IsAssert(name) || p.IsAssume(name) || p.IsAssumeNot(name) ||
		p.IsError(name) || p.IsFail(name) ||
		p.IsZeroInit(name) || p.IsIntInit(name)
}
