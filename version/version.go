// Package version reports the limpet build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version. "devel" means an unreleased build; in
// that case the module version stamped by the Go toolchain is used when
// available.
const Version = "devel"

func describe() string {
	if Version != "devel" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok &&
		info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "devel"
}

// Print writes the one-line version banner.
func Print() {
	fmt.Printf("limpet %s\n", describe())
}

// Verbose additionally lists the toolchain version and the module
// dependencies the binary was built against.
func Verbose() {
	Print()
	fmt.Println("Compiled with Go version:", runtime.Version())
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("Built without module information")
		return
	}
	fmt.Println("Dependencies:")
	for _, dep := range info.Deps {
		fmt.Printf("\t%s@%s\n", dep.Path, dep.Version)
	}
}
