// limpet translates Go packages into analysis control-flow graphs and
// prints them.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/go-logr/logr/funcr"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/limpet-analysis/limpet/config"
	"github.com/limpet-analysis/limpet/heap"
	"github.com/limpet-analysis/limpet/translate"
	"github.com/limpet-analysis/limpet/version"
)

func main() {
	var (
		flagConfig  = flag.String("config", "", "TOML parameter file")
		flagVerbose = flag.Int("v", 0, "diagnostic verbosity")
		flagDot     = flag.Bool("dot", false, "print graphs in Graphviz dot form")
		flagVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()
	if *flagVersion {
		version.Verbose()
		return
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: limpet [flags] packages...")
		os.Exit(2)
	}

	params := config.Default()
	if *flagConfig != "" {
		var err error
		params, err = config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "limpet:", err)
			os.Exit(1)
		}
	}

	log := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, "limpet:", prefix, args)
	}, funcr.Options{Verbosity: *flagVerbose})

	pkgs, err := packages.Load(&packages.Config{Mode: packages.LoadAllSyntax}, flag.Args()...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "limpet:", err)
		os.Exit(1)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	prog, _ := ssautil.AllPackages(pkgs, ssa.BuilderMode(0))
	prog.Build()

	sizes := pkgs[0].TypesSizes
	mgr := translate.NewManager(params, heap.NewAllocSites(prog, sizes), sizes, prog.Fset, log)

	var fns []*ssa.Function
	for _, pkg := range pkgs {
		sp := prog.Package(pkg.Types)
		for _, m := range sp.Members {
			if fn, ok := m.(*ssa.Function); ok && len(fn.Blocks) > 0 {
				fns = append(fns, fn)
			}
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })

	header := color.New(color.FgCyan, color.Bold)
	fail := false
	for _, fn := range fns {
		g, err := mgr.CFG(fn)
		if err != nil {
			fmt.Fprintln(os.Stderr, "limpet:", err)
			fail = true
			continue
		}
		if *flagDot {
			if err := g.WriteDot(os.Stdout, fn.String()); err != nil {
				fmt.Fprintln(os.Stderr, "limpet:", err)
				os.Exit(1)
			}
			continue
		}
		header.Printf("== %s ==\n", fn.String())
		fmt.Print(g.String())
		fmt.Println()
	}
	if fail {
		os.Exit(1)
	}
}
