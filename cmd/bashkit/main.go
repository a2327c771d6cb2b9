// Command bashkit runs a bash-family script against an in-memory sandbox,
// for manually exercising the engine. It is a demo, not a product surface:
// host applications embed package bashkit directly instead of shelling out
// to this binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bashkit-sh/bashkit/bashkit"
	"github.com/bashkit-sh/bashkit/limits"
	"github.com/bashkit-sh/bashkit/syntax"
)

func main() { os.Exit(main1()) }

// main1 is split out from main so the end-to-end testscript suite
// (see cmd/bashkit/main_test.go) can run this binary's logic in-process via
// testscript.RunMain instead of a real subprocess, the same split shfmt
// uses for its own cmd/shfmt/main_test.go.
func main1() int {
	relaxed := flag.Bool("relaxed", false, "use the relaxed resource-limit profile instead of conservative")
	printSrc := flag.Bool("print", false, "parse, simplify, and pretty-print the script instead of running it")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bashkit [-relaxed] [-print] script.sh")
		return 2
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	lim := limits.Conservative()
	if *relaxed {
		lim = limits.Relaxed()
	}

	if *printSrc {
		file, err := syntax.ParseLimited(src, flag.Arg(0), 0, limits.New(lim))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		syntax.Simplify(file)
		if err := syntax.Fprint(os.Stdout, file); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return 0
	}

	engine, err := bashkit.NewBuilder(bashkit.WithLimits(lim)).Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	res := engine.Execute(context.Background(), string(src))
	fmt.Print(res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)
	if res.Err != nil {
		fmt.Fprintln(os.Stderr, "bashkit:", res.Err)
	}
	return res.ExitCode
}
