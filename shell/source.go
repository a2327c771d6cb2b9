// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/bashkit-sh/bashkit/builtin"
	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/interp"
	"github.com/bashkit-sh/bashkit/syntax"
)

// SourceFile sources a shell file from disk and returns the variables
// declared in it. It is a convenience function that uses a default shell
// parser, parses a file from disk, and calls SourceNode.
func SourceFile(ctx context.Context, path string) (map[string]expand.Variable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open: %v", err)
	}
	defer f.Close()
	p := syntax.NewParser()
	file, err := p.Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("could not parse: %v", err)
	}
	return SourceNode(ctx, file)
}

// purePrograms holds a list of common programs that do not have side
// effects, or otherwise cannot modify or harm the system that runs
// them.
var purePrograms = []string{
	// string handling
	"sed", "grep", "tr", "cut", "cat", "head", "tail", "seq", "yes",
	"wc",
	// paths
	"ls", "pwd", "basename", "realpath",
	// others
	"env", "sleep", "uniq", "sort",
}

func pureRunner() *interp.Runner {
	// forbid executing programs that might cause trouble; the whitelisted
	// text tools run from the sandboxed builtin catalog, never as real
	// host processes; cat and seq have no catalog entry, so they are
	// refused like unlisted programs
	exec := interp.ExecHandlerFunc(func(ctx context.Context, args []string) error {
		for _, name := range purePrograms {
			if args[0] != name {
				continue
			}
			fn, ok := builtin.Lookup(args[0])
			if !ok {
				break
			}
			hc := interp.HandlerCtx(ctx)
			bc := &builtin.Context{
				Ctx:    ctx,
				Args:   args,
				Env:    hc.Env,
				Dir:    hc.Dir,
				Stdin:  hc.Stdin,
				Stdout: hc.Stdout,
				Stderr: hc.Stderr,
				Logger: zap.NewNop(),
			}
			err := fn(bc)
			var status builtin.ExitStatus
			switch {
			case err == nil:
				return nil
			case errors.As(err, &status):
				return interp.ExitStatus(uint8(status))
			default:
				return interp.ExitStatus(1)
			}
		}
		return fmt.Errorf("program not in whitelist: %s", args[0])
	})
	// forbid opening any real files
	open := interp.OpenHandlerFunc(func(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
		return nil, fmt.Errorf("cannot open path: %s", path)
	})
	r, err := interp.New(interp.ExecHandler(exec), interp.OpenHandler(open))
	if err != nil {
		panic(err)
	}
	return r
}

// SourceNode sources a shell program from a node and returns the
// variables declared in it. It accepts the same set of node types that
// interp/Runner.Run does.
//
// Any side effects or modifications to the system are forbidden when
// interpreting the program. This is enforced via whitelists when
// executing programs and opening files.
func SourceNode(ctx context.Context, node syntax.Node) (map[string]expand.Variable, error) {
	r := pureRunner()
	if err := r.Run(ctx, node); err != nil {
		return nil, fmt.Errorf("could not run: %v", err)
	}
	// delete the internal shell vars that the user is not
	// interested in
	delete(r.Vars, "PWD")
	delete(r.Vars, "HOME")
	delete(r.Vars, "PATH")
	delete(r.Vars, "IFS")
	delete(r.Vars, "OPTIND")
	delete(r.Vars, "UID")
	delete(r.Vars, "EUID")
	delete(r.Vars, "GID")
	return r.Vars, nil
}
