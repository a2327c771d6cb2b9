package bashkit

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/bashkit-sh/bashkit/builtin"
	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/interp"
	"github.com/bashkit-sh/bashkit/syntax"
)

// registerBuiltins installs the Builder's custom builtins on a freshly
// built Runner via [interp.Runner.DeclareGoCommand], so they resolve ahead
// of the interpreter's own builtin table and the catalog tier alike.
func (e *Engine) registerBuiltins(runner *interp.Runner) {
	for name, fn := range e.builtins {
		runner.DeclareGoCommand(name, func(ctx context.Context, args []string, env expand.Environ, cwd string, stdin io.Reader, stdout, stderr io.Writer) uint8 {
			bc := &builtin.Context{
				Ctx:              ctx,
				Args:             args,
				Env:              env,
				Dir:              cwd,
				FS:               e.fs,
				Stdin:            stdin,
				Stdout:           stdout,
				Stderr:           stderr,
				Logger:           e.logger,
				HTTP:             e.http,
				Git:              e.git,
				Python:           e.python,
				IdentityOverride: e.identity,
				Reinvoke:         e.reinvoke,
			}
			err := fn(bc)
			var status builtin.ExitStatus
			switch {
			case err == nil:
				return 0
			case errors.As(err, &status):
				return uint8(status)
			default:
				return 1
			}
		})
	}
}

// execHandler is the [interp.ExecHandlerFunc] installed on every Runner an
// Engine builds. By the time the interpreter reaches here it has already
// tried a declared function, then its own internal builtin table (cd,
// export, read, ...); this is the third and last tier, dispatching into
// package builtin's catalog (grep, tar, curl, git, ...) before finally
// reporting "command not found", matching the dispatch order SPEC_FULL.md
// §4.4 names.
func (e *Engine) execHandler() interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		fn, ok := builtin.Lookup(args[0])
		if !ok {
			_, _ = hc.Stderr.Write([]byte(args[0] + ": command not found\n"))
			return interp.ExitStatus(127)
		}

		bc := &builtin.Context{
			Ctx:              ctx,
			Args:             args,
			Env:              hc.Env,
			Dir:              hc.Dir,
			FS:               e.fs,
			Stdin:            hc.Stdin,
			Stdout:           hc.Stdout,
			Stderr:           hc.Stderr,
			Logger:           e.logger,
			HTTP:             e.http,
			Git:              e.git,
			Python:           e.python,
			IdentityOverride: e.identity,
			Reinvoke:         e.reinvoke,
		}
		// A buggy builtin must not take the whole engine down: any panic
		// becomes a sanitized diagnostic and exit status 1, and the
		// script carries on unless errexit is set.
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("builtin panicked",
						zap.String("name", args[0]), zap.Any("panic", r))
					_, _ = hc.Stderr.Write([]byte(args[0] + ": internal error\n"))
					err = interp.ExitStatus(1)
				}
			}()
			return fn(bc)
		}()
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
}

// reinvoke backs the "bash"/"sh" re-entry builtins: it parses script and
// runs it to completion against a brand new [interp.Runner] sharing this
// Engine's VFS, handlers, and limits, writing straight into the calling
// builtin's own Stdout/Stderr rather than a separate buffer, the same way
// a real nested "bash -c" shares its parent's file descriptors.
func (e *Engine) reinvoke(bc *builtin.Context, script string, args []string) (int, error) {
	file, err := syntax.NewParser().ParseLimited(strings.NewReader(script), "", e.counters)
	if err != nil {
		return 2, err
	}

	runner, err := interp.New(
		interp.Env(buildEnviron(e.env)),
		interp.Dir(bc.Dir),
		interp.Params(args...),
		interp.StdIO(bc.Stdin, bc.Stdout, bc.Stderr),
		interp.OpenHandler(openHandler(e.fs)),
		interp.StatHandler(statHandler(e.fs)),
		interp.ReadDirHandler2(readDirHandler(e.fs)),
		interp.ReadlinkHandler(readlinkHandler(e.fs)),
		interp.ExecHandler(e.execHandler()),
		interp.Counters(e.counters),
	)
	if err != nil {
		return 2, err
	}
	// Same ordering concern as Engine.execute: Reset before registering,
	// or the first Run's own Reset would wipe the registrations.
	runner.Reset()
	e.registerBuiltins(runner)

	runErr := runner.Run(bc.Ctx, file)
	var status interp.ExitStatus
	if errors.As(runErr, &status) {
		return int(status), nil
	}
	if runErr != nil {
		return 1, runErr
	}
	return 0, nil
}
