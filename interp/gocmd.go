package interp

import (
	"context"
	"io"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/syntax"
)

// GoCmd is a Go function callable from a script as if it were a command.
// It receives the expanded argument list (name included, like os.Args), a
// read-only view of the environment, the working directory, and the three
// standard streams, and reports an exit status.
type GoCmd func(ctx context.Context, args []string, env expand.Environ, cwd string, stdin io.Reader, stdout, stderr io.Writer) (exit uint8)

// DeclareGoCommand registers cmd under name. The registration takes
// precedence over builtins and the exec handler, the same way a declared
// shell function shadows a command of the same name; re-declaring replaces
// the previous registration.
func (r *Runner) DeclareGoCommand(name string, cmd GoCmd) {
	if r.Funcs == nil {
		r.Funcs = make(map[string]*syntax.Stmt)
	}
	r.Funcs[name] = &syntax.Stmt{Cmd: goCmdExpr{name, cmd}}
}

// goCmdExpr smuggles a GoCmd through the function table as a pseudo
// command node. It never comes out of the parser; the only way to build
// one is [Runner.DeclareGoCommand].
type goCmdExpr struct {
	name string
	fn   GoCmd
}

var noPos = syntax.Pos(0)

func (goCmdExpr) Pos() syntax.Pos { return noPos }
func (goCmdExpr) End() syntax.Pos { return noPos }
func (goCmdExpr) CommandNode()    {}

var _ syntax.Command = goCmdExpr{}

// runGoCmd executes a registered GoCmd. By the time we get here, call has
// already pushed the argument list into r.Params the way it does for any
// function body.
func (r *Runner) runGoCmd(ctx context.Context, cm goCmdExpr) {
	args := append([]string{cm.name}, r.Params...)
	var stdin io.Reader
	if r.stdin != nil {
		stdin = r.stdin
	}
	r.exit.code = cm.fn(ctx, args, &overlayEnviron{parent: r.writeEnv}, r.Dir, stdin, r.stdout, r.stderr)
}
