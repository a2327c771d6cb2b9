// Package builtin is the catalog of external-program-shaped commands a
// script can invoke: grep, sed, tar, curl, git, and the rest of the table
// in SPEC_FULL.md §6. In real bash these are external programs, not shell
// builtins — cd/export/read/etc. stay in package interp, where they
// already live, because only the interpreter itself can mutate shell
// variables. Everything here instead runs the same way [exec.Cmd] would in
// a non-sandboxed shell: it receives args, a cwd, environment, and
// stdio, and reports an exit status.
//
// package bashkit wires the catalog in, through [Lookup], as the fallback tier of its
// [interp.ExecHandlerFunc], after the interpreter's own function and
// builtin dispatch have both missed.
package builtin

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/vfs"
)

// HTTPClient is the network collaborator curl/wget call through. It is
// satisfied by *httpclient.Client; kept as an interface here so this
// package never needs to import httpclient's allowlist configuration.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, body io.Reader) (status int, respBody []byte, err error)
}

// GitHandle is the collaborator the git builtin drives. *gitplugin.Handle
// satisfies it; kept as an interface for the same reason as HTTPClient.
type GitHandle interface {
	Run(ctx context.Context, dir string, args []string, stdout, stderr io.Writer) error
}

// PythonHandle is the collaborator the python/python3 builtins drive when a
// host has configured one. Unconfigured, those builtins just report 127.
type PythonHandle interface {
	Run(ctx context.Context, dir string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error)
}

// Context is the data every builtin function receives: args, a read-only
// environment, cwd, fs, and stdio, plus the optional Logger/HTTP/Git/Python
// handles a Builder may or may not have configured. It carries no handle on
// the interpreter's variable store, so a builtin here cannot set shell
// variables.
type Context struct {
	Ctx context.Context

	// Args holds the command name in Args[0] and its arguments after that,
	// matching os.Args and interp.ExecHandlerFunc's own args slice.
	Args []string

	// Env is the read-only shell environment at the point of the call,
	// letting builtins like env/printenv/date read variables without any
	// access back into the interpreter's mutable variable store.
	Env expand.Environ

	// Dir is the interpreter's current working directory.
	Dir string

	// FS is the sole filesystem collaborator; no builtin in this package
	// ever touches the real host disk.
	FS vfs.FS

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger is a scoped child logger for builtins that want to emit
	// diagnostics distinguishable from Stderr (curl -v, git's status lines).
	// Never nil: bashkit.Engine defaults it to zap.NewNop().
	Logger *zap.Logger

	// HTTP is present only when the Builder configured an allowlisted
	// client; nil otherwise, in which case curl/wget fail closed.
	HTTP HTTPClient

	// Git is present only when the Builder enabled the git plug-in.
	Git GitHandle

	// Python is present only when the Builder enabled a Python runtime.
	Python PythonHandle

	// NowFunc, when set, replaces time.Now for the "date" builtin, so a
	// host can make script output reproducible instead of depending on
	// wall-clock time. Nil means time.Now in UTC.
	NowFunc func() time.Time

	// IdentityOverride, when non-zero, replaces DefaultIdentity for the
	// whoami/hostname/uname/id stubs. Builder configures this from
	// bashkit.WithIdentity; most hosts leave it unset.
	IdentityOverride Identity

	// Reinvoke runs script as a nested script against the same engine
	// configuration (VFS, handlers, limits) that produced this Context,
	// backing the "bash"/"sh" re-entry builtins. bashkit.Engine always
	// sets it; nil only in tests that construct a Context directly.
	Reinvoke func(ctxt *Context, script string, args []string) (int, error)
}

// Errorf writes a "name: message\n" line to Stderr, matching the shape
// real coreutils use for their own diagnostics.
func (c *Context) Errorf(format string, args ...any) {
	fmt.Fprintf(c.Stderr, c.Args[0]+": "+format+"\n", args...)
}

// ExitStatus is the error type builtins return to set a specific nonzero
// exit code without aborting the whole script, the same role
// interp.ExitStatus plays for internal builtins. A nil error means status
// 0; any other error type is treated as status 1, and its message is not
// written to Stderr.
type ExitStatus int

func (e ExitStatus) Error() string { return "exit status " + strconv.Itoa(int(e)) }

// Func is one catalog entry: a function taking a fully populated Context
// and reporting its outcome the way ExecHandlerFunc does.
type Func func(*Context) error

var registry = map[string]Func{}

// Register adds fn to the catalog under name. Called from each file's
// init in this package; a package importer never calls this directly.
func Register(name string, fn Func) {
	registry[name] = fn
}

// Lookup returns the catalog entry for name, if any.
func Lookup(name string) (Func, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Names returns every registered builtin name, for "command -v"-style
// introspection by a host that wants to list what bashkit supports.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
