// Package bashkit is the public entrypoint: build an [Engine] once with a
// [Builder], then call [Engine.Execute] for every untrusted script a host
// application wants to run. Construction follows the same functional-option
// shape as package interp's Runner ([interp.New], [interp.RunnerOption]):
// unset options fall back to safe defaults rather than to the host
// environment.
package bashkit

import (
	"bytes"
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/bashkit-sh/bashkit/builtin"
	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/interp"
	"github.com/bashkit-sh/bashkit/limits"
	"github.com/bashkit-sh/bashkit/syntax"
	"github.com/bashkit-sh/bashkit/vfs"
)

// Builder accumulates construction options before producing an immutable
// [Engine]. A Builder is cheap to keep around and reuse: Build can be
// called more than once to mint independent engines sharing the same
// backing [vfs.FS] (mirroring the host-process-shares-a-filesystem-across-
// Engines scenario from the concurrency model).
type Builder struct {
	fs       vfs.FS
	limits   limits.ExecutionLimits
	logger   *zap.Logger
	env      map[string]string
	http     HTTPClient
	git      builtin.GitHandle
	python   builtin.PythonHandle
	identity builtin.Identity
	builtins map[string]builtin.Func
	err      error
}

// HTTPClient is the minimal network collaborator contract curl/wget call
// through; package httpclient's allowlisted client satisfies it.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, body io.Reader) (status int, respBody []byte, err error)
}

// BuilderOption configures a [Builder]. Options are applied in order and
// the last one wins for a given field, same as [interp.RunnerOption].
type BuilderOption func(*Builder)

// NewBuilder creates a Builder with conservative defaults: an empty
// in-memory filesystem, [limits.Conservative], a no-op logger, and no
// network access.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		limits: limits.Conservative(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.fs == nil {
		b.fs = vfs.NewMemFS(vfs.Limits{
			MaxTotalBytes: 64 * 1024 * 1024,
			MaxEntries:    100_000,
			MaxPathLength: 4096,
			MaxFileBytes:  16 * 1024 * 1024,
		})
	}
	return b
}

// WithFS overrides the backing virtual filesystem. Supplying one lets a
// host pre-seed files before the script runs, or inspect/persist them
// after, since Execute never discards the Builder's FS between calls.
func WithFS(fs vfs.FS) BuilderOption {
	return func(b *Builder) { b.fs = fs }
}

// WithLimits overrides the resource-ceiling policy; see [limits.Conservative]
// and [limits.Relaxed] for the two shipped profiles.
func WithLimits(lim limits.ExecutionLimits) BuilderOption {
	return func(b *Builder) { b.limits = lim }
}

// WithLogger attaches a structured logger for internal diagnostics and
// limit-breach telemetry. It is never written to by the script itself;
// Stdout/Stderr in [Result] are the only script-visible output.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithEnv sets the exported environment variables visible to the script.
// Unset means an empty environment, deliberately not the host process's
// real environment, unlike interp.Env(nil)'s default.
func WithEnv(env map[string]string) BuilderOption {
	return func(b *Builder) { b.env = env }
}

// WithHTTPClient enables the network builtins (curl, wget) against an
// allowlisted client. Unset, those builtins fail closed.
func WithHTTPClient(c HTTPClient) BuilderOption {
	return func(b *Builder) { b.http = c }
}

// WithGit enables the "git" builtin (init/add/commit/status/log) against
// the given handle, typically a *gitplugin.Handle bound to the same
// [vfs.FS] the Builder itself uses. Unset, "git" reports itself disabled.
func WithGit(g builtin.GitHandle) BuilderOption {
	return func(b *Builder) { b.git = g }
}

// WithPython enables the "python"/"python3" builtins against a host
// Python runtime; see package pyplugin. Unset, those builtins report 127.
func WithPython(p builtin.PythonHandle) BuilderOption {
	return func(b *Builder) { b.python = p }
}

// WithIdentity overrides the builder-configured identity whoami/hostname/
// uname/id report. Unset, builtin.DefaultIdentity (user "sandbox", host
// "bashkit-sandbox", OS "bashkit") is used, never the real host's identity.
func WithIdentity(user, host, os string) BuilderOption {
	return func(b *Builder) { b.identity = builtin.Identity{User: user, Host: host, OS: os} }
}

// WithBuiltin registers a custom builtin under name, shadowing any catalog
// entry or interpreter builtin of the same name, the way a declared shell
// function shadows a command. The callback receives the same
// [builtin.Context] every catalog entry does.
func WithBuiltin(name string, fn builtin.Func) BuilderOption {
	return func(b *Builder) {
		if b.builtins == nil {
			b.builtins = make(map[string]builtin.Func)
		}
		b.builtins[name] = fn
	}
}

// Build validates the accumulated options and returns an immutable Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	// The sandbox identity refers to these paths (TMPDIR for process
	// substitution files, HOME for tilde expansion and cd); make sure they
	// exist on whatever FS backs the engine. Mkdir on an existing directory
	// just errors, which is fine here.
	for _, dir := range []string{"/tmp", "/home", "/home/sandbox"} {
		if !b.fs.Exists(dir) {
			_ = b.fs.Mkdir(dir, 0o755)
		}
	}
	return &Engine{
		fs:       b.fs,
		limits:   b.limits,
		logger:   b.logger,
		env:      b.env,
		http:     b.http,
		git:      b.git,
		python:   b.python,
		identity: b.identity,
		builtins: b.builtins,
	}, nil
}

// Engine executes scripts against a fixed configuration. It is safe to
// call [Engine.Execute] from only one goroutine at a time per Engine value
// (the single-task-per-instance concurrency model); build one Engine per
// concurrent caller, optionally sharing the same [vfs.FS].
type Engine struct {
	fs       vfs.FS
	limits   limits.ExecutionLimits
	logger   *zap.Logger
	env      map[string]string
	http     HTTPClient
	git      builtin.GitHandle
	python   builtin.PythonHandle
	identity builtin.Identity
	builtins map[string]builtin.Func

	// counters is the in-flight Execute call's counter set, shared with
	// reinvoked nested shells so `bash -c` cannot mint itself a fresh
	// budget. Engines are single-task per the concurrency model, so a
	// plain field needs no locking.
	counters *limits.Counters

	// vars and funcs carry the shell variable store and function table
	// across Execute calls, so successive executes see earlier
	// definitions; counters, traps, and positional parameters reset at
	// every call.
	vars  map[string]expand.Variable
	funcs map[string]*syntax.Stmt
}

// Result is the outcome of one [Engine.Execute] call.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is non-nil only for failures the script itself could not have
	// caused to be reported as a normal nonzero exit status: a parse
	// failure (*syntax.ParseError), a resource-ceiling breach
	// (*limits.LimitError, possibly wrapped in a *syntax.ParseError), or an
	// internal engine fault. A script that merely exits nonzero, or calls
	// `exit 1`, reports that in ExitCode with Err nil.
	Err error
}

// Execute parses and runs scriptText to completion or until ctx is done or
// the Engine's execution-timeout ceiling elapses, whichever comes first.
func (e *Engine) Execute(ctx context.Context, scriptText string) Result {
	return e.execute(ctx, scriptText, nil)
}

// StreamFunc receives output deltas as the script makes progress: after
// each command in a list or loop, the stdout and stderr text produced since
// the previous call. Intermediate pipeline stages do not stream, since
// their output feeds the next stage rather than the capture buffers. The
// buffered Result always carries the complete output regardless.
type StreamFunc func(stdoutDelta, stderrDelta string)

// ExecuteStream is [Engine.Execute] with a streaming callback; see
// [StreamFunc] for its granularity.
func (e *Engine) ExecuteStream(ctx context.Context, scriptText string, stream StreamFunc) Result {
	return e.execute(ctx, scriptText, stream)
}

func (e *Engine) execute(ctx context.Context, scriptText string, stream StreamFunc) (res Result) {
	// A fault anywhere inside the engine must never take the host process
	// down, and must never leak stack frames or addresses to the caller.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("recovered internal fault", zap.Any("panic", r))
			res = Result{ExitCode: 2, Err: errors.New("bashkit: internal error")}
		}
	}()

	counters := limits.New(e.limits)
	e.counters = counters
	defer func() { e.counters = nil }()

	file, err := syntax.ParseLimited([]byte(scriptText), "", 0, counters)
	if err != nil {
		return Result{ExitCode: 2, Err: err}
	}

	var stdout, stderr bytes.Buffer
	capped := newOutputBudget(e.limits.MaxOutputBytes)
	opts := []interp.RunnerOption{
		interp.Env(buildEnviron(e.env)),
		interp.Dir("/"),
		interp.StdIO(bytes.NewReader(nil), capped.wrap(&stdout), capped.wrap(&stderr)),
		interp.OpenHandler(openHandler(e.fs)),
		interp.StatHandler(statHandler(e.fs)),
		interp.ReadDirHandler2(readDirHandler(e.fs)),
		interp.ReadlinkHandler(readlinkHandler(e.fs)),
		interp.ExecHandler(e.execHandler()),
		interp.Counters(counters),
		interp.Vars(e.vars),
		interp.Funcs(e.funcs),
	}
	if stream != nil {
		flusher := &streamFlusher{stdout: &stdout, stderr: &stderr, fn: stream}
		opts = append(opts, interp.CallHandler(func(ctx context.Context, args []string) ([]string, error) {
			flusher.flush()
			return args, nil
		}))
		defer flusher.flush()
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return Result{ExitCode: 2, Err: err}
	}
	// Reset now, before registering custom builtins: the first Run would
	// otherwise Reset the runner itself and wipe the registrations along
	// with the rest of the function table.
	runner.Reset()
	e.registerBuiltins(runner)

	runCtx := ctx
	var cancel context.CancelFunc
	if e.limits.ExecutionTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.limits.ExecutionTimeout)
		defer cancel()
	}

	e.logger.Debug("executing script", zap.Int("script_bytes", len(scriptText)))
	runErr := runner.Run(runCtx, file)

	// Persist the shell state for the next Execute call; Run has already
	// harvested the variable store into runner.Vars.
	e.vars, e.funcs = runner.Vars, runner.Funcs

	exitCode := 0
	var limitErr error
	var status interp.ExitStatus
	switch {
	case errors.As(runErr, &status):
		exitCode = int(status)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		exitCode = 1
		limitErr = &limits.LimitError{Kind: limits.KindTimeout}
	case runErr != nil:
		var le *limits.LimitError
		if errors.As(runErr, &le) {
			exitCode = 1
			limitErr = le
		} else {
			e.logger.Warn("script run faulted", zap.Error(runErr))
			return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 2, Err: runErr}
		}
	}
	if limitErr == nil && capped.breached() {
		limitErr = &limits.LimitError{Kind: limits.KindOutputBytes, Limit: e.limits.MaxOutputBytes}
	}
	if limitErr != nil {
		e.logger.Info("execution limit breached", zap.Error(limitErr))
	}

	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Err:      limitErr,
	}
}

// buildEnviron merges the host-supplied environment over the sandbox's
// identity defaults. The defaults exist so the Runner's own fallbacks for
// unset HOME/UID/etc never consult the real host; scripts always see the
// builder-configured virtual identity, whatever the host process runs as.
func buildEnviron(env map[string]string) expand.Environ {
	merged := map[string]string{
		"HOME":     "/home/sandbox",
		"USER":     "sandbox",
		"HOSTNAME": "bashkit-sandbox",
		"SHELL":    "/bin/bash",
		"PATH":     "/usr/local/bin:/usr/bin:/bin",
		"TMPDIR":   "/tmp",
		"UID":      "1000",
		"EUID":     "1000",
		"GID":      "1000",
	}
	for k, v := range env {
		merged[k] = v
	}
	pairs := make([]string, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, k+"="+v)
	}
	return expand.ListEnviron(pairs...) // ListEnviron sorts, so iteration order here does not matter
}

