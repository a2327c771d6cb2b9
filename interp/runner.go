// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	mathrand "math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/pattern"
	"github.com/bashkit-sh/bashkit/syntax"
)

const (
	// shellReplyPS3Var, or PS3, is a special variable in Bash used by the select command,
	// while the shell is awaiting for input. the default value is [shellDefaultPS3]
	shellReplyPS3Var = "PS3"
	// shellDefaultPS3, or #?, is PS3's default value
	shellDefaultPS3 = "#? "
	// shellReplyVar, or REPLY, is a special variable in Bash that is used to store the result of
	// the select command or of the read command, when no variable name is specified
	shellReplyVar = "REPLY"

	psubNamePrefix = "sh-psub-"
)

func (r *Runner) fillExpandConfig(ctx context.Context) {
	r.ectx = ctx
	r.ecfg = &expand.Config{
		Env: expandEnv{r},
		CmdSubst: func(w io.Writer, cs *syntax.CmdSubst) error {
			switch len(cs.Stmts) {
			case 0: // nothing to do
				return nil
			case 1: // $(<file)
				word := catShortcutArg(cs.Stmts[0])
				if word == nil {
					break
				}
				path := r.literal(word)
				f, err := r.open(ctx, path, os.O_RDONLY, 0, true)
				if err != nil {
					return err
				}
				_, err = io.Copy(w, f)
				f.Close()
				return err
			}
			r2 := r.subshell(false)
			r2.stdout = w
			r2.stmts(ctx, cs.Stmts)
			r2.exit.exiting = false // subshells don't exit the parent shell
			r.lastExpandExit = r2.exit
			if r2.exit.fatalExit {
				return r2.exit.err // surface fatal errors immediately
			}
			return nil
		},
		ProcSubst: func(ps *syntax.ProcSubst) (string, error) {
			if len(ps.Stmts) == 0 { // nothing to do
				return os.DevNull, nil
			}
			if ps.Op != syntax.CmdIn {
				// >(cmd) needs the consuming command to finish before the
				// substituted one can read what it wrote, which a
				// sequential interpreter with no real pipes cannot model.
				return "", fmt.Errorf("process substitution with output is not supported")
			}

			// <(cmd): run the substituted command now, capture its output,
			// and materialize it at a temporary pseudo-path the command
			// being started reads back through the regular open handler.
			path := filepath.Join(r.tempDir, psubNamePrefix+strconv.FormatUint(mathrand.Uint64(), 16))
			var buf bytes.Buffer
			r2 := r.subshell(false)
			r2.stdout = &buf
			r2.stmts(ctx, ps.Stmts)
			r2.exit.exiting = false // subshells don't exit the parent shell
			if r2.exit.fatalExit {
				return "", r2.exit.err
			}
			f, err := r.open(ctx, path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600, false)
			if err != nil {
				return "", fmt.Errorf("cannot create process substitution file: %v", err)
			}
			if _, err := f.Write(buf.Bytes()); err != nil {
				f.Close()
				return "", err
			}
			if err := f.Close(); err != nil {
				return "", err
			}
			return path, nil
		},
	}
	r.updateExpandOpts()
}

// catShortcutArg checks if a statement is of the form "$(<file)". The redirect
// word is returned if there's a match, and nil otherwise.
func catShortcutArg(stmt *syntax.Stmt) *syntax.Word {
	if stmt.Cmd != nil || stmt.Negated || stmt.Background || stmt.Coprocess {
		return nil
	}
	if len(stmt.Redirs) != 1 || len(stmt.Assigns) != 0 {
		return nil
	}
	redir := stmt.Redirs[0]
	if redir.Op != syntax.RdrIn {
		return nil
	}
	return &redir.Word
}

func (r *Runner) updateExpandOpts() {
	if r.opts[optNoGlob] {
		r.ecfg.ReadDir2 = nil
	} else {
		r.ecfg.ReadDir2 = func(s string) ([]fs.DirEntry, error) {
			return r.readDirHandler(r.handlerCtx(r.ectx, handlerKindReadDir, todoPos), s)
		}
	}
	r.ecfg.GlobStar = r.opts[optGlobStar]
	r.ecfg.NoCaseGlob = r.opts[optNoCaseGlob]
	r.ecfg.NullGlob = r.opts[optNullGlob]
	r.ecfg.NoUnset = r.opts[optNoUnset]
}

func (r *Runner) expandErr(err error) {
	if err == nil {
		return
	}
	errMsg := err.Error()
	fmt.Fprintln(r.stderr, errMsg)
	switch {
	case errors.As(err, &expand.UnsetParameterError{}):
	case errMsg == "invalid indirect expansion":
		// TODO: These errors are treated as fatal by bash.
		// Make the error type reflect that.
	case strings.HasSuffix(errMsg, "not supported"):
		// TODO: This "has suffix" is a temporary measure until the expand
		// package supports all syntax nodes like extended globbing.
	default:
		return // other cases do not exit
	}
	r.exit.code = 1
	r.exit.exiting = true
}

func (r *Runner) arithm(expr syntax.ArithmExpr) int {
	n, err := expand.Arithm(r.ecfg, expr)
	r.expandErr(err)
	return n
}

func (r *Runner) fields(words ...syntax.Word) []string {
	ptrs := make([]*syntax.Word, len(words))
	for i := range words {
		ptrs[i] = &words[i]
	}
	strs, err := expand.Fields(r.ecfg, ptrs...)
	r.expandErr(err)
	return strs
}

func (r *Runner) literal(word *syntax.Word) string {
	str, err := expand.Literal(r.ecfg, word)
	r.expandErr(err)
	return str
}

func (r *Runner) document(word *syntax.Word) string {
	str, err := expand.Document(r.ecfg, word)
	r.expandErr(err)
	return str
}

func (r *Runner) pattern(word *syntax.Word) string {
	str, err := expand.Pattern(r.ecfg, word)
	r.expandErr(err)
	return str
}

// expandEnviron exposes [Runner]'s variables to the expand package.
type expandEnv struct {
	r *Runner
}

var _ expand.WriteEnviron = expandEnv{}

func (e expandEnv) Get(name string) expand.Variable {
	return e.r.lookupVar(name)
}

func (e expandEnv) Set(name string, vr expand.Variable) error {
	e.r.setVar(name, vr)
	return nil // TODO: return any errors
}

func (e expandEnv) Each(fn func(name string, vr expand.Variable) bool) {
	e.r.writeEnv.Each(fn)
}

var todoPos syntax.Pos // for handlerCtx callers where we don't yet have a position

func (r *Runner) handlerCtx(ctx context.Context, kind handlerKind, pos syntax.Pos) context.Context {
	hc := HandlerContext{
		runner: r,
		kind:   kind,
		Env:    &overlayEnviron{parent: r.writeEnv},
		Dir:    r.Dir,
		Pos:    pos,
		Stdout: r.stdout,
		Stderr: r.stderr,
	}
	if r.stdin != nil { // do not leave hc.Stdin as a typed nil
		hc.Stdin = r.stdin
	}
	return context.WithValue(ctx, handlerCtxKey{}, hc)
}

func (r *Runner) out(s string) {
	io.WriteString(r.stdout, s)
}

func (r *Runner) outf(format string, a ...any) {
	fmt.Fprintf(r.stdout, format, a...)
}

func (r *Runner) errf(format string, a ...any) {
	fmt.Fprintf(r.stderr, format, a...)
}

// tickCommand charges one simple command against the counters, if any.
// It reports false once the command budget or the execution deadline is
// spent, after marking the Runner as fatally exiting.
func (r *Runner) tickCommand() bool {
	if r.counters == nil {
		return true
	}
	if err := r.counters.Command(); err != nil {
		r.exit.fatal(err)
		return false
	}
	return true
}

// tickLoop charges one loop iteration. perLoop belongs to the enclosing
// loop construct, since the per-loop ceiling resets at every new loop while
// the cumulative one never does.
func (r *Runner) tickLoop(perLoop *int64) bool {
	if r.counters == nil {
		return true
	}
	if err := r.counters.LoopIteration(perLoop); err != nil {
		r.exit.fatal(err)
		return false
	}
	return true
}

func (r *Runner) stop(ctx context.Context) bool {
	// Some traps trigger on exit, so we do want those to run.
	if !r.handlingTrap && (r.exit.returning || r.exit.exiting) {
		return true
	}
	if err := ctx.Err(); err != nil {
		r.exit.fatal(err)
		return true
	}
	if r.opts[optNoExec] {
		return true
	}
	return false
}

func (r *Runner) stmt(ctx context.Context, st *syntax.Stmt) {
	if r.stop(ctx) {
		return
	}
	r.exit = exitStatus{}
	if st.Background {
		r2 := r.subshell(true)
		st2 := *st
		st2.Background = false
		bg := bgProc{
			done: make(chan struct{}),
			exit: new(exitStatus),
		}
		r.bgProcs = append(r.bgProcs, bg)
		go func() {
			r2.Run(ctx, &st2)
			r2.exit.exiting = false // subshells don't exit the parent shell
			*bg.exit = r2.exit
			close(bg.done)
		}()
	} else {
		if r.file != nil && st.Position.IsValid() {
			r.curLine = r.file.Position(st.Position).Line
		}
		r.stmtSync(ctx, st)
		if b, ok := st.Cmd.(*syntax.BinaryCmd); !ok || (b.Op != syntax.Pipe && b.Op != syntax.PipeAll) {
			r.pipeStat = nil
		}
	}
	r.lastExit = r.exit
}

type restoreVar struct {
	name string
	vr   expand.Variable
}

// assignStmts applies a statement's assignments. With export set, the
// variables are additionally marked exported and scoped to the current
// command, and the previous values are returned for the caller to
// restore; without it the assignments are permanent, as in a naked
// "foo=bar" statement.
func (r *Runner) assignStmts(assigns []*syntax.Assign, export bool) []restoreVar {
	r.lastExpandExit = exitStatus{}
	tracingEnabled := r.opts[optXTrace]
	trace := r.tracer()
	var restores []restoreVar
	for _, as := range assigns {
		name := as.Name.Value
		baseName := name
		if n, _, ok := splitVarIndex(name); ok {
			baseName = n
		}
		prev := r.lookupVar(baseName)
		if !export {
			// Here we have a naked "foo=bar", so if we inherited a local
			// var from a parent function we want to modify the parent var
			// rather than create a new local one.
			prev.Local = false
		}

		vr := r.assignVal(prev, as, "")
		if export {
			vr.Exported = true
			restores = append(restores, restoreVar{baseName, prev})
		}
		r.setVar(name, vr)

		if !tracingEnabled {
			continue
		}
		// Bash prints the original source for arrays, but the
		// expanded value otherwise.
		if arrayExprOf(&as.Value) != nil {
			trace.expr(as)
		} else {
			val, err := syntax.Quote(vr.String(), syntax.LangBash)
			if err != nil { // should never happen
				panic(err)
			}
			trace.stringf("%s=%s", name, val)
		}
		trace.newLineFlush()
	}
	return restores
}

func (r *Runner) stmtSync(ctx context.Context, st *syntax.Stmt) {
	oldIn, oldOut, oldErr := r.stdin, r.stdout, r.stderr
	for _, rd := range st.Redirs {
		cls, err := r.redir(ctx, rd)
		if err != nil {
			r.exit.code = 1
			break
		}
		if cls != nil {
			defer cls.Close()
		}
	}
	if r.exit.ok() {
		switch {
		case st.Cmd == nil:
			// A naked assignment statement such as "foo=bar".
			r.assignStmts(st.Assigns, false)
			// If interpreting the last expansion like $(foo) failed, and
			// the assignments otherwise succeeded, surface that exit code.
			if r.exit.ok() {
				r.exit = r.lastExpandExit
			}
		case len(st.Assigns) > 0:
			// Inline command vars are exported and scoped to this call.
			restores := r.assignStmts(st.Assigns, true)
			r.cmd(ctx, st.Cmd)
			for _, restore := range restores {
				r.setVar(restore.name, restore.vr)
			}
		default:
			r.cmd(ctx, st.Cmd)
		}
	}
	if st.Negated {
		// TODO: negate the entire [exitStatus] here, wiping errors
		r.exit.oneIf(r.exit.ok())
	} else if b, ok := st.Cmd.(*syntax.BinaryCmd); ok && (b.Op == syntax.AndStmt || b.Op == syntax.OrStmt) {
	} else if !r.exit.ok() && !r.noErrExit {
		r.trapCallback(ctx, r.callbackErr, "error")
		// If the "errexit" option is set and a command failed, exit the shell. Exceptions:
		//
		//   conditions (if <cond>, while <cond>, etc)
		//   part of && or || lists; excluded via "else" above
		//   preceded by !; excluded via "else" above
		if r.opts[optErrExit] {
			r.exit.exiting = true
		}
	}
	if !r.keepRedirs {
		r.stdin, r.stdout, r.stderr = oldIn, oldOut, oldErr
	}
}

func (r *Runner) cmd(ctx context.Context, cm syntax.Command) {
	if r.stop(ctx) {
		return
	}

	tracingEnabled := r.opts[optXTrace]
	trace := r.tracer()

	switch cm := cm.(type) {
	case *syntax.Block:
		r.stmts(ctx, cm.Stmts)
	case *syntax.Subshell:
		r2 := r.subshell(false)
		r2.stmts(ctx, cm.Stmts)
		r2.exit.exiting = false // subshells don't exit the parent shell
		r.exit = r2.exit
	case *syntax.CallExpr:
		// Use a new slice, to not modify the slice in the alias map.
		args := cm.Args
		for i := 0; i < len(args); {
			if !r.opts[optExpandAliases] {
				break
			}
			als, ok := r.alias[args[i].Lit()]
			if !ok {
				break
			}
			args = slices.Replace(args, i, i+1, als.args...)
			if !als.blank {
				break
			}
			i += len(als.args)
		}
		r.lastExpandExit = exitStatus{}
		fields := r.fields(args...)
		if len(fields) == 0 {
			// The whole command expanded to nothing, e.g. "$EMPTY".
			// If interpreting the last expansion like $(foo) failed,
			// surface that exit code.
			if r.exit.ok() {
				r.exit = r.lastExpandExit
			}
			break
		}

		trace.call(fields[0], fields[1:]...)
		trace.newLineFlush()

		r.call(ctx, cm.Args[0].Pos(), fields)
	case *syntax.BinaryCmd:
		switch cm.Op {
		case syntax.AndStmt, syntax.OrStmt:
			oldNoErrExit := r.noErrExit
			r.noErrExit = true
			r.stmt(ctx, cm.X)
			r.noErrExit = oldNoErrExit
			if r.exit.ok() == (cm.Op == syntax.AndStmt) {
				r.stmt(ctx, cm.Y)
			}
		case syntax.Pipe, syntax.PipeAll:
			pr, pw, err := os.Pipe()
			if err != nil {
				r.exit.fatal(err) // not being able to create a pipe is rare but critical
				return
			}
			r2 := r.subshell(true)
			r2.stdout = pw
			if cm.Op == syntax.PipeAll {
				r2.stderr = pw
			} else {
				r2.stderr = r.stderr
			}
			r.stdin = pr
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				r2.stmt(ctx, cm.X)
				r2.exit.exiting = false // subshells don't exit the parent shell
				pw.Close()
				wg.Done()
			}()
			r.pipeStat = nil
			r.stmt(ctx, cm.Y)
			pr.Close()
			wg.Wait()
			// Pipelines nest to the right, so the first stage's code is
			// prepended to whatever codes the rest of the chain recorded.
			rest := r.pipeStat
			if b, ok := cm.Y.Cmd.(*syntax.BinaryCmd); !ok || (b.Op != syntax.Pipe && b.Op != syntax.PipeAll) {
				rest = []int{int(r.exit.code)}
			}
			r.pipeStat = append([]int{int(r2.exit.code)}, rest...)
			if r.opts[optPipeFail] && !r2.exit.ok() && r.exit.ok() {
				r.exit = r2.exit
			}
			if r2.exit.fatalExit {
				r.exit.fatal(r2.exit.err) // surface fatal errors immediately
			}
		}
	case *syntax.IfClause:
		r.ifClause(ctx, cm)
	case *syntax.WhileClause:
		r.whileClause(ctx, cm.CondStmts, cm.DoStmts, false)
	case *syntax.UntilClause:
		r.whileClause(ctx, cm.CondStmts, cm.DoStmts, true)
	case *syntax.ForClause:
		switch y := cm.Loop.(type) {
		case *syntax.WordIter:
			name := y.Name.Value
			items := r.Params // for i; do ...

			inToken := y.InPos.IsValid()
			if inToken {
				items = r.fields(y.List...) // for i in ...; do ...
			}

			if cm.Select {
				ps3 := shellDefaultPS3
				if e := r.envGet(shellReplyPS3Var); e != "" {
					ps3 = e
				}

				var iters int64
				for {
					if !r.tickLoop(&iters) {
						break
					}
					// display the menu on stderr, like bash does
					for i, word := range items {
						r.errf("%d) %v\n", i+1, word)
					}
					r.errf("%s", ps3)

					line, err := r.readLine(ctx, true)
					if err != nil {
						// EOF or a cancelled context ends the loop
						break
					}
					if len(line) == 0 {
						continue // no reply; show the menu again
					}

					reply := string(line)
					r.setVarString(shellReplyVar, reply)

					c, _ := strconv.Atoi(reply)
					if c > 0 && c <= len(items) {
						r.setVarString(name, items[c-1])
					} else {
						r.setVarString(name, "")
					}

					// execute commands until break or return is encountered
					if r.loopStmtsBroken(ctx, cm.DoStmts) {
						break
					}
				}
				break
			}

			var iters int64
			for _, field := range items {
				if !r.tickLoop(&iters) {
					break
				}
				r.setVarString(name, field)
				trace.stringf("for %s in", y.Name.Value)
				if inToken {
					for _, item := range y.List {
						trace.string(" ")
						trace.expr(&item)
					}
				} else {
					trace.string(` "$@"`)
				}
				trace.newLineFlush()
				if r.loopStmtsBroken(ctx, cm.DoStmts) {
					break
				}
			}
		case *syntax.CStyleLoop:
			if y.Init != nil {
				r.arithm(y.Init)
			}
			var iters int64
			for y.Cond == nil || r.arithm(y.Cond) != 0 {
				if !r.tickLoop(&iters) {
					break
				}
				if !r.exit.ok() || r.loopStmtsBroken(ctx, cm.DoStmts) {
					break
				}
				if y.Post != nil {
					r.arithm(y.Post)
				}
			}
		}
	case goCmdExpr:
		r.runGoCmd(ctx, cm)
	case *syntax.FuncDecl:
		r.setFunc(cm.Name.Value, cm.Body)
	case *syntax.ArithmCmd:
		r.exit.oneIf(r.arithm(cm.X) == 0)
	case *syntax.LetClause:
		var val int
		for _, expr := range cm.Exprs {
			val = r.arithm(expr)

			if !tracingEnabled {
				continue
			}

			switch expr := expr.(type) {
			case *syntax.Word:
				qs, err := syntax.Quote(r.literal(expr), syntax.LangBash)
				if err != nil {
					return
				}
				trace.stringf("let %v", qs)
			case *syntax.BinaryArithm, *syntax.UnaryArithm:
				trace.expr(cm)
			case *syntax.ParenArithm:
				// TODO
			}
		}

		trace.newLineFlush()
		r.exit.oneIf(val == 0)
	case *syntax.CaseClause:
		trace.string("case ")
		trace.expr(&cm.Word)
		trace.string(" in")
		trace.newLineFlush()
		str := r.literal(&cm.Word)
		fallThrough := false
		for _, ci := range cm.List {
			run := fallThrough
			if !run {
				for _, word := range ci.Patterns {
					pattern := r.pattern(&word)
					if match(pattern, str) {
						run = true
						break
					}
				}
			}
			if !run {
				continue
			}
			fallThrough = false
			r.stmts(ctx, ci.Stmts)
			switch ci.Op {
			case syntax.Fallthrough: // ;& runs the next arm unconditionally
				fallThrough = true
			case syntax.Resume: // ;;& keeps matching the remaining arms
			default: // ;; stops here
				return
			}
		}
	case *syntax.TestClause:
		if r.bashTest(ctx, cm.X, false) == "" && r.exit.ok() {
			// to preserve exit status code 2 for regex errors, etc
			r.exit.code = 1
		}
	case *syntax.DeclClause:
		r.declClause(ctx, cm)
	case *syntax.CoprocClause:
		// No real pipes exist in the sandbox; the coprocess body runs
		// synchronously in place, like background commands do.
		if cm.Stmt != nil {
			r.stmt(ctx, cm.Stmt)
		}
	case *syntax.EvalClause:
		if cm.Stmt != nil {
			r.stmt(ctx, cm.Stmt)
		}
	default:
		panic(fmt.Sprintf("unhandled command node: %T", cm))
	}
}

func (r *Runner) ifClause(ctx context.Context, ic *syntax.IfClause) {
	oldNoErrExit := r.noErrExit
	r.noErrExit = true
	r.stmts(ctx, ic.CondStmts)
	r.noErrExit = oldNoErrExit

	if r.exit.ok() {
		r.stmts(ctx, ic.ThenStmts)
		return
	}
	r.exit.code = 0
	for _, el := range ic.Elifs {
		r.noErrExit = true
		r.stmts(ctx, el.CondStmts)
		r.noErrExit = oldNoErrExit
		if r.exit.ok() {
			r.stmts(ctx, el.ThenStmts)
			return
		}
		r.exit.code = 0
	}
	r.stmts(ctx, ic.ElseStmts)
}

func (r *Runner) whileClause(ctx context.Context, cond, body []*syntax.Stmt, until bool) {
	var iters int64
	for !r.stop(ctx) {
		if !r.tickLoop(&iters) {
			break
		}
		oldNoErrExit := r.noErrExit
		r.noErrExit = true
		r.stmts(ctx, cond)
		r.noErrExit = oldNoErrExit

		stop := r.exit.ok() == until
		r.exit.code = 0
		if stop || r.loopStmtsBroken(ctx, body) {
			break
		}
	}
}

func (r *Runner) declClause(ctx context.Context, ds *syntax.DeclClause) {
	local, global := false, false
	var modes []string
	valType := ""
	switch ds.Variant {
	case "": // declare and typeset
		// When used in a function, "declare" acts as "local"
		// unless the "-g" option is used.
		local = r.inFunc
	case "local":
		if !r.inFunc {
			r.errf("local: can only be used in a function\n")
			r.exit.code = 1
			return
		}
		local = true
	case "export":
		modes = append(modes, "-x")
	case "readonly":
		modes = append(modes, "-r")
	case "nameref":
		valType = "-n"
	}
	for _, opt := range ds.Opts {
		switch flag := r.literal(&opt); flag {
		case "-x", "-r":
			modes = append(modes, flag)
		case "-a", "-A", "-n", "-i":
			valType = flag
		case "-g":
			global = true
		case "-f", "-F":
			r.declFuncs(ds, flag == "-F")
			return
		case "-p":
			r.declPrint(ds)
			return
		default:
			r.errf("declare: invalid option %q\n", flag)
			r.exit.code = 2
			return
		}
	}
	for _, as := range r.flattenAssigns(ds.Assigns) {
		name := as.Name.Value
		baseName := name
		if n, _, ok := splitVarIndex(name); ok {
			baseName = n
		}
		if !syntax.ValidName(baseName) {
			r.errf("declare: invalid name %q\n", name)
			r.exit.code = 1
			return
		}
		vr := r.lookupVar(baseName)
		naked := as.Value.Parts == nil && !as.Append
		if naked {
			switch valType {
			case "-A":
				vr.Kind = expand.Associative
			case "-n":
				vr.Kind = expand.NameRef
			default:
				vr.Kind = expand.KeepValue
			}
			if valType == "-i" {
				vr.Integer = true
			}
		} else {
			vr = r.assignVal(vr, as, valType)
			if valType == "-i" {
				vr.Integer = true
			}
		}
		if global {
			vr.Local = false
		} else if local {
			vr.Local = true
		}
		for _, mode := range modes {
			switch mode {
			case "-x":
				vr.Exported = true
			case "-r":
				vr.ReadOnly = true
			}
		}
		r.setVar(name, vr)
	}
}

// declFuncs implements "declare -f" and "declare -F".
func (r *Runner) declFuncs(ds *syntax.DeclClause, namesOnly bool) {
	names := make([]string, 0, len(ds.Assigns))
	for _, as := range ds.Assigns {
		if as.Name != nil {
			names = append(names, as.Name.Value)
		} else if lit := as.Value.Lit(); lit != "" {
			names = append(names, lit)
		}
	}
	if len(names) == 0 {
		for name := range r.Funcs {
			names = append(names, name)
		}
		slices.Sort(names)
	}
	printer := syntax.NewPrinter()
	for _, name := range names {
		body, ok := r.Funcs[name]
		if !ok {
			r.exit.code = 1
			continue
		}
		if namesOnly {
			r.outf("declare -f %s\n", name)
			continue
		}
		r.outf("%s () ", name)
		if err := printer.Print(r.stdout, body); err != nil {
			r.errf("declare: %v\n", err)
		}
		r.out("\n")
	}
}

// declPrint implements "declare -p".
func (r *Runner) declPrint(ds *syntax.DeclClause) {
	for _, as := range ds.Assigns {
		name := as.Name.Value
		vr := r.lookupVar(name)
		if !vr.IsSet() {
			r.errf("declare: %s: not found\n", name)
			r.exit.code = 1
			continue
		}
		qs, err := syntax.Quote(vr.String(), syntax.LangBash)
		if err != nil {
			continue
		}
		r.outf("declare -- %s=%s\n", name, qs)
	}
}

func (r *Runner) trapCallback(ctx context.Context, callback, name string) {
	if callback == "" {
		return // nothing to do
	}
	if r.handlingTrap {
		return // don't recurse, as that could lead to cycles
	}
	r.handlingTrap = true

	p := syntax.NewParser()
	// TODO: do this parsing when "trap" is called?
	file, err := p.ParseLimited(strings.NewReader(callback), name+" trap", r.counters)
	if err != nil {
		r.errf(name+"trap: %v\n", err)
		// ignore errors in the callback
		return
	}
	oldExit := r.exit
	r.stmts(ctx, file.Stmts)
	r.exit = oldExit // traps on EXIT or ERR should not modify the result

	r.handlingTrap = false
}

func (r *Runner) flattenAssigns(args []*syntax.Assign) []*syntax.Assign {
	flat := make([]*syntax.Assign, 0, len(args))
	for _, as := range args {
		if as.Name != nil {
			flat = append(flat, as)
			continue
		}
		// Convert "declare $x" into "declare value". Don't use
		// syntax.Parser here, as we only want the basic splitting by '='.
		for _, field := range r.fields(as.Value) {
			as := &syntax.Assign{}
			name, val, ok := strings.Cut(field, "=")
			as.Name = &syntax.Lit{Value: name}
			if ok {
				as.Value = syntax.Word{Parts: []syntax.WordPart{
					&syntax.Lit{Value: val},
				}}
			}
			flat = append(flat, as)
		}
	}
	return flat
}

func match(pat, name string) bool {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return false
	}
	rx := regexp.MustCompile(expr)
	return rx.MatchString(name)
}

func elapsedString(d time.Duration, posix bool) string {
	if posix {
		return fmt.Sprintf("%.2f", d.Seconds())
	}
	min := int(d.Minutes())
	sec := math.Mod(d.Seconds(), 60.0)
	return fmt.Sprintf("%dm%.3fs", min, sec)
}

func (r *Runner) stmts(ctx context.Context, stmts []*syntax.Stmt) {
	for _, stmt := range stmts {
		r.stmt(ctx, stmt)
	}
}

func (r *Runner) hdocReader(rd *syntax.Redirect) (*os.File, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	// We write to the pipe in a new goroutine,
	// as pipe writes may block once the buffer gets full.
	// We still construct and buffer the entire heredoc first,
	// as doing it concurrently would lead to different semantics and be racy.
	if rd.Op != syntax.DashHdoc {
		hdoc := r.document(&rd.Hdoc)
		go func() {
			pw.WriteString(hdoc)
			pw.Close()
		}()
		return pr, nil
	}
	var buf bytes.Buffer
	var cur []syntax.WordPart
	flushLine := func() {
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(r.document(&syntax.Word{Parts: cur}))
		cur = cur[:0]
	}
	for _, wp := range rd.Hdoc.Parts {
		lit, ok := wp.(*syntax.Lit)
		if !ok {
			cur = append(cur, wp)
			continue
		}
		for i, part := range strings.Split(lit.Value, "\n") {
			if i > 0 {
				flushLine()
				cur = cur[:0]
			}
			part = strings.TrimLeft(part, "\t")
			cur = append(cur, &syntax.Lit{Value: part})
		}
	}
	flushLine()
	go func() {
		pw.Write(buf.Bytes())
		pw.Close()
	}()
	return pr, nil
}

func (r *Runner) redir(ctx context.Context, rd *syntax.Redirect) (io.Closer, error) {
	if rd.Op == syntax.Hdoc || rd.Op == syntax.DashHdoc {
		pr, err := r.hdocReader(rd)
		if err != nil {
			return nil, err
		}
		r.stdin = pr
		return pr, nil
	}

	orig := &r.stdout
	if rd.N != nil {
		switch rd.N.Value {
		case "0":
			// Note that the input redirects below always use stdin (0)
			// because we don't support anything else right now.
		case "1":
			// The default for the output redirects below.
		case "2":
			orig = &r.stderr
		default:
			r.errf("unsupported redirect fd: %v\n", rd.N.Value)
			return nil, fmt.Errorf("unsupported redirect fd: %v", rd.N.Value)
		}
	}
	arg := r.literal(rd.Word)
	switch rd.Op {
	case syntax.WordHdoc:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		r.stdin = pr
		// We write to the pipe in a new goroutine,
		// as pipe writes may block once the buffer gets full.
		go func() {
			pw.WriteString(arg)
			pw.WriteString("\n")
			pw.Close()
		}()
		return pr, nil
	case syntax.DplOut:
		switch arg {
		case "1":
			*orig = r.stdout
		case "2":
			*orig = r.stderr
		case "-":
			*orig = io.Discard // closing the output writer
		default:
			r.errf("unsupported redirect target: %q\n", arg)
			return nil, fmt.Errorf("unsupported redirect target: %q", arg)
		}
		return nil, nil
	case syntax.RdrIn, syntax.RdrOut, syntax.AppOut, syntax.ClbOut,
		syntax.RdrInOut, syntax.RdrAll, syntax.AppAll:
		// done further below
	case syntax.DplIn:
		switch arg {
		case "-":
			r.stdin = nil // closing the input file
		default:
			r.errf("unsupported redirect target: %q\n", arg)
			return nil, fmt.Errorf("unsupported redirect target: %q", arg)
		}
		return nil, nil
	default:
		r.errf("unsupported redirect operator: %v\n", rd.Op)
		return nil, fmt.Errorf("unsupported redirect operator: %v", rd.Op)
	}
	mode := os.O_RDONLY
	switch rd.Op {
	case syntax.AppOut, syntax.AppAll:
		mode = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case syntax.RdrOut, syntax.RdrAll, syntax.ClbOut:
		// noclobber is not supported, so >| behaves exactly like >
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case syntax.RdrInOut:
		mode = os.O_RDWR | os.O_CREATE
	}
	f, err := r.open(ctx, arg, mode, 0o644, true)
	if err != nil {
		return nil, err
	}
	switch rd.Op {
	case syntax.RdrIn, syntax.RdrInOut:
		stdin, err := stdinFile(f)
		if err != nil {
			return nil, err
		}
		r.stdin = stdin
	case syntax.RdrOut, syntax.AppOut, syntax.ClbOut:
		*orig = f
	case syntax.RdrAll, syntax.AppAll:
		r.stdout = f
		r.stderr = f
	default:
		return nil, fmt.Errorf("unsupported redirect operator: %v", rd.Op)
	}
	return f, nil
}

func (r *Runner) loopStmtsBroken(ctx context.Context, stmts []*syntax.Stmt) bool {
	oldInLoop := r.inLoop
	r.inLoop = true
	defer func() { r.inLoop = oldInLoop }()
	for _, stmt := range stmts {
		r.stmt(ctx, stmt)
		if r.contnEnclosing > 0 {
			r.contnEnclosing--
			return r.contnEnclosing > 0
		}
		if r.breakEnclosing > 0 {
			r.breakEnclosing--
			return true
		}
	}
	return false
}

func (r *Runner) call(ctx context.Context, pos syntax.Pos, args []string) {
	if r.stop(ctx) {
		return
	}
	if r.callHandler != nil {
		var err error
		args, err = r.callHandler(r.handlerCtx(ctx, handlerKindCall, pos), args)
		if err != nil {
			// handler's custom fatal error
			r.exit.fatal(err)
			return
		}
	}
	if !r.tickCommand() {
		return
	}
	name := args[0]
	if body := r.Funcs[name]; body != nil {
		if r.counters != nil {
			if err := r.counters.EnterFunction(); err != nil {
				r.exit.fatal(err)
				return
			}
			defer r.counters.LeaveFunction()
		}
		// stack them to support nested func calls
		oldParams := r.Params
		r.Params = args[1:]
		oldInFunc := r.inFunc
		r.inFunc = true
		r.funcNames = append(r.funcNames, name)

		// Functions run in a nested scope.
		// Note that [Runner.exec] below does something similar.
		origEnv := r.writeEnv
		r.writeEnv = &overlayEnviron{parent: r.writeEnv, funcScope: true}

		r.stmt(ctx, body)

		r.writeEnv = origEnv

		r.Params = oldParams
		r.inFunc = oldInFunc
		r.funcNames = r.funcNames[:len(r.funcNames)-1]
		r.exit.returning = false
		return
	}
	if IsBuiltin(name) {
		r.exit = r.builtin(ctx, pos, name, args[1:])
		return
	}
	r.exec(ctx, pos, args)
}

func (r *Runner) exec(ctx context.Context, pos syntax.Pos, args []string) {
	r.exit.fromHandlerError(r.execHandler(r.handlerCtx(ctx, handlerKindExec, pos), args))
}

func (r *Runner) open(ctx context.Context, path string, flags int, mode os.FileMode, print bool) (io.ReadWriteCloser, error) {
	f, err := r.openHandler(r.handlerCtx(ctx, handlerKindOpen, todoPos), path, flags, mode)
	// TODO: support wrapped PathError returned from openHandler.
	switch err.(type) {
	case nil:
		return f, nil
	case *os.PathError:
		if print {
			r.errf("%v\n", err)
		}
	default: // handler's custom fatal error
		r.exit.fatal(err)
	}
	return nil, err
}

func (r *Runner) stat(ctx context.Context, name string) (fs.FileInfo, error) {
	path := absPath(r.Dir, name)
	return r.statHandler(ctx, path, true)
}

func (r *Runner) lstat(ctx context.Context, name string) (fs.FileInfo, error) {
	path := absPath(r.Dir, name)
	return r.statHandler(ctx, path, false)
}
