// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/limits"
	"github.com/bashkit-sh/bashkit/syntax"
)

func parse(tb testing.TB, parser *syntax.Parser, src string) *syntax.File {
	tb.Helper()
	if parser == nil {
		parser = syntax.NewParser()
	}
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		tb.Fatal(err)
	}
	return file
}

// concBuffer wraps a [bytes.Buffer] in a mutex so that concurrent writes
// to it don't upset the race detector.
type concBuffer struct {
	buf bytes.Buffer
	sync.Mutex
}

func (c *concBuffer) Write(p []byte) (int, error) {
	c.Lock()
	defer c.Unlock()
	return c.buf.Write(p)
}

func (c *concBuffer) WriteString(s string) (int, error) {
	c.Lock()
	defer c.Unlock()
	return c.buf.WriteString(s)
}

func (c *concBuffer) String() string {
	c.Lock()
	defer c.Unlock()
	return c.buf.String()
}

type runTest struct {
	in, want string
}

// runTests exercises the interpreter with self-contained scripts: no real
// filesystem access, no external programs. Expected output is the
// combined stdout and stderr, with any non-nil error from Run appended.
var runTests = []runTest{
	// basic commands and status codes
	{"", ""},
	{"true", ""},
	{"false", "exit status 1"},
	{"exit 42", "exit status 42"},
	{"echo foo", "foo\n"},
	{"echo -n foo", "foo"},
	{"echo foo bar", "foo bar\n"},
	{"echo 'single $x'", "single $x\n"},
	{"missing-program", "missing-program: command not found\nexit status 127"},
	{"true; echo ok", "ok\n"},
	{"false; echo $?", "1\n"},
	{"true; echo $?", "0\n"},
	{"! false; echo $?", "0\n"},
	{"! true", "exit status 1"},

	// lists and operators
	{"true && echo yes", "yes\n"},
	{"false && echo yes", "exit status 1"},
	{"false || echo no", "no\n"},
	{"true || echo no", ""},
	{"false && echo a || echo b", "b\n"},

	// variables and quoting
	{"x=foo; echo $x", "foo\n"},
	{"x=foo; echo \"$x\"", "foo\n"},
	{"x=foo; echo ${x}bar", "foobar\n"},
	{"x=foo; x=bar; echo $x", "bar\n"},
	{"x=foo; unset x; echo \"[$x]\"", "[]\n"},
	{"x=foo bar=baz; echo $x $bar", "foo baz\n"},
	{"x=a; x+=b; echo $x", "ab\n"},
	{"echo ${undefined-default}", "default\n"},
	{"echo ${undefined:-default}", "default\n"},
	{"x=; echo ${x-default}", "\n"},
	{"x=; echo ${x:-default}", "default\n"},
	{"x=set; echo ${x:+alt}", "alt\n"},
	{"echo ${undefined:+alt}", "\n"},
	{"echo ${x:=assigned}; echo $x", "assigned\nassigned\n"},
	{"x=hello; echo ${#x}", "5\n"},
	{"x=hello; echo ${x#he}", "llo\n"},
	{"x=ababab; echo ${x#*b}", "abab\n"},
	{"x=ababab; echo ${x##*b}", "\n"},
	{"x=ababab; echo ${x%b*}", "ababa\n"},
	{"x=ababab; echo ${x%%b*}", "a\n"},
	{"x=hello; echo ${x/l/L}", "heLlo\n"},
	{"x=hello; echo ${x//l/L}", "heLLo\n"},
	{"x=hello; echo ${x:1}", "ello\n"},
	{"x=hello; echo ${x:1:3}", "ell\n"},
	{"x=hello; echo ${x^}", "Hello\n"},
	{"x=hello; echo ${x^^}", "HELLO\n"},
	{"x=HELLO; echo ${x,}", "hELLO\n"},
	{"x=HELLO; echo ${x,,}", "hello\n"},
	{"x=inner; y=x; echo ${!y}", "inner\n"},

	// arithmetic
	{"echo $((1 + 2))", "3\n"},
	{"x=5; y=3; echo $((x + y))", "8\n"},
	{"echo $((2 * 3 + 1))", "7\n"},
	{"echo $((10 / 3))", "3\n"},
	{"echo $((10 % 3))", "1\n"},
	{"echo $((2 ** 10))", "1024\n"},
	{"echo $((1 < 2)) $((2 < 1))", "1 0\n"},
	{"echo $((1 == 1 ? 10 : 20))", "10\n"},
	{"x=1; echo $((x++)) $x", "1 2\n"},
	{"x=1; echo $((++x)) $x", "2 2\n"},
	{"x=10; : $((x += 5)); echo $x", "15\n"},
	{"echo $((0x10)) $((010))", "16 8\n"},
	{"((1 > 0)) && echo positive", "positive\n"},
	{"((0)) || echo zero", "zero\n"},
	{"let x=1+2; echo $x", "3\n"},

	// if clauses
	{"if true; then echo a; fi", "a\n"},
	{"if false; then echo a; fi", ""},
	{"if false; then echo a; else echo b; fi", "b\n"},
	{"if false; then echo a; elif true; then echo b; else echo c; fi", "b\n"},
	{"if false; then echo a; elif false; then echo b; else echo c; fi", "c\n"},

	// loops
	{"for i in a b c; do echo $i; done", "a\nb\nc\n"},
	{"for i in 1 2 3; do echo -n $i; done; echo", "123\n"},
	{"i=0; while [ $i -lt 3 ]; do echo $i; i=$((i+1)); done", "0\n1\n2\n"},
	{"i=0; until [ $i -ge 3 ]; do echo $i; i=$((i+1)); done", "0\n1\n2\n"},
	{"for ((i = 0; i < 3; i++)); do echo $i; done", "0\n1\n2\n"},
	{"for i in a b c; do if [ $i = b ]; then break; fi; echo $i; done", "a\n"},
	{"for i in a b c; do if [ $i = b ]; then continue; fi; echo $i; done", "a\nc\n"},
	{"for i in 1 2; do for j in 1 2; do echo $i$j; break 2; done; done", "11\n"},

	// case clauses
	{"case foo in foo) echo match ;; esac", "match\n"},
	{"case foo in bar) echo one ;; foo) echo two ;; esac", "two\n"},
	{"case foo in f*) echo glob ;; esac", "glob\n"},
	{"case foo in bar | foo) echo alt ;; esac", "alt\n"},
	{"case foo in baz) echo a ;; *) echo b ;; esac", "b\n"},
	{"case a in a) echo one ;& b) echo two ;; c) echo three ;; esac", "one\ntwo\n"},
	{"case a in a) echo one ;;& [a-z]) echo two ;; esac", "one\ntwo\n"},

	// functions
	{"f() { echo hi; }; f", "hi\n"},
	{"function f { echo hi; }; f", "hi\n"},
	{"f() { echo $1 $2; }; f a b", "a b\n"},
	{"f() { echo $#; }; f a b c", "3\n"},
	{"f() { return 3; }; f; echo $?", "3\n"},
	{"f() { local x=inner; echo $x; }; x=outer; f; echo $x", "inner\nouter\n"},
	{"x=global; f() { x=changed; }; f; echo $x", "changed\n"},
	{"f() { echo $FUNCNAME; }; f", "f\n"},
	{"f() { g; }; g() { echo nested; }; f", "nested\n"},

	// positional parameters
	{"set -- a b c; echo $1 $3 $#", "a c 3\n"},
	{"set -- a b c; shift; echo $1", "b\n"},
	{"set -- a b c; shift 2; echo $1", "c\n"},
	{"set -- a b; echo \"$@\" | { read x; echo $x; }", "a b\n"},

	// arrays
	{"arr=(a b c); echo ${arr[0]} ${arr[2]}", "a c\n"},
	{"arr=(a b c); echo ${arr[@]}", "a b c\n"},
	{"arr=(a b c); for i in \"${arr[@]}\"; do echo $i; done", "a\nb\nc\n"},
	{"arr=(a b c); echo ${#arr[@]}", "3\n"},
	{"arr=(a b c); echo ${arr[-1]}", "c\n"},
	{"arr=(a b); arr+=(c d); echo ${arr[3]}", "d\n"},
	{"arr=(a b c); echo ${!arr[@]}", "0 1 2\n"},
	{"a[2]=x; echo \"[${a[0]}][${a[2]}]\"", "[][x]\n"},
	{"declare -A m; m[foo]=1; m[bar]=2; echo ${m[foo]} ${m[bar]}", "1 2\n"},

	// declare and attributes
	{"declare x=5; echo $x", "5\n"},
	{"declare -i n; n=2+3; echo $n", "5\n"},
	{"readonly r=1; r=2; echo after", "r: readonly variable\nafter\n"},
	{"export FOO=bar; echo $FOO", "bar\n"},
	{"declare -n ref=target; target=hello; echo $ref", "hello\n"},
	{"declare -n ref=target; ref=via; echo $target", "via\n"},

	// test commands
	{"[ foo = foo ] && echo eq", "eq\n"},
	{"[ foo = bar ] || echo ne", "ne\n"},
	{"[ 3 -lt 5 ] && echo lt", "lt\n"},
	{"[ 5 -ge 5 ] && echo ge", "ge\n"},
	{"[ -z \"\" ] && echo empty", "empty\n"},
	{"[ -n x ] && echo nonempty", "nonempty\n"},
	{"[ a = a -a b = b ] && echo both", "both\n"},
	{"[ a = b -o b = b ] && echo either", "either\n"},
	{"[ ! a = b ] && echo not", "not\n"},
	{"test 1 -eq 1 && echo ok", "ok\n"},
	{"[[ abc == a* ]] && echo glob", "glob\n"},
	{"[[ abc == abd ]] || echo noglob", "noglob\n"},
	{"[[ abc =~ ^a ]] && echo ${BASH_REMATCH[0]}", "a\n"},
	{"[[ -n abc && abc == abc ]] && echo and", "and\n"},
	{"[[ -z abc || abc == abc ]] && echo or", "or\n"},
	{"x=5; [[ $x -gt 3 ]] && echo gt", "gt\n"},

	// pipelines
	{"echo foo | { read x; echo got $x; }", "got foo\n"},
	{"echo a b | { read x y; echo $y $x; }", "b a\n"},
	{"false | true; echo $?", "0\n"},
	{"true | false; echo $?", "1\n"},
	{"set -o pipefail; false | true; echo $?", "1\n"},
	{"false | true; echo ${PIPESTATUS[0]} ${PIPESTATUS[1]}", "1 0\n"},
	{"true | false | true; echo ${PIPESTATUS[@]}", "0 1 0\n"},

	// command substitution
	{"echo $(echo nested)", "nested\n"},
	{"x=$(echo trimmed); echo \"[$x]\"", "[trimmed]\n"},
	{"echo \"a $(echo b) c\"", "a b c\n"},
	{"echo `echo backquoted`", "backquoted\n"},
	{"x=$(false); echo $?", "1\n"},

	// redirections and heredocs
	{"{ read line; echo got $line; } <<< input", "got input\n"},
	{"while read line; do echo \"- $line\"; done <<EOF\na\nb\nEOF", "- a\n- b\n"},
	{"{ read line; echo \"[$line]\"; } <<'EOF'\nliteral $x\nEOF", "[literal $x]\n"},
	{"x=v; { read line; echo \"[$line]\"; } <<EOF\nexpanded $x\nEOF", "[expanded v]\n"},
	{"echo from-stderr >&2", "from-stderr\n"},

	// word splitting and IFS
	{"x='a b  c'; set -- $x; echo $#", "3\n"},
	{"x='a b c'; set -- \"$x\"; echo $#", "1\n"},
	{"IFS=,; x=a,b,c; set -- $x; echo $# $2", "3 b\n"},

	// brace expansion
	{"echo {a,b}{1,2}", "a1 a2 b1 b2\n"},
	{"echo a{1..3}", "a1 a2 a3\n"},

	// quoting oddities
	{"echo \"\"", "\n"},
	{"echo ''", "\n"},
	{"echo $'tab\\there'", "tab\there\n"},
	{"echo \"nested 'quotes'\"", "nested 'quotes'\n"},
	{"echo 'double \"quotes\"'", "double \"quotes\"\n"},

	// errexit
	{"set -e; false; echo unreachable", "exit status 1"},
	{"set -e; if false; then echo a; fi; echo ok", "ok\n"},
	{"set -e; false || true; echo ok", "ok\n"},
	{"set -e; ! false; echo ok", "ok\n"},

	// traps
	{"trap 'echo bye' EXIT; echo hi", "hi\nbye\n"},
	{"trap 'echo err' ERR; false; echo after", "err\nafter\n"},

	// eval and printf
	{"eval 'echo evaled'", "evaled\n"},
	{"cmd='echo indirect'; eval $cmd", "indirect\n"},
	{"printf '%s-%s\\n' a b", "a-b\n"},
	{"printf '%d\\n' 42", "42\n"},
	{"printf '%05d\\n' 42", "00042\n"},
	{"printf '%s\\n' a b", "a\nb\n"},
	{"printf 'no newline'", "no newline"},

	// getopts
	{"set -- -a -b arg; while getopts ab opt; do echo $opt; done", "a\nb\n"},

	// subshells and grouping
	{"(x=sub; echo $x); echo \"[$x]\"", "sub\n[]\n"},
	{"{ echo a; echo b; }", "a\nb\n"},
	{"(exit 3); echo $?", "3\n"},

	// background is synchronous-ish but must complete by wait
	{"echo bg & wait", "bg\n"},

	// special variables
	{"echo $0", "bash\n"},
	{"[ \"$$\" -gt 0 ] && echo pid", "pid\n"},
	{"echo ${BASH_VERSION%%.*}", "5\n"},
}

func runCase(t *testing.T, tc runTest) {
	t.Helper()
	file := parse(t, nil, tc.in)
	var cb concBuffer
	r, err := New(
		Env(expand.ListEnviron("INTERP_GLOBAL=value")),
		StdIO(nil, &cb, &cb),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := r.Run(ctx, file); err != nil {
		cb.WriteString(err.Error())
	}
	if got := cb.String(); got != tc.want {
		t.Fatalf("wrong output for %q:\nwant: %q\ngot:  %q", tc.in, tc.want, got)
	}
}

func TestRunnerRun(t *testing.T) {
	t.Parallel()
	for _, tc := range runTests {
		t.Run("", func(t *testing.T) {
			runCase(t, tc)
		})
	}
}

func TestRunnerIncremental(t *testing.T) {
	t.Parallel()
	var cb concBuffer
	r, err := New(Env(expand.ListEnviron()), StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	// Definitions persist across Run calls on the same Runner.
	r.Run(ctx, parse(t, nil, "x=persists; f() { echo from-func; }"))
	r.Run(ctx, parse(t, nil, "echo $x; f"))
	if got := cb.String(); got != "persists\nfrom-func\n" {
		t.Fatalf("got %q", got)
	}
}

func TestRunnerCounters(t *testing.T) {
	t.Parallel()
	newRunner := func(lim limits.ExecutionLimits, out *concBuffer) (*Runner, *limits.Counters) {
		counters := limits.New(lim)
		r, err := New(
			Env(expand.ListEnviron()),
			StdIO(nil, out, out),
			Counters(counters),
		)
		if err != nil {
			t.Fatal(err)
		}
		return r, counters
	}

	t.Run("Commands", func(t *testing.T) {
		lim := limits.Conservative()
		lim.MaxCommands = 3
		var cb concBuffer
		r, _ := newRunner(lim, &cb)
		err := r.Run(context.Background(), parse(t, nil, "echo 1; echo 2; echo 3; echo 4"))
		lerr := new(limits.LimitError)
		if !errors.As(err, &lerr) || lerr.Kind != limits.KindCommands {
			t.Fatalf("wanted KindCommands, got %v", err)
		}
		if got := cb.String(); got != "1\n2\n3\n" {
			t.Fatalf("output up to the breach should survive; got %q", got)
		}
	})

	t.Run("LoopIterations", func(t *testing.T) {
		lim := limits.Conservative()
		lim.MaxLoopIterations = 10
		var cb concBuffer
		r, _ := newRunner(lim, &cb)
		err := r.Run(context.Background(), parse(t, nil, "while true; do :; done"))
		lerr := new(limits.LimitError)
		if !errors.As(err, &lerr) || lerr.Kind != limits.KindLoopIterations {
			t.Fatalf("wanted KindLoopIterations, got %v", err)
		}
	})

	t.Run("TotalLoopIterations", func(t *testing.T) {
		lim := limits.Conservative()
		lim.MaxLoopIterations = 1000
		lim.MaxTotalLoopIterations = 50
		var cb concBuffer
		r, _ := newRunner(lim, &cb)
		src := "for i in 1 2 3 4 5 6 7 8; do for j in 1 2 3 4 5 6 7 8; do :; done; done"
		err := r.Run(context.Background(), parse(t, nil, src))
		lerr := new(limits.LimitError)
		if !errors.As(err, &lerr) || lerr.Kind != limits.KindTotalLoopIterations {
			t.Fatalf("wanted KindTotalLoopIterations, got %v", err)
		}
	})

	t.Run("FunctionDepth", func(t *testing.T) {
		lim := limits.Conservative()
		lim.MaxFunctionDepth = 5
		var cb concBuffer
		r, _ := newRunner(lim, &cb)
		err := r.Run(context.Background(), parse(t, nil, "f() { f; }; f"))
		lerr := new(limits.LimitError)
		if !errors.As(err, &lerr) || lerr.Kind != limits.KindFunctionDepth {
			t.Fatalf("wanted KindFunctionDepth, got %v", err)
		}
	})

	t.Run("SharedAcrossEval", func(t *testing.T) {
		// eval must charge the same budget, not a fresh one.
		lim := limits.Conservative()
		lim.MaxCommands = 5
		var cb concBuffer
		r, counters := newRunner(lim, &cb)
		err := r.Run(context.Background(), parse(t, nil, "eval 'echo a; echo b; echo c; echo d; echo e; echo f'"))
		lerr := new(limits.LimitError)
		if !errors.As(err, &lerr) {
			t.Fatalf("wanted a limit error, got %v", err)
		}
		if counters.Commands <= 5 {
			t.Fatalf("eval did not share the command budget: %d", counters.Commands)
		}
	})
}

func TestRunnerResetClearsVars(t *testing.T) {
	t.Parallel()
	var cb concBuffer
	r, err := New(Env(expand.ListEnviron()), StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	r.Run(ctx, parse(t, nil, "x=1"))
	r.Reset()
	r.Run(ctx, parse(t, nil, "echo \"[$x]\""))
	if got := cb.String(); got != "[]\n" {
		t.Fatalf("Reset did not clear variables: %q", got)
	}
}

func TestRunnerNounset(t *testing.T) {
	t.Parallel()
	var cb concBuffer
	r, err := New(Env(expand.ListEnviron()), StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	err = r.Run(context.Background(), parse(t, nil, "set -u; echo $does_not_exist"))
	if err == nil {
		t.Fatal("nounset read of an unset variable should fail the script")
	}
	if !strings.Contains(cb.String(), "unbound variable") {
		t.Fatalf("missing diagnostic, got %q", cb.String())
	}
}

func TestRunnerXtrace(t *testing.T) {
	t.Parallel()
	var out, errBuf concBuffer
	r, err := New(Env(expand.ListEnviron()), StdIO(nil, &out, &errBuf))
	if err != nil {
		t.Fatal(err)
	}
	r.Run(context.Background(), parse(t, nil, "set -x; echo traced"))
	if got := out.String(); got != "traced\n" {
		t.Fatalf("stdout got %q", got)
	}
	if got := errBuf.String(); !strings.Contains(got, "+ echo traced") {
		t.Fatalf("xtrace output missing from stderr: %q", got)
	}
}
