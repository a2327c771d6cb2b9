package bashkit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bashkit-sh/bashkit/builtin"
	"github.com/bashkit-sh/bashkit/limits"
)

func TestExecuteBasic(t *testing.T) {
	tests := []struct {
		name   string
		script string
		env    map[string]string
		want   Result
	}{
		{
			name:   "echo",
			script: `echo hello world`,
			want:   Result{Stdout: "hello world\n"},
		},
		{
			name:   "exit code",
			script: `exit 3`,
			want:   Result{ExitCode: 3},
		},
		{
			name:   "home is the sandbox identity, not the host's",
			script: `echo "home=$HOME user=$USER"`,
			want:   Result{Stdout: "home=/home/sandbox user=sandbox\n"},
		},
		{
			name:   "configured env is visible",
			script: `echo "$GREETING"`,
			env:    map[string]string{"GREETING": "hi"},
			want:   Result{Stdout: "hi\n"},
		},
		{
			name:   "configured env overrides identity defaults",
			script: `echo "$USER"`,
			env:    map[string]string{"USER": "alice"},
			want:   Result{Stdout: "alice\n"},
		},
		{
			name:   "unknown command reports 127",
			script: `totally-not-a-real-command`,
			want:   Result{ExitCode: 127, Stderr: "totally-not-a-real-command: command not found\n"},
		},
		{
			name:   "arithmetic",
			script: `x=5; y=3; echo $((x + y))`,
			want:   Result{Stdout: "8\n"},
		},
		{
			name:   "array loop",
			script: `arr=(a b c); for i in "${arr[@]}"; do echo $i; done`,
			want:   Result{Stdout: "a\nb\nc\n"},
		},
		{
			name:   "errexit stops the script",
			script: `set -e; false; echo unreachable`,
			want:   Result{ExitCode: 1},
		},
		{
			name:   "function locals",
			script: `f() { local x=inner; echo $x; }; x=outer; f; echo $x`,
			want:   Result{Stdout: "inner\nouter\n"},
		},
		{
			name:   "vfs write and read back",
			script: `echo data > /tmp/f; cat /tmp/f`,
			want:   Result{Stdout: "data\n"},
		},
		{
			name:   "jq over a pipe",
			script: `echo '{"n":42}' | jq '.n'`,
			want:   Result{Stdout: "42\n"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewBuilder(WithEnv(tc.env)).Build()
			if err != nil {
				t.Fatal(err)
			}
			got := engine.Execute(context.Background(), tc.script)
			got.Err = nil // compared separately where it matters
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Execute(%q) mismatch (-want +got):\n%s", tc.script, diff)
			}
		})
	}
}

func TestExecuteCommandLimit(t *testing.T) {
	lim := limits.Conservative()
	lim.MaxCommands = 5

	engine, err := NewBuilder(WithLimits(lim)).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := engine.Execute(context.Background(), "echo 1; echo 2; echo 3; echo 4; echo 5; echo 6")
	lerr := new(limits.LimitError)
	if !errors.As(res.Err, &lerr) || lerr.Kind != limits.KindCommands {
		t.Fatalf("wanted KindCommands, got %v", res.Err)
	}
	if res.ExitCode == 0 {
		t.Fatal("limit breach must report a nonzero exit code")
	}
	if want := "1\n2\n3\n4\n5\n"; res.Stdout != want {
		t.Fatalf("stdout up to the breach should survive; got %q", res.Stdout)
	}
}

func TestExecuteLoopIterationLimit(t *testing.T) {
	lim := limits.Conservative()
	lim.MaxLoopIterations = 10
	lim.ExecutionTimeout = 2 * time.Second

	engine, err := NewBuilder(WithLimits(lim)).Build()
	if err != nil {
		t.Fatal(err)
	}

	res := engine.Execute(context.Background(), `
i=0
while true; do
  i=$((i + 1))
done
`)
	if res.Err == nil {
		t.Fatalf("expected a limit error, got none (exit code %d)", res.ExitCode)
	}
}

func TestExecuteOutputLimit(t *testing.T) {
	lim := limits.Conservative()
	lim.MaxOutputBytes = 16

	engine, err := NewBuilder(WithLimits(lim)).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := engine.Execute(context.Background(), `for i in 1 2 3 4 5 6 7 8 9; do echo $i$i$i; done`)
	lerr := new(limits.LimitError)
	if !errors.As(res.Err, &lerr) || lerr.Kind != limits.KindOutputBytes {
		t.Fatalf("wanted KindOutputBytes, got %v", res.Err)
	}
	if len(res.Stdout) > 16 {
		t.Fatalf("stdout exceeded the ceiling: %d bytes", len(res.Stdout))
	}
}

func TestExecuteInputTooLarge(t *testing.T) {
	lim := limits.Conservative()
	lim.MaxInputBytes = 10

	engine, err := NewBuilder(WithLimits(lim)).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := engine.Execute(context.Background(), "echo this is longer than ten bytes")
	lerr := new(limits.LimitError)
	if !errors.As(res.Err, &lerr) || lerr.Kind != limits.KindInputTooLarge {
		t.Fatalf("wanted KindInputTooLarge, got %v", res.Err)
	}
}

func TestExecutePersistentState(t *testing.T) {
	engine, err := NewBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	// The VFS persists across Execute calls on the same engine.
	engine.Execute(ctx, "echo persisted > /tmp/state")
	res := engine.Execute(ctx, "cat /tmp/state")
	if res.Stdout != "persisted\n" {
		t.Fatalf("VFS state did not persist: %q (stderr %q)", res.Stdout, res.Stderr)
	}
}

func TestExecutePersistentShellState(t *testing.T) {
	engine, err := NewBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	// Shell variables and function definitions persist across Execute
	// calls on the same engine, like the VFS does.
	engine.Execute(ctx, "x=keep; f() { echo from-f $x; }")
	res := engine.Execute(ctx, "echo $x; f")
	if want := "keep\nfrom-f keep\n"; res.Stdout != want {
		t.Fatalf("shell state did not persist: %q (stderr %q)", res.Stdout, res.Stderr)
	}

	// Attributes persist too: a readonly variable stays readonly.
	engine.Execute(ctx, "readonly ro=1")
	res = engine.Execute(ctx, "ro=2")
	if !strings.Contains(res.Stderr, "readonly variable") {
		t.Fatalf("readonly attribute did not persist: stderr %q", res.Stderr)
	}

	// Unsetting persists as well.
	engine.Execute(ctx, "unset x")
	res = engine.Execute(ctx, `echo "[$x]"`)
	if res.Stdout != "[]\n" {
		t.Fatalf("unset did not persist: %q", res.Stdout)
	}

	// Positional parameters do not leak into the next call.
	engine.Execute(ctx, "set -- a b c")
	res = engine.Execute(ctx, "echo $#")
	if res.Stdout != "0\n" {
		t.Fatalf("positional parameters leaked: %q", res.Stdout)
	}
}

func TestExecuteStream(t *testing.T) {
	engine, err := NewBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	var deltas []string
	res := engine.ExecuteStream(context.Background(), "echo one; echo two; echo three",
		func(stdout, stderr string) {
			if stdout != "" {
				deltas = append(deltas, stdout)
			}
		})
	if res.Stdout != "one\ntwo\nthree\n" {
		t.Fatalf("buffered result incomplete: %q", res.Stdout)
	}
	joined := strings.Join(deltas, "")
	if joined != res.Stdout {
		t.Fatalf("streamed deltas %q do not add up to the buffered output %q", joined, res.Stdout)
	}
	if len(deltas) < 2 {
		t.Fatalf("expected at least two deltas, got %d: %q", len(deltas), deltas)
	}
}

func TestWithBuiltin(t *testing.T) {
	engine, err := NewBuilder(WithBuiltin("shout", func(c *builtin.Context) error {
		for _, arg := range c.Args[1:] {
			if _, err := c.Stdout.Write([]byte(strings.ToUpper(arg) + "\n")); err != nil {
				return err
			}
		}
		return nil
	})).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := engine.Execute(context.Background(), "shout hey there")
	if res.Stdout != "HEY\nTHERE\n" {
		t.Fatalf("custom builtin output: %q (stderr %q)", res.Stdout, res.Stderr)
	}

	// Custom builtins shadow catalog entries of the same name.
	engine2, err := NewBuilder(WithBuiltin("grep", func(c *builtin.Context) error {
		_, err := c.Stdout.Write([]byte("shadowed\n"))
		return err
	})).Build()
	if err != nil {
		t.Fatal(err)
	}
	res = engine2.Execute(context.Background(), "grep anything")
	if res.Stdout != "shadowed\n" {
		t.Fatalf("custom builtin did not shadow the catalog: %q", res.Stdout)
	}
}

func TestBuiltinCatalogGrep(t *testing.T) {
	engine, err := NewBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	res := engine.Execute(context.Background(), `
printf 'apple\nbanana\ncherry\n' | grep an
`)
	want := "banana\n"
	if res.Stdout != want {
		t.Errorf("grep builtin: got stdout %q, want %q (stderr: %q)", res.Stdout, want, res.Stderr)
	}
}

func TestExecuteDeterminism(t *testing.T) {
	const script = `
for i in 1 2 3; do echo "line $i"; done
x=abc; echo ${x^^} ${#x}
echo $(echo nested) | { read v; echo "got $v"; }
`
	run := func() Result {
		engine, err := NewBuilder().Build()
		if err != nil {
			t.Fatal(err)
		}
		return engine.Execute(context.Background(), script)
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("two runs on fresh engines differ (-first +second):\n%s", diff)
	}
}
