// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bashkit-sh/bashkit/limits"
)

func lit(s string) *Lit { return &Lit{Value: s} }

func word(ps ...WordPart) *Word { return &Word{Parts: ps} }

func litWord(s string) *Word { return word(lit(s)) }

func litWords(strs ...string) []*Word {
	l := make([]*Word, 0, len(strs))
	for _, s := range strs {
		l = append(l, litWord(s))
	}
	return l
}

var parseTests = []string{
	"",
	"foo",
	"foo bar baz",
	"foo; bar",
	"foo &\nbar",
	"foo | bar | baz",
	"foo && bar || baz",
	"! foo",
	"foo >a 2>&1 <b",
	"foo >>a",
	"foo <<< word",
	"foo &>all",
	"x=y",
	"x=y foo",
	"x+=y",
	"a=(1 2 3)",
	"echo $x ${x} ${x:-d} ${x:=d} ${x:+d} ${x:?d} ${#x} ${x#p} ${x##p} ${x%s} ${x%%s}",
	"echo ${x/p/r} ${x//p/r} ${x:1:2} ${x^} ${x^^} ${x,} ${x,,}",
	"echo ${!x} ${x[0]} ${x[@]}",
	"echo $(foo) `foo` $((1 + 2))",
	"echo \"a $b ${c} $(d) $((e + 1)) f\"",
	"echo 'single $not'",
	"if foo; then bar; fi",
	"if foo; then bar; elif baz; then qux; else quux; fi",
	"while foo; do bar; done",
	"until foo; do bar; done",
	"for i in a b c; do echo $i; done",
	"for i; do echo $i; done",
	"for ((i = 0; i < 3; i++)); do echo $i; done",
	"select i in a b; do echo $i; done",
	"case $x in a) foo ;; b | c) bar ;& d) baz ;;& *) qux ;; esac",
	"foo() { bar; }",
	"function foo { bar; }",
	"function foo() { bar; }",
	"{ foo; bar; }",
	"(foo; bar)",
	"[[ -e file && $x == pat* ]]",
	"[[ a < b || ! -z $x ]]",
	"[[ $x =~ ab*c ]]",
	"(( x > 2 ? y : z ))",
	"let x=1+2 y++",
	"declare -r x=1",
	"local x=1",
	"export FOO=bar",
	"echo <(foo)",
	"cat <<EOF\nbody $x\nEOF",
	"cat <<'EOF'\nliteral\nEOF",
	"cat <<-EOF\n\tindented\nEOF",
	"echo {a,b}{1,2}",
	"echo a{1..3}b",
	"coproc foo bar",
	"echo ?(a|b) *(c) +(d) @(e) !(f)",
}

func TestParseAndPrintRoundTrip(t *testing.T) {
	t.Parallel()
	for _, in := range parseTests {
		t.Run("", func(t *testing.T) {
			f, err := Parse([]byte(in), "", 0)
			if err != nil {
				t.Fatalf("parse %q: %v", in, err)
			}
			var out1 bytes.Buffer
			if err := Fprint(&out1, f); err != nil {
				t.Fatalf("print %q: %v", in, err)
			}
			f2, err := Parse(out1.Bytes(), "", 0)
			if err != nil {
				t.Fatalf("reparse of %q (%q): %v", in, out1.String(), err)
			}
			var out2 bytes.Buffer
			if err := Fprint(&out2, f2); err != nil {
				t.Fatalf("reprint %q: %v", in, err)
			}
			if out1.String() != out2.String() {
				t.Fatalf("print not stable for %q:\nfirst:  %q\nsecond: %q",
					in, out1.String(), out2.String())
			}
		})
	}
}

var parseErrorTests = []string{
	"'unterminated",
	`"unterminated`,
	"$(unterminated",
	"${unterminated",
	"$((1 + 2",
	"if foo; then bar",
	"while foo; do bar",
	"case x in a) foo",
	"foo(",
	"foo |",
	"foo &&",
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	for _, in := range parseErrorTests {
		if _, err := Parse([]byte(in), "", 0); err == nil {
			t.Errorf("parse %q: expected an error", in)
		}
	}
}

func TestParseErrorPosition(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("foo\n'bar"), "", 0)
	perr := new(ParseError)
	if !errors.As(err, &perr) {
		t.Fatalf("expected a *ParseError, got %v", err)
	}
	if perr.Line != 2 {
		t.Fatalf("wanted an error on line 2, got line %d", perr.Line)
	}
}

func TestParseLimitedInputSize(t *testing.T) {
	t.Parallel()
	lim := limits.Conservative()
	lim.MaxInputBytes = 16

	src := []byte("echo just fits..")
	if _, err := ParseLimited(src, "", 0, limits.New(lim)); err != nil {
		t.Fatalf("input at the ceiling should parse: %v", err)
	}

	src = append(src, '.')
	_, err := ParseLimited(src, "", 0, limits.New(lim))
	lerr := new(limits.LimitError)
	if !errors.As(err, &lerr) || lerr.Kind != limits.KindInputTooLarge {
		t.Fatalf("wanted KindInputTooLarge, got %v", err)
	}
}

func TestParseLimitedDepth(t *testing.T) {
	t.Parallel()
	lim := limits.Conservative()
	lim.MaxASTDepth = 10

	nested := strings.Repeat("$(", 50) + "echo x" + strings.Repeat(")", 50)
	_, err := ParseLimited([]byte("echo "+nested), "", 0, limits.New(lim))
	lerr := new(limits.LimitError)
	if !errors.As(err, &lerr) {
		t.Fatalf("wanted a limit error for deep nesting, got %v", err)
	}
}

func TestParseLimitedFuel(t *testing.T) {
	t.Parallel()
	lim := limits.Conservative()
	lim.ParserFuelOps = 10

	_, err := ParseLimited([]byte(strings.Repeat("echo a b c; ", 50)), "", 0, limits.New(lim))
	lerr := new(limits.LimitError)
	if !errors.As(err, &lerr) || lerr.Kind != limits.KindParserFuel {
		t.Fatalf("wanted KindParserFuel, got %v", err)
	}
}

func TestValidName(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"foo":   true,
		"_foo":  true,
		"f1":    true,
		"1f":    false,
		"":      false,
		"a-b":   false,
		"a.b":   false,
		"FOO_9": true,
	} {
		if got := ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsKeyword(t *testing.T) {
	t.Parallel()
	for _, kw := range []string{"if", "fi", "done", "esac", "[[", "!"} {
		if !IsKeyword(kw) {
			t.Errorf("IsKeyword(%q) = false", kw)
		}
	}
	for _, w := range []string{"echo", "then2", ""} {
		if IsKeyword(w) {
			t.Errorf("IsKeyword(%q) = true", w)
		}
	}
}
