// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/syntax"
)

// bashTest evaluates a test expression, returning "" for falsity and a
// non-empty string (the last expanded word) for truth, mirroring how the
// arithmetic-style callers consume it. classic is true for test/[, which
// compare the equality operators literally instead of as patterns.
func (r *Runner) bashTest(ctx context.Context, expr syntax.TestExpr, classic bool) string {
	switch x := expr.(type) {
	case *syntax.Word:
		return r.literal(x)
	case *syntax.ParenTest:
		return r.bashTest(ctx, x.X, classic)
	case *syntax.BinaryTest:
		switch x.Op {
		case syntax.AndTest:
			if r.bashTest(ctx, x.X, classic) != "" {
				return r.bashTest(ctx, x.Y, classic)
			}
			return ""
		case syntax.OrTest:
			if s := r.bashTest(ctx, x.X, classic); s != "" {
				return s
			}
			return r.bashTest(ctx, x.Y, classic)
		case syntax.TsReMatch:
			str := r.bashTest(ctx, x.X, classic)
			pat := r.bashTest(ctx, x.Y, classic)
			rx, err := regexp.Compile(pat)
			if err != nil {
				r.exit.code = 2
				return ""
			}
			m := rx.FindStringSubmatch(str)
			if m == nil {
				r.setVar("BASH_REMATCH", expand.Variable{Set: true, Kind: expand.Indexed})
				return ""
			}
			r.setVar("BASH_REMATCH", expand.Variable{Set: true, Kind: expand.Indexed, List: m})
			return "1"
		case syntax.TsMatch, syntax.TsNoMatch:
			str := r.bashTest(ctx, x.X, classic)
			if classic {
				lit := r.bashTest(ctx, x.Y, classic)
				if (str == lit) == (x.Op == syntax.TsMatch) {
					return "1"
				}
				return ""
			}
			yw, ok := x.Y.(*syntax.Word)
			if !ok {
				return ""
			}
			pat := r.pattern(yw)
			if match(pat, str) == (x.Op == syntax.TsMatch) {
				return "1"
			}
			return ""
		}
		if r.binTest(ctx, x.Op, r.bashTest(ctx, x.X, classic), r.bashTest(ctx, x.Y, classic)) {
			return "1"
		}
		return ""
	case *syntax.UnaryTest:
		if x.Op == syntax.TsNot {
			if r.bashTest(ctx, x.X, classic) == "" {
				return "1"
			}
			return ""
		}
		if r.unTest(ctx, x.Op, r.bashTest(ctx, x.X, classic)) {
			return "1"
		}
		return ""
	}
	return ""
}

func (r *Runner) binTest(ctx context.Context, op syntax.BinTestOperator, x, y string) bool {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	switch op {
	case syntax.TsAssgn:
		return x == y
	case syntax.TsNewer, syntax.TsOlder:
		i1, err1 := r.stat(ctx, x)
		i2, err2 := r.stat(ctx, y)
		if err1 != nil || err2 != nil {
			return false
		}
		newer := i1.ModTime().After(i2.ModTime())
		return newer == (op == syntax.TsNewer)
	case syntax.TsDevIno:
		i1, err1 := r.stat(ctx, x)
		i2, err2 := r.stat(ctx, y)
		if err1 != nil || err2 != nil {
			return false
		}
		// The virtual filesystem has no device or inode numbers; two
		// paths count as the same file when they resolve equally, or when
		// their names, sizes and modification times all match.
		return r.absPath(x) == r.absPath(y) || i1.Name() == i2.Name() && i1.Size() == i2.Size() && i1.ModTime() == i2.ModTime()
	case syntax.TsEql:
		return atoi(x) == atoi(y)
	case syntax.TsNeq:
		return atoi(x) != atoi(y)
	case syntax.TsLeq:
		return atoi(x) <= atoi(y)
	case syntax.TsGeq:
		return atoi(x) >= atoi(y)
	case syntax.TsLss:
		return atoi(x) < atoi(y)
	case syntax.TsGtr:
		return atoi(x) > atoi(y)
	case syntax.TsBefore:
		return x < y
	case syntax.TsAfter:
		return x > y
	}
	return false
}

func (r *Runner) statMode(ctx context.Context, name string, mask fs.FileMode) bool {
	info, err := r.stat(ctx, name)
	return err == nil && info.Mode()&mask != 0
}

func (r *Runner) unTest(ctx context.Context, op syntax.UnTestOperator, x string) bool {
	switch op {
	case syntax.TsExists:
		_, err := r.stat(ctx, x)
		return err == nil
	case syntax.TsRegFile:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode().IsRegular()
	case syntax.TsDirect:
		info, err := r.stat(ctx, x)
		return err == nil && info.IsDir()
	case syntax.TsCharSp, syntax.TsBlckSp, syntax.TsSocket, syntax.TsFdTerm:
		// No devices, sockets, or terminals exist in the sandbox.
		return false
	case syntax.TsNmPipe:
		return false
	case syntax.TsSmbLink:
		info, err := r.lstat(ctx, x)
		return err == nil && info.Mode()&fs.ModeSymlink != 0
	case syntax.TsGIDSet:
		return r.statMode(ctx, x, fs.ModeSetgid)
	case syntax.TsUIDSet:
		return r.statMode(ctx, x, fs.ModeSetuid)
	case syntax.TsRead:
		return r.access(ctx, x, access_R_OK) == nil
	case syntax.TsWrite:
		return r.access(ctx, x, access_W_OK) == nil
	case syntax.TsExec:
		return r.access(ctx, x, access_X_OK) == nil
	case syntax.TsNoEmpty:
		info, err := r.stat(ctx, x)
		return err == nil && info.Size() > 0
	case syntax.TsEmpStr:
		return x == ""
	case syntax.TsNempStr:
		return x != ""
	case syntax.TsOptSet:
		if _, opt := r.optByName(x, true); opt != nil {
			return *opt
		}
		return false
	case syntax.TsVarSet:
		return r.lookupVar(x).IsSet()
	case syntax.TsRefVar:
		return r.lookupVar(x).Kind == expand.NameRef
	}
	return false
}

// testParser parses the arguments to the test and [ builtins into a
// TestExpr, since they arrive as expanded strings rather than as parsed
// syntax nodes. Operator precedence follows test(1): ! binds tightest,
// then -a, then -o.
type testParser struct {
	rem []string
	cur string
	eof bool
	err func(error)
}

func (p *testParser) errf(format string, a ...any) {
	p.err(fmt.Errorf(format, a...))
}

func (p *testParser) next() {
	if len(p.rem) == 0 {
		p.cur = ""
		p.eof = true
		return
	}
	p.cur, p.rem = p.rem[0], p.rem[1:]
	p.eof = false
}

func (p *testParser) word() *syntax.Word {
	w := &syntax.Word{Parts: []syntax.WordPart{
		&syntax.SglQuoted{Value: p.cur},
	}}
	p.next()
	return w
}

func testUnaryOpStr(s string) (syntax.UnTestOperator, bool) {
	switch s {
	case "-e", "-a":
		return syntax.TsExists, true
	case "-f":
		return syntax.TsRegFile, true
	case "-d":
		return syntax.TsDirect, true
	case "-c":
		return syntax.TsCharSp, true
	case "-b":
		return syntax.TsBlckSp, true
	case "-p":
		return syntax.TsNmPipe, true
	case "-S":
		return syntax.TsSocket, true
	case "-L", "-h":
		return syntax.TsSmbLink, true
	case "-g":
		return syntax.TsGIDSet, true
	case "-u":
		return syntax.TsUIDSet, true
	case "-r":
		return syntax.TsRead, true
	case "-w":
		return syntax.TsWrite, true
	case "-x":
		return syntax.TsExec, true
	case "-s":
		return syntax.TsNoEmpty, true
	case "-t":
		return syntax.TsFdTerm, true
	case "-z":
		return syntax.TsEmpStr, true
	case "-n":
		return syntax.TsNempStr, true
	case "-o":
		return syntax.TsOptSet, true
	case "-v":
		return syntax.TsVarSet, true
	case "-R":
		return syntax.TsRefVar, true
	}
	return 0, false
}

func testBinaryOpStr(s string) (syntax.BinTestOperator, bool) {
	switch s {
	case "=", "==":
		return syntax.TsMatch, true
	case "!=":
		return syntax.TsNoMatch, true
	case "-nt":
		return syntax.TsNewer, true
	case "-ot":
		return syntax.TsOlder, true
	case "-ef":
		return syntax.TsDevIno, true
	case "-eq":
		return syntax.TsEql, true
	case "-ne":
		return syntax.TsNeq, true
	case "-le":
		return syntax.TsLeq, true
	case "-ge":
		return syntax.TsGeq, true
	case "-lt":
		return syntax.TsLss, true
	case "-gt":
		return syntax.TsGtr, true
	case "<":
		return syntax.TsBefore, true
	case ">":
		return syntax.TsAfter, true
	}
	return 0, false
}

// classicTest parses the whole expression; fval names the builtin for
// error messages.
func (p *testParser) classicTest(fval string, insideParens bool) syntax.TestExpr {
	if p.eof {
		// "test" with no arguments is false, like testing an empty word.
		return &syntax.Word{Parts: []syntax.WordPart{&syntax.SglQuoted{Value: ""}}}
	}
	expr := p.orTest(fval)
	if expr == nil {
		return nil
	}
	if !p.eof && !insideParens {
		p.errf("%s: extra argument %q", fval, p.cur)
		return nil
	}
	return expr
}

func (p *testParser) orTest(fval string) syntax.TestExpr {
	left := p.andTest(fval)
	for left != nil && !p.eof && p.cur == "-o" {
		p.next()
		right := p.andTest(fval)
		if right == nil {
			p.errf("%s: -o must be followed by an expression", fval)
			return nil
		}
		left = &syntax.BinaryTest{Op: syntax.OrTest, X: left, Y: right}
	}
	return left
}

func (p *testParser) andTest(fval string) syntax.TestExpr {
	left := p.unaryTest(fval)
	for left != nil && !p.eof && p.cur == "-a" {
		p.next()
		right := p.unaryTest(fval)
		if right == nil {
			p.errf("%s: -a must be followed by an expression", fval)
			return nil
		}
		left = &syntax.BinaryTest{Op: syntax.AndTest, X: left, Y: right}
	}
	return left
}

func (p *testParser) unaryTest(fval string) syntax.TestExpr {
	switch {
	case p.eof:
		p.errf("%s: expected an expression", fval)
		return nil
	case p.cur == "!":
		p.next()
		x := p.unaryTest(fval)
		if x == nil {
			return nil
		}
		return &syntax.UnaryTest{Op: syntax.TsNot, X: x}
	case p.cur == "(":
		p.next()
		x := p.orTest(fval)
		if x == nil {
			return nil
		}
		if p.cur != ")" {
			p.errf("%s: expected ), got %q", fval, p.cur)
			return nil
		}
		p.next()
		return &syntax.ParenTest{X: x}
	}
	// "-a" is both TsExists and the and operator; as a leading token it
	// can only be a unary operator here, except when it is the last
	// argument, where it is a plain word.
	if op, ok := testUnaryOpStr(p.cur); ok && len(p.rem) > 0 {
		p.next()
		return &syntax.UnaryTest{Op: op, X: p.word()}
	}
	left := p.word()
	if p.eof {
		return left
	}
	if op, ok := testBinaryOpStr(p.cur); ok {
		p.next()
		if p.eof {
			p.errf("%s: expected a word after the operator", fval)
			return nil
		}
		return &syntax.BinaryTest{Op: op, X: left, Y: p.word()}
	}
	return left
}
