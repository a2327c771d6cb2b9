// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"fmt"
	"io"
	"iter"

	"github.com/bashkit-sh/bashkit/limits"
)

// Parser is the public, reusable entrypoint to the recursive-descent
// parser. Call sites across the engine (interp's source/eval/trap
// re-parsing, the shell package, the demo CLI) construct one with
// [NewParser] and call [Parser.Parse] or [Parser.ParseLimited], rather than
// building a ParseMode by hand.
type Parser struct {
	mode ParseMode
}

// ParserOption is a functional option for [NewParser], mirroring the
// RunnerOption pattern used by package interp.
type ParserOption func(*Parser)

// KeepComments makes the parser attach comment nodes to the returned File,
// instead of discarding them.
func KeepComments(keep bool) ParserOption {
	return func(p *Parser) {
		if keep {
			p.mode |= ParseComments
		} else {
			p.mode &^= ParseComments
		}
	}
}

// Posix enforces POSIX conformance where it differs from bash.
func Posix(enable bool) ParserOption {
	return func(p *Parser) {
		if enable {
			p.mode |= PosixConformant
		} else {
			p.mode &^= PosixConformant
		}
	}
}

// NewParser allocates a [Parser] configured by the given options.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads and parses an entire shell program from r, with no resource
// ceilings enforced. Prefer [Parser.ParseLimited] for anything handling
// untrusted script text.
func (p *Parser) Parse(r io.Reader, name string) (*File, error) {
	return p.ParseLimited(r, name, nil)
}

// ParseLimited is [Parser.Parse] gated by counters; see [ParseLimited] for
// the ceiling semantics. A nil counters disables every ceiling.
func (p *Parser) ParseLimited(r io.Reader, name string, counters *limits.Counters) (*File, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseLimited(src, name, p.mode, counters)
}

// Printer holds the configuration used to pretty-print parsed shell
// code. It wraps [PrintConfig] with the ability to print any node, not
// just whole files, which the interpreter's xtrace output relies on.
type Printer struct {
	cfg PrintConfig
}

// NewPrinter allocates a new Printer with default settings.
func NewPrinter() *Printer { return &Printer{} }

// Print pretty-prints the given node to w.
func (pr *Printer) Print(w io.Writer, node Node) error {
	if f, ok := node.(*File); ok {
		return pr.cfg.Fprint(w, f)
	}
	p := printerFree.Get().(*printer)
	defer printerFree.Put(p)
	p.reset()
	p.f, p.c = &File{}, pr.cfg
	p.comments = nil
	p.bufWriter.Reset(w)
	switch x := node.(type) {
	case *Stmt:
		p.stmt(x)
	case Command:
		p.command(x, nil)
	case *Word:
		p.word(*x)
	case WordPart:
		p.wordPart(x)
	case *Assign:
		p.assigns([]*Assign{x})
	case ArithmExpr:
		p.arithmExpr(x, false)
	case TestExpr:
		p.testExpr(x)
	default:
		return fmt.Errorf("unsupported node type: %T", node)
	}
	return p.bufWriter.Flush()
}

// Document parses a single shell word out of r, the grammar package shell's
// Expand uses for parameter, arithmetic, and brace expansion without a
// surrounding command. No resource ceilings are enforced; callers parsing
// untrusted text should prefer [Parser.ParseLimited] instead.
func (p *Parser) Document(r io.Reader) (*Word, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	pp := parserFree.Get().(*parser)
	pp.reset()
	pp.f = &File{Lines: []int{0}}
	pp.src, pp.mode = src, p.mode
	pp.next()
	w := pp.word()
	err = pp.err
	parserFree.Put(pp)
	return &w, err
}

// WordsSeq parses a sequence of space-separated words out of r, yielding
// each in turn. A parse failure is yielded as the non-nil error of the
// final pair; iteration stops there.
func (p *Parser) WordsSeq(r io.Reader) iter.Seq2[*Word, error] {
	return func(yield func(*Word, error) bool) {
		src, err := io.ReadAll(r)
		if err != nil {
			yield(nil, err)
			return
		}
		pp := parserFree.Get().(*parser)
		pp.reset()
		pp.f = &File{Lines: []int{0}}
		pp.src, pp.mode = src, p.mode
		pp.next()
		for pp.tok != _EOF && pp.err == nil {
			w := pp.word()
			if !yield(&w, nil) {
				break
			}
		}
		if pp.err != nil {
			yield(nil, pp.err)
		}
		parserFree.Put(pp)
	}
}

// Words parses a sequence of space-separated words out of r, calling fn for
// each in turn until fn returns false or the input is exhausted.
func (p *Parser) Words(r io.Reader, fn func(*Word) bool) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	pp := parserFree.Get().(*parser)
	pp.reset()
	pp.f = &File{Lines: []int{0}}
	pp.src, pp.mode = src, p.mode
	pp.next()
	for pp.tok != _EOF {
		w := pp.word()
		if !fn(&w) {
			break
		}
	}
	err = pp.err
	parserFree.Put(pp)
	return err
}
