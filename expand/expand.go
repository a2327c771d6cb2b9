// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package expand implements the word-expansion pipeline: brace expansion,
// tilde expansion, parameter/arithmetic/command substitution, field
// splitting on IFS, pathname expansion, and quote removal, in that order.
package expand

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strconv"
	"strings"

	"github.com/bashkit-sh/bashkit/syntax"
)

// A Config specifies details about how shell expansion should be
// performed. The zero value is a valid configuration.
type Config struct {
	// Env is used to get and set environment variables when performing
	// shell expansions. Some special parameters are also expanded via this
	// interface, such as:
	//
	//   * "#", "@", "*", "0"-"9" for the shell's parameters
	//   * "?", "$", "PPID" for the shell's status and process
	//   * "HOME foo" to retrieve user foo's home directory (if unset,
	//     the "~foo" word is left unexpanded)
	Env Environ

	// CmdSubst expands a command substitution node, writing its standard
	// output to the provided io.Writer.
	//
	// If nil, encountering a command substitution will result in an
	// UnexpectedCommandError.
	CmdSubst func(io.Writer, *syntax.CmdSubst) error

	// ProcSubst expands a process substitution node.
	//
	// Note that this feature is a work in progress, and the signature of
	// this field might change until #451 is completely fixed.
	ProcSubst func(*syntax.ProcSubst) (string, error)

	// ReadDir2 is used for file path globbing. If nil, globbing is
	// disabled. Use os.ReadDir to use the filesystem directly.
	ReadDir2 func(string) ([]fs.DirEntry, error)

	// GlobStar corresponds to the shell option that allows globbing with
	// "**".
	GlobStar bool

	// NoCaseGlob corresponds to the shell option that causes case-insensitive
	// pattern matching when performing pathname expansion.
	NoCaseGlob bool

	// NullGlob corresponds to the shell option that allows globbing
	// patterns which match nothing to result in zero fields.
	NullGlob bool

	// NoUnset corresponds to the shell option that treats unset variables
	// as errors.
	NoUnset bool

	bufferAlloc bytes.Buffer // TODO: use strings.Builder
	fieldAlloc  [4]fieldPart
	fieldsAlloc [4][]fieldPart

	ifs string
	// A pointer to a parameter expansion node, if we're inside one.
	// Necessary for ${LINENO}.
	curParam *syntax.ParamExp
}

// UnexpectedCommandError is returned if a command substitution is found when
// [Config.CmdSubst] is nil.
type UnexpectedCommandError struct {
	Node *syntax.CmdSubst
}

func (u UnexpectedCommandError) Error() string {
	return fmt.Sprintf("unexpected command substitution at %d", u.Node.Pos())
}

var zeroConfig = &Config{}

func prepareConfig(cfg *Config) *Config {
	if cfg == nil {
		cfg = zeroConfig
	}
	if cfg.Env == nil {
		cfg.Env = FuncEnviron(func(string) string { return "" })
	}
	cfg.ifs = " \t\n"
	if vr := cfg.Env.Get("IFS"); vr.IsSet() {
		cfg.ifs = vr.String()
	}
	return cfg
}

func (cfg *Config) ifsRune(r rune) bool {
	for _, r2 := range cfg.ifs {
		if r == r2 {
			return true
		}
	}
	return false
}

func (cfg *Config) ifsJoin(strs []string) string {
	sep := ""
	if cfg.ifs != "" {
		sep = cfg.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (cfg *Config) strBuilder() *bytes.Buffer {
	b := &cfg.bufferAlloc
	b.Reset()
	return b
}

func (cfg *Config) envGet(name string) string {
	return cfg.Env.Get(name).String()
}

func (cfg *Config) envSet(name, value string) error {
	wenv, ok := cfg.Env.(WriteEnviron)
	if !ok {
		return fmt.Errorf("environment is read-only")
	}
	return wenv.Set(name, Variable{Set: true, Kind: String, Str: value})
}

// Literal expands a single shell word. It is similar to [Fields], but the
// word must not contain any multiple fields, and any quoting or escaping is
// kept intact.
//
// A nil config defaults to a non-nil empty config.
func Literal(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	cfg = prepareConfig(cfg)
	field, err := cfg.wordField(word.Parts, quoteNone)
	if err != nil {
		return "", err
	}
	return cfg.fieldJoin(field), nil
}

// Document expands a single shell word as if it were within double quotes. It
// is similar to [Literal], but without brace expansion, tilde expansion, and
// globbing.
//
// A nil config defaults to a non-nil empty config.
func Document(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	cfg = prepareConfig(cfg)
	field, err := cfg.wordField(word.Parts, quoteDouble)
	if err != nil {
		return "", err
	}
	return cfg.fieldJoin(field), nil
}

// Pattern expands a single shell word as a pattern, using [syntax.QuotePattern]
// on any non-quoted parts of the input word. The result can be used on
// [syntax.TranslatePattern] directly.
//
// A nil config defaults to a non-nil empty config.
func Pattern(cfg *Config, word *syntax.Word) (string, error) {
	cfg = prepareConfig(cfg)
	field, err := cfg.wordField(word.Parts, quoteNone)
	if err != nil {
		return "", err
	}
	sb := cfg.strBuilder()
	for _, part := range field {
		if part.quote > quoteNone {
			sb.WriteString(syntax.QuotePattern(part.val))
		} else {
			sb.WriteString(part.val)
		}
	}
	return sb.String(), nil
}

// Format expands a format string with a number of arguments, following the
// shell's format specifications. These include printf(1), among others.
//
// The resulting string is returned, along with the number of arguments used.
//
// A nil config defaults to a non-nil empty config.
func Format(cfg *Config, format string, args []string) (string, int, error) {
	cfg = prepareConfig(cfg)
	buf := cfg.strBuilder()
	esc := false
	var fmts []byte
	initialArgs := len(args)

	for _, c := range format {
		switch {
		case esc:
			esc = false
			switch c {
			case 'n':
				buf.WriteRune('\n')
			case 'r':
				buf.WriteRune('\r')
			case 't':
				buf.WriteRune('\t')
			case '\\':
				buf.WriteRune('\\')
			default:
				buf.WriteRune('\\')
				buf.WriteRune(c)
			}

		case len(fmts) > 0:
			switch c {
			case '%':
				buf.WriteByte('%')
				fmts = nil
			case 'c':
				var b byte
				if len(args) > 0 {
					arg := ""
					arg, args = args[0], args[1:]
					if len(arg) > 0 {
						b = arg[0]
					}
				}
				buf.WriteByte(b)
				fmts = nil
			case '+', '-', ' ':
				if len(fmts) > 1 {
					return "", 0, fmt.Errorf("invalid format char: %c", c)
				}
				fmts = append(fmts, byte(c))
			case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.':
				fmts = append(fmts, byte(c))
			case 'a', 'A', 'b', 'e', 'E', 'f', 'F', 'g', 'G':
				var farg float64
				if len(args) > 0 {
					arg := ""
					arg, args = args[0], args[1:]
					farg, _ = strconv.ParseFloat(arg, 64)
				}
				fmts = append(fmts, byte(c))
				fmt.Fprintf(buf, string(fmts), farg)
				fmts = nil
			case 'd', 'i', 'u', 'o', 'x', 'X':
				var iarg int64
				if len(args) > 0 {
					arg := ""
					arg, args = args[0], args[1:]
					iarg, _ = strconv.ParseInt(arg, 0, 64)
				}
				if c == 'i' || c == 'u' {
					c = 'd'
				}
				fmts = append(fmts, byte(c))
				fmt.Fprintf(buf, string(fmts), iarg)
				fmts = nil
			case 's', 'q':
				var sarg string
				if len(args) > 0 {
					sarg, args = args[0], args[1:]
				}
				if c == 'q' {
					var err error
					sarg, err = syntax.Quote(sarg, syntax.LangBash)
					if err != nil {
						return "", 0, err
					}
					c = 's'
				}
				fmts = append(fmts, byte(c))
				fmt.Fprintf(buf, string(fmts), sarg)
				fmts = nil
			default:
				return "", 0, fmt.Errorf("invalid format char: %c", c)
			}
		case c == '\\':
			esc = true
		case args != nil && c == '%':
			// if args == nil, we are not doing format literals
			fmts = []byte{'%'}
		default:
			buf.WriteRune(c)
		}
	}
	if len(fmts) > 0 {
		return "", 0, fmt.Errorf("missing format char")
	}
	return buf.String(), initialArgs - len(args), nil
}

// Fields expands a number of words as if they were arguments in a shell
// command. This includes brace expansion, tilde expansion, parameter
// expansions, command substitutions, and quote removal.
func Fields(cfg *Config, words ...*syntax.Word) ([]string, error) {
	cfg = prepareConfig(cfg)
	fields := make([]string, 0, len(words))
	dir := cfg.envGet("PWD")
	for _, expWord := range Braces(words...) {
		wfields, err := cfg.wordFields(expWord.Parts)
		if err != nil {
			return nil, err
		}
		for _, field := range wfields {
			path, doGlob := cfg.escapedGlobField(field)
			var matches []string
			if doGlob && cfg.ReadDir2 != nil {
				matches, err = cfg.glob(dir, path)
				if err != nil {
					return nil, err
				}
				if len(matches) > 0 || cfg.NullGlob {
					fields = append(fields, matches...)
					continue
				}
			}
			fields = append(fields, cfg.fieldJoin(field))
		}
	}
	return fields, nil
}

type fieldPart struct {
	val   string
	quote quoteLevel
}

type quoteLevel uint

const (
	quoteNone quoteLevel = iota
	quoteDouble
	quoteSingle
)

func (cfg *Config) fieldJoin(parts []fieldPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1: // short-cut without a string copy
		return parts[0].val
	}
	buf := cfg.strBuilder()
	for _, part := range parts {
		buf.WriteString(part.val)
	}
	return buf.String()
}

func (cfg *Config) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	buf := cfg.strBuilder()
	for _, part := range parts {
		if part.quote > quoteNone {
			buf.WriteString(syntax.QuotePattern(part.val))
			continue
		}
		buf.WriteString(part.val)
		if syntax.HasPattern(part.val) {
			glob = true
		}
	}
	if glob { // only copy the string if it will be used
		escaped = buf.String()
	}
	return escaped, glob
}

// wordField expands a word's parts into a single field, such as a
// redirection target or an assignment value.
func (cfg *Config) wordField(wps []syntax.WordPart, ql quoteLevel) ([]fieldPart, error) {
	var field []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 && ql == quoteNone {
				s = cfg.expandUser(s)
			}
			if ql == quoteDouble && strings.Contains(s, "\\") {
				buf := cfg.strBuilder()
				for i := 0; i < len(s); i++ {
					b := s[i]
					if b == '\\' && i+1 < len(s) {
						switch s[i+1] {
						case '"', '\\', '$', '`': // special chars
							continue
						}
					}
					buf.WriteByte(b)
				}
				s = buf.String()
			}
			field = append(field, fieldPart{val: s})
		case *syntax.SglQuoted:
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				var err error
				fp.val, err = ansiCUnquote(fp.val)
				if err != nil {
					return nil, err
				}
			}
			field = append(field, fp)
		case *syntax.DblQuoted:
			wfield, err := cfg.wordField(x.Parts, quoteDouble)
			if err != nil {
				return nil, err
			}
			for _, part := range wfield {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *syntax.ParamExp:
			val, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{quote: ql, val: val})
		case *syntax.CmdSubst:
			val, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{quote: ql, val: val})
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{quote: ql, val: strconv.Itoa(n)})
		case *syntax.ProcSubst:
			if cfg.ProcSubst == nil {
				return nil, fmt.Errorf("process substitution is not supported")
			}
			path, err := cfg.ProcSubst(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: path})
		case *syntax.ExtGlob:
			return nil, fmt.Errorf("extended globbing is not supported")
		case *syntax.ArrayExpr:
			return nil, fmt.Errorf("an array is not a valid word")
		default:
			return nil, fmt.Errorf("unhandled word part: %T", x)
		}
	}
	return field, nil
}

func (cfg *Config) cmdSubst(cs *syntax.CmdSubst) (string, error) {
	if cfg.CmdSubst == nil {
		return "", UnexpectedCommandError{Node: cs}
	}
	buf := cfg.strBuilder()
	if err := cfg.CmdSubst(buf, cs); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// wordFields expands a word's parts into any number of fields, including
// zero, following field splitting rules.
func (cfg *Config) wordFields(wps []syntax.WordPart) ([][]fieldPart, error) {
	fields := cfg.fieldsAlloc[:0]
	curField := cfg.fieldAlloc[:0]
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	splitAdd := func(val string) {
		fieldStart := -1
		for i, r := range val {
			if cfg.ifsRune(r) {
				if fieldStart >= 0 { // ending a field
					curField = append(curField, fieldPart{val: val[fieldStart:i]})
					fieldStart = -1
				}
				flush()
			} else {
				if fieldStart < 0 { // starting a new field
					fieldStart = i
				}
			}
		}
		if fieldStart >= 0 { // ending a field without flushing
			curField = append(curField, fieldPart{val: val[fieldStart:]})
		}
	}
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandUser(s)
			}
			if strings.Contains(s, "\\") {
				buf := cfg.strBuilder()
				for i := 0; i < len(s); i++ {
					b := s[i]
					if b == '\\' {
						if i++; i >= len(s) {
							break
						}
						b = s[i]
						// An escaped character becomes a quoted field
						// part, so that it never globs.
						if len(buf.Bytes()) > 0 {
							curField = append(curField, fieldPart{val: buf.String()})
							buf = cfg.strBuilder()
						}
						curField = append(curField, fieldPart{quote: quoteSingle, val: string(b)})
						continue
					}
					buf.WriteByte(b)
				}
				if len(buf.Bytes()) > 0 {
					curField = append(curField, fieldPart{val: buf.String()})
				}
				continue
			}
			curField = append(curField, fieldPart{val: s})
		case *syntax.SglQuoted:
			allowEmpty = true
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				var err error
				fp.val, err = ansiCUnquote(fp.val)
				if err != nil {
					return nil, err
				}
			}
			curField = append(curField, fp)
		case *syntax.DblQuoted:
			allowEmpty = true
			if elems := cfg.quotedElemFields(x); elems != nil {
				for i, elem := range elems {
					if i > 0 {
						flush()
					}
					curField = append(curField, fieldPart{quote: quoteDouble, val: elem})
				}
				continue
			}
			wfield, err := cfg.wordField(x.Parts, quoteDouble)
			if err != nil {
				return nil, err
			}
			for _, part := range wfield {
				part.quote = quoteDouble
				curField = append(curField, part)
			}
		case *syntax.ParamExp:
			val, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			splitAdd(val)
		case *syntax.CmdSubst:
			val, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			splitAdd(val)
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				return nil, err
			}
			curField = append(curField, fieldPart{val: strconv.Itoa(n)})
		case *syntax.ProcSubst:
			if cfg.ProcSubst == nil {
				return nil, fmt.Errorf("process substitution is not supported")
			}
			path, err := cfg.ProcSubst(x)
			if err != nil {
				return nil, err
			}
			curField = append(curField, fieldPart{val: path})
		case *syntax.ExtGlob:
			return nil, fmt.Errorf("extended globbing is not supported")
		case *syntax.ArrayExpr:
			return nil, fmt.Errorf("an array is not a valid word")
		default:
			return nil, fmt.Errorf("unhandled word part: %T", x)
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields, nil
}

// quotedElemFields returns the list of elements resulting from a quoted
// parameter expansion that should be treated especially, like "$@" and
// "${arr[@]}", where each element becomes its own field. A nil slice means
// the node needs no special treatment.
func (cfg *Config) quotedElemFields(dq *syntax.DblQuoted) []string {
	if len(dq.Parts) != 1 {
		return nil
	}
	pe, _ := dq.Parts[0].(*syntax.ParamExp)
	if pe == nil || pe.Length || pe.Excl || pe.Repl != nil || pe.Exp != nil || pe.Slice != nil {
		return nil
	}
	if pe.Param.Value == "@" {
		return cfg.Env.Get("@").List
	}
	if pe.Ind != nil && pe.Ind.Word.Lit() == "@" {
		vr := cfg.Env.Get(pe.Param.Value)
		_, vr = vr.Resolve(cfg.Env)
		switch vr.Kind {
		case Indexed:
			return vr.List
		case Associative:
			elems := make([]string, 0, len(vr.Map))
			for _, v := range vr.Map {
				elems = append(elems, v)
			}
			return elems
		}
	}
	return nil
}

// expandUser performs tilde expansion on the start of a word.
func (cfg *Config) expandUser(field string) string {
	if len(field) == 0 || field[0] != '~' {
		return field
	}
	name := field[1:]
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		if home := cfg.envGet("HOME"); home != "" {
			return home + field[1:]
		}
		return field
	}
	if vr := cfg.Env.Get("HOME " + name); vr.IsSet() {
		return vr.String() + field[len(name)+1:]
	}
	return field
}

// ansiCUnquote expands the escape sequences of a $'...' string.
func ansiCUnquote(s string) (string, error) {
	var sb strings.Builder
	for len(s) > 0 {
		if s[0] != '\\' || len(s) == 1 {
			sb.WriteByte(s[0])
			s = s[1:]
			continue
		}
		c := s[1]
		s = s[2:]
		switch c {
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'e', 'E':
			sb.WriteByte(0x1b)
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'v':
			sb.WriteByte('\v')
		case '\\', '\'', '"', '?':
			sb.WriteByte(c)
		case 'x', 'u', 'U':
			size := 2
			if c == 'u' {
				size = 4
			} else if c == 'U' {
				size = 8
			}
			if len(s) < size {
				size = len(s)
			}
			digits := s[:size]
			for i, d := range digits {
				if !isHexDigit(byte(d)) {
					digits = digits[:i]
					break
				}
			}
			if digits == "" {
				sb.WriteByte('\\')
				sb.WriteByte(c)
				continue
			}
			n, _ := strconv.ParseUint(digits, 16, 32)
			if c == 'x' {
				sb.WriteByte(byte(n))
			} else {
				sb.WriteRune(rune(n))
			}
			s = s[len(digits):]
		case '0', '1', '2', '3', '4', '5', '6', '7':
			digits := string(c)
			for len(s) > 0 && len(digits) < 3 && s[0] >= '0' && s[0] <= '7' {
				digits += string(s[0])
				s = s[1:]
			}
			n, _ := strconv.ParseUint(digits, 8, 8)
			sb.WriteByte(byte(n))
		default:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// glob performs pathname expansion of pat relative to dir, returning the
// matching paths in the order the virtual directory listing reports them.
func (cfg *Config) glob(base, pat string) ([]string, error) {
	parts := strings.Split(pat, "/")
	matches := []string{""}
	if strings.HasPrefix(pat, "/") {
		matches = []string{"/"}
		parts = parts[1:]
		base = ""
	}
	for _, part := range parts {
		switch {
		case part == "", part == ".", part == "..":
			for i, dir := range matches {
				matches[i] = joinGlob(dir, part)
			}
			continue
		case !syntax.HasPattern(part):
			for i, dir := range matches {
				matches[i] = joinGlob(dir, unquoteGlob(part))
			}
			continue
		case part == "**" && cfg.GlobStar:
			// "**" matches all the directories below, including none.
			var newMatches []string
			for _, dir := range matches {
				newMatches = append(newMatches, dir)
				newMatches = append(newMatches, cfg.globStarDirs(base, dir)...)
			}
			matches = newMatches
			continue
		}
		expr, err := syntax.TranslatePattern(part, true)
		if err != nil {
			// If any glob part is not a valid pattern, don't glob.
			return nil, nil
		}
		if cfg.NoCaseGlob {
			expr = "(?i)" + expr
		}
		rx, err := regexp.Compile("^" + expr + "$")
		if err != nil {
			return nil, nil
		}
		var newMatches []string
		for _, dir := range matches {
			newMatches, err = cfg.globDir(base, dir, rx, strings.HasPrefix(part, "."), newMatches)
			if err != nil {
				return nil, err
			}
		}
		matches = newMatches
	}
	// Verify that non-pattern trailing components exist; a literal suffix
	// such as "dir/file" in "d*/file" must not report bogus paths.
	out := matches[:0]
	for _, m := range matches {
		if m == "" {
			continue
		}
		full := m
		if !strings.HasPrefix(full, "/") {
			full = joinGlob(base, m)
		}
		if cfg.pathExists(full) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (cfg *Config) pathExists(path string) bool {
	dir, name := splitGlobPath(path)
	entries, err := cfg.ReadDir2(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Name() == name {
			return true
		}
	}
	return false
}

func splitGlobPath(p string) (dir, name string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ".", p
	}
	if i == 0 {
		return "/", p[1:]
	}
	return p[:i], p[i+1:]
}

func joinGlob(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

func unquoteGlob(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func (cfg *Config) globDir(base, dir string, rx *regexp.Regexp, wantHidden bool, matches []string) ([]string, error) {
	full := dir
	if !strings.HasPrefix(full, "/") {
		full = joinGlob(base, dir)
	}
	if full == "" {
		full = "."
	}
	entries, err := cfg.ReadDir2(full)
	if err != nil {
		return matches, nil
	}
	for _, entry := range entries {
		name := entry.Name()
		if !wantHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if rx.MatchString(name) {
			matches = append(matches, joinGlob(dir, name))
		}
	}
	return matches, nil
}

// globStarDirs recursively lists the directories below dir, for "**".
func (cfg *Config) globStarDirs(base, dir string) []string {
	full := dir
	if !strings.HasPrefix(full, "/") {
		full = joinGlob(base, dir)
	}
	if full == "" {
		full = "."
	}
	entries, err := cfg.ReadDir2(full)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		sub := joinGlob(dir, name)
		dirs = append(dirs, sub)
		dirs = append(dirs, cfg.globStarDirs(base, sub)...)
	}
	return dirs
}

// ReadFields splits and returns n fields from s, to be used by the "read"
// builtin. If raw is set, backslash handling is not performed.
func ReadFields(cfg *Config, s string, n int, raw bool) []string {
	cfg = prepareConfig(cfg)
	type pos struct {
		start, end int
	}
	var fpos []pos

	runes := make([]rune, 0, len(s))
	infield := false
	esc := false
	for _, r := range s {
		if infield {
			if cfg.ifsRune(r) && (raw || !esc) {
				fpos[len(fpos)-1].end = len(runes)
				infield = false
			}
		} else {
			if !cfg.ifsRune(r) && (raw || !esc) {
				fpos = append(fpos, pos{start: len(runes), end: -1})
				infield = true
			}
		}
		if r == '\\' {
			if raw || esc {
				runes = append(runes, r)
			}
			esc = !esc
			continue
		}
		runes = append(runes, r)
		esc = false
	}
	if len(fpos) == 0 {
		return nil
	}
	if infield {
		fpos[len(fpos)-1].end = len(runes)
	}

	switch {
	case n == 1:
		// include heading/trailing IFS bytes
		fpos[0].start, fpos[0].end = 0, len(runes)
		fpos = fpos[:1]
	case n > 0 && n < len(fpos):
		// combine to make n fields
		fpos[n-1].end = fpos[len(fpos)-1].end
		fpos = fpos[:n]
	}

	var fields = make([]string, 0, len(fpos))
	for _, p := range fpos {
		fields = append(fields, string(runes[p.start:p.end]))
	}
	return fields
}
