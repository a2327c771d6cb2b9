// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bashkit-sh/bashkit/syntax"
)

// lowerCaser and upperCaser back the ^^/,,/^/, case-fold parameter
// expansions. A plain [unicode.ToUpper]/[unicode.ToLower] only special-cases
// single runes; cases.Upper/cases.Lower know about the wider Unicode special
// casing rules (e.g. German ß, Greek final sigma) that apply even to
// one-rune-at-a-time folding of multi-byte UTF-8 script content.
var (
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
)

// foldRune case-folds a single rune through the given caser, falling back to
// the original rune if folding it in isolation produces no output.
func foldRune(c cases.Caser, r rune) rune {
	out := c.String(string(r))
	if out == "" {
		return r
	}
	return []rune(out)[0]
}

// UnsetParameterError is returned by a parameter expansion of an unset
// variable under "set -u", and by the ${var:?message} form.
type UnsetParameterError struct {
	Node    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string {
	return fmt.Sprintf("%s: %s", u.Node.Param.Value, u.Message)
}

func nodeLit(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	return w.Lit()
}

// indexWord returns the subscript word of a parameter expansion, or nil.
func indexWord(pe *syntax.ParamExp) *syntax.Word {
	if pe.Ind == nil {
		return nil
	}
	return &pe.Ind.Word
}

func (cfg *Config) paramExp(pe *syntax.ParamExp) (string, error) {
	oldParam := cfg.curParam
	cfg.curParam = pe
	defer func() { cfg.curParam = oldParam }()

	name := pe.Param.Value
	index := indexWord(pe)
	switch name {
	case "@", "*":
		index = &syntax.Word{Parts: []syntax.WordPart{
			&syntax.Lit{Value: name},
		}}
	}
	vr := cfg.Env.Get(name)
	_, vr = vr.Resolve(cfg.Env)
	set := vr.IsSet()
	str := vr.String()
	if index != nil {
		var err error
		str, err = cfg.varInd(vr, index)
		if err != nil {
			return "", err
		}
	}
	elems := []string{str}
	if lit := nodeLit(index); lit == "@" || lit == "*" {
		switch vr.Kind {
		case Indexed:
			elems = vr.List
		case Associative:
			elems = make([]string, 0, len(vr.Map))
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				elems = append(elems, vr.Map[k])
			}
		case Unknown:
			elems = nil
		}
	}

	if cfg.NoUnset && !set && !pe.Excl && !pe.Length && syntax.ValidName(name) && !exemptFromNoUnset(pe) {
		return "", UnsetParameterError{Node: pe, Message: "unbound variable"}
	}

	switch {
	case pe.Length:
		n := len(elems)
		if lit := nodeLit(index); lit != "@" && lit != "*" {
			n = utf8.RuneCountInString(str)
		}
		str = strconv.Itoa(n)
	case pe.Excl:
		var strs []string
		switch {
		case strings.HasSuffix(name, "*") || strings.HasSuffix(name, "@"):
			// ${!prefix*} and ${!prefix@} list names by prefix.
			strs = cfg.namesByPrefix(strings.TrimRight(name, "*@"))
			sort.Strings(strs)
		case index != nil:
			// ${!arr[@]} lists the array's keys.
			switch vr.Kind {
			case Indexed:
				for i, e := range vr.List {
					if e != "" {
						strs = append(strs, strconv.Itoa(i))
					}
				}
			case Associative:
				for k := range vr.Map {
					strs = append(strs, k)
				}
				sort.Strings(strs)
			}
		case vr.Kind == NameRef:
			strs = append(strs, vr.Str)
		case str != "":
			// Plain indirection: the value is itself a variable name.
			vr2 := cfg.Env.Get(str)
			_, vr2 = vr2.Resolve(cfg.Env)
			strs = append(strs, vr2.String())
		}
		str = strings.Join(strs, " ")
	case pe.Slice != nil:
		slicePos := func(w *syntax.Word) (int, error) {
			p, err := Arithm(cfg, w)
			if err != nil {
				return 0, err
			}
			if p < 0 {
				p = len(str) + p
				if p < 0 {
					p = len(str)
				}
			} else if p > len(str) {
				p = len(str)
			}
			return p, nil
		}
		if len(pe.Slice.Offset.Parts) > 0 {
			offset, err := slicePos(&pe.Slice.Offset)
			if err != nil {
				return "", err
			}
			str = str[offset:]
		}
		if len(pe.Slice.Length.Parts) > 0 {
			length, err := slicePos(&pe.Slice.Length)
			if err != nil {
				return "", err
			}
			if length > len(str) {
				length = len(str)
			}
			str = str[:length]
		}
	case pe.Repl != nil:
		orig, err := Pattern(cfg, &pe.Repl.Orig)
		if err != nil {
			return "", err
		}
		with, err := Literal(cfg, &pe.Repl.With)
		if err != nil {
			return "", err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		buf := new(strings.Builder)
		last := 0
		for _, loc := range locs {
			buf.WriteString(str[last:loc[0]])
			buf.WriteString(with)
			last = loc[1]
		}
		buf.WriteString(str[last:])
		str = buf.String()
	case pe.Exp != nil:
		str2, err := cfg.expansionOp(pe, name, str, elems, set)
		if err != nil {
			return "", err
		}
		str = str2
	}
	return str, nil
}

func exemptFromNoUnset(pe *syntax.ParamExp) bool {
	if pe.Exp == nil {
		return false
	}
	switch pe.Exp.Op {
	case syntax.SubstColSub, syntax.SubstSub,
		syntax.SubstColAdd, syntax.SubstAdd,
		syntax.SubstColAssgn, syntax.SubstAssgn,
		syntax.SubstColQuest, syntax.SubstQuest:
		return true
	}
	return false
}

func (cfg *Config) expansionOp(pe *syntax.ParamExp, name, str string, elems []string, set bool) (string, error) {
	arg, err := Literal(cfg, &pe.Exp.Word)
	if err != nil {
		return "", err
	}
	switch op := pe.Exp.Op; op {
	case syntax.SubstColAdd:
		if str == "" {
			return str, nil
		}
		fallthrough
	case syntax.SubstAdd:
		if set {
			return arg, nil
		}
		return str, nil
	case syntax.SubstSub:
		if set {
			return str, nil
		}
		fallthrough
	case syntax.SubstColSub:
		if str == "" {
			return arg, nil
		}
		return str, nil
	case syntax.SubstQuest:
		if set {
			return str, nil
		}
		fallthrough
	case syntax.SubstColQuest:
		if str == "" {
			msg := arg
			if msg == "" {
				msg = "parameter null or not set"
			}
			return "", UnsetParameterError{Node: pe, Message: msg}
		}
		return str, nil
	case syntax.SubstAssgn:
		if set {
			return str, nil
		}
		fallthrough
	case syntax.SubstColAssgn:
		if str == "" {
			if err := cfg.envSet(name, arg); err != nil {
				return "", err
			}
			return arg, nil
		}
		return str, nil
	case syntax.RemSmallPrefix, syntax.RemLargePrefix,
		syntax.RemSmallSuffix, syntax.RemLargeSuffix:
		suffix := op == syntax.RemSmallSuffix || op == syntax.RemLargeSuffix
		large := op == syntax.RemLargePrefix || op == syntax.RemLargeSuffix
		for i, elem := range elems {
			elems[i] = removePattern(elem, arg, suffix, large)
		}
		return strings.Join(elems, " "), nil
	case syntax.UpperFirst, syntax.UpperAll,
		syntax.LowerFirst, syntax.LowerAll:
		caser := lowerCaser
		if op == syntax.UpperFirst || op == syntax.UpperAll {
			caser = upperCaser
		}
		all := op == syntax.UpperAll || op == syntax.LowerAll

		// An empty pattern means every character qualifies.
		if arg == "" {
			arg = "?"
		}
		expr, err := syntax.TranslatePattern(arg, false)
		if err != nil {
			return str, nil
		}
		rx := regexp.MustCompile(expr)

		for i, elem := range elems {
			rs := []rune(elem)
			for ri, r := range rs {
				if rx.MatchString(string(r)) {
					rs[ri] = foldRune(caser, r)
					if !all {
						break
					}
				}
			}
			elems[i] = string(rs)
		}
		return strings.Join(elems, " "), nil
	case syntax.OtherParamOps:
		switch arg {
		case "Q":
			return strconv.Quote(str), nil
		case "E":
			tail := str
			var rns []rune
			for tail != "" {
				var rn rune
				rn, _, tail, _ = strconv.UnquoteChar(tail, 0)
				rns = append(rns, rn)
			}
			return string(rns), nil
		default:
			return "", fmt.Errorf("unexpected @%s param expansion", arg)
		}
	}
	return str, nil
}

func removePattern(str, pattern string, fromEnd, greedy bool) string {
	expr, err := syntax.TranslatePattern(pattern, greedy)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		// use .* to get the right-most (shortest) match
		expr = ".*(" + expr + ")$"
	case fromEnd:
		// simple suffix
		expr = "(" + expr + ")$"
	default:
		// simple prefix
		expr = "^(" + expr + ")"
	}
	// no need to check error as TranslatePattern returns one
	rx := regexp.MustCompile(expr)
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		// remove the original pattern (the submatch)
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}

// findAllIndex returns the indexes of all non-overlapping matches of the
// given shell pattern in str, for replacement expansions.
func findAllIndex(pattern, str string, n int) [][]int {
	expr, err := syntax.TranslatePattern(pattern, true)
	if err != nil {
		return nil
	}
	rx := regexp.MustCompile(expr)
	return rx.FindAllStringIndex(str, n)
}

// varInd returns the value of a variable at the given subscript.
func (cfg *Config) varInd(vr Variable, idx *syntax.Word) (string, error) {
	switch vr.Kind {
	case String:
		switch nodeLit(idx) {
		case "@", "*":
			return vr.Str, nil
		}
		n, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return vr.Str, nil
		}
	case Indexed:
		switch nodeLit(idx) {
		case "@":
			return strings.Join(vr.List, " "), nil
		case "*":
			return cfg.ifsJoin(vr.List), nil
		}
		i, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if i < 0 {
			i += len(vr.List)
		}
		if i >= 0 && i < len(vr.List) {
			return vr.List[i], nil
		}
	case Associative:
		switch lit := nodeLit(idx); lit {
		case "@", "*":
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			strs := make([]string, 0, len(keys))
			for _, k := range keys {
				strs = append(strs, vr.Map[k])
			}
			if lit == "*" {
				return cfg.ifsJoin(strs), nil
			}
			return strings.Join(strs, " "), nil
		}
		val, err := Literal(cfg, idx)
		if err != nil {
			return "", err
		}
		return vr.Map[val], nil
	}
	return "", nil
}

func (cfg *Config) namesByPrefix(prefix string) []string {
	var names []string
	cfg.Env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names
}
