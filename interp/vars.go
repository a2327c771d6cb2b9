// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"fmt"
	mathrand "math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/syntax"
)

// The shell never exposes the real host process identity to scripts; $$
// and $PPID report fixed pseudo pids, and $! derives stable pseudo pids
// from them for background jobs.
const (
	shellPseudoPid  = 10000
	shellPseudoPpid = 9999

	bashVersionStr = "5.2.15(1)-release"
)

// overlayEnviron is a writable overlay on top of a read-only base
// environment. The Runner keeps one as its global scope over Runner.Env,
// and pushes another for every function call to hold its local variables.
type overlayEnviron struct {
	parent expand.Environ
	values map[string]expand.Variable

	// funcScope is true for overlays holding a function's local
	// variables; writes to non-local names are forwarded to the parent,
	// so that plain assignments inside a function still modify globals.
	funcScope bool
}

func newOverlayEnviron(parent expand.Environ, background bool) expand.WriteEnviron {
	o := &overlayEnviron{parent: parent}
	if background {
		// A background subshell keeps running after the parent moves on;
		// snapshot every variable now so the two never share a map.
		o.values = make(map[string]expand.Variable)
		parent.Each(func(name string, vr expand.Variable) bool {
			o.values[name] = vr
			return true
		})
		o.parent = nil
	}
	return o
}

func (o *overlayEnviron) Get(name string) expand.Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	if o.parent == nil {
		return expand.Variable{}
	}
	return o.parent.Get(name)
}

func (o *overlayEnviron) Set(name string, vr expand.Variable) error {
	prev := o.Get(name)
	if prev.ReadOnly && vr.Kind != expand.KeepValue {
		return fmt.Errorf("%s: readonly variable", name)
	}
	if o.funcScope && !vr.Local && !prev.Local {
		// Assignment to a global from within a function.
		if p, ok := o.parent.(expand.WriteEnviron); ok {
			return p.Set(name, vr)
		}
	}
	if vr.Kind == expand.KeepValue {
		// Only attributes change; the value is kept as-is.
		kept := prev
		kept.Local = kept.Local || vr.Local
		kept.Exported = kept.Exported || vr.Exported
		kept.ReadOnly = kept.ReadOnly || vr.ReadOnly
		kept.Integer = kept.Integer || vr.Integer
		vr = kept
	}
	if o.values == nil {
		o.values = make(map[string]expand.Variable)
	}
	// An unset variable is stored too, as a tombstone shadowing any
	// value the parent scope may hold for the same name.
	o.values[name] = vr
	return nil
}

func (o *overlayEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	for name, vr := range o.values {
		if !fn(name, vr) {
			return
		}
	}
	if o.parent != nil {
		o.parent.Each(func(name string, vr expand.Variable) bool {
			if _, shadowed := o.values[name]; shadowed {
				return true
			}
			return fn(name, vr)
		})
	}
}

func strVar(s string) expand.Variable {
	return expand.Variable{Set: true, Kind: expand.String, Str: s}
}

func indexedVar(list []string) expand.Variable {
	return expand.Variable{Set: true, Kind: expand.Indexed, List: list}
}

func (r *Runner) lookupVar(name string) expand.Variable {
	if name == "" {
		panic("variable name must not be empty")
	}
	switch name {
	case "#":
		return strVar(strconv.Itoa(len(r.Params)))
	case "@", "*":
		return indexedVar(r.Params)
	case "?":
		return strVar(strconv.Itoa(int(r.lastExit.code)))
	case "$":
		return strVar(strconv.Itoa(shellPseudoPid))
	case "PPID":
		return strVar(strconv.Itoa(shellPseudoPpid))
	case "!":
		if n := len(r.bgProcs); n > 0 {
			return strVar(strconv.Itoa(shellPseudoPid + n))
		}
		return expand.Variable{}
	case "DIRSTACK":
		return indexedVar(r.dirStack)
	case "0":
		if r.filename != "" {
			return strVar(r.filename)
		}
		return strVar("bash")
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(name[0] - '1')
		if i < len(r.Params) {
			return strVar(r.Params[i])
		}
		return expand.Variable{}
	case "LINENO":
		if r.curLine > 0 {
			return strVar(strconv.Itoa(r.curLine))
		}
	case "RANDOM":
		return strVar(strconv.Itoa(mathrand.IntN(32768)))
	case "SECONDS":
		if !r.startTime.IsZero() {
			return strVar(strconv.Itoa(int(time.Since(r.startTime).Seconds())))
		}
		return strVar("0")
	case "PIPESTATUS":
		stats := r.pipeStat
		if len(stats) == 0 {
			stats = []int{int(r.lastExit.code)}
		}
		list := make([]string, len(stats))
		for i, code := range stats {
			list[i] = strconv.Itoa(code)
		}
		return indexedVar(list)
	case "FUNCNAME":
		if len(r.funcNames) == 0 {
			return expand.Variable{}
		}
		// FUNCNAME[0] is the currently executing function.
		list := make([]string, 0, len(r.funcNames))
		for i := len(r.funcNames) - 1; i >= 0; i-- {
			list = append(list, r.funcNames[i])
		}
		return indexedVar(list)
	case "BASH_VERSION":
		return strVar(bashVersionStr)
	}
	if vr := r.writeEnv.Get(name); vr.IsSet() || vr.Declared() {
		return vr
	}
	return expand.Variable{}
}

func (r *Runner) envGet(name string) string {
	return r.lookupVar(name).String()
}

func (r *Runner) setVarString(name, value string) {
	r.setVar(name, strVar(value))
}

// resolveNameref follows a chain of nameref variables to the final
// target name, failing when the chain loops back on itself.
func (r *Runner) resolveNameref(name string) (string, bool) {
	seen := map[string]bool{}
	for {
		vr := r.writeEnv.Get(name)
		if vr.Kind != expand.NameRef {
			return name, true
		}
		if seen[name] {
			return name, false
		}
		seen[name] = true
		name = vr.Str
	}
}

func (r *Runner) setVar(name string, vr expand.Variable) {
	if name, idx, ok := splitVarIndex(name); ok {
		r.setVarIndex(name, idx, vr)
		return
	}
	if prev := r.writeEnv.Get(name); prev.Kind == expand.NameRef && vr.Kind != expand.NameRef {
		target, ok := r.resolveNameref(name)
		if !ok {
			r.errf("%s: circular name reference\n", name)
			r.exit.code = 1
			return
		}
		name = target
	}
	if err := r.writeEnv.Set(name, vr); err != nil {
		r.errf("%v\n", err)
		r.exit.code = 1
	}
}

// setVarIndex implements assignments of the form "a[idx]=value", for both
// indexed and associative arrays. Negative indices count from the end.
func (r *Runner) setVarIndex(name, idx string, vr expand.Variable) {
	prev := r.lookupVar(name)
	val := vr.String()
	if prev.Kind == expand.Associative {
		m := make(map[string]string, len(prev.Map)+1)
		for k, v := range prev.Map {
			m[k] = v
		}
		m[r.expandIndexKey(idx)] = val
		prev.Set = true
		prev.Map = m
		r.setVar(name, prev)
		return
	}
	i := r.arithmString(idx)
	list := append([]string(nil), prev.List...)
	if prev.Kind != expand.Indexed && prev.IsSet() {
		list = []string{prev.String()}
	}
	if i < 0 {
		i += len(list)
	}
	if i < 0 {
		r.errf("%s: bad array subscript\n", name)
		r.exit.code = 1
		return
	}
	for len(list) <= i {
		list = append(list, "")
	}
	list[i] = val
	r.setVar(name, indexedVar(list))
}

// expandIndexKey expands an associative array subscript, which may itself
// be a variable name.
func (r *Runner) expandIndexKey(idx string) string {
	if strings.HasPrefix(idx, "$") {
		return r.envGet(strings.TrimPrefix(idx, "$"))
	}
	return idx
}

// splitVarIndex splits "a[3]" into ("a", "3", true); plain names report
// false.
func splitVarIndex(name string) (string, string, bool) {
	open := strings.IndexByte(name, '[')
	if open < 1 || !strings.HasSuffix(name, "]") {
		return name, "", false
	}
	return name[:open], name[open+1 : len(name)-1], true
}

func (r *Runner) delVar(name string) {
	name, _ = r.resolveNameref(name)
	if err := r.writeEnv.Set(name, expand.Variable{}); err != nil {
		r.errf("%v\n", err)
		r.exit.code = 1
	}
}

func (r *Runner) setFunc(name string, body *syntax.Stmt) {
	if r.Funcs == nil {
		r.Funcs = make(map[string]*syntax.Stmt, 4)
	}
	r.Funcs[name] = body
}

// arithmString evaluates a string as an arithmetic expression, the way
// integer-attributed assignments and array subscripts need. A string that
// does not parse as arithmetic evaluates to 0, like in bash.
func (r *Runner) arithmString(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := syntax.Parse([]byte("(( "+s+" ))"), "", 0)
	if err != nil || len(f.Stmts) != 1 {
		return 0
	}
	cmd, ok := f.Stmts[0].Cmd.(*syntax.ArithmCmd)
	if !ok {
		return 0
	}
	n, err := expand.Arithm(r.ecfg, cmd.X)
	if err != nil {
		return 0
	}
	return n
}

// arrayExprOf returns the word's array literal, if the word is exactly
// one, as produced for assignments like "a=(b c)".
func arrayExprOf(w *syntax.Word) *syntax.ArrayExpr {
	if len(w.Parts) != 1 {
		return nil
	}
	ae, _ := w.Parts[0].(*syntax.ArrayExpr)
	return ae
}

// assignVal computes the value for one assignment, honoring appends,
// array literals, the integer attribute, and the declare flag in valType
// ("-a", "-A", "-n", "-i" or empty).
func (r *Runner) assignVal(prev expand.Variable, as *syntax.Assign, valType string) expand.Variable {
	if ae := arrayExprOf(&as.Value); ae != nil {
		if valType == "-A" || prev.Kind == expand.Associative {
			m := make(map[string]string, len(ae.List))
			if as.Append && prev.Kind == expand.Associative {
				for k, v := range prev.Map {
					m[k] = v
				}
			}
			for _, w := range ae.List {
				elem := r.literal(&w)
				if k, v, ok := splitAssocElem(elem); ok {
					m[k] = v
				}
			}
			vr := prev
			vr.Set = true
			vr.Kind = expand.Associative
			vr.Map = m
			vr.Str, vr.List = "", nil
			return vr
		}
		strs := r.fields(ae.List...)
		if as.Append && prev.IsSet() {
			strs = append(append([]string(nil), prev.List...), strs...)
		}
		vr := prev
		vr.Set = true
		vr.Kind = expand.Indexed
		vr.List = strs
		vr.Str, vr.Map = "", nil
		return vr
	}

	str := r.literal(&as.Value)
	if valType == "-n" {
		vr := prev
		vr.Set = true
		vr.Kind = expand.NameRef
		vr.Str = str
		return vr
	}
	if prev.Integer || valType == "-i" {
		str = strconv.Itoa(r.arithmString(str))
	}
	if as.Append && prev.IsSet() {
		switch prev.Kind {
		case expand.Indexed:
			vr := prev
			vr.List = append(append([]string(nil), prev.List...), str)
			return vr
		default:
			str = prev.String() + str
		}
	}
	vr := prev
	vr.Set = true
	vr.Kind = expand.String
	vr.Str = str
	vr.List, vr.Map = nil, nil
	return vr
}

// splitAssocElem splits an associative array literal element of the form
// "[key]=value" or "key=value".
func splitAssocElem(elem string) (string, string, bool) {
	k, v, ok := strings.Cut(elem, "=")
	if !ok {
		return "", "", false
	}
	if strings.HasPrefix(k, "[") && strings.HasSuffix(k, "]") {
		k = k[1 : len(k)-1]
	}
	return k, v, true
}
