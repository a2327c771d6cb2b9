package builtin

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bashkit-sh/bashkit/pattern"
)

func init() {
	Register("grep", grepBuiltin)
	Register("sed", sedBuiltin)
	Register("cut", cutBuiltin)
	Register("tr", trBuiltin)
	Register("wc", wcBuiltin)
	Register("head", headBuiltin)
	Register("tail", tailBuiltin)
	Register("sort", sortBuiltin)
	Register("uniq", uniqBuiltin)
	Register("nl", nlBuiltin)
	Register("tac", tacBuiltin)
	Register("rev", revBuiltin)
	Register("yes", yesBuiltin)
	Register("paste", pasteBuiltin)
}

// readAllInputs reads every non-flag arg as a file path (via FS), or
// Stdin if no paths were given, matching the teacher's own "args are
// files, else stdin" convention used throughout coreutils-alikes.
func readAllInputs(c *Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		data, err := io.ReadAll(c.Stdin)
		if err != nil {
			return nil, err
		}
		return []string{string(data)}, nil
	}
	var out []string
	for _, p := range paths {
		data, err := c.FS.ReadFile(vfsPath(c, p))
		if err != nil {
			return nil, err
		}
		out = append(out, string(data))
	}
	return out, nil
}

func vfsPath(c *Context, p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return c.Dir + "/" + p
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func grepBuiltin(c *Context) error {
	var invert, ignoreCase, countOnly, lineNum, fixed bool
	var args []string
	for _, a := range c.Args[1:] {
		switch {
		case a == "-v":
			invert = true
		case a == "-i":
			ignoreCase = true
		case a == "-c":
			countOnly = true
		case a == "-n":
			lineNum = true
		case a == "-F":
			fixed = true
		default:
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		c.Errorf("missing pattern")
		return ExitStatus(2)
	}
	pat, paths := args[0], args[1:]
	if ignoreCase {
		pat = "(?i)" + pat
	}
	var rx *regexp.Regexp
	var err error
	if fixed {
		rx, err = regexp.Compile(regexp.QuoteMeta(pat))
	} else {
		rx, err = regexp.Compile(pat)
	}
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	matched := false
	count := 0
	for _, in := range inputs {
		for i, line := range splitLines(in) {
			if rx.MatchString(line) != invert {
				count++
				matched = true
				if !countOnly {
					if lineNum {
						fmt.Fprintf(c.Stdout, "%d:%s\n", i+1, line)
					} else {
						fmt.Fprintln(c.Stdout, line)
					}
				}
			}
		}
	}
	if countOnly {
		fmt.Fprintln(c.Stdout, count)
	}
	if !matched {
		return ExitStatus(1)
	}
	return nil
}

// sedBuiltin supports the common "s/pat/repl/flags" substitution form,
// the one construct scripts overwhelmingly reach for sed to do.
func sedBuiltin(c *Context) error {
	var args []string
	for _, a := range c.Args[1:] {
		if a == "-n" || a == "-E" || a == "-r" {
			continue
		}
		args = append(args, a)
	}
	if len(args) == 0 {
		c.Errorf("missing script")
		return ExitStatus(2)
	}
	script, paths := args[0], args[1:]
	if len(script) < 2 || script[0] != 's' {
		c.Errorf("unsupported sed script: %s", script)
		return ExitStatus(2)
	}
	delim := script[1]
	parts := strings.Split(script[2:], string(delim))
	if len(parts) < 2 {
		c.Errorf("malformed substitution: %s", script)
		return ExitStatus(2)
	}
	pat, repl := parts[0], parts[1]
	flags := ""
	if len(parts) > 2 {
		flags = parts[2]
	}
	if strings.Contains(flags, "i") {
		pat = "(?i)" + pat
	}
	rx, err := regexp.Compile(pat)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	repl = convertSedRepl(repl)
	global := strings.Contains(flags, "g")
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for _, in := range inputs {
		for _, line := range splitLines(in) {
			if global {
				line = rx.ReplaceAllString(line, repl)
			} else {
				done := false
				line = rx.ReplaceAllStringFunc(line, func(m string) string {
					if done {
						return m
					}
					done = true
					return rx.ReplaceAllString(m, repl)
				})
			}
			fmt.Fprintln(c.Stdout, line)
		}
	}
	return nil
}

func convertSedRepl(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '\\' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			b.WriteByte('$')
			b.WriteByte(repl[i+1])
			i++
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}

func cutBuiltin(c *Context) error {
	var delim = "\t"
	var fieldsSpec string
	var paths []string
	for i := 1; i < len(c.Args); i++ {
		a := c.Args[i]
		switch {
		case strings.HasPrefix(a, "-d"):
			if a == "-d" && i+1 < len(c.Args) {
				i++
				delim = c.Args[i]
			} else {
				delim = strings.TrimPrefix(a, "-d")
			}
		case strings.HasPrefix(a, "-f"):
			if a == "-f" && i+1 < len(c.Args) {
				i++
				fieldsSpec = c.Args[i]
			} else {
				fieldsSpec = strings.TrimPrefix(a, "-f")
			}
		default:
			paths = append(paths, a)
		}
	}
	fields := map[int]bool{}
	for _, f := range strings.Split(fieldsSpec, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err == nil {
			fields[n] = true
		}
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for _, in := range inputs {
		for _, line := range splitLines(in) {
			cols := strings.Split(line, delim)
			var out []string
			for i, col := range cols {
				if fields[i+1] {
					out = append(out, col)
				}
			}
			fmt.Fprintln(c.Stdout, strings.Join(out, delim))
		}
	}
	return nil
}

func trBuiltin(c *Context) error {
	args := c.Args[1:]
	deleteMode := false
	squeeze := false
	var sets []string
	for _, a := range args {
		switch a {
		case "-d":
			deleteMode = true
		case "-s":
			squeeze = true
		default:
			sets = append(sets, a)
		}
	}
	if len(sets) == 0 {
		c.Errorf("missing operand")
		return ExitStatus(2)
	}
	from := expandTrSet(sets[0])
	var to string
	if len(sets) > 1 {
		to = expandTrSet(sets[1])
	}
	data, err := io.ReadAll(c.Stdin)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var b strings.Builder
	var last rune = -1
	for _, r := range string(data) {
		idx := strings.IndexRune(from, r)
		switch {
		case idx < 0:
			b.WriteRune(r)
			last = -1
			continue
		case deleteMode:
			continue
		case idx < len(to):
			nr := rune(to[idx])
			if squeeze && nr == last {
				continue
			}
			b.WriteRune(nr)
			last = nr
			continue
		default:
			b.WriteRune(r)
		}
	}
	fmt.Fprint(c.Stdout, b.String())
	return nil
}

func expandTrSet(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		if i+2 < len(rs) && rs[i+1] == '-' {
			for r := rs[i]; r <= rs[i+2]; r++ {
				b.WriteRune(r)
			}
			i += 2
			continue
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

func wcBuiltin(c *Context) error {
	var lines, words, bytesOnly bool
	var paths []string
	for _, a := range c.Args[1:] {
		switch a {
		case "-l":
			lines = true
		case "-w":
			words = true
		case "-c":
			bytesOnly = true
		default:
			paths = append(paths, a)
		}
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for i, in := range inputs {
		nl := strings.Count(in, "\n")
		nw := len(strings.Fields(in))
		nb := len(in)
		switch {
		case lines:
			fmt.Fprintln(c.Stdout, nl)
		case words:
			fmt.Fprintln(c.Stdout, nw)
		case bytesOnly:
			fmt.Fprintln(c.Stdout, nb)
		default:
			name := ""
			if i < len(paths) {
				name = " " + paths[i]
			}
			fmt.Fprintf(c.Stdout, "%7d %7d %7d%s\n", nl, nw, nb, name)
		}
	}
	return nil
}

func headBuiltin(c *Context) error { return headTail(c, true) }
func tailBuiltin(c *Context) error { return headTail(c, false) }

func headTail(c *Context, head bool) error {
	n := 10
	var paths []string
	for i := 1; i < len(c.Args); i++ {
		a := c.Args[i]
		if a == "-n" && i+1 < len(c.Args) {
			i++
			n, _ = strconv.Atoi(c.Args[i])
			continue
		}
		if strings.HasPrefix(a, "-n") {
			n, _ = strconv.Atoi(strings.TrimPrefix(a, "-n"))
			continue
		}
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			if v, err := strconv.Atoi(a[1:]); err == nil {
				n = v
				continue
			}
		}
		paths = append(paths, a)
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for _, in := range inputs {
		all := splitLines(in)
		var out []string
		if head {
			if n > len(all) {
				n = len(all)
			}
			out = all[:n]
		} else {
			start := len(all) - n
			if start < 0 {
				start = 0
			}
			out = all[start:]
		}
		for _, l := range out {
			fmt.Fprintln(c.Stdout, l)
		}
	}
	return nil
}

func sortBuiltin(c *Context) error {
	var reverse, unique, numeric bool
	var paths []string
	for _, a := range c.Args[1:] {
		switch a {
		case "-r":
			reverse = true
		case "-u":
			unique = true
		case "-n":
			numeric = true
		default:
			paths = append(paths, a)
		}
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var lines []string
	for _, in := range inputs {
		lines = append(lines, splitLines(in)...)
	}
	if numeric {
		sort.Slice(lines, func(i, j int) bool {
			ni, _ := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64)
			nj, _ := strconv.ParseFloat(strings.TrimSpace(lines[j]), 64)
			return ni < nj
		})
	} else {
		sort.Strings(lines)
	}
	if reverse {
		for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
			lines[i], lines[j] = lines[j], lines[i]
		}
	}
	if unique {
		lines = dedupe(lines)
	}
	for _, l := range lines {
		fmt.Fprintln(c.Stdout, l)
	}
	return nil
}

func dedupe(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range in {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func uniqBuiltin(c *Context) error {
	var count bool
	var paths []string
	for _, a := range c.Args[1:] {
		if a == "-c" {
			count = true
			continue
		}
		paths = append(paths, a)
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var lines []string
	for _, in := range inputs {
		lines = append(lines, splitLines(in)...)
	}
	i := 0
	for i < len(lines) {
		j := i + 1
		for j < len(lines) && lines[j] == lines[i] {
			j++
		}
		if count {
			fmt.Fprintf(c.Stdout, "%7d %s\n", j-i, lines[i])
		} else {
			fmt.Fprintln(c.Stdout, lines[i])
		}
		i = j
	}
	return nil
}

func nlBuiltin(c *Context) error {
	inputs, err := readAllInputs(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	n := 1
	for _, in := range inputs {
		for _, l := range splitLines(in) {
			fmt.Fprintf(c.Stdout, "%6d\t%s\n", n, l)
			n++
		}
	}
	return nil
}

func tacBuiltin(c *Context) error {
	inputs, err := readAllInputs(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var lines []string
	for _, in := range inputs {
		lines = append(lines, splitLines(in)...)
	}
	for i := len(lines) - 1; i >= 0; i-- {
		fmt.Fprintln(c.Stdout, lines[i])
	}
	return nil
}

func revBuiltin(c *Context) error {
	inputs, err := readAllInputs(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for _, in := range inputs {
		for _, l := range splitLines(in) {
			rs := []rune(l)
			for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
				rs[i], rs[j] = rs[j], rs[i]
			}
			fmt.Fprintln(c.Stdout, string(rs))
		}
	}
	return nil
}

func yesBuiltin(c *Context) error {
	text := "y"
	if len(c.Args) > 1 {
		text = strings.Join(c.Args[1:], " ")
	}
	for range make([]struct{}, 10000) {
		select {
		case <-c.Ctx.Done():
			return c.Ctx.Err()
		default:
		}
		fmt.Fprintln(c.Stdout, text)
	}
	return nil
}

func pasteBuiltin(c *Context) error {
	sep := "\t"
	var paths []string
	for i := 1; i < len(c.Args); i++ {
		if c.Args[i] == "-d" && i+1 < len(c.Args) {
			i++
			sep = c.Args[i]
			continue
		}
		paths = append(paths, c.Args[i])
	}
	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var cols [][]string
	maxLen := 0
	for _, in := range inputs {
		lines := splitLines(in)
		cols = append(cols, lines)
		if len(lines) > maxLen {
			maxLen = len(lines)
		}
	}
	for i := 0; i < maxLen; i++ {
		var row []string
		for _, col := range cols {
			if i < len(col) {
				row = append(row, col[i])
			} else {
				row = append(row, "")
			}
		}
		fmt.Fprintln(c.Stdout, strings.Join(row, sep))
	}
	return nil
}

// globMatch exposes pattern.Regexp for find's -name matching.
func globMatch(pat, name string) bool {
	expr, err := pattern.Regexp(pat, 0)
	if err != nil {
		return false
	}
	rx, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return false
	}
	return rx.MatchString(name)
}
