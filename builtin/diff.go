package builtin

import (
	"fmt"
	"strings"

	"github.com/pkg/diff"
)

func init() {
	Register("diff", diffBuiltin)
	Register("comm", commBuiltin)
	Register("column", columnBuiltin)
}

// diffBuiltin prints a unified diff between two files, using the
// teacher's own diff-mode dependency (the same one cmd/shfmt's -d flag
// uses) rather than hand-writing an LCS implementation.
func diffBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if strings.HasPrefix(a, "-") {
			continue
		}
		paths = append(paths, a)
	}
	if len(paths) != 2 {
		c.Errorf("usage: diff FILE1 FILE2")
		return ExitStatus(2)
	}
	aData, err := c.FS.ReadFile(vfsPath(c, paths[0]))
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	bData, err := c.FS.ReadFile(vfsPath(c, paths[1]))
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	aText, bText := string(aData), string(bData)
	if aText == bText {
		return nil
	}
	if err := diff.Text(paths[0], paths[1], aText, bText, c.Stdout); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	return ExitStatus(1)
}

func commBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	if len(paths) != 2 {
		c.Errorf("usage: comm FILE1 FILE2")
		return ExitStatus(2)
	}
	aData, err := c.FS.ReadFile(vfsPath(c, paths[0]))
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	bData, err := c.FS.ReadFile(vfsPath(c, paths[1]))
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	aSet := map[string]bool{}
	for _, l := range splitLines(string(aData)) {
		aSet[l] = true
	}
	bSet := map[string]bool{}
	for _, l := range splitLines(string(bData)) {
		bSet[l] = true
	}
	for l := range aSet {
		if !bSet[l] {
			fmt.Fprintln(c.Stdout, l)
		}
	}
	for l := range bSet {
		if !aSet[l] {
			fmt.Fprintln(c.Stdout, "\t"+l)
		}
	}
	for l := range aSet {
		if bSet[l] {
			fmt.Fprintln(c.Stdout, "\t\t"+l)
		}
	}
	return nil
}

func columnBuiltin(c *Context) error {
	inputs, err := readAllInputs(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var rows [][]string
	widths := map[int]int{}
	for _, in := range inputs {
		for _, line := range splitLines(in) {
			cols := strings.Fields(line)
			rows = append(rows, cols)
			for i, col := range cols {
				if len(col) > widths[i] {
					widths[i] = len(col)
				}
			}
		}
	}
	for _, row := range rows {
		for i, col := range row {
			if i == len(row)-1 {
				fmt.Fprint(c.Stdout, col)
				continue
			}
			fmt.Fprintf(c.Stdout, "%-*s  ", widths[i], col)
		}
		fmt.Fprintln(c.Stdout)
	}
	return nil
}
