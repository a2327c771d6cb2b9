package builtin

import (
	"io"
	"strings"
)

func init() {
	Register("xargs", xargsBuiltin)
	Register("tee", teeBuiltin)
	Register("watch", watchBuiltin)
}

func xargsBuiltin(c *Context) error {
	if len(c.Args) < 2 {
		c.Errorf("missing command")
		return ExitStatus(2)
	}
	cmdName := c.Args[1]
	fn, ok := Lookup(cmdName)
	if !ok {
		c.Errorf("%s: command not found", cmdName)
		return ExitStatus(127)
	}
	data, err := io.ReadAll(c.Stdin)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	extra := strings.Fields(string(data))
	sub := *c
	sub.Args = append(append([]string{cmdName}, c.Args[2:]...), extra...)
	return fn(&sub)
}

func teeBuiltin(c *Context) error {
	append_ := false
	var paths []string
	for _, a := range c.Args[1:] {
		if a == "-a" {
			append_ = true
			continue
		}
		paths = append(paths, a)
	}
	data, err := io.ReadAll(c.Stdin)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	c.Stdout.Write(data)
	for _, p := range paths {
		full := vfsPath(c, p)
		if append_ {
			if err := c.FS.AppendFile(full, data); err != nil {
				c.Errorf("%v", err)
				return ExitStatus(1)
			}
			continue
		}
		if err := c.FS.WriteFile(full, data, 0o644); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	}
	return nil
}

// watchBuiltin runs its command once: a sandboxed execution has no
// interactive terminal to repaint, so unlike real watch it does not loop
// forever, bounded instead by the engine's own execution timeout.
func watchBuiltin(c *Context) error {
	if len(c.Args) < 2 {
		c.Errorf("missing command")
		return ExitStatus(2)
	}
	fn, ok := Lookup(c.Args[1])
	if !ok {
		c.Errorf("%s: command not found", c.Args[1])
		return ExitStatus(127)
	}
	sub := *c
	sub.Args = c.Args[1:]
	return fn(&sub)
}
