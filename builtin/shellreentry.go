package builtin

func init() {
	Register("bash", shellReentryBuiltin)
	Register("sh", shellReentryBuiltin)
}

// shellReentryBuiltin implements "bash -c SCRIPT" / "sh -c SCRIPT" style
// re-entry by asking the engine to run SCRIPT as a nested script against
// the same VFS, handlers, and limits. Without a "-c", it treats its sole
// positional argument as a script path to source.
func shellReentryBuiltin(c *Context) error {
	if c.Reinvoke == nil {
		c.Errorf("shell re-entry is not supported in this context")
		return ExitStatus(127)
	}
	args := c.Args[1:]
	var script string
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" && i+1 < len(args) {
			script = args[i+1]
			rest = args[i+2:]
			break
		}
	}
	if script == "" && len(args) > 0 {
		data, err := c.FS.ReadFile(vfsPath(c, args[0]))
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(127)
		}
		script = string(data)
		rest = args[1:]
	}
	if script == "" {
		c.Errorf("usage: %s -c SCRIPT | %s SCRIPT_PATH", c.Args[0], c.Args[0])
		return ExitStatus(2)
	}
	code, err := c.Reinvoke(c, script, rest)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	if code != 0 {
		return ExitStatus(code)
	}
	return nil
}
