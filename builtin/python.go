package builtin

func init() {
	Register("python", pythonBuiltin)
	Register("python3", pythonBuiltin)
}

// pythonBuiltin forwards to a Builder-configured PythonHandle. The core
// never embeds a Python interpreter itself; unconfigured, this reports
// 127 ("command not found"), matching how bash behaves when a named
// interpreter isn't installed.
func pythonBuiltin(c *Context) error {
	if c.Python == nil {
		c.Errorf("command not found")
		return ExitStatus(127)
	}
	code, err := c.Python.Run(c.Ctx, c.Dir, c.Args[1:], c.Stdin, c.Stdout, c.Stderr)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	if code != 0 {
		return ExitStatus(code)
	}
	return nil
}
