package builtin

func init() {
	Register("git", gitBuiltin)
}

// gitBuiltin forwards to the Builder-configured GitHandle, which wraps
// go-git/go-git/v5 over a go-billy/v5 filesystem adapter bound to the same
// vfs.FS the rest of the engine uses (see bashkit's gitplugin package).
// Unconfigured, it fails closed like the network builtins do.
func gitBuiltin(c *Context) error {
	if c.Git == nil {
		c.Errorf("git support is not enabled for this engine")
		return ExitStatus(127)
	}
	if err := c.Git.Run(c.Ctx, c.Dir, c.Args[1:], c.Stdout, c.Stderr); err != nil {
		return ExitStatus(1)
	}
	return nil
}
