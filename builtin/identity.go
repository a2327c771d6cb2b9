package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bashkit-sh/bashkit/expand"
)

func init() {
	Register("whoami", whoamiBuiltin)
	Register("hostname", hostnameBuiltin)
	Register("uname", unameBuiltin)
	Register("id", idBuiltin)
	Register("env", envBuiltin)
	Register("printenv", envBuiltin)
	Register("df", dfBuiltin)
	Register("du", duBuiltin)
}

// Identity is the builder-configured identity the system-identity stub
// builtins report. It deliberately never reflects the host process: a
// sandboxed script must see the same "sandbox" user/host no matter which
// real machine happens to be running the engine, so that script output is
// reproducible across hosts and leaks nothing about the deployment.
type Identity struct {
	User string
	Host string
	OS   string
}

// DefaultIdentity is used whenever a Context's Identity field is the zero
// value.
var DefaultIdentity = Identity{User: "sandbox", Host: "bashkit-sandbox", OS: "bashkit"}

func (c *Context) identity() Identity {
	if c.IdentityOverride != (Identity{}) {
		return c.IdentityOverride
	}
	return DefaultIdentity
}

func whoamiBuiltin(c *Context) error {
	fmt.Fprintln(c.Stdout, c.identity().User)
	return nil
}

func hostnameBuiltin(c *Context) error {
	fmt.Fprintln(c.Stdout, c.identity().Host)
	return nil
}

func unameBuiltin(c *Context) error {
	all := false
	for _, a := range c.Args[1:] {
		if a == "-a" {
			all = true
		}
	}
	id := c.identity()
	if all {
		fmt.Fprintf(c.Stdout, "%s %s\n", id.OS, id.Host)
		return nil
	}
	fmt.Fprintln(c.Stdout, id.OS)
	return nil
}

func idBuiltin(c *Context) error {
	fmt.Fprintf(c.Stdout, "uid=1000(%s) gid=1000(%s)\n", c.identity().User, c.identity().User)
	return nil
}

func envBuiltin(c *Context) error {
	var names []string
	c.Env.Each(func(name string, vr expand.Variable) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	for _, name := range names {
		vr := c.Env.Get(name)
		fmt.Fprintf(c.Stdout, "%s=%s\n", name, vr.String())
	}
	return nil
}

func dfBuiltin(c *Context) error {
	fmt.Fprintln(c.Stdout, "Filesystem      Size  Used Avail Use% Mounted on")
	fmt.Fprintf(c.Stdout, "bashkit-vfs     %s     -     -   -  /\n", humanize.Bytes(0))
	return nil
}

func duBuiltin(c *Context) error {
	var paths []string
	human := false
	for _, a := range c.Args[1:] {
		if a == "-h" {
			human = true
			continue
		}
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		size := duWalk(c, vfsPath(c, p))
		if human {
			fmt.Fprintf(c.Stdout, "%s\t%s\n", humanize.Bytes(uint64(size)), p)
		} else {
			fmt.Fprintf(c.Stdout, "%d\t%s\n", size, p)
		}
	}
	return nil
}

func duWalk(c *Context, p string) int64 {
	info, err := c.FS.Stat(p, false)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	entries, err := c.FS.ReadDir(p)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		total += duWalk(c, p+"/"+e.Name())
	}
	return total
}
