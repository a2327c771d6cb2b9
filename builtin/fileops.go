package builtin

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/bashkit-sh/bashkit/fileutil"
)

func init() {
	Register("mkdir", mkdirBuiltin)
	Register("rm", rmBuiltin)
	Register("rmdir", rmBuiltin)
	Register("cp", cpBuiltin)
	Register("mv", mvBuiltin)
	Register("touch", touchBuiltin)
	Register("chmod", chmodBuiltin)
	Register("ln", lnBuiltin)
	Register("ls", lsBuiltin)
	Register("find", findBuiltin)
	Register("stat", statBuiltin)
	Register("file", fileBuiltin)
	Register("mktemp", mktempBuiltin)
	Register("realpath", realpathBuiltin)
	Register("basename", basenameBuiltin)
	Register("dirname", dirnameBuiltin)
}

func mkdirBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	for _, p := range paths {
		if err := c.FS.Mkdir(vfsPath(c, p), 0o755); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	}
	return nil
}

func rmBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	for _, p := range paths {
		if err := c.FS.Remove(vfsPath(c, p)); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	}
	return nil
}

func cpBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	if len(paths) != 2 {
		c.Errorf("usage: cp SRC DST")
		return ExitStatus(2)
	}
	data, err := c.FS.ReadFile(vfsPath(c, paths[0]))
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	if err := c.FS.WriteFile(vfsPath(c, paths[1]), data, 0o644); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	return nil
}

func mvBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	if len(paths) != 2 {
		c.Errorf("usage: mv SRC DST")
		return ExitStatus(2)
	}
	if err := c.FS.Rename(vfsPath(c, paths[0]), vfsPath(c, paths[1])); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	return nil
}

func touchBuiltin(c *Context) error {
	var paths []string
	for _, a := range c.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			paths = append(paths, a)
		}
	}
	for _, p := range paths {
		full := vfsPath(c, p)
		if c.FS.Exists(full) {
			data, err := c.FS.ReadFile(full)
			if err == nil {
				c.FS.WriteFile(full, data, 0o644)
			}
			continue
		}
		if err := c.FS.WriteFile(full, nil, 0o644); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	}
	return nil
}

func chmodBuiltin(c *Context) error {
	// The in-memory VFS tracks permission bits only through WriteFile's
	// perm argument at creation time; chmod on an existing virtual file
	// is a no-op that still validates the target exists, since there is
	// no real inode to mutate.
	args := c.Args[1:]
	if len(args) < 2 {
		c.Errorf("usage: chmod MODE FILE...")
		return ExitStatus(2)
	}
	for _, p := range args[1:] {
		if !c.FS.Exists(vfsPath(c, p)) {
			c.Errorf("%s: no such file", p)
			return ExitStatus(1)
		}
	}
	return nil
}

func lnBuiltin(c *Context) error {
	symbolic := false
	var paths []string
	for _, a := range c.Args[1:] {
		if a == "-s" {
			symbolic = true
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		paths = append(paths, a)
	}
	if len(paths) != 2 {
		c.Errorf("usage: ln [-s] TARGET LINKNAME")
		return ExitStatus(2)
	}
	if !symbolic {
		c.Errorf("only symbolic links are supported in the sandbox")
		return ExitStatus(1)
	}
	if err := c.FS.Symlink(paths[0], vfsPath(c, paths[1])); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	return nil
}

func lsBuiltin(c *Context) error {
	human := false
	var paths []string
	for _, a := range c.Args[1:] {
		switch {
		case a == "-h":
			human = true
		case strings.HasPrefix(a, "-"):
		default:
			paths = append(paths, a)
		}
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		entries, err := c.FS.ReadDir(vfsPath(c, p))
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		for _, e := range entries {
			if human {
				info, err := e.Info()
				if err == nil {
					fmt.Fprintf(c.Stdout, "%s\t%s\n", humanize.Bytes(uint64(info.Size())), e.Name())
					continue
				}
			}
			fmt.Fprintln(c.Stdout, e.Name())
		}
	}
	return nil
}

func findBuiltin(c *Context) error {
	args := c.Args[1:]
	root := "."
	var namePat string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-name":
			if i+1 < len(args) {
				i++
				namePat = args[i]
			}
		default:
			if !strings.HasPrefix(args[i], "-") {
				root = args[i]
			}
		}
	}
	var walk func(p string) error
	walk = func(p string) error {
		entries, err := c.FS.ReadDir(p)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			full := p + "/" + e.Name()
			if namePat == "" || globMatch(namePat, e.Name()) {
				fmt.Fprintln(c.Stdout, full)
			}
			if e.IsDir() {
				walk(full)
			}
		}
		return nil
	}
	start := vfsPath(c, root)
	if namePat == "" || globMatch(namePat, path.Base(start)) {
		fmt.Fprintln(c.Stdout, start)
	}
	return walk(start)
}

func statBuiltin(c *Context) error {
	paths := c.Args[1:]
	for _, p := range paths {
		info, err := c.FS.Stat(vfsPath(c, p), true)
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		fmt.Fprintf(c.Stdout, "  File: %s\n  Size: %d\tMode: %s\n", p, info.Size(), info.Mode())
	}
	return nil
}

func fileBuiltin(c *Context) error {
	paths := c.Args[1:]
	for _, p := range paths {
		full := vfsPath(c, p)
		info, err := c.FS.Stat(full, true)
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		kind := "ASCII text"
		switch {
		case info.IsDir():
			kind = "directory"
		default:
			if data, err := c.FS.ReadFile(full); err == nil {
				switch {
				case len(data) == 0:
					kind = "empty"
				case fileutil.HasShebang(data):
					kind = "shell script, ASCII text executable"
				case fileutil.CouldBeScript(info) == fileutil.ConfIsScript:
					kind = "shell script, ASCII text"
				case !utf8.Valid(data):
					kind = "data"
				}
			}
		}
		fmt.Fprintf(c.Stdout, "%s: %s\n", p, kind)
	}
	return nil
}
func mktempBuiltin(c *Context) error {
	dir := false
	pattern := "tmp.XXXXXX"
	for _, a := range c.Args[1:] {
		switch {
		case a == "-d":
			dir = true
		case !strings.HasPrefix(a, "-"):
			pattern = a
		}
	}
	name := strings.ReplaceAll(pattern, "XXXXXX", randomSuffix())
	full := vfsPath(c, name)
	if dir {
		if err := c.FS.Mkdir(full, 0o755); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	} else if err := c.FS.WriteFile(full, nil, 0o600); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	fmt.Fprintln(c.Stdout, full)
	return nil
}

func realpathBuiltin(c *Context) error {
	for _, p := range c.Args[1:] {
		fmt.Fprintln(c.Stdout, vfsPath(c, p))
	}
	return nil
}

func basenameBuiltin(c *Context) error {
	if len(c.Args) < 2 {
		c.Errorf("missing operand")
		return ExitStatus(2)
	}
	name := path.Base(c.Args[1])
	if len(c.Args) > 2 {
		name = strings.TrimSuffix(name, c.Args[2])
	}
	fmt.Fprintln(c.Stdout, name)
	return nil
}

func dirnameBuiltin(c *Context) error {
	if len(c.Args) < 2 {
		c.Errorf("missing operand")
		return ExitStatus(2)
	}
	fmt.Fprintln(c.Stdout, path.Dir(c.Args[1]))
	return nil
}

// randomSuffix backs mktemp's XXXXXX placeholder. It uses uuid rather than
// a counter so that concurrently-running Engines sharing no state still
// can't collide on a generated temp name.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
