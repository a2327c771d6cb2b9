// Package gitplugin wires a subset of git (init, add, commit, status, log)
// onto the engine's virtual filesystem. It is the "version control
// (plug-in)" row of SPEC_FULL.md's builtin catalog: go-git/go-git/v5 does
// the real work, driven through a go-billy/v5 [billy.Filesystem] adapter
// ([FS]) that forwards every operation to the same [vfs.FS] the rest of
// the engine uses, so files "cat"/"echo >" wrote are exactly what "git
// add" sees.
package gitplugin

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/bashkit-sh/bashkit/vfs"
)

// Handle is the collaborator package builtin's "git" builtin drives
// (satisfying builtin.GitHandle). One Handle is bound to one [vfs.FS] and
// is safe to reuse across an Engine's lifetime.
type Handle struct {
	fs     vfs.FS
	wt     billy.Filesystem
	dotGit billy.Filesystem
	author object.Signature
}

// New builds a Handle over fs. The .git database itself lives in an
// in-memory go-billy filesystem (memfs), since it is implementation detail
// the sandboxed script never inspects directly; the working tree is the
// adapted vfs.FS, so script-visible files and git's view of them agree.
func New(fs vfs.FS, authorName, authorEmail string) *Handle {
	return &Handle{
		fs:     fs,
		wt:     NewFS(fs, "/"),
		dotGit: memfs.New(),
		author: object.Signature{Name: authorName, Email: authorEmail},
	}
}

func (h *Handle) open() (*git.Repository, error) {
	storer := filesystem.NewStorage(h.dotGit, nil)
	repo, err := git.Open(storer, h.wt)
	if err == git.ErrRepositoryNotExists {
		return git.Init(storer, h.wt)
	}
	return repo, err
}

// Run dispatches one git subcommand the same way package builtin's other
// external-program-shaped builtins do: args[0] is the subcommand name.
func (h *Handle) Run(ctx context.Context, dir string, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "git: missing subcommand")
		return fmt.Errorf("missing subcommand")
	}
	repo, err := h.open()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return err
	}
	switch args[0] {
	case "init":
		fmt.Fprintln(stdout, "Initialized empty Git repository")
		return nil
	case "add":
		paths := args[1:]
		if len(paths) == 0 || paths[0] == "." {
			_, err = wt.Add(".")
			return loggedErr(stderr, err)
		}
		for _, p := range paths {
			if _, err := wt.Add(strings.TrimPrefix(p, "./")); err != nil {
				return loggedErr(stderr, err)
			}
		}
		return nil
	case "commit":
		msg := commitMessage(args[1:])
		sig := h.author
		sig.When = time.Now()
		_, err = wt.Commit(msg, &git.CommitOptions{Author: &sig})
		return loggedErr(stderr, err)
	case "status":
		st, err := wt.Status()
		if err != nil {
			return loggedErr(stderr, err)
		}
		fmt.Fprint(stdout, st.String())
		return nil
	case "log":
		iter, err := repo.Log(&git.LogOptions{})
		if err != nil {
			return loggedErr(stderr, err)
		}
		return iter.ForEach(func(c *object.Commit) error {
			fmt.Fprintf(stdout, "commit %s\nAuthor: %s <%s>\n\n    %s\n\n",
				c.Hash, c.Author.Name, c.Author.Email, strings.TrimSpace(c.Message))
			return nil
		})
	default:
		fmt.Fprintf(stderr, "git: unsupported subcommand %q\n", args[0])
		return fmt.Errorf("unsupported subcommand %q", args[0])
	}
}

func commitMessage(args []string) string {
	for i, a := range args {
		if a == "-m" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return "commit"
}

func loggedErr(w io.Writer, err error) error {
	if err != nil {
		fmt.Fprintln(w, err)
	}
	return err
}
