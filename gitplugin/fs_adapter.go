package gitplugin

import (
	"bytes"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/bashkit-sh/bashkit/vfs"
)

// adapter implements billy.Filesystem over a vfs.FS, rooted at root. This
// is the concrete "go-billy/v5 filesystem adapter that forwards to the
// same vfs.FS the rest of the engine uses" SPEC_FULL.md §4.4 names.
type adapter struct {
	fs   vfs.FS
	root string
}

// NewFS returns a billy.Filesystem backing go-git's worktree with fs,
// rooted at root (an absolute virtual path).
func NewFS(fs vfs.FS, root string) billy.Filesystem {
	return &adapter{fs: fs, root: root}
}

func (a *adapter) resolve(filename string) string {
	return vfs.Clean(a.root, filename)
}

func (a *adapter) Create(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (a *adapter) Open(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_RDONLY, 0)
}

func (a *adapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	full := a.resolve(filename)
	var data []byte
	if a.fs.Exists(full) {
		d, err := a.fs.ReadFile(full)
		if err != nil {
			return nil, err
		}
		data = d
	} else if flag&os.O_CREATE == 0 {
		return nil, os.ErrNotExist
	}
	return &file{fs: a.fs, path: full, perm: perm, buf: *bytes.NewBuffer(data)}, nil
}

func (a *adapter) Stat(filename string) (os.FileInfo, error) {
	return a.fs.Stat(a.resolve(filename), true)
}

func (a *adapter) Lstat(filename string) (os.FileInfo, error) {
	return a.fs.Stat(a.resolve(filename), false)
}

func (a *adapter) Rename(oldpath, newpath string) error {
	return a.fs.Rename(a.resolve(oldpath), a.resolve(newpath))
}

func (a *adapter) Remove(filename string) error {
	return a.fs.Remove(a.resolve(filename))
}

func (a *adapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (a *adapter) TempFile(dir, prefix string) (billy.File, error) {
	name := a.Join(dir, prefix+"tmp")
	return a.Create(name)
}

func (a *adapter) ReadDir(dirPath string) ([]os.FileInfo, error) {
	entries, err := a.fs.ReadDir(a.resolve(dirPath))
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (a *adapter) MkdirAll(filename string, perm os.FileMode) error {
	full := a.resolve(filename)
	if info, err := a.fs.Stat(full, true); err == nil {
		if info.IsDir() {
			return nil
		}
		return os.ErrExist
	}
	if parent := path.Dir(full); parent != full {
		if err := a.MkdirAll(parent, perm); err != nil {
			return err
		}
	}
	return a.fs.Mkdir(full, perm)
}

func (a *adapter) Symlink(target, link string) error {
	return a.fs.Symlink(target, a.resolve(link))
}

func (a *adapter) Readlink(link string) (string, error) {
	return a.fs.Readlink(a.resolve(link))
}

func (a *adapter) Chroot(dirPath string) (billy.Filesystem, error) {
	return &adapter{fs: a.fs, root: a.resolve(dirPath)}, nil
}

func (a *adapter) Root() string {
	return a.root
}

// file implements billy.File by buffering content in memory and flushing
// once on Close, the same shape bashkit's own vfsWriteCloser uses for
// interp's OpenHandlerFunc seam.
type file struct {
	fs     vfs.FS
	path   string
	perm   os.FileMode
	buf    bytes.Buffer
	pos    int64
	closed bool
}

func (f *file) Name() string { return f.path }

func (f *file) Write(p []byte) (int, error) {
	data := f.buf.Bytes()
	end := int(f.pos) + len(p)
	if end > len(data) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[f.pos:], p)
	f.buf = *bytes.NewBuffer(data)
	f.pos += int64(len(p))
	return len(p), nil
}

func (f *file) Read(p []byte) (int, error) {
	data := f.buf.Bytes()
	if f.pos >= int64(len(data)) {
		return 0, os.ErrClosed
	}
	n := copy(p, data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	data := f.buf.Bytes()
	if off >= int64(len(data)) {
		return 0, os.ErrClosed
	}
	n := copy(p, data[off:])
	return n, nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		f.pos = offset
	case 1:
		f.pos += offset
	case 2:
		f.pos = int64(f.buf.Len()) + offset
	}
	return f.pos, nil
}

func (f *file) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.fs.WriteFile(f.path, f.buf.Bytes(), f.perm)
}

func (f *file) Lock() error   { return nil }
func (f *file) Unlock() error { return nil }

func (f *file) Truncate(size int64) error {
	data := f.buf.Bytes()
	if int64(len(data)) > size {
		data = data[:size]
	}
	f.buf = *bytes.NewBuffer(data)
	return nil
}
