package bashkit

import (
	"context"
	"io"
	"io/fs"
	"os"

	"github.com/bashkit-sh/bashkit/vfs"
	"github.com/bashkit-sh/bashkit/interp"
)

// statHandler and readDirHandler are direct passthroughs: vfs.FS already
// returns the same io/fs types interp.StatHandlerFunc and
// interp.ReadDirHandlerFunc2 expect, since both were modeled on the
// teacher's existing handler shape.

func statHandler(vf vfs.FS) interp.StatHandlerFunc {
	return func(ctx context.Context, name string, followSymlinks bool) (fs.FileInfo, error) {
		return vf.Stat(name, followSymlinks)
	}
}

func readDirHandler(vf vfs.FS) interp.ReadDirHandlerFunc2 {
	return func(ctx context.Context, path string) ([]fs.DirEntry, error) {
		return vf.ReadDir(path)
	}
}

// readlinkHandler backs "pwd -P" and friends: vf.Readlink already returns
// the stored target string, so this is a direct passthrough too.
func readlinkHandler(vf vfs.FS) interp.ReadlinkHandlerFunc {
	return func(ctx context.Context, path string) (string, error) {
		return vf.Readlink(path)
	}
}

// openHandler bridges interp's single read/write/append file descriptor
// abstraction onto vfs.FS's whole-file read/write/append operations: a
// sandboxed in-memory file is small enough that buffering it entirely in
// memory between Open and Close, rather than streaming, is the simpler and
// idiomatic choice here.
func openHandler(vf vfs.FS) interp.OpenHandlerFunc {
	return func(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
		switch {
		case flag&os.O_APPEND != 0:
			return &vfsWriteCloser{fs: vf, path: path, appendMode: true}, nil
		case flag&(os.O_WRONLY|os.O_RDWR) != 0:
			if flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 && vf.Exists(path) {
				return nil, &vfs.Error{Kind: vfs.ErrExist, Path: path}
			}
			return &vfsWriteCloser{fs: vf, path: path, perm: perm}, nil
		default:
			data, err := vf.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return &vfsReadCloser{data: data}, nil
		}
	}
}

type vfsReadCloser struct {
	data []byte
	pos  int
}

func (r *vfsReadCloser) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *vfsReadCloser) Write([]byte) (int, error) {
	return 0, &fs.PathError{Op: "write", Path: "", Err: fs.ErrInvalid}
}

func (r *vfsReadCloser) Close() error { return nil }

// vfsWriteCloser buffers every write and flushes once on Close, since
// vfs.FS's WriteFile/AppendFile operate on a whole file at a time.
type vfsWriteCloser struct {
	fs         vfs.FS
	path       string
	perm       os.FileMode
	appendMode bool
	buf        []byte
}

func (w *vfsWriteCloser) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: w.path, Err: fs.ErrInvalid}
}

func (w *vfsWriteCloser) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *vfsWriteCloser) Close() error {
	perm := w.perm
	if perm == 0 {
		perm = 0o644
	}
	if w.appendMode {
		return w.fs.AppendFile(w.path, w.buf)
	}
	return w.fs.WriteFile(w.path, w.buf, perm)
}
