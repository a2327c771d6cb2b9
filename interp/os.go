// Copyright (c) 2017, Andrey Nering <andrey.nering@gmail.com>
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
)

const (
	access_R_OK = 0x4
	access_W_OK = 0x2
	access_X_OK = 0x1
)

// access checks permission bits from the VFS-backed [io/fs.FileInfo] rather
// than a real access(2) syscall against a real path: this Runner's only
// filesystem is whatever backing store the host configured through the stat
// handler, which has no concept of a host uid/gid to check a real syscall
// against, and a virtual path happening to collide with a real one on host
// disk must never leak real permission information into a sandboxed script.
func (r *Runner) access(ctx context.Context, path string, mode uint32) error {
	info, err := r.lstat(ctx, path)
	if err != nil {
		return err
	}
	m := info.Mode()
	switch mode {
	case access_R_OK:
		if m&0o400 == 0 {
			return fmt.Errorf("file is not readable")
		}
	case access_W_OK:
		if m&0o200 == 0 {
			return fmt.Errorf("file is not writable")
		}
	case access_X_OK:
		if m&0o100 == 0 {
			return fmt.Errorf("file is not executable")
		}
	}
	return nil
}
