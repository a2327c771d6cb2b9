// Package pyplugin defines the contract a host implements to let scripts
// call out to a real Python runtime via the "python"/"python3" builtins.
// Per spec.md §1, Python embedding is a plug-in the core merely talks to,
// not an interpreter the core implements: this package ships the
// interface and a "not configured" stub only.
package pyplugin

import (
	"context"
	"fmt"
	"io"
)

// Handle is the collaborator package builtin's python/python3 builtins
// drive (satisfying builtin.PythonHandle). A host that wants Python
// support implements Run against whatever runtime it trusts (a subprocess
// pool, a WASM build of CPython, a remote sandbox) and passes the result
// to bashkit.WithPython.
type Handle interface {
	Run(ctx context.Context, dir string, args []string, stdin io.Reader, stdout, stderr io.Writer) (exitCode int, err error)
}

// NotConfigured is the stub Handle bashkit never installs by default; a
// Builder only sets a Python Handle when a host explicitly calls
// bashkit.WithPython, so unconfigured engines have a nil Python field
// instead of this stub (see builtin.pythonBuiltin). It is exported for
// hosts that want an explicit "always 127" Handle instead of leaving the
// field nil, e.g. to keep python present in the builtin catalog while
// still refusing every invocation with a descriptive message.
type NotConfigured struct{}

func (NotConfigured) Run(ctx context.Context, dir string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	fmt.Fprintln(stderr, "python: no Python runtime configured for this engine")
	return 127, nil
}
