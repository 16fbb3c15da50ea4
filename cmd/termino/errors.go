package main

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// FormatUserError rewrites the failure chains users actually hit into
// actionable messages. Anything unrecognized passes through verbatim so the
// wrapped context built up by the commands is never lost.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return fmt.Sprintf("%s: no such file (pass the path of a sketch script, or run without one for the built-in echo sketch)", pathErr.Path)
		}
		return fmt.Sprintf("%s (pass the path of a sketch script, or run without one for the built-in echo sketch)", err)

	case errors.Is(err, syscall.ENOTTY):
		return fmt.Sprintf("%s (stdin is not a terminal; pipe the input or use --pty to serve the sketch on a pseudo-terminal)", err)

	case errors.Is(err, fs.ErrPermission):
		return fmt.Sprintf("%s (check permissions on the device node and the symlink path)", err)
	}
	return err.Error()
}
