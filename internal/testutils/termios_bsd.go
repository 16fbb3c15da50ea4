//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package testutils

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETAF
)
