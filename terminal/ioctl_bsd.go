//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package terminal

import "golang.org/x/sys/unix"

// tcgetattr/tcsetattr ioctl requests, BSD spelling. The set variant drains
// pending output and discards unread input before applying (TCSAFLUSH
// semantics).
const (
	ioctlGetTermios      = unix.TIOCGETA
	ioctlSetTermiosFlush = unix.TIOCSETAF
)
