//go:build linux

package terminal

import "golang.org/x/sys/unix"

// tcgetattr/tcsetattr ioctl requests. The set variant drains pending output
// and discards unread input before applying (TCSAFLUSH semantics), so mode
// switches never leave half-processed keystrokes behind.
const (
	ioctlGetTermios      = unix.TCGETS
	ioctlSetTermiosFlush = unix.TCSETSF
)
