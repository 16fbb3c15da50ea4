package sketch

import (
	"errors"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// FilePoller reads single bytes from a file. A zero-timeout poll in front of
// every read keeps the loop from stalling on a quiet pipe, and the raw-mode
// VMIN=0/VTIME=0 configuration makes terminal reads return immediately too.
type FilePoller struct {
	f      *os.File
	pollFd []unix.PollFd
	buf    [1]byte
}

// NewFilePoller wraps f (os.Stdin when nil).
func NewFilePoller(f *os.File) *FilePoller {
	if f == nil {
		f = os.Stdin
	}
	return &FilePoller{
		f:      f,
		pollFd: []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}},
	}
}

// PollByte returns the next available byte, if any. End-of-file is not an
// error: a drained source simply never yields bytes again, and the loop
// keeps running on callbacks alone.
func (p *FilePoller) PollByte() (byte, bool, error) {
	n, err := unix.Poll(p.pollFd, 0)
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	nr, err := p.f.Read(p.buf[:1])
	if nr == 1 {
		return p.buf[0], true, nil
	}

	switch {
	case err == nil, errors.Is(err, io.EOF):
		return 0, false, nil
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return 0, false, nil
	default:
		return 0, false, err
	}
}
