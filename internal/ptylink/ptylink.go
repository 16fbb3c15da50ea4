// Package ptylink exposes a hosted sketch's serial port as a pseudo-terminal
// device, so serial tooling (minicom, picocom, scripts) can talk to the
// sketch while the user's own terminal stays untouched.
//
// A link wraps the PTY master with ring buffers on both directions. Two
// background pumps move bytes between the rings and the master; the loop
// driver polls received bytes one at a time, and sketch output is queued
// without ever blocking the loop.
//
//	link, err := ptylink.New(&ptylink.Options{Logger: logger})
//	// link.Name() -> "/dev/pts/7", hand it to the user
//	// loop input:  link.PollByte()
//	// sketch output: link.Write(...)
package ptylink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srg/termino/internal/groutine"
)

const (
	// DefaultBufferSize is the per-direction ring capacity.
	DefaultBufferSize = 4096

	// DefaultPollTimeoutMs bounds how long the pumps wait for I/O readiness
	// before rechecking cancellation. Lower is more responsive on shutdown,
	// higher burns less CPU while idle.
	DefaultPollTimeoutMs = 50
)

// noopLogger discards everything; shared so silent links don't allocate one each.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Options configure a link. Zero values use the defaults above.
type Options struct {
	ReadCap       int            // ring capacity for bytes arriving from the peer
	WriteCap      int            // ring capacity for sketch output awaiting transmission
	PollTimeoutMs int            // pump poll timeout in milliseconds
	Logger        *logrus.Logger // nil = no-op logger
	SymlinkPath   string         // optional stable path symlinked to the slave device
}

// Link is a sketch-facing serial endpoint backed by a PTY.
type Link interface {
	io.WriteCloser

	// PollByte returns one received byte if any is buffered. It never
	// blocks; ok is false when the ring is empty.
	PollByte() (b byte, ok bool, err error)

	// Name is the slave device path (e.g. /dev/pts/7).
	Name() string

	// Stats returns instantaneous transfer counters.
	Stats() Stats
}

// Stats are transfer counters useful for monitoring and tests.
type Stats struct {
	ReadBuffered  int
	WriteBuffered int
	DroppedWrite  uint64
	ReadBytes     uint64
	WriteBytes    uint64
}

type ptyLink struct {
	logger        *logrus.Logger
	master        *os.File
	slave         *os.File
	slaveName     string
	symlinkPath   string
	pollTimeoutMs int

	readBuf  *ringbuffer.RingBuffer // bytes from the peer, awaiting PollByte
	writeBuf *ringbuffer.RingBuffer // sketch output, awaiting the write pump

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	droppedWrite atomic.Uint64
	readBytes    atomic.Uint64
	writeBytes   atomic.Uint64
}

// New creates the PTY pair, puts the slave into raw mode, and starts the
// transfer pumps. The slave stays open for the link's lifetime so the
// device node outlives peers that come and go.
func New(opts *Options) (Link, error) {
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	readCap := opts.ReadCap
	if readCap <= 0 {
		readCap = DefaultBufferSize
	}
	writeCap := opts.WriteCap
	if writeCap <= 0 {
		writeCap = DefaultBufferSize
	}
	pollTimeout := opts.PollTimeoutMs
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeoutMs
	}

	master, slave, err := createPTY()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &ptyLink{
		logger:        logger,
		master:        master,
		slave:         slave,
		slaveName:     slave.Name(),
		pollTimeoutMs: pollTimeout,
		readBuf:       ringbuffer.New(readCap),
		writeBuf:      ringbuffer.New(writeCap),
		ctx:           ctx,
		cancel:        cancel,
	}

	if opts.SymlinkPath != "" {
		if err := l.createSymlink(opts.SymlinkPath); err != nil {
			cancel()
			_ = master.Close()
			_ = slave.Close()
			return nil, err
		}
	}

	l.wg.Add(2)
	groutine.Go(ctx, "ptylink-read-pump", func(ctx context.Context) {
		l.readPump()
	})
	groutine.Go(ctx, "ptylink-write-pump", func(ctx context.Context) {
		l.writePump()
	})

	return l, nil
}

// createPTY opens a master/slave pair, makes the slave raw and the master
// non-blocking.
func createPTY() (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pty (check permissions and devpts): %w", err)
	}

	cleanup := func(cause error) error {
		if closeErr := master.Close(); closeErr != nil {
			cause = fmt.Errorf("%w (also failed to close master: %v)", cause, closeErr)
		}
		if closeErr := slave.Close(); closeErr != nil {
			cause = fmt.Errorf("%w (also failed to close slave: %v)", cause, closeErr)
		}
		return cause
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return nil, nil, cleanup(fmt.Errorf("failed to set pty slave %s to raw mode: %w", slave.Name(), err))
	}

	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return nil, nil, cleanup(fmt.Errorf("failed to set pty master nonblocking: %w", err))
	}

	return master, slave, nil
}

func (l *ptyLink) createSymlink(path string) error {
	// Replace a stale link from a previous run, but never clobber a
	// non-symlink file.
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("symlink target %s exists and is not a symlink", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove stale symlink %s: %w", path, err)
		}
	}
	if err := os.Symlink(l.slaveName, path); err != nil {
		return fmt.Errorf("failed to create symlink %s -> %s: %w", path, l.slaveName, err)
	}
	l.symlinkPath = path
	l.logger.WithField("symlink", path).Debug("created pty symlink")
	return nil
}

// readPump moves bytes master -> readBuf.
func (l *ptyLink) readPump() {
	defer l.wg.Done()

	master := l.master
	fd := int(master.Fd())
	pollFd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		nReady, err := unix.Poll(pollFd, l.pollTimeoutMs)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			l.logger.WithError(err).Warn("read pump poll error")
			continue
		}
		if nReady == 0 {
			continue
		}

		n, err := master.Read(buf)
		if n > 0 {
			written, writeErr := l.readBuf.Write(buf[:n])
			if writeErr != nil && !errors.Is(writeErr, ringbuffer.ErrIsFull) {
				l.logger.WithError(writeErr).Warn("read pump enqueue error")
				continue
			}
			if written < n {
				l.logger.WithField("dropped", n-written).Warn("read ring overflow, peer bytes dropped")
			}
			l.readBytes.Add(uint64(written))
		}

		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK), errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
				l.logger.Debug("read pump exiting: master closed")
				return
			case errors.Is(err, io.EOF):
				l.logger.Debug("read pump exiting: EOF")
				return
			case errors.Is(err, syscall.EIO):
				// Expected when the last peer closes the slave on Linux.
				l.logger.Debug("read pump exiting: EIO (peer closed)")
				return
			default:
				l.logger.WithError(err).Warn("read pump exiting on error")
				return
			}
		}
	}
}

// writePump moves bytes writeBuf -> master.
func (l *ptyLink) writePump() {
	defer l.wg.Done()

	master := l.master
	fd := int(master.Fd())
	pollFd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		if l.writeBuf.IsEmpty() {
			// Nothing queued; sleep one poll interval, then recheck
			// cancellation and the ring.
			time.Sleep(time.Duration(l.pollTimeoutMs) * time.Millisecond)
			continue
		}

		n, err := l.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			l.logger.WithError(err).Warn("write pump dequeue error")
			continue
		}
		if n == 0 {
			continue
		}

		offset := 0
		for offset < n {
			written, err := master.Write(buf[offset:n])
			if written > 0 {
				offset += written
				l.writeBytes.Add(uint64(written))
			}
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
				if _, pollErr := unix.Poll(pollFd, l.pollTimeoutMs); pollErr != nil && !errors.Is(pollErr, syscall.EINTR) {
					l.logger.WithError(pollErr).Warn("write pump poll error")
				}
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
				l.logger.Debug("write pump exiting: master closed")
				return
			default:
				l.logger.WithError(err).Warn("write pump exiting on error")
				return
			}
		}
	}
}

// PollByte pops one buffered input byte without blocking.
func (l *ptyLink) PollByte() (byte, bool, error) {
	if l.closed.Load() {
		return 0, false, os.ErrClosed
	}

	var b [1]byte
	n, err := l.readBuf.TryRead(b[:])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return b[0], true, nil
}

// Write queues sketch output for transmission. Never blocks: when the ring
// is full the overflow is dropped and counted, which beats stalling the
// sketch loop behind a slow or absent peer.
func (l *ptyLink) Write(data []byte) (int, error) {
	if l.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	written, err := l.writeBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return written, err
	}
	if written < len(data) {
		dropped := len(data) - written
		l.droppedWrite.Add(uint64(dropped))
		l.logger.WithField("dropped", dropped).Debug("write ring overflow, sketch output dropped")
	}
	// Report everything as accepted: the ring is the accounting boundary,
	// and short writes would make fmt helpers error out needlessly.
	return len(data), nil
}

// Name returns the slave device path.
func (l *ptyLink) Name() string {
	return l.slaveName
}

// Stats returns instantaneous transfer counters.
func (l *ptyLink) Stats() Stats {
	return Stats{
		ReadBuffered:  l.readBuf.Length(),
		WriteBuffered: l.writeBuf.Length(),
		DroppedWrite:  l.droppedWrite.Load(),
		ReadBytes:     l.readBytes.Load(),
		WriteBytes:    l.writeBytes.Load(),
	}
}

// Close stops the pumps, closes both PTY ends and removes the symlink.
func (l *ptyLink) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	l.cancel()

	// Closing the FDs unblocks pump I/O with EBADF. os.File.Close always
	// releases the descriptor even when it reports an error.
	if err := l.master.Close(); err != nil {
		l.logger.WithError(err).Warn("failed to close pty master")
	}
	if err := l.slave.Close(); err != nil {
		l.logger.WithError(err).Warn("failed to close pty slave")
	}

	done := make(chan struct{})
	groutine.Go(context.Background(), "ptylink-close-wait", func(ctx context.Context) {
		l.wg.Wait()
		close(done)
	})

	timeout := time.Duration(l.pollTimeoutMs)*time.Millisecond*2 + time.Second
	select {
	case <-done:
	case <-time.After(timeout):
		l.logger.Error("timed out waiting for pty pumps to exit")
	}

	if l.symlinkPath != "" {
		if err := os.Remove(l.symlinkPath); err != nil && !os.IsNotExist(err) {
			l.logger.WithError(err).Warn("failed to remove pty symlink")
		}
	}

	return nil
}
