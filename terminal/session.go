// Package terminal owns the controlling terminal's line-discipline lifecycle
// for a hosted sketch: capture the cooked configuration once, switch to a
// raw-enough mode for byte-at-a-time input, and guarantee the captured
// configuration comes back no matter how the process ends.
//
// The guarantee rests on three cooperating pieces sharing one Session:
//
//	session := terminal.NewSession(os.Stdin, logger)
//	session.ArmSignalGuard() // Ctrl-C restores, then exits non-zero
//	session.ArmExitGuard()   // logrus exit/fatal paths restore first
//	session.EnterRaw()
//
// Restoration is latched: however many paths race to restore (interrupt,
// exit handler, explicit call), the terminal is touched exactly once.
package terminal

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Mode is the session's view of the terminal's line discipline.
type Mode int32

const (
	// ModeUninitialized means no configuration has been captured yet.
	ModeUninitialized Mode = iota
	// ModeCooked is the terminal's inherited line-buffered configuration.
	ModeCooked
	// ModeRaw delivers input byte-at-a-time with echo and ISIG still on.
	ModeRaw
)

func (m Mode) String() string {
	switch m {
	case ModeCooked:
		return "cooked"
	case ModeRaw:
		return "raw"
	default:
		return "uninitialized"
	}
}

// Session tracks one terminal's captured configuration and mode. There is
// one controlling terminal per process, so one Session is constructed at
// startup and handed to every component that may need to restore it.
type Session struct {
	file        *os.File
	fd          int
	interactive bool
	logger      *logrus.Logger

	// orig is captured once, before the first raw entry, and reapplied
	// verbatim on restore. Never synthesized.
	orig     unix.Termios
	captured bool

	mode atomic.Int32

	// armed latches whether a restoration is owed. Cleared by the first
	// restoration attempt regardless of outcome, so a failing restore can
	// never be re-entered from the error-reporting or exit paths.
	armed atomic.Bool
}

// RawConfig derives the attribute set raw mode applies from a captured
// cooked configuration. Exported so diagnostics can predict what raw entry
// would change without touching the terminal.
func RawConfig(cooked unix.Termios) unix.Termios {
	raw := cooked

	// Input keeps the inherited CR/NL translation so the Enter key behaves
	// as the user's terminal is configured to deliver it; only parity
	// checking, high-bit stripping and XON/XOFF go away.
	raw.Iflag &^= unix.INPCK | unix.ISTRIP | unix.IXON

	// Output post-processing stays on with ONLCR forced, so sketch output
	// may use plain \n and still land at column zero.
	raw.Oflag |= unix.OPOST | unix.ONLCR

	raw.Cflag |= unix.CS8

	// ECHO and ISIG stay inherited: typed characters remain visible and
	// Ctrl-C still raises SIGINT for the signal guard to catch.
	raw.Lflag &^= unix.ICANON | unix.IEXTEN

	// read(2) returns immediately with zero or one byte.
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0

	return raw
}

// Capture reads f's current terminal attributes without going through a
// Session. The session keeps its own private capture; this one serves
// diagnostics and tests.
func Capture(f *os.File) (unix.Termios, error) {
	tio, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	if err != nil {
		return unix.Termios{}, fmt.Errorf("tcgetattr: %w", err)
	}
	return *tio, nil
}

// NewSession wraps f (os.Stdin when nil). When f is not an interactive
// terminal every mode operation becomes a no-op, which lets the hosted
// sketch run under pipes and test harnesses untouched. A nil logger gets a
// fresh stderr logger so fatal diagnostics always surface.
func NewSession(f *os.File, logger *logrus.Logger) *Session {
	if f == nil {
		f = os.Stdin
	}
	if logger == nil {
		logger = logrus.New()
	}
	fd := int(f.Fd())
	return &Session{
		file:        f,
		fd:          fd,
		interactive: term.IsTerminal(fd),
		logger:      logger,
	}
}

// Interactive reports whether the session's file is a terminal device.
func (s *Session) Interactive() bool {
	return s.interactive
}

// CurrentMode returns the session's mode. Non-interactive sessions stay
// ModeUninitialized forever.
func (s *Session) CurrentMode() Mode {
	return Mode(s.mode.Load())
}

// EnterRaw captures the terminal configuration (first call only) and applies
// the raw derivation. No-op when the session is not interactive or already
// raw. Capture and apply failures are fatal: the diagnostic names the
// failing operation and the OS error, then the process exits 1 through the
// exit-handler chain.
func (s *Session) EnterRaw() {
	if !s.interactive {
		return
	}
	if Mode(s.mode.Load()) == ModeRaw {
		return
	}

	if !s.captured {
		tio, err := unix.IoctlGetTermios(s.fd, ioctlGetTermios)
		if err != nil {
			s.fatal("tcgetattr", err)
			return
		}
		s.orig = *tio
		s.captured = true
		s.mode.Store(int32(ModeCooked))
	}

	raw := RawConfig(s.orig)

	if err := unix.IoctlSetTermios(s.fd, ioctlSetTermiosFlush, &raw); err != nil {
		s.fatal("tcsetattr", err)
		return
	}

	s.mode.Store(int32(ModeRaw))
	s.armed.Store(true)
}

// restore is the single restoration core shared by Restore and
// RestoreOnSignal. The latch is cleared before anything can fail, so no
// caller can re-enter a failing restore, not even the exit handlers that
// run during a fatal report.
func (s *Session) restore() error {
	if !s.interactive {
		return nil
	}
	if !s.armed.CompareAndSwap(true, false) {
		return nil
	}
	if err := unix.IoctlSetTermios(s.fd, ioctlSetTermiosFlush, &s.orig); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}
	s.mode.Store(int32(ModeCooked))
	return nil
}

// Restore returns the terminal to its captured configuration. Safe to call
// any number of times from any non-signal context; only the first armed
// call touches the terminal. A restoration failure is fatal.
func (s *Session) Restore() {
	if err := s.restore(); err != nil {
		s.fatal("restore", err)
	}
}

// RestoreOnSignal is the signal-context twin of Restore. A failure here is
// reported but never escalated through the fatal path: the interrupt
// handler that calls this terminates the process itself immediately after,
// and escalating would run the exit chain from inside signal handling.
func (s *Session) RestoreOnSignal() {
	if err := s.restore(); err != nil {
		s.logger.WithError(err).Error("terminal restore failed during interrupt")
	}
}

// fatal reports a terminal-attribute failure and terminates with status 1
// through the logrus exit machinery, so the registered cleanup hooks still
// run on the way down.
func (s *Session) fatal(op string, err error) {
	s.logger.WithError(err).Fatalf("terminal %s failed", op)
}
