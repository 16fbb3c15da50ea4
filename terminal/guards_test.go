package terminal

import (
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srg/termino/internal/testutils"
)

func interruptSelf(t *testing.T) {
	t.Helper()
	process, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, process.Signal(syscall.SIGINT))
}

// GOAL: Verify the armed signal guard restores the terminal and terminates
// with a non-zero status on interrupt.
//
// TEST SCENARIO: arm the guard on a raw pty session with a stubbed exit
// function, deliver SIGINT to this process, then verify the terminal equals
// the pre-raw snapshot and the recorded exit code is 1.
func TestSignalGuardRestoresAndExits(t *testing.T) {
	_, slave := testutils.OpenPTY(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	exited := make(chan int, 1)
	logger.ExitFunc = func(code int) { exited <- code }

	s := NewSession(slave, logger)
	before := getTermios(t, slave)

	s.ArmSignalGuard()
	s.EnterRaw()

	interruptSelf(t)

	select {
	case code := <-exited:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("signal guard never fired")
	}

	assert.Equal(t, before, getTermios(t, slave), "terminal must match the pre-raw snapshot")
	assert.False(t, s.armed.Load())
}

// GOAL: Verify a second interrupt cannot trigger a second restoration or a
// second exit: the guard is single-shot and the latch is already cleared.
func TestSignalGuardSecondInterruptHarmless(t *testing.T) {
	_, slave := testutils.OpenPTY(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var exits atomic.Int32
	first := make(chan struct{}, 1)
	logger.ExitFunc = func(code int) {
		exits.Add(1)
		select {
		case first <- struct{}{}:
		default:
		}
	}

	s := NewSession(slave, logger)
	s.ArmSignalGuard()
	s.EnterRaw()

	interruptSelf(t)
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("signal guard never fired")
	}

	// Scribble on the terminal; any further restoration would undo this.
	marked := getTermios(t, slave)
	marked.Lflag &^= unix.ECHO
	setTermios(t, slave, marked)

	interruptSelf(t)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, marked, getTermios(t, slave), "second interrupt must not restore again")
	assert.Equal(t, int32(1), exits.Load())
}

// GOAL: Verify the exit guard restores the terminal when the process leaves
// through the logrus exit chain, the path every fatal log and hal.Exit take.
func TestExitGuardRestoresOnExit(t *testing.T) {
	_, slave := testutils.OpenPTY(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := NewSession(slave, logger)
	before := getTermios(t, slave)

	s.ArmExitGuard()
	s.EnterRaw()
	require.NotEqual(t, before, getTermios(t, slave))

	std := logrus.StandardLogger()
	origExit := std.ExitFunc
	defer func() { std.ExitFunc = origExit }()
	var code = -1
	std.ExitFunc = func(c int) { code = c }

	std.Exit(0)

	assert.Equal(t, 0, code)
	assert.Equal(t, before, getTermios(t, slave))
	assert.False(t, s.armed.Load())
}

// GOAL: Verify the arm-before-enter ordering holds up: when raw entry itself
// fails fatally, the already-registered exit guard runs without recursing
// (the latch was never armed, so its restore is a no-op).
func TestExitGuardSafeWhenEntryFails(t *testing.T) {
	logger, codes := newTestLogger()

	s := &Session{fd: -1, interactive: true, logger: logger}
	s.ArmExitGuard()

	s.EnterRaw()

	require.Equal(t, []int{1}, *codes)
	assert.False(t, s.armed.Load())
}
