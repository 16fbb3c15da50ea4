package ptylink

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestLink(t *testing.T, opts *Options) Link {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	l, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// openPeer opens the slave device the way an external serial tool would.
func openPeer(t *testing.T, l Link) *os.File {
	t.Helper()
	peer, err := os.OpenFile(l.Name(), os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })
	return peer
}

// pollBytes drains n bytes from the link, waiting out the pump latency.
func pollBytes(t *testing.T, l Link, n int) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < n {
		require.True(t, time.Now().Before(deadline), "timed out after %d of %d bytes", len(got), n)
		b, ok, err := l.PollByte()
		require.NoError(t, err)
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, b)
	}
	return got
}

// GOAL: Verify peer input reaches the sketch side one byte at a time, in order.
func TestPeerInputIsPolledInOrder(t *testing.T) {
	l := newTestLink(t, nil)
	peer := openPeer(t, l)

	_, err := peer.WriteString("AB")
	require.NoError(t, err)

	assert.Equal(t, []byte("AB"), pollBytes(t, l, 2))

	// Ring drained: no stale byte left behind.
	_, ok, err := l.PollByte()
	require.NoError(t, err)
	assert.False(t, ok)
}

// GOAL: Verify sketch output written to the link arrives at the peer unmodified.
func TestSketchOutputReachesPeer(t *testing.T) {
	l := newTestLink(t, nil)
	peer := openPeer(t, l)

	n, err := l.Write([]byte("millis=42\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	type readResult struct {
		data []byte
		err  error
	}
	resultChan := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 64)
		rn, rerr := peer.Read(buf)
		resultChan <- readResult{data: buf[:rn], err: rerr}
	}()

	select {
	case res := <-resultChan:
		require.NoError(t, res.err)
		// The slave is raw, so bytes pass through without translation.
		assert.Equal(t, "millis=42\r\n", string(res.data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for peer read")
	}
}

// GOAL: Verify the slave path is a real device node usable by external tools.
func TestNameIsOpenableDevice(t *testing.T) {
	l := newTestLink(t, nil)

	require.NotEmpty(t, l.Name())

	f, err := os.OpenFile(l.Name(), os.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// GOAL: Verify the symlink is created on New, resolves to the slave, and is
// removed on Close.
func TestSymlinkLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termino0")

	l, err := New(&Options{Logger: quietLogger(), SymlinkPath: path})
	require.NoError(t, err)

	target, err := os.Readlink(path)
	require.NoError(t, err)
	assert.Equal(t, l.Name(), target)

	require.NoError(t, l.Close())

	_, err = os.Lstat(path)
	assert.True(t, os.IsNotExist(err), "symlink should be removed on close")
}

// GOAL: Verify a stale symlink from a previous run is replaced, while a
// regular file at the same path is refused.
func TestSymlinkCollisionHandling(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "stale")
	require.NoError(t, os.Symlink("/nonexistent", stale))

	l, err := New(&Options{Logger: quietLogger(), SymlinkPath: stale})
	require.NoError(t, err)
	target, err := os.Readlink(stale)
	require.NoError(t, err)
	assert.Equal(t, l.Name(), target)
	require.NoError(t, l.Close())

	regular := filepath.Join(dir, "regular")
	require.NoError(t, os.WriteFile(regular, []byte("keep me"), 0o644))

	_, err = New(&Options{Logger: quietLogger(), SymlinkPath: regular})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a symlink")

	data, err := os.ReadFile(regular)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

// GOAL: Verify Close is idempotent and later I/O reports a closed link.
func TestCloseIsIdempotent(t *testing.T) {
	l := newTestLink(t, nil)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, _, err := l.PollByte()
	assert.ErrorIs(t, err, os.ErrClosed)

	_, err = l.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// GOAL: Verify transfer counters track both directions.
func TestStatsCountTraffic(t *testing.T) {
	l := newTestLink(t, nil)
	peer := openPeer(t, l)

	_, err := peer.WriteString("ab")
	require.NoError(t, err)
	pollBytes(t, l, 2)

	_, err = l.Write([]byte("xyz"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := l.Stats()
		return s.ReadBytes >= 2 && s.WriteBytes >= 3
	}, 5*time.Second, 10*time.Millisecond)

	s := l.Stats()
	assert.Zero(t, s.ReadBuffered, "polled bytes should leave the ring")
	assert.Zero(t, s.DroppedWrite)
}

// GOAL: Verify defaults fill in when options are nil or zero.
func TestNewDefaults(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NotEmpty(t, l.Name())
	_, ok, err := l.PollByte()
	require.NoError(t, err)
	assert.False(t, ok)
}
