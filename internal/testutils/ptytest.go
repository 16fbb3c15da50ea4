// PTY helpers for tests that need a real terminal device: raw-mode entry,
// restoration and signal handling cannot be exercised against pipes.
package testutils

import (
	"os"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// OpenPTY returns a connected master/slave pseudo-terminal pair. Both ends
// are closed when the test finishes; closing them earlier (e.g. to inject
// EBADF failures) is fine.
func OpenPTY(t *testing.T) (master, slave *os.File) {
	t.Helper()

	master, slave, err := pty.Open()
	require.NoError(t, err, "pty.Open should succeed; tests need a devpts mount")

	t.Cleanup(func() {
		_ = master.Close()
		_ = slave.Close()
	})
	return master, slave
}
