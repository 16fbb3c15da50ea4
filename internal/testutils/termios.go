package testutils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// GetTermios snapshots a terminal's attributes, failing the test on error.
func GetTermios(t *testing.T, f *os.File) unix.Termios {
	t.Helper()
	tio, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	require.NoError(t, err)
	return *tio
}

// TryGetTermios snapshots a terminal's attributes. Useful inside polling
// assertions where an error just means "not yet".
func TryGetTermios(f *os.File) (unix.Termios, error) {
	tio, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	if err != nil {
		return unix.Termios{}, err
	}
	return *tio, nil
}

// SetTermios applies terminal attributes with flush semantics.
func SetTermios(t *testing.T, f *os.File, tio unix.Termios) {
	t.Helper()
	require.NoError(t, unix.IoctlSetTermios(int(f.Fd()), ioctlSetTermios, &tio))
}
