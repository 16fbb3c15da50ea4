package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// executeRoot runs the root command with args, returning cobra's combined
// output and the execution error. Parsed flag values stick to the package
// variables afterwards; the suites reset them in SetupTest.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// captureStdout executes fn while capturing everything written to
// os.Stdout. Stdout is restored even if fn panics.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	_ = w.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err, "reading captured stdout MUST succeed")
	return string(out)
}

// quietLogger keeps command internals silent during tests.
func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
