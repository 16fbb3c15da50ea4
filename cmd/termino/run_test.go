package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/termino/pkg/config"
)

// RunCmdSuite provides testify/suite for proper flag isolation
type RunCmdSuite struct {
	suite.Suite
}

// SetupTest resets the run command's flag variables before each test
func (s *RunCmdSuite) SetupTest() {
	runPTY = false
	runSymlink = ""
	runTick = 0
	runSerialBuffer = 0
	runVerbose = false
}

// writeScript drops a sketch script into a temp dir and returns its path
func (s *RunCmdSuite) writeScript(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644), "writing test script MUST succeed")
	return path
}

func (s *RunCmdSuite) TestRunCmd_Flags() {
	// GOAL: Verify run command has all required flags with correct defaults
	//
	// TEST SCENARIO: Check flag definitions → all flags present → default values correct

	s.Assert().NotNil(runCmd, "run command MUST be defined")
	s.Assert().Equal("run [script.lua]", runCmd.Use, "command usage MUST match expected format")

	flags := []struct {
		name         string
		defaultValue string
	}{
		{name: "pty", defaultValue: "false"},
		{name: "symlink", defaultValue: ""},
		{name: "tick", defaultValue: "0s"},
		{name: "serial-buffer", defaultValue: "0"},
		{name: "verbose", defaultValue: "false"},
	}

	for _, f := range flags {
		s.Run(f.name, func() {
			flag := runCmd.Flags().Lookup(f.name)
			s.Assert().NotNil(flag, "flag MUST exist")
			if flag != nil {
				s.Assert().Equal(f.defaultValue, flag.DefValue, "default value MUST match")
			}
		})
	}
}

func (s *RunCmdSuite) TestRunCmd_ArgsValidation() {
	// GOAL: Verify command accepts at most one script argument
	//
	// TEST SCENARIO: Validate args with different counts → accepts 0-1 args → rejects more

	validator := runCmd.Args
	s.Require().NotNil(validator, "args validator MUST be defined")

	s.Assert().NoError(validator(runCmd, nil), "MUST accept no arguments")
	s.Assert().NoError(validator(runCmd, []string{"sketch.lua"}), "MUST accept one argument")
	s.Assert().Error(validator(runCmd, []string{"a.lua", "b.lua"}), "MUST reject two arguments")
}

func (s *RunCmdSuite) TestRunMissingScript() {
	// GOAL: Verify a nonexistent script path fails with an actionable error
	//
	// TEST SCENARIO: Run with missing file → error wraps fs.ErrNotExist → message names the path

	_, err := executeRoot(s.T(), "run", "/nonexistent-dir/sketch.lua")
	s.Require().Error(err, "run MUST fail for a missing script")
	s.Assert().Contains(err.Error(), "failed to read script", "error MUST name the failed operation")
	s.Assert().ErrorIs(err, fs.ErrNotExist, "error chain MUST preserve the not-exist cause")
}

func (s *RunCmdSuite) TestRunProceduralScriptOnTerminal() {
	// GOAL: Verify a script without setup/loop runs to completion and exits
	//
	// TEST SCENARIO: Run procedural script → top level prints → command returns without driving a loop

	path := s.writeScript("hello.lua", `print("procedural ran")`)

	out := captureStdout(s.T(), func() {
		_, err := executeRoot(s.T(), "run", path)
		s.Assert().NoError(err, "procedural run MUST succeed")
	})

	s.Assert().Contains(out, "procedural ran", "script output MUST reach stdout")
}

func (s *RunCmdSuite) TestRunProceduralScriptOnPTY() {
	// GOAL: Verify --pty hosts procedural scripts without serving a device
	//
	// TEST SCENARIO: Run procedural script with --pty → top level prints → command exits cleanly

	path := s.writeScript("hello.lua", `print("pty side ran")`)

	out := captureStdout(s.T(), func() {
		_, err := executeRoot(s.T(), "run", "--pty", path)
		s.Assert().NoError(err, "procedural PTY run MUST succeed")
	})

	s.Assert().Contains(out, "pty side ran", "script output MUST reach stdout")
}

func (s *RunCmdSuite) TestRunSymlinkRemovedOnExit() {
	// GOAL: Verify --symlink cleans up the device link when the run ends
	//
	// TEST SCENARIO: Run procedural script with --symlink → command exits → link path is gone

	linkPath := filepath.Join(s.T().TempDir(), "sketch-port")
	path := s.writeScript("hello.lua", `print("done")`)

	_ = captureStdout(s.T(), func() {
		_, err := executeRoot(s.T(), "run", "--symlink", linkPath, path)
		s.Assert().NoError(err, "symlink run MUST succeed")
	})

	_, err := os.Lstat(linkPath)
	s.Assert().True(os.IsNotExist(err), "symlink MUST be removed after the run")
}

func (s *RunCmdSuite) TestRunPTYInterrupt() {
	// GOAL: Verify a PTY-hosted looping sketch exits cleanly on SIGINT
	//
	// TEST SCENARIO: Start looping sketch on PTY → send SIGINT after 150ms → returns context.Canceled within 5s

	script := `
local n = 0
function loop()
  n = n + 1
end
`
	cfg := config.DefaultConfig()
	logger := quietLogger()

	done := make(chan error, 1)
	go func() {
		done <- runOnPTY(script, "interrupt.lua", cfg, logger)
	}()

	time.Sleep(150 * time.Millisecond)

	process, _ := os.FindProcess(os.Getpid())
	_ = process.Signal(syscall.SIGINT)

	select {
	case err := <-done:
		s.Assert().ErrorIs(err, context.Canceled, "interrupt MUST surface as context.Canceled")
	case <-time.After(5 * time.Second):
		s.Fail("PTY run MUST complete within 5s after SIGINT")
	}
}

// TestRunCommandSuite runs the test suite
func TestRunCommandSuite(t *testing.T) {
	suite.Run(t, new(RunCmdSuite))
}
