package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/termino"
	"github.com/srg/termino/internal/lua"
	"github.com/srg/termino/internal/ptylink"
	"github.com/srg/termino/pkg/config"
	"github.com/srg/termino/serial"
	"github.com/srg/termino/sketch"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [script.lua]",
	Short: "Run a Lua sketch",
	Long: `Executes a Lua sketch with the classic firmware structure: setup() runs
once, then loop() runs forever with one polled input byte per iteration.

By default the sketch is hosted on the terminal itself: the terminal is
switched to raw mode (restored on any exit), keystrokes feed the sketch's
serial input, and serial output prints to stdout. With --pty the sketch is
served on a pseudo-terminal device instead, so serial tools like minicom or
picocom can talk to it while your own terminal stays untouched.

Scripts without setup() or loop() are plain procedural Lua: they run to
completion and the command exits.

Without a script argument the built-in echo sketch runs.

Example:
  termino run
  termino run blink.lua
  termino run --pty --symlink /tmp/sketch-port uptime.lua`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runPTY          bool
	runSymlink      string
	runTick         time.Duration
	runSerialBuffer int
	runVerbose      bool
)

func init() {
	runCmd.Flags().BoolVar(&runPTY, "pty", false, "Serve the sketch on a PTY device instead of the terminal")
	runCmd.Flags().StringVar(&runSymlink, "symlink", "", "Create a symlink to the PTY device (implies --pty)")
	runCmd.Flags().DurationVar(&runTick, "tick", 0, "Loop tick interval (default 1ms)")
	runCmd.Flags().IntVar(&runSerialBuffer, "serial-buffer", 0, "Serial receive buffer capacity in bytes (default 4096)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose output")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	script := termino.DefaultEchoSketch
	name := "echo.lua"
	if len(args) == 1 {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read script %s: %w", args[0], err)
		}
		script = string(content)
		name = args[0]
	}

	cfg := config.DefaultConfig()
	if runTick > 0 {
		cfg.TickInterval = runTick
	}
	if runSerialBuffer > 0 {
		cfg.SerialBufferSize = runSerialBuffer
	}

	if runPTY || runSymlink != "" {
		return runOnPTY(script, name, cfg, logger)
	}
	return runOnTerminal(script, name, cfg, logger)
}

// runOnTerminal hosts the sketch on the process's own terminal: serial
// output prints to stdout and the loop driver manages raw mode on stdin.
func runOnTerminal(script, name string, cfg *config.Config, logger *logrus.Logger) error {
	port := serial.NewPort(os.Stdout, cfg.SerialBufferSize, logger)

	loaded, err := lua.LoadSketch(context.Background(), script, name, port, &lua.RunOptions{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if !loaded.Defined() {
		// Procedural script: its top level already ran inside LoadSketch.
		loaded.Close()
		return nil
	}

	// Never returns. The sketch ends the process through hal.Exit or an
	// interrupt, and both paths restore the terminal first.
	sketch.Run(&sketch.Options{
		Sink:   port,
		Tick:   cfg.TickInterval,
		Logger: logger,
	}, loaded.Callbacks)
	return nil
}

// runOnPTY hosts the sketch on a fresh pseudo-terminal. The user's terminal
// is never touched; the command blocks until Ctrl+C.
func runOnPTY(script, name string, cfg *config.Config, logger *logrus.Logger) error {
	// Armed before setup so a Ctrl+C during script load still lands here.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	link, err := ptylink.New(&ptylink.Options{
		ReadCap:     cfg.SerialBufferSize,
		WriteCap:    cfg.SerialBufferSize,
		Logger:      logger,
		SymlinkPath: runSymlink,
	})
	if err != nil {
		return err
	}
	defer func() { _ = link.Close() }()

	port := serial.NewPort(link, cfg.SerialBufferSize, logger)

	loaded, err := lua.LoadSketch(context.Background(), script, name, port, &lua.RunOptions{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer loaded.Close()

	if !loaded.Defined() {
		// Procedural script already ran; nothing to serve.
		return nil
	}

	fmt.Printf("Sketch serial port: %s\n", link.Name())
	if runSymlink != "" {
		fmt.Printf("Symlink: %s\n", runSymlink)
	}
	fmt.Println("Press Ctrl+C to stop.")

	// No Session here: input comes from the link, not a terminal, so the
	// driver runs with nothing to restore. Closing the loaded sketch tears
	// down the Lua state, after which the driver's callbacks are no-ops.
	go sketch.Run(&sketch.Options{
		Source: link,
		Sink:   port,
		Tick:   cfg.TickInterval,
		Logger: logger,
	}, loaded.Callbacks)

	<-sigCh

	fmt.Println("\nCtrl+C pressed, shutting down...")
	return context.Canceled
}
