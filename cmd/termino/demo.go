package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/termino/hal"
	"github.com/srg/termino/pkg/config"
	"github.com/srg/termino/serial"
	"github.com/srg/termino/sketch"
)

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo [name]",
	Short: "Run a built-in demo sketch",
	Long: `Runs one of the built-in demo sketches on the terminal. The demos are
plain Go setup/loop callbacks, so they double as examples of hosting Go
sketches directly.

The terminal switches to raw mode while the demo runs and is restored on
exit. Stop a demo with Ctrl+C.

Example:
  termino demo --list
  termino demo echo
  termino demo blink`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDemo,
}

var (
	demoListFlag     bool
	demoTick         time.Duration
	demoSerialBuffer int
)

func init() {
	demoCmd.Flags().BoolVarP(&demoListFlag, "list", "l", false, "List available demos")
	demoCmd.Flags().DurationVar(&demoTick, "tick", 0, "Loop tick interval (default 1ms)")
	demoCmd.Flags().IntVar(&demoSerialBuffer, "serial-buffer", 0, "Serial receive buffer capacity in bytes (default 4096)")
}

// demoSketch pairs a one-line description with a callback factory. The
// factory runs once the serial port exists, so callbacks can close over it.
type demoSketch struct {
	description string
	make        func(port *serial.Port) sketch.Callbacks
}

// demos is the built-in registry; insertion order is the --list order.
var demos = func() *orderedmap.OrderedMap[string, demoSketch] {
	m := orderedmap.New[string, demoSketch]()
	m.Set("echo", demoSketch{
		description: "Echo every received byte back to the serial port",
		make:        makeEchoDemo,
	})
	m.Set("uptime", demoSketch{
		description: "Print the millis counter once a second",
		make:        makeUptimeDemo,
	})
	m.Set("blink", demoSketch{
		description: "Toggle pin 13 every half second and report the level",
		make:        makeBlinkDemo,
	})
	return m
}()

func runDemo(cmd *cobra.Command, args []string) error {
	if demoListFlag || len(args) == 0 {
		return listDemos()
	}
	name := args[0]

	entry, ok := demos.Get(name)
	if !ok {
		return fmt.Errorf("unknown demo '%s': run 'termino demo --list' to see what ships", name)
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	cfg := config.DefaultConfig()
	if demoTick > 0 {
		cfg.TickInterval = demoTick
	}
	if demoSerialBuffer > 0 {
		cfg.SerialBufferSize = demoSerialBuffer
	}

	port := serial.NewPort(os.Stdout, cfg.SerialBufferSize, logger)

	// Never returns; the demo ends through Ctrl+C, which restores the
	// terminal on the way out.
	sketch.Run(&sketch.Options{
		Sink:   port,
		Tick:   cfg.TickInterval,
		Logger: logger,
	}, entry.make(port))
	return nil
}

func listDemos() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for pair := demos.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(w, "%s\t%s\n", pair.Key, pair.Value.description)
	}
	return w.Flush()
}

// makeEchoDemo is the Go twin of the embedded echo.lua sketch.
func makeEchoDemo(port *serial.Port) sketch.Callbacks {
	return sketch.Callbacks{
		Setup: func() {
			_, _ = port.Println("echo demo: type away, Ctrl+C to quit")
		},
		Loop: func() {
			for port.Available() > 0 {
				b, ok := port.ReadByte()
				if !ok {
					break
				}
				_ = port.WriteByte(b)
			}
		},
	}
}

// makeUptimeDemo prints the millis counter once a second.
func makeUptimeDemo(port *serial.Port) sketch.Callbacks {
	var last int64
	return sketch.Callbacks{
		Setup: func() {
			_, _ = port.Println("uptime demo: reporting every second, Ctrl+C to quit")
			last = hal.Millis()
		},
		Loop: func() {
			now := hal.Millis()
			if now-last >= 1000 {
				last = now
				_, _ = port.Printf("uptime: %d ms\n", now)
			}
		},
	}
}

// makeBlinkDemo toggles pin 13 every half second, the classic first sketch.
func makeBlinkDemo(port *serial.Port) sketch.Callbacks {
	const ledPin = 13
	var (
		level int
		last  int64
	)
	return sketch.Callbacks{
		Setup: func() {
			hal.PinMode(ledPin, hal.Output)
			_, _ = port.Println("blink demo: pin 13, Ctrl+C to quit")
			last = hal.Millis()
		},
		Loop: func() {
			now := hal.Millis()
			if now-last < 500 {
				return
			}
			last = now
			if level == hal.Low {
				level = hal.High
			} else {
				level = hal.Low
			}
			hal.DigitalWrite(ledPin, level)
			if level == hal.High {
				_, _ = port.Println("LED on")
			} else {
				_, _ = port.Println("LED off")
			}
		},
	}
}
