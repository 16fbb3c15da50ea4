package lua

import (
	"context"
	"fmt"
	"io"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"

	"github.com/srg/termino"
	"github.com/srg/termino/serial"
	"github.com/srg/termino/sketch"
)

// RunOptions configure LoadSketch.
type RunOptions struct {
	// Args become entries in the script's arg[] table.
	Args map[string]string

	// Stdout and Stderr receive the script's print output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// Logger for engine diagnostics and the log.* table; nil gets a fresh
	// stderr logger.
	Logger *logrus.Logger
}

// LoadedSketch is a script that has been executed once and is ready to be
// driven: its setup/loop globals are bound to Callbacks and its print
// output is streaming through the drainer.
type LoadedSketch struct {
	API       *SketchAPI
	Callbacks sketch.Callbacks
	drainer   *OutputDrainer
}

// LoadSketch executes script against a fresh sketch API bound to port and
// returns the loaded result. The top level of the script runs here; a
// procedural script with no setup/loop has therefore already done its
// work when LoadSketch returns, which Defined reports.
func LoadSketch(ctx context.Context, script, name string, port *serial.Port, opts *RunOptions) (*LoadedSketch, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	api := NewSketchAPI(port, logger)
	drainer := NewOutputDrainer(ctx, api.OutputChannel(), logger, opts.Stdout, opts.Stderr)

	fail := func(err error) (*LoadedSketch, error) {
		api.Close()
		drainer.Wait()
		return nil, err
	}

	if err := api.Engine.PreloadLibrary(termino.SketchHelperLibrary, "sketch"); err != nil {
		return fail(fmt.Errorf("sketch helper library: %w", err))
	}

	// arg[] table, visible to the script's top level. Built through the
	// state directly so script line numbers stay honest.
	api.Engine.DoWithState(func(L *lua.State) interface{} {
		L.NewTable()
		for key, value := range opts.Args {
			L.PushString(key)
			L.PushString(value)
			L.SetTable(-3)
		}
		L.SetGlobal("arg")
		return nil
	})

	logger.WithFields(logrus.Fields{
		"script": name,
		"size":   len(script),
	}).Debug("loading sketch script")

	if err := api.Engine.LoadScript(script, name); err != nil {
		return fail(err)
	}
	if err := api.Engine.ExecuteScript(""); err != nil {
		return fail(err)
	}

	return &LoadedSketch{
		API:       api,
		Callbacks: api.Callbacks(),
		drainer:   drainer,
	}, nil
}

// Defined reports whether the script provided at least one of the
// setup/loop entry points.
func (s *LoadedSketch) Defined() bool {
	return s.Callbacks.Setup != nil || s.Callbacks.Loop != nil
}

// Close stops the script and flushes remaining output. It waits for the
// drainer to exit, bounded by the drainer's final flush timeout.
func (s *LoadedSketch) Close() {
	s.API.Close()
	s.drainer.Wait()
}
