package lua

import (
	"strings"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"

	"github.com/srg/termino/hal"
	"github.com/srg/termino/serial"
	"github.com/srg/termino/sketch"
)

// SketchAPI binds the host runtime to a Lua state: the serial table talks
// to a serial.Port, the hal table reaches the hal package, and the log
// table writes through the injected logger. Scripts see the same surface
// a compiled sketch gets from the Go packages.
type SketchAPI struct {
	Engine *Engine
	port   *serial.Port
	logger *logrus.Logger
}

// NewSketchAPI creates an engine and registers the sketch tables on it.
// The port receives serial.write output and feeds serial.read; when nil a
// default stdout port is created.
func NewSketchAPI(port *serial.Port, logger *logrus.Logger) *SketchAPI {
	if logger == nil {
		logger = logrus.New()
	}
	if port == nil {
		port = serial.NewPort(nil, 0, logger)
	}
	api := &SketchAPI{
		Engine: NewEngine(logger),
		port:   port,
		logger: logger,
	}
	api.register()
	return api
}

// Reset rebuilds the Lua state and re-registers the sketch tables.
func (api *SketchAPI) Reset() {
	api.Engine.Reset()
	api.register()
}

// Close tears down the engine.
func (api *SketchAPI) Close() {
	api.Engine.Close()
}

// OutputChannel exposes the engine's captured print output.
func (api *SketchAPI) OutputChannel() <-chan OutputRecord {
	return api.Engine.OutputChannel()
}

// ExecuteScript runs a script against the registered API.
func (api *SketchAPI) ExecuteScript(script string) error {
	return api.Engine.ExecuteScript(script)
}

// Callbacks maps the script's optional global setup and loop functions
// onto sketch callbacks. A missing function stays nil, the weak-symbol
// convention compiled sketches get for free.
func (api *SketchAPI) Callbacks() sketch.Callbacks {
	cb := sketch.Callbacks{}
	if api.Engine.HasGlobalFunction("setup") {
		cb.Setup = func() { api.invoke("setup") }
	}
	if api.Engine.HasGlobalFunction("loop") {
		cb.Loop = func() { api.invoke("loop") }
	}
	return cb
}

// invoke runs a sketch entry point. A script error ends the process
// through the logger's fatal path, which runs the registered exit
// handlers (terminal restoration included) before exiting with code 1.
func (api *SketchAPI) invoke(name string) {
	if err := api.Engine.CallGlobal(name); err != nil {
		api.logger.WithError(err).Fatalf("sketch %s() failed", name)
	}
}

// exitFunc ends the process through the hal layer; a variable so tests
// can intercept the call.
var exitFunc = hal.Exit

// pushFunction adds a safe-wrapped Go function to the table at the top of
// the stack. name is the qualified name for diagnostics; the field name
// is its last segment.
func (api *SketchAPI) pushFunction(L *lua.State, name string, fn func(*lua.State) int) {
	field := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		field = name[i+1:]
	}
	L.PushString(field)
	L.PushGoFunction(api.Engine.SafeWrapGoFunction(name, fn))
	L.SetTable(-3)
}

// pushInteger adds an integer constant to the table at the top of the
// stack.
func pushInteger(L *lua.State, name string, v int64) {
	L.PushString(name)
	L.PushInteger(v)
	L.SetTable(-3)
}

func (api *SketchAPI) register() {
	api.Engine.DoWithState(func(L *lua.State) interface{} {
		api.registerSerialTable(L)
		api.registerHalTable(L)
		api.registerLogTable(L)
		api.rerouteOsExit(L)
		return nil
	})
}

// rerouteOsExit replaces os.exit with the guarded exit. The stock
// os.exit skips the exit handlers and would leave the terminal raw.
func (api *SketchAPI) rerouteOsExit(L *lua.State) {
	L.GetGlobal("os")
	if L.IsTable(-1) {
		api.pushFunction(L, "os.exit", exitWithCode)
	}
	L.Pop(1)
}

// registerSerialTable builds the global serial table over api.port.
func (api *SketchAPI) registerSerialTable(L *lua.State) {
	L.NewTable()

	// serial.available() -> number of buffered input bytes
	api.pushFunction(L, "serial.available", func(L *lua.State) int {
		L.PushInteger(int64(api.port.Available()))
		return 1
	})

	// serial.read() -> next input byte, or nil when the buffer is empty
	api.pushFunction(L, "serial.read", func(L *lua.State) int {
		b, ok := api.port.ReadByte()
		if !ok {
			L.PushNil()
			return 1
		}
		L.PushInteger(int64(b))
		return 1
	})

	// serial.peek() -> next input byte without consuming it, or nil
	api.pushFunction(L, "serial.peek", func(L *lua.State) int {
		b, ok := api.port.Peek()
		if !ok {
			L.PushNil()
			return 1
		}
		L.PushInteger(int64(b))
		return 1
	})

	// serial.write(string|number) -> bytes written. A number is sent as a
	// single byte, the firmware write(uint8_t) overload.
	api.pushFunction(L, "serial.write", func(L *lua.State) int {
		switch {
		case L.Type(1) == lua.LUA_TSTRING:
			n, err := api.port.WriteString(L.ToString(1))
			if err != nil {
				api.logger.WithError(err).Warn("serial.write failed")
			}
			L.PushInteger(int64(n))
			return 1
		case L.IsNumber(1):
			if err := api.port.WriteByte(byte(L.ToInteger(1))); err != nil {
				api.logger.WithError(err).Warn("serial.write failed")
				L.PushInteger(0)
				return 1
			}
			L.PushInteger(1)
			return 1
		default:
			L.RaiseError("serial.write(data) expects a string or a number")
			return 0
		}
	})

	// serial.print(...) -> bytes written; arguments are concatenated
	api.pushFunction(L, "serial.print", func(L *lua.State) int {
		n, err := api.port.WriteString(formatArgs(L, ""))
		if err != nil {
			api.logger.WithError(err).Warn("serial.print failed")
		}
		L.PushInteger(int64(n))
		return 1
	})

	// serial.println(...) -> bytes written including the newline
	api.pushFunction(L, "serial.println", func(L *lua.State) int {
		n, err := api.port.WriteString(formatArgs(L, "") + "\n")
		if err != nil {
			api.logger.WithError(err).Warn("serial.println failed")
		}
		L.PushInteger(int64(n))
		return 1
	})

	L.SetGlobal("serial")
}

// registerHalTable builds the global hal table: clocks, delays, the
// guarded exit and the no-op pin surface, plus the level and mode
// constants sketches expect.
func (api *SketchAPI) registerHalTable(L *lua.State) {
	L.NewTable()

	api.pushFunction(L, "hal.millis", func(L *lua.State) int {
		L.PushInteger(hal.Millis())
		return 1
	})

	api.pushFunction(L, "hal.micros", func(L *lua.State) int {
		L.PushInteger(hal.Micros())
		return 1
	})

	api.pushFunction(L, "hal.delay", func(L *lua.State) int {
		ms := requireNonNegative(L, "hal.delay(ms)")
		hal.Delay(ms)
		return 0
	})

	api.pushFunction(L, "hal.delay_us", func(L *lua.State) int {
		us := requireNonNegative(L, "hal.delay_us(us)")
		hal.DelayMicroseconds(us)
		return 0
	})

	api.pushFunction(L, "hal.yield", func(L *lua.State) int {
		hal.Yield()
		return 0
	})

	// hal.exit([code]) ends the process through the exit handlers, so the
	// terminal is restored on the way out. It does not return.
	api.pushFunction(L, "hal.exit", exitWithCode)

	api.pushFunction(L, "hal.pin_mode", func(L *lua.State) int {
		if !L.IsNumber(1) || !L.IsNumber(2) {
			L.RaiseError("hal.pin_mode(pin, mode) expects two numbers")
			return 0
		}
		hal.PinMode(L.ToInteger(1), L.ToInteger(2))
		return 0
	})

	api.pushFunction(L, "hal.digital_write", func(L *lua.State) int {
		if !L.IsNumber(1) || !L.IsNumber(2) {
			L.RaiseError("hal.digital_write(pin, level) expects two numbers")
			return 0
		}
		hal.DigitalWrite(L.ToInteger(1), L.ToInteger(2))
		return 0
	})

	api.pushFunction(L, "hal.digital_read", func(L *lua.State) int {
		if !L.IsNumber(1) {
			L.RaiseError("hal.digital_read(pin) expects a number")
			return 0
		}
		L.PushInteger(int64(hal.DigitalRead(L.ToInteger(1))))
		return 1
	})

	pushInteger(L, "LOW", hal.Low)
	pushInteger(L, "HIGH", hal.High)
	pushInteger(L, "INPUT", hal.Input)
	pushInteger(L, "OUTPUT", hal.Output)
	pushInteger(L, "INPUT_PULLUP", hal.InputPullup)

	L.SetGlobal("hal")
}

// registerLogTable builds the global log table over the injected logger.
func (api *SketchAPI) registerLogTable(L *lua.State) {
	L.NewTable()

	api.pushFunction(L, "log.debug", func(L *lua.State) int {
		api.logger.Debug(formatArgs(L, " "))
		return 0
	})

	api.pushFunction(L, "log.info", func(L *lua.State) int {
		api.logger.Info(formatArgs(L, " "))
		return 0
	})

	api.pushFunction(L, "log.warn", func(L *lua.State) int {
		api.logger.Warn(formatArgs(L, " "))
		return 0
	})

	api.pushFunction(L, "log.error", func(L *lua.State) int {
		api.logger.Error(formatArgs(L, " "))
		return 0
	})

	L.SetGlobal("log")
}

// exitWithCode reads an optional numeric status argument, defaulting to
// zero, and ends the process through the exit handlers.
func exitWithCode(L *lua.State) int {
	code := 0
	if L.GetTop() >= 1 && L.IsNumber(1) {
		code = L.ToInteger(1)
	}
	exitFunc(code)
	return 0
}

// requireNonNegative validates a single non-negative numeric argument and
// returns it. Raises a Lua error otherwise.
func requireNonNegative(L *lua.State, signature string) int64 {
	if !L.IsNumber(1) {
		L.RaiseError(signature + " expects a number argument")
		return 0
	}
	v := int64(L.ToInteger(1))
	if v < 0 {
		L.RaiseError(signature + " expects a non-negative number")
		return 0
	}
	return v
}
