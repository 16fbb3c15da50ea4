// Package lua hosts sketches written in Lua. An Engine wraps a single
// golua state behind a mutex, captures everything the script prints into
// an overwrite-oldest ring channel, and reports script failures as
// structured ScriptErrors. SketchAPI layers the serial/hal/log tables on
// top and maps the script's global setup/loop functions onto sketch
// callbacks.
package lua

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
)

// outputChannelSize bounds how many unread print records the engine keeps.
const outputChannelSize = 256

// OutputRecord is one captured line of script output.
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// ScriptError describes a Lua failure with whatever position information
// could be recovered from the interpreter's message.
type ScriptError struct {
	Type       string // "syntax", "runtime", "api"
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *ScriptError) Error() string {
	where := ""
	switch {
	case e.Source != "" && e.Line > 0:
		where = fmt.Sprintf(" (%s, line %d)", e.Source, e.Line)
	case e.Source != "":
		where = fmt.Sprintf(" (%s)", e.Source)
	case e.Line > 0:
		where = fmt.Sprintf(" (line %d)", e.Line)
	}
	return fmt.Sprintf("lua %s error%s: %s", e.Type, where, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Underlying
}

// Engine is a locked Lua state with print capture.
type Engine struct {
	state      *lua.State
	stateMutex sync.Mutex
	logger     *logrus.Logger
	scriptCode string
	scriptName string
	outputChan *RingChannel[OutputRecord]
	closeOnce  sync.Once
}

// NewEngine creates an engine with a fresh state. A nil logger gets a
// default stderr logger.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		logger:     logger,
		outputChan: NewRingChannel[OutputRecord](outputChannelSize),
	}
	e.Reset()
	return e
}

// DoWithState runs callback with the state mutex held. Returns nil without
// calling back when the engine is closed.
func (e *Engine) DoWithState(callback func(*lua.State) interface{}) interface{} {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	return e.doWithStateLocked(callback)
}

func (e *Engine) doWithStateLocked(callback func(*lua.State) interface{}) interface{} {
	if e.state == nil {
		return nil
	}
	return callback(e.state)
}

// Reset discards the current state and builds a fresh one with print
// capture installed.
func (e *Engine) Reset() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.installOutputCaptureLocked()
}

// Close tears down the Lua state and then closes the output channel, so
// drainers and collectors finish whatever is buffered and exit.
func (e *Engine) Close() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
	e.closeOnce.Do(func() {
		e.outputChan.Close()
	})
}

// OutputChannel exposes captured print output for a drainer or collector.
func (e *Engine) OutputChannel() <-chan OutputRecord {
	return e.outputChan.C()
}

// installOutputCaptureLocked replaces print and io.write with versions
// that send their text into the output channel instead of the process
// stdout. ForceSend keeps the printing script from ever blocking.
func (e *Engine) installOutputCaptureLocked() {
	e.doWithStateLocked(func(L *lua.State) interface{} {
		L.PushGoFunction(func(L *lua.State) int {
			e.emitStdout(formatArgs(L, "\t") + "\n")
			return 0
		})
		L.SetGlobal("print")

		// io.write concatenates its arguments with no separator and no
		// trailing newline.
		L.GetGlobal("io")
		if L.IsTable(-1) {
			L.PushString("write")
			L.PushGoFunction(func(L *lua.State) int {
				e.emitStdout(formatArgs(L, ""))
				return 0
			})
			L.SetTable(-3)
		}
		L.Pop(1)
		return nil
	})
}

// formatArgs renders every stack argument the way Lua's print does:
// booleans and nil by name, numbers via %v, everything else through
// tostring().
func formatArgs(L *lua.State, sep string) string {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		switch {
		case L.IsNil(i):
			parts = append(parts, "nil")
		case L.IsBoolean(i):
			parts = append(parts, strconv.FormatBool(L.ToBoolean(i)))
		case L.IsNumber(i):
			parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
		case L.IsString(i):
			parts = append(parts, L.ToString(i))
		default:
			L.GetGlobal("tostring")
			L.PushValue(i)
			L.Call(1, 1)
			parts = append(parts, L.ToString(-1))
			L.Pop(1)
		}
	}
	return strings.Join(parts, sep)
}

// SafeWrapGoFunction wraps an API function so a Go-side panic is logged
// and surfaced to the script's stderr instead of unwinding through the
// interpreter. RaiseError panics with *lua.LuaError and relies on the
// interpreter gate to turn it into a script error, so those pass through.
func (e *Engine) SafeWrapGoFunction(name string, fn func(*lua.State) int) func(*lua.State) int {
	return func(L *lua.State) (nret int) {
		defer func() {
			if r := recover(); r != nil {
				if lerr, ok := r.(*lua.LuaError); ok {
					panic(lerr)
				}
				e.logger.WithFields(logrus.Fields{
					"function": name,
					"panic":    r,
				}).Error("lua api function panicked")
				e.emitStderr(fmt.Sprintf("%s: internal error: %v\n", name, r))
				nret = 0
			}
		}()
		return fn(L)
	}
}

func (e *Engine) emitStdout(content string) {
	e.outputChan.ForceSend(OutputRecord{
		Content:   content,
		Timestamp: time.Now(),
		Source:    "stdout",
	})
}

func (e *Engine) emitStderr(content string) {
	e.outputChan.ForceSend(OutputRecord{
		Content:   content,
		Timestamp: time.Now(),
		Source:    "stderr",
	})
}

// scriptErrorLocked builds a ScriptError from the message the interpreter
// left on the stack, falling back to the Go-side error when the stack has
// already been unwound. Lua positions arrive as "chunk:line: message".
func (e *Engine) scriptErrorLocked(errType, source string, underlying error) *ScriptError {
	msg := ""
	if e.state != nil && e.state.GetTop() > 0 {
		if e.state.IsString(-1) {
			msg = e.state.ToString(-1)
		} else {
			msg = "non-string error object"
		}
		e.state.Pop(1)
	} else if underlying != nil {
		msg = underlying.Error()
	} else {
		msg = "unknown error"
	}

	serr := &ScriptError{
		Type:       errType,
		Message:    msg,
		Source:     source,
		Underlying: underlying,
	}
	if parts := strings.SplitN(msg, ":", 3); len(parts) == 3 {
		if line, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			serr.Line = line
			serr.Message = strings.TrimSpace(parts[2])
		}
	}
	return serr
}

// LoadScript compiles a script and remembers it for ExecuteScript. Syntax
// errors are reported on the stderr stream as well as returned.
func (e *Engine) LoadScript(script, name string) error {
	if script == "" {
		return &ScriptError{Type: "api", Message: "empty script", Source: name}
	}

	var loadErr error
	e.DoWithState(func(L *lua.State) interface{} {
		if status := L.LoadString(script); status != 0 {
			serr := e.scriptErrorLocked("syntax", name, nil)
			e.emitStderr(serr.Error() + "\n")
			loadErr = serr
			return nil
		}
		L.Pop(1) // compiled chunk; DoString recompiles at execution
		e.scriptCode = script
		e.scriptName = name
		return nil
	})
	return loadErr
}

// LoadScriptFile loads and compiles a script from disk.
func (e *Engine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", filename, err)
	}
	return e.LoadScript(string(content), filename)
}

// ExecuteScript runs the given script, or the previously loaded one when
// script is empty.
func (e *Engine) ExecuteScript(script string) error {
	if script != "" {
		if err := e.LoadScript(script, "script"); err != nil {
			return err
		}
	}
	if e.scriptCode == "" {
		return &ScriptError{Type: "api", Message: "no script loaded"}
	}

	var execErr error
	e.DoWithState(func(L *lua.State) interface{} {
		if err := L.DoString(e.scriptCode); err != nil {
			serr := e.scriptErrorLocked("runtime", e.scriptName, err)
			e.emitStderr(serr.Error() + "\n")
			execErr = serr
		}
		L.SetTop(0) // discard chunk return values, if any
		return nil
	})
	return execErr
}

// HasGlobalFunction reports whether the script defined name as a global
// function. This is how optional setup/loop entry points are detected.
func (e *Engine) HasGlobalFunction(name string) bool {
	found := false
	e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(name)
		found = L.IsFunction(-1)
		L.Pop(1)
		return nil
	})
	return found
}

// CallGlobal invokes a global function with no arguments.
func (e *Engine) CallGlobal(name string) error {
	var callErr error
	e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(name)
		if !L.IsFunction(-1) {
			L.Pop(1)
			callErr = &ScriptError{Type: "api", Message: fmt.Sprintf("global %s is not a function", name)}
			return nil
		}
		if err := L.Call(0, 0); err != nil {
			callErr = e.scriptErrorLocked("runtime", name, err)
			L.SetTop(0) // a failed call can leave the stack inconsistent
		}
		return nil
	})
	return callErr
}

// PreloadLibrary runs a Lua module chunk and records its return value in
// package.loaded[modName], so user scripts can require it while any
// globals the chunk set remain in place.
func (e *Engine) PreloadLibrary(source, modName string) error {
	var loadErr error
	e.DoWithState(func(L *lua.State) interface{} {
		if status := L.LoadString(source); status != 0 {
			loadErr = e.scriptErrorLocked("syntax", modName, nil)
			return nil
		}
		if err := L.Call(0, 1); err != nil {
			loadErr = e.scriptErrorLocked("runtime", modName, err)
			L.SetTop(0)
			return nil
		}
		L.GetField(lua.LUA_GLOBALSINDEX, "package")
		L.GetField(-1, "loaded")
		L.PushValue(-3)
		L.SetField(-2, modName)
		L.Pop(3) // module table, package, loaded
		return nil
	})
	return loadErr
}

// SetGlobal publishes a Go value as a Lua global. Supported types are
// string, int, int64, float64 and bool.
func (e *Engine) SetGlobal(name string, value interface{}) error {
	res := e.DoWithState(func(L *lua.State) interface{} {
		switch v := value.(type) {
		case string:
			L.PushString(v)
		case int:
			L.PushInteger(int64(v))
		case int64:
			L.PushInteger(v)
		case float64:
			L.PushNumber(v)
		case bool:
			L.PushBoolean(v)
		default:
			return fmt.Errorf("unsupported type %T for global %s", value, name)
		}
		L.SetGlobal(name)
		return nil
	})
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// GetGlobalString reads a global string variable.
func (e *Engine) GetGlobalString(name string) (string, error) {
	var result string
	var err error
	e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(name)
		defer L.Pop(1)
		if !L.IsString(-1) {
			err = fmt.Errorf("global %s is not a string", name)
			return nil
		}
		result = L.ToString(-1)
		return nil
	})
	return result, err
}

// GetGlobalInteger reads a global numeric variable as an int.
func (e *Engine) GetGlobalInteger(name string) (int, error) {
	var result int
	var err error
	e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(name)
		defer L.Pop(1)
		if !L.IsNumber(-1) {
			err = fmt.Errorf("global %s is not a number", name)
			return nil
		}
		result = L.ToInteger(-1)
		return nil
	})
	return result, err
}
