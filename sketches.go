// Package termino runs firmware-style sketches on a desktop, standing in
// for the board runtime: a raw-mode terminal (or PTY) plays the serial
// link, the hal package plays the core, and the sketch package drives the
// classic setup/loop cadence. Sketches are either Go callbacks or Lua
// scripts executed by internal/lua.
package termino

import _ "embed"

// DefaultEchoSketch is the embedded echo.lua script, the default sketch
// for `termino run` when no script is given.
//
//go:embed examples/echo.lua
var DefaultEchoSketch string

// UptimeSketch is the embedded uptime.lua script. It prints the millis
// counter once a second.
//
//go:embed examples/uptime.lua
var UptimeSketch string

// SketchHelperLibrary is the embedded lib/sketch.lua prelude. The Lua
// runner preloads it before the user script, so Arduino-flavored aliases
// and the interval-timer helpers are already defined.
//
//go:embed examples/lib/sketch.lua
var SketchHelperLibrary string
