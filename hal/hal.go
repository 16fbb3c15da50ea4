// Package hal provides the host-side stand-ins for the runtime primitives a
// firmware-style sketch expects: monotonic tick counters, delays, cooperative
// yielding, a no-op pin surface, and a process exit that runs the registered
// cleanup hooks (terminal restoration included) on the way out.
package hal

import (
	"time"

	"github.com/sirupsen/logrus"
)

// yieldInterval is the cooperative pause a sketch (and the loop driver)
// takes between iterations so a busy loop cannot saturate a core.
const yieldInterval = time.Millisecond

// startTime anchors Millis/Micros, so sketches observe time since process
// start the way firmware observes time since reset.
var startTime = time.Now()

// Millis returns the number of milliseconds elapsed since process start.
func Millis() int64 {
	return time.Since(startTime).Milliseconds()
}

// Micros returns the number of microseconds elapsed since process start.
func Micros() int64 {
	return time.Since(startTime).Microseconds()
}

// Delay suspends the caller for ms milliseconds.
func Delay(ms int64) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// DelayMicroseconds suspends the caller for us microseconds.
func DelayMicroseconds(us int64) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// Yield pauses for about a millisecond.
func Yield() {
	time.Sleep(yieldInterval)
}

// Exit ends the process with the given status code after running every
// registered exit handler. Sketches must use this instead of os.Exit, which
// would skip terminal restoration.
func Exit(code int) {
	// The standard logger's Exit honors ExitFunc; the package-level
	// logrus.Exit calls os.Exit unconditionally.
	logrus.StandardLogger().Exit(code)
}
