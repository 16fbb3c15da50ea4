// Package sketch drives firmware-style application code on a desktop host.
// A sketch supplies the classic pair of entry points (Setup runs once,
// Loop runs forever) and the driver feeds it one input byte per iteration
// through a serial-port abstraction while the terminal package keeps the
// host terminal safe.
//
// The loop itself follows the firmware convention exactly: poll for at most
// one byte, hand a non-NUL byte to the sink, call Loop, yield for a tick.
// It never returns; a sketch ends the process through hal.Exit, an
// interrupt, or a fatal terminal failure, and every one of those paths
// restores the terminal on the way out.
package sketch

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/termino/serial"
	"github.com/srg/termino/terminal"
)

// DefaultTick is the cooperative pause between loop iterations.
const DefaultTick = time.Millisecond

// Callbacks are the sketch entry points. Both are optional and skipped when
// nil, mirroring the weak-symbol convention firmware cores use for
// setup/loop.
type Callbacks struct {
	Setup func()
	Loop  func()
}

// ByteSink accepts one received byte per loop iteration. *serial.Port is
// the standard implementation.
type ByteSink interface {
	InsertByte(b byte)
}

// ByteSource yields at most one byte without blocking. ok is false when no
// byte is available this iteration.
type ByteSource interface {
	PollByte() (b byte, ok bool, err error)
}

// Options configure a sketch run. The zero value hosts the sketch on the
// process's standard input and output.
type Options struct {
	// Source is where input bytes come from. When nil the driver polls
	// standard input and manages the terminal session for it.
	Source ByteSource

	// Sink receives input bytes; defaults to a serial port on stdout.
	Sink ByteSink

	// Session is the terminal lifecycle to manage. Filled in automatically
	// for the default stdin source; leave nil with a custom Source when no
	// terminal is involved (e.g. the PTY backend).
	Session *terminal.Session

	// Tick is the yield between iterations; DefaultTick when zero.
	Tick time.Duration

	// Logger for driver diagnostics; nil gets a fresh stderr logger.
	Logger *logrus.Logger
}

// Run hosts the sketch forever: arms the terminal guards, enters raw mode,
// invokes Setup once, then runs the loop per the firmware convention. It
// never returns.
func Run(opts *Options, cb Callbacks) {
	newDriver(opts, cb).run(-1)
}

// driver is the loop state. It exists separately from Run so tests can step
// a bounded number of iterations.
type driver struct {
	src     ByteSource
	sink    ByteSink
	session *terminal.Session
	tick    time.Duration
	logger  *logrus.Logger
	cb      Callbacks
}

func newDriver(opts *Options, cb Callbacks) *driver {
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	src := opts.Source
	session := opts.Session
	if src == nil {
		src = NewFilePoller(nil)
		if session == nil {
			session = terminal.NewSession(nil, logger)
		}
	}

	sink := opts.Sink
	if sink == nil {
		sink = serial.NewPort(nil, 0, logger)
	}

	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	return &driver{
		src:     src,
		sink:    sink,
		session: session,
		tick:    tick,
		logger:  logger,
		cb:      cb,
	}
}

// run arms the guards, performs setup, then executes iterations loop steps
// (forever when negative).
func (d *driver) run(iterations int) {
	if d.session != nil {
		// Guards go in before raw entry, so a failure during entry still
		// restores whatever was applied.
		d.session.ArmSignalGuard()
		d.session.ArmExitGuard()
		d.session.EnterRaw()
	}

	if d.cb.Setup != nil {
		d.cb.Setup()
	}

	for i := 0; iterations < 0 || i < iterations; i++ {
		d.step()
		time.Sleep(d.tick)
	}
}

// step is one loop iteration: at most one input byte is forwarded, then the
// sketch's Loop callback runs. NUL reads are discarded, matching the
// firmware convention where a zero char means "nothing arrived".
func (d *driver) step() {
	b, ok, err := d.src.PollByte()
	if err != nil {
		d.logger.WithError(err).Debug("input poll failed")
	}
	if ok && b != 0 {
		d.sink.InsertByte(b)
	}

	if d.cb.Loop != nil {
		d.cb.Loop()
	}
}
