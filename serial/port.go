// Package serial implements the host-side serial port a hosted sketch talks
// to. Input bytes (keystrokes in terminal mode, peer writes in PTY mode)
// accumulate in a ring buffer the sketch drains at its own pace; sketch
// output goes straight to the configured writer. The port never rewrites
// bytes; in terminal mode the raw configuration's ONLCR is what turns each
// outgoing \n into \r\n.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

// DefaultBufferSize is the receive ring capacity used when none is given.
const DefaultBufferSize = 4096

// noopLogger discards everything; shared so quiet ports don't each allocate.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Port is the sketch-facing serial endpoint.
type Port struct {
	mu     sync.Mutex
	rx     *ringbuffer.RingBuffer
	peek   byte
	peeked bool

	w      io.Writer
	logger *logrus.Logger

	in      [1]byte
	dropped uint64
}

// Stats are instantaneous receive-side counters.
type Stats struct {
	Buffered     int
	Capacity     int
	DroppedBytes uint64
}

// NewPort creates a port writing output to w (os.Stdout when nil) with a
// receive ring of the given capacity (DefaultBufferSize when <= 0). A nil
// logger discards log output.
func NewPort(w io.Writer, capacity int, logger *logrus.Logger) *Port {
	if w == nil {
		w = os.Stdout
	}
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	if logger == nil {
		logger = noopLogger
	}
	return &Port{
		rx:     ringbuffer.New(capacity),
		w:      w,
		logger: logger,
	}
}

// InsertByte queues one received byte for the sketch. When the ring is full
// the byte is dropped, the way a small UART FIFO overruns.
func (p *Port) InsertByte(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.in[0] = b
	n, err := p.rx.Write(p.in[:])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		p.logger.WithError(err).Warn("serial rx enqueue failed")
		return
	}
	if n == 0 {
		p.dropped++
		p.logger.WithField("dropped_total", p.dropped).Debug("serial rx buffer full, byte dropped")
	}
}

// Available reports how many received bytes are waiting to be read.
func (p *Port) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.rx.Length()
	if p.peeked {
		n++
	}
	return n
}

// ReadByte pops the next received byte; ok is false when nothing is waiting.
func (p *Port) ReadByte() (b byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peeked {
		p.peeked = false
		return p.peek, true
	}
	return p.takeLocked()
}

// Peek returns the next received byte without consuming it.
func (p *Port) Peek() (b byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peeked {
		return p.peek, true
	}
	b, ok = p.takeLocked()
	if ok {
		p.peek = b
		p.peeked = true
	}
	return b, ok
}

func (p *Port) takeLocked() (byte, bool) {
	var out [1]byte
	n, err := p.rx.TryRead(out[:])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		p.logger.WithError(err).Warn("serial rx dequeue failed")
		return 0, false
	}
	if n == 0 {
		return 0, false
	}
	return out[0], true
}

// Write sends sketch output to the port's writer, implementing io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// WriteByte sends a single output byte.
func (p *Port) WriteByte(b byte) error {
	_, err := p.w.Write([]byte{b})
	return err
}

// WriteString sends a string of output bytes.
func (p *Port) WriteString(s string) (int, error) {
	return io.WriteString(p.w, s)
}

// Print writes the operands with fmt.Fprint semantics.
func (p *Port) Print(args ...any) (int, error) {
	return fmt.Fprint(p.w, args...)
}

// Println writes the operands followed by a newline.
func (p *Port) Println(args ...any) (int, error) {
	return fmt.Fprintln(p.w, args...)
}

// Printf writes a formatted string.
func (p *Port) Printf(format string, args ...any) (int, error) {
	return fmt.Fprintf(p.w, format, args...)
}

// Stats returns instantaneous receive-side counters for monitoring.
func (p *Port) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	buffered := p.rx.Length()
	if p.peeked {
		buffered++
	}
	return Stats{
		Buffered:     buffered,
		Capacity:     p.rx.Capacity(),
		DroppedBytes: p.dropped,
	}
}
