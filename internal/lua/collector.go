package lua

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Collector lifecycle states.
const (
	collectorIdle uint32 = iota
	collectorRunning
	collectorStopping
)

// MaxCollectorBuffer guards against accidental misconfiguration.
const MaxCollectorBuffer uint32 = 1 << 20

// CollectorMetrics is a snapshot of an OutputCollector's counters.
type CollectorMetrics struct {
	Collected   int64 // records moved from the channel into the buffer
	Overwritten int64 // records lost to buffer overflow
	Errors      int64
}

// OutputCollector moves records from an engine's output channel into an
// MPMC ring buffer, where they wait until a consumer asks for them. It is
// the gather-then-assert half of output handling; OutputDrainer is the
// streaming half.
type OutputCollector struct {
	source <-chan OutputRecord
	buffer mpmc.RichOverlappedRingBuffer[OutputRecord]
	stop   chan struct{}
	done   chan struct{}

	state       atomic.Uint32
	collected   atomic.Int64
	overwritten atomic.Int64
	errors      atomic.Int64
}

// NewOutputCollector creates a collector over ch with the given ring
// buffer size.
func NewOutputCollector(ch <-chan OutputRecord, bufferSize uint32) (*OutputCollector, error) {
	if ch == nil {
		return nil, fmt.Errorf("output channel cannot be nil")
	}
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxCollectorBuffer {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxCollectorBuffer)
	}
	return &OutputCollector{
		source: ch,
		buffer: mpmc.NewOverlappedRingBuffer[OutputRecord](bufferSize),
	}, nil
}

// Start launches the collecting goroutine. It returns once the goroutine
// is confirmed running, or an error if the collector is already active.
func (c *OutputCollector) Start() error {
	if !c.state.CompareAndSwap(collectorIdle, collectorRunning) {
		switch c.state.Load() {
		case collectorRunning:
			return fmt.Errorf("collector is already running")
		case collectorStopping:
			return fmt.Errorf("collector is stopping, wait for it to finish")
		default:
			return fmt.Errorf("collector is in unknown state %d", c.state.Load())
		}
	}

	// Fresh channels per start cycle so Stop/Start sequences never close a
	// closed channel.
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	started := make(chan struct{}, 1)
	go func() {
		started <- struct{}{}
		// Idle must be visible before done closes, or a Stop-then-Start
		// sequence could find the old state.
		defer func() {
			c.state.Store(collectorIdle)
			close(c.done)
		}()
		for {
			select {
			case <-c.stop:
				return
			case rec, ok := <-c.source:
				if !ok {
					return
				}
				// The overlapped ring drops the oldest record on overflow
				// and reports how many were displaced.
				overwrites, err := c.buffer.EnqueueM(rec)
				if err != nil {
					c.errors.Add(1)
					return
				}
				c.overwritten.Add(int64(overwrites))
				c.collected.Add(1)
			}
		}
	}()

	select {
	case <-started:
		return nil
	case <-time.After(time.Second):
		close(c.stop)
		<-c.done
		return fmt.Errorf("collector failed to start within 1s")
	}
}

// Stop halts collection. Records already buffered stay available to
// consumers.
func (c *OutputCollector) Stop() error {
	if !c.state.CompareAndSwap(collectorRunning, collectorStopping) {
		switch c.state.Load() {
		case collectorIdle:
			return nil
		case collectorStopping:
			// another Stop is in flight; fall through and wait with it
		default:
			return fmt.Errorf("collector is in unknown state %d", c.state.Load())
		}
	} else {
		close(c.stop)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		<-c.done
		return fmt.Errorf("collector stop exceeded 5s")
	}
}

// Metrics returns a snapshot of the counters.
func (c *OutputCollector) Metrics() CollectorMetrics {
	return CollectorMetrics{
		Collected:   c.collected.Load(),
		Overwritten: c.overwritten.Load(),
		Errors:      c.errors.Load(),
	}
}

// ConsumerFunc consumes buffered records one at a time. It is called with
// each record in order and finally with nil when the buffer is empty, at
// which point it returns the accumulated result.
type ConsumerFunc[T any] func(record *OutputRecord) (T, error)

// ConsumeRecords drains the buffer through consumer and returns its final
// result.
func ConsumeRecords[T any](c *OutputCollector, consumer ConsumerFunc[T]) (T, error) {
	for !c.buffer.IsEmpty() {
		rec, err := c.buffer.Dequeue()
		if err != nil {
			var zero T
			return zero, fmt.Errorf("buffer dequeue error: %w", err)
		}
		if result, err := consumer(&rec); err != nil {
			return result, err
		}
	}
	return consumer(nil)
}

// ConsumePlainText drains the buffer and concatenates record contents,
// ignoring source and timestamps.
func (c *OutputCollector) ConsumePlainText() (string, error) {
	var buf strings.Builder
	return ConsumeRecords(c, func(record *OutputRecord) (string, error) {
		if record == nil {
			return buf.String(), nil
		}
		buf.WriteString(record.Content)
		return "", nil
	})
}
