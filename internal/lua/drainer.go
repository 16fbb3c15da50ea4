package lua

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/termino/internal/groutine"
)

// finalDrainTimeout bounds how long a stopping drainer keeps flushing
// residual records.
const finalDrainTimeout = 100 * time.Millisecond

// OutputDrainer streams records from an engine's output channel to a pair
// of writers as they arrive. Cancel stops it after a bounded final flush;
// Wait blocks until the goroutine is gone.
type OutputDrainer struct {
	cancelOnce sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup
}

// NewOutputDrainer starts draining outputChan to stdout/stderr. Nil
// writers discard their stream.
func NewOutputDrainer(ctx context.Context, outputChan <-chan OutputRecord, logger *logrus.Logger, stdout, stderr io.Writer) *OutputDrainer {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if logger == nil {
		logger = logrus.New()
	}

	d := &OutputDrainer{stop: make(chan struct{})}
	d.wg.Add(1)
	groutine.Go(ctx, "lua-output-drainer", func(ctx context.Context) {
		defer d.wg.Done()
		defer logger.Debugf("%s: exiting", groutine.GetName(ctx))

		for {
			select {
			case record, ok := <-outputChan:
				if !ok {
					return
				}
				writeRecord(record, stdout, stderr, logger)
			case <-d.stop:
				flushRemaining(outputChan, stdout, stderr, finalDrainTimeout, logger)
				return
			case <-ctx.Done():
				flushRemaining(outputChan, stdout, stderr, finalDrainTimeout, logger)
				return
			}
		}
	})
	return d
}

// Cancel signals the drainer to flush what remains and stop.
func (d *OutputDrainer) Cancel() {
	d.cancelOnce.Do(func() {
		close(d.stop)
	})
}

// Wait blocks until the draining goroutine has exited.
func (d *OutputDrainer) Wait() {
	d.wg.Wait()
}

func writeRecord(record OutputRecord, stdout, stderr io.Writer, logger *logrus.Logger) {
	var err error
	switch record.Source {
	case "stderr":
		_, err = fmt.Fprint(stderr, record.Content)
	default:
		_, err = fmt.Fprint(stdout, record.Content)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"source": record.Source,
			"error":  err,
		}).Warn("output drainer write failed")
	}
}

// flushRemaining drains whatever is still buffered, bounded by timeout so
// a wedged writer cannot leak the goroutine.
func flushRemaining(outputChan <-chan OutputRecord, stdout, stderr io.Writer, timeout time.Duration, logger *logrus.Logger) {
	deadline := time.After(timeout)
	flushed := 0
	for {
		select {
		case record, ok := <-outputChan:
			if !ok {
				logger.WithField("flushed", flushed).Debug("output drainer final flush complete")
				return
			}
			flushed++
			writeRecord(record, stdout, stderr, logger)
		case <-deadline:
			logger.WithField("flushed", flushed).Debug("output drainer final flush timed out")
			return
		}
	}
}
