package counter

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Flusher is implemented by sinks that buffer writes.
// The loop flushes after every line so that an outside
// observer sees each line as soon as it is written, not
// whenever the buffer happens to fill or the process exits.
type Flusher interface {
	Flush() error
}

type Config struct {
	// Number of lines to emit before Run returns
	Iterations uint64
	// How long to pause after each line. The pause happens on
	// every iteration, the final one included
	Interval time.Duration
	// Destination for the count lines. If it implements Flusher,
	// Flush is called once per line
	Out io.Writer
	// Timestamp source. Defaults to time.Now
	Now func() time.Time
}

// Loop emits 'Count <n> alive at <timestamp>' lines to its sink,
// one per iteration, pausing between lines. It is the heartbeat
// half of the fixture; where those lines end up (a log file, a
// buffer in a test) is entirely the caller's business.
type Loop struct {
	iterations uint64
	interval   time.Duration
	out        io.Writer
	now        func() time.Time
}

func New(cfg Config) *Loop {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Loop{
		iterations: cfg.Iterations,
		interval:   cfg.Interval,
		out:        cfg.Out,
		now:        now,
	}
}

// Run counts from 0 up to (not including) the configured iteration
// bound. A write or flush failure is fatal and ends the run; a
// half-written heartbeat is worse than a dead one, because the whole
// point of the output is that something else is reading it.
// Cancelling the context stops the loop between lines (or mid-pause)
// and returns ctx.Err(). Callers that want the original
// run-until-killed behavior just pass context.Background().
func (l *Loop) Run(ctx context.Context) error {
	for count := uint64(0); count < l.iterations; count++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		stamp := l.now().Format(time.ANSIC)
		if _, err := fmt.Fprintf(l.out, "Count %d alive at %s\n", count, stamp); err != nil {
			return fmt.Errorf("error writing count line %d: %w", count, err)
		}
		if f, ok := l.out.(Flusher); ok {
			if err := f.Flush(); err != nil {
				return fmt.Errorf("error flushing after count line %d: %w", count, err)
			}
		}

		if err := sleep(ctx, l.interval); err != nil {
			return err
		}
	}
	return nil
}

// Blocking wait that still honors cancellation
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
