package counter_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gopheryan/counterproc/counter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var countLine = regexp.MustCompile(`^Count (\d+) alive at (.+)$`)

// Pull the counter values back out of emitted lines, failing the test
// on anything that doesn't look like a count line
func parseCounts(t *testing.T, output string) []uint64 {
	t.Helper()
	var counts []uint64
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		match := countLine.FindStringSubmatch(line)
		require.NotNil(t, match, "line %q does not look like a count line", line)

		n, err := strconv.ParseUint(match[1], 10, 64)
		require.NoError(t, err)
		counts = append(counts, n)

		// The timestamp half has to at least parse back
		_, err = time.Parse(time.ANSIC, match[2])
		assert.NoError(t, err, "unparseable timestamp in line %q", line)
	}
	return counts
}

func TestLoop(t *testing.T) {
	out := bytes.Buffer{}
	loop := counter.New(counter.Config{
		Iterations: 3,
		Out:        &out,
	})
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []uint64{0, 1, 2}, parseCounts(t, out.String()))
}

func TestLoopUsesInjectedClock(t *testing.T) {
	out := bytes.Buffer{}
	stamp := time.Date(2026, time.March, 9, 14, 30, 5, 0, time.UTC)
	loop := counter.New(counter.Config{
		Iterations: 1,
		Out:        &out,
		Now:        func() time.Time { return stamp },
	})
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, fmt.Sprintf("Count 0 alive at %s\n", stamp.Format(time.ANSIC)), out.String())
}

// Sink that counts its Flush calls and can be told to start failing them
type flushRecorder struct {
	bytes.Buffer
	flushes  int
	flushErr error
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return f.flushErr
}

func TestLoopFlushesEveryLine(t *testing.T) {
	sink := &flushRecorder{}
	loop := counter.New(counter.Config{
		Iterations: 5,
		Out:        sink,
	})
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, 5, sink.flushes)
}

func TestLoopStopsOnFlushError(t *testing.T) {
	flushFailure := errors.New("flush failed!")
	sink := &flushRecorder{flushErr: flushFailure}
	loop := counter.New(counter.Config{
		Iterations: 5,
		Out:        sink,
	})

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, flushFailure)
	// First flush failed, so only the first line should have made it out
	assert.Equal(t, []uint64{0}, parseCounts(t, sink.String()))
}

type failWriter struct {
	err error
}

func (w failWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}

func TestLoopStopsOnWriteError(t *testing.T) {
	writeFailure := errors.New("sink has gone away")
	loop := counter.New(counter.Config{
		Iterations: 5,
		Out:        failWriter{err: writeFailure},
	})
	assert.ErrorIs(t, loop.Run(context.Background()), writeFailure)
}

func TestLoopCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := bytes.Buffer{}
	loop := counter.New(counter.Config{
		Iterations: 5,
		Out:        &out,
	})
	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
	assert.Zero(t, out.Len(), "no lines should be written after cancellation")
}

func TestLoopCancelledMidSleep(t *testing.T) {
	// An interval this long means the loop can only finish on time by
	// honoring the context during its sleep
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := bytes.Buffer{}
	loop := counter.New(counter.Config{
		Iterations: 5,
		Interval:   1 * time.Hour,
		Out:        &out,
	})

	start := time.Now()
	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []uint64{0}, parseCounts(t, out.String()))
}

// Two runs against the same append-mode file must stack their output,
// never truncate what's already there
func TestLoopAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.log")

	runOnce := func() {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		require.NoError(t, err)
		defer f.Close()

		loop := counter.New(counter.Config{
			Iterations: 2,
			Out:        f,
		})
		require.NoError(t, loop.Run(context.Background()))
	}

	runOnce()
	runOnce()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 0, 1}, parseCounts(t, string(data)))
}
