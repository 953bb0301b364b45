package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gopheryan/counterproc/counter"
	"github.com/gopheryan/counterproc/redirect"
)

// Hardcoded! This is a test fixture; predictability beats flexibility
const (
	logPath    = "output.log"
	iterations = 600
	interval   = 3 * time.Second
)

// A slow, observable child process for exercising process managers.
// It redirects its own stdout/stderr into a log file, detaches stdin,
// then ticks a counter into the log every few seconds for roughly
// half an hour so whatever launched it has something to watch.
func main() {
	os.Exit(run(logPath, iterations, interval))
}

// Whatever launched us cares about the exit status, so keep os.Exit
// in one spot and let every failure path return through here.
// Parameterized so tests can drive the whole sequence with a short
// loop and a scratch log path
func run(path string, loops uint64, pause time.Duration) int {
	// Until the stderr redirect lands, the *original* stderr is the
	// only place setup problems can be reported
	fmt.Fprintf(os.Stderr, "counter starting. Attempting to open %s\n", path)

	logFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
		return 1
	}

	if err := redirect.Stdout(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		logFile.Close()
		return 1
	}

	if err := redirect.Stderr(logFile); err != nil {
		// Can't report this one anywhere useful: the reporting channel
		// is the thing that just failed to redirect
		logFile.Close()
		return 1
	}

	// fds 1 and 2 hold the log open now; this handle is a duplicate
	logFile.Close()

	// Goes to the file from here on
	fmt.Printf("Redirected stdout/stderr to %s\n", path)

	if err := redirect.StdinFromNull(); err != nil {
		// Non-fatal. Whatever stdin we inherited stays as-is
		fmt.Printf("Warning: %v\n", err)
	}

	fmt.Println("Program setup complete. Entering loop.")

	loop := counter.New(counter.Config{
		Iterations: loops,
		Interval:   pause,
		Out:        os.Stdout,
	})
	if err := loop.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}
