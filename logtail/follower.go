// Package logtail follows a log file that a single writer is
// appending to, the way a test harness tails the counter fixture's
// output.log while the fixture is still alive.
//
// POSIX serializes reads against writes on regular files ("If a
// read() of file data can be proven (by any means) to occur after a
// write() of the data, it must reflect that write(), even if the
// calls are made by different processes"), so one writer plus any
// number of followers is safe without coordination. To avoid losing
// the tail of the file around writer shutdown, a follower makes one
// last read *after* it learns the writer is done.
package logtail

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Follower is an io.ReadCloser over a growing log file. Reads return
// data as the writer appends it, blocking on the file's write events
// in between, and return io.EOF only once writerDone has closed and
// the remaining file content has been drained.
type Follower struct {
	file    *os.File
	watcher *WriteWatcher

	// Closed by the caller once the file will receive no more writes.
	// Nil'd out after the shutdown path has run so we only take it once
	writerDone <-chan struct{}

	closeOnce *sync.Once
}

// Follow opens the file at path for reading and starts watching it
// for writes. writerDone tells the follower when to stop waiting for
// more data.
func Follow(path string, writerDone <-chan struct{}) (*Follower, error) {
	readHandle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening log file '%s' for reading: %w", path, err)
	}

	watcher, err := WatchWrites(path)
	if err != nil {
		_ = readHandle.Close()
		return nil, fmt.Errorf("failed to watch log file: %w", err)
	}

	return &Follower{
		file:       readHandle,
		watcher:    watcher,
		writerDone: writerDone,
		closeOnce:  &sync.Once{},
	}, nil
}

func (f *Follower) Read(p []byte) (int, error) {
	// file.Read returns (0, io.EOF) with p untouched, so hitting EOF
	// and retrying loses nothing
	for {
		count, err := f.file.Read(p)
		if err == nil || !errors.Is(err, io.EOF) {
			// Data, or a real read error. Either way it's the caller's now
			return count, err
		}

		// Caught up with the writer. Wait for it to either write more
		// or finish
		select {
		case _, ok := <-f.watcher.Events():
			if !ok {
				// Watch shut down. Surface its error if it had one,
				// otherwise hand back whatever the file has left
				// (a clean final read returns io.EOF and we're done)
				if f.watcher.Error() != nil {
					return 0, fmt.Errorf("watcher encountered unexpected error: %w", f.watcher.Error())
				}
				return f.file.Read(p)
			}
		case <-f.writerDone:
			f.writerDone = nil
			// Closing the watcher lets the next pass through the loop
			// drain the file and land on the events-closed branch above
			if err := f.watcher.Close(); err != nil {
				// Still on the hook for the drain
				for range f.watcher.Events() {
				}
				return 0, err
			}
		}
	}
}

// Close releases the read handle and the watch. Safe for multiple
// calls; all calls after the first do nothing and return nil.
func (f *Follower) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = errors.Join(
			f.watcher.Close(),
			f.file.Close(),
		)
		// Drain, per the watcher's contract
		for range f.watcher.Events() {
		}
	})
	return err
}
