package logtail

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Adapter so a plain function can serve as an io.Reader
type readFunc func([]byte) (int, error)

func (r readFunc) Read(p []byte) (int, error) {
	return r(p)
}

// Reads one event from the watch descriptor. Split out as a type so
// tests can inject failing reads
type eventReader func(fd int) (unix.InotifyEvent, error)

func readEvent(fd int) (unix.InotifyEvent, error) {
	data := make([]byte, unix.SizeofInotifyEvent)
	f := func(p []byte) (int, error) {
		return unix.Read(fd, p)
	}

	if _, err := io.ReadFull(readFunc(f), data); err != nil {
		return unix.InotifyEvent{}, err
	}
	// Watches on a regular file carry no trailing name, so the fixed-size
	// struct is the whole event
	return *(*unix.InotifyEvent)(unsafe.Pointer(&data[0])), nil
}

// WriteWatcher watches a single log file for writes. Each write to
// the file produces one message on the Events channel. The channel is
// closed when the watcher is closed. Callers *must* drain the Events
// channel, and may read Error afterwards for anything the watch ran
// into along the way.
type WriteWatcher struct {
	watchfd   int
	watchDesc int
	events    chan struct{}
	err       error
	closeOnce *sync.Once
	closeSync chan struct{}
	readEvent eventReader
}

// WatchWrites starts watching the file at path, which must already
// exist. The watch runs until Close is called.
func WatchWrites(path string) (*WriteWatcher, error) {
	return newWatcher(path, readEvent)
}

func newWatcher(path string, re eventReader) (*WriteWatcher, error) {
	fd, err := unix.InotifyInit()
	if err != nil {
		return nil, err
	}

	wd, err := unix.InotifyAddWatch(fd, path, unix.IN_MODIFY)
	if err != nil {
		// Nothing useful to do with a close failure on a watch
		// we never handed to the caller
		_ = unix.Close(fd)
		return nil, err
	}

	w := &WriteWatcher{
		watchfd:   fd,
		watchDesc: wd,
		events:    make(chan struct{}),
		closeOnce: &sync.Once{},
		closeSync: make(chan struct{}),
		readEvent: re,
	}

	// Pump events from the watch descriptor into the channel until the
	// watch is removed or a read fails
	go func() {
		defer close(w.events)
		var readError error
		for readError == nil {
			var ev unix.InotifyEvent
			ev, readError = w.readEvent(fd)
			if readError != nil {
				readError = fmt.Errorf("error reading from watch: %w", readError)
				break
			}
			if ev.Mask&unix.IN_MODIFY > 0 {
				w.events <- struct{}{}
				continue
			}
			// IN_IGNORED is the kernel telling us the watch was removed,
			// which is how Close shuts this goroutine down. Anything else
			// is unexpected
			if ev.Mask&unix.IN_IGNORED == 0 {
				readError = fmt.Errorf("unexpected event from watch '%d'", ev.Mask)
			}
			break
		}
		// Hold the descriptor open until Close has run, so Close's
		// InotifyRmWatch never races a closed fd
		<-w.closeSync
		w.err = errors.Join(readError, unix.Close(fd))
	}()

	return w, nil
}

// Close stops the watch. Safe to call more than once.
// The caller still owes a drain of the Events channel.
func (w *WriteWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		// Removing the watch forces an IN_IGNORED event out of the
		// descriptor, which unblocks the reader goroutine
		_, err = unix.InotifyRmWatch(w.watchfd, uint32(w.watchDesc))
		close(w.closeSync)
	})
	return err
}

// Events carries one message per observed write.
// Closed once the watch shuts down.
func (w *WriteWatcher) Events() chan struct{} {
	return w.events
}

// Error reports what, if anything, went wrong inside the watch.
// Only meaningful after the Events channel has closed — and the
// channel does not close until Close has been called, even when the
// watch itself has already failed. Close first, then drain, then ask.
func (w *WriteWatcher) Error() error {
	return w.err
}
