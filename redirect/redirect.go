// Package redirect points the process's standard streams somewhere
// else at the file descriptor level. Working on raw descriptors
// (rather than swapping the os.Stdout variable) means runtime-level
// output and anything that inherited the descriptors gets captured
// too.
package redirect

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Stdout points file descriptor 1 at f. The original descriptor is
// silently replaced; there is no undo. f itself stays open and still
// needs to be closed by the caller once redirection is complete.
func Stdout(f *os.File) error {
	return dupOnto(f, int(os.Stdout.Fd()), "stdout")
}

// Stderr points file descriptor 2 at f. Same contract as Stdout.
func Stderr(f *os.File) error {
	return dupOnto(f, int(os.Stderr.Fd()), "stderr")
}

// StdinFromNull points file descriptor 0 at the platform null device,
// so anything reading standard input sees immediate EOF instead of
// blocking on input that will never come.
func StdinFromNull() error {
	null, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", os.DevNull, err)
	}
	defer null.Close()

	if err := unix.Dup3(int(null.Fd()), int(os.Stdin.Fd()), 0); err != nil {
		return fmt.Errorf("error redirecting stdin from %s: %w", os.DevNull, err)
	}
	return nil
}

// Dup3 rather than Dup2: x/sys doesn't expose Dup2 on every
// linux arch, and with flags=0 they behave the same here
func dupOnto(f *os.File, fd int, name string) error {
	if err := unix.Dup3(int(f.Fd()), fd, 0); err != nil {
		return fmt.Errorf("error redirecting %s to %s: %w", name, f.Name(), err)
	}
	return nil
}
