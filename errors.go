//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Standard errno values surfaced by this package. Every error returned
// across the package boundary either is one of these, wraps one of these
// via fmt.Errorf("%w", ...), or is a host errno, passed through unmodified
// or wrapped with context the same way.
var (
	ErrBadFD       = unix.EBADF
	ErrInvalid     = unix.EINVAL
	ErrNoMemory    = unix.ENOMEM
	ErrWouldBlock  = unix.EAGAIN
	ErrNotPossible = unix.ENOTTY
)

// errnoOf extracts the syscall.Errno from err, if any, returning 0 when
// there is none. Registry.CreateNode uses it to recognize ENOMEM from the
// host event-queue constructor.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

// firstNonNil implements the destruction-path composition rule: the first
// non-nil error wins, later ones are discarded. destroyNode uses it to
// combine the kind's Close hook error (via unref) with the node's host close
// of its fd.
func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// wrapf mirrors the teacher's errors.go WrapError helper: a thin
// fmt.Errorf("%w", ...) wrapper kept as a named function so call sites read
// like prose and so errors.Is/As continue to work through the chain.
func wrapf(message string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, cause)
}
