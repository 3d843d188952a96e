//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"time"

	"golang.org/x/sys/unix"
)

// Close is the shim's close(2): epoll_shim_ctx_remove_node plus propagating
// the node's own close error, matching epoll_shim_close. Closing an fd the
// registry doesn't know about still host-closes it (see RemoveNode).
func (r *Registry) Close(fd int) error {
	return r.RemoveNode(fd)
}

// Read is the shim's read(2). An fd the registry doesn't know about falls
// through to the host's own read, matching epoll_shim_read's real_read
// fallback.
func (r *Registry) Read(fd int, buf []byte) (int, error) {
	desc := r.FindNode(fd)
	if desc == nil {
		return unix.Read(fd, buf)
	}
	defer desc.unref()
	return desc.doRead(fd, buf)
}

// Write is the shim's write(2). An fd the registry doesn't know about falls
// through to the host's own write, matching epoll_shim_write's real_write
// fallback.
func (r *Registry) Write(fd int, buf []byte) (int, error) {
	desc := r.FindNode(fd)
	if desc == nil {
		return unix.Write(fd, buf)
	}
	defer desc.unref()
	return desc.doWrite(fd, buf)
}

// Fcntl is the shim's fcntl(fd, F_SETFL, arg) restricted to the
// O_NONBLOCK bit -- the only F_SETFL flag the original cares about -- per
// epoll_shim_fcntl. For a shim descriptor it sets FIONBIO on the host fd
// under the descriptor's own mutex (required even for shim descriptors,
// since their host-side kqueue-backed syscalls still need to agree) and
// then records the requested state on the Descriptor. An fd the registry
// doesn't know about passes straight through to the host's own
// fcntl(F_SETFL), matching the original's real_fcntl(fd, cmd, arg)
// passthrough, rather than being routed through the FIONBIO ioctl at all.
//
// Other fcntl commands have no shim-specific behavior and are intentionally
// not exposed here; callers should just use unix.FcntlInt directly for
// those.
func (r *Registry) Fcntl(fd int, nonBlocking bool) error {
	desc := r.FindNode(fd)
	if desc == nil {
		return hostSetNonBlocking(fd, nonBlocking)
	}
	defer desc.unref()

	desc.Lock()
	defer desc.Unlock()

	opt := 0
	if nonBlocking {
		opt = 1
	}
	if err := unix.IoctlSetInt(fd, unix.FIONBIO, opt); err != nil && err != ErrNotPossible {
		return err
	}
	desc.setNonBlocking(nonBlocking)
	return nil
}

// hostSetNonBlocking implements fcntl(fd, F_SETFL, ...) restricted to the
// O_NONBLOCK bit for a plain host fd: read the current flags, flip just
// that bit, and write the whole word back, so any other F_SETFL-settable
// bit (e.g. O_APPEND) a caller had already set survives untouched.
func hostSetNonBlocking(fd int, nonBlocking bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	if nonBlocking {
		flags |= unix.O_NONBLOCK
	} else {
		flags &^= unix.O_NONBLOCK
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags)
	return err
}

// Close, Read, Write, and Fcntl are the process-wide entry points,
// operating against Default(). Callers that constructed their own Registry
// should use its methods directly instead.

func Close(fd int) error {
	return Default().Close(fd)
}

func Read(fd int, buf []byte) (int, error) {
	return Default().Read(fd, buf)
}

func Write(fd int, buf []byte) (int, error) {
	return Default().Write(fd, buf)
}

func Fcntl(fd int, nonBlocking bool) error {
	return Default().Fcntl(fd, nonBlocking)
}

func Poll(fds []unix.PollFd, timeoutMillis int) (int, error) {
	return Default().Poll(fds, timeoutMillis)
}

func Ppoll(fds []unix.PollFd, timeout *time.Duration, sigmask *unix.Sigset_t) (int, error) {
	return Default().Ppoll(fds, timeout, sigmask)
}
