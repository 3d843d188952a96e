//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// Package epollshim emulates the Linux fd-centric event-notification API —
// epoll, timerfd, signalfd, and eventfd — on hosts whose native facility is
// a kqueue-style event queue rather than epoll.
//
// # Architecture
//
// Callers obtain file descriptors from the per-kind constructors
// ([NewEventFD], [NewTimerFD], [NewSignalFD], [NewEpollFD]), each of which
// takes the [Registry] to register the fd in, and then interact with
// them through the intercepted entry points in this package: [Close],
// [Read], [Write], [Fcntl], [Poll], and [Ppoll]. Each entry point consults
// the process-wide [Registry] (see registry.go): fds the registry knows
// about are dispatched through the owning [Descriptor]'s vtable; any other
// fd falls through to the host kernel untouched.
//
// The [Registry] is the backbone the rest of the package is layered on. It
// owns the fd->Descriptor map, guarded by a reader/writer lock
// (rwmutex.go) that supports atomic write->read downgrade, and it drives a
// best-effort wall-clock step detector (stepdetector.go) for absolute-clock
// timerfds on platforms that lack a native timerfd.
//
// # Platform support
//
// The host event queue is kqueue, wired via golang.org/x/sys/unix:
//   - darwin, freebsd, netbsd, openbsd, dragonfly: kqueue_unix.go
//
// # Collaborators
//
// eventfd.go, timerfd.go, signalfd.go, and epollfd.go are intentionally
// minimal collaborator kinds: they exist to exercise the registry and
// descriptor machinery end to end, not to claim full parity with Linux's
// corner-case semantics for those facilities.
//
// # Thread safety
//
// Every exported function in this package is safe to call concurrently
// from multiple goroutines, including concurrently against the same fd —
// see [Registry.FindNode] for the lifetime guarantee that makes this safe
// without holding any lock across a dispatch.
package epollshim
