//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"time"

	"golang.org/x/sys/unix"
)

// Poll is the shim's poll(2): a thin translation of a millisecond timeout
// onto Ppoll, matching epoll_shim_poll exactly (negative timeout means
// block indefinitely).
func (r *Registry) Poll(fds []unix.PollFd, timeoutMillis int) (int, error) {
	if timeoutMillis < 0 {
		return r.Ppoll(fds, nil, nil)
	}
	d := time.Duration(timeoutMillis) * time.Millisecond
	return r.Ppoll(fds, &d, nil)
}

// Ppoll is the shim's ppoll(2): for every fd in fds that names a live shim
// descriptor, it consults that descriptor's Poll hook instead of relying
// solely on the host kernel's view of readiness, retrying the host ppoll
// with a shrinking timeout until a real event surfaces or the deadline
// passes. See spec.md §4.5 for why a single host ppoll call is not enough:
// a shim descriptor's readiness can depend on state the host kernel has no
// way to see (e.g. an eventfd's accumulated counter).
//
// timeout nil blocks indefinitely, matching tmo_p == NULL. A zero duration
// polls once without blocking.
func (r *Registry) Ppoll(fds []unix.PollFd, timeout *time.Duration, sigmask *unix.Sigset_t) (int, error) {
	var deadline time.Time
	hasDeadline := timeout != nil
	var remaining time.Duration
	if hasDeadline {
		if *timeout < 0 {
			return 0, ErrInvalid
		}
		remaining = *timeout
		deadline = time.Now().Add(remaining)
	}

	for {
		for i := range fds {
			newPollable(r, int(fds[i].Fd)).Poll(nil)
		}

		var ts *unix.Timespec
		if hasDeadline {
			t := unix.NsecToTimespec(remaining.Nanoseconds())
			ts = &t
		}

		n, err := unix.Ppoll(fds, ts, sigmask)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}

		for i := range fds {
			if fds[i].Revents == 0 {
				continue
			}
			// Only a descriptor with a Poll hook gets to rewrite the
			// host's revents -- a plain host fd (no descriptor at all)
			// or a shim fd whose kind has no Poll hook keeps exactly
			// what the host ppoll reported, per §4.5(c)'s "if (!node)
			// continue; if (poll_fun != NULL)" passthrough.
			var revents uint32
			if !newPollable(r, int(fds[i].Fd)).Poll(&revents) {
				continue
			}
			fds[i].Revents = int16(revents)
			if fds[i].Revents == 0 {
				n--
			}
		}

		zeroTimeout := hasDeadline && remaining <= 0
		if n == 0 && !zeroTimeout {
			if hasDeadline {
				remaining = time.Until(deadline)
				if remaining < 0 {
					remaining = 0
				}
			}
			continue
		}

		return n, nil
	}
}
