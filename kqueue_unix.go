//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import "golang.org/x/sys/unix"

// newHostQueue creates the host kqueue fd backing a freshly created node,
// matching epoll_shim_ctx_create_node_impl's kqueue1(O_CLOEXEC)/kqueue()+
// fcntl(FD_CLOEXEC) pair. golang.org/x/sys/unix has no kqueue1, so this
// follows the same two-step idiom the teacher's FastPoller.Init uses:
// unix.Kqueue then unix.CloseOnExec.
func newHostQueue(flags CreateFlags) (int, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return 0, err
	}
	if flags&CloExec != 0 {
		unix.CloseOnExec(kq)
	}
	return kq, nil
}

// userTriggerIdent is the fixed EVFILT_USER identity every demo collaborator
// arms on its own private kqueue, used purely to make that kqueue report
// itself readable to the host ppoll whenever the collaborator's Go-side
// state changes (the counter becomes non-zero, a timer fires, a signal
// arrives). The descriptor, not the identity, disambiguates which
// collaborator a given kqueue belongs to, so a single fixed ident is fine.
const userTriggerIdent = 1

// armUserTrigger registers the EVFILT_USER watch a collaborator later fires
// with triggerUser.
func armUserTrigger(kq int) error {
	_, err := unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  userTriggerIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	return err
}

// triggerUser fires the EVFILT_USER watch armed by armUserTrigger, making
// kq report readable to poll/ppoll/kevent until a kevent call retrieves the
// event (it is armed with EV_CLEAR, so retrieval resets it).
func triggerUser(kq int) error {
	_, err := unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  userTriggerIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

// armTimer (re)arms a one-shot or periodic EVFILT_TIMER watch on kq, in
// milliseconds -- the default EVFILT_TIMER data unit on every BSD this
// package targets, avoiding the NOTE_NSECONDS/NOTE_USECONDS fflags that
// aren't uniformly available across them.
func armTimer(kq int, ident uintptr, periodMillis int64, periodic bool) error {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if !periodic {
		flags |= unix.EV_ONESHOT
	}
	_, err := unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  uint64(ident),
		Filter: unix.EVFILT_TIMER,
		Flags:  flags,
		Data:   periodMillis,
	}}, nil, nil)
	return err
}

// disarmTimer removes a previously armed EVFILT_TIMER watch.
func disarmTimer(kq int, ident uintptr) error {
	_, err := unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  uint64(ident),
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_DELETE,
	}}, nil, nil)
	return err
}

// drainTimer non-blockingly collects pending EVFILT_TIMER fire counts for
// ident, returning the summed overrun count (0 if none pending).
func drainTimer(kq int, ident uintptr) (uint64, error) {
	var events [8]unix.Kevent_t
	zero := unix.Timespec{}
	n, err := unix.Kevent(kq, nil, events[:], &zero)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	var total uint64
	for i := 0; i < n; i++ {
		if events[i].Filter == unix.EVFILT_TIMER && uintptr(events[i].Ident) == ident {
			total += uint64(events[i].Data)
		}
	}
	return total, nil
}
