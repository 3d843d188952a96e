//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Demonstration collaborator: a minimal timerfd backed by a private
// kqueue's EVFILT_TIMER. It supports the monotonic-clock case natively via
// the kqueue timer and the CLOCK_REALTIME ("absolute") case by additionally
// registering for RealtimeChange notifications from the step detector and
// re-arming against the wall clock when it fires -- the one vtable hook in
// this whole package that only stepdetector.go ever calls. Corner cases
// Linux's timerfd_settime covers (TFD_TIMER_CANCEL_ON_SET, disarming via a
// zero it_value while an overrun is pending, ...) are out of scope.
const timerIdent = 1

type timerfdState struct {
	mu       sync.Mutex
	kq       int
	registry *Registry
	realtime bool
	deadline time.Time // wall-clock target, only meaningful when realtime
	interval time.Duration
	pending  uint64
}

// NewTimerFD creates a shim timerfd. realtime selects CLOCK_REALTIME
// semantics (subject to step detection); otherwise the timer runs against
// the monotonic clock the host kqueue already uses.
func NewTimerFD(r *Registry, realtime bool) (int, error) {
	n, desc, err := r.CreateNode(CloExec)
	if err != nil {
		return 0, err
	}

	s := &timerfdState{kq: n.fd, registry: r, realtime: realtime}
	desc.State = s
	vt := &VTable{
		Close: timerfdClose,
		Read:  timerfdRead,
		Poll:  timerfdPoll,
	}
	if realtime {
		vt.RealtimeChange = timerfdRealtimeChange
	}
	desc.vtable = vt

	r.RealizeNode(n)

	if realtime {
		r.updateRealtimeChangeMonitoring(1)
	}
	return n.fd, nil
}

// SetTime arms or disarms fd's timer, matching timerfd_settime's
// non-TFD_TIMER_ABSTIME case: initial fires after the given duration from
// now, then (if interval is non-zero) repeats every interval.
func (r *Registry) SetTime(fd int, initial, interval time.Duration) error {
	desc := r.FindNode(fd)
	if desc == nil {
		return ErrBadFD
	}
	defer desc.unref()

	s, ok := desc.State.(*timerfdState)
	if !ok {
		return ErrInvalid
	}

	desc.Lock()
	defer desc.Unlock()

	s.mu.Lock()
	s.interval = interval
	if s.realtime {
		// Round(0) strips the monotonic reading so that time.Until in
		// timerfdRealtimeChange measures against the wall clock.
		s.deadline = time.Now().Add(initial).Round(0)
	}
	s.mu.Unlock()

	return armTimer(s.kq, timerIdent, initial.Milliseconds(), interval > 0)
}

func timerfdClose(desc *Descriptor) error {
	s := desc.State.(*timerfdState)
	if s.realtime {
		s.registry.updateRealtimeChangeMonitoring(-1)
	}
	return nil
}

func timerfdRead(desc *Descriptor, fd int, buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, ErrInvalid
	}
	s := desc.State.(*timerfdState)
	nonBlocking := desc.Flags()&NonBlock != 0

	s.mu.Lock()
	count := s.pending
	s.pending = 0
	s.mu.Unlock()

	if count == 0 {
		fresh, err := drainTimer(s.kq, timerIdent)
		if err != nil {
			return 0, err
		}
		count = fresh
	}

	if count == 0 {
		if nonBlocking {
			return 0, ErrWouldBlock
		}
		var events [1]unix.Kevent_t
		n, err := unix.Kevent(s.kq, nil, events[:], nil)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			count = uint64(events[0].Data)
		}
	}

	if count == 0 {
		return 0, ErrWouldBlock
	}

	binary.LittleEndian.PutUint64(buf, count)
	return 8, nil
}

func timerfdPoll(desc *Descriptor, fd int, revents *uint32) {
	s := desc.State.(*timerfdState)

	fresh, err := drainTimer(s.kq, timerIdent)
	if err == nil && fresh > 0 {
		s.mu.Lock()
		s.pending += fresh
		s.mu.Unlock()
	}
	if revents == nil {
		return
	}

	s.mu.Lock()
	ready := s.pending > 0
	s.mu.Unlock()
	if ready {
		*revents |= unix.POLLIN
	}
}

// timerfdRealtimeChange re-arms an absolute-clock timer against its wall
// clock deadline when the step detector observes CLOCK_REALTIME has moved,
// matching how the original keeps an absolute timerfd correct without a
// native kernel facility for it.
func timerfdRealtimeChange(desc *Descriptor, fd int) {
	s := desc.State.(*timerfdState)

	s.mu.Lock()
	deadline := s.deadline
	interval := s.interval
	s.mu.Unlock()
	if deadline.IsZero() {
		return
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	_ = armTimer(s.kq, timerIdent, remaining.Milliseconds(), interval > 0)
}
