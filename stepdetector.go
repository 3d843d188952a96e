//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"time"

	"golang.org/x/sys/unix"
)

// defaultStepDetectorEnabled mirrors the original's #ifndef HAVE_TIMERFD:
// platforms with a native timerfd (Linux) get wall-clock step notifications
// for free from the kernel, so the background detector this file implements
// only makes sense -- and is only compiled -- everywhere else.
const defaultStepDetectorEnabled = true

// monotonicOffset returns CLOCK_REALTIME minus CLOCK_MONOTONIC, in
// nanoseconds, matching timerfd_ctx_get_monotonic_offset. A step in the
// wall clock (settime, NTP slew, suspend/resume) changes this value; a step
// in the monotonic clock, by definition, cannot.
func monotonicOffset() (int64, error) {
	var real, mono unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &real); err != nil {
		return 0, err
	}
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &mono); err != nil {
		return 0, err
	}
	return (int64(real.Sec)*time.Second.Nanoseconds() + int64(real.Nsec)) -
		(int64(mono.Sec)*time.Second.Nanoseconds() + int64(mono.Nsec)), nil
}

// stepDetector is the Go equivalent of the original's detached pthread: a
// single goroutine, started on demand, that polls the realtime/monotonic
// offset and broadcasts RealtimeChange to every live descriptor when it
// moves. It corresponds to no single C type -- the original keeps its state
// inline on EpollShimCtx -- but spec.md §4.6 calls it out as its own
// concern, so it gets its own file and type here.
//
// stepDetector has no exported surface; Registry owns the only instance and
// drives it entirely through updateRealtimeChangeMonitoring.
type stepDetector struct {
	registry *Registry
	interval time.Duration
}

// run polls monotonicOffset every interval until generation no longer
// matches the Registry's current stepDetectorGeneration, mirroring
// realtime_step_detection's generation-based best-effort exit. It is
// started in its own goroutine by updateRealtimeChangeMonitoring.
func (s *stepDetector) run(generation uint64) {
	offset, err := monotonicOffset()
	if err != nil {
		// Best effort, same as the original: bail out silently.
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.C {
		s.registry.stepMu.Lock()
		stale := s.registry.stepDetectorGeneration != generation
		s.registry.stepMu.Unlock()
		if stale {
			return
		}

		next, err := monotonicOffset()
		if err != nil {
			return
		}
		if next == offset {
			continue
		}
		offset = next

		s.registry.notifyRealtimeChange()
	}
}

// notifyRealtimeChange walks every registered descriptor under a shared
// read lock and invokes its RealtimeChange hook, implementing
// epoll_shim_ctx_for_each_unlocked(..., trigger_realtime_change_notification).
func (r *Registry) notifyRealtimeChange() {
	r.rw.lockRead()
	for _, n := range r.nodes {
		n.desc.doRealtimeChange(n.fd)
	}
	r.rw.unlockRead()
}

// updateRealtimeChangeMonitoring implements
// epoll_shim_ctx_update_realtime_change_monitoring: it tracks how many live
// descriptors care about realtime steps (currently just absolute-clock
// timerfds) and starts or retires the background detector goroutine as that
// count transitions to/from zero. change is positive when a caring
// descriptor is created, negative when one is destroyed.
func (r *Registry) updateRealtimeChangeMonitoring(change int) {
	if change == 0 || !r.stepDetectorEnabled {
		return
	}

	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	old := r.nrFDsForStepDetector
	if change < 0 {
		r.nrFDsForStepDetector -= uint64(-change)
		if r.nrFDsForStepDetector == 0 {
			r.stepDetectorGeneration++
		}
		return
	}

	r.nrFDsForStepDetector += uint64(change)
	if old == 0 {
		generation := r.stepDetectorGeneration
		interval := r.stepDetectorInterval
		if interval <= 0 {
			interval = time.Second
		}
		s := &stepDetector{registry: r, interval: interval}
		go s.run(generation)
	}
}
