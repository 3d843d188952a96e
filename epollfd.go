//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Demonstration collaborator: a minimal epollfd. It is the one kind whose
// sole purpose in this repo is to exercise RemoveFD, the registry's
// remove_node three-pass walk's reason for existing (see registry.go and
// spec.md §4.2/§9). It implements watch/unwatch and a readiness scan, not
// the full edge-triggered/level-triggered semantics of Linux's epoll_ctl
// and epoll_wait.
type watchEntry struct {
	events uint32
}

type epollfdState struct {
	mu       sync.Mutex
	registry *Registry
	kq       int
	watch    map[int]*watchEntry
}

// NewEpollFD creates a shim epollfd.
func NewEpollFD(r *Registry) (int, error) {
	n, desc, err := r.CreateNode(CloExec)
	if err != nil {
		return 0, err
	}

	s := &epollfdState{registry: r, kq: n.fd, watch: make(map[int]*watchEntry)}

	if err := armUserTrigger(n.fd); err != nil {
		r.RemoveNodeExplicit(n)
		_ = desc.unref()
		return 0, err
	}

	desc.State = s
	desc.vtable = &VTable{
		Close:    epollfdClose,
		Poll:     epollfdPoll,
		RemoveFD: epollfdRemoveFD,
	}

	r.RealizeNode(n)
	return n.fd, nil
}

// Add registers watchedFD for events (a bitmask of unix.POLLIN/POLLOUT/...)
// against epollFD, matching EPOLL_CTL_ADD.
func (r *Registry) Add(epollFD, watchedFD int, events uint32) error {
	desc := r.FindNode(epollFD)
	if desc == nil {
		return ErrBadFD
	}
	defer desc.unref()

	s, ok := desc.State.(*epollfdState)
	if !ok {
		return ErrInvalid
	}

	desc.Lock()
	s.mu.Lock()
	s.watch[watchedFD] = &watchEntry{events: events}
	s.mu.Unlock()
	desc.Unlock()

	_ = triggerUser(s.kq)
	return nil
}

// Remove unregisters watchedFD from epollFD, matching EPOLL_CTL_DEL.
func (r *Registry) Remove(epollFD, watchedFD int) error {
	desc := r.FindNode(epollFD)
	if desc == nil {
		return ErrBadFD
	}
	defer desc.unref()

	s, ok := desc.State.(*epollfdState)
	if !ok {
		return ErrInvalid
	}

	desc.Lock()
	s.mu.Lock()
	delete(s.watch, watchedFD)
	s.mu.Unlock()
	desc.Unlock()
	return nil
}

// Wait scans the current watch set and returns the fds whose requested
// events are currently satisfied, matching a simplified, always-polling
// epoll_wait. It does not block; pair it with Ppoll on epollFD for the
// blocking case, the way a real epoll_wait's internal wait loop would.
func (r *Registry) Wait(epollFD int) ([]int, error) {
	desc := r.FindNode(epollFD)
	if desc == nil {
		return nil, ErrBadFD
	}
	defer desc.unref()

	s, ok := desc.State.(*epollfdState)
	if !ok {
		return nil, ErrInvalid
	}

	s.mu.Lock()
	watched := make(map[int]uint32, len(s.watch))
	for fd, e := range s.watch {
		watched[fd] = e.events
	}
	s.mu.Unlock()

	var ready []int
	for fd, requested := range watched {
		var revents uint32
		newPollable(s.registry, fd).Poll(&revents)
		if revents&requested != 0 {
			ready = append(ready, fd)
		}
	}
	return ready, nil
}

func epollfdClose(desc *Descriptor) error {
	return nil
}

// epollfdPoll makes the epollfd itself report readable when any watched fd
// currently satisfies its requested events, the pre-poll/post-poll
// reconciliation §4.5 describes: a null revents is the reconciliation pass
// (nothing to reconcile here since readiness is computed fresh each time),
// non-null computes the synthetic mask.
func epollfdPoll(desc *Descriptor, fd int, revents *uint32) {
	if revents == nil {
		return
	}
	s := desc.State.(*epollfdState)

	s.mu.Lock()
	watched := make(map[int]uint32, len(s.watch))
	for wfd, e := range s.watch {
		watched[wfd] = e.events
	}
	s.mu.Unlock()

	for wfd, requested := range watched {
		var wrevents uint32
		newPollable(s.registry, wfd).Poll(&wrevents)
		if wrevents&requested != 0 {
			*revents |= unix.POLLIN
			return
		}
	}
}

// epollfdRemoveFD prunes removedFD from the watch set, matching the
// original epollfd kind's hook of the same name -- the entire reason
// Registry.RemoveNode's three-pass walk exists (§4.2, §9).
func epollfdRemoveFD(desc *Descriptor, ownFD, removedFD int) {
	s := desc.State.(*epollfdState)
	s.mu.Lock()
	delete(s.watch, removedFD)
	s.mu.Unlock()
}
