//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// Demonstration collaborator: a minimal eventfd-style counter, just enough
// to exercise Descriptor/Registry/Pollable end to end. It does not claim
// parity with every corner of Linux's eventfd(2) (e.g. EFD_SEMAPHORE's
// interaction with overflow, or the exact EINVAL conditions on Write).

// EventFDSemaphore and EventFDNonblock mirror Linux's EFD_SEMAPHORE and
// EFD_NONBLOCK eventfd(2) flags.
const (
	EventFDSemaphore uint32 = 1 << 0
	EventFDNonblock  uint32 = 1 << 1
)

type eventfdState struct {
	mu        sync.Mutex
	cond      sync.Cond
	counter   uint64
	semaphore bool
	kq        int
}

// NewEventFD creates a shim eventfd: a counter, readable/writable as an
// 8-byte little-endian value, that also participates in Poll/Ppoll via a
// private host kqueue (kqueue fds are themselves poll(2)-able on BSD hosts,
// which is what lets this fd sit in a pollfd array passed to the host
// ppoll -- the same trick the registry's event-queue fd relies on for
// epollfd).
func NewEventFD(r *Registry, initval uint64, flags uint32) (int, error) {
	n, desc, err := r.CreateNode(CloExec)
	if err != nil {
		return 0, err
	}

	s := &eventfdState{counter: initval, semaphore: flags&EventFDSemaphore != 0, kq: n.fd}
	s.cond.L = &s.mu

	if err := armUserTrigger(n.fd); err != nil {
		r.RemoveNodeExplicit(n)
		_ = desc.unref()
		return 0, err
	}

	desc.State = s
	desc.vtable = &VTable{
		Close: eventfdClose,
		Read:  eventfdRead,
		Write: eventfdWrite,
		Poll:  eventfdPoll,
	}
	if flags&EventFDNonblock != 0 {
		desc.setNonBlocking(true)
	}

	r.RealizeNode(n)
	return n.fd, nil
}

func eventfdClose(desc *Descriptor) error {
	return nil
}

func eventfdRead(desc *Descriptor, fd int, buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, ErrInvalid
	}
	s := desc.State.(*eventfdState)
	nonBlocking := desc.Flags()&NonBlock != 0

	s.mu.Lock()
	for s.counter == 0 {
		if nonBlocking {
			s.mu.Unlock()
			return 0, ErrWouldBlock
		}
		s.cond.Wait()
	}

	var value uint64
	if s.semaphore {
		value = 1
		s.counter--
	} else {
		value = s.counter
		s.counter = 0
	}
	s.mu.Unlock()

	binary.LittleEndian.PutUint64(buf, value)
	return 8, nil
}

func eventfdWrite(desc *Descriptor, fd int, buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, ErrInvalid
	}
	add := binary.LittleEndian.Uint64(buf)
	if add == ^uint64(0) {
		return 0, ErrInvalid
	}

	s := desc.State.(*eventfdState)
	s.mu.Lock()
	s.counter += add
	s.cond.Broadcast()
	s.mu.Unlock()

	_ = triggerUser(s.kq)
	return 8, nil
}

func eventfdPoll(desc *Descriptor, fd int, revents *uint32) {
	if revents == nil {
		return
	}
	s := desc.State.(*eventfdState)
	s.mu.Lock()
	ready := s.counter > 0
	s.mu.Unlock()
	if ready {
		*revents |= unix.POLLIN
	}
}
