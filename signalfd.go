//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"encoding/binary"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Demonstration collaborator: a minimal signalfd bridging a signal to a
// Read-able descriptor. Linux's signalfd(2) works by having the caller
// block the signal with sigprocmask and then intercepting delivery; a Go
// process can't narrow its own signal mask that way without racing the
// runtime's own signal-handling thread, so this is built on os/signal
// instead -- the idiomatic, race-free way to observe a signal from Go. See
// SPEC_FULL.md's REDESIGN FLAGS for the equivalent decision in
// stepdetector.go.
//
// The siginfo payload is a minimal subset of Linux's signalfd_siginfo (just
// the signal number), not byte-compatible with it -- full struct parity is
// explicitly out of scope.

// SignalfdSiginfoSize is the size in bytes of one record a shim signalfd
// Read produces.
const SignalfdSiginfoSize = 4

type signalfdState struct {
	mu      sync.Mutex
	cond    sync.Cond
	pending []uint32
	kq      int
	sig     os.Signal
	ch      chan os.Signal
	done    chan struct{}
}

// NewSignalFD creates a shim signalfd delivering sig.
func NewSignalFD(r *Registry, sig os.Signal) (int, error) {
	n, desc, err := r.CreateNode(CloExec)
	if err != nil {
		return 0, err
	}

	s := &signalfdState{
		kq:   n.fd,
		sig:  sig,
		ch:   make(chan os.Signal, 16),
		done: make(chan struct{}),
	}
	s.cond.L = &s.mu

	if err := armUserTrigger(n.fd); err != nil {
		r.RemoveNodeExplicit(n)
		_ = desc.unref()
		return 0, err
	}

	signal.Notify(s.ch, sig)
	go s.deliver()

	desc.State = s
	desc.vtable = &VTable{
		Close: signalfdClose,
		Read:  signalfdRead,
		Poll:  signalfdPoll,
	}

	r.RealizeNode(n)
	return n.fd, nil
}

func (s *signalfdState) deliver() {
	for {
		select {
		case <-s.ch:
			s.mu.Lock()
			s.pending = append(s.pending, uint32(signalNumber(s.sig)))
			s.cond.Broadcast()
			s.mu.Unlock()
			_ = triggerUser(s.kq)
		case <-s.done:
			return
		}
	}
}

func signalfdClose(desc *Descriptor) error {
	s := desc.State.(*signalfdState)
	signal.Stop(s.ch)
	close(s.done)
	return nil
}

func signalfdRead(desc *Descriptor, fd int, buf []byte) (int, error) {
	if len(buf) < SignalfdSiginfoSize {
		return 0, ErrInvalid
	}
	s := desc.State.(*signalfdState)
	nonBlocking := desc.Flags()&NonBlock != 0

	s.mu.Lock()
	for len(s.pending) == 0 {
		if nonBlocking {
			s.mu.Unlock()
			return 0, ErrWouldBlock
		}
		s.cond.Wait()
	}
	signo := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	binary.LittleEndian.PutUint32(buf, signo)
	return SignalfdSiginfoSize, nil
}

func signalfdPoll(desc *Descriptor, fd int, revents *uint32) {
	if revents == nil {
		return
	}
	s := desc.State.(*signalfdState)
	s.mu.Lock()
	ready := len(s.pending) > 0
	s.mu.Unlock()
	if ready {
		*revents |= unix.POLLIN
	}
}

// signalNumber extracts the platform signal number from an os.Signal, the
// way every os/signal-based caller has to.
func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}
