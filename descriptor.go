//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// NonBlock is the O_NONBLOCK bit mirrored into Descriptor.flags by Fcntl.
// Other bits are reserved for kind-specific use (see setKindFlags), exactly
// as spec.md §3 describes.
const NonBlock uint32 = 1 << 0

// Descriptor is one shim-owned "open file description": a refcounted,
// polymorphic object carrying a vtable, a mutex, a flags word, and
// kind-specific state. It corresponds to FileDescription in the original
// implementation.
//
// A Descriptor never stores the integer fd it backs -- that belongs solely
// to the owning registry node (spec.md §3).
type Descriptor struct {
	refcount atomic.Int32
	vtable   *VTable
	mu       sync.Mutex
	flags    atomic.Uint32

	// State holds kind-specific data (e.g. *eventfdState). It is set once
	// at creation, before the descriptor is realized into the registry,
	// and is thereafter accessed only by the kind's own vtable hooks --
	// the core never interprets it.
	State any

	// Logger is an optional structured logger for descriptor lifecycle
	// events. A nil value is safe to log through; see logging.go.
	Logger *logiface.Logger[logiface.Event]
}

// newDescriptor allocates a Descriptor with refcount 1, matching
// file_description_create/file_description_init.
func newDescriptor() *Descriptor {
	d := &Descriptor{}
	d.refcount.Store(1)
	return d
}

// ref increments the refcount. Go's atomic operations are already at least
// as strong as the release/acquire fence pattern spec.md §4.1 mandates for
// C's relaxed counting, so no additional fence is needed here -- see
// DESIGN.md's Descriptor entry.
func (d *Descriptor) ref() {
	if d.refcount.Add(1) <= 1 {
		panic("epollshim: ref on a descriptor with no outstanding references")
	}
}

// unref decrements the refcount, destroying the descriptor (invoking
// vtable.Close exactly once) when it reaches zero. The returned error is
// vtable.Close's error, if any -- Go has no separate "destroy the mutex"
// failure mode, so the "first non-zero wins" composition in spec.md §4.1
// collapses to just the close error.
func (d *Descriptor) unref() error {
	remaining := d.refcount.Add(-1)
	if remaining < 0 {
		panic("epollshim: unref on an already-destroyed descriptor")
	}
	if remaining > 0 {
		return nil
	}

	var closeErr error
	if d.vtable != nil && d.vtable.Close != nil {
		closeErr = d.vtable.Close(d)
	}
	d.Logger.Debug().Log(`descriptor destroyed`)
	return closeErr
}

// Lock serializes mutations to the descriptor's mutable state (flags,
// kind-specific State) and is also the lock the registry's remove_node
// three-pass walk takes on every surviving descriptor -- see epollfd.go's
// RemoveFD hook and spec.md §4.2/§9.
func (d *Descriptor) Lock() { d.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (d *Descriptor) Unlock() { d.mu.Unlock() }

// Flags returns the current flags word, including the O_NONBLOCK bit
// managed by Fcntl and any kind-reserved bits a collaborator has set.
func (d *Descriptor) Flags() uint32 { return d.flags.Load() }

// setNonBlocking updates only the O_NONBLOCK bit, preserving any
// kind-reserved bits a collaborator has already stored.
func (d *Descriptor) setNonBlocking(nonBlocking bool) {
	for {
		old := d.flags.Load()
		next := old &^ NonBlock
		if nonBlocking {
			next |= NonBlock
		}
		if d.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// setKindFlags ORs kind-reserved bits into the flags word. None of this
// package's kinds calls it: eventfd keeps its semaphore mode in its own
// state.
func (d *Descriptor) setKindFlags(bits uint32) {
	for {
		old := d.flags.Load()
		next := old | bits
		if d.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// doRead dispatches to vtable.Read, defaulting to EINVAL per
// fd_context_default_read.
func (d *Descriptor) doRead(fd int, buf []byte) (int, error) {
	if d.vtable == nil || d.vtable.Read == nil {
		return 0, ErrInvalid
	}
	return d.vtable.Read(d, fd, buf)
}

// doWrite dispatches to vtable.Write, defaulting to EINVAL per
// fd_context_default_write.
func (d *Descriptor) doWrite(fd int, buf []byte) (int, error) {
	if d.vtable == nil || d.vtable.Write == nil {
		return 0, ErrInvalid
	}
	return d.vtable.Write(d, fd, buf)
}

// doPoll dispatches to vtable.Poll, reporting whether the kind has one to
// dispatch to. A false return means no hook ran and revents, if non-nil,
// was left untouched -- callers must not treat that as "not ready": it
// means "this descriptor has no opinion", and the caller's own notion of
// readiness (e.g. a host poll result) is what applies.
func (d *Descriptor) doPoll(fd int, revents *uint32) bool {
	if d.vtable == nil || d.vtable.Poll == nil {
		return false
	}
	d.vtable.Poll(d, fd, revents)
	return true
}

// doRealtimeChange dispatches to vtable.RealtimeChange, a no-op if the kind
// has none (i.e. every kind but an absolute-clock timerfd).
func (d *Descriptor) doRealtimeChange(fd int) {
	if d.vtable == nil || d.vtable.RealtimeChange == nil {
		return
	}
	d.vtable.RealtimeChange(d, fd)
}

// callRemoveFD dispatches to vtable.RemoveFD, a no-op if the kind has none.
// Like doPoll/doRead/doWrite/doRealtimeChange this does not take the
// descriptor's lock itself: Registry.RemoveNode needs that lock held across
// the whole three-pass walk (lock every survivor, call every survivor, then
// destroy the removed node, then unlock every survivor), not just across
// this one call. See doRemoveFD for the single-descriptor convenience form.
func (d *Descriptor) callRemoveFD(ownFD, removedFD int) {
	if d.vtable == nil || d.vtable.RemoveFD == nil {
		return
	}
	d.vtable.RemoveFD(d, ownFD, removedFD)
}

// doRemoveFD takes the descriptor's own lock, calls callRemoveFD, and
// releases it -- the epollfd_lock/epollfd_remove_fd/epollfd_unlock sequence
// from spec.md §4.2 collapsed onto a single descriptor. Registry.RemoveNode
// does not use this directly since it must hold every survivor's lock for
// the duration of the whole walk; see callRemoveFD.
func (d *Descriptor) doRemoveFD(ownFD, removedFD int) {
	d.Lock()
	defer d.Unlock()
	d.callRemoveFD(ownFD, removedFD)
}
