//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

// VTable is the polymorphic operation set a collaborator (eventfd, timerfd,
// signalfd, epollfd, ...) installs on a [Descriptor] at creation time. Every
// field is optional; a nil field falls back to the documented default.
//
// Every hook except Close receives the owning fd as an explicit argument
// rather than reading it off the Descriptor, because a Descriptor never stores its
// own fd (see spec.md §3: "The descriptor does not own the integer fd").
type VTable struct {
	// Close releases kind-specific state. It must be idempotent in the
	// sense that it runs exactly once, at refcount 0 -- the core
	// guarantees the "exactly once" part, the collaborator does not need
	// to guard against re-entry itself.
	Close func(desc *Descriptor) error

	// Read transfers up to len(buf) bytes, reporting the actual count
	// transferred. It must respect desc.Flags()&NonBlock.
	//
	// Nil means "not supported": dispatch returns EINVAL, matching
	// fd_context_default_read in the original implementation.
	Read func(desc *Descriptor, fd int, buf []byte) (n int, err error)

	// Write is the symmetric counterpart of Read.
	Write func(desc *Descriptor, fd int, buf []byte) (n int, err error)

	// Poll serves two purposes selected by revents:
	//   - revents == nil: "pre-poll" -- reconcile kind state with the host
	//     event queue before Ppoll blocks.
	//   - revents != nil: "post-poll" -- rewrite *revents to the synthetic
	//     mask this fd should report, possibly to zero if the kind wants to
	//     suppress readiness it already consumed.
	Poll func(desc *Descriptor, fd int, revents *uint32)

	// RealtimeChange notifies a kind that the wall clock may have
	// stepped relative to monotonic time. Only ever called by the
	// package's step detector, and only for kinds that opt in (timerfd's
	// CLOCK_REALTIME absolute-time variant).
	RealtimeChange func(desc *Descriptor, fd int)

	// RemoveFD is the "epollfd_remove_fd" hook from spec.md §4.2: called,
	// under every surviving descriptor's own lock, on every
	// Registry.RemoveNode(removedFD) -- shim fd or not -- after removedFD's
	// node (if any) has left the map and before removedFD is destroyed or
	// host-closed. Only the epollfd kind meaningfully
	// implements this -- it prunes fd from its watch set so a dangling
	// watch doesn't outlive the fd it refers to.
	RemoveFD func(desc *Descriptor, ownFD int, removedFD int)
}
