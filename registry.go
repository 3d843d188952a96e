//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// CreateFlags mirror the flags accepted by the host kqueue1-equivalent
// constructor. CloExec is the only one spec.md names.
type CreateFlags int

// CloExec requests the host event queue fd be created close-on-exec.
const CloExec CreateFlags = 1

// node pairs an integer fd with the Descriptor it owns, matching
// FDContextMapNode. The node -- not the Descriptor -- is responsible for
// host-closing fd when it is destroyed.
type node struct {
	fd   int
	desc *Descriptor
}

// Registry is the process-wide map from shim fd to Descriptor: the
// "descriptor context core" spec.md §1 names as the hard part of this
// system. It corresponds to EpollShimCtx.
//
// The zero value is not usable; construct with NewRegistry. A single
// process-wide instance is available via Default, matching the original
// library's global epoll_shim_ctx, but nothing in this package requires
// using it -- per spec.md §9's design note, "a per-call handle is
// acceptable and arguably cleaner".
type Registry struct {
	rw    *rwMutex
	nodes map[int]*node

	logger *logiface.Logger[logiface.Event]

	stepMu                 sync.Mutex
	stepDetectorEnabled    bool
	stepDetectorInterval   time.Duration
	step                   *stepDetector
	nrFDsForStepDetector   uint64
	stepDetectorGeneration uint64
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg, err := resolveRegistryOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Registry{
		rw:                   newRWMutex(),
		nodes:                make(map[int]*node),
		logger:               cfg.logger,
		stepDetectorEnabled:  cfg.stepDetectorEnabled,
		stepDetectorInterval: cfg.stepDetectorInterval,
	}, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide Registry singleton, created lazily on
// first use, matching spec.md §3's "Process-wide singleton" lifecycle. The
// package-level Close/Read/Write/Fcntl/Poll/Ppoll functions operate against
// this instance. The constructors in eventfd.go/timerfd.go/signalfd.go/
// epollfd.go take the Registry as an explicit argument; pass Default() to
// create fds on this instance.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := NewRegistry()
		if err != nil {
			// NewRegistry only fails on option resolution, and Default
			// passes no options, so this is unreachable.
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// createNodeLocked implements epoll_shim_ctx_create_node_impl. Must be
// called with the write lock held.
func (r *Registry) createNodeLocked(kq int) (*node, *Descriptor) {
	if existing, ok := r.nodes[kq]; ok {
		// Someone closed the old fd with the host close() instead of our
		// Close, and the kernel recycled the integer. Drop the stale
		// descriptor's reference and re-home the node on a fresh one.
		_ = existing.desc.unref()
		desc := newDescriptor()
		desc.Logger = r.logger
		existing.desc = desc
		return existing, desc
	}

	desc := newDescriptor()
	desc.Logger = r.logger
	n := &node{fd: kq, desc: desc}
	r.nodes[kq] = n
	return n, desc
}

// CreateNode allocates a fresh host event-queue fd, honoring flags, and
// returns a registry node plus a strong reference to its Descriptor. The
// registry's write lock is held on success; callers must follow up with
// RealizeNode or RemoveNodeExplicit after installing the Descriptor's
// vtable and State.
func (r *Registry) CreateNode(flags CreateFlags) (*node, *Descriptor, error) {
	kq, err := newHostQueue(flags)
	if err != nil {
		// spec.md §7 names ENOMEM as the resource error for node/arg
		// allocation; when the host constructor itself is what ran out
		// of kernel resources, normalize to our own named sentinel so
		// callers can errors.Is(err, ErrNoMemory) regardless of which
		// BSD's unix.Errno value happened to come back.
		if errnoOf(err) == unix.ENOMEM {
			return nil, nil, wrapf("create host event queue", ErrNoMemory)
		}
		return nil, nil, wrapf("create host event queue", err)
	}

	r.rw.lockWrite()
	n, desc := r.createNodeLocked(kq)
	return n, desc, nil
}

// RealizeNode makes a newly created node visible to other goroutines by
// releasing the write lock taken by CreateNode. The node parameter is
// accepted only to mirror the original signature; see DESIGN.md's Open
// Questions decision (a).
func (r *Registry) RealizeNode(n *node) {
	_ = n
	r.rw.unlockWrite()
}

// RemoveNodeExplicit is the undo path for a failed creation: it removes the
// node from the map and releases the write lock taken by CreateNode. The
// caller is still responsible for unref'ing the node's Descriptor.
func (r *Registry) RemoveNodeExplicit(n *node) {
	delete(r.nodes, n.fd)
	r.rw.unlockWrite()
}

// FindNode looks up fd and, if present, returns a strong reference to its
// Descriptor. The returned Descriptor remains valid -- and its memory
// unreclaimed -- until the caller's matching unref, even if another
// goroutine concurrently calls RemoveNode(fd); see spec.md §5's ordering
// guarantee, property 1 in §8.
func (r *Registry) FindNode(fd int) *Descriptor {
	r.rw.lockRead()
	n, ok := r.nodes[fd]
	var desc *Descriptor
	if ok {
		desc = n.desc
		desc.ref()
	}
	r.rw.unlockRead()
	return desc
}

// sortedNodesLocked returns every node in ascending fd order. Must be
// called while holding at least a read lock, so the map cannot mutate
// underneath the sort.
func (r *Registry) sortedNodesLocked() []*node {
	out := make([]*node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].fd < out[j].fd })
	return out
}

// RemoveNode implements the shim's close(): it removes fd's node (if any)
// from the map, downgrades to a read lock, and informs every surviving
// descriptor that fd is going away before destroying the node (or, for a
// non-shim fd, just host-closing it). See spec.md §4.2's "walk-under-
// shared-read" pattern and §9's note that lock ordering is fixed at
// ascending fd to avoid deadlock.
func (r *Registry) RemoveNode(fd int) error {
	r.rw.lockWrite()
	n, existed := r.nodes[fd]
	if existed {
		delete(r.nodes, fd)
	}
	r.rw.downgrade()

	others := r.sortedNodesLocked()

	// Three passes over others, ascending fd order throughout -- lock
	// every survivor, call every survivor's RemoveFD hook, destroy/close
	// the removed node, then unlock every survivor. Holding every lock
	// across the destroy step (not just across the RemoveFD calls) is
	// what epoll_shim_ctx_remove_node does, and it means no survivor can
	// run other locked work until fd has been destroyed or host-closed;
	// see spec.md §4.2 and §9.
	for _, other := range others {
		other.desc.Lock()
	}
	for _, other := range others {
		other.desc.callRemoveFD(other.fd, fd)
	}

	var err error
	if existed {
		err = destroyNode(n)
	} else if cerr := unix.Close(fd); cerr != nil {
		err = cerr
	}

	for _, other := range others {
		other.desc.Unlock()
	}

	r.rw.unlockRead()

	r.logger.Debug().Int(`fd`, fd).Log(`fd removed from registry`)
	return err
}

// destroyNode implements fd_context_map_node_destroy: drop the
// Descriptor's reference, then host-close the integer fd. The node's
// strong reference is what closes fd -- not the Descriptor itself.
func destroyNode(n *node) error {
	unrefErr := n.desc.unref()
	closeErr := unix.Close(n.fd)
	return firstNonNil(unrefErr, closeErr)
}
