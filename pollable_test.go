//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollableUnknownFDLeavesReventsUntouched(t *testing.T) {
	r := newTestRegistry(t)
	var revents uint32 = 0xff
	newPollable(r, 999999).Poll(&revents)
	require.Equal(t, uint32(0xff), revents)
}

func TestPollableDispatchesToDescriptorPollHook(t *testing.T) {
	r := newTestRegistry(t)
	fd, desc := createTestNode(t, r)
	defer r.RemoveNode(fd)

	desc.vtable = &VTable{Poll: func(_ *Descriptor, polledFD int, revents *uint32) {
		require.Equal(t, fd, polledFD)
		if revents != nil {
			*revents = unix.POLLIN
		}
	}}

	var revents uint32
	newPollable(r, fd).Poll(&revents)
	require.Equal(t, uint32(unix.POLLIN), revents)
}

func TestPollableNilReventsIsSafe(t *testing.T) {
	r := newTestRegistry(t)
	fd, desc := createTestNode(t, r)
	defer r.RemoveNode(fd)

	var called bool
	desc.vtable = &VTable{Poll: func(_ *Descriptor, _ int, revents *uint32) {
		called = true
		require.Nil(t, revents)
	}}

	newPollable(r, fd).Poll(nil)
	require.True(t, called)
}
