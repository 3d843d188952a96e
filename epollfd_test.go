//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEpollFDWaitReportsReadyWatchedFD(t *testing.T) {
	r := newTestRegistry(t)
	epfd, err := NewEpollFD(r)
	require.NoError(t, err)
	defer r.Close(epfd)

	evfd, err := NewEventFD(r, 0, 0)
	require.NoError(t, err)
	defer r.Close(evfd)

	require.NoError(t, r.Add(epfd, evfd, unix.POLLIN))

	ready, err := r.Wait(epfd)
	require.NoError(t, err)
	require.Empty(t, ready)

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, err = r.Write(evfd, buf)
	require.NoError(t, err)

	ready, err = r.Wait(epfd)
	require.NoError(t, err)
	require.Equal(t, []int{evfd}, ready)
}

func TestEpollFDRemoveStopsReporting(t *testing.T) {
	r := newTestRegistry(t)
	epfd, err := NewEpollFD(r)
	require.NoError(t, err)
	defer r.Close(epfd)

	evfd, err := NewEventFD(r, 1, 0)
	require.NoError(t, err)
	defer r.Close(evfd)

	require.NoError(t, r.Add(epfd, evfd, unix.POLLIN))
	require.NoError(t, r.Remove(epfd, evfd))

	ready, err := r.Wait(epfd)
	require.NoError(t, err)
	require.Empty(t, ready)
}

func TestEpollFDRemoveFDHookFiresOnWatchedFDClose(t *testing.T) {
	r := newTestRegistry(t)
	epfd, err := NewEpollFD(r)
	require.NoError(t, err)
	defer r.Close(epfd)

	evfd, err := NewEventFD(r, 1, 0)
	require.NoError(t, err)

	require.NoError(t, r.Add(epfd, evfd, unix.POLLIN))
	require.NoError(t, r.Close(evfd))

	desc := r.FindNode(epfd)
	require.NotNil(t, desc)
	defer desc.unref()
	s := desc.State.(*epollfdState)
	s.mu.Lock()
	_, stillWatched := s.watch[evfd]
	s.mu.Unlock()
	require.False(t, stillWatched, "RemoveFD should prune the closed fd from the watch set")
}

func TestEpollFDPollAggregatesWatchedReadiness(t *testing.T) {
	r := newTestRegistry(t)
	epfd, err := NewEpollFD(r)
	require.NoError(t, err)
	defer r.Close(epfd)

	evfd, err := NewEventFD(r, 1, 0)
	require.NoError(t, err)
	defer r.Close(evfd)

	require.NoError(t, r.Add(epfd, evfd, unix.POLLIN))

	desc := r.FindNode(epfd)
	require.NotNil(t, desc)
	defer desc.unref()

	var revents uint32
	desc.doPoll(epfd, &revents)
	require.NotZero(t, revents&unix.POLLIN)
}
