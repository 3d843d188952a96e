//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventFDWriteThenReadDrainsCounter(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewEventFD(r, 0, 0)
	require.NoError(t, err)
	defer r.Close(fd)

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 5)
	n, err := r.Write(fd, buf)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	binary.LittleEndian.PutUint64(buf, 3)
	n, err = r.Write(fd, buf)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	out := make([]byte, 8)
	n, err = r.Read(fd, out)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, uint64(8), binary.LittleEndian.Uint64(out))
}

func TestEventFDSemaphoreModeDecrementsByOne(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewEventFD(r, 0, EventFDSemaphore)
	require.NoError(t, err)
	defer r.Close(fd)

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 3)
	_, err = r.Write(fd, buf)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out := make([]byte, 8)
		n, err := r.Read(fd, out)
		require.NoError(t, err)
		require.Equal(t, 8, n)
		require.Equal(t, uint64(1), binary.LittleEndian.Uint64(out))
	}
}

func TestEventFDNonblockingReadOnZeroCounterReturnsEAGAIN(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewEventFD(r, 0, EventFDNonblock)
	require.NoError(t, err)
	defer r.Close(fd)

	out := make([]byte, 8)
	_, err = r.Read(fd, out)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestEventFDBlockingReadUnblocksOnWrite(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewEventFD(r, 0, 0)
	require.NoError(t, err)
	defer r.Close(fd)

	done := make(chan uint64, 1)
	go func() {
		out := make([]byte, 8)
		_, err := r.Read(fd, out)
		if err != nil {
			return
		}
		done <- binary.LittleEndian.Uint64(out)
	}()

	time.Sleep(20 * time.Millisecond)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 7)
	_, err = r.Write(fd, buf)
	require.NoError(t, err)

	select {
	case v := <-done:
		require.Equal(t, uint64(7), v)
	case <-time.After(time.Second):
		t.Fatal("blocking read never woke up")
	}
}

func TestEventFDWriteMaxUint64IsInvalid(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewEventFD(r, 0, 0)
	require.NoError(t, err)
	defer r.Close(fd)

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, ^uint64(0))
	_, err = r.Write(fd, buf)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestEventFDPollReflectsCounterState(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewEventFD(r, 0, 0)
	require.NoError(t, err)
	defer r.Close(fd)

	desc := r.FindNode(fd)
	require.NotNil(t, desc)
	defer desc.unref()

	var revents uint32
	desc.doPoll(fd, &revents)
	require.Zero(t, revents)

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, err = r.Write(fd, buf)
	require.NoError(t, err)

	revents = 0
	desc.doPoll(fd, &revents)
	require.NotZero(t, revents)
}
