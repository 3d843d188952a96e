//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTimerFDNonblockingReadBeforeExpiryIsEAGAIN(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewTimerFD(r, false)
	require.NoError(t, err)
	defer r.Close(fd)
	require.NoError(t, r.Fcntl(fd, true))

	require.NoError(t, r.SetTime(fd, time.Hour, 0))

	out := make([]byte, 8)
	_, err = r.Read(fd, out)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestTimerFDMonotonicFiresOnce(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewTimerFD(r, false)
	require.NoError(t, err)
	defer r.Close(fd)

	require.NoError(t, r.SetTime(fd, 20*time.Millisecond, 0))

	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := r.Poll(pfds, 2000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out := make([]byte, 8)
	nRead, err := r.Read(fd, out)
	require.NoError(t, err)
	require.Equal(t, 8, nRead)
	require.GreaterOrEqual(t, binary.LittleEndian.Uint64(out), uint64(1))
}

func TestTimerFDPeriodicFiresRepeatedly(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewTimerFD(r, false)
	require.NoError(t, err)
	defer r.Close(fd)

	require.NoError(t, r.SetTime(fd, 10*time.Millisecond, 10*time.Millisecond))

	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := r.Poll(pfds, 2000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out := make([]byte, 8)
	_, err = r.Read(fd, out)
	require.NoError(t, err)
	require.GreaterOrEqual(t, binary.LittleEndian.Uint64(out), uint64(1))
}

func TestTimerFDRealtimeRegistersStepDetector(t *testing.T) {
	r := newTestRegistry(t)
	fd, err := NewTimerFD(r, true)
	require.NoError(t, err)

	r.stepMu.Lock()
	count := r.nrFDsForStepDetector
	r.stepMu.Unlock()
	require.Equal(t, uint64(1), count)

	require.NoError(t, r.Close(fd))

	r.stepMu.Lock()
	count = r.nrFDsForStepDetector
	r.stepMu.Unlock()
	require.Equal(t, uint64(0), count)
}
