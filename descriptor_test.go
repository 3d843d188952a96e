//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorRefcounting(t *testing.T) {
	d := newDescriptor()
	d.ref()
	d.ref()

	require.NoError(t, d.unref())
	require.NoError(t, d.unref())

	var closed bool
	d2 := newDescriptor()
	d2.vtable = &VTable{Close: func(*Descriptor) error {
		closed = true
		return nil
	}}
	require.NoError(t, d2.unref())
	require.True(t, closed, "Close should run exactly once the refcount reaches zero")
}

func TestDescriptorUnrefPanicsOnOveruse(t *testing.T) {
	d := newDescriptor()
	require.NoError(t, d.unref())
	require.Panics(t, func() { _ = d.unref() })
}

func TestDescriptorDefaultReadWriteIsEINVAL(t *testing.T) {
	d := newDescriptor()
	_, err := d.doRead(3, make([]byte, 8))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = d.doWrite(3, make([]byte, 8))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDescriptorNonBlockingFlagRoundTrips(t *testing.T) {
	d := newDescriptor()
	require.Zero(t, d.Flags()&NonBlock)

	d.setNonBlocking(true)
	require.NotZero(t, d.Flags()&NonBlock)

	d.setKindFlags(1 << 4)
	require.NotZero(t, d.Flags()&NonBlock, "setKindFlags must not clobber NonBlock")
	require.NotZero(t, d.Flags()&(1<<4))

	d.setNonBlocking(false)
	require.Zero(t, d.Flags()&NonBlock)
	require.NotZero(t, d.Flags()&(1<<4), "clearing NonBlock must not clobber kind bits")
}

func TestDescriptorCloseErrorPropagates(t *testing.T) {
	d := newDescriptor()
	d.vtable = &VTable{Close: func(*Descriptor) error {
		return ErrBadFD
	}}
	require.ErrorIs(t, d.unref(), ErrBadFD)
}
