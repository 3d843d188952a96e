//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveRegistryOptionsDefaults(t *testing.T) {
	cfg, err := resolveRegistryOptions(nil)
	require.NoError(t, err)
	require.Equal(t, defaultStepDetectorEnabled, cfg.stepDetectorEnabled)
	require.Equal(t, time.Second, cfg.stepDetectorInterval)
	require.Nil(t, cfg.logger)
}

func TestResolveRegistryOptionsAppliesOverrides(t *testing.T) {
	cfg, err := resolveRegistryOptions([]RegistryOption{
		nil,
		WithRealtimeStepDetector(false),
		WithRealtimeStepDetectorInterval(5 * time.Millisecond),
	})
	require.NoError(t, err)
	require.False(t, cfg.stepDetectorEnabled)
	require.Equal(t, 5*time.Millisecond, cfg.stepDetectorInterval)
}

func TestWithRealtimeStepDetectorIntervalRejectsNonPositive(t *testing.T) {
	_, err := resolveRegistryOptions([]RegistryOption{WithRealtimeStepDetectorInterval(0)})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestNewRegistryAppliesOptions(t *testing.T) {
	r, err := NewRegistry(WithRealtimeStepDetector(false))
	require.NoError(t, err)
	require.False(t, r.stepDetectorEnabled)
}
