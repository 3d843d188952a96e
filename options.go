//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"time"

	"github.com/joeycumines/logiface"
)

// registryOptions holds configuration resolved at Registry construction
// time, mirroring the teacher's loopOptions/LoopOption split exactly.
type registryOptions struct {
	logger               *logiface.Logger[logiface.Event]
	stepDetectorEnabled  bool
	stepDetectorInterval time.Duration
}

// RegistryOption configures a Registry instance.
type RegistryOption interface {
	applyRegistry(*registryOptions) error
}

type registryOptionFunc func(*registryOptions) error

func (f registryOptionFunc) applyRegistry(o *registryOptions) error { return f(o) }

// WithLogger attaches a structured logger to the registry and every
// descriptor it creates. Nil is accepted and simply disables logging (see
// logiface's nil-receiver semantics).
func WithLogger(logger *logiface.Logger[logiface.Event]) RegistryOption {
	return registryOptionFunc(func(o *registryOptions) error {
		o.logger = logger
		return nil
	})
}

// WithRealtimeStepDetector overrides whether the realtime step detector
// (stepdetector.go) is allowed to run at all. It is enabled by default
// (defaultStepDetectorEnabled in stepdetector.go); the package builds only
// for kqueue platforms without a native timerfd, so there is no platform
// on which the default is off.
func WithRealtimeStepDetector(enabled bool) RegistryOption {
	return registryOptionFunc(func(o *registryOptions) error {
		o.stepDetectorEnabled = enabled
		return nil
	})
}

// WithRealtimeStepDetectorInterval overrides the 1-second sample interval
// spec.md §4.6 specifies between CLOCK_REALTIME/CLOCK_MONOTONIC offset
// checks. Intended for tests that don't want to wait a full second per
// sample.
func WithRealtimeStepDetectorInterval(d time.Duration) RegistryOption {
	return registryOptionFunc(func(o *registryOptions) error {
		if d <= 0 {
			return ErrInvalid
		}
		o.stepDetectorInterval = d
		return nil
	})
}

// resolveRegistryOptions applies options over the documented defaults,
// matching resolveLoopOptions's shape and nil-tolerance.
func resolveRegistryOptions(opts []RegistryOption) (*registryOptions, error) {
	cfg := &registryOptions{
		stepDetectorEnabled:  defaultStepDetectorEnabled,
		stepDetectorInterval: time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRegistry(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
