package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DeviceChecker checks that an audio input can be opened. It returns
// ErrPermissionDenied or ErrDeviceNotFound (possibly wrapped) for the two
// failures the operator can act on.
type DeviceChecker interface {
	CheckAudioInput(ctx context.Context) error
}

// DeviceCheckFunc adapts a function to DeviceChecker.
type DeviceCheckFunc func(ctx context.Context) error

// CheckAudioInput calls f.
func (f DeviceCheckFunc) CheckAudioInput(ctx context.Context) error {
	return f(ctx)
}

// DeviceGate holds a session in PendingUserGesture until an audio input has
// been acquired in response to an operator gesture.
type DeviceGate struct {
	mu       sync.Mutex
	acquired bool
}

// NewDeviceGate creates a gate that has not been passed.
func NewDeviceGate() *DeviceGate {
	return &DeviceGate{}
}

// Acquire runs the capability check. Permission and device failures are
// returned as ErrPermissionDenied and ErrDeviceNotFound so callers can tell
// them apart; the gate stays closed and Acquire may be retried.
func (g *DeviceGate) Acquire(ctx context.Context, checker DeviceChecker) error {
	if checker == nil {
		return fmt.Errorf("%w: no capability report", ErrDeviceNotFound)
	}

	err := checker.CheckAudioInput(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceNotFound):
		return err
	default:
		return fmt.Errorf("audio input check failed: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.acquired = true
	return nil
}

// Ready reports whether the gate has been passed.
func (g *DeviceGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquired
}
