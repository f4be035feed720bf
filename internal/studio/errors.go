package studio

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when a role's participant limit is reached.
	ErrCapacityExceeded = errors.New("participant capacity exceeded")

	// ErrInitialization is returned when a session cannot be started.
	ErrInitialization = errors.New("session initialization failed")

	// ErrInvalidConfig is returned for a session config missing its broadcast id or capacities.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrTransport is returned when the media transport fails a publish or stop call.
	ErrTransport = errors.New("media transport error")

	// ErrInvalidState is returned when an operation is not valid in the session's current state.
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrNoConnectedHost is returned by GoLive when no host is connected.
	ErrNoConnectedHost = errors.New("at least one connected host is required to go live")

	// ErrParticipantExists is returned when adding a participant id that is already present.
	ErrParticipantExists = errors.New("participant already exists")

	// ErrParticipantNotFound is returned for operations on an unknown participant.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidRole is returned for roles that cannot join the studio.
	ErrInvalidRole = errors.New("invalid participant role")

	// ErrInvalidConnectionState is returned for unknown connection states.
	ErrInvalidConnectionState = errors.New("invalid connection state")

	// ErrPermissionDenied is returned when audio input permission was refused.
	ErrPermissionDenied = errors.New("audio input permission denied")

	// ErrDeviceNotFound is returned when no audio input device is available.
	ErrDeviceNotFound = errors.New("audio input device not found")

	// ErrSessionNotFound is returned by Manager for an unknown broadcast id.
	ErrSessionNotFound = errors.New("studio session not found")

	// ErrSessionDisposed is returned for operations on a disposed session.
	ErrSessionDisposed = errors.New("studio session disposed")
)

// CapacityError names the role whose limit was reached.
type CapacityError struct {
	Role  Role
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %s limit is %d", ErrCapacityExceeded, e.Role, e.Limit)
}

// Unwrap lets errors.Is match ErrCapacityExceeded.
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
