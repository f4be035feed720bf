package studio

import (
	"context"
	"fmt"
	"time"
)

// Session defaults.
const (
	DefaultTransportTimeout = 10 * time.Second
	roomNamePrefix          = "broadcast-"
)

// MediaTransport is the narrow view of the media relay a session needs.
// Implementations must honor context deadlines.
type MediaTransport interface {
	// StartPublishing makes the participant's audio track live in the room.
	StartPublishing(ctx context.Context, roomName, participantID string) error

	// StopPublishing takes the participant's audio track off air.
	StopPublishing(ctx context.Context, roomName, participantID string) error

	// RequestJoinToken issues a join token; role decides publish rights.
	RequestJoinToken(ctx context.Context, participantID, roomName string, role Role) (string, error)

	// RoomMembership returns the identities currently in the room.
	RoomMembership(ctx context.Context, roomName string) ([]string, error)

	// Close releases the transport. Called exactly once per session.
	Close() error
}

// TransportFactory builds the transport owned by one session.
type TransportFactory interface {
	NewTransport(ctx context.Context, cfg SessionConfig) (MediaTransport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(ctx context.Context, cfg SessionConfig) (MediaTransport, error)

// NewTransport calls f.
func (f TransportFactoryFunc) NewTransport(ctx context.Context, cfg SessionConfig) (MediaTransport, error) {
	return f(ctx, cfg)
}

// SessionConfig is the in-process configuration for one studio session.
type SessionConfig struct {
	BroadcastID string
	Title       string
	StreamURL   string

	// RoomName is the media room; defaults to "broadcast-<id>".
	RoomName string

	// MaxHosts bounds hosts and co-hosts together.
	MaxHosts int

	// MaxGuests bounds guests.
	MaxGuests int

	// TransportTimeout bounds every media transport call.
	TransportTimeout time.Duration
}

// Validate checks the broadcast id and capacities.
func (c SessionConfig) Validate() error {
	if c.BroadcastID == "" {
		return fmt.Errorf("%w: broadcast id is required", ErrInvalidConfig)
	}
	if c.MaxHosts < 1 {
		return fmt.Errorf("%w: max hosts must be at least 1, got %d", ErrInvalidConfig, c.MaxHosts)
	}
	if c.MaxGuests < 0 {
		return fmt.Errorf("%w: max guests must not be negative, got %d", ErrInvalidConfig, c.MaxGuests)
	}
	if c.TransportTimeout < 0 {
		return fmt.Errorf("%w: transport timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.RoomName == "" {
		c.RoomName = roomNamePrefix + c.BroadcastID
	}
	if c.TransportTimeout == 0 {
		c.TransportTimeout = DefaultTransportTimeout
	}
	return c
}
