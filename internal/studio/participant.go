// Package studio implements the broadcast studio session: the state machine
// that takes a scheduled broadcast live with a set of participants, and the
// registry that enforces host and guest capacity.
package studio

import (
	"fmt"
	"strings"
	"time"
)

// Role is a participant's role in a broadcast.
type Role string

const (
	RoleHost     Role = "host"
	RoleCoHost   Role = "co-host"
	RoleGuest    Role = "guest"
	RoleListener Role = "listener"
)

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleHost, RoleCoHost, RoleGuest, RoleListener:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// OnAir reports whether the role joins the studio with a mixer channel.
// Listeners only receive subscribe tokens.
func (r Role) OnAir() bool {
	return r == RoleHost || r == RoleCoHost || r == RoleGuest
}

// PublishOnJoin reports whether the role's join token grants publishing
// immediately. Guests are granted publishing when the broadcast goes live.
func (r Role) PublishOnJoin() bool {
	return r == RoleHost || r == RoleCoHost
}

// countsAsHost reports whether the role is bounded by the host capacity.
func (r Role) countsAsHost() bool {
	return r == RoleHost || r == RoleCoHost
}

// ConnectionState is a participant's media connectivity.
type ConnectionState string

const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// ParseConnectionState parses a connection state name.
func ParseConnectionState(s string) (ConnectionState, error) {
	c := ConnectionState(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ConnectionConnecting, ConnectionConnected, ConnectionDisconnected:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidConnectionState, s)
}

// ParticipantInfo describes a participant joining a session.
type ParticipantInfo struct {
	ID              string
	DisplayName     string
	ConnectionState ConnectionState // defaults to connecting
}

// Participant is a member of a studio session.
type Participant struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"display_name"`
	Role            Role            `json:"role"`
	ConnectionState ConnectionState `json:"connection_state"`
	JoinedAt        time.Time       `json:"joined_at"`
}

// Connected reports whether the participant's media connection is up.
func (p Participant) Connected() bool {
	return p.ConnectionState == ConnectionConnected
}
