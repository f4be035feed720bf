// Package broadcast provides the durable broadcast status record and the
// status write that is echoed to every connected client.
package broadcast

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors for broadcast status operations.
var (
	ErrBroadcastNotFound = errors.New("broadcast not found")
	ErrInvalidStatus     = errors.New("invalid broadcast status")
	ErrMissingID         = errors.New("broadcast id is required")
)

// Status is the durable lifecycle status of a broadcast.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusReady     Status = "READY"
	StatusLive      Status = "LIVE"
	StatusEnded     Status = "ENDED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusReady, StatusLive, StatusEnded:
		return true
	}
	return false
}

// Writable reports whether s may be set through SetBroadcastStatus.
// SCHEDULED is only ever the initial state of a registered broadcast.
func (s Status) Writable() bool {
	return s == StatusReady || s == StatusLive || s == StatusEnded
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// Record is the durable state of one broadcast.
type Record struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	StreamURL string     `json:"stream_url,omitempty"`
	Status    Status     `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsLive returns true if the broadcast is currently live.
func (r *Record) IsLive() bool {
	return r.Status == StatusLive
}

// applyStatus moves the record to status at the given time.
// started_at is stamped on each transition into LIVE; ended_at on transition into ENDED.
func (r *Record) applyStatus(status Status, at time.Time) {
	if status == StatusLive && r.Status != StatusLive {
		started := at
		r.StartedAt = &started
		r.EndedAt = nil
	}
	if status == StatusEnded && r.Status != StatusEnded {
		ended := at
		r.EndedAt = &ended
	}
	r.Status = status
	r.UpdatedAt = at
}

func copyRecord(r *Record) *Record {
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return &c
}
