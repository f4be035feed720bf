package studio

import (
	"errors"
	"testing"

	"github.com/onnwee/studiocast/internal/mixer"
)

func TestRegistry_HostCapacity(t *testing.T) {
	mx := mixer.New(newTestLogger())
	r := NewRegistry(2, 1, mx)

	for _, id := range []string{"H1", "H2"} {
		if _, err := r.Add(RoleHost, ParticipantInfo{ID: id}); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	_, err := r.Add(RoleHost, ParticipantInfo{ID: "H3"})
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *CapacityError, got %v", err)
	}
	if capErr.Role != RoleHost || capErr.Limit != 2 {
		t.Errorf("expected host limit 2, got %s limit %d", capErr.Role, capErr.Limit)
	}
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Error("expected error to match ErrCapacityExceeded")
	}

	// A rejected add leaves no trace.
	if _, ok := mx.Channel("H3"); ok {
		t.Error("expected no channel for rejected participant")
	}

	r.Remove("H1")
	if _, err := r.Add(RoleHost, ParticipantInfo{ID: "H3"}); err != nil {
		t.Errorf("expected re-add after removal to succeed, got %v", err)
	}
}

func TestRegistry_CoHostSharesHostCapacity(t *testing.T) {
	r := NewRegistry(1, 5, mixer.New(newTestLogger()))

	if _, err := r.Add(RoleCoHost, ParticipantInfo{ID: "C1"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	_, err := r.Add(RoleHost, ParticipantInfo{ID: "H1"})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected co-host to count against host capacity, got %v", err)
	}
}

func TestRegistry_GuestCapacity(t *testing.T) {
	r := NewRegistry(1, 0, mixer.New(newTestLogger()))

	_, err := r.Add(RoleGuest, ParticipantInfo{ID: "G1"})
	var capErr *CapacityError
	if !errors.As(err, &capErr) || capErr.Role != RoleGuest || capErr.Limit != 0 {
		t.Errorf("expected guest capacity error, got %v", err)
	}
}

func TestRegistry_AddValidation(t *testing.T) {
	r := NewRegistry(2, 2, mixer.New(newTestLogger()))

	if _, err := r.Add(RoleListener, ParticipantInfo{ID: "L1"}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole for listener, got %v", err)
	}
	if _, err := r.Add(RoleGuest, ParticipantInfo{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected error for empty id, got %v", err)
	}

	if _, err := r.Add(RoleGuest, ParticipantInfo{ID: "G1"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := r.Add(RoleHost, ParticipantInfo{ID: "G1"}); !errors.Is(err, ErrParticipantExists) {
		t.Errorf("expected ErrParticipantExists, got %v", err)
	}
}

func TestRegistry_ChannelLifetime(t *testing.T) {
	mx := mixer.New(newTestLogger())
	r := NewRegistry(1, 1, mx)

	p, err := r.Add(RoleGuest, ParticipantInfo{ID: "G1", DisplayName: "Guest"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if p.ConnectionState != ConnectionConnecting {
		t.Errorf("expected default connecting state, got %s", p.ConnectionState)
	}

	ch, ok := mx.Channel("G1")
	if !ok {
		t.Fatal("expected channel to be created")
	}
	if ch.Volume != mixer.DefaultVolume || ch.Muted || ch.Active() {
		t.Errorf("unexpected default channel %+v", ch)
	}

	if _, err := r.SetConnectionState("G1", ConnectionConnected); err != nil {
		t.Fatalf("SetConnectionState() error = %v", err)
	}
	if ch, _ := mx.Channel("G1"); !ch.Active() {
		t.Error("expected connected, unmuted channel to be active")
	}

	if _, ok := r.Remove("G1"); !ok {
		t.Fatal("expected removal to report the participant")
	}
	if mx.Len() != 0 {
		t.Errorf("expected no orphan channels, got %d", mx.Len())
	}
	if _, ok := r.Remove("G1"); ok {
		t.Error("expected second removal to be a no-op")
	}

	if _, err := r.SetConnectionState("G1", ConnectionConnected); !errors.Is(err, ErrParticipantNotFound) {
		t.Errorf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"host", RoleHost, false},
		{"Co-Host", RoleCoHost, false},
		{" guest ", RoleGuest, false},
		{"listener", RoleListener, false},
		{"producer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRole) {
					t.Errorf("expected ErrInvalidRole, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (err=%v)", tt.want, got, err)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateInitializing, true},
		{StateInitializing, StatePendingUserGesture, true},
		{StatePendingUserGesture, StateReady, true},
		{StateReady, StateLive, true},
		{StateLive, StateEnding, true},
		{StateEnding, StateEnded, true},
		{StateReady, StateError, true},
		{StateEnding, StateError, true},
		{StateIdle, StateLive, false},
		{StateLive, StateEnded, false},
		{StateEnded, StateError, false},
		{StateError, StateReady, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
