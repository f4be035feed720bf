package livekit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"

	"github.com/onnwee/studiocast/internal/studio"
)

// fakeRoomClient records room API calls in memory.
type fakeRoomClient struct {
	mu           sync.Mutex
	rooms        map[string]bool
	participants map[string][]string
	permissions  map[string]bool
	deleted      []string
	updateErr    error
	listErr      error
}

func newFakeRoomClient() *fakeRoomClient {
	return &fakeRoomClient{
		rooms:        make(map[string]bool),
		participants: make(map[string][]string),
		permissions:  make(map[string]bool),
	}
}

func (f *fakeRoomClient) CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[req.Name] = true
	return &livekit.Room{Name: req.Name, EmptyTimeout: req.EmptyTimeout}, nil
}

func (f *fakeRoomClient) DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, req.Room)
	f.deleted = append(f.deleted, req.Room)
	return &livekit.DeleteRoomResponse{}, nil
}

func (f *fakeRoomClient) ListRooms(ctx context.Context, req *livekit.ListRoomsRequest) (*livekit.ListRoomsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	resp := &livekit.ListRoomsResponse{}
	for name := range f.rooms {
		if len(req.Names) > 0 && req.Names[0] != name {
			continue
		}
		resp.Rooms = append(resp.Rooms, &livekit.Room{Name: name})
	}
	return resp, nil
}

func (f *fakeRoomClient) ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &livekit.ListParticipantsResponse{}
	for _, id := range f.participants[req.Room] {
		resp.Participants = append(resp.Participants, &livekit.ParticipantInfo{Identity: id})
	}
	return resp, nil
}

func (f *fakeRoomClient) UpdateParticipant(ctx context.Context, req *livekit.UpdateParticipantRequest) (*livekit.ParticipantInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.permissions[req.Identity] = req.Permission.GetCanPublish()
	return &livekit.ParticipantInfo{Identity: req.Identity, Permission: req.Permission}, nil
}

func newTestTransport(t *testing.T, client *fakeRoomClient) *Transport {
	t.Helper()
	tokens, err := NewTokenService("test-api-key", "test-api-secret")
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTransport(newRoomServiceWithClient(client), tokens, studio.SessionConfig{BroadcastID: "b1"}, logger)
}

func TestTransport_StartPublishingCreatesRoom(t *testing.T) {
	client := newFakeRoomClient()
	tr := newTestTransport(t, client)
	ctx := context.Background()

	if err := tr.StartPublishing(ctx, "broadcast-b1", "H1"); err != nil {
		t.Fatalf("StartPublishing() error = %v", err)
	}
	if !client.rooms["broadcast-b1"] {
		t.Error("expected room to be created")
	}
	if !client.permissions["H1"] {
		t.Error("expected H1 to be granted publish rights")
	}

	if err := tr.StopPublishing(ctx, "broadcast-b1", "H1"); err != nil {
		t.Fatalf("StopPublishing() error = %v", err)
	}
	if client.permissions["H1"] {
		t.Error("expected H1 publish rights to be revoked")
	}
}

func TestTransport_StartPublishingExistingRoom(t *testing.T) {
	client := newFakeRoomClient()
	client.rooms["broadcast-b1"] = true
	tr := newTestTransport(t, client)

	if err := tr.StartPublishing(context.Background(), "broadcast-b1", "H1"); err != nil {
		t.Fatalf("StartPublishing() error = %v", err)
	}

	// A room the transport did not create is left alone on close.
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(client.deleted) != 0 {
		t.Errorf("expected no deletions, got %v", client.deleted)
	}
}

func TestTransport_Errors(t *testing.T) {
	lookupErr := errors.New("twirp unavailable")
	tests := []struct {
		name      string
		updateErr error
		listErr   error
		wantErr   error
	}{
		{name: "room lookup fails", listErr: lookupErr, wantErr: lookupErr},
		{name: "permission update fails", updateErr: lookupErr, wantErr: lookupErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeRoomClient()
			client.updateErr = tt.updateErr
			client.listErr = tt.listErr
			tr := newTestTransport(t, client)

			err := tr.StartPublishing(context.Background(), "broadcast-b1", "H1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransport_JoinTokenGrants(t *testing.T) {
	tr := newTestTransport(t, newFakeRoomClient())

	tests := []struct {
		role        studio.Role
		wantPublish bool
	}{
		{studio.RoleHost, true},
		{studio.RoleCoHost, true},
		{studio.RoleGuest, false},
		{studio.RoleListener, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			token, err := tr.RequestJoinToken(context.Background(), "P1", "broadcast-b1", tt.role)
			if err != nil {
				t.Fatalf("RequestJoinToken() error = %v", err)
			}

			verifier, err := auth.ParseAPIToken(token)
			if err != nil {
				t.Fatalf("failed to parse token: %v", err)
			}
			_, claims, err := verifier.Verify([]byte("test-api-secret"))
			if err != nil {
				t.Fatalf("failed to verify token: %v", err)
			}
			if claims.Video == nil || claims.Video.CanPublish == nil {
				t.Fatal("expected publish grant in claims")
			}
			if *claims.Video.CanPublish != tt.wantPublish {
				t.Errorf("expected canPublish %v, got %v", tt.wantPublish, *claims.Video.CanPublish)
			}
			if claims.Video.Room != "broadcast-b1" {
				t.Errorf("expected room broadcast-b1, got %s", claims.Video.Room)
			}
		})
	}
}

func TestTransport_RoomMembership(t *testing.T) {
	client := newFakeRoomClient()
	client.participants["broadcast-b1"] = []string{"H1", "G1"}
	tr := newTestTransport(t, client)

	ids, err := tr.RoomMembership(context.Background(), "broadcast-b1")
	if err != nil {
		t.Fatalf("RoomMembership() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "H1" || ids[1] != "G1" {
		t.Errorf("expected [H1 G1], got %v", ids)
	}
}

func TestTransport_CloseReleasesCreatedRooms(t *testing.T) {
	client := newFakeRoomClient()
	tr := newTestTransport(t, client)
	ctx := context.Background()

	if err := tr.StartPublishing(ctx, "broadcast-b1", "H1"); err != nil {
		t.Fatalf("StartPublishing() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "broadcast-b1" {
		t.Errorf("expected one deletion of broadcast-b1, got %v", client.deleted)
	}

	if err := tr.StartPublishing(ctx, "broadcast-b1", "H1"); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if _, err := tr.RequestJoinToken(ctx, "H1", "broadcast-b1", studio.RoleHost); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
}

func TestRoomService_NotConfigured(t *testing.T) {
	if svc := NewRoomService("", "key", "secret"); svc != nil {
		t.Error("expected nil service without url")
	}

	var svc *RoomService
	if _, err := svc.GetRoom(context.Background(), "r"); !errors.Is(err, ErrRoomServiceNotConfigured) {
		t.Errorf("expected ErrRoomServiceNotConfigured, got %v", err)
	}
	if err := svc.SetPublishPermission(context.Background(), "r", "p", true); !errors.Is(err, ErrRoomServiceNotConfigured) {
		t.Errorf("expected ErrRoomServiceNotConfigured, got %v", err)
	}
}

func TestFactory_RequiresCredentials(t *testing.T) {
	if _, err := NewFactory("wss://lk.example", "", "secret", nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewFactory("", "key", "secret", nil); !errors.Is(err, ErrRoomServiceNotConfigured) {
		t.Errorf("expected ErrRoomServiceNotConfigured, got %v", err)
	}

	f, err := NewFactory("wss://lk.example", "key", "secret", nil)
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	var _ studio.TransportFactory = f
	tr, err := f.NewTransport(context.Background(), studio.SessionConfig{BroadcastID: "b1"})
	if err != nil || tr == nil {
		t.Errorf("NewTransport() = %v, %v", tr, err)
	}
}
