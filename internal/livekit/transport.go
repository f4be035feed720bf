package livekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/studiocast/internal/studio"
)

// Room defaults for studio sessions.
const (
	// DefaultEmptyTimeout closes a room LiveKit-side after five idle minutes.
	DefaultEmptyTimeout uint32 = 300

	releaseTimeout = 5 * time.Second
)

// ErrTransportClosed is returned for calls made after Close.
var ErrTransportClosed = errors.New("livekit transport closed")

// Transport is the LiveKit-backed media transport of one studio session.
// Publishing is controlled through participant permissions, so a host is
// on air exactly when its publish permission is granted.
type Transport struct {
	rooms       *RoomService
	tokens      *TokenService
	broadcastID string
	logger      *slog.Logger

	mu      sync.Mutex
	created map[string]bool
	closed  bool
}

// NewTransport creates a transport for one session.
func NewTransport(rooms *RoomService, tokens *TokenService, cfg studio.SessionConfig, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		rooms:       rooms,
		tokens:      tokens,
		broadcastID: cfg.BroadcastID,
		logger:      logger.With("broadcast_id", cfg.BroadcastID),
		created:     make(map[string]bool),
	}
}

// StartPublishing ensures the room exists and grants the participant
// publish rights.
func (t *Transport) StartPublishing(ctx context.Context, roomName, participantID string) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.ensureRoom(ctx, roomName); err != nil {
		return err
	}
	if err := t.rooms.SetPublishPermission(ctx, roomName, participantID, true); err != nil {
		return fmt.Errorf("start publishing %s: %w", participantID, err)
	}
	t.logger.Debug("publishing started", slog.String("participant_id", participantID))
	return nil
}

// StopPublishing revokes the participant's publish rights.
func (t *Transport) StopPublishing(ctx context.Context, roomName, participantID string) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.rooms.SetPublishPermission(ctx, roomName, participantID, false); err != nil {
		return fmt.Errorf("stop publishing %s: %w", participantID, err)
	}
	t.logger.Debug("publishing stopped", slog.String("participant_id", participantID))
	return nil
}

// RequestJoinToken signs a room token. Hosts and co-hosts may publish on
// join; guests and listeners join subscribe-only.
func (t *Transport) RequestJoinToken(ctx context.Context, participantID, roomName string, role studio.Role) (string, error) {
	if err := t.checkOpen(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := t.tokens.GenerateToken(&TokenRequest{
		RoomName:   roomName,
		Identity:   participantID,
		CanPublish: role.PublishOnJoin(),
		Metadata: map[string]interface{}{
			"role":         string(role),
			"broadcast_id": t.broadcastID,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// RoomMembership returns the identities present in the room.
func (t *Transport) RoomMembership(ctx context.Context, roomName string) ([]string, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	participants, err := t.rooms.ListParticipants(ctx, roomName)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.GetIdentity())
	}
	return ids, nil
}

// Close deletes the rooms this transport created. Deletion failures are
// logged; LiveKit reaps empty rooms on its own after DefaultEmptyTimeout.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	rooms := make([]string, 0, len(t.created))
	for name := range t.created {
		rooms = append(rooms, name)
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	for _, name := range rooms {
		if err := t.rooms.DeleteRoom(ctx, name); err != nil {
			t.logger.Warn("failed to delete room",
				slog.String("room", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (t *Transport) ensureRoom(ctx context.Context, roomName string) error {
	t.mu.Lock()
	known := t.created[roomName]
	t.mu.Unlock()
	if known {
		return nil
	}

	_, err := t.rooms.GetRoom(ctx, roomName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return err
	}

	// Listeners share the room, so it is not capped here.
	if _, err := t.rooms.CreateRoom(ctx, roomName, DefaultEmptyTimeout, 0); err != nil {
		return err
	}
	t.mu.Lock()
	t.created[roomName] = true
	t.mu.Unlock()
	t.logger.Info("room created", slog.String("room", roomName))
	return nil
}

func (t *Transport) checkOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	return nil
}

// Factory builds one Transport per studio session.
type Factory struct {
	rooms  *RoomService
	tokens *TokenService
	logger *slog.Logger
}

// NewFactory creates a transport factory from LiveKit credentials.
func NewFactory(url, apiKey, apiSecret string, logger *slog.Logger) (*Factory, error) {
	tokens, err := NewTokenService(apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	rooms := NewRoomService(url, apiKey, apiSecret)
	if rooms == nil {
		return nil, ErrRoomServiceNotConfigured
	}
	return &Factory{rooms: rooms, tokens: tokens, logger: logger}, nil
}

// Rooms exposes the shared room service for health checks.
func (f *Factory) Rooms() *RoomService {
	return f.rooms
}

// NewTransport implements studio.TransportFactory.
func (f *Factory) NewTransport(ctx context.Context, cfg studio.SessionConfig) (studio.MediaTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewTransport(f.rooms, f.tokens, cfg, f.logger), nil
}
