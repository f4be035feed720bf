package livekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

var (
	// ErrRoomServiceNotConfigured is returned when room service operations are attempted without proper configuration.
	ErrRoomServiceNotConfigured = errors.New("livekit room service not configured")

	// ErrRoomNotFound is returned when a requested room does not exist in LiveKit.
	ErrRoomNotFound = errors.New("room not found")
)

// roomClient is the subset of the LiveKit room API the studio uses.
type roomClient interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
	ListRooms(ctx context.Context, req *livekit.ListRoomsRequest) (*livekit.ListRoomsResponse, error)
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
	UpdateParticipant(ctx context.Context, req *livekit.UpdateParticipantRequest) (*livekit.ParticipantInfo, error)
}

// sdkRoomClient forwards to the LiveKit server SDK.
type sdkRoomClient struct {
	client *lksdk.RoomServiceClient
}

func (c sdkRoomClient) CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	return c.client.CreateRoom(ctx, req)
}

func (c sdkRoomClient) DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	return c.client.DeleteRoom(ctx, req)
}

func (c sdkRoomClient) ListRooms(ctx context.Context, req *livekit.ListRoomsRequest) (*livekit.ListRoomsResponse, error) {
	return c.client.ListRooms(ctx, req)
}

func (c sdkRoomClient) ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	return c.client.ListParticipants(ctx, req)
}

func (c sdkRoomClient) UpdateParticipant(ctx context.Context, req *livekit.UpdateParticipantRequest) (*livekit.ParticipantInfo, error) {
	return c.client.UpdateParticipant(ctx, req)
}

// RoomService provides operations for managing LiveKit rooms.
type RoomService struct {
	roomClient roomClient
}

// NewRoomService creates a new RoomService with the given configuration.
// Returns nil if apiKey, apiSecret, or url is empty (room control will not be available).
func NewRoomService(url, apiKey, apiSecret string) *RoomService {
	if url == "" || apiKey == "" || apiSecret == "" {
		return nil
	}
	return &RoomService{
		roomClient: sdkRoomClient{client: lksdk.NewRoomServiceClient(url, apiKey, apiSecret)},
	}
}

func newRoomServiceWithClient(client roomClient) *RoomService {
	return &RoomService{roomClient: client}
}

// CreateRoom creates a new LiveKit room with the specified configuration.
// emptyTimeout is the duration in seconds after which an empty room will be automatically closed (0 = no timeout).
// maxParticipants is the maximum number of participants allowed (0 = unlimited).
func (s *RoomService) CreateRoom(ctx context.Context, roomName string, emptyTimeout, maxParticipants uint32) (*livekit.Room, error) {
	if s == nil || s.roomClient == nil {
		return nil, ErrRoomServiceNotConfigured
	}

	req := &livekit.CreateRoomRequest{
		Name:            roomName,
		EmptyTimeout:    emptyTimeout,
		MaxParticipants: maxParticipants,
	}

	room, err := s.roomClient.CreateRoom(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return room, nil
}

// DeleteRoom deletes a LiveKit room, disconnecting all participants.
func (s *RoomService) DeleteRoom(ctx context.Context, roomName string) error {
	if s == nil || s.roomClient == nil {
		return ErrRoomServiceNotConfigured
	}

	_, err := s.roomClient.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomName})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}

// GetRoom retrieves information about a specific LiveKit room.
// Returns ErrRoomNotFound if the room does not exist in LiveKit.
func (s *RoomService) GetRoom(ctx context.Context, roomName string) (*livekit.Room, error) {
	if s == nil || s.roomClient == nil {
		return nil, ErrRoomServiceNotConfigured
	}

	resp, err := s.roomClient.ListRooms(ctx, &livekit.ListRoomsRequest{
		Names: []string{roomName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if len(resp.Rooms) == 0 {
		return nil, ErrRoomNotFound
	}

	return resp.Rooms[0], nil
}

// ListRooms lists every active room. Used as an authenticated reachability check.
func (s *RoomService) ListRooms(ctx context.Context) ([]*livekit.Room, error) {
	if s == nil || s.roomClient == nil {
		return nil, ErrRoomServiceNotConfigured
	}

	resp, err := s.roomClient.ListRooms(ctx, &livekit.ListRoomsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// SetPublishPermission grants or revokes a participant's right to publish
// tracks and data. Subscribing is always allowed.
func (s *RoomService) SetPublishPermission(ctx context.Context, roomName, participantIdentity string, canPublish bool) error {
	if s == nil || s.roomClient == nil {
		return ErrRoomServiceNotConfigured
	}

	req := &livekit.UpdateParticipantRequest{
		Room:     roomName,
		Identity: participantIdentity,
		Permission: &livekit.ParticipantPermission{
			CanSubscribe:   true,
			CanPublish:     canPublish,
			CanPublishData: canPublish,
		},
	}

	if _, err := s.roomClient.UpdateParticipant(ctx, req); err != nil {
		return fmt.Errorf("failed to update participant permission: %w", err)
	}

	return nil
}

// ListParticipants lists all participants in a room.
func (s *RoomService) ListParticipants(ctx context.Context, roomName string) ([]*livekit.ParticipantInfo, error) {
	if s == nil || s.roomClient == nil {
		return nil, ErrRoomServiceNotConfigured
	}

	resp, err := s.roomClient.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomName})
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	return resp.Participants, nil
}
