// Package livekit adapts LiveKit rooms and access tokens to the studio's
// media transport.
package livekit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// Token expiry configuration
const (
	DefaultTokenExpiry = 5 * time.Minute
	MinTokenExpiry     = 1 * time.Minute
	MaxTokenExpiry     = 15 * time.Minute
)

var (
	// ErrInvalidExpiry is returned when token expiry is outside valid bounds.
	ErrInvalidExpiry = errors.New("token expiry must be between 1 and 15 minutes")

	// ErrMissingAPIKey is returned when API key is empty.
	ErrMissingAPIKey = errors.New("livekit API key is required")

	// ErrMissingAPISecret is returned when API secret is empty.
	ErrMissingAPISecret = errors.New("livekit API secret is required")

	// ErrMissingRoomName is returned when room name is empty.
	ErrMissingRoomName = errors.New("room name is required")

	// ErrMissingIdentity is returned when identity is empty.
	ErrMissingIdentity = errors.New("participant identity is required")
)

// TokenService signs LiveKit access tokens for studio participants.
type TokenService struct {
	apiKey    string
	apiSecret string
}

// NewTokenService creates a new TokenService with the given API credentials.
func NewTokenService(apiKey, apiSecret string) (*TokenService, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if apiSecret == "" {
		return nil, ErrMissingAPISecret
	}

	return &TokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}, nil
}

// TokenRequest represents the parameters for a room access token.
type TokenRequest struct {
	RoomName   string                 // Required: LiveKit room name
	Identity   string                 // Required: participant id
	CanPublish bool                   // Publish rights from the moment of joining
	Expiry     time.Duration          // Defaults to DefaultTokenExpiry if zero
	Metadata   map[string]interface{} // Optional: attached to the participant
}

// TokenResponse represents the generated token with expiry information.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateToken signs a token that joins req.RoomName. Every token may
// subscribe; only publishing tokens may send audio or data.
func (s *TokenService) GenerateToken(req *TokenRequest) (*TokenResponse, error) {
	if req.RoomName == "" {
		return nil, ErrMissingRoomName
	}
	if req.Identity == "" {
		return nil, ErrMissingIdentity
	}

	expiry := req.Expiry
	if expiry == 0 {
		expiry = DefaultTokenExpiry
	}
	if expiry < MinTokenExpiry || expiry > MaxTokenExpiry {
		return nil, ErrInvalidExpiry
	}

	expiresAt := time.Now().Add(expiry)

	canPublish := req.CanPublish
	canSubscribe := true
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	at.SetIdentity(req.Identity)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:       true,
		Room:           req.RoomName,
		CanPublish:     &canPublish,
		CanPublishData: &canPublish,
		CanSubscribe:   &canSubscribe,
	})
	at.SetValidFor(expiry)

	if len(req.Metadata) > 0 {
		at.SetMetadata(formatMetadata(req.Metadata))
	}

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// formatMetadata converts a metadata map to the JSON string LiveKit expects.
func formatMetadata(metadata map[string]interface{}) string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}
