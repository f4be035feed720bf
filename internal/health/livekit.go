package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	lkproto "github.com/livekit/protocol/livekit"
)

// RoomLister is the authenticated LiveKit call used to verify credentials.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]*lkproto.Room, error)
}

// LiveKitChecker implements health checking for LiveKit.
type LiveKitChecker struct {
	url    string
	rooms  RoomLister
	client *http.Client
}

// NewLiveKitChecker creates a new LiveKit health checker. url is the server URL
// as configured for clients (ws:// and wss:// are accepted). rooms may be nil,
// in which case only reachability is checked.
func NewLiveKitChecker(url string, rooms RoomLister) *LiveKitChecker {
	return &LiveKitChecker{
		url:   httpURL(url),
		rooms: rooms,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck verifies the LiveKit server answers over HTTP and, when a room
// lister is configured, that the API credentials are accepted.
func (l *LiveKitChecker) HealthCheck(ctx context.Context) error {
	if l.url == "" {
		return fmt.Errorf("livekit url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach livekit server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("livekit unhealthy: unexpected status code %d", resp.StatusCode)
	}

	if l.rooms != nil {
		if _, err := l.rooms.ListRooms(ctx); err != nil {
			return fmt.Errorf("livekit room api: %w", err)
		}
	}

	return nil
}

// httpURL maps websocket schemes onto their HTTP equivalents.
func httpURL(url string) string {
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	default:
		return url
	}
}
