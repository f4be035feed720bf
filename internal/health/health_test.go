package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	lkproto "github.com/livekit/protocol/livekit"
	"github.com/redis/go-redis/v9"
)

type fakePinger struct {
	err error
}

func (f fakePinger) PingContext(ctx context.Context) error {
	return f.err
}

func TestDBChecker(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name    string
		checker *DBChecker
		wantErr error
	}{
		{"healthy", &DBChecker{db: fakePinger{}}, nil},
		{"ping fails", &DBChecker{db: fakePinger{err: down}}, down},
		{"not configured", NewDBChecker(nil), ErrNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.checker.HealthCheck(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type fakeRedisPinger struct {
	reply string
	err   error
}

func (f fakeRedisPinger) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult(f.reply, f.err)
}

func TestRedisChecker(t *testing.T) {
	down := errors.New("dial tcp: connection refused")
	tests := []struct {
		name    string
		client  statusPinger
		wantErr bool
	}{
		{"pong", fakeRedisPinger{reply: "PONG"}, false},
		{"error", fakeRedisPinger{err: down}, true},
		{"unexpected reply", fakeRedisPinger{reply: "LOADING"}, true},
		{"not configured", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &RedisChecker{client: tt.client}
			err := checker.HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type fakeRoomLister struct {
	err error
}

func (f fakeRoomLister) ListRooms(ctx context.Context) ([]*lkproto.Room, error) {
	return nil, f.err
}

func TestLiveKitChecker(t *testing.T) {
	denied := errors.New("twirp error unauthenticated")
	tests := []struct {
		name    string
		status  int
		rooms   RoomLister
		wantErr bool
	}{
		{"reachable", http.StatusOK, nil, false},
		{"reachable with valid credentials", http.StatusOK, fakeRoomLister{}, false},
		{"credentials rejected", http.StatusOK, fakeRoomLister{err: denied}, true},
		{"server error", http.StatusServiceUnavailable, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewLiveKitChecker(server.URL, tt.rooms).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLiveKitChecker_EmptyURL(t *testing.T) {
	err := NewLiveKitChecker("", nil).HealthCheck(context.Background())
	if err == nil || err.Error() != "livekit url not configured" {
		t.Errorf("expected not configured error, got %v", err)
	}
}

func TestLiveKitChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewLiveKitChecker(server.URL, nil).HealthCheck(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHTTPURL(t *testing.T) {
	tests := map[string]string{
		"wss://lk.example.com":   "https://lk.example.com",
		"ws://localhost:7880":    "http://localhost:7880",
		"https://lk.example.com": "https://lk.example.com",
		"":                       "",
	}
	for in, want := range tests {
		if got := httpURL(in); got != want {
			t.Errorf("httpURL(%q) = %q, want %q", in, got, want)
		}
	}
}
