package studio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/studiocast/internal/statesync"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport records publish calls. Errors can be injected per participant.
type fakeTransport struct {
	mu        sync.Mutex
	started   []string
	stopped   []string
	startErr  map[string]error
	stopErr   map[string]error
	blockOn   string
	closed    int
	tokenRole Role
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{startErr: map[string]error{}, stopErr: map[string]error{}}
}

func (f *fakeTransport) StartPublishing(ctx context.Context, roomName, participantID string) error {
	f.mu.Lock()
	block := f.blockOn == participantID
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErr[participantID]; err != nil {
		return err
	}
	f.started = append(f.started, participantID)
	return nil
}

func (f *fakeTransport) StopPublishing(ctx context.Context, roomName, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stopErr[participantID]; err != nil {
		return err
	}
	f.stopped = append(f.stopped, participantID)
	return nil
}

func (f *fakeTransport) RequestJoinToken(ctx context.Context, participantID, roomName string, role Role) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenRole = role
	return "token-" + participantID + "-" + roomName, nil
}

func (f *fakeTransport) RoomMembership(ctx context.Context, roomName string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeTransport) Stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

func factoryFor(t MediaTransport) TransportFactory {
	return TransportFactoryFunc(func(ctx context.Context, cfg SessionConfig) (MediaTransport, error) {
		return t, nil
	})
}

type fakePublisher struct {
	mu    sync.Mutex
	facts []statesync.Fact
}

func (p *fakePublisher) Publish(ctx context.Context, fact statesync.Fact) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.facts = append(p.facts, fact)
	return true
}

func (p *fakePublisher) Facts() []statesync.Fact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]statesync.Fact(nil), p.facts...)
}

func testConfig() SessionConfig {
	return SessionConfig{
		BroadcastID:      "b1",
		Title:            "Night Shift",
		MaxHosts:         2,
		MaxGuests:        2,
		TransportTimeout: time.Second,
	}
}

// newReadySession returns an initialized session with its fakes.
func newReadySession(t *testing.T) (*Session, *fakeTransport, *fakePublisher) {
	t.Helper()
	transport := newFakeTransport()
	pub := &fakePublisher{}
	s := NewSession(factoryFor(transport), pub, SessionOptions{Logger: newTestLogger()})
	if err := s.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
	return s, transport, pub
}

func mustAdd(t *testing.T, s *Session, role Role, id string, state ConnectionState) {
	t.Helper()
	if _, err := s.AddParticipant(context.Background(), role, ParticipantInfo{ID: id, DisplayName: id, ConnectionState: state}); err != nil {
		t.Fatalf("AddParticipant(%s) error = %v", id, err)
	}
}

func TestSession_Initialize_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SessionConfig
	}{
		{"missing broadcast id", SessionConfig{MaxHosts: 1}},
		{"zero hosts", SessionConfig{BroadcastID: "b1", MaxHosts: 0}},
		{"negative guests", SessionConfig{BroadcastID: "b1", MaxHosts: 1, MaxGuests: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(factoryFor(newFakeTransport()), nil, SessionOptions{Logger: newTestLogger()})
			err := s.Initialize(context.Background(), tt.cfg)
			if !errors.Is(err, ErrInitialization) || !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInitialization wrapping ErrInvalidConfig, got %v", err)
			}
			if s.State() != StateIdle {
				t.Errorf("expected state to stay idle, got %s", s.State())
			}
		})
	}
}

func TestSession_Initialize_FactoryFailure(t *testing.T) {
	factory := TransportFactoryFunc(func(ctx context.Context, cfg SessionConfig) (MediaTransport, error) {
		return nil, errors.New("livekit credentials missing")
	})
	s := NewSession(factory, nil, SessionOptions{Logger: newTestLogger()})

	err := s.Initialize(context.Background(), testConfig())
	if !errors.Is(err, ErrInitialization) {
		t.Errorf("expected ErrInitialization, got %v", err)
	}
	if s.State() != StateError {
		t.Errorf("expected error state, got %s", s.State())
	}
}

func TestSession_Initialize_Twice(t *testing.T) {
	s, _, _ := newReadySession(t)
	if err := s.Initialize(context.Background(), testConfig()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestSession_Initialize_DefaultRoomName(t *testing.T) {
	s, _, _ := newReadySession(t)
	if got := s.Snapshot().RoomName; got != "broadcast-b1" {
		t.Errorf("expected default room name, got %q", got)
	}
}

func TestSession_GoLiveScenario(t *testing.T) {
	s, transport, pub := newReadySession(t)
	ctx := context.Background()

	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleGuest, "G1", ConnectionConnected)

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	if s.State() != StateLive {
		t.Errorf("expected live, got %s", s.State())
	}

	facts := pub.Facts()
	if len(facts) != 1 || !facts[0].Live || facts[0].BroadcastID != "b1" {
		t.Fatalf("expected one live fact for b1, got %+v", facts)
	}
	if facts[0].Title != "Night Shift" {
		t.Errorf("expected fact title, got %q", facts[0].Title)
	}

	level, ok := s.EffectiveLevel("G1")
	if !ok || level != 50 {
		t.Errorf("expected effective level 50 for G1, got %v (ok=%v)", level, ok)
	}

	if got := transport.Started(); len(got) != 2 {
		t.Errorf("expected both channels published, got %v", got)
	}

	info := s.Broadcast()
	if info.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}
	if info.HostParticipantID != "H1" {
		t.Errorf("expected host H1, got %q", info.HostParticipantID)
	}
}

func TestSession_GoLiveRequiresConnectedHost(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, s *Session)
		wantErr error
	}{
		{
			name:    "empty session",
			setup:   func(t *testing.T, s *Session) {},
			wantErr: ErrNoConnectedHost,
		},
		{
			name: "host still connecting",
			setup: func(t *testing.T, s *Session) {
				mustAdd(t, s, RoleHost, "H1", ConnectionConnecting)
				mustAdd(t, s, RoleGuest, "G1", ConnectionConnected)
			},
			wantErr: ErrNoConnectedHost,
		},
		{
			name: "only co-host connected",
			setup: func(t *testing.T, s *Session) {
				mustAdd(t, s, RoleCoHost, "C1", ConnectionConnected)
			},
			wantErr: ErrNoConnectedHost,
		},
		{
			name: "host disconnected",
			setup: func(t *testing.T, s *Session) {
				mustAdd(t, s, RoleHost, "H1", ConnectionDisconnected)
			},
			wantErr: ErrNoConnectedHost,
		},
		{
			name: "muted connected host",
			setup: func(t *testing.T, s *Session) {
				mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
				s.SetMute(context.Background(), "H1", true)
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, pub := newReadySession(t)
			tt.setup(t, s)

			err := s.GoLive(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("GoLive() error = %v", err)
				}
				if s.State() != StateLive {
					t.Errorf("expected live, got %s", s.State())
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if s.State() != StateReady {
				t.Errorf("expected no state change, got %s", s.State())
			}
			if len(pub.Facts()) != 0 {
				t.Errorf("expected no facts, got %d", len(pub.Facts()))
			}
		})
	}
}

func TestSession_GoLiveAfterConnect(t *testing.T) {
	s, _, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnecting)

	if err := s.GoLive(ctx); !errors.Is(err, ErrNoConnectedHost) {
		t.Fatalf("expected ErrNoConnectedHost, got %v", err)
	}
	if _, err := s.SetConnectionState(ctx, "H1", ConnectionConnected); err != nil {
		t.Fatalf("SetConnectionState() error = %v", err)
	}
	if err := s.GoLive(ctx); err != nil {
		t.Errorf("GoLive() error = %v", err)
	}
}

func TestSession_GoLiveTransportFailureFailsClosed(t *testing.T) {
	s, transport, pub := newReadySession(t)
	ctx := context.Background()

	mustAdd(t, s, RoleGuest, "guest-1", ConnectionConnected)
	mustAdd(t, s, RoleHost, "host-1", ConnectionConnected)
	transport.startErr["host-1"] = errors.New("sfu unreachable")

	err := s.GoLive(ctx)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if s.State() != StateError {
		t.Errorf("expected error state, got %s", s.State())
	}

	facts := pub.Facts()
	if len(facts) != 1 || facts[0].Live {
		t.Fatalf("expected a single not-live fact, got %+v", facts)
	}

	// The channel that did start is taken back off air.
	stopped := transport.Stopped()
	if len(stopped) != 1 || stopped[0] != "guest-1" {
		t.Errorf("expected guest-1 to be stopped, got %v", stopped)
	}
}

func TestSession_GoLiveTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.blockOn = "H1"
	s := NewSession(factoryFor(transport), &fakePublisher{}, SessionOptions{Logger: newTestLogger()})

	cfg := testConfig()
	cfg.TransportTimeout = 20 * time.Millisecond
	if err := s.Initialize(context.Background(), cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)

	err := s.GoLive(context.Background())
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected ErrTransport wrapping deadline exceeded, got %v", err)
	}
	if s.State() != StateError {
		t.Errorf("expected error state, got %s", s.State())
	}
}

func TestSession_GoLiveIsReentrant(t *testing.T) {
	s, transport, pub := newReadySession(t)
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.GoLive(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GoLive() error = %v", err)
		}
	}
	if got := transport.Started(); len(got) != 1 {
		t.Errorf("expected a single publish, got %v", got)
	}
	if len(pub.Facts()) != 1 {
		t.Errorf("expected a single fact, got %d", len(pub.Facts()))
	}
}

func TestSession_EndBroadcast(t *testing.T) {
	s, transport, pub := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleGuest, "G1", ConnectionDisconnected)

	if err := s.EndBroadcast(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState before going live, got %v", err)
	}

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	if err := s.EndBroadcast(ctx); err != nil {
		t.Fatalf("EndBroadcast() error = %v", err)
	}
	if s.State() != StateEnded {
		t.Errorf("expected ended, got %s", s.State())
	}

	// Only channels that were put on air are stopped.
	if got := transport.Stopped(); len(got) != 1 || got[0] != "H1" {
		t.Errorf("expected only H1 to be stopped, got %v", got)
	}

	facts := pub.Facts()
	if len(facts) != 2 || facts[1].Live {
		t.Errorf("expected a trailing not-live fact, got %+v", facts)
	}

	if err := s.EndBroadcast(ctx); err != nil {
		t.Errorf("expected repeated EndBroadcast to be a no-op, got %v", err)
	}
	if len(pub.Facts()) != 2 {
		t.Errorf("expected no further facts, got %d", len(pub.Facts()))
	}

	if err := s.GoLive(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState after end, got %v", err)
	}
}

func TestSession_EndBroadcastContinuesPastStopFailures(t *testing.T) {
	s, transport, pub := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleHost, "H2", ConnectionConnected)

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	transport.stopErr["H1"] = errors.New("timeout")

	err := s.EndBroadcast(ctx)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if s.State() != StateError {
		t.Errorf("expected error state, got %s", s.State())
	}
	if got := transport.Stopped(); len(got) != 1 || got[0] != "H2" {
		t.Errorf("expected H2 to still be stopped, got %v", got)
	}

	facts := pub.Facts()
	if last := facts[len(facts)-1]; last.Live {
		t.Error("expected not-live fact despite stop failure")
	}
}

func TestSession_EndBroadcastSkipsNeverPublished(t *testing.T) {
	s, transport, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleGuest, "G1", ConnectionConnecting)

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	// The media server has never heard of G1.
	transport.stopErr["G1"] = errors.New("participant not found")

	if err := s.EndBroadcast(ctx); err != nil {
		t.Fatalf("EndBroadcast() error = %v", err)
	}
	if s.State() != StateEnded {
		t.Errorf("expected ended, got %s", s.State())
	}
	if got := transport.Stopped(); len(got) != 1 || got[0] != "H1" {
		t.Errorf("expected only H1 to be stopped, got %v", got)
	}
}

func TestSession_UnmuteWhileLivePublishes(t *testing.T) {
	s, transport, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleGuest, "G1", ConnectionConnected)
	s.SetMute(ctx, "H1", true)

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	if got := transport.Started(); len(got) != 1 || got[0] != "G1" {
		t.Fatalf("expected only G1 on air, got %v", got)
	}

	s.SetMute(ctx, "H1", false)
	if got := transport.Started(); len(got) != 2 || got[1] != "H1" {
		t.Errorf("expected H1 to go on air after unmute, got %v", got)
	}

	// Muting again does not stop it and unmuting twice does not republish.
	s.SetMute(ctx, "H1", true)
	s.SetMute(ctx, "H1", false)
	if got := transport.Started(); len(got) != 2 {
		t.Errorf("expected no duplicate publish, got %v", got)
	}

	if err := s.EndBroadcast(ctx); err != nil {
		t.Fatalf("EndBroadcast() error = %v", err)
	}
	if got := transport.Stopped(); len(got) != 2 {
		t.Errorf("expected both channels stopped, got %v", got)
	}
}

func TestSession_UnmuteBeforeLiveDoesNotPublish(t *testing.T) {
	s, transport, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)

	s.SetMute(ctx, "H1", true)
	s.SetMute(ctx, "H1", false)
	if got := transport.Started(); len(got) != 0 {
		t.Errorf("expected no publish outside Live, got %v", got)
	}
}

func TestSession_ParticipantsOutsideReadyOrLive(t *testing.T) {
	s := NewSession(factoryFor(newFakeTransport()), nil, SessionOptions{Logger: newTestLogger()})
	ctx := context.Background()

	if _, err := s.AddParticipant(ctx, RoleHost, ParticipantInfo{ID: "H1"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState in idle, got %v", err)
	}
	if err := s.RemoveParticipant(ctx, "H1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState in idle, got %v", err)
	}
}

func TestSession_RemoveParticipant(t *testing.T) {
	s, _, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleHost, "H2", ConnectionConnected)

	if err := s.RemoveParticipant(ctx, "H1"); err != nil {
		t.Fatalf("RemoveParticipant() error = %v", err)
	}
	if err := s.RemoveParticipant(ctx, "H1"); err != nil {
		t.Errorf("expected removing an absent id to be a no-op, got %v", err)
	}
	if _, ok := s.Channel("H1"); ok {
		t.Error("expected channel to be torn down with its participant")
	}
	if got := s.Broadcast().HostParticipantID; got != "H2" {
		t.Errorf("expected host to pass to H2, got %q", got)
	}
}

func TestSession_RemoveWhileLiveStopsPublishing(t *testing.T) {
	s, transport, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	mustAdd(t, s, RoleGuest, "G1", ConnectionConnected)

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	if err := s.RemoveParticipant(ctx, "G1"); err != nil {
		t.Fatalf("RemoveParticipant() error = %v", err)
	}

	if got := transport.Stopped(); len(got) != 1 || got[0] != "G1" {
		t.Errorf("expected G1 stop, got %v", got)
	}
	if s.State() != StateLive {
		t.Errorf("expected session to stay live, got %s", s.State())
	}
}

func TestSession_JoinWhileLivePublishes(t *testing.T) {
	s, transport, _ := newReadySession(t)
	ctx := context.Background()
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)
	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}

	mustAdd(t, s, RoleGuest, "G1", ConnectionConnecting)
	if got := transport.Started(); len(got) != 1 {
		t.Errorf("expected connecting guest not yet published, got %v", got)
	}

	if _, err := s.SetConnectionState(ctx, "G1", ConnectionConnected); err != nil {
		t.Fatalf("SetConnectionState() error = %v", err)
	}
	if got := transport.Started(); len(got) != 2 || got[1] != "G1" {
		t.Errorf("expected G1 published once connected, got %v", got)
	}
}

func TestSession_MixerControls(t *testing.T) {
	s, _, _ := newReadySession(t)
	mustAdd(t, s, RoleGuest, "G1", ConnectionConnected)

	tests := []struct {
		volume int
		want   int
	}{
		{150, 100},
		{-10, 0},
		{75, 75},
	}
	for _, tt := range tests {
		s.SetVolume("G1", tt.volume)
		ch, _ := s.Channel("G1")
		if ch.Volume != tt.want {
			t.Errorf("SetVolume(%d): expected %d, got %d", tt.volume, tt.want, ch.Volume)
		}
	}

	// Unknown ids are a no-op.
	s.SetVolume("nobody", 10)
	s.SetMute(context.Background(), "nobody", true)

	s.SetMute(context.Background(), "G1", true)
	ch, _ := s.Channel("G1")
	if !ch.Muted || ch.Volume != 75 {
		t.Errorf("expected mute to leave volume alone, got %+v", ch)
	}

	s.SetMasterVolume(50)
	if level, _ := s.EffectiveLevel("G1"); level != 37.5 {
		t.Errorf("expected effective level 37.5, got %v", level)
	}
}

func TestSession_Dispose(t *testing.T) {
	s, transport, _ := newReadySession(t)

	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose() error = %v", err)
	}
	if err := s.Dispose(); err != nil {
		t.Errorf("second Dispose() error = %v", err)
	}
	if transport.closed != 1 {
		t.Errorf("expected transport closed exactly once, got %d", transport.closed)
	}

	if err := s.GoLive(context.Background()); !errors.Is(err, ErrSessionDisposed) {
		t.Errorf("expected ErrSessionDisposed, got %v", err)
	}
}

func TestSession_JoinToken(t *testing.T) {
	s, transport, _ := newReadySession(t)

	token, err := s.JoinToken(context.Background(), "G1", RoleGuest)
	if err != nil {
		t.Fatalf("JoinToken() error = %v", err)
	}
	if token != "token-G1-broadcast-b1" {
		t.Errorf("unexpected token %q", token)
	}
	if transport.tokenRole != RoleGuest {
		t.Errorf("expected guest role passed to transport, got %s", transport.tokenRole)
	}
}

func TestSession_UserGesture(t *testing.T) {
	s := NewSession(factoryFor(newFakeTransport()), nil, SessionOptions{
		Logger:             newTestLogger(),
		RequireUserGesture: true,
	})
	ctx := context.Background()

	if err := s.Initialize(ctx, testConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if s.State() != StatePendingUserGesture {
		t.Fatalf("expected pending user gesture, got %s", s.State())
	}

	if _, err := s.AddParticipant(ctx, RoleHost, ParticipantInfo{ID: "H1"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState while pending, got %v", err)
	}

	tests := []struct {
		name     string
		checkErr error
		wantErr  error
	}{
		{"permission denied", ErrPermissionDenied, ErrPermissionDenied},
		{"no device", ErrDeviceNotFound, ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ConfirmUserGesture(ctx, DeviceCheckFunc(func(ctx context.Context) error { return tt.checkErr }))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if s.State() != StatePendingUserGesture {
				t.Errorf("expected session to stay pending, got %s", s.State())
			}
		})
	}

	if err := s.ConfirmUserGesture(ctx, DeviceCheckFunc(func(ctx context.Context) error { return nil })); err != nil {
		t.Fatalf("ConfirmUserGesture() error = %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected ready, got %s", s.State())
	}
	if s.Broadcast().Status != "READY" {
		t.Errorf("expected READY status, got %s", s.Broadcast().Status)
	}
}

func TestSession_FactsReachBus(t *testing.T) {
	bus := statesync.NewBus(nil, newTestLogger())
	chat := statesync.NewChatActivation()
	bus.Subscribe(chat)

	s := NewSession(factoryFor(newFakeTransport()), bus, SessionOptions{Logger: newTestLogger()})
	ctx := context.Background()
	if err := s.Initialize(ctx, testConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	mustAdd(t, s, RoleHost, "H1", ConnectionConnected)

	if err := s.GoLive(ctx); err != nil {
		t.Fatalf("GoLive() error = %v", err)
	}
	if !chat.IsActive("b1") {
		t.Error("expected chat to activate when the session goes live")
	}

	if err := s.EndBroadcast(ctx); err != nil {
		t.Fatalf("EndBroadcast() error = %v", err)
	}
	if chat.IsActive("b1") {
		t.Error("expected chat to deactivate when the broadcast ends")
	}
}
