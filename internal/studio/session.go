package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/onnwee/studiocast/internal/mixer"
	"github.com/onnwee/studiocast/internal/statesync"
	"github.com/onnwee/studiocast/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// FactPublisher receives the liveness facts a session emits.
type FactPublisher interface {
	Publish(ctx context.Context, fact statesync.Fact) bool
}

// SessionOptions carries optional session collaborators.
type SessionOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics

	// RequireUserGesture holds initialized sessions in PendingUserGesture
	// until ConfirmUserGesture passes the device check.
	RequireUserGesture bool

	Now func() time.Time
}

// Session is the state machine for one broadcast. Transitions are
// serialized by a per-session mutex held across transport calls, so
// concurrent GoLive calls collapse into one execution and a no-op.
type Session struct {
	factory   TransportFactory
	publisher FactPublisher
	logger    *slog.Logger
	metrics   *Metrics
	gate      *DeviceGate
	now       func() time.Time
	mixer     *mixer.Mixer

	mu         sync.Mutex
	state      State
	config     SessionConfig
	info       BroadcastSession
	registry   *Registry
	transport  MediaTransport
	publishing map[string]bool
	disposed   bool
}

// NewSession creates an idle session. publisher may be nil.
func NewSession(factory TransportFactory, publisher FactPublisher, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		factory:    factory,
		publisher:  publisher,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        now,
		mixer:      mixer.New(logger),
		state:      StateIdle,
		publishing: make(map[string]bool),
	}
	if opts.RequireUserGesture {
		s.gate = NewDeviceGate()
	}
	return s
}

// Initialize validates cfg, acquires the media transport, and moves the
// session to Ready (or PendingUserGesture when a device gate is configured).
func (s *Session) Initialize(ctx context.Context, cfg SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionDisposed
	}
	if s.state != StateIdle {
		return invalidState("initialize", s.state)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	cfg = cfg.withDefaults()

	s.config = cfg
	s.info = BroadcastSession{
		ID:     cfg.BroadcastID,
		Title:  cfg.Title,
		Status: broadcast.StatusScheduled,
	}
	s.logger = s.logger.With("broadcast_id", cfg.BroadcastID)
	s.transition(ctx, StateInitializing)

	if s.factory == nil {
		s.transition(ctx, StateError)
		return fmt.Errorf("%w: no media transport factory", ErrInitialization)
	}

	tctx, cancel := context.WithTimeout(ctx, cfg.TransportTimeout)
	transport, err := s.factory.NewTransport(tctx, cfg)
	cancel()
	if err == nil && transport == nil {
		err = errors.New("factory returned no transport")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to construct media transport", "error", err)
		s.transition(ctx, StateError)
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	s.transport = transport
	s.registry = NewRegistry(cfg.MaxHosts, cfg.MaxGuests, s.mixer)

	if s.gate != nil && !s.gate.Ready() {
		s.transition(ctx, StatePendingUserGesture)
		return nil
	}
	s.transition(ctx, StateReady)
	s.info.Status = broadcast.StatusReady
	return nil
}

// ConfirmUserGesture runs the device check after an operator gesture and
// moves a pending session to Ready. ErrPermissionDenied and
// ErrDeviceNotFound are returned as-is and leave the session pending.
func (s *Session) ConfirmUserGesture(ctx context.Context, checker DeviceChecker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionDisposed
	}
	if s.state == StateReady {
		return nil
	}
	if s.state != StatePendingUserGesture {
		return invalidState("confirm user gesture", s.state)
	}

	if err := s.gate.Acquire(ctx, checker); err != nil {
		s.logger.WarnContext(ctx, "audio input acquisition failed", "error", err)
		return err
	}
	s.transition(ctx, StateReady)
	s.info.Status = broadcast.StatusReady
	return nil
}

// AddParticipant admits a participant in Ready or Live. A participant who
// joins an active channel while Live is put on air best-effort.
func (s *Session) AddParticipant(ctx context.Context, role Role, info ParticipantInfo) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("add participant", StateReady, StateLive); err != nil {
		return Participant{}, err
	}

	p, err := s.registry.Add(role, info)
	if err != nil {
		var capErr *CapacityError
		if errors.As(err, &capErr) && s.metrics != nil {
			s.metrics.IncCapacityRejections(capErr.Role)
		}
		return Participant{}, err
	}

	if p.Role == RoleHost && s.info.HostParticipantID == "" {
		s.info.HostParticipantID = p.ID
	}

	s.logger.InfoContext(ctx, "participant added",
		"participant_id", p.ID,
		"role", string(p.Role),
		"connection_state", string(p.ConnectionState),
	)

	if s.state == StateLive {
		s.publishIfActive(ctx, p.ID)
	}
	return p, nil
}

// RemoveParticipant drops a participant and its channel in Ready or Live.
// Removing an absent id is a no-op.
func (s *Session) RemoveParticipant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("remove participant", StateReady, StateLive); err != nil {
		return err
	}

	p, ok := s.registry.Remove(id)
	if !ok {
		return nil
	}

	if s.publishing[id] {
		delete(s.publishing, id)
		if err := s.callTransport(ctx, "stop_publishing", func(tctx context.Context) error {
			return s.transport.StopPublishing(tctx, s.config.RoomName, id)
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to stop publishing for removed participant",
				"error", err,
				"participant_id", id,
			)
		}
	}

	if s.info.HostParticipantID == id {
		s.info.HostParticipantID = ""
		if next, ok := s.registry.FirstHost(); ok {
			s.info.HostParticipantID = next.ID
		}
	}

	s.logger.InfoContext(ctx, "participant removed", "participant_id", id, "role", string(p.Role))
	return nil
}

// SetConnectionState updates a participant's connectivity. A channel that
// becomes active while Live is put on air best-effort.
func (s *Session) SetConnectionState(ctx context.Context, id string, state ConnectionState) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("set connection state", StateReady, StateLive); err != nil {
		return Participant{}, err
	}

	p, err := s.registry.SetConnectionState(id, state)
	if err != nil {
		return Participant{}, err
	}

	if s.state == StateLive {
		s.publishIfActive(ctx, id)
	}
	return p, nil
}

// GoLive starts publishing every active channel and moves the session to
// Live. It requires a connected host. If any publish fails the session
// fails closed: channels already started are stopped, the session moves to
// Error, and a not-live fact is emitted.
func (s *Session) GoLive(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionDisposed
	}
	if s.state == StateLive {
		return nil
	}
	if s.state != StateReady {
		return invalidState("go live", s.state)
	}
	if !s.registry.HasConnectedHost() {
		return ErrNoConnectedHost
	}

	ctx, endSpan := tracing.StartSpan(ctx, "studio.go_live")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("broadcast.id", s.info.ID),
		attribute.String("room.name", s.config.RoomName),
	)

	for _, ch := range s.mixer.ActiveChannels() {
		id := ch.ParticipantID
		pubErr := s.callTransport(ctx, "start_publishing", func(tctx context.Context) error {
			return s.transport.StartPublishing(tctx, s.config.RoomName, id)
		})
		if pubErr != nil {
			s.logger.ErrorContext(ctx, "failed to start publishing, aborting go live",
				"error", pubErr,
				"participant_id", id,
			)
			s.stopPublishing(ctx, s.publishingIDs())
			s.transition(ctx, StateError)
			s.info.Status = broadcast.StatusEnded
			if s.metrics != nil {
				s.metrics.IncGoLiveFailures()
			}
			s.emit(ctx, false)
			return fmt.Errorf("%w: start publishing %s: %w", ErrTransport, id, pubErr)
		}
		s.publishing[id] = true
		tracing.AddEvent(ctx, "publishing_started", attribute.String("participant.id", id))
	}

	startedAt := s.now().UTC()
	s.info.StartedAt = &startedAt
	s.info.Status = broadcast.StatusLive
	s.transition(ctx, StateLive)
	s.emit(ctx, true)
	return nil
}

// EndBroadcast stops publishing for every channel on air and emits a not-live fact.
// Stop failures do not abort the teardown; if any occurred the session ends
// in Error and the failures are returned wrapped in ErrTransport.
func (s *Session) EndBroadcast(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionDisposed
	}
	if s.state == StateEnded {
		return nil
	}
	if s.state != StateLive {
		return invalidState("end broadcast", s.state)
	}

	ctx, endSpan := tracing.StartSpan(ctx, "studio.end_broadcast")
	defer func() { endSpan(err) }()

	s.transition(ctx, StateEnding)

	stopErrs := s.stopPublishing(ctx, s.publishingIDs())

	s.info.Status = broadcast.StatusEnded
	s.emit(ctx, false)

	if len(stopErrs) > 0 {
		s.transition(ctx, StateError)
		return fmt.Errorf("%w: %d stop calls failed: %w", ErrTransport, len(stopErrs), errors.Join(stopErrs...))
	}
	s.transition(ctx, StateEnded)
	return nil
}

// JoinToken issues a media room token for a participant.
func (s *Session) JoinToken(ctx context.Context, participantID string, role Role) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("request join token", StatePendingUserGesture, StateReady, StateLive); err != nil {
		return "", err
	}

	var token string
	err := s.callTransport(ctx, "join_token", func(tctx context.Context) error {
		var err error
		token, err = s.transport.RequestJoinToken(tctx, participantID, s.config.RoomName, role)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return token, nil
}

// RoomMembership returns the identities the media relay reports in the room.
func (s *Session) RoomMembership(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("room membership", StatePendingUserGesture, StateReady, StateLive); err != nil {
		return nil, err
	}

	var members []string
	err := s.callTransport(ctx, "room_membership", func(tctx context.Context) error {
		var err error
		members, err = s.transport.RoomMembership(tctx, s.config.RoomName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return members, nil
}

// Dispose releases the media transport. It is safe to call more than once;
// the transport is closed exactly once.
func (s *Session) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}
	s.disposed = true

	if s.transport == nil {
		return nil
	}
	err := s.transport.Close()
	s.transport = nil
	if err != nil {
		s.logger.Warn("failed to close media transport", "error", err)
	}
	return err
}

// SetVolume sets a channel's volume, clamped to [0,100]. Unknown ids are a
// logged no-op.
func (s *Session) SetVolume(id string, volume int) {
	s.mixer.SetVolume(id, volume)
}

// SetMute mutes or unmutes a channel without touching its volume. A host
// unmuted while Live is put on air best-effort if it was never published.
func (s *Session) SetMute(ctx context.Context, id string, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mixer.SetMute(id, muted)
	if !muted && s.state == StateLive && !s.disposed {
		s.publishIfActive(ctx, id)
	}
}

// SetMasterVolume sets the master bus level, clamped to [0,100].
func (s *Session) SetMasterVolume(volume int) {
	s.mixer.SetMasterVolume(volume)
}

// EffectiveLevel returns a channel's level after the master bus, in [0,100].
func (s *Session) EffectiveLevel(id string) (float64, bool) {
	return s.mixer.EffectiveLevel(id)
}

// Channel returns a participant's channel.
func (s *Session) Channel(id string) (mixer.Channel, bool) {
	return s.mixer.Channel(id)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Broadcast returns a copy of the broadcast the session drives.
func (s *Session) Broadcast() BroadcastSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcastLocked()
}

// Participants returns the session's participants in join order.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	registry := s.registry
	s.mu.Unlock()

	if registry == nil {
		return nil
	}
	return registry.Participants()
}

func (s *Session) broadcastLocked() BroadcastSession {
	info := s.info
	if s.info.StartedAt != nil {
		t := *s.info.StartedAt
		info.StartedAt = &t
	}
	return info
}

func (s *Session) requireState(op string, allowed ...State) error {
	if s.disposed {
		return ErrSessionDisposed
	}
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return invalidState(op, s.state)
}

// transition must be called with s.mu held.
func (s *Session) transition(ctx context.Context, to State) {
	from := s.state
	if !canTransition(from, to) {
		s.logger.ErrorContext(ctx, "illegal session transition", "from", string(from), "to", string(to))
		return
	}
	s.state = to
	if s.metrics != nil {
		s.metrics.IncTransitions(to)
	}
	s.logger.InfoContext(ctx, "session state changed", "from", string(from), "to", string(to))
}

// callTransport bounds a transport call by the configured timeout. A
// timeout is reported like any other transport failure.
func (s *Session) callTransport(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.transport == nil {
		return ErrSessionDisposed
	}
	ctx, endSpan := tracing.StartTransportSpan(ctx, op, s.config.RoomName)
	tctx, cancel := context.WithTimeout(ctx, s.config.TransportTimeout)
	defer cancel()

	start := time.Now()
	err := fn(tctx)
	endSpan(err)
	if s.metrics != nil {
		s.metrics.ObserveTransport(op, time.Since(start), err)
	}
	return err
}

// publishIfActive puts a newly active channel on air while Live. Failures
// are logged; mid-broadcast joins never fail the session.
func (s *Session) publishIfActive(ctx context.Context, id string) {
	ch, ok := s.mixer.Channel(id)
	if !ok || !ch.Active() || s.publishing[id] {
		return
	}
	if err := s.callTransport(ctx, "start_publishing", func(tctx context.Context) error {
		return s.transport.StartPublishing(tctx, s.config.RoomName, id)
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to start publishing for participant", "error", err, "participant_id", id)
		return
	}
	s.publishing[id] = true
}

// stopPublishing issues a stop for every id and returns the failures.
func (s *Session) stopPublishing(ctx context.Context, ids []string) []error {
	var errs []error
	for _, id := range ids {
		id := id
		err := s.callTransport(ctx, "stop_publishing", func(tctx context.Context) error {
			return s.transport.StopPublishing(tctx, s.config.RoomName, id)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to stop publishing", "error", err, "participant_id", id)
			errs = append(errs, fmt.Errorf("stop publishing %s: %w", id, err))
		}
		delete(s.publishing, id)
	}
	return errs
}

func (s *Session) publishingIDs() []string {
	ids := make([]string, 0, len(s.publishing))
	for id := range s.publishing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) emit(ctx context.Context, live bool) {
	if s.publisher == nil {
		return
	}
	fact := statesync.NewFact(s.config.BroadcastID, live, s.config.Title, s.config.StreamURL)
	fact.At = s.now().UTC()
	s.publisher.Publish(ctx, fact)
}
