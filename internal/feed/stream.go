package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrReconnectExhausted is returned by Run once the retry policy refuses another attempt.
	ErrReconnectExhausted = errors.New("feed reconnect attempts exhausted")

	// ErrStreamClosed is returned by Run after Close.
	ErrStreamClosed = errors.New("feed stream closed")
)

// Status is the connectivity status of a Stream.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusExhausted    Status = "exhausted"
)

// ConnectionState is an observable snapshot of the stream's connectivity.
type ConnectionState struct {
	Attempt int    `json:"attempt"`
	Status  Status `json:"status"`
}

// EventHandler receives each complete event in receive order. It is called
// synchronously from the read loop, so at most one event is in flight.
type EventHandler func(ctx context.Context, ev Event)

// Stream is a resilient client subscription to the broadcast feed.
// It reconnects with bounded exponential backoff and stops for good once the
// retry policy is exhausted or Close is called.
type Stream struct {
	config  StreamConfig
	handler EventHandler
	logger  *slog.Logger
	metrics *Metrics
	dialer  websocket.Dialer

	// after starts the reconnect wait; the returned func cancels it.
	after func(d time.Duration) (<-chan time.Time, func() bool)

	mu     sync.Mutex
	conn   *websocket.Conn
	retry  *RetryPolicy // protected by mu
	state  ConnectionState
	closed bool
	done   chan struct{}
}

// NewStream creates a feed client with the given configuration.
func NewStream(config StreamConfig, handler EventHandler, logger *slog.Logger) (*Stream, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		config:  config,
		handler: handler,
		logger:  logger,
		dialer:  websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		retry:   NewRetryPolicy(config.BaseDelay, config.MaxAttempts),
		state:   ConnectionState{Status: StatusDisconnected},
		done:    make(chan struct{}),
		after: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
	}, nil
}

// SetMetrics attaches Prometheus metrics. Must be called before Run.
func (s *Stream) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Run connects to the feed and delivers events until the context is
// cancelled, Close is called, or reconnect attempts are exhausted.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			s.dropConn()
			return err
		}

		conn, err := s.connect(ctx)
		if err == nil {
			err = s.readLoop(ctx, conn)
			s.dropConn()
		}

		if errors.Is(err, ErrStreamClosed) || s.isClosed() {
			return ErrStreamClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		delay, ok := s.scheduleReconnect(err)
		if !ok {
			return ErrReconnectExhausted
		}

		fired, cancel := s.after(delay)
		select {
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		case <-s.done:
			cancel()
			return ErrStreamClosed
		case <-fired:
		}
	}
}

// connect dials the feed. The closed flag is checked under the lock both
// before dialing and before the new connection is installed.
func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	state := s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()
	s.notify(state)

	s.logger.Info("connecting to feed", slog.String("url", s.config.URL))

	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ErrStreamClosed
	}
	s.conn = conn
	s.retry.Reset()
	s.state = ConnectionState{Attempt: 0, Status: StatusConnected}
	state = s.state
	s.mu.Unlock()
	s.notify(state)

	if s.metrics != nil {
		s.metrics.IncConnects()
	}
	s.logger.Info("connected to feed")
	return conn, nil
}

// readLoop reads frames until the connection fails. Context cancellation
// closes the connection to unblock the pending read.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("feed connection closed", slog.String("error", err.Error()))
			return err
		}
		s.dispatch(ctx, payload)
	}
}

// dispatch parses a frame and hands complete events to the handler.
// Malformed and unknown frames never affect the attempt counter.
func (s *Stream) dispatch(ctx context.Context, payload []byte) {
	ev, err := ParseEvent(payload)
	switch {
	case errors.Is(err, ErrUnknownEvent):
		s.logger.Debug("ignoring unknown feed event", slog.String("error", err.Error()))
		return
	case err != nil:
		if s.metrics != nil {
			s.metrics.IncMalformed()
		}
		s.logger.Warn("dropping malformed feed event", slog.String("error", err.Error()))
		return
	}

	if s.metrics != nil {
		s.metrics.IncEventsReceived(ev.Name)
	}
	if s.handler != nil {
		s.handler(ctx, ev)
	}
}

// scheduleReconnect advances the retry policy after a failure.
func (s *Stream) scheduleReconnect(cause error) (time.Duration, bool) {
	s.mu.Lock()
	delay, ok := s.retry.Next()
	attempt := s.retry.Attempt()
	var state ConnectionState
	if ok {
		state = s.setStatusLocked(StatusDisconnected)
	} else {
		state = s.setStatusLocked(StatusExhausted)
	}
	s.mu.Unlock()
	s.notify(state)

	if !ok {
		if s.metrics != nil {
			s.metrics.IncExhausted()
		}
		s.logger.Error("feed reconnect attempts exhausted",
			slog.Int("attempts", s.config.MaxAttempts))
		return 0, false
	}

	if s.metrics != nil {
		s.metrics.IncReconnects()
	}
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	s.logger.Info("scheduling feed reconnect",
		slog.String("error", msg),
		slog.Duration("delay", delay),
		slog.Int("attempt", attempt))
	return delay, true
}

// Close stops the stream: the active connection is closed, a pending
// reconnect timer is cancelled, and no further dial happens. Safe to call
// more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	var state ConnectionState
	changed := s.state.Status != StatusExhausted
	if changed {
		state = s.setStatusLocked(StatusDisconnected)
	}
	s.mu.Unlock()

	if changed {
		s.notify(state)
	}
	return err
}

// State returns the current connection state.
func (s *Stream) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected returns whether the stream currently holds an open connection.
func (s *Stream) IsConnected() bool {
	return s.State().Status == StatusConnected
}

func (s *Stream) dropConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) setStatusLocked(status Status) ConnectionState {
	s.state = ConnectionState{Attempt: s.retry.Attempt(), Status: status}
	return s.state
}

// notify runs the state hook outside the lock so it may call State.
func (s *Stream) notify(state ConnectionState) {
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(state)
	}
}
