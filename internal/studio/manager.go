package studio

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Manager keeps at most one open session per broadcast id. Sessions are
// initialized outside the manager lock; concurrent opens of the same id wait
// for the first one to finish.
type Manager struct {
	factory   TransportFactory
	publisher FactPublisher
	opts      SessionOptions

	mu       sync.Mutex
	sessions map[string]*Session
	opening  map[string]chan struct{}
}

// NewManager creates a manager whose sessions share factory, publisher, and opts.
func NewManager(factory TransportFactory, publisher FactPublisher, opts SessionOptions) *Manager {
	return &Manager{
		factory:   factory,
		publisher: publisher,
		opts:      opts,
		sessions:  make(map[string]*Session),
		opening:   make(map[string]chan struct{}),
	}
}

// Open returns the open session for cfg.BroadcastID, or creates and
// initializes one. A session that has ended or failed is disposed and
// replaced.
func (m *Manager) Open(ctx context.Context, cfg SessionConfig) (*Session, bool, error) {
	id := cfg.BroadcastID
	for {
		m.mu.Lock()
		if wait, ok := m.opening[id]; ok {
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
		}

		existing, ok := m.sessions[id]
		if !ok {
			break
		}
		m.mu.Unlock()

		// State waits on the session lock, which transport calls hold.
		if !existing.State().Terminal() {
			return existing, false, nil
		}
		m.mu.Lock()
		if m.sessions[id] == existing {
			delete(m.sessions, id)
			m.updateGauge()
		}
		m.mu.Unlock()
		_ = existing.Dispose()
	}

	ready := make(chan struct{})
	m.opening[id] = ready
	m.mu.Unlock()

	s := NewSession(m.factory, m.publisher, m.opts)
	err := s.Initialize(ctx, cfg)

	m.mu.Lock()
	delete(m.opening, id)
	close(ready)
	if err == nil {
		m.sessions[id] = s
		m.updateGauge()
	}
	m.mu.Unlock()

	if err != nil {
		_ = s.Dispose()
		return nil, false, err
	}
	return s, true, nil
}

// Get returns the open session for a broadcast.
func (m *Manager) Get(broadcastID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[broadcastID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends the broadcast if it is live, then disposes the session.
func (m *Manager) Close(ctx context.Context, broadcastID string) error {
	m.mu.Lock()
	s, ok := m.sessions[broadcastID]
	delete(m.sessions, broadcastID)
	m.updateGauge()
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	var endErr error
	if s.State() == StateLive {
		endErr = s.EndBroadcast(ctx)
	}
	return errors.Join(endErr, s.Dispose())
}

// CloseAll closes every open session.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.IDs() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IDs returns the broadcast ids of open sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) updateGauge() {
	if m.opts.Metrics != nil {
		m.opts.Metrics.SetOpenSessions(len(m.sessions))
	}
}
