package studio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/studiocast/internal/mixer"
)

// Registry owns a session's participants and keeps the mixer in step with
// them: every participant has exactly one channel, and no channel outlives
// its participant.
type Registry struct {
	maxHosts  int
	maxGuests int
	mixer     *mixer.Mixer
	now       func() time.Time

	mu           sync.RWMutex
	participants map[string]*Participant
}

// NewRegistry creates a registry with the given capacities.
func NewRegistry(maxHosts, maxGuests int, mx *mixer.Mixer) *Registry {
	return &Registry{
		maxHosts:     maxHosts,
		maxGuests:    maxGuests,
		mixer:        mx,
		now:          time.Now,
		participants: make(map[string]*Participant),
	}
}

// Add admits a participant and creates its channel. Capacity is checked
// before anything is mutated.
func (r *Registry) Add(role Role, info ParticipantInfo) (Participant, error) {
	if !role.OnAir() {
		return Participant{}, fmt.Errorf("%w: %s cannot join the studio", ErrInvalidRole, role)
	}
	if info.ID == "" {
		return Participant{}, fmt.Errorf("%w: participant id is required", ErrInvalidConfig)
	}
	state := info.ConnectionState
	if state == "" {
		state = ConnectionConnecting
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[info.ID]; exists {
		return Participant{}, fmt.Errorf("%w: %s", ErrParticipantExists, info.ID)
	}

	if role.countsAsHost() {
		if r.countLocked(true) >= r.maxHosts {
			return Participant{}, &CapacityError{Role: role, Limit: r.maxHosts}
		}
	} else if r.countLocked(false) >= r.maxGuests {
		return Participant{}, &CapacityError{Role: role, Limit: r.maxGuests}
	}

	if _, err := r.mixer.AddChannel(info.ID); err != nil {
		return Participant{}, err
	}
	r.mixer.SetConnected(info.ID, state == ConnectionConnected)

	p := &Participant{
		ID:              info.ID,
		DisplayName:     info.DisplayName,
		Role:            role,
		ConnectionState: state,
		JoinedAt:        r.now().UTC(),
	}
	r.participants[p.ID] = p
	return *p, nil
}

// Remove drops a participant and its channel. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.participants, id)
	r.mixer.RemoveChannel(id)
	return *p, true
}

// SetConnectionState updates a participant's connectivity and its channel's activity.
func (r *Registry) SetConnectionState(id string, state ConnectionState) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	p.ConnectionState = state
	r.mixer.SetConnected(id, state == ConnectionConnected)
	return *p, nil
}

// Get returns a participant by id.
func (r *Registry) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Participants returns all participants ordered by join time, then id.
func (r *Registry) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasConnectedHost reports whether a participant with role host is connected.
// Mute state does not matter.
func (r *Registry) HasConnectedHost() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.participants {
		if p.Role == RoleHost && p.Connected() {
			return true
		}
	}
	return false
}

// FirstHost returns the earliest-joined participant with role host.
func (r *Registry) FirstHost() (Participant, bool) {
	for _, p := range r.Participants() {
		if p.Role == RoleHost {
			return p, true
		}
	}
	return Participant{}, false
}

// Count returns the number of participants bounded by the host capacity
// (hosts=true) or the guest capacity (hosts=false).
func (r *Registry) Count(hosts bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked(hosts)
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

func (r *Registry) countLocked(hosts bool) int {
	n := 0
	for _, p := range r.participants {
		if p.Role.countsAsHost() == hosts {
			n++
		}
	}
	return n
}
