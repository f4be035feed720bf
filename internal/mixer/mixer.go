package mixer

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrChannelExists is returned when a channel is added for a participant that already has one.
	ErrChannelExists = errors.New("channel already exists for participant")

	// ErrEmptyParticipantID is returned when a channel is added without a participant ID.
	ErrEmptyParticipantID = errors.New("participant id is required")
)

// Mixer holds channel state and the master bus for one session.
// Control operations (volume, mute) on unknown channels are logged no-ops;
// they are UI-facing and must never fail a live session.
// Thread-safe via RWMutex.
type Mixer struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	master   int
	logger   *slog.Logger
}

// New creates an empty mixer with the master bus at DefaultMasterVolume.
func New(logger *slog.Logger) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{
		channels: make(map[string]*Channel),
		master:   DefaultMasterVolume,
		logger:   logger,
	}
}

// AddChannel creates an unmuted, disconnected channel at DefaultVolume.
func (m *Mixer) AddChannel(participantID string) (Channel, error) {
	if participantID == "" {
		return Channel{}, ErrEmptyParticipantID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[participantID]; exists {
		return Channel{}, ErrChannelExists
	}

	ch := &Channel{
		ParticipantID: participantID,
		Volume:        DefaultVolume,
	}
	m.channels[participantID] = ch
	return *ch, nil
}

// RemoveChannel tears down a participant's channel.
// Returns false if no channel existed.
func (m *Mixer) RemoveChannel(participantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[participantID]; !exists {
		return false
	}
	delete(m.channels, participantID)
	return true
}

// SetVolume stores the clamped volume for a channel.
func (m *Mixer) SetVolume(participantID string, volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[participantID]
	if !ok {
		m.logger.Warn("set volume on unknown channel", "participant_id", participantID)
		return
	}
	ch.Volume = ClampVolume(volume)
}

// SetMute toggles the mute flag of a channel without touching its volume.
func (m *Mixer) SetMute(participantID string, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[participantID]
	if !ok {
		m.logger.Warn("set mute on unknown channel", "participant_id", participantID)
		return
	}
	ch.Muted = muted
}

// SetConnected records the connection flag used to derive Active.
func (m *Mixer) SetConnected(participantID string, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[participantID]
	if !ok {
		m.logger.Warn("set connection on unknown channel", "participant_id", participantID)
		return
	}
	ch.Connected = connected
}

// SetMasterVolume stores the clamped master bus volume.
func (m *Mixer) SetMasterVolume(volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master = ClampVolume(volume)
}

// MasterVolume returns the master bus volume.
func (m *Mixer) MasterVolume() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.master
}

// Channel returns a copy of a participant's channel.
func (m *Mixer) Channel(participantID string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[participantID]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// Channels returns copies of all channels ordered by participant ID.
func (m *Mixer) Channels() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}

// ActiveChannels returns copies of the channels that are connected and unmuted.
func (m *Mixer) ActiveChannels() []Channel {
	all := m.Channels()
	active := all[:0]
	for _, ch := range all {
		if ch.Active() {
			active = append(active, ch)
		}
	}
	return active
}

// Len returns the number of channels.
func (m *Mixer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// EffectiveGain returns channelVolume/100 * masterVolume/100 in [0, 1].
// The master bus is applied at read time and never stored per channel.
func (m *Mixer) EffectiveGain(participantID string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[participantID]
	if !ok {
		return 0, false
	}
	return float64(ch.Volume) / MaxVolume * float64(m.master) / MaxVolume, true
}

// EffectiveLevel returns the effective gain on the 0-100 volume scale.
func (m *Mixer) EffectiveLevel(participantID string) (float64, bool) {
	gain, ok := m.EffectiveGain(participantID)
	if !ok {
		return 0, false
	}
	return gain * MaxVolume, true
}
