package studio

// ChannelView is a channel as reported to operators.
type ChannelView struct {
	ParticipantID  string  `json:"participant_id"`
	Volume         int     `json:"volume"`
	Muted          bool    `json:"muted"`
	Active         bool    `json:"active"`
	EffectiveLevel float64 `json:"effective_level"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Broadcast    BroadcastSession `json:"broadcast"`
	State        State            `json:"state"`
	RoomName     string           `json:"room_name"`
	Participants []Participant    `json:"participants"`
	Channels     []ChannelView    `json:"channels"`
	MasterVolume int              `json:"master_volume"`
}

// Snapshot returns the session's current broadcast, participants, and mix.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Broadcast: s.broadcastLocked(),
		State:     s.state,
		RoomName:  s.config.RoomName,
	}
	registry := s.registry
	s.mu.Unlock()

	if registry != nil {
		snap.Participants = registry.Participants()
	}
	if snap.Participants == nil {
		snap.Participants = []Participant{}
	}

	snap.MasterVolume = s.mixer.MasterVolume()
	channels := s.mixer.Channels()
	snap.Channels = make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		level, _ := s.mixer.EffectiveLevel(ch.ParticipantID)
		snap.Channels = append(snap.Channels, ChannelView{
			ParticipantID:  ch.ParticipantID,
			Volume:         ch.Volume,
			Muted:          ch.Muted,
			Active:         ch.Active(),
			EffectiveLevel: level,
		})
	}
	return snap
}
