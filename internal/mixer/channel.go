// Package mixer provides the per-participant audio channel model and master bus
// for a broadcast studio session.
package mixer

// Volume bounds and defaults for channels and the master bus.
const (
	MinVolume           = 0
	MaxVolume           = 100
	DefaultVolume       = 50
	DefaultMasterVolume = 100
)

// Channel is the mixer's control unit for a single participant.
type Channel struct {
	ParticipantID string `json:"participant_id"`
	Volume        int    `json:"volume"`
	Muted         bool   `json:"muted"`
	Connected     bool   `json:"connected"`
}

// Active reports whether the channel is currently contributing audio.
// A channel is active only when its participant is connected and it is not muted.
func (c Channel) Active() bool {
	return c.Connected && !c.Muted
}

// ClampVolume bounds v to [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
