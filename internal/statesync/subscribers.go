package statesync

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ChatActivation tracks which broadcast chats accept messages. A chat is
// active exactly while its broadcast is live.
type ChatActivation struct {
	mu     sync.RWMutex
	active map[string]bool
}

// NewChatActivation creates an empty ChatActivation.
func NewChatActivation() *ChatActivation {
	return &ChatActivation{active: make(map[string]bool)}
}

// OnFact implements Subscriber.
func (c *ChatActivation) OnFact(ctx context.Context, fact Fact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fact.Live {
		c.active[fact.BroadcastID] = true
	} else {
		delete(c.active, fact.BroadcastID)
	}
}

// IsActive reports whether the chat for a broadcast accepts messages.
func (c *ChatActivation) IsActive(broadcastID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active[broadcastID]
}

// Active returns the ids of broadcasts with active chats, sorted.
func (c *ChatActivation) Active() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NowPlaying is what the global player is tuned to.
type NowPlaying struct {
	BroadcastID string    `json:"broadcast_id"`
	Title       string    `json:"title"`
	StreamURL   string    `json:"stream_url,omitempty"`
	Since       time.Time `json:"since"`
}

// PlayerState follows the most recently started broadcast. When that
// broadcast ends the player goes idle; ends of other broadcasts are ignored.
type PlayerState struct {
	mu      sync.RWMutex
	current *NowPlaying
}

// NewPlayerState creates an idle PlayerState.
func NewPlayerState() *PlayerState {
	return &PlayerState{}
}

// OnFact implements Subscriber.
func (p *PlayerState) OnFact(ctx context.Context, fact Fact) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fact.Live {
		p.current = &NowPlaying{
			BroadcastID: fact.BroadcastID,
			Title:       fact.Title,
			StreamURL:   fact.StreamURL,
			Since:       fact.At,
		}
		return
	}
	if p.current != nil && p.current.BroadcastID == fact.BroadcastID {
		p.current = nil
	}
}

// Current returns what is playing, if anything.
func (p *PlayerState) Current() (NowPlaying, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return NowPlaying{}, false
	}
	return *p.current, true
}
