// Package statesync propagates the "broadcast is live" fact to every
// interested consumer in the process and to the durable broadcast status.
package statesync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/onnwee/studiocast/internal/feed"
)

// Fact is an immutable statement about a broadcast's liveness.
// Publishing the same liveness twice for a broadcast is a no-op.
type Fact struct {
	ID          string    `json:"id"`
	BroadcastID string    `json:"broadcast_id"`
	Live        bool      `json:"live"`
	Title       string    `json:"title,omitempty"`
	StreamURL   string    `json:"stream_url,omitempty"`
	At          time.Time `json:"at"`
}

// NewFact creates a fact stamped with a fresh id and the current time.
func NewFact(broadcastID string, live bool, title, streamURL string) Fact {
	return Fact{
		ID:          uuid.New().String(),
		BroadcastID: broadcastID,
		Live:        live,
		Title:       title,
		StreamURL:   streamURL,
		At:          time.Now().UTC(),
	}
}

// FactFromEvent converts a feed event into the fact it carries.
func FactFromEvent(ev feed.Event) Fact {
	return NewFact(ev.BroadcastID, ev.Live(), ev.Title, ev.StreamURL)
}

// Status returns the durable status the fact maps to.
func (f Fact) Status() broadcast.Status {
	if f.Live {
		return broadcast.StatusLive
	}
	return broadcast.StatusEnded
}

// Subscriber is notified of every fact that changes a broadcast's liveness.
// OnFact is called synchronously while the bus holds its delivery lock, so
// implementations must not publish back into the bus.
type Subscriber interface {
	OnFact(ctx context.Context, fact Fact)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, fact Fact)

// OnFact calls f.
func (f SubscriberFunc) OnFact(ctx context.Context, fact Fact) {
	f(ctx, fact)
}

// StatusWriter performs the durable broadcast status write.
type StatusWriter interface {
	SetBroadcastStatus(ctx context.Context, id string, status broadcast.Status) (*broadcast.Record, error)
}
