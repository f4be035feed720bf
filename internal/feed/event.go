// Package feed provides the server-pushed broadcast event feed: the wire
// format, the server-side hub that fans events out to websocket clients, and
// the resilient client that consumes it.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onnwee/studiocast/internal/broadcast"
)

// Named events carried by the feed.
const (
	EventBroadcastStarted = "broadcast:started"
	EventBroadcastEnded   = "broadcast:ended"
)

var (
	// ErrMalformedEvent is returned for payloads that cannot become a complete event.
	ErrMalformedEvent = errors.New("malformed feed event")

	// ErrUnknownEvent is returned for well-formed envelopes with an unrecognized name.
	ErrUnknownEvent = errors.New("unknown feed event")
)

// Envelope is the JSON frame sent over the feed.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// startedPayload is the data of broadcast:started; id is required.
type startedPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StreamURL string `json:"streamUrl,omitempty"`
}

// endedPayload is the data of broadcast:ended; id is required.
type endedPayload struct {
	ID string `json:"id"`
}

// Event is a parsed, complete feed event.
type Event struct {
	Name        string
	BroadcastID string
	Title       string
	StreamURL   string
}

// Live reports whether the event asserts the broadcast is live.
func (e Event) Live() bool {
	return e.Name == EventBroadcastStarted
}

// ParseEvent decodes a feed frame. Events missing a required field are
// rejected with ErrMalformedEvent rather than returned partially.
func ParseEvent(payload []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Event {
	case EventBroadcastStarted:
		var p startedPayload
		if err := decodeData(env.Data, &p); err != nil {
			return Event{}, err
		}
		if p.ID == "" {
			return Event{}, fmt.Errorf("%w: %s missing id", ErrMalformedEvent, env.Event)
		}
		return Event{Name: env.Event, BroadcastID: p.ID, Title: p.Title, StreamURL: p.StreamURL}, nil

	case EventBroadcastEnded:
		var p endedPayload
		if err := decodeData(env.Data, &p); err != nil {
			return Event{}, err
		}
		if p.ID == "" {
			return Event{}, fmt.Errorf("%w: %s missing id", ErrMalformedEvent, env.Event)
		}
		return Event{Name: env.Event, BroadcastID: p.ID}, nil

	case "":
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)

	default:
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// EncodeEvent serializes an event into a feed frame.
func EncodeEvent(ev Event) ([]byte, error) {
	var data interface{}
	switch ev.Name {
	case EventBroadcastStarted:
		data = startedPayload{ID: ev.BroadcastID, Title: ev.Title, StreamURL: ev.StreamURL}
	case EventBroadcastEnded:
		data = endedPayload{ID: ev.BroadcastID}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.Name, Data: raw})
}

// EventFromRecord maps a durable broadcast record to the feed event that
// announces it. READY and SCHEDULED records have no feed event.
func EventFromRecord(record *broadcast.Record) (Event, bool) {
	switch record.Status {
	case broadcast.StatusLive:
		return Event{
			Name:        EventBroadcastStarted,
			BroadcastID: record.ID,
			Title:       record.Title,
			StreamURL:   record.StreamURL,
		}, true
	case broadcast.StatusEnded:
		return Event{Name: EventBroadcastEnded, BroadcastID: record.ID}, true
	}
	return Event{}, false
}
