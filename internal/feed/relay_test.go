package feed

import (
	"context"
	"testing"
	"time"
)

func TestRedisRelay_DispatchFansOutAndHandles(t *testing.T) {
	hub := NewHub(nil, newTestLogger())
	conn := dialHub(t, newHubServer(t, hub))
	waitFor(t, 2*time.Second, func() bool { return hub.ClientCount() == 1 })

	var handled []Event
	relay := NewRedisRelay(nil, "", hub, newTestLogger())
	relay.OnEvent(func(ctx context.Context, ev Event) {
		handled = append(handled, ev)
	})

	data, err := EncodeEvent(Event{Name: EventBroadcastStarted, BroadcastID: "b1", Title: "Night Shift"})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	relay.dispatch(context.Background(), string(data))

	if ev := readEvent(t, conn); ev.Name != EventBroadcastStarted || ev.BroadcastID != "b1" {
		t.Errorf("expected hub to receive started b1, got %+v", ev)
	}
	if len(handled) != 1 || handled[0].BroadcastID != "b1" || handled[0].Title != "Night Shift" {
		t.Errorf("expected handler to receive started b1, got %+v", handled)
	}
}

func TestRedisRelay_DispatchDropsMalformed(t *testing.T) {
	called := false
	relay := NewRedisRelay(nil, "", NewHub(nil, newTestLogger()), newTestLogger())
	relay.OnEvent(func(ctx context.Context, ev Event) { called = true })

	relay.dispatch(context.Background(), `{"event":"broadcast:paused","data":{}}`)
	relay.dispatch(context.Background(), `not json`)

	if called {
		t.Error("expected malformed payloads to be dropped before the handler")
	}
}

func TestRedisRelay_DefaultChannel(t *testing.T) {
	relay := NewRedisRelay(nil, "", nil, nil)
	if relay.channel != DefaultRelayChannel {
		t.Errorf("expected %s, got %s", DefaultRelayChannel, relay.channel)
	}
}
