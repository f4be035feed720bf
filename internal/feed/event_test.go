package feed

import (
	"errors"
	"testing"

	"github.com/onnwee/studiocast/internal/broadcast"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
		wantErr error
	}{
		{
			name:    "started with stream url",
			payload: `{"event":"broadcast:started","data":{"id":"b1","title":"Night Shift","streamUrl":"https://cdn.example.com/b1.m3u8"}}`,
			want:    Event{Name: EventBroadcastStarted, BroadcastID: "b1", Title: "Night Shift", StreamURL: "https://cdn.example.com/b1.m3u8"},
		},
		{
			name:    "started without stream url",
			payload: `{"event":"broadcast:started","data":{"id":"b2","title":"Drive Time"}}`,
			want:    Event{Name: EventBroadcastStarted, BroadcastID: "b2", Title: "Drive Time"},
		},
		{
			name:    "ended",
			payload: `{"event":"broadcast:ended","data":{"id":"b1"}}`,
			want:    Event{Name: EventBroadcastEnded, BroadcastID: "b1"},
		},
		{
			name:    "started missing id",
			payload: `{"event":"broadcast:started","data":{"title":"No Id"}}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "ended missing id",
			payload: `{"event":"broadcast:ended","data":{}}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "missing data",
			payload: `{"event":"broadcast:ended"}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "invalid json",
			payload: `{"event":`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "missing event name",
			payload: `{"data":{"id":"b1"}}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "unknown event",
			payload: `{"event":"chat:message","data":{"id":"b1"}}`,
			wantErr: ErrUnknownEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvent() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestEncodeEvent_ParsesBack(t *testing.T) {
	ev := Event{Name: EventBroadcastStarted, BroadcastID: "b1", Title: "Night Shift"}

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if string(data) != `{"event":"broadcast:started","data":{"id":"b1","title":"Night Shift"}}` {
		t.Errorf("unexpected frame: %s", data)
	}

	if _, err := EncodeEvent(Event{Name: "bogus"}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestEventFromRecord(t *testing.T) {
	tests := []struct {
		status   broadcast.Status
		wantOK   bool
		wantName string
	}{
		{broadcast.StatusLive, true, EventBroadcastStarted},
		{broadcast.StatusEnded, true, EventBroadcastEnded},
		{broadcast.StatusReady, false, ""},
		{broadcast.StatusScheduled, false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			ev, ok := EventFromRecord(&broadcast.Record{ID: "b1", Title: "T", Status: tt.status})
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && ev.Name != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, ev.Name)
			}
			if ok && ev.BroadcastID != "b1" {
				t.Errorf("expected broadcast id b1, got %s", ev.BroadcastID)
			}
		})
	}
}
