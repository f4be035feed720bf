package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/studiocast/internal/statesync"
)

// newActivityFixture wires real subscribers to a bus with no durable writer.
func newActivityFixture() (*statesync.Bus, *ActivityHandlers) {
	bus := statesync.NewBus(nil, nil)
	chat := statesync.NewChatActivation()
	player := statesync.NewPlayerState()
	bus.Subscribe(chat)
	bus.Subscribe(player)
	return bus, NewActivityHandlers(chat, player)
}

func TestActivityHandlers_ChatStatus(t *testing.T) {
	bus, h := newActivityFixture()
	bus.Publish(context.Background(), statesync.NewFact("b1", true, "Night Shift", ""))
	bus.Publish(context.Background(), statesync.NewFact("b2", true, "Day Shift", ""))
	bus.Publish(context.Background(), statesync.NewFact("b2", false, "", ""))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantActive bool
	}{
		{"live broadcast", http.MethodGet, "/broadcasts/b1/chat", http.StatusOK, true},
		{"ended broadcast", http.MethodGet, "/broadcasts/b2/chat", http.StatusOK, false},
		{"unknown broadcast", http.MethodGet, "/broadcasts/b9/chat", http.StatusOK, false},
		{"wrong method", http.MethodPost, "/broadcasts/b1/chat", http.StatusMethodNotAllowed, false},
		{"missing id", http.MethodGet, "/broadcasts//chat", http.StatusNotFound, false},
		{"unknown action", http.MethodGet, "/broadcasts/b1/viewers", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ChatStatus(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp ChatStatusResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Active != tt.wantActive {
				t.Errorf("expected active=%v, got %v", tt.wantActive, resp.Active)
			}
		})
	}
}

func TestActivityHandlers_Player(t *testing.T) {
	bus, h := newActivityFixture()

	get := func() PlayerResponse {
		t.Helper()
		w := httptest.NewRecorder()
		h.Player(w, httptest.NewRequest(http.MethodGet, "/player", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp PlayerResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return resp
	}

	if resp := get(); resp.Playing || resp.NowPlaying != nil {
		t.Errorf("expected idle player, got %+v", resp)
	}

	fact := statesync.NewFact("b1", true, "Night Shift", "https://cdn.example/b1.m3u8")
	fact.At = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	bus.Publish(context.Background(), fact)

	resp := get()
	if !resp.Playing || resp.NowPlaying == nil {
		t.Fatalf("expected player tuned to b1, got %+v", resp)
	}
	if resp.NowPlaying.BroadcastID != "b1" || resp.NowPlaying.StreamURL != "https://cdn.example/b1.m3u8" {
		t.Errorf("unexpected now playing: %+v", resp.NowPlaying)
	}

	bus.Publish(context.Background(), statesync.NewFact("b1", false, "", ""))
	if resp := get(); resp.Playing {
		t.Errorf("expected idle player after end, got %+v", resp)
	}
}

func TestActivityHandlers_PlayerMethodNotAllowed(t *testing.T) {
	_, h := newActivityFixture()
	w := httptest.NewRecorder()
	h.Player(w, httptest.NewRequest(http.MethodDelete, "/player", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}
