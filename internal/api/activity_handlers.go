package api

import (
	"net/http"
	"strings"

	"github.com/onnwee/studiocast/internal/middleware"
	"github.com/onnwee/studiocast/internal/statesync"
)

// ChatSource reports which broadcast chats accept messages.
type ChatSource interface {
	IsActive(broadcastID string) bool
}

// PlayerSource reports what the global player is tuned to.
type PlayerSource interface {
	Current() (statesync.NowPlaying, bool)
}

// ActivityHandlers serves the local view of liveness: chat activation per
// broadcast and the global player.
type ActivityHandlers struct {
	chat   ChatSource
	player PlayerSource
}

// NewActivityHandlers creates a new ActivityHandlers instance.
func NewActivityHandlers(chat ChatSource, player PlayerSource) *ActivityHandlers {
	return &ActivityHandlers{chat: chat, player: player}
}

// ChatStatusResponse reports whether a broadcast's chat is open.
type ChatStatusResponse struct {
	BroadcastID string `json:"broadcast_id"`
	Active      bool   `json:"active"`
}

// PlayerResponse reports the global player. NowPlaying is omitted when idle.
type PlayerResponse struct {
	Playing    bool                  `json:"playing"`
	NowPlaying *statesync.NowPlaying `json:"now_playing,omitempty"`
}

// ChatStatus handles GET /broadcasts/{id}/chat.
func (h *ActivityHandlers) ChatStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/broadcasts/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "chat" {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, ctx)
		return
	}

	id := parts[0]
	ctx = middleware.SetBroadcastID(ctx, id)
	writeJSON(w, ctx, http.StatusOK, ChatStatusResponse{BroadcastID: id, Active: h.chat.IsActive(id)})
}

// Player handles GET /player.
func (h *ActivityHandlers) Player(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		methodNotAllowed(w, ctx)
		return
	}

	np, ok := h.player.Current()
	if !ok {
		writeJSON(w, ctx, http.StatusOK, PlayerResponse{})
		return
	}
	ctx = middleware.SetBroadcastID(ctx, np.BroadcastID)
	writeJSON(w, ctx, http.StatusOK, PlayerResponse{Playing: true, NowPlaying: &np})
}
