package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/onnwee/studiocast/internal/feed"
	"github.com/onnwee/studiocast/internal/middleware"
)

// FeedHandlers serves the push feed of broadcast lifecycle events.
type FeedHandlers struct {
	hub      *feed.Hub
	upgrader websocket.Upgrader
}

// NewFeedHandlers creates a new FeedHandlers instance. checkOrigin may be nil
// to accept any origin.
func NewFeedHandlers(hub *feed.Hub, checkOrigin func(r *http.Request) bool) *FeedHandlers {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &FeedHandlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Subscribe handles GET /feed. The connection receives the currently live
// broadcasts, then every broadcast:started and broadcast:ended event until it
// disconnects.
func (h *FeedHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		methodNotAllowed(w, ctx)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, middleware.UpgradeHeader(ctx))
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.WarnContext(ctx, "failed to upgrade feed connection", "error", err)
		return
	}

	h.hub.Subscribe(ctx, conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "feed client subscribed", "request_id", requestID)

	defer func() {
		h.hub.Unsubscribe(conn)
		_ = conn.Close()
		slog.InfoContext(ctx, "feed client unsubscribed", "request_id", requestID)
	}()

	// Clients never send data frames; reading detects disconnects and
	// processes control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "feed connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}
