package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onnwee/studiocast/internal/broadcast"
)

// DefaultWriteTimeout bounds each frame written to a subscriber.
const DefaultWriteTimeout = 5 * time.Second

// LiveSource lists broadcasts currently recorded as LIVE.
type LiveSource interface {
	LiveBroadcasts(ctx context.Context) ([]*broadcast.Record, error)
}

// Hub manages feed subscribers and fans out broadcast events to them.
// Writes happen under the hub lock so every subscriber sees the same order.
type Hub struct {
	logger       *slog.Logger
	metrics      *Metrics
	source       LiveSource
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub. source may be nil; when set, new subscribers
// first receive a broadcast:started event for every LIVE broadcast.
func NewHub(source LiveSource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:       logger,
		source:       source,
		writeTimeout: DefaultWriteTimeout,
		conns:        make(map[*websocket.Conn]struct{}),
	}
}

// SetMetrics attaches Prometheus metrics.
func (h *Hub) SetMetrics(m *Metrics) {
	h.metrics = m
}

// Subscribe registers a connection. Current LIVE broadcasts are replayed to
// it before it joins the fan-out. The snapshot is read and replayed with the
// lock held, so an event published after the snapshot is always delivered
// after the replay.
func (h *Hub) Subscribe(ctx context.Context, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var replay []*broadcast.Record
	if h.source != nil {
		sctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		records, err := h.source.LiveBroadcasts(sctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(ctx, "failed to load live broadcasts for replay", "error", err)
		}
		replay = records
	}

	for _, record := range replay {
		ev, ok := EventFromRecord(record)
		if !ok {
			continue
		}
		data, err := EncodeEvent(ev)
		if err != nil {
			continue
		}
		if err := h.write(conn, data); err != nil {
			h.logger.WarnContext(ctx, "failed to replay live broadcast", "error", err, "broadcast_id", record.ID)
			return
		}
	}

	h.conns[conn] = struct{}{}
	h.updateGauge()
}

// Unsubscribe removes a connection.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, conn)
	h.updateGauge()
}

// Publish sends an event to every subscriber. Subscribers whose write fails
// are closed and dropped.
func (h *Hub) Publish(ev Event) {
	data, err := EncodeEvent(ev)
	if err != nil {
		h.logger.Error("failed to encode feed event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := h.write(conn, data); err != nil {
			h.logger.Warn("failed to send feed event to client",
				"error", err,
				"event", ev.Name,
				"broadcast_id", ev.BroadcastID,
			)
			_ = conn.Close()
			delete(h.conns, conn)
		}
	}
	h.updateGauge()

	if h.metrics != nil {
		h.metrics.IncEventsPublished(ev.Name)
	}
}

// Announce publishes the feed event for a durable record. Records with no
// feed event (READY) are skipped.
func (h *Hub) Announce(ctx context.Context, record *broadcast.Record) error {
	ev, ok := EventFromRecord(record)
	if !ok {
		return nil
	}
	h.Publish(ev)
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll sends a going-away close frame to every subscriber and drops them.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		delete(h.conns, conn)
	}
	h.updateGauge()
}

// write must be called with h.mu held.
func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) updateGauge() {
	if h.metrics != nil {
		h.metrics.SetClients(len(h.conns))
	}
}
