package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/onnwee/studiocast/internal/statesync"
)

// ListingSource lists live broadcasts from the discovery cache.
type ListingSource interface {
	List(ctx context.Context) ([]statesync.Listing, error)
}

// LiveRecordSource lists broadcasts durably recorded as LIVE.
type LiveRecordSource interface {
	LiveBroadcasts(ctx context.Context) ([]*broadcast.Record, error)
}

// DiscoveryHandlers serves the live broadcast directory.
type DiscoveryHandlers struct {
	cache   ListingSource
	records LiveRecordSource
}

// NewDiscoveryHandlers creates a new DiscoveryHandlers instance. cache may be
// nil when Redis is not configured; records is then the only source.
func NewDiscoveryHandlers(cache ListingSource, records LiveRecordSource) *DiscoveryHandlers {
	return &DiscoveryHandlers{cache: cache, records: records}
}

// LiveResponse lists live broadcasts.
type LiveResponse struct {
	Broadcasts []statesync.Listing `json:"broadcasts"`
	Source     string              `json:"source"` // "cache" or "database"
}

// ListLive handles GET /broadcasts/live. The Redis cache answers when it is
// reachable; otherwise the durable records do.
func (h *DiscoveryHandlers) ListLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		methodNotAllowed(w, ctx)
		return
	}

	if h.cache != nil {
		listings, err := h.cache.List(ctx)
		if err == nil {
			writeJSON(w, ctx, http.StatusOK, LiveResponse{Broadcasts: listings, Source: "cache"})
			return
		}
		slog.WarnContext(ctx, "discovery cache unavailable, falling back to database", "error", err)
	}

	if h.records == nil {
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeInternal, "Live broadcast directory unavailable")
		return
	}

	records, err := h.records.LiveBroadcasts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list live broadcasts", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	listings := make([]statesync.Listing, 0, len(records))
	for _, rec := range records {
		l := statesync.Listing{
			BroadcastID: rec.ID,
			Title:       rec.Title,
			StreamURL:   rec.StreamURL,
		}
		if rec.StartedAt != nil {
			l.StartedAt = *rec.StartedAt
		}
		listings = append(listings, l)
	}
	writeJSON(w, ctx, http.StatusOK, LiveResponse{Broadcasts: listings, Source: "database"})
}
