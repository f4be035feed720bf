package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/onnwee/studiocast/internal/middleware"
	"github.com/onnwee/studiocast/internal/studio"
)

const sessionsPath = "/studio/sessions"

// Broadcast and participant ids: alphanumeric, hyphens, underscores, colons (max 128 chars).
// They become media room names and token identities.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_:-]{1,128}$`)

// BroadcastRegistrar records a broadcast's title and stream URL before its
// first status write.
type BroadcastRegistrar interface {
	Register(ctx context.Context, id, title, streamURL string) (*broadcast.Record, error)
}

// SessionDefaults fill in session settings a request leaves out.
type SessionDefaults struct {
	MaxHosts         int
	MaxGuests        int
	TransportTimeout time.Duration
}

// StudioHandlersConfig configures the studio session handlers.
type StudioHandlersConfig struct {
	Manager   *studio.Manager
	Registrar BroadcastRegistrar // optional
	Defaults  SessionDefaults

	// TokenLimiter wraps the join token route (optional).
	TokenLimiter func(http.Handler) http.Handler
}

// StudioHandlers holds dependencies for the studio session HTTP handlers.
type StudioHandlers struct {
	manager   *studio.Manager
	registrar BroadcastRegistrar
	defaults  SessionDefaults
	token     http.Handler
}

// NewStudioHandlers creates a new StudioHandlers instance.
func NewStudioHandlers(config StudioHandlersConfig) *StudioHandlers {
	h := &StudioHandlers{
		manager:   config.Manager,
		registrar: config.Registrar,
		defaults:  config.Defaults,
	}
	h.token = http.HandlerFunc(h.requestToken)
	if config.TokenLimiter != nil {
		h.token = config.TokenLimiter(h.token)
	}
	return h
}

// OpenSessionRequest represents the request body for opening a studio session.
type OpenSessionRequest struct {
	BroadcastID string `json:"broadcast_id"`
	Title       string `json:"title"`
	StreamURL   string `json:"stream_url,omitempty"`
	MaxHosts    *int   `json:"max_hosts,omitempty"`
	MaxGuests   *int   `json:"max_guests,omitempty"`
}

// AddParticipantRequest represents the request body for admitting a participant.
type AddParticipantRequest struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	Role            string `json:"role"`
	ConnectionState string `json:"connection_state,omitempty"`
}

// ConnectionStateRequest represents the request body for a connectivity change.
type ConnectionStateRequest struct {
	State string `json:"state"`
}

// VolumeRequest represents the request body for channel and master volume.
type VolumeRequest struct {
	Volume *int `json:"volume"`
}

// MuteRequest represents the request body for muting a channel.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

// GestureRequest reports the outcome of the operator's audio input prompt.
type GestureRequest struct {
	AudioInput string `json:"audio_input"` // granted, denied, or missing
}

// TokenRequest represents the request body for a join token.
type TokenRequest struct {
	ParticipantID string `json:"participant_id"`
}

// TokenResponse carries a media room join token.
type TokenResponse struct {
	Token    string      `json:"token"`
	RoomName string      `json:"room_name"`
	Role     studio.Role `json:"role"`
}

// MembersResponse lists the identities the media relay reports in the room.
type MembersResponse struct {
	RoomName   string   `json:"room_name"`
	Identities []string `json:"identities"`
}

// SessionListResponse lists open studio sessions.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
}

// ServeHTTP routes /studio/sessions and everything below it.
func (h *StudioHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Path == sessionsPath {
		switch r.Method {
		case http.MethodPost:
			h.OpenSession(w, r)
		case http.MethodGet:
			h.ListSessions(w, r)
		default:
			methodNotAllowed(w, ctx)
		}
		return
	}

	// parts: {id}, {id}/{action}, {id}/participants/{pid}, ...
	rest := strings.TrimPrefix(r.URL.Path, sessionsPath+"/")
	if rest == r.URL.Path || rest == "" {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if p == "" {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
			return
		}
	}

	broadcastID := parts[0]
	ctx = middleware.SetBroadcastID(ctx, broadcastID)
	r = r.WithContext(ctx)

	sess, err := h.manager.Get(broadcastID)
	if err != nil {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeSessionNotFound, "Studio session not found")
		return
	}

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, ctx, http.StatusOK, sess.Snapshot())
		case http.MethodDelete:
			h.CloseSession(w, r, broadcastID)
		default:
			methodNotAllowed(w, ctx)
		}
		return
	case 2:
		h.serveAction(w, r, sess, parts[1])
		return
	case 3:
		if parts[1] == "participants" {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, ctx)
				return
			}
			h.RemoveParticipant(w, r, sess, parts[2])
			return
		}
	case 4:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, ctx)
			return
		}
		switch {
		case parts[1] == "participants" && parts[3] == "connection":
			h.SetConnectionState(w, r, sess, parts[2])
			return
		case parts[1] == "channels" && parts[3] == "volume":
			h.SetVolume(w, r, sess, parts[2])
			return
		case parts[1] == "channels" && parts[3] == "mute":
			h.SetMute(w, r, sess, parts[2])
			return
		}
	}

	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
}

func (h *StudioHandlers) serveAction(w http.ResponseWriter, r *http.Request, sess *studio.Session, action string) {
	ctx := r.Context()

	if action == "members" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, ctx)
			return
		}
		h.RoomMembers(w, r, sess)
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w, ctx)
		return
	}

	switch action {
	case "participants":
		h.AddParticipant(w, r, sess)
	case "master":
		h.SetMasterVolume(w, r, sess)
	case "gesture":
		h.ConfirmGesture(w, r, sess)
	case "live":
		h.GoLive(w, r, sess)
	case "end":
		h.EndBroadcast(w, r, sess)
	case "token":
		h.token.ServeHTTP(w, r.WithContext(withSession(ctx, sess)))
	default:
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

// OpenSession handles POST /studio/sessions - opens (or returns) the session
// for a broadcast.
func (h *StudioHandlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OpenSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.BroadcastID = strings.TrimSpace(req.BroadcastID)
	if req.BroadcastID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "broadcast_id is required")
		return
	}
	if !idPattern.MatchString(req.BroadcastID) {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "broadcast_id must be 1-128 characters of letters, digits, '-', '_' or ':'")
		return
	}
	ctx = middleware.SetBroadcastID(ctx, req.BroadcastID)

	cfg := studio.SessionConfig{
		BroadcastID:      req.BroadcastID,
		Title:            req.Title,
		StreamURL:        req.StreamURL,
		MaxHosts:         h.defaults.MaxHosts,
		MaxGuests:        h.defaults.MaxGuests,
		TransportTimeout: h.defaults.TransportTimeout,
	}
	if req.MaxHosts != nil {
		cfg.MaxHosts = *req.MaxHosts
	}
	if req.MaxGuests != nil {
		cfg.MaxGuests = *req.MaxGuests
	}
	if err := cfg.Validate(); err != nil {
		writeDomainError(w, ctx, err)
		return
	}

	sess, created, err := h.manager.Open(ctx, cfg)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}

	status := http.StatusOK
	if created {
		// Sessions emit nothing before go-live, so registering after Open
		// still precedes the first status write.
		if h.registrar != nil {
			if _, err := h.registrar.Register(ctx, cfg.BroadcastID, cfg.Title, cfg.StreamURL); err != nil {
				slog.ErrorContext(ctx, "failed to register broadcast", "error", err, "broadcast_id", cfg.BroadcastID)
				_ = h.manager.Close(ctx, cfg.BroadcastID)
				writeDomainError(w, ctx, err)
				return
			}
		}
		status = http.StatusCreated
		slog.InfoContext(ctx, "studio session opened", "broadcast_id", cfg.BroadcastID, "state", string(sess.State()))
	}
	writeJSON(w, ctx, status, sess.Snapshot())
}

// ListSessions handles GET /studio/sessions.
func (h *StudioHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.manager.IDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, r.Context(), http.StatusOK, SessionListResponse{Sessions: ids})
}

// CloseSession handles DELETE /studio/sessions/{id} - ends the broadcast if
// live and releases the session.
func (h *StudioHandlers) CloseSession(w http.ResponseWriter, r *http.Request, broadcastID string) {
	ctx := r.Context()
	if err := h.manager.Close(ctx, broadcastID); err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddParticipant handles POST /studio/sessions/{id}/participants.
func (h *StudioHandlers) AddParticipant(w http.ResponseWriter, r *http.Request, sess *studio.Session) {
	ctx := r.Context()

	var req AddParticipantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	// A participant without an id gets a generated one.
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		req.ID = "participant-" + uuid.NewString()
	}
	if !idPattern.MatchString(req.ID) {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "id must be 1-128 characters of letters, digits, '-', '_' or ':'")
		return
	}

	role, err := studio.ParseRole(req.Role)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	info := studio.ParticipantInfo{ID: req.ID, DisplayName: req.DisplayName}
	if req.ConnectionState != "" {
		if info.ConnectionState, err = studio.ParseConnectionState(req.ConnectionState); err != nil {
			writeDomainError(w, ctx, err)
			return
		}
	}

	p, err := sess.AddParticipant(ctx, role, info)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusCreated, p)
}

// RemoveParticipant handles DELETE /studio/sessions/{id}/participants/{pid}.
func (h *StudioHandlers) RemoveParticipant(w http.ResponseWriter, r *http.Request, sess *studio.Session, participantID string) {
	ctx := r.Context()
	if err := sess.RemoveParticipant(ctx, participantID); err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetConnectionState handles POST /studio/sessions/{id}/participants/{pid}/connection.
func (h *StudioHandlers) SetConnectionState(w http.ResponseWriter, r *http.Request, sess *studio.Session, participantID string) {
	ctx := r.Context()

	var req ConnectionStateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state, err := studio.ParseConnectionState(req.State)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}

	p, err := sess.SetConnectionState(ctx, participantID, state)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, p)
}

// SetVolume handles POST /studio/sessions/{id}/channels/{pid}/volume.
func (h *StudioHandlers) SetVolume(w http.ResponseWriter, r *http.Request, sess *studio.Session, participantID string) {
	ctx := r.Context()

	var req VolumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Volume == nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "volume is required")
		return
	}
	if _, ok := sess.Channel(participantID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeParticipantNotFound, "Channel not found")
		return
	}

	sess.SetVolume(participantID, *req.Volume)
	writeChannel(w, ctx, sess, participantID)
}

// SetMute handles POST /studio/sessions/{id}/channels/{pid}/mute.
func (h *StudioHandlers) SetMute(w http.ResponseWriter, r *http.Request, sess *studio.Session, participantID string) {
	ctx := r.Context()

	var req MuteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Muted == nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "muted is required")
		return
	}
	if _, ok := sess.Channel(participantID); !ok {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeParticipantNotFound, "Channel not found")
		return
	}

	sess.SetMute(r.Context(), participantID, *req.Muted)
	writeChannel(w, ctx, sess, participantID)
}

// SetMasterVolume handles POST /studio/sessions/{id}/master.
func (h *StudioHandlers) SetMasterVolume(w http.ResponseWriter, r *http.Request, sess *studio.Session) {
	ctx := r.Context()

	var req VolumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Volume == nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "volume is required")
		return
	}

	sess.SetMasterVolume(*req.Volume)
	writeJSON(w, ctx, http.StatusOK, sess.Snapshot())
}

// ConfirmGesture handles POST /studio/sessions/{id}/gesture. The operator's
// client reports how the audio input prompt resolved; the session's device
// gate decides whether that releases it to Ready.
func (h *StudioHandlers) ConfirmGesture(w http.ResponseWriter, r *http.Request, sess *studio.Session) {
	ctx := r.Context()

	var req GestureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	checker, ok := reportedChecker(req.AudioInput)
	if !ok {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "audio_input must be one of granted, denied, missing")
		return
	}

	if err := sess.ConfirmUserGesture(ctx, checker); err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, sess.Snapshot())
}

// GoLive handles POST /studio/sessions/{id}/live.
func (h *StudioHandlers) GoLive(w http.ResponseWriter, r *http.Request, sess *studio.Session) {
	ctx := r.Context()
	if err := sess.GoLive(ctx); err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, sess.Snapshot())
}

// EndBroadcast handles POST /studio/sessions/{id}/end.
func (h *StudioHandlers) EndBroadcast(w http.ResponseWriter, r *http.Request, sess *studio.Session) {
	ctx := r.Context()
	if err := sess.EndBroadcast(ctx); err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, sess.Snapshot())
}

// RoomMembers handles GET /studio/sessions/{id}/members.
func (h *StudioHandlers) RoomMembers(w http.ResponseWriter, r *http.Request, sess *studio.Session) {
	ctx := r.Context()
	identities, err := sess.RoomMembership(ctx)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	if identities == nil {
		identities = []string{}
	}
	writeJSON(w, ctx, http.StatusOK, MembersResponse{
		RoomName:   sess.Snapshot().RoomName,
		Identities: identities,
	})
}

// requestToken handles POST /studio/sessions/{id}/token. Registered
// participants get a token for their role; anyone else joins as a listener.
func (h *StudioHandlers) requestToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	if sess == nil {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeSessionNotFound, "Studio session not found")
		return
	}

	var req TokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	if req.ParticipantID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "participant_id is required")
		return
	}

	role := studio.RoleListener
	for _, p := range sess.Participants() {
		if p.ID == req.ParticipantID {
			role = p.Role
			break
		}
	}

	token, err := sess.JoinToken(ctx, req.ParticipantID, role)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, TokenResponse{
		Token:    token,
		RoomName: sess.Snapshot().RoomName,
		Role:     role,
	})
}

// reportedChecker turns the client's audio input report into a checker.
func reportedChecker(report string) (studio.DeviceChecker, bool) {
	var result error
	switch strings.ToLower(strings.TrimSpace(report)) {
	case "granted":
	case "denied":
		result = studio.ErrPermissionDenied
	case "missing":
		result = studio.ErrDeviceNotFound
	default:
		return nil, false
	}
	return studio.DeviceCheckFunc(func(ctx context.Context) error {
		return result
	}), true
}

type sessionKey struct{}

func withSession(ctx context.Context, sess *studio.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFrom(ctx context.Context) *studio.Session {
	sess, _ := ctx.Value(sessionKey{}).(*studio.Session)
	return sess
}

func writeChannel(w http.ResponseWriter, ctx context.Context, sess *studio.Session, participantID string) {
	ch, _ := sess.Channel(participantID)
	level, _ := sess.EffectiveLevel(participantID)
	writeJSON(w, ctx, http.StatusOK, studio.ChannelView{
		ParticipantID:  ch.ParticipantID,
		Volume:         ch.Volume,
		Muted:          ch.Muted,
		Active:         ch.Active(),
		EffectiveLevel: level,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, ctx context.Context) {
	WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
}
