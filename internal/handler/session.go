package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/protocol"
	"github.com/sakif/collab-playground/internal/relay"
	"github.com/sakif/collab-playground/internal/session"
)

// SessionSource answers questions about live sessions. *relay.Hub
// implements it.
type SessionSource interface {
	Snapshot(ctx context.Context, sessionID string) (session.Snapshot, bool, error)
}

// SessionHandler exposes the relay's sessions over plain HTTP.
//
// Sessions are not stored anywhere: one exists while somebody is connected
// to it. Creating a session only hands out a fresh identifier that clients
// then join over the WebSocket.
type SessionHandler struct {
	sessions SessionSource
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionSource, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

type sessionResponse struct {
	SessionID       string            `json:"sessionId"`
	Members         []protocol.Member `json:"members,omitempty"`
	CurrentLanguage string            `json:"currentLanguage,omitempty"`
}

// HandleCreate issues a new session id.
//
// HTTP: POST /api/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id := xid.New().String()
	h.logger.Info("session id issued", slog.String("session_id", id))
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id})
}

// HandleGet returns who is in a session and which language it uses.
//
// HTTP: GET /api/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, relay.ErrClosed) {
			writeError(w, apperror.Unavailable("the relay is shutting down"))
			return
		}
		h.logger.Error("session snapshot failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperror.NotFound("session", id))
		return
	}

	members := make([]protocol.Member, 0, len(snap.Members))
	for _, p := range snap.Members {
		members = append(members, protocol.Member{ConnID: p.ConnID, DisplayName: p.DisplayName})
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:       snap.SessionID,
		Members:         members,
		CurrentLanguage: snap.Language,
	})
}
