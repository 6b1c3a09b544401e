package relay

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/collab-playground/internal/protocol"
	"github.com/sakif/collab-playground/internal/session"
)

var errNotJoined = errors.New("join a session first")

// handleJoin registers the sender, announces it to the whole session
// including itself, then tells the joiner the session's language.
func (h *Hub) handleJoin(c *conn, env protocol.Envelope) error {
	var p protocol.JoinPayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	if p.SessionID == "" {
		return errors.New("sessionId is required")
	}

	snap, left := h.directory.Join(c.id, p.SessionID, p.DisplayName)
	if left != nil {
		h.announceDeparture(left)
	}

	h.broadcast(snap.Members, "", protocol.EventJoined, protocol.JoinedPayload{
		Members:         members(snap.Members),
		DisplayName:     p.DisplayName,
		ConnID:          c.id,
		CurrentLanguage: snap.Language,
	})
	h.send(c, protocol.EventLanguageChange, protocol.LanguageChangePayload{Language: snap.Language})

	h.logger.Info("participant joined",
		slog.String("conn_id", c.id),
		slog.String("session_id", p.SessionID),
		slog.Int("members", len(snap.Members)),
	)
	return nil
}

// handleCodeChange relays the sender's full buffer to everyone else in its
// session.
func (h *Hub) handleCodeChange(c *conn, env protocol.Envelope) error {
	var p protocol.CodeChangePayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	sessionID, err := h.sessionFor(c, p.SessionID)
	if err != nil {
		return err
	}

	h.broadcast(h.directory.Members(sessionID), c.id, protocol.EventCodeChange,
		protocol.CodeChangePayload{Code: p.Code})
	return nil
}

// handleLanguageChange records the new language before telling the other
// members, so a join processed next already sees it.
func (h *Hub) handleLanguageChange(c *conn, env protocol.Envelope) error {
	var p protocol.LanguageChangePayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	sessionID, err := h.sessionFor(c, p.SessionID)
	if err != nil {
		return err
	}
	if !h.languages.Supports(p.Language) {
		return fmt.Errorf("unsupported language %q", p.Language)
	}

	h.directory.SetLanguage(sessionID, p.Language)
	h.broadcast(h.directory.Members(sessionID), c.id, protocol.EventLanguageChange,
		protocol.LanguageChangePayload{Language: p.Language})

	h.logger.Info("session language changed",
		slog.String("session_id", sessionID),
		slog.String("language", p.Language),
	)
	return nil
}

// handleSyncCode forwards the sender's buffer to one newcomer. A target that
// already left, or that sits in another session, gets nothing.
func (h *Hub) handleSyncCode(c *conn, env protocol.Envelope) error {
	var p protocol.SyncCodePayload
	if err := env.Bind(&p); err != nil {
		return err
	}
	sessionID, err := h.sessionFor(c, "")
	if err != nil {
		return err
	}

	target, ok := h.conns[p.TargetConnID]
	if !ok {
		h.logger.Debug("sync target gone", slog.String("target_conn_id", p.TargetConnID))
		return nil
	}
	if targetSession, _ := h.directory.SessionOf(target.id); targetSession != sessionID {
		h.logger.Debug("sync target outside session", slog.String("target_conn_id", p.TargetConnID))
		return nil
	}

	h.send(target, protocol.EventCodeChange, protocol.CodeChangePayload{Code: p.Code})
	return nil
}

// sessionFor returns the session c belongs to. A claimed session id, when
// given, must match it.
func (h *Hub) sessionFor(c *conn, claimed string) (string, error) {
	sessionID, ok := h.directory.SessionOf(c.id)
	if !ok {
		return "", errNotJoined
	}
	if claimed != "" && claimed != sessionID {
		return "", fmt.Errorf("not a member of session %q", claimed)
	}
	return sessionID, nil
}

func members(ps []session.Participant) []protocol.Member {
	out := make([]protocol.Member, len(ps))
	for i, p := range ps {
		out[i] = protocol.Member{ConnID: p.ConnID, DisplayName: p.DisplayName}
	}
	return out
}
