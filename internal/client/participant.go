package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/collab-playground/internal/protocol"
)

// Origin tells a callback whether a change was made here or arrived from a
// peer. Only local changes are ever sent, which is what stops a received
// edit from echoing back around the session.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "remote"
}

const writeWait = 10 * time.Second

// Participant is one member of a session. It holds the only copy of the
// buffer this participant sees; the relay keeps none.
//
// Callbacks run on the goroutine calling Run and must not block for long.
// Set them before calling Run.
type Participant struct {
	OnCodeChange     func(code string, origin Origin)
	OnLanguageChange func(language string, origin Origin)
	OnMembersChange  func(members []protocol.Member)
	OnError          func(message string)

	ws      *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex

	mu          sync.Mutex
	sessionID   string
	displayName string
	connID      string
	code        *string
	language    string
	members     []protocol.Member
}

// NewParticipant wraps an established connection.
func NewParticipant(ws *websocket.Conn, logger *slog.Logger) *Participant {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Participant{ws: ws, logger: logger}
}

// Join asks the relay to add this participant to sessionID.
func (p *Participant) Join(sessionID, displayName string) error {
	p.mu.Lock()
	p.sessionID = sessionID
	p.displayName = displayName
	p.mu.Unlock()

	return p.emit(protocol.EventJoin, protocol.JoinPayload{SessionID: sessionID, DisplayName: displayName})
}

// Edit replaces the local buffer and broadcasts it. An edit that does not
// change the text sends nothing.
func (p *Participant) Edit(code string) error {
	p.mu.Lock()
	if p.code != nil && *p.code == code {
		p.mu.Unlock()
		return nil
	}
	p.code = protocol.Text(code)
	sessionID := p.sessionID
	p.mu.Unlock()

	if p.OnCodeChange != nil {
		p.OnCodeChange(code, OriginLocal)
	}
	return p.emit(protocol.EventCodeChange, protocol.CodeChangePayload{SessionID: sessionID, Code: protocol.Text(code)})
}

// SetLanguage selects the session's language for everyone.
func (p *Participant) SetLanguage(language string) error {
	p.mu.Lock()
	p.language = language
	sessionID := p.sessionID
	p.mu.Unlock()

	if p.OnLanguageChange != nil {
		p.OnLanguageChange(language, OriginLocal)
	}
	return p.emit(protocol.EventLanguageChange, protocol.LanguageChangePayload{SessionID: sessionID, Language: language})
}

// Code returns the buffer. ok is false until the buffer was first set.
func (p *Participant) Code() (code string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.code == nil {
		return "", false
	}
	return *p.code, true
}

func (p *Participant) Language() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.language
}

func (p *Participant) Members() []protocol.Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.members)
}

// ConnID is the identity the relay assigned, empty until the first joined.
func (p *Participant) ConnID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connID
}

// Run reads events until the connection fails or ctx is done. Cancelling
// ctx closes the connection and returns nil.
func (p *Participant) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.writeMu.Lock()
		_ = p.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		p.writeMu.Unlock()
		p.ws.Close()
	})
	defer stop()

	for {
		_, frame, err := p.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: reading: %w", err)
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			p.logger.Warn("ignoring malformed frame", slog.String("error", err.Error()))
			continue
		}
		if err := p.handle(env); err != nil {
			p.logger.Warn("event handling failed",
				slog.String("event", env.Event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close closes the connection without waiting for Run.
func (p *Participant) Close() error {
	return p.ws.Close()
}

func (p *Participant) handle(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventJoined:
		var j protocol.JoinedPayload
		if err := env.Bind(&j); err != nil {
			return err
		}
		return p.onJoined(j)

	case protocol.EventCodeChange:
		var c protocol.CodeChangePayload
		if err := env.Bind(&c); err != nil {
			return err
		}
		p.applyRemoteCode(c.Code)

	case protocol.EventLanguageChange:
		var l protocol.LanguageChangePayload
		if err := env.Bind(&l); err != nil {
			return err
		}
		p.mu.Lock()
		changed := p.language != l.Language
		p.language = l.Language
		p.mu.Unlock()
		if changed && p.OnLanguageChange != nil {
			p.OnLanguageChange(l.Language, OriginRemote)
		}

	case protocol.EventDisconnected:
		var d protocol.DisconnectedPayload
		if err := env.Bind(&d); err != nil {
			return err
		}
		p.mu.Lock()
		p.members = slices.DeleteFunc(p.members, func(m protocol.Member) bool { return m.ConnID == d.ConnID })
		members := slices.Clone(p.members)
		p.mu.Unlock()
		if p.OnMembersChange != nil {
			p.OnMembersChange(members)
		}

	case protocol.EventError:
		var e protocol.ErrorPayload
		if err := env.Bind(&e); err != nil {
			return err
		}
		p.logger.Warn("relay rejected an event", slog.String("message", e.Message))
		if p.OnError != nil {
			p.OnError(e.Message)
		}

	default:
		p.logger.Debug("ignoring unknown event", slog.String("event", env.Event))
	}
	return nil
}

// onJoined records the roster and pushes this participant's buffer to the
// newcomer. The joiner gets the same joined event, so it too answers, with
// its own buffer; a participant that never had one sends null.
func (p *Participant) onJoined(j protocol.JoinedPayload) error {
	p.mu.Lock()
	// Before we are in a session, the only joined we can receive is our own.
	if p.connID == "" {
		p.connID = j.ConnID
	}
	p.members = slices.Clone(j.Members)
	members := slices.Clone(p.members)
	languageChanged := p.language != j.CurrentLanguage
	p.language = j.CurrentLanguage
	var code *string
	if p.code != nil {
		code = protocol.Text(*p.code)
	}
	p.mu.Unlock()

	if p.OnMembersChange != nil {
		p.OnMembersChange(members)
	}
	if languageChanged && p.OnLanguageChange != nil {
		p.OnLanguageChange(j.CurrentLanguage, OriginRemote)
	}

	return p.emit(protocol.EventSyncCode, protocol.SyncCodePayload{TargetConnID: j.ConnID, Code: code})
}

// applyRemoteCode replaces the buffer with a peer's text. It never sends.
func (p *Participant) applyRemoteCode(code *string) {
	if code == nil {
		return
	}
	p.mu.Lock()
	if p.code != nil && *p.code == *code {
		p.mu.Unlock()
		return
	}
	p.code = protocol.Text(*code)
	p.mu.Unlock()

	if p.OnCodeChange != nil {
		p.OnCodeChange(*code, OriginRemote)
	}
}

func (p *Participant) emit(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return fmt.Errorf("client: connection closed: %w", err)
		}
		return fmt.Errorf("client: sending %s: %w", event, err)
	}
	return nil
}
