// Package relay implements the WebSocket event relay for collaboration
// sessions.
//
// A Hub owns every piece of session state. Its Run loop is the only
// goroutine that reads or writes the session directory, so events are
// applied one at a time in the order they arrive and nothing needs a lock.
// Each connection has a read pump feeding the Hub and a write pump draining
// a bounded queue the Hub fills.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sakif/collab-playground/internal/metrics"
	"github.com/sakif/collab-playground/internal/protocol"
	"github.com/sakif/collab-playground/internal/session"
)

// ErrClosed is returned by queries made after the Hub stopped.
var ErrClosed = errors.New("relay: hub stopped")

// Config holds the relay's tuning knobs.
type Config struct {
	// DefaultLanguage is selected for every newly created session.
	DefaultLanguage string
	// SendBuffer is the per-connection outgoing queue length. A connection
	// whose queue is full is dropped.
	SendBuffer int
	// WriteWait bounds a single frame write.
	WriteWait time.Duration
	// PongWait is how long a connection may stay silent before it is
	// considered dead. PingPeriod must be shorter.
	PongWait   time.Duration
	PingPeriod time.Duration
	// MaxMessageBytes limits inbound frames.
	MaxMessageBytes int64
	// AllowedOrigins restricts browser origins. Empty allows any origin.
	AllowedOrigins []string
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLanguage: "java",
		SendBuffer:      64,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		MaxMessageBytes: 1 << 20,
	}
}

// LanguageSet reports which execution languages a session may select.
type LanguageSet interface {
	Supports(name string) bool
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

type inbound struct {
	conn *conn
	env  protocol.Envelope
	err  error
}

// Hub is the single dispatcher for all sessions.
type Hub struct {
	config    Config
	languages LanguageSet
	logger    *slog.Logger
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader

	register   chan *conn
	unregister chan *conn
	inbound    chan inbound
	queries    chan func()
	done       chan struct{}

	// Owned by Run.
	conns     map[string]*conn
	directory *session.Directory
	dropped   []*conn
}

// NewHub creates a Hub. Call Run to start dispatching.
func NewHub(cfg Config, languages LanguageSet, logger *slog.Logger, m *metrics.Metrics) *Hub {
	def := DefaultConfig()
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = def.DefaultLanguage
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}

	h := &Hub{
		config:     cfg,
		languages:  languages,
		logger:     logger,
		metrics:    m,
		register:   make(chan *conn),
		unregister: make(chan *conn),
		inbound:    make(chan inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		conns:      make(map[string]*conn),
		directory:  session.NewDirectory(cfg.DefaultLanguage),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non-browser clients send no Origin.
	return origin == "" || slices.Contains(h.config.AllowedOrigins, origin)
}

// Run dispatches events until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	h.logger.Info("relay started", slog.String("default_language", h.config.DefaultLanguage))

	for {
		select {
		case c := <-h.register:
			h.conns[c.id] = c
			h.logger.Debug("connection registered", slog.String("conn_id", c.id))
		case c := <-h.unregister:
			h.disconnect(c)
		case in := <-h.inbound:
			if !in.conn.closed {
				h.dispatch(in)
			}
		case q := <-h.queries:
			q()
		case <-ctx.Done():
			for _, c := range h.conns {
				c.closed = true
				close(c.send)
			}
			clear(h.conns)
			h.metrics.SetRelayState(0, 0)
			h.logger.Info("relay stopped")
			return nil
		}
		h.reapDropped()
		h.metrics.SetRelayState(len(h.conns), h.directory.Len())
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
// The connection gets a fresh id; reconnecting never resumes an old one.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &conn{
		id:   xid.New().String(),
		ws:   ws,
		send: make(chan []byte, h.config.SendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		ws.Close()
		return
	}

	h.logger.Info("client connected", slog.String("conn_id", c.id), slog.String("remote_addr", r.RemoteAddr))

	go c.writePump(h.config)
	c.readPump(h)
}

// Snapshot returns the live state of a session.
func (h *Hub) Snapshot(ctx context.Context, sessionID string) (session.Snapshot, bool, error) {
	var (
		snap session.Snapshot
		ok   bool
	)
	err := h.query(ctx, func() {
		snap, ok = h.directory.Snapshot(sessionID)
	})
	return snap, ok, err
}

// Stats returns the number of connections and live sessions.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.query(ctx, func() {
		s = Stats{Connections: len(h.conns), Sessions: h.directory.Len()}
	})
	return s, err
}

// query runs fn on the dispatcher and waits for it.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) dispatch(in inbound) {
	c := in.conn
	if in.err != nil {
		h.sendError(c, in.err.Error())
		return
	}

	logger := h.logger.With(slog.String("conn_id", c.id), slog.String("event", in.env.Event))
	logger.Debug("event received")

	var err error
	switch in.env.Event {
	case protocol.EventJoin:
		err = h.handleJoin(c, in.env)
	case protocol.EventCodeChange:
		err = h.handleCodeChange(c, in.env)
	case protocol.EventLanguageChange:
		err = h.handleLanguageChange(c, in.env)
	case protocol.EventSyncCode:
		err = h.handleSyncCode(c, in.env)
	default:
		err = fmt.Errorf("unknown event %q", in.env.Event)
	}
	if err != nil {
		logger.Debug("event rejected", slog.String("error", err.Error()))
		h.sendError(c, err.Error())
	}
}

// disconnect removes c from the hub and tells its session. It is a no-op
// for a connection that is already gone, so each departure is announced
// exactly once.
func (h *Hub) disconnect(c *conn) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.conns, c.id)
	close(c.send)

	dep := h.directory.Leave(c.id)
	if dep != nil {
		h.announceDeparture(dep)
	}
	h.logger.Info("client disconnected", slog.String("conn_id", c.id))
}

func (h *Hub) announceDeparture(dep *session.Departure) {
	h.broadcast(dep.Remaining, "", protocol.EventDisconnected, protocol.DisconnectedPayload{
		ConnID:      dep.Participant.ConnID,
		DisplayName: dep.Participant.DisplayName,
	})
}

// reapDropped disconnects connections whose queue overflowed during the
// last dispatch. Announcing those departures may overflow more queues.
func (h *Hub) reapDropped() {
	for len(h.dropped) > 0 {
		c := h.dropped[0]
		h.dropped = h.dropped[1:]
		if c.closed {
			continue
		}
		h.logger.Warn("dropping slow connection", slog.String("conn_id", c.id))
		h.metrics.SlowConsumerDropped()
		h.disconnect(c)
	}
	h.dropped = nil
}

// broadcast queues one event to every member except the one with excludeID.
func (h *Hub) broadcast(members []session.Participant, excludeID, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	n := 0
	for _, m := range members {
		if m.ConnID == excludeID {
			continue
		}
		if c, ok := h.conns[m.ConnID]; ok && h.enqueue(c, frame) {
			n++
		}
	}
	h.metrics.EventDelivered(event, n)
}

// send queues one event to a single connection.
func (h *Hub) send(c *conn, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	if h.enqueue(c, frame) {
		h.metrics.EventDelivered(event, 1)
	}
}

func (h *Hub) sendError(c *conn, message string) {
	h.send(c, protocol.EventError, protocol.ErrorPayload{Message: message})
}

func (h *Hub) enqueue(c *conn, frame []byte) bool {
	if c.closed || c.dropping {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropping = true
		h.dropped = append(h.dropped, c)
		return false
	}
}
