package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/collab-playground/internal/protocol"
)

// conn is one participant's WebSocket. The read pump and write pump own the
// socket; closed and dropping belong to the Hub's dispatcher.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closed   bool
	dropping bool
}

// readPump decodes frames and hands them to the hub in order. When the
// socket fails it unregisters the connection.
func (c *conn) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadLimit(h.config.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error",
					slog.String("conn_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		env, err := protocol.Decode(frame)
		select {
		case h.inbound <- inbound{conn: c, env: env, err: err}:
		case <-h.done:
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. The hub closes the queue to close the connection.
func (c *conn) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
