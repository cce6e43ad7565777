package hub

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4096
)

// inboundFrame is what a subscriber may send upstream. Only typing updates
// are accepted; everything else on the socket is ignored.
type inboundFrame struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

// Client pumps hub events onto a websocket connection and feeds typing
// updates from the connection back into the hub.
type Client struct {
	hub     *Hub
	session *Session
	conn    *websocket.Conn
	logger  *slog.Logger
}

// NewClient wraps an upgraded connection around a joined session.
func NewClient(h *Hub, session *Session, conn *websocket.Conn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		hub:     h,
		session: session,
		conn:    conn,
		logger: log.With(
			slog.String("service", "hub"),
			slog.String("area_id", session.AreaID),
			slog.String("session_id", session.ID),
		),
	}
}

// Run services the connection until either side closes it. It blocks, so
// handlers should call it as the tail of the request.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump consumes inbound frames. It owns the read side: pong handling
// extends the read deadline, and returning tears the session down.
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c.session.AreaID, c.session.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", "error", err)
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		if frame.Type == "typing" {
			c.hub.NotifyTyping(c.session.AreaID, c.session.UserID, frame.Active)
		}
	}
}

// writePump drains the session's events onto the socket and keeps the
// connection alive with pings. A closed events channel means the session
// left or was evicted.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.session.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write error", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
