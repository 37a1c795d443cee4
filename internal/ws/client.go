package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tutorhub/internal/config"
	"tutorhub/internal/events"
	pkglog "tutorhub/internal/log"
)

// Client is one websocket connection registered with the hub.
type Client struct {
	ID   string
	Info ConnInfo

	hub  *Hub
	conn *websocket.Conn
	cfg  config.WebSocketConfig

	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig, info ConnInfo) *Client {
	cfg = withDefaults(cfg)
	return &Client{
		ID:   info.ConnID,
		Info: info,
		hub:  hub,
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
	}
}

func withDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return cfg
}

// ReadPump handles inbound frames one at a time until the connection fails.
// onClose runs before the client leaves the hub.
func (c *Client) ReadPump(handle func(*Client, []byte), onClose func(*Client, error)) {
	var readErr error
	defer func() {
		onClose(c, readErr)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l := pkglog.L()
				l.Warn().Err(err).Str(pkglog.FieldConnID, c.ID).Msg("websocket read error")
			}
			return
		}
		handle(c, message)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Emit queues one outbound event for this connection only.
func (c *Client) Emit(event string, data any) {
	c.write(events.Outbound{Event: event, Data: data})
}

func (c *Client) emitAck(ack int64, data any) {
	if data == nil {
		data = map[string]string{"status": "ok"}
	}
	c.write(events.Outbound{Event: events.Ack, Data: data, Ack: &ack})
}

func (c *Client) write(frame events.Outbound) {
	payload, err := json.Marshal(frame)
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldEvent, frame.Event).Msg("encode outbound event")
		return
	}
	c.enqueue(payload)
}

// enqueue never blocks. A client whose buffer is full is disconnected.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		l := pkglog.L()
		l.Warn().Str(pkglog.FieldConnID, c.ID).Msg("send buffer full, closing slow client")
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
