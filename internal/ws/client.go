package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"groupchat-service/internal/config"
	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
)

// Client is one websocket connection. All writes go through a single
// bounded queue drained by WritePump, so frames leave in enqueue order.
type Client struct {
	conn *websocket.Conn
	cfg  config.WebSocketConfig
	info ConnInfo

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(conn *websocket.Conn, cfg config.WebSocketConfig, info ConnInfo) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &Client{
		conn: conn,
		cfg:  cfg,
		info: info,
		send: make(chan []byte, size),
	}
}

func (c *Client) ID() string {
	return c.info.ConnID
}

// Send queues a frame. A closed client or a full queue reports
// hub.ErrConnectionLost and the hub drops the connection.
func (c *Client) Send(ev hub.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return hub.ErrConnectionLost
	}
	select {
	case c.send <- data:
		return nil
	default:
		return hub.ErrConnectionLost
	}
}

// Close stops the write pump after it flushes what is already queued.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump delivers inbound frames to handle until the socket fails.
// It returns the read error that ended the loop.
func (c *Client) ReadPump(handle func([]byte)) error {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logging.L().Warn().Err(err).Str(logging.FieldConnID, c.ID()).Msg("websocket read failed")
			}
			return err
		}
		handle(message)
	}
}

// WritePump drains the send queue and keeps the peer alive with pings.
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
